// PCBoven Core
// Copyright (c) 2026 The PCBoven Project Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of PCBoven Core.
//
// PCBoven Core is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// PCBoven Core is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with PCBoven Core.  If not, see <http://www.gnu.org/licenses/>.

// Package linkwatch binds ovens to the device context as they appear. There
// is no portable hot-plug event source for libusb or ttys, so sources are
// polled; removal is reported by the transport when reads hit a vanished
// device.
package linkwatch

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pcboven/pcboven-core/pkg/device"
	"github.com/pcboven/pcboven-core/pkg/oven/models"
	"github.com/pcboven/pcboven-core/pkg/transport"
	"github.com/rs/zerolog/log"
)

const DefaultPollInterval = 2 * time.Second

// Source finds attached ovens. Find must not open a device whose id skip
// reports true; every link it returns is opened and owned by the caller.
type Source interface {
	Name() string
	Find(skip func(id string) bool) ([]transport.Link, error)
}

// Binder is the part of the device context the watcher drives.
type Binder interface {
	OnConnect(link transport.Link) error
	Connection() models.Connection
}

type Options struct {
	Clock        clockwork.Clock
	PollInterval time.Duration
}

// Watcher polls its sources and hands new ovens to the binder. While an
// oven is bound, any further oven is rejected, closed and remembered so it
// is not reopened on every poll.
type Watcher struct {
	binder   Binder
	clock    clockwork.Clock
	cancel   context.CancelFunc
	done     chan struct{}
	rejected map[string]struct{}
	seen     map[string]struct{}
	sources  []Source
	interval time.Duration
}

func New(binder Binder, sources []Source, opts *Options) *Watcher {
	o := Options{}
	if opts != nil {
		o = *opts
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	return &Watcher{
		binder:   binder,
		sources:  sources,
		clock:    o.Clock,
		interval: o.PollInterval,
		rejected: make(map[string]struct{}),
		seen:     make(map[string]struct{}),
	}
}

// Start polls once immediately and then every poll interval until Stop.
func (w *Watcher) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})

	go func() {
		defer close(w.done)

		ticker := w.clock.NewTicker(w.interval)
		defer ticker.Stop()

		w.Poll()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				w.Poll()
			}
		}
	}()
}

func (w *Watcher) Stop() {
	if w.cancel == nil {
		return
	}
	w.cancel()
	<-w.done
	w.cancel = nil
}

func (w *Watcher) skip(id string) bool {
	w.seen[id] = struct{}{}

	conn := w.binder.Connection()
	if conn.Kind == models.Connected && conn.LinkID == id {
		return true
	}
	if !conn.Active() {
		return false
	}
	_, rejected := w.rejected[id]
	return rejected
}

// Poll runs one scan of every source. It is not safe to call concurrently
// with a started watcher.
func (w *Watcher) Poll() {
	clear(w.seen)

	for _, src := range w.sources {
		links, err := src.Find(w.skip)
		if err != nil {
			log.Debug().Err(err).Str("source", src.Name()).Msg("oven scan failed")
			continue
		}
		for _, l := range links {
			w.bind(l)
		}
	}

	for id := range w.rejected {
		if _, ok := w.seen[id]; !ok {
			delete(w.rejected, id)
		}
	}
}

func (w *Watcher) bind(l transport.Link) {
	err := w.binder.OnConnect(l)
	if err == nil {
		delete(w.rejected, l.ID())
		return
	}

	if errors.Is(err, device.ErrAlreadyConnected) {
		log.Warn().Str("link", l.ID()).Msg("an oven is already bound, ignoring additional device")
		w.rejected[l.ID()] = struct{}{}
	} else {
		log.Error().Err(err).Str("link", l.ID()).Msg("failed to bind oven")
	}

	if closeErr := l.Close(); closeErr != nil {
		log.Warn().Err(closeErr).Str("link", l.ID()).Msg("failed to close rejected oven")
	}
}
