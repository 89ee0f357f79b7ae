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

// Package transport runs the oven protocol over a Link: the recurring
// telemetry read and one-shot command writes.
//
// A Link is a capability with interchangeable providers (USB, serial,
// simulated). The Transport never needs to know which one it is driving.
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pcboven/pcboven-core/pkg/helpers/syncutil"
	"github.com/pcboven/pcboven-core/pkg/oven/frame"
	"github.com/pcboven/pcboven-core/pkg/oven/models"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"
)

var (
	// ErrSubmissionFailed is returned synchronously when a command could not
	// be handed to the link at all.
	ErrSubmissionFailed = errors.New("command submission failed")
	// ErrLinkClosed is returned by links whose device is gone for good.
	ErrLinkClosed = errors.New("link closed")
)

const (
	DefaultReadRetryDelay = 10 * time.Millisecond
	DefaultMaxInFlight    = 8
	DefaultWriteTimeout   = time.Second

	// Links may deliver more than one frame worth of bytes in a transfer.
	readBufLen = 64
)

// Link is a bound connection to an oven, physical or simulated.
type Link interface {
	// ID returns a stable identifier for the bound device.
	ID() string
	// ReadFrame blocks until one telemetry transfer completes and returns
	// the number of bytes placed in buf.
	ReadFrame(ctx context.Context, buf []byte) (int, error)
	// WriteFrame sends one command transfer.
	WriteFrame(ctx context.Context, data []byte) error
	// Close releases the device.
	Close() error
}

// StateSink receives decoded telemetry.
type StateSink interface {
	UpdateState(t models.Telemetry)
}

type Options struct {
	Clock clockwork.Clock
	// OnLinkClosed runs in its own goroutine when the link reports
	// ErrLinkClosed.
	OnLinkClosed   func(linkID string)
	ReadRetryDelay time.Duration
	WriteTimeout   time.Duration
	MaxInFlight    int64
}

func (o *Options) withDefaults() Options {
	out := Options{}
	if o != nil {
		out = *o
	}
	if out.Clock == nil {
		out.Clock = clockwork.NewRealClock()
	}
	if out.ReadRetryDelay <= 0 {
		out.ReadRetryDelay = DefaultReadRetryDelay
	}
	if out.WriteTimeout <= 0 {
		out.WriteTimeout = DefaultWriteTimeout
	}
	if out.MaxInFlight <= 0 {
		out.MaxInFlight = DefaultMaxInFlight
	}
	return out
}

// Stats counts telemetry loop and command outcomes.
type Stats struct {
	Frames      uint64
	ShortFrames uint64
	ReadErrors  uint64
	Writes      uint64
	WriteErrors uint64
}

// Transport owns the telemetry loop and command writes for one link.
type Transport struct {
	link     Link
	sink     StateSink
	ctx      context.Context
	cancel   context.CancelFunc
	sem      *semaphore.Weighted
	loopDone chan struct{}
	opts     Options
	writes   sync.WaitGroup

	frames      atomic.Uint64
	shortFrames atomic.Uint64
	readErrors  atomic.Uint64
	written     atomic.Uint64
	writeErrors atomic.Uint64

	closeOnce sync.Once
	closeErr  error
	mu        syncutil.RWMutex // protects closed
	closed    bool
}

// Start begins the telemetry loop on link and returns the running
// transport. Every complete frame is decoded and handed to sink; the loop
// keeps resubmitting reads until Close is called or the link reports
// ErrLinkClosed.
func Start(link Link, sink StateSink, opts *Options) *Transport {
	o := opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	t := &Transport{
		link:     link,
		sink:     sink,
		ctx:      ctx,
		cancel:   cancel,
		sem:      semaphore.NewWeighted(o.MaxInFlight),
		loopDone: make(chan struct{}),
		opts:     o,
	}

	log.Info().Str("link", link.ID()).Msg("starting telemetry loop")
	go t.readLoop()

	return t
}

func (t *Transport) LinkID() string {
	return t.link.ID()
}

func (t *Transport) readLoop() {
	defer close(t.loopDone)

	id := t.link.ID()
	buf := make([]byte, readBufLen)

	for {
		if t.ctx.Err() != nil {
			return
		}

		n, err := t.link.ReadFrame(t.ctx, buf)
		if err != nil {
			if t.ctx.Err() != nil {
				return
			}
			if errors.Is(err, ErrLinkClosed) {
				log.Warn().Str("link", id).Msg("link closed, stopping telemetry loop")
				if t.opts.OnLinkClosed != nil {
					go t.opts.OnLinkClosed(id)
				}
				return
			}

			t.readErrors.Add(1)
			log.Error().Err(err).Str("link", id).Msg("telemetry read failed, resubmitting")

			select {
			case <-t.ctx.Done():
				return
			case <-t.opts.Clock.After(t.opts.ReadRetryDelay):
			}
			continue
		}

		tel, err := frame.DecodeTelemetry(buf[:n])
		if err != nil {
			t.shortFrames.Add(1)
			log.Warn().Err(err).Str("link", id).Msg("dropping telemetry frame")
			continue
		}

		t.frames.Add(1)
		t.sink.UpdateState(tel)
	}
}

// Send submits a command frame asynchronously. The buffer is copied, so the
// caller may reuse cmd immediately. The outcome of the write is only logged.
func (t *Transport) Send(cmd []byte) error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.closed || t.link == nil {
		return fmt.Errorf("%w: transport closed", ErrSubmissionFailed)
	}

	if !t.sem.TryAcquire(1) {
		return fmt.Errorf("%w: %d writes already in flight", ErrSubmissionFailed, t.opts.MaxInFlight)
	}

	buf := make([]byte, len(cmd))
	copy(buf, cmd)

	t.writes.Add(1)
	go t.complete(buf)

	return nil
}

// complete performs one write and releases its slot exactly once.
func (t *Transport) complete(buf []byte) {
	defer t.writes.Done()
	defer t.sem.Release(1)

	ctx, cancel := context.WithTimeout(t.ctx, t.opts.WriteTimeout)
	defer cancel()

	err := t.link.WriteFrame(ctx, buf)
	if err != nil {
		t.writeErrors.Add(1)
		log.Error().Err(err).Str("link", t.link.ID()).Hex("frame", buf).Msg("command write failed")
		return
	}

	t.written.Add(1)
	log.Debug().Str("link", t.link.ID()).Hex("frame", buf).Msg("command written")
}

func (t *Transport) Stats() Stats {
	return Stats{
		Frames:      t.frames.Load(),
		ShortFrames: t.shortFrames.Load(),
		ReadErrors:  t.readErrors.Load(),
		Writes:      t.written.Load(),
		WriteErrors: t.writeErrors.Load(),
	}
}

// Close stops the telemetry loop, waits for in-flight writes to finish or be
// cancelled, then closes the link. It is safe to call more than once.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.closed = true
		t.mu.Unlock()

		t.cancel()
		<-t.loopDone
		t.writes.Wait()

		stats := t.Stats()
		log.Info().
			Str("link", t.link.ID()).
			Uint64("frames", stats.Frames).
			Uint64("short_frames", stats.ShortFrames).
			Uint64("read_errors", stats.ReadErrors).
			Uint64("writes", stats.Writes).
			Uint64("write_errors", stats.WriteErrors).
			Msg("transport closed")

		if err := t.link.Close(); err != nil {
			t.closeErr = fmt.Errorf("failed to close link %s: %w", t.link.ID(), err)
		}
	})
	return t.closeErr
}
