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

package historydb

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pcboven/pcboven-core/pkg/database"
	"github.com/pcboven/pcboven-core/pkg/helpers/syncutil"
	"github.com/pcboven/pcboven-core/pkg/oven/models"
	"github.com/pcboven/pcboven-core/pkg/service/broker"
	"github.com/rs/zerolog/log"
)

const DefaultCleanupInterval = time.Hour

type StateSource interface {
	Snapshot() (models.OvenState, models.Connection)
}

type Subscriber interface {
	Subscribe() *broker.Subscription
	Unsubscribe(id int)
}

type RecorderOptions struct {
	Clock           clockwork.Clock
	SampleInterval  time.Duration
	Retention       time.Duration
	CleanupInterval time.Duration
}

// Recorder stores a sample of the oven state on change signals, at most one
// per sample interval, while a device or simulation is connected.
type Recorder struct {
	db    database.HistoryDBI
	src   StateSource
	hub   Subscriber
	opts  RecorderOptions
	last  time.Time
	done  chan struct{}
	wg    sync.WaitGroup
	mu    syncutil.Mutex
	once  sync.Once
	start sync.Once
}

func NewRecorder(
	db database.HistoryDBI,
	src StateSource,
	hub Subscriber,
	opts RecorderOptions,
) *Recorder {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = DefaultCleanupInterval
	}
	return &Recorder{
		db:   db,
		src:  src,
		hub:  hub,
		opts: opts,
		done: make(chan struct{}),
	}
}

// Record stores the current state if it is due. It reports whether a sample
// was written.
func (r *Recorder) Record() bool {
	state, conn := r.src.Snapshot()
	if !conn.Active() {
		return false
	}

	r.mu.Lock()
	now := r.opts.Clock.Now()
	if !r.last.IsZero() && now.Sub(r.last) < r.opts.SampleInterval {
		r.mu.Unlock()
		return false
	}
	r.last = now
	r.mu.Unlock()

	s := &database.Sample{
		Time:             now,
		Kind:             conn.Kind.String(),
		ProbeTemp:        state.ProbeTemp,
		InternalTemp:     state.InternalTemp,
		TargetTemp:       state.TargetTemp,
		EnableFilaments:  state.EnableFilaments,
		FilamentTopOn:    state.FilamentTopOn,
		FilamentBottomOn: state.FilamentBottomOn,
		Fault:            state.HasFault(),
	}
	if err := r.db.AddSample(s); err != nil {
		log.Error().Err(err).Msg("failed to store telemetry sample")
		return false
	}
	return true
}

func (r *Recorder) cleanup() {
	if r.opts.Retention <= 0 {
		return
	}
	n, err := r.db.CleanupSamples(r.opts.Retention)
	if err != nil {
		log.Error().Err(err).Msg("failed to clean up telemetry history")
		return
	}
	if n > 0 {
		log.Info().Int64("deleted", n).Msg("cleaned up old telemetry samples")
	}
}

// Start subscribes to the hub and records in the background until Stop.
func (r *Recorder) Start() {
	r.start.Do(func() {
		sub := r.hub.Subscribe()
		ticker := r.opts.Clock.NewTicker(r.opts.CleanupInterval)
		r.cleanup()

		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			defer ticker.Stop()
			defer r.hub.Unsubscribe(sub.ID())
			for {
				select {
				case <-r.done:
					return
				case _, ok := <-sub.C():
					if !ok {
						return
					}
					r.Record()
				case <-ticker.Chan():
					r.cleanup()
				}
			}
		}()
	})
}

func (r *Recorder) Stop() {
	r.once.Do(func() {
		close(r.done)
	})
	r.wg.Wait()
}
