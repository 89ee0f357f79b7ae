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

// Package simlink provides a software oven that produces telemetry without
// hardware. It stands in for the physical link when simulation is enabled.
package simlink

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pcboven/pcboven-core/pkg/helpers/syncutil"
	"github.com/pcboven/pcboven-core/pkg/oven/frame"
	"github.com/pcboven/pcboven-core/pkg/transport"
)

const (
	LinkID = "sim:oven"

	DefaultInterval = 250 * time.Millisecond
	DefaultAmbient  = 25.0
	DefaultHeatRate = 2.5
	DefaultCoolRate = 0.02

	// Largest values representable by the 14-bit probe and 12-bit internal
	// samples after decoding.
	maxProbe    = 2047
	maxInternal = 127
)

// TargetSource reports the commanded setpoint, in the same scale as the
// decoded probe temperature, and the filament enable flag.
type TargetSource interface {
	Target() (target int16, filaments bool)
}

type Options struct {
	Clock    clockwork.Clock
	Interval time.Duration
	// Ambient is the temperature the oven starts at and cools toward.
	Ambient float64
	// HeatRate is the rise in degrees per second with both filaments on.
	HeatRate float64
	// CoolRate is the fraction of the distance to ambient lost per second.
	CoolRate float64
}

// Link is a simulated oven. Filaments switch on while they are enabled and
// the probe is below target, like the firmware's bang-bang controller.
type Link struct {
	source   TargetSource
	ticker   clockwork.Ticker
	done     chan struct{}
	opts     Options
	commands [][]byte
	temp     float64
	mu       syncutil.Mutex
	once     sync.Once
}

func New(source TargetSource, opts *Options) *Link {
	o := Options{}
	if opts != nil {
		o = *opts
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.Ambient == 0 {
		o.Ambient = DefaultAmbient
	}
	if o.HeatRate <= 0 {
		o.HeatRate = DefaultHeatRate
	}
	if o.CoolRate <= 0 {
		o.CoolRate = DefaultCoolRate
	}

	return &Link{
		source: source,
		opts:   o,
		temp:   o.Ambient,
		ticker: o.Clock.NewTicker(o.Interval),
		done:   make(chan struct{}),
	}
}

func (*Link) ID() string {
	return LinkID
}

// ReadFrame waits for the next simulation tick and returns a telemetry
// frame describing the model at that time.
func (l *Link) ReadFrame(ctx context.Context, buf []byte) (int, error) {
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("simulated read cancelled: %w", ctx.Err())
	case <-l.done:
		return 0, transport.ErrLinkClosed
	case <-l.ticker.Chan():
		f := l.step(l.opts.Interval.Seconds())
		return copy(buf, f[:]), nil
	}
}

func (l *Link) step(dt float64) [frame.TelemetryLen]byte {
	target, enabled := l.source.Target()

	l.mu.Lock()
	defer l.mu.Unlock()

	heating := enabled && l.temp < float64(target)
	if heating {
		l.temp += l.opts.HeatRate * dt
	} else {
		l.temp -= (l.temp - l.opts.Ambient) * l.opts.CoolRate * dt
	}

	probe := clamp(math.Round(l.temp), -maxProbe-1, maxProbe)
	internal := clamp(math.Round(l.opts.Ambient+(l.temp-l.opts.Ambient)/20), -maxInternal-1, maxInternal)

	return frame.EncodeTelemetry(frame.RawTelemetry{
		Probe:    probe << 2,
		Internal: internal << 4,
		TopOn:    frame.BoolByte(heating),
		BottomOn: frame.BoolByte(heating),
	})
}

func clamp(v float64, lo, hi int16) int16 {
	switch {
	case v < float64(lo):
		return lo
	case v > float64(hi):
		return hi
	default:
		return int16(v)
	}
}

// WriteFrame records a command. The simulated oven follows its TargetSource,
// so recorded commands only matter to tests.
func (l *Link) WriteFrame(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("simulated write cancelled: %w", err)
	}
	select {
	case <-l.done:
		return transport.ErrLinkClosed
	default:
	}

	buf := make([]byte, len(data))
	copy(buf, data)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.commands = append(l.commands, buf)
	return nil
}

func (l *Link) Commands() [][]byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([][]byte, len(l.commands))
	copy(out, l.commands)
	return out
}

// Temperature returns the modelled oven temperature.
func (l *Link) Temperature() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.temp
}

func (l *Link) Close() error {
	l.once.Do(func() {
		l.ticker.Stop()
		close(l.done)
	})
	return nil
}
