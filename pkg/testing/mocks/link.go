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

package mocks

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/pcboven/pcboven-core/pkg/helpers/syncutil"
)

var ErrFakeLinkClosed = errors.New("fake link closed")

type readResult struct {
	err  error
	data []byte
}

// FakeLink is a scriptable transport link. Reads are fed through Feed and
// FeedError; writes are recorded and can be held back with a gate.
type FakeLink struct {
	WriteErr error
	reads    chan readResult
	gate     chan struct{}
	id       string
	written  [][]byte
	mu       syncutil.Mutex
	closed   atomic.Bool
	closes   atomic.Int32
}

func NewFakeLink(id string) *FakeLink {
	return &FakeLink{
		id:    id,
		reads: make(chan readResult, 64),
	}
}

// GateWrites makes every write wait until ReleaseWrites is called or the
// write context ends.
func (l *FakeLink) GateWrites() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.gate = make(chan struct{})
}

func (l *FakeLink) ReleaseWrites() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.gate != nil {
		close(l.gate)
		l.gate = nil
	}
}

func (l *FakeLink) Feed(b []byte) {
	data := make([]byte, len(b))
	copy(data, b)
	l.reads <- readResult{data: data}
}

func (l *FakeLink) FeedError(err error) {
	l.reads <- readResult{err: err}
}

func (l *FakeLink) ID() string {
	return l.id
}

func (l *FakeLink) ReadFrame(ctx context.Context, buf []byte) (int, error) {
	if l.closed.Load() {
		return 0, ErrFakeLinkClosed
	}
	select {
	case r := <-l.reads:
		if r.err != nil {
			return 0, r.err
		}
		return copy(buf, r.data), nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (l *FakeLink) WriteFrame(ctx context.Context, data []byte) error {
	l.mu.Lock()
	gate := l.gate
	l.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if l.closed.Load() {
		return ErrFakeLinkClosed
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.WriteErr != nil {
		return l.WriteErr
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	l.written = append(l.written, buf)
	return nil
}

// Written returns copies of every successfully written frame.
func (l *FakeLink) Written() [][]byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([][]byte, len(l.written))
	copy(out, l.written)
	return out
}

func (l *FakeLink) Close() error {
	l.closed.Store(true)
	l.closes.Add(1)
	return nil
}

func (l *FakeLink) Closed() bool {
	return l.closed.Load()
}

// CloseCount returns how many times Close was called.
func (l *FakeLink) CloseCount() int {
	return int(l.closes.Load())
}
