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

// Package device holds the single authoritative oven state and the
// connection it is bound to. Telemetry, control surfaces and the link
// binder all go through a Context.
package device

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/pcboven/pcboven-core/pkg/helpers/syncutil"
	"github.com/pcboven/pcboven-core/pkg/oven/frame"
	"github.com/pcboven/pcboven-core/pkg/oven/models"
	"github.com/pcboven/pcboven-core/pkg/service/broker"
	"github.com/pcboven/pcboven-core/pkg/transport"
	"github.com/pcboven/pcboven-core/pkg/transport/simlink"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotConnected        = errors.New("oven not connected")
	ErrAlreadyConnected    = errors.New("oven already connected")
	ErrRealDeviceConnected = errors.New("real oven connected")
	ErrClosed              = errors.New("device context shut down")
)

// Options configures how links are driven once they are bound.
type Options struct {
	// NewSimLink builds the simulated link used by SetDummy. It defaults
	// to a simlink.Link with default settings.
	NewSimLink func(src simlink.TargetSource) transport.Link
	// Transport is the template for every transport the context starts.
	// OnLinkClosed is always replaced.
	Transport transport.Options
}

type snapshot struct {
	state models.OvenState
	conn  models.Connection
}

// Context is the device context. Every mutation is serialized by one
// mutex; readers load an immutable snapshot without locking.
type Context struct {
	hub    *broker.Broker
	active *transport.Transport
	snap   atomic.Pointer[snapshot]
	opts   Options
	state  models.OvenState
	conn   models.Connection
	gen    uint64
	mu     syncutil.Mutex
	closed bool
}

func New(hub *broker.Broker, opts Options) *Context {
	if opts.NewSimLink == nil {
		opts.NewSimLink = func(src simlink.TargetSource) transport.Link {
			return simlink.New(src, nil)
		}
	}
	c := &Context{
		hub:  hub,
		opts: opts,
	}
	c.snap.Store(&snapshot{})
	return c
}

// publishLocked swaps in a fresh snapshot. Must be called with mu held.
func (c *Context) publishLocked() {
	c.snap.Store(&snapshot{state: c.state, conn: c.conn})
}

func (c *Context) notify() {
	if c.hub != nil {
		c.hub.NotifyAll()
	}
}

func (c *Context) startLocked(link transport.Link) {
	opts := c.opts.Transport
	opts.OnLinkClosed = func(id string) { c.OnDisconnectLink(id) }
	c.gen++
	c.active = transport.Start(link, &linkSink{ctx: c, gen: c.gen}, &opts)
}

// detachLocked hands back the active transport so it can be closed after
// the lock is released. The telemetry loop may be blocked in UpdateState
// waiting for mu.
func (c *Context) detachLocked() *transport.Transport {
	t := c.active
	c.active = nil
	c.conn = models.Connection{Kind: models.Disconnected}
	return t
}

func closeTransport(t *transport.Transport) {
	if t == nil {
		return
	}
	if err := t.Close(); err != nil {
		log.Warn().Err(err).Str("link", t.LinkID()).Msg("error closing link")
	}
}

// Snapshot returns a consistent copy of the oven state and connection.
func (c *Context) Snapshot() (models.OvenState, models.Connection) {
	s := c.snap.Load()
	return s.state, s.conn
}

func (c *Context) State() models.OvenState {
	return c.snap.Load().state
}

func (c *Context) Connection() models.Connection {
	return c.snap.Load().conn
}

// Target implements simlink.TargetSource.
func (c *Context) Target() (target int16, filaments bool) {
	s := c.snap.Load().state
	return s.TargetTemp, s.EnableFilaments
}

// OnConnect binds a real oven link and starts its telemetry loop. Only one
// oven can be bound at a time; a second one is rejected with
// ErrAlreadyConnected and left untouched.
func (c *Context) OnConnect(link transport.Link) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.conn.Kind != models.Disconnected {
		conn := c.conn
		c.mu.Unlock()
		return fmt.Errorf("%w: bound to %s (%s)", ErrAlreadyConnected, conn.LinkID, conn.Kind)
	}

	c.startLocked(link)
	c.conn = models.Connection{LinkID: link.ID(), Kind: models.Connected}
	c.publishLocked()
	c.mu.Unlock()

	log.Info().Str("link", link.ID()).Msg("oven connected")
	c.notify()
	return nil
}

// OnDisconnect unbinds whatever link is active, real or simulated. It is
// safe to call at any time and notifies subscribers every time.
func (c *Context) OnDisconnect() {
	c.mu.Lock()
	t := c.detachLocked()
	c.publishLocked()
	c.mu.Unlock()

	closeTransport(t)
	if t != nil {
		log.Info().Str("link", t.LinkID()).Msg("oven disconnected")
	}
	c.notify()
}

// OnDisconnectLink disconnects only if linkID is the bound link. It
// returns false when another link, or nothing, is bound.
func (c *Context) OnDisconnectLink(linkID string) bool {
	c.mu.Lock()
	if c.conn.LinkID != linkID || c.conn.Kind == models.Disconnected {
		c.mu.Unlock()
		log.Debug().Str("link", linkID).Msg("ignoring disconnect of unbound link")
		return false
	}
	t := c.detachLocked()
	c.publishLocked()
	c.mu.Unlock()

	closeTransport(t)
	log.Info().Str("link", linkID).Msg("oven disconnected")
	c.notify()
	return true
}

// UpdateState merges freshly decoded telemetry into the oven state. The
// commanded target fields are kept.
func (c *Context) UpdateState(t models.Telemetry) {
	c.mu.Lock()
	c.state = c.state.WithTelemetry(t)
	c.publishLocked()
	c.mu.Unlock()

	c.notify()
}

type linkSink struct {
	ctx *Context
	gen uint64
}

// UpdateState drops frames from a transport that has already been detached.
func (s *linkSink) UpdateState(t models.Telemetry) {
	c := s.ctx
	c.mu.Lock()
	if c.active == nil || c.gen != s.gen {
		c.mu.Unlock()
		return
	}
	c.state = c.state.WithTelemetry(t)
	c.publishLocked()
	c.mu.Unlock()

	c.notify()
}

// SetDummy switches the simulated oven on or off. Enabling while a real
// oven is bound fails with ErrRealDeviceConnected. Requests that would not
// change anything succeed silently.
func (c *Context) SetDummy(enabled bool) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}

	switch {
	case enabled && c.conn.Kind == models.Connected:
		c.mu.Unlock()
		return ErrRealDeviceConnected
	case enabled && c.conn.Kind == models.Disconnected:
		link := c.opts.NewSimLink(c)
		c.startLocked(link)
		c.conn = models.Connection{LinkID: link.ID(), Kind: models.Simulated}
		c.publishLocked()
		c.mu.Unlock()

		log.Info().Str("link", link.ID()).Msg("simulated oven enabled")
		c.notify()
		return nil
	case !enabled && c.conn.Kind == models.Simulated:
		t := c.detachLocked()
		c.publishLocked()
		c.mu.Unlock()

		closeTransport(t)
		log.Info().Msg("simulated oven disabled")
		c.notify()
		return nil
	default:
		c.mu.Unlock()
		return nil
	}
}

// ApplyCommand applies mutate to a copy of the state and, for a real oven,
// submits the resulting command. The copy replaces the state only when the
// submission was accepted, so a failed submission leaves nothing behind.
// Simulated ovens take the new state without any command being sent.
func (c *Context) ApplyCommand(mutate func(*models.OvenState)) error {
	c.mu.Lock()
	if !c.conn.Active() {
		c.mu.Unlock()
		return ErrNotConnected
	}

	next := c.state
	mutate(&next)

	if c.conn.Kind == models.Connected {
		cmd := frame.EncodeCommand(next.TargetTemp, next.EnableFilaments)
		if err := c.active.Send(cmd[:]); err != nil {
			c.mu.Unlock()
			return fmt.Errorf("sending command: %w", err)
		}
	}

	c.state = next
	c.publishLocked()
	c.mu.Unlock()

	c.notify()
	return nil
}

// TransportStats reports counters for the active transport, if any.
func (c *Context) TransportStats() (transport.Stats, bool) {
	c.mu.Lock()
	t := c.active
	c.mu.Unlock()
	if t == nil {
		return transport.Stats{}, false
	}
	return t.Stats(), true
}

// Shutdown unbinds any link and refuses further connections.
func (c *Context) Shutdown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	var t *transport.Transport
	changed := c.conn.Kind != models.Disconnected
	if changed {
		t = c.detachLocked()
		c.publishLocked()
	}
	c.mu.Unlock()

	closeTransport(t)
	if changed {
		c.notify()
	}
	log.Debug().Msg("device context shut down")
}
