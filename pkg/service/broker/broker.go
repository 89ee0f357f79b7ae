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

// Package broker broadcasts payload-less change signals to any number of
// subscribers without ever blocking the notifier.
package broker

import (
	"sync/atomic"

	"github.com/pcboven/pcboven-core/pkg/helpers/syncutil"
	"github.com/rs/zerolog/log"
)

// Subscription is a registered observer. A signal on C means the oven state
// or connection changed since the last signal was read; subscribers must
// re-query the state after waking.
type Subscription struct {
	ch      chan struct{}
	dropped atomic.Uint64
	id      int
}

func (s *Subscription) ID() int {
	return s.id
}

// C returns the wake channel. It is closed on Unsubscribe or Stop.
func (s *Subscription) C() <-chan struct{} {
	return s.ch
}

// Dropped returns how many signals were coalesced because one was already
// pending for this subscriber.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Broker manages subscriptions. It is safe for concurrent use.
type Broker struct {
	subscribers map[int]*Subscription
	mu          syncutil.RWMutex
	nextID      int
	stopped     bool
}

func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[int]*Subscription),
	}
}

// NotifyAll sends one wake signal to every subscriber. Sends never block: a
// subscriber that still has an unread signal keeps it and has its dropped
// counter incremented instead.
func (b *Broker) NotifyAll() {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, sub := range b.subscribers {
		select {
		case sub.ch <- struct{}{}:
		default:
			n := sub.dropped.Add(1)
			log.Trace().
				Int("subscriber_id", id).
				Uint64("dropped", n).
				Msg("subscriber has a pending signal, coalescing")
		}
	}
}

// Subscribe registers a new observer. After Stop it returns a subscription
// whose channel is already closed.
func (b *Broker) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscription{
		id: b.nextID,
		ch: make(chan struct{}, 1),
	}
	b.nextID++

	if b.stopped {
		close(sub.ch)
		return sub
	}

	b.subscribers[sub.id] = sub
	log.Debug().Int("subscriber_id", sub.id).Msg("new subscriber registered")
	return sub
}

// Unsubscribe removes a subscription and closes its channel. Unknown or
// already removed ids are ignored.
func (b *Broker) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.subscribers[id]; ok {
		delete(b.subscribers, id)
		close(sub.ch)
		log.Debug().Int("subscriber_id", id).Msg("subscriber unsubscribed")
	}
}

// Len returns the number of current subscribers.
func (b *Broker) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Stop closes every subscriber channel. Further signals are discarded.
func (b *Broker) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopped {
		return
	}
	b.stopped = true

	for id, sub := range b.subscribers {
		close(sub.ch)
		log.Debug().Int("subscriber_id", id).Msg("closed subscriber channel on shutdown")
	}
	b.subscribers = make(map[int]*Subscription)
}
