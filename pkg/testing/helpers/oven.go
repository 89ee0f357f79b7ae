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

package helpers

import (
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/pcboven/pcboven-core/pkg/control"
	"github.com/pcboven/pcboven-core/pkg/device"
	"github.com/pcboven/pcboven-core/pkg/service/broker"
	"github.com/pcboven/pcboven-core/pkg/transport"
	"github.com/pcboven/pcboven-core/pkg/transport/simlink"
)

// TestOven bundles a device context whose simulated links run on a fake
// clock, so they only tick when the test advances it.
type TestOven struct {
	Hub     *broker.Broker
	Device  *device.Context
	Control *control.Controller
	Clock   *clockwork.FakeClock
}

func NewTestOven(t *testing.T) *TestOven {
	t.Helper()

	o := &TestOven{
		Hub:   broker.NewBroker(),
		Clock: clockwork.NewFakeClock(),
	}
	o.Device = device.New(o.Hub, device.Options{
		NewSimLink: func(src simlink.TargetSource) transport.Link {
			return simlink.New(src, &simlink.Options{Clock: o.Clock})
		},
	})
	o.Control = control.New(o.Device, o.Hub)

	t.Cleanup(func() {
		o.Device.Shutdown()
		o.Hub.Stop()
	})
	return o
}
