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

// Package usblink drives a PCBoven oven over libusb.
package usblink

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/google/gousb"
	"github.com/pcboven/pcboven-core/pkg/transport"
	"github.com/rs/zerolog/log"
)

const (
	VendorID  gousb.ID = 0x03eb
	ProductID gousb.ID = 0x3140

	// EndpointIn is the interrupt IN endpoint carrying telemetry.
	EndpointIn = 0x81
	// EndpointOut is the bulk OUT endpoint taking commands.
	EndpointOut = 0x02
)

// Match reports whether desc describes a PCBoven oven.
func Match(desc *gousb.DeviceDesc) bool {
	return desc.Vendor == VendorID && desc.Product == ProductID
}

// DescID returns a link id stable for as long as the oven stays plugged
// into the same port, in the style of sysfs: usb:<bus>-<port.port...>.
func DescID(desc *gousb.DeviceDesc) string {
	if len(desc.Path) == 0 {
		return fmt.Sprintf("usb:%d-addr%d", desc.Bus, desc.Address)
	}
	ports := make([]string, 0, len(desc.Path))
	for _, p := range desc.Path {
		ports = append(ports, strconv.Itoa(p))
	}
	return fmt.Sprintf("usb:%d-%s", desc.Bus, strings.Join(ports, "."))
}

type Link struct {
	dev       *gousb.Device
	in        *gousb.InEndpoint
	out       *gousb.OutEndpoint
	done      func()
	closeErr  error
	id        string
	closeOnce sync.Once
}

// Open claims the default interface of dev and its two endpoints. The link
// takes ownership of dev and closes it on failure.
func Open(dev *gousb.Device) (*Link, error) {
	id := DescID(dev.Desc)

	if err := dev.SetAutoDetach(true); err != nil {
		log.Debug().Err(err).Str("link", id).Msg("auto detach not supported")
	}

	intf, done, err := dev.DefaultInterface()
	if err != nil {
		_ = dev.Close()
		return nil, fmt.Errorf("failed to claim interface on %s: %w", id, err)
	}

	in, err := intf.InEndpoint(EndpointIn &^ 0x80)
	if err != nil {
		done()
		_ = dev.Close()
		return nil, fmt.Errorf("failed to open telemetry endpoint on %s: %w", id, err)
	}

	out, err := intf.OutEndpoint(EndpointOut)
	if err != nil {
		done()
		_ = dev.Close()
		return nil, fmt.Errorf("failed to open command endpoint on %s: %w", id, err)
	}

	log.Info().Str("link", id).Msg("opened usb oven link")
	return &Link{
		id:   id,
		dev:  dev,
		in:   in,
		out:  out,
		done: done,
	}, nil
}

// OpenAll opens every attached oven whose id skip does not report. A nil
// skip opens them all. Devices that fail to open are logged and left out.
func OpenAll(ctx *gousb.Context, skip func(id string) bool) ([]*Link, error) {
	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return Match(desc) && (skip == nil || !skip(DescID(desc)))
	})
	if err != nil && len(devs) == 0 {
		return nil, fmt.Errorf("failed to enumerate usb devices: %w", err)
	}
	if err != nil {
		log.Warn().Err(err).Msg("some usb devices could not be opened")
	}

	links := make([]*Link, 0, len(devs))
	for _, dev := range devs {
		l, err := Open(dev)
		if err != nil {
			log.Error().Err(err).Msg("failed to open oven")
			continue
		}
		links = append(links, l)
	}
	return links, nil
}

func (l *Link) ID() string {
	return l.id
}

func (l *Link) ReadFrame(ctx context.Context, buf []byte) (int, error) {
	n, err := l.in.ReadContext(ctx, buf)
	if err != nil {
		return n, mapError(err)
	}
	return n, nil
}

func (l *Link) WriteFrame(ctx context.Context, data []byte) error {
	n, err := l.out.WriteContext(ctx, data)
	if err != nil {
		return mapError(err)
	}
	if n != len(data) {
		return fmt.Errorf("short usb write: %d of %d bytes", n, len(data))
	}
	return nil
}

// mapError reports an unplugged oven as transport.ErrLinkClosed.
func mapError(err error) error {
	if errors.Is(err, gousb.ErrorNoDevice) || errors.Is(err, gousb.TransferNoDevice) {
		return fmt.Errorf("%w: %w", transport.ErrLinkClosed, err)
	}
	return fmt.Errorf("usb transfer failed: %w", err)
}

func (l *Link) Close() error {
	l.closeOnce.Do(func() {
		l.done()
		if err := l.dev.Close(); err != nil {
			l.closeErr = fmt.Errorf("failed to close usb device %s: %w", l.id, err)
		}
	})
	return l.closeErr
}
