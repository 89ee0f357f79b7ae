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

package linkwatch

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/gousb"
	"github.com/pcboven/pcboven-core/pkg/transport"
	"github.com/pcboven/pcboven-core/pkg/transport/seriallink"
	"github.com/pcboven/pcboven-core/pkg/transport/usblink"
	"go.bug.st/serial/enumerator"
)

// USBSource finds ovens on the libusb bus.
type USBSource struct {
	Ctx *gousb.Context
}

func (*USBSource) Name() string {
	return "usb"
}

func (s *USBSource) Find(skip func(id string) bool) ([]transport.Link, error) {
	found, err := usblink.OpenAll(s.Ctx, skip)
	if err != nil {
		return nil, fmt.Errorf("usb scan: %w", err)
	}
	links := make([]transport.Link, 0, len(found))
	for _, l := range found {
		links = append(links, l)
	}
	return links, nil
}

// PortLister lists serial ports with their USB identity.
type PortLister func() ([]*enumerator.PortDetails, error)

// SerialSource finds an oven behind a USB-UART bridge. A fixed Path is used
// as is; otherwise ports are matched on the oven's USB ids.
type SerialSource struct {
	Lister  PortLister
	Factory seriallink.PortFactory
	Path    string
}

func (*SerialSource) Name() string {
	return "serial"
}

func (s *SerialSource) candidates() ([]string, error) {
	if s.Path != "" {
		return []string{s.Path}, nil
	}

	lister := s.Lister
	if lister == nil {
		lister = enumerator.GetDetailedPortsList
	}
	ports, err := lister()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	vid := fmt.Sprintf("%04x", uint16(usblink.VendorID))
	pid := fmt.Sprintf("%04x", uint16(usblink.ProductID))

	var paths []string
	for _, p := range ports {
		if !p.IsUSB {
			continue
		}
		if strings.EqualFold(p.VID, vid) && strings.EqualFold(p.PID, pid) {
			paths = append(paths, p.Name)
		}
	}
	return paths, nil
}

func (s *SerialSource) Find(skip func(id string) bool) ([]transport.Link, error) {
	paths, err := s.candidates()
	if err != nil {
		return nil, err
	}

	var links []transport.Link
	var errs []error
	for _, path := range paths {
		if skip("serial:" + path) {
			continue
		}
		l, err := seriallink.Open(path, s.Factory)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		links = append(links, l)
	}
	if len(links) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return links, nil
}
