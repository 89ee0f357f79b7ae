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

// Package seriallink carries oven frames over a serial port, for bench
// setups where the oven controller sits behind a USB-UART bridge.
package seriallink

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pcboven/pcboven-core/pkg/oven/frame"
	"github.com/pcboven/pcboven-core/pkg/transport"
	"github.com/rs/zerolog/log"
	"go.bug.st/serial"
)

const (
	BaudRate    = 115200
	ReadTimeout = 100 * time.Millisecond
)

// Port is the subset of serial.Port used by a Link.
type Port interface {
	Read(p []byte) (n int, err error)
	Write(p []byte) (n int, err error)
	Close() error
	SetReadTimeout(t time.Duration) error
}

// PortFactory opens a serial port.
type PortFactory func(path string, mode *serial.Mode) (Port, error)

func DefaultPortFactory(path string, mode *serial.Mode) (Port, error) {
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port: %w", err)
	}
	return port, nil
}

// Link is a serial oven link. Telemetry arrives as a plain stream of
// 9-byte frames, so reads are reassembled until a whole frame is buffered.
// The oven goes quiet between frames: a read timeout with a partial frame
// buffered discards it, which puts the next read back on a frame boundary.
// ReadFrame must not be called concurrently with itself.
type Link struct {
	port    Port
	path    string
	pending []byte
	closeMu sync.Mutex
	closed  bool
}

// Open opens path at 115200 8N1. A nil factory uses DefaultPortFactory.
func Open(path string, factory PortFactory) (*Link, error) {
	if factory == nil {
		factory = DefaultPortFactory
	}

	port, err := factory(path, &serial.Mode{
		BaudRate: BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", path, err)
	}

	err = port.SetReadTimeout(ReadTimeout)
	if err != nil {
		if closeErr := port.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("failed to close serial port")
		}
		return nil, fmt.Errorf("failed to set read timeout on serial port: %w", err)
	}

	log.Info().Str("path", path).Msg("opened serial oven link")
	return &Link{port: port, path: path}, nil
}

func (l *Link) ID() string {
	return "serial:" + l.path
}

func (l *Link) isClosed() bool {
	l.closeMu.Lock()
	defer l.closeMu.Unlock()
	return l.closed
}

func (l *Link) ReadFrame(ctx context.Context, buf []byte) (int, error) {
	chunk := make([]byte, frame.TelemetryLen)
	for len(l.pending) < frame.TelemetryLen {
		if err := ctx.Err(); err != nil {
			return 0, fmt.Errorf("serial read cancelled: %w", err)
		}
		if l.isClosed() {
			return 0, transport.ErrLinkClosed
		}

		n, err := l.port.Read(chunk[:frame.TelemetryLen-len(l.pending)])
		if err != nil {
			return 0, mapError(err)
		}
		if n == 0 {
			if len(l.pending) > 0 {
				log.Debug().
					Str("link", l.ID()).
					Int("bytes", len(l.pending)).
					Msg("discarding partial frame after idle gap")
				l.pending = l.pending[:0]
			}
			continue
		}
		l.pending = append(l.pending, chunk[:n]...)
	}

	n := copy(buf, l.pending[:frame.TelemetryLen])
	l.pending = l.pending[:0]
	return n, nil
}

func (l *Link) WriteFrame(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("serial write cancelled: %w", err)
	}
	if l.isClosed() {
		return transport.ErrLinkClosed
	}

	n, err := l.port.Write(data)
	if err != nil {
		return mapError(err)
	}
	if n != len(data) {
		return fmt.Errorf("short serial write: %d of %d bytes", n, len(data))
	}
	return nil
}

// mapError turns a closed or vanished port into transport.ErrLinkClosed.
func mapError(err error) error {
	var portErr *serial.PortError
	if errors.As(err, &portErr) && portErr.Code() == serial.PortClosed {
		return fmt.Errorf("%w: %w", transport.ErrLinkClosed, err)
	}
	return fmt.Errorf("serial i/o failed: %w", err)
}

func (l *Link) Close() error {
	l.closeMu.Lock()
	if l.closed {
		l.closeMu.Unlock()
		return nil
	}
	l.closed = true
	l.closeMu.Unlock()

	if err := l.port.Close(); err != nil {
		return fmt.Errorf("failed to close serial port: %w", err)
	}
	return nil
}
