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

package seriallink

import (
	"context"
	"testing"
	"time"

	"github.com/pcboven/pcboven-core/pkg/oven/frame"
	"github.com/pcboven/pcboven-core/pkg/testing/mocks"
	"github.com/pcboven/pcboven-core/pkg/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

func openMock(t *testing.T, port *mocks.MockSerialPort) *Link {
	t.Helper()

	var gotMode *serial.Mode
	l, err := Open("/dev/ttyACM0", func(path string, mode *serial.Mode) (Port, error) {
		assert.Equal(t, "/dev/ttyACM0", path)
		gotMode = mode
		return port, nil
	})
	require.NoError(t, err)
	require.NotNil(t, gotMode)
	assert.Equal(t, BaudRate, gotMode.BaudRate)
	assert.Equal(t, ReadTimeout, port.ReadTimeout)

	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestOpen_FactoryError(t *testing.T) {
	t.Parallel()

	_, err := Open("/dev/ttyACM0", func(string, *serial.Mode) (Port, error) {
		return nil, assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)
}

func TestOpen_SetReadTimeoutError(t *testing.T) {
	t.Parallel()

	port := mocks.NewMockSerialPort()
	port.TimeoutErr = assert.AnError

	_, err := Open("/dev/ttyACM0", func(string, *serial.Mode) (Port, error) {
		return port, nil
	})
	require.ErrorIs(t, err, assert.AnError)
	assert.True(t, port.IsClosed())
}

func TestLink_ID(t *testing.T) {
	t.Parallel()

	l := openMock(t, mocks.NewMockSerialPort())
	assert.Equal(t, "serial:/dev/ttyACM0", l.ID())
}

func TestReadFrame_ReassemblesChunks(t *testing.T) {
	t.Parallel()

	scenario := []byte{0x00, 0x40, 0x00, 0x10, 0, 0, 0, 1, 0}
	second := frame.EncodeTelemetry(frame.RawTelemetry{Probe: 100 << 2})

	port := mocks.NewMockSerialPort()
	port.ReadData = append(append([]byte{}, scenario...), second[:]...)
	port.ChunkSize = 4
	l := openMock(t, port)

	buf := make([]byte, 64)
	n, err := l.ReadFrame(context.Background(), buf)
	require.NoError(t, err)
	assert.Equal(t, scenario, buf[:n])

	n, err = l.ReadFrame(context.Background(), buf)
	require.NoError(t, err)
	tel, err := frame.DecodeTelemetry(buf[:n])
	require.NoError(t, err)
	assert.Equal(t, int16(100), tel.ProbeTemp)
}

// scriptedReads returns each chunk in turn from Read; an empty chunk is a
// read timeout with nothing received.
func scriptedReads(chunks ...[]byte) func(p []byte) (int, error) {
	i := 0
	return func(p []byte) (int, error) {
		if i >= len(chunks) {
			time.Sleep(time.Millisecond)
			return 0, nil
		}
		c := chunks[i]
		n := copy(p, c)
		if n < len(c) {
			chunks[i] = c[n:]
		} else {
			i++
		}
		return n, nil
	}
}

func TestReadFrame_ResyncsAfterStrayByte(t *testing.T) {
	t.Parallel()

	good := frame.EncodeTelemetry(frame.RawTelemetry{Probe: 100 << 2})

	port := mocks.NewMockSerialPort()
	port.ReadFunc = scriptedReads(
		[]byte{0xAA},
		nil,
		good[:],
		nil,
		good[:],
		good[:],
	)
	l := openMock(t, port)

	buf := make([]byte, 64)
	for i := range 3 {
		n, err := l.ReadFrame(context.Background(), buf)
		require.NoError(t, err)
		tel, err := frame.DecodeTelemetry(buf[:n])
		require.NoError(t, err)
		assert.Equal(t, int16(100), tel.ProbeTemp, "frame %d", i)
	}
}

func TestReadFrame_KeepsPartialFrameWithoutGap(t *testing.T) {
	t.Parallel()

	good := frame.EncodeTelemetry(frame.RawTelemetry{Probe: 42 << 2})

	port := mocks.NewMockSerialPort()
	port.ReadFunc = scriptedReads(good[:3], good[3:7], good[7:])
	l := openMock(t, port)

	buf := make([]byte, 64)
	n, err := l.ReadFrame(context.Background(), buf)
	require.NoError(t, err)
	assert.Equal(t, good[:], buf[:n])
}

func TestReadFrame_HonoursContext(t *testing.T) {
	t.Parallel()

	l := openMock(t, mocks.NewMockSerialPort())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := l.ReadFrame(ctx, make([]byte, 16))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestReadFrame_WrapsIOErrors(t *testing.T) {
	t.Parallel()

	port := mocks.NewMockSerialPort()
	port.ReadError = assert.AnError
	l := openMock(t, port)

	_, err := l.ReadFrame(context.Background(), make([]byte, 16))
	require.ErrorIs(t, err, assert.AnError)
	assert.NotErrorIs(t, err, transport.ErrLinkClosed)
}

func TestWriteFrame(t *testing.T) {
	t.Parallel()

	port := mocks.NewMockSerialPort()
	l := openMock(t, port)

	cmd := frame.EncodeCommand(200, true)
	require.NoError(t, l.WriteFrame(context.Background(), cmd[:]))
	assert.Equal(t, cmd[:], port.Written())

	port.WriteError = assert.AnError
	require.ErrorIs(t, l.WriteFrame(context.Background(), cmd[:]), assert.AnError)
}

func TestClose_Idempotent(t *testing.T) {
	t.Parallel()

	port := mocks.NewMockSerialPort()
	l := openMock(t, port)

	require.NoError(t, l.Close())
	require.NoError(t, l.Close())
	assert.True(t, port.IsClosed())

	_, err := l.ReadFrame(context.Background(), make([]byte, 16))
	require.ErrorIs(t, err, transport.ErrLinkClosed)
	require.ErrorIs(t, l.WriteFrame(context.Background(), []byte{0, 0, 0}), transport.ErrLinkClosed)
}
