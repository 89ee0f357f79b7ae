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

package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pcboven/pcboven-core/pkg/oven/frame"
	"github.com/pcboven/pcboven-core/pkg/oven/models"
	"github.com/pcboven/pcboven-core/pkg/testing/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type chanSink struct {
	ch chan models.Telemetry
}

func newChanSink() *chanSink {
	return &chanSink{ch: make(chan models.Telemetry, 16)}
}

func (s *chanSink) UpdateState(t models.Telemetry) {
	s.ch <- t
}

func (s *chanSink) next(t *testing.T) models.Telemetry {
	t.Helper()
	select {
	case tel := <-s.ch:
		return tel
	case <-time.After(2 * time.Second):
		require.Fail(t, "expected telemetry update")
		return models.Telemetry{}
	}
}

func (s *chanSink) none(t *testing.T) {
	t.Helper()
	select {
	case tel := <-s.ch:
		require.Fail(t, "unexpected telemetry update", "%+v", tel)
	case <-time.After(50 * time.Millisecond):
	}
}

func telemetryFrame(rawProbe int16, topOn bool) []byte {
	b := frame.EncodeTelemetry(frame.RawTelemetry{
		Probe: rawProbe,
		TopOn: frame.BoolByte(topOn),
	})
	return b[:]
}

func TestTransport_DecodesTelemetry(t *testing.T) {
	t.Parallel()

	link := mocks.NewFakeLink("fake:1")
	sink := newChanSink()
	tr := Start(link, sink, nil)
	defer func() { _ = tr.Close() }()

	link.Feed(telemetryFrame(400, true))

	got := sink.next(t)
	assert.Equal(t, int16(100), got.ProbeTemp)
	assert.True(t, got.FilamentTopOn)
	assert.Equal(t, "fake:1", tr.LinkID())
}

func TestTransport_ShortFrameIsDropped(t *testing.T) {
	t.Parallel()

	link := mocks.NewFakeLink("fake:1")
	sink := newChanSink()
	tr := Start(link, sink, nil)
	defer func() { _ = tr.Close() }()

	link.Feed([]byte{0x01, 0x02, 0x03})
	sink.none(t)

	link.Feed(telemetryFrame(40, false))
	got := sink.next(t)
	assert.Equal(t, int16(10), got.ProbeTemp)

	stats := tr.Stats()
	assert.Equal(t, uint64(1), stats.ShortFrames)
	assert.Equal(t, uint64(1), stats.Frames)
}

func TestTransport_ReadErrorIsRetried(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	link := mocks.NewFakeLink("fake:1")
	sink := newChanSink()
	tr := Start(link, sink, &Options{Clock: clock, ReadRetryDelay: time.Second})
	defer func() { _ = tr.Close() }()

	link.FeedError(errors.New("babble"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))

	link.Feed(telemetryFrame(4, false))
	sink.none(t)

	clock.Advance(time.Second)
	got := sink.next(t)
	assert.Equal(t, int16(1), got.ProbeTemp)
	assert.Equal(t, uint64(1), tr.Stats().ReadErrors)
}

func TestTransport_LinkClosedStopsLoop(t *testing.T) {
	t.Parallel()

	lost := make(chan string, 1)
	link := mocks.NewFakeLink("fake:gone")
	tr := Start(link, newChanSink(), &Options{
		OnLinkClosed: func(id string) { lost <- id },
	})

	link.FeedError(ErrLinkClosed)

	select {
	case id := <-lost:
		assert.Equal(t, "fake:gone", id)
	case <-time.After(2 * time.Second):
		t.Fatal("OnLinkClosed was not called")
	}

	require.NoError(t, tr.Close())
	assert.True(t, link.Closed())
}

func TestTransport_SendCopiesBuffer(t *testing.T) {
	t.Parallel()

	link := mocks.NewFakeLink("fake:1")
	tr := Start(link, newChanSink(), nil)
	defer func() { _ = tr.Close() }()

	cmd := frame.EncodeCommand(200, true)
	buf := cmd[:]
	require.NoError(t, tr.Send(buf))
	buf[0] = 0xff

	require.Eventually(t, func() bool {
		return len(link.Written()) == 1
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, []byte{0xc8, 0x00, 0x01}, link.Written()[0])
}

func TestTransport_SendAfterClose(t *testing.T) {
	t.Parallel()

	link := mocks.NewFakeLink("fake:1")
	tr := Start(link, newChanSink(), nil)
	require.NoError(t, tr.Close())

	err := tr.Send([]byte{1, 2, 3})
	require.ErrorIs(t, err, ErrSubmissionFailed)
	assert.Empty(t, link.Written())
}

func TestTransport_SendFailsWhenNoSlotFree(t *testing.T) {
	t.Parallel()

	link := mocks.NewFakeLink("fake:1")
	link.GateWrites()
	tr := Start(link, newChanSink(), &Options{MaxInFlight: 1})
	defer func() { _ = tr.Close() }()

	require.NoError(t, tr.Send([]byte{1, 0, 0}))
	require.ErrorIs(t, tr.Send([]byte{2, 0, 0}), ErrSubmissionFailed)

	link.ReleaseWrites()
	require.Eventually(t, func() bool {
		return len(link.Written()) == 1
	}, 2*time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		return tr.Send([]byte{3, 0, 0}) == nil
	}, 2*time.Second, 5*time.Millisecond)
}

func TestTransport_WriteErrorReleasesSlot(t *testing.T) {
	t.Parallel()

	link := mocks.NewFakeLink("fake:1")
	link.WriteErr = errors.New("stall")
	tr := Start(link, newChanSink(), &Options{MaxInFlight: 1})
	defer func() { _ = tr.Close() }()

	require.NoError(t, tr.Send([]byte{1, 0, 0}))
	require.Eventually(t, func() bool {
		return tr.Stats().WriteErrors == 1
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, tr.Send([]byte{1, 0, 0}))
}

func TestTransport_CloseCancelsInFlightWrites(t *testing.T) {
	t.Parallel()

	link := mocks.NewFakeLink("fake:1")
	link.GateWrites()
	tr := Start(link, newChanSink(), nil)

	for range 3 {
		require.NoError(t, tr.Send([]byte{1, 0, 0}))
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, tr.Close())
		assert.NoError(t, tr.Close())
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}

	assert.Empty(t, link.Written())
	assert.Equal(t, uint64(3), tr.Stats().WriteErrors)
	assert.Equal(t, 1, link.CloseCount())
}
