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

package cli

import (
	"bytes"
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pcboven/pcboven-core/pkg/api"
	"github.com/pcboven/pcboven-core/pkg/oven/models"
	"github.com/pcboven/pcboven-core/pkg/testing/helpers"
	"github.com/pcboven/pcboven-core/pkg/testing/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }
func intPtr(i int) *int { return &i }

func TestParseSwitch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input   string
		want    bool
		wantErr bool
	}{
		{input: "on", want: true},
		{input: "true", want: true},
		{input: "off", want: false},
		{input: "no", want: false},
		{input: "warm", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			got, err := parseSwitch(tt.input)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidSwitch)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRun_NothingToDo(t *testing.T) {
	t.Parallel()

	f := &Flags{Target: intPtr(targetUnset), API: strPtr("")}
	handled, err := f.run(context.Background(), mocks.NewMockAPIClient(), &bytes.Buffer{})
	require.NoError(t, err)
	assert.False(t, handled)
}

func TestRun_Target(t *testing.T) {
	t.Parallel()

	m := mocks.NewMockAPIClient()
	m.On("Call", mock.Anything, models.MethodTarget, `{"temperature":200}`).Return("null", nil)

	f := &Flags{Target: intPtr(200)}
	handled, err := f.run(context.Background(), m, &bytes.Buffer{})
	require.NoError(t, err)
	assert.True(t, handled)
	m.AssertExpectations(t)
}

func TestRun_TargetOutOfRange(t *testing.T) {
	t.Parallel()

	m := mocks.NewMockAPIClient()
	f := &Flags{Target: intPtr(40000)}
	handled, err := f.run(context.Background(), m, &bytes.Buffer{})
	assert.True(t, handled)
	require.Error(t, err)
	m.AssertNotCalled(t, "Call", mock.Anything, mock.Anything, mock.Anything)
}

func TestRun_TargetNotConnected(t *testing.T) {
	t.Parallel()

	m := mocks.NewMockAPIClient()
	m.SetupError(models.MethodTarget, errors.New("oven not connected"))

	f := &Flags{Target: intPtr(200)}
	_, err := f.run(context.Background(), m, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oven not connected")
}

func TestRun_Filaments(t *testing.T) {
	t.Parallel()

	m := mocks.NewMockAPIClient()
	m.On("Call", mock.Anything, models.MethodFilamentsEnable, "").Return("null", nil).Once()
	m.On("Call", mock.Anything, models.MethodFilamentsDisable, "").Return("null", nil).Once()

	_, err := (&Flags{Filaments: strPtr("on")}).run(context.Background(), m, &bytes.Buffer{})
	require.NoError(t, err)
	_, err = (&Flags{Filaments: strPtr("off")}).run(context.Background(), m, &bytes.Buffer{})
	require.NoError(t, err)
	m.AssertExpectations(t)

	_, err = (&Flags{Filaments: strPtr("hot")}).run(context.Background(), m, &bytes.Buffer{})
	require.ErrorIs(t, err, ErrInvalidSwitch)
}

func TestRun_Simulate(t *testing.T) {
	t.Parallel()

	m := mocks.NewMockAPIClient()
	m.On("Call", mock.Anything, models.MethodSimulation, `{"enabled":true}`).Return("null", nil)

	_, err := (&Flags{Simulate: strPtr("on")}).run(context.Background(), m, &bytes.Buffer{})
	require.NoError(t, err)
	m.AssertExpectations(t)
}

func TestRun_API(t *testing.T) {
	t.Parallel()

	m := mocks.NewMockAPIClient()
	m.On("Call", mock.Anything, models.MethodTarget, `{"temperature":10}`).Return("null", nil)
	m.On("Call", mock.Anything, models.MethodVersion, "").Return(`{"version":"1.0"}`, nil)

	var out bytes.Buffer
	_, err := (&Flags{API: strPtr(`oven.target:{"temperature":10}`)}).run(context.Background(), m, &out)
	require.NoError(t, err)
	_, err = (&Flags{API: strPtr("version")}).run(context.Background(), m, &out)
	require.NoError(t, err)

	assert.Equal(t, "null\n{\"version\":\"1.0\"}\n", out.String())
}

const historyJSON = `{"samples":[
	{"time":"2026-01-02T03:04:05Z","kind":"simulated","id":1,"probeTemp":100,
	 "internalTemp":30,"targetTemp":200,"enableFilaments":true,
	 "filamentTopOn":true,"filamentBottomOn":false,"fault":false}
]}`

func TestExportHistory_Stdout(t *testing.T) {
	t.Parallel()

	m := mocks.NewMockAPIClient()
	m.On("Call", mock.Anything, models.MethodHistory, `{"limit":5}`).Return(historyJSON, nil)

	var out bytes.Buffer
	f := &Flags{ExportHistory: strPtr("-"), HistoryLimit: intPtr(5)}
	_, err := f.run(context.Background(), m, &out)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "probe_temp")
	assert.Contains(t, lines[1], "simulated")
}

func TestExportHistory_File(t *testing.T) {
	t.Parallel()

	m := mocks.NewMockAPIClient()
	m.On("Call", mock.Anything, models.MethodHistory, "").Return(historyJSON, nil)

	path := filepath.Join(t.TempDir(), "run.csv")
	var out bytes.Buffer
	_, err := (&Flags{ExportHistory: strPtr(path)}).run(context.Background(), m, &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Exported 1 samples")

	data, err := os.ReadFile(path) //nolint:gosec // test file
	require.NoError(t, err)
	assert.Contains(t, string(data), "simulated")
}

func TestFormatState(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := models.OvenState{
		Telemetry:       models.Telemetry{ProbeTemp: 100, InternalTemp: 30, FilamentTopOn: true},
		TargetTemp:      200,
		EnableFilaments: true,
	}
	assert.Equal(t,
		"03:04:05 simulated    probe=100 internal=30 target=200 filaments=on top=on bottom=off",
		FormatState(now, models.Simulated, s),
	)

	s.FaultOpenCircuit = true
	assert.True(t, strings.HasSuffix(FormatState(now, models.Connected, s), " FAULT"))
}

type syncBuffer struct {
	buf bytes.Buffer
	mu  sync.Mutex
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p) //nolint:wrapcheck // test buffer
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestWatch_PrintsOnChange(t *testing.T) {
	t.Parallel()

	oven := helpers.NewTestOven(t)
	srv := api.NewServer(helpers.NewTestConfig(t), oven.Control, nil)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	require.NoError(t, srv.Serve(context.Background(), ln))
	t.Cleanup(srv.Stop)

	ctx, cancel := context.WithCancel(context.Background())
	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, "ws://"+ln.Addr().String()+"/api", out)
	}()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "disconnected")
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, oven.Control.ToggleDummy(true))
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "simulated")
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestWatch_DialError(t *testing.T) {
	t.Parallel()

	err := Watch(context.Background(), "ws://127.0.0.1:1/api", &bytes.Buffer{})
	require.Error(t, err)
}
