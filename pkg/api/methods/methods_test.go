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

package methods

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pcboven/pcboven-core/pkg/api/models/requests"
	"github.com/pcboven/pcboven-core/pkg/api/validation"
	"github.com/pcboven/pcboven-core/pkg/config"
	"github.com/pcboven/pcboven-core/pkg/database"
	"github.com/pcboven/pcboven-core/pkg/device"
	"github.com/pcboven/pcboven-core/pkg/oven/models"
	"github.com/pcboven/pcboven-core/pkg/testing/helpers"
	"github.com/pcboven/pcboven-core/pkg/testing/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEnv(t *testing.T, params string) (requests.RequestEnv, *helpers.TestOven) {
	t.Helper()
	oven := helpers.NewTestOven(t)
	env := requests.RequestEnv{
		Context: context.Background(),
		Control: oven.Control,
	}
	if params != "" {
		env.Params = json.RawMessage(params)
	}
	return env, oven
}

func TestHandleConnected(t *testing.T) {
	t.Parallel()
	env, oven := newEnv(t, "")

	resp, err := HandleConnected(env)
	require.NoError(t, err)
	assert.Equal(t, models.ConnectedResponse{Kind: models.Disconnected}, resp)

	require.NoError(t, oven.Control.ToggleDummy(true))
	resp, err = HandleConnected(env)
	require.NoError(t, err)
	assert.Equal(t, models.ConnectedResponse{Kind: models.Simulated, Connected: true}, resp)
}

func TestHandleState(t *testing.T) {
	t.Parallel()
	env, _ := newEnv(t, "")

	resp, err := HandleState(env)
	require.NoError(t, err)
	assert.Equal(t, models.OvenState{}, resp)
}

func TestHandleTarget_NotConnected(t *testing.T) {
	t.Parallel()
	env, oven := newEnv(t, `{"temperature": 200}`)

	_, err := HandleTarget(env)
	require.ErrorIs(t, err, device.ErrNotConnected)
	assert.Equal(t, int16(0), oven.Control.GetState().TargetTemp)
}

func TestHandleTarget_Simulated(t *testing.T) {
	t.Parallel()
	env, oven := newEnv(t, `{"temperature": 217}`)
	require.NoError(t, oven.Control.ToggleDummy(true))

	resp, err := HandleTarget(env)
	require.NoError(t, err)
	assert.Nil(t, resp)
	assert.Equal(t, int16(217), oven.Control.GetState().TargetTemp)
}

func TestHandleTarget_SendsCommand(t *testing.T) {
	t.Parallel()
	env, oven := newEnv(t, `{"temperature": 150}`)
	link := mocks.NewFakeLink("usb:1-1")
	require.NoError(t, oven.Device.OnConnect(link))

	_, err := HandleTarget(env)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(link.Written()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []byte{150, 0, 0}, link.Written()[0])
}

func TestHandleTarget_InvalidParams(t *testing.T) {
	t.Parallel()

	tests := []struct {
		wantErr error
		name    string
		params  string
	}{
		{name: "missing", params: "", wantErr: validation.ErrMissingParams},
		{name: "malformed", params: `{"temperature":`, wantErr: validation.ErrInvalidParams},
		{name: "wrong type", params: `{"temperature":"hot"}`, wantErr: validation.ErrInvalidParams},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			env, _ := newEnv(t, tt.params)
			_, err := HandleTarget(env)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestHandleTarget_RequiredField(t *testing.T) {
	t.Parallel()
	env, _ := newEnv(t, `{}`)

	_, err := HandleTarget(env)
	var verr *validation.Error
	require.ErrorAs(t, err, &verr)
}

func TestHandleFilaments(t *testing.T) {
	t.Parallel()
	env, oven := newEnv(t, "")

	_, err := HandleFilamentsEnable(env)
	require.ErrorIs(t, err, device.ErrNotConnected)

	require.NoError(t, oven.Control.ToggleDummy(true))
	_, err = HandleFilamentsEnable(env)
	require.NoError(t, err)
	assert.True(t, oven.Control.GetState().EnableFilaments)

	_, err = HandleFilamentsDisable(env)
	require.NoError(t, err)
	assert.False(t, oven.Control.GetState().EnableFilaments)
}

func TestHandleSimulation(t *testing.T) {
	t.Parallel()
	env, oven := newEnv(t, `{"enabled": true}`)

	_, err := HandleSimulation(env)
	require.NoError(t, err)
	assert.Equal(t, models.Simulated, oven.Control.Connection().Kind)

	env.Params = json.RawMessage(`{"enabled": false}`)
	_, err = HandleSimulation(env)
	require.NoError(t, err)
	assert.Equal(t, models.Disconnected, oven.Control.Connection().Kind)
}

func TestHandleSimulation_RealDeviceBound(t *testing.T) {
	t.Parallel()
	env, oven := newEnv(t, `{"enabled": true}`)
	require.NoError(t, oven.Device.OnConnect(mocks.NewFakeLink("usb:1-1")))

	_, err := HandleSimulation(env)
	require.ErrorIs(t, err, device.ErrRealDeviceConnected)
}

func TestHandleHistory(t *testing.T) {
	t.Parallel()
	env, _ := newEnv(t, `{"limit": 2}`)

	_, err := HandleHistory(env)
	require.ErrorIs(t, err, ErrHistoryDisabled)

	db := helpers.NewInMemoryHistoryDB(t, nil)
	for _, temp := range []int16{25, 60, 120} {
		require.NoError(t, db.AddSample(&database.Sample{Time: time.Now(), Kind: "simulated", ProbeTemp: temp}))
	}
	env.History = db

	resp, err := HandleHistory(env)
	require.NoError(t, err)
	samples := resp.(HistoryResponse).Samples
	require.Len(t, samples, 2)
	assert.Equal(t, int16(60), samples[0].ProbeTemp)
	assert.Equal(t, int16(120), samples[1].ProbeTemp)

	env.Params = nil
	resp, err = HandleHistory(env)
	require.NoError(t, err)
	assert.Len(t, resp.(HistoryResponse).Samples, 3)

	env.Params = json.RawMessage(`{"limit": 0}`)
	_, err = HandleHistory(env)
	require.NoError(t, err)

	env.Params = json.RawMessage(`{"limit": 20000}`)
	_, err = HandleHistory(env)
	var verr *validation.Error
	require.ErrorAs(t, err, &verr)
}

func TestHandleVersion(t *testing.T) {
	t.Parallel()
	resp, err := HandleVersion(requests.RequestEnv{})
	require.NoError(t, err)
	assert.Equal(t, models.VersionResponse{Version: config.AppVersion}, resp)
}
