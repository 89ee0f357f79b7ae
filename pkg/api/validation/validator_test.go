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

package validation

import (
	"encoding/json"
	"testing"

	"github.com/pcboven/pcboven-core/pkg/oven/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateDuration(t *testing.T) {
	t.Parallel()

	type testStruct struct {
		Interval string `validate:"duration"`
	}

	tests := []struct {
		name      string
		value     string
		wantError bool
	}{
		{name: "empty", value: "", wantError: false},
		{name: "milliseconds", value: "250ms", wantError: false},
		{name: "compound", value: "1m30s", wantError: false},
		{name: "zero", value: "0s", wantError: true},
		{name: "negative", value: "-1s", wantError: true},
		{name: "no unit", value: "250", wantError: true},
	}

	v := NewValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := v.Validate(&testStruct{Interval: tt.value})
			if tt.wantError {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "positive duration")
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateBroker(t *testing.T) {
	t.Parallel()

	type testStruct struct {
		Broker string `validate:"broker"`
	}

	tests := []struct {
		name      string
		value     string
		wantError bool
	}{
		{name: "tcp", value: "tcp://localhost:1883", wantError: false},
		{name: "websocket", value: "wss://broker.example.com/mqtt", wantError: false},
		{name: "http scheme", value: "http://localhost:1883", wantError: true},
		{name: "bare host", value: "localhost:1883", wantError: true},
		{name: "no host", value: "tcp://", wantError: true},
	}

	v := NewValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := v.Validate(&testStruct{Broker: tt.value})
			if tt.wantError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateAndUnmarshal_TargetParams(t *testing.T) {
	t.Parallel()

	var params models.TargetParams
	err := ValidateAndUnmarshal(json.RawMessage(`{"temperature": 200}`), &params)
	require.NoError(t, err)
	require.NotNil(t, params.Temperature)
	assert.Equal(t, int16(200), *params.Temperature)
}

func TestValidateAndUnmarshal_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		wantErr error
		name    string
		params  json.RawMessage
	}{
		{name: "missing", params: nil, wantErr: ErrMissingParams},
		{name: "wrong type", params: json.RawMessage(`{"temperature": "hot"}`), wantErr: ErrInvalidParams},
		{name: "overflow", params: json.RawMessage(`{"temperature": 70000}`), wantErr: ErrInvalidParams},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var params models.TargetParams
			err := ValidateAndUnmarshal(tt.params, &params)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestValidateAndUnmarshal_RequiredTemperature(t *testing.T) {
	t.Parallel()

	var params models.TargetParams
	err := ValidateAndUnmarshal(json.RawMessage(`{}`), &params)
	var verr *Error
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Fields, 1)
	assert.Equal(t, "required", verr.Fields[0].Tag)
	assert.Equal(t, "temperature is required", verr.Error())
}

func TestValidateAndUnmarshal_HistoryLimit(t *testing.T) {
	t.Parallel()

	var params models.HistoryParams
	err := ValidateAndUnmarshal(json.RawMessage(`{"limit": 0}`), &params)
	require.NoError(t, err)

	err = ValidateAndUnmarshal(json.RawMessage(`{"limit": 20000}`), &params)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at most 10000")
}
