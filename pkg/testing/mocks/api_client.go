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

package mocks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pcboven/pcboven-core/pkg/oven/models"
	"github.com/stretchr/testify/mock"
)

// MockAPIClient is a mock implementation of client.APIClient for testing.
type MockAPIClient struct {
	mock.Mock
}

func NewMockAPIClient() *MockAPIClient {
	return &MockAPIClient{}
}

func (m *MockAPIClient) Call(ctx context.Context, method, params string) (string, error) {
	args := m.Called(ctx, method, params)
	return args.String(0), args.Error(1)
}

func (m *MockAPIClient) WaitNotification(ctx context.Context, timeout time.Duration, method string) error {
	args := m.Called(ctx, timeout, method)
	return args.Error(0)
}

// SetupState configures the mock to answer oven.state.
func (m *MockAPIClient) SetupState(state models.OvenState) {
	data, _ := json.Marshal(state)
	m.On("Call", mock.Anything, models.MethodState, "").Return(string(data), nil)
}

// SetupConnected configures the mock to answer oven.connected.
func (m *MockAPIClient) SetupConnected(kind models.ConnectionKind) {
	data, _ := json.Marshal(models.ConnectedResponse{
		Kind:      kind,
		Connected: kind != models.Disconnected,
	})
	m.On("Call", mock.Anything, models.MethodConnected, "").Return(string(data), nil)
}

// SetupAccept makes method succeed with a null result for any params.
func (m *MockAPIClient) SetupAccept(method string) {
	m.On("Call", mock.Anything, method, mock.Anything).Return("null", nil)
}

// SetupError makes method fail with err for any params.
func (m *MockAPIClient) SetupError(method string, err error) {
	m.On("Call", mock.Anything, method, mock.Anything).Return("", err)
}
