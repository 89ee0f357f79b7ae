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
	"encoding/json"
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pcboven/pcboven-core/pkg/oven/models"
)

// DialAPI opens a WebSocket to the /api endpoint of the server at baseURL.
func DialAPI(t *testing.T, baseURL string) *websocket.Conn {
	t.Helper()
	u, err := url.Parse(baseURL)
	if err != nil {
		t.Fatalf("Failed to parse server URL: %v", err)
	}
	u.Scheme = "ws"
	u.Path = "/api"

	conn, resp, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		t.Fatalf("Failed to dial WebSocket: %v", err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// ReadJSONRPC reads messages until one matches id, skipping notifications.
func ReadJSONRPC(conn *websocket.Conn, id uuid.UUID) (*models.ResponseObject, json.RawMessage, error) {
	if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		return nil, nil, fmt.Errorf("failed to set read deadline: %w", err)
	}
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read response: %w", err)
		}
		var raw struct {
			Result json.RawMessage `json:"result"`
			ID     *uuid.UUID      `json:"id"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, nil, fmt.Errorf("failed to unmarshal response: %w", err)
		}
		if raw.ID == nil || *raw.ID != id {
			continue
		}
		var resp models.ResponseObject
		if err := json.Unmarshal(data, &resp); err != nil {
			return nil, nil, fmt.Errorf("failed to unmarshal response: %w", err)
		}
		return &resp, raw.Result, nil
	}
}

// SendJSONRPC sends a request and waits for its response. The raw result is
// returned for decoding into a concrete type.
func SendJSONRPC(conn *websocket.Conn, method string, params any) (*models.ResponseObject, json.RawMessage, error) {
	id := uuid.New()
	req := models.RequestObject{
		JSONRPC: "2.0",
		ID:      &id,
		Method:  method,
	}
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal params: %w", err)
		}
		req.Params = data
	}

	data, err := json.Marshal(req)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return nil, nil, fmt.Errorf("failed to send request: %w", err)
	}
	return ReadJSONRPC(conn, id)
}
