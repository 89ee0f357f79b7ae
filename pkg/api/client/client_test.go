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

package client

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/olahol/melody"
	"github.com/pcboven/pcboven-core/pkg/oven/models"
	"github.com/pcboven/pcboven-core/pkg/testing/helpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newRPCServer answers "version" with a result, "oven.target" with a
// not-connected error, "notify" by broadcasting oven.changed and ignores
// everything else.
func newRPCServer(t *testing.T) string {
	t.Helper()

	m := melody.New()
	m.HandleMessage(func(s *melody.Session, msg []byte) {
		var req models.RequestObject
		if err := json.Unmarshal(msg, &req); err != nil || req.ID == nil {
			return
		}
		resp := models.ResponseObject{JSONRPC: "2.0", ID: *req.ID}
		switch req.Method {
		case models.MethodVersion:
			resp.Result = models.VersionResponse{Version: "1.2.3"}
		case models.MethodTarget:
			resp.Error = &models.ErrorObject{Code: -32001, Message: "oven not connected"}
		case "notify":
			data, _ := json.Marshal(models.RequestObject{JSONRPC: "2.0", Method: models.NotificationChanged})
			_ = m.Broadcast(data)
		default:
			return
		}
		data, _ := json.Marshal(resp)
		_ = s.Write(data)
	})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = m.HandleRequest(w, r)
	}))
	t.Cleanup(func() {
		_ = m.Close()
		server.Close()
	})
	return "ws" + strings.TrimPrefix(server.URL, "http") + APIPath
}

func TestCall_Result(t *testing.T) {
	t.Parallel()
	wsURL := newRPCServer(t)

	resp, err := Call(context.Background(), wsURL, models.MethodVersion, "")
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":"1.2.3"}`, resp)
}

func TestCall_ServerError(t *testing.T) {
	t.Parallel()
	wsURL := newRPCServer(t)

	_, err := Call(context.Background(), wsURL, models.MethodTarget, `{"temperature":200}`)
	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, -32001, rpcErr.Code)
}

func TestCall_InvalidParams(t *testing.T) {
	t.Parallel()
	_, err := Call(context.Background(), "ws://127.0.0.1:1/api", models.MethodTarget, "{nope")
	require.ErrorIs(t, err, ErrInvalidParams)
}

func TestCall_Cancelled(t *testing.T) {
	t.Parallel()
	wsURL := newRPCServer(t)

	c, err := Dial(context.Background(), wsURL)
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.Call(ctx, "unanswered", nil)
	require.ErrorIs(t, err, ErrRequestCancelled)
}

func TestDial_NothingListening(t *testing.T) {
	t.Parallel()

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	_, err = Dial(context.Background(), "ws://"+addr+APIPath)
	require.Error(t, err)
}

func TestConn_Notifications(t *testing.T) {
	t.Parallel()
	wsURL := newRPCServer(t)

	c, err := Dial(context.Background(), wsURL)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, _ = c.Call(ctx, "notify", nil)

	select {
	case m := <-c.Notifications():
		assert.Equal(t, models.NotificationChanged, m)
	case <-time.After(5 * time.Second):
		t.Fatal("no notification received")
	}

	require.NoError(t, c.Close())
	_, ok := <-c.Notifications()
	assert.False(t, ok)
}

func TestWaitNotification_Timeout(t *testing.T) {
	t.Parallel()
	wsURL := newRPCServer(t)

	err := WaitNotification(context.Background(), 50*time.Millisecond, wsURL, models.NotificationChanged)
	require.ErrorIs(t, err, ErrRequestTimeout)
}

func TestLocalURL(t *testing.T) {
	t.Parallel()
	cfg := helpers.NewTestConfig(t)
	assert.Equal(t, "ws://127.0.0.1:7480/api", LocalURL(cfg))

	cfg.SetAPIPort(9000)
	assert.True(t, strings.HasSuffix(LocalURL(cfg), ":9000/api"))
}

func TestLocalAPIClient_WrapsErrors(t *testing.T) {
	t.Parallel()
	wsURL := newRPCServer(t)

	c := NewAPIClient(wsURL)
	_, err := c.Call(context.Background(), models.MethodTarget, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api call failed")
	assert.False(t, errors.Is(err, ErrRequestTimeout))
}
