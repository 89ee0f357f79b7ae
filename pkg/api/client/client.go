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

// Package client talks to a running service over the WebSocket JSON-RPC API.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pcboven/pcboven-core/pkg/config"
	"github.com/pcboven/pcboven-core/pkg/helpers/syncutil"
	"github.com/pcboven/pcboven-core/pkg/oven/models"
	"github.com/rs/zerolog/log"
)

var (
	ErrRequestTimeout   = errors.New("request timed out")
	ErrInvalidParams    = errors.New("invalid params")
	ErrRequestCancelled = errors.New("request cancelled")
	ErrConnClosed       = errors.New("api connection closed")
)

const APIPath = "/api"

// RPCError is an error answered by the server.
type RPCError struct {
	Message string
	Code    int
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("%s (code %d)", e.Message, e.Code)
}

// message is either a response (ID set) or a notification (Method set).
type message struct {
	ID      *uuid.UUID          `json:"id"`
	Error   *models.ErrorObject `json:"error"`
	JSONRPC string              `json:"jsonrpc"`
	Method  string              `json:"method"`
	Result  json.RawMessage     `json:"result"`
}

// Conn is a persistent API connection. Calls may be made concurrently;
// notifications are delivered on Notifications.
type Conn struct {
	ws      *websocket.Conn
	pending map[uuid.UUID]chan message
	notifs  chan string
	done    chan struct{}
	wmu     syncutil.Mutex
	mu      syncutil.Mutex
}

// LocalURL is the WebSocket URL of the API served by this machine.
func LocalURL(cfg *config.Instance) string {
	host := "localhost"
	port := strconv.Itoa(cfg.APIPort())
	if h, p, err := net.SplitHostPort(cfg.APIListen()); err == nil {
		if h != "" && h != "0.0.0.0" && h != "::" {
			host = h
		}
		if p != "" && p != "0" {
			port = p
		}
	}
	u := url.URL{
		Scheme: "ws",
		Host:   net.JoinHostPort(host, port),
		Path:   APIPath,
	}
	return u.String()
}

func Dial(ctx context.Context, wsURL string) (*Conn, error) {
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("error connecting to %s: %w", wsURL, err)
	}

	c := &Conn{
		ws:      ws,
		pending: make(map[uuid.UUID]chan message),
		notifs:  make(chan string, 16),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *Conn) readLoop() {
	defer close(c.done)
	defer close(c.notifs)
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Msg("api connection read ended")
			}
			return
		}

		var m message
		if err := json.Unmarshal(data, &m); err != nil || m.JSONRPC != "2.0" {
			continue
		}

		if m.ID == nil || *m.ID == uuid.Nil {
			if m.Method == "" {
				continue
			}
			select {
			case c.notifs <- m.Method:
			default:
				log.Debug().Str("method", m.Method).Msg("notification buffer full, dropping")
			}
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[*m.ID]
		delete(c.pending, *m.ID)
		c.mu.Unlock()
		if ok {
			ch <- m
		}
	}
}

// Notifications yields the method name of every notification received. It
// is closed when the connection ends.
func (c *Conn) Notifications() <-chan string {
	return c.notifs
}

// Call sends method with params, which may be empty, and returns the raw
// result. Server errors are returned as *RPCError.
func (c *Conn) Call(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error) {
	if len(params) > 0 && !json.Valid(params) {
		return nil, ErrInvalidParams
	}

	id := uuid.New()
	req := models.RequestObject{
		JSONRPC: "2.0",
		ID:      &id,
		Method:  method,
		Params:  params,
	}

	ch := make(chan message, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	c.wmu.Lock()
	err := c.ws.WriteJSON(req)
	c.wmu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("error sending request: %w", err)
	}

	timer := time.NewTimer(config.ApiRequestTimeout)
	defer timer.Stop()

	select {
	case m := <-ch:
		if m.Error != nil {
			return nil, &RPCError{Code: m.Error.Code, Message: m.Error.Message}
		}
		return m.Result, nil
	case <-c.done:
		return nil, ErrConnClosed
	case <-timer.C:
		return nil, ErrRequestTimeout
	case <-ctx.Done():
		return nil, ErrRequestCancelled
	}
}

func (c *Conn) Close() error {
	c.wmu.Lock()
	_ = c.ws.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
	)
	c.wmu.Unlock()
	if err := c.ws.Close(); err != nil {
		return fmt.Errorf("error closing websocket: %w", err)
	}
	<-c.done
	return nil
}

// LocalClient sends a single method with params to the local running API
// service, waits for a response then disconnects.
func LocalClient(ctx context.Context, cfg *config.Instance, method, params string) (string, error) {
	return Call(ctx, LocalURL(cfg), method, params)
}

// Call is a one-shot request against the API at wsURL.
func Call(ctx context.Context, wsURL, method, params string) (string, error) {
	if params != "" && !json.Valid([]byte(params)) {
		return "", ErrInvalidParams
	}

	c, err := Dial(ctx, wsURL)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := c.Close(); err != nil {
			log.Warn().Err(err).Msg("error closing api connection")
		}
	}()

	var raw json.RawMessage
	if params != "" {
		raw = json.RawMessage(params)
	}
	result, err := c.Call(ctx, method, raw)
	if err != nil {
		return "", err
	}
	return string(result), nil
}

// WaitNotification blocks until the named notification arrives. A zero
// timeout uses the API request timeout and a negative one waits forever.
func WaitNotification(ctx context.Context, timeout time.Duration, wsURL, method string) error {
	c, err := Dial(ctx, wsURL)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			log.Warn().Err(err).Msg("error closing api connection")
		}
	}()

	var timerChan <-chan time.Time
	if timeout == 0 {
		timeout = config.ApiRequestTimeout
	}
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timerChan = timer.C
	}

	for {
		select {
		case m, ok := <-c.Notifications():
			if !ok {
				return ErrConnClosed
			}
			if m == method {
				return nil
			}
		case <-timerChan:
			return ErrRequestTimeout
		case <-ctx.Done():
			return ErrRequestCancelled
		}
	}
}
