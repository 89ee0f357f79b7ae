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

// Package models holds the oven data types shared by the codec, the device
// context and every control surface.
package models

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Telemetry is the sensor part of the oven state, as decoded from a single
// telemetry frame. It never carries the commanded target fields.
type Telemetry struct {
	ProbeTemp        int16 `json:"probeTemp"`
	InternalTemp     int16 `json:"internalTemp"`
	FaultShortVCC    bool  `json:"faultShortVcc"`
	FaultShortGND    bool  `json:"faultShortGnd"`
	FaultOpenCircuit bool  `json:"faultOpenCircuit"`
	FilamentTopOn    bool  `json:"filamentTopOn"`
	FilamentBottomOn bool  `json:"filamentBottomOn"`
}

// OvenState is a complete snapshot of the oven. Values are copied, never
// shared, so a snapshot cannot change after it has been handed out.
type OvenState struct {
	Telemetry
	// TargetTemp is the last commanded setpoint. It shares the probe
	// temperature scale and goes on the wire unshifted.
	TargetTemp int16 `json:"targetTemp"`
	// EnableFilaments is the last commanded filament enable flag.
	EnableFilaments bool `json:"enableFilaments"`
}

// WithTelemetry returns a copy of s with every sensor field replaced by t.
// The commanded fields are kept.
func (s OvenState) WithTelemetry(t Telemetry) OvenState {
	s.Telemetry = t
	return s
}

// HasFault reports whether any thermocouple fault flag is latched.
func (s OvenState) HasFault() bool {
	return s.FaultShortVCC || s.FaultShortGND || s.FaultOpenCircuit
}

type ConnectionKind int

const (
	Disconnected ConnectionKind = iota
	Connected
	Simulated
)

func (k ConnectionKind) String() string {
	switch k {
	case Connected:
		return "connected"
	case Simulated:
		return "simulated"
	default:
		return "disconnected"
	}
}

func (k ConnectionKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *ConnectionKind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "connected":
		*k = Connected
	case "simulated":
		*k = Simulated
	case "disconnected":
		*k = Disconnected
	default:
		return fmt.Errorf("unknown connection kind: %q", text)
	}
	return nil
}

// Connection identifies what the device context is currently bound to.
// LinkID is empty while disconnected.
type Connection struct {
	LinkID string         `json:"linkId,omitempty"`
	Kind   ConnectionKind `json:"kind"`
}

// Active reports whether commands are accepted, which is true for both real
// and simulated connections.
func (c Connection) Active() bool {
	return c.Kind == Connected || c.Kind == Simulated
}

// JSON-RPC method names served by the control surface.
const (
	MethodConnected        = "oven.connected"
	MethodState            = "oven.state"
	MethodTarget           = "oven.target"
	MethodFilamentsEnable  = "oven.filaments.enable"
	MethodFilamentsDisable = "oven.filaments.disable"
	MethodSimulation       = "oven.simulation"
	MethodHistory          = "oven.history"
	MethodVersion          = "version"

	NotificationChanged = "oven.changed"
)

type ConnectedResponse struct {
	Kind      ConnectionKind `json:"kind"`
	Connected bool           `json:"connected"`
}

type TargetParams struct {
	Temperature *int16 `json:"temperature" validate:"required"`
}

type SimulationParams struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

type HistoryParams struct {
	Limit int `json:"limit" validate:"omitempty,min=1,max=10000"`
}

type VersionResponse struct {
	Version string `json:"version"`
}

type RequestObject struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *uuid.UUID      `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type ErrorObject struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type ResponseObject struct {
	JSONRPC string       `json:"jsonrpc"`
	ID      uuid.UUID    `json:"id"`
	Result  any          `json:"result"`
	Error   *ErrorObject `json:"error,omitempty"`
}
