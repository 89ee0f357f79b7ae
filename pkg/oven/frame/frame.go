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

// Package frame translates between oven wire frames and oven models.
//
// Telemetry frames (device to host) are 9 bytes:
//
//	probe:i16 internal:i16 short_vcc:u8 short_gnd:u8 open_circuit:u8 top_on:u8 bottom_on:u8
//
// Command frames (host to device) are 3 bytes:
//
//	target_lo:u8 target_hi:u8 filaments:u8
//
// All multi-byte fields are little endian.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/pcboven/pcboven-core/pkg/oven/models"
)

const (
	TelemetryLen = 9
	CommandLen   = 3
)

// Shift pairs used to drop padding bits and sign-extend raw samples. The
// arithmetic is done on int16 so bits shifted past bit 15 are discarded.
const (
	probeShiftLeft     = 2
	probeShiftRight    = 4
	internalShiftLeft  = 4
	internalShiftRight = 8
)

var ErrShortFrame = errors.New("short frame")

// RawTelemetry holds undecoded sample words and flag bytes exactly as they
// appear on the wire.
type RawTelemetry struct {
	Probe       int16
	Internal    int16
	ShortVCC    uint8
	ShortGND    uint8
	OpenCircuit uint8
	TopOn       uint8
	BottomOn    uint8
}

// DecodeProbe converts a raw 14-bit probe sample word.
func DecodeProbe(raw int16) int16 {
	return (raw << probeShiftLeft) >> probeShiftRight
}

// DecodeInternal converts a raw 12-bit internal sample word.
func DecodeInternal(raw int16) int16 {
	return (raw << internalShiftLeft) >> internalShiftRight
}

// ParseTelemetry splits a frame into its raw fields without decoding the
// samples. Bytes past TelemetryLen are ignored.
func ParseTelemetry(b []byte) (RawTelemetry, error) {
	if len(b) < TelemetryLen {
		return RawTelemetry{}, fmt.Errorf("%w: got %d bytes, need %d", ErrShortFrame, len(b), TelemetryLen)
	}
	return RawTelemetry{
		Probe:       int16(binary.LittleEndian.Uint16(b[0:2])), //nolint:gosec // wire field is signed
		Internal:    int16(binary.LittleEndian.Uint16(b[2:4])), //nolint:gosec // wire field is signed
		ShortVCC:    b[4],
		ShortGND:    b[5],
		OpenCircuit: b[6],
		TopOn:       b[7],
		BottomOn:    b[8],
	}, nil
}

// DecodeTelemetry decodes a telemetry frame into the sensor fields of the
// oven state.
func DecodeTelemetry(b []byte) (models.Telemetry, error) {
	raw, err := ParseTelemetry(b)
	if err != nil {
		return models.Telemetry{}, err
	}
	return models.Telemetry{
		ProbeTemp:        DecodeProbe(raw.Probe),
		InternalTemp:     DecodeInternal(raw.Internal),
		FaultShortVCC:    raw.ShortVCC != 0,
		FaultShortGND:    raw.ShortGND != 0,
		FaultOpenCircuit: raw.OpenCircuit != 0,
		FilamentTopOn:    raw.TopOn != 0,
		FilamentBottomOn: raw.BottomOn != 0,
	}, nil
}

// EncodeTelemetry builds a telemetry frame from raw fields. Used by the
// simulated link.
func EncodeTelemetry(raw RawTelemetry) [TelemetryLen]byte {
	var b [TelemetryLen]byte
	binary.LittleEndian.PutUint16(b[0:2], uint16(raw.Probe))    //nolint:gosec // bit pattern copy
	binary.LittleEndian.PutUint16(b[2:4], uint16(raw.Internal)) //nolint:gosec // bit pattern copy
	b[4] = raw.ShortVCC
	b[5] = raw.ShortGND
	b[6] = raw.OpenCircuit
	b[7] = raw.TopOn
	b[8] = raw.BottomOn
	return b
}

// EncodeCommand builds the 3-byte command frame.
func EncodeCommand(target int16, filaments bool) [CommandLen]byte {
	var b [CommandLen]byte
	binary.LittleEndian.PutUint16(b[0:2], uint16(target)) //nolint:gosec // bit pattern copy
	if filaments {
		b[2] = 1
	}
	return b
}

// DecodeCommand is the inverse of EncodeCommand.
func DecodeCommand(b []byte) (target int16, filaments bool, err error) {
	if len(b) < CommandLen {
		return 0, false, fmt.Errorf("%w: got %d bytes, need %d", ErrShortFrame, len(b), CommandLen)
	}
	target = int16(binary.LittleEndian.Uint16(b[0:2])) //nolint:gosec // wire field is signed
	return target, b[2] != 0, nil
}

// BoolByte returns the wire representation of a flag.
func BoolByte(v bool) uint8 {
	if v {
		return 1
	}
	return 0
}
