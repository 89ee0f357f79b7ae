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

// Package database holds the record types shared by the history store and
// its consumers, and the migration runner used by every SQLite database.
package database

import (
	"time"
)

// Sample is a single stored telemetry reading. Kind is the connection kind
// the sample was taken under, so simulated runs can be told apart.
type Sample struct {
	Time             time.Time `json:"time" csv:"time"`
	Kind             string    `json:"kind" csv:"kind"`
	DBID             int64     `json:"id" csv:"id"`
	ProbeTemp        int16     `json:"probeTemp" csv:"probe_temp"`
	InternalTemp     int16     `json:"internalTemp" csv:"internal_temp"`
	TargetTemp       int16     `json:"targetTemp" csv:"target_temp"`
	EnableFilaments  bool      `json:"enableFilaments" csv:"enable_filaments"`
	FilamentTopOn    bool      `json:"filamentTopOn" csv:"filament_top_on"`
	FilamentBottomOn bool      `json:"filamentBottomOn" csv:"filament_bottom_on"`
	Fault            bool      `json:"fault" csv:"fault"`
}

type HistoryDBI interface {
	AddSample(s *Sample) error
	RecentSamples(limit int) ([]Sample, error)
	CleanupSamples(retention time.Duration) (int64, error)
	Truncate() error
	Vacuum() error
	Close() error
	GetDBPath() string
}
