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

package config

import "time"

const (
	DefaultHistoryRetention      = 7 * 24 * time.Hour
	DefaultHistorySampleInterval = time.Second
)

// History controls the telemetry log used to plot reflow runs.
type History struct {
	Enabled        *bool  `toml:"enabled,omitempty"`
	Retention      string `toml:"retention,omitempty" validate:"duration"`
	SampleInterval string `toml:"sample_interval,omitempty" validate:"duration"`
}

func (c *Instance) HistoryEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.vals.History.Enabled == nil {
		return true
	}
	return *c.vals.History.Enabled
}

func (c *Instance) HistoryRetention() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return parseDuration(c.vals.History.Retention, DefaultHistoryRetention)
}

// HistorySampleInterval is the minimum spacing between stored samples.
func (c *Instance) HistorySampleInterval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return parseDuration(c.vals.History.SampleInterval, DefaultHistorySampleInterval)
}
