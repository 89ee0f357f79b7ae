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
	DriverUSB    = "usb"
	DriverSerial = "serial"
	DriverNone   = "none"

	DefaultPollInterval = 2 * time.Second
)

type Oven struct {
	Driver          string     `toml:"driver" validate:"omitempty,oneof=usb serial none"`
	SerialPath      string     `toml:"serial_path,omitempty"`
	PollInterval    string     `toml:"poll_interval,omitempty" validate:"duration"`
	Simulation      Simulation `toml:"simulation,omitempty"`
	SimulateOnStart bool       `toml:"simulate_on_start"`
}

// Simulation tunes the simulated oven. Unset values keep the simulator's
// own defaults.
type Simulation struct {
	Ambient  *float64 `toml:"ambient,omitempty"`
	HeatRate *float64 `toml:"heat_rate,omitempty" validate:"omitempty,gt=0"`
	CoolRate *float64 `toml:"cool_rate,omitempty" validate:"omitempty,gt=0,lt=1"`
	Interval string   `toml:"interval,omitempty" validate:"duration"`
}

func (c *Instance) OvenDriver() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.vals.Oven.Driver == "" {
		return DriverUSB
	}
	return c.vals.Oven.Driver
}

func (c *Instance) SetOvenDriver(driver string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.Oven.Driver = driver
}

func (c *Instance) SerialPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Oven.SerialPath
}

// PollInterval is how often the link watcher scans for ovens.
func (c *Instance) PollInterval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return parseDuration(c.vals.Oven.PollInterval, DefaultPollInterval)
}

func (c *Instance) SimulateOnStart() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Oven.SimulateOnStart
}

func (c *Instance) SetSimulateOnStart(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.Oven.SimulateOnStart = enabled
}

// SimulationSettings is the resolved simulator tuning. Zero values mean
// the simulator default.
type SimulationSettings struct {
	Interval time.Duration
	Ambient  float64
	HeatRate float64
	CoolRate float64
}

func (c *Instance) Simulation() SimulationSettings {
	c.mu.RLock()
	defer c.mu.RUnlock()

	sim := c.vals.Oven.Simulation
	out := SimulationSettings{
		Interval: parseDuration(sim.Interval, 0),
	}
	if sim.Ambient != nil {
		out.Ambient = *sim.Ambient
	}
	if sim.HeatRate != nil {
		out.HeatRate = *sim.HeatRate
	}
	if sim.CoolRate != nil {
		out.CoolRate = *sim.CoolRate
	}
	return out
}
