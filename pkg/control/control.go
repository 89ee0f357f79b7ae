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

// Package control is the user-facing operation set of the oven. Every
// control surface (JSON-RPC, REST, CLI) goes through a Controller.
package control

import (
	"fmt"

	"github.com/pcboven/pcboven-core/pkg/device"
	"github.com/pcboven/pcboven-core/pkg/oven/models"
	"github.com/pcboven/pcboven-core/pkg/service/broker"
	"github.com/rs/zerolog/log"
)

type Controller struct {
	dev *device.Context
	hub *broker.Broker
}

func New(dev *device.Context, hub *broker.Broker) *Controller {
	return &Controller{dev: dev, hub: hub}
}

// GetState returns a copy of the current oven state. It works whether or
// not an oven is connected.
func (c *Controller) GetState() models.OvenState {
	return c.dev.State()
}

// IsConnected is true for both a real and a simulated oven.
func (c *Controller) IsConnected() bool {
	return c.dev.Connection().Active()
}

func (c *Controller) Connection() models.Connection {
	return c.dev.Connection()
}

// SetTargetTemperature commands a new setpoint. It fails with
// device.ErrNotConnected when no oven is bound; a submission failure is
// returned wrapping transport.ErrSubmissionFailed and the stored target is
// left unchanged.
func (c *Controller) SetTargetTemperature(v int16) error {
	err := c.dev.ApplyCommand(func(s *models.OvenState) {
		s.TargetTemp = v
	})
	if err != nil {
		return fmt.Errorf("set target temperature: %w", err)
	}
	log.Info().Int16("target", v).Msg("target temperature set")
	return nil
}

func (c *Controller) EnableFilaments() error {
	return c.setFilaments(true)
}

func (c *Controller) DisableFilaments() error {
	return c.setFilaments(false)
}

func (c *Controller) setFilaments(enabled bool) error {
	err := c.dev.ApplyCommand(func(s *models.OvenState) {
		s.EnableFilaments = enabled
	})
	if err != nil {
		return fmt.Errorf("set filaments: %w", err)
	}
	log.Info().Bool("enabled", enabled).Msg("filaments set")
	return nil
}

// ToggleDummy enables or disables the simulated oven.
func (c *Controller) ToggleDummy(enabled bool) error {
	if err := c.dev.SetDummy(enabled); err != nil {
		return fmt.Errorf("toggle simulation: %w", err)
	}
	return nil
}

// Subscribe registers for change signals. A signal carries no data; read
// GetState and Connection after waking.
func (c *Controller) Subscribe() *broker.Subscription {
	return c.hub.Subscribe()
}

func (c *Controller) Unsubscribe(id int) {
	c.hub.Unsubscribe(id)
}
