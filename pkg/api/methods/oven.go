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

package methods

import (
	"errors"
	"fmt"

	"github.com/pcboven/pcboven-core/pkg/api/models/requests"
	"github.com/pcboven/pcboven-core/pkg/api/validation"
	"github.com/pcboven/pcboven-core/pkg/oven/models"
	"github.com/rs/zerolog/log"
)

var ErrHistoryDisabled = errors.New("telemetry history is disabled")

func HandleConnected(env requests.RequestEnv) (any, error) { //nolint:gocritic // single-use parameter in API handler
	conn := env.Control.Connection()
	return models.ConnectedResponse{
		Connected: conn.Active(),
		Kind:      conn.Kind,
	}, nil
}

func HandleState(env requests.RequestEnv) (any, error) { //nolint:gocritic // single-use parameter in API handler
	return env.Control.GetState(), nil
}

func HandleTarget(env requests.RequestEnv) (any, error) { //nolint:gocritic // single-use parameter in API handler
	var params models.TargetParams
	if err := validation.ValidateAndUnmarshal(env.Params, &params); err != nil {
		return nil, fmt.Errorf("invalid target params: %w", err)
	}

	log.Info().Int16("temperature", *params.Temperature).Msg("received target request")
	if err := env.Control.SetTargetTemperature(*params.Temperature); err != nil {
		return nil, err //nolint:wrapcheck // already wrapped by the controller
	}
	return nil, nil
}

func HandleFilamentsEnable(env requests.RequestEnv) (any, error) { //nolint:gocritic // single-use parameter in API handler
	if err := env.Control.EnableFilaments(); err != nil {
		return nil, err //nolint:wrapcheck // already wrapped by the controller
	}
	return nil, nil
}

func HandleFilamentsDisable(env requests.RequestEnv) (any, error) { //nolint:gocritic // single-use parameter in API handler
	if err := env.Control.DisableFilaments(); err != nil {
		return nil, err //nolint:wrapcheck // already wrapped by the controller
	}
	return nil, nil
}

func HandleSimulation(env requests.RequestEnv) (any, error) { //nolint:gocritic // single-use parameter in API handler
	var params models.SimulationParams
	if err := validation.ValidateAndUnmarshal(env.Params, &params); err != nil {
		return nil, fmt.Errorf("invalid simulation params: %w", err)
	}

	log.Info().Bool("enabled", *params.Enabled).Msg("received simulation request")
	if err := env.Control.ToggleDummy(*params.Enabled); err != nil {
		return nil, err //nolint:wrapcheck // already wrapped by the controller
	}
	return nil, nil
}
