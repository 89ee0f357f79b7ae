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
	"fmt"

	"github.com/pcboven/pcboven-core/pkg/api/models/requests"
	"github.com/pcboven/pcboven-core/pkg/api/validation"
	"github.com/pcboven/pcboven-core/pkg/database"
	"github.com/pcboven/pcboven-core/pkg/oven/models"
)

type HistoryResponse struct {
	Samples []database.Sample `json:"samples"`
}

// HandleHistory returns the newest samples, oldest first. Params are
// optional.
func HandleHistory(env requests.RequestEnv) (any, error) { //nolint:gocritic // single-use parameter in API handler
	if env.History == nil {
		return nil, ErrHistoryDisabled
	}

	var params models.HistoryParams
	if len(env.Params) > 0 {
		if err := validation.ValidateAndUnmarshal(env.Params, &params); err != nil {
			return nil, fmt.Errorf("invalid history params: %w", err)
		}
	}

	samples, err := env.History.RecentSamples(params.Limit)
	if err != nil {
		return nil, fmt.Errorf("error reading history: %w", err)
	}
	return HistoryResponse{Samples: samples}, nil
}
