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

// Package requests defines the environment handed to every JSON-RPC method.
package requests

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/pcboven/pcboven-core/pkg/control"
	"github.com/pcboven/pcboven-core/pkg/database"
)

type RequestEnv struct {
	Context context.Context
	Control *control.Controller
	// History is nil when telemetry history is disabled.
	History database.HistoryDBI
	Params  json.RawMessage
	ID      uuid.UUID
	IsLocal bool
	// Trusted is set when the client address is named in allowed_ips.
	Trusted bool
}
