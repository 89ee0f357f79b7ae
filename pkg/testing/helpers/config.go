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

package helpers

import (
	"testing"

	"github.com/pcboven/pcboven-core/pkg/config"
	"github.com/spf13/afero"
)

// NewTestConfig returns a config backed by an in-memory filesystem and
// started from the base defaults. The API listens on a loopback port picked
// by the OS.
func NewTestConfig(t *testing.T) *config.Instance {
	t.Helper()
	defaults := config.BaseDefaults
	defaults.Service.APIListen = "127.0.0.1:0"
	cfg, err := config.NewConfigWithFs(afero.NewMemMapFs(), "/config", defaults)
	if err != nil {
		t.Fatalf("Failed to create test config: %v", err)
	}
	return cfg
}
