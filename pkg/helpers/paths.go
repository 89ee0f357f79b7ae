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
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/pcboven/pcboven-core/pkg/config"
)

// Paths are the directories the service keeps its files in.
type Paths struct {
	ConfigDir string
	DataDir   string
	LogDir    string
	TempDir   string
}

// DefaultPaths uses the XDG base directories.
func DefaultPaths() Paths {
	dataDir := filepath.Join(xdg.DataHome, config.AppName)
	return Paths{
		ConfigDir: filepath.Join(xdg.ConfigHome, config.AppName),
		DataDir:   dataDir,
		LogDir:    filepath.Join(dataDir, "logs"),
		TempDir:   filepath.Join(os.TempDir(), config.AppName),
	}
}

// EnsureDirectories creates every directory in p.
func EnsureDirectories(p Paths) error {
	dirs := []struct {
		name string
		path string
	}{
		{"config", p.ConfigDir},
		{"data", p.DataDir},
		{"log", p.LogDir},
		{"temp", p.TempDir},
	}
	for _, d := range dirs {
		if d.path == "" {
			continue
		}
		if err := os.MkdirAll(d.path, 0o750); err != nil {
			return fmt.Errorf("failed to create %s directory: %w", d.name, err)
		}
	}
	return nil
}
