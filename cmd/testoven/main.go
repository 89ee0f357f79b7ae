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

package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/pcboven/pcboven-core/pkg/cli"
	"github.com/pcboven/pcboven-core/pkg/config"
	"github.com/pcboven/pcboven-core/pkg/helpers"
	"github.com/pcboven/pcboven-core/pkg/service"
	"github.com/rs/zerolog/log"
)

// bench build with no hardware driver: the oven is simulated from start
// and everything lives in a scratch directory, so it can run next to a real
// install.

func main() {
	if err := run(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func run() error {
	flags := cli.SetupFlags()
	flags.Pre()

	root := filepath.Join(os.TempDir(), "pcboven-testoven")
	paths := helpers.Paths{
		ConfigDir: filepath.Join(root, "config"),
		DataDir:   filepath.Join(root, "data"),
		LogDir:    filepath.Join(root, "logs"),
		TempDir:   filepath.Join(root, "tmp"),
	}

	defaultCfg := config.BaseDefaults
	defaultCfg.DebugLogging = true
	defaultCfg.Oven.Driver = config.DriverNone
	defaultCfg.Oven.SimulateOnStart = true

	cfg := cli.Setup(paths, defaultCfg, []io.Writer{helpers.ConsoleWriter()})

	defer func() {
		if err := recover(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Panic: %s\n", err)
			log.Fatal().Msgf("panic: %v", err)
		}
	}()

	flags.Post(cfg)

	stopSvc, err := service.Start(cfg, paths, nil)
	if err != nil {
		log.Error().Msgf("error starting service: %s", err)
		return fmt.Errorf("error starting service: %w", err)
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	signal.Stop(sigs)

	if err := stopSvc(); err != nil {
		log.Error().Msgf("error stopping service: %s", err)
		return fmt.Errorf("error stopping service: %w", err)
	}
	return nil
}
