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
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/pcboven/pcboven-core/pkg/api/client"
	"github.com/pcboven/pcboven-core/pkg/cli"
	"github.com/pcboven/pcboven-core/pkg/config"
	"github.com/pcboven/pcboven-core/pkg/helpers"
	"github.com/pcboven/pcboven-core/pkg/service"
	"github.com/pcboven/pcboven-core/pkg/ui/tui"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := run(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func run() error {
	flags := cli.SetupFlags()
	serviceFlag := flag.String(
		"service",
		"",
		"manage PCBoven service (start|stop|restart|status|exec)",
	)
	daemonMode := flag.Bool(
		"daemon",
		false,
		"run service in foreground with no UI",
	)

	flags.Pre()

	if os.Geteuid() == 0 {
		return errors.New("pcboven cannot be run as root")
	}

	var logWriters []io.Writer
	if *daemonMode || *serviceFlag == "exec" {
		logWriters = []io.Writer{helpers.ConsoleWriter()}
	}

	paths := helpers.DefaultPaths()
	cfg := cli.Setup(paths, config.BaseDefaults, logWriters)

	defer func() {
		if err := recover(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Panic: %v\n", err)
			log.Fatal().Msgf("panic: %v", err)
		}
	}()

	svc, err := helpers.NewService(helpers.ServiceArgs{
		Entry: func() (func() error, error) {
			return service.Start(cfg, paths, nil)
		},
		Paths: paths,
	})
	if err != nil {
		log.Error().Err(err).Msg("error creating service")
		return fmt.Errorf("error creating service: %w", err)
	}

	if *daemonMode {
		return svc.ServiceHandler("exec")
	}
	if *serviceFlag != "" {
		if err := svc.ServiceHandler(*serviceFlag); err != nil {
			return fmt.Errorf("service handler failed: %w", err)
		}
		return nil
	}

	flags.Post(cfg)

	// try to auto-start service if it's not running already
	if !svc.Running() {
		if startErr := svc.Start(); startErr != nil {
			log.Error().Err(startErr).Msg("could not start service")
		}
	}

	err = tui.Run(
		client.NewLocalAPIClient(cfg),
		func() bool { return helpers.IsServiceRunning(cfg) },
	)
	if err != nil {
		return fmt.Errorf("error displaying TUI: %w", err)
	}
	return nil
}
