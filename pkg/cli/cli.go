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

package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"syscall"

	"github.com/pcboven/pcboven-core/pkg/api/client"
	"github.com/pcboven/pcboven-core/pkg/config"
	"github.com/pcboven/pcboven-core/pkg/helpers"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const targetUnset = math.MinInt

type Flags struct {
	API           *string
	Filaments     *string
	Simulate      *string
	ExportHistory *string
	Target        *int
	HistoryLimit  *int
	Watch         *bool
	Version       *bool
}

// SetupFlags defines all common CLI flags.
func SetupFlags() *Flags {
	return &Flags{
		API: flag.String(
			"api",
			"",
			"send method and params to API and print response",
		),
		Target: flag.Int(
			"target",
			targetUnset,
			"set the oven target temperature",
		),
		Filaments: flag.String(
			"filaments",
			"",
			"enable or disable the heating filaments (on|off)",
		),
		Simulate: flag.String(
			"simulate",
			"",
			"switch the simulated oven on or off (on|off)",
		),
		ExportHistory: flag.String(
			"export-history",
			"",
			"write recent telemetry samples as CSV to a file, or - for stdout",
		),
		HistoryLimit: flag.Int(
			"history-limit",
			0,
			"number of samples to export (default 600)",
		),
		Watch: flag.Bool(
			"watch",
			false,
			"print the oven state every time it changes",
		),
		Version: flag.Bool(
			"version",
			false,
			"print version and exit",
		),
	}
}

// Pre runs flag parsing and actions any immediate flags that don't
// require environment setup. Add any custom flags before running this.
func (f *Flags) Pre() {
	flag.Parse()

	if *f.Version {
		_, _ = fmt.Printf("PCBoven v%s\n", config.AppVersion)
		os.Exit(0)
	}
}

// Post actions all remaining common flags that require the environment to be
// set up. It exits the process when a flag was handled.
func (f *Flags) Post(cfg *config.Instance) {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *f.Watch {
		err := Watch(ctx, client.LocalURL(cfg), os.Stdout)
		if err != nil {
			log.Error().Err(err).Msg("error watching oven")
			_, _ = fmt.Fprintf(os.Stderr, "Error watching oven: %v\n", err)
			cancel()
			os.Exit(1)
		}
		cancel()
		os.Exit(0)
	}

	handled, err := f.run(ctx, client.NewLocalAPIClient(cfg), os.Stdout)
	if !handled {
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("error running command")
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(1)
	}
	cancel()
	os.Exit(0)
}

// run performs the first one-shot action set in f. handled is false when
// none was set.
func (f *Flags) run(ctx context.Context, api client.APIClient, out io.Writer) (handled bool, err error) {
	switch {
	case f.API != nil && *f.API != "":
		return true, runAPI(ctx, api, *f.API, out)
	case f.Target != nil && *f.Target != targetUnset:
		return true, setTarget(ctx, api, *f.Target)
	case f.Filaments != nil && *f.Filaments != "":
		return true, setFilaments(ctx, api, *f.Filaments)
	case f.Simulate != nil && *f.Simulate != "":
		return true, setSimulation(ctx, api, *f.Simulate)
	case f.ExportHistory != nil && *f.ExportHistory != "":
		limit := 0
		if f.HistoryLimit != nil {
			limit = *f.HistoryLimit
		}
		return true, exportHistory(ctx, api, limit, *f.ExportHistory, out)
	}
	return false, nil
}

// Setup initializes the user config and logging. Returns a user config object.
//
//nolint:gocritic // config struct copied for immutability
func Setup(
	paths helpers.Paths,
	defaultConfig config.Values,
	writers []io.Writer,
) *config.Instance {
	err := helpers.EnsureDirectories(paths)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error creating directories: %v\n", err)
		os.Exit(1)
	}

	err = helpers.InitLogging(paths, writers)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error initializing logging: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.NewConfig(paths.ConfigDir, defaultConfig)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if cfg.DebugLogging() {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	return cfg
}
