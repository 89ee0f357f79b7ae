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

package service

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/google/gousb"
	"github.com/jonboulle/clockwork"
	"github.com/pcboven/pcboven-core/pkg/api"
	"github.com/pcboven/pcboven-core/pkg/config"
	"github.com/pcboven/pcboven-core/pkg/control"
	"github.com/pcboven/pcboven-core/pkg/database"
	"github.com/pcboven/pcboven-core/pkg/database/historydb"
	"github.com/pcboven/pcboven-core/pkg/device"
	"github.com/pcboven/pcboven-core/pkg/helpers"
	"github.com/pcboven/pcboven-core/pkg/service/broker"
	"github.com/pcboven/pcboven-core/pkg/service/discovery"
	"github.com/pcboven/pcboven-core/pkg/service/linkwatch"
	"github.com/pcboven/pcboven-core/pkg/service/publishers"
	"github.com/pcboven/pcboven-core/pkg/transport"
	"github.com/pcboven/pcboven-core/pkg/transport/simlink"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Options overrides parts of the runtime. The zero value runs against real
// hardware and the configured listen address.
type Options struct {
	Clock clockwork.Clock
	// Listener replaces the configured API listen address.
	Listener net.Listener
	// Sources replaces the link sources picked from the oven driver.
	Sources []linkwatch.Source
	// NoConfigWatch disables reloading the config file on change.
	NoConfigWatch bool
}

type runtime struct {
	hub        *broker.Broker
	dev        *device.Context
	ctrl       *control.Controller
	history    *historydb.HistoryDB
	recorder   *historydb.Recorder
	server     *api.Server
	watcher    *linkwatch.Watcher
	disc       *discovery.Service
	cfgWatch   *configWatcher
	usbCtx     *gousb.Context
	cancel     context.CancelFunc
	publishers []*publishers.MQTTPublisher
}

func applyLogLevel(cfg *config.Instance) {
	if cfg.DebugLogging() {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// newSimLink builds simulated links from the config current at the time
// simulation is switched on, so a reloaded config applies to the next run.
func newSimLink(cfg *config.Instance, clock clockwork.Clock) func(simlink.TargetSource) transport.Link {
	return func(src simlink.TargetSource) transport.Link {
		sim := cfg.Simulation()
		return simlink.New(src, &simlink.Options{
			Clock:    clock,
			Interval: sim.Interval,
			Ambient:  sim.Ambient,
			HeatRate: sim.HeatRate,
			CoolRate: sim.CoolRate,
		})
	}
}

func (r *runtime) linkSources(cfg *config.Instance) []linkwatch.Source {
	switch cfg.OvenDriver() {
	case config.DriverUSB:
		r.usbCtx = gousb.NewContext()
		return []linkwatch.Source{&linkwatch.USBSource{Ctx: r.usbCtx}}
	case config.DriverSerial:
		return []linkwatch.Source{&linkwatch.SerialSource{Path: cfg.SerialPath()}}
	default:
		return nil
	}
}

func (r *runtime) startHistory(cfg *config.Instance, paths helpers.Paths, clock clockwork.Clock) error {
	if !cfg.HistoryEnabled() {
		log.Info().Msg("telemetry history disabled")
		return nil
	}

	db, err := historydb.OpenHistoryDB(context.Background(), paths.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open history database: %w", err)
	}
	r.history = db

	r.recorder = historydb.NewRecorder(db, r.dev, r.hub, historydb.RecorderOptions{
		Clock:          clock,
		SampleInterval: cfg.HistorySampleInterval(),
		Retention:      cfg.HistoryRetention(),
	})
	r.recorder.Start()
	return nil
}

func (r *runtime) startPublishers(cfg *config.Instance) {
	for _, mqttCfg := range cfg.GetMQTTPublishers() {
		// nil means enabled
		if mqttCfg.Enabled != nil && !*mqttCfg.Enabled {
			continue
		}

		log.Info().Msgf("starting MQTT publisher: %s (topic: %s)", mqttCfg.Broker, mqttCfg.Topic)

		publisher := publishers.NewMQTTPublisher(mqttCfg.Broker, mqttCfg.Topic, r.dev, r.hub)
		if err := publisher.Start(); err != nil {
			log.Error().Err(err).Msgf("failed to start MQTT publisher for %s", mqttCfg.Broker)
			continue
		}
		r.publishers = append(r.publishers, publisher)
	}

	if len(r.publishers) > 0 {
		log.Info().Msgf("started %d MQTT publisher(s)", len(r.publishers))
	}
}

func (r *runtime) historyDBI() database.HistoryDBI {
	if r.history == nil {
		return nil
	}
	return r.history
}

// stop unwinds everything that was started, in reverse order. Parts that
// never started are skipped.
func (r *runtime) stop() error {
	var errs []error

	if r.cfgWatch != nil {
		r.cfgWatch.Stop()
	}
	if r.watcher != nil {
		r.watcher.Stop()
	}
	if r.disc != nil {
		r.disc.Stop()
	}
	for _, p := range r.publishers {
		p.Stop()
	}
	if r.server != nil {
		r.server.Stop()
	}
	if r.recorder != nil {
		r.recorder.Stop()
	}
	if r.dev != nil {
		r.dev.Shutdown()
	}
	if r.history != nil {
		if err := r.history.Close(); err != nil {
			errs = append(errs, fmt.Errorf("error closing history database: %w", err))
		}
	}
	if r.hub != nil {
		r.hub.Stop()
	}
	if r.usbCtx != nil {
		if err := r.usbCtx.Close(); err != nil {
			errs = append(errs, fmt.Errorf("error closing usb context: %w", err))
		}
	}
	if r.cancel != nil {
		r.cancel()
	}

	log.Info().Msg("service cleanup completed")
	return errors.Join(errs...)
}

// Start brings up the oven service: the device context, link watcher,
// history recorder, control API, publishers and mDNS advertisement. The
// returned func stops all of it.
func Start(cfg *config.Instance, paths helpers.Paths, opts *Options) (func() error, error) {
	o := Options{}
	if opts != nil {
		o = *opts
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}

	applyLogLevel(cfg)
	log.Info().
		Str("version", config.AppVersion).
		Str("driver", cfg.OvenDriver()).
		Msg("starting pcboven service")

	ctx, cancel := context.WithCancel(context.Background())
	r := &runtime{cancel: cancel}

	r.hub = broker.NewBroker()
	r.dev = device.New(r.hub, device.Options{
		NewSimLink: newSimLink(cfg, o.Clock),
		Transport:  transport.Options{Clock: o.Clock},
	})
	r.ctrl = control.New(r.dev, r.hub)

	if err := r.startHistory(cfg, paths, o.Clock); err != nil {
		_ = r.stop()
		return nil, err
	}

	r.server = api.NewServer(cfg, r.ctrl, r.historyDBI())
	var err error
	if o.Listener != nil {
		err = r.server.Serve(ctx, o.Listener)
	} else {
		err = r.server.Start(ctx)
	}
	if err != nil {
		r.server = nil
		_ = r.stop()
		return nil, fmt.Errorf("failed to start api server: %w", err)
	}

	r.startPublishers(cfg)

	if cfg.SimulateOnStart() {
		if err := r.ctrl.ToggleDummy(true); err != nil {
			log.Error().Err(err).Msg("failed to start simulation")
		}
	}

	sources := o.Sources
	if sources == nil {
		sources = r.linkSources(cfg)
	}
	if len(sources) > 0 {
		r.watcher = linkwatch.New(r.dev, sources, &linkwatch.Options{
			Clock:        o.Clock,
			PollInterval: cfg.PollInterval(),
		})
		r.watcher.Start()
	} else {
		log.Info().Msg("no oven link driver, only simulation is available")
	}

	r.disc = discovery.New(cfg, cfg.OvenDriver())
	if err := r.disc.Start(); err != nil {
		log.Error().Err(err).Msg("mDNS discovery failed to start")
	}

	if !o.NoConfigWatch {
		w, err := watchConfig(cfg, func() { applyLogLevel(cfg) })
		if err != nil {
			log.Warn().Err(err).Msg("config file changes will not be picked up")
		} else {
			r.cfgWatch = w
		}
	}

	log.Info().Msg("service fully initialized")
	return r.stop, nil
}
