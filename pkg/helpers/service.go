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
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/pcboven/pcboven-core/pkg/config"
	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v4/process"
)

type ServiceEntry func() (func() error, error)

type Service struct {
	start  ServiceEntry
	stop   func() error
	paths  Paths
	daemon bool
}

type ServiceArgs struct {
	Entry    ServiceEntry
	Paths    Paths
	NoDaemon bool
}

func NewService(args ServiceArgs) (*Service, error) {
	err := os.MkdirAll(args.Paths.TempDir, 0o750)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}

	return &Service{
		daemon: !args.NoDaemon,
		start:  args.Entry,
		paths:  args.Paths,
	}, nil
}

func (s *Service) pidPath() string {
	return filepath.Join(s.paths.TempDir, config.PidFile)
}

// Create new PID file using current process PID.
func (s *Service) createPidFile() error {
	pid := os.Getpid()
	err := os.WriteFile(s.pidPath(), []byte(strconv.Itoa(pid)), 0o600)
	if err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	return nil
}

func (s *Service) removePidFile() error {
	err := os.Remove(s.pidPath())
	if err != nil {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}
	return nil
}

// Pid returns the process ID of the current running service daemon, or 0
// when there is no PID file.
func (s *Service) Pid() (int, error) {
	//nolint:gosec // Safe: reads PID files for service management
	data, err := os.ReadFile(s.pidPath())
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("error reading pid file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("error parsing pid: %w", err)
	}
	return pid, nil
}

// Running returns true if the PID file names a live process.
func (s *Service) Running() bool {
	pid, err := s.Pid()
	if err != nil || pid <= 0 {
		return false
	}

	exists, err := process.PidExists(int32(pid)) //nolint:gosec // pids fit in int32
	if err != nil {
		log.Debug().Err(err).Int("pid", pid).Msg("failed to check process")
		return false
	}
	return exists
}

func (s *Service) stopService() error {
	log.Info().Msgf("stopping service")

	err := s.stop()
	if err != nil {
		log.Error().Err(err).Msg("error stopping service")
		return err
	}

	err = s.removePidFile()
	if err != nil {
		log.Error().Err(err).Msgf("error removing pid file")
		return err
	}

	return nil
}

// waitForSignal blocks until SIGINT or SIGTERM.
func waitForSignal() {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)
	<-sigs
}

// Run starts the service in the foreground and blocks until it is stopped
// by a signal. With NoDaemon set it stops again right after starting.
func (s *Service) Run() error {
	if s.Running() {
		return errors.New("service already running")
	}

	log.Info().Msg("starting service")

	err := s.createPidFile()
	if err != nil {
		return err
	}

	stop, err := s.start()
	if err != nil {
		if rmErr := s.removePidFile(); rmErr != nil {
			log.Error().Err(rmErr).Msg("error removing pid file")
		}
		return fmt.Errorf("error starting service: %w", err)
	}
	s.stop = stop

	if s.daemon {
		waitForSignal()
	}

	return s.stopService()
}

// Start a new service daemon in the background.
func (s *Service) Start() error {
	if s.Running() {
		return errors.New("service already running")
	}

	exePath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("error getting absolute binary path: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	//nolint:gosec // Safe: executes the current binary
	cmd := exec.CommandContext(ctx, exePath, "-service", "exec")
	cmd.Env = os.Environ()

	// point new process to existing config file
	configPath := filepath.Join(s.paths.ConfigDir, config.CfgFile)
	if _, statErr := os.Stat(configPath); statErr == nil && os.Getenv(config.CfgEnv) == "" {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", config.CfgEnv, configPath))
	}

	err = cmd.Start()
	if err != nil {
		return fmt.Errorf("error starting service: %w", err)
	}
	return nil
}

// Stop the service daemon.
func (s *Service) Stop() error {
	if !s.Running() {
		return errors.New("service not running")
	}

	pid, err := s.Pid()
	if err != nil {
		return err
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process: %w", err)
	}

	err = proc.Signal(syscall.SIGTERM)
	if err != nil {
		return fmt.Errorf("failed to send SIGTERM to process: %w", err)
	}
	return nil
}

func (s *Service) Restart() error {
	if s.Running() {
		err := s.Stop()
		if err != nil {
			return err
		}
	}

	for s.Running() {
		time.Sleep(1 * time.Second)
	}

	return s.Start()
}

func (s *Service) ServiceHandler(cmd string) error {
	switch cmd {
	case "exec":
		return s.Run()
	case "start":
		return s.Start()
	case "stop":
		return s.Stop()
	case "restart":
		return s.Restart()
	case "status":
		if s.Running() {
			_, _ = fmt.Println("started")
			return nil
		}
		_, _ = fmt.Println("stopped")
		return errors.New("service not running")
	case "":
		return nil
	default:
		return fmt.Errorf("unknown service argument: %s", cmd)
	}
}
