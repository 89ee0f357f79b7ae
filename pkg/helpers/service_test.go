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
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/pcboven/pcboven-core/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, entry ServiceEntry) *Service {
	t.Helper()
	svc, err := NewService(ServiceArgs{
		Paths:    Paths{TempDir: filepath.Join(t.TempDir(), "tmp")},
		Entry:    entry,
		NoDaemon: true,
	})
	require.NoError(t, err)
	return svc
}

func TestService_PidMissing(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, nil)
	pid, err := svc.Pid()
	require.NoError(t, err)
	assert.Zero(t, pid)
	assert.False(t, svc.Running())
}

func TestService_RunningWithOwnPid(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, nil)
	require.NoError(t, svc.createPidFile())

	pid, err := svc.Pid()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
	assert.True(t, svc.Running())

	require.NoError(t, svc.removePidFile())
	assert.False(t, svc.Running())
}

func TestService_BadPidFile(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, nil)
	require.NoError(t, os.WriteFile(filepath.Join(svc.paths.TempDir, config.PidFile), []byte("oven"), 0o600))

	_, err := svc.Pid()
	require.Error(t, err)
	assert.False(t, svc.Running())
}

func TestService_RunNoDaemon(t *testing.T) {
	t.Parallel()

	var started, stopped bool
	svc := newTestService(t, func() (func() error, error) {
		started = true
		return func() error {
			stopped = true
			return nil
		}, nil
	})

	require.NoError(t, svc.Run())
	assert.True(t, started)
	assert.True(t, stopped)
	assert.NoFileExists(t, svc.pidPath())
}

func TestService_RunEntryFails(t *testing.T) {
	t.Parallel()

	entryErr := errors.New("no oven")
	svc := newTestService(t, func() (func() error, error) {
		return nil, entryErr
	})

	err := svc.Run()
	require.ErrorIs(t, err, entryErr)
	assert.NoFileExists(t, svc.pidPath())
}

func TestService_RunAlreadyRunning(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, func() (func() error, error) {
		t.Fatal("entry must not run")
		return nil, nil
	})
	require.NoError(t, os.WriteFile(svc.pidPath(), []byte(strconv.Itoa(os.Getpid())), 0o600))

	require.Error(t, svc.Run())
}

func TestServiceHandler_Unknown(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, nil)
	require.NoError(t, svc.ServiceHandler(""))
	require.Error(t, svc.ServiceHandler("reboot"))
	require.Error(t, svc.ServiceHandler("stop"), "not running")
}
