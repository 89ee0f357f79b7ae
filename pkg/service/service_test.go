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
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pcboven/pcboven-core/pkg/api"
	"github.com/pcboven/pcboven-core/pkg/config"
	"github.com/pcboven/pcboven-core/pkg/helpers"
	"github.com/pcboven/pcboven-core/pkg/oven/models"
	"github.com/pcboven/pcboven-core/pkg/service/linkwatch"
	testhelpers "github.com/pcboven/pcboven-core/pkg/testing/helpers"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boolPtr(b bool) *bool { return &b }

func newServiceConfig(t *testing.T, mutate func(*config.Values)) *config.Instance {
	t.Helper()
	defaults := config.BaseDefaults
	defaults.Oven.Driver = config.DriverNone
	defaults.Service.Discovery.Enabled = boolPtr(false)
	if mutate != nil {
		mutate(&defaults)
	}
	cfg, err := config.NewConfigWithFs(afero.NewMemMapFs(), "/config", defaults)
	require.NoError(t, err)
	return cfg
}

func startService(t *testing.T, cfg *config.Instance) string {
	t.Helper()
	ln, err := (&net.ListenConfig{}).Listen(t.Context(), "tcp", "127.0.0.1:0")
	require.NoError(t, err)

	paths := helpers.Paths{DataDir: t.TempDir()}
	stop, err := Start(cfg, paths, &Options{
		Clock:         clockwork.NewFakeClock(),
		Listener:      ln,
		Sources:       []linkwatch.Source{},
		NoConfigWatch: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, stop())
	})
	return "http://" + ln.Addr().String()
}

func TestStart_SimulateOnStart(t *testing.T) {
	t.Setenv(config.CfgEnv, "")
	cfg := newServiceConfig(t, func(v *config.Values) {
		v.Oven.SimulateOnStart = true
	})
	conn := testhelpers.DialAPI(t, startService(t, cfg))

	resp, result, err := testhelpers.SendJSONRPC(conn, models.MethodConnected, nil)
	require.NoError(t, err)
	require.Nil(t, resp.Error)

	var connected models.ConnectedResponse
	require.NoError(t, json.Unmarshal(result, &connected))
	assert.True(t, connected.Connected)
	assert.Equal(t, models.Simulated, connected.Kind)
}

func TestStart_DisconnectedByDefault(t *testing.T) {
	t.Setenv(config.CfgEnv, "")
	cfg := newServiceConfig(t, nil)
	conn := testhelpers.DialAPI(t, startService(t, cfg))

	resp, _, err := testhelpers.SendJSONRPC(conn, models.MethodTarget, map[string]int{"temperature": 200})
	require.NoError(t, err)
	require.NotNil(t, resp.Error)
	assert.Equal(t, api.JSONRPCErrorNotConnected.Code, resp.Error.Code)
}

func TestStart_HistoryDisabled(t *testing.T) {
	t.Setenv(config.CfgEnv, "")
	cfg := newServiceConfig(t, func(v *config.Values) {
		v.History.Enabled = boolPtr(false)
	})
	conn := testhelpers.DialAPI(t, startService(t, cfg))

	resp, _, err := testhelpers.SendJSONRPC(conn, models.MethodHistory, nil)
	require.NoError(t, err)
	require.NotNil(t, resp.Error)
	assert.Equal(t, api.JSONRPCErrorServerError.Code, resp.Error.Code)
}

func TestStart_HistoryEnabled(t *testing.T) {
	t.Setenv(config.CfgEnv, "")
	cfg := newServiceConfig(t, nil)
	conn := testhelpers.DialAPI(t, startService(t, cfg))

	resp, result, err := testhelpers.SendJSONRPC(conn, models.MethodHistory, nil)
	require.NoError(t, err)
	require.Nil(t, resp.Error)
	assert.JSONEq(t, `{"samples":[]}`, string(result))
}

func TestStart_ListenError(t *testing.T) {
	t.Setenv(config.CfgEnv, "")
	cfg := newServiceConfig(t, func(v *config.Values) {
		v.History.Enabled = boolPtr(false)
		v.Service.APIListen = "256.0.0.1:1"
	})

	_, err := Start(cfg, helpers.Paths{DataDir: t.TempDir()}, &Options{
		Sources:       []linkwatch.Source{},
		NoConfigWatch: true,
	})
	require.Error(t, err)
}

func TestConfigWatcher_ReloadsOnWrite(t *testing.T) {
	t.Setenv(config.CfgEnv, "")
	dir := t.TempDir()
	cfg, err := config.NewConfig(dir, config.BaseDefaults)
	require.NoError(t, err)

	var reloads atomic.Int32
	w, err := watchConfig(cfg, func() { reloads.Add(1) })
	require.NoError(t, err)
	t.Cleanup(w.Stop)

	body, err := os.ReadFile(filepath.Join(dir, config.CfgFile))
	require.NoError(t, err)
	body = append(body, []byte("\ndebug_logging = true\n")...)
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.CfgFile), body, 0o600))

	require.Eventually(t, func() bool {
		return reloads.Load() > 0
	}, 5*time.Second, 20*time.Millisecond)
	assert.True(t, cfg.DebugLogging())
}

func TestConfigWatcher_IgnoresOtherFiles(t *testing.T) {
	t.Setenv(config.CfgEnv, "")
	dir := t.TempDir()
	cfg, err := config.NewConfig(dir, config.BaseDefaults)
	require.NoError(t, err)

	var reloads atomic.Int32
	w, err := watchConfig(cfg, func() { reloads.Add(1) })
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0o600))
	time.Sleep(2 * reloadDebounce)
	w.Stop()
	w.Stop()

	assert.Equal(t, int32(0), reloads.Load())
}
