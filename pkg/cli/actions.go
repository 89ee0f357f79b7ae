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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/pcboven/pcboven-core/pkg/api/client"
	"github.com/pcboven/pcboven-core/pkg/database"
	"github.com/pcboven/pcboven-core/pkg/database/historydb"
	"github.com/pcboven/pcboven-core/pkg/helpers"
	"github.com/pcboven/pcboven-core/pkg/oven/models"
)

var ErrInvalidSwitch = errors.New("expected on or off")

func parseSwitch(s string) (bool, error) {
	switch {
	case helpers.IsTruthy(s):
		return true, nil
	case helpers.IsFalsey(s):
		return false, nil
	default:
		return false, fmt.Errorf("%w, got %q", ErrInvalidSwitch, s)
	}
}

func callJSON(ctx context.Context, api client.APIClient, method string, params any) (string, error) {
	data := ""
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return "", fmt.Errorf("error encoding params: %w", err)
		}
		data = string(b)
	}
	resp, err := api.Call(ctx, method, data)
	if err != nil {
		return "", fmt.Errorf("%s: %w", method, err)
	}
	return resp, nil
}

// runAPI sends "method" or "method:params" and prints the raw result.
func runAPI(ctx context.Context, api client.APIClient, arg string, out io.Writer) error {
	method, params, _ := strings.Cut(arg, ":")
	resp, err := api.Call(ctx, method, params)
	if err != nil {
		return fmt.Errorf("error calling API: %w", err)
	}
	_, _ = fmt.Fprintln(out, resp)
	return nil
}

func setTarget(ctx context.Context, api client.APIClient, target int) error {
	if target < math.MinInt16 || target > math.MaxInt16 {
		return fmt.Errorf("target %d out of range", target)
	}
	temp := int16(target)
	_, err := callJSON(ctx, api, models.MethodTarget, models.TargetParams{Temperature: &temp})
	return err
}

func setFilaments(ctx context.Context, api client.APIClient, value string) error {
	on, err := parseSwitch(value)
	if err != nil {
		return err
	}
	method := models.MethodFilamentsDisable
	if on {
		method = models.MethodFilamentsEnable
	}
	_, err = callJSON(ctx, api, method, nil)
	return err
}

func setSimulation(ctx context.Context, api client.APIClient, value string) error {
	on, err := parseSwitch(value)
	if err != nil {
		return err
	}
	_, err = callJSON(ctx, api, models.MethodSimulation, models.SimulationParams{Enabled: &on})
	return err
}

type historyResult struct {
	Samples []database.Sample `json:"samples"`
}

// exportHistory writes recent samples as CSV to path, or to out when path
// is "-".
func exportHistory(ctx context.Context, api client.APIClient, limit int, path string, out io.Writer) error {
	var params any
	if limit > 0 {
		params = models.HistoryParams{Limit: limit}
	}
	resp, err := callJSON(ctx, api, models.MethodHistory, params)
	if err != nil {
		return err
	}

	var result historyResult
	if err := json.Unmarshal([]byte(resp), &result); err != nil {
		return fmt.Errorf("error decoding history: %w", err)
	}

	if path == "-" {
		return historydb.WriteCSV(out, result.Samples)
	}

	f, err := os.Create(path) //nolint:gosec // path comes from the user
	if err != nil {
		return fmt.Errorf("error creating export file: %w", err)
	}
	if err := historydb.WriteCSV(f, result.Samples); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("error closing export file: %w", err)
	}
	_, _ = fmt.Fprintf(out, "Exported %d samples to %s\n", len(result.Samples), path)
	return nil
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

// FormatState renders one line of the -watch output.
func FormatState(now time.Time, kind models.ConnectionKind, s models.OvenState) string {
	line := fmt.Sprintf(
		"%s %-12s probe=%d internal=%d target=%d filaments=%s top=%s bottom=%s",
		now.Format("15:04:05"),
		kind,
		s.ProbeTemp,
		s.InternalTemp,
		s.TargetTemp,
		onOff(s.EnableFilaments),
		onOff(s.FilamentTopOn),
		onOff(s.FilamentBottomOn),
	)
	if s.HasFault() {
		line += " FAULT"
	}
	return line
}
