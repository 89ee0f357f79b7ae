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

package tui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/gdamore/tcell/v2"
	"github.com/pcboven/pcboven-core/pkg/api/client"
	"github.com/pcboven/pcboven-core/pkg/config"
	"github.com/pcboven/pcboven-core/pkg/helpers/syncutil"
	"github.com/pcboven/pcboven-core/pkg/oven/models"
	"github.com/rivo/tview"
	"github.com/rs/zerolog/log"
)

var ErrInvalidTarget = errors.New("target must be a whole number")

// Dashboard shows the live oven state and sends commands through the API.
type Dashboard struct {
	api  client.APIClient
	kind models.ConnectionKind
	mu   syncutil.Mutex
}

func NewDashboard(api client.APIClient) *Dashboard {
	return &Dashboard{api: api}
}

func (d *Dashboard) call(ctx context.Context, method string, params any) (string, error) {
	data := ""
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return "", fmt.Errorf("error encoding params: %w", err)
		}
		data = string(b)
	}
	resp, err := d.api.Call(ctx, method, data)
	if err != nil {
		return "", fmt.Errorf("%s: %w", method, err)
	}
	return resp, nil
}

// Refresh reads the connection and state and renders them.
func (d *Dashboard) Refresh(ctx context.Context) (string, error) {
	resp, err := d.call(ctx, models.MethodConnected, nil)
	if err != nil {
		return "", err
	}
	var conn models.ConnectedResponse
	if err := json.Unmarshal([]byte(resp), &conn); err != nil {
		return "", fmt.Errorf("error decoding connection: %w", err)
	}

	resp, err = d.call(ctx, models.MethodState, nil)
	if err != nil {
		return "", err
	}
	var state models.OvenState
	if err := json.Unmarshal([]byte(resp), &state); err != nil {
		return "", fmt.Errorf("error decoding state: %w", err)
	}

	d.mu.Lock()
	d.kind = conn.Kind
	d.mu.Unlock()

	return renderStatus(conn.Kind, state), nil
}

func (d *Dashboard) Kind() models.ConnectionKind {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.kind
}

func (d *Dashboard) SubmitTarget(ctx context.Context, text string) error {
	v, err := strconv.ParseInt(text, 10, 16)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidTarget, text)
	}
	temp := int16(v)
	_, err = d.call(ctx, models.MethodTarget, models.TargetParams{Temperature: &temp})
	return err
}

func (d *Dashboard) SetFilaments(ctx context.Context, on bool) error {
	method := models.MethodFilamentsDisable
	if on {
		method = models.MethodFilamentsEnable
	}
	_, err := d.call(ctx, method, nil)
	return err
}

// ToggleSimulation switches simulation off when the last refresh saw a
// simulated oven and on otherwise.
func (d *Dashboard) ToggleSimulation(ctx context.Context) error {
	enable := d.Kind() != models.Simulated
	_, err := d.call(ctx, models.MethodSimulation, models.SimulationParams{Enabled: &enable})
	return err
}

func onOff(v bool) string {
	if v {
		return "[green]on[-]"
	}
	return "off"
}

func renderStatus(kind models.ConnectionKind, s models.OvenState) string {
	kindText := kind.String()
	switch kind {
	case models.Connected:
		kindText = "[green]" + kindText + "[-]"
	case models.Simulated:
		kindText = "[yellow]" + kindText + "[-]"
	case models.Disconnected:
	}

	text := fmt.Sprintf(
		"[::b]Oven:[::-]      %s\n"+
			"[::b]Probe:[::-]     %d\n"+
			"[::b]Internal:[::-]  %d\n"+
			"[::b]Target:[::-]    %d\n"+
			"[::b]Filaments:[::-] %s (top %s, bottom %s)",
		kindText,
		s.ProbeTemp,
		s.InternalTemp,
		s.TargetTemp,
		onOff(s.EnableFilaments),
		onOff(s.FilamentTopOn),
		onOff(s.FilamentBottomOn),
	)
	if s.HasFault() {
		text += "\n[red::b]Thermocouple fault[-::-]"
	}
	return text
}

// watch redraws status after every change notification until ctx ends.
func (d *Dashboard) watch(ctx context.Context, app *tview.Application, status, help *tview.TextView) {
	for {
		err := d.api.WaitNotification(ctx, -1, models.NotificationChanged)
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, client.ErrRequestTimeout) {
			continue
		} else if err != nil {
			log.Warn().Err(err).Msg("dashboard lost the api connection")
			app.QueueUpdateDraw(func() {
				help.SetText("[red]Lost connection to the service[-]")
			})
			return
		}

		rctx, cancel := tuiContext()
		text, err := d.Refresh(rctx)
		cancel()
		app.QueueUpdateDraw(func() {
			if err != nil {
				help.SetText("[red]" + err.Error() + "[-]")
				return
			}
			status.SetText(text)
		})
	}
}

// BuildDashboard lays out the dashboard. The returned func starts live
// updates and must be called once the app is about to run.
func BuildDashboard(d *Dashboard, isRunning func() bool) (*tview.Application, func(ctx context.Context)) {
	app := tview.NewApplication()
	SetTheme(&tview.Styles)

	status := tview.NewTextView().SetDynamicColors(true)
	help := tview.NewTextView().SetDynamicColors(true)

	report := func(err error, ok string) {
		if err != nil {
			help.SetText("[red]" + err.Error() + "[-]")
			return
		}
		help.SetText(ok)
	}

	if isRunning() {
		ctx, cancel := tuiContext()
		text, err := d.Refresh(ctx)
		cancel()
		if err != nil {
			status.SetText("Error reading oven state:\n" + err.Error())
		} else {
			status.SetText(text)
		}
	} else {
		status.SetText("[red]Service not running.[-] Check logs for more information.")
	}

	target := tview.NewInputField().
		SetLabel("Target ").
		SetFieldWidth(8).
		SetAcceptanceFunc(tview.InputFieldInteger)
	target.SetDoneFunc(func(_ tcell.Key) {
		ctx, cancel := tuiContext()
		defer cancel()
		report(d.SubmitTarget(ctx, target.GetText()), "Target sent.")
	})

	filamentsOn := tview.NewButton("Filaments on").SetSelectedFunc(func() {
		ctx, cancel := tuiContext()
		defer cancel()
		report(d.SetFilaments(ctx, true), "Filaments enabled.")
	})
	filamentsOff := tview.NewButton("Filaments off").SetSelectedFunc(func() {
		ctx, cancel := tuiContext()
		defer cancel()
		report(d.SetFilaments(ctx, false), "Filaments disabled.")
	})
	simulate := tview.NewButton("Simulation").SetSelectedFunc(func() {
		ctx, cancel := tuiContext()
		defer cancel()
		report(d.ToggleSimulation(ctx), "Simulation toggled.")
	})
	exit := tview.NewButton("Exit").SetSelectedFunc(app.Stop)

	setupButtonNavigation(app, target, filamentsOn, filamentsOff, simulate, exit)

	controls := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(target, 1, 1, true).
		AddItem(nil, 1, 1, false).
		AddItem(filamentsOn, 1, 1, false).
		AddItem(nil, 1, 1, false).
		AddItem(filamentsOff, 1, 1, false).
		AddItem(nil, 1, 1, false).
		AddItem(simulate, 1, 1, false).
		AddItem(nil, 1, 1, false).
		AddItem(exit, 1, 1, false)

	display := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(status, 0, 1, false).
		AddItem(help, 1, 1, false)

	main := tview.NewFlex().
		AddItem(display, 0, 1, false).
		AddItem(nil, 1, 1, false).
		AddItem(controls, 18, 1, true)
	main.SetTitle("PCBoven v" + config.AppVersion).
		SetBorder(true).
		SetTitleAlign(tview.AlignCenter)

	app.SetRoot(CenterWidget(60, 13, main), true)

	start := func(ctx context.Context) {
		go d.watch(ctx, app, status, help)
	}
	return app, start
}

// Run shows the dashboard until the user exits.
func Run(api client.APIClient, isRunning func() bool) error {
	d := NewDashboard(api)
	app, start := BuildDashboard(d, isRunning)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	start(ctx)

	if err := app.Run(); err != nil {
		return fmt.Errorf("failed to run dashboard: %w", err)
	}
	return nil
}
