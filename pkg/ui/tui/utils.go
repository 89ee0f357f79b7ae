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
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// RequestTimeout bounds API calls from the TUI. They go to localhost, so
// this is shorter than the API's own timeout.
const RequestTimeout = 5 * time.Second

func tuiContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), RequestTimeout)
}

func CenterWidget(width, height int, p tview.Primitive) tview.Primitive {
	return tview.NewFlex().
		AddItem(nil, 0, 1, false).
		AddItem(tview.NewFlex().
			SetDirection(tview.FlexRow).
			AddItem(nil, 0, 1, false).
			AddItem(p, height, 1, true).
			AddItem(nil, 0, 1, false), width, 1, true).
		AddItem(nil, 0, 1, false)
}

func SetTheme(theme *tview.Theme) {
	theme.BorderColor = tcell.ColorLightYellow
	theme.PrimaryTextColor = tcell.ColorWhite
	theme.ContrastSecondaryTextColor = tcell.ColorFuchsia
	theme.PrimitiveBackgroundColor = tcell.ColorDarkBlue
	theme.ContrastBackgroundColor = tcell.ColorBlue
	theme.InverseTextColor = tcell.ColorDarkBlue
}

func setupButtonNavigation(app *tview.Application, buttons ...tview.Primitive) {
	for i, b := range buttons {
		prev := buttons[(i-1+len(buttons))%len(buttons)]
		next := buttons[(i+1)%len(buttons)]

		capture := func(event *tcell.EventKey) *tcell.EventKey {
			switch event.Key() { //nolint:exhaustive
			case tcell.KeyUp, tcell.KeyBacktab:
				app.SetFocus(prev)
				return nil
			case tcell.KeyDown, tcell.KeyTab:
				app.SetFocus(next)
				return nil
			case tcell.KeyEscape:
				app.Stop()
				return nil
			}
			return event
		}

		switch w := b.(type) {
		case *tview.Button:
			w.SetInputCapture(capture)
		case *tview.InputField:
			w.SetInputCapture(capture)
		}
	}
}
