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
	"fmt"
	"io"
	"time"

	"github.com/pcboven/pcboven-core/pkg/api/client"
	"github.com/pcboven/pcboven-core/pkg/oven/models"
	"github.com/rs/zerolog/log"
)

func printState(ctx context.Context, c *client.Conn, out io.Writer) error {
	raw, err := c.Call(ctx, models.MethodConnected, nil)
	if err != nil {
		return fmt.Errorf("error reading connection: %w", err)
	}
	var conn models.ConnectedResponse
	if err := json.Unmarshal(raw, &conn); err != nil {
		return fmt.Errorf("error decoding connection: %w", err)
	}

	raw, err = c.Call(ctx, models.MethodState, nil)
	if err != nil {
		return fmt.Errorf("error reading state: %w", err)
	}
	var state models.OvenState
	if err := json.Unmarshal(raw, &state); err != nil {
		return fmt.Errorf("error decoding state: %w", err)
	}

	_, _ = fmt.Fprintln(out, FormatState(time.Now(), conn.Kind, state))
	return nil
}

// Watch prints the oven state once and then again on every change
// notification, until ctx is done or the service goes away.
func Watch(ctx context.Context, wsURL string, out io.Writer) error {
	c, err := client.Dial(ctx, wsURL)
	if err != nil {
		return err //nolint:wrapcheck // already wrapped by Dial
	}
	defer func() {
		if err := c.Close(); err != nil {
			log.Warn().Err(err).Msg("error closing api connection")
		}
	}()

	if err := printState(ctx, c, out); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-c.Notifications():
			if !ok {
				return client.ErrConnClosed
			}
			if m != models.NotificationChanged {
				continue
			}
			if err := printState(ctx, c, out); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		}
	}
}
