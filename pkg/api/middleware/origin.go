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

package middleware

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
)

// OriginChecker returns a WebSocket CheckOrigin func. Requests without an
// Origin header (non-browser clients) and same-origin requests pass. Any
// other origin must match an entry of allowed, where an entry may hold a
// single "*" wildcard, e.g. "http://*.lan".
func OriginChecker(allowed []string) func(*http.Request) bool {
	patterns := make([]string, 0, len(allowed))
	for _, a := range allowed {
		patterns = append(patterns, strings.ToLower(strings.TrimSpace(a)))
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}

		u, err := url.Parse(origin)
		if err == nil && strings.EqualFold(u.Host, r.Host) {
			return true
		}

		origin = strings.ToLower(origin)
		for _, p := range patterns {
			if matchOrigin(p, origin) {
				return true
			}
		}

		log.Warn().
			Str("origin", origin).
			Str("addr", r.RemoteAddr).
			Msg("rejected websocket from foreign origin")
		return false
	}
}

func matchOrigin(pattern, origin string) bool {
	prefix, suffix, wild := strings.Cut(pattern, "*")
	if !wild {
		return pattern == origin
	}
	return len(origin) >= len(prefix)+len(suffix) &&
		strings.HasPrefix(origin, prefix) &&
		strings.HasSuffix(origin, suffix)
}
