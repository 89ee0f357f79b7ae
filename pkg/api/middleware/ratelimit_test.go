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
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIPRateLimiter_Burst(t *testing.T) {
	t.Parallel()
	limiter := NewIPRateLimiter(clockwork.NewFakeClock())

	for i := range BurstSize {
		assert.True(t, limiter.Allow("192.168.1.100"), "request %d within burst", i+1)
	}
	assert.False(t, limiter.Allow("192.168.1.100"))
	assert.True(t, limiter.Allow("192.168.1.101"), "other clients keep their own bucket")
}

func TestIPRateLimiter_Refills(t *testing.T) {
	t.Parallel()
	clock := clockwork.NewFakeClock()
	limiter := NewIPRateLimiter(clock)

	for range BurstSize {
		limiter.Allow("10.0.0.1")
	}
	require.False(t, limiter.Allow("10.0.0.1"))

	clock.Advance(time.Second)
	assert.True(t, limiter.Allow("10.0.0.1"))
}

func TestIPRateLimiter_SameIPReuse(t *testing.T) {
	t.Parallel()
	limiter := NewIPRateLimiter(nil)
	assert.Same(t, limiter.GetLimiter("10.0.0.1"), limiter.GetLimiter("10.0.0.1"))
}

func TestIPRateLimiter_Cleanup(t *testing.T) {
	t.Parallel()
	clock := clockwork.NewFakeClock()
	limiter := NewIPRateLimiter(clock)

	limiter.GetLimiter("10.0.0.1")
	clock.Advance(limiterMaxAge - time.Minute)
	limiter.GetLimiter("10.0.0.2")
	clock.Advance(2 * time.Minute)

	limiter.Cleanup()
	assert.Equal(t, 1, limiter.Len())
}

func TestHTTPRateLimitMiddleware(t *testing.T) {
	t.Parallel()
	limiter := NewIPRateLimiter(clockwork.NewFakeClock())
	handler := HTTPRateLimitMiddleware(limiter)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := map[int]int{}
	for range BurstSize + 5 {
		req := httptest.NewRequest(http.MethodGet, "/api/state", http.NoBody)
		req.RemoteAddr = "192.168.1.50:51234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes[rec.Code]++
	}

	assert.Equal(t, BurstSize, codes[http.StatusOK])
	assert.Equal(t, 5, codes[http.StatusTooManyRequests])
}
