// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of carebridge.
//
// carebridge is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T) (*Limiter, *time.Time) {
	t.Helper()

	l := New(&Config{Enabled: true})
	t.Cleanup(l.Stop)

	// Deterministic clock.
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestLoginWindow_EnforcesLimit(t *testing.T) {
	l, _ := newTestLimiter(t)

	for i := 0; i < 10; i++ {
		ok, _ := l.AllowLogin("10.0.0.1")
		require.True(t, ok, "attempt %d should be allowed", i+1)
	}

	ok, retryAfter := l.AllowLogin("10.0.0.1")
	assert.False(t, ok, "11th attempt must be rejected")
	assert.Greater(t, retryAfter, time.Duration(0))
	assert.LessOrEqual(t, retryAfter, 15*time.Minute)
}

func TestLoginWindow_ResetsAfterExpiry(t *testing.T) {
	l, now := newTestLimiter(t)

	for i := 0; i < 11; i++ {
		l.AllowLogin("10.0.0.1")
	}
	ok, _ := l.AllowLogin("10.0.0.1")
	require.False(t, ok)

	*now = now.Add(15 * time.Minute)

	ok, _ = l.AllowLogin("10.0.0.1")
	assert.True(t, ok, "window must reset after 15 minutes")
}

func TestRegisterWindow_EnforcesLimit(t *testing.T) {
	l, _ := newTestLimiter(t)

	for i := 0; i < 5; i++ {
		ok, _ := l.AllowRegister("10.0.0.2")
		require.True(t, ok)
	}

	ok, _ := l.AllowRegister("10.0.0.2")
	assert.False(t, ok, "6th registration must be rejected")
}

func TestWindows_AreIndependent(t *testing.T) {
	l, _ := newTestLimiter(t)

	// Exhaust the login window.
	for i := 0; i < 11; i++ {
		l.AllowLogin("10.0.0.3")
	}
	ok, _ := l.AllowLogin("10.0.0.3")
	require.False(t, ok)

	// Registration and API for the same client are unaffected.
	ok, _ = l.AllowRegister("10.0.0.3")
	assert.True(t, ok)
	assert.True(t, l.AllowAPI("10.0.0.3"))
}

func TestClients_AreIndependent(t *testing.T) {
	l, _ := newTestLimiter(t)

	for i := 0; i < 11; i++ {
		l.AllowLogin("10.0.0.4")
	}
	ok, _ := l.AllowLogin("10.0.0.4")
	require.False(t, ok)

	ok, _ = l.AllowLogin("10.0.0.5")
	assert.True(t, ok, "a different client has its own window")
}

func TestAPIGuard_AllowsBurstThenLimits(t *testing.T) {
	l, _ := newTestLimiter(t)

	for i := 0; i < 300; i++ {
		require.True(t, l.AllowAPI("10.0.0.6"), "request %d within burst", i+1)
	}
	assert.False(t, l.AllowAPI("10.0.0.6"), "301st immediate request must be rejected")
}

func TestDisabledLimiter_AllowsEverything(t *testing.T) {
	l := New(&Config{Enabled: false})

	for i := 0; i < 1000; i++ {
		ok, _ := l.AllowLogin("10.0.0.7")
		require.True(t, ok)
	}
	assert.True(t, l.AllowAPI("10.0.0.7"))
}

func TestCleanup_RemovesIdleClients(t *testing.T) {
	l, now := newTestLimiter(t)

	l.AllowLogin("10.0.0.8")
	*now = now.Add(31 * time.Minute)
	l.cleanup()

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.Empty(t, l.login)
	assert.Empty(t, l.lastSeen)
}

func TestAPIMiddleware_Rejects(t *testing.T) {
	l, _ := newTestLimiter(t)
	handler := APIMiddleware(l)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	var last int
	for i := 0; i < 301; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/anything", nil)
		req.RemoteAddr = "10.0.0.9:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		last = rec.Code
	}

	assert.Equal(t, http.StatusTooManyRequests, last)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:5555"
	assert.Equal(t, "192.0.2.1", ClientIP(req))

	req.Header.Set("X-Real-IP", "198.51.100.7")
	assert.Equal(t, "198.51.100.7", ClientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 198.51.100.7")
	assert.Equal(t, "203.0.113.9", ClientIP(req))
}
