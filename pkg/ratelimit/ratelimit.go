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

// Package ratelimit guards the authentication surface against brute
// force. Login and registration use strict fixed windows per client
// address; all other API traffic passes through a coarse token-bucket
// abuse guard. The three counters are independent: exhausting one
// never resets another.
package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// WindowConfig describes one fixed-window counter class.
type WindowConfig struct {
	// Max is the number of requests allowed per window.
	Max int `yaml:"max" json:"max"`

	// Window is the fixed window length. The counter resets when the
	// window elapses.
	Window time.Duration `yaml:"window" json:"window"`
}

// Config holds rate limiter configuration.
type Config struct {
	// Enabled controls whether rate limiting is active.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Login limits login attempts. Default: 10 per 15 minutes.
	Login WindowConfig `yaml:"login" json:"login"`

	// Register limits account registrations. Default: 5 per 60 minutes.
	Register WindowConfig `yaml:"register" json:"register"`

	// API limits all other API traffic. Default: 300 per 15 minutes,
	// enforced as a sustained token-bucket rate with burst Max.
	API WindowConfig `yaml:"api" json:"api"`

	// CleanupInterval controls how often idle clients are removed.
	// Defaults to 10 minutes.
	CleanupInterval time.Duration `yaml:"cleanup_interval" json:"cleanup_interval"`

	// MaxIdle is how long a client can be idle before cleanup.
	// Defaults to 30 minutes.
	MaxIdle time.Duration `yaml:"max_idle" json:"max_idle"`
}

// SetDefaults fills unset fields with the documented defaults.
func (c *Config) SetDefaults() {
	if c.Login.Max == 0 {
		c.Login = WindowConfig{Max: 10, Window: 15 * time.Minute}
	}
	if c.Register.Max == 0 {
		c.Register = WindowConfig{Max: 5, Window: 60 * time.Minute}
	}
	if c.API.Max == 0 {
		c.API = WindowConfig{Max: 300, Window: 15 * time.Minute}
	}
	if c.CleanupInterval == 0 {
		c.CleanupInterval = 10 * time.Minute
	}
	if c.MaxIdle == 0 {
		c.MaxIdle = 30 * time.Minute
	}
}

// window is a fixed-window counter: count since start, reset on expiry.
type window struct {
	count int
	start time.Time
}

// Limiter implements per-client rate limiting with independent counter
// classes. All mutation happens behind a single mutex.
type Limiter struct {
	mu       sync.Mutex
	login    map[string]*window
	register map[string]*window
	api      map[string]*rate.Limiter
	lastSeen map[string]time.Time

	cfg     Config
	enabled bool

	stopCleanup chan struct{}
	now         func() time.Time
}

// New creates a rate limiter with the given configuration.
func New(cfg *Config) *Limiter {
	if cfg == nil {
		cfg = &Config{Enabled: false}
	}
	cfg.SetDefaults()

	l := &Limiter{
		login:       make(map[string]*window),
		register:    make(map[string]*window),
		api:         make(map[string]*rate.Limiter),
		lastSeen:    make(map[string]time.Time),
		cfg:         *cfg,
		enabled:     cfg.Enabled,
		stopCleanup: make(chan struct{}),
		now:         time.Now,
	}

	if cfg.Enabled {
		go l.cleanupWorker()
	}

	return l
}

// AllowLogin checks the login window for the client. When the request
// is rejected it also returns the duration until the window resets.
func (l *Limiter) AllowLogin(clientID string) (bool, time.Duration) {
	if !l.enabled {
		return true, 0
	}
	return l.allowWindow(l.login, clientID, l.cfg.Login)
}

// AllowRegister checks the registration window for the client.
func (l *Limiter) AllowRegister(clientID string) (bool, time.Duration) {
	if !l.enabled {
		return true, 0
	}
	return l.allowWindow(l.register, clientID, l.cfg.Register)
}

// AllowAPI checks the coarse abuse guard for the client.
func (l *Limiter) AllowAPI(clientID string) bool {
	if !l.enabled {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.api[clientID]
	if !ok {
		perSecond := rate.Limit(float64(l.cfg.API.Max) / l.cfg.API.Window.Seconds())
		lim = rate.NewLimiter(perSecond, l.cfg.API.Max)
		l.api[clientID] = lim
	}
	l.lastSeen[clientID] = l.now()

	return lim.Allow()
}

// allowWindow increments the client's fixed-window counter, resetting
// the window if it has elapsed.
func (l *Limiter) allowWindow(class map[string]*window, clientID string, cfg WindowConfig) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.lastSeen[clientID] = now

	w, ok := class[clientID]
	if !ok || now.Sub(w.start) >= cfg.Window {
		w = &window{start: now}
		class[clientID] = w
	}

	w.count++
	if w.count > cfg.Max {
		return false, w.start.Add(cfg.Window).Sub(now)
	}
	return true, 0
}

// cleanupWorker periodically removes idle clients from memory.
func (l *Limiter) cleanupWorker() {
	ticker := time.NewTicker(l.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.cleanup()
		case <-l.stopCleanup:
			return
		}
	}
}

// cleanup removes clients that haven't made requests recently.
func (l *Limiter) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for clientID, lastSeen := range l.lastSeen {
		if now.Sub(lastSeen) > l.cfg.MaxIdle {
			delete(l.login, clientID)
			delete(l.register, clientID)
			delete(l.api, clientID)
			delete(l.lastSeen, clientID)
		}
	}
}

// Stop stops the cleanup worker.
func (l *Limiter) Stop() {
	close(l.stopCleanup)
}

// IsEnabled returns whether rate limiting is enabled.
func (l *Limiter) IsEnabled() bool {
	return l.enabled
}

// Stats returns current rate limiter statistics.
func (l *Limiter) Stats() map[string]interface{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	return map[string]interface{}{
		"enabled":        l.enabled,
		"active_clients": len(l.lastSeen),
		"login_max":      l.cfg.Login.Max,
		"register_max":   l.cfg.Register.Max,
		"api_max":        l.cfg.API.Max,
	}
}

// APIMiddleware returns an HTTP middleware enforcing the coarse abuse
// guard, keyed by client IP. The strict login/register windows are
// checked inside their handlers so failures can carry Retry-After.
func APIMiddleware(limiter *Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.AllowAPI(ClientIP(r)) {
				http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP extracts the client IP from the request, honoring
// X-Forwarded-For and X-Real-IP headers for proxied requests.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// Take the first IP (original client)
		if idx := strings.IndexByte(xff, ','); idx >= 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
