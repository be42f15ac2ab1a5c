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

package rest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/carebridge/carebridge/pkg/metrics"
	"github.com/carebridge/carebridge/pkg/ratelimit"
	"github.com/carebridge/carebridge/pkg/session"
)

type contextKey string

const sessionContextKey contextKey = "carebridge.session"

// sessionFromContext returns the request's session, or nil outside the
// session middleware.
func sessionFromContext(ctx context.Context) *session.Session {
	sess, _ := ctx.Value(sessionContextKey).(*session.Session)
	return sess
}

// responseWriter captures the status code written by a handler.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// LoggingMiddleware logs each request with method, path, status, and
// duration.
func (s *Server) LoggingMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := newResponseWriter(w)

			next.ServeHTTP(wrapped, r)

			s.logger.Info("Request completed",
				"method", r.Method,
				"path", r.URL.Path,
				"status", wrapped.statusCode,
				"duration", time.Since(start).String(),
			)
		})
	}
}

// RecoveryMiddleware recovers from panics and returns a 500 error.
func (s *Server) RecoveryMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					s.logger.Error("Panic recovered",
						"method", r.Method,
						"path", r.URL.Path,
						"error", fmt.Sprintf("%v", err),
					)
					writeError(w, ErrInternalError, http.StatusInternalServerError)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// CORSMiddleware allows the configured origins and handles preflight.
func (s *Server) CORSMiddleware() func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(s.origins))
	for _, o := range s.origins {
		allowed[o] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if origin := r.Header.Get("Origin"); allowed[origin] {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				w.Header().Set("Access-Control-Max-Age", "3600")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// SessionMiddleware resolves (or creates) the request's session and
// stores it in the context.
func (s *Server) SessionMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := s.sessions.Issue(w, r)
			if err != nil {
				s.logger.Error("Failed to establish session", "error", err.Error())
				writeError(w, ErrInternalError, http.StatusInternalServerError)
				return
			}

			ctx := context.WithValue(r.Context(), sessionContextKey, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth rejects requests whose session has no authenticated user.
func (s *Server) RequireAuth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := sessionFromContext(r.Context())
			if sess == nil || !sess.Authenticated() {
				writeError(w, ErrUnauthorized, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// APILimitMiddleware applies the coarse per-client request budget.
func (s *Server) APILimitMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if s.limiter != nil && !s.limiter.AllowAPI(ratelimit.ClientIP(r)) {
				metrics.RecordRateLimitRejection(metrics.ClassAPI)
				writeErrorMessage(w, "too many requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// LoginLimitMiddleware applies the strict login-attempt budget. It
// guards password login, passkey login finish, and PIN verification,
// counting the attempt before the credential check so the limiter never
// leaks whether the identity exists.
func (s *Server) LoginLimitMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return s.limitMiddleware(metrics.ClassLogin, next)
}

// RegisterLimitMiddleware applies the strict registration budget.
func (s *Server) RegisterLimitMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return s.limitMiddleware(metrics.ClassRegister, next)
}

func (s *Server) limitMiddleware(class string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.limiter == nil {
			next(w, r)
			return
		}

		clientIP := ratelimit.ClientIP(r)
		var (
			allowed    bool
			retryAfter time.Duration
		)
		switch class {
		case metrics.ClassLogin:
			allowed, retryAfter = s.limiter.AllowLogin(clientIP)
		case metrics.ClassRegister:
			allowed, retryAfter = s.limiter.AllowRegister(clientIP)
		default:
			allowed = true
		}

		if !allowed {
			metrics.RecordRateLimitRejection(class)
			w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
			writeErrorMessage(w, "too many attempts, please try again later", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}

var errSessionRequired = errors.New("session middleware not installed")

// requestSession returns the session or fails the request. A nil
// session here is a wiring bug, not a client error.
func (s *Server) requestSession(w http.ResponseWriter, r *http.Request) (*session.Session, error) {
	sess := sessionFromContext(r.Context())
	if sess == nil {
		s.logger.Error("Missing session in context", "path", r.URL.Path)
		writeError(w, ErrInternalError, http.StatusInternalServerError)
		return nil, errSessionRequired
	}
	return sess, nil
}
