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
	"encoding/json"
	"net/http"

	"github.com/carebridge/carebridge/pkg/metrics"
)

// RegisterHandler creates an account and signs the new user in.
func (s *Server) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	sess, err := s.requestSession(w, r)
	if err != nil {
		return
	}

	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, ErrInvalidRequest, http.StatusBadRequest)
		return
	}

	user, err := s.auth.Register(req.Username, req.Password, req.Name, req.Email)
	if err != nil {
		metrics.RecordRegistration(false)
		handleError(w, err)
		return
	}
	metrics.RecordRegistration(true)

	if err := s.sessions.Authenticate(w, sess, user.ID); err != nil {
		s.logger.Error("Failed to authenticate session after registration", "error", err.Error())
		writeError(w, ErrInternalError, http.StatusInternalServerError)
		return
	}

	writeJSON(w, toUserResponse(user), http.StatusCreated)
}

// LoginHandler verifies a password and binds the session to the user.
// All failures share one message so usernames cannot be enumerated.
func (s *Server) LoginHandler(w http.ResponseWriter, r *http.Request) {
	sess, err := s.requestSession(w, r)
	if err != nil {
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, ErrInvalidRequest, http.StatusBadRequest)
		return
	}

	user, err := s.auth.Login(req.Username, req.Password)
	if err != nil {
		metrics.RecordLogin(false)
		handleError(w, err)
		return
	}

	if err := s.sessions.Authenticate(w, sess, user.ID); err != nil {
		s.logger.Error("Failed to authenticate session", "error", err.Error())
		writeError(w, ErrInternalError, http.StatusInternalServerError)
		return
	}
	metrics.RecordLogin(true)

	writeJSON(w, toUserResponse(user), http.StatusOK)
}

// LogoutHandler destroys the session. Logging out twice is fine.
func (s *Server) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())

	if err := s.sessions.Destroy(w, sess); err != nil {
		s.logger.Error("Failed to destroy session", "error", err.Error())
		writeError(w, ErrInternalError, http.StatusInternalServerError)
		return
	}

	writeJSON(w, StatusResponse{Success: true}, http.StatusOK)
}

// CurrentUserHandler returns the authenticated user.
func (s *Server) CurrentUserHandler(w http.ResponseWriter, r *http.Request) {
	sess, err := s.requestSession(w, r)
	if err != nil {
		return
	}

	user, err := s.store.GetUser(sess.UserID)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, toUserResponse(user), http.StatusOK)
}
