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

	"github.com/go-chi/chi/v5"

	"github.com/carebridge/carebridge/pkg/metrics"
)

// SetPinHandler sets or replaces the PIN guarding an emergency-info
// resource. Setting the PIN unlocks the resource for the caller.
func (s *Server) SetPinHandler(w http.ResponseWriter, r *http.Request) {
	resourceID := chi.URLParam(r, "id")

	var req PinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, ErrInvalidRequest, http.StatusBadRequest)
		return
	}

	if err := s.pins.SetPin(w, resourceID, req.Pin); err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, StatusResponse{Success: true}, http.StatusOK)
}

// VerifyPinHandler checks a submitted PIN. A wrong PIN is a normal
// outcome, not an error: the client gets 200 with verified false.
func (s *Server) VerifyPinHandler(w http.ResponseWriter, r *http.Request) {
	resourceID := chi.URLParam(r, "id")

	var req PinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, ErrInvalidRequest, http.StatusBadRequest)
		return
	}

	verified, err := s.pins.VerifyPin(w, resourceID, req.Pin)
	if err != nil {
		metrics.RecordPinVerification(false)
		handleError(w, err)
		return
	}
	metrics.RecordPinVerification(verified)

	writeJSON(w, VerifiedResponse{Verified: verified}, http.StatusOK)
}

// CheckVerifiedHandler reports whether the caller holds a valid unlock
// for the resource. It never touches the PIN itself.
func (s *Server) CheckVerifiedHandler(w http.ResponseWriter, r *http.Request) {
	resourceID := chi.URLParam(r, "id")

	writeJSON(w, VerifiedResponse{Verified: s.pins.Unlocked(r, resourceID)}, http.StatusOK)
}

// LockHandler discards the caller's unlock for the resource.
func (s *Server) LockHandler(w http.ResponseWriter, r *http.Request) {
	resourceID := chi.URLParam(r, "id")

	if err := s.pins.Lock(w, resourceID); err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, StatusResponse{Success: true}, http.StatusOK)
}
