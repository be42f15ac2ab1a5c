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
	"errors"
	"log"
	"net/http"

	"github.com/carebridge/carebridge/internal/auth"
	"github.com/carebridge/carebridge/internal/store"
	"github.com/carebridge/carebridge/pkg/pingate"
	"github.com/carebridge/carebridge/pkg/session"
	"github.com/carebridge/carebridge/pkg/webauthn"
)

// Surface errors raised by the handlers themselves.
var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrNotFound       = errors.New("not found")
	ErrInternalError  = errors.New("internal server error")
)

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, err error, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	resp := ErrorResponse{
		Error: err.Error(),
		Code:  statusCode,
	}
	if encErr := json.NewEncoder(w).Encode(resp); encErr != nil {
		log.Printf("Failed to encode error response: %v", encErr)
	}
}

// writeErrorMessage writes a JSON error response with a fixed
// client-facing message, independent of the underlying error text.
func writeErrorMessage(w http.ResponseWriter, message string, statusCode int) {
	writeError(w, errors.New(message), statusCode)
}

// mapErrorToStatusCode converts the service error taxonomy into HTTP
// status codes. This is the single place that policy lives; handlers
// never pick status codes for service errors themselves.
func mapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrDuplicateUsername):
		return http.StatusConflict
	case errors.Is(err, auth.ErrWeakPassword),
		errors.Is(err, auth.ErrInvalidUsername),
		errors.Is(err, session.ErrChallengeMissing),
		errors.Is(err, webauthn.ErrVerificationFailed),
		errors.Is(err, webauthn.ErrUnknownCredential),
		errors.Is(err, webauthn.ErrCounterRegression),
		errors.Is(err, pingate.ErrInvalidPinFormat),
		errors.Is(err, pingate.ErrInvalidResource),
		errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, pingate.ErrPinNotSet),
		errors.Is(err, store.ErrUserNotFound),
		errors.Is(err, store.ErrCredentialNotFound),
		errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// handleError maps the error to a status code and writes the response.
// Internal errors never leak their text to the client.
func handleError(w http.ResponseWriter, err error) {
	statusCode := mapErrorToStatusCode(err)
	if statusCode == http.StatusInternalServerError {
		writeError(w, ErrInternalError, statusCode)
		return
	}
	writeError(w, err, statusCode)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Failed to encode JSON response: %v", err)
	}
}
