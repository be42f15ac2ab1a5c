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
	"encoding/base64"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-webauthn/webauthn/protocol"

	"github.com/carebridge/carebridge/pkg/metrics"
	"github.com/carebridge/carebridge/pkg/session"
	"github.com/carebridge/carebridge/pkg/webauthn"
)

// PasskeyStatusHandler reports whether the user has any passkeys.
func (s *Server) PasskeyStatusHandler(w http.ResponseWriter, r *http.Request) {
	sess, err := s.requestSession(w, r)
	if err != nil {
		return
	}

	registered, err := s.passkeys.Registered(sess.UserID)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, PasskeyStatusResponse{Registered: registered}, http.StatusOK)
}

// PasskeyRegisterStartHandler begins a registration ceremony and stores
// the challenge in the session.
func (s *Server) PasskeyRegisterStartHandler(w http.ResponseWriter, r *http.Request) {
	sess, err := s.requestSession(w, r)
	if err != nil {
		return
	}

	user, err := s.store.GetUser(sess.UserID)
	if err != nil {
		handleError(w, err)
		return
	}

	options, ceremony, err := s.passkeys.BeginRegistration(user)
	if err != nil {
		s.logger.Error("Failed to begin passkey registration", "error", err.Error())
		writeError(w, ErrInternalError, http.StatusInternalServerError)
		return
	}

	if err := s.sessions.SetCeremony(sess, session.CeremonyRegistration, ceremony); err != nil {
		s.logger.Error("Failed to store registration challenge", "error", err.Error())
		writeError(w, ErrInternalError, http.StatusInternalServerError)
		return
	}

	writeJSON(w, options, http.StatusOK)
}

// PasskeyRegisterFinishHandler verifies the attestation and stores the
// credential. The challenge is consumed before verification, so a
// replayed finish fails with a challenge error rather than minting a
// duplicate credential.
func (s *Server) PasskeyRegisterFinishHandler(w http.ResponseWriter, r *http.Request) {
	sess, err := s.requestSession(w, r)
	if err != nil {
		return
	}

	user, err := s.store.GetUser(sess.UserID)
	if err != nil {
		handleError(w, err)
		return
	}

	response, err := protocol.ParseCredentialCreationResponseBody(r.Body)
	if err != nil {
		metrics.RecordPasskeyCeremony(metrics.CeremonyRegistration, false)
		writeError(w, ErrInvalidRequest, http.StatusBadRequest)
		return
	}

	ceremony, err := s.sessions.TakeCeremony(sess, session.CeremonyRegistration)
	if err != nil {
		metrics.RecordPasskeyCeremony(metrics.CeremonyRegistration, false)
		handleError(w, err)
		return
	}

	name := r.URL.Query().Get("name")
	cred, err := s.passkeys.FinishRegistration(user, *ceremony, response, name)
	if err != nil {
		metrics.RecordPasskeyCeremony(metrics.CeremonyRegistration, false)
		s.logger.Warn("Passkey registration failed", "user_id", user.ID, "error", err.Error())
		writeErrorMessage(w, "verification failed", http.StatusBadRequest)
		return
	}
	metrics.RecordPasskeyCeremony(metrics.CeremonyRegistration, true)

	writeJSON(w, toCredentialResponse(cred), http.StatusCreated)
}

// PasskeyLoginStartHandler begins a discoverable login ceremony.
func (s *Server) PasskeyLoginStartHandler(w http.ResponseWriter, r *http.Request) {
	sess, err := s.requestSession(w, r)
	if err != nil {
		return
	}

	options, ceremony, err := s.passkeys.BeginLogin()
	if err != nil {
		s.logger.Error("Failed to begin passkey login", "error", err.Error())
		writeError(w, ErrInternalError, http.StatusInternalServerError)
		return
	}

	if err := s.sessions.SetCeremony(sess, session.CeremonyAuthentication, ceremony); err != nil {
		s.logger.Error("Failed to store login challenge", "error", err.Error())
		writeError(w, ErrInternalError, http.StatusInternalServerError)
		return
	}

	writeJSON(w, options, http.StatusOK)
}

// PasskeyLoginFinishHandler verifies the assertion and signs the user
// in. Counter regressions are logged distinctly as a cloned-key signal
// but the client only ever sees a generic verification failure.
func (s *Server) PasskeyLoginFinishHandler(w http.ResponseWriter, r *http.Request) {
	sess, err := s.requestSession(w, r)
	if err != nil {
		return
	}

	response, err := protocol.ParseCredentialRequestResponseBody(r.Body)
	if err != nil {
		metrics.RecordPasskeyCeremony(metrics.CeremonyAuthentication, false)
		writeError(w, ErrInvalidRequest, http.StatusBadRequest)
		return
	}

	ceremony, err := s.sessions.TakeCeremony(sess, session.CeremonyAuthentication)
	if err != nil {
		metrics.RecordPasskeyCeremony(metrics.CeremonyAuthentication, false)
		handleError(w, err)
		return
	}

	user, _, err := s.passkeys.FinishLogin(*ceremony, response)
	if err != nil {
		metrics.RecordPasskeyCeremony(metrics.CeremonyAuthentication, false)
		switch {
		case errors.Is(err, webauthn.ErrCounterRegression):
			s.logger.Warn("Signature counter regression, possible cloned authenticator", "error", err.Error())
			writeErrorMessage(w, "verification failed", http.StatusBadRequest)
		case errors.Is(err, webauthn.ErrUnknownCredential):
			writeErrorMessage(w, "unknown credential", http.StatusBadRequest)
		case errors.Is(err, webauthn.ErrVerificationFailed):
			s.logger.Warn("Passkey login failed verification", "error", err.Error())
			writeErrorMessage(w, "verification failed", http.StatusBadRequest)
		default:
			s.logger.Error("Passkey login failed", "error", err.Error())
			writeError(w, ErrInternalError, http.StatusInternalServerError)
		}
		return
	}

	if err := s.sessions.Authenticate(w, sess, user.ID); err != nil {
		s.logger.Error("Failed to authenticate session", "error", err.Error())
		writeError(w, ErrInternalError, http.StatusInternalServerError)
		return
	}
	metrics.RecordPasskeyCeremony(metrics.CeremonyAuthentication, true)

	writeJSON(w, toUserResponse(user), http.StatusOK)
}

// ListCredentialsHandler returns the user's passkeys.
func (s *Server) ListCredentialsHandler(w http.ResponseWriter, r *http.Request) {
	sess, err := s.requestSession(w, r)
	if err != nil {
		return
	}

	creds, err := s.passkeys.Credentials(sess.UserID)
	if err != nil {
		handleError(w, err)
		return
	}

	out := make([]CredentialResponse, len(creds))
	for i, c := range creds {
		out[i] = toCredentialResponse(c)
	}
	writeJSON(w, out, http.StatusOK)
}

// DeleteCredentialHandler removes one of the user's passkeys. Deleting
// an id that is already gone succeeds; deleting another user's
// credential does not reveal that it exists.
func (s *Server) DeleteCredentialHandler(w http.ResponseWriter, r *http.Request) {
	sess, err := s.requestSession(w, r)
	if err != nil {
		return
	}

	credID, err := base64.RawURLEncoding.DecodeString(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, ErrInvalidRequest, http.StatusBadRequest)
		return
	}

	if err := s.store.DeleteCredential(sess.UserID, credID); err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, StatusResponse{Success: true}, http.StatusOK)
}
