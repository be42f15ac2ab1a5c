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
	"time"

	"github.com/carebridge/carebridge/internal/store"
)

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}

// RegisterRequest is the body of POST /api/register.
type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
}

// LoginRequest is the body of POST /api/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// UserResponse is the client view of an account. It never carries the
// password hash.
type UserResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
}

func toUserResponse(u *store.User) UserResponse {
	return UserResponse{
		ID:       u.ID,
		Username: u.Username,
		Name:     u.Name,
		Email:    u.Email,
	}
}

// StatusResponse reports a generic success.
type StatusResponse struct {
	Success bool `json:"success"`
}

// PasskeyStatusResponse is the body of GET /api/webauthn/status.
type PasskeyStatusResponse struct {
	Registered bool `json:"registered"`
}

// CredentialResponse is the client view of a stored passkey.
type CredentialResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	SignCount uint32    `json:"sign_count"`
}

func toCredentialResponse(c *store.Credential) CredentialResponse {
	return CredentialResponse{
		ID:        base64.RawURLEncoding.EncodeToString(c.Credential.ID),
		Name:      c.Name,
		CreatedAt: c.CreatedAt,
		SignCount: c.Credential.Authenticator.SignCount,
	}
}

// PinRequest carries a PIN for set-pin and verify-pin.
type PinRequest struct {
	Pin string `json:"pin"`
}

// VerifiedResponse reports the unlock state of a resource.
type VerifiedResponse struct {
	Verified bool `json:"verified"`
}
