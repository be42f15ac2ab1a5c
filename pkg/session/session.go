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

// Package session manages the primary HTTP session: an HMAC-signed
// cookie referencing a server-side record that holds the authenticated
// user id and the single in-flight WebAuthn ceremony challenge.
// Records live in a storage.Backend so sessions survive restarts.
package session

import (
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
)

// CeremonyKind tags which WebAuthn ceremony a stored challenge belongs
// to. Registration and authentication challenges never satisfy each
// other.
type CeremonyKind string

const (
	// CeremonyRegistration is a passkey registration ceremony.
	CeremonyRegistration CeremonyKind = "registration"

	// CeremonyAuthentication is a passkey login ceremony.
	CeremonyAuthentication CeremonyKind = "authentication"
)

// Ceremony is the tagged challenge variant: a session holds at most one
// in-flight ceremony, and consuming it clears it. Starting a new
// ceremony overwrites the previous one (last-write-wins).
type Ceremony struct {
	// Kind identifies the ceremony namespace.
	Kind CeremonyKind `json:"kind"`

	// Data is the library session state: challenge, user handle, and
	// the options the challenge was issued with.
	Data webauthn.SessionData `json:"data"`
}

// Session is one HTTP session's server-side record.
type Session struct {
	// ID is the random session identifier referenced by the cookie.
	ID string `json:"id"`

	// UserID is the authenticated user, or 0 when anonymous.
	UserID int64 `json:"user_id"`

	// Ceremony is the in-flight WebAuthn challenge, or nil.
	Ceremony *Ceremony `json:"ceremony,omitempty"`

	// CreatedAt is when the session was established.
	CreatedAt time.Time `json:"created_at"`

	// ExpiresAt is when the session stops being honored.
	ExpiresAt time.Time `json:"expires_at"`
}

// Authenticated reports whether the session is bound to a user.
func (s *Session) Authenticated() bool {
	return s.UserID != 0
}
