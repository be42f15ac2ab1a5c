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

package webauthn

import (
	"encoding/binary"

	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/carebridge/carebridge/internal/store"
)

// Store is the persistence surface the service needs. *store.Store
// satisfies it.
type Store interface {
	GetUser(id int64) (*store.User, error)
	CredentialsForUser(userID int64) ([]*store.Credential, error)
	PutCredential(cred *store.Credential) error
	GetCredential(credentialID []byte) (*store.Credential, error)
	UpdateCredentialCounter(credentialID []byte, newCounter uint32) error
}

// UserHandle encodes a numeric user id as the opaque byte handle the
// authenticator stores alongside a discoverable credential.
func UserHandle(userID int64) []byte {
	handle := make([]byte, 8)
	binary.BigEndian.PutUint64(handle, uint64(userID))
	return handle
}

// UserIDFromHandle decodes a user handle produced by UserHandle.
func UserIDFromHandle(handle []byte) (int64, error) {
	if len(handle) != 8 {
		return 0, ErrInvalidUserHandle
	}
	return int64(binary.BigEndian.Uint64(handle)), nil
}

// ceremonyUser adapts a stored user and their credentials to the
// webauthn.User interface for the duration of one ceremony.
type ceremonyUser struct {
	user  *store.User
	creds []*store.Credential
}

func (u *ceremonyUser) WebAuthnID() []byte {
	return UserHandle(u.user.ID)
}

func (u *ceremonyUser) WebAuthnName() string {
	return u.user.Username
}

func (u *ceremonyUser) WebAuthnDisplayName() string {
	if u.user.Name != "" {
		return u.user.Name
	}
	return u.user.Username
}

func (u *ceremonyUser) WebAuthnCredentials() []webauthn.Credential {
	creds := make([]webauthn.Credential, len(u.creds))
	for i, c := range u.creds {
		creds[i] = c.Credential
	}
	return creds
}
