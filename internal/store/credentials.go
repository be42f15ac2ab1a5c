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

package store

import (
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/carebridge/carebridge/pkg/storage"
)

// Credential is a stored passkey bound to a user.
type Credential struct {
	UserID     int64               `json:"user_id"`
	Name       string              `json:"name,omitempty"`
	CreatedAt  time.Time           `json:"created_at"`
	Credential webauthn.Credential `json:"credential"`
}

// credentialKey encodes a raw credential id into a storage key.
func credentialKey(credentialID []byte) string {
	return credentialPrefix + base64.RawURLEncoding.EncodeToString(credentialID)
}

// PutCredential inserts or replaces a credential record.
func (s *Store) PutCredential(cred *Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putJSON(credentialKey(cred.Credential.ID), cred)
}

// GetCredential returns the credential with the given raw id.
func (s *Store) GetCredential(credentialID []byte) (*Credential, error) {
	var cred Credential
	if err := s.getJSON(credentialKey(credentialID), &cred); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrCredentialNotFound
		}
		return nil, err
	}
	return &cred, nil
}

// CredentialsForUser returns all credentials owned by the user,
// in storage order.
func (s *Store) CredentialsForUser(userID int64) ([]*Credential, error) {
	keys, err := s.backend.List(credentialPrefix)
	if err != nil {
		return nil, fmt.Errorf("store: list credentials: %w", err)
	}

	var creds []*Credential
	for _, key := range keys {
		var cred Credential
		if err := s.getJSON(key, &cred); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return nil, err
		}
		if cred.UserID == userID {
			creds = append(creds, &cred)
		}
	}
	return creds, nil
}

// DeleteCredential removes one of the user's credentials. Deleting a
// credential that does not exist and deleting another user's
// credential both succeed without touching anything, so the response
// never reveals whether a foreign credential id exists.
func (s *Store) DeleteCredential(userID int64, credentialID []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var cred Credential
	if err := s.getJSON(credentialKey(credentialID), &cred); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return err
	}
	if cred.UserID != userID {
		return nil
	}
	return s.backend.Delete(credentialKey(credentialID))
}

// UpdateCredentialCounter advances the stored signature counter. The
// new value must be strictly greater than the stored one; anything else
// is ErrCounterRegression. The check and write happen under the store
// mutex so concurrent finishes cannot both advance from the same base.
func (s *Store) UpdateCredentialCounter(credentialID []byte, newCounter uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var cred Credential
	if err := s.getJSON(credentialKey(credentialID), &cred); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrCredentialNotFound
		}
		return err
	}
	if newCounter <= cred.Credential.Authenticator.SignCount {
		return ErrCounterRegression
	}
	cred.Credential.Authenticator.SignCount = newCounter
	return s.putJSON(credentialKey(credentialID), &cred)
}
