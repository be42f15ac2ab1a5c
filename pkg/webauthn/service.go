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

// Package webauthn provides passkey registration and login ceremonies
// on top of the go-webauthn library. Challenge state lives in the
// caller's session; this package validates responses and persists
// credentials.
package webauthn

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/carebridge/carebridge/internal/store"
)

// Service provides passkey registration and authentication operations.
type Service struct {
	webauthn *webauthn.WebAuthn
	config   *Config
	store    Store
}

// NewService creates a passkey service over the given store.
func NewService(config *Config, st Store) (*Service, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if st == nil {
		return nil, fmt.Errorf("store is required")
	}

	config.SetDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	wa, err := webauthn.New(config.toWebAuthnConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create webauthn instance: %w", err)
	}

	return &Service{
		webauthn: wa,
		config:   config,
		store:    st,
	}, nil
}

// BeginRegistration starts a passkey registration ceremony for the
// user. The user's existing credentials are excluded so the same
// authenticator cannot be registered twice.
func (s *Service) BeginRegistration(user *store.User) (*protocol.CredentialCreation, *webauthn.SessionData, error) {
	creds, err := s.store.CredentialsForUser(user.ID)
	if err != nil {
		return nil, nil, wrapError("get credentials", err)
	}

	excludeList := make([]protocol.CredentialDescriptor, len(creds))
	for i, cred := range creds {
		excludeList[i] = protocol.CredentialDescriptor{
			Type:         protocol.PublicKeyCredentialType,
			CredentialID: cred.Credential.ID,
			Transport:    cred.Credential.Transport,
		}
	}

	options, session, err := s.webauthn.BeginRegistration(
		&ceremonyUser{user: user, creds: creds},
		webauthn.WithExclusions(excludeList),
	)
	if err != nil {
		return nil, nil, wrapError("begin registration", err)
	}
	return options, session, nil
}

// FinishRegistration validates the authenticator's attestation response
// against the stored challenge and persists the new credential.
func (s *Service) FinishRegistration(user *store.User, session webauthn.SessionData, response *protocol.ParsedCredentialCreationData, name string) (*store.Credential, error) {
	credential, err := s.webauthn.CreateCredential(&ceremonyUser{user: user}, session, response)
	if err != nil {
		return nil, wrapError("finish registration", fmt.Errorf("%w: %v", ErrVerificationFailed, err))
	}

	cred := &store.Credential{
		UserID:     user.ID,
		Name:       name,
		CreatedAt:  time.Now().UTC(),
		Credential: *credential,
	}
	if err := s.store.PutCredential(cred); err != nil {
		return nil, wrapError("save credential", err)
	}
	return cred, nil
}

// BeginLogin starts a discoverable (usernameless) login ceremony. The
// assertion carries no credential allowlist; the authenticator offers
// whatever passkeys it holds for this relying party.
func (s *Service) BeginLogin() (*protocol.CredentialAssertion, *webauthn.SessionData, error) {
	options, session, err := s.webauthn.BeginDiscoverableLogin()
	if err != nil {
		return nil, nil, wrapError("begin login", err)
	}
	return options, session, nil
}

// FinishLogin validates the assertion against the stored challenge and
// returns the authenticated user. The signature counter must strictly
// advance unless both sides report zero (an authenticator without a
// counter); anything else is rejected as a possible cloned key.
func (s *Service) FinishLogin(session webauthn.SessionData, response *protocol.ParsedCredentialAssertionData) (*store.User, *store.Credential, error) {
	validated, err := s.webauthn.ValidateDiscoverableLogin(s.discoverableUserHandler(), session, response)
	if err != nil {
		if errors.Is(err, ErrUnknownCredential) || errors.Is(err, ErrInvalidUserHandle) {
			return nil, nil, wrapError("finish login", ErrUnknownCredential)
		}
		return nil, nil, wrapError("finish login", fmt.Errorf("%w: %v", ErrVerificationFailed, err))
	}

	cred, err := s.store.GetCredential(validated.ID)
	if err != nil {
		if errors.Is(err, store.ErrCredentialNotFound) {
			return nil, nil, wrapError("finish login", ErrUnknownCredential)
		}
		return nil, nil, wrapError("get credential", err)
	}

	stored := cred.Credential.Authenticator.SignCount
	newCount := validated.Authenticator.SignCount
	if newCount != 0 || stored != 0 {
		if newCount <= stored {
			return nil, nil, wrapError("finish login", ErrCounterRegression)
		}
		if err := s.store.UpdateCredentialCounter(cred.Credential.ID, newCount); err != nil {
			if errors.Is(err, store.ErrCounterRegression) {
				// A concurrent assertion advanced the counter first.
				return nil, nil, wrapError("finish login", ErrCounterRegression)
			}
			return nil, nil, wrapError("update counter", err)
		}
		cred.Credential.Authenticator.SignCount = newCount
	}

	user, err := s.store.GetUser(cred.UserID)
	if err != nil {
		return nil, nil, wrapError("get user", err)
	}
	return user, cred, nil
}

// Registered reports whether the user has at least one passkey.
func (s *Service) Registered(userID int64) (bool, error) {
	creds, err := s.store.CredentialsForUser(userID)
	if err != nil {
		return false, wrapError("get credentials", err)
	}
	return len(creds) > 0, nil
}

// Credentials returns all of the user's passkeys.
func (s *Service) Credentials(userID int64) ([]*store.Credential, error) {
	creds, err := s.store.CredentialsForUser(userID)
	if err != nil {
		return nil, wrapError("get credentials", err)
	}
	return creds, nil
}

// Config returns the service configuration.
func (s *Service) Config() *Config {
	return s.config
}

// discoverableUserHandler resolves the asserted user handle to a stored
// user so the library can verify the credential belongs to them.
func (s *Service) discoverableUserHandler() webauthn.DiscoverableUserHandler {
	return func(rawID, userHandle []byte) (webauthn.User, error) {
		userID, err := UserIDFromHandle(userHandle)
		if err != nil {
			return nil, err
		}

		user, err := s.store.GetUser(userID)
		if err != nil {
			if errors.Is(err, store.ErrUserNotFound) {
				return nil, ErrUnknownCredential
			}
			return nil, err
		}

		creds, err := s.store.CredentialsForUser(userID)
		if err != nil {
			return nil, err
		}
		if len(creds) == 0 {
			return nil, ErrUnknownCredential
		}
		return &ceremonyUser{user: user, creds: creds}, nil
	}
}
