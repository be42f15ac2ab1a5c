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

// Package auth implements account registration and password login.
package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/carebridge/carebridge/internal/store"
	"github.com/carebridge/carebridge/pkg/passhash"
)

var (
	// ErrDuplicateUsername is returned when the username is taken.
	ErrDuplicateUsername = errors.New("auth: username already exists")

	// ErrInvalidUsername is returned when the username is empty or
	// unusable.
	ErrInvalidUsername = errors.New("auth: invalid username")

	// ErrInvalidCredentials is the single error for every password login
	// failure. Unknown username and wrong password are deliberately
	// indistinguishable.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	// ErrWeakPassword is the sentinel wrapped by WeakPasswordError.
	ErrWeakPassword = errors.New("auth: weak password")
)

// WeakPasswordError reports the first strength rule the password fails.
type WeakPasswordError struct {
	Reason string
}

func (e *WeakPasswordError) Error() string {
	return fmt.Sprintf("auth: weak password: %s", e.Reason)
}

func (e *WeakPasswordError) Unwrap() error {
	return ErrWeakPassword
}

// Service performs registration and login against the store.
type Service struct {
	store  *store.Store
	hasher *passhash.Hasher

	// dummyHash equalizes login timing for unknown usernames.
	dummyHash string
}

// NewService creates the auth service.
func NewService(st *store.Store, hasher *passhash.Hasher) (*Service, error) {
	if st == nil {
		return nil, errors.New("auth: store is required")
	}
	if hasher == nil {
		return nil, errors.New("auth: hasher is required")
	}

	dummy, err := hasher.Hash("carebridge-dummy-password")
	if err != nil {
		return nil, fmt.Errorf("auth: init dummy hash: %w", err)
	}

	return &Service{store: st, hasher: hasher, dummyHash: dummy}, nil
}

// Register creates a new account. The password must pass the strength
// rules; the username must be unique and stick to the allowed charset.
func (s *Service) Register(username, password, name, email string) (*store.User, error) {
	username = strings.TrimSpace(username)
	if err := validateUsername(username); err != nil {
		return nil, err
	}
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("auth: hash password: %w", err)
	}

	user, err := s.store.CreateUser(username, hash, name, email)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateUsername) {
			return nil, ErrDuplicateUsername
		}
		return nil, fmt.Errorf("auth: create user: %w", err)
	}
	return user, nil
}

// MaxUsernameLength bounds usernames.
const MaxUsernameLength = 64

// validateUsername restricts usernames to a storage-safe charset:
// letters, digits, and . _ - @, starting with a letter or digit.
// Usernames become storage keys, so path characters never get in.
func validateUsername(username string) error {
	if username == "" || len(username) > MaxUsernameLength {
		return ErrInvalidUsername
	}
	for i, c := range []byte(username) {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case i > 0 && (c == '.' || c == '_' || c == '-' || c == '@'):
		default:
			return ErrInvalidUsername
		}
	}
	return nil
}

// Login verifies the username and password. Every failure mode returns
// ErrInvalidCredentials; an unknown username still burns a hash
// comparison so the two cases take comparable time.
func (s *Service) Login(username, password string) (*store.User, error) {
	user, err := s.store.GetUserByUsername(username)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			_, _ = s.hasher.Compare(password, s.dummyHash)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("auth: get user: %w", err)
	}

	match, err := s.hasher.Compare(password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("auth: compare password: %w", err)
	}
	if !match {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}
