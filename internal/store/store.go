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

// Package store persists users, passkey credentials, and emergency-info
// PIN hashes as JSON documents over a storage backend.
package store

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/carebridge/carebridge/pkg/storage"
)

const (
	userPrefix       = "users/by-id/"
	usernamePrefix   = "users/by-name/"
	credentialPrefix = "credentials/"
	pinPrefix        = "pins/"
	nextUserIDKey    = "users/next-id"
)

var (
	// ErrDuplicateUsername is returned when a username is already taken.
	ErrDuplicateUsername = errors.New("store: username already exists")

	// ErrUserNotFound is returned when no user matches the lookup.
	ErrUserNotFound = errors.New("store: user not found")

	// ErrCredentialNotFound is returned when no credential matches the id.
	ErrCredentialNotFound = errors.New("store: credential not found")

	// ErrCounterRegression is returned when a signature counter update
	// does not advance past the stored value.
	ErrCounterRegression = errors.New("store: signature counter did not advance")

	// ErrPinNotFound is returned when no PIN is set for a resource.
	ErrPinNotFound = errors.New("store: pin not set")
)

// User is an account record. PasswordHash is never serialized to API
// responses; it only exists in storage.
type User struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"password_hash"`
	Name         string `json:"name,omitempty"`
	Email        string `json:"email,omitempty"`
}

// Store provides user, credential, and PIN persistence. All writes are
// serialized under a single mutex so read-modify-write sequences
// (username reservation, counter advancement) are atomic.
type Store struct {
	mu      sync.Mutex
	backend storage.Backend
}

// New creates a store over the given backend.
func New(backend storage.Backend) *Store {
	return &Store{backend: backend}
}

// CreateUser inserts a new user, allocating its id. Usernames are
// case-insensitive unique.
func (s *Store) CreateUser(username, passwordHash, name, email string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nameKey := usernameKey(username)
	exists, err := s.backend.Exists(nameKey)
	if err != nil {
		return nil, fmt.Errorf("store: create user: %w", err)
	}
	if exists {
		return nil, ErrDuplicateUsername
	}

	id, err := s.nextUserID()
	if err != nil {
		return nil, err
	}

	user := &User{
		ID:           id,
		Username:     username,
		PasswordHash: passwordHash,
		Name:         name,
		Email:        email,
	}
	if err := s.putJSON(userPrefix+formatID(id), user); err != nil {
		return nil, err
	}
	// Username index maps the normalized name to the user id.
	if err := s.backend.Put(nameKey, []byte(formatID(id)), nil); err != nil {
		return nil, fmt.Errorf("store: create user: %w", err)
	}
	return user, nil
}

// GetUser returns the user with the given id.
func (s *Store) GetUser(id int64) (*User, error) {
	var user User
	if err := s.getJSON(userPrefix+formatID(id), &user); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// GetUserByUsername returns the user with the given username,
// matched case-insensitively.
func (s *Store) GetUserByUsername(username string) (*User, error) {
	data, err := s.backend.Get(usernameKey(username))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("store: get user: %w", err)
	}

	id, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("store: corrupt username index: %w", err)
	}
	return s.GetUser(id)
}

// nextUserID allocates a monotonically increasing user id. Caller holds
// the store mutex.
func (s *Store) nextUserID() (int64, error) {
	next := int64(1)
	data, err := s.backend.Get(nextUserIDKey)
	if err == nil {
		n, perr := strconv.ParseInt(string(data), 10, 64)
		if perr != nil {
			return 0, fmt.Errorf("store: corrupt id counter: %w", perr)
		}
		next = n
	} else if !errors.Is(err, storage.ErrNotFound) {
		return 0, fmt.Errorf("store: allocate id: %w", err)
	}

	if err := s.backend.Put(nextUserIDKey, []byte(formatID(next+1)), nil); err != nil {
		return 0, fmt.Errorf("store: allocate id: %w", err)
	}
	return next, nil
}

func (s *Store) putJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("store: marshal %s: %w", key, err)
	}
	if err := s.backend.Put(key, data, nil); err != nil {
		return fmt.Errorf("store: put %s: %w", key, err)
	}
	return nil
}

func (s *Store) getJSON(key string, v any) error {
	data, err := s.backend.Get(key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("store: unmarshal %s: %w", key, err)
	}
	return nil
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// usernameKey builds the index key for a username. The normalized name
// is base64url-encoded so arbitrary input can never smuggle path
// separators or dot segments into a storage key.
func usernameKey(username string) string {
	normalized := normalizeUsername(username)
	return usernamePrefix + base64.RawURLEncoding.EncodeToString([]byte(normalized))
}
