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

package auth

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carebridge/carebridge/internal/store"
	"github.com/carebridge/carebridge/pkg/passhash"
	"github.com/carebridge/carebridge/pkg/storage"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	hasher, err := passhash.NewHasher(&passhash.Params{
		SaltLength: 16,
		Memory:     8 * 1024,
		Time:       1,
		Threads:    1,
		KeyLength:  32,
	})
	require.NoError(t, err)

	svc, err := NewService(store.New(storage.NewMemory()), hasher)
	require.NoError(t, err)
	return svc
}

func TestValidatePassword(t *testing.T) {
	assert.NoError(t, ValidatePassword("Sunny-Day7"))

	tests := []struct {
		password string
		reason   string
	}{
		{"Ab1!", "must be at least 8 characters"},
		{"lowercase1!", "must contain an uppercase letter"},
		{"UPPERCASE1!", "must contain a lowercase letter"},
		{"NoDigits!!", "must contain a digit"},
		{"NoSymbols11", "must contain a symbol"},
		// Length is checked first even when other rules also fail.
		{"abc", "must be at least 8 characters"},
	}
	for _, tc := range tests {
		err := ValidatePassword(tc.password)
		require.Error(t, err, tc.password)
		assert.ErrorIs(t, err, ErrWeakPassword)

		var weak *WeakPasswordError
		require.True(t, errors.As(err, &weak))
		assert.Equal(t, tc.reason, weak.Reason, tc.password)
	}
}

func TestRegister(t *testing.T) {
	svc := newTestService(t)

	user, err := svc.Register("alice", "Sunny-Day7", "Alice", "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.NotEmpty(t, user.PasswordHash)
	assert.NotContains(t, user.PasswordHash, "Sunny-Day7")
}

func TestRegister_DuplicateUsername(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Register("alice", "Sunny-Day7", "", "")
	require.NoError(t, err)

	_, err = svc.Register("alice", "Rainy-Day8", "", "")
	assert.ErrorIs(t, err, ErrDuplicateUsername)

	_, err = svc.Register("ALICE", "Rainy-Day8", "", "")
	assert.ErrorIs(t, err, ErrDuplicateUsername)
}

func TestRegister_WeakPassword(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Register("alice", "weak", "", "")
	assert.ErrorIs(t, err, ErrWeakPassword)
}

func TestRegister_EmptyUsername(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Register("", "Sunny-Day7", "", "")
	assert.ErrorIs(t, err, ErrInvalidUsername)

	_, err = svc.Register("   ", "Sunny-Day7", "", "")
	assert.ErrorIs(t, err, ErrInvalidUsername)
}

func TestRegister_UsernameCharset(t *testing.T) {
	svc := newTestService(t)

	// Usernames feed storage keys, so path characters and dot
	// segments must never register.
	for _, username := range []string{
		"../../pins/7",
		"a/b",
		"a\\b",
		"..",
		".hidden",
		"@host",
		"bad name",
		"tab\tname",
		strings.Repeat("a", MaxUsernameLength+1),
	} {
		_, err := svc.Register(username, "Sunny-Day7", "", "")
		assert.ErrorIs(t, err, ErrInvalidUsername, "username %q", username)
	}

	for _, username := range []string{
		"alice",
		"alice.smith",
		"alice@example.com",
		"a_b-c",
		"7seas",
	} {
		_, err := svc.Register(username, "Sunny-Day7", "", "")
		assert.NoError(t, err, "username %q", username)
	}
}

func TestLogin(t *testing.T) {
	svc := newTestService(t)

	created, err := svc.Register("alice", "Sunny-Day7", "", "")
	require.NoError(t, err)

	user, err := svc.Login("alice", "Sunny-Day7")
	require.NoError(t, err)
	assert.Equal(t, created.ID, user.ID)
}

func TestLogin_UnifiedFailure(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Register("alice", "Sunny-Day7", "", "")
	require.NoError(t, err)

	// Wrong password and unknown username yield the same error.
	_, err = svc.Login("alice", "Wrong-Pass1!")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login("nobody", "Sunny-Day7")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}
