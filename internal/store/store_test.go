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
	"testing"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carebridge/carebridge/pkg/storage"
	"github.com/carebridge/carebridge/pkg/storage/file"
)

func newCredential(userID int64, id []byte, signCount uint32) *Credential {
	return &Credential{
		UserID:    userID,
		CreatedAt: time.Now(),
		Credential: webauthn.Credential{
			ID:        id,
			PublicKey: []byte("public-key"),
			Authenticator: webauthn.Authenticator{
				SignCount: signCount,
			},
		},
	}
}

func TestStore_CreateUser(t *testing.T) {
	s := New(storage.NewMemory())

	alice, err := s.CreateUser("alice", "hash-a", "Alice", "alice@example.com")
	require.NoError(t, err)
	assert.EqualValues(t, 1, alice.ID)

	bob, err := s.CreateUser("bob", "hash-b", "Bob", "")
	require.NoError(t, err)
	assert.EqualValues(t, 2, bob.ID)

	got, err := s.GetUser(alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, "hash-a", got.PasswordHash)
}

func TestStore_DuplicateUsername(t *testing.T) {
	s := New(storage.NewMemory())

	_, err := s.CreateUser("alice", "hash", "", "")
	require.NoError(t, err)

	_, err = s.CreateUser("alice", "hash", "", "")
	assert.ErrorIs(t, err, ErrDuplicateUsername)

	// Case-insensitive.
	_, err = s.CreateUser("ALICE", "hash", "", "")
	assert.ErrorIs(t, err, ErrDuplicateUsername)
}

func TestStore_GetUserByUsername(t *testing.T) {
	s := New(storage.NewMemory())

	alice, err := s.CreateUser("Alice", "hash", "", "")
	require.NoError(t, err)

	got, err := s.GetUserByUsername("alice")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, got.ID)

	_, err = s.GetUserByUsername("nobody")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestStore_Credentials(t *testing.T) {
	s := New(storage.NewMemory())

	require.NoError(t, s.PutCredential(newCredential(1, []byte("cred-1"), 0)))
	require.NoError(t, s.PutCredential(newCredential(1, []byte("cred-2"), 0)))
	require.NoError(t, s.PutCredential(newCredential(2, []byte("cred-3"), 0)))

	got, err := s.GetCredential([]byte("cred-1"))
	require.NoError(t, err)
	assert.EqualValues(t, 1, got.UserID)

	creds, err := s.CredentialsForUser(1)
	require.NoError(t, err)
	assert.Len(t, creds, 2)

	_, err = s.GetCredential([]byte("missing"))
	assert.ErrorIs(t, err, ErrCredentialNotFound)
}

func TestStore_DeleteCredential(t *testing.T) {
	s := New(storage.NewMemory())

	require.NoError(t, s.PutCredential(newCredential(1, []byte("cred-1"), 0)))

	// Another user's delete must not remove the record, and must look
	// exactly like deleting a credential that never existed.
	require.NoError(t, s.DeleteCredential(2, []byte("cred-1")))

	_, err := s.GetCredential([]byte("cred-1"))
	require.NoError(t, err)

	require.NoError(t, s.DeleteCredential(1, []byte("cred-1")))
	_, err = s.GetCredential([]byte("cred-1"))
	assert.ErrorIs(t, err, ErrCredentialNotFound)

	// Deleting again is not an error.
	require.NoError(t, s.DeleteCredential(1, []byte("cred-1")))
}

func TestStore_UpdateCredentialCounter(t *testing.T) {
	s := New(storage.NewMemory())

	require.NoError(t, s.PutCredential(newCredential(1, []byte("cred-1"), 5)))

	require.NoError(t, s.UpdateCredentialCounter([]byte("cred-1"), 6))

	got, err := s.GetCredential([]byte("cred-1"))
	require.NoError(t, err)
	assert.EqualValues(t, 6, got.Credential.Authenticator.SignCount)

	// Equal and lower values are regressions.
	assert.ErrorIs(t, s.UpdateCredentialCounter([]byte("cred-1"), 6), ErrCounterRegression)
	assert.ErrorIs(t, s.UpdateCredentialCounter([]byte("cred-1"), 3), ErrCounterRegression)

	assert.ErrorIs(t, s.UpdateCredentialCounter([]byte("missing"), 1), ErrCredentialNotFound)
}

func TestStore_Pins(t *testing.T) {
	s := New(storage.NewMemory())

	_, err := s.GetPinHash("care-recipient-1")
	assert.ErrorIs(t, err, ErrPinNotFound)

	require.NoError(t, s.SetPinHash("care-recipient-1", "hash-1"))

	hash, err := s.GetPinHash("care-recipient-1")
	require.NoError(t, err)
	assert.Equal(t, "hash-1", hash)

	// Replacing is allowed; resources are isolated.
	require.NoError(t, s.SetPinHash("care-recipient-1", "hash-2"))
	hash, err = s.GetPinHash("care-recipient-1")
	require.NoError(t, err)
	assert.Equal(t, "hash-2", hash)

	_, err = s.GetPinHash("care-recipient-2")
	assert.ErrorIs(t, err, ErrPinNotFound)
}

func TestStore_UsernameKeyNamespacing(t *testing.T) {
	backend, err := file.New(t.TempDir())
	require.NoError(t, err)

	s := New(backend)

	// A crafted username must stay inside the username index: it must
	// not plant a record under another prefix.
	evil, err := s.CreateUser("../../pins/7", "hash", "", "")
	require.NoError(t, err)

	_, err = s.GetPinHash("7")
	assert.ErrorIs(t, err, ErrPinNotFound)

	got, err := s.GetUserByUsername("../../pins/7")
	require.NoError(t, err)
	assert.Equal(t, evil.ID, got.ID)

	// And it cannot shadow or collide with a real user's index entry.
	alice, err := s.CreateUser("alice", "hash", "", "")
	require.NoError(t, err)
	got, err = s.GetUserByUsername("alice")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, got.ID)
}

func TestStore_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	backend, err := file.New(dir)
	require.NoError(t, err)

	s := New(backend)
	alice, err := s.CreateUser("alice", "hash", "", "")
	require.NoError(t, err)
	require.NoError(t, s.PutCredential(newCredential(alice.ID, []byte("cred-1"), 1)))
	require.NoError(t, s.SetPinHash("care-recipient-1", "pin-hash"))

	backend2, err := file.New(dir)
	require.NoError(t, err)

	s2 := New(backend2)
	got, err := s2.GetUserByUsername("alice")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, got.ID)

	creds, err := s2.CredentialsForUser(alice.ID)
	require.NoError(t, err)
	assert.Len(t, creds, 1)

	hash, err := s2.GetPinHash("care-recipient-1")
	require.NoError(t, err)
	assert.Equal(t, "pin-hash", hash)

	// The id counter continues where it left off.
	bob, err := s2.CreateUser("bob", "hash", "", "")
	require.NoError(t, err)
	assert.EqualValues(t, alice.ID+1, bob.ID)
}
