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

package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBackend_PutGet(t *testing.T) {
	b := NewMemory()
	defer b.Close()

	require.NoError(t, b.Put("sessions/abc", []byte(`{"user_id":7}`), nil))

	got, err := b.Get("sessions/abc")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"user_id":7}`), got)
}

func TestMemoryBackend_GetMissing(t *testing.T) {
	b := NewMemory()
	defer b.Close()

	_, err := b.Get("users/999")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryBackend_Delete(t *testing.T) {
	b := NewMemory()
	defer b.Close()

	require.NoError(t, b.Put("pins/7", []byte("x"), nil))
	require.NoError(t, b.Delete("pins/7"))

	exists, err := b.Exists("pins/7")
	require.NoError(t, err)
	assert.False(t, exists)

	assert.ErrorIs(t, b.Delete("pins/7"), ErrNotFound)
}

func TestMemoryBackend_ListPrefix(t *testing.T) {
	b := NewMemory()
	defer b.Close()

	require.NoError(t, b.Put("users/1", []byte("a"), nil))
	require.NoError(t, b.Put("users/2", []byte("b"), nil))
	require.NoError(t, b.Put("sessions/x", []byte("c"), nil))

	keys, err := b.List("users/")
	require.NoError(t, err)
	assert.Len(t, keys, 2)
}

func TestMemoryBackend_GetReturnsCopy(t *testing.T) {
	b := NewMemory()
	defer b.Close()

	require.NoError(t, b.Put("users/1", []byte("abc"), nil))

	got, err := b.Get("users/1")
	require.NoError(t, err)
	got[0] = 'z'

	again, err := b.Get("users/1")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), again)
}

func TestMemoryBackend_Closed(t *testing.T) {
	b := NewMemory()
	require.NoError(t, b.Close())

	_, err := b.Get("anything")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, b.Put("anything", nil, nil), ErrClosed)
}
