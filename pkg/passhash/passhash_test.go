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

package passhash

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fastParams keeps the KDF cheap enough for unit tests while staying
// above the package minimums.
func fastParams() *Params {
	return &Params{
		SaltLength: 16,
		Memory:     8 * 1024,
		Time:       1,
		Threads:    1,
		KeyLength:  32,
	}
}

func TestHash_RoundTrip(t *testing.T) {
	h, err := NewHasher(fastParams())
	require.NoError(t, err)

	for _, secret := range []string{"Str0ng!Pass", "482913", "correct horse battery staple"} {
		stored, err := h.Hash(secret)
		require.NoError(t, err)

		ok, err := h.Compare(secret, stored)
		require.NoError(t, err)
		assert.True(t, ok, "secret %q should verify against its own hash", secret)

		ok, err = h.Compare(secret+"x", stored)
		require.NoError(t, err)
		assert.False(t, ok, "wrong secret must not verify")
	}
}

func TestHash_Format(t *testing.T) {
	h, err := NewHasher(fastParams())
	require.NoError(t, err)

	stored, err := h.Hash("secret")
	require.NoError(t, err)

	keyHex, saltHex, found := strings.Cut(stored, Delimiter)
	require.True(t, found)
	assert.Len(t, keyHex, 64)  // 32-byte key, hex-encoded
	assert.Len(t, saltHex, 32) // 16-byte salt, hex-encoded
}

func TestHash_UniqueSalts(t *testing.T) {
	h, err := NewHasher(fastParams())
	require.NoError(t, err)

	a, err := h.Hash("same-secret")
	require.NoError(t, err)
	b, err := h.Hash("same-secret")
	require.NoError(t, err)

	assert.NotEqual(t, a, b, "each hash must use a fresh salt")
}

func TestHash_EmptySecret(t *testing.T) {
	h, err := NewHasher(fastParams())
	require.NoError(t, err)

	_, err = h.Hash("")
	assert.ErrorIs(t, err, ErrEmptySecret)
}

func TestCompare_Malformed(t *testing.T) {
	h, err := NewHasher(fastParams())
	require.NoError(t, err)

	for _, stored := range []string{"", "nodelimiter", "zzzz.abcd", "abcd.zzzz", ".abcd", "abcd."} {
		_, err := h.Compare("secret", stored)
		assert.ErrorIs(t, err, ErrMalformedHash, "stored=%q", stored)
	}
}

func TestNewHasher_RejectsWeakParams(t *testing.T) {
	weak := fastParams()
	weak.SaltLength = 8

	_, err := NewHasher(weak)
	assert.Error(t, err)
}

func TestNewHasher_DefaultParams(t *testing.T) {
	h, err := NewHasher(nil)
	require.NoError(t, err)
	assert.NotNil(t, h)
}
