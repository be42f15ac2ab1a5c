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

// Package passhash derives and verifies salted Argon2id hashes for
// account passwords and emergency PINs.
//
// Stored format is hex(derivedKey) + "." + hex(salt). The "." delimiter
// cannot appear in hex output, so splitting is unambiguous.
package passhash

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Delimiter separates the derived key from the salt in the stored value.
const Delimiter = "."

const (
	// MinSaltLength is the minimum salt length in bytes.
	MinSaltLength = 16

	// MinMemory is the minimum Argon2 memory cost in KiB.
	MinMemory = 8 * 1024

	// MinTime is the minimum Argon2 time cost.
	MinTime = 1

	// MinThreads is the minimum number of Argon2 threads.
	MinThreads = 1
)

var (
	// ErrEmptySecret is returned when an empty secret is provided.
	ErrEmptySecret = errors.New("passhash: secret cannot be empty")

	// ErrMalformedHash is returned when a stored hash cannot be parsed.
	ErrMalformedHash = errors.New("passhash: malformed stored hash")
)

// Params contains the Argon2id cost parameters.
type Params struct {
	// SaltLength is the random salt length in bytes.
	SaltLength int

	// Memory is the memory cost in KiB.
	Memory uint32

	// Time is the time cost (iterations).
	Time uint32

	// Threads is the number of parallel threads.
	Threads uint8

	// KeyLength is the derived key length in bytes.
	KeyLength uint32
}

// DefaultParams returns the recommended Argon2id parameters.
func DefaultParams() *Params {
	return &Params{
		SaltLength: 16,
		Memory:     64 * 1024, // 64 MiB
		Time:       3,
		Threads:    4,
		KeyLength:  32,
	}
}

// Validate checks the parameters against the package minimums.
func (p *Params) Validate() error {
	if p.SaltLength < MinSaltLength {
		return fmt.Errorf("passhash: salt length %d below minimum %d", p.SaltLength, MinSaltLength)
	}
	if p.Memory < MinMemory {
		return fmt.Errorf("passhash: memory cost %d below minimum %d", p.Memory, MinMemory)
	}
	if p.Time < MinTime {
		return fmt.Errorf("passhash: time cost %d below minimum %d", p.Time, MinTime)
	}
	if p.Threads < MinThreads {
		return fmt.Errorf("passhash: threads %d below minimum %d", p.Threads, MinThreads)
	}
	if p.KeyLength == 0 {
		return errors.New("passhash: key length must be positive")
	}
	return nil
}

// Hasher derives and verifies hashes with a fixed set of parameters.
type Hasher struct {
	params *Params
}

// NewHasher creates a Hasher. Nil params selects DefaultParams.
func NewHasher(params *Params) (*Hasher, error) {
	if params == nil {
		params = DefaultParams()
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Hasher{params: params}, nil
}

// Hash derives a salted Argon2id hash from the secret and returns the
// encoded "key.salt" value.
func (h *Hasher) Hash(secret string) (string, error) {
	if secret == "" {
		return "", ErrEmptySecret
	}

	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("passhash: failed to generate salt: %w", err)
	}

	key := argon2.IDKey([]byte(secret), salt, h.params.Time, h.params.Memory, h.params.Threads, h.params.KeyLength)
	return hex.EncodeToString(key) + Delimiter + hex.EncodeToString(salt), nil
}

// Compare re-derives a key from the supplied secret and the stored salt
// and compares it to the stored key in constant time. It returns false
// with a nil error for a well-formed mismatch.
func (h *Hasher) Compare(secret, stored string) (bool, error) {
	storedKey, salt, err := decode(stored)
	if err != nil {
		return false, err
	}

	key := argon2.IDKey([]byte(secret), salt, h.params.Time, h.params.Memory, h.params.Threads, uint32(len(storedKey)))
	return subtle.ConstantTimeCompare(key, storedKey) == 1, nil
}

// decode splits a stored value into its derived key and salt.
func decode(stored string) (key, salt []byte, err error) {
	keyHex, saltHex, ok := strings.Cut(stored, Delimiter)
	if !ok || keyHex == "" || saltHex == "" {
		return nil, nil, ErrMalformedHash
	}

	key, err = hex.DecodeString(keyHex)
	if err != nil {
		return nil, nil, ErrMalformedHash
	}
	salt, err = hex.DecodeString(saltHex)
	if err != nil {
		return nil, nil, ErrMalformedHash
	}
	return key, salt, nil
}
