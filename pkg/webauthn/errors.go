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
	"errors"
	"fmt"
)

// Sentinel errors for passkey operations.
var (
	// ErrVerificationFailed is returned when an attestation or assertion
	// fails cryptographic verification.
	ErrVerificationFailed = errors.New("verification failed")

	// ErrUnknownCredential is returned when an assertion references a
	// credential id that is not on record.
	ErrUnknownCredential = errors.New("unknown credential")

	// ErrCounterRegression is returned when an assertion's signature
	// counter does not advance past the stored value, which indicates a
	// cloned or replayed authenticator.
	ErrCounterRegression = errors.New("signature counter regression")

	// ErrNoCredentials is returned when a user has no registered passkeys.
	ErrNoCredentials = errors.New("user has no registered credentials")

	// ErrInvalidUserHandle is returned when an assertion's user handle
	// cannot be decoded.
	ErrInvalidUserHandle = errors.New("invalid user handle")
)

// Error wraps an error with the operation that produced it.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether the target error matches.
func (e *Error) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// wrapError wraps an error with an operation name if it's not nil.
func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}
