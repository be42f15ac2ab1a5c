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

import "unicode"

// MinPasswordLength is the minimum accepted password length.
const MinPasswordLength = 8

// ValidatePassword checks the password against the strength rules in
// order and reports the first one that fails, so the user fixes one
// problem at a time.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return &WeakPasswordError{Reason: "must be at least 8 characters"}
	}

	var hasUpper, hasLower, hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasSymbol = true
		}
	}

	switch {
	case !hasUpper:
		return &WeakPasswordError{Reason: "must contain an uppercase letter"}
	case !hasLower:
		return &WeakPasswordError{Reason: "must contain a lowercase letter"}
	case !hasDigit:
		return &WeakPasswordError{Reason: "must contain a digit"}
	case !hasSymbol:
		return &WeakPasswordError{Reason: "must contain a symbol"}
	}
	return nil
}
