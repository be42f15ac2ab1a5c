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
	"errors"
	"fmt"

	"github.com/carebridge/carebridge/pkg/storage"
)

// SetPinHash stores (or replaces) the PIN hash guarding a resource.
func (s *Store) SetPinHash(resourceID string, pinHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.backend.Put(pinPrefix+resourceID, []byte(pinHash), nil); err != nil {
		return fmt.Errorf("store: set pin: %w", err)
	}
	return nil
}

// GetPinHash returns the PIN hash guarding a resource, or ErrPinNotFound
// when no PIN has been set.
func (s *Store) GetPinHash(resourceID string) (string, error) {
	data, err := s.backend.Get(pinPrefix + resourceID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", ErrPinNotFound
		}
		return "", fmt.Errorf("store: get pin: %w", err)
	}
	return string(data), nil
}
