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

// Package pingate guards emergency-info resources behind a numeric PIN.
// A correct PIN yields a signed unlock token in a per-resource cookie,
// so the PIN is entered once per device per day rather than on every
// view.
package pingate

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/carebridge/carebridge/internal/store"
	"github.com/carebridge/carebridge/pkg/passhash"
)

const (
	// PinLength is the required number of PIN digits.
	PinLength = 6

	// CookiePrefix prefixes the per-resource unlock cookie name.
	CookiePrefix = "carebridge_unlock_"

	// DefaultTTL is how long an unlock token stays valid.
	DefaultTTL = 24 * time.Hour

	// DefaultIssuer is the unlock token issuer claim.
	DefaultIssuer = "carebridge"
)

var (
	// ErrSecretRequired is returned when no signing secret is configured.
	ErrSecretRequired = errors.New("pingate: signing secret is required")

	// ErrInvalidPinFormat is returned when a PIN is not exactly six
	// ASCII digits.
	ErrInvalidPinFormat = errors.New("pingate: pin must be exactly 6 digits")

	// ErrInvalidResource is returned when a resource id cannot be used
	// in a cookie name.
	ErrInvalidResource = errors.New("pingate: invalid resource id")

	// ErrPinNotSet is returned when the resource has no PIN on record.
	ErrPinNotSet = errors.New("pingate: no pin set for resource")
)

// PinStore persists PIN hashes per resource. *store.Store satisfies it.
type PinStore interface {
	SetPinHash(resourceID, pinHash string) error
	GetPinHash(resourceID string) (string, error)
}

// Config configures the PIN gate.
type Config struct {
	// Secret signs unlock tokens. Required.
	Secret string `yaml:"secret" json:"-"`

	// Issuer overrides DefaultIssuer.
	Issuer string `yaml:"issuer" json:"issuer"`

	// TTL overrides DefaultTTL.
	TTL time.Duration `yaml:"ttl" json:"ttl"`

	// Production toggles the Secure cookie attribute.
	Production bool `yaml:"-" json:"-"`
}

// Gate verifies PINs and manages unlock cookies.
type Gate struct {
	cfg    Config
	hasher *passhash.Hasher
	pins   PinStore
}

// New creates a PIN gate over the given store.
func New(cfg *Config, hasher *passhash.Hasher, pins PinStore) (*Gate, error) {
	if cfg == nil || cfg.Secret == "" {
		return nil, ErrSecretRequired
	}
	if hasher == nil {
		return nil, errors.New("pingate: hasher is required")
	}
	if pins == nil {
		return nil, errors.New("pingate: pin store is required")
	}

	c := *cfg
	if c.Issuer == "" {
		c.Issuer = DefaultIssuer
	}
	if c.TTL == 0 {
		c.TTL = DefaultTTL
	}

	return &Gate{cfg: c, hasher: hasher, pins: pins}, nil
}

// ValidatePin checks that the PIN is exactly six ASCII digits.
func ValidatePin(pin string) error {
	if len(pin) != PinLength {
		return ErrInvalidPinFormat
	}
	for _, c := range []byte(pin) {
		if c < '0' || c > '9' {
			return ErrInvalidPinFormat
		}
	}
	return nil
}

// SetPin hashes and stores the PIN for a resource, replacing any
// previous one. Setting a PIN proves current control of the resource,
// so the caller is unlocked immediately. Replacing does not revoke
// unlock tokens already issued.
func (g *Gate) SetPin(w http.ResponseWriter, resourceID, pin string) error {
	if err := validateResourceID(resourceID); err != nil {
		return err
	}
	if err := ValidatePin(pin); err != nil {
		return err
	}

	hash, err := g.hasher.Hash(pin)
	if err != nil {
		return fmt.Errorf("pingate: hash pin: %w", err)
	}
	if err := g.pins.SetPinHash(resourceID, hash); err != nil {
		return err
	}
	return g.setUnlock(w, resourceID)
}

// VerifyPin checks the PIN against the resource's stored hash. A match
// sets the unlock cookie and returns true; a mismatch returns false
// with no error. ErrPinNotSet is returned when the resource has no PIN.
func (g *Gate) VerifyPin(w http.ResponseWriter, resourceID, pin string) (bool, error) {
	if err := validateResourceID(resourceID); err != nil {
		return false, err
	}
	if err := ValidatePin(pin); err != nil {
		return false, err
	}

	stored, err := g.pins.GetPinHash(resourceID)
	if err != nil {
		if errors.Is(err, store.ErrPinNotFound) {
			return false, ErrPinNotSet
		}
		return false, fmt.Errorf("pingate: get pin: %w", err)
	}

	match, err := g.hasher.Compare(pin, stored)
	if err != nil {
		return false, fmt.Errorf("pingate: compare pin: %w", err)
	}
	if !match {
		return false, nil
	}

	if err := g.setUnlock(w, resourceID); err != nil {
		return false, err
	}
	return true, nil
}

// setUnlock mints an unlock token and sets the resource's cookie.
func (g *Gate) setUnlock(w http.ResponseWriter, resourceID string) error {
	token, err := g.unlockToken(resourceID)
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookiePrefix + resourceID,
		Value:    token,
		Path:     "/",
		MaxAge:   int(g.cfg.TTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   g.cfg.Production,
	})
	return nil
}

// Unlocked reports whether the request carries a valid unlock token for
// the resource. Absent, malformed, forged, expired, and cross-resource
// tokens all read as locked.
func (g *Gate) Unlocked(r *http.Request, resourceID string) bool {
	if validateResourceID(resourceID) != nil {
		return false
	}

	cookie, err := r.Cookie(CookiePrefix + resourceID)
	if err != nil {
		return false
	}

	claims := &jwt.RegisteredClaims{}
	_, err = jwt.ParseWithClaims(cookie.Value, claims,
		func(t *jwt.Token) (any, error) { return []byte(g.cfg.Secret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(g.cfg.Issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return false
	}
	return claims.Subject == resourceID
}

// Lock expires the resource's unlock cookie.
func (g *Gate) Lock(w http.ResponseWriter, resourceID string) error {
	if err := validateResourceID(resourceID); err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookiePrefix + resourceID,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   g.cfg.Production,
	})
	return nil
}

// HasPin reports whether a PIN is set for the resource.
func (g *Gate) HasPin(resourceID string) (bool, error) {
	if err := validateResourceID(resourceID); err != nil {
		return false, err
	}

	_, err := g.pins.GetPinHash(resourceID)
	if err != nil {
		if errors.Is(err, store.ErrPinNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("pingate: get pin: %w", err)
	}
	return true, nil
}

// unlockToken mints a signed token scoped to the resource.
func (g *Gate) unlockToken(resourceID string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    g.cfg.Issuer,
		Subject:   resourceID,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(g.cfg.TTL)),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(g.cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("pingate: sign token: %w", err)
	}
	return token, nil
}

// validateResourceID keeps resource ids safe for use in cookie names.
func validateResourceID(resourceID string) error {
	if resourceID == "" {
		return ErrInvalidResource
	}
	for _, c := range []byte(resourceID) {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return ErrInvalidResource
		}
	}
	return nil
}
