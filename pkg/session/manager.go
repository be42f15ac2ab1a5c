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

package session

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"

	"github.com/carebridge/carebridge/pkg/storage"
)

const (
	// DefaultCookieName is the primary session cookie name.
	DefaultCookieName = "carebridge_session"

	// DefaultTTL is the session lifetime.
	DefaultTTL = 7 * 24 * time.Hour

	// storagePrefix namespaces session records in the backend.
	storagePrefix = "sessions/"
)

var (
	// ErrSecretRequired is returned when no signing secret is configured.
	ErrSecretRequired = errors.New("session: signing secret is required")

	// ErrNoSession is returned when the request carries no valid session.
	ErrNoSession = errors.New("session: no session")

	// ErrSessionExpired is returned when the session record has expired.
	ErrSessionExpired = errors.New("session: expired")

	// ErrChallengeMissing is returned when a ceremony finish is attempted
	// without a matching stored challenge. The caller must restart the
	// ceremony.
	ErrChallengeMissing = errors.New("session: no challenge for ceremony")
)

// Config holds session manager configuration.
type Config struct {
	// Secret signs session cookies. Required.
	Secret string

	// CookieName overrides DefaultCookieName.
	CookieName string

	// TTL overrides DefaultTTL.
	TTL time.Duration

	// Production toggles the Secure cookie attribute.
	Production bool
}

// Manager issues, loads, and destroys sessions.
type Manager struct {
	cfg     Config
	backend storage.Backend
}

// NewManager creates a session manager over the given storage backend.
func NewManager(cfg *Config, backend storage.Backend) (*Manager, error) {
	if cfg == nil || cfg.Secret == "" {
		return nil, ErrSecretRequired
	}
	if backend == nil {
		return nil, errors.New("session: storage backend is required")
	}

	c := *cfg
	if c.CookieName == "" {
		c.CookieName = DefaultCookieName
	}
	if c.TTL == 0 {
		c.TTL = DefaultTTL
	}

	return &Manager{cfg: c, backend: backend}, nil
}

// CookieName returns the configured session cookie name.
func (m *Manager) CookieName() string {
	return m.cfg.CookieName
}

// Load returns the session referenced by the request's cookie.
// Returns ErrNoSession for absent, forged, or unknown cookies and
// ErrSessionExpired for expired records.
func (m *Manager) Load(r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(m.cfg.CookieName)
	if err != nil {
		return nil, ErrNoSession
	}

	id, err := m.verifyCookieValue(cookie.Value)
	if err != nil {
		return nil, ErrNoSession
	}

	data, err := m.backend.Get(storagePrefix + id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNoSession
		}
		return nil, fmt.Errorf("session: load: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, ErrNoSession
	}

	if time.Now().After(sess.ExpiresAt) {
		// Best-effort removal of the stale record.
		_ = m.backend.Delete(storagePrefix + id)
		return nil, ErrSessionExpired
	}

	return &sess, nil
}

// Issue returns the request's session, creating a fresh anonymous one
// (and setting its cookie) when none exists.
func (m *Manager) Issue(w http.ResponseWriter, r *http.Request) (*Session, error) {
	if sess, err := m.Load(r); err == nil {
		return sess, nil
	}

	now := time.Now()
	sess := &Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		ExpiresAt: now.Add(m.cfg.TTL),
	}

	if err := m.save(sess); err != nil {
		return nil, err
	}
	m.setCookie(w, sess.ID)
	return sess, nil
}

// Authenticate binds the session to a user. The session id is rotated
// so a pre-authentication cookie can never be replayed as an
// authenticated one.
func (m *Manager) Authenticate(w http.ResponseWriter, sess *Session, userID int64) error {
	oldID := sess.ID

	now := time.Now()
	sess.ID = uuid.NewString()
	sess.UserID = userID
	sess.Ceremony = nil
	sess.CreatedAt = now
	sess.ExpiresAt = now.Add(m.cfg.TTL)

	if err := m.save(sess); err != nil {
		return err
	}
	_ = m.backend.Delete(storagePrefix + oldID)
	m.setCookie(w, sess.ID)
	return nil
}

// Destroy removes the session record and expires the cookie.
// Destroying an already-destroyed session is not an error.
func (m *Manager) Destroy(w http.ResponseWriter, sess *Session) error {
	if sess != nil {
		if err := m.backend.Delete(storagePrefix + sess.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("session: destroy: %w", err)
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   m.cfg.Production,
	})
	return nil
}

// SetCeremony stores the in-flight ceremony challenge. A second start
// in the same session overwrites the first (last-write-wins).
func (m *Manager) SetCeremony(sess *Session, kind CeremonyKind, data *webauthn.SessionData) error {
	sess.Ceremony = &Ceremony{Kind: kind, Data: *data}
	return m.save(sess)
}

// TakeCeremony returns the stored challenge for the given ceremony kind
// and clears it in the same step, making every challenge single-use.
// A missing or mismatched ceremony yields ErrChallengeMissing.
func (m *Manager) TakeCeremony(sess *Session, kind CeremonyKind) (*webauthn.SessionData, error) {
	c := sess.Ceremony
	sess.Ceremony = nil

	// Persist the cleared state before reporting any outcome, so a
	// replayed finish can never observe the old challenge.
	if err := m.save(sess); err != nil {
		return nil, err
	}

	if c == nil || c.Kind != kind {
		return nil, ErrChallengeMissing
	}
	return &c.Data, nil
}

// Cleanup removes expired session records. Returns how many were removed.
func (m *Manager) Cleanup() (int, error) {
	keys, err := m.backend.List(storagePrefix)
	if err != nil {
		return 0, fmt.Errorf("session: cleanup: %w", err)
	}

	removed := 0
	now := time.Now()
	for _, key := range keys {
		data, err := m.backend.Get(key)
		if err != nil {
			continue
		}
		var sess Session
		if err := json.Unmarshal(data, &sess); err != nil || now.After(sess.ExpiresAt) {
			if m.backend.Delete(key) == nil {
				removed++
			}
		}
	}
	return removed, nil
}

// save persists the session record.
func (m *Manager) save(sess *Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("session: marshal: %w", err)
	}
	if err := m.backend.Put(storagePrefix+sess.ID, data, nil); err != nil {
		return fmt.Errorf("session: save: %w", err)
	}
	return nil
}

// setCookie writes the signed session cookie.
func (m *Manager) setCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    m.signCookieValue(id),
		Path:     "/",
		MaxAge:   int(m.cfg.TTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   m.cfg.Production,
	})
}

// signCookieValue produces "id.hex(hmac-sha256(secret, id))".
func (m *Manager) signCookieValue(id string) string {
	return id + "." + hex.EncodeToString(m.sign(id))
}

// verifyCookieValue checks the signature and returns the session id.
func (m *Manager) verifyCookieValue(value string) (string, error) {
	id, sigHex, ok := strings.Cut(value, ".")
	if !ok || id == "" {
		return "", ErrNoSession
	}

	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return "", ErrNoSession
	}
	if subtle.ConstantTimeCompare(sig, m.sign(id)) != 1 {
		return "", ErrNoSession
	}
	return id, nil
}

func (m *Manager) sign(id string) []byte {
	mac := hmac.New(sha256.New, []byte(m.cfg.Secret))
	mac.Write([]byte(id))
	return mac.Sum(nil)
}
