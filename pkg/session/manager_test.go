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
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carebridge/carebridge/pkg/storage"
	"github.com/carebridge/carebridge/pkg/storage/file"
)

func newTestManager(t *testing.T, backend storage.Backend) *Manager {
	t.Helper()
	m, err := NewManager(&Config{Secret: "test-secret"}, backend)
	require.NoError(t, err)
	return m
}

// requestWithCookies carries the Set-Cookie headers from a prior
// response into a new request, the way a browser would.
func requestWithCookies(rec *httptest.ResponseRecorder) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	return req
}

func TestManager_RequiresSecret(t *testing.T) {
	_, err := NewManager(&Config{}, storage.NewMemory())
	assert.ErrorIs(t, err, ErrSecretRequired)

	_, err = NewManager(nil, storage.NewMemory())
	assert.ErrorIs(t, err, ErrSecretRequired)
}

func TestManager_IssueAndLoad(t *testing.T) {
	m := newTestManager(t, storage.NewMemory())

	rec := httptest.NewRecorder()
	sess, err := m.Issue(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.NotEmpty(t, sess.ID)
	assert.False(t, sess.Authenticated())

	loaded, err := m.Load(requestWithCookies(rec))
	require.NoError(t, err)
	assert.Equal(t, sess.ID, loaded.ID)
}

func TestManager_IssueReusesExistingSession(t *testing.T) {
	m := newTestManager(t, storage.NewMemory())

	rec := httptest.NewRecorder()
	first, err := m.Issue(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)

	second, err := m.Issue(httptest.NewRecorder(), requestWithCookies(rec))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestManager_LoadNoCookie(t *testing.T) {
	m := newTestManager(t, storage.NewMemory())

	_, err := m.Load(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestManager_LoadForgedCookie(t *testing.T) {
	backend := storage.NewMemory()
	m := newTestManager(t, backend)

	rec := httptest.NewRecorder()
	sess, err := m.Issue(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)

	// A cookie signed with a different secret must not resolve, even
	// though the session record exists.
	other, err := NewManager(&Config{Secret: "other-secret"}, backend)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: other.signCookieValue(sess.ID)})

	_, err = m.Load(req)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestManager_LoadExpired(t *testing.T) {
	backend := storage.NewMemory()
	m := newTestManager(t, backend)

	rec := httptest.NewRecorder()
	sess, err := m.Issue(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)

	sess.ExpiresAt = time.Now().Add(-time.Minute)
	require.NoError(t, m.save(sess))

	_, err = m.Load(requestWithCookies(rec))
	assert.ErrorIs(t, err, ErrSessionExpired)

	// The expired record is removed on load.
	_, err = backend.Get(storagePrefix + sess.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestManager_AuthenticateRotatesID(t *testing.T) {
	backend := storage.NewMemory()
	m := newTestManager(t, backend)

	rec := httptest.NewRecorder()
	sess, err := m.Issue(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	anonID := sess.ID

	authRec := httptest.NewRecorder()
	require.NoError(t, m.Authenticate(authRec, sess, 42))

	assert.NotEqual(t, anonID, sess.ID)
	assert.True(t, sess.Authenticated())
	assert.EqualValues(t, 42, sess.UserID)

	// The pre-authentication record is gone.
	_, err = backend.Get(storagePrefix + anonID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	loaded, err := m.Load(requestWithCookies(authRec))
	require.NoError(t, err)
	assert.EqualValues(t, 42, loaded.UserID)
}

func TestManager_DestroyIdempotent(t *testing.T) {
	m := newTestManager(t, storage.NewMemory())

	rec := httptest.NewRecorder()
	sess, err := m.Issue(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)

	require.NoError(t, m.Destroy(httptest.NewRecorder(), sess))
	require.NoError(t, m.Destroy(httptest.NewRecorder(), sess))
	require.NoError(t, m.Destroy(httptest.NewRecorder(), nil))

	_, err = m.Load(requestWithCookies(rec))
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestManager_CeremonySingleUse(t *testing.T) {
	m := newTestManager(t, storage.NewMemory())

	rec := httptest.NewRecorder()
	sess, err := m.Issue(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)

	data := &webauthn.SessionData{Challenge: "test-challenge"}
	require.NoError(t, m.SetCeremony(sess, CeremonyRegistration, data))

	got, err := m.TakeCeremony(sess, CeremonyRegistration)
	require.NoError(t, err)
	assert.Equal(t, "test-challenge", got.Challenge)

	// A second take must fail: the challenge is consumed.
	_, err = m.TakeCeremony(sess, CeremonyRegistration)
	assert.ErrorIs(t, err, ErrChallengeMissing)
}

func TestManager_CeremonyKindMismatch(t *testing.T) {
	m := newTestManager(t, storage.NewMemory())

	rec := httptest.NewRecorder()
	sess, err := m.Issue(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)

	data := &webauthn.SessionData{Challenge: "test-challenge"}
	require.NoError(t, m.SetCeremony(sess, CeremonyRegistration, data))

	// Finishing a login against a registration challenge fails, and
	// the mismatched take still clears the challenge.
	_, err = m.TakeCeremony(sess, CeremonyAuthentication)
	assert.ErrorIs(t, err, ErrChallengeMissing)

	_, err = m.TakeCeremony(sess, CeremonyRegistration)
	assert.ErrorIs(t, err, ErrChallengeMissing)
}

func TestManager_CeremonyOverwrite(t *testing.T) {
	m := newTestManager(t, storage.NewMemory())

	rec := httptest.NewRecorder()
	sess, err := m.Issue(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)

	require.NoError(t, m.SetCeremony(sess, CeremonyRegistration, &webauthn.SessionData{Challenge: "first"}))
	require.NoError(t, m.SetCeremony(sess, CeremonyAuthentication, &webauthn.SessionData{Challenge: "second"}))

	got, err := m.TakeCeremony(sess, CeremonyAuthentication)
	require.NoError(t, err)
	assert.Equal(t, "second", got.Challenge)
}

func TestManager_PersistsAcrossRestart(t *testing.T) {
	backend, err := file.New(t.TempDir())
	require.NoError(t, err)

	m := newTestManager(t, backend)

	rec := httptest.NewRecorder()
	sess, err := m.Issue(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	require.NoError(t, m.Authenticate(rec, sess, 7))

	// A new manager over the same directory sees the session.
	m2 := newTestManager(t, backend)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	// Use the rotated cookie from the Authenticate response.
	cookies := rec.Result().Cookies()
	req.AddCookie(cookies[len(cookies)-1])

	loaded, err := m2.Load(req)
	require.NoError(t, err)
	assert.EqualValues(t, 7, loaded.UserID)
}

func TestManager_Cleanup(t *testing.T) {
	backend := storage.NewMemory()
	m := newTestManager(t, backend)

	live, err := m.Issue(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)

	stale, err := m.Issue(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	stale.ExpiresAt = time.Now().Add(-time.Hour)
	require.NoError(t, m.save(stale))

	removed, err := m.Cleanup()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = backend.Get(storagePrefix + live.ID)
	assert.NoError(t, err)
	_, err = backend.Get(storagePrefix + stale.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
