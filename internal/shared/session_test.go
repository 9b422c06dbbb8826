package shared

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSessionManager(t *testing.T) (*SessionManager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSessionManager(client, "diptrack_session", "secret", time.Hour, false), mr
}

func commitAndCookie(t *testing.T, sm *SessionManager, sess *Session) *http.Cookie {
	t.Helper()
	res := httptest.NewRecorder()
	require.NoError(t, sm.Commit(context.Background(), res, httptest.NewRequest(http.MethodGet, "/", nil), sess))
	cookies := res.Result().Cookies()
	require.Len(t, cookies, 1)
	return cookies[0]
}

func reload(t *testing.T, sm *SessionManager, cookie *http.Cookie) *Session {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	sess, err := sm.Load(context.Background(), req)
	require.NoError(t, err)
	return sess
}

func TestSessionPersistsIdentity(t *testing.T) {
	sm, _ := newTestSessionManager(t)
	sess, err := sm.Load(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	_, ok := sess.Identity()
	assert.False(t, ok)

	require.NoError(t, sm.SignIn(sess, Identity{UserID: 42, Email: "op@diptrack.local", Name: "Op", Roles: []string{"operator", "qc_officer"}}))
	loaded := reload(t, sm, commitAndCookie(t, sm, sess))

	id, ok := loaded.Identity()
	require.True(t, ok)
	assert.Equal(t, int64(42), id.UserID)
	assert.Equal(t, "Op", id.Name)
	assert.Equal(t, []string{"operator", "qc_officer"}, id.Roles)

	id.Roles[0] = "admin"
	again, _ := loaded.Identity()
	assert.Equal(t, "operator", again.Roles[0])
}

func TestSignInRotatesSessionID(t *testing.T) {
	sm, mr := newTestSessionManager(t)
	sess, err := sm.Load(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	sess.Set(CSRFSessionKey, "pre-login-token")
	anonymous := reload(t, sm, commitAndCookie(t, sm, sess))
	oldID := anonymous.ID
	require.True(t, mr.Exists(sessionKeyPrefix+oldID))

	require.NoError(t, sm.SignIn(anonymous, Identity{UserID: 7, Roles: []string{"supervisor"}}))
	assert.NotEqual(t, oldID, anonymous.ID)
	assert.Empty(t, anonymous.Get(CSRFSessionKey))

	cookie := commitAndCookie(t, sm, anonymous)
	assert.Equal(t, anonymous.ID, cookie.Value)
	assert.False(t, mr.Exists(sessionKeyPrefix+oldID))
	assert.True(t, mr.Exists(sessionKeyPrefix+anonymous.ID))
}

func TestUnknownCookieGetsFreshID(t *testing.T) {
	sm, _ := newTestSessionManager(t)
	sess := reload(t, sm, &http.Cookie{Name: "diptrack_session", Value: "attacker-chosen"})
	assert.NotEqual(t, "attacker-chosen", sess.ID)
	_, ok := sess.Identity()
	assert.False(t, ok)
}

func TestUntouchedSessionSlidesExpiry(t *testing.T) {
	sm, mr := newTestSessionManager(t)
	sess, err := sm.Load(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	cookie := commitAndCookie(t, sm, sess)

	mr.FastForward(30 * time.Minute)
	assert.Equal(t, 30*time.Minute, mr.TTL(sessionKeyPrefix+sess.ID))

	commitAndCookie(t, sm, reload(t, sm, cookie))
	assert.Equal(t, time.Hour, mr.TTL(sessionKeyPrefix+sess.ID))
}

func TestFlashShownOnce(t *testing.T) {
	sm, _ := newTestSessionManager(t)
	sess, err := sm.Load(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	sess.AddFlash(FlashMessage{Kind: "success", Message: "Batch LTX-1 created"})
	cookie := commitAndCookie(t, sm, sess)

	next := reload(t, sm, cookie)
	flash := next.PopFlash()
	require.NotNil(t, flash)
	assert.Equal(t, "Batch LTX-1 created", flash.Message)
	commitAndCookie(t, sm, next)

	assert.Nil(t, reload(t, sm, cookie).PopFlash())
}

func TestSessionDestroyRemovesState(t *testing.T) {
	sm, mr := newTestSessionManager(t)
	ctx := context.Background()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := sm.Load(ctx, req)
	require.NoError(t, err)
	require.NoError(t, sm.SignIn(sess, Identity{UserID: 7}))
	commitAndCookie(t, sm, sess)
	assert.True(t, mr.Exists(sessionKeyPrefix+sess.ID))

	sm.Destroy(sess)
	res := httptest.NewRecorder()
	require.NoError(t, sm.Commit(ctx, res, req, sess))
	assert.False(t, mr.Exists(sessionKeyPrefix+sess.ID))
	require.Len(t, res.Result().Cookies(), 1)
	assert.Equal(t, -1, res.Result().Cookies()[0].MaxAge)
}

func TestCSRFTokenLifecycle(t *testing.T) {
	sm, _ := newTestSessionManager(t)
	csrf := NewCSRFManager("csrf-secret")
	sess, err := sm.Load(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)

	token, err := csrf.EnsureToken(context.Background(), sess)
	require.NoError(t, err)
	again, err := csrf.EnsureToken(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, token, again)

	assert.NoError(t, csrf.VerifyToken(context.Background(), sess, token))
	assert.ErrorIs(t, csrf.VerifyToken(context.Background(), sess, "forged"), ErrCSRFTokenMismatch)
	assert.ErrorIs(t, csrf.VerifyToken(context.Background(), sess, ""), ErrCSRFTokenMissing)
}

func TestPageRequest(t *testing.T) {
	p := PageFromRequest(httptest.NewRequest(http.MethodGet, "/?page=3&per_page=10", nil))
	assert.Equal(t, 10, p.Limit())
	assert.Equal(t, 20, p.Offset())

	p = PageFromRequest(httptest.NewRequest(http.MethodGet, "/?page=-1&per_page=5000", nil))
	assert.Equal(t, MaxPerPage, p.Limit())
	assert.Equal(t, 0, p.Offset())

	meta := NewPagination(2, 10, 35)
	assert.Equal(t, 4, meta.TotalPages)
}

func TestCSRFTokenBoundToSecretAndSession(t *testing.T) {
	sm, _ := newTestSessionManager(t)
	ctx := context.Background()
	sess, err := sm.Load(ctx, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)

	token, err := NewCSRFManager("one").EnsureToken(ctx, sess)
	require.NoError(t, err)
	assert.ErrorIs(t, NewCSRFManager("two").VerifyToken(ctx, sess, token), ErrCSRFTokenMismatch)

	other, err := sm.Load(ctx, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	other.Set(CSRFSessionKey, token)
	assert.ErrorIs(t, NewCSRFManager("one").VerifyToken(ctx, other, token), ErrCSRFTokenMismatch)
	assert.ErrorIs(t, NewCSRFManager("one").VerifyToken(ctx, nil, token), ErrCSRFTokenMissing)
}
