package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/diptrack/diptrack/internal/auth"
	"github.com/diptrack/diptrack/internal/shared"
	"github.com/diptrack/diptrack/internal/view"
	_ "github.com/diptrack/diptrack/testing"
)

const secret = "0123456789abcdef0123456789abcdef"

type stubRepo struct {
	user     *auth.User
	sessions map[string]int64
}

func (s *stubRepo) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	if s.user == nil || !strings.EqualFold(s.user.Email, email) {
		return nil, shared.ErrNotFound
	}
	return s.user, nil
}

func (s *stubRepo) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	if s.sessions == nil {
		s.sessions = make(map[string]int64)
	}
	s.sessions[id] = userID
	return nil
}

func (s *stubRepo) DeleteSession(ctx context.Context, id string) error {
	delete(s.sessions, id)
	return nil
}

type fixture struct {
	router   chi.Router
	sessions *shared.SessionManager
	tokens   *auth.TokenIssuer
}

func newFixture(t *testing.T, repo auth.Repository) fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })
	sessionManager := shared.NewSessionManager(redisClient, "test_session", "secret", time.Hour, false)
	csrfManager := shared.NewCSRFManager("csrfsecret")
	templates, err := view.NewEngine()
	require.NoError(t, err)
	tokens := auth.NewTokenIssuer(secret, time.Hour)
	handler := auth.NewHandler(nil, auth.NewService(repo), tokens, templates, sessionManager, csrfManager)

	r := chi.NewRouter()
	r.Route("/auth", handler.MountRoutes)
	r.Route("/api/auth", handler.MountAPIRoutes)
	return fixture{router: r, sessions: sessionManager, tokens: tokens}
}

func hashed(t *testing.T, password string) string {
	t.Helper()
	out, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(out)
}

// serveWithSession loads the session for req, runs the router and commits.
func (f fixture) serveWithSession(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, *shared.Session) {
	t.Helper()
	sess, err := f.sessions.Load(context.Background(), req)
	require.NoError(t, err)
	ctx := shared.ContextWithSession(req.Context(), sess)
	req = req.WithContext(ctx)
	res := httptest.NewRecorder()
	f.router.ServeHTTP(res, req)
	require.NoError(t, f.sessions.Commit(ctx, res, req, sess))
	return res, sess
}

func TestLoginPage(t *testing.T) {
	f := newFixture(t, &stubRepo{})
	res, _ := f.serveWithSession(t, httptest.NewRequest(http.MethodGet, "/auth/login?next=%2Fqc", nil))

	require.Equal(t, http.StatusOK, res.Code)
	body := res.Body.String()
	assert.Contains(t, body, "<form")
	assert.Contains(t, body, `value="/qc"`)
}

func TestLoginInvalidCredentials(t *testing.T) {
	repo := &stubRepo{user: &auth.User{ID: 1, Email: "user@diptrack.com", PasswordHash: hashed(t, "correctpass"), IsActive: true, Roles: []string{"operator"}}}
	f := newFixture(t, repo)

	form := url.Values{}
	form.Set("email", "user@diptrack.com")
	form.Set("password", "wrongpass")
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, sess := f.serveWithSession(t, req)
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Contains(t, res.Body.String(), "Invalid email or password")
	_, signedIn := sess.Identity()
	assert.False(t, signedIn)
	assert.Empty(t, repo.sessions)
}

func TestLoginStoresRolesInSession(t *testing.T) {
	repo := &stubRepo{user: &auth.User{ID: 3, Email: "qc@diptrack.com", FullName: "Quinn", PasswordHash: hashed(t, "qcpassword"), IsActive: true, Roles: []string{"qc_officer"}}}
	f := newFixture(t, repo)

	form := url.Values{}
	form.Set("email", "qc@diptrack.com")
	form.Set("password", "qcpassword")
	form.Set("next", "/qc")
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, sess := f.serveWithSession(t, req)
	assert.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/qc", res.Header().Get("Location"))
	id, ok := sess.Identity()
	require.True(t, ok)
	assert.Equal(t, int64(3), id.UserID)
	assert.Equal(t, "Quinn", id.Name)
	assert.Equal(t, []string{"qc_officer"}, id.Roles)
	assert.Equal(t, int64(3), repo.sessions[sess.ID])
}

func TestLoginDoesNotEnforcePasswordLength(t *testing.T) {
	for _, password := range []string{"qc123", "qcofficer123"} {
		t.Run(password, func(t *testing.T) {
			repo := &stubRepo{user: &auth.User{ID: 4, Email: "qc@diptrack.local", FullName: "QC Officer", PasswordHash: hashed(t, password), IsActive: true, Roles: []string{"qc_officer"}}}
			f := newFixture(t, repo)

			form := url.Values{}
			form.Set("email", "qc@diptrack.local")
			form.Set("password", password)
			req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

			res, sess := f.serveWithSession(t, req)
			assert.Equal(t, http.StatusSeeOther, res.Code)
			id, ok := sess.Identity()
			require.True(t, ok)
			assert.Equal(t, []string{"qc_officer"}, id.Roles)
		})
	}
}

func TestLoginRejectsInactiveUser(t *testing.T) {
	repo := &stubRepo{user: &auth.User{ID: 3, Email: "old@diptrack.com", PasswordHash: hashed(t, "oldpassword"), IsActive: false, Roles: []string{"admin"}}}
	f := newFixture(t, repo)

	form := url.Values{}
	form.Set("email", "old@diptrack.com")
	form.Set("password", "oldpassword")
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, _ := f.serveWithSession(t, req)
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestLogoutDestroysSession(t *testing.T) {
	repo := &stubRepo{}
	f := newFixture(t, repo)
	res, _ := f.serveWithSession(t, httptest.NewRequest(http.MethodPost, "/auth/logout", nil))
	assert.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/auth/login", res.Header().Get("Location"))
}

func TestTokenExchange(t *testing.T) {
	repo := &stubRepo{user: &auth.User{ID: 2, Email: "op@diptrack.com", PasswordHash: hashed(t, "operator1"), IsActive: true, Roles: []string{"operator"}}}
	f := newFixture(t, repo)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/token", strings.NewReader(`{"email":"op@diptrack.com","password":"operator1"}`))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	f.router.ServeHTTP(res, req)
	require.Equal(t, http.StatusOK, res.Code)

	var body struct {
		AccessToken string   `json:"accessToken"`
		TokenType   string   `json:"tokenType"`
		Roles       []string `json:"roles"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	assert.Equal(t, "Bearer", body.TokenType)
	assert.Equal(t, []string{"operator"}, body.Roles)

	principal, err := f.tokens.Parse(body.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, int64(2), principal.UserID)
}

func TestTokenExchangeFailures(t *testing.T) {
	repo := &stubRepo{user: &auth.User{ID: 2, Email: "op@diptrack.com", PasswordHash: hashed(t, "operator1"), IsActive: true, Roles: []string{"operator"}}}
	f := newFixture(t, repo)

	cases := map[string]struct {
		body   string
		status int
	}{
		"wrong password": {body: `{"email":"op@diptrack.com","password":"nope"}`, status: http.StatusUnauthorized},
		"unknown user":   {body: `{"email":"ghost@diptrack.com","password":"operator1"}`, status: http.StatusUnauthorized},
		"missing email":  {body: `{"password":"operator1"}`, status: http.StatusBadRequest},
		"unknown field":  {body: `{"email":"op@diptrack.com","password":"operator1","role":"admin"}`, status: http.StatusBadRequest},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/auth/token", strings.NewReader(tc.body))
			res := httptest.NewRecorder()
			f.router.ServeHTTP(res, req)
			assert.Equal(t, tc.status, res.Code)
		})
	}
}
