package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diptrack/diptrack/internal/alerts"
	"github.com/diptrack/diptrack/internal/auth"
	"github.com/diptrack/diptrack/internal/dashboard"
	"github.com/diptrack/diptrack/internal/observability"
	"github.com/diptrack/diptrack/internal/pages"
	"github.com/diptrack/diptrack/internal/rbac"
	"github.com/diptrack/diptrack/internal/shared"
	_ "github.com/diptrack/diptrack/internal/testing/guard"
	"github.com/diptrack/diptrack/internal/view"
	"github.com/diptrack/diptrack/jobs"
)

const testJWTSecret = "router-test-secret-router-test-secret"

type snapshotStub struct{}

func (snapshotStub) Snapshot(ctx context.Context) (dashboard.Snapshot, error) {
	return dashboard.Snapshot{OpenBatches: 2, MeanProgress: 50, QCTotal: 4, QCPassed: 4}, nil
}

type pingStub struct{ err error }

func (p pingStub) Ping(ctx context.Context) error { return p.err }

type testServer struct {
	handler http.Handler
	tokens  *auth.TokenIssuer
	metrics *observability.Metrics
}

func newTestServer(t *testing.T, db Pinger) testServer {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &Config{AppEnv: "test", AppRequestTimeout: 5 * time.Second}
	metrics := observability.NewMetrics()
	tokens := auth.NewTokenIssuer(testJWTSecret, time.Hour)
	rbacMW := rbac.Middleware{Table: rbac.Default(), Logger: logger, Recorder: metrics}
	csrf := shared.NewCSRFManager("csrf-secret")

	engine, err := view.NewEngine()
	require.NoError(t, err)

	handler := NewRouter(RouterParams{
		Logger:           logger,
		Config:           cfg,
		SessionManager:   shared.NewSessionManager(client, "diptrack_session", "secret", time.Hour, false),
		CSRFManager:      csrf,
		Authenticator:    auth.NewAuthenticator(tokens, logger),
		RBACMiddleware:   rbacMW,
		Metrics:          metrics,
		Database:         db,
		RBACHandler:      rbac.NewHandler(logger, rbac.Default(), rbacMW),
		DashboardHandler: dashboard.NewHandler(logger, dashboard.NewService(snapshotStub{}, nil, logger), rbacMW),
		PagesHandler:     pages.NewHandler(logger, engine, csrf, rbacMW, pages.Sources{}),
		JobHandler:       jobs.NewHandler(nil, logger),
		AlertsHandler:    alerts.NewHandler(logger, nil, rbacMW),
	})
	return testServer{handler: handler, tokens: tokens, metrics: metrics}
}

func (s testServer) bearer(t *testing.T, roles ...string) string {
	t.Helper()
	token, _, err := s.tokens.Issue(&auth.User{ID: 9, Email: "t@diptrack.com", FullName: "Tess", Roles: roles})
	require.NoError(t, err)
	return "Bearer " + token
}

func (s testServer) do(method, target, authz string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	res := httptest.NewRecorder()
	s.handler.ServeHTTP(res, req)
	return res
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, nil)
	res := srv.do(http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, res.Code)
	assert.JSONEq(t, `{"status":"ok"}`, res.Body.String())

	srv = newTestServer(t, pingStub{err: errors.New("down")})
	res = srv.do(http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, res.Code)
}

func TestAPIAuthorization(t *testing.T) {
	srv := newTestServer(t, nil)

	assert.Equal(t, http.StatusUnauthorized, srv.do(http.MethodGet, "/api/dashboard/metrics", "").Code)
	assert.Equal(t, http.StatusUnauthorized, srv.do(http.MethodGet, "/api/dashboard/metrics", "Bearer not-a-token").Code)
	assert.Equal(t, http.StatusOK, srv.do(http.MethodGet, "/api/dashboard/metrics", srv.bearer(t, "operator")).Code)

	assert.Equal(t, http.StatusForbidden, srv.do(http.MethodGet, "/api/rbac/matrix", srv.bearer(t, "supervisor")).Code)
	assert.Equal(t, http.StatusOK, srv.do(http.MethodGet, "/api/rbac/matrix", srv.bearer(t, "admin")).Code)

	res := srv.do(http.MethodGet, "/api/unknown", srv.bearer(t, "admin"))
	assert.Equal(t, http.StatusNotFound, res.Code)
	assert.Equal(t, "application/problem+json", res.Header().Get("Content-Type"))
}

func TestAnonymousAPIWritesAreUnauthenticated(t *testing.T) {
	srv := newTestServer(t, nil)

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		res := srv.do(method, "/api/alerts", "")
		assert.Equal(t, http.StatusUnauthorized, res.Code, method)
		assert.Equal(t, "application/problem+json", res.Header().Get("Content-Type"), method)
	}
	res := srv.do(http.MethodPatch, "/api/alerts/4", "")
	assert.Equal(t, http.StatusUnauthorized, res.Code)

	res = srv.do(http.MethodPost, "/api/alerts", srv.bearer(t, "qc_officer"))
	assert.Equal(t, http.StatusForbidden, res.Code)

	res = srv.do(http.MethodPost, "/api/dashboard/metrics", srv.bearer(t, "admin"))
	assert.Equal(t, http.StatusMethodNotAllowed, res.Code)
}

func TestJobsHealthRequiresSystemConfig(t *testing.T) {
	srv := newTestServer(t, nil)
	assert.Equal(t, http.StatusUnauthorized, srv.do(http.MethodGet, "/jobs/health", "").Code)
	assert.Equal(t, http.StatusForbidden, srv.do(http.MethodGet, "/jobs/health", srv.bearer(t, "supervisor")).Code)
	assert.Equal(t, http.StatusOK, srv.do(http.MethodGet, "/jobs/health", srv.bearer(t, "admin")).Code)
}

func TestPagesRedirectToLogin(t *testing.T) {
	srv := newTestServer(t, nil)
	res := srv.do(http.MethodGet, "/dashboard", "")
	assert.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/auth/login?next=%2Fdashboard", res.Header().Get("Location"))

	res = srv.do(http.MethodGet, "/unauthorized", "")
	assert.Equal(t, http.StatusForbidden, res.Code)
	assert.Equal(t, "DENY", res.Header().Get("X-Frame-Options"))
}

func TestStaticAssets(t *testing.T) {
	srv := newTestServer(t, nil)
	res := srv.do(http.MethodGet, "/static/css/app.css", "")
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "public, max-age=3600", res.Header().Get("Cache-Control"))
	assert.Contains(t, res.Header().Get("Content-Type"), "text/css")
}

func TestMetricsEndpointExposesDecisions(t *testing.T) {
	srv := newTestServer(t, nil)
	srv.do(http.MethodGet, "/api/dashboard/metrics", "")
	res := srv.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), "diptrack_authz_decisions_total")
	assert.Contains(t, res.Body.String(), "diptrack_http_requests_total")
}

func TestInTestModeUnderGoTest(t *testing.T) {
	RefreshTestMode()
	assert.True(t, InTestMode())
}
