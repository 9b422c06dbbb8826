package pages

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diptrack/diptrack/internal/alerts"
	"github.com/diptrack/diptrack/internal/batches"
	"github.com/diptrack/diptrack/internal/dashboard"
	"github.com/diptrack/diptrack/internal/platform/httpx"
	"github.com/diptrack/diptrack/internal/qc"
	"github.com/diptrack/diptrack/internal/rbac"
	"github.com/diptrack/diptrack/internal/users"
	"github.com/diptrack/diptrack/internal/view"
)

type stubSources struct {
	batches []batches.Batch
	created []batches.CreateBatchInput
}

func (s *stubSources) Metrics(ctx context.Context) (dashboard.Metrics, error) {
	return dashboard.Metrics{OEE: 72.5, ActiveBatches: len(s.batches), GeneratedAt: time.Now()}, nil
}

func (s *stubSources) List(ctx context.Context, filters batches.ListFilters) ([]batches.Batch, int, error) {
	return s.batches, len(s.batches), nil
}

func (s *stubSources) ListStages(ctx context.Context, batchID *uuid.UUID) ([]batches.Stage, error) {
	return []batches.Stage{
		{BatchCode: "LTX-1", StageNumber: 1, StageName: batches.StageName(1), Data: []byte(`{"drc":31}`)},
		{BatchCode: "LTX-1", StageNumber: 2, StageName: batches.StageName(2), Data: []byte(`{}`)},
	}, nil
}

func (s *stubSources) ListGloves(ctx context.Context) ([]batches.GloveBatch, error) {
	return []batches.GloveBatch{{GloveBatchID: "GLV-9", ProductType: batches.ProductSurgicalGlove, Status: batches.StatusInProgress}}, nil
}

func (s *stubSources) Create(ctx context.Context, actorID int64, input batches.CreateBatchInput, key string) (batches.Batch, error) {
	for _, b := range s.batches {
		if b.BatchCode == input.BatchCode {
			return batches.Batch{}, fmt.Errorf("batch code %s already exists: %w", input.BatchCode, httpx.ErrDuplicate)
		}
	}
	s.created = append(s.created, input)
	b := batches.Batch{ID: uuid.New(), BatchCode: input.BatchCode, Status: batches.StatusActive}
	s.batches = append(s.batches, b)
	return b, nil
}

type alertStub struct{}

func (alertStub) List(ctx context.Context, status alerts.Status) ([]alerts.Alert, error) {
	return []alerts.Alert{{ID: uuid.New(), Title: "Coagulant tank low", Severity: alerts.SeverityHigh, Status: alerts.StatusActive}}, nil
}

type qcStub struct{}

func (qcStub) List(ctx context.Context, batchID *uuid.UUID) ([]qc.Result, error) {
	return []qc.Result{{BatchCode: "LTX-1", TestType: "Pinhole", Result: "0 / 100", Passed: true}}, nil
}

type userStub struct{}

func (userStub) ListUsers(ctx context.Context) ([]users.User, error) {
	return []users.User{{ID: 1, Email: "admin@diptrack.com", FullName: "Ada Admin", Roles: []string{"admin"}, IsActive: true}}, nil
}

func newTestRouter(t *testing.T) (*chi.Mux, *stubSources) {
	t.Helper()
	engine, err := view.NewEngine()
	require.NoError(t, err)
	src := &stubSources{batches: []batches.Batch{{ID: uuid.New(), BatchCode: "LTX-1", ProductType: batches.ProductExaminationGlove, Shift: "Day", Status: batches.StatusInProgress, CurrentStage: 2, ProgressPercentage: 20}}}
	h := NewHandler(nil, engine, nil, rbac.Middleware{}, Sources{
		Dashboard: src,
		Batches:   src,
		Alerts:    alertStub{},
		QC:        qcStub{},
		Users:     userStub{},
	})
	r := chi.NewRouter()
	h.MountRoutes(r)
	return r, src
}

func get(r http.Handler, target string, roles ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if roles != nil {
		req = req.WithContext(rbac.ContextWithPrincipal(req.Context(), &rbac.Principal{UserID: 5, Name: "Pat", Roles: roles}))
	}
	res := httptest.NewRecorder()
	r.ServeHTTP(res, req)
	return res
}

func TestPagesRedirectAnonymousToLogin(t *testing.T) {
	r, _ := newTestRouter(t)
	res := get(r, "/batches?status=active")
	assert.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/auth/login?next=%2Fbatches%3Fstatus%3Dactive", res.Header().Get("Location"))
}

func TestPagesRedirectForbiddenToUnauthorized(t *testing.T) {
	r, _ := newTestRouter(t)
	cases := []struct {
		path  string
		roles []string
	}{
		{path: "/admin", roles: []string{"operator"}},
		{path: "/batches/create", roles: []string{"supervisor"}},
		{path: "/gloves", roles: []string{"qc_officer"}},
		{path: "/latex/field", roles: []string{"qc_officer"}},
	}
	for _, tc := range cases {
		res := get(r, tc.path, tc.roles...)
		assert.Equal(t, http.StatusSeeOther, res.Code, tc.path)
		assert.Equal(t, rbac.UnauthorizedPath, res.Header().Get("Location"), tc.path)
	}
}

func TestEveryRouteRendersForAdmin(t *testing.T) {
	r, _ := newTestRouter(t)
	for route := range rbac.Default().Routes() {
		res := get(r, route, "admin")
		assert.Equal(t, http.StatusOK, res.Code, route)
		assert.Contains(t, res.Body.String(), "<html", route)
	}
}

func TestNavigationFollowsRoleGrants(t *testing.T) {
	r, _ := newTestRouter(t)
	res := get(r, "/batches", "operator")
	require.Equal(t, http.StatusOK, res.Code)
	body := res.Body.String()
	assert.Contains(t, body, "LTX-1")
	assert.Contains(t, body, `href="/latex/field"`)
	assert.NotContains(t, body, `href="/admin"`)
	assert.Contains(t, body, `href="/batches/create"`)

	res = get(r, "/batches", "supervisor")
	require.Equal(t, http.StatusOK, res.Code)
	assert.NotContains(t, res.Body.String(), `href="/batches/create"`)
}

func TestNavigationMarksActive(t *testing.T) {
	items := Navigation(rbac.Default(), []string{"qc_officer"}, "/qc")
	require.NotEmpty(t, items)
	var paths []string
	for _, item := range items {
		paths = append(paths, item.Path)
		if item.Path == "/qc" {
			assert.True(t, item.Active)
		} else {
			assert.False(t, item.Active)
		}
	}
	assert.NotContains(t, paths, "/admin")
	assert.NotContains(t, paths, "/gloves")
	assert.Empty(t, Navigation(rbac.Default(), nil, "/"))
}

func TestUnauthorizedPageIsPublic(t *testing.T) {
	r, _ := newTestRouter(t)
	res := get(r, "/unauthorized")
	assert.Equal(t, http.StatusForbidden, res.Code)
	assert.Contains(t, res.Body.String(), "sign in")

	res = get(r, "/unauthorized", "operator")
	assert.Equal(t, http.StatusForbidden, res.Code)
	assert.Contains(t, res.Body.String(), "Pat")
}

func TestCreateBatchForm(t *testing.T) {
	r, src := newTestRouter(t)
	post := func(form url.Values) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/batches/create", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req = req.WithContext(rbac.ContextWithPrincipal(req.Context(), &rbac.Principal{UserID: 5, Roles: []string{"operator"}}))
		res := httptest.NewRecorder()
		r.ServeHTTP(res, req)
		return res
	}

	res := post(url.Values{"batch_code": {""}, "product_type": {batches.ProductSurgicalGlove}, "shift": {"Day"}})
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Contains(t, res.Body.String(), "This field is required")
	assert.Empty(t, src.created)

	res = post(url.Values{"batch_code": {"LTX-1"}, "product_type": {batches.ProductSurgicalGlove}, "shift": {"Day"}})
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Contains(t, res.Body.String(), "already exists")

	res = post(url.Values{"batch_code": {"LTX-2"}, "product_type": {batches.ProductSurgicalGlove}, "shift": {"Night"}})
	assert.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, rbac.RouteBatches, res.Header().Get("Location"))
	require.Len(t, src.created, 1)
	assert.Equal(t, "Night", src.created[0].Shift)
}

func TestAdminListsUsersAndGrants(t *testing.T) {
	r, _ := newTestRouter(t)
	res := get(r, "/admin", "admin")
	require.Equal(t, http.StatusOK, res.Code)
	body := res.Body.String()
	assert.Contains(t, body, "Ada Admin")
	assert.Contains(t, body, "manage_users")
	assert.Contains(t, body, "/latex/process")
}
