package pages

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/diptrack/diptrack/internal/alerts"
	"github.com/diptrack/diptrack/internal/batches"
	"github.com/diptrack/diptrack/internal/dashboard"
	"github.com/diptrack/diptrack/internal/platform/httpx"
	"github.com/diptrack/diptrack/internal/qc"
	"github.com/diptrack/diptrack/internal/rbac"
	"github.com/diptrack/diptrack/internal/shared"
	"github.com/diptrack/diptrack/internal/users"
)

type dashboardPage struct {
	Metrics      dashboard.Metrics
	RecentAlerts []alerts.Alert
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.src.Dashboard.Metrics(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	page := dashboardPage{Metrics: metrics}
	if h.rbac.Allowed(r, rbac.PermViewAlerts) {
		active, err := h.src.Alerts.List(r.Context(), alerts.StatusActive)
		if err != nil {
			h.logger.Warn("dashboard alerts", slog.Any("error", err))
		}
		if len(active) > 5 {
			active = active[:5]
		}
		page.RecentAlerts = active
	}
	h.render(w, r, http.StatusOK, "pages/dashboard.html", "Dashboard", page)
}

type batchesPage struct {
	Items      []batches.Batch
	Pagination shared.Pagination
	Status     string
	CanCreate  bool
}

func (h *Handler) batches(w http.ResponseWriter, r *http.Request) {
	pageReq := shared.PageFromRequest(r)
	status := r.URL.Query().Get("status")
	items, total, err := h.src.Batches.List(r.Context(), batches.ListFilters{
		Status: batches.Status(status),
		Limit:  pageReq.Limit(),
		Offset: pageReq.Offset(),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "pages/batches.html", "Batches", batchesPage{
		Items:      items,
		Pagination: shared.NewPagination(pageReq.Page, pageReq.PerPage, total),
		Status:     status,
		CanCreate:  h.table.CanAccessRoute(rbac.RolesFromContext(r.Context()), rbac.RouteBatchCreate),
	})
}

type batchFormPage struct {
	Form         batches.CreateBatchInput
	Errors       map[string]string
	ProductTypes []string
}

func (h *Handler) batchForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "pages/batch_create.html", "New batch", batchFormPage{
		Form:         batches.CreateBatchInput{Shift: "Day"},
		ProductTypes: batches.GloveProductTypes(),
	})
}

func (h *Handler) createBatch(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.fail(w, r, err)
		return
	}
	input := batches.CreateBatchInput{
		BatchCode:   strings.TrimSpace(r.PostFormValue("batch_code")),
		ProductType: strings.TrimSpace(r.PostFormValue("product_type")),
		Shift:       strings.TrimSpace(r.PostFormValue("shift")),
		Notes:       strings.TrimSpace(r.PostFormValue("notes")),
	}
	formErrs := map[string]string{}
	if err := h.validate.Struct(input); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				formErrs[fe.Field()] = fieldMessage(fe)
			}
		} else {
			formErrs["general"] = err.Error()
		}
	}
	if len(formErrs) == 0 {
		batch, err := h.src.Batches.Create(r.Context(), actorID(r), input, r.PostFormValue("idempotency_key"))
		if err == nil {
			shared.AddFlash(r.Context(), "success", "Batch "+batch.BatchCode+" created")
			http.Redirect(w, r, rbac.RouteBatches, http.StatusSeeOther)
			return
		}
		if !errors.Is(err, httpx.ErrDuplicate) && !errors.Is(err, httpx.ErrConflict) && !errors.Is(err, httpx.ErrValidation) {
			h.fail(w, r, err)
			return
		}
		formErrs["general"] = shared.UserSafeMessage(err)
	}
	h.render(w, r, http.StatusBadRequest, "pages/batch_create.html", "New batch", batchFormPage{
		Form:         input,
		Errors:       formErrs,
		ProductTypes: batches.GloveProductTypes(),
	})
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required"
	case "max":
		return "Must be at most " + fe.Param() + " characters"
	default:
		return "Invalid value"
	}
}

type alertsPage struct {
	Items          []alerts.Alert
	Status         string
	CanAcknowledge bool
	CanAssign      bool
}

func (h *Handler) alerts(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	items, err := h.src.Alerts.List(r.Context(), alerts.Status(status))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "pages/alerts.html", "Alerts", alertsPage{
		Items:          items,
		Status:         status,
		CanAcknowledge: h.rbac.Allowed(r, rbac.PermAcknowledgeAlerts),
		CanAssign:      h.rbac.Allowed(r, rbac.PermAssignAlerts),
	})
}

type qcPage struct {
	Results   []qc.Result
	CanRecord bool
}

func (h *Handler) qc(w http.ResponseWriter, r *http.Request) {
	var results []qc.Result
	if h.rbac.Allowed(r, rbac.PermViewQCResults) {
		var err error
		results, err = h.src.QC.List(r.Context(), nil)
		if err != nil {
			h.fail(w, r, err)
			return
		}
	}
	h.render(w, r, http.StatusOK, "pages/qc.html", "Quality control", qcPage{
		Results:   results,
		CanRecord: h.rbac.Allowed(r, rbac.PermCreateQCResult),
	})
}

type stagesPage struct {
	Stages    []batches.Stage
	Batches   []batches.Batch
	CanRecord bool
}

func (h *Handler) fieldLatex(w http.ResponseWriter, r *http.Request) {
	stages, err := h.src.Batches.ListStages(r.Context(), nil)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	field := stages[:0:0]
	for _, st := range stages {
		if st.StageNumber == 1 {
			field = append(field, st)
		}
	}
	h.render(w, r, http.StatusOK, "pages/latex_field.html", "Field latex", stagesPage{
		Stages:    field,
		CanRecord: h.rbac.Allowed(r, rbac.PermCreateFieldLatex),
	})
}

func (h *Handler) latexProcess(w http.ResponseWriter, r *http.Request) {
	stages, err := h.src.Batches.ListStages(r.Context(), nil)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	all, _, err := h.src.Batches.List(r.Context(), batches.ListFilters{Limit: shared.MaxPerPage})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var open []batches.Batch
	for _, b := range all {
		if b.Status.Open() {
			open = append(open, b)
		}
	}
	h.render(w, r, http.StatusOK, "pages/latex_process.html", "Latex process", stagesPage{
		Stages:    stages,
		Batches:   open,
		CanRecord: h.rbac.Allowed(r, rbac.PermCreateLatexProcess),
	})
}

type glovesPage struct {
	Items        []batches.GloveBatch
	ProductTypes []string
	CanCreate    bool
}

func (h *Handler) gloves(w http.ResponseWriter, r *http.Request) {
	items, err := h.src.Batches.ListGloves(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "pages/gloves.html", "Glove batches", glovesPage{
		Items:        items,
		ProductTypes: batches.GloveProductTypes(),
		CanCreate:    h.rbac.Allowed(r, rbac.PermCreateGloves),
	})
}

type adminPage struct {
	Users       []users.User
	Roles       []string
	Permissions map[string][]rbac.Permission
	Routes      map[string]rbac.Permission
}

func (h *Handler) admin(w http.ResponseWriter, r *http.Request) {
	page := adminPage{
		Roles:       rbac.RoleNames(),
		Permissions: make(map[string][]rbac.Permission),
		Routes:      h.table.Routes(),
	}
	for _, role := range rbac.Roles() {
		page.Permissions[role.String()] = h.table.Grants(role)
	}
	if h.rbac.Allowed(r, rbac.PermManageUsers) {
		list, err := h.src.Users.ListUsers(r.Context())
		if err != nil {
			h.fail(w, r, err)
			return
		}
		page.Users = list
	}
	h.render(w, r, http.StatusOK, "pages/admin.html", "Administration", page)
}
