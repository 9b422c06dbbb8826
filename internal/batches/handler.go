package batches

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/diptrack/diptrack/internal/platform/httpx"
	"github.com/diptrack/diptrack/internal/qc"
	"github.com/diptrack/diptrack/internal/rbac"
	"github.com/diptrack/diptrack/internal/shared"
)

// QCResultLister supplies the QC results shown on the batch detail.
type QCResultLister interface {
	List(ctx context.Context, batchID *uuid.UUID) ([]qc.Result, error)
}

// Handler exposes the batch, latex process and glove JSON endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	qc       QCResultLister
	rbac     rbac.Middleware
	validate *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service, qcResults QCResultLister, rbacMW rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, qc: qcResults, rbac: rbacMW, validate: validator.New()}
}

// MountRoutes registers the endpoints on an /api router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/batches", func(r chi.Router) {
		r.With(h.rbac.RequireAny(rbac.PermViewBatches)).Get("/", h.list)
		r.With(h.rbac.RequireAny(rbac.PermCreateBatch)).Post("/", h.create)
		r.With(h.rbac.RequireAny(rbac.PermViewBatches)).Get("/{id}", h.detail)
		r.With(h.rbac.RequireAny(rbac.PermEditBatch)).Patch("/{id}", h.update)
		r.With(h.rbac.RequireAny(rbac.PermDeleteBatch)).Delete("/{id}", h.delete)
	})
	r.Route("/latex", func(r chi.Router) {
		r.With(h.rbac.RequireAny(rbac.PermViewLatexProcess)).Get("/process", h.listStages)
		r.With(h.rbac.RequireAny(rbac.PermCreateLatexProcess)).Post("/process", h.recordStage)
		r.With(h.rbac.RequireAny(rbac.PermCreateFieldLatex)).Post("/field", h.recordField)
	})
	r.Route("/gloves", func(r chi.Router) {
		r.With(h.rbac.RequireAny(rbac.PermViewGloves)).Get("/", h.listGloves)
		r.With(h.rbac.RequireAny(rbac.PermCreateGloves)).Post("/", h.createGlove)
	})
}

type listResponse struct {
	Items      []Batch           `json:"items"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page := shared.PageFromRequest(r)
	filters := ListFilters{
		Status:      Status(r.URL.Query().Get("status")),
		ProductType: r.URL.Query().Get("productType"),
		Limit:       page.Limit(),
		Offset:      page.Offset(),
	}
	items, total, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.fail(w, "list batches", err)
		return
	}
	if items == nil {
		items = []Batch{}
	}
	httpx.JSON(w, http.StatusOK, listResponse{Items: items, Pagination: shared.NewPagination(page.Page, page.Limit(), total)})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var input CreateBatchInput
	if err := httpx.DecodeAndValidate(r, h.validate, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	batch, err := h.service.Create(r.Context(), actorID(r), input, shared.IdempotencyKey(r))
	if err != nil {
		h.fail(w, "create batch", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, batch)
}

type detailResponse struct {
	Batch
	Stages    []Stage     `json:"stages"`
	QCResults []qc.Result `json:"qcResults"`
}

func (h *Handler) detail(w http.ResponseWriter, r *http.Request) {
	id, ok := h.batchID(w, r)
	if !ok {
		return
	}
	batch, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get batch", err)
		return
	}
	stages, err := h.service.ListStages(r.Context(), &id)
	if err != nil {
		h.fail(w, "list batch stages", err)
		return
	}
	resp := detailResponse{Batch: batch, Stages: stages, QCResults: []qc.Result{}}
	if resp.Stages == nil {
		resp.Stages = []Stage{}
	}
	if h.qc != nil {
		results, err := h.qc.List(r.Context(), &id)
		if err != nil {
			h.fail(w, "list batch qc results", err)
			return
		}
		if results != nil {
			resp.QCResults = results
		}
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.batchID(w, r)
	if !ok {
		return
	}
	var input UpdateBatchInput
	if err := httpx.DecodeAndValidate(r, h.validate, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	batch, err := h.service.Update(r.Context(), actorID(r), id, input)
	if err != nil {
		h.fail(w, "update batch", err)
		return
	}
	httpx.JSON(w, http.StatusOK, batch)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.batchID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), actorID(r), id); err != nil {
		h.fail(w, "delete batch", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listStages(w http.ResponseWriter, r *http.Request) {
	var filter *uuid.UUID
	if raw := r.URL.Query().Get("batchId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("batchId must be a UUID: %w", httpx.ErrValidation))
			return
		}
		filter = &id
	}
	stages, err := h.service.ListStages(r.Context(), filter)
	if err != nil {
		h.fail(w, "list stages", err)
		return
	}
	if stages == nil {
		stages = []Stage{}
	}
	httpx.JSON(w, http.StatusOK, stages)
}

type stageResponse struct {
	Stage
	Batch Batch `json:"batch"`
}

func (h *Handler) recordStage(w http.ResponseWriter, r *http.Request) {
	var input RecordStageInput
	if err := httpx.DecodeAndValidate(r, h.validate, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	stage, batch, err := h.service.RecordStage(r.Context(), actorID(r), input)
	if err != nil {
		h.fail(w, "record stage", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, stageResponse{Stage: stage, Batch: batch})
}

func (h *Handler) recordField(w http.ResponseWriter, r *http.Request) {
	var input FieldLatexInput
	if err := httpx.DecodeAndValidate(r, h.validate, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	stage, batch, err := h.service.RecordFieldLatex(r.Context(), actorID(r), input)
	if err != nil {
		h.fail(w, "record field latex", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, stageResponse{Stage: stage, Batch: batch})
}

func (h *Handler) listGloves(w http.ResponseWriter, r *http.Request) {
	gloves, err := h.service.ListGloves(r.Context())
	if err != nil {
		h.fail(w, "list gloves", err)
		return
	}
	httpx.JSON(w, http.StatusOK, gloves)
}

func (h *Handler) createGlove(w http.ResponseWriter, r *http.Request) {
	var input CreateGloveInput
	if err := httpx.DecodeAndValidate(r, h.validate, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	glove, err := h.service.CreateGlove(r.Context(), actorID(r), input)
	if err != nil {
		h.fail(w, "create glove batch", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, glove)
}

func (h *Handler) batchID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("batch id must be a UUID: %w", httpx.ErrValidation))
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	h.logger.Error(op, slog.Any("error", err))
	httpx.RespondError(w, err)
}

func actorID(r *http.Request) int64 {
	if p := rbac.PrincipalFromContext(r.Context()); p != nil {
		return p.UserID
	}
	return 0
}
