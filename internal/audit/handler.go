package audit

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/diptrack/diptrack/internal/platform/httpx"
	"github.com/diptrack/diptrack/internal/rbac"
)

const (
	exportRateLimit   = 10
	exportRateWindow  = time.Minute
	defaultDateRange  = 7 * 24 * time.Hour
	maxDateRangeHours = 24 * 90
	dateLayout        = "2006-01-02"
)

// TimelineService is the read contract the handler needs.
type TimelineService interface {
	Timeline(ctx context.Context, filters TimelineFilters) (Result, error)
	Export(ctx context.Context, filters TimelineFilters) ([]TimelineRow, error)
}

// Handler serves the audit trail API.
type Handler struct {
	logger  *slog.Logger
	service TimelineService
	rbac    rbac.Middleware
	now     func() time.Time
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service TimelineService, rbacMW rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbacMW, now: time.Now}
}

// MountRoutes registers routes on an /api/audit router.
func (h *Handler) MountRoutes(r chi.Router) {
	limiter := httprate.Limit(exportRateLimit, exportRateWindow,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "export limit reached")
		}),
	)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermSystemConfig))
		r.Get("/", h.timeline)
		r.With(limiter).Get("/export.csv", h.export)
	})
}

func rateLimitKey(r *http.Request) (string, error) {
	if p := rbac.PrincipalFromContext(r.Context()); p != nil && p.UserID > 0 {
		return "user:" + strconv.FormatInt(p.UserID, 10), nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.logger.Error("load audit timeline", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rows, err := h.service.Export(r.Context(), filters)
	if err != nil {
		h.logger.Error("export audit timeline", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	body, err := WriteCSV(rows)
	if err != nil {
		h.logger.Error("encode audit csv", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="audit-trail.csv"`)
	if _, err := w.Write(body); err != nil {
		h.logger.Warn("write audit csv", slog.Any("error", err))
	}
}

// WriteCSV renders rows with a header line.
func WriteCSV(rows []TimelineRow) ([]byte, error) {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if err := cw.Write([]string{"at", "actor", "action", "entity", "entity_id", "meta"}); err != nil {
		return nil, err
	}
	for _, row := range rows {
		meta := ""
		if len(row.Meta) > 0 {
			raw, err := json.Marshal(row.Meta)
			if err != nil {
				return nil, err
			}
			meta = string(raw)
		}
		if err := cw.Write([]string{row.At.UTC().Format(time.RFC3339), row.Actor, row.Action, row.Entity, row.EntityID, meta}); err != nil {
			return nil, err
		}
	}
	cw.Flush()
	return buf.Bytes(), cw.Error()
}

func (h *Handler) parseFilters(r *http.Request) (TimelineFilters, error) {
	query := r.URL.Query()
	toStr := strings.TrimSpace(query.Get("to"))
	if toStr == "" {
		toStr = h.now().UTC().Format(dateLayout)
	}
	to, err := time.Parse(dateLayout, toStr)
	if err != nil {
		return TimelineFilters{}, fmt.Errorf("to must be YYYY-MM-DD: %w", httpx.ErrValidation)
	}
	fromStr := strings.TrimSpace(query.Get("from"))
	if fromStr == "" {
		fromStr = to.Add(-defaultDateRange).Format(dateLayout)
	}
	from, err := time.Parse(dateLayout, fromStr)
	if err != nil {
		return TimelineFilters{}, fmt.Errorf("from must be YYYY-MM-DD: %w", httpx.ErrValidation)
	}
	if from.After(to) || to.Sub(from) > maxDateRangeHours*time.Hour {
		return TimelineFilters{}, fmt.Errorf("date range must be at most 90 days: %w", httpx.ErrValidation)
	}

	page := 1
	if v := strings.TrimSpace(query.Get("page")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return TimelineFilters{}, fmt.Errorf("page must be a positive integer: %w", httpx.ErrValidation)
		}
		page = parsed
	}
	pageSize := defaultPageSize
	if v := strings.TrimSpace(query.Get("page_size")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return TimelineFilters{}, fmt.Errorf("page_size must be a positive integer: %w", httpx.ErrValidation)
		}
		pageSize = min(parsed, maxPageSize)
	}

	return TimelineFilters{
		From:     from,
		To:       to,
		Actor:    strings.TrimSpace(query.Get("actor")),
		Entity:   strings.TrimSpace(query.Get("entity")),
		Action:   strings.TrimSpace(query.Get("action")),
		Page:     page,
		PageSize: pageSize,
	}, nil
}
