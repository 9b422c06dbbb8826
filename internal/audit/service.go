package audit

import (
	"context"
	"errors"
	"strings"
)

const (
	defaultPageSize = 20
	maxPageSize     = 50
	// exportLimit caps a single CSV export.
	exportLimit = 10000
)

// Repository reads audit entries.
type Repository interface {
	Timeline(ctx context.Context, q Query) ([]TimelineRow, error)
}

// Service pages through the audit trail.
type Service struct {
	repo Repository
}

// NewService constructs a Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Timeline returns one page of entries, newest first.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, errors.New("audit: repository not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	q := toQuery(filters)
	q.Offset = (page - 1) * pageSize
	q.Limit = pageSize + 1
	rows, err := s.repo.Timeline(ctx, q)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	if rows == nil {
		rows = []TimelineRow{}
	}
	return Result{Rows: rows, Paging: paging}, nil
}

// Export returns every matching entry up to the export cap.
func (s *Service) Export(ctx context.Context, filters TimelineFilters) ([]TimelineRow, error) {
	if s.repo == nil {
		return nil, errors.New("audit: repository not configured")
	}
	q := toQuery(filters)
	q.Limit = exportLimit
	return s.repo.Timeline(ctx, q)
}

func toQuery(f TimelineFilters) Query {
	return Query{
		From:   f.From,
		To:     f.To,
		Actor:  strings.TrimSpace(f.Actor),
		Entity: strings.TrimSpace(f.Entity),
		Action: strings.TrimSpace(f.Action),
	}
}
