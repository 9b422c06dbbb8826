package shared

import (
	"math"
	"net/http"
	"strconv"
)

// MaxPerPage caps list endpoints.
const MaxPerPage = 200

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"perPage"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// NewPagination computes pagination metadata.
func NewPagination(page, perPage, total int) Pagination {
	page, perPage = normalizePage(page, perPage)
	totalPages := int(math.Ceil(float64(total) / float64(perPage)))
	return Pagination{Page: page, PerPage: perPage, Total: total, TotalPages: totalPages}
}

// PageRequest is the page/per_page pair read from a query string.
type PageRequest struct {
	Page    int
	PerPage int
}

// PageFromRequest reads page and per_page query parameters with defaults.
func PageFromRequest(r *http.Request) PageRequest {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	page, perPage = normalizePage(page, perPage)
	return PageRequest{Page: page, PerPage: perPage}
}

// Limit returns the SQL LIMIT for the page.
func (p PageRequest) Limit() int {
	_, perPage := normalizePage(p.Page, p.PerPage)
	return perPage
}

// Offset returns the SQL OFFSET for the page.
func (p PageRequest) Offset() int {
	page, perPage := normalizePage(p.Page, p.PerPage)
	return (page - 1) * perPage
}

func normalizePage(page, perPage int) (int, int) {
	if perPage <= 0 {
		perPage = 20
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	if page <= 0 {
		page = 1
	}
	return page, perPage
}
