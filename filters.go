package modkit

import (
	"math"
	"time"
)

const (
	// DefaultPageSize is used when a Page does not set Size.
	DefaultPageSize = 20

	// MaxPageSize caps the number of items a single read returns.
	MaxPageSize = 100

	// MaxPageIndex is the largest index whose offset fits in an int at any page size.
	MaxPageIndex = math.MaxInt / MaxPageSize
)

// Page selects a window of a listing: Index is zero-based and Size items are
// returned per page.
type Page struct {
	Index int `json:"page"`
	Size  int `json:"page_size"`
}

// NewPage creates a Page for the given index and size.
func NewPage(index, size int) Page {
	return Page{Index: index, Size: size}
}

// Limit returns the effective page size.
func (p Page) Limit() int {
	switch {
	case p.Size <= 0:
		return DefaultPageSize
	case p.Size > MaxPageSize:
		return MaxPageSize
	}
	return p.Size
}

// Offset returns the number of items skipped before this page. It saturates at
// math.MaxInt instead of wrapping.
func (p Page) Offset() int {
	if p.Index <= 0 {
		return 0
	}
	limit := p.Limit()
	if p.Index > math.MaxInt/limit {
		return math.MaxInt
	}
	return p.Index * limit
}

// CommandFilter narrows command listings.
type CommandFilter struct {
	// Filter by creating account
	CreatorID *int64

	Page Page
}

// ActionFilter provides options for filtering audit log queries.
type ActionFilter struct {
	// Filter by subject account
	AccountID *int64

	// Filter by action kind
	Kind ActionKind

	// Filter by time range
	Since time.Time
	Until time.Time

	// Pagination
	Page Page
}

// NewActionFilter creates an ActionFilter with default pagination.
func NewActionFilter() ActionFilter {
	return ActionFilter{}
}

// WithAccount sets the subject account filter.
func (f ActionFilter) WithAccount(accountID int64) ActionFilter {
	f.AccountID = &accountID
	return f
}

// WithKind sets the action kind filter.
func (f ActionFilter) WithKind(kind ActionKind) ActionFilter {
	f.Kind = kind
	return f
}

// WithTimeRange sets the time range filter.
func (f ActionFilter) WithTimeRange(since, until time.Time) ActionFilter {
	f.Since = since
	f.Until = until
	return f
}

// WithPage sets the page to read.
func (f ActionFilter) WithPage(page Page) ActionFilter {
	f.Page = page
	return f
}

func (f ActionFilter) matches(e *AuditEntry) bool {
	if f.AccountID != nil && e.AccountID != *f.AccountID {
		return false
	}
	if f.Kind != "" && e.Kind != f.Kind {
		return false
	}
	if !f.Since.IsZero() && e.CreatedAt.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && e.CreatedAt.After(f.Until) {
		return false
	}
	return true
}
