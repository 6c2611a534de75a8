package audit

import (
	"context"
	"fmt"
	"time"
)

// TimelineFilters narrows the audit timeline query.
type TimelineFilters struct {
	From     time.Time
	To       time.Time
	Entity   string
	Action   string
	ActorID  int64
	Page     int
	PageSize int
}

// PagingInfo describes the window a timeline result covers.
type PagingInfo struct {
	Page     int
	PageSize int
	HasNext  bool
	PrevPage int
	NextPage int
}

// Result wraps one page of the timeline.
type Result struct {
	Rows   []Record
	Paging PagingInfo
}

// Reader provides the read-side queries the service needs.
type Reader interface {
	TimelineWindow(ctx context.Context, filters TimelineFilters, offset, limit int) ([]Record, error)
	TimelineAll(ctx context.Context, filters TimelineFilters) ([]Record, error)
	ActivityFor(ctx context.Context, principalID int64, limit int) ([]ActivityRecord, error)
}

// Service serves the administrative reporting surface of the trail.
type Service struct {
	reader Reader
}

// NewService constructs an audit read service.
func NewService(reader Reader) *Service {
	return &Service{reader: reader}
}

// Timeline returns one page of audit records with paging metadata.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s.reader == nil {
		return Result{}, fmt.Errorf("audit: reader not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * pageSize

	// Fetch one extra row to learn whether a next page exists.
	rows, err := s.reader.TimelineWindow(ctx, filters, offset, pageSize+1)
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
	return Result{Rows: rows, Paging: paging}, nil
}

// Export returns the full filtered timeline without paging.
func (s *Service) Export(ctx context.Context, filters TimelineFilters) ([]Record, error) {
	if s.reader == nil {
		return nil, fmt.Errorf("audit: reader not configured")
	}
	return s.reader.TimelineAll(ctx, filters)
}

// ActivityHistory returns recent activity for a principal.
func (s *Service) ActivityHistory(ctx context.Context, principalID int64, limit int) ([]ActivityRecord, error) {
	if s.reader == nil {
		return nil, fmt.Errorf("audit: reader not configured")
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.reader.ActivityFor(ctx, principalID, limit)
}
