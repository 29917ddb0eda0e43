// Package catalog is the request-level facade over the report store, the
// query engine and the matching service. It checks that mutating calls carry
// a principal, shapes query pages and translates errors into stable codes.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/erazemk/najdbe/internal/imaging"
	"github.com/erazemk/najdbe/internal/matching"
	"github.com/erazemk/najdbe/internal/model"
	"github.com/erazemk/najdbe/internal/query"
	"github.com/erazemk/najdbe/internal/store"
)

// Default page sizes.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Service serves catalog requests.
type Service struct {
	store    store.Store
	matcher  *matching.Service
	photos   *imaging.Normalizer
	log      *slog.Logger
	newID    func() string
	editRole string
	pageSize int
	maxPage  int
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) { s.log = log }
}

// WithPageSize sets the default and maximum page sizes.
func WithPageSize(def, limit int) Option {
	return func(s *Service) { s.pageSize, s.maxPage = def, limit }
}

// WithEditRole sets the minimum role for editing other principals' reports.
func WithEditRole(role string) Option {
	return func(s *Service) { s.editRole = role }
}

// WithIDs overrides report id generation.
func WithIDs(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

// WithPhotos overrides photo normalisation limits.
func WithPhotos(n *imaging.Normalizer) Option {
	return func(s *Service) { s.photos = n }
}

// New creates a catalog over st with matcher owning state transitions.
func New(st store.Store, matcher *matching.Service, opts ...Option) *Service {
	s := &Service{
		store:    st,
		matcher:  matcher,
		photos:   imaging.NewNormalizer(),
		log:      slog.Default(),
		newID:    uuid.NewString,
		editRole: model.RoleStaff,
		pageSize: DefaultPageSize,
		maxPage:  MaxPageSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// QueryRequest asks for one page of reports of one kind.
type QueryRequest struct {
	Kind model.Kind
	Term string
	// Category is a category name or "all"; empty means all.
	Category string
	// Sort is "newest" or "oldest"; empty means newest.
	Sort string
	// Cursor is the next_cursor of a previous page; it overrides Offset.
	Cursor          string
	Offset          int
	Limit           int
	IncludeArchived bool
}

// Page is the response envelope of Query.
type Page struct {
	Items      []model.Report `json:"items"`
	TotalCount int            `json:"total_count"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// Query returns a page of matching reports. An empty result is not an error.
func (s *Service) Query(ctx context.Context, req QueryRequest) (Page, error) {
	cat, err := query.ParseCategory(req.Category)
	if err != nil {
		return Page{}, err
	}
	order, err := query.ParseSort(req.Sort)
	if err != nil {
		return Page{}, err
	}
	offset := req.Offset
	if req.Cursor != "" {
		if offset, err = query.ParseCursor(req.Cursor); err != nil {
			return Page{}, err
		}
	}
	if offset < 0 || req.Limit < 0 {
		return Page{}, fmt.Errorf("%w: offset and limit must not be negative", model.ErrValidation)
	}
	limit := req.Limit
	if limit == 0 {
		limit = s.pageSize
	}
	limit = min(limit, s.maxPage)

	p := query.Params{
		Term:            req.Term,
		Category:        cat,
		Sort:            order,
		Offset:          offset,
		Limit:           limit,
		IncludeArchived: req.IncludeArchived,
	}
	switch req.Kind {
	case model.KindLost:
		page, err := query.Run(ctx, s.store.Lost(), p)
		return envelope(page), err
	case model.KindFound:
		page, err := query.Run(ctx, s.store.Found(), p)
		return envelope(page), err
	}
	return Page{}, unknownKind(req.Kind)
}

func envelope[R model.Report](p query.Page[R]) Page {
	items := make([]model.Report, len(p.Items))
	for i, r := range p.Items {
		items[i] = r
	}
	return Page{Items: items, TotalCount: p.Total, NextCursor: p.NextCursor}
}

// GetReport returns one report.
func (s *Service) GetReport(ctx context.Context, kind model.Kind, id string) (model.Report, error) {
	switch kind {
	case model.KindLost:
		return s.store.Lost().Get(ctx, id)
	case model.KindFound:
		return s.store.Found().Get(ctx, id)
	}
	return nil, unknownKind(kind)
}

// ReportInput holds the user-supplied fields of a report. Location is the
// possible location of a lost report or the place a found item was found.
type ReportInput struct {
	Description   string     `json:"description"`
	Location      string     `json:"location"`
	Category      string     `json:"category"`
	Date          model.Date `json:"date"`
	ImageRef      string     `json:"image_ref,omitempty"`
	FinderName    string     `json:"finder_name,omitempty"`
	FinderRollNo  string     `json:"finder_roll_no,omitempty"`
	FinderContact string     `json:"finder_contact,omitempty"`
}

// CreateReport files a new report owned by who and returns it.
func (s *Service) CreateReport(ctx context.Context, who model.Principal, kind model.Kind, in ReportInput) (model.Report, error) {
	if who.IsZero() {
		return nil, fmt.Errorf("%w: sign in to file a report", model.ErrAuth)
	}
	cat, err := ingestCategory(in.Category)
	if err != nil {
		return nil, err
	}

	switch kind {
	case model.KindLost:
		r := &model.LostReport{
			ID:               s.newID(),
			Description:      strings.TrimSpace(in.Description),
			PossibleLocation: strings.TrimSpace(in.Location),
			Category:         cat,
			DateLost:         in.Date,
			ImageRef:         in.ImageRef,
			ReporterID:       who.ID,
		}
		if err := s.store.Lost().Put(ctx, r); err != nil {
			return nil, err
		}
		s.log.Info("Lost report filed", "id", r.ID, "category", r.Category, "user", who.ID)
		return r, nil
	case model.KindFound:
		name := strings.TrimSpace(in.FinderName)
		if name == "" {
			name = who.Name
		}
		r := &model.FoundReport{
			ID:            s.newID(),
			Description:   strings.TrimSpace(in.Description),
			Location:      strings.TrimSpace(in.Location),
			Category:      cat,
			DateFound:     in.Date,
			ImageRef:      in.ImageRef,
			FinderID:      who.ID,
			FinderName:    name,
			FinderRollNo:  strings.TrimSpace(in.FinderRollNo),
			FinderContact: strings.TrimSpace(in.FinderContact),
		}
		if err := s.store.Found().Put(ctx, r); err != nil {
			return nil, err
		}
		s.log.Info("Found report filed", "id", r.ID, "category", r.Category, "user", who.ID)
		return r, nil
	}
	return nil, unknownKind(kind)
}

// UpdateReport replaces the editable fields of a report read at version.
// A zero Date keeps the stored date. Claimed, found and archived reports are
// closed and fail with model.ErrConflict.
func (s *Service) UpdateReport(ctx context.Context, who model.Principal, kind model.Kind, id string, version int64, in ReportInput) (model.Report, error) {
	if who.IsZero() {
		return nil, fmt.Errorf("%w: sign in to edit a report", model.ErrAuth)
	}
	cat, err := ingestCategory(in.Category)
	if err != nil {
		return nil, err
	}

	switch kind {
	case model.KindLost:
		r, err := s.store.Lost().Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := s.mayEdit(who, r.ReporterID); err != nil {
			return nil, err
		}
		r.Description = strings.TrimSpace(in.Description)
		r.PossibleLocation = strings.TrimSpace(in.Location)
		r.Category = cat
		r.ImageRef = in.ImageRef
		if !in.Date.IsZero() {
			r.DateLost = in.Date
		}
		r.Version = version
		if err := s.store.Lost().Put(ctx, r); err != nil {
			return nil, err
		}
		s.log.Info("Lost report updated", "id", id, "version", r.Version, "user", who.ID)
		return r, nil
	case model.KindFound:
		r, err := s.store.Found().Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := s.mayEdit(who, r.FinderID); err != nil {
			return nil, err
		}
		r.Description = strings.TrimSpace(in.Description)
		r.Location = strings.TrimSpace(in.Location)
		r.Category = cat
		r.ImageRef = in.ImageRef
		if name := strings.TrimSpace(in.FinderName); name != "" {
			r.FinderName = name
		}
		r.FinderRollNo = strings.TrimSpace(in.FinderRollNo)
		r.FinderContact = strings.TrimSpace(in.FinderContact)
		if !in.Date.IsZero() {
			r.DateFound = in.Date
		}
		r.Version = version
		if err := s.store.Found().Put(ctx, r); err != nil {
			return nil, err
		}
		s.log.Info("Found report updated", "id", id, "version", r.Version, "user", who.ID)
		return r, nil
	}
	return nil, unknownKind(kind)
}

func (s *Service) mayEdit(who model.Principal, ownerID string) error {
	if who.ID == ownerID || model.RoleAtLeast(who.Role, s.editRole) {
		return nil
	}
	return fmt.Errorf("%w: only the owner may edit this report", model.ErrAuth)
}

// Claim releases a found item to a claimant. See matching.Service.Claim.
func (s *Service) Claim(ctx context.Context, who model.Principal, req matching.ClaimRequest) (matching.ClaimResult, error) {
	return s.matcher.Claim(ctx, who, req)
}

// Reopen reverts a terminal status and returns the report.
func (s *Service) Reopen(ctx context.Context, who model.Principal, kind model.Kind, id string) (model.Report, error) {
	if err := s.matcher.Reopen(ctx, who, kind, id); err != nil {
		return nil, err
	}
	return s.GetReport(ctx, kind, id)
}

// ResolveLost marks a lost report found without a matching found report.
func (s *Service) ResolveLost(ctx context.Context, who model.Principal, id string) (model.Report, error) {
	if err := s.matcher.ResolveLost(ctx, who, id); err != nil {
		return nil, err
	}
	return s.GetReport(ctx, model.KindLost, id)
}

// Archive hides a report from default queries and returns it.
func (s *Service) Archive(ctx context.Context, who model.Principal, kind model.Kind, id string) (model.Report, error) {
	if err := s.matcher.Archive(ctx, who, kind, id); err != nil {
		return nil, err
	}
	return s.GetReport(ctx, kind, id)
}

// History lists the events of an existing report, newest first.
func (s *Service) History(ctx context.Context, kind model.Kind, id string) ([]model.Event, error) {
	if _, err := s.GetReport(ctx, kind, id); err != nil {
		return nil, err
	}
	events, err := s.store.History(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []model.Event{}
	}
	return events, nil
}

// SetImage stores a photo and points the report's image reference at it.
func (s *Service) SetImage(ctx context.Context, who model.Principal, kind model.Kind, id string, data []byte) (model.Report, error) {
	if who.IsZero() {
		return nil, fmt.Errorf("%w: sign in to upload a photo", model.ErrAuth)
	}
	current, err := s.GetReport(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if err := s.mayEdit(who, owner(current)); err != nil {
		return nil, err
	}
	if !editable(current) {
		return nil, fmt.Errorf("%w: %s report %s is closed for editing", model.ErrConflict, kind, id)
	}

	photo, err := s.photos.Normalize(data)
	if err != nil {
		return nil, err
	}
	ref, err := s.store.PutImage(ctx, photo.Data, photo.MIME)
	if err != nil {
		return nil, err
	}

	switch r := current.(type) {
	case *model.LostReport:
		r.ImageRef = ref
		err = s.store.Lost().Put(ctx, r)
	case *model.FoundReport:
		r.ImageRef = ref
		err = s.store.Found().Put(ctx, r)
	}
	if err != nil {
		if derr := s.store.DeleteImage(ctx, ref); derr != nil {
			s.log.Error("Removing unused photo", "image", ref, "error", derr)
		}
		return nil, err
	}

	s.log.Info("Report photo set", "kind", kind, "id", id, "image", ref, "user", who.ID)
	return current, nil
}

// Image returns a stored photo.
func (s *Service) Image(ctx context.Context, ref string) ([]byte, string, error) {
	return s.store.GetImage(ctx, ref)
}

// editable reports whether a report still accepts edits.
func editable(r model.Report) bool {
	switch r := r.(type) {
	case *model.LostReport:
		return r.Status == model.LostStatusSearching && !r.Archived()
	case *model.FoundReport:
		return r.Status == model.FoundStatusUnclaimed && !r.Archived()
	}
	return false
}

func owner(r model.Report) string {
	switch r := r.(type) {
	case *model.LostReport:
		return r.ReporterID
	case *model.FoundReport:
		return r.FinderID
	}
	return ""
}

// ingestCategory accepts exactly the category names; "all" is a filter only.
func ingestCategory(s string) (model.Category, error) {
	if s == "" {
		return "", fmt.Errorf("%w: category is required", model.ErrValidation)
	}
	return model.ParseCategory(s)
}

func unknownKind(kind model.Kind) error {
	return fmt.Errorf("%w: unknown report kind %q", model.ErrValidation, kind)
}

// Error codes returned by Code.
const (
	CodeValidation = "validation_error"
	CodeNotFound   = "not_found"
	CodeConflict   = "conflict"
	CodeForbidden  = "forbidden"
	CodeInternal   = "internal_error"
)

// Code classifies err into a stable external error code.
func Code(err error) string {
	switch {
	case errors.Is(err, model.ErrValidation):
		return CodeValidation
	case errors.Is(err, model.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, model.ErrConflict):
		return CodeConflict
	case errors.Is(err, model.ErrAuth):
		return CodeForbidden
	}
	return CodeInternal
}
