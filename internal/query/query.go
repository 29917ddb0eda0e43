// Package query answers filtered, sorted and paginated searches over one
// report collection. It never mutates the store.
package query

import (
	"cmp"
	"context"
	"fmt"
	"iter"
	"slices"
	"strconv"
	"strings"

	"github.com/erazemk/najdbe/internal/model"
	"github.com/erazemk/najdbe/internal/store"
)

// Sort orders query results by report date.
type Sort string

// Sort orders.
const (
	SortNewest Sort = "newest"
	SortOldest Sort = "oldest"
)

// AllCategories is the filter value that matches every category.
const AllCategories = "all"

// Params selects and orders a page of reports.
type Params struct {
	// Term is matched case-insensitively as a substring of the description
	// or the location. Empty matches everything.
	Term string

	// Category restricts results to one category. Zero means all.
	Category model.Category

	Sort Sort

	// Offset is the number of matching reports to skip.
	Offset int

	// Limit caps the page size. Zero or negative means no cap.
	Limit int

	// IncludeArchived also returns archived reports.
	IncludeArchived bool
}

// Page is one page of query results.
type Page[R model.Report] struct {
	Items []R `json:"items"`

	// Total counts every matching report, not just this page.
	Total int `json:"total_count"`

	// NextCursor is the offset of the following page, empty at the end.
	NextCursor string `json:"next_cursor,omitempty"`
}

// ParseCategory converts a filter value into a category. Empty and "all"
// select every category.
func ParseCategory(s string) (model.Category, error) {
	if s == "" || strings.EqualFold(s, AllCategories) {
		return "", nil
	}
	return model.ParseCategory(s)
}

// ParseSort converts a sort value. Empty selects newest first.
func ParseSort(s string) (Sort, error) {
	switch Sort(s) {
	case "":
		return SortNewest, nil
	case SortNewest, SortOldest:
		return Sort(s), nil
	}
	return "", fmt.Errorf("%w: unknown sort order %q", model.ErrValidation, s)
}

// ParseCursor converts a page cursor into an offset. Empty is the first page.
func ParseCursor(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: invalid cursor %q", model.ErrValidation, s)
	}
	return n, nil
}

// Run returns the page of reports in c matching p. Ties on date are broken by
// id so the order is total and stable across calls.
func Run[R model.Report](ctx context.Context, c store.Collection[R], p Params) (Page[R], error) {
	if p.Category != "" && !p.Category.Valid() {
		return Page[R]{}, fmt.Errorf("%w: unknown category %q", model.ErrValidation, p.Category)
	}
	order, err := ParseSort(string(p.Sort))
	if err != nil {
		return Page[R]{}, err
	}
	if p.Offset < 0 {
		return Page[R]{}, fmt.Errorf("%w: negative offset", model.ErrValidation)
	}

	var source iter.Seq2[R, error]
	if p.Category != "" {
		source = c.InCategory(ctx, p.Category)
	} else {
		source = c.All(ctx)
	}

	term := strings.ToLower(p.Term)
	matches := []R{}
	for r, err := range source {
		if err != nil {
			return Page[R]{}, fmt.Errorf("reading reports: %w", err)
		}
		if !p.IncludeArchived && r.Archived() {
			continue
		}
		if !Matches(r, term) {
			continue
		}
		matches = append(matches, r)
	}

	slices.SortFunc(matches, func(a, b R) int {
		d := a.ReportDate().Compare(b.ReportDate())
		if order == SortNewest {
			d = -d
		}
		if d != 0 {
			return d
		}
		return cmp.Compare(a.ReportID(), b.ReportID())
	})

	page := Page[R]{Items: []R{}, Total: len(matches)}
	if p.Offset >= len(matches) {
		return page, nil
	}
	end := len(matches)
	if p.Limit > 0 && p.Offset+p.Limit < end {
		end = p.Offset + p.Limit
		page.NextCursor = strconv.Itoa(end)
	}
	page.Items = matches[p.Offset:end]
	return page, nil
}

// Matches reports whether the lower-cased term occurs in the report's
// description or location, ignoring case.
func Matches(r model.Report, term string) bool {
	if term == "" {
		return true
	}
	desc, loc := r.SearchText()
	return strings.Contains(strings.ToLower(desc), term) ||
		strings.Contains(strings.ToLower(loc), term)
}
