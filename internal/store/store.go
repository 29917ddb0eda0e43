package store

import (
	"context"
	"iter"
	"time"

	"github.com/erazemk/najdbe/internal/model"
)

// Collection holds one kind of report, keyed by id.
type Collection[R model.Report] interface {
	// Put inserts a new report or replaces the editable fields of an existing
	// one. New reports get version 1; replacements must carry the stored
	// version and get it incremented. Status, links and dates never change
	// through Put.
	Put(ctx context.Context, r R) error

	// Get returns the report or an error wrapping model.ErrNotFound.
	Get(ctx context.Context, id string) (R, error)

	// All yields every report in insertion order. Each range re-reads the
	// store, so later mutations are visible to the next iteration.
	All(ctx context.Context) iter.Seq2[R, error]

	// InCategory yields the reports of one category in insertion order using
	// the category index.
	InCategory(ctx context.Context, c model.Category) iter.Seq2[R, error]
}

// Transition is a set of state changes committed atomically. Each non-nil
// report must carry the version it was read at; the commit fails with
// model.ErrConflict if any stored version differs, and then nothing changes.
// On success the reports' Version and UpdatedAt fields are advanced.
type Transition struct {
	Lost   *model.LostReport
	Found  *model.FoundReport
	Events []model.Event
}

// Images stores report photos referenced by ImageRef.
type Images interface {
	PutImage(ctx context.Context, data []byte, mime string) (string, error)
	GetImage(ctx context.Context, ref string) ([]byte, string, error)

	// DeleteImage removes a photo. Deleting a missing ref is not an error.
	DeleteImage(ctx context.Context, ref string) error
}

// Store is the authoritative collection of lost and found reports.
type Store interface {
	Lost() Collection[*model.LostReport]
	Found() Collection[*model.FoundReport]

	// Commit applies status, link and archive changes of a Transition.
	Commit(ctx context.Context, tr Transition) error

	// History returns the events of one report, newest first.
	History(ctx context.Context, kind model.Kind, id string) ([]model.Event, error)

	Images
}

// Option configures a store backend.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the time source used for timestamps and date checks.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func newOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
