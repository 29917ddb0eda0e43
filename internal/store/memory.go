package store

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/erazemk/najdbe/internal/model"
)

// Verify at compile time that Memory implements Store.
var _ Store = (*Memory)(nil)

// Memory is an in-process Store. All state is lost when the process exits.
type Memory struct {
	mu     sync.RWMutex
	now    func() time.Time
	lost   *memCollection[model.LostReport, *model.LostReport]
	found  *memCollection[model.FoundReport, *model.FoundReport]
	events []model.Event
	images map[string]memImage
}

type memImage struct {
	data []byte
	mime string
}

// NewMemory creates an empty in-memory store.
func NewMemory(opts ...Option) *Memory {
	o := newOptions(opts)
	m := &Memory{
		now:    o.now,
		images: make(map[string]memImage),
	}
	m.lost = newMemCollection(&m.mu, model.KindLost, o.now, prepareLost)
	m.found = newMemCollection(&m.mu, model.KindFound, o.now, prepareFound)
	return m
}

// Lost returns the lost report collection.
func (m *Memory) Lost() Collection[*model.LostReport] { return m.lost }

// Found returns the found report collection.
func (m *Memory) Found() Collection[*model.FoundReport] { return m.found }

// Commit applies a transition under the store lock.
func (m *Memory) Commit(ctx context.Context, tr Transition) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var lost *model.LostReport
	if tr.Lost != nil {
		stored, ok := m.lost.byID[tr.Lost.ID]
		if !ok {
			return notFound(model.KindLost, tr.Lost.ID)
		}
		if err := checkVersion(model.KindLost, stored.ID, stored.Version, tr.Lost.Version); err != nil {
			return err
		}
		lost = stored
	}

	var found *model.FoundReport
	if tr.Found != nil {
		stored, ok := m.found.byID[tr.Found.ID]
		if !ok {
			return notFound(model.KindFound, tr.Found.ID)
		}
		if err := checkVersion(model.KindFound, stored.ID, stored.Version, tr.Found.Version); err != nil {
			return err
		}
		found = stored
	}

	now := m.now()
	if lost != nil {
		applyLostState(lost, tr.Lost, now)
		tr.Lost.Version, tr.Lost.UpdatedAt = lost.Version, lost.UpdatedAt
	}
	if found != nil {
		applyFoundState(found, tr.Found, now)
		tr.Found.Version, tr.Found.UpdatedAt = found.Version, found.UpdatedAt
	}
	for i := range tr.Events {
		tr.Events[i].ID = int64(len(m.events) + 1)
		if tr.Events[i].At.IsZero() {
			tr.Events[i].At = now
		}
		m.events = append(m.events, tr.Events[i])
	}
	return nil
}

// History returns the events of one report, newest first.
func (m *Memory) History(ctx context.Context, kind model.Kind, id string) ([]model.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var events []model.Event
	for i := len(m.events) - 1; i >= 0; i-- {
		if e := m.events[i]; e.ReportKind == kind && e.ReportID == id {
			events = append(events, e)
		}
	}
	return events, nil
}

// PutImage stores an image and returns its reference.
func (m *Memory) PutImage(ctx context.Context, data []byte, mime string) (string, error) {
	ref := imageRef()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.images[ref] = memImage{data: slices.Clone(data), mime: mime}
	return ref, nil
}

// GetImage returns an image and its MIME type.
func (m *Memory) GetImage(ctx context.Context, ref string) ([]byte, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	img, ok := m.images[ref]
	if !ok {
		return nil, "", fmt.Errorf("%w: image %s", model.ErrNotFound, ref)
	}
	return slices.Clone(img.data), img.mime, nil
}

// DeleteImage removes an image.
func (m *Memory) DeleteImage(ctx context.Context, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.images, ref)
	return nil
}

// memCollection stores copies of reports so callers never share memory with
// the store.
type memCollection[T any, R interface {
	*T
	model.Report
}] struct {
	mu      *sync.RWMutex
	kind    model.Kind
	now     func() time.Time
	prepare func(stored, next R, now time.Time) error

	byID  map[string]*T
	seq   map[string]int64
	order []string
	index map[model.Category]map[string]struct{}
}

func newMemCollection[T any, R interface {
	*T
	model.Report
}](mu *sync.RWMutex, kind model.Kind, now func() time.Time, prepare func(stored, next R, now time.Time) error) *memCollection[T, R] {
	return &memCollection[T, R]{
		mu:      mu,
		kind:    kind,
		now:     now,
		prepare: prepare,
		byID:    make(map[string]*T),
		seq:     make(map[string]int64),
		index:   make(map[model.Category]map[string]struct{}),
	}
}

func (c *memCollection[T, R]) Put(ctx context.Context, r R) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	id := r.ReportID()
	var stored R
	existing, ok := c.byID[id]
	if ok {
		stored = R(existing)
	}
	if err := c.prepare(stored, r, c.now()); err != nil {
		return err
	}

	// The index is updated under the same lock as the row.
	if ok && stored.ReportCategory() != r.ReportCategory() {
		delete(c.index[stored.ReportCategory()], id)
	}
	cp := *r
	c.byID[id] = &cp
	if !ok {
		c.seq[id] = int64(len(c.order) + 1)
		c.order = append(c.order, id)
	}
	set, ok := c.index[r.ReportCategory()]
	if !ok {
		set = make(map[string]struct{})
		c.index[r.ReportCategory()] = set
	}
	set[id] = struct{}{}
	return nil
}

func (c *memCollection[T, R]) Get(ctx context.Context, id string) (R, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	v, ok := c.byID[id]
	if !ok {
		var zero R
		return zero, notFound(c.kind, id)
	}
	cp := *v
	return R(&cp), nil
}

func (c *memCollection[T, R]) All(ctx context.Context) iter.Seq2[R, error] {
	return func(yield func(R, error) bool) {
		c.mu.RLock()
		ids := slices.Clone(c.order)
		c.mu.RUnlock()

		c.yieldIDs(ctx, ids, yield)
	}
}

func (c *memCollection[T, R]) InCategory(ctx context.Context, cat model.Category) iter.Seq2[R, error] {
	return func(yield func(R, error) bool) {
		c.mu.RLock()
		ids := make([]string, 0, len(c.index[cat]))
		for id := range c.index[cat] {
			ids = append(ids, id)
		}
		slices.SortFunc(ids, func(a, b string) int {
			return int(c.seq[a] - c.seq[b])
		})
		c.mu.RUnlock()

		c.yieldIDs(ctx, ids, yield)
	}
}

// yieldIDs reads reports one at a time so the lock is never held while the
// consumer runs.
func (c *memCollection[T, R]) yieldIDs(ctx context.Context, ids []string, yield func(R, error) bool) {
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			var zero R
			yield(zero, err)
			return
		}
		r, err := c.Get(ctx, id)
		if err != nil {
			var zero R
			yield(zero, err)
			return
		}
		if !yield(r, nil) {
			return
		}
	}
}

func imageRef() string {
	return "images/" + uuid.NewString()
}
