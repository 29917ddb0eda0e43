package query

import (
	"context"
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/najdbe/internal/model"
	"github.com/erazemk/najdbe/internal/store"
)

var testNow = time.Date(2025, 4, 23, 12, 0, 0, 0, time.UTC)

func newStore(t *testing.T) *store.Memory {
	t.Helper()
	return store.NewMemory(store.WithClock(func() time.Time { return testNow }))
}

func addFound(t *testing.T, s store.Store, id, desc, loc string, cat model.Category, date model.Date) {
	t.Helper()
	require.NoError(t, s.Found().Put(context.Background(), &model.FoundReport{
		ID:            id,
		Description:   desc,
		Location:      loc,
		Category:      cat,
		DateFound:     date,
		FinderID:      "finder",
		FinderContact: "finder@university.edu",
	}))
}

func ids[R model.Report](items []R) []string {
	out := make([]string, len(items))
	for i, r := range items {
		out[i] = r.ReportID()
	}
	return out
}

func TestCategoryFilter(t *testing.T) {
	s := newStore(t)
	addFound(t, s, "F1", "Laptop", "Library", model.CategoryElectronics, model.NewDate(2025, 4, 22))
	addFound(t, s, "F2", "Student ID", "Gym", model.CategoryDocuments, model.NewDate(2025, 4, 20))

	page, err := Run(context.Background(), s.Found(), Params{
		Category: model.CategoryElectronics,
		Sort:     SortNewest,
		Limit:    10,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"F1"}, ids(page.Items))
	assert.Equal(t, 1, page.Total)
	assert.Empty(t, page.NextCursor)
}

func TestSearchTerm(t *testing.T) {
	s := newStore(t)
	addFound(t, s, "F1", "MacBook Pro Charger", "Library, 2nd floor", model.CategoryElectronics, model.NewDate(2025, 4, 22))

	page, err := Run(context.Background(), s.Found(), Params{Term: "charger", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"F1"}, ids(page.Items))

	page, err = Run(context.Background(), s.Found(), Params{Term: "earbud", Limit: 10})
	require.NoError(t, err)
	assert.NotNil(t, page.Items)
	assert.Empty(t, page.Items)
	assert.Zero(t, page.Total)

	page, err = Run(context.Background(), s.Found(), Params{Term: "LIBRARY"})
	require.NoError(t, err)
	assert.Equal(t, []string{"F1"}, ids(page.Items), "location matches case-insensitively")
}

func TestSortTieBreak(t *testing.T) {
	s := newStore(t)
	addFound(t, s, "c", "Umbrella", "Hall", model.CategoryOther, model.NewDate(2025, 4, 20))
	addFound(t, s, "a", "Umbrella", "Hall", model.CategoryOther, model.NewDate(2025, 4, 20))
	addFound(t, s, "d", "Umbrella", "Hall", model.CategoryOther, model.NewDate(2025, 4, 22))
	addFound(t, s, "b", "Umbrella", "Hall", model.CategoryOther, model.NewDate(2025, 4, 18))

	newest, err := Run(context.Background(), s.Found(), Params{Sort: SortNewest})
	require.NoError(t, err)
	assert.Equal(t, []string{"d", "a", "c", "b"}, ids(newest.Items))

	oldest, err := Run(context.Background(), s.Found(), Params{Sort: SortOldest})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a", "c", "d"}, ids(oldest.Items))
}

func TestRunIsPure(t *testing.T) {
	s := newStore(t)
	for i := range 20 {
		addFound(t, s, fmt.Sprintf("F%02d", i), "Water bottle", "Stadium",
			model.Categories[i%len(model.Categories)], model.NewDate(2025, 4, 1+i%5))
	}

	p := Params{Term: "bottle", Sort: SortOldest, Limit: 7}
	first, err := Run(context.Background(), s.Found(), p)
	require.NoError(t, err)
	second, err := Run(context.Background(), s.Found(), p)
	require.NoError(t, err)
	assert.Equal(t, ids(first.Items), ids(second.Items))
	assert.Equal(t, first.Total, second.Total)

	// The store is untouched by queries.
	r, err := s.Found().Get(context.Background(), "F00")
	require.NoError(t, err)
	assert.Equal(t, int64(1), r.Version)
}

func TestCategorySoundnessAndCompleteness(t *testing.T) {
	s := newStore(t)
	for i := range 30 {
		desc := "Notebook"
		if i%3 == 0 {
			desc = "Blue notebook with stickers"
		}
		addFound(t, s, fmt.Sprintf("F%02d", i), desc, "Room 101",
			model.Categories[i%len(model.Categories)], model.NewDate(2025, 3, 1+i))
	}

	for _, cat := range model.Categories {
		page, err := Run(context.Background(), s.Found(), Params{Term: "blue", Category: cat})
		require.NoError(t, err)

		var want []string
		for r, err := range s.Found().All(context.Background()) {
			require.NoError(t, err)
			if r.Category == cat && Matches(r, "blue") {
				want = append(want, r.ID)
			}
		}
		got := ids(page.Items)
		for _, r := range page.Items {
			assert.Equal(t, cat, r.Category)
		}
		slices.Sort(got)
		slices.Sort(want)
		assert.Equal(t, len(want), page.Total)
		if len(want) == 0 {
			assert.Empty(t, got)
		} else {
			assert.Equal(t, want, got)
		}
	}
}

func TestPagination(t *testing.T) {
	s := newStore(t)
	for i := range 5 {
		addFound(t, s, fmt.Sprintf("F%d", i), "Key", "Parking", model.CategoryOther, model.NewDate(2025, 4, 10+i))
	}

	var seen []string
	p := Params{Sort: SortOldest, Limit: 2}
	for {
		page, err := Run(context.Background(), s.Found(), p)
		require.NoError(t, err)
		assert.Equal(t, 5, page.Total)
		seen = append(seen, ids(page.Items)...)
		if page.NextCursor == "" {
			break
		}
		p.Offset, err = ParseCursor(page.NextCursor)
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"F0", "F1", "F2", "F3", "F4"}, seen)

	page, err := Run(context.Background(), s.Found(), Params{Offset: 99})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Equal(t, 5, page.Total)
}

func TestArchivedHidden(t *testing.T) {
	s := newStore(t)
	addFound(t, s, "F1", "Scarf", "Bus stop", model.CategoryClothing, model.NewDate(2025, 4, 1))
	addFound(t, s, "F2", "Hat", "Bus stop", model.CategoryClothing, model.NewDate(2025, 4, 2))

	r, err := s.Found().Get(context.Background(), "F1")
	require.NoError(t, err)
	archived := testNow
	r.ArchivedAt = &archived
	require.NoError(t, s.Commit(context.Background(), store.Transition{Found: r}))

	page, err := Run(context.Background(), s.Found(), Params{})
	require.NoError(t, err)
	assert.Equal(t, []string{"F2"}, ids(page.Items))

	page, err = Run(context.Background(), s.Found(), Params{IncludeArchived: true, Sort: SortOldest})
	require.NoError(t, err)
	assert.Equal(t, []string{"F1", "F2"}, ids(page.Items))
}

func TestRunRejectsBadParams(t *testing.T) {
	s := newStore(t)

	_, err := Run(context.Background(), s.Found(), Params{Category: "Jewelry"})
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = Run(context.Background(), s.Found(), Params{Sort: "sideways"})
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestParseHelpers(t *testing.T) {
	cat, err := ParseCategory("all")
	require.NoError(t, err)
	assert.Empty(t, cat)

	cat, err = ParseCategory("Personal Items")
	require.NoError(t, err)
	assert.Equal(t, model.CategoryPersonalItems, cat)

	_, err = ParseCursor("-3")
	assert.ErrorIs(t, err, model.ErrValidation)

	sort, err := ParseSort("")
	require.NoError(t, err)
	assert.Equal(t, SortNewest, sort)
}
