package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/najdbe/internal/matching"
	"github.com/erazemk/najdbe/internal/model"
	"github.com/erazemk/najdbe/internal/store"
)

var testNow = time.Date(2025, 4, 23, 12, 0, 0, 0, time.UTC)

var (
	admin    = model.Principal{ID: "1", Name: "Admin", Role: model.RoleAdmin}
	reporter = model.Principal{ID: "10", Name: "Ana", Role: model.RoleStudent}
	finder   = model.Principal{ID: "11", Name: "Eva", Role: model.RoleStudent}
	other    = model.Principal{ID: "12", Name: "Bor", Role: model.RoleStudent}
)

func newService(t *testing.T, opts ...Option) (*Service, store.Store) {
	t.Helper()
	clock := func() time.Time { return testNow }
	st := store.NewMemory(store.WithClock(clock))
	n := 0
	opts = append([]Option{WithIDs(func() string {
		n++
		return fmt.Sprintf("R%d", n)
	})}, opts...)
	return New(st, matching.New(st, matching.DefaultPolicy(), matching.WithClock(clock)), opts...), st
}

func lostInput() ReportInput {
	return ReportInput{
		Description: "Black laptop charger",
		Location:    "Library",
		Category:    "Electronics",
		Date:        model.NewDate(2025, 4, 21),
	}
}

func foundInput() ReportInput {
	return ReportInput{
		Description:   "MacBook Pro Charger",
		Location:      "Library, 2nd floor",
		Category:      "Electronics",
		Date:          model.NewDate(2025, 4, 22),
		FinderContact: "eva@university.edu",
	}
}

func TestCreateReport(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	r, err := svc.CreateReport(ctx, finder, model.KindFound, foundInput())
	require.NoError(t, err)
	found := r.(*model.FoundReport)
	assert.Equal(t, "R1", found.ID)
	assert.Equal(t, model.FoundStatusUnclaimed, found.Status)
	assert.Equal(t, finder.ID, found.FinderID)
	assert.Equal(t, "Eva", found.FinderName, "finder name defaults to the principal")

	got, err := svc.GetReport(ctx, model.KindFound, "R1")
	require.NoError(t, err)
	assert.Equal(t, found.Description, got.(*model.FoundReport).Description)
}

func TestCreateReportErrors(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	empty := lostInput()
	empty.Description = "  "
	_, err := svc.CreateReport(ctx, reporter, model.KindLost, empty)
	assert.ErrorIs(t, err, model.ErrValidation)
	assert.Equal(t, CodeValidation, Code(err))

	all := lostInput()
	all.Category = "all"
	_, err = svc.CreateReport(ctx, reporter, model.KindLost, all)
	assert.ErrorIs(t, err, model.ErrValidation)

	future := lostInput()
	future.Date = model.NewDate(2025, 5, 1)
	_, err = svc.CreateReport(ctx, reporter, model.KindLost, future)
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = svc.CreateReport(ctx, model.Principal{}, model.KindLost, lostInput())
	assert.ErrorIs(t, err, model.ErrAuth)

	_, err = svc.CreateReport(ctx, reporter, "stolen", lostInput())
	assert.ErrorIs(t, err, model.ErrValidation)

	page, err := svc.Query(ctx, QueryRequest{Kind: model.KindLost})
	require.NoError(t, err)
	assert.Zero(t, page.TotalCount)
}

func TestQueryEnvelope(t *testing.T) {
	svc, _ := newService(t, WithPageSize(2, 3))
	ctx := context.Background()

	for i := range 4 {
		in := foundInput()
		in.Date = model.NewDate(2025, 4, 10+i)
		_, err := svc.CreateReport(ctx, finder, model.KindFound, in)
		require.NoError(t, err)
	}

	page, err := svc.Query(ctx, QueryRequest{Kind: model.KindFound, Term: "charger", Category: "all"})
	require.NoError(t, err)
	assert.Equal(t, 4, page.TotalCount)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "R4", page.Items[0].ReportID())
	assert.Equal(t, "2", page.NextCursor)

	page, err = svc.Query(ctx, QueryRequest{Kind: model.KindFound, Cursor: page.NextCursor, Limit: 50})
	require.NoError(t, err)
	require.Len(t, page.Items, 2, "limit is capped at the maximum page size")
	assert.Empty(t, page.NextCursor)

	empty, err := svc.Query(ctx, QueryRequest{Kind: model.KindFound, Term: "earbud"})
	require.NoError(t, err)
	assert.NotNil(t, empty.Items)
	assert.Empty(t, empty.Items)

	_, err = svc.Query(ctx, QueryRequest{Kind: model.KindFound, Category: "Food"})
	assert.ErrorIs(t, err, model.ErrValidation)
	_, err = svc.Query(ctx, QueryRequest{Kind: model.KindFound, Cursor: "abc"})
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestUpdateReport(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	r, err := svc.CreateReport(ctx, reporter, model.KindLost, lostInput())
	require.NoError(t, err)

	in := lostInput()
	in.Description = "Black Dell charger"
	in.Category = "Other"
	updated, err := svc.UpdateReport(ctx, reporter, model.KindLost, r.ReportID(), 1, in)
	require.NoError(t, err)
	assert.Equal(t, "Black Dell charger", updated.(*model.LostReport).Description)
	assert.Equal(t, int64(2), updated.(*model.LostReport).Version)

	_, err = svc.UpdateReport(ctx, reporter, model.KindLost, r.ReportID(), 1, in)
	assert.Equal(t, CodeConflict, Code(err), "stale version")

	_, err = svc.UpdateReport(ctx, other, model.KindLost, r.ReportID(), 2, in)
	assert.Equal(t, CodeForbidden, Code(err))

	moved := in
	moved.Date = model.NewDate(2025, 4, 1)
	_, err = svc.UpdateReport(ctx, admin, model.KindLost, r.ReportID(), 2, moved)
	assert.Equal(t, CodeValidation, Code(err), "dates are immutable")

	_, err = svc.UpdateReport(ctx, admin, model.KindLost, "missing", 1, in)
	assert.Equal(t, CodeNotFound, Code(err))
}

func TestUpdateClosedReport(t *testing.T) {
	tests := []struct {
		name  string
		kind  model.Kind
		close func(t *testing.T, svc *Service, lostID, foundID string)
	}{
		{"claimed found report", model.KindFound, func(t *testing.T, svc *Service, lostID, foundID string) {
			_, err := svc.Claim(context.Background(), reporter, matching.ClaimRequest{FoundID: foundID, ClaimantID: reporter.ID})
			require.NoError(t, err)
		}},
		{"archived found report", model.KindFound, func(t *testing.T, svc *Service, lostID, foundID string) {
			_, err := svc.Archive(context.Background(), finder, model.KindFound, foundID)
			require.NoError(t, err)
		}},
		{"linked lost report", model.KindLost, func(t *testing.T, svc *Service, lostID, foundID string) {
			_, err := svc.Claim(context.Background(), reporter, matching.ClaimRequest{FoundID: foundID, ClaimantID: reporter.ID, LostID: lostID})
			require.NoError(t, err)
		}},
		{"resolved lost report", model.KindLost, func(t *testing.T, svc *Service, lostID, foundID string) {
			_, err := svc.ResolveLost(context.Background(), reporter, lostID)
			require.NoError(t, err)
		}},
		{"archived lost report", model.KindLost, func(t *testing.T, svc *Service, lostID, foundID string) {
			_, err := svc.Archive(context.Background(), reporter, model.KindLost, lostID)
			require.NoError(t, err)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newService(t)
			ctx := context.Background()

			lost, err := svc.CreateReport(ctx, reporter, model.KindLost, lostInput())
			require.NoError(t, err)
			found, err := svc.CreateReport(ctx, finder, model.KindFound, foundInput())
			require.NoError(t, err)
			tt.close(t, svc, lost.ReportID(), found.ReportID())

			id, in := lost.ReportID(), lostInput()
			if tt.kind == model.KindFound {
				id, in = found.ReportID(), foundInput()
			}
			before, err := svc.GetReport(ctx, tt.kind, id)
			require.NoError(t, err)

			in.Category = "Books"
			in.Description = "Changed after closing"
			_, err = svc.UpdateReport(ctx, admin, tt.kind, id, reportVersion(before), in)
			assert.Equal(t, CodeConflict, Code(err))

			_, err = svc.SetImage(ctx, admin, tt.kind, id, pngBytes(t))
			assert.Equal(t, CodeConflict, Code(err))

			after, err := svc.GetReport(ctx, tt.kind, id)
			require.NoError(t, err)
			assert.Equal(t, before, after)
		})
	}
}

func reportVersion(r model.Report) int64 {
	switch r := r.(type) {
	case *model.LostReport:
		return r.Version
	case *model.FoundReport:
		return r.Version
	}
	return 0
}

func TestFinderRollNumber(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	in := foundInput()
	in.FinderRollNo = " 63210042 "
	r, err := svc.CreateReport(ctx, finder, model.KindFound, in)
	require.NoError(t, err)
	assert.Equal(t, "63210042", r.(*model.FoundReport).FinderRollNo)

	in.FinderRollNo = "63210043"
	updated, err := svc.UpdateReport(ctx, finder, model.KindFound, r.ReportID(), 1, in)
	require.NoError(t, err)
	assert.Equal(t, "63210043", updated.(*model.FoundReport).FinderRollNo)
}

func TestClaimFlow(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	lost, err := svc.CreateReport(ctx, reporter, model.KindLost, lostInput())
	require.NoError(t, err)
	found, err := svc.CreateReport(ctx, finder, model.KindFound, foundInput())
	require.NoError(t, err)

	res, err := svc.Claim(ctx, reporter, matching.ClaimRequest{
		FoundID:    found.ReportID(),
		ClaimantID: reporter.ID,
		LostID:     lost.ReportID(),
	})
	require.NoError(t, err)
	assert.Equal(t, model.FoundStatusClaimed, res.FoundStatus)
	assert.Equal(t, model.LostStatusFound, res.LostStatus)

	_, err = svc.Claim(ctx, other, matching.ClaimRequest{FoundID: found.ReportID(), ClaimantID: other.ID})
	assert.Equal(t, CodeConflict, Code(err))

	history, err := svc.History(ctx, model.KindLost, lost.ReportID())
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, model.ActionClaim, history[0].Action)

	reopened, err := svc.Reopen(ctx, admin, model.KindFound, found.ReportID())
	require.NoError(t, err)
	assert.Equal(t, model.FoundStatusUnclaimed, reopened.(*model.FoundReport).Status)

	resolved, err := svc.ResolveLost(ctx, reporter, lost.ReportID())
	require.NoError(t, err)
	assert.Equal(t, model.LostStatusFound, resolved.(*model.LostReport).Status)

	archived, err := svc.Archive(ctx, finder, model.KindFound, found.ReportID())
	require.NoError(t, err)
	assert.True(t, archived.Archived())

	page, err := svc.Query(ctx, QueryRequest{Kind: model.KindFound})
	require.NoError(t, err)
	assert.Zero(t, page.TotalCount)

	_, err = svc.History(ctx, model.KindFound, "missing")
	assert.Equal(t, CodeNotFound, Code(err))
}

func TestSetImage(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	r, err := svc.CreateReport(ctx, finder, model.KindFound, foundInput())
	require.NoError(t, err)

	_, err = svc.SetImage(ctx, other, model.KindFound, r.ReportID(), pngBytes(t))
	assert.Equal(t, CodeForbidden, Code(err))

	updated, err := svc.SetImage(ctx, finder, model.KindFound, r.ReportID(), pngBytes(t))
	require.NoError(t, err)
	ref := updated.(*model.FoundReport).ImageRef
	require.NotEmpty(t, ref)

	data, mime, err := svc.Image(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", mime)
	assert.NotEmpty(t, data)

	_, err = svc.SetImage(ctx, finder, model.KindFound, r.ReportID(), []byte("GIF89a"))
	assert.Equal(t, CodeValidation, Code(err))
}

// editRaceStore lands a concurrent edit on a found report between the
// service's read and write, and records the photos it stores.
type editRaceStore struct {
	store.Store
	refs []string
}

func (s *editRaceStore) Found() store.Collection[*model.FoundReport] {
	return racingFound{s.Store.Found()}
}

func (s *editRaceStore) PutImage(ctx context.Context, data []byte, mime string) (string, error) {
	ref, err := s.Store.PutImage(ctx, data, mime)
	s.refs = append(s.refs, ref)
	return ref, err
}

type racingFound struct {
	store.Collection[*model.FoundReport]
}

func (c racingFound) Put(ctx context.Context, r *model.FoundReport) error {
	if r.Version > 0 {
		other, err := c.Collection.Get(ctx, r.ID)
		if err != nil {
			return err
		}
		other.Description = "Edited meanwhile"
		if err := c.Collection.Put(ctx, other); err != nil {
			return err
		}
	}
	return c.Collection.Put(ctx, r)
}

func TestSetImageConflictRemovesPhoto(t *testing.T) {
	st := &editRaceStore{Store: store.NewMemory(store.WithClock(func() time.Time { return testNow }))}
	svc := New(st, matching.New(st, matching.DefaultPolicy()))
	ctx := context.Background()

	r, err := svc.CreateReport(ctx, finder, model.KindFound, foundInput())
	require.NoError(t, err)

	_, err = svc.SetImage(ctx, finder, model.KindFound, r.ReportID(), pngBytes(t))
	assert.Equal(t, CodeConflict, Code(err))

	require.Len(t, st.refs, 1)
	_, _, err = svc.Image(ctx, st.refs[0])
	assert.ErrorIs(t, err, model.ErrNotFound)

	got, err := svc.GetReport(ctx, model.KindFound, r.ReportID())
	require.NoError(t, err)
	assert.Empty(t, got.(*model.FoundReport).ImageRef)
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 30))
	img.Set(1, 1, color.RGBA{0, 255, 0, 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("%w: x", model.ErrValidation), CodeValidation},
		{fmt.Errorf("wrap: %w", fmt.Errorf("%w: x", model.ErrNotFound)), CodeNotFound},
		{model.ErrConflict, CodeConflict},
		{model.ErrAuth, CodeForbidden},
		{errors.New("disk full"), CodeInternal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Code(tt.err), tt.err.Error())
	}
}
