package store

import (
	"fmt"
	"time"

	"github.com/erazemk/najdbe/internal/model"
)

// prepareLost readies next for writing. stored is nil for an insert; a
// replacement is only accepted while the report is searching and not archived.
func prepareLost(stored, next *model.LostReport, now time.Time) error {
	if stored == nil {
		if next.Status == "" {
			next.Status = model.LostStatusSearching
		}
		if next.Status != model.LostStatusSearching || next.LinkedFoundID != "" || next.ArchivedAt != nil {
			return fmt.Errorf("%w: a new lost report must be searching and unlinked", model.ErrValidation)
		}
		if err := next.Validate(now); err != nil {
			return err
		}
		next.Version = 1
		if next.CreatedAt.IsZero() {
			next.CreatedAt = now
		}
		next.UpdatedAt = now
		return nil
	}

	if next.DateLost.Compare(stored.DateLost) != 0 {
		return fmt.Errorf("%w: date lost cannot be changed", model.ErrValidation)
	}
	if next.ReporterID != stored.ReporterID {
		return fmt.Errorf("%w: reporter cannot be changed", model.ErrValidation)
	}
	if next.Version != stored.Version {
		return fmt.Errorf("%w: lost report %s changed since version %d", model.ErrConflict, stored.ID, next.Version)
	}
	if stored.Status != model.LostStatusSearching || stored.Archived() {
		return fmt.Errorf("%w: lost report %s is closed for editing", model.ErrConflict, stored.ID)
	}

	next.Status = stored.Status
	next.LinkedFoundID = stored.LinkedFoundID
	next.ArchivedAt = stored.ArchivedAt
	next.CreatedAt = stored.CreatedAt
	if err := next.Validate(now); err != nil {
		return err
	}
	next.Version = stored.Version + 1
	next.UpdatedAt = now
	return nil
}

// prepareFound readies next for writing. stored is nil for an insert; a
// replacement is only accepted while the report is unclaimed and not archived.
func prepareFound(stored, next *model.FoundReport, now time.Time) error {
	if stored == nil {
		if next.Status == "" {
			next.Status = model.FoundStatusUnclaimed
		}
		if next.Status != model.FoundStatusUnclaimed || next.LinkedLostID != "" || next.ClaimantID != "" || next.ArchivedAt != nil {
			return fmt.Errorf("%w: a new found report must be unclaimed and unlinked", model.ErrValidation)
		}
		if err := next.Validate(now); err != nil {
			return err
		}
		next.Version = 1
		if next.CreatedAt.IsZero() {
			next.CreatedAt = now
		}
		next.UpdatedAt = now
		return nil
	}

	if next.DateFound.Compare(stored.DateFound) != 0 {
		return fmt.Errorf("%w: date found cannot be changed", model.ErrValidation)
	}
	if next.FinderID != stored.FinderID {
		return fmt.Errorf("%w: finder cannot be changed", model.ErrValidation)
	}
	if next.Version != stored.Version {
		return fmt.Errorf("%w: found report %s changed since version %d", model.ErrConflict, stored.ID, next.Version)
	}
	if stored.Status != model.FoundStatusUnclaimed || stored.Archived() {
		return fmt.Errorf("%w: found report %s is closed for editing", model.ErrConflict, stored.ID)
	}

	next.Status = stored.Status
	next.ClaimantID = stored.ClaimantID
	next.LinkedLostID = stored.LinkedLostID
	next.ArchivedAt = stored.ArchivedAt
	next.CreatedAt = stored.CreatedAt
	if err := next.Validate(now); err != nil {
		return err
	}
	next.Version = stored.Version + 1
	next.UpdatedAt = now
	return nil
}

// checkVersion fails with ErrConflict when a transition was computed from a
// stale read.
func checkVersion(kind model.Kind, id string, stored, expected int64) error {
	if stored != expected {
		return fmt.Errorf("%w: %s report %s is at version %d, not %d", model.ErrConflict, kind, id, stored, expected)
	}
	return nil
}

// applyLostState copies the transition-owned fields of src into dst.
func applyLostState(dst, src *model.LostReport, now time.Time) {
	dst.Status = src.Status
	dst.LinkedFoundID = src.LinkedFoundID
	dst.ArchivedAt = src.ArchivedAt
	dst.Version++
	dst.UpdatedAt = now
}

// applyFoundState copies the transition-owned fields of src into dst.
func applyFoundState(dst, src *model.FoundReport, now time.Time) {
	dst.Status = src.Status
	dst.ClaimantID = src.ClaimantID
	dst.LinkedLostID = src.LinkedLostID
	dst.ArchivedAt = src.ArchivedAt
	dst.Version++
	dst.UpdatedAt = now
}

func notFound(kind model.Kind, id string) error {
	return fmt.Errorf("%w: %s report %s", model.ErrNotFound, kind, id)
}
