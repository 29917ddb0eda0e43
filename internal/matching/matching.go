// Package matching owns the claim and resolution state machine of lost and
// found reports. Every status change goes through a Service method, which
// commits it to the store with a version check.
package matching

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/erazemk/najdbe/internal/model"
	"github.com/erazemk/najdbe/internal/store"
)

// Service applies report transitions.
type Service struct {
	store  store.Store
	policy Policy
	now    func() time.Time
	log    *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source used for archive timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the logger for transitions.
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) { s.log = log }
}

// New creates a Service over st enforcing policy.
func New(st store.Store, policy Policy, opts ...Option) *Service {
	s := &Service{
		store:  st,
		policy: policy,
		now:    time.Now,
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ClaimRequest releases a found item to a claimant, optionally resolving the
// claimant's lost report.
type ClaimRequest struct {
	FoundID    string `json:"found_id"`
	ClaimantID string `json:"claimant_id"`
	LostID     string `json:"lost_id,omitempty"`
}

// ClaimResult is the state of both reports after a claim.
type ClaimResult struct {
	FoundStatus model.FoundStatus `json:"found_status"`
	LostStatus  model.LostStatus  `json:"lost_status,omitempty"`
}

// Claim moves a found report from unclaimed to claimed. With a LostID the lost
// report moves from searching to found and both reports are linked in the same
// commit. Repeating a claim that already succeeded returns the same result.
// The lost report must belong to the claimant unless who holds
// ClaimOnBehalfRole.
func (s *Service) Claim(ctx context.Context, who model.Principal, req ClaimRequest) (ClaimResult, error) {
	if who.IsZero() {
		return ClaimResult{}, fmt.Errorf("%w: sign in to claim an item", model.ErrAuth)
	}
	if req.FoundID == "" {
		return ClaimResult{}, fmt.Errorf("%w: found report id is required", model.ErrValidation)
	}
	if req.ClaimantID == "" {
		return ClaimResult{}, fmt.Errorf("%w: claimant is required", model.ErrValidation)
	}
	if !s.policy.mayClaim(who, req.ClaimantID) {
		return ClaimResult{}, fmt.Errorf("%w: %s may not claim for %s", model.ErrAuth, who.ID, req.ClaimantID)
	}

	found, err := s.store.Found().Get(ctx, req.FoundID)
	if err != nil {
		return ClaimResult{}, err
	}
	var lost *model.LostReport
	if req.LostID != "" {
		if lost, err = s.store.Lost().Get(ctx, req.LostID); err != nil {
			return ClaimResult{}, err
		}
		if !s.policy.mayLink(who, lost.ReporterID, req.ClaimantID) {
			return ClaimResult{}, fmt.Errorf("%w: lost report %s was not filed by %s", model.ErrAuth, lost.ID, req.ClaimantID)
		}
	}

	if res, ok := claimedBy(found, lost, req); ok {
		return res, nil
	}
	if found.Status != model.FoundStatusUnclaimed {
		return ClaimResult{}, fmt.Errorf("%w: found report %s is already claimed", model.ErrConflict, found.ID)
	}
	if found.Archived() {
		return ClaimResult{}, fmt.Errorf("%w: found report %s is archived", model.ErrConflict, found.ID)
	}
	if lost != nil && lost.Status != model.LostStatusSearching {
		return ClaimResult{}, fmt.Errorf("%w: lost report %s is already resolved", model.ErrConflict, lost.ID)
	}

	found.Status = model.FoundStatusClaimed
	found.ClaimantID = req.ClaimantID
	found.LinkedLostID = req.LostID
	tr := store.Transition{
		Found: found,
		Events: []model.Event{{
			Action:     model.ActionClaim,
			ReportKind: model.KindFound,
			ReportID:   found.ID,
			LinkedID:   req.LostID,
			ClaimantID: req.ClaimantID,
			ActorID:    who.ID,
		}},
	}
	if lost != nil {
		lost.Status = model.LostStatusFound
		lost.LinkedFoundID = found.ID
		tr.Lost = lost
		tr.Events = append(tr.Events, model.Event{
			Action:     model.ActionClaim,
			ReportKind: model.KindLost,
			ReportID:   lost.ID,
			LinkedID:   found.ID,
			ClaimantID: req.ClaimantID,
			ActorID:    who.ID,
		})
	}

	if err := s.store.Commit(ctx, tr); err != nil {
		if errors.Is(err, model.ErrConflict) {
			// An identical claim may have won the race.
			if res, ok := s.reread(ctx, req); ok {
				return res, nil
			}
		}
		return ClaimResult{}, err
	}

	s.log.Info("Item claimed", "found", found.ID, "lost", req.LostID, "claimant", req.ClaimantID, "user", who.ID)
	return resultOf(found, lost), nil
}

// reread reports whether req is already the committed state.
func (s *Service) reread(ctx context.Context, req ClaimRequest) (ClaimResult, bool) {
	found, err := s.store.Found().Get(ctx, req.FoundID)
	if err != nil {
		return ClaimResult{}, false
	}
	var lost *model.LostReport
	if req.LostID != "" {
		if lost, err = s.store.Lost().Get(ctx, req.LostID); err != nil {
			return ClaimResult{}, false
		}
	}
	return claimedBy(found, lost, req)
}

// claimedBy reports whether found (and lost) already reflect req.
func claimedBy(found *model.FoundReport, lost *model.LostReport, req ClaimRequest) (ClaimResult, bool) {
	if found.Status != model.FoundStatusClaimed ||
		found.ClaimantID != req.ClaimantID ||
		found.LinkedLostID != req.LostID {
		return ClaimResult{}, false
	}
	if lost != nil && (lost.Status != model.LostStatusFound || lost.LinkedFoundID != found.ID) {
		return ClaimResult{}, false
	}
	return resultOf(found, lost), true
}

func resultOf(found *model.FoundReport, lost *model.LostReport) ClaimResult {
	res := ClaimResult{FoundStatus: found.Status}
	if lost != nil {
		res.LostStatus = lost.Status
	}
	return res
}

// Reopen reverts a claimed found report to unclaimed or a resolved lost report
// to searching. A linked counterpart is reverted in the same commit and the
// link is cleared.
func (s *Service) Reopen(ctx context.Context, who model.Principal, kind model.Kind, id string) error {
	if who.IsZero() {
		return fmt.Errorf("%w: sign in to reopen a report", model.ErrAuth)
	}
	if !model.RoleAtLeast(who.Role, s.policy.ReopenRole) {
		return fmt.Errorf("%w: reopening requires the %s role", model.ErrAuth, s.policy.ReopenRole)
	}

	var (
		found *model.FoundReport
		lost  *model.LostReport
		err   error
	)
	switch kind {
	case model.KindFound:
		if found, err = s.store.Found().Get(ctx, id); err != nil {
			return err
		}
		if found.Status != model.FoundStatusClaimed {
			return fmt.Errorf("%w: found report %s is not claimed", model.ErrConflict, id)
		}
		if found.LinkedLostID != "" {
			if lost, err = s.linkedLost(ctx, found); err != nil {
				return err
			}
		}
	case model.KindLost:
		if lost, err = s.store.Lost().Get(ctx, id); err != nil {
			return err
		}
		if lost.Status != model.LostStatusFound {
			return fmt.Errorf("%w: lost report %s is not resolved", model.ErrConflict, id)
		}
		if lost.LinkedFoundID != "" {
			if found, err = s.linkedFound(ctx, lost); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("%w: unknown report kind %q", model.ErrValidation, kind)
	}

	var tr store.Transition
	if found != nil {
		found.Status = model.FoundStatusUnclaimed
		found.ClaimantID = ""
		found.LinkedLostID = ""
		tr.Found = found
		tr.Events = append(tr.Events, model.Event{
			Action:     model.ActionReopen,
			ReportKind: model.KindFound,
			ReportID:   found.ID,
			ActorID:    who.ID,
		})
	}
	if lost != nil {
		lost.Status = model.LostStatusSearching
		lost.LinkedFoundID = ""
		tr.Lost = lost
		tr.Events = append(tr.Events, model.Event{
			Action:     model.ActionReopen,
			ReportKind: model.KindLost,
			ReportID:   lost.ID,
			ActorID:    who.ID,
		})
	}
	if err := s.store.Commit(ctx, tr); err != nil {
		return err
	}

	s.log.Info("Report reopened", "kind", kind, "id", id, "user", who.ID)
	return nil
}

// linkedLost returns the lost report linked to found, or nil when the link
// is one-sided.
func (s *Service) linkedLost(ctx context.Context, found *model.FoundReport) (*model.LostReport, error) {
	lost, err := s.store.Lost().Get(ctx, found.LinkedLostID)
	if errors.Is(err, model.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if lost.LinkedFoundID != found.ID {
		return nil, nil
	}
	return lost, nil
}

// linkedFound returns the found report linked to lost, or nil when the link
// is one-sided.
func (s *Service) linkedFound(ctx context.Context, lost *model.LostReport) (*model.FoundReport, error) {
	found, err := s.store.Found().Get(ctx, lost.LinkedFoundID)
	if errors.Is(err, model.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if found.LinkedLostID != lost.ID {
		return nil, nil
	}
	return found, nil
}

// ResolveLost marks a lost report found without linking a found report, for
// items that turned up on their own. Resolving an already resolved, unlinked
// report succeeds without changes.
func (s *Service) ResolveLost(ctx context.Context, who model.Principal, id string) error {
	if who.IsZero() {
		return fmt.Errorf("%w: sign in to resolve a report", model.ErrAuth)
	}

	lost, err := s.store.Lost().Get(ctx, id)
	if err != nil {
		return err
	}
	if !mayManage(who, lost.ReporterID, s.policy.ResolveRole) {
		return fmt.Errorf("%w: only the reporter may resolve lost report %s", model.ErrAuth, id)
	}
	if lost.Status == model.LostStatusFound {
		if lost.LinkedFoundID == "" {
			return nil
		}
		return fmt.Errorf("%w: lost report %s is already claimed", model.ErrConflict, id)
	}

	lost.Status = model.LostStatusFound
	err = s.store.Commit(ctx, store.Transition{
		Lost: lost,
		Events: []model.Event{{
			Action:     model.ActionResolve,
			ReportKind: model.KindLost,
			ReportID:   lost.ID,
			ActorID:    who.ID,
		}},
	})
	if err != nil {
		return err
	}

	s.log.Info("Lost report resolved", "lost", id, "user", who.ID)
	return nil
}

// Archive hides a report from default queries. Archiving is idempotent.
func (s *Service) Archive(ctx context.Context, who model.Principal, kind model.Kind, id string) error {
	if who.IsZero() {
		return fmt.Errorf("%w: sign in to archive a report", model.ErrAuth)
	}

	now := s.now().UTC()
	var tr store.Transition
	switch kind {
	case model.KindLost:
		lost, err := s.store.Lost().Get(ctx, id)
		if err != nil {
			return err
		}
		if !mayManage(who, lost.ReporterID, s.policy.ArchiveRole) {
			return fmt.Errorf("%w: only the reporter may archive lost report %s", model.ErrAuth, id)
		}
		if lost.Archived() {
			return nil
		}
		lost.ArchivedAt = &now
		tr.Lost = lost
	case model.KindFound:
		found, err := s.store.Found().Get(ctx, id)
		if err != nil {
			return err
		}
		if !mayManage(who, found.FinderID, s.policy.ArchiveRole) {
			return fmt.Errorf("%w: only the finder may archive found report %s", model.ErrAuth, id)
		}
		if found.Archived() {
			return nil
		}
		found.ArchivedAt = &now
		tr.Found = found
	default:
		return fmt.Errorf("%w: unknown report kind %q", model.ErrValidation, kind)
	}

	tr.Events = []model.Event{{
		Action:     model.ActionArchive,
		ReportKind: kind,
		ReportID:   id,
		ActorID:    who.ID,
	}}
	if err := s.store.Commit(ctx, tr); err != nil {
		return err
	}

	s.log.Info("Report archived", "kind", kind, "id", id, "user", who.ID)
	return nil
}
