package matching

import (
	"fmt"

	"github.com/erazemk/najdbe/internal/model"
)

// Policy sets the minimum role for each transition. Roles are compared with
// model.RoleAtLeast.
type Policy struct {
	// ClaimRole may claim a found item for themselves.
	ClaimRole string `yaml:"claim_role"`

	// ClaimOnBehalfRole may claim a found item for another principal.
	ClaimOnBehalfRole string `yaml:"claim_on_behalf_role"`

	// ReopenRole may revert a claimed or resolved report.
	ReopenRole string `yaml:"reopen_role"`

	// ResolveRole may resolve someone else's lost report.
	ResolveRole string `yaml:"resolve_role"`

	// ArchiveRole may archive someone else's report.
	ArchiveRole string `yaml:"archive_role"`
}

// DefaultPolicy lets any signed-in principal claim for themselves and keeps
// everything else for staff and administrators.
func DefaultPolicy() Policy {
	return Policy{
		ClaimRole:         model.RoleStudent,
		ClaimOnBehalfRole: model.RoleAdmin,
		ReopenRole:        model.RoleAdmin,
		ResolveRole:       model.RoleStaff,
		ArchiveRole:       model.RoleStaff,
	}
}

// Validate rejects unknown role names.
func (p Policy) Validate() error {
	for name, role := range map[string]string{
		"claim_role":           p.ClaimRole,
		"claim_on_behalf_role": p.ClaimOnBehalfRole,
		"reopen_role":          p.ReopenRole,
		"resolve_role":         p.ResolveRole,
		"archive_role":         p.ArchiveRole,
	} {
		if !model.ValidRole(role) {
			return fmt.Errorf("%w: %s: unknown role %q", model.ErrValidation, name, role)
		}
	}
	return nil
}

// mayClaim reports whether p may claim an item for claimantID.
func (p Policy) mayClaim(who model.Principal, claimantID string) bool {
	if claimantID == who.ID {
		return model.RoleAtLeast(who.Role, p.ClaimRole)
	}
	return model.RoleAtLeast(who.Role, p.ClaimOnBehalfRole)
}

// mayLink reports whether who may close the lost report of reporterID as part
// of a claim for claimantID.
func (p Policy) mayLink(who model.Principal, reporterID, claimantID string) bool {
	return reporterID == claimantID || model.RoleAtLeast(who.Role, p.ClaimOnBehalfRole)
}

// mayManage reports whether who may act on a report owned by ownerID, given
// the minimum role for acting on other principals' reports.
func mayManage(who model.Principal, ownerID, minimum string) bool {
	return who.ID == ownerID || model.RoleAtLeast(who.Role, minimum)
}
