package model

import (
	"fmt"
	"strings"
	"time"
)

// Kind distinguishes the two report collections.
type Kind string

// Report kinds.
const (
	KindLost  Kind = "lost"
	KindFound Kind = "found"
)

// ParseKind converts s into a Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindLost, KindFound:
		return Kind(s), nil
	}
	return "", fmt.Errorf("%w: unknown report kind %q", ErrValidation, s)
}

// LostStatus is the lifecycle state of a lost report.
type LostStatus string

// Lost report statuses.
const (
	LostStatusSearching LostStatus = "searching"
	LostStatusFound     LostStatus = "found"
)

// FoundStatus is the lifecycle state of a found report.
type FoundStatus string

// Found report statuses.
const (
	FoundStatusUnclaimed FoundStatus = "unclaimed"
	FoundStatusClaimed   FoundStatus = "claimed"
)

// Report is the part of a lost or found report the query engine and the
// stores need without knowing the concrete kind.
type Report interface {
	ReportID() string
	ReportKind() Kind
	ReportCategory() Category
	ReportDate() Date
	// SearchText returns the description and the location text.
	SearchText() (description, location string)
	Archived() bool
	// Validate checks the required fields against the current time.
	Validate(now time.Time) error
}

// LostReport is someone's report of an item they lost.
type LostReport struct {
	ID               string     `json:"id"`
	Description      string     `json:"description"`
	PossibleLocation string     `json:"possible_location"`
	Category         Category   `json:"category"`
	DateLost         Date       `json:"date_lost"`
	ImageRef         string     `json:"image_ref,omitempty"`
	Status           LostStatus `json:"status"`
	ReporterID       string     `json:"reporter_id"`
	LinkedFoundID    string     `json:"linked_found_id,omitempty"`
	Version          int64      `json:"version"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	ArchivedAt       *time.Time `json:"archived_at,omitempty"`
}

func (r *LostReport) ReportID() string         { return r.ID }
func (r *LostReport) ReportKind() Kind         { return KindLost }
func (r *LostReport) ReportCategory() Category { return r.Category }
func (r *LostReport) ReportDate() Date         { return r.DateLost }
func (r *LostReport) Archived() bool           { return r.ArchivedAt != nil }

func (r *LostReport) SearchText() (string, string) {
	return r.Description, r.PossibleLocation
}

// Validate checks required fields and that the report is not dated in the future.
func (r *LostReport) Validate(now time.Time) error {
	if r.ID == "" {
		return fmt.Errorf("%w: id is required", ErrValidation)
	}
	if strings.TrimSpace(r.Description) == "" {
		return fmt.Errorf("%w: description is required", ErrValidation)
	}
	if strings.TrimSpace(r.PossibleLocation) == "" {
		return fmt.Errorf("%w: possible location is required", ErrValidation)
	}
	if !r.Category.Valid() {
		return fmt.Errorf("%w: unknown category %q", ErrValidation, r.Category)
	}
	if err := validateDate("date lost", r.DateLost, now); err != nil {
		return err
	}
	if r.Status != LostStatusSearching && r.Status != LostStatusFound {
		return fmt.Errorf("%w: unknown status %q", ErrValidation, r.Status)
	}
	if r.ReporterID == "" {
		return fmt.Errorf("%w: reporter is required", ErrValidation)
	}
	return nil
}

// FoundReport is someone's report of an item they found.
type FoundReport struct {
	ID            string      `json:"id"`
	Description   string      `json:"description"`
	Location      string      `json:"location"`
	Category      Category    `json:"category"`
	DateFound     Date        `json:"date_found"`
	ImageRef      string      `json:"image_ref,omitempty"`
	Status        FoundStatus `json:"status"`
	FinderID      string      `json:"finder_id"`
	FinderName    string      `json:"finder_name,omitempty"`
	FinderRollNo  string      `json:"finder_roll_no,omitempty"`
	FinderContact string      `json:"finder_contact"`
	ClaimantID    string      `json:"claimant_id,omitempty"`
	LinkedLostID  string      `json:"linked_lost_id,omitempty"`
	Version       int64       `json:"version"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
	ArchivedAt    *time.Time  `json:"archived_at,omitempty"`
}

func (r *FoundReport) ReportID() string         { return r.ID }
func (r *FoundReport) ReportKind() Kind         { return KindFound }
func (r *FoundReport) ReportCategory() Category { return r.Category }
func (r *FoundReport) ReportDate() Date         { return r.DateFound }
func (r *FoundReport) Archived() bool           { return r.ArchivedAt != nil }

func (r *FoundReport) SearchText() (string, string) {
	return r.Description, r.Location
}

// Validate checks required fields and that the report is not dated in the future.
func (r *FoundReport) Validate(now time.Time) error {
	if r.ID == "" {
		return fmt.Errorf("%w: id is required", ErrValidation)
	}
	if strings.TrimSpace(r.Description) == "" {
		return fmt.Errorf("%w: description is required", ErrValidation)
	}
	if strings.TrimSpace(r.Location) == "" {
		return fmt.Errorf("%w: location is required", ErrValidation)
	}
	if !r.Category.Valid() {
		return fmt.Errorf("%w: unknown category %q", ErrValidation, r.Category)
	}
	if err := validateDate("date found", r.DateFound, now); err != nil {
		return err
	}
	if r.Status != FoundStatusUnclaimed && r.Status != FoundStatusClaimed {
		return fmt.Errorf("%w: unknown status %q", ErrValidation, r.Status)
	}
	if r.FinderID == "" {
		return fmt.Errorf("%w: finder is required", ErrValidation)
	}
	if strings.TrimSpace(r.FinderContact) == "" {
		return fmt.Errorf("%w: finder contact is required", ErrValidation)
	}
	return nil
}

func validateDate(field string, d Date, now time.Time) error {
	if d.IsZero() {
		return fmt.Errorf("%w: %s is required", ErrValidation, field)
	}
	if d.After(Today(now)) {
		return fmt.Errorf("%w: %s %s is in the future", ErrValidation, field, d)
	}
	return nil
}
