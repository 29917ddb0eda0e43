package model

import (
	"errors"
	"testing"
)

func TestValidRole(t *testing.T) {
	for _, role := range []string{RoleAdmin, RoleStaff, RoleStudent} {
		if !ValidRole(role) {
			t.Errorf("ValidRole(%q) = false, want true", role)
		}
	}
	for _, role := range []string{"", "manager", "user", "Admin", "student "} {
		if ValidRole(role) {
			t.Errorf("ValidRole(%q) = true, want false", role)
		}
	}
}

func TestRoleAtLeastOrdersCampusRoles(t *testing.T) {
	// Every role satisfies itself and the roles below it, never the ones above.
	order := []string{RoleStudent, RoleStaff, RoleAdmin}
	for i, role := range order {
		for j, minimum := range order {
			if got, want := RoleAtLeast(role, minimum), i >= j; got != want {
				t.Errorf("RoleAtLeast(%q, %q) = %v, want %v", role, minimum, got, want)
			}
		}
	}

	for _, tt := range []struct{ role, minimum string }{
		{"manager", RoleStudent},
		{RoleAdmin, "manager"},
		{"", RoleStudent},
		{"", ""},
	} {
		if RoleAtLeast(tt.role, tt.minimum) {
			t.Errorf("RoleAtLeast(%q, %q) = true for an unknown role", tt.role, tt.minimum)
		}
	}
}

func TestPrincipalIsZero(t *testing.T) {
	if !(Principal{}).IsZero() {
		t.Error("empty principal should be zero")
	}
	if !(Principal{Name: "Ana", Role: RoleStudent}).IsZero() {
		t.Error("principal without an id should be zero")
	}
	if (Principal{ID: "sso|ana"}).IsZero() {
		t.Error("principal with an id should not be zero")
	}
}

func TestValidatePassword(t *testing.T) {
	if err := ValidatePassword("1234567"); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for a %d character password, got %v", MinPasswordLength-1, err)
	}
	if err := ValidatePassword(""); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for an empty password, got %v", err)
	}
	if err := ValidatePassword("12345678"); err != nil {
		t.Errorf("expected %d characters to be enough, got %v", MinPasswordLength, err)
	}
}
