package store

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/erazemk/najdbe/internal/db"
	"github.com/erazemk/najdbe/internal/model"
)

func newTestAccounts(t *testing.T) *Accounts {
	t.Helper()
	return NewAccounts(db.NewTestDB(t), WithClock(testClock))
}

func TestCreateAndGetUser(t *testing.T) {
	a := newTestAccounts(t)
	ctx := context.Background()

	user, err := a.CreateUser(ctx, "ana", "Ana Novak", "hash123", model.RoleStudent)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if user.Username != "ana" || user.Name != "Ana Novak" {
		t.Errorf("unexpected user %+v", user)
	}
	if user.Role != model.RoleStudent {
		t.Errorf("expected role 'student', got %q", user.Role)
	}

	got, err := a.User(ctx, user.ID)
	if err != nil {
		t.Fatalf("User: %v", err)
	}
	if got.PasswordHash != "hash123" {
		t.Errorf("expected hash 'hash123', got %q", got.PasswordHash)
	}

	if _, err := a.User(ctx, 999); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateUserErrors(t *testing.T) {
	a := newTestAccounts(t)
	ctx := context.Background()

	if _, err := a.CreateUser(ctx, "ana", "", "hash", "janitor"); !errors.Is(err, model.ErrValidation) {
		t.Errorf("expected ErrValidation for unknown role, got %v", err)
	}
	if _, err := a.CreateUser(ctx, "", "", "hash", model.RoleStaff); !errors.Is(err, model.ErrValidation) {
		t.Errorf("expected ErrValidation for empty username, got %v", err)
	}

	a.CreateUser(ctx, "ana", "", "hash", model.RoleStudent)
	if _, err := a.CreateUser(ctx, "ana", "", "hash", model.RoleStudent); !errors.Is(err, model.ErrConflict) {
		t.Errorf("expected ErrConflict for taken username, got %v", err)
	}
}

func TestUserByUsername(t *testing.T) {
	a := newTestAccounts(t)
	ctx := context.Background()

	a.CreateUser(ctx, "alice", "", "hash", model.RoleAdmin)

	user, err := a.UserByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("UserByUsername: %v", err)
	}
	if user.Role != model.RoleAdmin {
		t.Errorf("expected admin, got %q", user.Role)
	}

	if _, err := a.UserByUsername(ctx, "bob"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListAndDeleteUsers(t *testing.T) {
	a := newTestAccounts(t)
	ctx := context.Background()

	alice, _ := a.CreateUser(ctx, "alice", "", "hash", model.RoleAdmin)
	a.CreateUser(ctx, "bob", "", "hash", model.RoleStaff)

	users, err := a.Users(ctx)
	if err != nil {
		t.Fatalf("Users: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("expected 2 users, got %d", len(users))
	}

	if err := a.DeleteUser(ctx, alice.ID); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	if err := a.DeleteUser(ctx, alice.ID); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound deleting twice, got %v", err)
	}

	n, err := a.CountUsers(ctx)
	if err != nil {
		t.Fatalf("CountUsers: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 active user, got %d", n)
	}

	deleted, err := a.User(ctx, alice.ID)
	if err != nil {
		t.Fatalf("User: %v", err)
	}
	if deleted.DeletedAt == nil {
		t.Error("expected deleted_at to be set")
	}
	if _, err := a.UserByUsername(ctx, "alice"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("deleted user must not be found by username, got %v", err)
	}

	again, err := a.CreateUser(ctx, "alice", "", "hash2", model.RoleStudent)
	if err != nil {
		t.Fatalf("recreating deleted username: %v", err)
	}
	if again.ID == alice.ID {
		t.Error("expected a new account id")
	}
}

func TestSetPassword(t *testing.T) {
	a := newTestAccounts(t)
	ctx := context.Background()

	user, _ := a.CreateUser(ctx, "ana", "", "old", model.RoleStudent)
	if err := a.SetPassword(ctx, user.ID, "new"); err != nil {
		t.Fatalf("SetPassword: %v", err)
	}
	got, _ := a.User(ctx, user.ID)
	if got.PasswordHash != "new" {
		t.Errorf("expected hash 'new', got %q", got.PasswordHash)
	}
	if err := a.SetPassword(ctx, 999, "x"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRevoke(t *testing.T) {
	a := newTestAccounts(t)
	ctx := context.Background()

	revoked, err := a.Revoked(ctx, "jti-1")
	if err != nil {
		t.Fatalf("Revoked: %v", err)
	}
	if revoked {
		t.Error("expected token not to be revoked")
	}

	for range 2 {
		if err := a.Revoke(ctx, "jti-1", testNow.Add(time.Hour)); err != nil {
			t.Fatalf("Revoke: %v", err)
		}
	}

	if revoked, _ := a.Revoked(ctx, "jti-1"); !revoked {
		t.Error("expected token to be revoked")
	}
	if revoked, _ := a.Revoked(ctx, "jti-2"); revoked {
		t.Error("expected other token not to be revoked")
	}
}

func TestSigningKeyPersists(t *testing.T) {
	a := newTestAccounts(t)
	ctx := context.Background()

	first, err := a.SigningKey(ctx)
	if err != nil {
		t.Fatalf("SigningKey: %v", err)
	}
	if len(first) != 32 {
		t.Errorf("expected 32 byte key, got %d", len(first))
	}

	second, err := a.SigningKey(ctx)
	if err != nil {
		t.Fatalf("SigningKey: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Error("expected the same key on every call")
	}
}
