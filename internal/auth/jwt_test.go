package auth

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/erazemk/najdbe/internal/model"
)

type fakeAccounts struct {
	users   map[int64]*model.User
	revoked map[string]bool
}

func (f *fakeAccounts) User(ctx context.Context, id int64) (*model.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: user %d", model.ErrNotFound, id)
	}
	return u, nil
}

func (f *fakeAccounts) Revoked(ctx context.Context, jti string) (bool, error) {
	return f.revoked[jti], nil
}

func newFixture() (*Issuer, *fakeAccounts, *model.User) {
	u := &model.User{ID: 7, Username: "ana", Name: "Ana Novak", Role: model.RoleStudent}
	accounts := &fakeAccounts{
		users:   map[int64]*model.User{u.ID: u},
		revoked: map[string]bool{},
	}
	return NewIssuer([]byte("test-signing-key"), 0), accounts, u
}

func TestIssueAndParse(t *testing.T) {
	issuer, _, u := newFixture()

	token, err := issuer.Issue(u)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	claims, err := issuer.Parse(token)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.Subject != "7" {
		t.Errorf("expected subject '7', got %q", claims.Subject)
	}
	if claims.Username != "ana" || claims.Role != model.RoleStudent {
		t.Errorf("unexpected claims %+v", claims)
	}
	if claims.ID == "" {
		t.Error("expected a token id")
	}

	diff := time.Until(claims.ExpiresAt.Time) - TokenExpiry
	if diff < -5*time.Second || diff > 5*time.Second {
		t.Errorf("token expiry too far from expected: diff=%v", diff)
	}
}

func TestParseRejects(t *testing.T) {
	issuer, _, u := newFixture()
	token, _ := issuer.Issue(u)

	other := NewIssuer([]byte("other-key"), 0)
	if _, err := other.Parse(token); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("expected ErrUnauthenticated for wrong key, got %v", err)
	}
	if _, err := issuer.Parse("not-a-token"); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("expected ErrUnauthenticated for garbage, got %v", err)
	}

	issuer.now = func() time.Time { return time.Now().Add(TokenExpiry + time.Hour) }
	if _, err := issuer.Parse(token); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("expected ErrUnauthenticated for expired token, got %v", err)
	}
}

func TestJWTGateway(t *testing.T) {
	issuer, accounts, u := newFixture()
	gw := NewJWTGateway(issuer, accounts)
	ctx := context.Background()

	token, _ := issuer.Issue(u)
	p, err := gw.Authenticate(ctx, token)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	want := model.Principal{ID: "7", Name: "Ana Novak", Role: model.RoleStudent}
	if p != want {
		t.Errorf("expected %+v, got %+v", want, p)
	}

	// Role changes apply to existing tokens.
	u.Role = model.RoleStaff
	if p, _ := gw.Authenticate(ctx, token); p.Role != model.RoleStaff {
		t.Errorf("expected role staff, got %q", p.Role)
	}

	claims, _ := issuer.Parse(token)
	accounts.revoked[claims.ID] = true
	if _, err := gw.Authenticate(ctx, token); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("expected ErrUnauthenticated for revoked token, got %v", err)
	}
}

func TestJWTGatewayDeletedAccount(t *testing.T) {
	issuer, accounts, u := newFixture()
	gw := NewJWTGateway(issuer, accounts)
	token, _ := issuer.Issue(u)

	deleted := time.Now()
	u.DeletedAt = &deleted
	if _, err := gw.Authenticate(context.Background(), token); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("expected ErrUnauthenticated for deleted account, got %v", err)
	}

	delete(accounts.users, u.ID)
	if _, err := gw.Authenticate(context.Background(), token); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("expected ErrUnauthenticated for missing account, got %v", err)
	}
}

func TestBearerToken(t *testing.T) {
	tests := map[string]string{
		"Bearer abc":   "abc",
		"bearer  abc ": "abc",
		"Basic abc":    "",
		"abc":          "",
		"":             "",
	}
	for header, want := range tests {
		if got := BearerToken(header); got != want {
			t.Errorf("BearerToken(%q) = %q, want %q", header, got, want)
		}
	}
}
