package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/erazemk/najdbe/internal/model"
)

// TokenExpiry is the default token lifetime.
const TokenExpiry = 7 * 24 * time.Hour

// Claims are the JWT claims of a local session. The subject is the user id.
type Claims struct {
	Username string `json:"username"`
	Name     string `json:"name,omitempty"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Issuer signs and parses local session tokens.
type Issuer struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewIssuer returns an Issuer signing with key. A zero ttl means TokenExpiry.
func NewIssuer(key []byte, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = TokenExpiry
	}
	return &Issuer{key: key, ttl: ttl, now: time.Now}
}

// Issue creates a token for u with a unique token id.
func (i *Issuer) Issue(u *model.User) (string, error) {
	jti, err := newTokenID()
	if err != nil {
		return "", fmt.Errorf("generating token id: %w", err)
	}

	now := i.now()
	claims := Claims{
		Username: u.Username,
		Name:     u.Name,
		Role:     u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   strconv.FormatInt(u.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// Parse validates the signature and expiry of a token and returns its claims.
func (i *Issuer) Parse(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.key, nil
	}, jwt.WithTimeFunc(i.now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.ID == "" {
		return nil, fmt.Errorf("%w: invalid token", ErrUnauthenticated)
	}
	return claims, nil
}

// Accounts is the part of the account store the JWT gateway consults.
type Accounts interface {
	User(ctx context.Context, id int64) (*model.User, error)
	Revoked(ctx context.Context, jti string) (bool, error)
}

// JWTGateway authenticates local session tokens. Revoked tokens and tokens
// of deleted accounts are rejected; the role is read from the account so
// role changes apply immediately.
type JWTGateway struct {
	issuer   *Issuer
	accounts Accounts
}

// NewJWTGateway returns a gateway over issuer and accounts.
func NewJWTGateway(issuer *Issuer, accounts Accounts) *JWTGateway {
	return &JWTGateway{issuer: issuer, accounts: accounts}
}

// Authenticate implements Gateway.
func (g *JWTGateway) Authenticate(ctx context.Context, token string) (model.Principal, error) {
	claims, err := g.issuer.Parse(token)
	if err != nil {
		return model.Principal{}, err
	}

	revoked, err := g.accounts.Revoked(ctx, claims.ID)
	if err != nil {
		return model.Principal{}, err
	}
	if revoked {
		return model.Principal{}, fmt.Errorf("%w: token revoked", ErrUnauthenticated)
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return model.Principal{}, fmt.Errorf("%w: invalid subject", ErrUnauthenticated)
	}
	u, err := g.accounts.User(ctx, id)
	if errors.Is(err, model.ErrNotFound) {
		return model.Principal{}, fmt.Errorf("%w: unknown account", ErrUnauthenticated)
	}
	if err != nil {
		return model.Principal{}, err
	}
	if u.DeletedAt != nil {
		return model.Principal{}, fmt.Errorf("%w: account deleted", ErrUnauthenticated)
	}

	name := u.Name
	if name == "" {
		name = u.Username
	}
	return model.Principal{ID: claims.Subject, Name: name, Role: u.Role}, nil
}

func newTokenID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
