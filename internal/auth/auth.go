// Package auth turns bearer tokens into verified principals. Local accounts
// use HMAC-signed JWTs; campus single sign-on uses OIDC ID tokens.
package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/erazemk/najdbe/internal/model"
)

// ErrUnauthenticated marks a missing, malformed, expired or revoked token.
var ErrUnauthenticated = errors.New("unauthenticated")

// Gateway verifies a bearer token and returns the principal it names.
type Gateway interface {
	Authenticate(ctx context.Context, token string) (model.Principal, error)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
