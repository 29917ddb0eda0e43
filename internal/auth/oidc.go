package auth

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/erazemk/najdbe/internal/model"
)

// OIDCConfig configures campus single sign-on.
type OIDCConfig struct {
	IssuerURL  string `yaml:"issuer"`
	ClientID   string `yaml:"client_id"`
	RolesClaim string `yaml:"roles_claim"`
	NameClaim  string `yaml:"name_claim"`
}

// OIDCGateway authenticates ID tokens from an OpenID Connect provider. The
// highest known role in the roles claim becomes the principal's role; signed
// in users without one are students.
type OIDCGateway struct {
	verifier   *oidc.IDTokenVerifier
	rolesClaim string
	nameClaim  string
}

// NewOIDCGateway discovers the provider at cfg.IssuerURL.
func NewOIDCGateway(ctx context.Context, cfg OIDCConfig) (*OIDCGateway, error) {
	if cfg.IssuerURL == "" || cfg.ClientID == "" {
		return nil, fmt.Errorf("oidc issuer and client id are required")
	}
	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("oidc provider: %w", err)
	}
	return NewOIDCGatewayWithVerifier(provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}), cfg), nil
}

// NewOIDCGatewayWithVerifier uses an existing verifier.
func NewOIDCGatewayWithVerifier(v *oidc.IDTokenVerifier, cfg OIDCConfig) *OIDCGateway {
	g := &OIDCGateway{verifier: v, rolesClaim: cfg.RolesClaim, nameClaim: cfg.NameClaim}
	if g.rolesClaim == "" {
		g.rolesClaim = "roles"
	}
	if g.nameClaim == "" {
		g.nameClaim = "name"
	}
	return g
}

// Authenticate implements Gateway.
func (g *OIDCGateway) Authenticate(ctx context.Context, token string) (model.Principal, error) {
	idToken, err := g.verifier.Verify(ctx, token)
	if err != nil {
		return model.Principal{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	var claims map[string]any
	if err := idToken.Claims(&claims); err != nil {
		return model.Principal{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if idToken.Subject == "" {
		return model.Principal{}, fmt.Errorf("%w: token has no subject", ErrUnauthenticated)
	}

	name, _ := claims[g.nameClaim].(string)
	return model.Principal{
		ID:   idToken.Subject,
		Name: name,
		Role: highestRole(stringList(claims[g.rolesClaim])),
	}, nil
}

func highestRole(roles []string) string {
	best := model.RoleStudent
	for _, r := range roles {
		if model.ValidRole(r) && model.RoleAtLeast(r, best) {
			best = r
		}
	}
	return best
}

// stringList accepts a claim holding a string or a list of strings.
func stringList(v any) []string {
	switch v := v.(type) {
	case string:
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
