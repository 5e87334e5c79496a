package auth

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"

	"ms-booking/internal/models"
)

// OIDCResolver verifies tokens from an external identity provider such as
// Keycloak. The subject becomes the user id; admin comes from a "role" claim
// or the realm roles.
type OIDCResolver struct {
	verifier *oidc.IDTokenVerifier
}

func NewOIDCResolver(ctx context.Context, issuer string) (*OIDCResolver, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("create OIDC provider: %w", err)
	}

	verifier := provider.Verifier(&oidc.Config{
		SkipClientIDCheck: true,
	})
	return &OIDCResolver{verifier: verifier}, nil
}

type oidcClaims struct {
	Sub               string `json:"sub"`
	Email             string `json:"email"`
	PreferredUsername string `json:"preferred_username"`
	Role              string `json:"role"`
	RealmAccess struct {
		Roles []string `json:"roles"`
	} `json:"realm_access"`
}

func (c oidcClaims) role() models.Role {
	if models.Role(c.Role) == models.RoleAdmin {
		return models.RoleAdmin
	}
	for _, r := range c.RealmAccess.Roles {
		if models.Role(r) == models.RoleAdmin {
			return models.RoleAdmin
		}
	}
	return models.RoleCustomer
}

func (o *OIDCResolver) Resolve(ctx context.Context, raw string) (models.Identity, error) {
	idToken, err := o.verifier.Verify(ctx, raw)
	if err != nil {
		return models.Identity{}, fmt.Errorf("%w: %v", models.ErrUnauthorized, err)
	}

	var claims oidcClaims
	if err := idToken.Claims(&claims); err != nil {
		return models.Identity{}, fmt.Errorf("%w: failed to parse claims", models.ErrUnauthorized)
	}
	if claims.Sub == "" {
		return models.Identity{}, fmt.Errorf("%w: token has no subject", models.ErrUnauthorized)
	}
	return models.Identity{
		UserID:   claims.Sub,
		Role:     claims.role(),
		Email:    claims.Email,
		Username: claims.PreferredUsername,
	}, nil
}
