// Package auth validates the bearer credentials on inbound requests and
// derives the authorization scope the rest of the engine runs under.
package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/depotkit/concierge/pkg/scope"
)

// TokenValidator validates a bearer token and returns its claims.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*Claims, error)
}

// Claims are the validated claims a request's scope is derived from.
type Claims struct {
	// Subject is the unique user identifier (sub claim).
	Subject string `json:"sub"`

	// TenantID and AccountID bound every read and write for the request.
	TenantID  string `json:"tenant_id"`
	AccountID string `json:"account_id"`

	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

// Scope derives the immutable request scope. subAccountID comes from the
// request body and optionally narrows the account; it is validated against
// the store later, like any other entity reference.
func (c *Claims) Scope(subAccountID string) scope.Scope {
	return scope.Scope{
		TenantID:     c.TenantID,
		AccountID:    c.AccountID,
		SubAccountID: subAccountID,
		UserID:       c.Subject,
	}
}

// JWTValidator validates JWT tokens issued by the platform's identity
// provider. JWKS is cached and auto-refreshed to handle key rotation.
type JWTValidator struct {
	jwksURL  string
	cache    *jwk.Cache
	issuer   string
	audience string
}

// NewJWTValidator creates a validator that auto-fetches JWKS from jwksURL.
func NewJWTValidator(jwksURL, issuer, audience string) (*JWTValidator, error) {
	ctx := context.Background()

	cache := jwk.NewCache(ctx)
	if err := cache.Register(jwksURL, jwk.WithMinRefreshInterval(15*time.Minute)); err != nil {
		return nil, fmt.Errorf("failed to register JWKS URL: %w", err)
	}

	// Initial fetch validates the configuration at startup.
	if _, err := cache.Refresh(ctx, jwksURL); err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS from %s: %w", jwksURL, err)
	}

	return &JWTValidator{
		jwksURL:  jwksURL,
		cache:    cache,
		issuer:   issuer,
		audience: audience,
	}, nil
}

// ValidateToken verifies signature, expiry, issuer, and audience, then
// extracts the claims the scope resolver needs. A token without tenant and
// account claims is rejected: there is no anonymous scope.
func (v *JWTValidator) ValidateToken(ctx context.Context, tokenString string) (*Claims, error) {
	keyset, err := v.cache.Get(ctx, v.jwksURL)
	if err != nil {
		return nil, fmt.Errorf("failed to get JWKS: %w", err)
	}

	token, err := jwt.Parse(
		[]byte(tokenString),
		jwt.WithKeySet(keyset),
		jwt.WithValidate(true),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims := &Claims{Subject: token.Subject()}
	claims.TenantID = stringClaim(token, "tenant_id")
	claims.AccountID = stringClaim(token, "account_id")
	claims.Email = stringClaim(token, "email")
	claims.Role = stringClaim(token, "role")

	if claims.TenantID == "" || claims.AccountID == "" {
		return nil, fmt.Errorf("token missing tenant_id or account_id claim")
	}

	return claims, nil
}

func stringClaim(token jwt.Token, name string) string {
	if val, ok := token.Get(name); ok {
		if s, ok := val.(string); ok {
			return s
		}
	}
	return ""
}

var _ TokenValidator = (*JWTValidator)(nil)
