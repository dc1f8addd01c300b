package auth

import (
	"context"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mahaj/chat-sync/pkg/errs"
)

// IdentityProfile is what the identity provider asserts about a credential.
type IdentityProfile struct {
	UserID      string
	DisplayName string
	Email       string
	AvatarURL   string
}

// Identity verifies an opaque client credential with the identity provider.
// The returned user id is trusted as the subscriber's identity everywhere.
type Identity interface {
	Verify(ctx context.Context, credential string) (IdentityProfile, error)
}

type identityClaims struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Picture string `json:"picture"`
	jwt.RegisteredClaims
}

// TokenIdentity verifies HS256-signed identity tokens sharing a secret with
// the provider. Swap in an OIDC verifier for a hosted provider.
type TokenIdentity struct {
	secret []byte
}

func NewTokenIdentity(secret string) *TokenIdentity {
	return &TokenIdentity{secret: []byte(secret)}
}

func (t *TokenIdentity) Verify(_ context.Context, credential string) (IdentityProfile, error) {
	claims := &identityClaims{}

	token, err := jwt.ParseWithClaims(credential, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errs.AuthenticationFailed("unexpected signing method")
		}
		return t.secret, nil
	})
	if err != nil {
		return IdentityProfile{}, errs.Wrap(errs.CodeAuthenticationFailed, "identity provider rejected credential", err)
	}
	if !token.Valid || claims.Subject == "" {
		return IdentityProfile{}, errs.AuthenticationFailed("identity provider rejected credential")
	}

	return IdentityProfile{
		UserID:      claims.Subject,
		DisplayName: claims.Name,
		Email:       claims.Email,
		AvatarURL:   claims.Picture,
	}, nil
}

var _ Identity = (*TokenIdentity)(nil)
