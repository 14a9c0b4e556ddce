// AngelaMos | 2026
// session.go

package auth

import (
	"context"
	"errors"
	"fmt"

	gojwt "github.com/golang-jwt/jwt/v5"

	"github.com/deez125/novix-gateway/internal/config"
	"github.com/deez125/novix-gateway/internal/core"
	"github.com/deez125/novix-gateway/internal/middleware"
)

const KindSession = "session"

// SessionVerifier checks the HS256 session tokens minted by the hosted
// auth provider the web frontend signs in with. The subject is the
// provider's user id, stored on users.auth_id.
type SessionVerifier struct {
	secret []byte
	issuer string
}

func NewSessionVerifier(cfg config.SessionConfig) *SessionVerifier {
	return &SessionVerifier{
		secret: []byte(cfg.JWTSecret),
		issuer: cfg.Issuer,
	}
}

type sessionClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	gojwt.RegisteredClaims
}

func (v *SessionVerifier) VerifyToken(
	_ context.Context,
	tokenString string,
) (*middleware.Claims, error) {
	if len(v.secret) == 0 {
		return nil, fmt.Errorf(
			"verify session: secret not configured: %w",
			core.ErrTokenInvalid,
		)
	}

	opts := []gojwt.ParserOption{
		gojwt.WithValidMethods([]string{gojwt.SigningMethodHS256.Alg()}),
		gojwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, gojwt.WithIssuer(v.issuer))
	}

	claims := &sessionClaims{}
	_, err := gojwt.ParseWithClaims(
		tokenString,
		claims,
		func(*gojwt.Token) (any, error) { return v.secret, nil },
		opts...,
	)
	if err != nil {
		if errors.Is(err, gojwt.ErrTokenExpired) {
			return nil, fmt.Errorf("verify session: %w", core.ErrTokenExpired)
		}
		return nil, fmt.Errorf("verify session: %w", core.ErrTokenInvalid)
	}

	if claims.Subject == "" || claims.Role == "anon" {
		return nil, fmt.Errorf(
			"verify session: not a signed-in user: %w",
			core.ErrTokenInvalid,
		)
	}

	return &middleware.Claims{
		Subject: claims.Subject,
		Kind:    KindSession,
		Email:   claims.Email,
	}, nil
}
