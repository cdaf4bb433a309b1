package jwttoken

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	dErrors "avinilabs/pkg/domain-errors"
	"avinilabs/pkg/requestcontext"
)

// Claims represents the JWT claims for our access tokens.
type Claims struct {
	UserID   int    `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	TenantID int    `json:"tenant_id"`
	jwt.RegisteredClaims
}

// Service handles JWT creation and validation (HS256).
type Service struct {
	signingKey []byte
	lifetime   time.Duration
}

func NewService(signingKey string, lifetime time.Duration) *Service {
	return &Service{signingKey: []byte(signingKey), lifetime: lifetime}
}

// Generate issues an access token for the given user.
func (s *Service) Generate(user requestcontext.AuthUser) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
		TenantID: user.TenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.lifetime)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "avinilabs",
			ID:        uuid.NewString(),
		},
	})
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", err
	}
	return signed, nil
}

// Validate parses and verifies a token, returning the caller's identity.
func (s *Service) Validate(tokenString string) (requestcontext.AuthUser, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return requestcontext.AuthUser{}, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return requestcontext.AuthUser{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return requestcontext.AuthUser{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	return requestcontext.AuthUser{
		ID:       claims.UserID,
		Username: claims.Username,
		Role:     claims.Role,
		TenantID: claims.TenantID,
	}, nil
}
