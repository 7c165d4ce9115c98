// Package jwtauth mints and validates the access tokens carrying an actor's
// identity, tenant and capability grants.
package jwtauth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"sigedoc/internal/permission"
	id "sigedoc/pkg/domain"
	dErrors "sigedoc/pkg/domain-errors"
)

// Claims are the JWT claims for sigedoc access tokens.
type Claims struct {
	UserID       string   `json:"user_id"`
	UserName     string   `json:"user_name"`
	TenantID     string   `json:"tenant_id"`
	Role         string   `json:"role"`
	Capabilities []string `json:"capabilities,omitempty"`
	jwt.RegisteredClaims
}

// Service handles JWT creation and validation.
type Service struct {
	signingKey []byte
	issuer     string
	audience   string
}

func NewService(signingKey, issuer, audience string) *Service {
	return &Service{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		audience:   audience,
	}
}

// Generate signs an access token for the actor.
func (s *Service) Generate(actor permission.Actor, expiresIn time.Duration) (string, error) {
	caps := make([]string, 0, len(actor.Capabilities))
	for _, c := range actor.Capabilities {
		caps = append(caps, string(c))
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID:       actor.ID.String(),
		UserName:     actor.Name,
		TenantID:     actor.TenantID.String(),
		Role:         string(actor.Role),
		Capabilities: caps,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    s.issuer,
			Audience:  []string{s.audience},
			ID:        uuid.NewString(),
		},
	})
	return token.SignedString(s.signingKey)
}

// Validate parses and verifies a token string.
func (s *Service) Validate(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	if !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	return claims, nil
}

// Actor reconstructs the permission actor from validated claims.
func (c *Claims) Actor() (permission.Actor, error) {
	userID, err := id.ParseUserID(c.UserID)
	if err != nil {
		return permission.Actor{}, dErrors.New(dErrors.CodeUnauthorized, "invalid user id claim")
	}
	tenantID, err := id.ParseTenantID(c.TenantID)
	if err != nil {
		return permission.Actor{}, dErrors.New(dErrors.CodeUnauthorized, "invalid tenant id claim")
	}
	caps := make([]permission.Capability, 0, len(c.Capabilities))
	for _, capability := range c.Capabilities {
		caps = append(caps, permission.Capability(capability))
	}
	return permission.Actor{
		ID:           userID,
		Name:         c.UserName,
		TenantID:     tenantID,
		Role:         permission.Role(c.Role),
		Capabilities: caps,
	}, nil
}
