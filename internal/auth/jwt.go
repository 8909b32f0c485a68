// Package auth issues and validates the admin JWTs protecting the
// operational surface: event lifecycle, odds management and manual
// settlement. Player-facing endpoints identify callers by path and
// idempotency key and carry no token.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims holds the custom JWT claims for the admin realm.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"` // viewer, admin, superadmin
}

// JWTManager signs and validates admin tokens with a shared HMAC secret.
type JWTManager struct {
	secret []byte
	expiry time.Duration
}

// NewJWTManager creates a JWT manager with the given token lifetime.
func NewJWTManager(secret string, expiry time.Duration) *JWTManager {
	return &JWTManager{secret: []byte(secret), expiry: expiry}
}

// GenerateToken creates a signed admin JWT for the given subject.
func (m *JWTManager) GenerateToken(subjectID, email, role string) (string, error) {
	if !validRole(role) {
		return "", fmt.Errorf("unknown role: %s", role)
	}
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.expiry)),
			ID:        uuid.NewString(),
		},
		Email: email,
		Role:  role,
	})
	return token.SignedString(m.secret)
}

// ValidateToken parses and verifies a token, returning its claims.
// Only HS256 is accepted; tokens signed any other way fail parsing.
func (m *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims,
		func(*jwt.Token) (any, error) { return m.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if !validRole(claims.Role) {
		return nil, fmt.Errorf("unknown role: %s", claims.Role)
	}
	return &claims, nil
}
