package auth

import (
	"fmt"
	"time"

	"github.com/gamemart/ledger/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims holds the custom JWT claims. The subject is the user id.
type Claims struct {
	jwt.RegisteredClaims
	Role  domain.Role `json:"role"`
	Email string      `json:"email,omitempty"`
}

// UserID parses the subject.
func (c *Claims) UserID() (uuid.UUID, error) {
	return uuid.Parse(c.Subject)
}

// JWTManager handles token generation and validation. Tokens are issued
// elsewhere in production; GenerateToken serves tooling and tests.
type JWTManager struct {
	secret []byte
	expiry time.Duration
}

// NewJWTManager creates a JWT manager.
func NewJWTManager(secret string, expiry time.Duration) *JWTManager {
	return &JWTManager{
		secret: []byte(secret),
		expiry: expiry,
	}
}

// GenerateToken creates a signed JWT for the given user.
func (m *JWTManager) GenerateToken(userID uuid.UUID, email string, role domain.Role) (string, error) {
	if !role.Valid() {
		return "", fmt.Errorf("unknown role: %s", role)
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.expiry)),
			ID:        uuid.New().String(),
		},
		Role:  role,
		Email: email,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// ValidateToken parses and validates a JWT, returning claims if valid.
func (m *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	if !claims.Role.Valid() {
		return nil, fmt.Errorf("unknown role: %s", claims.Role)
	}
	if _, err := claims.UserID(); err != nil {
		return nil, fmt.Errorf("invalid subject: %w", err)
	}

	return claims, nil
}
