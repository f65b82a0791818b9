// Package auth implements the registration, login and verification state
// machine and the JWT tokens it issues.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ozanyurt/caseflow/internal/apperr"
)

// Token types carried in the claims. Refresh tokens are only accepted by the
// refresh endpoint and reset tokens only by password redemption.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
	TypeReset   = "reset"
)

// Claims extends the registered JWT claims with the user identity.
type Claims struct {
	jwt.RegisteredClaims
	UserID    string `json:"uid"`
	Role      string `json:"role"`
	TokenType string `json:"typ"`
}

// TokenPair is an access token plus a longer-lived refresh token.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// TokenManager signs and parses HS256 tokens.
type TokenManager struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	resetTTL   time.Duration
}

// NewTokenManager builds a TokenManager.
func NewTokenManager(secret []byte, accessTTL, refreshTTL, resetTTL time.Duration) *TokenManager {
	return &TokenManager{secret: secret, accessTTL: accessTTL, refreshTTL: refreshTTL, resetTTL: resetTTL}
}

func (m *TokenManager) generate(userID, role, tokenType string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserID:    userID,
		Role:      role,
		TokenType: tokenType,
	})
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", tokenType, err)
	}
	return signed, nil
}

// Pair issues a fresh access/refresh token pair for the user.
func (m *TokenManager) Pair(userID, role string) (*TokenPair, error) {
	access, err := m.generate(userID, role, TypeAccess, m.accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := m.generate(userID, role, TypeRefresh, m.refreshTTL)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// ResetToken issues a short-lived password-reset token.
func (m *TokenManager) ResetToken(userID string) (string, error) {
	return m.generate(userID, "", TypeReset, m.resetTTL)
}

// ResetTokenTTL reports how long reset tokens stay valid.
func (m *TokenManager) ResetTokenTTL() time.Duration { return m.resetTTL }

// Parse validates signature and expiry and checks the token type.
func (m *TokenManager) Parse(tokenString, wantType string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, apperr.E(apperr.KindAuth, "auth.parse", apperr.ErrInvalidToken)
	}
	if !token.Valid || claims.TokenType != wantType {
		return nil, apperr.E(apperr.KindAuth, "auth.parse", apperr.ErrInvalidToken)
	}
	return claims, nil
}
