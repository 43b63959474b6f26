package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/Bulldog-Master/xxvpn-sub001/pkg/middleware"
)

const (
	issuer = "xxvpn-api"

	typeAccess  = "access"
	typeRefresh = "refresh"
)

// Claims represents the JWT claims for an access token.
type Claims struct {
	UserID            string `json:"user_id"`
	Email             string `json:"email"`
	SessionID         string `json:"sid"`
	TwoFactorVerified bool   `json:"tfa"`
	TokenType         string `json:"typ"`
	jwt.RegisteredClaims
}

// RefreshClaims represents the JWT claims for a refresh token.
type RefreshClaims struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"sid"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// JWTManager handles JWT token generation and validation.
type JWTManager struct {
	secret        []byte
	accessExpiry  time.Duration
	refreshExpiry time.Duration
	now           func() time.Time
}

// NewJWTManager creates a new JWT manager with the given secret and expiry durations.
func NewJWTManager(secret string, accessExpiry, refreshExpiry time.Duration) *JWTManager {
	return &JWTManager{
		secret:        []byte(secret),
		accessExpiry:  accessExpiry,
		refreshExpiry: refreshExpiry,
		now:           time.Now,
	}
}

func (m *JWTManager) AccessExpiry() time.Duration  { return m.accessExpiry }
func (m *JWTManager) RefreshExpiry() time.Duration { return m.refreshExpiry }

// GenerateAccessToken signs an access token bound to sessionID. tfa mirrors
// the session's two-factor flag at issue time.
func (m *JWTManager) GenerateAccessToken(userID, email, sessionID string, tfa bool) (string, error) {
	now := m.now().UTC()
	claims := &Claims{
		UserID:            userID,
		Email:             email,
		SessionID:         sessionID,
		TwoFactorVerified: tfa,
		TokenType:         typeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.accessExpiry)),
			Issuer:    issuer,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// GenerateRefreshToken signs a refresh token with a unique id so every
// rotation yields a distinct hash.
func (m *JWTManager) GenerateRefreshToken(userID, sessionID string) (string, error) {
	now := m.now().UTC()
	claims := &RefreshClaims{
		UserID:    userID,
		SessionID: sessionID,
		TokenType: typeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.refreshExpiry)),
			Issuer:    issuer,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign refresh token: %w", err)
	}
	return signed, nil
}

func (m *JWTManager) keyFunc(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return m.secret, nil
}

func (m *JWTManager) parserOptions() []jwt.ParserOption {
	return []jwt.ParserOption{
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(m.now),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
}

// ValidateAccessToken parses and validates an access token, returning the claims.
func (m *JWTManager) ValidateAccessToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, m.keyFunc, m.parserOptions()...)
	if err != nil {
		return nil, fmt.Errorf("parse access token: %w", err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.SessionID == "" || claims.TokenType != typeAccess {
		return nil, fmt.Errorf("invalid access token claims")
	}
	return claims, nil
}

// ValidateRefreshToken parses and validates a refresh token, returning the claims.
func (m *JWTManager) ValidateRefreshToken(tokenString string) (*RefreshClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &RefreshClaims{}, m.keyFunc, m.parserOptions()...)
	if err != nil {
		return nil, fmt.Errorf("parse refresh token: %w", err)
	}
	claims, ok := token.Claims.(*RefreshClaims)
	if !ok || !token.Valid || claims.SessionID == "" || claims.TokenType != typeRefresh {
		return nil, fmt.Errorf("invalid refresh token claims")
	}
	return claims, nil
}

// TokenValidator adapts the manager to the shared auth middleware.
func (m *JWTManager) TokenValidator() middleware.TokenValidator {
	return func(_ context.Context, token string) (*middleware.Claims, error) {
		c, err := m.ValidateAccessToken(token)
		if err != nil {
			return nil, err
		}
		return &middleware.Claims{
			UserID:            c.UserID,
			Email:             c.Email,
			SessionID:         c.SessionID,
			TwoFactorVerified: c.TwoFactorVerified,
		}, nil
	}
}

// HashToken returns the hex SHA-256 of a refresh token for storage.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
