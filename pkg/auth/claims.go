package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrMissingToken     = errors.New("missing authentication token")
	ErrInvalidClaims    = errors.New("invalid token claims")
)

// Claims represents the signed identity claim handed to an attendee at
// registration. It binds the attendee to a single event.
type Claims struct {
	AttendeeID string `json:"sub"`
	EventID    string `json:"event_id"`
	jwt.RegisteredClaims
}

// TokenService issues and validates attendee claims using HS256.
type TokenService struct {
	secretKey []byte
	issuer    string
	ttl       time.Duration
}

// NewTokenService creates a token service. A ttl of zero issues claims with no
// expiry; expiry is a deliberate, configurable policy rather than an implicit
// default.
func NewTokenService(secretKey string, issuer string, ttl time.Duration) (*TokenService, error) {
	if secretKey == "" {
		return nil, errors.New("secret key required")
	}
	return &TokenService{
		secretKey: []byte(secretKey),
		issuer:    issuer,
		ttl:       ttl,
	}, nil
}

// Issue creates a signed claim for an attendee within an event.
func (s *TokenService) Issue(attendeeID, eventID string) (string, error) {
	if attendeeID == "" || eventID == "" {
		return "", ErrInvalidClaims
	}

	now := time.Now()
	claims := Claims{
		AttendeeID: attendeeID,
		EventID:    eventID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(now),
			Issuer:   s.issuer,
			ID:       uuid.NewString(),
		},
	}
	if s.ttl != 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(s.ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign claim: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies a claim token and returns the claims.
func (s *TokenService) Validate(tokenString string) (*Claims, error) {
	tokenString = strings.TrimPrefix(tokenString, "Bearer ")
	tokenString = strings.TrimSpace(tokenString)

	if tokenString == "" {
		return nil, ErrMissingToken
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Method)
		}
		return s.secretKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		if errors.Is(err, jwt.ErrSignatureInvalid) {
			return nil, ErrInvalidSignature
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidClaims
	}

	if s.issuer != "" && claims.Issuer != s.issuer {
		return nil, fmt.Errorf("%w: invalid issuer", ErrInvalidClaims)
	}
	if claims.AttendeeID == "" || claims.EventID == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidClaims)
	}

	return claims, nil
}
