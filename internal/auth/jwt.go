// Package auth issues and verifies the bearer tokens that identify photo
// owners, hashes account passwords, and drives the GitHub sign-in flow.
//
// AUTHENTICATION FLOW OVERVIEW:
//  1. POST /users/login with email + password → TokenService.IssueToken(user.ID)
//  2. Client sends "Authorization: Bearer <token>" on every photo request
//  3. RequireAuth verifies the token and puts the subject + raw token in context
//  4. The photo coordinator re-verifies the token inside AuthorizeOwnership and
//     compares the subject to the record's owner before touching any store
//
// JWT STRUCTURE (three base64-encoded parts separated by dots):
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Header:    {"alg":"HS256","typ":"JWT"}
//	- Payload:   {"sub":"<userID>","iss":"photovault","exp":...}
//	- Signature: HMAC-SHA256(header+"."+payload, secretKey)
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	issuer = "photovault"

	// DefaultTokenTTL is how long a login stays valid without re-authenticating.
	DefaultTokenTTL = time.Hour
)

// Verification failures. Callers tell them apart with errors.Is:
// an expired token asks the client to log in again, an invalid one is
// treated as an attack or a bug.
var (
	ErrTokenExpired = errors.New("auth: token expired")
	ErrTokenInvalid = errors.New("auth: token invalid")
)

// TokenService handles JWT creation and validation.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService creates a TokenService. A ttl of zero means DefaultTokenTTL.
// Example secret: JWT_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}, nil
}

type claims struct {
	jwt.RegisteredClaims
}

// IssueToken signs a token whose subject is userID.
func (s *TokenService) IssueToken(userID string) (string, error) {
	return s.IssueTokenWithDuration(userID, s.ttl)
}

// IssueTokenWithDuration signs a token with a custom lifetime.
// A negative d produces an already-expired token, which tests rely on.
func (s *TokenService) IssueTokenWithDuration(userID string, d time.Duration) (string, error) {
	if userID == "" {
		return "", errors.New("auth: cannot issue a token without a subject")
	}

	now := time.Now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}

	return signed, nil
}

// Verify checks signature, algorithm, issuer and expiry.
// It returns nil, ErrTokenExpired or ErrTokenInvalid (wrapped).
func (s *TokenService) Verify(tokenStr string) error {
	_, err := s.parse(tokenStr)
	return err
}

// ExtractSubject verifies the token and returns its subject (the user ID).
// It never returns a subject from a token that failed verification.
func (s *TokenService) ExtractSubject(tokenStr string) (string, error) {
	c, err := s.parse(tokenStr)
	if err != nil {
		return "", err
	}
	return c.Subject, nil
}

// ALGORITHM CONFUSION ATTACK:
// Without pinning the algorithm, a token with "alg":"none" (or an RSA public
// key passed off as an HMAC secret) could be accepted. WithValidMethods
// rejects anything that isn't HS256 before the key func runs.
func (s *TokenService) parse(tokenStr string) (*claims, error) {
	if tokenStr == "" {
		return nil, fmt.Errorf("%w: empty token", ErrTokenInvalid)
	}

	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: unexpected claims", ErrTokenInvalid)
	}
	if c.Subject == "" {
		return nil, fmt.Errorf("%w: token has no subject", ErrTokenInvalid)
	}

	return c, nil
}
