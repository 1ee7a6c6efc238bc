// Package challenge issues and validates the signed challenge tokens bound to
// consent sessions. Challenges are HS256 JWTs whose nonce the holder must
// incorporate into the credential proof, tying the proof to one session.
package challenge

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	dErrors "zkconsent/pkg/domain-errors"
)

// Claims carries the challenge binding: the user reference as subject plus
// the provider, session and single-use nonce.
type Claims struct {
	ProviderID string `json:"providerId"`
	SessionID  string `json:"sessionId"`
	Nonce      string `json:"nonce"`
	jwt.RegisteredClaims
}

// Service issues and validates challenge tokens.
type Service struct {
	signingKey []byte
	ttl        time.Duration
}

// NewService constructs a challenge service. ttl bounds how long an issued
// challenge remains valid.
func NewService(signingKey string, ttl time.Duration) *Service {
	return &Service{signingKey: []byte(signingKey), ttl: ttl}
}

// Issue signs a challenge token for the given session at the given instant.
func (s *Service) Issue(userRef, providerID, sessionID string, now time.Time) (string, error) {
	if userRef == "" || providerID == "" || sessionID == "" {
		return "", dErrors.New(dErrors.CodeValidation, "user, provider and session references required")
	}

	nonce, err := newNonce()
	if err != nil {
		return "", err
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		ProviderID: providerID,
		SessionID:  sessionID,
		Nonce:      nonce,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userRef,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	})

	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "sign challenge")
	}
	return signed, nil
}

// Validate checks signature, algorithm and expiry, and returns the claims.
func (s *Service) Validate(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "empty challenge token")
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "challenge expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid challenge token")
	}
	if !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid challenge token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid challenge claims")
	}
	return claims, nil
}

// ParseSkipExpiry parses a challenge token without validating expiry.
// Signature and algorithm are still checked. Re-signature runs happen long
// after the challenge TTL, so this is the only way to recover the nonce of a
// closed session; callers must have already verified the session state.
func (s *Service) ParseSkipExpiry(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "empty challenge token")
	}

	claims := new(Claims)
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	}, jwt.WithoutClaimsValidation())
	if err != nil || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid challenge token")
	}
	return claims, nil
}

func newNonce() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "generate nonce")
	}
	return hex.EncodeToString(b), nil
}
