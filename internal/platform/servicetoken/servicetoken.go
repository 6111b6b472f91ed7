// Package servicetoken issues and validates the HS256 tokens collaborators
// (identity provider callbacks, OTP gateways, skill-test runners) present when
// writing verification facts.
package servicetoken

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	dErrors "trustscore/pkg/domain-errors"
	pstrings "trustscore/pkg/platform/strings"
)

// Claims are the claims carried by a collaborator token. Subject holds the
// collaborator name; Categories optionally narrows which categories it may write.
type Claims struct {
	Categories []string `json:"categories,omitempty"`
	jwt.RegisteredClaims
}

// Service signs and validates collaborator tokens.
type Service struct {
	signingKey []byte
	issuer     string
	audience   string
	now        func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the clock used for issuance and validation.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func New(signingKey, issuer, audience string, opts ...Option) *Service {
	s := &Service{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		audience:   audience,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue signs a token for collaborator, valid for ttl.
func (s *Service) Issue(collaborator string, categories []string, ttl time.Duration) (string, error) {
	if collaborator == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "collaborator name is required")
	}
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Categories: pstrings.DedupeAndTrimLower(categories),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   collaborator,
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	})
	return token.SignedString(s.signingKey)
}

// Validate parses and verifies a token. All failures map to CodeUnauthorized.
func (s *Service) Validate(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	return claims, nil
}
