package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// ErrInvalidToken is returned for any token that fails verification. Callers
// treat every failure the same way, so the cause is wrapped rather than typed.
var ErrInvalidToken = errors.New("auth: invalid token")

// TokenValidator pins the claims and signature algorithm an access token must
// carry. The zero value only enforces the temporal claims.
type TokenValidator struct {
	Issuer    string
	Audience  string
	ClockSkew time.Duration
	Algorithm jwa.SignatureAlgorithm
}

// Validate checks tok against the configured constraints at the given
// instant. The algorithm check runs before claim validation, so a token
// cannot downgrade to a weaker scheme than the one configured.
func (v TokenValidator) Validate(tok jwt.Token, algorithm jwa.SignatureAlgorithm, now time.Time) error {
	switch {
	case tok == nil:
		return errors.New("auth: token is nil")
	case algorithm == "":
		return errors.New("auth: token missing algorithm")
	case v.Algorithm != "" && algorithm != v.Algorithm:
		return fmt.Errorf("auth: unexpected token algorithm %s", algorithm)
	}
	return jwt.Validate(tok, v.claimOptions(now)...)
}

func (v TokenValidator) claimOptions(now time.Time) []jwt.ValidateOption {
	opts := []jwt.ValidateOption{
		jwt.WithClock(jwt.ClockFunc(func() time.Time { return now })),
	}
	if v.ClockSkew > 0 {
		opts = append(opts, jwt.WithAcceptableSkew(v.ClockSkew))
	}
	if v.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.Issuer))
	}
	if v.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.Audience))
	}
	return opts
}

// Service verifies access tokens and resolves the customer subject. The cart
// engine never issues tokens; it only consumes them to tell authenticated
// customers from anonymous sessions.
type Service struct {
	secret    []byte
	validator TokenValidator
	Now       func() time.Time
}

// NewService constructs a token verification service using an HMAC secret.
func NewService(secret string, validator TokenValidator) *Service {
	if validator.Algorithm == "" {
		validator.Algorithm = jwa.HS256
	}
	return &Service{secret: []byte(secret), validator: validator}
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// ParseAccessToken verifies the token signature and claims and returns the
// customer identifier carried in the subject.
func (s *Service) ParseAccessToken(token string) (string, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty token", ErrInvalidToken)
	}
	algorithm, err := extractTokenAlgorithm(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if s.validator.Algorithm != "" && algorithm != s.validator.Algorithm {
		return "", fmt.Errorf("%w: unexpected algorithm %q", ErrInvalidToken, algorithm)
	}
	parsed, err := jwt.ParseString(trimmed, jwt.WithKey(algorithm, s.secret))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if err := s.validator.Validate(parsed, algorithm, s.now()); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return parsed.Subject(), nil
}

func extractTokenAlgorithm(token string) (jwa.SignatureAlgorithm, error) {
	message, err := jws.ParseString(token)
	if err != nil {
		return "", err
	}
	signatures := message.Signatures()
	if len(signatures) == 0 {
		return "", errors.New("auth: token contains no signatures")
	}
	headers := signatures[0].ProtectedHeaders()
	if headers == nil {
		return "", errors.New("auth: token missing protected headers")
	}
	alg := headers.Algorithm()
	if alg == "" {
		return "", errors.New("auth: token missing algorithm")
	}
	return alg, nil
}
