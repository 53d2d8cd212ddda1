package auth

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ServiceSubject identifies tokens minted for the dashboard itself.
const ServiceSubject = "regwatch-service"

// ErrInvalidToken is returned when a backend token fails verification.
var ErrInvalidToken = errors.New("auth: invalid token")

// Claims is the payload PostgREST reads: the database role to switch to and the user.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// TokenIssuer mints HS256 tokens accepted by the backend.
type TokenIssuer struct {
	secret []byte
	role   string
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer builds an issuer. role is used when a user carries none.
func NewTokenIssuer(secret, role string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenIssuer{secret: []byte(secret), role: role, ttl: ttl, now: time.Now}
}

// Mint signs a token for subject. It returns the token and its expiry.
func (i *TokenIssuer) Mint(subject, role string) (string, time.Time, error) {
	if role == "" {
		role = i.role
	}
	now := i.now()
	expires := now.Add(i.ttl)
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    "regwatch",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

// Parse verifies a token minted by this issuer.
func (i *TokenIssuer) Parse(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
		jwt.WithIssuer("regwatch"),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}

// ServiceToken is a shared.SessionContext for work done on behalf of every user, such as
// the filter cache and the warmup jobs. The token is re-minted shortly before it expires.
type ServiceToken struct {
	issuer *TokenIssuer

	mu      sync.Mutex
	token   string
	expires time.Time
}

// NewServiceToken returns a lazily minted service credential.
func NewServiceToken(issuer *TokenIssuer) *ServiceToken {
	return &ServiceToken{issuer: issuer}
}

// CurrentToken implements shared.SessionContext.
func (s *ServiceToken) CurrentToken() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token != "" && s.issuer.now().Before(s.expires.Add(-time.Minute)) {
		return s.token, true
	}
	token, expires, err := s.issuer.Mint(ServiceSubject, "")
	if err != nil {
		return "", false
	}
	s.token, s.expires = token, expires
	return token, true
}

// IsAuthenticated implements shared.SessionContext.
func (s *ServiceToken) IsAuthenticated() bool {
	return true
}
