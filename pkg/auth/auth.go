package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dmehra2102/bookstore/pkg/apperr"
	"github.com/dmehra2102/bookstore/pkg/httpx"
)

const (
	RoleAdmin      = "ADMIN"
	RoleSuperAdmin = "SUPERADMIN"
	RoleUser       = "USERS"
)

type Claims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

type Principal struct {
	Subject string
	Roles   []string
}

func (p Principal) HasAnyRole(roles ...string) bool {
	for _, r := range roles {
		if slices.Contains(p.Roles, r) {
			return true
		}
	}
	return false
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// Issuer mints short-lived HS256 tokens for service-to-service calls.
type Issuer struct {
	secret  []byte
	subject string
	roles   []string
	ttl     time.Duration
	now     func() time.Time
}

func NewIssuer(secret []byte, subject string, roles []string, ttl time.Duration) *Issuer {
	return &Issuer{secret: secret, subject: subject, roles: roles, ttl: ttl, now: time.Now}
}

func (i *Issuer) Mint() (string, error) {
	now := i.now()
	claims := Claims{
		Roles: i.roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   i.subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return s, nil
}

type Verifier struct {
	secret []byte
}

func NewVerifier(secret []byte) *Verifier {
	return &Verifier{secret: secret}
}

func (v *Verifier) Parse(token string) (Principal, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Principal{}, apperr.Unauthorized("token expired")
		}
		return Principal{}, apperr.Unauthorized("invalid token")
	}
	return Principal{Subject: claims.Subject, Roles: claims.Roles}, nil
}

// Middleware rejects requests without a valid bearer token and stores the
// caller in the request context.
func Middleware(v *Verifier, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || raw == "" {
				httpx.WriteError(w, r, log, apperr.Unauthorized("missing bearer token"))
				return
			}
			p, err := v.Parse(raw)
			if err != nil {
				httpx.WriteError(w, r, log, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

func RequireRole(log *slog.Logger, roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := FromContext(r.Context())
			if !ok {
				httpx.WriteError(w, r, log, apperr.Unauthorized("missing bearer token"))
				return
			}
			if !p.HasAnyRole(roles...) {
				httpx.WriteError(w, r, log, apperr.Forbidden("access denied"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
