package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleVendor   Role = "vendor"
	RoleAdmin    Role = "admin"
)

// Principal is the authenticated caller.
type Principal struct {
	ID    string
	Email string
	Role  Role
}

type Claims struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
	jwt.RegisteredClaims
}

var (
	ErrNoToken      = errors.New("no token provided")
	ErrInvalidToken = errors.New("invalid or expired token")
)

// Verifier checks HS256 tokens against one secret per role.
type Verifier struct {
	secrets map[Role][]byte
}

func NewVerifier(customerSecret, vendorSecret, adminSecret string) *Verifier {
	return &Verifier{secrets: map[Role][]byte{
		RoleCustomer: []byte(customerSecret),
		RoleVendor:   []byte(vendorSecret),
		RoleAdmin:    []byte(adminSecret),
	}}
}

func (v *Verifier) Verify(role Role, token string) (Principal, error) {
	secret, ok := v.secrets[role]
	if !ok || len(secret) == 0 {
		return Principal{}, ErrInvalidToken
	}
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}))
	if err != nil {
		return Principal{}, ErrInvalidToken
	}
	if claims.ID == "" || (claims.Role != "" && claims.Role != role) {
		return Principal{}, ErrInvalidToken
	}
	return Principal{ID: claims.ID, Email: claims.Email, Role: role}, nil
}

// Require rejects requests without a valid bearer token for role.
// A missing token is 403, a bad one 401.
func (v *Verifier) Require(role Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearer(r.Header.Get("Authorization"))
			if token == "" {
				deny(w, http.StatusForbidden, "Access denied. No token provided.")
				return
			}
			p, err := v.Verify(role, token)
			if err != nil {
				deny(w, http.StatusUnauthorized, "Invalid or expired token.")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

func bearer(h string) string {
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func deny(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

type ctxKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(Principal)
	return p, ok
}

// Sign issues a token for p. Issuance belongs to the user service; this is
// used by tests and local tooling.
func Sign(secret string, p Principal) (string, error) {
	claims := Claims{ID: p.ID, Email: p.Email, Role: p.Role}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
