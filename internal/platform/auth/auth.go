// Package auth resolves the calling employee from bearer tokens and carries
// it through request contexts.
package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/pesio-ai/be-compliance-tasks/internal/platform/errors"
)

// Header names accepted when the development header is enabled.
const (
	HeaderEmployeeID   = "X-Employee-ID"
	HeaderEmployeeRole = "X-Employee-Role"
)

// UserContext is the authenticated caller.
type UserContext struct {
	EmployeeID string
	Role       string
}

type contextKey struct{}

// WithUserContext stores the caller in ctx.
func WithUserContext(ctx context.Context, uc *UserContext) context.Context {
	return context.WithValue(ctx, contextKey{}, uc)
}

// GetUserContext returns the caller stored in ctx.
func GetUserContext(ctx context.Context) (*UserContext, error) {
	uc, ok := ctx.Value(contextKey{}).(*UserContext)
	if !ok || uc == nil {
		return nil, errors.New(errors.ErrCodeUnauthorized, "no authenticated user")
	}
	return uc, nil
}

// Claims are the JWT claims the service expects. The subject is the
// employee id.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// Validator checks HMAC-signed tokens.
type Validator struct {
	secret []byte
	issuer string
}

// NewValidator creates a validator. It returns nil when secret is empty.
func NewValidator(secret, issuer string) *Validator {
	if secret == "" {
		return nil
	}
	return &Validator{secret: []byte(secret), issuer: issuer}
}

// Validate parses and validates a token string.
func (v *Validator) Validate(tokenStr string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeUnauthorized, "token validation failed")
	}
	if !token.Valid {
		return nil, errors.New(errors.ErrCodeUnauthorized, "invalid token")
	}
	if claims.Subject == "" {
		return nil, errors.New(errors.ErrCodeUnauthorized, "token subject is required")
	}
	return claims, nil
}

// Issue signs a token for an employee.
func (v *Validator) Issue(employeeID, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   employeeID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: role,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// Authenticator turns request credentials into a UserContext.
type Authenticator struct {
	validator *Validator
	devHeader bool
}

// NewAuthenticator creates an authenticator. With a nil validator and
// devHeader off every request is rejected.
func NewAuthenticator(validator *Validator, devHeader bool) *Authenticator {
	return &Authenticator{validator: validator, devHeader: devHeader}
}

// Authenticate resolves the caller from an Authorization value, falling back
// to the development headers when enabled.
func (a *Authenticator) Authenticate(authorization, devID, devRole string) (*UserContext, error) {
	if authorization != "" {
		scheme, token, ok := strings.Cut(authorization, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			return nil, errors.New(errors.ErrCodeUnauthorized, "expected 'Bearer <token>'")
		}
		if a.validator == nil {
			return nil, errors.New(errors.ErrCodeUnauthorized, "authentication not configured")
		}
		claims, err := a.validator.Validate(token)
		if err != nil {
			return nil, err
		}
		return &UserContext{EmployeeID: claims.Subject, Role: claims.Role}, nil
	}

	if a.devHeader && devID != "" {
		return &UserContext{EmployeeID: devID, Role: devRole}, nil
	}
	return nil, errors.New(errors.ErrCodeUnauthorized, "missing credentials")
}

var publicPaths = []string{"/health", "/readiness"}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}

// Middleware authenticates HTTP requests.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		uc, err := a.Authenticate(
			r.Header.Get("Authorization"),
			r.Header.Get(HeaderEmployeeID),
			r.Header.Get(HeaderEmployeeRole),
		)
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]string{"code": string(errors.ErrCodeUnauthorized), "message": err.Error()},
			})
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUserContext(r.Context(), uc)))
	})
}

// UnaryInterceptor authenticates gRPC calls. Health checks pass through.
func (a *Authenticator) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if strings.HasPrefix(info.FullMethod, "/grpc.health.v1.Health/") ||
			strings.HasPrefix(info.FullMethod, "/grpc.reflection.") {
			return handler(ctx, req)
		}

		md, _ := metadata.FromIncomingContext(ctx)
		uc, err := a.Authenticate(
			first(md, "authorization"),
			first(md, strings.ToLower(HeaderEmployeeID)),
			first(md, strings.ToLower(HeaderEmployeeRole)),
		)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}
		return handler(WithUserContext(ctx, uc), req)
	}
}

func first(md metadata.MD, key string) string {
	if vals := md.Get(key); len(vals) > 0 {
		return vals[0]
	}
	return ""
}
