package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	UserIDKey     contextKey = "user_id"
	UserRolesKey  contextKey = "user_roles"
	UserScopesKey contextKey = "user_scopes"
)

// Roles understood by the API. Patients own their assessment; clinicians
// review stored results.
const (
	RolePatient   = "patient"
	RoleClinician = "clinician"
	RoleAdmin     = "admin"
)

// DevUserHeader lets a development client act as a specific user.
const DevUserHeader = "X-Dev-User"

type Claims struct {
	jwt.RegisteredClaims
	TenantID string   `json:"tenant_id"`
	Roles    []string `json:"roles"`
	Scopes   []string `json:"scopes"`
}

type JWTConfig struct {
	Issuer   string
	Audience string
	JWKSURL  string
	// SigningKey selects HS256 verification for locally issued tokens.
	SigningKey []byte
}

func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	keyFunc, methods := resolveKeyFunc(cfg)

	opts := []jwt.ParserOption{jwt.WithValidMethods(methods)}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			scheme, tokenStr, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "bearer") || tokenStr == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(tokenStr, claims, keyFunc, opts...)
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}
			if claims.Subject == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "token has no subject")
			}

			// Read by the tenant middleware.
			c.Set("jwt_tenant_id", claims.TenantID)
			c.SetRequest(c.Request().WithContext(
				WithIdentity(c.Request().Context(), claims.Subject, claims.Roles, claims.Scopes)))

			return next(c)
		}
	}
}

// resolveKeyFunc picks HS256 with the shared key when one is configured,
// otherwise RS256 against a JWKS, discovered from the issuer when no URL is set.
func resolveKeyFunc(cfg JWTConfig) (jwt.Keyfunc, []string) {
	if len(cfg.SigningKey) > 0 {
		key := cfg.SigningKey
		return func(*jwt.Token) (interface{}, error) { return key, nil }, []string{"HS256"}
	}

	jwksURL := cfg.JWKSURL
	if jwksURL == "" && cfg.Issuer != "" {
		if provider, err := NewOIDCProvider(cfg.Issuer); err == nil {
			jwksURL = provider.JWKSURI
		}
	}
	if jwksURL == "" {
		return func(*jwt.Token) (interface{}, error) {
			return nil, fmt.Errorf("no JWKS endpoint configured")
		}, []string{"RS256"}
	}
	return jwksKeyFunc(jwksURL), []string{"RS256"}
}

// IssueToken signs an HS256 token for local auth mode.
func IssueToken(key []byte, issuer, subject, tenantID string, roles []string, ttl time.Duration) (string, error) {
	if len(key) == 0 {
		return "", fmt.Errorf("signing key is empty")
	}
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		TenantID: tenantID,
		Roles:    roles,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
}

// DevAuthMiddleware trusts every request. The caller is "dev-user" with the
// admin role unless the X-Dev-User header names someone else, who then
// gets the patient role.
func DevAuthMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user, roles := "dev-user", []string{RoleAdmin}
			if h := c.Request().Header.Get(DevUserHeader); h != "" {
				user, roles = h, []string{RolePatient}
			}
			c.Set("jwt_tenant_id", "default")
			c.SetRequest(c.Request().WithContext(
				WithIdentity(c.Request().Context(), user, roles, []string{"*"})))
			return next(c)
		}
	}
}

// WithIdentity stores the authenticated caller on ctx.
func WithIdentity(ctx context.Context, userID string, roles, scopes []string) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, userID)
	ctx = context.WithValue(ctx, UserRolesKey, roles)
	return context.WithValue(ctx, UserScopesKey, scopes)
}

func UserIDFromContext(ctx context.Context) string {
	uid, _ := ctx.Value(UserIDKey).(string)
	return uid
}

func RolesFromContext(ctx context.Context) []string {
	roles, _ := ctx.Value(UserRolesKey).([]string)
	return roles
}

func ScopesFromContext(ctx context.Context) []string {
	scopes, _ := ctx.Value(UserScopesKey).([]string)
	return scopes
}
