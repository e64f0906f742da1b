package middleware

import (
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/MUKTHARS/clmprod-sub000/config"
	"github.com/MUKTHARS/clmprod-sub000/model"
	"github.com/MUKTHARS/clmprod-sub000/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const principalKey = "principal"

// Claims carries the principal issued by the identity provider
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// GenerateToken signs a token for p. Used by the development login only.
func GenerateToken(p model.Principal, cfg *config.AuthConfig) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(time.Duration(cfg.TokenExpireHours) * time.Hour)

	claims := Claims{
		UserID: p.UserID,
		Role:   string(p.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.JWTSecret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// AuthMiddleware turns a Bearer token into the request principal. Tokens
// without a user id or with an unknown role are rejected.
func AuthMiddleware(cfg *config.AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			abortUnauthorized(c, "Authorization header required")
			return
		}
		scheme, raw, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || raw == "" {
			abortUnauthorized(c, "Invalid authorization header format")
			return
		}

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
			return []byte(cfg.JWTSecret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid {
			abortUnauthorized(c, "Invalid or expired token")
			return
		}

		role, valid := model.ParseRole(claims.Role)
		if claims.UserID == "" || !valid {
			abortUnauthorized(c, "Token does not carry a valid principal")
			return
		}

		p := model.Principal{UserID: claims.UserID, Role: role}
		c.Set(principalKey, p)
		c.Request = c.Request.WithContext(logger.WithPrincipal(c.Request.Context(), p.UserID, string(p.Role)))

		c.Next()
	}
}

// RequireRole admits only principals holding one of roles
func RequireRole(roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := GetPrincipal(c)
		if !ok || !slices.Contains(roles, p.Role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Role not permitted for this action",
				"kind":  "authorization",
			})
			return
		}
		c.Next()
	}
}

// GetPrincipal returns the authenticated caller set by AuthMiddleware
func GetPrincipal(c *gin.Context) (model.Principal, bool) {
	v, exists := c.Get(principalKey)
	if !exists {
		return model.Principal{}, false
	}
	p, ok := v.(model.Principal)
	return p, ok
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
}
