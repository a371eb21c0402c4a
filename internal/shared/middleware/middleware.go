package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"seatnext/internal/shared/config"
	"seatnext/internal/shared/utils/response"
	"seatnext/pkg/logger"
)

// Token roles
const (
	RolePatron = "PATRON"
	RoleStaff  = "STAFF"
	RoleAdmin  = "ADMIN"
)

// Context keys set by JWTAuth
const (
	ContextUserID  = "user_id"
	ContextRole    = "user_role"
	ContextVenueID = "venue_id"
)

// JWTAuth creates a JWT authentication middleware
func JWTAuth() gin.HandlerFunc {
	return JWTAuthWithConfig(config.Load())
}

// JWTAuthWithConfig creates a JWT authentication middleware with config
func JWTAuthWithConfig(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := parseBearer(c.GetHeader("Authorization"), cfg.JWT.Secret)
		if !ok {
			response.RespondJSON(c, "error", http.StatusUnauthorized, "invalid or missing bearer token", nil, nil)
			c.Abort()
			return
		}

		setClaims(c, claims)
		c.Next()
	}
}

// OptionalAuthWithConfig validates a JWT if present but doesn't require it
func OptionalAuthWithConfig(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if claims, ok := parseBearer(c.GetHeader("Authorization"), cfg.JWT.Secret); ok {
			setClaims(c, claims)
		}
		c.Next()
	}
}

// IssueToken signs an HS256 token carrying the claims JWTAuth reads.
// Tokens are minted by the identity provider in production; this is used by
// the operator CLI and tests.
func IssueToken(secret string, userID uuid.UUID, role string, venueID *uuid.UUID, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"user_id": userID.String(),
		"role":    role,
		"exp":     time.Now().Add(ttl).Unix(),
	}
	if venueID != nil {
		claims["venue_id"] = venueID.String()
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func parseBearer(header, secret string) (jwt.MapClaims, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return nil, false
	}

	token, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return nil, false
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, false
	}
	if tokenType, ok := claims["type"]; !ok || tokenType != "access" {
		return nil, false
	}
	return claims, true
}

func setClaims(c *gin.Context, claims jwt.MapClaims) {
	c.Set(ContextUserID, claims["user_id"])
	c.Set(ContextRole, claims["role"])
	if venueID, ok := claims["venue_id"]; ok {
		c.Set(ContextVenueID, venueID)
	}
}

// RequireRoles checks if the caller has any of the required roles
func RequireRoles(requiredRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := Role(c)
		if role == "" {
			response.RespondJSON(c, "error", http.StatusUnauthorized, "user role not found in context", nil, nil)
			c.Abort()
			return
		}

		for _, r := range requiredRoles {
			if role == r {
				c.Next()
				return
			}
		}

		response.RespondJSON(c, "error", http.StatusForbidden, "Insufficient permissions", nil, nil)
		c.Abort()
	}
}

// Role returns the authenticated role, or "" when anonymous
func Role(c *gin.Context) string {
	v, exists := c.Get(ContextRole)
	if !exists {
		return ""
	}
	role, _ := v.(string)
	return role
}

// UserID returns the authenticated subject
func UserID(c *gin.Context) (uuid.UUID, bool) {
	return uuidFromContext(c, ContextUserID)
}

// VenueID returns the venue a staff token is scoped to
func VenueID(c *gin.Context) (uuid.UUID, bool) {
	return uuidFromContext(c, ContextVenueID)
}

// IsVenueSide reports whether the caller acts for a venue
func IsVenueSide(c *gin.Context) bool {
	role := Role(c)
	return role == RoleStaff || role == RoleAdmin
}

func uuidFromContext(c *gin.Context, key string) (uuid.UUID, bool) {
	v, exists := c.Get(key)
	if !exists {
		return uuid.Nil, false
	}
	s, ok := v.(string)
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// RequestLogger logs every request once it completes
func RequestLogger(l *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		l.LogHTTPRequest(c, time.Since(start))
		if last := c.Errors.Last(); last != nil {
			l.LogHTTPError(c, last.Err, c.Writer.Status())
		}
	}
}
