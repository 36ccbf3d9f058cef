package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-inventory/pkg/jwt"
)

// UserContextKey is the key used to store user information in Gin context
const UserContextKey = "user"

// UserContext represents the authenticated user's information
type UserContext struct {
	UserID uuid.UUID `json:"user_id"`
	Roles  []string  `json:"roles"`
}

// HasRole reports whether the user carries role
func (u UserContext) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsAdmin is a shorthand for HasRole(jwt.RoleAdmin)
func (u UserContext) IsAdmin() bool {
	return u.HasRole(jwt.RoleAdmin)
}

// AuthMiddleware creates a middleware that validates JWT tokens
func AuthMiddleware(jwtService *jwt.Service, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userCtx, ok := authenticate(c, jwtService, logger)
		if !ok {
			c.Abort()
			return
		}

		c.Set(UserContextKey, userCtx)
		c.Next()
	}
}

// OptionalAuth attaches the user context when a valid token is present and
// lets anonymous requests through. A malformed or invalid token is still rejected.
func OptionalAuth(jwtService *jwt.Service, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			c.Next()
			return
		}

		userCtx, ok := authenticate(c, jwtService, logger)
		if !ok {
			c.Abort()
			return
		}

		c.Set(UserContextKey, userCtx)
		c.Next()
	}
}

func authenticate(c *gin.Context, jwtService *jwt.Service, logger *logrus.Logger) (UserContext, bool) {
	log := logger.WithFields(logrus.Fields{
		"path": c.Request.URL.Path,
		"ip":   c.ClientIP(),
	})

	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		log.Warn("AUTH FAILED: missing authorization header")
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "unauthorized",
			"message": "Authorization header is required",
			"code":    "MISSING_AUTH_HEADER",
		})
		return UserContext{}, false
	}

	// Check Bearer token format
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		log.Warn("AUTH FAILED: invalid auth format")
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "unauthorized",
			"message": "Invalid authorization header format. Expected: Bearer <token>",
			"code":    "INVALID_AUTH_FORMAT",
		})
		return UserContext{}, false
	}

	tokenString := strings.TrimSpace(parts[1])
	if tokenString == "" {
		log.Warn("AUTH FAILED: empty token")
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "unauthorized",
			"message": "Token cannot be empty",
			"code":    "INVALID_AUTH_FORMAT",
		})
		return UserContext{}, false
	}

	claims, err := jwtService.ValidateAccessToken(tokenString)
	if err != nil {
		if jwtService.IsTokenExpired(tokenString) {
			log.WithError(err).Info("AUTH FAILED: token expired")
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "token_expired",
				"message": "Access token has expired. Please sign in again.",
				"code":    "TOKEN_EXPIRED",
			})
		} else {
			log.WithError(err).Warn("AUTH FAILED: invalid token")
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "invalid_token",
				"message": "Invalid access token",
				"code":    "INVALID_TOKEN",
			})
		}
		return UserContext{}, false
	}

	return UserContext{UserID: claims.UserID, Roles: claims.Roles}, true
}

// RequireRole creates a middleware that checks if user has required role
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userCtx, exists := GetUserContext(c)
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "User context not found. Auth middleware may not be applied.",
				"code":    "MISSING_USER_CONTEXT",
			})
			c.Abort()
			return
		}

		for _, role := range roles {
			if userCtx.HasRole(role) {
				c.Next()
				return
			}
		}

		c.JSON(http.StatusForbidden, gin.H{
			"error":   "forbidden",
			"message": "You don't have permission to access this resource",
			"code":    "INSUFFICIENT_PERMISSIONS",
		})
		c.Abort()
	}
}

// GetUserContext retrieves the user context from Gin context
func GetUserContext(c *gin.Context) (UserContext, bool) {
	value, exists := c.Get(UserContextKey)
	if !exists {
		return UserContext{}, false
	}

	userCtx, ok := value.(UserContext)
	if !ok {
		return UserContext{}, false
	}

	return userCtx, true
}
