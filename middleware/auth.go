package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "github.com/TripCarbon/trip-carbon-backend/errors"
	"github.com/TripCarbon/trip-carbon-backend/logger"
)

// AuthMiddleware validates the Bearer token on protected routes and stores
// the caller's subject claim in the gin context under UserIDKey.
func AuthMiddleware(validator Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := logger.GetLogger()

		authHeader := c.GetHeader("Authorization")
		token := strings.TrimPrefix(authHeader, "Bearer ")
		if authHeader == "" || token == authHeader {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization required",
			})
			return
		}

		userID, err := validator.Validate(token)
		if err != nil {
			log.Warnw("Invalid bearer token",
				"error", err,
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
				"client_ip", c.ClientIP())

			// Expired tokens flow through the error handler so the response
			// carries the refresh hint.
			if errors.Is(err, ErrTokenExpired) {
				_ = c.Error(apperrors.Unauthorized("token_expired", "Your session has expired"))
				c.Abort()
				return
			}

			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid authentication token",
			})
			return
		}

		c.Set(UserIDKey, userID)
		c.Next()
	}
}
