package middleware

import (
	"net/http"
	"strings"
	"time"

	"custodial-wallet-backend/internal/core/domain"
	"custodial-wallet-backend/internal/core/ports"
	"custodial-wallet-backend/pkg/apperror"
	"custodial-wallet-backend/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// HeaderAPIKey carries the plaintext API key secret.
	HeaderAPIKey = "x-api-key"

	// Context keys
	CtxUserID     = "user_id"
	CtxAuthMethod = "auth_method"
	CtxAPIKey     = "api_key"

	// Auth methods
	AuthMethodJWT    = "jwt"
	AuthMethodAPIKey = "api_key"
)

// Auth creates the dual-scheme authentication middleware. A request carries
// either a Bearer JWT or an x-api-key secret; JWT wins when both are present.
// API key validity is resolved from storage on every request, never cached.
func Auth(tokenSvc ports.TokenService, keySvc ports.APIKeyService, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if strings.HasPrefix(authHeader, "Bearer ") {
			claims, err := tokenSvc.Validate(strings.TrimPrefix(authHeader, "Bearer "))
			if err != nil {
				response.Error(c, apperror.ErrInvalidToken())
				c.Abort()
				return
			}
			c.Set(CtxUserID, claims.UserID)
			c.Set(CtxAuthMethod, AuthMethodJWT)
			c.Next()
			return
		}

		if secret := c.GetHeader(HeaderAPIKey); secret != "" {
			key, err := keySvc.Validate(c.Request.Context(), secret)
			if err != nil {
				response.Error(c, err)
				c.Abort()
				return
			}
			c.Set(CtxUserID, key.UserID)
			c.Set(CtxAuthMethod, AuthMethodAPIKey)
			c.Set(CtxAPIKey, key)
			c.Next()
			return
		}

		response.Error(c, apperror.ErrAuthenticationRequired())
		c.Abort()
	}
}

// RequireJWT restricts an endpoint to JWT sessions. Key management endpoints
// use it so a leaked API key cannot mint or revoke keys.
func RequireJWT() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(CtxAuthMethod) != AuthMethodJWT {
			response.Error(c, apperror.ErrInvalidToken())
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequirePermission enforces an API key capability on ledger-mutating
// endpoints. JWT sessions carry all permissions implicitly.
func RequirePermission(permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(CtxAuthMethod) != AuthMethodAPIKey {
			c.Next()
			return
		}

		keyVal, ok := c.Get(CtxAPIKey)
		if !ok {
			response.Error(c, apperror.ErrInvalidAPIKey())
			c.Abort()
			return
		}
		key, ok := keyVal.(*domain.APIKey)
		if !ok || !key.HasPermission(permission) {
			response.Error(c, apperror.ErrMissingPermission(permission))
			c.Abort()
			return
		}
		c.Next()
	}
}

// UserID extracts the authenticated user ID set by Auth.
func UserID(c *gin.Context) (uuid.UUID, bool) {
	val, ok := c.Get(CtxUserID)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := val.(uuid.UUID)
	return id, ok
}

// RequestLogger creates a middleware that logs every HTTP request.
func RequestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()

		event := log.Info()
		if status >= http.StatusInternalServerError {
			event = log.Error()
		} else if status >= http.StatusBadRequest {
			event = log.Warn()
		}

		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", latency).
			Str("client_ip", c.ClientIP()).
			Msg("http request")
	}
}

// Recovery creates a panic recovery middleware.
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("path", c.Request.URL.Path).Msg("panic recovered")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error_code": "SYS_001",
					"message":    "Internal server error",
				})
			}
		}()
		c.Next()
	}
}

// MaxBodySize returns middleware that limits the request body size.
// Once the limit is exceeded the reader returns an error and the
// request is rejected with 413 Payload Too Large.
func MaxBodySize(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}
