package utils

import (
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"vlagserver/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// GenerateDashlessUUID creates a new UUID v4 and returns its string representation
// with all dashes removed.
func GenerateDashlessUUID() string {
	id := uuid.New()
	return strings.ReplaceAll(id.String(), "-", "")
}

// NewEnvelope builds a response envelope stamped with the current time.
func NewEnvelope(success bool, message string, data any) models.Envelope {
	return models.Envelope{
		Success:   success,
		Message:   message,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
}

// GinSuccess sends a 200 envelope. PureJSON keeps slashes and non-ASCII characters unescaped.
func GinSuccess(c *gin.Context, message string, data any) {
	c.PureJSON(http.StatusOK, NewEnvelope(true, message, data))
}

// GinError sends an error envelope with a specific status code.
// It logs the error server-side as well.
func GinError(c *gin.Context, statusCode int, message string) {
	log.Printf("ERROR: Request %s %s - Status %d - %s", c.Request.Method, c.Request.URL.Path, statusCode, message)
	c.Abort()
	c.PureJSON(statusCode, NewEnvelope(false, message, nil))
}

// GinBadRequest sends a 400 Bad Request error response.
func GinBadRequest(c *gin.Context, message string) {
	GinError(c, http.StatusBadRequest, message)
}

// GinUnauthorized sends a 401 Unauthorized error response.
func GinUnauthorized(c *gin.Context, message string) {
	GinError(c, http.StatusUnauthorized, message)
}

// GinNotFound sends a 404 Not Found error response.
func GinNotFound(c *gin.Context, message string) {
	GinError(c, http.StatusNotFound, message)
}

// GinMethodNotAllowed sends a 405 Method Not Allowed error response.
func GinMethodNotAllowed(c *gin.Context) {
	GinError(c, http.StatusMethodNotAllowed, "Method not allowed")
}

// GinTooManyRequests sends a 429 Too Many Requests error response.
func GinTooManyRequests(c *gin.Context) {
	GinError(c, http.StatusTooManyRequests, "Rate limit exceeded")
}

// GinInternalServerError sends a 500 with a caller-chosen message, e.g. "Failed to store file".
func GinInternalServerError(c *gin.Context, message string) {
	GinError(c, http.StatusInternalServerError, message)
}

// GinInternalError converts an unexpected failure into the generic internal error envelope.
// The failure detail is exposed only when debug is enabled.
func GinInternalError(c *gin.Context, debug bool, cause any) {
	log.Printf("ERROR: VLagIt API Error: %s %s - %v", c.Request.Method, c.Request.URL.Path, cause)
	env := NewEnvelope(false, "Internal server error", nil)
	env.Error = "An error occurred"
	if debug {
		env.Error = fmt.Sprint(cause)
	}
	c.Abort()
	c.PureJSON(http.StatusInternalServerError, env)
}

// RecoveryMiddleware turns panics raised while handling a request into the internal error envelope,
// so a client never sees an empty or malformed body.
func RecoveryMiddleware(debug bool) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		GinInternalError(c, debug, recovered)
	})
}

// RequestIDMiddleware tags every request with an X-Request-ID, reusing the caller's value if present.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := strings.TrimSpace(c.GetHeader("X-Request-ID"))
		if requestID == "" {
			requestID = GenerateDashlessUUID()
		}
		c.Set("requestID", requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}
