package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// --- CORS ---

// CORSMiddleware echoes the request Origin when it is in allowedOrigins and falls back to "*".
// OPTIONS preflight requests are answered with 200 immediately.
func CORSMiddleware(allowedOrigins []string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[origin] = true
	}

	return func(c *gin.Context) {
		allowOrigin := "*"
		if origin := c.GetHeader("Origin"); origin != "" && allowed[origin] {
			allowOrigin = origin
			c.Header("Vary", "Origin")
		}
		c.Header("Access-Control-Allow-Origin", allowOrigin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With, X-API-Key, X-Admin-Secret")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	}
}

// --- Metrics ---

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vlag_http_requests_total",
			Help: "API requests by endpoint, method and status.",
		},
		[]string{"endpoint", "method", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vlag_http_request_duration_seconds",
			Help:    "API request duration in seconds by endpoint.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)
)

// knownMethods bounds the method label; any other verb is counted as "other".
var knownMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodPost:    true,
	http.MethodPut:     true,
	http.MethodPatch:   true,
	http.MethodDelete:  true,
	http.MethodOptions: true,
}

func methodLabel(method string) string {
	if knownMethods[method] {
		return method
	}
	return "other"
}

// MetricsMiddleware records request counts and durations. Only known endpoint names and
// standard methods are used as labels; everything else is counted as "other".
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.GetString("endpoint")
		if endpoint == "" {
			endpoint = "other"
		}
		httpRequestsTotal.WithLabelValues(endpoint, methodLabel(c.Request.Method), strconv.Itoa(c.Writer.Status())).Inc()
		httpRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}
}
