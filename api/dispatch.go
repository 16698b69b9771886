package api

import (
	"strings"

	"vlagserver/utils"

	"github.com/gin-gonic/gin"
)

// Endpoint names, i.e. the first path segment after the optional prefix.
const (
	endpointHealth    = "health"
	endpointVerified  = "verified"
	endpointReport    = "report"
	endpointAnalytics = "analytics"
	endpointUpload    = "upload"
)

var knownEndpoints = map[string]bool{
	endpointHealth:    true,
	endpointVerified:  true,
	endpointReport:    true,
	endpointAnalytics: true,
	endpointUpload:    true,
}

// splitPath trims slashes, splits the path into segments and drops a leading prefix segment.
// An empty path yields a single empty segment.
func splitPath(path, prefix string) []string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if prefix != "" && len(parts) > 0 && parts[0] == prefix {
		parts = parts[1:]
	}
	return parts
}

// segment returns parts[i] or "" when absent.
func segment(parts []string, i int) string {
	if i < len(parts) {
		return parts[i]
	}
	return ""
}

// Dispatch is the single API entry point. It routes on the first path segment
// after the optional prefix.
func (h *Handlers) Dispatch(c *gin.Context) {
	parts := splitPath(c.Request.URL.Path, h.cfg.APIPrefix)
	endpoint := segment(parts, 0)
	if knownEndpoints[endpoint] {
		c.Set("endpoint", endpoint)
	}

	switch endpoint {
	case endpointHealth:
		h.HealthHandler(c)
	case endpointVerified:
		h.VerifiedHandler(c, parts)
	case endpointReport:
		h.ReportHandler(c, parts)
	case endpointAnalytics:
		h.AnalyticsHandler(c, parts)
	case endpointUpload:
		h.UploadHandler(c, parts)
	default:
		utils.GinNotFound(c, "Endpoint not found")
	}
}
