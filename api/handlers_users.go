package api

import (
	"net"
	"net/http"

	"vlagserver/config"
	"vlagserver/models"
	"vlagserver/utils"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"
)

// --- Health ---

// HealthHandler reports that the API is up.
// @Summary      Health Check
// @Description  Returns the API version, the server time and the server name. Useful for load balancer probes.
// @Tags         System
// @Produce      json
// @Success      200  {object}  models.Envelope  "The API is running."
// @Router       /api/health [get]
func (h *Handlers) HealthHandler(c *gin.Context) {
	server := c.Request.Host
	if host, _, err := net.SplitHostPort(server); err == nil {
		server = host
	}
	if server == "" {
		server = "unknown"
	}

	utils.GinSuccess(c, "VLagIt API is running", gin.H{
		"version":   config.Version,
		"timestamp": h.now().Unix(),
		"server":    server,
	})
}

// --- Verified Badge ---

// VerifiedHandler reads or sets the verified badge of a user.
// @Summary      Verified Badge
// @Description  `GET /api/verified/{userId}` returns whether the user carries the verified badge.
// @Description  `POST /api/verified` with `{"userId": "...", "verified": true}` sets it. `verified` defaults to false.
// @Description  The badge store is not connected yet: reads always return false and writes are dropped.
// @Tags         Users
// @Accept       json
// @Produce      json
// @Param        userId  path  string  false  "User ID (GET only)"
// @Success      200  {object}  models.Envelope  "Verification status retrieved or updated."
// @Failure      400  {object}  models.Envelope  "User ID is required."
// @Failure      401  {object}  models.Envelope  "Admin secret required (only when configured)."
// @Failure      405  {object}  models.Envelope  "Method not allowed."
// @Router       /api/verified/{userId} [get]
// @Router       /api/verified [post]
func (h *Handlers) VerifiedHandler(c *gin.Context, parts []string) {
	switch c.Request.Method {
	case http.MethodGet:
		userID := segment(parts, 1)
		if userID == "" {
			utils.GinBadRequest(c, "User ID is required")
			return
		}

		verified, err := h.verification.IsVerified(c.Request.Context(), userID)
		if err != nil {
			utils.GinInternalError(c, h.cfg.Debug, err)
			return
		}
		utils.GinSuccess(c, "Verification status retrieved", models.VerificationStatus{UserID: userID, Verified: verified})

	case http.MethodPost:
		if h.cfg.VerifiedWriteRequiresAdmin {
			principal, ok := h.auth.Authenticate(c)
			if !ok || principal.Kind != models.PrincipalAdmin {
				utils.GinUnauthorized(c, "Unauthorized")
				return
			}
		}

		body := readJSONBody(c)
		userID := gjson.GetBytes(body, "userId").String()
		if userID == "" {
			utils.GinBadRequest(c, "User ID is required")
			return
		}
		verified := gjson.GetBytes(body, "verified").Bool()

		if err := h.verification.SetVerified(c.Request.Context(), userID, verified); err != nil {
			utils.GinInternalError(c, h.cfg.Debug, err)
			return
		}
		utils.GinSuccess(c, "Verification status updated", models.VerificationStatus{UserID: userID, Verified: verified})

	default:
		utils.GinMethodNotAllowed(c)
	}
}

// --- Analytics ---

// AnalyticsHandler returns view and click statistics for a user.
// @Summary      User Analytics
// @Description  Returns total views, total clicks, top links and recent activity for a user.
// @Description  The analytics source is not connected yet, so counts are zero and lists are empty.
// @Tags         Users
// @Produce      json
// @Param        userId  path  string  true  "User ID"
// @Success      200  {object}  models.Envelope  "Analytics retrieved."
// @Failure      400  {object}  models.Envelope  "User ID is required."
// @Failure      405  {object}  models.Envelope  "Method not allowed."
// @Router       /api/analytics/{userId} [get]
func (h *Handlers) AnalyticsHandler(c *gin.Context, parts []string) {
	if c.Request.Method != http.MethodGet {
		utils.GinMethodNotAllowed(c)
		return
	}

	userID := segment(parts, 1)
	if userID == "" {
		utils.GinBadRequest(c, "User ID is required")
		return
	}

	analytics, err := h.analytics.UserAnalytics(c.Request.Context(), userID)
	if err != nil {
		utils.GinInternalError(c, h.cfg.Debug, err)
		return
	}
	utils.GinSuccess(c, "Analytics retrieved", analytics)
}
