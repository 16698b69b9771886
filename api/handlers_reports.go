package api

import (
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"vlagserver/models"
	"vlagserver/utils"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"
)

// requiredReportFields are checked in this order; the first missing one is reported.
var requiredReportFields = []string{"userId", "reportedUserId", "reason"}

// NewReportID returns "RPT" followed by the unix time and a random number in [1000, 9999].
// Two reports in the same second can collide.
func NewReportID(now time.Time) string {
	return "RPT" + strconv.FormatInt(now.Unix(), 10) + strconv.Itoa(1000+rand.Intn(9000))
}

// ReportHandler accepts an abuse report.
// @Summary      Submit a Report
// @Description  Reports a user. `userId` (the reporter), `reportedUserId` and `reason` are required; `description` is optional.
// @Description  The response carries the generated report ID. Report storage is not connected yet.
// @Tags         Reports
// @Accept       json
// @Produce      json
// @Success      200  {object}  models.Envelope  "Report submitted successfully."
// @Failure      400  {object}  models.Envelope  "A required field is missing."
// @Failure      405  {object}  models.Envelope  "Method not allowed."
// @Router       /api/report [post]
func (h *Handlers) ReportHandler(c *gin.Context, parts []string) {
	if c.Request.Method != http.MethodPost {
		utils.GinMethodNotAllowed(c)
		return
	}

	body := readJSONBody(c)
	for _, field := range requiredReportFields {
		if !present(gjson.GetBytes(body, field)) {
			utils.GinBadRequest(c, fmt.Sprintf("Field '%s' is required", field))
			return
		}
	}

	now := h.now()
	report := models.Report{
		ID:             NewReportID(now),
		UserID:         gjson.GetBytes(body, "userId").String(),
		ReportedUserID: gjson.GetBytes(body, "reportedUserId").String(),
		Reason:         gjson.GetBytes(body, "reason").String(),
		Description:    gjson.GetBytes(body, "description").String(),
		Timestamp:      now.Unix(),
	}

	if err := h.reports.SaveReport(c.Request.Context(), report); err != nil {
		utils.GinInternalError(c, h.cfg.Debug, err)
		return
	}

	utils.GinSuccess(c, "Report submitted successfully", gin.H{"reportId": report.ID})
}
