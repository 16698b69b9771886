package api

import (
	"errors"
	"log"
	"net/http"
	"os"

	"vlagserver/models"
	"vlagserver/storage"
	"vlagserver/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const uploadActionProfileImage = "profile-image"

// multipartOverhead is extra body room for multipart headers and other form fields.
const multipartOverhead = 1 << 20

var uploadsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "vlag_uploads_total",
		Help: "Stored profile images by sniffed MIME type.",
	},
	[]string{"mime"},
)

// UploadHandler stores a profile image for the authenticated caller.
// Each check below is a hard gate; the first failing one ends the request.
// @Summary      Upload Profile Image
// @Description  Multipart upload of a JPEG, PNG or WebP image in the `file` field. The type is detected from the content,
// @Description  never from the filename or the declared content type. Requests are rate limited per client IP.
// @Description  Authenticate with `X-Admin-Secret`, `X-API-Key` or `Authorization: Bearer <identity token>`.
// @Tags         Uploads
// @Accept       multipart/form-data
// @Produce      json
// @Param        file  formData  file  true  "Image file"
// @Success      200  {object}  models.Envelope  "Uploaded. Data holds uid, filename, mime, size and url."
// @Failure      400  {object}  models.Envelope  "Missing file, failed upload, size out of range or unsupported type."
// @Failure      401  {object}  models.Envelope  "Unauthorized."
// @Failure      404  {object}  models.Envelope  "Unknown upload action."
// @Failure      405  {object}  models.Envelope  "Method not allowed."
// @Failure      429  {object}  models.Envelope  "Rate limit exceeded."
// @Failure      500  {object}  models.Envelope  "Failed to store file."
// @Router       /api/upload/profile-image [post]
func (h *Handlers) UploadHandler(c *gin.Context, parts []string) {
	identifier := c.ClientIP()
	if identifier == "" {
		identifier = "unknown"
	}
	if !h.limiter.Allow(identifier) {
		utils.GinTooManyRequests(c)
		return
	}

	if c.Request.Method != http.MethodPost {
		utils.GinMethodNotAllowed(c)
		return
	}

	if segment(parts, 1) != uploadActionProfileImage {
		utils.GinNotFound(c, "Endpoint not found")
		return
	}

	principal, ok := h.auth.Authenticate(c)
	if !ok || principal.ID == "" {
		utils.GinUnauthorized(c, "Unauthorized")
		return
	}
	uid := principal.ID

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 2*h.cfg.UploadMaxBytes+multipartOverhead)
	fileHeader, err := c.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			utils.GinBadRequest(c, "Missing file")
			return
		}
		log.Printf("WARN: Multipart upload from %s could not be parsed: %v", identifier, err)
		utils.GinBadRequest(c, "Upload failed")
		return
	}

	if fileHeader.Size <= 0 || fileHeader.Size > h.cfg.UploadMaxBytes {
		utils.GinBadRequest(c, "File too large")
		return
	}

	src, err := fileHeader.Open()
	if err != nil {
		log.Printf("WARN: Failed to open uploaded part: %v", err)
		utils.GinBadRequest(c, "Upload failed")
		return
	}
	tmpPath, err := h.uploads.Stage(src, fileHeader.Size)
	src.Close()
	if err != nil {
		log.Printf("ERROR: Failed to stage upload: %v", err)
		utils.GinBadRequest(c, "Invalid upload")
		return
	}
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := os.Stat(tmpPath); err != nil {
		utils.GinBadRequest(c, "Invalid upload")
		return
	}

	mime, ext, err := storage.DetectImageType(tmpPath)
	if err != nil {
		log.Printf("INFO: Rejected upload from %s with detected type '%s': %v", uid, mime, err)
		utils.GinBadRequest(c, "Unsupported file type")
		return
	}

	if err := h.uploads.EnsureProfilesDir(); err != nil {
		log.Printf("ERROR: %v", err)
		utils.GinInternalServerError(c, "Failed to store file")
		return
	}

	filename, err := storage.GenerateFilename(uid, ext, h.now())
	if err != nil {
		utils.GinInternalError(c, h.cfg.Debug, err)
		return
	}

	if _, err := h.uploads.Commit(tmpPath, filename); err != nil {
		log.Printf("ERROR: %v", err)
		utils.GinInternalServerError(c, "Failed to store file")
		return
	}
	committed = true
	uploadsTotal.WithLabelValues(mime).Inc()

	utils.GinSuccess(c, "Uploaded", models.UploadedFile{
		UID:      uid,
		Filename: filename,
		MIME:     mime,
		Size:     fileHeader.Size,
		URL:      h.uploads.PublicURL(c.Request, filename),
	})
}
