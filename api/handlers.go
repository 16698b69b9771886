package api

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"vlagserver/config"
	"vlagserver/db"
	"vlagserver/ratelimit"
	"vlagserver/storage"
	"vlagserver/utils"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"
)

// maxJSONBodyBytes bounds JSON request bodies read by the handlers.
const maxJSONBodyBytes = 1 << 20

// Dependencies are the collaborators handed to NewHandlers.
// Nil ports fall back to their not-yet-connected placeholders.
type Dependencies struct {
	Authenticator *utils.Authenticator
	Limiter       *ratelimit.Limiter
	Uploads       *storage.LocalStore
	Verification  db.VerificationStore
	Reports       db.ReportStore
	Analytics     db.AnalyticsSource
}

// Handlers serves every API endpoint. It is built once and shared by all requests.
type Handlers struct {
	cfg          *config.Config
	auth         *utils.Authenticator
	limiter      *ratelimit.Limiter
	uploads      *storage.LocalStore
	verification db.VerificationStore
	reports      db.ReportStore
	analytics    db.AnalyticsSource
	now          func() time.Time
}

// NewHandlers wires the API handlers.
func NewHandlers(cfg *config.Config, deps Dependencies) *Handlers {
	h := &Handlers{
		cfg:          cfg,
		auth:         deps.Authenticator,
		limiter:      deps.Limiter,
		uploads:      deps.Uploads,
		verification: deps.Verification,
		reports:      deps.Reports,
		analytics:    deps.Analytics,
		now:          time.Now,
	}
	if h.auth == nil {
		h.auth = utils.NewAuthenticator(cfg, nil)
	}
	if h.limiter == nil {
		h.limiter = ratelimit.New(ratelimit.NewMemoryStore(), cfg.RateLimitRequests, cfg.RateLimitWindow)
	}
	if h.uploads == nil {
		h.uploads = storage.NewLocalStore(cfg.UploadBaseDir, cfg.UploadBaseURL)
	}
	if h.verification == nil {
		h.verification = db.UnconnectedVerificationStore{}
	}
	if h.reports == nil {
		h.reports = db.DiscardReportStore{}
	}
	if h.analytics == nil {
		h.analytics = db.PlaceholderAnalytics{}
	}
	return h
}

// readJSONBody returns the request body when it is valid JSON, otherwise nil.
// Lookups on a nil body behave like lookups on an empty object.
func readJSONBody(c *gin.Context) []byte {
	if c.Request.Body == nil {
		return nil
	}
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxJSONBodyBytes))
	if err != nil {
		return nil
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return nil
	}
	return body
}

// present reports whether a JSON field exists and is not null.
func present(r gjson.Result) bool {
	return r.Exists() && r.Type != gjson.Null
}
