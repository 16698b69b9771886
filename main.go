package main

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"vlagserver/api"
	"vlagserver/config"
	"vlagserver/identity"
	"vlagserver/ratelimit"
	"vlagserver/storage"
	"vlagserver/utils"

	"github.com/gin-gonic/gin"
)

// @title           VLagIt API
// @version         1.0.0

// @description     ## VLagIt API
// @description
// @description     Backend endpoints for the VLag link-in-bio app. Every response uses the same envelope:
// @description     `{"success": bool, "message": string, "data": any, "timestamp": int}`. Internal errors add an `error` field,
// @description     which only carries details when the server runs in debug mode.
// @description
// @description     **Routing:** the leading `api` segment is optional, so `/api/health` and `/health` are the same endpoint.
// @description
// @description     **Authentication** (upload only), tried in this order, first match wins:
// @description     *   `X-Admin-Secret: <admin secret>`
// @description     *   `X-API-Key: <api key>`
// @description     *   `Authorization: Bearer <identity token>`, checked against the identity service.
// @description
// @description     **Rate limiting:** uploads are limited per client IP with a fixed window (100 requests per hour by default).

// @license.name  Proprietary

// @host      localhost:8080
// @BasePath  /

// @securityDefinitions.apikey AdminSecret
// @in header
// @name X-Admin-Secret

// @securityDefinitions.apikey APIKey
// @in header
// @name X-API-Key

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and an identity token.
func main() {
	// --- Configuration ---
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("CRITICAL: Failed to load configuration: %v", err)
	}

	if !cfg.VerifiedWriteRequiresAdmin {
		log.Println("WARN: POST /verified accepts unauthenticated writes. Set VLAG_VERIFIED_WRITE_REQUIRES_ADMIN=true to require the admin secret.")
	}

	// --- Rate Limiting ---
	var store ratelimit.Store
	switch cfg.RateLimitStore {
	case config.RateLimitStoreFile:
		fileStore, err := ratelimit.NewFileStore(cfg.RateLimitDir)
		if err != nil {
			log.Fatalf("CRITICAL: Failed to initialize rate limit store: %v", err)
		}
		store = fileStore
	default:
		store = ratelimit.NewMemoryStore()
	}

	// --- Handlers ---
	identityClient := identity.New(cfg.IdentityLookupURL, cfg.IdentityAPIKey, cfg.IdentityTimeout)
	handlers := api.NewHandlers(cfg, api.Dependencies{
		Authenticator: utils.NewAuthenticator(cfg, identityClient),
		Limiter:       ratelimit.New(store, cfg.RateLimitRequests, cfg.RateLimitWindow),
		Uploads:       storage.NewLocalStore(cfg.UploadBaseDir, cfg.UploadBaseURL),
	})

	// --- Gin Router Setup ---
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	var extra []gin.HandlerFunc
	if cfg.Debug {
		journal, closer := utils.JournalMiddleware(cfg.LogDir)
		defer closer.Close()
		extra = append(extra, journal)
		log.Printf("INFO: Debug mode on. Writing request journal to %s", cfg.LogDir)
	}
	router := api.NewRouter(cfg, handlers, extra...)

	// --- Start Server ---
	listenAddr := fmt.Sprintf("%s:%s", cfg.ListenAddress, cfg.ListenPort)
	log.Printf("INFO: Starting server on %s", listenAddr)

	server := &http.Server{
		Addr:              listenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("CRITICAL: Server failed to start: %v", err)
	}
}
