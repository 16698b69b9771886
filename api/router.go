package api

import (
	"log"
	"net/http"

	"vlagserver/config"
	"vlagserver/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// NewRouter builds the gin engine for the API gateway. extra middleware runs after
// the built-in chain and before the handlers.
func NewRouter(cfg *config.Config, h *Handlers, extra ...gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	router.RedirectTrailingSlash = false

	// Only listed proxies may set X-Forwarded-For; otherwise the client IP is the peer address.
	if err := router.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		log.Printf("WARN: Invalid trusted proxies %v: %v. Trusting none.", cfg.TrustedProxies, err)
		_ = router.SetTrustedProxies(nil)
	}

	router.Use(gin.Logger())
	// Metrics wrap recovery so panicked requests are counted with their 500.
	router.Use(MetricsMiddleware())
	router.Use(utils.RecoveryMiddleware(cfg.Debug))
	router.Use(utils.RequestIDMiddleware())
	router.Use(CORSMiddleware(cfg.AllowedOrigins))
	if len(extra) > 0 {
		router.Use(extra...)
	}

	// --- Operational Routes ---
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.StaticFS("/docs", http.Dir("docs"))
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/docs/swagger.json")))

	// --- API Routes ---
	// Everything else goes through the dispatcher, with or without the prefix.
	if cfg.APIPrefix != "" {
		router.Any("/"+cfg.APIPrefix+"/*path", h.Dispatch)
	}
	router.NoRoute(h.Dispatch)

	return router
}
