// Command metarender serves Open Graph profile pages for link previews.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"vlagserver/config"
	"vlagserver/db"
	"vlagserver/render"
)

// storePollInterval is how often the profile document file is checked for changes.
const storePollInterval = 5 * time.Second

func main() {
	// --- Configuration ---
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("CRITICAL: Failed to load configuration: %v", err)
	}

	// --- Profile Store ---
	database, err := db.NewDatabase(cfg.ProfileStorePath)
	if err != nil {
		log.Fatalf("CRITICAL: Failed to initialize profile store: %v", err)
	}

	cache := render.NewProfileCache(cfg.ProfileCacheSize, cfg.ProfileCacheTTL)
	renderer, err := render.New(cfg, database, cache)
	if err != nil {
		log.Fatalf("CRITICAL: Failed to initialize renderer: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go database.Watch(ctx, storePollInterval, func() {
		renderer.PurgeCache()
		log.Printf("INFO: Profile store reloaded (%d profiles), renderer cache purged", database.Count())
	})

	// --- Start Server ---
	listenAddr := fmt.Sprintf("%s:%s", cfg.ListenAddress, cfg.RendererPort)
	log.Printf("INFO: Starting metadata renderer on %s", listenAddr)

	server := &http.Server{
		Addr:              listenAddr,
		Handler:           renderer.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("WARN: Renderer shutdown did not complete: %v", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("CRITICAL: Server failed to start: %v", err)
	}
	log.Println("INFO: Metadata renderer stopped")
}
