package config

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// Config holds all configuration settings for both the API gateway and the metadata renderer.
// It is built once at startup and passed explicitly into every constructor.
type Config struct {
	// Server settings
	ListenAddress  string
	ListenPort     string
	RendererPort   string
	APIPrefix      string
	TrustedProxies []string
	Debug          bool

	// Authentication settings
	APIKey                     string
	APIKeyFile                 string
	AdminSecret                string
	AdminSecretFile            string
	IdentityLookupURL          string
	IdentityAPIKey             string
	IdentityTimeout            time.Duration
	VerifiedWriteRequiresAdmin bool

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration
	RateLimitStore    string // "memory" or "file"
	RateLimitDir      string

	// CORS
	AllowedOrigins []string

	// Uploads
	UploadMaxBytes int64
	UploadBaseDir  string
	UploadBaseURL  string

	// Metadata renderer
	ProfileStorePath string
	ProfileCacheSize int
	ProfileCacheTTL  time.Duration
	SiteName         string
	SiteURL          string
	DefaultImageURL  string

	// Request journal (written only in debug mode)
	LogDir string
}

const (
	defaultAddress           = "0.0.0.0"
	defaultPort              = "8080"
	defaultRendererPort      = "8081"
	defaultAPIPrefix         = "api"
	defaultIdentityLookupURL = "https://identitytoolkit.googleapis.com/v1/accounts:lookup"
	defaultIdentityTimeout   = 10 * time.Second
	defaultRateLimitRequests = 100
	defaultRateLimitWindow   = 3600 // seconds
	defaultRateLimitStore    = RateLimitStoreMemory
	defaultRateLimitDir      = "./cache"
	defaultAllowedOrigins    = "https://vlagit.com,https://www.vlagit.com"
	defaultUploadMaxBytes    = 5242880
	defaultUploadBaseDir     = "./uploads"
	defaultProfileStorePath  = "./profiles.json"
	defaultProfileCacheSize  = 1024
	defaultProfileCacheTTL   = time.Minute
	defaultSiteName          = "VLag"
	defaultSiteURL           = "https://vlagit.com"
	defaultLogDir            = "./logs"
)

// Rate limit store kinds.
const (
	RateLimitStoreMemory = "memory"
	RateLimitStoreFile   = "file"
)

// NewDefaultConfig returns a Config populated with the built-in defaults only.
// Secrets are left empty, which disables the corresponding authentication strategy.
func NewDefaultConfig() *Config {
	return &Config{
		ListenAddress:     defaultAddress,
		ListenPort:        defaultPort,
		RendererPort:      defaultRendererPort,
		APIPrefix:         defaultAPIPrefix,
		IdentityLookupURL: defaultIdentityLookupURL,
		IdentityTimeout:   defaultIdentityTimeout,
		RateLimitRequests: defaultRateLimitRequests,
		RateLimitWindow:   defaultRateLimitWindow * time.Second,
		RateLimitStore:    defaultRateLimitStore,
		RateLimitDir:      defaultRateLimitDir,
		AllowedOrigins:    splitList(defaultAllowedOrigins),
		UploadMaxBytes:    defaultUploadMaxBytes,
		UploadBaseDir:     defaultUploadBaseDir,
		ProfileStorePath:  defaultProfileStorePath,
		ProfileCacheSize:  defaultProfileCacheSize,
		ProfileCacheTTL:   defaultProfileCacheTTL,
		SiteName:          defaultSiteName,
		SiteURL:           defaultSiteURL,
		DefaultImageURL:   defaultSiteURL + "/static/vlag-meta.png",
		LogDir:            defaultLogDir,
	}
}

// LoadConfig loads configuration from defaults, environment variables, and command-line flags.
// Command-line flags take precedence over environment variables, which take precedence over defaults.
func LoadConfig() (*Config, error) {
	cfg := NewDefaultConfig()

	var (
		allowedOrigins    string
		trustedProxies    string
		rateLimitWindow   int
		identityTimeout   string
		profileCacheTTL   string
		uploadMaxBytes    int64
		rateLimitRequests int
	)

	// Use VLAG_ prefix for environment variables
	flag.StringVar(&cfg.ListenAddress, "address", getEnv("VLAG_LISTEN_ADDRESS", defaultAddress), "Server listen address (Env: VLAG_LISTEN_ADDRESS)")
	flag.StringVar(&cfg.ListenPort, "port", getEnv("VLAG_LISTEN_PORT", defaultPort), "API server listen port (Env: VLAG_LISTEN_PORT)")
	flag.StringVar(&cfg.RendererPort, "renderer-port", getEnv("VLAG_RENDERER_PORT", defaultRendererPort), "Metadata renderer listen port (Env: VLAG_RENDERER_PORT)")
	flag.StringVar(&cfg.APIPrefix, "api-prefix", getEnv("VLAG_API_PREFIX", defaultAPIPrefix), "Leading path segment stripped before dispatch (Env: VLAG_API_PREFIX)")
	flag.StringVar(&trustedProxies, "trusted-proxies", getEnv("VLAG_TRUSTED_PROXIES", ""), "Comma-separated proxy CIDRs trusted for client IP headers (Env: VLAG_TRUSTED_PROXIES)")
	flag.BoolVar(&cfg.Debug, "debug", getEnvBool("VLAG_DEBUG", false), "Expose internal error details and write the request journal (Env: VLAG_DEBUG)")

	flag.StringVar(&cfg.APIKeyFile, "api-key-file", getEnv("VLAG_API_KEY_FILE", ""), "Path to file containing the API key (overrides VLAG_API_KEY) (Env: VLAG_API_KEY_FILE)")
	flag.StringVar(&cfg.AdminSecretFile, "admin-secret-file", getEnv("VLAG_ADMIN_SECRET_FILE", ""), "Path to file containing the admin secret (overrides VLAG_ADMIN_SECRET) (Env: VLAG_ADMIN_SECRET_FILE)")
	flag.StringVar(&cfg.IdentityLookupURL, "identity-url", getEnv("VLAG_IDENTITY_LOOKUP_URL", defaultIdentityLookupURL), "Identity token lookup endpoint (Env: VLAG_IDENTITY_LOOKUP_URL)")
	flag.StringVar(&cfg.IdentityAPIKey, "identity-api-key", getEnv("VLAG_IDENTITY_API_KEY", ""), "Web API key sent to the identity lookup endpoint (Env: VLAG_IDENTITY_API_KEY)")
	flag.StringVar(&identityTimeout, "identity-timeout", getEnv("VLAG_IDENTITY_TIMEOUT", defaultIdentityTimeout.String()), "Timeout for identity lookups (Env: VLAG_IDENTITY_TIMEOUT)")
	flag.BoolVar(&cfg.VerifiedWriteRequiresAdmin, "verified-write-requires-admin", getEnvBool("VLAG_VERIFIED_WRITE_REQUIRES_ADMIN", false), "Require the admin secret for POST /verified (Env: VLAG_VERIFIED_WRITE_REQUIRES_ADMIN)")

	flag.IntVar(&rateLimitRequests, "rate-limit-requests", getEnvInt("VLAG_RATE_LIMIT_REQUESTS", defaultRateLimitRequests), "Requests allowed per window and identifier (Env: VLAG_RATE_LIMIT_REQUESTS)")
	flag.IntVar(&rateLimitWindow, "rate-limit-window", getEnvInt("VLAG_RATE_LIMIT_WINDOW", defaultRateLimitWindow), "Rate limit window in seconds (Env: VLAG_RATE_LIMIT_WINDOW)")
	flag.StringVar(&cfg.RateLimitStore, "rate-limit-store", getEnv("VLAG_RATE_LIMIT_STORE", defaultRateLimitStore), "Rate limit store: memory or file (Env: VLAG_RATE_LIMIT_STORE)")
	flag.StringVar(&cfg.RateLimitDir, "rate-limit-dir", getEnv("VLAG_RATE_LIMIT_DIR", defaultRateLimitDir), "Directory for file-backed rate limit records (Env: VLAG_RATE_LIMIT_DIR)")

	flag.StringVar(&allowedOrigins, "allowed-origins", getEnv("VLAG_ALLOWED_ORIGINS", defaultAllowedOrigins), "Comma-separated CORS origins echoed back (Env: VLAG_ALLOWED_ORIGINS)")

	flag.Int64Var(&uploadMaxBytes, "upload-max-bytes", getEnvInt64("VLAG_UPLOAD_MAX_BYTES", defaultUploadMaxBytes), "Maximum profile image size in bytes (Env: VLAG_UPLOAD_MAX_BYTES)")
	flag.StringVar(&cfg.UploadBaseDir, "upload-dir", getEnv("VLAG_UPLOAD_BASE_DIR", defaultUploadBaseDir), "Base directory for uploaded files (Env: VLAG_UPLOAD_BASE_DIR)")
	flag.StringVar(&cfg.UploadBaseURL, "upload-base-url", getEnv("VLAG_UPLOAD_BASE_URL", ""), "Public base URL for uploaded files (Env: VLAG_UPLOAD_BASE_URL)")

	flag.StringVar(&cfg.ProfileStorePath, "profile-store", getEnv("VLAG_PROFILE_STORE_PATH", defaultProfileStorePath), "Path to the JSON profile document store (Env: VLAG_PROFILE_STORE_PATH)")
	flag.IntVar(&cfg.ProfileCacheSize, "profile-cache-size", getEnvInt("VLAG_PROFILE_CACHE_SIZE", defaultProfileCacheSize), "Profiles kept in the renderer cache (Env: VLAG_PROFILE_CACHE_SIZE)")
	flag.StringVar(&profileCacheTTL, "profile-cache-ttl", getEnv("VLAG_PROFILE_CACHE_TTL", defaultProfileCacheTTL.String()), "Renderer cache entry lifetime (Env: VLAG_PROFILE_CACHE_TTL)")
	flag.StringVar(&cfg.SiteName, "site-name", getEnv("VLAG_SITE_NAME", defaultSiteName), "Site name used in og:site_name (Env: VLAG_SITE_NAME)")
	flag.StringVar(&cfg.SiteURL, "site-url", getEnv("VLAG_SITE_URL", defaultSiteURL), "Public site URL used in og:url (Env: VLAG_SITE_URL)")
	flag.StringVar(&cfg.DefaultImageURL, "default-image", getEnv("VLAG_DEFAULT_IMAGE_URL", ""), "Fallback og:image (Env: VLAG_DEFAULT_IMAGE_URL)")

	flag.StringVar(&cfg.LogDir, "log-dir", getEnv("VLAG_LOG_DIR", defaultLogDir), "Directory for the debug request journal (Env: VLAG_LOG_DIR)")

	flag.Parse()

	// --- Post-Flag Parsing Adjustments ---
	cfg.AllowedOrigins = splitList(allowedOrigins)
	cfg.TrustedProxies = splitList(trustedProxies)
	cfg.APIPrefix = strings.Trim(cfg.APIPrefix, "/")
	cfg.SiteURL = strings.TrimRight(cfg.SiteURL, "/")
	if cfg.DefaultImageURL == "" {
		cfg.DefaultImageURL = cfg.SiteURL + "/static/vlag-meta.png"
	}

	if rateLimitRequests <= 0 {
		handleConfigError("rate-limit-requests", strconv.Itoa(rateLimitRequests), fmt.Errorf("must be positive"), defaultRateLimitRequests)
		rateLimitRequests = defaultRateLimitRequests
	}
	cfg.RateLimitRequests = rateLimitRequests

	if rateLimitWindow <= 0 {
		handleConfigError("rate-limit-window", strconv.Itoa(rateLimitWindow), fmt.Errorf("must be positive"), defaultRateLimitWindow)
		rateLimitWindow = defaultRateLimitWindow
	}
	cfg.RateLimitWindow = time.Duration(rateLimitWindow) * time.Second

	if uploadMaxBytes <= 0 {
		handleConfigError("upload-max-bytes", strconv.FormatInt(uploadMaxBytes, 10), fmt.Errorf("must be positive"), defaultUploadMaxBytes)
		uploadMaxBytes = defaultUploadMaxBytes
	}
	cfg.UploadMaxBytes = uploadMaxBytes

	cfg.IdentityTimeout = parseDuration("identity-timeout", identityTimeout, defaultIdentityTimeout)
	cfg.ProfileCacheTTL = parseDuration("profile-cache-ttl", profileCacheTTL, defaultProfileCacheTTL)
	if cfg.ProfileCacheSize <= 0 {
		handleConfigError("profile-cache-size", strconv.Itoa(cfg.ProfileCacheSize), fmt.Errorf("must be positive"), defaultProfileCacheSize)
		cfg.ProfileCacheSize = defaultProfileCacheSize
	}

	cfg.RateLimitStore = strings.ToLower(strings.TrimSpace(cfg.RateLimitStore))
	if cfg.RateLimitStore != RateLimitStoreMemory && cfg.RateLimitStore != RateLimitStoreFile {
		return nil, fmt.Errorf("unknown rate limit store '%s', expected '%s' or '%s'", cfg.RateLimitStore, RateLimitStoreMemory, RateLimitStoreFile)
	}

	// --- Secret Handling ---
	// Priority: File (CLI/Env) > Env Var. An empty secret disables that strategy.
	var apiKeySource, adminSecretSource string
	cfg.APIKey, apiKeySource = loadSecret("API key", cfg.APIKeyFile, "VLAG_API_KEY")
	cfg.AdminSecret, adminSecretSource = loadSecret("admin secret", cfg.AdminSecretFile, "VLAG_ADMIN_SECRET")

	// --- Path Validation ---
	absStore, err := filepath.Abs(cfg.ProfileStorePath)
	if err != nil {
		return nil, fmt.Errorf("could not determine absolute path for profile-store '%s': %w", cfg.ProfileStorePath, err)
	}
	cfg.ProfileStorePath = absStore
	if info, err := os.Stat(cfg.ProfileStorePath); err == nil && info.IsDir() {
		return nil, fmt.Errorf("profile store path '%s' points to a directory, not a file", cfg.ProfileStorePath)
	}

	absUploads, err := filepath.Abs(cfg.UploadBaseDir)
	if err != nil {
		return nil, fmt.Errorf("could not determine absolute path for upload-dir '%s': %w", cfg.UploadBaseDir, err)
	}
	cfg.UploadBaseDir = absUploads
	if info, err := os.Stat(cfg.UploadBaseDir); err == nil && !info.IsDir() {
		return nil, fmt.Errorf("upload directory '%s' points to a file, not a directory", cfg.UploadBaseDir)
	}

	logConfiguration(cfg, apiKeySource, adminSecretSource)

	return cfg, nil
}

// loadSecret resolves a secret from an explicit file first, then from an environment variable.
// It returns the secret (possibly empty) and a short description of where it came from.
func loadSecret(name, filePath, envKey string) (string, string) {
	if filePath != "" {
		secretBytes, err := os.ReadFile(filePath)
		if err == nil {
			secret := strings.TrimSpace(string(secretBytes))
			if secret != "" {
				log.Printf("INFO: Loaded %s from specified file: %s", name, filePath)
				return secret, fmt.Sprintf("File (%s)", filePath)
			}
			log.Printf("WARN: Specified %s file '%s' is empty or contains only whitespace. Ignoring.", name, filePath)
		} else {
			log.Printf("WARN: Failed to read specified %s file '%s': %v. Checking environment.", name, filePath, err)
		}
	}

	if secret := strings.TrimSpace(getEnv(envKey, "")); secret != "" {
		return secret, fmt.Sprintf("Environment Variable (%s)", envKey)
	}

	log.Printf("WARN: No %s configured. That authentication strategy is disabled.", name)
	return "", "Not configured"
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvBool retrieves a boolean environment variable or returns a default value.
// Recognizes "true", "1", "yes" (case-insensitive) as true.
func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		switch strings.ToLower(value) {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		}
		log.Printf("WARN: Invalid boolean value for environment variable %s: '%s'. Using default: %t", key, value, fallback)
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err == nil {
			return n
		}
		handleConfigError(key, value, err, fallback)
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err == nil {
			return n
		}
		handleConfigError(key, value, err, fallback)
	}
	return fallback
}

func parseDuration(field, value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		if err == nil {
			err = fmt.Errorf("must be positive")
		}
		handleConfigError(field, value, err, fallback)
		return fallback
	}
	return d
}

// splitList turns a comma-separated value into trimmed, non-empty entries.
func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// logConfiguration prints the loaded configuration settings. Secrets are never printed.
func logConfiguration(cfg *Config, apiKeySource, adminSecretSource string) {
	log.Println("--- Configuration ---")
	log.Printf("Server Address: %s", cfg.ListenAddress)
	log.Printf("API Port: %s", cfg.ListenPort)
	log.Printf("Renderer Port: %s", cfg.RendererPort)
	log.Printf("API Prefix: /%s", cfg.APIPrefix)
	log.Printf("Debug: %t", cfg.Debug)
	log.Printf("API Key Source: %s", apiKeySource)
	log.Printf("Admin Secret Source: %s", adminSecretSource)
	log.Printf("Identity Lookup: %s (key configured: %t, timeout %s)", cfg.IdentityLookupURL, cfg.IdentityAPIKey != "", cfg.IdentityTimeout)
	log.Printf("Rate Limit: %d requests / %s (%s store)", cfg.RateLimitRequests, cfg.RateLimitWindow, cfg.RateLimitStore)
	log.Printf("Allowed Origins: %s", strings.Join(cfg.AllowedOrigins, ", "))
	log.Printf("Upload Dir: %s (max %d bytes)", cfg.UploadBaseDir, cfg.UploadMaxBytes)
	log.Printf("Profile Store: %s", cfg.ProfileStorePath)
	log.Println("---------------------")
}

// handleConfigError logs an invalid configuration value that is being replaced by its default.
func handleConfigError(field string, value string, err error, defaultValue any) {
	log.Printf("WARN: Invalid value for %s: '%s'. Using default %v. Error: %v", field, value, defaultValue, err)
}
