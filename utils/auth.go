package utils

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"vlagserver/config"
	"vlagserver/models"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/crypto/bcrypt"
)

// Header names consumed by the authenticator.
const (
	HeaderAdminSecret   = "X-Admin-Secret"
	HeaderAPIKey        = "X-API-Key"
	HeaderAuthorization = "Authorization"
)

var authResultsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "vlag_auth_results_total",
		Help: "Authentication attempts by resolved principal kind, or \"none\".",
	},
	[]string{"result"},
)

// tokenExpiryLeeway tolerates clock skew between this host and the identity service.
const tokenExpiryLeeway = time.Minute

// ErrTokenExpired is returned by PrescreenToken for tokens whose exp claim is in the past.
var ErrTokenExpired = errors.New("identity token has expired")

// TokenVerifier resolves a bearer identity token to the user it was issued for.
type TokenVerifier interface {
	Lookup(ctx context.Context, idToken string) (*models.IdentityUser, error)
}

// Authenticator tries the admin secret, the API key and finally a bearer identity token,
// in that order. The first strategy that succeeds wins.
type Authenticator struct {
	cfg      *config.Config
	verifier TokenVerifier
}

// NewAuthenticator creates an Authenticator. verifier may be nil, which disables bearer tokens.
func NewAuthenticator(cfg *config.Config, verifier TokenVerifier) *Authenticator {
	return &Authenticator{cfg: cfg, verifier: verifier}
}

// Authenticate resolves the caller of the current request. It never writes a response;
// callers decide what to do when it returns false.
func (a *Authenticator) Authenticate(c *gin.Context) (*models.Principal, bool) {
	if secret := c.GetHeader(HeaderAdminSecret); secret != "" && ValidateSecret(secret, a.cfg.AdminSecret) {
		return a.resolved(models.PrincipalAdmin, "admin"), true
	}

	if key := c.GetHeader(HeaderAPIKey); key != "" && ValidateSecret(key, a.cfg.APIKey) {
		return a.resolved(models.PrincipalAPIKey, "api_key"), true
	}

	token := BearerToken(c.GetHeader(HeaderAuthorization))
	if token == "" || a.verifier == nil {
		authResultsTotal.WithLabelValues("none").Inc()
		return nil, false
	}

	if err := PrescreenToken(token, time.Now()); err != nil {
		log.Printf("INFO: Bearer token rejected before lookup: %v", err)
		authResultsTotal.WithLabelValues("none").Inc()
		return nil, false
	}

	user, err := a.verifier.Lookup(c.Request.Context(), token)
	if err != nil || user == nil || user.LocalID == "" {
		if err != nil {
			log.Printf("WARN: Identity token lookup failed: %v", err)
		}
		authResultsTotal.WithLabelValues("none").Inc()
		return nil, false
	}

	return a.resolved(models.PrincipalToken, user.LocalID), true
}

func (a *Authenticator) resolved(kind models.PrincipalKind, id string) *models.Principal {
	authResultsTotal.WithLabelValues(string(kind)).Inc()
	return &models.Principal{Kind: kind, ID: id}
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header value.
// The scheme is matched case-insensitively. Returns "" when the header is absent or uses another scheme.
func BearerToken(header string) string {
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// ValidateSecret compares a provided header value with a configured secret.
// Configured values that look like bcrypt hashes are checked with bcrypt, anything else
// with a constant-time comparison. An empty side never matches.
func ValidateSecret(provided, configured string) bool {
	if provided == "" || configured == "" {
		return false
	}
	if isBcryptHash(configured) {
		return bcrypt.CompareHashAndPassword([]byte(configured), []byte(provided)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(configured)) == 1
}

func isBcryptHash(s string) bool {
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}

// PrescreenToken rejects tokens that cannot be identity tokens before any network call:
// the value must parse as a JWT and must not be expired by more than tokenExpiryLeeway.
// The signature is not checked here; the identity lookup service remains the authority.
func PrescreenToken(token string, now time.Time) error {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return fmt.Errorf("malformed identity token: %w", err)
	}
	if claims.ExpiresAt != nil && now.After(claims.ExpiresAt.Time.Add(tokenExpiryLeeway)) {
		return ErrTokenExpired
	}
	return nil
}
