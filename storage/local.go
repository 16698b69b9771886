// Package storage keeps uploaded profile images on the local filesystem.
package storage

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

// ErrUnsupportedType is returned by DetectImageType for content outside the allow-list.
var ErrUnsupportedType = errors.New("unsupported file type")

// allowedTypes maps sniffed MIME types to the extension used for stored files.
var allowedTypes = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
}

var unsafeOwnerChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

const (
	profilesSubdir = "profiles"
	stagingSubdir  = ".staging"
)

// LocalStore writes profile images below baseDir/profiles and builds their public URLs.
type LocalStore struct {
	baseDir string
	baseURL string
}

// NewLocalStore creates a store. An empty baseURL means URLs are derived from the request.
func NewLocalStore(baseDir, baseURL string) *LocalStore {
	return &LocalStore{
		baseDir: baseDir,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// ProfilesDir is the directory holding stored profile images.
func (s *LocalStore) ProfilesDir() string {
	return filepath.Join(s.baseDir, profilesSubdir)
}

// Stage copies at most limit bytes of src into a new temporary file and returns its path.
// The caller owns the file and must remove it if it is not committed.
func (s *LocalStore) Stage(src io.Reader, limit int64) (string, error) {
	stagingDir := filepath.Join(s.baseDir, stagingSubdir)
	if err := os.MkdirAll(stagingDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create staging directory: %w", err)
	}

	tmp, err := os.CreateTemp(stagingDir, "upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create staging file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, io.LimitReader(src, limit)); err != nil {
		tmp.Close()
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("failed to write staging file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("failed to close staging file: %w", err)
	}
	return tmpPath, nil
}

// EnsureProfilesDir creates the profiles directory, including parents, if it is missing.
func (s *LocalStore) EnsureProfilesDir() error {
	if err := os.MkdirAll(s.ProfilesDir(), 0755); err != nil {
		return fmt.Errorf("failed to create profiles directory: %w", err)
	}
	return nil
}

// Commit moves a staged file to ProfilesDir()/filename and makes it world-readable.
func (s *LocalStore) Commit(tmpPath, filename string) (string, error) {
	destPath := filepath.Join(s.ProfilesDir(), filename)
	if err := os.Rename(tmpPath, destPath); err != nil {
		return "", fmt.Errorf("failed to move upload into place: %w", err)
	}
	if err := os.Chmod(destPath, 0644); err != nil {
		log.Printf("WARN: Failed to set permissions on '%s': %v", destPath, err)
	}
	return destPath, nil
}

// PublicURL returns the URL a stored file is served from. Without a configured base URL the
// scheme and host of the current request are used, followed by /uploads.
func (s *LocalStore) PublicURL(r *http.Request, filename string) string {
	base := s.baseURL
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		host := r.Host
		if host == "" {
			host = "localhost"
		}
		base = scheme + "://" + host + "/uploads"
	}
	return base + "/" + profilesSubdir + "/" + filename
}

// DetectImageType sniffs the file content and maps it to an allowed MIME type and extension.
// The client-supplied content type and filename are never consulted.
func DetectImageType(path string) (string, string, error) {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return "", "", fmt.Errorf("failed to inspect upload: %w", err)
	}
	mime := mtype.String()
	ext, ok := allowedTypes[mime]
	if !ok {
		return mime, "", ErrUnsupportedType
	}
	return mime, ext, nil
}

// SanitizeOwnerID replaces every character outside [A-Za-z0-9_-] with '_'.
func SanitizeOwnerID(ownerID string) string {
	return unsafeOwnerChars.ReplaceAllString(ownerID, "_")
}

// GenerateFilename builds p_<owner>_<unix seconds>_<16 hex chars>.<ext>.
func GenerateFilename(ownerID, ext string, now time.Time) (string, error) {
	random := make([]byte, 8)
	if _, err := rand.Read(random); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return "p_" + SanitizeOwnerID(ownerID) + "_" + strconv.FormatInt(now.Unix(), 10) + "_" + hex.EncodeToString(random) + "." + ext, nil
}
