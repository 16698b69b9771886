// Package identity verifies bearer identity tokens against a remote account lookup service.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"vlagserver/models"

	"github.com/tidwall/gjson"
)

var (
	// ErrNotConfigured means no web API key is set, so tokens cannot be checked.
	ErrNotConfigured = errors.New("identity lookup is not configured")
	// ErrEmptyToken means the caller presented no token.
	ErrEmptyToken = errors.New("identity token is empty")
	// ErrRejected means the lookup service did not accept the token.
	ErrRejected = errors.New("identity token rejected")
)

// maxReplyBytes bounds how much of a lookup reply is read.
const maxReplyBytes = 1 << 20

// Client calls the accounts lookup endpoint of the identity service.
type Client struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
}

// New creates a lookup client. timeout bounds each lookup call end to end.
func New(endpoint, apiKey string, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		endpoint:   strings.TrimSpace(endpoint),
		apiKey:     strings.TrimSpace(apiKey),
	}
}

// Lookup posts {"idToken": token} to the endpoint and returns the first user record.
// Only an HTTP 200 reply with a non-empty users[0].localId counts as verified.
func (c *Client) Lookup(ctx context.Context, idToken string) (*models.IdentityUser, error) {
	if c.apiKey == "" || c.endpoint == "" {
		return nil, ErrNotConfigured
	}
	if idToken == "" {
		return nil, ErrEmptyToken
	}

	reqURL, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid identity lookup URL: %w", err)
	}
	query := reqURL.Query()
	query.Set("key", c.apiKey)
	reqURL.RawQuery = query.Encode()

	payload, err := json.Marshal(map[string]string{"idToken": idToken})
	if err != nil {
		return nil, fmt.Errorf("encoding lookup payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL.String(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating lookup request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("identity lookup request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return nil, fmt.Errorf("reading identity lookup reply: %w", err)
	}

	if resp.StatusCode != http.StatusOK || len(body) == 0 {
		return nil, fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
	}

	first := gjson.GetBytes(body, "users.0")
	localID := first.Get("localId").String()
	if !first.IsObject() || localID == "" {
		return nil, fmt.Errorf("%w: reply has no user record", ErrRejected)
	}

	return &models.IdentityUser{
		LocalID:     localID,
		Email:       first.Get("email").String(),
		DisplayName: first.Get("displayName").String(),
	}, nil
}
