package models

import (
	"sync"
)

// Profile is the public part of a user page, keyed by its 5-character profile code.
type Profile struct {
	Code     string `json:"code,omitempty"` // Filled from the document key when loaded
	Nickname string `json:"nickname"`
	Subtitle string `json:"subtitle"`
	DpURL    string `json:"dpUrl"` // Profile image URL
}

// ProfileDocument is the on-disk layout of the profile document store.
type ProfileDocument struct {
	Profiles map[string]Profile `json:"profiles"` // Keyed by profile code

	Mu sync.RWMutex `json:"-"`
}

// RateLimitRecord is the fixed-window counter state for one hashed identifier.
type RateLimitRecord struct {
	Requests    int   `json:"requests"`
	WindowStart int64 `json:"windowStart"` // Unix seconds
}

// PrincipalKind tells which authentication strategy resolved the caller.
type PrincipalKind string

const (
	PrincipalAdmin  PrincipalKind = "admin"
	PrincipalAPIKey PrincipalKind = "api_key"
	PrincipalToken  PrincipalKind = "token"
)

// Principal is the authenticated identity for one request. Never persisted.
type Principal struct {
	Kind PrincipalKind
	ID   string // "admin", "api_key" or the identity token subject
}

// IdentityUser is the first user record returned by the identity lookup service.
type IdentityUser struct {
	LocalID     string `json:"localId"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

// Report is an abuse report submitted by one user about another.
type Report struct {
	ID             string `json:"reportId"`
	UserID         string `json:"userId"`
	ReportedUserID string `json:"reportedUserId"`
	Reason         string `json:"reason"`
	Description    string `json:"description"`
	Timestamp      int64  `json:"timestamp"`
}

// Analytics is the per-user statistics payload.
type Analytics struct {
	UserID         string `json:"userId"`
	TotalViews     int    `json:"totalViews"`
	TotalClicks    int    `json:"totalClicks"`
	TopLinks       []any  `json:"topLinks"`
	RecentActivity []any  `json:"recentActivity"`
}

// VerificationStatus is returned by both verified endpoints.
type VerificationStatus struct {
	UserID   string `json:"userId"`
	Verified bool   `json:"verified"`
}

// UploadedFile describes a stored profile image.
type UploadedFile struct {
	UID      string `json:"uid"`
	Filename string `json:"filename"`
	MIME     string `json:"mime"`
	Size     int64  `json:"size"`
	URL      string `json:"url"`
}

// Envelope is the uniform JSON body of every API response.
type Envelope struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Data      any    `json:"data"`
	Timestamp int64  `json:"timestamp"`
	Error     string `json:"error,omitempty"` // Only set for internal errors
}
