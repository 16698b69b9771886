package db

import (
	"context"
	"log"

	"vlagserver/models"
)

// VerificationStore reads and writes the verified-badge flag of a user.
type VerificationStore interface {
	IsVerified(ctx context.Context, userID string) (bool, error)
	SetVerified(ctx context.Context, userID string, verified bool) error
}

// ReportStore records submitted abuse reports.
type ReportStore interface {
	SaveReport(ctx context.Context, report models.Report) error
}

// AnalyticsSource provides per-user view and click statistics.
type AnalyticsSource interface {
	UserAnalytics(ctx context.Context, userID string) (models.Analytics, error)
}

// UnconnectedVerificationStore is used until a user store is connected.
// Every user reads as not verified and writes are accepted but dropped.
type UnconnectedVerificationStore struct{}

func (UnconnectedVerificationStore) IsVerified(ctx context.Context, userID string) (bool, error) {
	return false, nil
}

func (UnconnectedVerificationStore) SetVerified(ctx context.Context, userID string, verified bool) error {
	log.Printf("WARN: Verification store not connected; dropping verified=%t for user %s", verified, userID)
	return nil
}

// DiscardReportStore is used until report storage is connected. Reports are logged and dropped.
type DiscardReportStore struct{}

func (DiscardReportStore) SaveReport(ctx context.Context, report models.Report) error {
	log.Printf("WARN: Report storage not connected; dropping report %s (reporter %s, reported %s)", report.ID, report.UserID, report.ReportedUserID)
	return nil
}

// PlaceholderAnalytics is used until an analytics source is connected.
// It returns zero counts and empty lists for every user.
type PlaceholderAnalytics struct{}

func (PlaceholderAnalytics) UserAnalytics(ctx context.Context, userID string) (models.Analytics, error) {
	return models.Analytics{
		UserID:         userID,
		TotalViews:     0,
		TotalClicks:    0,
		TopLinks:       []any{},
		RecentActivity: []any{},
	}, nil
}
