// Package alerts provides PostgreSQL-backed audit storage for the analysis
// pipeline: high-risk alerts and blocked messages, each with enough context
// for moderator review.
package alerts

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// validTypes is the set of allowed alert type values, matching the CHECK
// constraint on the guard_alerts table.
var validTypes = map[string]bool{
	"high_risk_content":  true,
	"processing_error":   true,
	"processing_timeout": true,
	"signal_error":       true,
}

// Store manages alert and blocked-message records in PostgreSQL.
type Store struct {
	db *sql.DB
}

// Alert represents one pipeline alert to be persisted.
type Alert struct {
	MessageID string
	UserID    string
	Platform  string
	Type      string
	RiskScore float64
	RiskLevel string
	Detail    string
	// Conversation is the recent-message snapshot attached for review.
	Conversation []ConversationEntry
}

// ConversationEntry is one message in the conversation snapshot attached to
// an alert.
type ConversationEntry struct {
	UserID string `json:"user_id"`
	Text   string `json:"text"`
	Ts     int64  `json:"ts"`
}

// BlockedMessage records a message the pipeline refused to let through.
type BlockedMessage struct {
	MessageID string
	UserID    string
	Platform  string
	Text      string // truncated snapshot, not the full message
	RiskScore float64
	RiskLevel string
}

// NewStore creates a new alert store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create inserts an alert into PostgreSQL. The conversation snapshot is
// marshalled to JSONB. The alert type is validated against the allowed set
// before insertion.
func (s *Store) Create(ctx context.Context, alert *Alert) error {
	if !validTypes[alert.Type] {
		return fmt.Errorf("alerts: invalid type %q", alert.Type)
	}

	var conversationJSON []byte
	if len(alert.Conversation) > 0 {
		var err error
		conversationJSON, err = json.Marshal(alert.Conversation)
		if err != nil {
			return fmt.Errorf("alerts: marshal conversation: %w", err)
		}
	}

	const query = `
		INSERT INTO guard_alerts (message_id, user_id, platform, alert_type, risk_score, risk_level, detail, conversation)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.db.ExecContext(ctx, query,
		alert.MessageID,
		alert.UserID,
		alert.Platform,
		alert.Type,
		alert.RiskScore,
		alert.RiskLevel,
		alert.Detail,
		conversationJSON,
	)
	if err != nil {
		return fmt.Errorf("alerts: insert: %w", err)
	}
	return nil
}

// CreateBlocked inserts a blocked-message record. The text snapshot is
// truncated to 100 characters before storage.
func (s *Store) CreateBlocked(ctx context.Context, blocked *BlockedMessage) error {
	text := blocked.Text
	if len(text) > 100 {
		text = text[:100]
	}

	const query = `
		INSERT INTO guard_blocked_messages (message_id, user_id, platform, text_snapshot, risk_score, risk_level)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.db.ExecContext(ctx, query,
		blocked.MessageID,
		blocked.UserID,
		blocked.Platform,
		text,
		blocked.RiskScore,
		blocked.RiskLevel,
	)
	if err != nil {
		return fmt.Errorf("alerts: insert blocked: %w", err)
	}
	return nil
}

// CountRecent returns the number of alerts raised against a user within the
// given time window. Useful for escalation logic (e.g. 3 high-risk alerts in
// 24 hours triggers a restriction).
func (s *Store) CountRecent(ctx context.Context, userID string, window time.Duration) (int, error) {
	const query = `
		SELECT COUNT(*)
		FROM guard_alerts
		WHERE user_id = $1
		  AND created_at >= NOW() - $2::interval`

	var count int
	err := s.db.QueryRowContext(ctx, query, userID, window.String()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("alerts: count recent: %w", err)
	}
	return count, nil
}

// RecentHighRisk returns the most recent high-risk alerts, newest first,
// capped at limit.
func (s *Store) RecentHighRisk(ctx context.Context, limit int) ([]Alert, error) {
	const query = `
		SELECT message_id, user_id, platform, alert_type, risk_score, risk_level, detail
		FROM guard_alerts
		WHERE alert_type = 'high_risk_content'
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("alerts: recent high risk: %w", err)
	}
	defer rows.Close()

	var out []Alert
	for rows.Next() {
		var a Alert
		if err := rows.Scan(&a.MessageID, &a.UserID, &a.Platform, &a.Type, &a.RiskScore, &a.RiskLevel, &a.Detail); err != nil {
			return nil, fmt.Errorf("alerts: scan: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
