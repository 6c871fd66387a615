package stream

import (
	"fmt"
	"time"

	"github.com/sentra/guard/internal/behavior"
	"github.com/sentra/guard/internal/category"
	"github.com/sentra/guard/internal/fusion"
	"github.com/sentra/guard/internal/intent"
	"github.com/sentra/guard/internal/obfuscation"
	"github.com/sentra/guard/internal/sentiment"
)

// Priority is the urgency tier assigned to a message at ingress. Each tier
// owns a bounded queue and a dedicated worker pool.
type Priority int

const (
	PriorityLow Priority = iota + 1
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

// Priorities lists all tiers from most to least urgent.
var Priorities = []Priority{PriorityCritical, PriorityHigh, PriorityNormal, PriorityLow}

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "CRITICAL"
	case PriorityHigh:
		return "HIGH"
	case PriorityNormal:
		return "NORMAL"
	case PriorityLow:
		return "LOW"
	}
	return fmt.Sprintf("Priority(%d)", int(p))
}

// Status is a message's position in the processing state machine.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusBlocked    Status = "blocked"
)

// transitions is the explicit state machine: pending work starts processing,
// processing ends completed, blocked, or failed, and a failed message may be
// requeued as pending for a retry.
var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing},
	StatusProcessing: {StatusCompleted, StatusBlocked, StatusFailed},
	StatusFailed:     {StatusPending},
}

// CanTransition reports whether the state machine permits moving a message
// from one status to another.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Message is a unit of work flowing through the scheduler. It is created at
// ingress and mutated only by the worker that dequeues it.
type Message struct {
	ID         string         `json:"id"`
	Text       string         `json:"text"`
	UserID     string         `json:"user_id"`
	Platform   string         `json:"platform"`
	Context    map[string]any `json:"context,omitempty"`
	Priority   Priority       `json:"priority"`
	Status     Status         `json:"status"`
	EnqueuedAt time.Time      `json:"enqueued_at"`
	StartedAt  time.Time      `json:"started_at,omitempty"`
	FinishedAt time.Time      `json:"finished_at,omitempty"`
	Retries    int            `json:"retries"`
	Result     *Result        `json:"result,omitempty"`
}

func (m *Message) transition(to Status) error {
	if !CanTransition(m.Status, to) {
		return fmt.Errorf("stream: message %s: invalid transition %s -> %s", m.ID, m.Status, to)
	}
	m.Status = to
	return nil
}

// Alert types attached to analysis results.
const (
	AlertHighRisk        = "high_risk_content"
	AlertSignalError     = "signal_error"
	AlertProcessingError = "processing_error"
	AlertTimeout         = "processing_timeout"
)

// Alert flags a condition that needs attention outside the normal result
// flow: high-risk content, a failed detection signal, or a pipeline error.
type Alert struct {
	Type      string    `json:"type"`
	MessageID string    `json:"message_id"`
	UserID    string    `json:"user_id,omitempty"`
	Platform  string    `json:"platform,omitempty"`
	RiskScore float64   `json:"risk_score,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Detail    string    `json:"detail,omitempty"`
}

// RiskLevelUnknown marks results produced by a failed or timed-out pipeline
// run, where no meaningful score exists. It sits outside the normal
// MINIMAL..CRITICAL ladder.
const RiskLevelUnknown = fusion.Level("UNKNOWN")

// Result is the fused output of one analysis run, serializable for
// transport. Per-signal sub-results are carried so consumers can inspect
// what each engine contributed.
type Result struct {
	MessageID      string        `json:"message_id"`
	IsAbusive      bool          `json:"is_abusive"`
	ShouldBlock    bool          `json:"should_block"`
	RiskScore      float64       `json:"risk_score"`
	RiskLevel      fusion.Level  `json:"risk_level"`
	Confidence     float64       `json:"confidence"`
	Categories     []string      `json:"categories,omitempty"`
	Suggestions    []string      `json:"suggestions,omitempty"`
	Alerts         []Alert       `json:"alerts,omitempty"`
	ComponentsUsed []string      `json:"components_used,omitempty"`
	ProcessingTime time.Duration `json:"processing_time_ns"`

	Category    *category.Result        `json:"category,omitempty"`
	Sentiment   *sentiment.Result       `json:"sentiment,omitempty"`
	Patterns    []behavior.PatternMatch `json:"patterns,omitempty"`
	Obfuscation []obfuscation.Match     `json:"obfuscation,omitempty"`
	Intent      *intent.Classification  `json:"intent,omitempty"`
}
