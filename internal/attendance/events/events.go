// Package events publishes attendance domain events. Publishing is
// best-effort: a failed publish is logged and never fails the operation that
// produced the event.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	id "rollcall/pkg/domain"
)

// Type names a domain event.
type Type string

const (
	TypeCheckedIn         Type = "attendance.checked_in"
	TypeCheckedOut        Type = "attendance.checked_out"
	TypeHeadcountRecorded Type = "attendance.headcount_recorded"
	TypeBulkRecorded      Type = "attendance.bulk_recorded"
	TypeSessionStatus     Type = "session.status_changed"
	TypeQRTokenIssued     Type = "qr_token.issued"
)

// Event is the wire envelope. SessionID is also the partition key so every
// event for one session lands in order on one partition.
type Event struct {
	Type       Type         `json:"type"`
	SessionID  id.SessionID `json:"session_id"`
	RecordID   *id.RecordID `json:"record_id,omitempty"`
	MemberID   *id.MemberID `json:"member_id,omitempty"`
	Method     string       `json:"method,omitempty"`
	Status     string       `json:"status,omitempty"`
	Count      int          `json:"count,omitempty"`
	OccurredAt time.Time    `json:"occurred_at"`
	RequestID  string       `json:"request_id,omitempty"`
}

// Key returns the partition key for e.
func (e Event) Key() []byte {
	return []byte(e.SessionID.String())
}

// Encode renders e as JSON.
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// LogPublisher writes events to a logger. Used when no broker is configured.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, e Event) error {
	p.logger.InfoContext(ctx, "domain event",
		"event_type", string(e.Type),
		"session_id", e.SessionID.String(),
		"count", e.Count,
	)
	return nil
}
