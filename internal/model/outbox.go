package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type OutboxStatus string

const (
	OutboxStatusPending    OutboxStatus = "PENDING"
	OutboxStatusProcessing OutboxStatus = "PROCESSING"
	OutboxStatusRetry      OutboxStatus = "RETRY"
	OutboxStatusProcessed  OutboxStatus = "PROCESSED"
	OutboxStatusFailed     OutboxStatus = "FAILED"
)

const EventTypeReportGenerated = "REPORT_GENERATED"

type OutboxEvent struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	EventType    string          `db:"event_type" json:"event_type"`
	Payload      json.RawMessage `db:"payload" json:"payload"`
	Status       string          `db:"status" json:"status"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	ProcessedAt  *time.Time      `db:"processed_at" json:"processed_at,omitempty"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
	RetryCount   int             `db:"retry_count" json:"retry_count"`
	RetryAt      *time.Time      `db:"retry_at" json:"retry_at,omitempty"`
}

// ReportGenerated is the audit payload for a delivered report. It never
// carries record values.
type ReportGenerated struct {
	ReportID     uuid.UUID  `json:"report_id"`
	RequestID    string     `json:"request_id,omitempty"`
	Kind         ReportKind `json:"kind"`
	Format       Format     `json:"format"`
	Sections     []string   `json:"sections"`
	Pages        int        `json:"pages,omitempty"`
	Bytes        int        `json:"bytes"`
	Placeholders int        `json:"placeholders"`
	Appended     int        `json:"appended_documents"`
	GeneratedAt  time.Time  `json:"generated_at"`
}
