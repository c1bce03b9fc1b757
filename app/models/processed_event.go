package models

import "time"

// ProcessedEvent is the idempotency ledger: one row per externally-identified
// provider event that has been applied. Append-only; acts purely as a
// duplicate filter and may be pruned after a retention window.
type ProcessedEvent struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	Provider        string    `gorm:"type:varchar(20);not null;index:ux_processed_events_provider_event,unique,priority:1" json:"provider"`
	ProviderEventID string    `gorm:"type:varchar(191);not null;index:ux_processed_events_provider_event,unique,priority:2" json:"provider_event_id"`
	EventKind       string    `gorm:"type:varchar(100);not null;index" json:"event_kind"`
	Outcome         string    `gorm:"type:varchar(50);not null;default:''" json:"outcome"`
	PayloadJSON     string    `gorm:"type:longtext" json:"payload_json"`
	CreatedAt       time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

// Ledger outcomes.
const (
	EventOutcomeApplied = "applied"
	EventOutcomeIgnored = "ignored"
	EventOutcomeNoOp    = "noop"
)
