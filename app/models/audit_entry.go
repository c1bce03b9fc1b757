package models

import (
	"time"

	"gorm.io/gorm"
)

// AuditEntry is the append-only trail of membership tier changes. Entries are
// written best-effort after the reconciliation transaction commits.
type AuditEntry struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	Reference       string    `gorm:"type:varchar(36);uniqueIndex" json:"reference"`
	MemberID        uint      `gorm:"not null;index" json:"member_id"`
	AccountID       uint      `gorm:"index" json:"account_id"`
	EventKind       string    `gorm:"type:varchar(50);not null" json:"event_kind"`
	SubscriptionRef string    `gorm:"type:varchar(191);default:''" json:"subscription_ref"`
	FromTier        string    `gorm:"type:varchar(50);not null" json:"from_tier"`
	ToTier          string    `gorm:"type:varchar(50);not null" json:"to_tier"`
	Note            string    `gorm:"type:text" json:"note"`
	CreatedAt       time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

// CreateAuditEntry appends one tier-change entry.
func CreateAuditEntry(db *gorm.DB, entry *AuditEntry) error {
	return db.Create(entry).Error
}
