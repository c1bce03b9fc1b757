package models

import "time"

// Tier values stored on members and subscriptions. "collective" is the legacy
// paid tier name; it shares the insider article rules but not event access.
const (
	TierFree       = "free"
	TierCollective = "collective"
	TierInsider    = "insider"
)

const (
	MembershipStatusActive   = "active"
	MembershipStatusInactive = "inactive"
	MembershipStatusPastDue  = "past_due"
)

// Member is the commercial/billing identity tied to a payment-provider
// customer. Owned exclusively by the billing subsystem; created lazily on
// first checkout or first provider customer sighting; soft-deactivated via
// MembershipStatus, never deleted.
type Member struct {
	ID                 uint       `gorm:"primaryKey" json:"id"`
	AccountID          uint       `gorm:"not null;uniqueIndex" json:"account_id"`
	ProviderCustomerID string     `gorm:"type:varchar(191);default:'';index" json:"provider_customer_id"`
	Tier               string     `gorm:"type:varchar(50);not null;default:'free';index" json:"tier" validate:"oneof=free collective insider"`
	MembershipStatus   string     `gorm:"type:varchar(32);not null;default:'inactive';index" json:"membership_status" validate:"oneof=active inactive past_due"`
	TrialStartsAt      *time.Time `gorm:"type:timestamp;default:null" json:"trial_starts_at,omitempty"`
	TrialEndsAt        *time.Time `gorm:"type:timestamp;default:null" json:"trial_ends_at,omitempty"`
	CreatedAt          time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// InTrialWindow reports whether now falls inside the member's trial window.
func (m *Member) InTrialWindow(now time.Time) bool {
	if m.TrialStartsAt == nil || m.TrialEndsAt == nil {
		return false
	}
	return !now.Before(*m.TrialStartsAt) && now.Before(*m.TrialEndsAt)
}
