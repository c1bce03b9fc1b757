package models

import "time"

const (
	BillingIntervalMonth   = "month"
	BillingIntervalYear    = "year"
	BillingIntervalUnknown = "unknown"
)

const (
	SubscriptionStatusActive     = "active"
	SubscriptionStatusTrialing   = "trialing"
	SubscriptionStatusPastDue    = "past_due"
	SubscriptionStatusCanceled   = "canceled"
	SubscriptionStatusIncomplete = "incomplete"
)

// Billing provider constants used across billing-related models.
const (
	BillingProviderStripe = "stripe"
)

// Subscription mirrors one provider subscription object. The provider
// subscription reference is the natural identity key for current-state
// writes; canceled rows are retained for history.
type Subscription struct {
	ID                     uint       `gorm:"primaryKey" json:"id"`
	MemberID               uint       `gorm:"not null;index" json:"member_id"`
	Provider               string     `gorm:"type:varchar(20);not null;index:ux_subscriptions_provider_subid,unique,priority:1" json:"provider"`
	ProviderSubscriptionID string     `gorm:"type:varchar(191);not null;index:ux_subscriptions_provider_subid,unique,priority:2" json:"provider_subscription_id"`
	ProviderCustomerID     string     `gorm:"type:varchar(191);not null;default:'';index" json:"provider_customer_id"`
	ProviderPriceRef       string     `gorm:"type:varchar(191);not null;default:''" json:"provider_price_ref"`
	Tier                   string     `gorm:"type:varchar(50);not null;default:'free';index" json:"tier"`
	BillingInterval        string     `gorm:"type:varchar(16);not null;default:'unknown'" json:"billing_interval"`
	Status                 string     `gorm:"type:varchar(32);not null;default:'active';index" json:"status"`
	CurrentPeriodStart     *time.Time `gorm:"type:timestamp;default:null" json:"current_period_start,omitempty"`
	CurrentPeriodEnd       *time.Time `gorm:"type:timestamp;default:null" json:"current_period_end,omitempty"`
	CancelAtPeriodEnd      bool       `gorm:"default:false" json:"cancel_at_period_end"`
	PastDueSince           *time.Time `gorm:"type:timestamp;default:null" json:"past_due_since,omitempty"`
	RawPayloadJSON         string     `gorm:"type:longtext" json:"raw_payload_json"`
	CreatedAt              time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time  `gorm:"autoUpdateTime;index" json:"updated_at"`
}

// IsEntitling reports whether the subscription status keeps article access
// alive. past_due is entitling during the grace window; the sweep worker is
// responsible for ending it.
func (s *Subscription) IsEntitling() bool {
	switch s.Status {
	case SubscriptionStatusActive, SubscriptionStatusTrialing, SubscriptionStatusPastDue:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the row can never become authoritative again.
func (s *Subscription) IsTerminal() bool {
	switch s.Status {
	case SubscriptionStatusCanceled, SubscriptionStatusIncomplete:
		return true
	default:
		return false
	}
}

func subscriptionStatusRank(status string) int {
	switch status {
	case SubscriptionStatusActive:
		return 3
	case SubscriptionStatusTrialing:
		return 2
	case SubscriptionStatusPastDue:
		return 1
	default:
		return 0
	}
}

// AuthoritativeSubscription selects the single row entitlements derive from
// when a member has several. active beats trialing beats past_due; ties go
// to the most recently updated row. Terminal rows (canceled, incomplete) are
// never authoritative while any non-terminal row exists, and a member with
// only terminal rows has no authoritative subscription at all.
func AuthoritativeSubscription(subs []Subscription) *Subscription {
	var best *Subscription
	for i := range subs {
		sub := &subs[i]
		if sub.IsTerminal() {
			continue
		}
		if best == nil {
			best = sub
			continue
		}
		br, sr := subscriptionStatusRank(best.Status), subscriptionStatusRank(sub.Status)
		if sr > br || (sr == br && sub.UpdatedAt.After(best.UpdatedAt)) {
			best = sub
		}
	}
	return best
}
