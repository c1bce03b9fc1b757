package models

import "time"

const (
	FulfillmentStatusActive   = "active"
	FulfillmentStatusCanceled = "canceled"
)

// Dispatch states for the outbound fulfillment call. retry_pending rows are
// re-dispatched by the background worker until the collaborator accepts them.
const (
	FulfillmentDispatchPending      = "pending"
	FulfillmentDispatchSent         = "sent"
	FulfillmentDispatchRetryPending = "retry_pending"
)

// MagazineFulfillmentRecord tracks physical magazine delivery for
// insider-tier subscriptions. Status active implies the member's current
// authoritative subscription is insider; the dispatcher cancels the record
// when a downgrade violates that.
type MagazineFulfillmentRecord struct {
	ID                     uint       `gorm:"primaryKey" json:"id"`
	MemberID               uint       `gorm:"not null;index" json:"member_id"`
	ProviderSubscriptionID string     `gorm:"type:varchar(191);not null;index" json:"provider_subscription_id"`
	BillingInterval        string     `gorm:"type:varchar(16);not null;default:'unknown'" json:"billing_interval"`
	ShippingName           string     `gorm:"type:varchar(200);default:''" json:"shipping_name"`
	ShippingStreet         string     `gorm:"type:varchar(255);default:''" json:"shipping_street"`
	ShippingCity           string     `gorm:"type:varchar(100);default:''" json:"shipping_city"`
	ShippingPostalCode     string     `gorm:"type:varchar(20);default:''" json:"shipping_postal_code"`
	ShippingCountry        string     `gorm:"type:varchar(2);default:''" json:"shipping_country"`
	Status                 string     `gorm:"type:varchar(20);not null;default:'active';index" json:"status"`
	DispatchStatus         string     `gorm:"type:varchar(20);not null;default:'pending';index" json:"dispatch_status"`
	DispatchAttempts       int        `gorm:"not null;default:0" json:"dispatch_attempts"`
	LastDispatchAt         *time.Time `gorm:"type:timestamp;default:null" json:"last_dispatch_at,omitempty"`
	SubscriptionStartedAt  *time.Time `gorm:"type:timestamp;default:null" json:"subscription_started_at,omitempty"`
	CreatedAt              time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
