package billing

import "time"

// EventKind is the closed set of normalized provider event kinds. Anything
// the decoder does not recognize becomes EventUnknown and is acknowledged
// without touching state.
type EventKind string

const (
	EventCheckoutCompleted    EventKind = "checkout_completed"
	EventSubscriptionUpserted EventKind = "subscription_upserted"
	EventSubscriptionCanceled EventKind = "subscription_canceled"
	EventInvoicePaid          EventKind = "invoice_paid"
	EventInvoiceFailed        EventKind = "invoice_failed"
	EventUnknown              EventKind = "unknown"
)

// ShippingSnapshot carries the customer shipping address as seen in the
// provider payload, used for magazine fulfillment.
type ShippingSnapshot struct {
	Name       string
	Street     string
	City       string
	PostalCode string
	Country    string
}

// Event is the provider-agnostic shape the reconciler consumes. The ingress
// decoder resolves all payload-shape ambiguity (field spellings, API version
// drift) before anything reaches the reconciler.
type Event struct {
	Provider        string
	ProviderEventID string
	Kind            EventKind

	CustomerID     string
	CustomerEmail  string
	CustomerName   string
	SubscriptionID string

	PriceRef        string
	Tier            string
	BillingInterval string
	Status          string

	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	CancelAtPeriodEnd  bool

	Shipping *ShippingSnapshot

	RawPayloadJSON string
}

// TierChange is handed to the side-effect dispatcher after a reconciliation
// transaction commits. It carries reconciled state, never the raw provider
// event.
type TierChange struct {
	MemberID        uint
	AccountID       uint
	FromTier        string
	ToTier          string
	EventKind       EventKind
	SubscriptionRef string
	BillingInterval string
	PeriodStart     *time.Time
	Shipping        *ShippingSnapshot
}

// Dispatcher consumes committed tier changes. Implementations must be
// best-effort: their failure never rolls back billing state.
type Dispatcher interface {
	TierChanged(change TierChange)
}

// NopDispatcher ignores tier changes.
type NopDispatcher struct{}

func (NopDispatcher) TierChanged(TierChange) {}
