package billing

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pressline/insiderhub/app/models"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// ErrInvalidSignature marks payloads that fail provider signature
// verification. No state is touched for these.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// VerifyAndDecodeStripeEvent verifies the Stripe-Signature header against the
// raw body and translates the event into the normalized internal shape. The
// raw body must not have been parsed or mutated before this call. Unknown
// event types come back as EventUnknown; callers acknowledge and discard
// them.
func VerifyAndDecodeStripeEvent(payload []byte, signatureHeader, webhookSecret string) (*Event, error) {
	stripeEvent, err := webhook.ConstructEventWithOptions(payload, signatureHeader, webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	ev := &Event{
		Provider:        models.BillingProviderStripe,
		ProviderEventID: stripeEvent.ID,
		Kind:            normalizeStripeEventType(stripeEvent.Type),
		RawPayloadJSON:  string(payload),
	}
	if ev.Kind == EventUnknown {
		return ev, nil
	}

	switch ev.Kind {
	case EventCheckoutCompleted:
		err = decodeCheckoutSession(stripeEvent.Data.Raw, ev)
	case EventSubscriptionUpserted, EventSubscriptionCanceled:
		err = decodeSubscription(stripeEvent.Data.Raw, ev)
	case EventInvoicePaid, EventInvoiceFailed:
		err = decodeInvoice(stripeEvent.Data.Raw, ev)
	}
	if err != nil {
		return nil, err
	}
	return ev, nil
}

func normalizeStripeEventType(t stripe.EventType) EventKind {
	switch t {
	case "checkout.session.completed":
		return EventCheckoutCompleted
	case "customer.subscription.created", "customer.subscription.updated":
		return EventSubscriptionUpserted
	case "customer.subscription.deleted":
		return EventSubscriptionCanceled
	case "invoice.paid", "invoice.payment_succeeded":
		return EventInvoicePaid
	case "invoice.payment_failed":
		return EventInvoiceFailed
	default:
		return EventUnknown
	}
}

type rawPrice struct {
	ID        string            `json:"id"`
	LookupKey string            `json:"lookup_key"`
	Nickname  string            `json:"nickname"`
	Metadata  map[string]string `json:"metadata"`
	Recurring struct {
		Interval string `json:"interval"`
	} `json:"recurring"`
}

type rawAddress struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// rawSubscription tolerates both the snake_case and camelCase period-field
// spellings that different provider API versions emit.
type rawSubscription struct {
	ID                      string `json:"id"`
	Customer                jsonID `json:"customer"`
	Status                  string `json:"status"`
	CancelAtPeriodEnd       bool   `json:"cancel_at_period_end"`
	CancelAtPeriodEndCamel  *bool  `json:"cancelAtPeriodEnd"`
	CurrentPeriodStart      *int64 `json:"current_period_start"`
	CurrentPeriodStartCamel *int64 `json:"currentPeriodStart"`
	CurrentPeriodEnd        *int64 `json:"current_period_end"`
	CurrentPeriodEndCamel   *int64 `json:"currentPeriodEnd"`
	Items                   struct {
		Data []struct {
			Price rawPrice `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

type rawCheckoutSession struct {
	ID              string `json:"id"`
	Customer        jsonID `json:"customer"`
	Subscription    jsonID `json:"subscription"`
	CustomerDetails struct {
		Email   string      `json:"email"`
		Name    string      `json:"name"`
		Address *rawAddress `json:"address"`
	} `json:"customer_details"`
	ShippingDetails *struct {
		Name    string      `json:"name"`
		Address *rawAddress `json:"address"`
	} `json:"shipping_details"`
	Metadata map[string]string `json:"metadata"`
}

type rawInvoice struct {
	ID                string `json:"id"`
	Customer          jsonID `json:"customer"`
	Subscription      jsonID `json:"subscription"`
	SubscriptionCamel jsonID `json:"subscriptionId"`
}

// jsonID accepts either a bare string id or an expanded object with an "id"
// field, both of which the provider emits depending on expansion settings.
type jsonID string

func (j *jsonID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*j = jsonID(s)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*j = jsonID(obj.ID)
	return nil
}

func decodeCheckoutSession(raw json.RawMessage, ev *Event) error {
	var cs rawCheckoutSession
	if err := json.Unmarshal(raw, &cs); err != nil {
		return fmt.Errorf("decode checkout session: %w", err)
	}
	if cs.Customer == "" {
		return errors.New("checkout session payload missing customer")
	}
	ev.CustomerID = string(cs.Customer)
	ev.SubscriptionID = string(cs.Subscription)
	ev.CustomerEmail = strings.TrimSpace(cs.CustomerDetails.Email)
	ev.CustomerName = strings.TrimSpace(cs.CustomerDetails.Name)
	ev.Status = models.SubscriptionStatusActive
	if tier := strings.TrimSpace(cs.Metadata["tier"]); tier != "" {
		ev.Tier = tier
	}
	if interval := strings.TrimSpace(cs.Metadata["interval"]); interval != "" {
		ev.BillingInterval = interval
	}

	name := ev.CustomerName
	addr := cs.CustomerDetails.Address
	if cs.ShippingDetails != nil {
		if cs.ShippingDetails.Name != "" {
			name = cs.ShippingDetails.Name
		}
		if cs.ShippingDetails.Address != nil {
			addr = cs.ShippingDetails.Address
		}
	}
	if addr != nil {
		street := addr.Line1
		if addr.Line2 != "" {
			street += ", " + addr.Line2
		}
		ev.Shipping = &ShippingSnapshot{
			Name:       name,
			Street:     street,
			City:       addr.City,
			PostalCode: addr.PostalCode,
			Country:    addr.Country,
		}
	}
	return nil
}

func decodeSubscription(raw json.RawMessage, ev *Event) error {
	var sub rawSubscription
	if err := json.Unmarshal(raw, &sub); err != nil {
		return fmt.Errorf("decode subscription: %w", err)
	}
	if sub.ID == "" {
		return errors.New("subscription payload missing id")
	}
	ev.SubscriptionID = sub.ID
	ev.CustomerID = string(sub.Customer)
	ev.Status = normalizeStatus(sub.Status)
	ev.CancelAtPeriodEnd = sub.CancelAtPeriodEnd
	if sub.CancelAtPeriodEndCamel != nil {
		ev.CancelAtPeriodEnd = *sub.CancelAtPeriodEndCamel
	}
	ev.CurrentPeriodStart = unixTime(sub.CurrentPeriodStart, sub.CurrentPeriodStartCamel)
	ev.CurrentPeriodEnd = unixTime(sub.CurrentPeriodEnd, sub.CurrentPeriodEndCamel)

	if len(sub.Items.Data) > 0 {
		price := sub.Items.Data[0].Price
		ev.PriceRef = price.ID
		ev.Tier = tierFromPrice(price)
		ev.BillingInterval = price.Recurring.Interval
	}
	return nil
}

func decodeInvoice(raw json.RawMessage, ev *Event) error {
	var inv rawInvoice
	if err := json.Unmarshal(raw, &inv); err != nil {
		return fmt.Errorf("decode invoice: %w", err)
	}
	ev.CustomerID = string(inv.Customer)
	ev.SubscriptionID = string(inv.Subscription)
	if ev.SubscriptionID == "" {
		ev.SubscriptionID = string(inv.SubscriptionCamel)
	}
	return nil
}

// tierFromPrice extracts a tier name from price metadata, falling back to
// nickname and then to the lookup key with interval suffixes stripped.
func tierFromPrice(p rawPrice) string {
	if t := strings.TrimSpace(p.Metadata["tier"]); t != "" {
		return t
	}
	if t := strings.TrimSpace(p.Nickname); t != "" {
		return t
	}
	key := strings.ToLower(strings.TrimSpace(p.LookupKey))
	for _, suffix := range []string{"_monthly", "_annual", "_month", "_year", "-monthly", "-annual", "-month", "-year"} {
		key = strings.TrimSuffix(key, suffix)
	}
	return key
}

func unixTime(snake, camel *int64) *time.Time {
	v := snake
	if v == nil {
		v = camel
	}
	if v == nil || *v <= 0 {
		return nil
	}
	t := time.Unix(*v, 0).UTC()
	return &t
}
