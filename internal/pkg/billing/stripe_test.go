package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/pressline/insiderhub/app/models"
)

const testWebhookSecret = "whsec_test_secret"

// signStripePayload produces a Stripe-Signature header the verifier accepts:
// v1 is HMAC-SHA256 of "<timestamp>.<payload>" under the endpoint secret.
func signStripePayload(payload []byte, secret string) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func TestVerifyAndDecodeStripeEvent_RejectsBadSignature(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"invoice.paid","data":{"object":{}}}`)

	if _, err := VerifyAndDecodeStripeEvent(payload, "t=1,v1=deadbeef", testWebhookSecret); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}

	sig := signStripePayload(payload, "wrong_secret")
	if _, err := VerifyAndDecodeStripeEvent(payload, sig, testWebhookSecret); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature for wrong secret, got %v", err)
	}
}

func TestVerifyAndDecodeStripeEvent_UnknownType(t *testing.T) {
	payload := []byte(`{"id":"evt_2","type":"charge.refunded","data":{"object":{}}}`)
	sig := signStripePayload(payload, testWebhookSecret)

	ev, err := VerifyAndDecodeStripeEvent(payload, sig, testWebhookSecret)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Kind != EventUnknown {
		t.Fatalf("expected EventUnknown, got %q", ev.Kind)
	}
	if ev.ProviderEventID != "evt_2" {
		t.Fatalf("expected event id to survive, got %q", ev.ProviderEventID)
	}
}

func TestVerifyAndDecodeStripeEvent_SubscriptionUpdated(t *testing.T) {
	payload := []byte(`{
		"id": "evt_3",
		"type": "customer.subscription.updated",
		"data": {"object": {
			"id": "sub_123",
			"customer": "cus_123",
			"status": "active",
			"cancel_at_period_end": true,
			"current_period_start": 1767225600,
			"current_period_end": 1769904000,
			"items": {"data": [{"price": {
				"id": "price_1",
				"lookup_key": "insider_monthly",
				"metadata": {"tier": "insider"},
				"recurring": {"interval": "month"}
			}}]}
		}}
	}`)
	sig := signStripePayload(payload, testWebhookSecret)

	ev, err := VerifyAndDecodeStripeEvent(payload, sig, testWebhookSecret)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Kind != EventSubscriptionUpserted {
		t.Fatalf("expected EventSubscriptionUpserted, got %q", ev.Kind)
	}
	if ev.Provider != models.BillingProviderStripe {
		t.Fatalf("expected stripe provider, got %q", ev.Provider)
	}
	if ev.SubscriptionID != "sub_123" || ev.CustomerID != "cus_123" {
		t.Fatalf("unexpected references: %q / %q", ev.SubscriptionID, ev.CustomerID)
	}
	if ev.Tier != "insider" || ev.BillingInterval != "month" || ev.PriceRef != "price_1" {
		t.Fatalf("unexpected price mapping: tier=%q interval=%q ref=%q", ev.Tier, ev.BillingInterval, ev.PriceRef)
	}
	if !ev.CancelAtPeriodEnd {
		t.Fatalf("expected cancel_at_period_end to carry over")
	}
	if ev.CurrentPeriodStart == nil || ev.CurrentPeriodStart.Unix() != 1767225600 {
		t.Fatalf("unexpected period start: %v", ev.CurrentPeriodStart)
	}
	if ev.CurrentPeriodEnd == nil || ev.CurrentPeriodEnd.Unix() != 1769904000 {
		t.Fatalf("unexpected period end: %v", ev.CurrentPeriodEnd)
	}
}

func TestVerifyAndDecodeStripeEvent_CamelCaseAndExpandedIDs(t *testing.T) {
	payload := []byte(`{
		"id": "evt_4",
		"type": "customer.subscription.updated",
		"data": {"object": {
			"id": "sub_456",
			"customer": {"id": "cus_456"},
			"status": "unpaid",
			"cancelAtPeriodEnd": true,
			"currentPeriodStart": 1767225600,
			"currentPeriodEnd": 1769904000,
			"items": {"data": [{"price": {
				"id": "price_2",
				"lookup_key": "legacy-plus-monthly",
				"recurring": {"interval": "month"}
			}}]}
		}}
	}`)
	sig := signStripePayload(payload, testWebhookSecret)

	ev, err := VerifyAndDecodeStripeEvent(payload, sig, testWebhookSecret)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.CustomerID != "cus_456" {
		t.Fatalf("expected expanded customer object to decode, got %q", ev.CustomerID)
	}
	if ev.Status != models.SubscriptionStatusPastDue {
		t.Fatalf("expected unpaid to normalize to past_due, got %q", ev.Status)
	}
	if !ev.CancelAtPeriodEnd {
		t.Fatalf("expected camelCase cancel flag to decode")
	}
	if ev.CurrentPeriodStart == nil || ev.CurrentPeriodEnd == nil {
		t.Fatalf("expected camelCase period fields to decode")
	}
	if ev.Tier != "legacy-plus" {
		t.Fatalf("expected lookup key with interval suffix stripped, got %q", ev.Tier)
	}
}

func TestVerifyAndDecodeStripeEvent_CheckoutCompleted(t *testing.T) {
	payload := []byte(`{
		"id": "evt_5",
		"type": "checkout.session.completed",
		"data": {"object": {
			"id": "cs_1",
			"customer": "cus_789",
			"subscription": "sub_789",
			"customer_details": {
				"email": "reader@example.com",
				"name": "Reader One",
				"address": {"line1": "Main St 1", "city": "Berlin", "postal_code": "10115", "country": "DE"}
			},
			"metadata": {"tier": "insider", "interval": "year"}
		}}
	}`)
	sig := signStripePayload(payload, testWebhookSecret)

	ev, err := VerifyAndDecodeStripeEvent(payload, sig, testWebhookSecret)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Kind != EventCheckoutCompleted {
		t.Fatalf("expected EventCheckoutCompleted, got %q", ev.Kind)
	}
	if ev.CustomerID != "cus_789" || ev.SubscriptionID != "sub_789" {
		t.Fatalf("unexpected references: %q / %q", ev.CustomerID, ev.SubscriptionID)
	}
	if ev.CustomerEmail != "reader@example.com" || ev.CustomerName != "Reader One" {
		t.Fatalf("unexpected customer details: %q / %q", ev.CustomerEmail, ev.CustomerName)
	}
	if ev.Tier != "insider" || ev.BillingInterval != "year" {
		t.Fatalf("unexpected metadata mapping: %q / %q", ev.Tier, ev.BillingInterval)
	}
	if ev.Shipping == nil || ev.Shipping.City != "Berlin" || ev.Shipping.Country != "DE" {
		t.Fatalf("expected shipping snapshot from customer address, got %+v", ev.Shipping)
	}
}

func TestVerifyAndDecodeStripeEvent_InvoiceFailed(t *testing.T) {
	payload := []byte(`{
		"id": "evt_6",
		"type": "invoice.payment_failed",
		"data": {"object": {
			"id": "in_1",
			"customer": "cus_789",
			"subscription": "sub_789"
		}}
	}`)
	sig := signStripePayload(payload, testWebhookSecret)

	ev, err := VerifyAndDecodeStripeEvent(payload, sig, testWebhookSecret)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Kind != EventInvoiceFailed {
		t.Fatalf("expected EventInvoiceFailed, got %q", ev.Kind)
	}
	if ev.SubscriptionID != "sub_789" {
		t.Fatalf("expected subscription reference, got %q", ev.SubscriptionID)
	}
}
