package billing

import (
	"testing"
	"time"

	"github.com/pressline/insiderhub/app/models"
)

func TestNormalizeTier(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "insider", want: models.TierInsider},
		{in: "INSIDER", want: models.TierInsider},
		{in: "collective", want: models.TierCollective},
		{in: "legacy-plus", want: models.TierCollective},
		{in: "legacy_plus", want: models.TierCollective},
		{in: "free", want: models.TierFree},
		{in: "", want: models.TierFree},
		{in: "something_new", want: models.TierFree},
	}

	for _, tt := range tests {
		if got := normalizeTier(tt.in); got != tt.want {
			t.Fatalf("normalizeTier(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeInterval(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "month", want: models.BillingIntervalMonth},
		{in: "monthly", want: models.BillingIntervalMonth},
		{in: "year", want: models.BillingIntervalYear},
		{in: "annual", want: models.BillingIntervalYear},
		{in: "yearly", want: models.BillingIntervalYear},
		{in: "WEEKLY", want: models.BillingIntervalUnknown},
		{in: "", want: models.BillingIntervalUnknown},
	}

	for _, tt := range tests {
		if got := normalizeInterval(tt.in); got != tt.want {
			t.Fatalf("normalizeInterval(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeStatus(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "active", want: models.SubscriptionStatusActive},
		{in: "trialing", want: models.SubscriptionStatusTrialing},
		{in: "past_due", want: models.SubscriptionStatusPastDue},
		{in: "unpaid", want: models.SubscriptionStatusPastDue},
		{in: "canceled", want: models.SubscriptionStatusCanceled},
		{in: "cancelled", want: models.SubscriptionStatusCanceled},
		{in: "expired", want: models.SubscriptionStatusCanceled},
		{in: "incomplete", want: models.SubscriptionStatusIncomplete},
		{in: "incomplete_expired", want: models.SubscriptionStatusIncomplete},
		{in: "paused", want: models.SubscriptionStatusIncomplete},
		{in: "brand_new_status", want: models.SubscriptionStatusIncomplete},
	}

	for _, tt := range tests {
		if got := normalizeStatus(tt.in); got != tt.want {
			t.Fatalf("normalizeStatus(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestAuthoritativeSubscription(t *testing.T) {
	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(48 * time.Hour)

	if got := AuthoritativeSubscription(nil); got != nil {
		t.Fatalf("expected nil for empty slice, got %+v", got)
	}

	onlyTerminal := []models.Subscription{
		{ID: 1, Status: models.SubscriptionStatusCanceled, UpdatedAt: newer},
		{ID: 2, Status: models.SubscriptionStatusIncomplete, UpdatedAt: newer},
	}
	if got := AuthoritativeSubscription(onlyTerminal); got != nil {
		t.Fatalf("expected nil when only terminal rows exist, got id %d", got.ID)
	}

	activeBeatsTrialing := []models.Subscription{
		{ID: 1, Status: models.SubscriptionStatusTrialing, UpdatedAt: newer},
		{ID: 2, Status: models.SubscriptionStatusActive, UpdatedAt: older},
	}
	if got := AuthoritativeSubscription(activeBeatsTrialing); got == nil || got.ID != 2 {
		t.Fatalf("expected active row to win over newer trialing row, got %+v", got)
	}

	trialingBeatsPastDue := []models.Subscription{
		{ID: 1, Status: models.SubscriptionStatusPastDue, UpdatedAt: newer},
		{ID: 2, Status: models.SubscriptionStatusTrialing, UpdatedAt: older},
	}
	if got := AuthoritativeSubscription(trialingBeatsPastDue); got == nil || got.ID != 2 {
		t.Fatalf("expected trialing row to win over newer past_due row, got %+v", got)
	}

	tieGoesToNewest := []models.Subscription{
		{ID: 1, Status: models.SubscriptionStatusActive, UpdatedAt: older},
		{ID: 2, Status: models.SubscriptionStatusActive, UpdatedAt: newer},
	}
	if got := AuthoritativeSubscription(tieGoesToNewest); got == nil || got.ID != 2 {
		t.Fatalf("expected most recently updated active row to win, got %+v", got)
	}

	terminalIgnoredAmongLive := []models.Subscription{
		{ID: 1, Status: models.SubscriptionStatusCanceled, UpdatedAt: newer},
		{ID: 2, Status: models.SubscriptionStatusPastDue, UpdatedAt: older},
	}
	if got := AuthoritativeSubscription(terminalIgnoredAmongLive); got == nil || got.ID != 2 {
		t.Fatalf("expected past_due row to win over canceled row, got %+v", got)
	}
}
