package billing

import (
	"strings"

	"github.com/pressline/insiderhub/app/models"
	"github.com/pressline/insiderhub/internal/pkg/entitlements"
)

// normalizeTier routes stored/provider tier strings through the canonical
// alias table.
func normalizeTier(tier string) string {
	return string(entitlements.NormalizeTierName(tier))
}

func normalizeInterval(interval string) string {
	i := strings.ToLower(strings.TrimSpace(interval))
	switch i {
	case "month", "year":
		return i
	case "monthly":
		return models.BillingIntervalMonth
	case "annual", "yearly":
		return models.BillingIntervalYear
	default:
		return models.BillingIntervalUnknown
	}
}

// normalizeStatus maps provider subscription statuses onto the internal
// status set. Unrecognized statuses are treated as incomplete rather than
// rejected so new provider states degrade safely.
func normalizeStatus(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case models.SubscriptionStatusActive:
		return models.SubscriptionStatusActive
	case models.SubscriptionStatusTrialing:
		return models.SubscriptionStatusTrialing
	case models.SubscriptionStatusPastDue, "unpaid":
		return models.SubscriptionStatusPastDue
	case models.SubscriptionStatusCanceled, "cancelled", "expired":
		return models.SubscriptionStatusCanceled
	case models.SubscriptionStatusIncomplete, "incomplete_expired", "paused":
		return models.SubscriptionStatusIncomplete
	default:
		return models.SubscriptionStatusIncomplete
	}
}

// AuthoritativeSubscription picks the row entitlements derive from when a
// member has several. See models.AuthoritativeSubscription for the
// tie-break rules.
func AuthoritativeSubscription(subs []models.Subscription) *models.Subscription {
	return models.AuthoritativeSubscription(subs)
}
