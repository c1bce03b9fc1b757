package entitlements

import (
	"testing"
	"time"

	"github.com/pressline/insiderhub/app/models"
)

func TestNormalizeTierName(t *testing.T) {
	tests := []struct {
		in   string
		want Tier
	}{
		{in: "insider", want: TierInsider},
		{in: " Insider ", want: TierInsider},
		{in: "collective", want: TierCollective},
		{in: "legacy-plus", want: TierCollective},
		{in: "legacy_plus", want: TierCollective},
		{in: "free", want: TierFree},
		{in: "", want: TierFree},
		{in: "premium", want: TierFree},
	}

	for _, tt := range tests {
		if got := NormalizeTierName(tt.in); got != tt.want {
			t.Fatalf("NormalizeTierName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTierRank(t *testing.T) {
	if TierRank(TierFree) >= TierRank(TierCollective) {
		t.Fatalf("expected collective to outrank free")
	}
	if TierRank(TierCollective) >= TierRank(TierInsider) {
		t.Fatalf("expected insider to outrank collective")
	}
}

func TestTierCapabilities(t *testing.T) {
	if !CanReadPaidArticles(TierCollective) || !CanReadPaidArticles(TierInsider) {
		t.Fatalf("expected both paid tiers to read paid articles")
	}
	if CanReadPaidArticles(TierFree) {
		t.Fatalf("free tier must not read paid articles outright")
	}
	if !CanAccessEvents(TierInsider) {
		t.Fatalf("insider must have event access")
	}
	if CanAccessEvents(TierCollective) || CanAccessEvents(TierFree) {
		t.Fatalf("only insider has event access")
	}
}

func TestResolveTier(t *testing.T) {
	now := time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)
	trialStart := now.Add(-24 * time.Hour)
	trialEnd := now.Add(24 * time.Hour)

	user := &models.Account{Role: models.ROLE_USER}
	admin := &models.Account{Role: models.ROLE_ADMIN}
	member := &models.Member{}
	trialMember := &models.Member{TrialStartsAt: &trialStart, TrialEndsAt: &trialEnd}

	tests := []struct {
		name          string
		account       *models.Account
		member        *models.Member
		authoritative *models.Subscription
		want          Tier
	}{
		{name: "admin overrides everything", account: admin, member: nil, want: TierInsider},
		{name: "no member means free", account: user, member: nil, want: TierFree},
		{name: "active insider subscription", account: user, member: member,
			authoritative: &models.Subscription{Status: models.SubscriptionStatusActive, Tier: models.TierInsider}, want: TierInsider},
		{name: "trialing collective subscription", account: user, member: member,
			authoritative: &models.Subscription{Status: models.SubscriptionStatusTrialing, Tier: models.TierCollective}, want: TierCollective},
		{name: "past_due keeps tier during grace", account: user, member: member,
			authoritative: &models.Subscription{Status: models.SubscriptionStatusPastDue, Tier: models.TierInsider}, want: TierInsider},
		{name: "legacy alias on subscription", account: user, member: member,
			authoritative: &models.Subscription{Status: models.SubscriptionStatusActive, Tier: "legacy-plus"}, want: TierCollective},
		{name: "canceled subscription falls through", account: user, member: member,
			authoritative: &models.Subscription{Status: models.SubscriptionStatusCanceled, Tier: models.TierInsider}, want: TierFree},
		{name: "no subscription, trial window grants insider", account: user, member: trialMember, want: TierInsider},
		{name: "no subscription, no trial", account: user, member: member, want: TierFree},
	}

	for _, tt := range tests {
		if got := ResolveTier(tt.account, tt.member, tt.authoritative, now); got != tt.want {
			t.Fatalf("%s: ResolveTier = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestResolveTier_TrialWindowEdges(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)
	member := &models.Member{TrialStartsAt: &start, TrialEndsAt: &end}
	account := &models.Account{Role: models.ROLE_USER}

	if got := ResolveTier(account, member, nil, start); got != TierInsider {
		t.Fatalf("trial start instant should be inside the window, got %q", got)
	}
	if got := ResolveTier(account, member, nil, end); got != TierFree {
		t.Fatalf("trial end instant should be outside the window, got %q", got)
	}
}
