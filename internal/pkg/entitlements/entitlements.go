package entitlements

import (
	"strings"
	"time"

	"github.com/pressline/insiderhub/app/models"
)

type Tier string

const (
	TierFree       Tier = "free"
	TierCollective Tier = "collective"
	TierInsider    Tier = "insider"
)

// NormalizeTierName maps stored and provider tier strings through the
// canonical alias table. "legacy-plus" and "collective" are historical names
// of the paid tier and both normalize to collective; only "insider" grants
// the insider tier. Everything else is free.
func NormalizeTierName(tier string) Tier {
	switch strings.ToLower(strings.TrimSpace(tier)) {
	case string(TierInsider):
		return TierInsider
	case string(TierCollective), "legacy-plus", "legacy_plus":
		return TierCollective
	default:
		return TierFree
	}
}

// TierRank orders tiers for best-of comparisons.
func TierRank(tier Tier) int {
	switch tier {
	case TierInsider:
		return 2
	case TierCollective:
		return 1
	default:
		return 0
	}
}

// CanReadPaidArticles reports whether the tier passes the article paywall
// without consuming metered quota. Collective shares insider's article
// access rules.
func CanReadPaidArticles(tier Tier) bool {
	return tier == TierCollective || tier == TierInsider
}

// CanAccessEvents reports whether the tier includes event/community
// privileges. Collective does not, despite sharing article access.
func CanAccessEvents(tier Tier) bool {
	return tier == TierInsider
}

// ResolveTier derives the single membership tier from already-loaded data.
// Precedence, highest first: administrative role, then the authoritative
// subscription while its status keeps entitlement alive, then a member-level
// trial window, then free. No I/O happens here.
func ResolveTier(account *models.Account, member *models.Member, authoritative *models.Subscription, now time.Time) Tier {
	if account != nil && account.IsAdministrative() {
		return TierInsider
	}
	if member == nil {
		return TierFree
	}
	if authoritative != nil && authoritative.IsEntitling() {
		return NormalizeTierName(authoritative.Tier)
	}
	if member.InTrialWindow(now) {
		return TierInsider
	}
	return TierFree
}
