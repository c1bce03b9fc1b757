package entitlements

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/pressline/insiderhub/app/models"
	"github.com/pressline/insiderhub/internal/pkg/clock"
	"gorm.io/gorm"
)

// Denial reasons returned to the presentation layer.
const (
	ReasonTierRequired        = "tier_required"
	ReasonLoginRequired       = "login_required"
	ReasonArticleLimitReached = "article_limit_reached"
	ReasonInternalError       = "internal_error"
)

// Identity is who is asking. A zero AccountID with a SessionID is an
// anonymous reader tracked per session; a nil Identity cannot be metered at
// all.
type Identity struct {
	AccountID uint
	SessionID string
}

func (id *Identity) Anonymous() bool {
	return id == nil || id.AccountID == 0
}

// ViewerKey returns the quota identity, or "" when there is none to meter.
func (id *Identity) ViewerKey() string {
	if id == nil {
		return ""
	}
	if id.AccountID != 0 {
		return models.ViewerKeyForAccount(id.AccountID)
	}
	if id.SessionID != "" {
		return models.ViewerKeyForSession(id.SessionID)
	}
	return ""
}

// Decision is the gate's answer.
type Decision struct {
	Allowed      bool   `json:"allowed"`
	Reason       string `json:"reason,omitempty"`
	RequiredTier string `json:"required_tier,omitempty"`
	Tier         string `json:"tier"`
	// Metered is set when the allowed view counts against the free-tier
	// allowance and the caller must record it.
	Metered bool `json:"metered,omitempty"`
}

// Store provides the already-loaded data the gate decides on.
type Store interface {
	LoadAccountEntitlement(accountID uint) (*models.Account, *models.Member, *models.Subscription, error)
	CountDistinctArticlesViewedSince(viewerKey string, since time.Time) (int, error)
	InsertArticleView(view *models.ArticleView) error
	MonthlyArticleAllowance() (int, error)
}

// Gate answers "can this identity access this article right now". Any store
// error fails closed: an erroneous denial is far cheaper than an erroneous
// grant.
type Gate struct {
	store Store
	clock clock.Clock
}

func NewGate(store Store, clk clock.Clock) *Gate {
	return &Gate{store: store, clock: clk}
}

// NewGateFromDB builds a gate over the GORM-backed store.
func NewGateFromDB(db *gorm.DB) *Gate {
	return NewGate(NewGormStore(db), clock.System())
}

func deny(reason, requiredTier string, tier Tier) Decision {
	return Decision{Allowed: false, Reason: reason, RequiredTier: requiredTier, Tier: string(tier)}
}

// CanAccess evaluates the paywall for one article.
func (g *Gate) CanAccess(identity *Identity, article *models.Article) Decision {
	if article == nil {
		return deny(ReasonInternalError, "", TierFree)
	}
	if !article.IsGated() {
		return Decision{Allowed: true, Tier: string(TierFree)}
	}

	tier, err := g.tierFor(identity)
	if err != nil {
		log.Errorf("[Entitlements] tier lookup failed, denying: %v", err)
		return deny(ReasonInternalError, "", TierFree)
	}

	if article.Access == models.ArticleAccessInsider && tier != TierInsider {
		return deny(ReasonTierRequired, string(TierInsider), tier)
	}

	if CanReadPaidArticles(tier) {
		return Decision{Allowed: true, Tier: string(tier)}
	}

	// Free tier from here: metered access against the monthly allowance.
	viewerKey := identity.ViewerKey()
	if viewerKey == "" {
		return deny(ReasonLoginRequired, string(TierCollective), tier)
	}

	allowance, err := g.store.MonthlyArticleAllowance()
	if err != nil {
		log.Errorf("[Entitlements] allowance lookup failed, denying: %v", err)
		return deny(ReasonInternalError, string(TierCollective), tier)
	}
	monthStart := clock.StartOfMonth(g.clock.Now())
	used, err := g.store.CountDistinctArticlesViewedSince(viewerKey, monthStart)
	if err != nil {
		log.Errorf("[Entitlements] view count failed, denying: %v", err)
		return deny(ReasonInternalError, string(TierCollective), tier)
	}
	if used >= allowance {
		return deny(ReasonArticleLimitReached, string(TierCollective), tier)
	}
	return Decision{Allowed: true, Tier: string(tier), Metered: true}
}

// RecordView records a metered view. Idempotent per (viewer, article, day),
// and distinct-article counting means repeat views never consume quota.
func (g *Gate) RecordView(identity *Identity, article *models.Article) error {
	if article == nil {
		return errors.New("article is required")
	}
	viewerKey := identity.ViewerKey()
	if viewerKey == "" {
		return errors.New("identity has no viewer key")
	}
	now := g.clock.Now().UTC()
	return g.store.InsertArticleView(&models.ArticleView{
		ViewerKey: viewerKey,
		ArticleID: article.ID,
		ViewDate:  now.Format("2006-01-02"),
	})
}

// TierForAccount resolves the account's current tier. Display surfaces use
// this; access decisions go through CanAccess.
func (g *Gate) TierForAccount(accountID uint) (Tier, error) {
	return g.tierFor(&Identity{AccountID: accountID})
}

func (g *Gate) tierFor(identity *Identity) (Tier, error) {
	if identity.Anonymous() {
		return TierFree, nil
	}
	account, member, authoritative, err := g.store.LoadAccountEntitlement(identity.AccountID)
	if err != nil {
		return TierFree, err
	}
	return ResolveTier(account, member, authoritative, g.clock.Now()), nil
}
