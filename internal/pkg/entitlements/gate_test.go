package entitlements

import (
	"errors"
	"testing"
	"time"

	"github.com/pressline/insiderhub/app/models"
	"github.com/pressline/insiderhub/internal/pkg/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	account *models.Account
	member  *models.Member
	sub     *models.Subscription

	views     []models.ArticleView
	allowance int

	loadErr      error
	countErr     error
	insertErr    error
	allowanceErr error
}

func (f *fakeStore) LoadAccountEntitlement(accountID uint) (*models.Account, *models.Member, *models.Subscription, error) {
	if f.loadErr != nil {
		return nil, nil, nil, f.loadErr
	}
	return f.account, f.member, f.sub, nil
}

func (f *fakeStore) CountDistinctArticlesViewedSince(viewerKey string, since time.Time) (int, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	seen := map[uint]bool{}
	for _, v := range f.views {
		if v.ViewerKey == viewerKey && !v.ViewedAt.Before(since) {
			seen[v.ArticleID] = true
		}
	}
	return len(seen), nil
}

func (f *fakeStore) InsertArticleView(view *models.ArticleView) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	for _, v := range f.views {
		if v.ViewerKey == view.ViewerKey && v.ArticleID == view.ArticleID && v.ViewDate == view.ViewDate {
			return nil
		}
	}
	day, err := time.Parse("2006-01-02", view.ViewDate)
	if err != nil {
		return err
	}
	view.ViewedAt = day
	f.views = append(f.views, *view)
	return nil
}

func (f *fakeStore) MonthlyArticleAllowance() (int, error) {
	if f.allowanceErr != nil {
		return 0, f.allowanceErr
	}
	return f.allowance, nil
}

var gateNow = time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)

func newTestGate(store *fakeStore) *Gate {
	return NewGate(store, clock.Fixed(gateNow))
}

func freeReaderStore() *fakeStore {
	return &fakeStore{
		account:   &models.Account{ID: 7, Role: models.ROLE_USER},
		member:    &models.Member{ID: 3, AccountID: 7},
		allowance: 3,
	}
}

func meteredArticle(id uint) *models.Article {
	return &models.Article{ID: id, Access: models.ArticleAccessMetered}
}

func TestGate_PublicArticleAlwaysAllowed(t *testing.T) {
	gate := newTestGate(&fakeStore{})
	article := &models.Article{ID: 1, Access: models.ArticleAccessPublic}

	decision := gate.CanAccess(nil, article)
	assert.True(t, decision.Allowed)
	assert.False(t, decision.Metered)
}

func TestGate_InsiderArticleRequiresInsiderTier(t *testing.T) {
	store := freeReaderStore()
	store.sub = &models.Subscription{Status: models.SubscriptionStatusActive, Tier: models.TierCollective}
	gate := newTestGate(store)
	article := &models.Article{ID: 1, Access: models.ArticleAccessInsider}

	decision := gate.CanAccess(&Identity{AccountID: 7}, article)
	require.False(t, decision.Allowed)
	assert.Equal(t, ReasonTierRequired, decision.Reason)
	assert.Equal(t, string(TierInsider), decision.RequiredTier)
	assert.Equal(t, string(TierCollective), decision.Tier)
}

func TestGate_PaidTierBypassesMeter(t *testing.T) {
	store := freeReaderStore()
	store.sub = &models.Subscription{Status: models.SubscriptionStatusActive, Tier: models.TierCollective}
	gate := newTestGate(store)

	decision := gate.CanAccess(&Identity{AccountID: 7}, meteredArticle(1))
	require.True(t, decision.Allowed)
	assert.False(t, decision.Metered)
}

func TestGate_FreeTierMeteredQuota(t *testing.T) {
	store := freeReaderStore()
	gate := newTestGate(store)
	identity := &Identity{AccountID: 7}

	for i := uint(1); i <= 3; i++ {
		decision := gate.CanAccess(identity, meteredArticle(i))
		require.True(t, decision.Allowed, "article %d should be within quota", i)
		require.True(t, decision.Metered)
		require.NoError(t, gate.RecordView(identity, meteredArticle(i)))
	}

	decision := gate.CanAccess(identity, meteredArticle(4))
	require.False(t, decision.Allowed)
	assert.Equal(t, ReasonArticleLimitReached, decision.Reason)
}

func TestGate_RepeatViewsDoNotConsumeQuota(t *testing.T) {
	store := freeReaderStore()
	gate := newTestGate(store)
	identity := &Identity{AccountID: 7}

	for i := 0; i < 5; i++ {
		decision := gate.CanAccess(identity, meteredArticle(1))
		require.True(t, decision.Allowed)
		require.NoError(t, gate.RecordView(identity, meteredArticle(1)))
	}

	assert.Len(t, store.views, 1)
	decision := gate.CanAccess(identity, meteredArticle(2))
	assert.True(t, decision.Allowed)
}

func TestGate_QuotaResetsAtMonthBoundary(t *testing.T) {
	store := freeReaderStore()
	// Three distinct articles viewed in February.
	for _, id := range []uint{1, 2, 3} {
		store.views = append(store.views, models.ArticleView{
			ViewerKey: models.ViewerKeyForAccount(7),
			ArticleID: id,
			ViewDate:  "2026-02-20",
			ViewedAt:  time.Date(2026, 2, 20, 0, 0, 0, 0, time.UTC),
		})
	}
	gate := newTestGate(store)

	decision := gate.CanAccess(&Identity{AccountID: 7}, meteredArticle(9))
	require.True(t, decision.Allowed, "February views must not count against March")
	assert.True(t, decision.Metered)
}

func TestGate_AnonymousSessionIsMetered(t *testing.T) {
	store := &fakeStore{allowance: 3}
	gate := newTestGate(store)
	identity := &Identity{SessionID: "sess-1"}

	for i := uint(1); i <= 3; i++ {
		decision := gate.CanAccess(identity, meteredArticle(i))
		require.True(t, decision.Allowed)
		require.NoError(t, gate.RecordView(identity, meteredArticle(i)))
	}

	decision := gate.CanAccess(identity, meteredArticle(4))
	require.False(t, decision.Allowed)
	assert.Equal(t, ReasonArticleLimitReached, decision.Reason)
}

func TestGate_NoViewerKeyRequiresLogin(t *testing.T) {
	gate := newTestGate(&fakeStore{allowance: 3})

	decision := gate.CanAccess(nil, meteredArticle(1))
	require.False(t, decision.Allowed)
	assert.Equal(t, ReasonLoginRequired, decision.Reason)
}

func TestGate_FailsClosedOnStoreErrors(t *testing.T) {
	boom := errors.New("store unavailable")

	store := freeReaderStore()
	store.loadErr = boom
	decision := newTestGate(store).CanAccess(&Identity{AccountID: 7}, meteredArticle(1))
	require.False(t, decision.Allowed)
	assert.Equal(t, ReasonInternalError, decision.Reason)

	store = freeReaderStore()
	store.allowanceErr = boom
	decision = newTestGate(store).CanAccess(&Identity{AccountID: 7}, meteredArticle(1))
	require.False(t, decision.Allowed)
	assert.Equal(t, ReasonInternalError, decision.Reason)

	store = freeReaderStore()
	store.countErr = boom
	decision = newTestGate(store).CanAccess(&Identity{AccountID: 7}, meteredArticle(1))
	require.False(t, decision.Allowed)
	assert.Equal(t, ReasonInternalError, decision.Reason)
}

func TestGate_AdminReadsEverything(t *testing.T) {
	store := &fakeStore{account: &models.Account{ID: 7, Role: models.ROLE_ADMIN}}
	gate := newTestGate(store)

	decision := gate.CanAccess(&Identity{AccountID: 7}, &models.Article{ID: 1, Access: models.ArticleAccessInsider})
	require.True(t, decision.Allowed)
	assert.Equal(t, string(TierInsider), decision.Tier)
}
