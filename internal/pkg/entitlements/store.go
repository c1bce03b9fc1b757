package entitlements

import (
	"errors"
	"strconv"
	"time"

	"github.com/pressline/insiderhub/app/models"
	"github.com/pressline/insiderhub/internal/pkg/cache"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	allowanceCacheKey = "paywall:monthly_allowance"
	allowanceCacheTTL = 5 * time.Minute
)

type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates the database-backed gate store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) LoadAccountEntitlement(accountID uint) (*models.Account, *models.Member, *models.Subscription, error) {
	var account models.Account
	if err := s.db.First(&account, accountID).Error; err != nil {
		return nil, nil, nil, err
	}

	var member models.Member
	err := s.db.Where("account_id = ?", accountID).First(&member).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &account, nil, nil, nil
		}
		return nil, nil, nil, err
	}

	var subs []models.Subscription
	if err := s.db.Where("member_id = ?", member.ID).Find(&subs).Error; err != nil {
		return nil, nil, nil, err
	}
	return &account, &member, models.AuthoritativeSubscription(subs), nil
}

func (s *gormStore) CountDistinctArticlesViewedSince(viewerKey string, since time.Time) (int, error) {
	var count int64
	err := s.db.Model(&models.ArticleView{}).
		Where("viewer_key = ? AND viewed_at >= ?", viewerKey, since).
		Distinct("article_id").
		Count(&count).Error
	return int(count), err
}

func (s *gormStore) InsertArticleView(view *models.ArticleView) error {
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "viewer_key"},
			{Name: "article_id"},
			{Name: "view_date"},
		},
		DoNothing: true,
	}).Create(view).Error
}

// MonthlyArticleAllowance reads the paywall allowance through a short-lived
// cache entry; the database singleton is the fallback, the fixed default the
// last resort.
func (s *gormStore) MonthlyArticleAllowance() (int, error) {
	if cached, err := cache.Get(allowanceCacheKey); err == nil {
		if n, convErr := strconv.Atoi(cached); convErr == nil {
			return n, nil
		}
	}

	allowance, err := models.GetMonthlyArticleAllowance(s.db)
	if err != nil {
		return 0, err
	}
	_ = cache.Set(allowanceCacheKey, strconv.Itoa(allowance), allowanceCacheTTL)
	return allowance, nil
}
