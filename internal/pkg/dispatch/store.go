package dispatch

import (
	"github.com/pressline/insiderhub/app/models"
	"gorm.io/gorm"
)

type gormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) FindActiveFulfillment(memberID uint) (*models.MagazineFulfillmentRecord, error) {
	var rec models.MagazineFulfillmentRecord
	err := s.db.Where("member_id = ? AND status = ?", memberID, models.FulfillmentStatusActive).
		Order("id DESC").
		First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *gormStore) CreateFulfillment(rec *models.MagazineFulfillmentRecord) error {
	return s.db.Create(rec).Error
}

func (s *gormStore) SaveFulfillment(rec *models.MagazineFulfillmentRecord) error {
	return s.db.Save(rec).Error
}

func (s *gormStore) ListRetryPendingFulfillments(limit int) ([]models.MagazineFulfillmentRecord, error) {
	var recs []models.MagazineFulfillmentRecord
	err := s.db.Where("dispatch_status = ?", models.FulfillmentDispatchRetryPending).
		Order("last_dispatch_at ASC").
		Limit(limit).
		Find(&recs).Error
	return recs, err
}

func (s *gormStore) CreateAuditEntry(entry *models.AuditEntry) error {
	return models.CreateAuditEntry(s.db, entry)
}

func (s *gormStore) CreateNotification(accountID uint, notificationType, content string, referenceID uint) error {
	return models.CreateNotification(s.db, accountID, notificationType, content, referenceID)
}

func (s *gormStore) GetAccountByID(id uint) (*models.Account, error) {
	var account models.Account
	if err := s.db.First(&account, id).Error; err != nil {
		return nil, err
	}
	return &account, nil
}
