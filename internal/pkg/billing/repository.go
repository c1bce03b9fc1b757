package billing

import (
	"context"
	"time"

	"github.com/pressline/insiderhub/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides DB operations used by the billing service. All calls
// made inside Transaction run against the same underlying transaction, which
// is what keeps the idempotency-ledger insert and the reconciliation write
// atomic as a pair.
type Repository interface {
	Transaction(ctx context.Context, fn func(Repository) error) error

	CreateProcessedEventIfNotExists(event *models.ProcessedEvent) (bool, error)
	SetProcessedEventOutcome(id uint, outcome string) error

	GetMemberByCustomerID(customerID string) (*models.Member, error)
	GetMemberByID(id uint) (*models.Member, error)
	GetMemberByAccountID(accountID uint) (*models.Member, error)
	CreateMember(member *models.Member) error
	SaveMember(member *models.Member) error

	GetAccountByID(id uint) (*models.Account, error)
	GetAccountByEmail(email string) (*models.Account, error)
	CreateAccount(account *models.Account) error
	LinkAccountMember(accountID, memberID uint) error

	GetSubscriptionForUpdate(provider, providerSubscriptionID string) (*models.Subscription, error)
	CreateSubscription(sub *models.Subscription) error
	SaveSubscription(sub *models.Subscription) error
	ListSubscriptionsByMember(memberID uint) ([]models.Subscription, error)
	ListPastDueSince(cutoff time.Time) ([]models.Subscription, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Transaction(ctx context.Context, fn func(Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormRepository{db: tx})
	})
}

// CreateProcessedEventIfNotExists is the atomic check-and-record of the
// idempotency guard: a unique-constraint insert that reports whether this
// call won the row. Two concurrent deliveries of the same event id cannot
// both see created=true.
func (r *gormRepository) CreateProcessedEventIfNotExists(event *models.ProcessedEvent) (bool, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *gormRepository) SetProcessedEventOutcome(id uint, outcome string) error {
	return r.db.Model(&models.ProcessedEvent{}).Where("id = ?", id).
		Update("outcome", outcome).Error
}

func (r *gormRepository) GetMemberByCustomerID(customerID string) (*models.Member, error) {
	var m models.Member
	err := r.db.Where("provider_customer_id = ?", customerID).First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *gormRepository) GetMemberByID(id uint) (*models.Member, error) {
	var m models.Member
	if err := r.db.First(&m, id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *gormRepository) GetMemberByAccountID(accountID uint) (*models.Member, error) {
	var m models.Member
	err := r.db.Where("account_id = ?", accountID).First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *gormRepository) CreateMember(member *models.Member) error {
	return r.db.Create(member).Error
}

func (r *gormRepository) SaveMember(member *models.Member) error {
	return r.db.Save(member).Error
}

func (r *gormRepository) GetAccountByID(id uint) (*models.Account, error) {
	var a models.Account
	if err := r.db.First(&a, id).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *gormRepository) GetAccountByEmail(email string) (*models.Account, error) {
	var a models.Account
	if err := r.db.Where("email = ?", email).First(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *gormRepository) CreateAccount(account *models.Account) error {
	return r.db.Create(account).Error
}

func (r *gormRepository) LinkAccountMember(accountID, memberID uint) error {
	return r.db.Model(&models.Account{}).Where("id = ?", accountID).
		Update("member_id", memberID).Error
}

// GetSubscriptionForUpdate locks the subscription row for the remainder of
// the enclosing transaction so concurrent events for the same subscription
// key are applied one after the other, never interleaved.
func (r *gormRepository) GetSubscriptionForUpdate(provider, providerSubscriptionID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("provider = ? AND provider_subscription_id = ?", provider, providerSubscriptionID).
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) CreateSubscription(sub *models.Subscription) error {
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_subscription_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"member_id",
			"provider_customer_id",
			"provider_price_ref",
			"tier",
			"billing_interval",
			"status",
			"current_period_start",
			"current_period_end",
			"cancel_at_period_end",
			"past_due_since",
			"raw_payload_json",
			"updated_at",
		}),
	}).Create(sub).Error
}

func (r *gormRepository) SaveSubscription(sub *models.Subscription) error {
	return r.db.Save(sub).Error
}

func (r *gormRepository) ListSubscriptionsByMember(memberID uint) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.Where("member_id = ?", memberID).Find(&subs).Error
	return subs, err
}

// ListPastDueSince returns subscriptions that went past_due before the
// cutoff, i.e. whose grace window has expired.
func (r *gormRepository) ListPastDueSince(cutoff time.Time) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.Where("status = ? AND past_due_since IS NOT NULL AND past_due_since < ?",
		models.SubscriptionStatusPastDue, cutoff).Find(&subs).Error
	return subs, err
}
