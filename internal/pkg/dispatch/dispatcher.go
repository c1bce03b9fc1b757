package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/pressline/insiderhub/app/models"
	"github.com/pressline/insiderhub/internal/pkg/billing"
	"github.com/pressline/insiderhub/internal/pkg/clock"
	"github.com/pressline/insiderhub/internal/pkg/fulfillment"
	"github.com/pressline/insiderhub/internal/pkg/mail"
	"gorm.io/gorm"
)

const dispatchTimeout = 15 * time.Second

// Store provides the DB operations the dispatcher needs.
type Store interface {
	FindActiveFulfillment(memberID uint) (*models.MagazineFulfillmentRecord, error)
	CreateFulfillment(rec *models.MagazineFulfillmentRecord) error
	SaveFulfillment(rec *models.MagazineFulfillmentRecord) error
	ListRetryPendingFulfillments(limit int) ([]models.MagazineFulfillmentRecord, error)
	CreateAuditEntry(entry *models.AuditEntry) error
	CreateNotification(accountID uint, notificationType, content string, referenceID uint) error
	GetAccountByID(id uint) (*models.Account, error)
}

// Dispatcher turns committed tier changes into side effects: magazine
// fulfillment transitions, audit entries and user notifications. Everything
// here is best-effort; the billing state that triggered it has already
// committed and is never rolled back from this path.
type Dispatcher struct {
	store     Store
	fulfiller fulfillment.Client
	clock     clock.Clock
}

func NewDispatcher(store Store, fulfiller fulfillment.Client, clk clock.Clock) *Dispatcher {
	return &Dispatcher{store: store, fulfiller: fulfiller, clock: clk}
}

// NewDispatcherFromDB wires the dispatcher against GORM and the env-configured
// fulfillment collaborator.
func NewDispatcherFromDB(db *gorm.DB) *Dispatcher {
	return NewDispatcher(NewGormStore(db), fulfillment.NewClientFromEnv(), clock.System())
}

// TierChanged implements billing.Dispatcher.
func (d *Dispatcher) TierChanged(change billing.TierChange) {
	d.recordAudit(change)
	d.notify(change)

	wasInsider := change.FromTier == models.TierInsider
	isInsider := change.ToTier == models.TierInsider
	switch {
	case isInsider && !wasInsider:
		d.activateFulfillment(change)
	case wasInsider && !isInsider:
		d.cancelFulfillment(change)
	}
}

func (d *Dispatcher) recordAudit(change billing.TierChange) {
	entry := &models.AuditEntry{
		Reference:       uuid.NewString(),
		MemberID:        change.MemberID,
		AccountID:       change.AccountID,
		EventKind:       string(change.EventKind),
		SubscriptionRef: change.SubscriptionRef,
		FromTier:        change.FromTier,
		ToTier:          change.ToTier,
	}
	if err := d.store.CreateAuditEntry(entry); err != nil {
		log.Errorf("[Dispatch] audit entry for member %d failed: %v", change.MemberID, err)
	}
}

func (d *Dispatcher) notify(change billing.TierChange) {
	content := fmt.Sprintf("Your membership changed from %s to %s.", change.FromTier, change.ToTier)
	if err := d.store.CreateNotification(change.AccountID, "membership", content, change.MemberID); err != nil {
		log.Errorf("[Dispatch] notification for account %d failed: %v", change.AccountID, err)
	}

	account, err := d.store.GetAccountByID(change.AccountID)
	if err != nil || account.Email == "" {
		return
	}
	if err := mail.SendMail(account.Email, "Your membership has changed", content); err != nil {
		log.Warnf("[Dispatch] membership mail to account %d failed: %v", change.AccountID, err)
	}
}

// activateFulfillment ensures exactly one active fulfillment record exists
// for the member and dispatches the request. A dispatch failure leaves the
// record retry_pending for the background worker instead of losing the
// requirement.
func (d *Dispatcher) activateFulfillment(change billing.TierChange) {
	existing, err := d.store.FindActiveFulfillment(change.MemberID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		log.Errorf("[Dispatch] fulfillment lookup for member %d failed: %v", change.MemberID, err)
		return
	}
	if existing != nil {
		return
	}

	rec := &models.MagazineFulfillmentRecord{
		MemberID:               change.MemberID,
		ProviderSubscriptionID: change.SubscriptionRef,
		BillingInterval:        change.BillingInterval,
		Status:                 models.FulfillmentStatusActive,
		DispatchStatus:         models.FulfillmentDispatchPending,
		SubscriptionStartedAt:  change.PeriodStart,
	}
	if change.Shipping != nil {
		rec.ShippingName = change.Shipping.Name
		rec.ShippingStreet = change.Shipping.Street
		rec.ShippingCity = change.Shipping.City
		rec.ShippingPostalCode = change.Shipping.PostalCode
		rec.ShippingCountry = change.Shipping.Country
	}
	if err := d.store.CreateFulfillment(rec); err != nil {
		log.Errorf("[Dispatch] fulfillment record for member %d failed: %v", change.MemberID, err)
		return
	}
	d.sendFulfillment(rec)
}

func (d *Dispatcher) cancelFulfillment(change billing.TierChange) {
	rec, err := d.store.FindActiveFulfillment(change.MemberID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Errorf("[Dispatch] fulfillment lookup for member %d failed: %v", change.MemberID, err)
		}
		return
	}
	if rec == nil {
		return
	}

	rec.Status = models.FulfillmentStatusCanceled
	rec.DispatchStatus = models.FulfillmentDispatchPending
	if err := d.store.SaveFulfillment(rec); err != nil {
		log.Errorf("[Dispatch] fulfillment cancel for member %d failed: %v", change.MemberID, err)
		return
	}
	d.sendCancellation(rec)
}

func (d *Dispatcher) sendFulfillment(rec *models.MagazineFulfillmentRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	err := d.fulfiller.RequestFulfillment(ctx, fulfillment.Request{
		SubscriptionRef:    rec.ProviderSubscriptionID,
		Tier:               models.TierInsider,
		BillingInterval:    rec.BillingInterval,
		StartedAt:          rec.SubscriptionStartedAt,
		ShippingName:       rec.ShippingName,
		ShippingStreet:     rec.ShippingStreet,
		ShippingCity:       rec.ShippingCity,
		ShippingPostalCode: rec.ShippingPostalCode,
		ShippingCountry:    rec.ShippingCountry,
	})
	d.finishDispatch(rec, err)
}

func (d *Dispatcher) sendCancellation(rec *models.MagazineFulfillmentRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	err := d.fulfiller.CancelFulfillment(ctx, fulfillment.Cancellation{
		SubscriptionRef: rec.ProviderSubscriptionID,
		Reason:          "tier_downgrade",
	})
	d.finishDispatch(rec, err)
}

func (d *Dispatcher) finishDispatch(rec *models.MagazineFulfillmentRecord, dispatchErr error) {
	now := d.clock.Now()
	rec.DispatchAttempts++
	rec.LastDispatchAt = &now
	if dispatchErr != nil {
		log.Warnf("[Dispatch] fulfillment dispatch for subscription %s failed, will retry: %v",
			rec.ProviderSubscriptionID, dispatchErr)
		rec.DispatchStatus = models.FulfillmentDispatchRetryPending
	} else {
		rec.DispatchStatus = models.FulfillmentDispatchSent
	}
	if err := d.store.SaveFulfillment(rec); err != nil {
		log.Errorf("[Dispatch] fulfillment record update for subscription %s failed: %v",
			rec.ProviderSubscriptionID, err)
	}
}

// ProcessRetryPending re-dispatches fulfillment records whose last outbound
// call failed. Called periodically by the background worker.
func (d *Dispatcher) ProcessRetryPending(limit int) (int, error) {
	pending, err := d.store.ListRetryPendingFulfillments(limit)
	if err != nil {
		return 0, err
	}
	sent := 0
	for i := range pending {
		rec := &pending[i]
		if rec.Status == models.FulfillmentStatusActive {
			d.sendFulfillment(rec)
		} else {
			d.sendCancellation(rec)
		}
		if rec.DispatchStatus == models.FulfillmentDispatchSent {
			sent++
		}
	}
	return sent, nil
}
