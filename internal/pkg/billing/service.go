package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/pressline/insiderhub/app/models"
	"github.com/pressline/insiderhub/internal/pkg/clock"
	"github.com/pressline/insiderhub/internal/pkg/entitlements"
	"github.com/pressline/insiderhub/internal/pkg/env"
	"gorm.io/gorm"
)

// ErrDuplicateEvent signals that the idempotency ledger already holds the
// event. Callers acknowledge it as a successful no-op.
var ErrDuplicateEvent = errors.New("event already processed")

// DefaultGracePeriodDays is how long a past_due subscription keeps its tier
// before the sweep downgrades the member.
const DefaultGracePeriodDays = 14

// Service is the subscription reconciler: it applies normalized provider
// events to the Subscription/Member pair inside one transaction, guarded by
// the idempotency ledger, and hands committed tier changes to the
// dispatcher.
type Service struct {
	repo        Repository
	clock       clock.Clock
	dispatcher  Dispatcher
	gracePeriod time.Duration
}

// NewService creates a reconciler from an injected repository.
func NewService(repo Repository, clk clock.Clock, dispatcher Dispatcher) *Service {
	if dispatcher == nil {
		dispatcher = NopDispatcher{}
	}
	graceDays := env.GetEnvInt("BILLING_GRACE_PERIOD_DAYS", DefaultGracePeriodDays)
	return &Service{
		repo:        repo,
		clock:       clk,
		dispatcher:  dispatcher,
		gracePeriod: time.Duration(graceDays) * 24 * time.Hour,
	}
}

// NewServiceFromDB creates a reconciler from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, dispatcher Dispatcher) *Service {
	return NewService(NewRepository(db), clock.System(), dispatcher)
}

// Result reports what processing one event did.
type Result struct {
	Duplicate bool
	Outcome   string
	MemberID  uint
}

// ProcessEvent applies one normalized provider event exactly once. The
// ledger insert and the reconciliation writes share a transaction: a failed
// reconciliation rolls the ledger row back too, so the provider's retry is
// not swallowed as a duplicate. A transaction error surfaces to the caller
// as retriable.
func (s *Service) ProcessEvent(ctx context.Context, ev *Event) (*Result, error) {
	if ev == nil {
		return nil, errors.New("event is required")
	}
	eventID := strings.TrimSpace(ev.ProviderEventID)
	if eventID == "" {
		sum := sha256.Sum256([]byte(ev.RawPayloadJSON))
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	res := &Result{}
	var change *TierChange
	err := s.repo.Transaction(ctx, func(r Repository) error {
		ledger := &models.ProcessedEvent{
			Provider:        ev.Provider,
			ProviderEventID: eventID,
			EventKind:       string(ev.Kind),
			PayloadJSON:     ev.RawPayloadJSON,
		}
		created, err := r.CreateProcessedEventIfNotExists(ledger)
		if err != nil {
			return err
		}
		if !created {
			return ErrDuplicateEvent
		}

		if ev.Kind == EventUnknown {
			log.Infof("[Billing] ignoring unknown provider event %s", eventID)
			res.Outcome = models.EventOutcomeIgnored
			return r.SetProcessedEventOutcome(ledger.ID, res.Outcome)
		}

		outcome, ch, err := s.apply(r, ev)
		if err != nil {
			return err
		}
		change = ch
		res.Outcome = outcome
		if ch != nil {
			res.MemberID = ch.MemberID
		}
		return r.SetProcessedEventOutcome(ledger.ID, outcome)
	})
	if errors.Is(err, ErrDuplicateEvent) {
		res.Duplicate = true
		res.Outcome = models.EventOutcomeNoOp
		return res, nil
	}
	if err != nil {
		return nil, err
	}

	// Side effects run strictly after commit; their failure never unwinds
	// billing state.
	if change != nil {
		s.dispatcher.TierChanged(*change)
	}
	return res, nil
}

func (s *Service) apply(r Repository, ev *Event) (string, *TierChange, error) {
	switch ev.Kind {
	case EventCheckoutCompleted:
		return s.applyCheckoutCompleted(r, ev)
	case EventSubscriptionUpserted:
		return s.applySubscriptionUpserted(r, ev)
	case EventSubscriptionCanceled:
		return s.applySubscriptionCanceled(r, ev)
	case EventInvoicePaid:
		return s.applyInvoicePaid(r, ev)
	case EventInvoiceFailed:
		return s.applyInvoiceFailed(r, ev)
	default:
		return models.EventOutcomeIgnored, nil, nil
	}
}

func (s *Service) applyCheckoutCompleted(r Repository, ev *Event) (string, *TierChange, error) {
	if ev.CustomerID == "" {
		log.Warnf("[Billing] checkout event %s has no customer reference", ev.ProviderEventID)
		return models.EventOutcomeNoOp, nil, nil
	}
	member, err := s.resolveOrCreateMember(r, ev)
	if err != nil {
		return "", nil, err
	}

	subID := ev.SubscriptionID
	if subID == "" {
		subID = "cus:" + ev.CustomerID
	}
	sub := &models.Subscription{
		MemberID:               member.ID,
		Provider:               ev.Provider,
		ProviderSubscriptionID: subID,
		ProviderCustomerID:     ev.CustomerID,
		ProviderPriceRef:       ev.PriceRef,
		Tier:                   normalizeTier(ev.Tier),
		BillingInterval:        normalizeInterval(ev.BillingInterval),
		Status:                 normalizeStatus(ev.Status),
		CurrentPeriodStart:     ev.CurrentPeriodStart,
		CurrentPeriodEnd:       ev.CurrentPeriodEnd,
		CancelAtPeriodEnd:      ev.CancelAtPeriodEnd,
		RawPayloadJSON:         ev.RawPayloadJSON,
	}
	if err := r.CreateSubscription(sub); err != nil {
		return "", nil, err
	}

	// A completed checkout supersedes any trial window.
	member.TrialStartsAt = nil
	member.TrialEndsAt = nil

	change, err := s.recomputeMember(r, member, ev)
	if err != nil {
		return "", nil, err
	}
	return models.EventOutcomeApplied, change, nil
}

func (s *Service) applySubscriptionUpserted(r Repository, ev *Event) (string, *TierChange, error) {
	if ev.SubscriptionID == "" {
		log.Warnf("[Billing] subscription event %s has no subscription reference", ev.ProviderEventID)
		return models.EventOutcomeNoOp, nil, nil
	}

	now := s.clock.Now()
	sub, err := r.GetSubscriptionForUpdate(ev.Provider, ev.SubscriptionID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil, err
		}
		// Provider-initiated subscription with no prior checkout: create the
		// row, and the member along with it on first customer sighting.
		if ev.CustomerID == "" {
			log.Warnf("[Billing] subscription event %s references no customer; cannot create", ev.ProviderEventID)
			return models.EventOutcomeNoOp, nil, nil
		}
		member, err := s.resolveOrCreateMember(r, ev)
		if err != nil {
			return "", nil, err
		}
		sub = &models.Subscription{
			MemberID:               member.ID,
			Provider:               ev.Provider,
			ProviderSubscriptionID: ev.SubscriptionID,
		}
	}

	if ev.CustomerID != "" {
		sub.ProviderCustomerID = ev.CustomerID
	}
	if ev.PriceRef != "" {
		sub.ProviderPriceRef = ev.PriceRef
	}
	if ev.Tier != "" {
		sub.Tier = normalizeTier(ev.Tier)
	}
	if ev.BillingInterval != "" {
		sub.BillingInterval = normalizeInterval(ev.BillingInterval)
	}
	newStatus := normalizeStatus(ev.Status)
	if newStatus == models.SubscriptionStatusPastDue {
		if sub.PastDueSince == nil {
			sub.PastDueSince = &now
		}
	} else {
		sub.PastDueSince = nil
	}
	sub.Status = newStatus
	sub.CurrentPeriodStart = ev.CurrentPeriodStart
	sub.CurrentPeriodEnd = ev.CurrentPeriodEnd
	sub.CancelAtPeriodEnd = ev.CancelAtPeriodEnd
	sub.RawPayloadJSON = ev.RawPayloadJSON
	if err := r.CreateSubscription(sub); err != nil {
		return "", nil, err
	}

	member, err := r.GetMemberByID(sub.MemberID)
	if err != nil {
		return "", nil, err
	}
	change, err := s.recomputeMember(r, member, ev)
	if err != nil {
		return "", nil, err
	}
	return models.EventOutcomeApplied, change, nil
}

func (s *Service) applySubscriptionCanceled(r Repository, ev *Event) (string, *TierChange, error) {
	sub, err := r.GetSubscriptionForUpdate(ev.Provider, ev.SubscriptionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Expected under event-ordering variance; acknowledged, not fatal.
			log.Warnf("[Billing] cancel event %s for unknown subscription %s", ev.ProviderEventID, ev.SubscriptionID)
			return models.EventOutcomeNoOp, nil, nil
		}
		return "", nil, err
	}
	return s.cancelSubscription(r, sub, ev)
}

func (s *Service) cancelSubscription(r Repository, sub *models.Subscription, ev *Event) (string, *TierChange, error) {
	sub.Status = models.SubscriptionStatusCanceled
	sub.PastDueSince = nil
	if err := r.SaveSubscription(sub); err != nil {
		return "", nil, err
	}
	member, err := r.GetMemberByID(sub.MemberID)
	if err != nil {
		return "", nil, err
	}
	change, err := s.recomputeMember(r, member, ev)
	if err != nil {
		return "", nil, err
	}
	return models.EventOutcomeApplied, change, nil
}

func (s *Service) applyInvoicePaid(r Repository, ev *Event) (string, *TierChange, error) {
	sub, err := r.GetSubscriptionForUpdate(ev.Provider, ev.SubscriptionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warnf("[Billing] invoice payment for unknown subscription %s", ev.SubscriptionID)
			return models.EventOutcomeNoOp, nil, nil
		}
		return "", nil, err
	}
	// Touch last-updated only; tier is untouched.
	if err := r.SaveSubscription(sub); err != nil {
		return "", nil, err
	}
	return models.EventOutcomeApplied, nil, nil
}

func (s *Service) applyInvoiceFailed(r Repository, ev *Event) (string, *TierChange, error) {
	sub, err := r.GetSubscriptionForUpdate(ev.Provider, ev.SubscriptionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warnf("[Billing] failed invoice for unknown subscription %s", ev.SubscriptionID)
			return models.EventOutcomeNoOp, nil, nil
		}
		return "", nil, err
	}

	now := s.clock.Now()
	sub.Status = models.SubscriptionStatusPastDue
	if sub.PastDueSince == nil {
		sub.PastDueSince = &now
	}
	if err := r.SaveSubscription(sub); err != nil {
		return "", nil, err
	}

	// Tier is not revoked here; the grace sweep owns the downgrade.
	member, err := r.GetMemberByID(sub.MemberID)
	if err != nil {
		return "", nil, err
	}
	change, err := s.recomputeMember(r, member, ev)
	if err != nil {
		return "", nil, err
	}
	return models.EventOutcomeApplied, change, nil
}

// resolveOrCreateMember finds the member for the event's provider customer
// reference, creating member (and, when no account matches the checkout
// email, a placeholder account) on first sighting.
func (s *Service) resolveOrCreateMember(r Repository, ev *Event) (*models.Member, error) {
	member, err := r.GetMemberByCustomerID(ev.CustomerID)
	if err == nil {
		return member, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	var account *models.Account
	if ev.CustomerEmail != "" {
		account, err = r.GetAccountByEmail(ev.CustomerEmail)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	if account == nil {
		email := ev.CustomerEmail
		if email == "" {
			email = ev.CustomerID + "@unlinked.invalid"
		}
		name := ev.CustomerName
		if name == "" {
			name = email
		}
		account = &models.Account{
			Name:     name,
			Email:    email,
			Password: uuid.NewString(),
			Role:     models.ROLE_USER,
			Status:   models.STATUS_INACTIVE,
		}
		if err := r.CreateAccount(account); err != nil {
			return nil, err
		}
	}

	// An account keeps at most one member for its lifetime.
	member, err = r.GetMemberByAccountID(account.ID)
	if err == nil {
		if member.ProviderCustomerID == "" {
			member.ProviderCustomerID = ev.CustomerID
			if err := r.SaveMember(member); err != nil {
				return nil, err
			}
		}
		return member, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	member = &models.Member{
		AccountID:          account.ID,
		ProviderCustomerID: ev.CustomerID,
		Tier:               models.TierFree,
		MembershipStatus:   models.MembershipStatusInactive,
	}
	if err := r.CreateMember(member); err != nil {
		return nil, err
	}
	if err := r.LinkAccountMember(account.ID, member.ID); err != nil {
		return nil, err
	}
	return member, nil
}

// recomputeMember derives the member's tier and status from the post-write
// authoritative subscription and persists them in the same transaction as
// the subscription write. Returns a TierChange when the tier moved.
func (s *Service) recomputeMember(r Repository, member *models.Member, ev *Event) (*TierChange, error) {
	subs, err := r.ListSubscriptionsByMember(member.ID)
	if err != nil {
		return nil, err
	}
	account, err := r.GetAccountByID(member.AccountID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	authoritative := AuthoritativeSubscription(subs)
	newTier := string(entitlements.ResolveTier(account, member, authoritative, now))

	newStatus := models.MembershipStatusInactive
	if account.IsAdministrative() || member.InTrialWindow(now) {
		newStatus = models.MembershipStatusActive
	} else if authoritative != nil && authoritative.IsEntitling() {
		newStatus = models.MembershipStatusActive
	}

	if newTier != models.TierFree && !account.IsAdministrative() &&
		authoritative == nil && !member.InTrialWindow(now) {
		return nil, fmt.Errorf("member %d: tier %s without authoritative subscription", member.ID, newTier)
	}

	fromTier := member.Tier
	member.Tier = newTier
	member.MembershipStatus = newStatus
	if err := r.SaveMember(member); err != nil {
		return nil, err
	}

	if fromTier == newTier {
		return nil, nil
	}

	change := &TierChange{
		MemberID:  member.ID,
		AccountID: member.AccountID,
		FromTier:  fromTier,
		ToTier:    newTier,
		EventKind: ev.Kind,
		Shipping:  ev.Shipping,
	}
	if authoritative != nil {
		change.SubscriptionRef = authoritative.ProviderSubscriptionID
		change.BillingInterval = authoritative.BillingInterval
		change.PeriodStart = authoritative.CurrentPeriodStart
	} else {
		change.SubscriptionRef = ev.SubscriptionID
		change.BillingInterval = normalizeInterval(ev.BillingInterval)
	}
	return change, nil
}

// SweepPastDueGrace cancels subscriptions whose past_due grace window has
// expired, downgrading the member through the normal cancel path so audit
// and fulfillment side effects fire. Returns how many members it downgraded.
func (s *Service) SweepPastDueGrace(ctx context.Context) (int, error) {
	cutoff := s.clock.Now().Add(-s.gracePeriod)
	expired, err := s.repo.ListPastDueSince(cutoff)
	if err != nil {
		return 0, err
	}

	downgraded := 0
	for i := range expired {
		ref := expired[i].ProviderSubscriptionID
		provider := expired[i].Provider
		var change *TierChange
		err := s.repo.Transaction(ctx, func(r Repository) error {
			sub, err := r.GetSubscriptionForUpdate(provider, ref)
			if err != nil {
				return err
			}
			if sub.Status != models.SubscriptionStatusPastDue {
				return nil
			}
			_, ch, err := s.cancelSubscription(r, sub, &Event{
				Provider:       provider,
				Kind:           EventSubscriptionCanceled,
				SubscriptionID: ref,
			})
			change = ch
			return err
		})
		if err != nil {
			log.Errorf("[Billing] grace sweep failed for subscription %s: %v", ref, err)
			continue
		}
		if change != nil {
			s.dispatcher.TierChanged(*change)
			downgraded++
		}
	}
	return downgraded, nil
}

// MembershipSummary is the read-path view of a member's standing.
type MembershipSummary struct {
	Tier              string     `json:"tier"`
	MembershipStatus  string     `json:"membership_status"`
	SubscriptionState string     `json:"subscription_state,omitempty"`
	BillingInterval   string     `json:"billing_interval,omitempty"`
	RenewsAt          *time.Time `json:"renews_at,omitempty"`
	CancelAtPeriodEnd bool       `json:"cancel_at_period_end"`
}

// GetMembershipSummary returns the current tier and a human-readable
// subscription summary for an account.
func (s *Service) GetMembershipSummary(ctx context.Context, accountID uint) (*MembershipSummary, error) {
	_ = ctx
	account, err := s.repo.GetAccountByID(accountID)
	if err != nil {
		return nil, err
	}
	member, err := s.repo.GetMemberByAccountID(accountID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	summary := &MembershipSummary{
		Tier:             models.TierFree,
		MembershipStatus: models.MembershipStatusInactive,
	}
	var authoritative *models.Subscription
	if member != nil {
		summary.MembershipStatus = member.MembershipStatus
		subs, err := s.repo.ListSubscriptionsByMember(member.ID)
		if err != nil {
			return nil, err
		}
		authoritative = AuthoritativeSubscription(subs)
	}
	summary.Tier = string(entitlements.ResolveTier(account, member, authoritative, s.clock.Now()))
	if account.IsAdministrative() {
		summary.MembershipStatus = models.MembershipStatusActive
	}
	if authoritative != nil {
		summary.SubscriptionState = authoritative.Status
		summary.BillingInterval = authoritative.BillingInterval
		summary.RenewsAt = authoritative.CurrentPeriodEnd
		summary.CancelAtPeriodEnd = authoritative.CancelAtPeriodEnd
	}
	return summary, nil
}
