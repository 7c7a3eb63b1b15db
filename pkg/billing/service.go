package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingkit/pkg/ledger"
)

// Service is the public interface of the billing engine. All operations are
// synchronous: they either fully commit or reject the attempt leaving every
// record unchanged.
type Service interface {
	// Plan registry
	CreatePlan(ctx context.Context, ownerID uuid.UUID, code string, price int64, term time.Duration, settlementAccountID uuid.UUID) (*Plan, error)
	GetPlan(ctx context.Context, planID uuid.UUID) (*Plan, error)
	GetPlanByCode(ctx context.Context, ownerID uuid.UUID, code string) (*Plan, error)

	// Subscription lifecycle
	CreateSubscription(ctx context.Context, subscriberID, planID uuid.UUID, delegatedAmount int64) (*Subscription, error)
	GetSubscription(ctx context.Context, subID uuid.UUID) (*Subscription, error)

	// ChargeSubscription is permissionless: any caller may trigger it, and
	// the NextChargeDueAt gate is the only thing standing between a keeper
	// and a debit.
	ChargeSubscription(ctx context.Context, subID uuid.UUID) (*ChargeResult, error)

	CancelSubscription(ctx context.Context, callerID, subID uuid.UUID) error
	UncancelSubscription(ctx context.Context, callerID, subID uuid.UUID) error
	CloseSubscription(ctx context.Context, callerID, subID uuid.UUID) (*ClosureResult, error)
}

type service struct {
	plans  PlanStore
	subs   SubscriptionStore
	tx     TxManager
	ledger *ledger.Ledger

	// platformAccount receives the fee share of every distribution.
	platformAccount uuid.UUID
	feeBps          int64
	clock           func() time.Time
	log             *slog.Logger
	locks           *keyedMutex
}

// ServiceOption configures optional service settings.
type ServiceOption func(*service)

// WithClock replaces the wall clock. Tests use this instead of sleeping
// through billing terms.
func WithClock(clock func() time.Time) ServiceOption {
	return func(s *service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithFeeBps overrides the platform fee in basis points.
// Panics on values outside [0, 10000) to fail fast on misconfiguration.
func WithFeeBps(bps int64) ServiceOption {
	return func(s *service) {
		if bps < 0 || bps >= bpsDenominator {
			panic(fmt.Sprintf("billing: fee must be in [0, %d) basis points, got %d", bpsDenominator, bps))
		}
		s.feeBps = bps
	}
}

// WithTxManager scopes multi-store mutations through the given manager.
// Transactional backends (pgstore) supply their own; the default is a
// pass-through over the service's stores.
func WithTxManager(tm TxManager) ServiceOption {
	return func(s *service) {
		if tm != nil {
			s.tx = tm
		}
	}
}

// WithLogger sets the structured logger used for charge and closure events.
func WithLogger(log *slog.Logger) ServiceOption {
	return func(s *service) {
		if log != nil {
			s.log = log
		}
	}
}

// NewService creates the billing engine over the given stores and ledger.
// Panics if any required dependency is nil or the platform account is unset,
// so misconfiguration surfaces at startup rather than mid-charge.
func NewService(plans PlanStore, subs SubscriptionStore, l *ledger.Ledger, platformAccount uuid.UUID, opts ...ServiceOption) Service {
	if plans == nil {
		panic("billing: PlanStore is required")
	}
	if subs == nil {
		panic("billing: SubscriptionStore is required")
	}
	if l == nil {
		panic("billing: ledger is required")
	}
	if platformAccount == uuid.Nil {
		panic("billing: platform fee account is required")
	}

	s := &service{
		plans:           plans,
		subs:            subs,
		tx:              NewMemTxManager(plans, subs),
		ledger:          l,
		platformAccount: platformAccount,
		feeBps:          DefaultFeeBps,
		clock:           func() time.Time { return time.Now().UTC() },
		log:             slog.Default(),
		locks:           newKeyedMutex(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// CreatePlan validates and stores a new plan. The plan's escrow wiring is
// allocated per subscription, so the plan record itself carries only the
// settlement destination.
func (s *service) CreatePlan(ctx context.Context, ownerID uuid.UUID, code string, price int64, term time.Duration, settlementAccountID uuid.UUID) (*Plan, error) {
	plan := &Plan{
		ID:                  uuid.New(),
		OwnerID:             ownerID,
		Code:                code,
		Price:               price,
		Term:                term,
		SettlementAccountID: settlementAccountID,
		CreatedAt:           s.clock(),
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	if err := s.plans.Create(ctx, plan); err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "plan created",
		slog.String("plan_id", plan.ID.String()),
		slog.String("code", plan.Code),
		slog.Int64("price", plan.Price),
		slog.Duration("term", plan.Term))
	return plan, nil
}

func (s *service) GetPlan(ctx context.Context, planID uuid.UUID) (*Plan, error) {
	return s.plans.GetByID(ctx, planID)
}

func (s *service) GetPlanByCode(ctx context.Context, ownerID uuid.UUID, code string) (*Plan, error) {
	return s.plans.GetByOwnerCode(ctx, ownerID, code)
}

// CreateSubscription enrolls a subscriber in a plan and records the bounded
// spend authorization the engine will debit against. The first charge comes
// due one full term after creation; billing is in arrears.
func (s *service) CreateSubscription(ctx context.Context, subscriberID, planID uuid.UUID, delegatedAmount int64) (*Subscription, error) {
	plan, err := s.plans.GetByID(ctx, planID)
	if err != nil {
		return nil, err
	}
	if delegatedAmount <= 0 {
		return nil, errors.Join(ErrInvalidAuthorization, fmt.Errorf("delegated amount must be positive, got %d", delegatedAmount))
	}

	now := s.clock()
	sub := &Subscription{
		ID:              uuid.New(),
		PlanID:          plan.ID,
		SubscriberID:    subscriberID,
		AuthorityID:     uuid.New(),
		EscrowAccountID: uuid.New(),
		Status:          StatusActive,
		PeriodStartedAt: now,
		NextChargeDueAt: now.Add(plan.Term),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err = s.tx.InTx(ctx, func(plans PlanStore, subs SubscriptionStore) error {
		if err := subs.Create(ctx, sub); err != nil {
			return err
		}
		return plans.AdjustActiveSubscriptions(ctx, plan.ID, 1)
	})
	if err != nil {
		return nil, err
	}

	// The grant follows the record commit. delegatedAmount was validated
	// positive above, so Approve cannot fail and strand a half-made
	// enrollment.
	if err := s.ledger.Approve(subscriberID, sub.AuthorityID, delegatedAmount); err != nil {
		return nil, errors.Join(ErrInvalidAuthorization, err)
	}

	s.log.InfoContext(ctx, "subscription created",
		slog.String("subscription_id", sub.ID.String()),
		slog.String("plan_id", plan.ID.String()),
		slog.Int64("delegated", delegatedAmount))
	return sub, nil
}

func (s *service) GetSubscription(ctx context.Context, subID uuid.UUID) (*Subscription, error) {
	return s.subs.GetByID(ctx, subID)
}

// ChargeSubscription attempts to collect one term's price. It debits what
// the authorization can cover, distributes the proceeds immediately, and
// advances the schedule by exactly one term. When nothing at all can be
// debited the subscription is flagged past-due and the schedule stands, so
// the next attempt retries the same period.
func (s *service) ChargeSubscription(ctx context.Context, subID uuid.UUID) (*ChargeResult, error) {
	unlock := s.locks.lock(subID)
	defer unlock()

	sub, err := s.subs.GetByID(ctx, subID)
	if err != nil {
		return nil, err
	}
	if sub.IsClosed() {
		return nil, ErrAlreadyClosed
	}

	now := s.clock()
	if now.Before(sub.NextChargeDueAt) {
		return nil, ErrNotDue
	}

	plan, err := s.plans.GetByID(ctx, sub.PlanID)
	if err != nil {
		return nil, err
	}

	available := min(
		s.ledger.Allowance(sub.SubscriberID, sub.AuthorityID),
		s.ledger.Balance(sub.SubscriberID),
	)

	if available <= 0 {
		sub.Status = StatusPastDue
		sub.UpdatedAt = now
		if err := s.subs.Save(ctx, sub); err != nil {
			if errors.Is(err, ErrStaleSubscription) {
				return nil, ErrNotDue
			}
			return nil, err
		}
		s.log.WarnContext(ctx, "charge collected nothing",
			slog.String("subscription_id", sub.ID.String()))
		return &ChargeResult{
			SubscriptionID:  sub.ID,
			Partial:         true,
			Status:          sub.Status,
			NextChargeDueAt: sub.NextChargeDueAt,
		}, nil
	}

	amount := min(plan.Price, available)
	partial := amount < plan.Price

	sub.Status = chargeOutcomeStatus(partial, available-amount, plan.Price)
	sub.advancePeriod(plan.Term)
	sub.UpdatedAt = now

	ownerShare, platformShare, err := s.settle(sub, plan, amount, func(*ledger.Tx) error {
		return s.subs.Save(ctx, sub)
	})
	if err != nil {
		// Another process committed a charge for this term between our
		// read and our write; its debit stands and ours rolled back.
		if errors.Is(err, ErrStaleSubscription) {
			return nil, ErrNotDue
		}
		return nil, err
	}

	s.log.InfoContext(ctx, "subscription charged",
		slog.String("subscription_id", sub.ID.String()),
		slog.Int64("collected", amount),
		slog.Int64("owner_share", ownerShare),
		slog.Int64("platform_share", platformShare),
		slog.Bool("partial", partial),
		slog.String("status", string(sub.Status)))

	return &ChargeResult{
		SubscriptionID:  sub.ID,
		Collected:       amount,
		OwnerShare:      ownerShare,
		PlatformShare:   platformShare,
		Partial:         partial,
		Status:          sub.Status,
		NextChargeDueAt: sub.NextChargeDueAt,
	}, nil
}

// CancelSubscription records cancellation intent without touching the
// schedule; the subscription keeps billing until explicitly closed.
// Idempotent: cancelling an already-flagged subscription is a no-op.
func (s *service) CancelSubscription(ctx context.Context, callerID, subID uuid.UUID) error {
	unlock := s.locks.lock(subID)
	defer unlock()

	sub, err := s.subs.GetByID(ctx, subID)
	if err != nil {
		return err
	}
	if sub.IsClosed() {
		return ErrAlreadyClosed
	}
	if callerID != sub.SubscriberID {
		return ErrUnauthorized
	}
	if sub.PendingCancellation {
		return nil
	}

	now := s.clock()
	sub.PendingCancellation = true
	sub.CancelledAt = &now
	sub.UpdatedAt = now
	return s.subs.Save(ctx, sub)
}

// UncancelSubscription clears a pending cancellation, restoring the
// subscription to its plain Active or PastDue state.
func (s *service) UncancelSubscription(ctx context.Context, callerID, subID uuid.UUID) error {
	unlock := s.locks.lock(subID)
	defer unlock()

	sub, err := s.subs.GetByID(ctx, subID)
	if err != nil {
		return err
	}
	if sub.IsClosed() {
		return ErrAlreadyClosed
	}
	if callerID != sub.SubscriberID {
		return ErrUnauthorized
	}
	if !sub.PendingCancellation {
		return ErrNotCancelled
	}

	sub.PendingCancellation = false
	sub.CancelledAt = nil
	sub.UpdatedAt = s.clock()
	return s.subs.Save(ctx, sub)
}

// CloseSubscription terminates the subscription immediately. The owner is
// paid the time-proportional value of the period in progress (capped at what
// the authorization can still cover), the remaining authorization is
// revoked, and the record becomes terminal.
func (s *service) CloseSubscription(ctx context.Context, callerID, subID uuid.UUID) (*ClosureResult, error) {
	unlock := s.locks.lock(subID)
	defer unlock()

	sub, err := s.subs.GetByID(ctx, subID)
	if err != nil {
		return nil, err
	}
	if sub.IsClosed() {
		return nil, ErrAlreadyClosed
	}
	if callerID != sub.SubscriberID {
		return nil, ErrUnauthorized
	}

	plan, err := s.plans.GetByID(ctx, sub.PlanID)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	earned := prorate(plan.Price, plan.Term, now.Sub(sub.PeriodStartedAt))

	available := min(
		s.ledger.Allowance(sub.SubscriberID, sub.AuthorityID),
		s.ledger.Balance(sub.SubscriberID),
	)
	collected := min(earned, available)

	sub.Status = StatusClosed
	sub.ClosedAt = &now
	sub.UpdatedAt = now

	// The final settlement, the revocation, and the record commit form one
	// unit: a failed store write rolls every fund movement back.
	ownerShare, platformShare, err := s.settle(sub, plan, collected, func(tx *ledger.Tx) error {
		tx.Revoke(sub.SubscriberID, sub.AuthorityID)
		return s.tx.InTx(ctx, func(plans PlanStore, subs SubscriptionStore) error {
			if err := subs.Save(ctx, sub); err != nil {
				return err
			}
			return plans.AdjustActiveSubscriptions(ctx, plan.ID, -1)
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "subscription closed",
		slog.String("subscription_id", sub.ID.String()),
		slog.Int64("earned", earned),
		slog.Int64("collected", collected),
		slog.Int64("owner_share", ownerShare),
		slog.Int64("platform_share", platformShare))

	return &ClosureResult{
		SubscriptionID: sub.ID,
		Earned:         earned,
		Collected:      collected,
		OwnerShare:     ownerShare,
		PlatformShare:  platformShare,
		ClosedAt:       now,
	}, nil
}

// settle debits amount from the subscriber into the subscription's escrow,
// distributes it to the settlement and platform accounts, and runs commit
// inside the same atomic unit, so a commit error rolls the fund movement
// back and escrow is zero on return either way. A zero amount settles
// nothing but still runs commit atomically.
func (s *service) settle(sub *Subscription, plan *Plan, amount int64, commit func(tx *ledger.Tx) error) (ownerShare, platformShare int64, err error) {
	ownerShare, platformShare = SplitAmount(amount, s.feeBps)
	err = s.ledger.Atomic(func(tx *ledger.Tx) error {
		if amount > 0 {
			if err := tx.TransferFrom(sub.AuthorityID, sub.SubscriberID, sub.EscrowAccountID, amount); err != nil {
				return err
			}
			if ownerShare > 0 {
				if err := tx.Transfer(sub.EscrowAccountID, plan.SettlementAccountID, ownerShare); err != nil {
					return err
				}
			}
			if platformShare > 0 {
				if err := tx.Transfer(sub.EscrowAccountID, s.platformAccount, platformShare); err != nil {
					return err
				}
			}
		}
		return commit(tx)
	})
	if err != nil {
		return 0, 0, err
	}
	return ownerShare, platformShare, nil
}

// prorate computes the consumed value of a partially-elapsed period at
// one-second resolution, clamped to [0, price].
func prorate(price int64, term time.Duration, elapsed time.Duration) int64 {
	termSec := int64(term / time.Second)
	elapsedSec := int64(elapsed / time.Second)
	if elapsedSec <= 0 {
		return 0
	}
	if elapsedSec >= termSec {
		return price
	}
	return price * elapsedSec / termSec
}
