package billing

import (
	"time"

	"github.com/google/uuid"
)

// Subscription tracks one subscriber's enrollment in a plan: its billing
// schedule, lifecycle status, and the ledger identities the engine uses to
// move funds on the subscriber's behalf.
//
// AuthorityID is the delegate identity the subscriber's spend authorization
// names; each subscription gets its own so authorizations never bleed across
// subscriptions. EscrowAccountID holds funds only within a single charge or
// closure and is zero between operations.
type Subscription struct {
	ID                  uuid.UUID
	PlanID              uuid.UUID
	SubscriberID        uuid.UUID
	AuthorityID         uuid.UUID
	EscrowAccountID     uuid.UUID
	Status              SubscriptionStatus
	PendingCancellation bool
	PeriodStartedAt     time.Time // most recent successful charge, or creation time
	NextChargeDueAt     time.Time // PeriodStartedAt + plan term
	CreatedAt           time.Time
	UpdatedAt           time.Time
	CancelledAt         *time.Time // set while the cancellation flag is pending
	ClosedAt            *time.Time

	// Version guards cross-process writes: Save succeeds only when the
	// stored record still carries the version the caller read, so two
	// processes racing on one record cannot both commit.
	Version int64
}

func (s *Subscription) IsActive() bool {
	return s.Status == StatusActive
}

func (s *Subscription) IsPastDue() bool {
	return s.Status == StatusPastDue
}

func (s *Subscription) IsClosed() bool {
	return s.Status == StatusClosed
}

// IsDue reports whether a charge may be attempted at the given time.
func (s *Subscription) IsDue(now time.Time) bool {
	return !s.IsClosed() && !now.Before(s.NextChargeDueAt)
}

// advancePeriod moves the schedule forward exactly one term. Catching up on
// several missed terms takes one charge call per term.
func (s *Subscription) advancePeriod(term time.Duration) {
	s.PeriodStartedAt = s.PeriodStartedAt.Add(term)
	s.NextChargeDueAt = s.PeriodStartedAt.Add(term)
}

// chargeOutcomeStatus is the lifecycle transition applied after a debit.
// A partial collection always flags the subscription past-due; a full
// collection flags it past-due when the remaining authorization cannot cover
// one more full period, and returns it to plain active otherwise.
func chargeOutcomeStatus(partial bool, remaining, price int64) SubscriptionStatus {
	if partial || remaining < price {
		return StatusPastDue
	}
	return StatusActive
}
