package billing

import (
	"time"

	"github.com/google/uuid"
)

// SubscriptionStatus represents the lifecycle state of a subscription.
// PendingCancellation is not a status of its own: it is an orthogonal flag
// on the Subscription record that combines with Active or PastDue.
type SubscriptionStatus string

const (
	StatusActive  SubscriptionStatus = "active"
	StatusPastDue SubscriptionStatus = "past_due"
	StatusClosed  SubscriptionStatus = "closed"
)

// Common billing terms. Any duration of at least one second is a valid term;
// TermOneSecond exists so long-interval behavior can be exercised in tests
// without waiting out a real interval.
const (
	TermOneSecond  = time.Second
	TermOneWeek    = 7 * 24 * time.Hour
	TermThirtyDays = 30 * 24 * time.Hour
	TermOneYear    = 365 * 24 * time.Hour
)

// DefaultFeeBps is the platform fee in basis points applied to every
// distribution (3%).
const DefaultFeeBps int64 = 300

const bpsDenominator int64 = 10_000

// SplitAmount divides a collected amount between the plan owner and the
// platform. The owner share is floored; the platform side absorbs the
// rounding remainder, so ownerShare+platformShare always equals amount.
// Computed by quotient/remainder decomposition so amount*(10000-feeBps)
// cannot overflow int64.
func SplitAmount(amount, feeBps int64) (ownerShare, platformShare int64) {
	if amount <= 0 {
		return 0, 0
	}
	keepBps := bpsDenominator - feeBps
	q, r := amount/bpsDenominator, amount%bpsDenominator
	ownerShare = q*keepBps + r*keepBps/bpsDenominator
	return ownerShare, amount - ownerShare
}

// ChargeResult reports the outcome of a successful charge call.
type ChargeResult struct {
	SubscriptionID  uuid.UUID
	Collected       int64 // total debited from the subscriber, 0 if nothing was available
	OwnerShare      int64
	PlatformShare   int64
	Partial         bool // less than the full plan price was collected
	Status          SubscriptionStatus
	NextChargeDueAt time.Time
}

// ClosureResult reports the prorated settlement of an early closure.
type ClosureResult struct {
	SubscriptionID uuid.UUID
	Earned         int64 // prorated value of the period in progress
	Collected      int64 // portion of Earned the authorization could cover
	OwnerShare     int64
	PlatformShare  int64
	ClosedAt       time.Time
}
