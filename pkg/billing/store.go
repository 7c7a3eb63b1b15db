package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// PlanStore defines plan persistence. Plans are write-once apart from the
// active-subscription counter.
type PlanStore interface {
	// Create stores a new plan. Returns ErrDuplicatePlan if a plan with the
	// same (OwnerID, Code) already exists.
	Create(ctx context.Context, plan *Plan) error

	// GetByID returns ErrPlanNotFound if no plan exists.
	GetByID(ctx context.Context, id uuid.UUID) (*Plan, error)

	// GetByOwnerCode resolves a plan by its deterministic (owner, code) address.
	GetByOwnerCode(ctx context.Context, ownerID uuid.UUID, code string) (*Plan, error)

	// AdjustActiveSubscriptions adds delta to the plan's counter, flooring at zero.
	AdjustActiveSubscriptions(ctx context.Context, id uuid.UUID, delta int64) error
}

// SubscriptionStore defines subscription persistence.
type SubscriptionStore interface {
	Create(ctx context.Context, sub *Subscription) error

	// GetByID returns ErrSubscriptionNotFound if no subscription exists.
	GetByID(ctx context.Context, id uuid.UUID) (*Subscription, error)

	// Save persists the full current state of an existing subscription.
	// The write is conditional on sub.Version still matching the stored
	// record; Save bumps the stored version on success and returns
	// ErrStaleSubscription when another writer got there first.
	Save(ctx context.Context, sub *Subscription) error

	// ListDue returns up to limit non-closed subscriptions whose
	// NextChargeDueAt is at or before now. Used by the keeper; ordering is
	// implementation-defined. The list is a snapshot, not a claim: the
	// charge itself re-checks the schedule and the record version.
	ListDue(ctx context.Context, now time.Time, limit int) ([]*Subscription, error)
}

// TxManager scopes the store mutations of one operation into a single atomic
// unit where the backing store supports it. fn receives store views bound to
// that unit; an error from fn discards every mutation made through them.
type TxManager interface {
	InTx(ctx context.Context, fn func(plans PlanStore, subs SubscriptionStore) error) error
}
