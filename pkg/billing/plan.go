package billing

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Plan describes a billing offer: a price charged once per term, settled to
// the owner's settlement account minus the platform fee. Plans are immutable
// after creation except for the active-subscription counter.
type Plan struct {
	ID                  uuid.UUID
	OwnerID             uuid.UUID
	Code                string // unique per (OwnerID, Code)
	Price               int64  // smallest currency unit, per term
	Term                time.Duration
	SettlementAccountID uuid.UUID
	ActiveSubscriptions int64
	CreatedAt           time.Time
}

// Validate checks the invariants fixed at plan creation.
func (p Plan) Validate() error {
	if p.Code == "" {
		return errors.Join(ErrInvalidPlanConfig, errors.New("plan code is required"))
	}
	if p.OwnerID == uuid.Nil {
		return errors.Join(ErrInvalidPlanConfig, errors.New("plan owner is required"))
	}
	if p.SettlementAccountID == uuid.Nil {
		return errors.Join(ErrInvalidPlanConfig, errors.New("settlement account is required"))
	}
	if p.Price <= 0 {
		return errors.Join(ErrInvalidPlanConfig, fmt.Errorf("price must be positive, got %d", p.Price))
	}
	// Proration is computed at one-second resolution, so sub-second terms
	// cannot be settled correctly.
	if p.Term < time.Second {
		return errors.Join(ErrInvalidPlanConfig, fmt.Errorf("term must be at least one second, got %s", p.Term))
	}
	return nil
}
