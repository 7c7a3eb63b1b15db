package pgstore

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/billingkit/pkg/billing"
	"github.com/dmitrymomot/billingkit/pkg/pg"
)

// PlanStore implements billing.PlanStore on PostgreSQL.
type PlanStore struct {
	db querier
}

func (s *PlanStore) Create(ctx context.Context, plan *billing.Plan) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO plans (id, owner_id, code, price, term_seconds, settlement_account_id, active_subscriptions, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		plan.ID, plan.OwnerID, plan.Code, plan.Price, int64(plan.Term/time.Second),
		plan.SettlementAccountID, plan.ActiveSubscriptions, plan.CreatedAt,
	)
	if pg.IsDuplicateKeyError(err) {
		return billing.ErrDuplicatePlan
	}
	return err
}

func (s *PlanStore) GetByID(ctx context.Context, id uuid.UUID) (*billing.Plan, error) {
	return s.scanPlan(s.db.QueryRow(ctx, `
		SELECT id, owner_id, code, price, term_seconds, settlement_account_id, active_subscriptions, created_at
		FROM plans WHERE id = $1`, id))
}

func (s *PlanStore) GetByOwnerCode(ctx context.Context, ownerID uuid.UUID, code string) (*billing.Plan, error) {
	return s.scanPlan(s.db.QueryRow(ctx, `
		SELECT id, owner_id, code, price, term_seconds, settlement_account_id, active_subscriptions, created_at
		FROM plans WHERE owner_id = $1 AND code = $2`, ownerID, code))
}

func (s *PlanStore) AdjustActiveSubscriptions(ctx context.Context, id uuid.UUID, delta int64) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE plans
		SET active_subscriptions = GREATEST(active_subscriptions + $2, 0)
		WHERE id = $1`, id, delta)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return billing.ErrPlanNotFound
	}
	return nil
}

func (s *PlanStore) scanPlan(row pgx.Row) (*billing.Plan, error) {
	var plan billing.Plan
	var termSeconds int64
	err := row.Scan(
		&plan.ID, &plan.OwnerID, &plan.Code, &plan.Price, &termSeconds,
		&plan.SettlementAccountID, &plan.ActiveSubscriptions, &plan.CreatedAt,
	)
	if pg.IsNotFoundError(err) {
		return nil, billing.ErrPlanNotFound
	}
	if err != nil {
		return nil, err
	}
	plan.Term = time.Duration(termSeconds) * time.Second
	return &plan, nil
}
