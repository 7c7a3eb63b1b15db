package pgstore

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/billingkit/pkg/billing"
	"github.com/dmitrymomot/billingkit/pkg/pg"
)

// SubscriptionStore implements billing.SubscriptionStore on PostgreSQL.
type SubscriptionStore struct {
	db querier
}

const subscriptionColumns = `
	id, plan_id, subscriber_id, authority_id, escrow_account_id,
	status, pending_cancellation, period_started_at, next_charge_due_at,
	created_at, updated_at, cancelled_at, closed_at, version`

func (s *SubscriptionStore) Create(ctx context.Context, sub *billing.Subscription) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO subscriptions (`+subscriptionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		sub.ID, sub.PlanID, sub.SubscriberID, sub.AuthorityID, sub.EscrowAccountID,
		string(sub.Status), sub.PendingCancellation, sub.PeriodStartedAt, sub.NextChargeDueAt,
		sub.CreatedAt, sub.UpdatedAt, sub.CancelledAt, sub.ClosedAt, sub.Version,
	)
	return err
}

func (s *SubscriptionStore) GetByID(ctx context.Context, id uuid.UUID) (*billing.Subscription, error) {
	return scanSubscription(s.db.QueryRow(ctx, `
		SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1`, id))
}

// Save writes conditionally on the version read by the caller, so two
// processes racing on one record cannot both commit a charge for the same
// term.
func (s *SubscriptionStore) Save(ctx context.Context, sub *billing.Subscription) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE subscriptions SET
			status = $2,
			pending_cancellation = $3,
			period_started_at = $4,
			next_charge_due_at = $5,
			updated_at = $6,
			cancelled_at = $7,
			closed_at = $8,
			version = version + 1
		WHERE id = $1 AND version = $9`,
		sub.ID, string(sub.Status), sub.PendingCancellation, sub.PeriodStartedAt,
		sub.NextChargeDueAt, sub.UpdatedAt, sub.CancelledAt, sub.ClosedAt, sub.Version,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.db.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM subscriptions WHERE id = $1)`, sub.ID,
		).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return billing.ErrSubscriptionNotFound
		}
		return billing.ErrStaleSubscription
	}
	return nil
}

func (s *SubscriptionStore) ListDue(ctx context.Context, now time.Time, limit int) ([]*billing.Subscription, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE status <> $1 AND next_charge_due_at <= $2
		ORDER BY next_charge_due_at
		LIMIT $3`,
		string(billing.StatusClosed), now, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var due []*billing.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		due = append(due, sub)
	}
	return due, rows.Err()
}

func scanSubscription(row pgx.Row) (*billing.Subscription, error) {
	var sub billing.Subscription
	var status string
	err := row.Scan(
		&sub.ID, &sub.PlanID, &sub.SubscriberID, &sub.AuthorityID, &sub.EscrowAccountID,
		&status, &sub.PendingCancellation, &sub.PeriodStartedAt, &sub.NextChargeDueAt,
		&sub.CreatedAt, &sub.UpdatedAt, &sub.CancelledAt, &sub.ClosedAt, &sub.Version,
	)
	if pg.IsNotFoundError(err) {
		return nil, billing.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, err
	}
	sub.Status = billing.SubscriptionStatus(status)
	return &sub, nil
}
