// Package pgstore provides PostgreSQL-backed implementations of the billing
// stores using pgx/v5, with schema migrations embedded for goose.
package pgstore

import (
	"context"
	"embed"
	"io/fs"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/billingkit/pkg/billing"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// Migrations holds the goose migration files for the billing schema, rooted
// so files sit at the top level. Apply with pg.Migrate before using the
// stores.
var Migrations = func() fs.FS {
	sub, err := fs.Sub(embeddedMigrations, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}()

// querier is the query surface shared by *pgxpool.Pool and pgx.Tx, so the
// same store code serves both pooled and transactional access.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Stores bundles the two billing stores over one shared pool and implements
// billing.TxManager so multi-store mutations commit as one transaction.
type Stores struct {
	pool          *pgxpool.Pool
	Plans         *PlanStore
	Subscriptions *SubscriptionStore
}

func New(pool *pgxpool.Pool) *Stores {
	return &Stores{
		pool:          pool,
		Plans:         &PlanStore{db: pool},
		Subscriptions: &SubscriptionStore{db: pool},
	}
}

// InTx runs fn with store views bound to a single database transaction. An
// error from fn rolls every mutation back.
func (s *Stores) InTx(ctx context.Context, fn func(plans billing.PlanStore, subs billing.SubscriptionStore) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&PlanStore{db: tx}, &SubscriptionStore{db: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
