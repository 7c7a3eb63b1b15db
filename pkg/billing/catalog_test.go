package billing_test

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingkit/pkg/billing"
	"github.com/dmitrymomot/billingkit/pkg/ledger"
)

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plans.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestFileCatalogSource(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	owner := uuid.New()
	settlement := uuid.New()

	t.Run("parses a valid catalog", func(t *testing.T) {
		t.Parallel()
		path := writeCatalog(t, fmt.Sprintf(`
- owner: %s
  code: pro-weekly
  price: 1000
  term: 168h
  settlement: %s
- owner: %s
  code: pro-yearly
  price: 48000
  term: 8760h
  settlement: %s
`, owner, settlement, owner, settlement))

		seeds, err := billing.NewFileCatalogSource(path).Load(ctx)
		require.NoError(t, err)
		require.Len(t, seeds, 2)
		assert.Equal(t, "pro-weekly", seeds[0].Code)
		assert.Equal(t, billing.TermOneWeek, seeds[0].Term)
		assert.Equal(t, int64(48000), seeds[1].Price)
		assert.Equal(t, owner, seeds[1].OwnerID)
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		_, err := billing.NewFileCatalogSource("/nonexistent/plans.yaml").Load(ctx)
		assert.ErrorIs(t, err, billing.ErrFailedToLoadCatalog)
	})

	t.Run("invalid owner uuid", func(t *testing.T) {
		t.Parallel()
		path := writeCatalog(t, fmt.Sprintf(`
- owner: not-a-uuid
  code: pro
  price: 1000
  term: 168h
  settlement: %s
`, settlement))

		_, err := billing.NewFileCatalogSource(path).Load(ctx)
		assert.ErrorIs(t, err, billing.ErrFailedToLoadCatalog)
	})

	t.Run("invalid term", func(t *testing.T) {
		t.Parallel()
		path := writeCatalog(t, fmt.Sprintf(`
- owner: %s
  code: pro
  price: 1000
  term: fortnightly
  settlement: %s
`, owner, settlement))

		_, err := billing.NewFileCatalogSource(path).Load(ctx)
		assert.ErrorIs(t, err, billing.ErrFailedToLoadCatalog)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		t.Parallel()
		path := writeCatalog(t, "{not a list")

		_, err := billing.NewFileCatalogSource(path).Load(ctx)
		assert.ErrorIs(t, err, billing.ErrFailedToLoadCatalog)
	})
}

func TestSeedPlans(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	newSvc := func() billing.Service {
		return billing.NewService(
			billing.NewMemPlanStore(),
			billing.NewMemSubscriptionStore(),
			ledger.New(),
			uuid.New(),
			billing.WithLogger(slog.New(slog.DiscardHandler)),
		)
	}

	owner := uuid.New()
	settlement := uuid.New()
	src := billing.NewMemCatalogSource(
		billing.PlanSeed{OwnerID: owner, Code: "starter", Price: 500, Term: billing.TermOneWeek, SettlementAccountID: settlement},
		billing.PlanSeed{OwnerID: owner, Code: "pro", Price: 1000, Term: billing.TermOneWeek, SettlementAccountID: settlement},
	)

	t.Run("registers every seed", func(t *testing.T) {
		t.Parallel()
		svc := newSvc()

		require.NoError(t, billing.SeedPlans(ctx, svc, src))

		for _, code := range []string{"starter", "pro"} {
			_, err := svc.GetPlanByCode(ctx, owner, code)
			assert.NoError(t, err, code)
		}
	})

	t.Run("reseeding skips existing plans", func(t *testing.T) {
		t.Parallel()
		svc := newSvc()

		require.NoError(t, billing.SeedPlans(ctx, svc, src))
		require.NoError(t, billing.SeedPlans(ctx, svc, src))

		plan, err := svc.GetPlanByCode(ctx, owner, "pro")
		require.NoError(t, err)
		assert.Equal(t, int64(1000), plan.Price)
	})

	t.Run("propagates invalid seeds", func(t *testing.T) {
		t.Parallel()
		svc := newSvc()
		bad := billing.NewMemCatalogSource(
			billing.PlanSeed{OwnerID: owner, Code: "bad", Price: -1, Term: billing.TermOneWeek, SettlementAccountID: settlement},
		)

		assert.ErrorIs(t, billing.SeedPlans(ctx, svc, bad), billing.ErrInvalidPlanConfig)
	})
}
