package keeper_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingkit/pkg/billing"
	"github.com/dmitrymomot/billingkit/pkg/keeper"
)

type fakeCharger struct {
	mu      sync.Mutex
	charged []uuid.UUID
	errs    map[uuid.UUID]error

	inFlight    int
	maxInFlight int
}

func (c *fakeCharger) ChargeSubscription(ctx context.Context, subID uuid.UUID) (*billing.ChargeResult, error) {
	c.mu.Lock()
	c.inFlight++
	if c.inFlight > c.maxInFlight {
		c.maxInFlight = c.inFlight
	}
	c.mu.Unlock()

	// Let overlapping calls pile up so the concurrency cap is observable.
	time.Sleep(10 * time.Millisecond)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight--

	if err, ok := c.errs[subID]; ok {
		return nil, err
	}
	c.charged = append(c.charged, subID)
	return &billing.ChargeResult{
		SubscriptionID: subID,
		Collected:      1000,
		Status:         billing.StatusActive,
	}, nil
}

func (c *fakeCharger) chargedIDs() []uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]uuid.UUID(nil), c.charged...)
}

type fakeLister struct {
	mu   sync.Mutex
	due  []*billing.Subscription
	err  error
	seen []int // limit passed to each call
}

func (l *fakeLister) ListDue(ctx context.Context, now time.Time, limit int) ([]*billing.Subscription, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seen = append(l.seen, limit)
	if l.err != nil {
		return nil, l.err
	}
	if len(l.due) > limit {
		return l.due[:limit], nil
	}
	return l.due, nil
}

func dueSubs(n int) []*billing.Subscription {
	subs := make([]*billing.Subscription, n)
	for i := range subs {
		subs[i] = &billing.Subscription{ID: uuid.New(), Status: billing.StatusActive}
	}
	return subs
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestKeeper_Sweep(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("charges every listed subscription", func(t *testing.T) {
		t.Parallel()
		subs := dueSubs(5)
		charger := &fakeCharger{}
		lister := &fakeLister{due: subs}

		k := keeper.New(charger, lister, keeper.WithLogger(discardLogger()))
		k.Sweep(ctx)

		want := make([]uuid.UUID, len(subs))
		for i, sub := range subs {
			want[i] = sub.ID
		}
		assert.ElementsMatch(t, want, charger.chargedIDs())
	})

	t.Run("respects the batch size", func(t *testing.T) {
		t.Parallel()
		charger := &fakeCharger{}
		lister := &fakeLister{due: dueSubs(10)}

		k := keeper.New(charger, lister,
			keeper.WithBatchSize(3),
			keeper.WithLogger(discardLogger()))
		k.Sweep(ctx)

		require.Equal(t, []int{3}, lister.seen)
		assert.Len(t, charger.chargedIDs(), 3)
	})

	t.Run("bounds charge parallelism", func(t *testing.T) {
		t.Parallel()
		charger := &fakeCharger{}
		lister := &fakeLister{due: dueSubs(12)}

		k := keeper.New(charger, lister,
			keeper.WithConcurrency(2),
			keeper.WithLogger(discardLogger()))
		k.Sweep(ctx)

		assert.Len(t, charger.chargedIDs(), 12)
		assert.LessOrEqual(t, charger.maxInFlight, 2)
	})

	t.Run("a failed charge does not stop the sweep", func(t *testing.T) {
		t.Parallel()
		subs := dueSubs(3)
		charger := &fakeCharger{errs: map[uuid.UUID]error{
			subs[0].ID: billing.ErrNotDue,
			subs[1].ID: errors.New("store unavailable"),
		}}
		lister := &fakeLister{due: subs}

		k := keeper.New(charger, lister, keeper.WithLogger(discardLogger()))
		k.Sweep(ctx)

		assert.Equal(t, []uuid.UUID{subs[2].ID}, charger.chargedIDs())
	})

	t.Run("list failure is swallowed", func(t *testing.T) {
		t.Parallel()
		charger := &fakeCharger{}
		lister := &fakeLister{err: errors.New("connection refused")}

		k := keeper.New(charger, lister, keeper.WithLogger(discardLogger()))
		k.Sweep(ctx)

		assert.Empty(t, charger.chargedIDs())
	})
}

func TestKeeper_Lifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("sweeps on the configured interval", func(t *testing.T) {
		t.Parallel()
		charger := &fakeCharger{}
		lister := &fakeLister{due: dueSubs(1)}

		k := keeper.New(charger, lister,
			keeper.WithInterval(time.Second),
			keeper.WithLogger(discardLogger()))
		require.NoError(t, k.Start(ctx))
		defer k.Stop()

		require.Eventually(t, func() bool {
			return len(charger.chargedIDs()) >= 1
		}, 3*time.Second, 50*time.Millisecond)
	})

	t.Run("double start fails until stopped", func(t *testing.T) {
		t.Parallel()
		k := keeper.New(&fakeCharger{}, &fakeLister{},
			keeper.WithLogger(discardLogger()))

		require.NoError(t, k.Start(ctx))
		assert.ErrorIs(t, k.Start(ctx), keeper.ErrAlreadyRunning)

		k.Stop()
		require.NoError(t, k.Start(ctx))
		k.Stop()
	})

	t.Run("immediate stop after start shuts down cleanly", func(t *testing.T) {
		t.Parallel()
		k := keeper.New(&fakeCharger{}, &fakeLister{},
			keeper.WithLogger(discardLogger()))

		// Stop may win the race with the freshly launched loop goroutine;
		// it must still close the right channel and return.
		for range 200 {
			require.NoError(t, k.Start(ctx))
			k.Stop()
		}
	})

	t.Run("stop without start is a no-op", func(t *testing.T) {
		t.Parallel()
		k := keeper.New(&fakeCharger{}, &fakeLister{},
			keeper.WithLogger(discardLogger()))
		k.Stop()
	})

	t.Run("nil dependencies panic", func(t *testing.T) {
		t.Parallel()
		assert.Panics(t, func() { keeper.New(nil, &fakeLister{}) })
		assert.Panics(t, func() { keeper.New(&fakeCharger{}, nil) })
	})
}
