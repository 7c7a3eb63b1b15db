package keeper

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/billingkit/pkg/billing"
)

var ErrAlreadyRunning = errors.New("keeper is already running")

// Charger triggers a charge attempt. Satisfied by billing.Service.
type Charger interface {
	ChargeSubscription(ctx context.Context, subID uuid.UUID) (*billing.ChargeResult, error)
}

// DueLister finds subscriptions due for a charge. Satisfied by
// billing.SubscriptionStore implementations.
type DueLister interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]*billing.Subscription, error)
}

// Keeper periodically sweeps due subscriptions and triggers charges.
// Charging is permissionless, so a keeper is pure convenience: it holds no
// state the engine depends on, and several keepers may run side by side;
// whoever loses the race gets an ordinary ErrNotDue.
type Keeper struct {
	charger Charger
	lister  DueLister

	interval    time.Duration
	batchSize   int
	concurrency int
	clock       func() time.Time
	log         *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures the keeper.
type Option func(*Keeper)

// WithInterval sets the sweep cadence. Intervals below one second are ignored.
func WithInterval(d time.Duration) Option {
	return func(k *Keeper) {
		if d >= time.Second {
			k.interval = d
		}
	}
}

// WithBatchSize caps how many due subscriptions one sweep picks up.
func WithBatchSize(n int) Option {
	return func(k *Keeper) {
		if n > 0 {
			k.batchSize = n
		}
	}
}

// WithConcurrency caps how many charges run in parallel within a sweep.
func WithConcurrency(n int) Option {
	return func(k *Keeper) {
		if n > 0 {
			k.concurrency = n
		}
	}
}

func WithClock(clock func() time.Time) Option {
	return func(k *Keeper) {
		if clock != nil {
			k.clock = clock
		}
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(k *Keeper) {
		if log != nil {
			k.log = log
		}
	}
}

// New creates a keeper over the given charger and due-subscription lister.
// Panics on nil dependencies to fail fast during wiring.
func New(charger Charger, lister DueLister, opts ...Option) *Keeper {
	if charger == nil {
		panic("keeper: Charger is required")
	}
	if lister == nil {
		panic("keeper: DueLister is required")
	}

	k := &Keeper{
		charger:     charger,
		lister:      lister,
		interval:    30 * time.Second,
		batchSize:   100,
		concurrency: 4,
		clock:       func() time.Time { return time.Now().UTC() },
		log:         slog.Default(),
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// Start launches the sweep loop. Returns ErrAlreadyRunning if the keeper was
// already started and not yet stopped.
func (k *Keeper) Start(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.cancel != nil {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	k.cancel = cancel
	k.done = done

	// run gets the channel as an argument: Stop nils the fields, so the
	// goroutine must never read them back.
	go k.run(ctx, done)

	k.log.InfoContext(ctx, "keeper started",
		slog.Duration("interval", k.interval),
		slog.Int("batch_size", k.batchSize),
		slog.Int("concurrency", k.concurrency))
	return nil
}

// Stop terminates the sweep loop and waits for in-flight charges to finish.
func (k *Keeper) Stop() {
	k.mu.Lock()
	cancel, done := k.cancel, k.done
	k.cancel, k.done = nil, nil
	k.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (k *Keeper) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			k.Sweep(ctx)
		}
	}
}

// Sweep runs one pass: list due subscriptions and charge them with bounded
// parallelism. Exported so operators can trigger an immediate pass.
func (k *Keeper) Sweep(ctx context.Context) {
	now := k.clock()
	due, err := k.lister.ListDue(ctx, now, k.batchSize)
	if err != nil {
		k.log.ErrorContext(ctx, "failed to list due subscriptions", slog.Any("error", err))
		return
	}
	if len(due) == 0 {
		return
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(k.concurrency)
	for _, sub := range due {
		g.Go(func() error {
			k.chargeOne(ctx, sub.ID)
			return nil
		})
	}
	_ = g.Wait()
}

func (k *Keeper) chargeOne(ctx context.Context, subID uuid.UUID) {
	res, err := k.charger.ChargeSubscription(ctx, subID)
	switch {
	case errors.Is(err, billing.ErrNotDue), errors.Is(err, billing.ErrAlreadyClosed):
		// Lost the race to another keeper or a manual close between listing
		// and charging. Expected, not an error.
		k.log.DebugContext(ctx, "subscription no longer chargeable",
			slog.String("subscription_id", subID.String()),
			slog.Any("reason", err))
	case err != nil:
		k.log.ErrorContext(ctx, "charge attempt failed",
			slog.String("subscription_id", subID.String()),
			slog.Any("error", err))
	default:
		k.log.InfoContext(ctx, "keeper charged subscription",
			slog.String("subscription_id", subID.String()),
			slog.Int64("collected", res.Collected),
			slog.String("status", string(res.Status)))
	}
}
