// billingd runs the recurring-billing engine as a standalone service: the
// HTTP API for the public operations plus a keeper that sweeps due charges.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingkit/pkg/billing"
	"github.com/dmitrymomot/billingkit/pkg/billing/pgstore"
	"github.com/dmitrymomot/billingkit/pkg/config"
	"github.com/dmitrymomot/billingkit/pkg/keeper"
	"github.com/dmitrymomot/billingkit/pkg/ledger"
	"github.com/dmitrymomot/billingkit/pkg/logger"
	"github.com/dmitrymomot/billingkit/pkg/pg"
	billinghttp "github.com/dmitrymomot/billingkit/svc/billing"
)

type appConfig struct {
	Env             string `env:"APP_ENV" envDefault:"development"`
	PlatformAccount string `env:"BILLING_PLATFORM_ACCOUNT,required"`
	FeeBps          int64  `env:"BILLING_FEE_BPS" envDefault:"300"`
	CatalogPath     string `env:"BILLING_PLAN_CATALOG"`
	Storage         string `env:"BILLING_STORAGE" envDefault:"memory"` // memory | postgres
}

type httpConfig struct {
	Addr            string        `env:"HTTP_ADDR" envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

type keeperConfig struct {
	Interval    time.Duration `env:"KEEPER_INTERVAL" envDefault:"30s"`
	BatchSize   int           `env:"KEEPER_BATCH_SIZE" envDefault:"100"`
	Concurrency int           `env:"KEEPER_CONCURRENCY" envDefault:"4"`
}

func main() {
	var appCfg appConfig
	config.MustLoad(&appCfg)

	log := logger.New(logger.WithEnvironment(appCfg.Env, "billingd"))
	logger.SetAsDefault(log)

	if err := run(appCfg, log); err != nil {
		log.Error("billingd exited with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(appCfg appConfig, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	platformAccount, err := uuid.Parse(appCfg.PlatformAccount)
	if err != nil {
		return errors.New("BILLING_PLATFORM_ACCOUNT must be a UUID")
	}

	var plans billing.PlanStore
	var subs billing.SubscriptionStore
	opts := []billing.ServiceOption{
		billing.WithFeeBps(appCfg.FeeBps),
		billing.WithLogger(log),
	}

	switch appCfg.Storage {
	case "postgres":
		var pgCfg pg.Config
		config.MustLoad(&pgCfg)
		pool, err := pg.Connect(ctx, pgCfg)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := pg.Migrate(ctx, pool, pgCfg, pgstore.Migrations, log); err != nil {
			return err
		}
		stores := pgstore.New(pool)
		plans, subs = stores.Plans, stores.Subscriptions
		opts = append(opts, billing.WithTxManager(stores))
	default:
		plans = billing.NewMemPlanStore()
		subs = billing.NewMemSubscriptionStore()
	}

	l := ledger.New()
	svc := billing.NewService(plans, subs, l, platformAccount, opts...)

	if appCfg.CatalogPath != "" {
		src := billing.NewFileCatalogSource(appCfg.CatalogPath)
		if err := billing.SeedPlans(ctx, svc, src); err != nil {
			return err
		}
	}

	var keeperCfg keeperConfig
	config.MustLoad(&keeperCfg)
	k := keeper.New(svc, subs,
		keeper.WithInterval(keeperCfg.Interval),
		keeper.WithBatchSize(keeperCfg.BatchSize),
		keeper.WithConcurrency(keeperCfg.Concurrency),
		keeper.WithLogger(log),
	)
	if err := k.Start(ctx); err != nil {
		return err
	}
	defer k.Stop()

	var httpCfg httpConfig
	config.MustLoad(&httpCfg)
	srv := &http.Server{
		Addr:    httpCfg.Addr,
		Handler: billinghttp.Routes(svc, log),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", slog.String("addr", httpCfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), httpCfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
