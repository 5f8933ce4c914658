package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tutoring-api/internal/booking"
	"tutoring-api/internal/config"
	"tutoring-api/internal/graph"
	"tutoring-api/internal/handler"
	"tutoring-api/internal/health"
	"tutoring-api/internal/httpapi"
	"tutoring-api/internal/jobs"
	"tutoring-api/internal/logger"
	"tutoring-api/internal/metrics"
	"tutoring-api/internal/middleware"
	"tutoring-api/internal/payment"
	"tutoring-api/internal/store"
)

func serveCmd() *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and gRPC health servers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := setup()
			if err != nil {
				return err
			}
			defer logger.L().Sync() //nolint:errcheck
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply migrations before serving")
	return cmd
}

func serve(ctx context.Context, cfg config.Config, migrate bool) error {
	log := logger.L()
	if cfg.Stripe.SecretKey == "" {
		return errors.New("STRIPE_SECRET_KEY is required")
	}
	metrics.Register()

	if migrate {
		if err := store.Migrate(ctx, cfg.DatabaseURL); err != nil {
			return err
		}
		log.Info("migrations applied")
	}

	st, err := store.Open(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		return err
	}
	defer st.Close()
	log.Info("connected to postgres")

	cache, rdb := intentCache(ctx, cfg.Redis, log)
	if rdb != nil {
		defer rdb.Close()
	}

	orch := payment.NewOrchestrator(payment.NewStripe(cfg.Stripe.SecretKey, nil), payment.Options{
		PublishableKey: cfg.Stripe.PublishableKey,
		Currency:       cfg.Stripe.Currency,
		DefaultAmount:  cfg.Stripe.DefaultAmount,
		Cache:          cache,
		Log:            log,
	})

	wf := booking.New(st, orch, booking.Config{
		DefaultAmount:  cfg.Stripe.DefaultAmount,
		ConfirmTimeout: cfg.Booking.ConfirmTimeout,
		WriteRetries:   cfg.Booking.WriteRetries,
		WriteBackoff:   cfg.Booking.WriteBackoff,
	})
	h := handler.New(st, wf)

	schema, err := graph.NewSchema(graph.NewResolver(h), cfg.GraphQLMaxParallelism)
	if err != nil {
		return err
	}

	limiter := middleware.NewRateLimiter(cfg.Limit.RPS, cfg.Limit.Burst)
	httpSrv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: httpapi.NewRouter(httpapi.Deps{
			Service:        cfg.ServiceName,
			GraphQL:        graph.Handler(schema, st),
			Checkout:       h,
			PublishableKey: orch.PublishableKey(),
			DB:             st,
			Limiter:        limiter,
			CORSOrigins:    cfg.CORSOrigins,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.GRPCAddr, err)
	}
	checker := health.NewChecker(st, 10*time.Second)
	sweeper := jobs.NewSweeper(wf, jobs.SweeperConfig{
		Interval: cfg.Booking.SweepInterval,
		Timeout:  cfg.Booking.SweepTimeout,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		log.Info("grpc health listening", zap.String("addr", cfg.GRPCAddr))
		return health.Serve(gctx, lis, checker)
	})
	g.Go(func() error { checker.Run(gctx); return nil })
	g.Go(func() error { sweeper.Run(gctx); return nil })
	g.Go(func() error { limiter.Run(gctx); return nil })

	return g.Wait()
}

// intentCache returns nil when redis is not configured or unreachable; the
// orchestrator then always asks the processor. The caller owns the returned
// client.
func intentCache(ctx context.Context, cfg config.RedisConfig, log *zap.Logger) (*payment.IntentCache, *redis.Client) {
	if cfg.Addr == "" {
		return nil, nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Warn("redis unavailable, intent cache disabled", zap.Error(err))
		_ = rdb.Close()
		return nil, nil
	}
	log.Info("intent cache enabled", zap.String("addr", cfg.Addr))
	return payment.NewIntentCache(rdb, cfg.IntentTTL), rdb
}
