package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vrd2140/storefront/internal/adapter/events"
	"github.com/vrd2140/storefront/internal/adapter/handler"
	"github.com/vrd2140/storefront/internal/adapter/storage"
	"github.com/vrd2140/storefront/internal/auth"
	"github.com/vrd2140/storefront/internal/config"
	"github.com/vrd2140/storefront/internal/core/domain"
	"github.com/vrd2140/storefront/internal/core/inventory"
	"github.com/vrd2140/storefront/internal/core/service"
	"github.com/vrd2140/storefront/internal/pkg/logging"
	"github.com/vrd2140/storefront/internal/pkg/tracing"
	"github.com/vrd2140/storefront/internal/port"
)

func main() {
	configPath := flag.String("config", "", "path to yaml config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLogger := logging.New("info", "console")
		bootLogger.Fatal().Err(err).Msg("failed to load config")
	}

	logger := logging.New(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Tracing.Enabled {
		shutdownTracing, err := tracing.Init(ctx, "storefront", cfg.Tracing.OTLPEndpoint)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to init tracing")
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracing(flushCtx); err != nil {
				logger.Error().Err(err).Msg("tracing shutdown failed")
			}
		}()
	}

	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open mysql")
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime.Std())

	if err := db.PingContext(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to ping mysql")
	}
	logger.Info().Msg("connected to mysql")

	var idem port.IdempotencyStore
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Msg("failed to connect redis")
		}
		defer rdb.Close()
		logger.Info().Msg("connected to redis")
		idem = storage.NewRedisIdempotencyStore(rdb, cfg.Orders.IdempotencyTTL.Std())
	} else {
		logger.Warn().Msg("redis not configured, idempotency keys disabled")
	}

	var publisher port.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaPublisher := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher
		logger.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("kafka publisher ready")
	} else {
		publisher = events.NewLogPublisher(logger)
	}

	orderStore := storage.NewMySQLOrderStore(db)
	productStore := storage.NewMySQLProductStore(db)
	userStore := storage.NewMySQLUserStore(db)

	ledger := inventory.NewLedger(cfg.Orders.ReserveWait.Std())
	if err := hydrateLedger(ctx, ledger, productStore, orderStore, logger); err != nil {
		logger.Fatal().Err(err).Msg("failed to hydrate inventory ledger")
	}

	tokens := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL.Std())
	orderSvc := service.NewOrderService(orderStore, productStore, ledger, idem, publisher, productStore, logger)
	catalogSvc := service.NewCatalogService(productStore, ledger, logger)
	authSvc := service.NewAuthService(userStore, tokens, cfg.Auth.AdminEmails, logger)

	httpHandler := handler.NewHTTPHandler(orderSvc, catalogSvc, authSvc, tokens, logger)
	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: httpHandler.Router(),
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("addr", cfg.Server.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		runJanitor(ctx, orderSvc, cfg.Orders.PendingTTL.Std(), cfg.Orders.SweepInterval.Std(), logger)
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Std())
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal().Err(err).Msg("server exited with error")
	}
	logger.Info().Msg("server stopped")
}

// hydrateLedger provisions every product's stock, then replays the
// reservations of persisted pending orders so they can still be cancelled or
// completed after a restart.
func hydrateLedger(
	ctx context.Context,
	ledger *inventory.Ledger,
	products *storage.MySQLProductStore,
	orders *storage.MySQLOrderStore,
	logger zerolog.Logger,
) error {
	stock, err := products.ListStock(ctx)
	if err != nil {
		return err
	}
	for productID, total := range stock {
		if err := ledger.Provision(productID, total); err != nil {
			return err
		}
	}

	pending, err := orders.ListPendingBefore(ctx, time.Now())
	if err != nil {
		return err
	}
	restored := 0
	for _, order := range pending {
		for _, line := range order.Lines {
			err := ledger.Restore(&domain.Reservation{
				ID:        line.ReservationID,
				OrderID:   order.ID,
				ProductID: line.ProductID,
				Quantity:  line.Quantity,
			})
			if err != nil {
				logger.Error().Err(err).Str("order_id", order.ID).
					Str("product_id", line.ProductID).Msg("failed to restore reservation")
				continue
			}
			restored++
		}
	}

	logger.Info().Int("products", len(stock)).Int("reservations", restored).Msg("inventory ledger hydrated")
	return nil
}

func runJanitor(ctx context.Context, orders *service.OrderService, pendingTTL, interval time.Duration, logger zerolog.Logger) {
	if pendingTTL <= 0 {
		return
	}
	if interval <= 0 {
		interval = time.Minute
	}

	log := logger.With().Str("component", "janitor").Logger()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			expired, err := orders.ExpireStaleOrders(ctx, pendingTTL)
			if err != nil {
				log.Error().Err(err).Msg("stale order sweep failed")
				continue
			}
			if expired > 0 {
				log.Info().Int("expired", expired).Msg("stale pending orders cancelled")
			}
		}
	}
}
