package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirinyoku/feisbook/internal/config"
	"github.com/kirinyoku/feisbook/internal/notification"
	"github.com/kirinyoku/feisbook/internal/obs"
	"github.com/kirinyoku/feisbook/internal/payment"
	"github.com/kirinyoku/feisbook/internal/payment/sandbox"
	"github.com/kirinyoku/feisbook/internal/payment/stripe"
	"github.com/kirinyoku/feisbook/internal/postgres"
	"github.com/kirinyoku/feisbook/internal/redis"
	"github.com/kirinyoku/feisbook/internal/repository"
	"github.com/kirinyoku/feisbook/internal/repository/memory"
	postgresrepo "github.com/kirinyoku/feisbook/internal/repository/postgres"
	redisrepo "github.com/kirinyoku/feisbook/internal/repository/redis"
	sqliterepo "github.com/kirinyoku/feisbook/internal/repository/sqlite"
	"github.com/kirinyoku/feisbook/internal/scheduler"
	"github.com/kirinyoku/feisbook/internal/service"
	"github.com/kirinyoku/feisbook/internal/service/booking"
	"github.com/kirinyoku/feisbook/internal/service/catalog"
	"github.com/kirinyoku/feisbook/internal/sqlite"
	httpgin "github.com/kirinyoku/feisbook/internal/transport/http/gin"
	"golang.org/x/sync/errgroup"
)

// Version is set at build time.
var Version = "dev"

type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	httpServer *http.Server
	services   *service.Services
	sweeper    *scheduler.Scheduler
	pubsub     *redisrepo.EventsPubSub
	closers    []func() error
	tracerStop func(context.Context) error
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: logger}

	tracerStop, err := obs.InitTracer(ctx, obs.Config{
		ServiceName: "feisbook",
		Version:     Version,
		Endpoint:    cfg.OTLPEndpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerStop = tracerStop

	// Initialize repositories
	store, err := a.openStore(ctx)
	if err != nil {
		a.close()
		return nil, err
	}

	infra := service.Infra{Store: store, Locker: memory.NewLocker()}

	var idempotencyStore *redisrepo.IdempotencyStore
	if cfg.Redis.Enabled {
		rdb, err := redis.New(ctx, redis.Config{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err != nil {
			a.close()
			return nil, fmt.Errorf("failed to initialize redis: %w", err)
		}
		a.closers = append(a.closers, rdb.Close)

		idempotencyStore = redisrepo.NewIdempotencyStore(rdb, cfg.Booking.IdempotencyTTL)
		a.pubsub = redisrepo.NewEventsPubSub(rdb)

		infra.Cache = redisrepo.New(rdb)
		infra.PubSub = a.pubsub
		infra.Locker = redisrepo.NewKeyLocker(idempotencyStore)
		if cfg.Booking.CheckoutRateLimit > 0 {
			infra.Limiter = redisrepo.NewSlidingWindowLimiter(rdb, "checkout", cfg.Booking.CheckoutRateLimit, cfg.Booking.CheckoutRateWindow)
		}
	}

	gateway, hosted, err := a.newGateway()
	if err != nil {
		a.close()
		return nil, err
	}
	infra.Gateway = gateway

	sender, err := a.newSender()
	if err != nil {
		a.close()
		return nil, err
	}
	infra.Sender = sender

	// Initialize services
	a.services = service.NewServices(infra, logger, service.Config{
		Catalog: catalog.Config{ListTTL: cfg.Booking.CatalogCacheTTL},
		Booking: booking.Config{
			PublicBaseURL:  cfg.PublicBaseURL,
			Currency:       cfg.Payment.Currency,
			GatewayTimeout: cfg.Payment.Timeout,
			NotifyTimeout:  cfg.Notify.Timeout,
			PendingTTL:     cfg.Booking.PendingTTL,
			Options:        cfg.Booking.Options,
			VerifyPayment:  cfg.Payment.Verify,
		},
	})

	a.sweeper = scheduler.New(a.services.Booking, cfg.Booking.SweepInterval, logger)

	// Initialize Gin router
	var sandboxPage httpgin.SandboxCheckout
	if hosted != nil {
		sandboxPage = hosted
	}
	router := httpgin.NewRouter(a.services, idempotencyStore, sandboxPage, logger)

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

func (a *App) openStore(ctx context.Context) (repository.Store, error) {
	switch a.cfg.StoreBackend {
	case config.BackendPostgres:
		pool, err := postgres.New(ctx, postgres.Config{DSN: a.cfg.Postgres.DSN(), MaxConns: a.cfg.Postgres.MaxConns})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize postgres: %w", err)
		}
		if err := postgres.Migrate(pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to migrate postgres: %w", err)
		}
		store := postgresrepo.NewStore(pool)
		a.closers = append(a.closers, store.Close)
		return store, nil

	case config.BackendSQLite:
		db, err := sqlite.New(ctx, sqlite.Config{Path: a.cfg.SQLite.Path})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize sqlite: %w", err)
		}
		store := sqliterepo.NewStore(db)
		a.closers = append(a.closers, store.Close)
		return store, nil

	default:
		a.logger.Warn("using in-memory store, data is lost on restart")
		return memory.NewStore(), nil
	}
}

// newGateway returns the configured gateway and, for the sandbox, the
// hosted page it needs served.
func (a *App) newGateway() (payment.Gateway, *sandbox.Gateway, error) {
	switch a.cfg.Payment.Provider {
	case config.ProviderStripe:
		gw, err := stripe.New(stripe.Config{SecretKey: a.cfg.Stripe.SecretKey, Timeout: a.cfg.Payment.Timeout})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize stripe: %w", err)
		}
		return gw, nil, nil
	default:
		a.logger.Warn("using sandbox payment gateway, no money is taken")
		gw := sandbox.New(a.cfg.PublicBaseURL)
		return gw, gw, nil
	}
}

func (a *App) newSender() (notification.Sender, error) {
	switch a.cfg.Notify.Driver {
	case config.DriverSMTP:
		return notification.NewSMTPSender(notification.SMTPConfig{
			Host:     a.cfg.SMTP.Host,
			Port:     a.cfg.SMTP.Port,
			Username: a.cfg.SMTP.Username,
			Password: a.cfg.SMTP.Password,
			From:     a.cfg.Notify.From,
			Timeout:  a.cfg.Notify.Timeout,
		}), nil
	case config.DriverAMQP:
		s, err := notification.NewAMQPSender(notification.AMQPConfig{
			URL:        a.cfg.AMQP.URL,
			Exchange:   a.cfg.AMQP.Exchange,
			RoutingKey: a.cfg.AMQP.RoutingKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize amqp: %w", err)
		}
		a.closers = append(a.closers, s.Close)
		return s, nil
	default:
		return notification.NewLogSender(a.logger), nil
	}
}

func (a *App) Run(ctx context.Context) error {
	defer a.close()

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)

	// Start HTTP server
	g.Go(func() error {
		a.logger.Info("HTTP server listening", "host", a.cfg.Server.Host, "port", a.cfg.Server.Port)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		a.sweeper.Start(gCtx)
		return nil
	})

	if a.pubsub != nil {
		g.Go(func() error {
			err := a.pubsub.Subscribe(gCtx, func(ctx context.Context, eventID string) {
				a.logger.Debug("event change received", "event_id", eventID)
				a.services.Catalog.InvalidateCache(ctx)
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				// the list cache still expires on its TTL
				a.logger.Warn("event change subscription ended", "error", err)
			}
			return nil
		})
	}

	// Graceful shutdown
	g.Go(func() error {
		<-gCtx.Done()
		a.logger.Info("shutting down HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.httpServer.Shutdown(ctx)
	})

	return g.Wait()
}

// close releases resources in reverse order of acquisition.
func (a *App) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
	a.closers = nil

	if a.tracerStop != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.tracerStop(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", "error", err)
		}
		a.tracerStop = nil
	}
}
