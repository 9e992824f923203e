package service

import (
	"log/slog"

	"github.com/kirinyoku/feisbook/internal/notification"
	"github.com/kirinyoku/feisbook/internal/payment"
	"github.com/kirinyoku/feisbook/internal/repository"
	redis "github.com/kirinyoku/feisbook/internal/repository/redis"
	"github.com/kirinyoku/feisbook/internal/service/booking"
	"github.com/kirinyoku/feisbook/internal/service/catalog"
	"github.com/kirinyoku/feisbook/internal/service/ledger"
)

type Services struct {
	Catalog *catalog.Service
	Ledger  *ledger.Service
	Booking *booking.Service
}

type Config struct {
	Catalog catalog.Config
	Booking booking.Config
}

// Infra is what the services are built on. Cache, PubSub and Limiter are
// nil when Redis is disabled.
type Infra struct {
	Store   repository.Store
	Locker  repository.Locker
	Cache   *redis.Cache
	PubSub  *redis.EventsPubSub
	Limiter *redis.SlidingWindowLimiter
	Gateway payment.Gateway
	Sender  notification.Sender
}

func NewServices(infra Infra, logger *slog.Logger, cfg Config) *Services {
	cat := catalog.New(infra.Store.Events(), infra.Cache, infra.PubSub, logger, cfg.Catalog)
	led := ledger.New(infra.Store.Bookings())

	deps := booking.Deps{
		Catalog: cat,
		Ledger:  led,
		Pending: infra.Store.Pending(),
		Locker:  infra.Locker,
		Gateway: infra.Gateway,
		Sender:  infra.Sender,
		Logger:  logger,
	}
	// a nil *SlidingWindowLimiter must not become a non-nil interface
	if infra.Limiter != nil {
		deps.Limiter = infra.Limiter
	}

	return &Services{
		Catalog: cat,
		Ledger:  led,
		Booking: booking.New(deps, cfg.Booking),
	}
}
