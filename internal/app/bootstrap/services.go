package bootstrap

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/wellness-booking/internal/archive"
	"github.com/wolfman30/wellness-booking/internal/availability"
	"github.com/wolfman30/wellness-booking/internal/bookings"
	appconfig "github.com/wolfman30/wellness-booking/internal/config"
	"github.com/wolfman30/wellness-booking/internal/credits"
	"github.com/wolfman30/wellness-booking/internal/observability/metrics"
	"github.com/wolfman30/wellness-booking/pkg/logging"
)

// Deps are the optional backends a process has connected to. A nil Pool
// selects the in-memory stores.
type Deps struct {
	Pool     *pgxpool.Pool
	Redis    *redis.Client
	S3       archive.S3API
	Registry prometheus.Registerer
}

// Services is the wired domain layer shared by the API and worker binaries.
type Services struct {
	Credits  *credits.Service
	Checker  *availability.Checker
	Bookings *bookings.Service
	Archiver *archive.LedgerArchiver

	// Health pings the backing database; nil in memory mode.
	Health func(ctx context.Context) error
}

// BuildServices wires ledgers, interval stores and the booking workflow.
func BuildServices(cfg *appconfig.Config, deps Deps, logger *logging.Logger) *Services {
	if logger == nil {
		logger = logging.Default()
	}
	reg := deps.Registry
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	creditMetrics := metrics.NewCreditMetrics(reg)
	availabilityMetrics := metrics.NewAvailabilityMetrics(reg)
	bookingMetrics := metrics.NewBookingMetrics(reg)

	var (
		ledger   credits.Ledger
		store    availability.IntervalStore
		repo     bookings.Repository
		health   func(ctx context.Context) error
		storeLog = logger.Component("bootstrap")
	)
	if deps.Pool != nil {
		pgLedger := credits.NewPostgresLedger(deps.Pool, logger)
		ledger = pgLedger
		store = availability.NewPostgresStore(deps.Pool)
		repo = bookings.NewPostgresRepository(deps.Pool, pgLedger, logger)
		health = deps.Pool.Ping
		storeLog.Info("using postgres stores")
	} else {
		memLedger := credits.NewMemoryLedger()
		memRepo := bookings.NewMemoryRepository(memLedger)
		ledger = memLedger
		store = memRepo
		repo = memRepo
		storeLog.Warn("using in-memory stores; data is lost on restart")
	}

	var cache *availability.CachedStore
	if deps.Redis != nil {
		cache = availability.NewCachedStore(store, deps.Redis, cfg.AvailabilityCacheTTL, availabilityMetrics, logger)
		store = cache
	}

	creditSvc := credits.NewService(ledger, logger, creditMetrics)
	checker := availability.NewChecker(store, availabilityMetrics, logger)
	bookingSvc := bookings.NewService(repo, checker, creditSvc, logger, bookingMetrics).
		WithLocation(cfg.ClinicLocation())
	if cache != nil {
		bookingSvc = bookingSvc.WithInvalidator(cache)
	}

	return &Services{
		Credits:  creditSvc,
		Checker:  checker,
		Bookings: bookingSvc,
		Archiver: archive.NewLedgerArchiver(creditSvc, archive.NewStore(deps.S3, cfg.LedgerArchiveBucket, logger), logger),
		Health:   health,
	}
}
