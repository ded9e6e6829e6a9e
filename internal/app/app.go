package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xenking/academy-ledger/internal/domain/auth"
	"github.com/xenking/academy-ledger/internal/domain/cart"
	"github.com/xenking/academy-ledger/internal/domain/checkout"
	"github.com/xenking/academy-ledger/internal/domain/commission"
	"github.com/xenking/academy-ledger/internal/domain/dashboard"
	"github.com/xenking/academy-ledger/internal/domain/enrollment"
	"github.com/xenking/academy-ledger/internal/domain/marketer"
	"github.com/xenking/academy-ledger/internal/domain/referral"
	"github.com/xenking/academy-ledger/internal/events"
	"github.com/xenking/academy-ledger/internal/handler"
	"github.com/xenking/academy-ledger/internal/storage/postgres"
	"github.com/xenking/academy-ledger/pkg/health"
	"github.com/xenking/academy-ledger/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m httpmiddleware.Telemetry, cfg *Config) error {
	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	srv, err := NewServer(ctx, lg, m, cfg, pool)
	if err != nil {
		return err
	}
	defer srv.Close()

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           srv.Handler,
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		srv.health.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// Server is the assembled API: the middleware-wrapped handler and the
// background resources it owns.
type Server struct {
	Handler http.Handler

	health  *health.Health
	closers []func()
}

// Close stops health checks and releases the event publisher.
func (s *Server) Close() {
	s.health.Stop()
	s.closeAll()
}

// NewServer wires repositories, services and middleware on top of a migrated
// pool. The referral settings row is created from cfg when missing.
func NewServer(ctx context.Context, lg *zap.Logger, m httpmiddleware.Telemetry, cfg *Config, pool *pgxpool.Pool) (*Server, error) {
	mode, err := checkout.ParseMode(cfg.Payment.Mode)
	if err != nil {
		return nil, errors.Wrap(err, "payment mode")
	}
	defaults, err := cfg.Referral.Settings()
	if err != nil {
		return nil, errors.Wrap(err, "referral defaults")
	}
	lg.Info("Initializing", zap.String("addr", cfg.Addr), zap.String("payment_mode", string(mode)))

	srv := &Server{}

	// Repositories.
	catalogRepo := postgres.NewCatalogRepository(pool)
	cartRepo := postgres.NewCartRepository(pool)
	codeRepo := postgres.NewReferralRepository(pool)
	settingsRepo := postgres.NewSettingsRepository(pool)
	purchaseRepo := postgres.NewPurchaseRepository(pool)
	commissionRepo := postgres.NewCommissionRepository(pool)
	enrollmentRepo := postgres.NewEnrollmentRepository(pool)
	marketerRepo := postgres.NewMarketerRepository(pool)
	dashboardRepo := postgres.NewDashboardRepository(pool)
	apikeyRepo := postgres.NewAPIKeyRepository(pool)

	if err := settingsRepo.EnsureSettings(ctx, defaults); err != nil {
		return nil, errors.Wrap(err, "ensure referral settings")
	}

	// Purchase events.
	var publisher events.Publisher = events.Nop{}
	if len(cfg.Kafka.Brokers) > 0 {
		k, err := events.NewKafka(cfg.Kafka)
		if err != nil {
			return nil, errors.Wrap(err, "create kafka publisher")
		}
		srv.closers = append(srv.closers, func() {
			if err := k.Close(); err != nil {
				lg.Warn("Close kafka publisher", zap.Error(err))
			}
		})
		publisher = k
		lg.Info("Publishing purchase events", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	// Domain services.
	validator := referral.NewValidator(codeRepo)
	checkoutSvc, err := checkout.NewService(postgres.NewStore(pool), mode, publisher, m.TracerProvider(), m.MeterProvider())
	if err != nil {
		srv.closeAll()
		return nil, errors.Wrap(err, "create checkout service")
	}
	services := handler.Services{
		Catalog:     catalogRepo,
		Carts:       cart.NewService(cartRepo, catalogRepo, validator, enrollmentRepo),
		Checkout:    checkoutSvc,
		Commissions: commission.NewService(commissionRepo),
		Referrals:   referral.NewService(codeRepo, settingsRepo),
		Validator:   validator,
		Purchases:   purchaseRepo,
		Enrollments: enrollment.NewGranter(enrollmentRepo),
		Marketers:   marketer.NewService(marketerRepo),
		Dashboard:   dashboard.NewService(dashboardRepo),
	}

	// Health check service.
	srv.health = health.New()
	srv.health.AddReadinessCheck("postgres", 5*time.Second, health.Ping(pool))
	srv.health.AddLivenessCheck("goroutines", time.Second, health.MaxGoroutines(10000))
	srv.health.AddLivenessCheck("gc_pause", time.Second, health.MaxGCPause(time.Second))
	srv.health.Start(ctx, 10*time.Second)
	srv.health.SetReady(true)

	// HTTP handlers.
	h := handler.NewHandler(
		services,
		auth.NewTokens([]byte(cfg.JWTSecret), cfg.JWTIssuer),
		handler.NewSecurityHandler(apikeyRepo, []byte(cfg.APIKeyPepper)),
	)

	// Mux: health endpoints + API routes on one server.
	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", srv.health.LiveEndpoint)
	mux.HandleFunc("GET /readyz", srv.health.ReadyEndpoint)
	h.Register(mux)
	routeFinder := httpmiddleware.MakeRouteFinder(mux)

	srv.Handler = httpmiddleware.Wrap(mux,
		httpmiddleware.Recovery(),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			AllowOrigins:     cfg.CORS.Origins,
			AllowHeaders:     []string{"Content-Type", "Authorization", handler.APIKeyHeader},
			ExposeHeaders:    []string{httpmiddleware.RequestIDHeader, "X-RateLimit-Remaining", "Retry-After"},
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           86400,
		}),
		httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
			Max:    cfg.RateLimit.Max,
			Window: cfg.RateLimit.Window,
			Skip:   httpmiddleware.SkipPaths("/livez", "/readyz"),
		}),
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(zctx.From(ctx)),
		httpmiddleware.Instrument("academy-ledger", routeFinder, m),
		httpmiddleware.LogRequests(routeFinder),
		httpmiddleware.Labeler(routeFinder),
	)
	return srv, nil
}

func (s *Server) closeAll() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}
