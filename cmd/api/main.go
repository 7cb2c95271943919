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

	"sms-gateway/internal/audit"
	"sms-gateway/internal/auth"
	"sms-gateway/internal/config"
	"sms-gateway/internal/events"
	"sms-gateway/internal/funding"
	"sms-gateway/internal/gateway/chapa"
	"sms-gateway/internal/httpapi"
	"sms-gateway/internal/jobs"
	"sms-gateway/internal/ledger"
	"sms-gateway/internal/metrics"
	"sms-gateway/internal/migrations"
	"sms-gateway/internal/pricing"
	"sms-gateway/internal/recipients"
	"sms-gateway/internal/reporting"
	"sms-gateway/internal/tenant"
	"sms-gateway/pkg/logger"
	"sms-gateway/pkg/resilience"
	"sms-gateway/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	// A missing .env is fine; the environment wins either way.
	_ = godotenv.Load()

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if err := run(rootCtx, cfg, log); err != nil {
		log.Error("api stopped", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		return err
	}

	db, err := utils.OpenPostgres(ctx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.DB.AutoMigrate {
		if err := migrations.Up(ctx, db); err != nil {
			return err
		}
		v, _ := migrations.Version(ctx, db)
		log.Info("migrations applied", "version", v)
	}

	rdb, err := utils.OpenRedis(ctx, utils.RedisConfig{Addr: cfg.RedisAddr(), Password: cfg.Redis.Password})
	if err != nil {
		return err
	}
	defer rdb.Close()

	var publisher events.Publisher = events.Noop{}
	if cfg.NATS.URL != "" {
		nc, err := events.ConnectNATS(ctx, cfg.NATS.URL)
		if err != nil {
			return err
		}
		defer nc.Close()
		publisher = nc
	}

	m, err := metrics.New()
	if err != nil {
		return err
	}

	auditSvc := audit.NewService(audit.NewSQLRepo(db))
	ledgerSvc := ledger.NewService(ledger.NewPostgresStore(db), auditSvc)
	tenantSvc := tenant.NewService(tenant.NewSQLDirectory(db), auditSvc)

	tiers, err := pricing.NewCachedRepo(pricing.NewPostgresRepo(db), cfg.Pricing.CacheTTL)
	if err != nil {
		return err
	}
	defer tiers.Close()
	pricingSvc := pricing.NewService(tiers, auditSvc, cfg.Funding.Currency)
	if err := seedTiers(ctx, pricingSvc, cfg.Pricing.TiersFile, log); err != nil {
		return err
	}

	jobsSvc := jobs.NewService(
		jobs.NewPostgresStore(db),
		recipients.NewProvider(recipients.NewSQLGroups(db)),
		publisher, m, auditSvc,
	)

	gateway := chapa.NewClient(cfg.Chapa, resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Cooldown), m)
	fundingSvc := funding.NewService(funding.NewPostgresStore(db), pricingSvc, gateway, funding.Options{
		Currency:  cfg.Funding.Currency,
		LockTTL:   cfg.Funding.ConfirmLockTTL,
		Locker:    funding.NewRedisLocker(rdb),
		Publisher: publisher,
		Metrics:   m,
		Audit:     auditSvc,
	})

	h := httpapi.Handlers{
		Auth:          authManager,
		Jobs:          jobsSvc,
		Ledger:        ledgerSvc,
		Funding:       fundingSvc,
		Pricing:       pricingSvc,
		Tenants:       tenantSvc,
		Reporting:     reporting.NewService(ledgerSvc),
		Uploads:       httpapi.NewRedisUploadLimiter(rdb, cfg.SMS.BulkMaxInFlight, 10*time.Minute),
		MaxUploadSize: cfg.SMS.BulkMaxFileSize,
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	registerRoutes(r, h, routeDeps{
		authMW:        auth.RequireAccessToken(authManager),
		apiKeys:       tenantSvc,
		balances:      ledgerSvc,
		webhookSecret: cfg.Chapa.WebhookSecret,
		devLogin:      !cfg.IsProduction(),
		health:        func(ctx context.Context) error { return utils.HealthCheck(ctx, db, 2*time.Second) },
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown initiated")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func seedTiers(ctx context.Context, svc *pricing.Service, path string, log *slog.Logger) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	n, err := svc.SeedFromYAML(ctx, f)
	if err != nil {
		return err
	}
	if n > 0 {
		log.Info("pricing tiers seeded", "count", n, "file", path)
	}
	return nil
}
