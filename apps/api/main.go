package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	clientshandler "github.com/hourledger/hourledger/domains/clients/be/handler"
	clientsrepo "github.com/hourledger/hourledger/domains/clients/be/repo"
	clientsservice "github.com/hourledger/hourledger/domains/clients/be/service"
	periodshandler "github.com/hourledger/hourledger/domains/periods/be/handler"
	periodsrepo "github.com/hourledger/hourledger/domains/periods/be/repo"
	periodsservice "github.com/hourledger/hourledger/domains/periods/be/service"
	reportshandler "github.com/hourledger/hourledger/domains/reports/be/handler"
	reportsrepo "github.com/hourledger/hourledger/domains/reports/be/repo"
	reportsservice "github.com/hourledger/hourledger/domains/reports/be/service"
	tenantshandler "github.com/hourledger/hourledger/domains/tenants/be/handler"
	tenantsrepo "github.com/hourledger/hourledger/domains/tenants/be/repo"
	tenantsservice "github.com/hourledger/hourledger/domains/tenants/be/service"
	timeentrieshandler "github.com/hourledger/hourledger/domains/timeentries/be/handler"
	timeentriesrepo "github.com/hourledger/hourledger/domains/timeentries/be/repo"
	timeentriesservice "github.com/hourledger/hourledger/domains/timeentries/be/service"
	timershandler "github.com/hourledger/hourledger/domains/timers/be/handler"
	timersrepo "github.com/hourledger/hourledger/domains/timers/be/repo"
	timersservice "github.com/hourledger/hourledger/domains/timers/be/service"
	usershandler "github.com/hourledger/hourledger/domains/users/be/handler"
	usersrepo "github.com/hourledger/hourledger/domains/users/be/repo"
	usersservice "github.com/hourledger/hourledger/domains/users/be/service"
	platformauth "github.com/hourledger/hourledger/platform/go/auth"
	platformlogging "github.com/hourledger/hourledger/platform/go/logging"
	"github.com/hourledger/hourledger/platform/go/metrics"
	platformmiddleware "github.com/hourledger/hourledger/platform/go/middleware"
	"github.com/hourledger/hourledger/platform/go/persistence"
)

type config struct {
	Port                string        `env:"PORT" envDefault:"3000"`
	ShutdownTimeout     time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RequestTimeout      time.Duration `env:"REQUEST_TIMEOUT" envDefault:"15s"`
	LogLevel            string        `env:"LOG_LEVEL" envDefault:"info"`
	DatabaseURL         string        `env:"DATABASE_URL,required"`
	AuthProvider        string        `env:"AUTH_PROVIDER" envDefault:"firebase"` // firebase | dev
	FirebaseCredentials string        `env:"FIREBASE_CREDENTIALS"`
	RateLimitRPS        float64       `env:"RATE_LIMIT_RPS" envDefault:"20"`
	RateLimitBurst      int           `env:"RATE_LIMIT_BURST" envDefault:"40"`
}

func main() {
	ctx := context.Background()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := platformlogging.NewLogger(platformlogging.Config{
		Component: "api-server",
		Level:     cfg.LogLevel,
	})
	if err != nil {
		log.Fatalf("init zap logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: cfg.DatabaseURL})
	if err != nil {
		logger.Fatal("init postgres pool", zap.Error(err))
	}
	defer persistence.ClosePool(pool)

	registry := prometheus.NewRegistry()
	recorder := metrics.NewCollector(registry)

	tenantStore, err := persistence.NewTenantStore(pool)
	if err != nil {
		logger.Fatal("init tenant store", zap.Error(err))
	}
	userStore, err := persistence.NewUserStore(pool)
	if err != nil {
		logger.Fatal("init user store", zap.Error(err))
	}
	clientStore, err := persistence.NewClientStore(pool)
	if err != nil {
		logger.Fatal("init client store", zap.Error(err))
	}
	workstreamStore, err := persistence.NewWorkstreamStore(pool)
	if err != nil {
		logger.Fatal("init workstream store", zap.Error(err))
	}
	entryStore, err := persistence.NewEntryStore(pool)
	if err != nil {
		logger.Fatal("init entry store", zap.Error(err))
	}
	timerStore, err := persistence.NewTimerStore(pool)
	if err != nil {
		logger.Fatal("init timer store", zap.Error(err))
	}
	periodStore, err := persistence.NewPeriodStore(pool)
	if err != nil {
		logger.Fatal("init period store", zap.Error(err))
	}

	tenantService := tenantsservice.New(tenantsrepo.NewPostgresRepository(tenantStore), logger)
	userService := usersservice.New(usersrepo.NewPostgresRepository(userStore))
	periodService := periodsservice.New(periodsrepo.NewPostgresRepository(periodStore))
	clientService := clientsservice.New(
		clientsrepo.NewPostgresRepository(clientStore, workstreamStore),
		tenantService,
	)
	entryService := timeentriesservice.New(
		timeentriesrepo.NewPostgresRepository(pool, entryStore, clientStore, workstreamStore),
		periodService,
		tenantService,
		recorder,
	)
	timerService := timersservice.New(
		timersrepo.NewPostgresRepository(pool, timerStore, entryStore, clientStore, workstreamStore),
		periodService,
		tenantService,
		recorder,
	)
	reportService := reportsservice.New(
		reportsrepo.NewPostgresRepository(entryStore, clientStore, workstreamStore, userStore),
		tenantService,
		recorder,
	)

	verify := buildTokenVerifier(ctx, cfg, logger)
	limiter := platformmiddleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	rootRouter := chi.NewRouter()
	rootRouter.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		chimw.Timeout(cfg.RequestTimeout),
		platformmiddleware.DefaultCORS(),
	)
	rootRouter.Use(platformlogging.RequestLogger(logger))

	rootRouter.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rootRouter.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	rootRouter.Method(http.MethodGet, "/metrics", metrics.Handler(registry))

	apiRouter := chi.NewRouter()
	apiRouter.Use(platformauth.Bearer(verify, platformauth.DefaultIdentityExtractor))
	apiRouter.Use(resolvePrincipal(userStore, tenantService, logger))
	apiRouter.Use(limiter.Handler)
	apiRouter.Use(platformmiddleware.Metrics(recorder))

	apiRouter.Mount("/tenant", tenantshandler.New(tenantService, logger).Routes())
	apiRouter.Mount("/users", usershandler.New(userService, logger).Routes())
	apiRouter.Mount("/clients", clientshandler.New(clientService, logger).Routes())
	apiRouter.Mount("/time-entries", timeentrieshandler.New(entryService, logger).Routes())
	apiRouter.Mount("/timer", timershandler.New(timerService, logger).Routes())
	apiRouter.Mount("/periods", periodshandler.New(periodService, logger).Routes())
	apiRouter.Mount("/reports", reportshandler.New(reportService, logger).Routes())

	rootRouter.Mount("/api/v1", apiRouter)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      rootRouter,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		logger.Info("starting api server", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server listen failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
