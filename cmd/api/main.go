package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pasarloka/keranjang/internal/app"
	"github.com/pasarloka/keranjang/internal/auth"
	"github.com/pasarloka/keranjang/internal/cart"
	"github.com/pasarloka/keranjang/internal/catalog"
	"github.com/pasarloka/keranjang/internal/common"
	"github.com/pasarloka/keranjang/internal/config"
	"github.com/pasarloka/keranjang/internal/customer"
	"github.com/pasarloka/keranjang/internal/discount"
	"github.com/pasarloka/keranjang/internal/events"
	"github.com/pasarloka/keranjang/internal/health"
	"github.com/pasarloka/keranjang/internal/lock"
	"github.com/pasarloka/keranjang/internal/obs"
	"github.com/pasarloka/keranjang/internal/ratelimit"
	"github.com/pasarloka/keranjang/internal/security"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const metricsNamespace = "keranjang"

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func envFloat(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func envInt64(key string, fallback int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func main() {
	cfg := config.MustLoad()

	logger := obs.NewLogger(
		envOrDefault("LOG_FORMAT", "json"),
		envOrDefault("LOG_LEVEL", "info"),
	)

	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := obs.InitTracer(ctx, obs.TracingConfig{
		ServiceName:   envOrDefault("OTEL_SERVICE_NAME", "keranjang-api"),
		Endpoint:      envOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		Exporter:      envOrDefault("OTEL_TRACES_EXPORTER", "otlp"),
		SamplingRatio: envFloat("OTEL_TRACES_SAMPLER_RATIO", 1.0),
		Environment:   cfg.AppEnv,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("init tracer")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("tracer shutdown")
		}
	}()

	deps, err := app.Connect(ctx, cfg.DatabaseURL, cfg.RedisURL, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect backends")
	}
	defer deps.Close()
	pool, redisClient := deps.DB, deps.Redis

	if envBool("RUN_MIGRATIONS", true) {
		if err := app.Migrate(envOrDefault("MIGRATIONS_URL", "file://migrations"), cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("run migrations")
		}
	}

	discountStore := &discount.Store{Pool: pool}
	bus := &events.Bus{
		Store:     &events.PGStore{Pool: pool},
		Notifiers: []events.Notifier{events.LogNotifier{Logger: logger}},
	}
	redeemer := &discount.Redeemer{
		Pool:   pool,
		Events: bus,
		Logger: logger,
		Now:    time.Now,
	}

	catalogCache := catalog.NewCache(redisClient, envDuration("CATALOG_CACHE_TTL", time.Minute))
	catalogSvc := catalog.NewService(catalog.ServiceConfig{
		Variants: &catalog.Store{Pool: pool},
		Offers:   discountStore,
		Cache:    catalogCache,
		Logger:   logger,
	})

	customers := &customer.Store{Pool: pool}

	sessions := &cart.SessionStore{
		Client: redisClient,
		TTL:    cfg.SessionTTL,
		Logger: logger,
	}
	cartSvc := &cart.Service{
		Sessions:  sessions,
		Catalog:   catalogSvc,
		Discounts: discountStore,
		Redeemer:  redeemer,
		Events:    bus,
		Staleness: cfg.StalenessWindow,
		Now:       time.Now,
		Logger:    logger,
	}

	voucherLimiter, err := ratelimit.NewRedisLimiter(redisClient, "rl:voucher")
	if err != nil {
		logger.Fatal().Err(err).Msg("init voucher limiter")
	}
	limiterMW := ratelimit.Handler{
		Limiter: voucherLimiter,
		Config: ratelimit.Config{
			Key: func(r *http.Request) string {
				if id, ok := common.CustomerID(r.Context()); ok {
					return "cust:" + id
				}
				return "ip:" + common.ClientIP(r)
			},
			Window: time.Minute,
			Max:    cfg.VoucherApplyPerMinute,
		},
		OnError: func(err error) {
			logger.Warn().Err(err).Msg("voucher rate limiter")
		},
	}.Middleware

	cartHandler := &cart.Handler{
		Svc:       cartSvc,
		Customers: customers,
		Locks:     lock.Locker{R: redisClient},
		LockTTL:   envDuration("CART_LOCK_TTL", 5*time.Second),
	}
	catalogHandler := &catalog.Handler{
		Gateway:   catalogSvc,
		Customers: customers,
		Now:       time.Now,
	}

	authSvc := auth.NewService(cfg.JWTSecret, auth.TokenValidator{})
	authMW := auth.Middleware{Service: authSvc, AccessCookie: envOrDefault("AUTH_ACCESS_COOKIE", "access_token")}

	idem := common.Idem{R: redisClient, TTL: envDuration("IDEMPOTENCY_TTL", 10*time.Minute)}

	httpMetrics := obs.NewHTTPMetrics(metricsNamespace, obs.ParseBucketsCSV(os.Getenv("HTTP_DURATION_BUCKETS_MS")), nil)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(security.Headers{
		Enable:     envBool("SECURITY_HEADERS", true),
		EnableHSTS: envBool("SECURITY_HSTS", false),
	}.Middleware)
	r.Use(security.BodyLimit{Max: envInt64("MAX_BODY_BYTES", 1<<20)}.Middleware)
	r.Use(obs.RoutePatternMiddleware)
	r.Use(obs.TracingMiddleware)
	r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-Cart-Session"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Handle("/metrics", promhttp.Handler())

	healthHandler := health.Handler{Checker: health.Probe{Pool: pool, Redis: redisClient}}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(authMW.Authenticate)
		catalogHandler.Mount(r)
		r.Route("/cart", func(r chi.Router) {
			if envBool("SECURITY_CSRF", false) {
				r.Use(security.CSRF{}.Middleware)
			}
			r.Use(idem.Middleware)
			cartHandler.Mount(r, limiterMW)
		})
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           otelhttp.NewHandler(r, "keranjang-api"),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Str("env", cfg.AppEnv).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server")
		}
	}

	health.SetReady(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), envDuration("SHUTDOWN_TIMEOUT", 15*time.Second))
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown")
	}
	logger.Info().Msg("server stopped")
}
