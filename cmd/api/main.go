package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	validator "github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-komisi/internal/common"
	"github.com/noah-isme/backend-komisi/internal/config"
	"github.com/noah-isme/backend-komisi/internal/health"
	"github.com/noah-isme/backend-komisi/internal/ledger"
	"github.com/noah-isme/backend-komisi/internal/lock"
	"github.com/noah-isme/backend-komisi/internal/obs"
	"github.com/noah-isme/backend-komisi/internal/ratelimit"
	"github.com/noah-isme/backend-komisi/internal/reports"
	"github.com/noah-isme/backend-komisi/internal/security"
)

const metricsNamespace = "komisi"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.Obs.LogFormat, cfg.Obs.LogLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsEnabled := cfg.Obs.MetricsEnabled
	if metricsEnabled {
		obs.MustRegisterDomainMetrics(metricsNamespace, nil)
	}

	tracingEnabled := cfg.Obs.TracingEnabled
	if tracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   cfg.Obs.ServiceName,
			Endpoint:      cfg.Obs.TracingEndpoint,
			Exporter:      cfg.Obs.TracingExporter,
			SamplingRatio: cfg.Obs.SamplingRatio,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	options, err := cfg.CommissionOptions()
	if err != nil {
		logger.Fatal().Err(err).Msg("commission options")
	}
	labels, err := cfg.Labels()
	if err != nil {
		logger.Fatal().Err(err).Msg("report labels")
	}

	if cfg.ReportOutputDir != "" {
		if err := os.MkdirAll(cfg.ReportOutputDir, 0o755); err != nil {
			logger.Fatal().Err(err).Str("dir", cfg.ReportOutputDir).Msg("create report output dir")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metricsEnabled {
		if err := redisotel.InstrumentMetrics(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

	taskClient := asynq.NewClient(reports.TaskRedisOpt(redisOpts))
	defer func() {
		if err := taskClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close task client")
		}
	}()

	reportService := reports.NewService(reports.ServiceConfig{
		Loader:    ledger.Loader{},
		Labels:    labels,
		Options:   options,
		Store:     reports.NewStore(redisClient, cfg.ReportCacheTTL),
		Locker:    lock.Locker{Client: redisClient},
		Queue:     taskClient,
		QueueName: cfg.JobQueue,
		MaxRetry:  cfg.JobMaxRetry,
		OutputDir: cfg.ReportOutputDir,
		Logger:    logger.With().Str("component", "reports").Logger(),
	})
	reportHandler := reports.NewHandler(reports.HandlerConfig{
		Service:   reportService,
		Validator: validator.New(validator.WithRequiredStructEnabled()),
		MaxUpload: cfg.MaxUploadBytes,
		Logger:    logger,
	})

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, obs.ParseBucketsCSV(cfg.Obs.MetricsBuckets), nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins(cfg),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Idempotency-Key"},
		ExposedHeaders: []string{"Content-Disposition", "Location", "X-Report-ID", "Idempotent-Replay"},
		MaxAge:         300,
	}))
	r.Use(security.Headers{Enable: cfg.SecurityHeaders, EnableHSTS: cfg.AppEnv == "production"}.Middleware)

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	probes := map[string]health.Probe{
		"redis": func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
	}
	if cfg.ReportOutputDir != "" {
		probes["output_dir"] = health.DirWritable(cfg.ReportOutputDir)
	}
	healthHandler := health.Handler{Probes: probes, Timeout: 300 * time.Millisecond}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Get("/", reportHandler.Form)

	limiter := ratelimit.Limiter{Client: redisClient, Prefix: ratelimit.DefaultPrefix}
	uploadLimit := func(scope string) func(http.Handler) http.Handler {
		return ratelimit.Handler{
			Limiter: limiter,
			Config: ratelimit.Config{
				Key:    ratelimit.ByClientIP(scope),
				Window: cfg.RateLimitWindow,
				Max:    cfg.RateLimitMax,
			},
			OnError: func(err error) {
				logger.Warn().Err(err).Str("scope", scope).Msg("rate limiter unavailable")
			},
		}.Middleware
	}
	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}

	r.Route("/api/v1/commission", func(v chi.Router) {
		v.Group(func(up chi.Router) {
			up.Use(security.BodyLimit{Max: cfg.MaxUploadBytes}.Middleware)
			up.With(uploadLimit("reports")).Post("/reports", reportHandler.Generate)
			up.With(uploadLimit("preview")).Post("/preview", reportHandler.Preview)
			up.With(uploadLimit("jobs"), idem.Middleware).Post("/jobs", reportHandler.Submit)
		})
		v.Get("/reports/{id}", reportHandler.Download)
		v.Get("/jobs/{id}", reportHandler.JobStatus)
		v.Get("/jobs/{id}/report", reportHandler.JobReport)
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serve(srv, logger)
}

// serve runs srv until SIGINT or SIGTERM, then drains in-flight requests.
func serve(srv *http.Server, logger zerolog.Logger) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
		return
	case <-ctx.Done():
	}

	health.SetReady(false)
	logger.Info().Msg("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown")
	}
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}
