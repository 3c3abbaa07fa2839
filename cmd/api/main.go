package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
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
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"

	"github.com/noah-isme/flyer-quote/internal/areas"
	"github.com/noah-isme/flyer-quote/internal/cache"
	"github.com/noah-isme/flyer-quote/internal/common"
	"github.com/noah-isme/flyer-quote/internal/config"
	"github.com/noah-isme/flyer-quote/internal/events"
	"github.com/noah-isme/flyer-quote/internal/health"
	jsonmw "github.com/noah-isme/flyer-quote/internal/http/middleware"
	"github.com/noah-isme/flyer-quote/internal/lock"
	"github.com/noah-isme/flyer-quote/internal/obs"
	"github.com/noah-isme/flyer-quote/internal/pricetable"
	"github.com/noah-isme/flyer-quote/internal/quote"
	"github.com/noah-isme/flyer-quote/internal/ratelimit"
	"github.com/noah-isme/flyer-quote/internal/remote"
	"github.com/noah-isme/flyer-quote/internal/security"
)

func main() {
	cfg := config.MustLoad()

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "flyer")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		sampling := envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0)
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:    "flyer-quote",
			ServiceVersion: envOrDefault("APP_VERSION", ""),
			Endpoint:       envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:       envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio:  sampling,
			Environment:    cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				ctx := context.Background()
				if err := shutdown(ctx); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	calendar, err := cfg.Calendar()
	if err != nil {
		logger.Fatal().Err(err).Msg("quote calendar")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("parse redis url")
		}
		redisClient = redis.NewClient(redisOpts)
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
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logger.Fatal().Err(err).Msg("ping redis")
		}
	} else {
		logger.Warn().Msg("REDIS_URL not set; quote sessions are kept in memory")
	}

	sourceOpts := func(name string) remote.Options {
		return remote.Options{
			Timeout:     cfg.ReferenceFetchTimeout,
			MaxAttempts: cfg.ReferenceFetchAttempts,
			Redis:       redisClient,
			CacheKey:    cache.KeyReference(name),
			CacheTTL:    cfg.ReferenceCacheTTL,
			Logger:      logger,
		}
	}

	prices := pricetable.NewProvider(remote.Open(cfg.PriceTableSource, sourceOpts("prices")), logger)
	go prices.Run(ctx, 5*time.Second)

	loadCtx, cancelLoad := context.WithTimeout(ctx, 30*time.Second)
	directory, err := areas.Load(loadCtx, remote.Open(cfg.AreasSource, sourceOpts("areas")), logger)
	cancelLoad()
	if err != nil {
		logger.Fatal().Err(err).Msg("load area directory")
	}

	waitCtx, cancelWait := context.WithTimeout(ctx, cfg.PriceTableWait)
	if _, err := prices.Wait(waitCtx); err != nil {
		logger.Warn().Err(err).Dur("waited", cfg.PriceTableWait).Msg("serving degraded quotes until the price table loads")
	}
	cancelWait()

	bus := &events.Bus{Notifiers: []events.Notifier{events.LogNotifier{Logger: logger}}}
	svc := &quote.Service{
		Prices:   prices,
		Calendar: calendar,
		Events:   bus,
		Logger:   logger,
	}
	var limiter ratelimit.Allower = ratelimit.NewMemory()
	if redisClient != nil {
		svc.Store = quote.NewRedisStore(redisClient, cfg.QuoteSessionTTL)
		svc.Locker = lock.Locker{
			Client:     redisClient,
			MaxBackoff: 200 * time.Millisecond,
			OnRelease: func(key string, err error) {
				logger.Warn().Err(err).Str("key", key).Msg("release quote lock")
			},
		}
		bus.Store = events.RedisStreamStore{Client: redisClient, Stream: cache.StreamEvents}
		limiter = ratelimit.SlidingWindow{Client: redisClient, Prefix: cache.KeyRateLimit()}
	} else {
		svc.Store = &quote.MemoryStore{TTL: cfg.QuoteSessionTTL}
	}
	quoteHandler := &quote.Handler{Svc: svc, Areas: directory, Prices: prices, Logger: logger}
	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL, Scope: ratelimit.ByClientIP}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if metricsEnabled && httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"Idempotent-Replayed", "X-RateLimit-Remaining"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(security.Headers{
		Enable:     cfg.SecurityHeaders,
		EnableHSTS: cfg.AppEnv == "production",
		Public:     []string{"/api/v1/price-table", "/api/v1/areas"},
	}.Middleware)

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	pprofEnabled := envBool("OBS_ENABLE_PPROF", false)
	if pprofEnabled {
		user := envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", "")
		pass := envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", "")
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), user, pass))
	}

	healthHandler := health.Handler{
		Checks:  readinessChecks(prices, directory, redisClient),
		Timeout: envDurationMillis("HEALTH_READY_TIMEOUT_MS", 300),
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(security.BodyLimit{Max: cfg.BodyLimitBytes}.Middleware)
		v.Use(ratelimit.Handler{
			Limiter: limiter,
			Key:     ratelimit.ByClientIP,
			Read:    ratelimit.Rule{Window: cfg.RateLimitWindow, Max: cfg.RateLimitMax},
			Write:   ratelimit.Rule{Window: cfg.RateLimitWindow, Max: cfg.RateLimitWrites},
			OnError: func(err error) { logger.Error().Err(err).Msg("rate limiter") },
		}.Middleware)
		v.Use(jsonmw.RequireJSON)

		v.Get("/areas", quoteHandler.SearchAreas)
		v.Get("/price-table", quoteHandler.PriceTable)

		v.With(idem.Middleware).Post("/quotes", quoteHandler.Create)
		v.Route("/quotes/{id}", func(q chi.Router) {
			q.Get("/", quoteHandler.Get)
			q.Delete("/", quoteHandler.Delete)
			q.Post("/units", quoteHandler.AddUnits)
			q.Delete("/units", quoteHandler.ClearUnits)
			q.Delete("/units/{unitId}", quoteHandler.RemoveUnit)
			q.Put("/units/{unitId}/override", quoteHandler.SetOverride)
			q.Put("/audience", quoteHandler.SetAudience)
			q.Put("/schedule", quoteHandler.SetSchedule)
			q.Put("/production", quoteHandler.SetProduction)
			q.Patch("/contact", quoteHandler.PatchContact)
		})
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		health.SetReady(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown server")
		}
	}()

	logger.Info().Str("addr", srv.Addr).Int("areas", directory.Len()).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
	logger.Info().Msg("server stopped")
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

// readinessChecks gates traffic on the price table. An empty area directory
// only degrades, and Redis is checked only when configured.
func readinessChecks(prices *pricetable.Provider, directory *areas.Directory, client *redis.Client) []health.Check {
	checks := []health.Check{
		{Name: "priceTable", Run: func(context.Context) error {
			if prices.Current() == nil {
				return errors.New("loading")
			}
			return nil
		}},
		{Name: "areas", Optional: true, Run: func(context.Context) error {
			if directory.Len() == 0 {
				return errors.New("empty directory")
			}
			return nil
		}},
	}
	if client != nil {
		checks = append(checks, health.Check{Name: "redis", Run: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}})
	}
	return checks
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDurationMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/heap", pprof.Handler("heap"))
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
