package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"langcard-insight/internal/config"
	hhttp "langcard-insight/internal/handler/http"
	"langcard-insight/internal/handler/http/middleware"
	"langcard-insight/internal/handler/http/requestid"
	"langcard-insight/internal/infra/generator"
	"langcard-insight/internal/infra/streams"
	"langcard-insight/internal/observability/logging"
	"langcard-insight/internal/observability/metrics"
	"langcard-insight/internal/observability/tracing"
	"langcard-insight/internal/usecase/insight"
	pkgconfig "langcard-insight/pkg/config"
)

// maxBodyBytes bounds request bodies. Batches of note context fit well inside it.
const maxBodyBytes = 1 << 20

func main() {
	logger := initLogger()
	if err := run(logger); err != nil {
		logger.Error("server exited with error", slog.Any("error", err))
		os.Exit(1)
	}
}

// run wires the server and blocks until shutdown. Deferred cleanup always runs
// before it returns.
func run(logger *slog.Logger) error {
	aiConfig, err := config.LoadAIConfig()
	if err != nil {
		return fmt.Errorf("load AI configuration: %w", err)
	}

	shutdownTracing := tracing.Setup(pkgconfig.GetEnvFloat("TRACE_SAMPLE_RATIO", 0.1))
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logger.Error("failed to shut down tracing", slog.Any("error", err))
		}
	}()

	components, err := setupServer(logger, aiConfig, getVersion())
	if err != nil {
		return err
	}
	defer components.Close(logger)

	return runServer(logger, components, shutdownSignal())
}

// shutdownSignal is closed on SIGINT or SIGTERM.
func shutdownSignal() <-chan struct{} {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		<-quit
		close(done)
	}()
	return done
}

// initLogger initializes the process-wide JSON logger from LOG_LEVEL.
func initLogger() *slog.Logger {
	logger := logging.NewLogger()
	slog.SetDefault(logger)
	return logger
}

// getVersion returns the application version from environment or default.
func getVersion() string {
	return pkgconfig.GetEnvString("VERSION", "dev")
}

// ServerComponents holds components needed for server operation and cleanup.
type ServerComponents struct {
	Handler  http.Handler
	Addr     string
	Version  string
	Service  *insight.Service
	Streams  *streams.Registry
	Provider insight.Provider
	Refresh  string
}

// Close releases the stream registry and the backend client.
func (c *ServerComponents) Close(logger *slog.Logger) {
	c.Streams.Close()
	if closer, ok := c.Provider.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			logger.Error("failed to close AI backend", slog.Any("error", err))
		}
	}
}

// setupServer builds the insight service, the stream registry and the HTTP handler.
func setupServer(logger *slog.Logger, cfg *config.AIConfig, version string) (*ServerComponents, error) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Retry.Timeout)
	defer cancel()

	proxies, err := hhttp.ParseTrustedProxies(pkgconfig.GetEnvStringList("TRUSTED_PROXIES", nil))
	if err != nil {
		return nil, fmt.Errorf("parse TRUSTED_PROXIES: %w", err)
	}

	provider, err := generator.New(ctx, cfg, generator.NewPrometheusGenerationMetrics(), logger)
	if err != nil {
		return nil, fmt.Errorf("initialize AI backend: %w", err)
	}

	recorder := metrics.NewInsightRecorder()
	svc, err := insight.NewService(ctx, provider, insight.Config{
		MaxRetries: cfg.Retry.MaxRetries,
		Timeout:    cfg.Retry.Timeout,
		RetryDelay: cfg.Retry.Delay,
	}, insight.WithMetrics(recorder), insight.WithLogger(logger))
	if err != nil {
		if closer, ok := provider.(io.Closer); ok {
			_ = closer.Close()
		}
		return nil, fmt.Errorf("initialize insight service: %w", err)
	}

	logger.Info("insight service initialized",
		slog.String("backend", svc.Backend()),
		slog.Bool("available", svc.Available()),
		slog.Int("max_retries", cfg.Retry.MaxRetries),
		slog.Duration("timeout", cfg.Retry.Timeout),
		slog.Bool("auto_retry", cfg.AutoRetry.Enabled),
		slog.Int("attempt_budget", cfg.TotalAttemptBudget()))

	sessionOpts := sessionOptions(cfg, recorder)
	registry := streams.NewRegistry(cfg.StreamTTL, func() *insight.Session {
		return insight.NewSession(svc, sessionOpts)
	})

	mux := setupRoutes(svc, registry, cfg, recorder, version)
	handler := applyMiddleware(logger, mux, cfg, proxies)

	return &ServerComponents{
		Handler:  handler,
		Addr:     ":" + pkgconfig.GetEnvString("PORT", "8080"),
		Version:  version,
		Service:  svc,
		Streams:  registry,
		Provider: provider,
		Refresh:  cfg.AvailabilityRefresh,
	}, nil
}

// sessionOptions maps the auto-retry configuration onto session options.
func sessionOptions(cfg *config.AIConfig, recorder insight.MetricsRecorder) insight.SessionOptions {
	autoRetry := cfg.AutoRetry.Enabled
	maxRetries := cfg.AutoRetry.MaxRetries
	if maxRetries == 0 {
		// zero means "use the default" to NewSession
		maxRetries = -1
	}
	return insight.SessionOptions{
		AutoRetry:      &autoRetry,
		RetryDelay:     cfg.AutoRetry.Delay,
		MaxAutoRetries: maxRetries,
		Metrics:        recorder,
	}
}

// setupRoutes registers every HTTP route.
func setupRoutes(svc *insight.Service, registry *streams.Registry, cfg *config.AIConfig, recorder insight.MetricsRecorder, version string) *http.ServeMux {
	mux := http.NewServeMux()

	ctxOpts := insight.DefaultContextOptions()
	ctxOpts.MaxFieldChars = cfg.Context.MaxFieldChars
	ctxOpts.MaxTotalChars = cfg.Context.MaxTotalChars

	(&hhttp.InsightHandler{
		Service: svc,
		Streams: registry,
		Context: ctxOpts,
		Metrics: recorder,
	}).Register(mux)
	(&hhttp.AIHealthHandler{Service: svc}).Register(mux)

	mux.Handle("GET /health", &hhttp.HealthHandler{Service: svc, Streams: registry, Version: version})
	mux.Handle("GET /metrics", hhttp.MetricsHandler())
	return mux
}

// applyMiddleware wraps the handler with the middleware chain.
// Order: CORS → Request ID → Tracing → Rate Limit → Recovery → Logging → Body Limit → CSP → Metrics
func applyMiddleware(logger *slog.Logger, handler http.Handler, cfg *config.AIConfig, proxies *hhttp.TrustedProxies) http.Handler {
	corsConfig := middleware.CORSConfig{
		AllowedOrigins: pkgconfig.GetEnvStringList("CORS_ALLOWED_ORIGINS", []string{"chrome-extension://*", "moz-extension://*"}),
		Logger:         logger,
	}
	logger.Info("CORS enabled", slog.Any("allowed_origins", corsConfig.AllowedOrigins))

	clientRPS := pkgconfig.GetEnvFloat("CLIENT_RATE_LIMIT_RPS", 5)
	clientBurst := pkgconfig.GetEnvInt("CLIENT_RATE_LIMIT_BURST", 20)
	limiter := hhttp.NewClientRateLimiter(clientRPS, clientBurst, cfg.StreamTTL, proxies)
	logger.Info("client rate limiting initialized",
		slog.Float64("rps", clientRPS),
		slog.Int("burst", clientBurst),
		slog.Int("trusted_proxies", proxies.Len()))

	chain := handler
	chain = hhttp.MetricsMiddleware(chain)
	chain = middleware.SecurityHeaders(cspPolicy(logger))(chain)
	chain = hhttp.LimitRequestBody(maxBodyBytes)(chain)
	chain = hhttp.Logging(logger)(chain)
	chain = hhttp.Recover(logger)(chain)
	chain = limiter.Limit(chain)
	chain = tracing.Middleware(chain)
	chain = requestid.Middleware(chain)
	chain = middleware.CORS(corsConfig)(chain)
	return chain
}

// cspPolicy returns the API policy, switched to report-only by CSP_REPORT_ONLY.
func cspPolicy(logger *slog.Logger) *middleware.Policy {
	reportOnly := pkgconfig.GetEnvBool("CSP_REPORT_ONLY", false)
	policy := middleware.APIPolicy().
		ReportURI(pkgconfig.GetEnvString("CSP_REPORT_URI", "")).
		ReportOnly(reportOnly)
	logger.Info("CSP enabled", slog.Bool("report_only", reportOnly))
	return policy
}

// startAvailabilityRefresh re-probes the backend on the configured schedule.
func startAvailabilityRefresh(ctx context.Context, logger *slog.Logger, c *ServerComponents) (*cron.Cron, error) {
	if c.Refresh == "" {
		logger.Info("AI availability refresh disabled")
		return nil, nil
	}

	cr := cron.New()
	_, err := cr.AddFunc(c.Refresh, func() {
		probeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		c.Service.RefreshAvailability(probeCtx)
	})
	if err != nil {
		return nil, fmt.Errorf("schedule availability refresh: %w", err)
	}
	cr.Start()
	logger.Info("AI availability refresh scheduled", slog.String("schedule", c.Refresh))
	return cr, nil
}

// runServer serves until stop is closed or the listener fails, then shuts down gracefully.
func runServer(logger *slog.Logger, components *ServerComponents, stop <-chan struct{}) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cr, err := startAvailabilityRefresh(ctx, logger, components)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              components.Addr,
		Handler:           components.Handler,
		ReadHeaderTimeout: 10 * time.Second, // Prevent Slowloris attacks
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			slog.String("addr", components.Addr),
			slog.String("version", components.Version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- fmt.Errorf("listen on %s: %w", components.Addr, err)
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-stop:
		logger.Info("shutting down server...")
	case runErr = <-serveErr:
	}

	if cr != nil {
		<-cr.Stop().Done()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", slog.Any("error", err))
	}
	logger.Info("server stopped")
	return runErr
}
