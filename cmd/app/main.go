package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/shield4u/pagescope/internal/api"
	"github.com/shield4u/pagescope/internal/callback"
	"github.com/shield4u/pagescope/internal/extract"
	"github.com/shield4u/pagescope/internal/notifications"
	"github.com/shield4u/pagescope/internal/observability"
	"github.com/shield4u/pagescope/internal/render"
	"github.com/shield4u/pagescope/internal/scope"
	"github.com/shield4u/pagescope/internal/tasks"
	"github.com/shield4u/pagescope/internal/techdetect"
	"github.com/shield4u/pagescope/internal/util"
)

// Config holds the application configuration loaded from environment variables
type Config struct {
	Port                 string        // HTTP port to listen on
	Env                  string        // Environment (development/production)
	SentryDSN            string        // Sentry DSN for error tracking
	LogLevel             string        // Log level (debug, info, warn, error)
	ServiceName          string        // Service name echoed in callbacks and telemetry
	CallbackURL          string        // Primary callback endpoint
	LegacyCallbackURL    string        // Fallback callback endpoint
	CallbackTimeout      time.Duration // Upper bound for one delivery attempt
	CallbackJWTSecret    string        // Enables HS256 signing of callbacks when set
	Renderer             string        // Renderer to use (chrome or static)
	ChromePath           string        // Browser binary path; autodetected when empty
	RenderTimeout        time.Duration // Upper bound for one render session
	RenderSettle         time.Duration // Post-navigation settle delay
	MaxRenderSessions    int           // Concurrent browser session cap
	IncludeSubdomains    bool          // Widen crawl scope to subdomains of the target
	ScopePolicyFile      string        // YAML scope policy override file
	SlackBotToken        string        // Slack bot token for operator alerts
	SlackChannelID       string        // Slack channel for operator alerts
	ObservabilityEnabled bool          // Toggle OpenTelemetry + Prometheus exporters
	OTLPEndpoint         string        // OTLP HTTP endpoint for trace export
	OTLPHeaders          string        // Comma separated headers for OTLP exporter
	OTLPInsecure         bool          // Disable TLS verification for OTLP exporter
}

// loadConfig reads the environment into a Config, applying defaults.
func loadConfig() *Config {
	config := &Config{
		Port:                 getEnvWithDefault("PORT", "8080"),
		Env:                  getEnvWithDefault("ENV", "development"),
		SentryDSN:            os.Getenv("SENTRY_DSN"),
		LogLevel:             getEnvWithDefault("LOG_LEVEL", "info"),
		ServiceName:          getEnvWithDefault("SERVICE_NAME", "crawler"),
		CallbackURL:          os.Getenv("CALLBACK_URL"),
		LegacyCallbackURL:    os.Getenv("LEGACY_CALLBACK_URL"),
		CallbackTimeout:      time.Duration(getEnvInt("CALLBACK_TIMEOUT_SECONDS", 10)) * time.Second,
		CallbackJWTSecret:    os.Getenv("CALLBACK_JWT_SECRET"),
		Renderer:             getEnvWithDefault("RENDERER", "chrome"),
		ChromePath:           os.Getenv("CHROME_PATH"),
		RenderTimeout:        time.Duration(getEnvInt("RENDER_TIMEOUT_SECONDS", 60)) * time.Second,
		RenderSettle:         time.Duration(getEnvInt("RENDER_SETTLE_MS", 1000)) * time.Millisecond,
		MaxRenderSessions:    getEnvInt("MAX_RENDER_SESSIONS", 4),
		IncludeSubdomains:    getEnvWithDefault("INCLUDE_SUBDOMAINS", "false") == "true",
		ScopePolicyFile:      os.Getenv("SCOPE_POLICY_FILE"),
		SlackBotToken:        os.Getenv("SLACK_BOT_TOKEN"),
		SlackChannelID:       os.Getenv("SLACK_CHANNEL_ID"),
		ObservabilityEnabled: getEnvWithDefault("OBSERVABILITY_ENABLED", "true") == "true",
		OTLPEndpoint:         os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		OTLPHeaders:          os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"),
		OTLPInsecure:         getEnvWithDefault("OTEL_EXPORTER_OTLP_INSECURE", "false") == "true",
	}

	// DEBUG=true forces debug logging regardless of LOG_LEVEL
	if getEnvWithDefault("DEBUG", "false") == "true" {
		config.LogLevel = "debug"
	}

	return config
}

func main() {
	// Load .env files - .env.local takes priority for development
	godotenv.Load(".env.local", ".env")

	config := loadConfig()

	setupLogging(config)

	// Initialise Sentry for error tracking and performance monitoring
	if config.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:         config.SentryDSN,
			Environment: config.Env,
			TracesSampleRate: func() float64 {
				if config.Env == "production" {
					return 0.1 // 10% sampling in production
				}
				return 1.0 // 100% sampling in development
			}(),
			AttachStacktrace: true,
			Debug:            config.Env == "development",
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialise Sentry")
		} else {
			log.Info().Str("environment", config.Env).Msg("Sentry initialised successfully")
			// Ensure Sentry flushes before application exits
			defer sentry.Flush(2 * time.Second)
		}
	} else {
		log.Warn().Msg("Sentry DSN not configured, error tracking disabled")
	}

	var obsProviders *observability.Providers

	if config.ObservabilityEnabled {
		var err error
		obsProviders, err = observability.Init(context.Background(), observability.Config{
			Enabled:      true,
			ServiceName:  config.ServiceName,
			Environment:  config.Env,
			OTLPEndpoint: strings.TrimSpace(config.OTLPEndpoint),
			OTLPHeaders:  parseOTLPHeaders(config.OTLPHeaders),
			OTLPInsecure: config.OTLPInsecure,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialise observability providers")
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := obsProviders.Shutdown(shutdownCtx); err != nil {
					log.Warn().Err(err).Msg("Failed to flush telemetry providers cleanly")
				}
			}()
		}
	}

	// Load the scope policy. A broken policy file is a configuration error,
	// not something to silently replace with defaults.
	policy := scope.DefaultPolicy()
	if config.ScopePolicyFile != "" {
		loaded, err := scope.LoadPolicy(config.ScopePolicyFile)
		if err != nil {
			sentry.CaptureException(err)
			log.Fatal().Err(err).Str("path", config.ScopePolicyFile).Msg("Failed to load scope policy")
		}
		policy = loaded
		log.Info().Str("path", config.ScopePolicyFile).Msg("Loaded scope policy overrides")
	}
	// The env switch can only widen scope on top of whatever the policy file says
	if config.IncludeSubdomains {
		policy.IncludeSubdomains = true
	}

	// Build the renderer
	renderConfig := render.DefaultConfig()
	renderConfig.ChromePath = config.ChromePath
	renderConfig.Timeout = config.RenderTimeout
	renderConfig.Settle = config.RenderSettle
	renderConfig.MaxSessions = int64(config.MaxRenderSessions)

	var renderer render.Renderer
	rendererName := config.Renderer
	switch config.Renderer {
	case "static":
		renderer = render.NewStaticRenderer(renderConfig, policy)
	case "chrome":
		renderer = render.NewChromeRenderer(renderConfig, policy)
	default:
		log.Warn().Str("renderer", config.Renderer).Msg("Unknown renderer, falling back to chrome")
		rendererName = "chrome"
		renderer = render.NewChromeRenderer(renderConfig, policy)
	}
	log.Info().
		Str("renderer", rendererName).
		Dur("timeout", config.RenderTimeout).
		Int("max_sessions", config.MaxRenderSessions).
		Msg("Renderer configured")

	// Build the callback client
	var deliverer tasks.Deliverer
	if config.CallbackURL != "" || config.LegacyCallbackURL != "" {
		deliverer = callback.NewClient(&callback.Config{
			PrimaryURL:  config.CallbackURL,
			LegacyURL:   config.LegacyCallbackURL,
			Timeout:     config.CallbackTimeout,
			JWTSecret:   config.CallbackJWTSecret,
			ServiceName: config.ServiceName,
		}, policy.Retry)
	} else {
		log.Warn().Msg("No callback URL configured, task results will be dropped")
	}

	// Operator alerts go to Slack when a bot token and channel are configured
	notifier := notifications.NewService()
	if config.SlackBotToken != "" && config.SlackChannelID != "" {
		slackChannel, err := notifications.NewSlackChannel(config.SlackBotToken, config.SlackChannelID)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to configure Slack alerts")
		} else {
			notifier.AddChannel(slackChannel)
			log.Info().Str("channel", config.SlackChannelID).Msg("Slack alerts enabled")
		}
	}

	// Build the extractor. Fingerprinting degrades gracefully when the
	// wappalyzer ruleset fails to load.
	detector, err := techdetect.New()
	if err != nil {
		log.Warn().Err(err).Msg("Technology fingerprinting unavailable")
	}
	extractor := extract.NewExtractor(policy, detector)

	// Create the task runner
	runner := tasks.NewRunner(tasks.RunnerOptions{
		Renderer:     renderer,
		Extractor:    extractor,
		Deliverer:    deliverer,
		Notifier:     notifier,
		ServiceName:  config.ServiceName,
		RendererName: rendererName,
	})

	// Create a rate limiter
	limiter := newRateLimiter()

	// Create API handler with dependencies
	var metricsHandler http.Handler
	if obsProviders != nil {
		metricsHandler = obsProviders.MetricsHandler
	}
	apiHandler := api.NewHandler(runner, metricsHandler, config.ServiceName)

	// Create HTTP multiplexer
	mux := http.NewServeMux()

	// Setup API routes
	apiHandler.SetupRoutes(mux)

	// Create middleware stack with rate limiting
	var handler http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := util.GetClientIP(r)
		if !limiter.getLimiter(ip).Allow() {
			api.WriteErrorMessage(w, r, "Too many requests", http.StatusTooManyRequests, api.ErrCodeRateLimit)
			return
		}
		mux.ServeHTTP(w, r)
	})

	// Add middleware in reverse order (outermost first)
	handler = api.LoggingMiddleware(handler)
	handler = api.RequestIDMiddleware(handler)
	handler = api.SecurityHeadersMiddleware(handler)
	handler = observability.WrapHandler(handler, obsProviders)

	// Create a new HTTP server
	server := &http.Server{
		Addr:    ":" + config.Port,
		Handler: handler,
	}

	// Channel to listen for termination signals
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	// Channel to signal when the server has shut down
	done := make(chan struct{})

	go func() {
		<-stop
		log.Info().Msg("Shutting down server...")

		// Create shutdown context with timeout
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		// Stop accepting new requests
		if err := server.Shutdown(ctx); err != nil {
			sentry.CaptureException(err)
			log.Error().Err(err).Msg("Server forced to shutdown")
		}

		// In-flight tasks keep running until their callbacks are sent; the
		// render timeout bounds how long that can take
		if active := runner.ActiveCount(); active > 0 {
			log.Info().Int("active_tasks", active).Msg("Waiting for in-flight tasks to finish")
		}
		runner.Wait()

		close(done)
	}()

	// Start the server
	log.Info().
		Str("port", config.Port).
		Str("service", config.ServiceName).
		Str("environment", config.Env).
		Msg("Starting server")

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		sentry.CaptureException(err)
		log.Fatal().Err(err).Msg("Server error")
	}

	<-done // Wait for the shutdown process to complete
	log.Info().Msg("Server stopped")
}

// getEnvWithDefault retrieves an environment variable or returns a default value if not set
func getEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvInt retrieves an environment variable as an integer or returns a default value if not set or invalid
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var result int
	if _, err := fmt.Sscanf(value, "%d", &result); err != nil {
		log.Warn().
			Str("key", key).
			Str("value", value).
			Int("default", defaultValue).
			Msg("Invalid integer in environment variable, using default")
		return defaultValue
	}

	return result
}

func parseOTLPHeaders(raw string) map[string]string {
	headers := make(map[string]string)
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return headers
	}

	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}

		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" {
			continue
		}

		headers[key] = value
	}

	return headers
}

// setupLogging configures the logging system
func setupLogging(config *Config) {
	// Configure log level
	level, err := zerolog.ParseLevel(config.LogLevel)
	if err != nil {
		level = zerolog.WarnLevel
	}
	zerolog.SetGlobalLevel(level)

	// Use console writer in development
	if config.Env == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		// In production, use a JSON format that log aggregators can index
		log.Logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Str("service", config.ServiceName).
			Logger()
	}
}

// RateLimiter represents a rate limiting system based on client IP addresses
type RateLimiter struct {
	limits   map[string]*IPRateLimiter
	mu       sync.Mutex
	rate     rate.Limit
	capacity int
}

// IPRateLimiter wraps a token bucket rate limiter specific to an IP address
type IPRateLimiter struct {
	limiter *rate.Limiter
}

// newRateLimiter creates a new rate limiter with default settings
func newRateLimiter() *RateLimiter {
	return &RateLimiter{
		limits:   make(map[string]*IPRateLimiter),
		rate:     rate.Limit(20), // 20 requests per second per client
		capacity: 10,             // 10 burst capacity
	}
}

// getLimiter returns the rate limiter for a specific IP address
func (rl *RateLimiter) getLimiter(ip string) *IPRateLimiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limiter, exists := rl.limits[ip]
	if !exists {
		limiter = &IPRateLimiter{
			limiter: rate.NewLimiter(rl.rate, rl.capacity),
		}
		rl.limits[ip] = limiter
	}

	return limiter
}

// Allow checks if a request from this IP should be allowed
func (ipl *IPRateLimiter) Allow() bool {
	return ipl.limiter.Allow()
}
