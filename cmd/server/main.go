package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"tangled.org/arabica.social/sanctions/internal/database"
	"tangled.org/arabica.social/sanctions/internal/handlers"
	"tangled.org/arabica.social/sanctions/internal/metrics"
	"tangled.org/arabica.social/sanctions/internal/middleware"
	"tangled.org/arabica.social/sanctions/internal/moderation"
	"tangled.org/arabica.social/sanctions/internal/ratelimit"
	"tangled.org/arabica.social/sanctions/internal/routing"
	"tangled.org/arabica.social/sanctions/internal/tracing"
)

const (
	collectorInterval = 30 * time.Second
	shutdownTimeout   = 10 * time.Second
)

func main() {
	// A missing .env is fine; real environment variables always win.
	_ = godotenv.Load()

	configureLogging(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))

	log.Info().Msg("Starting sanctions service")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
	log.Info().Msg("Server stopped")
}

// configureLogging sets the global zerolog level and output format.
func configureLogging(level, format string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info", "":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	// Use pretty console logging in development, JSON in production
	if format == "json" {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	}
}

func run(ctx context.Context) error {
	port := os.Getenv("PORT")
	if port == "" {
		port = "18920"
	}

	if os.Getenv("TRACING_ENABLED") == "true" {
		tp, err := tracing.Init(ctx)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("Failed to flush traces")
			}
		}()
		log.Info().Msg("Tracing enabled")
	}

	if spec := os.Getenv("TRUSTED_PROXIES"); spec != "" {
		proxies, err := middleware.ParseTrustedProxies(spec)
		if err != nil {
			return fmt.Errorf("parse TRUSTED_PROXIES: %w", err)
		}
		middleware.SetTrustedProxies(proxies)
		log.Info().Int("count", len(proxies)).Msg("Trusting forwarding headers from proxies")
	}

	dbDriver := os.Getenv("SANCTIONS_DB_DRIVER")
	dbPath := os.Getenv("SANCTIONS_DB_PATH")
	store, err := database.Open(database.Options{Driver: dbDriver, Path: dbPath})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	log.Info().Str("driver", dbDriver).Str("path", dbPath).Msg("Database opened")

	if seedPath := os.Getenv("IDENTITY_SEED_PATH"); seedPath != "" {
		identities, err := loadIdentities(seedPath)
		if err != nil {
			return fmt.Errorf("load identity seed: %w", err)
		}
		for _, identity := range identities {
			if err := store.PutIdentity(ctx, identity); err != nil {
				return fmt.Errorf("seed identity %s: %w", identity.ID, err)
			}
		}
		log.Info().
			Int("count", len(identities)).
			Str("file", seedPath).
			Msg("Loaded identities from seed file")
	}

	policies, err := moderation.NewPolicies(os.Getenv("MODERATION_POLICY_PATH"))
	if err != nil {
		return fmt.Errorf("load moderation policy: %w", err)
	}

	limiter, closeLimiter, err := newLimiter(ctx, os.Getenv("REDIS_URL"), policies.Current())
	if err != nil {
		return err
	}
	defer closeLimiter()

	svc := moderation.NewService(store, limiter, policies)
	h := handlers.NewHandler(svc, store)

	handler := routing.SetupRouter(routing.Config{
		Handlers:    h,
		Identities:  store,
		ActorHeader: os.Getenv("ACTOR_HEADER"),
		Logger:      log.Logger,
	})

	srv := &http.Server{
		Addr:              "0.0.0.0:" + port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().
			Str("address", srv.Addr).
			Str("url", "http://localhost:"+port).
			Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return metrics.RunCollector(ctx, metrics.StatsSource{
			ActiveSanctionCount: store.CountActiveSanctions,
		}, collectorInterval)
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// newLimiter returns the Redis limiter when redisURL is set, and an
// in-memory limiter otherwise. The returned func releases its resources.
func newLimiter(ctx context.Context, redisURL string, policy moderation.Policy) (ratelimit.Limiter, func(), error) {
	if redisURL != "" {
		client, err := ratelimit.Connect(ctx, redisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		log.Info().Msg("Using Redis rate limiter")
		return ratelimit.NewRedisLimiter(client), func() { client.Close() }, nil
	}

	limiter := ratelimit.NewMemoryLimiter()
	stop := limiter.StartCleanupRoutine(time.Minute, time.Duration(policy.RateLimit.Window))
	log.Info().Msg("Using in-memory rate limiter")
	return limiter, stop, nil
}

// loadIdentities reads a JSON array of identities from path. Entries
// without an id or username are skipped with a warning.
func loadIdentities(path string) ([]moderation.Identity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil, nil
	}

	var raw []moderation.Identity
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	identities := make([]moderation.Identity, 0, len(raw))
	for i, identity := range raw {
		identity.ID = strings.TrimSpace(identity.ID)
		identity.Username = strings.TrimSpace(identity.Username)
		if identity.ID == "" || identity.Username == "" {
			log.Warn().
				Int("index", i).
				Str("file", path).
				Msg("Skipping identity without id or username")
			continue
		}
		identities = append(identities, identity)
	}
	return identities, nil
}
