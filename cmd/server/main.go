package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"bingopos/backend/internal/alert"
	"bingopos/backend/internal/assistant"
	"bingopos/backend/internal/cache"
	"bingopos/backend/internal/config"
	"bingopos/backend/internal/httpapi"
	"bingopos/backend/internal/metrics"
	"bingopos/backend/internal/presence"
	"bingopos/backend/internal/scheduler"
	"bingopos/backend/internal/service"
	"bingopos/backend/internal/store"
	"bingopos/backend/internal/store/memory"
	pgstore "bingopos/backend/internal/store/postgres"
	sqlitestore "bingopos/backend/internal/store/sqlite"
)

const devAdminPassword = "admin123"

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("could not read .env: %v", err)
	}

	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	closers := make([]func() error, 0, 4)

	repo, closeRepo, err := openRepository(ctx, cfg)
	if err != nil {
		log.Fatalf("repository: %v", err)
	}
	if closeRepo != nil {
		closers = append(closers, closeRepo)
	}

	warningCache := cache.WarningCache(cache.NoopWarningCache{})
	presenceTimeout := time.Duration(cfg.PresenceTimeoutSeconds) * time.Second
	tracker := presence.Tracker(presence.NewMemoryTracker(presenceTimeout))
	if cfg.RedisAddr != "" {
		client := cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		redisCache := cache.NewRedisWarningCache(client)
		if err := redisCache.Ping(ctx); err != nil {
			log.Printf("redis unavailable (%v), using noop cache and in-memory presence", err)
			_ = client.Close()
		} else {
			warningCache = redisCache
			tracker = presence.NewRedisTracker(client, "bingopos:presence:", presenceTimeout)
			closers = append(closers, client.Close)
			log.Println("cache: redis")
		}
	} else {
		log.Println("cache: noop")
	}

	ai, err := assistant.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.FraudMaxTotal)
	if err != nil {
		log.Printf("gemini unavailable (%v), using fixed rules only", err)
		ai = assistant.New(nil, cfg.FraudMaxTotal)
	}
	closers = append(closers, ai.Close)

	var advisor alert.Advisor
	opts := []service.Option{
		service.WithFraudChecker(ai),
		service.WithPresence(tracker),
	}
	if ai.HasModel() {
		advisor = ai
		opts = append(opts, service.WithAssistant(ai))
		log.Println("assistant: gemini")
	} else {
		log.Println("assistant: disabled")
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	runner := service.NewAsyncRunner(15 * time.Second)
	opts = append(opts,
		service.WithAlertEngine(alert.NewEngine(warningCache, time.Duration(cfg.WarningTTLSeconds)*time.Second, advisor)),
		service.WithMetrics(m),
		service.WithTaskRunner(runner),
	)
	svc := service.New(repo, opts...)

	if err := bootstrapAdmin(ctx, svc, cfg); err != nil {
		log.Fatalf("bootstrap admin: %v", err)
	}

	jobs, err := scheduler.New(svc, scheduler.Config{
		Interval:   time.Duration(cfg.ExpirySweepSeconds) * time.Second,
		PendingTTL: cfg.PendingOrderTTL(),
		JobTimeout: 30 * time.Second,
	})
	if err != nil {
		log.Fatalf("scheduler: %v", err)
	}
	jobs.Start()

	auth := httpapi.NewAuthManager(cfg.AuthSecret, cfg.AccessTokenTTL(), svc)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin, m)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("bingo POS backend listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	jobs.Stop()
	runner.Wait()

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("server stopped")
}

// openRepository prefers postgres, then sqlite, then the seeded in-memory
// store. A configured database that cannot be reached is fatal.
func openRepository(ctx context.Context, cfg config.Config) (store.Repository, func() error, error) {
	switch {
	case cfg.DatabaseURL != "":
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres unavailable and DATABASE_URL is set: %w", err)
		}
		if err := pg.Migrate(ctx); err != nil {
			_ = pg.Close()
			return nil, nil, fmt.Errorf("postgres migrate: %w", err)
		}
		log.Println("repository: postgres")
		return pg, pg.Close, nil
	case cfg.SQLitePath != "":
		lite, err := sqlitestore.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("sqlite %s: %w", cfg.SQLitePath, err)
		}
		log.Printf("repository: sqlite (%s)", cfg.SQLitePath)
		return lite, lite.Close, nil
	default:
		log.Println("repository: in-memory")
		return memory.NewSeeded(), nil, nil
	}
}

func bootstrapAdmin(ctx context.Context, svc *service.Service, cfg config.Config) error {
	password := cfg.SeedAdminPassword
	if password == "" {
		password = devAdminPassword
	}
	created, err := svc.Bootstrap(ctx, cfg.SeedAdminUsername, password)
	if err != nil {
		return err
	}
	if created {
		log.Printf("created initial cashier %q", cfg.SeedAdminUsername)
		if cfg.SeedAdminPassword == "" {
			log.Printf("WARN: SEED_ADMIN_PASSWORD is not set, initial cashier uses the development password")
		}
	}
	return nil
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.SeedAdminPassword != "" && len(cfg.SeedAdminPassword) < 8 {
		return fmt.Errorf("SEED_ADMIN_PASSWORD must have at least 8 characters")
	}
	return nil
}
