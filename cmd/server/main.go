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

	"filmtrack/backend/internal/cache"
	"filmtrack/backend/internal/calc"
	"filmtrack/backend/internal/config"
	"filmtrack/backend/internal/httpapi"
	"filmtrack/backend/internal/metrics"
	"filmtrack/backend/internal/report"
	"filmtrack/backend/internal/service"
	"filmtrack/backend/internal/store"
	"filmtrack/backend/internal/store/memory"
	pgstore "filmtrack/backend/internal/store/postgres"
	"filmtrack/backend/internal/telemetry"
)

var version = "dev"

func main() {
	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}
	ratios, err := calc.NewRatios(cfg.AdditiveARatio, cfg.AdditiveBRatio)
	if err != nil {
		log.Fatalf("invalid additive ratios: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		if err := pg.Migrate(ctx); err != nil {
			log.Fatalf("migrations failed: %v", err)
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Println("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		log.Println("repository: in-memory")
	}

	cacheStore := cache.ReportCache(cache.NoopReportCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisReportCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Printf("redis unavailable (%v), using noop cache", err)
		} else {
			cacheStore = redisCache
			closers = append(closers, redisCache.Close)
			log.Println("cache: redis")
		}
	} else {
		log.Println("cache: noop")
	}

	shutdownTracing, err := telemetry.Setup(ctx, cfg.OTLPEndpoint, cfg.ServiceName, version)
	if err != nil {
		log.Printf("tracing disabled: %v", err)
		shutdownTracing = func(context.Context) error { return nil }
	}

	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New()
	}

	reports := report.NewEngine(cacheStore, time.Duration(cfg.ReportCacheTTLSeconds)*time.Second)
	svc := service.New(repo, reports, service.Options{
		Ratios:          &ratios,
		GasMaterialCode: cfg.GasMaterialCode,
		StrictStock:     cfg.StrictStock,
		Metrics:         m,
	})
	if err := bootstrapAdmin(ctx, svc, cfg); err != nil {
		log.Fatalf("bootstrap admin failed: %v", err)
	}
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo)
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
		log.Printf("filmtrack backend %s listening on %s", version, cfg.Address())
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
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Printf("tracer shutdown error: %v", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("server stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.AllowedOrigin == "*" && cfg.DatabaseURL != "" {
		return fmt.Errorf("ALLOWED_ORIGIN must name a concrete origin when a database is configured")
	}
	return nil
}

// bootstrapAdmin seeds the first admin from BOOTSTRAP_ADMIN_* when the user
// table is empty. Without a password it only warns.
func bootstrapAdmin(ctx context.Context, svc *service.Service, cfg config.Config) error {
	if cfg.BootstrapAdminPass == "" {
		if cfg.DatabaseURL != "" {
			log.Println("[bootstrap] WARN: BOOTSTRAP_ADMIN_PASSWORD is not set; an empty database will have no login")
		}
		return nil
	}
	created, err := svc.BootstrapAdmin(ctx, cfg.BootstrapAdminUser, cfg.BootstrapAdminPass)
	if err != nil {
		return err
	}
	if created {
		log.Printf("bootstrap: created admin %q", cfg.BootstrapAdminUser)
	}
	return nil
}
