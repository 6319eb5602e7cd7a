// Kestrel - contact-record classification and scoring.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/openlead/kestrel/internal/anomaly"
	"github.com/openlead/kestrel/internal/api"
	"github.com/openlead/kestrel/internal/batch"
	"github.com/openlead/kestrel/internal/bus"
	"github.com/openlead/kestrel/internal/cache"
	"github.com/openlead/kestrel/internal/domain"
	"github.com/openlead/kestrel/internal/geo"
	"github.com/openlead/kestrel/internal/mutate"
	"github.com/openlead/kestrel/internal/repository"
	"github.com/openlead/kestrel/internal/scoring"
	"github.com/openlead/kestrel/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// .env is optional; real deployments set environment variables directly
	_ = godotenv.Load()

	logLevel := slog.LevelInfo
	if os.Getenv("KESTREL_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("KESTREL_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	classifier, err := anomaly.New(anomaly.DefaultConfig())
	if err != nil {
		slog.Error("failed to initialize anomaly classifier", "error", err)
		os.Exit(1)
	}
	slog.Info("anomaly classifier initialized")

	engine := scoring.NewEngine(classifier)

	// GeoIP enrichment is optional and needs a MaxMind database on disk.
	var geoResolver batch.GeoResolver
	if cfg.GeoIP.Enabled {
		resolver, err := geo.Open(cfg.GeoIP.MMDB)
		if err != nil {
			slog.Error("failed to open geoip database", "error", err, "path", cfg.GeoIP.MMDB)
			os.Exit(1)
		}
		defer resolver.Close()
		geoResolver = resolver
		slog.Info("geoip resolver initialized", "mmdb", cfg.GeoIP.MMDB)
	}

	orchestrator := batch.NewOrchestrator(engine, cacheImpl, geoResolver, logger, cfg.Batch, 10*time.Minute)
	mutator := mutate.NewService(repo, logger)

	// Async batch worker (Pro tier, or opt-in)
	var asyncWorker *worker.Worker
	if cfg.Tier == domain.TierPro || os.Getenv("KESTREL_ASYNC_WORKER") == "true" {
		asyncWorker = worker.NewWorker(busImpl, repo, orchestrator, logger)

		tenantIDs := []string{}
		if envTenants := os.Getenv("KESTREL_TENANTS"); envTenants != "" {
			for _, t := range strings.Split(envTenants, ",") {
				if t = strings.TrimSpace(t); t != "" {
					tenantIDs = append(tenantIDs, t)
				}
			}
		}

		if err := asyncWorker.Start(worker.Config{
			TenantIDs:      tenantIDs,
			DebounceWindow: time.Duration(cfg.Batch.DebounceWindowMs) * time.Millisecond,
		}); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async worker started", "tenant_count", len(tenantIDs))
		}
	}

	handler := api.NewHandler(repo, cacheImpl, busImpl, engine, orchestrator, mutator, Version, cfg.Server.MaxBodyBytes)
	srv := api.NewServer(cfg.Server, handler)

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("kestrel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	<-ctx.Done()
	slog.Info("shutting down...")

	if asyncWorker != nil {
		asyncWorker.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kestrel shutdown complete")
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔════════════════════════════════════════════╗")
	fmt.Println("  ║                 KESTREL                    ║")
	fmt.Println("  ║     Contact Record Scoring Engine          ║")
	fmt.Println("  ║      Every record, weighed fairly.         ║")
	fmt.Println("  ╚════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /score             - Score a single record")
	fmt.Println("    POST /batch             - Score a batch of stored records")
	fmt.Println("    POST /mutate            - Bulk-patch stored records")
	fmt.Println("    GET  /configs           - List rule configurations")
	fmt.Println("    POST /configs           - Create a rule configuration")
	fmt.Println("    POST /configs/reload    - Re-validate and broadcast a config")
	fmt.Println("    GET  /configs/{name}    - Get a configuration document")
	fmt.Println("    GET  /records/{id}      - Get a record by ID")
	fmt.Println("    GET  /reports/{id}      - Get a batch report by ID")
	fmt.Println("    GET  /health            - Health check")
	fmt.Println()
}
