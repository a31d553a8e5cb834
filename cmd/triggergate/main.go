package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tghttp "github.com/Strob0t/TriggerGate/internal/adapter/http"
	tgnats "github.com/Strob0t/TriggerGate/internal/adapter/nats"
	"github.com/Strob0t/TriggerGate/internal/adapter/natskv"
	"github.com/Strob0t/TriggerGate/internal/adapter/otel"
	"github.com/Strob0t/TriggerGate/internal/adapter/postgres"
	"github.com/Strob0t/TriggerGate/internal/adapter/ristretto"
	"github.com/Strob0t/TriggerGate/internal/adapter/schedule"
	"github.com/Strob0t/TriggerGate/internal/adapter/tiered"
	"github.com/Strob0t/TriggerGate/internal/adapter/ws"
	"github.com/Strob0t/TriggerGate/internal/config"
	"github.com/Strob0t/TriggerGate/internal/logger"
	"github.com/Strob0t/TriggerGate/internal/middleware"
	"github.com/Strob0t/TriggerGate/internal/resilience"
	"github.com/Strob0t/TriggerGate/internal/secrets"
	"github.com/Strob0t/TriggerGate/internal/service"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "admin" {
		if err := runAdmin(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		return
	}

	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	fs := flag.NewFlagSet("triggergate", flag.ExitOnError)
	cfgPath := fs.String("config", config.DefaultConfigFile, "path to the YAML configuration file")
	if err := fs.Parse(os.Args[1:]); err != nil {
		return err
	}

	cfg, err := config.LoadFrom(*cfgPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, closeLogger := logger.New(cfg.Logging)
	defer closeLogger.Close()
	slog.SetDefault(log)

	routing, err := config.LoadRouting(*cfgPath)
	if err != nil {
		return fmt.Errorf("routing: %w", err)
	}
	table, err := routing.Table()
	if err != nil {
		return err
	}

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"triggers", len(routing.Triggers),
		"bindings", len(routing.Bindings),
		"contexts", len(routing.Contexts),
	)

	vault, err := secrets.NewVault(secrets.EnvLoader(routing.SecretRefs()...))
	if err != nil {
		return fmt.Errorf("secrets: %w", err)
	}

	// SIGHUP re-reads every referenced secret without a restart.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		for range hup {
			if err := vault.Reload(); err != nil {
				slog.Error("secret reload failed", "error", err)
			} else {
				slog.Info("secrets reloaded", "keys", len(vault.Keys()))
			}
		}
	}()

	ctx := context.Background()

	// --- Telemetry ---
	shutdownTelemetry, err := otel.Init(ctx, cfg.Telemetry, cfg.Logging.Service)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			slog.Error("telemetry shutdown failed", "error", err)
		}
	}()

	metrics, err := otel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Infrastructure ---

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("postgres connected, migrations applied")

	store := postgres.NewAuditStore(pool)

	queue, err := tgnats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() {
		if err := queue.Drain(); err != nil {
			slog.Error("nats drain failed", "error", err)
		}
	}()

	// Delivery de-duplication: in-process ristretto in front of a NATS
	// KV bucket, so a restarted instance still rejects repeats.
	l1, err := ristretto.New(cfg.Dedup.MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("dedup cache: %w", err)
	}
	defer l1.Close()

	kv, err := queue.KeyValue(ctx, "dedup", cfg.Dedup.TTL)
	if err != nil {
		return fmt.Errorf("dedup bucket: %w", err)
	}
	dedup := tiered.New(l1, natskv.New(kv), cfg.Dedup.TTL)

	// --- Services ---

	hub := ws.NewHub()
	approvals := service.NewApprovals(store, hub)
	breaker := resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)
	dispatcher := service.NewDispatcher(queue, cfg.Dispatch, breaker, vault, hub, metrics)

	gateway, err := service.NewGateway(routing.Triggers, table, vault,
		dedup, cfg.Dedup.TTL, store, approvals, dispatcher, hub, metrics)
	if err != nil {
		return fmt.Errorf("gateway: %w", err)
	}
	gateway.RegisterAuditSink("postgres", store)

	cancelResults, err := dispatcher.SubscribeResults(ctx, gateway)
	if err != nil {
		return fmt.Errorf("result subscriber: %w", err)
	}
	defer cancelResults()

	// Scheduled triggers feed themselves through the normal pipeline.
	schedCtx, stopSchedules := context.WithCancel(ctx)
	defer stopSchedules()
	for i := range routing.Triggers {
		name := routing.Triggers[i].Name
		adapter, ok := gateway.Adapter(name)
		if !ok {
			continue
		}
		if src, ok := adapter.(*schedule.Source); ok {
			slog.Info("starting scheduled trigger", "trigger", name, "next", src.Next())
			go src.Run(schedCtx, func(ctx context.Context, body []byte) {
				if err := gateway.HandleInbound(ctx, name, body, nil); err != nil {
					slog.Error("scheduled delivery failed", "trigger", name, "error", err)
				}
			})
		}
	}

	// --- HTTP ---

	limiter := middleware.NewRateLimiter(cfg.Rate.RequestsPerSecond, cfg.Rate.Burst)
	stopCleanup := limiter.StartCleanup(cfg.Rate.CleanupInterval, cfg.Rate.MaxIdleTime)
	defer stopCleanup()

	handlers := tghttp.NewHandlers(gateway, approvals, store, store, queue)
	router := tghttp.NewRouter(handlers, hub, limiter, cfg.Operators, cfg.Server.CORSOrigin)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
