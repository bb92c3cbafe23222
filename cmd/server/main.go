package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/sentinelhq/sentinel/internal/api"
	"github.com/sentinelhq/sentinel/internal/catalog"
	"github.com/sentinelhq/sentinel/internal/config"
	"github.com/sentinelhq/sentinel/internal/emit"
	"github.com/sentinelhq/sentinel/internal/engine"
	"github.com/sentinelhq/sentinel/internal/record"
	"github.com/sentinelhq/sentinel/internal/store"
	"github.com/sentinelhq/sentinel/internal/stream"
)

func main() {
	addr := flag.String("addr", ":8080", "HTTP listen address")
	cfgPath := flag.String("config", "", "Path to YAML config (defaults apply when empty)")
	noStream := flag.Bool("no-stream", false, "Disable the TCP stream client (HTTP ingestion only)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// ── Load config ──────────────────────────────────────────────────────────
	var loader *config.Loader
	cfg := config.Default()
	if *cfgPath != "" {
		var err error
		loader, err = config.NewLoader(*cfgPath)
		if err != nil {
			slog.Error("failed to load config", "err", err)
			os.Exit(1)
		}
		cfg = loader.Config()
	}
	if err := config.Validate(cfg); err != nil {
		slog.Error("config validation failed", "err", err)
		os.Exit(1)
	}

	// ── Reference data ────────────────────────────────────────────────────────
	cat := catalog.Empty()
	if cfg.Catalog.Products != "" {
		var err error
		cat, err = catalog.Load(cfg.Catalog.Products, cfg.Catalog.Customers)
		if err != nil {
			slog.Error("failed to load catalog", "err", err)
			os.Exit(1)
		}
		slog.Info("catalog loaded", "products", cat.Products(), "customers", cat.Customers())
	}

	// ── Sinks ─────────────────────────────────────────────────────────────────
	sink, err := emit.NewFileSink(cfg.Output.EventsFile)
	if err != nil {
		slog.Error("failed to open events file", "path", cfg.Output.EventsFile, "err", err)
		os.Exit(1)
	}
	defer sink.Close()

	hub := api.NewHub()
	opts := []emit.Option{emit.WithBroadcaster(hub)}
	if cfg.Broadcast.Kafka.Enabled {
		kb := emit.NewKafkaBroadcaster(cfg.Broadcast.Kafka.Brokers, cfg.Broadcast.Kafka.Topic)
		defer kb.Close()
		opts = append(opts, emit.WithBroadcaster(kb))
		slog.Info("kafka broadcast enabled", "topic", cfg.Broadcast.Kafka.Topic)
	}
	emitter := emit.New(sink, opts...)

	var audit *store.Store
	if cfg.Output.AuditDB != "" {
		audit, err = store.Open(cfg.Output.AuditDB)
		if err != nil {
			slog.Error("failed to open audit store", "path", cfg.Output.AuditDB, "err", err)
			os.Exit(1)
		}
		defer audit.Close()
	}

	// ── Engine ────────────────────────────────────────────────────────────────
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng := engine.New(ctx, cat, emitter, audit, cfg)

	// ── Hot-reload watcher ────────────────────────────────────────────────────
	if loader != nil {
		loader.OnChange(func(newCfg *config.Config) {
			if err := config.Validate(newCfg); err != nil {
				slog.Warn("hot-reload skipped: config invalid", "err", err)
				return
			}
			eng.SwapThresholds(engine.ThresholdsFromConfig(newCfg.Detection))
			slog.Info("detection thresholds hot-reloaded", "version", newCfg.Version)
		})
		stopWatch, err := loader.Watch()
		if err != nil {
			slog.Warn("config watcher unavailable (hot-reload disabled)", "err", err)
		} else {
			defer stopWatch()
		}
	}

	// ── Stream ingestion ──────────────────────────────────────────────────────
	var streamWG sync.WaitGroup
	if !*noStream {
		streamAddr := fmt.Sprintf("%s:%d", cfg.Stream.Host, cfg.Stream.Port)
		client := stream.New(streamAddr,
			time.Duration(cfg.Stream.ReconnectDelayS)*time.Second,
			cfg.Stream.MaxRetries)
		streamWG.Add(1)
		go func() {
			defer streamWG.Done()
			err := client.Run(ctx, func(rec *record.Record) {
				rec.ID = uuid.New().String()
				eng.ProcessWait(ctx, rec)
			})
			if err != nil && err != context.Canceled {
				slog.Error("stream client stopped", "err", err)
				return
			}
			slog.Info("stream client finished")
		}()
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	handler := api.New(eng, loader, audit, hub)
	srv := &http.Server{
		Addr:         *addr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", *addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down…")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutCancel()
	_ = srv.Shutdown(shutCtx)
	cancel() // stop the stream client and session sweeper
	// The producer must be out of its submit path before the pool drains.
	streamWG.Wait()
	eng.Shutdown()
	// Flush session close-out checks so nothing observed goes unreported.
	eng.SweepSessions(time.Now().Add(24 * time.Hour))
	slog.Info("goodbye")
}
