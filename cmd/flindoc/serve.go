package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/skshohagmiah/flindoc/internal/config"
	"github.com/skshohagmiah/flindoc/internal/db"
	"github.com/skshohagmiah/flindoc/internal/server"
	"github.com/skshohagmiah/flindoc/internal/storage"
)

var serveFlags struct {
	addr           string
	engine         string
	dataDir        string
	metricsAddr    string
	maxConnections int
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a database over TCP",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		fl := cmd.Flags()
		if fl.Changed("addr") {
			cfg.Server.Addr = serveFlags.addr
		}
		if fl.Changed("storage") {
			cfg.Storage.Engine = serveFlags.engine
		}
		if fl.Changed("data-dir") {
			cfg.Storage.Dir = serveFlags.dataDir
		}
		if fl.Changed("metrics-addr") {
			cfg.Metrics.Addr = serveFlags.metricsAddr
		}
		if fl.Changed("max-connections") {
			cfg.Server.MaxConnections = serveFlags.maxConnections
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		log, err := newLogger(cfg)
		if err != nil {
			return err
		}
		defer log.Sync()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, log)
	},
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveFlags.addr, "addr", ":7380", "TCP listen address")
	f.StringVar(&serveFlags.engine, "storage", config.EngineMemory, "storage engine: memory or badger")
	f.StringVar(&serveFlags.dataDir, "data-dir", "./data/db", "badger data directory")
	f.StringVar(&serveFlags.metricsAddr, "metrics-addr", ":9380", "HTTP address for /metrics; empty disables it")
	f.IntVar(&serveFlags.maxConnections, "max-connections", 1024, "concurrent connection limit; 0 is unlimited")
}

// openDatabase builds the store named by cfg and restores the database from it.
func openDatabase(ctx context.Context, cfg *config.Config, log *zap.Logger) (*db.Database, error) {
	ids, err := db.IDGeneratorFor(cfg.IDStrategy)
	if err != nil {
		return nil, err
	}
	var store storage.Store = storage.NewMemory()
	if cfg.Storage.Engine == config.EngineBadger {
		if err := os.MkdirAll(cfg.Storage.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
		b, err := storage.OpenBadger(storage.BadgerOptions{
			Dir:        cfg.Storage.Dir,
			SyncWrites: cfg.Storage.SyncWrites,
			Logger:     log,
		})
		if err != nil {
			return nil, err
		}
		store = b
	}
	d, err := db.Open(ctx, db.WithStore(store), db.WithIDGenerator(ids), db.WithLogger(log))
	if err != nil {
		store.Close()
		return nil, err
	}
	return d, nil
}

func serve(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	database, err := openDatabase(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer database.Close()

	srv := server.New(database, server.Config{
		Addr:           cfg.Server.Addr,
		MaxConnections: cfg.Server.MaxConnections,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
	}, server.WithLogger(log))
	if err := srv.Start(); err != nil {
		return err
	}
	defer srv.Stop()

	var metricsSrv *http.Server
	if cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", srv.Metrics().Handler())
		metricsSrv = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server failed", zap.Error(err))
			}
		}()
		log.Info("metrics listening", zap.String("addr", cfg.Metrics.Addr))
	}

	log.Info("flindoc ready",
		zap.String("version", version),
		zap.String("storage", cfg.Storage.Engine),
		zap.String("addr", srv.Addr().String()))
	<-ctx.Done()
	log.Info("shutting down")

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		metricsSrv.Shutdown(shutdownCtx)
	}
	return nil
}
