package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/spf13/cobra"

	"github.com/thermocert/thermocert/internal/alerts"
	"github.com/thermocert/thermocert/internal/api"
	"github.com/thermocert/thermocert/internal/auth"
	"github.com/thermocert/thermocert/internal/compute"
	"github.com/thermocert/thermocert/internal/config"
	"github.com/thermocert/thermocert/internal/ingest"
	"github.com/thermocert/thermocert/internal/metrics"
	"github.com/thermocert/thermocert/internal/normalize"
	"github.com/thermocert/thermocert/internal/store"
	"github.com/thermocert/thermocert/internal/ws"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the REST API, metrics and the live results stream",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), root.configPath)
		},
	}
}

func runServe(parent context.Context, configPath string) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	cat, err := cfg.Engine.TestCategory()
	if err != nil {
		return err
	}

	slog.Info("thermocert serve starting",
		"config", configPath,
		"http_port", cfg.Server.HTTPPort,
		"category", cat,
		"storage", cfg.Server.Storage.Backend,
		"result_ttl", cfg.Server.ResultTTL,
	)

	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reg := metrics.NewRegistry()
	eng := compute.NewEngine(cfg.Limits)
	norm, err := normalize.New(cfg.Engine)
	if err != nil {
		return err
	}
	pipe := ingest.New(norm, eng, cat,
		ingest.WithObserver(reg),
		ingest.WithWorkers(cfg.Engine.Workers),
	)

	st, closeStore, err := openStore(ctx, cfg.Server)
	if err != nil {
		return err
	}
	defer closeStore()
	reg.SetStored(st.Count())
	go st.Run(ctx)

	alertEngine := alerts.New(cfg.Server.Alerts, alerts.WithObserver(reg))
	defer alertEngine.Wait()

	hub := ws.New(st, alertEngine, cfg.Server.BroadcastInterval)
	go hub.Run(ctx)

	apiHandler := api.New(api.Deps{
		Store:          st,
		Pipeline:       pipe,
		Engine:         eng,
		Alerts:         alertEngine,
		Metrics:        reg,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		OnChange:       hub.Notify,
	})

	if configPath != "" {
		go func() {
			err := config.Watch(ctx, configPath, func(c *config.Config) {
				apiHandler.ApplyLimits(ctx, c.Limits)
			})
			if err != nil {
				slog.Error("config: watch stopped", "path", configPath, "err", err)
			}
		}()
	}
	ac := cfg.Server.Auth
	requireKey := auth.APIKey(ac.Mode, ac.EffectiveHeader(), ac.Key())
	if ac.Mode == "apikey" && ac.Key() == "" {
		slog.Warn("auth: api key mode enabled but key env is empty; API is open", "key_env", ac.KeyEnv)
	}

	// The stream and scrape endpoints stay unauthenticated.
	router := mux.NewRouter()
	router.Handle("/ws/stream", hub)
	router.Handle("/metrics", reg.Handler()).Methods(http.MethodGet)
	router.PathPrefix("/api/").Handler(requireKey(apiHandler))
	router.PathPrefix("/").Handler(apiHandler)

	var h http.Handler = handlers.LoggingHandler(os.Stderr, router)
	h = handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(h)

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	slog.Info("thermocert serve shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	return httpSrv.Shutdown(shutdownCtx)
}

// openStore builds the result store for the configured backend. With SQLite,
// expired rows are pruned and the rest restored before serving.
func openStore(ctx context.Context, sc config.ServerConfig) (*store.Store, func(), error) {
	if sc.Storage.Backend != "sqlite" {
		return store.New(sc.ResultTTL), func() {}, nil
	}

	db, err := store.OpenSQLite(sc.Storage.Path)
	if err != nil {
		return nil, nil, err
	}
	if sc.Storage.Retention > 0 {
		n, err := db.Prune(ctx, time.Now().Add(-sc.Storage.Retention))
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		if n > 0 {
			slog.Info("store: pruned expired results", "count", n)
		}
	}
	entries, err := db.LoadAll(ctx)
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	st := store.New(sc.ResultTTL, store.WithPersister(db))
	st.Restore(entries)
	slog.Info("store: restored results", "path", sc.Storage.Path, "count", len(entries))
	return st, func() { db.Close() }, nil
}
