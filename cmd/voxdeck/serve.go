package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/voxdeck/voxdeck/internal/api"
	"github.com/voxdeck/voxdeck/internal/backend"
	"github.com/voxdeck/voxdeck/internal/config"
	"github.com/voxdeck/voxdeck/internal/console"
	"github.com/voxdeck/voxdeck/internal/crypto"
	"github.com/voxdeck/voxdeck/internal/localstore"
	"github.com/voxdeck/voxdeck/internal/metrics"
	"github.com/voxdeck/voxdeck/internal/notify"
	"github.com/voxdeck/voxdeck/internal/session"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Voxdeck console daemon",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	local, err := localstore.NewSQLite(cfg.State.Path)
	if err != nil {
		return err
	}
	defer local.Close()
	slog.Info("opened state store", "path", cfg.State.Path)

	sealer, err := crypto.NewSealer(cfg.State.EncryptionKey)
	if err != nil {
		return err
	}

	m := metrics.New()
	client := backend.New(cfg.Backend.BaseURL, cfg.Backend.Timeout, m)

	sessions := session.NewStore(client, local, sealer, m)
	sessions.SetForcedLogoutHandler(func(reason string) {
		slog.Warn("session force-closed", "reason", reason)
	})
	if err := sessions.Init(ctx); err != nil {
		return err
	}
	if sessions.IsAuthenticated() {
		slog.Info("restored persisted session")
	}

	store := console.New(ctx, client, local, m, cfg)
	m.RegisterCacheCollector(store.CacheStats)

	notifications := notify.NewService(client, local, m, cfg)

	refresher := console.NewRefresher(store, cfg.Refresh.Interval)
	go refresher.Start(ctx)

	router := api.NewRouter(api.RouterDeps{
		Sessions:      sessions,
		Console:       store,
		Notifications: notifications,
		Metrics:       m,
	})

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("console starting", "addr", cfg.Addr(), "backend", cfg.Backend.BaseURL)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-sigCh
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	refresher.Stop()

	return srv.Shutdown(shutdownCtx)
}
