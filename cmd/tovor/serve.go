package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/erazemk/tovor/internal/api"
	"github.com/erazemk/tovor/internal/auth"
	"github.com/erazemk/tovor/internal/bot"
	"github.com/erazemk/tovor/internal/form"
	"github.com/erazemk/tovor/internal/media"
	"github.com/erazemk/tovor/internal/sheet"
	"github.com/erazemk/tovor/internal/store"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bridge API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			closeLog, err := setupLogger(cfg.Server.LogPath)
			if err != nil {
				return err
			}
			defer closeLog()

			a, err := openApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			return serve(cmd.Context(), a)
		},
	}
}

func serve(parent context.Context, a *app) error {
	cfg := a.cfg

	fl := flock.New(cfg.LockPath())
	locked, err := fl.TryLock()
	if err != nil {
		return fmt.Errorf("locking %s: %w", cfg.LockPath(), err)
	}
	if !locked {
		return fmt.Errorf("another tovor server is using %s", cfg.Server.DataDir)
	}
	defer fl.Unlock()

	slog.Info("database ready", "path", cfg.Server.DBPath)

	// Load JWT secret from database (auto-generated on first run).
	jwtSecret, err := store.GetJWTSecret(parent, a.db)
	if err != nil {
		return fmt.Errorf("getting JWT secret: %w", err)
	}
	if n, err := store.PurgeExpiredRevocations(parent, a.db, time.Now()); err != nil {
		slog.Warn("purging expired revocations", "error", err)
	} else if n > 0 {
		slog.Info("purged expired revocations", "count", n)
	}

	mediaStore, err := media.NewStore(cfg.MediaDir())
	if err != nil {
		return err
	}
	arch, err := a.archive(parent)
	if err != nil {
		return err
	}
	locker, closeLocker, err := a.locker(parent)
	if err != nil {
		return err
	}
	defer closeLocker()

	sessions := store.NewSessions(a.db, mediaStore)
	dispatcher := bot.New(bot.Deps{
		Gate:      auth.NewGate(a.db, cfg.Auth.AdminIDs),
		Machine:   form.NewMachine(sessions, store.NewFormStates(a.db), mediaStore),
		Sessions:  sessions,
		Generator: sheet.NewGenerator(mediaStore, a.layout()),
		Archive:   arch,
		Locker:    locker,
	})

	handler := api.LoggingMiddleware(api.NewRouter(a.db, jwtSecret, dispatcher, arch))

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server forced to shutdown", "error", err)
		}
	}()

	slog.Info("server started", "addr", cfg.Server.Addr, "archive", cfg.Archive.Backend, "redis", cfg.Redis.Addr != "")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	slog.Info("server stopped, closing database")
	return nil
}
