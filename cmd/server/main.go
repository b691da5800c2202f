package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AlexanderJKochnev/fast-pg-mongo/internal/app"
	"github.com/AlexanderJKochnev/fast-pg-mongo/internal/config"
	"github.com/AlexanderJKochnev/fast-pg-mongo/internal/logger"
	"github.com/AlexanderJKochnev/fast-pg-mongo/internal/routes"
)

func main() {
	cfg := config.Load()

	logger.Init(cfg.AppName, cfg.IsDevelopment(), cfg.SentryDSN)
	defer logger.Flush()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialize app", "error", err)
		logger.Flush()
		os.Exit(1)
	}

	handler, limiter := routes.SetupRoutes(app)
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("server starting",
			"port", cfg.Port,
			"env", cfg.AppEnv,
			"url", "http://localhost:"+cfg.Port,
			"config", cfg.Sanitized(),
		)
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	err = server.Shutdown(shutdownCtx)
	if err != nil {
		slog.Error("failed to shut down server", "error", err)
	}
	limiter.Stop()

	err = app.Close(shutdownCtx)
	if err != nil {
		slog.Error("failed to close app", "error", err)
	}
}
