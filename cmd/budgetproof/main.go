package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"budgetproof/internal/config"
	apphttp "budgetproof/internal/http"
	applog "budgetproof/internal/log"
	"budgetproof/internal/services"
)

func main() {
	// Load .env if present, real env wins.
	_ = godotenv.Load()

	cfg := config.Load()
	logger := applog.New(applog.Config{
		Level:     applog.ParseLevel(cfg.LogLevel),
		Component: applog.ComponentApp,
	})
	applog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", applog.FieldOperation, applog.OpStartup, applog.FieldError, err)
		os.Exit(1)
	}

	sessions := services.NewSessionService()
	srv := apphttp.NewServer(":"+cfg.Port, sessions, cfg.MaxUploadBytes)

	srv.ReadTimeout = cfg.ReadTimeout
	srv.WriteTimeout = cfg.WriteTimeout
	srv.MaxHeaderBytes = 1 << 16

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", applog.FieldOperation, applog.OpShutdown, "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", applog.FieldOperation, applog.OpShutdown, applog.FieldError, err)
		}
		cancel()
	}()

	logger.Info("Starting budgetproof server", applog.FieldOperation, applog.OpStartup, "port", cfg.Port, "max_upload_bytes", cfg.MaxUploadBytes)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}
