package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fundflow/account"
	"fundflow/auth"
	"fundflow/config"
	"fundflow/contingency"
	"fundflow/db"
	"fundflow/httpapi"
	"fundflow/pkg/logger"
	"fundflow/storage"
	"fundflow/timeline"
	"fundflow/wallet"
)

func main() {
	cfg, err := config.Load("config.yaml")
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Init(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})

	ctx := context.Background()

	pool, err := db.NewPool(ctx, cfg.Database.URL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	invoiceStore, err := storage.NewInvoiceStore(&cfg.Minio)
	if err != nil {
		slog.Error("failed to initialize object storage", "error", err)
		os.Exit(1)
	}
	if err := invoiceStore.EnsureBucket(ctx); err != nil {
		slog.Error("failed to ensure storage bucket", "error", err)
		os.Exit(1)
	}

	authRepo := auth.NewRepository(pool)
	authSvc := auth.NewService(authRepo, cfg.Auth.JWTSecret, time.Duration(cfg.Auth.TokenExpireHours)*time.Hour)

	walletRepo := wallet.NewRepository(pool)
	walletSvc := wallet.NewService(pool, walletRepo)

	timelineRepo := timeline.NewRepository(pool)
	timelineSvc := timeline.NewService(pool, timelineRepo, walletRepo)

	contingencySvc := contingency.NewService(contingency.NewRepository(pool))

	accountSvc := account.NewService(account.NewRepository(pool))

	router := httpapi.NewRouter(httpapi.Handlers{
		Auth:     httpapi.NewAuthHandler(authSvc),
		Timeline: httpapi.NewTimelineHandler(timelineSvc, contingencySvc, invoiceStore),
		Wallet:   httpapi.NewWalletHandler(walletSvc),
		Account:  httpapi.NewAccountHandler(accountSvc),
	}, authSvc)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("server exited gracefully")
}
