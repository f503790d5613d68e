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

	"tradejournal/internal/api"
	"tradejournal/internal/app"
	"tradejournal/internal/config"
	"tradejournal/internal/repository"
	"tradejournal/internal/scheduler"
	"tradejournal/pkg/utils"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := utils.InitGlobalLogger(utils.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server failed", utils.Err(err))
	}
}

func run(cfg *config.Config, logger *utils.Logger) error {
	ctx := context.Background()

	// Инициализация базы данных
	db, err := app.OpenDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Info("connected to database", utils.String("dsn", cfg.Database.DSNWithoutPassword()))

	if err := repository.Migrate(ctx, db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	application, err := app.New(cfg, db, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := application.Close(); err != nil {
			logger.Warn("close failed", utils.Err(err))
		}
	}()

	go application.Hub.Run()
	defer application.Hub.Stop()

	// Периодическая синхронизация брокеров
	var sched *scheduler.Scheduler
	if cfg.Sync.Enabled {
		sched = scheduler.New(logger)
		if err := sched.AddJob(cfg.Sync.Schedule, scheduler.NewSyncJob(application.Sync, 0, logger)); err != nil {
			return fmt.Errorf("sync schedule %q: %w", cfg.Sync.Schedule, err)
		}
		sched.Start()
	}

	// HTTP сервер
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.SetupRoutes(application.Dependencies()),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // импорт и синхронизация ходят к брокерам
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", utils.String("addr", server.Addr), utils.Bool("https", cfg.Server.UseHTTPS))
		var err error
		if cfg.Server.UseHTTPS {
			err = server.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("shutting down server", utils.String("signal", sig.String()))
	case err := <-serverErr:
		if err != nil {
			return err
		}
	}

	if sched != nil {
		sched.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server exited")
	return nil
}
