package cmd

import (
	"context"

	"tradejournal/internal/app"
	"tradejournal/internal/config"
	"tradejournal/pkg/utils"
)

// withApp собирает приложение по конфигурации окружения и вызывает fn.
// Логи пишутся в stderr, stdout остаётся для результата команды.
func withApp(ctx context.Context, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := utils.InitGlobalLogger(utils.LogConfig{
		Level:  cfg.Logging.Level,
		Format: "text",
		Output: "stderr",
	})
	defer func() { _ = logger.Sync() }()

	db, err := app.OpenDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	application, err := app.New(cfg, db, logger)
	if err != nil {
		return err
	}
	defer application.Close()

	return fn(ctx, application)
}
