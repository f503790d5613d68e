// Package cmd - команды journalctl, служебной утилиты backend журнала.
package cmd

import (
	"github.com/spf13/cobra"
)

// NewRootCmd собирает дерево команд
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "journalctl",
		Short: "Trading journal backend maintenance tool",
		Long: `journalctl - служебные операции backend журнала сделок:

  - keygen: сгенерировать ENCRYPTION_KEY для учетных данных брокеров
  - token: выпустить сессионный токен пользователя (для CLI и отладки API)
  - migrate: создать или обновить схему БД
  - import: импортировать сделки Upstox пользователя без HTTP
  - sync: один проход периодической синхронизации по всем пользователям

Конфигурация читается из окружения и .env, как у сервера.`,
		SilenceUsage: true,
	}

	root.AddCommand(
		newKeygenCmd(),
		newTokenCmd(),
		newMigrateCmd(),
		newImportCmd(),
		newSyncCmd(),
	)

	return root
}

// Execute запускает journalctl
func Execute() error {
	return NewRootCmd().Execute()
}
