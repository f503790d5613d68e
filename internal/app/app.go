// Package app собирает зависимости backend журнала: БД, брокеры, сервисы.
// Используется сервером и journalctl.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"tradejournal/internal/api"
	"tradejournal/internal/auth"
	"tradejournal/internal/broker"
	"tradejournal/internal/config"
	"tradejournal/internal/events"
	"tradejournal/internal/models"
	"tradejournal/internal/repository"
	"tradejournal/internal/service"
	"tradejournal/internal/websocket"
	"tradejournal/pkg/crypto"
	"tradejournal/pkg/utils"
)

// App - собранное приложение
type App struct {
	Config *config.Config
	DB     *sql.DB
	Logger *utils.Logger

	Tokens    *auth.TokenManager
	Hub       *websocket.Hub
	Publisher events.Publisher
	HTTP      *broker.HTTPClient

	Credentials *service.CredentialService
	Connection  *service.ConnectionService
	OAuth       *service.OAuthService
	Import      *service.ImportService
	Trades      *service.TradeService
	Portfolio   *service.PortfolioService
	Strategies  *service.StrategyService
	Accounts    *service.AccountService
	Sync        *service.SyncService
}

// OpenDatabase создает подключение к базе данных и проверяет его
func OpenDatabase(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open(cfg.Driver, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Настройка пула соединений
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database %s: %w", cfg.DSNWithoutPassword(), err)
	}
	return db, nil
}

// New собирает сервисы поверх открытой БД. Hub создаётся, но не запускается.
func New(cfg *config.Config, db *sql.DB, logger *utils.Logger) (*App, error) {
	if logger == nil {
		logger = utils.L()
	}

	vault, err := crypto.NewVault(cfg.Security.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("encryption key: %w", err)
	}

	// Репозитории
	brokerRepo := repository.NewBrokerRepository(db)
	tokenRepo := repository.NewTokenRepository(db)
	tradeRepo := repository.NewTradeRepository(db)
	strategyRepo := repository.NewStrategyRepository(db)

	// Брокеры
	httpCfg := broker.DefaultHTTPClientConfig()
	httpCfg.TotalTimeout = cfg.Brokers.HTTPTimeout
	httpCfg.RateLimit = cfg.Brokers.RateLimit
	httpCfg.RateBurst = cfg.Brokers.RateBurst
	httpClient := broker.NewHTTPClient(httpCfg)

	factory := broker.NewFactory(broker.Config{
		UpstoxAuthURL: cfg.Brokers.Upstox.AuthBaseURL,
		UpstoxAPIURL:  cfg.Brokers.Upstox.APIBaseURL,
		AlpacaBaseURL: cfg.Brokers.Alpaca.BaseURL,
	}, httpClient)
	upstox := factory.Upstox()

	// Real-time события
	hub := websocket.NewHub(logger)
	var publisher events.Publisher = events.NopPublisher{}
	if cfg.Kafka.Enabled() {
		publisher = events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.ClientID, cfg.Kafka.Topic, logger)
	}

	// Сервисы
	credentials := service.NewCredentialService(brokerRepo, vault, logger)
	if key := cfg.Brokers.Zerodha.APIKey; key != "" {
		credentials.SetDefaults(broker.Zerodha, models.Credentials{APIKey: key})
	}
	oauth := service.NewOAuthService(tokenRepo, credentials, upstox, service.OAuthConfig{
		ClientID:     cfg.Brokers.Upstox.ClientID,
		ClientSecret: cfg.Brokers.Upstox.ClientSecret,
		RedirectURI:  cfg.Brokers.Upstox.RedirectURI,
		StateTTL:     10 * time.Minute,
	}, logger)
	oauth.SetNotifier(hub)
	oauth.SetPublisher(publisher)

	importer := service.NewImportService(oauth, upstox, credentials, tradeRepo, logger)
	importer.SetNotifier(hub)
	importer.SetPublisher(publisher)

	return &App{
		Config:    cfg,
		DB:        db,
		Logger:    logger,
		Tokens:    auth.NewTokenManager(cfg.Security.JWTSecret, cfg.Security.SessionTTL()),
		Hub:       hub,
		Publisher: publisher,
		HTTP:      httpClient,

		Credentials: credentials,
		Connection:  service.NewConnectionService(factory, credentials, tokenRepo, logger),
		OAuth:       oauth,
		Import:      importer,
		Trades:      service.NewTradeService(tradeRepo, brokerRepo, strategyRepo, logger),
		Portfolio:   service.NewPortfolioService(tradeRepo, brokerRepo),
		Strategies:  service.NewStrategyService(strategyRepo),
		Accounts:    service.NewAccountService(brokerRepo, tradeRepo, tokenRepo),
		Sync:        service.NewSyncService(credentials, factory, importer, tokenRepo, logger),
	}, nil
}

// Dependencies возвращает зависимости HTTP роутера
func (a *App) Dependencies() *api.Dependencies {
	return &api.Dependencies{
		CredentialService: a.Credentials,
		ConnectionService: a.Connection,
		AccountService:    a.Accounts,
		OAuthService:      a.OAuth,
		ImportService:     a.Import,
		TradeService:      a.Trades,
		PortfolioService:  a.Portfolio,
		StrategyService:   a.Strategies,
		SyncService:       a.Sync,

		Tokens: a.Tokens,
		Hub:    a.Hub,
		DB:     a.DB,
		Logger: a.Logger,

		AllowedOrigins:  a.Config.Server.AllowedOrigins,
		MetricsUsername: a.Config.Server.MetricsUsername,
		MetricsPassword: a.Config.Server.MetricsPassword,
	}
}

// Close освобождает внешние ресурсы (кроме БД, её закрывает владелец)
func (a *App) Close() error {
	a.HTTP.Close()
	return a.Publisher.Close()
}
