package service

import (
	"context"
	"time"

	"tradejournal/internal/broker"
	"tradejournal/internal/models"
	"tradejournal/internal/repository"
	"tradejournal/internal/websocket"
)

// BrokerRepositoryInterface определяет интерфейс репозитория брокерских аккаунтов
type BrokerRepositoryInterface interface {
	Create(ctx context.Context, b *models.BrokerRecord) error
	GetByID(ctx context.Context, userID, id int64) (*models.BrokerRecord, error)
	GetByUserAndType(ctx context.Context, userID int64, brokerType string) (*models.BrokerRecord, error)
	ListByUser(ctx context.Context, userID int64) ([]*models.BrokerRecord, error)
	ListActiveByUser(ctx context.Context, userID int64) ([]*models.BrokerRecord, error)
	Update(ctx context.Context, b *models.BrokerRecord) error
	SetStatus(ctx context.Context, userID, id int64, status string) error
	TouchLastSync(ctx context.Context, userID, id int64, at time.Time) error
	Delete(ctx context.Context, userID, id int64) error
	CountActive(ctx context.Context, userID int64) (int, error)
}

// TokenRepositoryInterface определяет интерфейс хранилища OAuth токенов
type TokenRepositoryInterface interface {
	Upsert(ctx context.Context, tok *models.OAuthToken) error
	Get(ctx context.Context, userID int64) (*models.OAuthToken, error)
	UpdateAccessToken(ctx context.Context, userID int64, accessToken string, expiresAt time.Time) error
	Delete(ctx context.Context, userID int64) error
	ListUserIDs(ctx context.Context) ([]int64, error)
}

// TradeRepositoryInterface определяет интерфейс репозитория сделок
type TradeRepositoryInterface interface {
	Create(ctx context.Context, t *models.Trade) error
	UpsertByExternalID(ctx context.Context, t *models.Trade) error
	GetByID(ctx context.Context, userID, id int64) (*models.Trade, error)
	List(ctx context.Context, userID int64, filter models.TradeFilter) ([]*models.Trade, error)
	Update(ctx context.Context, t *models.Trade) error
	Close(ctx context.Context, userID, id int64, exitPrice float64, closedAt time.Time) error
	Delete(ctx context.Context, userID, id int64) error
	CountByBroker(ctx context.Context, userID int64) (map[int64]int, error)
}

// StrategyRepositoryInterface определяет интерфейс репозитория стратегий
type StrategyRepositoryInterface interface {
	Create(ctx context.Context, s *models.Strategy) error
	GetByID(ctx context.Context, userID, id int64) (*models.Strategy, error)
	ListByUser(ctx context.Context, userID int64) ([]*models.Strategy, error)
	Delete(ctx context.Context, userID, id int64) error
}

// Проверяем, что реальные репозитории реализуют интерфейсы
var _ BrokerRepositoryInterface = (*repository.BrokerRepository)(nil)
var _ TokenRepositoryInterface = (*repository.TokenRepository)(nil)
var _ TradeRepositoryInterface = (*repository.TradeRepository)(nil)
var _ StrategyRepositoryInterface = (*repository.StrategyRepository)(nil)

// ============ Брокеры ============

// BrokerProvider создаёт адаптер брокера по имени (broker.Factory)
type BrokerProvider interface {
	Get(name string) (broker.Broker, error)
}

// UpstoxClient - OAuth и книга сделок Upstox
type UpstoxClient interface {
	broker.TokenExchanger
	broker.TradeFetcher
}

var _ BrokerProvider = (*broker.Factory)(nil)
var _ UpstoxClient = (*broker.UpstoxBroker)(nil)

// Notifier отправляет пользователю real-time события (websocket.Hub)
type Notifier interface {
	NotifyTradesImported(userID int64, data websocket.TradesImportedData)
	NotifyBrokerStatus(userID int64, data websocket.BrokerStatusData)
}

var _ Notifier = (*websocket.Hub)(nil)

// ============ Интерфейсы сервисов для Dependency Injection ============

// CredentialServiceInterface определяет интерфейс хранилища учетных данных
type CredentialServiceInterface interface {
	Store(ctx context.Context, input StoreBrokerInput) (*models.BrokerRecord, error)
	Get(ctx context.Context, brokerID int64) (*models.BrokerRecord, *models.Credentials, error)
	Update(ctx context.Context, brokerID int64, input UpdateBrokerInput) (*models.BrokerRecord, error)
	Delete(ctx context.Context, brokerID int64) error
	List(ctx context.Context) ([]*models.BrokerRecord, error)
	SetStatus(ctx context.Context, brokerID int64, status string) error
}

// ConnectionServiceInterface определяет интерфейс проверки подключения
type ConnectionServiceInterface interface {
	Test(ctx context.Context, brokerType string, creds models.Credentials) (*broker.ConnectionStatus, error)
	TestStored(ctx context.Context, brokerID int64) (*broker.ConnectionStatus, error)
}

// OAuthServiceInterface определяет интерфейс менеджера OAuth токенов Upstox
type OAuthServiceInterface interface {
	BeginAuth(ctx context.Context, req AuthURLRequest) (*AuthURLResult, error)
	CompleteAuth(ctx context.Context, req CodeExchangeRequest) (*broker.TokenSet, error)
	GetStoredTokens(ctx context.Context) (*models.OAuthToken, error)
	Status(ctx context.Context) (*UpstoxStatus, error)
	Disconnect(ctx context.Context) error
}

// ImportServiceInterface определяет интерфейс импорта сделок
type ImportServiceInterface interface {
	ImportTradesToDatabase(ctx context.Context) (*ImportResult, error)
}

// TradeServiceInterface определяет интерфейс сервиса сделок
type TradeServiceInterface interface {
	Create(ctx context.Context, input TradeInput) (*models.Trade, error)
	List(ctx context.Context, filter models.TradeFilter) ([]*models.Trade, error)
	Get(ctx context.Context, id int64) (*models.Trade, error)
	Update(ctx context.Context, id int64, input TradeUpdate) (*models.Trade, error)
	Delete(ctx context.Context, id int64) error
	Close(ctx context.Context, id int64, input CloseTradeInput) (*models.Trade, error)
}

// PortfolioServiceInterface определяет интерфейс аналитики портфеля
type PortfolioServiceInterface interface {
	Summary(ctx context.Context) (*models.PortfolioSummary, error)
	Analytics(ctx context.Context, period string) (*models.AnalyticsData, error)
}

// StrategyServiceInterface определяет интерфейс сервиса стратегий
type StrategyServiceInterface interface {
	List(ctx context.Context) ([]*models.Strategy, error)
	Create(ctx context.Context, name, description string) (*models.Strategy, error)
	Delete(ctx context.Context, id int64) error
}

// AccountServiceInterface определяет интерфейс сводки по аккаунтам
type AccountServiceInterface interface {
	TradingAccounts(ctx context.Context) ([]*models.TradingAccount, error)
	BrokerStatuses(ctx context.Context) ([]*models.BrokerStatus, error)
}

// SyncServiceInterface определяет интерфейс синхронизации брокеров
type SyncServiceInterface interface {
	SyncBrokers(ctx context.Context) ([]*SyncResult, error)
}

// Проверяем, что реальные сервисы реализуют интерфейсы
var _ CredentialServiceInterface = (*CredentialService)(nil)
var _ ConnectionServiceInterface = (*ConnectionService)(nil)
var _ OAuthServiceInterface = (*OAuthService)(nil)
var _ ImportServiceInterface = (*ImportService)(nil)
var _ TradeServiceInterface = (*TradeService)(nil)
var _ PortfolioServiceInterface = (*PortfolioService)(nil)
var _ StrategyServiceInterface = (*StrategyService)(nil)
var _ AccountServiceInterface = (*AccountService)(nil)
var _ SyncServiceInterface = (*SyncService)(nil)
