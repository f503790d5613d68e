package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tradejournal/internal/auth"
	"tradejournal/internal/broker"
	"tradejournal/internal/events"
	"tradejournal/internal/metrics"
	"tradejournal/internal/models"
	"tradejournal/internal/websocket"
	"tradejournal/pkg/utils"
)

// Источники запуска импорта (метка метрик)
const (
	TriggerAPI  = "api"
	TriggerSync = "sync"
	TriggerCLI  = "cli"
)

// ImportResult - итог импорта сделок Upstox
type ImportResult struct {
	BrokerID          int64           `json:"broker_id"`
	ImportedCount     int             `json:"imported_count"`
	TotalUpstoxTrades int             `json:"total_upstox_trades"`
	Trades            []*models.Trade `json:"trades"`
}

// ImportService переносит книгу сделок Upstox в журнал.
// Сделки с ошибкой записи пропускаются и не входят в ImportedCount.
type ImportService struct {
	oauth       *OAuthService
	upstox      UpstoxClient
	credentials *CredentialService
	trades      TradeRepositoryInterface
	notifier    Notifier
	publisher   events.Publisher
	logger      *utils.Logger
}

// NewImportService создает новый экземпляр сервиса
func NewImportService(oauth *OAuthService, upstox UpstoxClient, credentials *CredentialService, trades TradeRepositoryInterface, logger *utils.Logger) *ImportService {
	if logger == nil {
		logger = utils.L()
	}
	return &ImportService{
		oauth:       oauth,
		upstox:      upstox,
		credentials: credentials,
		trades:      trades,
		publisher:   events.NopPublisher{},
		logger:      logger.WithComponent("import").WithBroker(string(broker.Upstox)),
	}
}

// SetNotifier устанавливает получателя real-time событий
func (s *ImportService) SetNotifier(n Notifier) {
	s.notifier = n
}

// SetPublisher устанавливает публикацию событий импорта
func (s *ImportService) SetPublisher(p events.Publisher) {
	if p != nil {
		s.publisher = p
	}
}

// ImportTradesToDatabase импортирует сделки текущего пользователя
func (s *ImportService) ImportTradesToDatabase(ctx context.Context) (*ImportResult, error) {
	return s.Import(ctx, TriggerAPI)
}

// Import выполняет импорт, trigger - источник запуска для метрик
func (s *ImportService) Import(ctx context.Context, trigger string) (*ImportResult, error) {
	userID, err := auth.UserIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	logger := s.logger.WithUserID(userID)

	tokens, err := s.oauth.GetStoredTokens(ctx)
	if err != nil {
		metrics.RecordImport(string(broker.Upstox), trigger, 0, 0, false)
		return nil, err
	}

	start := time.Now()
	brokerTrades, err := s.upstox.FetchTrades(withBrokerLimit(ctx, broker.Upstox, userID), tokens.AccessToken)
	metrics.ObserveBrokerCall(string(broker.Upstox), "fetch_trades", time.Since(start))
	if err != nil {
		metrics.RecordImport(string(broker.Upstox), trigger, 0, 0, false)
		logger.Warn("fetch trades failed", utils.Err(err))
		return nil, err
	}

	record, err := s.credentials.Ensure(ctx, broker.Upstox, nil)
	if err != nil {
		metrics.RecordImport(string(broker.Upstox), trigger, 0, 0, false)
		return nil, err
	}

	result := &ImportResult{
		BrokerID:          record.ID,
		TotalUpstoxTrades: len(brokerTrades),
		Trades:            make([]*models.Trade, 0, len(brokerTrades)),
	}

	now := timeNow()
	for _, bt := range brokerTrades {
		trade, err := mapUpstoxTrade(userID, record.ID, bt, now)
		if err != nil {
			logger.Warn("broker trade skipped", utils.String("trade_id", bt.TradeID), utils.Err(err))
			continue
		}
		if err := s.trades.UpsertByExternalID(ctx, trade); err != nil {
			logger.Warn("trade upsert failed", utils.String("trade_id", bt.TradeID), utils.Symbol(trade.Symbol), utils.Err(err))
			continue
		}
		result.Trades = append(result.Trades, trade)
	}
	result.ImportedCount = len(result.Trades)

	if err := s.credentials.TouchLastSync(ctx, record.ID); err != nil {
		logger.Warn("failed to update last sync", utils.BrokerID(record.ID), utils.Err(err))
	}

	skipped := result.TotalUpstoxTrades - result.ImportedCount
	metrics.RecordImport(string(broker.Upstox), trigger, result.ImportedCount, skipped, true)
	logger.Info("trades imported",
		utils.BrokerID(record.ID),
		utils.Count("imported", result.ImportedCount),
		utils.Count("total", result.TotalUpstoxTrades),
		utils.String("trigger", trigger))

	s.announce(ctx, userID, result)
	return result, nil
}

// announce рассылает итог импорта в websocket и Kafka
func (s *ImportService) announce(ctx context.Context, userID int64, result *ImportResult) {
	if s.notifier != nil {
		s.notifier.NotifyTradesImported(userID, websocket.TradesImportedData{
			BrokerID:      result.BrokerID,
			BrokerType:    string(broker.Upstox),
			ImportedCount: result.ImportedCount,
			TotalTrades:   result.TotalUpstoxTrades,
		})
	}

	err := s.publisher.Publish(ctx, events.Event{
		Type:   events.TypeTradesImported,
		UserID: userID,
		Payload: events.TradesImported{
			BrokerID:      result.BrokerID,
			BrokerType:    string(broker.Upstox),
			ImportedCount: result.ImportedCount,
			TotalTrades:   result.TotalUpstoxTrades,
		},
	})
	if err != nil {
		s.logger.Warn("failed to publish import event", utils.UserID(userID), utils.Err(err))
	}
}

// mapUpstoxTrade переводит сделку Upstox в запись журнала:
// BUY - buy/long, SELL - sell/short; средняя цена идёт во вход и выход,
// время сделки - в открытие и закрытие, статус closed.
func mapUpstoxTrade(userID, brokerID int64, bt broker.Trade, now time.Time) (*models.Trade, error) {
	if bt.TradeID == "" {
		return nil, fmt.Errorf("trade without id")
	}

	var tradeType string
	switch strings.ToUpper(bt.TransactionType) {
	case "BUY":
		tradeType = models.TradeTypeBuy
	case "SELL":
		tradeType = models.TradeTypeSell
	default:
		return nil, fmt.Errorf("unknown transaction type %q", bt.TransactionType)
	}

	executedAt := bt.ExecutedAt
	if executedAt.IsZero() {
		executedAt = now
	}
	closedAt := executedAt
	exitPrice := bt.AveragePrice
	externalID := bt.TradeID
	brokerRef := brokerID

	return &models.Trade{
		UserID:       userID,
		BrokerID:     &brokerRef,
		Symbol:       utils.NormalizeSymbol(bt.Symbol),
		TradeType:    tradeType,
		PositionSide: models.PositionSideFor(tradeType),
		Quantity:     bt.Quantity,
		EntryPrice:   bt.AveragePrice,
		ExitPrice:    &exitPrice,
		Status:       models.TradeStatusClosed,
		OpenedAt:     executedAt,
		ClosedAt:     &closedAt,
		ExternalID:   &externalID,
	}, nil
}
