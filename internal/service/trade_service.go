package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tradejournal/internal/auth"
	"tradejournal/internal/models"
	"tradejournal/internal/repository"
	"tradejournal/pkg/utils"
)

// Ошибки сделок
var (
	ErrInvalidTrade       = errors.New("invalid trade")
	ErrTradeAlreadyClosed = errors.New("trade already closed")
)

// TradeInput - данные для ручного создания сделки
type TradeInput struct {
	Symbol       string     `json:"symbol"`
	TradeType    string     `json:"trade_type"`
	PositionSide string     `json:"position_side,omitempty"`
	Quantity     float64    `json:"quantity"`
	EntryPrice   float64    `json:"entry_price"`
	ExitPrice    *float64   `json:"exit_price,omitempty"`
	Status       string     `json:"status,omitempty"`
	OpenedAt     *time.Time `json:"opened_at,omitempty"`
	ClosedAt     *time.Time `json:"closed_at,omitempty"`
	BrokerID     *int64     `json:"broker_id,omitempty"`
	StrategyID   *int64     `json:"strategy_id,omitempty"`
	Notes        string     `json:"notes,omitempty"`
}

// TradeUpdate - частичное обновление сделки
type TradeUpdate struct {
	Symbol       *string    `json:"symbol,omitempty"`
	TradeType    *string    `json:"trade_type,omitempty"`
	PositionSide *string    `json:"position_side,omitempty"`
	Quantity     *float64   `json:"quantity,omitempty"`
	EntryPrice   *float64   `json:"entry_price,omitempty"`
	ExitPrice    *float64   `json:"exit_price,omitempty"`
	OpenedAt     *time.Time `json:"opened_at,omitempty"`
	StrategyID   *int64     `json:"strategy_id,omitempty"`
	Notes        *string    `json:"notes,omitempty"`
}

// CloseTradeInput - закрытие сделки. Без closedAt - текущее время.
type CloseTradeInput struct {
	ExitPrice float64    `json:"exit_price"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
}

// TradeService - ручное ведение журнала сделок
type TradeService struct {
	trades     TradeRepositoryInterface
	brokers    BrokerRepositoryInterface
	strategies StrategyRepositoryInterface
	logger     *utils.Logger
}

// NewTradeService создает новый экземпляр сервиса
func NewTradeService(trades TradeRepositoryInterface, brokers BrokerRepositoryInterface, strategies StrategyRepositoryInterface, logger *utils.Logger) *TradeService {
	if logger == nil {
		logger = utils.L()
	}
	return &TradeService{
		trades:     trades,
		brokers:    brokers,
		strategies: strategies,
		logger:     logger.WithComponent("trades"),
	}
}

// Create валидирует и сохраняет сделку. positionSide по умолчанию
// выводится из tradeType, статус по умолчанию open.
func (s *TradeService) Create(ctx context.Context, input TradeInput) (*models.Trade, error) {
	userID, err := auth.UserIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	trade := &models.Trade{
		UserID:       userID,
		Symbol:       utils.NormalizeSymbol(input.Symbol),
		TradeType:    strings.ToLower(strings.TrimSpace(input.TradeType)),
		PositionSide: strings.ToLower(strings.TrimSpace(input.PositionSide)),
		Quantity:     input.Quantity,
		EntryPrice:   input.EntryPrice,
		ExitPrice:    input.ExitPrice,
		Status:       strings.ToLower(strings.TrimSpace(input.Status)),
		ClosedAt:     input.ClosedAt,
		BrokerID:     input.BrokerID,
		StrategyID:   input.StrategyID,
		Notes:        strings.TrimSpace(input.Notes),
	}
	if trade.PositionSide == "" {
		trade.PositionSide = models.PositionSideFor(trade.TradeType)
	}
	if trade.Status == "" {
		trade.Status = models.TradeStatusOpen
		if trade.ExitPrice != nil {
			trade.Status = models.TradeStatusClosed
		}
	}

	now := timeNow()
	trade.OpenedAt = now
	if input.OpenedAt != nil {
		trade.OpenedAt = *input.OpenedAt
	}
	if trade.Status == models.TradeStatusClosed && trade.ClosedAt == nil {
		closedAt := now
		trade.ClosedAt = &closedAt
	}
	if trade.Status == models.TradeStatusOpen {
		trade.ClosedAt = nil
	}

	if err := validateTrade(trade); err != nil {
		return nil, err
	}
	if err := s.checkRefs(ctx, userID, trade.BrokerID, trade.StrategyID); err != nil {
		return nil, err
	}

	if err := s.trades.Create(ctx, trade); err != nil {
		return nil, err
	}

	s.logger.Info("trade created",
		utils.UserID(userID),
		utils.TradeID(trade.ID),
		utils.Symbol(trade.Symbol),
		utils.Side(trade.PositionSide))
	return trade, nil
}

// List возвращает сделки пользователя по фильтру
func (s *TradeService) List(ctx context.Context, filter models.TradeFilter) ([]*models.Trade, error) {
	userID, err := auth.UserIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	if filter.Status != "" {
		if err := utils.ValidateTradeStatus(filter.Status); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidTrade, err)
		}
	}
	if filter.Symbol != "" {
		filter.Symbol = utils.NormalizeSymbol(filter.Symbol)
	}
	return s.trades.List(ctx, userID, filter)
}

// Get возвращает сделку пользователя
func (s *TradeService) Get(ctx context.Context, id int64) (*models.Trade, error) {
	userID, err := auth.UserIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	return s.trades.GetByID(ctx, userID, id)
}

// Update применяет частичное обновление
func (s *TradeService) Update(ctx context.Context, id int64, input TradeUpdate) (*models.Trade, error) {
	userID, err := auth.UserIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	trade, err := s.trades.GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if input.Symbol != nil {
		trade.Symbol = utils.NormalizeSymbol(*input.Symbol)
	}
	if input.TradeType != nil {
		trade.TradeType = strings.ToLower(strings.TrimSpace(*input.TradeType))
		if input.PositionSide == nil {
			trade.PositionSide = models.PositionSideFor(trade.TradeType)
		}
	}
	if input.PositionSide != nil {
		trade.PositionSide = strings.ToLower(strings.TrimSpace(*input.PositionSide))
	}
	if input.Quantity != nil {
		trade.Quantity = *input.Quantity
	}
	if input.EntryPrice != nil {
		trade.EntryPrice = *input.EntryPrice
	}
	if input.ExitPrice != nil {
		if !trade.IsClosed() {
			return nil, fmt.Errorf("%w: exit_price: use close for open trades", ErrInvalidTrade)
		}
		trade.ExitPrice = input.ExitPrice
	}
	if input.OpenedAt != nil {
		trade.OpenedAt = *input.OpenedAt
	}
	if input.StrategyID != nil {
		trade.StrategyID = input.StrategyID
	}
	if input.Notes != nil {
		trade.Notes = strings.TrimSpace(*input.Notes)
	}

	if err := validateTrade(trade); err != nil {
		return nil, err
	}
	if err := s.checkRefs(ctx, userID, nil, input.StrategyID); err != nil {
		return nil, err
	}

	if err := s.trades.Update(ctx, trade); err != nil {
		return nil, err
	}
	return trade, nil
}

// Delete удаляет сделку
func (s *TradeService) Delete(ctx context.Context, id int64) error {
	userID, err := auth.UserIDFromContext(ctx)
	if err != nil {
		return err
	}
	if err := s.trades.Delete(ctx, userID, id); err != nil {
		return err
	}
	s.logger.Info("trade deleted", utils.UserID(userID), utils.TradeID(id))
	return nil
}

// Close закрывает открытую сделку по цене выхода
func (s *TradeService) Close(ctx context.Context, id int64, input CloseTradeInput) (*models.Trade, error) {
	userID, err := auth.UserIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	if err := utils.ValidatePrice(input.ExitPrice); err != nil {
		return nil, fmt.Errorf("%w: exit_price: %v", ErrInvalidTrade, err)
	}

	trade, err := s.trades.GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if trade.IsClosed() {
		return nil, ErrTradeAlreadyClosed
	}

	closedAt := timeNow()
	if input.ClosedAt != nil {
		closedAt = *input.ClosedAt
	}
	if closedAt.Before(trade.OpenedAt) {
		return nil, fmt.Errorf("%w: closed_at: must not be before opened_at", ErrInvalidTrade)
	}

	if err := s.trades.Close(ctx, userID, id, input.ExitPrice, closedAt); err != nil {
		if errors.Is(err, repository.ErrTradeNotFound) {
			// сделку закрыли параллельно
			return nil, ErrTradeAlreadyClosed
		}
		return nil, err
	}

	exitPrice := input.ExitPrice
	trade.ExitPrice = &exitPrice
	trade.ClosedAt = &closedAt
	trade.Status = models.TradeStatusClosed

	if pnl, ok := trade.PnL(); ok {
		s.logger.Info("trade closed", utils.UserID(userID), utils.TradeID(id), utils.Symbol(trade.Symbol), utils.PNL(pnl))
	}
	return trade, nil
}

// checkRefs проверяет, что брокер и стратегия принадлежат пользователю
func (s *TradeService) checkRefs(ctx context.Context, userID int64, brokerID, strategyID *int64) error {
	if brokerID != nil {
		if _, err := s.brokers.GetByID(ctx, userID, *brokerID); err != nil {
			if errors.Is(err, repository.ErrBrokerNotFound) {
				return fmt.Errorf("%w: broker_id: broker not found", ErrInvalidTrade)
			}
			return err
		}
	}
	if strategyID != nil {
		if _, err := s.strategies.GetByID(ctx, userID, *strategyID); err != nil {
			if errors.Is(err, repository.ErrStrategyNotFound) {
				return fmt.Errorf("%w: strategy_id: strategy not found", ErrInvalidTrade)
			}
			return err
		}
	}
	return nil
}

// validateTrade собирает все ошибки полей сделки
func validateTrade(t *models.Trade) error {
	var verrs utils.ValidationErrors
	verrs.AddError("symbol", utils.ValidateSymbol(t.Symbol))
	verrs.AddError("trade_type", utils.ValidateTradeType(t.TradeType))
	verrs.AddError("position_side", utils.ValidatePositionSide(t.PositionSide))
	verrs.AddError("quantity", utils.ValidateQuantity(t.Quantity))
	verrs.AddError("entry_price", utils.ValidatePrice(t.EntryPrice))
	verrs.AddError("status", utils.ValidateTradeStatus(t.Status))

	if t.Status == models.TradeStatusClosed {
		if t.ExitPrice == nil {
			verrs.Add("exit_price", "required for closed trades")
		} else {
			verrs.AddError("exit_price", utils.ValidatePrice(*t.ExitPrice))
		}
		if t.ClosedAt != nil && t.ClosedAt.Before(t.OpenedAt) {
			verrs.Add("closed_at", "must not be before opened_at")
		}
	}
	if len(t.Notes) > 2000 {
		verrs.Add("notes", "too long")
	}

	if verrs.HasErrors() {
		return fmt.Errorf("%w: %s", ErrInvalidTrade, verrs.Error())
	}
	return nil
}
