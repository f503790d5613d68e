package service

import (
	"context"
	"errors"

	"tradejournal/internal/auth"
	"tradejournal/internal/broker"
	"tradejournal/internal/models"
	"tradejournal/internal/repository"
)

// AccountService собирает сводку по брокерским аккаунтам пользователя
type AccountService struct {
	brokers BrokerRepositoryInterface
	trades  TradeRepositoryInterface
	tokens  TokenRepositoryInterface
}

// NewAccountService создает новый экземпляр сервиса
func NewAccountService(brokers BrokerRepositoryInterface, trades TradeRepositoryInterface, tokens TokenRepositoryInterface) *AccountService {
	return &AccountService{brokers: brokers, trades: trades, tokens: tokens}
}

// TradingAccounts возвращает брокеров со статусом, временем синхронизации и количеством сделок
func (s *AccountService) TradingAccounts(ctx context.Context) ([]*models.TradingAccount, error) {
	userID, err := auth.UserIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	records, err := s.brokers.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	counts, err := s.trades.CountByBroker(ctx, userID)
	if err != nil {
		return nil, err
	}

	accounts := make([]*models.TradingAccount, 0, len(records))
	for _, r := range records {
		accounts = append(accounts, &models.TradingAccount{
			BrokerID:   r.ID,
			Name:       r.Name,
			BrokerType: r.BrokerType,
			Status:     r.Status,
			LastSyncAt: r.LastSyncAt,
			TradeCount: counts[r.ID],
		})
	}
	return accounts, nil
}

// BrokerStatuses возвращает статусы брокеров; для Upstox - состояние OAuth токена
func (s *AccountService) BrokerStatuses(ctx context.Context) ([]*models.BrokerStatus, error) {
	userID, err := auth.UserIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	records, err := s.brokers.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	var token *models.OAuthToken
	for _, r := range records {
		if r.BrokerType != string(broker.Upstox) {
			continue
		}
		token, err = s.tokens.Get(ctx, userID)
		if err != nil && !errors.Is(err, repository.ErrTokenNotFound) {
			return nil, err
		}
		break
	}

	now := timeNow()
	statuses := make([]*models.BrokerStatus, 0, len(records))
	for _, r := range records {
		status := &models.BrokerStatus{
			BrokerID:   r.ID,
			Name:       r.Name,
			BrokerType: r.BrokerType,
			Status:     r.Status,
			LastSyncAt: r.LastSyncAt,
		}
		if r.BrokerType == string(broker.Upstox) && token != nil {
			expiresAt := token.ExpiresAt
			status.TokenExpiresAt = &expiresAt
			status.TokenConnected = !token.IsExpired(now)
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}
