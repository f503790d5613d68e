package service

import (
	"context"
	"time"

	"tradejournal/internal/auth"
	"tradejournal/internal/broker"
	"tradejournal/internal/metrics"
	"tradejournal/internal/models"
	"tradejournal/pkg/utils"
)

// ConnectionService проверяет учетные данные брокера.
// Обязательные поля проверяются адаптером до любого сетевого вызова.
type ConnectionService struct {
	provider    BrokerProvider
	credentials *CredentialService
	tokens      TokenRepositoryInterface
	logger      *utils.Logger
}

// NewConnectionService создает новый экземпляр сервиса
func NewConnectionService(provider BrokerProvider, credentials *CredentialService, tokens TokenRepositoryInterface, logger *utils.Logger) *ConnectionService {
	if logger == nil {
		logger = utils.L()
	}
	return &ConnectionService{
		provider:    provider,
		credentials: credentials,
		tokens:      tokens,
		logger:      logger.WithComponent("connection"),
	}
}

// Test проверяет переданные учетные данные брокера brokerType
func (s *ConnectionService) Test(ctx context.Context, brokerType string, creds models.Credentials) (*broker.ConnectionStatus, error) {
	userID, err := auth.UserIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	b, err := s.provider.Get(brokerType)
	if err != nil {
		return nil, err
	}

	creds = s.credentials.WithDefaults(b.Type(), creds)

	start := time.Now()
	status, err := b.TestConnection(withBrokerLimit(ctx, b.Type(), userID), creds)
	metrics.ObserveBrokerCall(string(b.Type()), "test", time.Since(start))

	switch {
	case err == nil:
		metrics.RecordConnectionTest(string(b.Type()), status.Status)
		s.logger.Info("connection test passed",
			utils.UserID(userID),
			utils.BrokerType(string(b.Type())),
			utils.Status(status.Status))
	case broker.IsValidationError(err):
		metrics.RecordConnectionTest(string(b.Type()), "invalid")
	default:
		metrics.RecordConnectionTest(string(b.Type()), "failed")
		s.logger.Warn("connection test failed",
			utils.UserID(userID),
			utils.BrokerType(string(b.Type())),
			utils.Err(err))
	}
	return status, err
}

// TestStored проверяет сохранённые учетные данные брокера.
// Для Upstox подставляется сохранённый OAuth access token.
func (s *ConnectionService) TestStored(ctx context.Context, brokerID int64) (*broker.ConnectionStatus, error) {
	record, creds, err := s.credentials.Get(ctx, brokerID)
	if err != nil {
		return nil, err
	}

	if record.BrokerType == string(broker.Upstox) && creds.AccessToken == "" && s.tokens != nil {
		if tok, err := s.tokens.Get(ctx, record.UserID); err == nil && !tok.IsExpired(timeNow()) {
			creds.AccessToken = tok.AccessToken
		}
	}
	return s.Test(ctx, record.BrokerType, *creds)
}
