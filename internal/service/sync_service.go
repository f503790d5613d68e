package service

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"tradejournal/internal/auth"
	"tradejournal/internal/broker"
	"tradejournal/pkg/utils"
)

// Статусы синхронизации брокера
const (
	SyncStatusImported = "imported"
	SyncStatusSkipped  = "skipped"
	SyncStatusFailed   = "failed"
)

// syncConcurrency - сколько пользователей синхронизируется одновременно
const syncConcurrency = 4

// SyncResult - результат синхронизации одного брокера
type SyncResult struct {
	BrokerID      int64  `json:"broker_id"`
	BrokerType    string `json:"broker_type"`
	Name          string `json:"name"`
	Status        string `json:"status"`
	ImportedCount int    `json:"imported_count"`
	TotalTrades   int    `json:"total_trades"`
	Error         string `json:"error,omitempty"`
}

// SyncService запускает импорт для брокеров, отдающих книгу сделок
type SyncService struct {
	credentials *CredentialService
	provider    BrokerProvider
	importer    *ImportService
	tokens      TokenRepositoryInterface
	logger      *utils.Logger
}

// NewSyncService создает новый экземпляр сервиса
func NewSyncService(credentials *CredentialService, provider BrokerProvider, importer *ImportService, tokens TokenRepositoryInterface, logger *utils.Logger) *SyncService {
	if logger == nil {
		logger = utils.L()
	}
	return &SyncService{
		credentials: credentials,
		provider:    provider,
		importer:    importer,
		tokens:      tokens,
		logger:      logger.WithComponent("sync"),
	}
}

// SyncBrokers синхронизирует активных брокеров текущего пользователя.
// Ошибка одного брокера не прерывает остальные.
func (s *SyncService) SyncBrokers(ctx context.Context) ([]*SyncResult, error) {
	return s.syncUser(ctx, TriggerAPI)
}

func (s *SyncService) syncUser(ctx context.Context, trigger string) ([]*SyncResult, error) {
	records, err := s.credentials.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]*SyncResult, 0, len(records))
	for _, r := range records {
		result := &SyncResult{BrokerID: r.ID, BrokerType: r.BrokerType, Name: r.Name}
		results = append(results, result)

		b, err := s.provider.Get(r.BrokerType)
		if err != nil {
			result.Status = SyncStatusFailed
			result.Error = err.Error()
			continue
		}
		if _, ok := b.(broker.TradeFetcher); !ok || b.Type() != broker.Upstox {
			result.Status = SyncStatusSkipped
			result.Error = "trade import is not supported for this broker"
			continue
		}

		imported, err := s.importer.Import(ctx, trigger)
		if err != nil {
			result.Status = SyncStatusFailed
			result.Error = err.Error()
			continue
		}
		result.Status = SyncStatusImported
		result.ImportedCount = imported.ImportedCount
		result.TotalTrades = imported.TotalUpstoxTrades
	}
	return results, nil
}

// SyncAll синхронизирует всех пользователей с сохранёнными OAuth токенами.
// Используется планировщиком; возвращает количество успешно синхронизированных.
func (s *SyncService) SyncAll(ctx context.Context) (int, error) {
	userIDs, err := s.tokens.ListUserIDs(ctx)
	if err != nil {
		return 0, err
	}

	var synced int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(syncConcurrency)

	for _, userID := range userIDs {
		userID := userID
		g.Go(func() error {
			results, err := s.syncUser(auth.WithUserID(gctx, userID), TriggerSync)
			if err != nil {
				s.logger.Warn("user sync failed", utils.UserID(userID), utils.Err(err))
				return nil
			}
			for _, r := range results {
				if r.Status == SyncStatusFailed {
					s.logger.Warn("broker sync failed",
						utils.UserID(userID),
						utils.BrokerID(r.BrokerID),
						utils.String("error", r.Error))
				}
			}
			atomic.AddInt64(&synced, 1)
			return nil
		})
	}
	_ = g.Wait()

	s.logger.Info("scheduled sync finished", utils.Count("users", len(userIDs)), utils.Count("synced", int(synced)))
	return int(synced), nil
}
