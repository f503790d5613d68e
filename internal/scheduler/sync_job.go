package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"tradejournal/pkg/utils"
)

// ErrJobRunning - предыдущий запуск задачи ещё не завершён
var ErrJobRunning = errors.New("job already running")

// Syncer синхронизирует сделки всех подключенных пользователей (service.SyncService)
type Syncer interface {
	SyncAll(ctx context.Context) (int, error)
}

// SyncJob - периодический импорт сделок. Пересекающиеся запуски пропускаются.
type SyncJob struct {
	syncer  Syncer
	timeout time.Duration
	running atomic.Bool
	logger  *utils.Logger
}

// NewSyncJob создает задачу синхронизации. timeout ограничивает один запуск.
func NewSyncJob(syncer Syncer, timeout time.Duration, logger *utils.Logger) *SyncJob {
	if logger == nil {
		logger = utils.L()
	}
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &SyncJob{
		syncer:  syncer,
		timeout: timeout,
		logger:  logger.With(utils.String("job", "broker_sync")),
	}
}

// Name возвращает имя задачи
func (j *SyncJob) Name() string {
	return "broker_sync"
}

// Run запускает синхронизацию
func (j *SyncJob) Run() error {
	if !j.running.CompareAndSwap(false, true) {
		j.logger.Warn("previous sync still running, skipping")
		return ErrJobRunning
	}
	defer j.running.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	start := time.Now()
	synced, err := j.syncer.SyncAll(ctx)
	if err != nil {
		return err
	}

	j.logger.Info("sync cycle completed",
		utils.Count("users", synced),
		utils.String("duration", utils.FormatDuration(time.Since(start))))
	return nil
}
