package scheduler

import (
	"github.com/robfig/cron/v3"

	"tradejournal/pkg/utils"
)

// Job - фоновая задача планировщика
type Job interface {
	Run() error
	Name() string
}

// Scheduler запускает фоновые задачи по cron расписанию (с секундами)
type Scheduler struct {
	cron   *cron.Cron
	logger *utils.Logger
}

// New создает планировщик
func New(logger *utils.Logger) *Scheduler {
	if logger == nil {
		logger = utils.L()
	}
	return &Scheduler{
		cron:   cron.New(cron.WithSeconds()),
		logger: logger.WithComponent("scheduler"),
	}
}

// Start запускает планировщик
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", utils.Count("jobs", len(s.cron.Entries())))
}

// Stop останавливает планировщик и ждёт завершения запущенных задач
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}

// AddJob регистрирует задачу. Примеры расписаний:
//   - "0 */30 * * * *" - каждые 30 минут
//   - "0 0 16 * * MON-FRI" - после закрытия NSE по будням
//   - "@every 10m"
func (s *Scheduler) AddJob(schedule string, job Job) error {
	_, err := s.cron.AddFunc(schedule, func() {
		s.run(job)
	})
	if err != nil {
		return err
	}

	s.logger.Info("job registered", utils.String("job", job.Name()), utils.String("schedule", schedule))
	return nil
}

// RunNow выполняет задачу немедленно, вне расписания
func (s *Scheduler) RunNow(job Job) error {
	s.logger.Info("running job now", utils.String("job", job.Name()))
	return job.Run()
}

func (s *Scheduler) run(job Job) {
	s.logger.Debug("running job", utils.String("job", job.Name()))
	if err := job.Run(); err != nil {
		s.logger.Error("job failed", utils.String("job", job.Name()), utils.Err(err))
		return
	}
	s.logger.Debug("job completed", utils.String("job", job.Name()))
}
