// Package jobs управляет фоновыми задачами (cron).
// scheduler.go настраивает ежедневную очистку лога лимитов репутации.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// Pruner удаляет записи лога лимитов старше retention.
type Pruner interface {
	PruneRateLimitLog(ctx context.Context, retention time.Duration) (int64, error)
}

// Scheduler управляет фоновыми задачами.
type Scheduler struct {
	cron      *cron.Cron
	pruner    Pruner
	schedule  string
	retention time.Duration
}

// NewScheduler создаёт планировщик задач с московским часовым поясом.
func NewScheduler(pruner Pruner, schedule string, retention time.Duration) *Scheduler {
	loc, err := time.LoadLocation("Europe/Moscow")
	if err != nil {
		log.WithError(err).Warn("Не удалось загрузить Europe/Moscow, используем UTC+3")
		loc = time.FixedZone("MSK", 3*60*60)
	}

	return &Scheduler{
		cron:      cron.New(cron.WithLocation(loc)),
		pruner:    pruner,
		schedule:  schedule,
		retention: retention,
	}
}

// Start регистрирует задачи и запускает cron.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.schedule, func() { s.RunPrune(ctx) }); err != nil {
		return fmt.Errorf("расписание очистки %q: %w", s.schedule, err)
	}

	s.cron.Start()
	log.WithFields(log.Fields{
		"schedule":  s.schedule,
		"retention": s.retention.String(),
	}).Info("Планировщик задач запущен (Europe/Moscow)")
	return nil
}

// RunPrune выполняет одну очистку лога лимитов.
func (s *Scheduler) RunPrune(ctx context.Context) {
	log.Info("[CRON] Очистка лога лимитов репутации")
	pruned, err := s.pruner.PruneRateLimitLog(ctx, s.retention)
	if err != nil {
		log.WithError(err).Error("[CRON] Ошибка очистки")
		return
	}
	log.WithField("pruned", pruned).Info("[CRON] Очистка завершена")
}

// Stop останавливает планировщик и ждёт текущие задачи.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info("Планировщик задач остановлен")
}
