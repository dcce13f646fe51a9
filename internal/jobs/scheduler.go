// Package jobs управляет фоновыми задачами (cron).
// scheduler.go настраивает расписание: ежедневная очистка квоты превью
// и ночная сверка балансов.
package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"cofish.app/core/internal/common"
	"cofish.app/core/internal/features/ledger"
	"cofish.app/core/internal/features/targetzone"
)

// Auditor сверка балансов.
type Auditor interface {
	AuditAll(ctx context.Context) ([]ledger.Audit, error)
}

// Scheduler управляет фоновыми задачами.
type Scheduler struct {
	cron    *cron.Cron
	quota   targetzone.QuotaStore
	auditor Auditor
	loc     *time.Location
	now     func() time.Time
}

// NewScheduler создаёт планировщик в часовом поясе приложения.
// День квоты превью считается в том же поясе.
func NewScheduler(quota targetzone.QuotaStore, auditor Auditor, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(loc)),
		quota:   quota,
		auditor: auditor,
		loc:     loc,
		now:     time.Now,
	}
}

// Start запускает все фоновые задачи.
func (s *Scheduler) Start(ctx context.Context) error {
	// Сразу после полуночи: счётчики вчерашних превью больше не нужны
	if _, err := s.cron.AddFunc("5 0 * * *", func() { s.PurgeQuota() }); err != nil {
		return err
	}
	// Ночная сверка: расхождения только логируются и считаются
	if _, err := s.cron.AddFunc("30 3 * * *", func() { s.Reconcile(ctx) }); err != nil {
		return err
	}
	s.cron.Start()
	log.WithField("tz", s.loc.String()).Info("Планировщик задач запущен")
	return nil
}

// PurgeQuota удаляет счётчики превью прошлых дней.
func (s *Scheduler) PurgeQuota() int {
	today := common.DayKey(s.now(), s.loc)
	removed := s.quota.Purge(today)
	log.WithFields(log.Fields{"day": today, "removed": removed}).Info("[CRON] Очистка квоты превью")
	return removed
}

// Reconcile сверяет балансы всех пользователей.
func (s *Scheduler) Reconcile(ctx context.Context) int {
	start := s.now()
	mismatches, err := s.auditor.AuditAll(ctx)
	if err != nil {
		log.WithError(err).Error("[CRON] Ошибка сверки балансов")
	}
	log.WithFields(log.Fields{
		"mismatches": len(mismatches),
		"elapsed":    s.now().Sub(start).String(),
	}).Info("[CRON] Сверка балансов завершена")
	return len(mismatches)
}

// Stop останавливает планировщик и ждёт текущие задачи.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info("Планировщик задач остановлен")
}
