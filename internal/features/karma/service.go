// Package karma: service.go содержит бизнес-логику начисления кармы.
package karma

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"cofish.app/core/internal/common"
	"cofish.app/core/internal/features/ledger"
	"cofish.app/core/internal/geo"
	"cofish.app/core/internal/hooks"
	"cofish.app/core/internal/metrics"
	"cofish.app/core/internal/store"
)

// Ledger начисление очков автору исходного улова.
type Ledger interface {
	Credit(ctx context.Context, userID string, amount int64, source string) (*store.User, error)
}

// Service управляет кармой.
type Service struct {
	repo     *Repository
	ledger   Ledger
	settings Settings
	awarded  hooks.List[*store.KarmaEvent]
}

// NewService создаёт сервис кармы.
func NewService(repo *Repository, l Ledger, settings Settings) *Service {
	d := DefaultSettings()
	if settings.Points <= 0 {
		settings.Points = d.Points
	}
	if settings.RadiusMiles <= 0 {
		settings.RadiusMiles = d.RadiusMiles
	}
	if settings.Window <= 0 {
		settings.Window = d.Window
	}
	if settings.Retry.MaxAttempts <= 0 {
		settings.Retry = d.Retry
	}
	if settings.Retry.OnConflict == nil {
		settings.Retry.OnConflict = func(int) { metrics.ConflictRetriesTotal.WithLabelValues("catch").Inc() }
	}
	return &Service{repo: repo, ledger: l, settings: settings}
}

// OnAwarded добавляет хук, вызываемый после каждого записанного события кармы.
func (s *Service) OnAwarded(h hooks.Hook[*store.KarmaEvent]) {
	s.awarded = append(s.awarded, h)
}

// Hook post-commit хук для начисления за улов.
func (s *Service) Hook() hooks.Hook[*store.Catch] {
	return hooks.Hook[*store.Catch]{
		Name: "karma",
		Fn: func(ctx context.Context, c *store.Catch) error {
			_, err := s.DistributeForCatch(ctx, c)
			return err
		},
	}
}

// DistributeForCatch находит покупки таргет-зон за окно до нового улова и
// начисляет карму авторам включённых в них уловов, если новый улов пойман
// не дальше RadiusMiles от них. Каждый исходный улов получает карму не более
// одного раза за вызов. Сбой на одном исходном улове не прерывает остальные.
func (s *Service) DistributeForCatch(ctx context.Context, c *store.Catch) (*Distribution, error) {
	dist := &Distribution{CatchID: c.ID}
	lat, lng, ok := c.Location()
	if !ok {
		log.WithField("catch_id", c.ID).Debug("У улова нет координат, карма не начисляется")
		return dist, fmt.Errorf("улов %s: %w", c.ID, common.ErrMissingLocation)
	}

	purchases, err := s.repo.PurchasesBetween(ctx, c.CreatedAt.Add(-s.settings.Window), c.CreatedAt)
	if err != nil {
		return dist, fmt.Errorf("покупки для кармы: %w", err)
	}

	seen := make(map[string]struct{})
	for _, p := range purchases {
		for _, sourceID := range p.IncludedCatchIDs {
			if sourceID == "" || sourceID == c.ID {
				continue
			}
			if _, dup := seen[sourceID]; dup {
				continue
			}
			seen[sourceID] = struct{}{}
			dist.Considered++

			award, err := s.awardSource(ctx, c, lat, lng, sourceID)
			if err != nil {
				dist.Failed++
				log.WithError(err).WithFields(log.Fields{
					"catch_id":        c.ID,
					"source_catch_id": sourceID,
				}).Warn("Не удалось начислить карму за исходный улов")
				continue
			}
			if award != nil {
				dist.Awards = append(dist.Awards, *award)
			}
		}
	}

	if len(dist.Awards) > 0 || dist.Failed > 0 {
		log.WithFields(log.Fields{
			"catch_id":   c.ID,
			"purchases":  len(purchases),
			"considered": dist.Considered,
			"awarded":    len(dist.Awards),
			"failed":     dist.Failed,
		}).Info("Карма за улов распределена")
	}
	return dist, nil
}

// awardSource проверяет исходный улов и начисляет карму.
// Возвращает nil без ошибки, если улов не подходит.
func (s *Service) awardSource(ctx context.Context, c *store.Catch, lat, lng float64, sourceID string) (*Award, error) {
	src, err := s.repo.GetCatch(ctx, sourceID)
	if errors.Is(err, common.ErrNotFound) {
		log.WithField("source_catch_id", sourceID).Debug("Исходный улов удалён")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if src.VerificationStatus != store.StatusAwarded || src.UserID == c.UserID {
		return nil, nil
	}
	srcLat, srcLng, ok := src.Location()
	if !ok {
		return nil, nil
	}
	d := geo.HaversineMiles(lat, lng, srcLat, srcLng)
	if d > s.settings.RadiusMiles {
		log.WithFields(log.Fields{
			"source_catch_id": sourceID,
			"distance_miles":  d,
		}).Debug("Исходный улов дальше радиуса кармы")
		return nil, nil
	}

	if err := s.addKarma(ctx, sourceID, s.settings.Points); err != nil {
		return nil, err
	}
	if _, err := s.ledger.Credit(ctx, src.UserID, s.settings.Points, ledger.SourceKarma); err != nil {
		if cerr := s.addKarma(ctx, sourceID, -s.settings.Points); cerr != nil {
			metrics.CompensationFailuresTotal.WithLabelValues("karma").Inc()
			log.WithError(cerr).WithField("source_catch_id", sourceID).Error("Не удалось откатить карму улова, нужна сверка")
		}
		return nil, err
	}
	metrics.KarmaAwardsTotal.Inc()

	event, err := s.repo.LogKarma(ctx, &store.KarmaEvent{
		HelperUserID:       src.UserID,
		BeneficiaryUserID:  c.UserID,
		SourceCatchID:      sourceID,
		BeneficiaryCatchID: c.ID,
		Points:             s.settings.Points,
		DistanceMiles:      d,
	})
	if err != nil {
		// Очки уже начислены, событие только аудит
		log.WithError(err).WithField("source_catch_id", sourceID).Error("Ошибка записи события кармы")
	} else {
		s.awarded.Run(ctx, event)
	}

	log.WithFields(log.Fields{
		"source_catch_id": sourceID,
		"helper_user_id":  src.UserID,
		"distance_miles":  d,
		"points":          s.settings.Points,
	}).Info("Карма начислена")
	return &Award{SourceCatchID: sourceID, HelperUserID: src.UserID, Points: s.settings.Points, DistanceMiles: d}, nil
}

func (s *Service) addKarma(ctx context.Context, catchID string, delta int64) error {
	return store.RetryOnConflict(ctx, s.settings.Retry, func(ctx context.Context) error {
		_, err := s.repo.AddKarma(ctx, catchID, delta)
		return err
	})
}

// GetKarma сводка полученной кармы: сумма и страница событий.
func (s *Service) GetKarma(ctx context.Context, userID string, opts store.ListOptions) (*Summary, error) {
	total, err := s.repo.TotalByHelper(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("сумма кармы: %w", err)
	}
	page, err := s.repo.EventsByHelper(ctx, userID, opts)
	if err != nil {
		return nil, fmt.Errorf("события кармы: %w", err)
	}
	events := page.Items
	if events == nil {
		events = []*store.KarmaEvent{}
	}
	return &Summary{UserID: userID, Total: total, Events: events, Next: page.Next}, nil
}
