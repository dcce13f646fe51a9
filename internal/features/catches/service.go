// Package catches: service.go содержит бизнес-логику уловов.
package catches

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"cofish.app/core/internal/common"
	"cofish.app/core/internal/features/ledger"
	"cofish.app/core/internal/geo"
	"cofish.app/core/internal/hooks"
	"cofish.app/core/internal/metrics"
	"cofish.app/core/internal/oracle"
	"cofish.app/core/internal/store"
)

// Oracle оценка кадров и векторизация описаний.
type Oracle interface {
	ScoreFrame(ctx context.Context, image []byte) (oracle.FrameScore, error)
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Ledger начисление очков владельцу улова.
type Ledger interface {
	Credit(ctx context.Context, userID string, amount int64, source string) (*store.User, error)
}

// Settings параметры сервиса.
type Settings struct {
	BasePoints int64
	Thresholds Thresholds
	Retry      store.RetryPolicy
}

// Service управляет уловами.
type Service struct {
	store    store.Store
	oracle   Oracle
	ledger   Ledger
	settings Settings
	awarded  hooks.List[*store.Catch]
}

// NewService создаёт сервис. oracle может быть nil: тогда AnalyzeCatch
// возвращает ErrUpstreamOracle, остальные операции работают.
func NewService(s store.Store, o Oracle, l Ledger, settings Settings) *Service {
	if settings.BasePoints <= 0 {
		settings.BasePoints = 100
	}
	if settings.Thresholds == (Thresholds{}) {
		settings.Thresholds = DefaultThresholds()
	}
	if settings.Retry.OnConflict == nil {
		settings.Retry.OnConflict = func(int) { metrics.ConflictRetriesTotal.WithLabelValues("catch").Inc() }
	}
	return &Service{store: s, oracle: o, ledger: l, settings: settings}
}

// OnAwarded добавляет post-commit хук, который вызывается после успешного начисления.
func (s *Service) OnAwarded(h hooks.Hook[*store.Catch]) {
	s.awarded = append(s.awarded, h)
}

// CreatePendingCatch создаёт улов в статусе PENDING_VERIFICATION.
func (s *Service) CreatePendingCatch(ctx context.Context, userID string, in CreateInput) (*store.Catch, error) {
	if userID == "" {
		return nil, common.ErrNotAuthenticated
	}
	if strings.TrimSpace(in.VideoKey) == "" {
		return nil, fmt.Errorf("videoKey обязателен: %w", common.ErrInvalidInput)
	}
	if (in.Lat == nil) != (in.Lng == nil) {
		return nil, fmt.Errorf("координаты задаются парой: %w", common.ErrInvalidInput)
	}
	if in.Lat != nil && !geo.ValidCoordinates(*in.Lat, *in.Lng) {
		return nil, fmt.Errorf("координаты (%v, %v): %w", *in.Lat, *in.Lng, common.ErrInvalidInput)
	}

	c, err := s.store.Catches().Create(ctx, &store.Catch{
		UserID:             userID,
		Species:            strings.TrimSpace(in.Species),
		Lat:                in.Lat,
		Lng:                in.Lng,
		VideoKey:           strings.TrimSpace(in.VideoKey),
		ThumbnailKey:       strings.TrimSpace(in.ThumbnailKey),
		BasePoints:         s.settings.BasePoints,
		KarmaPoints:        0,
		VerificationStatus: store.StatusPending,
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка создания улова: %w", err)
	}
	log.WithFields(log.Fields{"catch_id": c.ID, "user_id": userID}).Info("Создан улов, ждёт проверки")
	return c, nil
}

// GetCatch возвращает улов.
func (s *Service) GetCatch(ctx context.Context, catchID string) (*store.Catch, error) {
	return s.store.Catches().Get(ctx, catchID)
}

// GetOwnCatch возвращает улов, только если он принадлежит userID.
// Чужой улов выглядит как несуществующий.
func (s *Service) GetOwnCatch(ctx context.Context, userID, catchID string) (*store.Catch, error) {
	c, err := s.store.Catches().Get(ctx, catchID)
	if err != nil {
		return nil, err
	}
	if c.UserID != userID {
		return nil, fmt.Errorf("catch %s: %w", catchID, common.ErrNotFound)
	}
	return c, nil
}

// ListUserCatches уловы пользователя, новые первыми.
func (s *Service) ListUserCatches(ctx context.Context, userID string, opts store.ListOptions) (store.Page[*store.Catch], error) {
	return s.store.Catches().ListByUser(ctx, userID, opts)
}

// AnalyzeCatch прогоняет кадры через оракул, проверяет уникальность
// и записывает итог (VERIFIED или REJECTED).
// Сбой оракула на кадре возвращается вызывающему; сбой векторизации
// означает проверку без эмбеддинга (улов считается уникальным).
func (s *Service) AnalyzeCatch(ctx context.Context, userID, catchID string, frames [][]byte) (*Verification, error) {
	c, err := s.GetOwnCatch(ctx, userID, catchID)
	if err != nil {
		return nil, err
	}
	if err := analyzable(c); err != nil {
		return nil, err
	}
	if s.oracle == nil {
		return nil, fmt.Errorf("оракул не настроен: %w", common.ErrUpstreamOracle)
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("нет кадров: %w", common.ErrInvalidInput)
	}

	scores := make([]oracle.FrameScore, 0, len(frames))
	for i, frame := range frames {
		score, err := s.oracle.ScoreFrame(ctx, frame)
		if err != nil {
			return nil, fmt.Errorf("кадр %d: %w", i+1, err)
		}
		scores = append(scores, score)
	}
	analysis, err := AggregateFrames(scores)
	if err != nil {
		return nil, err
	}
	if analysis.Fingerprint != "" {
		emb, err := s.oracle.Embed(ctx, analysis.Fingerprint)
		if err != nil {
			log.WithError(err).WithField("catch_id", catchID).Warn("Не удалось получить эмбеддинг, проверка уникальности пропущена")
		} else {
			analysis.Embedding = emb
		}
	}

	uniq, err := s.CheckFishUniqueness(ctx, catchID, analysis.Embedding)
	if err != nil {
		return nil, err
	}
	verdict := Decide(s.settings.Thresholds, analysis.AliveScore, analysis.Confidence, uniq.IsUnique)

	status := store.StatusRejected
	if verdict.Verified {
		status = store.StatusVerified
	}
	species := analysis.Species
	if species == "" {
		species = c.Species
	}
	updated, err := s.UpdateCatchAfterAnalysis(ctx, AnalysisUpdate{
		CatchID:     catchID,
		AliveScore:  analysis.AliveScore,
		Confidence:  analysis.Confidence,
		Note:        analysis.Note,
		Status:      status,
		Species:     species,
		Fingerprint: analysis.Fingerprint,
		Embedding:   analysis.Embedding,
	})
	if err != nil {
		return nil, err
	}

	result := "verified"
	switch {
	case !verdict.IsUnique:
		result = "rejected_duplicate"
	case !verdict.IsAlive:
		result = "rejected_alive"
	}
	metrics.CatchVerificationsTotal.WithLabelValues(result).Inc()
	log.WithFields(log.Fields{
		"catch_id":    catchID,
		"alive_score": analysis.AliveScore,
		"confidence":  analysis.Confidence,
		"unique":      uniq.IsUnique,
		"status":      updated.VerificationStatus,
	}).Info("Анализ улова завершён")

	return &Verification{Catch: updated, Analysis: analysis, Uniqueness: uniq, Verdict: verdict}, nil
}

// analyzable анализ принимается только для PENDING_VERIFICATION.
// VERIFIED и REJECTED окончательны для этого улова.
func analyzable(c *store.Catch) error {
	switch c.VerificationStatus {
	case store.StatusPending:
		return nil
	case store.StatusAwarded:
		return common.ErrCatchAlreadyAwarded
	default:
		return fmt.Errorf("статус %s: %w", c.VerificationStatus, common.ErrCatchAlreadyAnalyzed)
	}
}

// UpdateCatchAfterAnalysis записывает результаты анализа в улов PENDING_VERIFICATION.
// Статус можно сменить только на VERIFIED или REJECTED.
func (s *Service) UpdateCatchAfterAnalysis(ctx context.Context, upd AnalysisUpdate) (*store.Catch, error) {
	switch upd.Status {
	case "", store.StatusVerified, store.StatusRejected:
	default:
		return nil, fmt.Errorf("статус %q после анализа: %w", upd.Status, common.ErrInvalidInput)
	}
	var out *store.Catch
	err := store.RetryOnConflict(ctx, s.settings.Retry, func(ctx context.Context) error {
		c, err := s.store.Catches().Get(ctx, upd.CatchID)
		if err != nil {
			return err
		}
		if err := analyzable(c); err != nil {
			return err
		}
		c.AliveScore = store.Float(upd.AliveScore)
		c.AnalysisConfidence = store.Float(upd.Confidence)
		if upd.Note != "" {
			c.AnalysisNote = upd.Note
		}
		if upd.Status != "" {
			c.VerificationStatus = upd.Status
		}
		if upd.Species != "" {
			c.Species = upd.Species
		}
		if upd.Fingerprint != "" {
			c.FishFingerprint = upd.Fingerprint
		}
		if upd.Embedding != nil {
			c.FishEmbedding = upd.Embedding
		}
		out, err = s.store.Catches().Update(ctx, c)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка записи анализа улова %s: %w", upd.CatchID, err)
	}
	return out, nil
}

// AwardPointsForVerifiedCatch переводит улов в AWARDED и начисляет владельцу
// базовые очки. Повторное начисление отклоняется с ErrCatchAlreadyAwarded.
// Если начисление не прошло, статус возвращается в VERIFIED.
// После успеха выполняются post-commit хуки (карма, события); их сбои не влияют на результат.
func (s *Service) AwardPointsForVerifiedCatch(ctx context.Context, userID, catchID string) (*store.Catch, error) {
	var awarded *store.Catch
	err := store.RetryOnConflict(ctx, s.settings.Retry, func(ctx context.Context) error {
		c, err := s.GetOwnCatch(ctx, userID, catchID)
		if err != nil {
			return err
		}
		switch c.VerificationStatus {
		case store.StatusAwarded:
			return common.ErrCatchAlreadyAwarded
		case store.StatusVerified:
		default:
			return fmt.Errorf("статус %s: %w", c.VerificationStatus, common.ErrCatchNotVerified)
		}
		c.VerificationStatus = store.StatusAwarded
		awarded, err = s.store.Catches().Update(ctx, c)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("начисление за улов %s: %w", catchID, err)
	}

	if _, err := s.ledger.Credit(ctx, awarded.UserID, awarded.BasePoints, ledger.SourceCatch); err != nil {
		s.revertAward(ctx, awarded.ID)
		return nil, fmt.Errorf("начисление за улов %s: %w", catchID, err)
	}
	log.WithFields(log.Fields{
		"catch_id": awarded.ID,
		"user_id":  awarded.UserID,
		"points":   awarded.BasePoints,
	}).Info("Очки за улов начислены")

	s.awarded.Run(ctx, awarded.Clone())
	return awarded, nil
}

// revertAward компенсация: AWARDED → VERIFIED.
func (s *Service) revertAward(ctx context.Context, catchID string) {
	err := store.RetryOnConflict(ctx, s.settings.Retry, func(ctx context.Context) error {
		c, err := s.store.Catches().Get(ctx, catchID)
		if err != nil {
			return err
		}
		if c.VerificationStatus != store.StatusAwarded {
			return nil
		}
		c.VerificationStatus = store.StatusVerified
		_, err = s.store.Catches().Update(ctx, c)
		return err
	})
	if err != nil {
		metrics.CompensationFailuresTotal.WithLabelValues("award").Inc()
		log.WithError(err).WithField("catch_id", catchID).Error("Не удалось откатить статус улова, нужна сверка")
		return
	}
	log.WithField("catch_id", catchID).Warn("Начисление не прошло, улов возвращён в VERIFIED")
}

// CheckFishUniqueness сравнивает эмбеддинг с уловами того же пользователя
// (VERIFIED и AWARDED) и, если включено, с уловами других пользователей.
// Без эмбеддинга или при сбое чтения улов считается уникальным.
func (s *Service) CheckFishUniqueness(ctx context.Context, catchID string, embedding []float64) (Uniqueness, error) {
	if len(embedding) == 0 {
		return Uniqueness{IsUnique: true}, nil
	}
	c, err := s.store.Catches().Get(ctx, catchID)
	if err != nil {
		return Uniqueness{}, fmt.Errorf("улов для проверки уникальности: %w", err)
	}

	t := s.settings.Thresholds
	verified := []store.VerificationStatus{store.StatusVerified, store.StatusAwarded}
	var best bestMatch

	own, err := s.store.Catches().ListByUser(ctx, c.UserID, store.ListOptions{
		Direction: store.Desc,
		Limit:     t.ReferenceLimit,
		Statuses:  verified,
	})
	if err != nil {
		log.WithError(err).WithField("catch_id", catchID).Warn("Не удалось загрузить уловы для проверки уникальности")
		return Uniqueness{IsUnique: true}, nil
	}
	if dup, ok := best.scan(own.Items, catchID, embedding, t.SameUser, ""); ok {
		return dup, nil
	}

	if t.CrossUserEnabled {
		others, err := s.store.Catches().List(ctx, store.ListOptions{
			Direction: store.Desc,
			Limit:     t.ReferenceLimit,
			Statuses:  verified,
		})
		if err != nil {
			log.WithError(err).WithField("catch_id", catchID).Warn("Не удалось загрузить чужие уловы для проверки уникальности")
		} else if dup, ok := best.scan(others.Items, catchID, embedding, t.CrossUser, c.UserID); ok {
			return dup, nil
		}
	}
	return best.result(), nil
}

type bestMatch struct {
	score float64
	id    string
}

// scan ищет первый улов с сходством не ниже threshold, попутно запоминая максимум.
// Уловы skipUser пропускаются (они уже сравнены по своему порогу).
func (b *bestMatch) scan(refs []*store.Catch, selfID string, embedding []float64, threshold float64, skipUser string) (Uniqueness, bool) {
	for _, ref := range refs {
		if ref.ID == selfID || len(ref.FishEmbedding) == 0 || (skipUser != "" && ref.UserID == skipUser) {
			continue
		}
		sim := CosineSimilarity(embedding, ref.FishEmbedding)
		if sim > b.score {
			b.score, b.id = sim, ref.ID
		}
		if sim >= threshold {
			return Uniqueness{IsUnique: false, SimilarityScore: store.Float(sim), SimilarCatchID: ref.ID}, true
		}
	}
	return Uniqueness{}, false
}

func (b *bestMatch) result() Uniqueness {
	if b.score <= 0 {
		return Uniqueness{IsUnique: true}
	}
	return Uniqueness{IsUnique: true, SimilarityScore: store.Float(b.score), SimilarCatchID: b.id}
}
