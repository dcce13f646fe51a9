// Package admin: service.go содержит служебные операции и проверку пароля оператора.
package admin

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/argon2"

	"cofish.app/core/internal/common"
	"cofish.app/core/internal/features/ledger"
	"cofish.app/core/internal/geo"
	"cofish.app/core/internal/metrics"
	"cofish.app/core/internal/store"
)

// Ledger операции баланса, нужные обслуживанию.
type Ledger interface {
	Credit(ctx context.Context, userID string, amount int64, source string) (*store.User, error)
	SetBalance(ctx context.Context, userID string, balance, expectedVersion int64) (*store.User, error)
}

// Service служебные операции.
type Service struct {
	repo         *Repository
	ledger       Ledger
	passwordHash string
	basePoints   int64
	rnd          geo.Rand
	now          func() time.Time
}

// NewService создаёт сервис. passwordHash в формате Argon2id из ADMIN_PASSWORD_HASH.
func NewService(repo *Repository, l Ledger, passwordHash string, basePoints int64) *Service {
	if basePoints <= 0 {
		basePoints = 100
	}
	return &Service{
		repo:         repo,
		ledger:       l,
		passwordHash: passwordHash,
		basePoints:   basePoints,
		rnd:          geo.DefaultRand,
		now:          time.Now,
	}
}

// WithRand подменяет источник случайности (для тестов).
func (s *Service) WithRand(rnd geo.Rand) *Service {
	s.rnd = rnd
	return s
}

// VerifyOperator проверяет пароль оператора. Без настроенного хеша доступ закрыт.
func (s *Service) VerifyOperator(password string) error {
	if strings.TrimSpace(s.passwordHash) == "" {
		return fmt.Errorf("ADMIN_PASSWORD_HASH не задан: %w", common.ErrOperatorDenied)
	}
	if !verifyArgon2id(password, s.passwordHash) {
		log.Warn("Неверный пароль оператора")
		return fmt.Errorf("неверный пароль: %w", common.ErrOperatorDenied)
	}
	return nil
}

// SeedDummyCatches создаёт count уловов AWARDED в радиусе от центра со случайным
// временем за последние MaxAge и начисляет владельцу базовые очки, чтобы баланс
// сходился со сверкой.
func (s *Service) SeedDummyCatches(ctx context.Context, in SeedInput) (*SeedResult, error) {
	if in.Count <= 0 {
		in.Count = 10
	}
	if in.RadiusMiles <= 0 {
		in.RadiusMiles = 5
	}
	if in.MaxAge <= 0 {
		in.MaxAge = 3 * 24 * time.Hour
	}
	if !in.Center.Valid() {
		return nil, fmt.Errorf("центр %+v: %w", in.Center, common.ErrInvalidInput)
	}
	owner, err := s.repo.FindUser(ctx, in.UserID, in.Email)
	if err != nil {
		return nil, fmt.Errorf("владелец уловов: %w", err)
	}
	species := DefaultSeedSpecies
	if sp := strings.TrimSpace(in.Species); sp != "" {
		species = []string{sp}
	}

	res := &SeedResult{UserID: owner.ID}
	now := s.now().UTC()
	for i := 0; i < in.Count; i++ {
		p := geo.JitterPoint(in.Center.Lat, in.Center.Lng, in.RadiusMiles, s.rnd)
		age := time.Duration(s.rnd.Float64() * float64(in.MaxAge))
		c, err := s.repo.CreateCatch(ctx, &store.Catch{
			UserID:             owner.ID,
			CreatedAt:          now.Add(-age),
			Species:            species[int(s.rnd.Float64()*float64(len(species)))%len(species)],
			Lat:                store.Float(p.Lat),
			Lng:                store.Float(p.Lng),
			VideoKey:           fmt.Sprintf("dummy/catch-%d.mp4", i+1),
			ThumbnailKey:       fmt.Sprintf("dummy/thumb-%d.jpg", i+1),
			BasePoints:         s.basePoints,
			VerificationStatus: store.StatusAwarded,
		})
		if err != nil {
			res.Failures = append(res.Failures, Failure{Kind: "catch", ID: fmt.Sprintf("#%d", i+1), Err: err.Error()})
			continue
		}
		if _, err := s.ledger.Credit(ctx, owner.ID, c.BasePoints, ledger.SourceAdmin); err != nil {
			res.Failures = append(res.Failures, Failure{Kind: "credit", ID: c.ID, Err: err.Error()})
			s.dropSeeded(ctx, c)
			continue
		}
		res.Created = append(res.Created, c.ID)
	}

	log.WithFields(log.Fields{
		"user_id":  owner.ID,
		"created":  len(res.Created),
		"credited": common.FormatPoints(int64(len(res.Created)) * s.basePoints),
		"failures": len(res.Failures),
	}).Info("Тестовые уловы созданы")
	return res, nil
}

// dropSeeded компенсация: удаляет AWARDED улов, за который очки не начислены.
func (s *Service) dropSeeded(ctx context.Context, c *store.Catch) {
	if err := s.repo.DeleteCatch(ctx, c); err != nil {
		metrics.CompensationFailuresTotal.WithLabelValues("seed").Inc()
		log.WithError(err).WithField("catch_id", c.ID).Error("Не удалось удалить тестовый улов без начисления, нужна сверка")
	}
}

// DeleteAllData удаляет все уловы, покупки и события кармы. Ошибки по отдельным
// записям собираются в отчёт, обход не прерывается. Балансы не трогаются.
func (s *Service) DeleteAllData(ctx context.Context) (*DeleteReport, error) {
	report := &DeleteReport{}

	catches, err := s.repo.AllCatches(ctx)
	if err != nil {
		return report, fmt.Errorf("список уловов: %w", err)
	}
	for _, c := range catches {
		if err := s.repo.DeleteCatch(ctx, c); err != nil {
			report.Failures = append(report.Failures, Failure{Kind: "catch", ID: c.ID, Err: err.Error()})
			continue
		}
		report.Catches++
	}

	purchases, err := s.repo.AllPurchases(ctx)
	if err != nil {
		return report, fmt.Errorf("список покупок: %w", err)
	}
	for _, p := range purchases {
		if err := s.repo.DeletePurchase(ctx, p); err != nil {
			report.Failures = append(report.Failures, Failure{Kind: "purchase", ID: p.ID, Err: err.Error()})
			continue
		}
		report.Purchases++
	}

	events, err := s.repo.AllKarmaEvents(ctx)
	if err != nil {
		return report, fmt.Errorf("список событий кармы: %w", err)
	}
	for _, e := range events {
		if err := s.repo.DeleteKarmaEvent(ctx, e); err != nil {
			report.Failures = append(report.Failures, Failure{Kind: "karma_event", ID: e.ID, Err: err.Error()})
			continue
		}
		report.KarmaEvents++
	}

	entry := log.WithFields(log.Fields{
		"catches":      report.Catches,
		"purchases":    report.Purchases,
		"karma_events": report.KarmaEvents,
		"failures":     len(report.Failures),
	})
	if report.OK() {
		entry.Warn("Все данные удалены")
	} else {
		entry.Error("Данные удалены не полностью, запустите повторно")
	}
	return report, nil
}

// ResetUserPoints выставляет баланс. expectedVersion > 0 включает проверку версии.
func (s *Service) ResetUserPoints(ctx context.Context, userID string, balance, expectedVersion int64) (*store.User, error) {
	u, err := s.ledger.SetBalance(ctx, userID, balance, expectedVersion)
	if err != nil {
		return nil, fmt.Errorf("сброс баланса %s: %w", userID, err)
	}
	log.WithFields(log.Fields{"user_id": userID, "balance": u.PointsBalance}).Warn("Баланс выставлен вручную")
	return u, nil
}

// DebugCatch запись улова целиком.
func (s *Service) DebugCatch(ctx context.Context, catchID string) (*store.Catch, error) {
	return s.repo.GetCatch(ctx, catchID)
}

// --- Argon2id ---

// HashPassword хеширует пароль в формат
// $argon2id$v=19$m=65536,t=3,p=2$<salt_base64>$<hash_base64>
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("пустой пароль: %w", common.ErrInvalidInput)
	}
	salt := make([]byte, argonSaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("генерация соли: %w", err)
	}
	hash := argon2.IDKey([]byte(password), salt, argonIterations, argonMemory, argonParallelism, argonKeyLength)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemory, argonIterations, argonParallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// verifyArgon2id сравнивает пароль с хешем в постоянном времени.
func verifyArgon2id(password, encodedHash string) bool {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		log.Error("Некорректный формат хеша Argon2id")
		return false
	}

	var memory, iterations uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		log.WithError(err).Error("Ошибка парсинга параметров Argon2id")
		return false
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		log.WithError(err).Error("Ошибка декодирования соли")
		return false
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(expected) == 0 {
		log.Error("Ошибка декодирования хеша")
		return false
	}

	computed := argon2.IDKey([]byte(password), salt, iterations, memory, parallelism, uint32(len(expected)))
	return subtle.ConstantTimeCompare(computed, expected) == 1
}
