// Package targetzone: service.go содержит бизнес-логику таргет-зон.
package targetzone

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"cofish.app/core/internal/common"
	"cofish.app/core/internal/geo"
	"cofish.app/core/internal/hooks"
	"cofish.app/core/internal/metrics"
	"cofish.app/core/internal/store"
)

// Ledger списание очков покупателя.
type Ledger interface {
	Debit(ctx context.Context, userID string, amount int64) (*store.User, error)
}

// Settings параметры рынка.
type Settings struct {
	DailyQuota         int
	PreviewRadiusMiles float64
	PreviewWindow      time.Duration
	PurchaseWindow     time.Duration
	// NearbyLimit максимум уловов в одном запросе по области
	NearbyLimit int
	Location    *time.Location
	Rand        geo.Rand
	Retry       store.RetryPolicy
}

// DefaultSettings рабочие значения: 3 превью в день, 7.5 миль и 7 дней
// для превью и карты, 30 дней для покупки.
func DefaultSettings() Settings {
	return Settings{
		DailyQuota:         3,
		PreviewRadiusMiles: ZoneHalfSideMiles,
		PreviewWindow:      7 * 24 * time.Hour,
		PurchaseWindow:     30 * 24 * time.Hour,
		NearbyLimit:        500,
		Location:           time.UTC,
		Rand:               geo.DefaultRand,
		Retry:              store.DefaultRetryPolicy(),
	}
}

// Service рынок таргет-зон.
type Service struct {
	store     store.Store
	ledger    Ledger
	quota     QuotaStore
	settings  Settings
	now       func() time.Time
	purchased hooks.List[*store.InfoPurchase]
}

// NewService создаёт сервис. Незаданные параметры берутся из DefaultSettings.
func NewService(s store.Store, l Ledger, q QuotaStore, settings Settings) *Service {
	d := DefaultSettings()
	if settings.DailyQuota <= 0 {
		settings.DailyQuota = d.DailyQuota
	}
	if settings.PreviewRadiusMiles <= 0 {
		settings.PreviewRadiusMiles = d.PreviewRadiusMiles
	}
	if settings.PreviewWindow <= 0 {
		settings.PreviewWindow = d.PreviewWindow
	}
	if settings.PurchaseWindow <= 0 {
		settings.PurchaseWindow = d.PurchaseWindow
	}
	if settings.NearbyLimit <= 0 {
		settings.NearbyLimit = d.NearbyLimit
	}
	if settings.Location == nil {
		settings.Location = d.Location
	}
	if settings.Rand == nil {
		settings.Rand = d.Rand
	}
	if settings.Retry.MaxAttempts <= 0 {
		settings.Retry = d.Retry
	}
	if q == nil {
		q = NewMemoryQuota()
	}
	return &Service{store: s, ledger: l, quota: q, settings: settings, now: time.Now}
}

// WithClock подменяет часы (для тестов).
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// OnPurchased добавляет post-commit хук успешной покупки.
func (s *Service) OnPurchased(h hooks.Hook[*store.InfoPurchase]) {
	s.purchased = append(s.purchased, h)
}

// Quota хранилище квоты (для планировщика).
func (s *Service) Quota() QuotaStore {
	return s.quota
}

func validCenter(lat, lng float64) error {
	if !geo.ValidCoordinates(lat, lng) {
		return fmt.Errorf("центр (%v, %v): %w", lat, lng, common.ErrInvalidInput)
	}
	return nil
}

// GetNearbyCatches уловы других пользователей (AWARDED, с координатами)
// не дальше radiusMiles от центра за последние window.
func (s *Service) GetNearbyCatches(ctx context.Context, requesterID string, lat, lng, radiusMiles float64, window time.Duration) ([]NearbyCatch, error) {
	if err := validCenter(lat, lng); err != nil {
		return nil, err
	}
	if radiusMiles <= 0 {
		return nil, fmt.Errorf("радиус %v: %w", radiusMiles, common.ErrInvalidInput)
	}
	candidates, err := s.store.Catches().ListInArea(ctx, store.AreaQuery{
		CenterLat:     lat,
		CenterLng:     lng,
		RadiusMiles:   radiusMiles,
		Since:         s.now().Add(-window),
		ExcludeUserID: requesterID,
		Statuses:      []store.VerificationStatus{store.StatusAwarded},
		Limit:         s.settings.NearbyLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("уловы рядом: %w", err)
	}

	out := make([]NearbyCatch, 0, len(candidates))
	for _, c := range candidates {
		cLat, cLng, ok := c.Location()
		if !ok || c.UserID == requesterID {
			continue
		}
		d := geo.HaversineMiles(lat, lng, cLat, cLng)
		if d > radiusMiles {
			continue
		}
		out = append(out, NearbyCatch{
			ID:            c.ID,
			UserID:        c.UserID,
			Lat:           cLat,
			Lng:           cLng,
			Species:       c.Species,
			CreatedAt:     c.CreatedAt,
			DistanceMiles: d,
		})
	}
	return out, nil
}

// PreviewActivity показывает уровень активности в зоне. Каждый вызов
// списывает одно превью из дневной квоты, даже если поиск потом не удался.
func (s *Service) PreviewActivity(ctx context.Context, userID string, lat, lng float64) (*Preview, error) {
	if userID == "" {
		return nil, common.ErrNotAuthenticated
	}
	if err := validCenter(lat, lng); err != nil {
		return nil, err
	}
	day := common.DayKey(s.now(), s.settings.Location)
	remaining, ok := s.quota.Consume(userID, day, s.settings.DailyQuota)
	if !ok {
		return nil, fmt.Errorf("%d превью в день: %w", s.settings.DailyQuota, common.ErrPreviewQuotaExceeded)
	}

	nearby, err := s.GetNearbyCatches(ctx, userID, lat, lng, s.settings.PreviewRadiusMiles, s.settings.PreviewWindow)
	if err != nil {
		return nil, err
	}
	bucket := BucketFor(len(nearby))
	metrics.PreviewsTotal.WithLabelValues(string(bucket)).Inc()
	log.WithFields(log.Fields{
		"user_id":   userID,
		"bucket":    bucket,
		"remaining": remaining,
	}).Debug("Превью активности")

	return &Preview{
		Bucket:    bucket,
		Label:     bucket.Label(),
		Remaining: remaining,
		Bounds:    ZoneBounds(geo.Point{Lat: lat, Lng: lng}),
	}, nil
}

// PurchaseTargetZone покупает зону: проверяет баланс, фиксирует уловы в радиусе
// за окно покупки (для будущей кармы), создаёт покупку и списывает очки.
// Если поиск уловов не удался, покупка проходит с IncludedCatchIDs == nil.
// Если списание не прошло, покупка удаляется.
func (s *Service) PurchaseTargetZone(ctx context.Context, userID string, in PurchaseInput) (*store.InfoPurchase, error) {
	if userID == "" {
		return nil, common.ErrNotAuthenticated
	}
	if err := validCenter(in.CenterLat, in.CenterLng); err != nil {
		return nil, err
	}
	tier, ok := LookupTier(in.RadiusMiles)
	if !ok {
		return nil, fmt.Errorf("радиус %v мили не продаётся: %w", in.RadiusMiles, common.ErrInvalidInput)
	}
	if in.BaseCostPoints < tier.MinCostPoints() {
		return nil, fmt.Errorf("цена %d ниже тарифа %s (%d): %w", in.BaseCostPoints, tier.Name, tier.MinCostPoints(), common.ErrInvalidInput)
	}
	const discountPercent = 0
	finalCost := in.BaseCostPoints

	buyer, err := s.store.Users().Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if buyer.PointsBalance < finalCost {
		return nil, fmt.Errorf("нужно %d, есть %d: %w", finalCost, buyer.PointsBalance, common.ErrInsufficientBalance)
	}

	now := s.now().UTC()
	included, avgAge := s.includedCatches(ctx, userID, in, now)

	p, err := s.store.Purchases().Create(ctx, &store.InfoPurchase{
		UserID:           userID,
		CreatedAt:        now,
		CenterLat:        in.CenterLat,
		CenterLng:        in.CenterLng,
		RadiusMiles:      in.RadiusMiles,
		SpeciesFilter:    strings.TrimSpace(in.SpeciesFilter),
		BaseCostPoints:   in.BaseCostPoints,
		DiscountPercent:  discountPercent,
		FinalCostPoints:  finalCost,
		AvgAgeHours:      avgAge,
		IncludedCatchIDs: included,
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка создания покупки: %w", err)
	}

	if _, err := s.ledger.Debit(ctx, userID, finalCost); err != nil {
		s.cancelPurchase(ctx, p)
		return nil, fmt.Errorf("оплата зоны: %w", err)
	}

	metrics.PurchasesTotal.WithLabelValues(tier.Name).Inc()
	log.WithFields(log.Fields{
		"purchase_id": p.ID,
		"user_id":     userID,
		"tier":        tier.Name,
		"cost":        finalCost,
		"included":    len(included),
	}).Info("Таргет-зона куплена")

	s.purchased.Run(ctx, p.Clone())
	return p, nil
}

// includedCatches уловы, попавшие в покупку, и их средний возраст в часах.
// При сбое поиска возвращает (nil, nil).
func (s *Service) includedCatches(ctx context.Context, userID string, in PurchaseInput, now time.Time) ([]string, *float64) {
	nearby, err := s.GetNearbyCatches(ctx, userID, in.CenterLat, in.CenterLng, in.RadiusMiles, s.settings.PurchaseWindow)
	if err != nil {
		log.WithError(err).WithField("user_id", userID).Warn("Поиск уловов для покупки не удался, карма по ней не начислится")
		return nil, nil
	}
	filter := strings.TrimSpace(in.SpeciesFilter)
	ids := make([]string, 0, len(nearby))
	var ages []float64
	for _, c := range nearby {
		if filter != "" && !strings.EqualFold(c.Species, filter) {
			continue
		}
		ids = append(ids, c.ID)
		ages = append(ages, common.HoursBetween(c.CreatedAt, now))
	}
	if len(ages) == 0 {
		return ids, nil
	}
	avg := stat.Mean(ages, nil)
	return ids, &avg
}

// cancelPurchase компенсация: удалить покупку, за которую не прошла оплата.
func (s *Service) cancelPurchase(ctx context.Context, p *store.InfoPurchase) {
	if err := s.store.Purchases().Delete(ctx, p.ID, p.Version); err != nil {
		metrics.CompensationFailuresTotal.WithLabelValues("purchase").Inc()
		log.WithError(err).WithField("purchase_id", p.ID).Error("Не удалось удалить неоплаченную покупку, нужна сверка")
		return
	}
	log.WithField("purchase_id", p.ID).Warn("Оплата не прошла, покупка удалена")
}

// ListPurchases покупки пользователя, новые первыми.
func (s *Service) ListPurchases(ctx context.Context, userID string, opts store.ListOptions) (store.Page[*store.InfoPurchase], error) {
	return s.store.Purchases().ListByUser(ctx, userID, opts)
}

// Overlay карта купленной зоны: уловы за окно превью в квадрате зоны,
// каждый показан кругом радиуса тарифа со смещённым центром.
func (s *Service) Overlay(ctx context.Context, userID, purchaseID string) (*Overlay, error) {
	p, err := s.store.Purchases().Get(ctx, purchaseID)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, fmt.Errorf("purchase %s: %w", purchaseID, common.ErrNotFound)
	}
	nearby, err := s.GetNearbyCatches(ctx, userID, p.CenterLat, p.CenterLng, s.settings.PreviewRadiusMiles, s.settings.PreviewWindow)
	if err != nil {
		return nil, err
	}
	tier := TierForRadius(p.RadiusMiles)
	center := geo.Point{Lat: p.CenterLat, Lng: p.CenterLng}
	return &Overlay{
		PurchaseID: p.ID,
		Tier:       tier.Name,
		Center:     center,
		Bounds:     ZoneBounds(center),
		Circles:    Obfuscate(nearby, tier, s.settings.Rand),
	}, nil
}

// Obfuscate заменяет точные координаты кругами тарифа.
// Центр круга смещён не дальше JitterFactor * радиус от улова.
func Obfuscate(catches []NearbyCatch, tier Tier, rnd geo.Rand) []Circle {
	jitter := tier.ObfuscationRadiusMiles * JitterFactor
	out := make([]Circle, 0, len(catches))
	for _, c := range catches {
		p := geo.JitterPoint(c.Lat, c.Lng, jitter, rnd)
		out = append(out, Circle{ID: c.ID, Lat: p.Lat, Lng: p.Lng, RadiusMiles: tier.ObfuscationRadiusMiles})
	}
	return out
}
