// Package ledger: service.go содержит бизнес-логику баланса.
// Начисления и списания идут циклом read-modify-write с проверкой версии
// и ограниченным числом повторов. История строится из уловов и покупок.
package ledger

import (
	"context"
	"fmt"
	"slices"
	"strings"

	log "github.com/sirupsen/logrus"

	"cofish.app/core/internal/common"
	"cofish.app/core/internal/metrics"
	"cofish.app/core/internal/store"
)

// Источники начислений (метка метрики)
const (
	SourceCatch = "catch"
	SourceKarma = "karma"
	SourceAdmin = "admin"
)

// Service управляет балансом очков.
type Service struct {
	repo      *Repository
	store     store.Store
	retry     store.RetryPolicy
	pageLimit int
}

// NewService создаёт сервис ledger.
func NewService(s store.Store, retry store.RetryPolicy, pageLimit int) *Service {
	if pageLimit <= 0 {
		pageLimit = store.DefaultListLimit
	}
	if retry.OnConflict == nil {
		retry.OnConflict = func(int) { metrics.ConflictRetriesTotal.WithLabelValues("user").Inc() }
	}
	return &Service{repo: NewRepository(s), store: s, retry: retry, pageLimit: pageLimit}
}

// Credit начисляет amount очков пользователю.
func (s *Service) Credit(ctx context.Context, userID string, amount int64, source string) (*store.User, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("сумма начисления %d: %w", amount, common.ErrInvalidInput)
	}
	var out *store.User
	err := store.RetryOnConflict(ctx, s.retry, func(ctx context.Context) error {
		u, err := s.repo.applyDelta(ctx, userID, amount, false)
		if err != nil {
			return err
		}
		out = u
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("начисление %d очков %s: %w", amount, userID, err)
	}
	metrics.PointsCreditedTotal.WithLabelValues(source).Add(float64(amount))
	log.WithFields(log.Fields{
		"user_id": userID,
		"amount":  amount,
		"source":  source,
		"balance": out.PointsBalance,
	}).Info("Очки начислены")
	return out, nil
}

// Debit списывает amount очков. Баланс проверяется на каждой попытке;
// при нехватке возвращается ErrInsufficientBalance и ничего не пишется.
func (s *Service) Debit(ctx context.Context, userID string, amount int64) (*store.User, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("сумма списания %d: %w", amount, common.ErrInvalidInput)
	}
	var out *store.User
	err := store.RetryOnConflict(ctx, s.retry, func(ctx context.Context) error {
		u, err := s.repo.applyDelta(ctx, userID, -amount, true)
		if err != nil {
			return err
		}
		out = u
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("списание %d очков %s: %w", amount, userID, err)
	}
	metrics.PointsDebitedTotal.Add(float64(amount))
	log.WithFields(log.Fields{
		"user_id": userID,
		"amount":  amount,
		"balance": out.PointsBalance,
	}).Info("Очки списаны")
	return out, nil
}

// Balance текущий баланс.
func (s *Service) Balance(ctx context.Context, userID string) (int64, error) {
	u, err := s.store.Users().Get(ctx, userID)
	if err != nil {
		return 0, err
	}
	return u.PointsBalance, nil
}

// SetBalance перезаписывает баланс (служебная операция).
// expectedVersion > 0 включает проверку версии без повторов.
func (s *Service) SetBalance(ctx context.Context, userID string, balance, expectedVersion int64) (*store.User, error) {
	if balance < 0 {
		return nil, fmt.Errorf("баланс %d: %w", balance, common.ErrInvalidInput)
	}
	if expectedVersion > 0 {
		return s.repo.setBalance(ctx, userID, balance, expectedVersion)
	}
	var out *store.User
	err := store.RetryOnConflict(ctx, s.retry, func(ctx context.Context) error {
		u, err := s.repo.setBalance(ctx, userID, balance, 0)
		out = u
		return err
	})
	return out, err
}

// CatchDescription подпись улова в истории.
func CatchDescription(species string) string {
	species = strings.TrimSpace(species)
	if species == "" {
		return "Catch — (unknown species)"
	}
	return "Catch — " + species
}

// PurchaseDescription подпись покупки в истории по радиусу.
func PurchaseDescription(radiusMiles float64) string {
	switch radiusMiles {
	case 1:
		return "Precision TargetZone"
	case 2:
		return "Standard TargetZone"
	default:
		return "TargetZone"
	}
}

// purchaseCost стоимость покупки: итоговая, иначе базовая.
func purchaseCost(p *store.InfoPurchase) int64 {
	if p.FinalCostPoints != 0 {
		return p.FinalCostPoints
	}
	return p.BaseCostPoints
}

// ComputeLedger строит историю: последние pageLimit уловов AWARDED и покупок,
// новые первыми; баланс после каждой строки восстанавливается от текущего назад.
func (s *Service) ComputeLedger(ctx context.Context, userID string) (*Ledger, error) {
	u, err := s.store.Users().Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	catches, err := s.repo.awardedCatches(ctx, userID, s.pageLimit)
	if err != nil {
		return nil, fmt.Errorf("уловы для истории: %w", err)
	}
	purchases, err := s.repo.purchases(ctx, userID, s.pageLimit)
	if err != nil {
		return nil, fmt.Errorf("покупки для истории: %w", err)
	}
	return &Ledger{UserID: u.ID, Balance: u.PointsBalance, Entries: BuildEntries(u.PointsBalance, catches, purchases)}, nil
}

// BuildEntries собирает строки истории. Сортировка по времени устойчива:
// при равном createdAt сохраняется порядок "сначала уловы, потом покупки".
func BuildEntries(balance int64, catches []*store.Catch, purchases []*store.InfoPurchase) []Entry {
	entries := make([]Entry, 0, len(catches)+len(purchases))
	for _, c := range catches {
		entries = append(entries, Entry{
			ID:          c.ID,
			Type:        EntryCatch,
			CreatedAt:   c.CreatedAt,
			Description: CatchDescription(c.Species),
			BasePoints:  c.BasePoints,
			KarmaPoints: c.KarmaPoints,
			TotalPoints: c.TotalPoints(),
		})
	}
	for _, p := range purchases {
		entries = append(entries, Entry{
			ID:          p.ID,
			Type:        EntryPurchase,
			CreatedAt:   p.CreatedAt,
			Description: PurchaseDescription(p.RadiusMiles),
			TotalPoints: -purchaseCost(p),
		})
	}
	slices.SortStableFunc(entries, func(a, b Entry) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	running := balance
	for i := range entries {
		entries[i].NewBalance = running
		running -= entries[i].TotalPoints
	}
	return entries
}

// Audit сверяет баланс с полным набором записей пользователя.
func (s *Service) Audit(ctx context.Context, userID string) (*Audit, error) {
	u, err := s.store.Users().Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	catches, err := s.repo.allAwardedCatches(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("уловы для сверки: %w", err)
	}
	purchases, err := s.repo.allPurchases(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("покупки для сверки: %w", err)
	}

	var expected int64
	for _, c := range catches {
		expected += c.TotalPoints()
	}
	for _, p := range purchases {
		expected -= purchaseCost(p)
	}
	return &Audit{
		UserID:         u.ID,
		Balance:        u.PointsBalance,
		Expected:       expected,
		Drift:          u.PointsBalance - expected,
		AwardedCatches: len(catches),
		Purchases:      len(purchases),
	}, nil
}

// AuditAll сверяет всех пользователей. Расхождения логируются и считаются,
// но баланс не исправляется.
func (s *Service) AuditAll(ctx context.Context) ([]Audit, error) {
	var mismatches []Audit
	opts := store.ListOptions{Direction: store.Asc, Limit: s.pageLimit}
	for {
		page, err := s.store.Users().List(ctx, opts)
		if err != nil {
			return mismatches, fmt.Errorf("список пользователей: %w", err)
		}
		for _, u := range page.Items {
			a, err := s.Audit(ctx, u.ID)
			if err != nil {
				log.WithError(err).WithField("user_id", u.ID).Warn("Сверка пользователя не удалась")
				continue
			}
			if !a.OK() {
				metrics.LedgerMismatchTotal.Inc()
				log.WithFields(log.Fields{
					"user_id":  a.UserID,
					"balance":  a.Balance,
					"expected": a.Expected,
					"drift":    common.FormatPointsDelta(a.Drift),
				}).Error("Баланс не сходится с записями")
				mismatches = append(mismatches, *a)
			}
		}
		if page.Next == "" {
			return mismatches, nil
		}
		opts.Cursor = page.Next
	}
}
