// Package karma: repository.go работает с уловами, покупками и журналом кармы.
package karma

import (
	"context"
	"fmt"
	"time"

	"cofish.app/core/internal/store"
)

// Repository доступ к записям для начисления кармы.
type Repository struct {
	store store.Store
}

// NewRepository создаёт репозиторий кармы.
func NewRepository(s store.Store) *Repository {
	return &Repository{store: s}
}

// PurchasesBetween покупки всех пользователей с createdAt в [from, to].
func (r *Repository) PurchasesBetween(ctx context.Context, from, to time.Time) ([]*store.InfoPurchase, error) {
	return store.Collect(ctx, store.ListOptions{Direction: store.Desc, Since: from, Until: to},
		r.store.Purchases().List)
}

// GetCatch читает улов.
func (r *Repository) GetCatch(ctx context.Context, catchID string) (*store.Catch, error) {
	return r.store.Catches().Get(ctx, catchID)
}

// AddKarma одна попытка изменить karmaPoints улова на delta.
// При устаревшей версии возвращает ErrConcurrencyConflict.
func (r *Repository) AddKarma(ctx context.Context, catchID string, delta int64) (*store.Catch, error) {
	c, err := r.store.Catches().Get(ctx, catchID)
	if err != nil {
		return nil, err
	}
	c.KarmaPoints += delta
	if c.KarmaPoints < 0 {
		c.KarmaPoints = 0
	}
	return r.store.Catches().Update(ctx, c)
}

// LogKarma записывает событие начисления.
func (r *Repository) LogKarma(ctx context.Context, e *store.KarmaEvent) (*store.KarmaEvent, error) {
	out, err := r.store.KarmaEvents().Create(ctx, e)
	if err != nil {
		return nil, fmt.Errorf("ошибка записи события кармы: %w", err)
	}
	return out, nil
}

// EventsByHelper события, где пользователь получил карму.
func (r *Repository) EventsByHelper(ctx context.Context, userID string, opts store.ListOptions) (store.Page[*store.KarmaEvent], error) {
	return r.store.KarmaEvents().ListByHelper(ctx, userID, opts)
}

// TotalByHelper сумма всей полученной кармы.
func (r *Repository) TotalByHelper(ctx context.Context, userID string) (int64, error) {
	events, err := store.Collect(ctx, store.ListOptions{}, func(ctx context.Context, o store.ListOptions) (store.Page[*store.KarmaEvent], error) {
		return r.store.KarmaEvents().ListByHelper(ctx, userID, o)
	})
	if err != nil {
		return 0, err
	}
	var total int64
	for _, e := range events {
		total += e.Points
	}
	return total, nil
}
