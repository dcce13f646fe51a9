// Package ledger: repository.go выполняет одну попытку изменения баланса
// (прочитать, проверить, записать с версией). Повторы делает Service.
package ledger

import (
	"context"
	"fmt"

	"cofish.app/core/internal/common"
	"cofish.app/core/internal/store"
)

// Repository изменения баланса поверх store.Users.
type Repository struct {
	store store.Store
}

// NewRepository создаёт репозиторий ledger.
func NewRepository(s store.Store) *Repository {
	return &Repository{store: s}
}

// applyDelta меняет баланс на delta. Если requireFunds и баланса не хватает,
// возвращает ErrInsufficientBalance без записи.
// При конкурентной записи возвращает ErrConcurrencyConflict.
func (r *Repository) applyDelta(ctx context.Context, userID string, delta int64, requireFunds bool) (*store.User, error) {
	u, err := r.store.Users().Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	next := u.PointsBalance + delta
	if requireFunds && next < 0 {
		return nil, fmt.Errorf("нужно %d, есть %d: %w", -delta, u.PointsBalance, common.ErrInsufficientBalance)
	}
	u.PointsBalance = next
	return r.store.Users().Update(ctx, u)
}

// setBalance записывает баланс как есть, с проверкой версии.
func (r *Repository) setBalance(ctx context.Context, userID string, balance, expectedVersion int64) (*store.User, error) {
	u, err := r.store.Users().Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if expectedVersion > 0 && u.Version != expectedVersion {
		return nil, fmt.Errorf("user %s: %w", userID, common.ErrConcurrencyConflict)
	}
	u.PointsBalance = balance
	return r.store.Users().Update(ctx, u)
}

// awardedCatches уловы со статусом AWARDED, новые первыми.
func (r *Repository) awardedCatches(ctx context.Context, userID string, limit int) ([]*store.Catch, error) {
	page, err := r.store.Catches().ListByUser(ctx, userID, store.ListOptions{
		Direction: store.Desc,
		Limit:     limit,
		Statuses:  []store.VerificationStatus{store.StatusAwarded},
	})
	return page.Items, err
}

func (r *Repository) purchases(ctx context.Context, userID string, limit int) ([]*store.InfoPurchase, error) {
	page, err := r.store.Purchases().ListByUser(ctx, userID, store.ListOptions{Direction: store.Desc, Limit: limit})
	return page.Items, err
}

// allAwardedCatches и allPurchases читают все страницы (для сверки).
func (r *Repository) allAwardedCatches(ctx context.Context, userID string) ([]*store.Catch, error) {
	return store.Collect(ctx, store.ListOptions{Statuses: []store.VerificationStatus{store.StatusAwarded}},
		func(ctx context.Context, o store.ListOptions) (store.Page[*store.Catch], error) {
			return r.store.Catches().ListByUser(ctx, userID, o)
		})
}

func (r *Repository) allPurchases(ctx context.Context, userID string) ([]*store.InfoPurchase, error) {
	return store.Collect(ctx, store.ListOptions{},
		func(ctx context.Context, o store.ListOptions) (store.Page[*store.InfoPurchase], error) {
			return r.store.Purchases().ListByUser(ctx, userID, o)
		})
}
