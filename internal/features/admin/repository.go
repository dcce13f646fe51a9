// Package admin: repository.go обходит коллекции хранилища постранично.
package admin

import (
	"context"
	"fmt"

	"cofish.app/core/internal/store"
)

// Repository массовые операции над хранилищем.
type Repository struct {
	store store.Store
	limit int
}

// NewRepository создаёт репозиторий.
func NewRepository(s store.Store) *Repository {
	return &Repository{store: s, limit: store.DefaultListLimit}
}

// FindUser ищет пользователя по ID или email.
func (r *Repository) FindUser(ctx context.Context, userID, email string) (*store.User, error) {
	if userID != "" {
		return r.store.Users().Get(ctx, userID)
	}
	if email != "" {
		return r.store.Users().GetByEmail(ctx, email)
	}
	return nil, fmt.Errorf("нужен userID или email")
}

func (r *Repository) opts() store.ListOptions {
	return store.ListOptions{Direction: store.Asc, Limit: r.limit}
}

// AllCatches все уловы.
func (r *Repository) AllCatches(ctx context.Context) ([]*store.Catch, error) {
	return store.Collect(ctx, r.opts(), r.store.Catches().List)
}

// AllPurchases все покупки.
func (r *Repository) AllPurchases(ctx context.Context) ([]*store.InfoPurchase, error) {
	return store.Collect(ctx, r.opts(), r.store.Purchases().List)
}

// AllKarmaEvents все события кармы.
func (r *Repository) AllKarmaEvents(ctx context.Context) ([]*store.KarmaEvent, error) {
	return store.Collect(ctx, r.opts(), r.store.KarmaEvents().List)
}

func (r *Repository) DeleteCatch(ctx context.Context, c *store.Catch) error {
	return r.store.Catches().Delete(ctx, c.ID, c.Version)
}

func (r *Repository) DeletePurchase(ctx context.Context, p *store.InfoPurchase) error {
	return r.store.Purchases().Delete(ctx, p.ID, p.Version)
}

func (r *Repository) DeleteKarmaEvent(ctx context.Context, e *store.KarmaEvent) error {
	return r.store.KarmaEvents().Delete(ctx, e.ID, e.Version)
}

// CreateCatch сохраняет улов как есть (createdAt и статус задаёт вызывающий).
func (r *Repository) CreateCatch(ctx context.Context, c *store.Catch) (*store.Catch, error) {
	return r.store.Catches().Create(ctx, c)
}

// GetCatch улов по ID.
func (r *Repository) GetCatch(ctx context.Context, id string) (*store.Catch, error) {
	return r.store.Catches().Get(ctx, id)
}
