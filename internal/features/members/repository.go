// Package members: repository.go работает с коллекцией пользователей.
package members

import (
	"context"
	"errors"
	"fmt"

	"cofish.app/core/internal/common"
	"cofish.app/core/internal/store"
)

type Repository struct {
	users store.Users
}

func NewRepository(s store.Store) *Repository {
	return &Repository{users: s.Users()}
}

// Create добавляет пользователя с нулевым балансом.
// Если запись с таким ID уже есть (гонка двух первых запросов), возвращает её.
func (r *Repository) Create(ctx context.Context, u *store.User) (*store.User, error) {
	u.PointsBalance = 0
	created, err := r.users.Create(ctx, u)
	if err == nil {
		return created, nil
	}
	if errors.Is(err, common.ErrConcurrencyConflict) {
		return r.users.Get(ctx, u.ID)
	}
	return nil, fmt.Errorf("ошибка создания пользователя %s: %w", u.ID, err)
}

// GetByUserID: если не найден, ошибка с common.ErrNotFound.
func (r *Repository) GetByUserID(ctx context.Context, userID string) (*store.User, error) {
	u, err := r.users.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("пользователь %s: %w", userID, err)
	}
	return u, nil
}

func (r *Repository) Exists(ctx context.Context, userID string) (bool, error) {
	_, err := r.users.Get(ctx, userID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, common.ErrNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("ошибка проверки существования: %w", err)
	}
}

// UpdateInfo меняет имя и email, сохраняя версию.
func (r *Repository) UpdateInfo(ctx context.Context, u *store.User, email, displayName string) (*store.User, error) {
	next := *u
	if email != "" {
		next.Email = email
	}
	if displayName != "" {
		next.DisplayName = displayName
	}
	out, err := r.users.Update(ctx, &next)
	if err != nil {
		return nil, fmt.Errorf("ошибка обновления данных пользователя: %w", err)
	}
	return out, nil
}
