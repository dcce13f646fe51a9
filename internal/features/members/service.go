// Package members: service.go содержит бизнес-логику пользователей.
package members

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"cofish.app/core/internal/auth"
	"cofish.app/core/internal/common"
	"cofish.app/core/internal/store"
)

// Service управляет записями пользователей.
type Service struct {
	repo  *Repository
	retry store.RetryPolicy
}

// NewService создаёт сервис пользователей.
func NewService(repo *Repository, retry store.RetryPolicy) *Service {
	return &Service{repo: repo, retry: retry}
}

// EnsureUser возвращает запись вызывающего, создавая её при первом входе
// (баланс 0, email и имя из токена). Если в токене появились email или имя,
// а в записи их нет, запись дополняется.
func (s *Service) EnsureUser(ctx context.Context, id auth.Identity) (*store.User, error) {
	if id.UserID == "" {
		return nil, common.ErrNotAuthenticated
	}
	existing, err := s.repo.GetByUserID(ctx, id.UserID)
	if err == nil {
		if needsFill(existing, id) {
			return s.fill(ctx, existing, id)
		}
		return existing, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}

	u, err := s.repo.Create(ctx, &store.User{
		ID:          id.UserID,
		Email:       strings.TrimSpace(id.Email),
		DisplayName: strings.TrimSpace(id.DisplayName),
	})
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"user_id": u.ID,
		"email":   u.Email,
	}).Info("Зарегистрирован новый пользователь")
	return u, nil
}

func needsFill(u *store.User, id auth.Identity) bool {
	return (u.Email == "" && id.Email != "") || (u.DisplayName == "" && id.DisplayName != "")
}

func (s *Service) fill(ctx context.Context, u *store.User, id auth.Identity) (*store.User, error) {
	var out *store.User
	err := store.RetryOnConflict(ctx, s.retry, func(ctx context.Context) error {
		cur, err := s.repo.GetByUserID(ctx, u.ID)
		if err != nil {
			return err
		}
		email, name := "", ""
		if cur.Email == "" {
			email = id.Email
		}
		if cur.DisplayName == "" {
			name = id.DisplayName
		}
		out, err = s.repo.UpdateInfo(ctx, cur, email, name)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Profile возвращает профиль пользователя.
func (s *Service) Profile(ctx context.Context, userID string) (*Profile, error) {
	u, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return ProfileOf(u), nil
}

// Rename меняет отображаемое имя.
func (s *Service) Rename(ctx context.Context, userID, displayName string) (*Profile, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return nil, fmt.Errorf("пустое имя: %w", common.ErrInvalidInput)
	}
	var out *store.User
	err := store.RetryOnConflict(ctx, s.retry, func(ctx context.Context) error {
		cur, err := s.repo.GetByUserID(ctx, userID)
		if err != nil {
			return err
		}
		out, err = s.repo.UpdateInfo(ctx, cur, "", displayName)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ProfileOf(out), nil
}
