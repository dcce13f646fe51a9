// Package members ведёт записи пользователей: создание при первом входе и профиль.
package members

import (
	"time"

	"cofish.app/core/internal/store"
)

// Profile профиль пользователя для UI.
type Profile struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	DisplayName   string    `json:"displayName"`
	PointsBalance int64     `json:"pointsBalance"`
	Version       int64     `json:"version"`
	CreatedAt     time.Time `json:"createdAt"`
}

// ProfileOf строит профиль из записи.
func ProfileOf(u *store.User) *Profile {
	return &Profile{
		ID:            u.ID,
		Email:         u.Email,
		DisplayName:   DisplayName(u),
		PointsBalance: u.PointsBalance,
		Version:       u.Version,
		CreatedAt:     u.CreatedAt,
	}
}

// DisplayName возвращает отображаемое имя.
// Если имя не задано, берётся часть email до "@".
func DisplayName(u *store.User) string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	for i, r := range u.Email {
		if r == '@' {
			return u.Email[:i]
		}
	}
	return u.Email
}

// UpdateInfo изменяемые поля профиля.
type UpdateInfo struct {
	DisplayName string `json:"displayName" binding:"required,max=64"`
}
