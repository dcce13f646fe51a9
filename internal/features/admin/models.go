// Package admin реализует служебные операции обслуживания CoFish:
// засев тестовых уловов, очистку данных, сброс баланса и отладку улова.
// Разрушающие операции закрыты паролем оператора (Argon2id).
package admin

import (
	"time"

	"cofish.app/core/internal/geo"
)

// DefaultSeedSpecies виды по умолчанию для засева.
var DefaultSeedSpecies = []string{
	"Striped Bass",
	"Bluefish",
	"Flounder",
	"Black Sea Bass",
	"Tautog",
	"Scup",
	"Weakfish",
}

// SeedInput параметры засева. Владелец задаётся UserID или Email.
type SeedInput struct {
	UserID      string
	Email       string
	Center      geo.Point
	Count       int     // по умолчанию 10
	RadiusMiles float64 // по умолчанию 5
	Species     string  // пусто = случайный из DefaultSeedSpecies
	// MaxAge окно случайного createdAt (по умолчанию 3 дня)
	MaxAge time.Duration
}

// SeedResult итог засева.
type SeedResult struct {
	UserID   string    `json:"userId"`
	Created  []string  `json:"created"`
	Failures []Failure `json:"failures,omitempty"`
}

// Failure запись, которую не удалось обработать.
type Failure struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
	Err  string `json:"error"`
}

// DeleteReport итог очистки данных.
type DeleteReport struct {
	Catches     int       `json:"catches"`
	Purchases   int       `json:"purchases"`
	KarmaEvents int       `json:"karmaEvents"`
	Failures    []Failure `json:"failures,omitempty"`
}

// OK true, если все записи удалены.
func (r *DeleteReport) OK() bool {
	return len(r.Failures) == 0
}

// Параметры Argon2id (совпадают с форматом ADMIN_PASSWORD_HASH)
const (
	argonMemory      uint32 = 64 * 1024
	argonIterations  uint32 = 3
	argonParallelism uint8  = 2
	argonKeyLength   uint32 = 32
	argonSaltLength         = 16
)
