// Package karma начисляет бонус авторам уловов, чья информация помогла другим:
// если новый улов пойман рядом с уловом, попавшим в недавнюю покупку таргет-зоны,
// автор того улова получает карму.
package karma

import (
	"time"

	"cofish.app/core/internal/store"
)

// Settings параметры начисления.
type Settings struct {
	// Points карма за один исходный улов
	Points int64
	// RadiusMiles радиус близости нового улова к исходному (включительно)
	RadiusMiles float64
	// Window окно покупок до момента нового улова
	Window time.Duration
	Retry  store.RetryPolicy
}

// DefaultSettings рабочие значения: 50 очков, 2 мили, 7 дней.
func DefaultSettings() Settings {
	return Settings{Points: 50, RadiusMiles: 2, Window: 7 * 24 * time.Hour, Retry: store.DefaultRetryPolicy()}
}

// Award одно начисление кармы.
type Award struct {
	SourceCatchID string  `json:"sourceCatchId"`
	HelperUserID  string  `json:"helperUserId"`
	Points        int64   `json:"points"`
	DistanceMiles float64 `json:"distanceMiles"`
}

// Distribution итог обработки одного нового улова.
type Distribution struct {
	CatchID string  `json:"catchId"`
	Awards  []Award `json:"awards"`
	// Considered число уникальных исходных уловов из покупок
	Considered int `json:"considered"`
	// Failed число исходных уловов, на которых начисление сорвалось
	Failed int `json:"failed"`
}

// Summary карма, полученная пользователем.
type Summary struct {
	UserID string              `json:"userId"`
	Total  int64               `json:"total"`
	Events []*store.KarmaEvent `json:"events"`
	Next   string              `json:"next,omitempty"`
}
