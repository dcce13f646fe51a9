// Package ledger управляет балансом очков и строит историю начислений.
// models.go описывает записи истории и результат сверки.
package ledger

import "time"

// EntryType тип строки истории.
type EntryType string

const (
	EntryCatch    EntryType = "CATCH"
	EntryPurchase EntryType = "PURCHASE"
)

// Entry одна строка истории.
type Entry struct {
	ID          string    `json:"id"`
	Type        EntryType `json:"type"`
	CreatedAt   time.Time `json:"createdAt"`
	Description string    `json:"description"`
	BasePoints  int64     `json:"basePoints"`
	KarmaPoints int64     `json:"karmaPoints"`
	// TotalPoints изменение баланса: для улова base+karma, для покупки -стоимость
	TotalPoints int64 `json:"totalPoints"`
	// NewBalance баланс сразу после этой операции
	NewBalance int64 `json:"newBalance"`
}

// Ledger история пользователя, новые записи первыми.
type Ledger struct {
	UserID  string  `json:"userId"`
	Balance int64   `json:"balance"`
	Entries []Entry `json:"entries"`
}

// Audit результат сверки баланса с записями.
type Audit struct {
	UserID         string `json:"userId"`
	Balance        int64  `json:"balance"`
	Expected       int64  `json:"expected"`
	Drift          int64  `json:"drift"`
	AwardedCatches int    `json:"awardedCatches"`
	Purchases      int    `json:"purchases"`
}

// OK баланс совпадает с записями.
func (a Audit) OK() bool { return a.Drift == 0 }
