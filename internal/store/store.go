// Package store описывает хранилище записей CoFish.
// Драйверы лежат в internal/store/memstore и internal/db/postgres.
//
// Контракт для всех драйверов:
//   - Get несуществующей записи возвращает common.ErrNotFound;
//   - Update и Delete принимают ожидаемую версию записи и при расхождении
//     возвращают common.ErrConcurrencyConflict, успешный Update увеличивает версию;
//   - Create с занятым ID возвращает common.ErrConcurrencyConflict;
//   - прочие сбои оборачиваются в common.ErrStoreFailure.
package store

import (
	"context"
	"time"
)

// Store доступ к коллекциям.
type Store interface {
	Users() Users
	Catches() Catches
	Purchases() Purchases
	KarmaEvents() KarmaEvents
}

// SortDirection порядок по createdAt.
type SortDirection int

const (
	Desc SortDirection = iota
	Asc
)

// ListOptions параметры постраничного чтения по индексу (createdAt).
type ListOptions struct {
	Direction SortDirection
	// Limit 0 означает лимит драйвера по умолчанию
	Limit int
	// Since/Until ограничивают createdAt включительно, нулевое время = без границы
	Since time.Time
	Until time.Time
	// Statuses фильтр статусов (только для уловов)
	Statuses []VerificationStatus
	// Cursor непрозрачный токен из Page.Next
	Cursor string
}

// DefaultListLimit лимит страницы, если Limit не задан.
const DefaultListLimit = 100

// Page страница результатов. Next пуст, если страниц больше нет.
type Page[T any] struct {
	Items []T
	Next  string
}

// AreaQuery запрос уловов в круге. Драйвер делает грубый отбор по ячейкам S2,
// точную проверку расстояния выполняет вызывающий.
type AreaQuery struct {
	CenterLat     float64
	CenterLng     float64
	RadiusMiles   float64
	Since         time.Time
	ExcludeUserID string
	Statuses      []VerificationStatus
	Limit         int
}

type Users interface {
	Create(ctx context.Context, u *User) (*User, error)
	Get(ctx context.Context, userID string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	// Update сохраняет запись, если версия в хранилище равна u.Version
	Update(ctx context.Context, u *User) (*User, error)
	List(ctx context.Context, opts ListOptions) (Page[*User], error)
}

type Catches interface {
	Create(ctx context.Context, c *Catch) (*Catch, error)
	Get(ctx context.Context, catchID string) (*Catch, error)
	Update(ctx context.Context, c *Catch) (*Catch, error)
	Delete(ctx context.Context, catchID string, version int64) error
	ListByUser(ctx context.Context, userID string, opts ListOptions) (Page[*Catch], error)
	List(ctx context.Context, opts ListOptions) (Page[*Catch], error)
	ListInArea(ctx context.Context, q AreaQuery) ([]*Catch, error)
}

type Purchases interface {
	Create(ctx context.Context, p *InfoPurchase) (*InfoPurchase, error)
	Get(ctx context.Context, purchaseID string) (*InfoPurchase, error)
	Delete(ctx context.Context, purchaseID string, version int64) error
	ListByUser(ctx context.Context, userID string, opts ListOptions) (Page[*InfoPurchase], error)
	List(ctx context.Context, opts ListOptions) (Page[*InfoPurchase], error)
}

type KarmaEvents interface {
	Create(ctx context.Context, e *KarmaEvent) (*KarmaEvent, error)
	Delete(ctx context.Context, eventID string, version int64) error
	ListByHelper(ctx context.Context, helperUserID string, opts ListOptions) (Page[*KarmaEvent], error)
	List(ctx context.Context, opts ListOptions) (Page[*KarmaEvent], error)
}

// Collect читает все страницы подряд. Нужен для сверок и служебных команд.
func Collect[T any](ctx context.Context, opts ListOptions, fetch func(context.Context, ListOptions) (Page[T], error)) ([]T, error) {
	var out []T
	for {
		page, err := fetch(ctx, opts)
		if err != nil {
			return nil, err
		}
		out = append(out, page.Items...)
		if page.Next == "" {
			return out, nil
		}
		opts.Cursor = page.Next
	}
}
