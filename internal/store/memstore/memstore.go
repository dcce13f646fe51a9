// Package memstore хранит записи в памяти процесса.
// Используется в тестах и при STORE_DRIVER=memory; соблюдает тот же
// контракт версий, что и Postgres-драйвер.
package memstore

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"cofish.app/core/internal/common"
	"cofish.app/core/internal/geo"
	"cofish.app/core/internal/store"
)

type row[T any] struct {
	v   T
	seq int64
}

// Store потокобезопасное хранилище в памяти.
type Store struct {
	mu        sync.RWMutex
	seq       int64
	now       func() time.Time
	users     map[string]row[*store.User]
	catches   map[string]row[*store.Catch]
	purchases map[string]row[*store.InfoPurchase]
	karma     map[string]row[*store.KarmaEvent]
}

// New создаёт пустое хранилище.
func New() *Store {
	return &Store{
		now:       time.Now,
		users:     make(map[string]row[*store.User]),
		catches:   make(map[string]row[*store.Catch]),
		purchases: make(map[string]row[*store.InfoPurchase]),
		karma:     make(map[string]row[*store.KarmaEvent]),
	}
}

// WithClock подменяет часы (для тестов).
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) Users() store.Users             { return users{s} }
func (s *Store) Catches() store.Catches         { return catches{s} }
func (s *Store) Purchases() store.Purchases     { return purchases{s} }
func (s *Store) KarmaEvents() store.KarmaEvents { return karmaEvents{s} }

func (s *Store) nextSeq() int64 {
	s.seq++
	return s.seq
}

func newID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

// listPage сортирует по createdAt (при равенстве по порядку вставки) и режет страницу.
// Курсор: смещение в отфильтрованной последовательности.
func listPage[T any](rows []row[T], createdAt func(T) time.Time, opts store.ListOptions, keep func(T) bool) (store.Page[T], error) {
	filtered := make([]row[T], 0, len(rows))
	for _, r := range rows {
		ts := createdAt(r.v)
		if !opts.Since.IsZero() && ts.Before(opts.Since) {
			continue
		}
		if !opts.Until.IsZero() && ts.After(opts.Until) {
			continue
		}
		if keep != nil && !keep(r.v) {
			continue
		}
		filtered = append(filtered, r)
	}
	slices.SortStableFunc(filtered, func(a, b row[T]) int {
		c := createdAt(a.v).Compare(createdAt(b.v))
		if c == 0 {
			c = cmpInt(a.seq, b.seq)
		}
		if opts.Direction == store.Desc {
			return -c
		}
		return c
	})

	offset := 0
	if opts.Cursor != "" {
		n, err := strconv.Atoi(opts.Cursor)
		if err != nil || n < 0 {
			return store.Page[T]{}, fmt.Errorf("bad cursor %q: %w", opts.Cursor, common.ErrInvalidInput)
		}
		offset = n
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = store.DefaultListLimit
	}
	if offset >= len(filtered) {
		return store.Page[T]{}, nil
	}
	end := min(offset+limit, len(filtered))

	page := store.Page[T]{Items: make([]T, 0, end-offset)}
	for _, r := range filtered[offset:end] {
		page.Items = append(page.Items, r.v)
	}
	if end < len(filtered) {
		page.Next = strconv.Itoa(end)
	}
	return page, nil
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func values[T any](m map[string]row[T]) []row[T] {
	out := make([]row[T], 0, len(m))
	for _, r := range m {
		out = append(out, r)
	}
	return out
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, common.ErrNotFound)
}

func conflict(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, common.ErrConcurrencyConflict)
}

// ---------------- users ----------------

type users struct{ s *Store }

func cloneUser(u *store.User) *store.User {
	out := *u
	return &out
}

func (r users) Create(_ context.Context, u *store.User) (*store.User, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := cloneUser(u)
	rec.ID = newID(rec.ID)
	if _, ok := s.users[rec.ID]; ok {
		return nil, conflict("user", rec.ID)
	}
	now := s.now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	rec.Version = 1
	s.users[rec.ID] = row[*store.User]{v: rec, seq: s.nextSeq()}
	return cloneUser(rec), nil
}

func (r users) Get(_ context.Context, userID string) (*store.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	rec, ok := r.s.users[userID]
	if !ok {
		return nil, notFound("user", userID)
	}
	return cloneUser(rec.v), nil
}

func (r users) GetByEmail(_ context.Context, email string) (*store.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var best *row[*store.User]
	for _, rec := range r.s.users {
		if strings.EqualFold(rec.v.Email, email) && (best == nil || rec.seq < best.seq) {
			rec := rec
			best = &rec
		}
	}
	if best == nil {
		return nil, notFound("user email", email)
	}
	return cloneUser(best.v), nil
}

func (r users) Update(_ context.Context, u *store.User) (*store.User, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.users[u.ID]
	if !ok {
		return nil, notFound("user", u.ID)
	}
	if cur.v.Version != u.Version {
		return nil, conflict("user", u.ID)
	}
	rec := cloneUser(u)
	rec.CreatedAt = cur.v.CreatedAt
	rec.Version = cur.v.Version + 1
	rec.UpdatedAt = s.now().UTC()
	s.users[u.ID] = row[*store.User]{v: rec, seq: cur.seq}
	return cloneUser(rec), nil
}

func (r users) List(_ context.Context, opts store.ListOptions) (store.Page[*store.User], error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, err := listPage(values(r.s.users), func(u *store.User) time.Time { return u.CreatedAt }, opts, nil)
	return clonePage(p, cloneUser), err
}

// ---------------- catches ----------------

type catches struct{ s *Store }

func (r catches) Create(_ context.Context, c *store.Catch) (*store.Catch, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := c.Clone()
	rec.ID = newID(rec.ID)
	if _, ok := s.catches[rec.ID]; ok {
		return nil, conflict("catch", rec.ID)
	}
	now := s.now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	rec.Version = 1
	s.catches[rec.ID] = row[*store.Catch]{v: rec, seq: s.nextSeq()}
	return rec.Clone(), nil
}

func (r catches) Get(_ context.Context, catchID string) (*store.Catch, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	rec, ok := r.s.catches[catchID]
	if !ok {
		return nil, notFound("catch", catchID)
	}
	return rec.v.Clone(), nil
}

func (r catches) Update(_ context.Context, c *store.Catch) (*store.Catch, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.catches[c.ID]
	if !ok {
		return nil, notFound("catch", c.ID)
	}
	if cur.v.Version != c.Version {
		return nil, conflict("catch", c.ID)
	}
	rec := c.Clone()
	rec.CreatedAt = cur.v.CreatedAt
	rec.UserID = cur.v.UserID
	rec.Version = cur.v.Version + 1
	rec.UpdatedAt = s.now().UTC()
	s.catches[c.ID] = row[*store.Catch]{v: rec, seq: cur.seq}
	return rec.Clone(), nil
}

func (r catches) Delete(_ context.Context, catchID string, version int64) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.catches[catchID]
	if !ok {
		return notFound("catch", catchID)
	}
	if cur.v.Version != version {
		return conflict("catch", catchID)
	}
	delete(s.catches, catchID)
	return nil
}

func catchCreatedAt(c *store.Catch) time.Time { return c.CreatedAt }

func statusFilter(statuses []store.VerificationStatus) func(*store.Catch) bool {
	if len(statuses) == 0 {
		return nil
	}
	return func(c *store.Catch) bool { return slices.Contains(statuses, c.VerificationStatus) }
}

func (r catches) ListByUser(_ context.Context, userID string, opts store.ListOptions) (store.Page[*store.Catch], error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	byStatus := statusFilter(opts.Statuses)
	p, err := listPage(values(r.s.catches), catchCreatedAt, opts, func(c *store.Catch) bool {
		return c.UserID == userID && (byStatus == nil || byStatus(c))
	})
	return clonePage(p, (*store.Catch).Clone), err
}

func (r catches) List(_ context.Context, opts store.ListOptions) (store.Page[*store.Catch], error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, err := listPage(values(r.s.catches), catchCreatedAt, opts, statusFilter(opts.Statuses))
	return clonePage(p, (*store.Catch).Clone), err
}

func (r catches) ListInArea(_ context.Context, q store.AreaQuery) ([]*store.Catch, error) {
	if !geo.ValidCoordinates(q.CenterLat, q.CenterLng) || q.RadiusMiles <= 0 {
		return nil, fmt.Errorf("area query: %w", common.ErrInvalidInput)
	}
	cov := geo.CoverCap(q.CenterLat, q.CenterLng, q.RadiusMiles)
	byStatus := statusFilter(q.Statuses)

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, err := listPage(values(r.s.catches), catchCreatedAt, store.ListOptions{
		Direction: store.Desc,
		Since:     q.Since,
		Limit:     max(q.Limit, len(r.s.catches)+1),
	}, func(c *store.Catch) bool {
		if q.ExcludeUserID != "" && c.UserID == q.ExcludeUserID {
			return false
		}
		if byStatus != nil && !byStatus(c) {
			return false
		}
		lat, lng, ok := c.Location()
		return ok && cov.Contains(geo.CellID(lat, lng))
	})
	if err != nil {
		return nil, err
	}
	items := p.Items
	if q.Limit > 0 && len(items) > q.Limit {
		items = items[:q.Limit]
	}
	out := make([]*store.Catch, len(items))
	for i, c := range items {
		out[i] = c.Clone()
	}
	return out, nil
}

// ---------------- purchases ----------------

type purchases struct{ s *Store }

func (r purchases) Create(_ context.Context, p *store.InfoPurchase) (*store.InfoPurchase, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := p.Clone()
	rec.ID = newID(rec.ID)
	if _, ok := s.purchases[rec.ID]; ok {
		return nil, conflict("purchase", rec.ID)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now().UTC()
	}
	rec.Version = 1
	s.purchases[rec.ID] = row[*store.InfoPurchase]{v: rec, seq: s.nextSeq()}
	return rec.Clone(), nil
}

func (r purchases) Get(_ context.Context, purchaseID string) (*store.InfoPurchase, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	rec, ok := r.s.purchases[purchaseID]
	if !ok {
		return nil, notFound("purchase", purchaseID)
	}
	return rec.v.Clone(), nil
}

func (r purchases) Delete(_ context.Context, purchaseID string, version int64) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.purchases[purchaseID]
	if !ok {
		return notFound("purchase", purchaseID)
	}
	if cur.v.Version != version {
		return conflict("purchase", purchaseID)
	}
	delete(s.purchases, purchaseID)
	return nil
}

func purchaseCreatedAt(p *store.InfoPurchase) time.Time { return p.CreatedAt }

func (r purchases) ListByUser(_ context.Context, userID string, opts store.ListOptions) (store.Page[*store.InfoPurchase], error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, err := listPage(values(r.s.purchases), purchaseCreatedAt, opts, func(p *store.InfoPurchase) bool {
		return p.UserID == userID
	})
	return clonePage(p, (*store.InfoPurchase).Clone), err
}

func (r purchases) List(_ context.Context, opts store.ListOptions) (store.Page[*store.InfoPurchase], error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, err := listPage(values(r.s.purchases), purchaseCreatedAt, opts, nil)
	return clonePage(p, (*store.InfoPurchase).Clone), err
}

// ---------------- karma events ----------------

type karmaEvents struct{ s *Store }

func cloneEvent(e *store.KarmaEvent) *store.KarmaEvent {
	out := *e
	return &out
}

func (r karmaEvents) Create(_ context.Context, e *store.KarmaEvent) (*store.KarmaEvent, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := cloneEvent(e)
	rec.ID = newID(rec.ID)
	if _, ok := s.karma[rec.ID]; ok {
		return nil, conflict("karma event", rec.ID)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now().UTC()
	}
	rec.Version = 1
	s.karma[rec.ID] = row[*store.KarmaEvent]{v: rec, seq: s.nextSeq()}
	return cloneEvent(rec), nil
}

func (r karmaEvents) Delete(_ context.Context, eventID string, version int64) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.karma[eventID]
	if !ok {
		return notFound("karma event", eventID)
	}
	if cur.v.Version != version {
		return conflict("karma event", eventID)
	}
	delete(s.karma, eventID)
	return nil
}

func eventCreatedAt(e *store.KarmaEvent) time.Time { return e.CreatedAt }

func (r karmaEvents) ListByHelper(_ context.Context, helperUserID string, opts store.ListOptions) (store.Page[*store.KarmaEvent], error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, err := listPage(values(r.s.karma), eventCreatedAt, opts, func(e *store.KarmaEvent) bool {
		return e.HelperUserID == helperUserID
	})
	return clonePage(p, cloneEvent), err
}

func (r karmaEvents) List(_ context.Context, opts store.ListOptions) (store.Page[*store.KarmaEvent], error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, err := listPage(values(r.s.karma), eventCreatedAt, opts, nil)
	return clonePage(p, cloneEvent), err
}

func clonePage[T any](p store.Page[T], clone func(T) T) store.Page[T] {
	for i, v := range p.Items {
		p.Items[i] = clone(v)
	}
	return p
}
