package storetest

import (
	"context"
	"sync"

	"cofish.app/core/internal/store"
)

// Faulty оборачивает хранилище и позволяет подставить сбои отдельных операций.
// Хук возвращает ошибку, которую нужно отдать вместо вызова драйвера, или nil.
type Faulty struct {
	store.Store

	mu             sync.Mutex
	userUpdate     func(u *store.User) error
	catchUpdate    func(c *store.Catch) error
	catchGet       func(id string) error
	area           func(q store.AreaQuery) error
	purchaseCreate func(p *store.InfoPurchase) error
	purchaseList   func(opts store.ListOptions) error
	purchaseDelete func(id string) error
	karmaCreate    func(e *store.KarmaEvent) error
}

// NewFaulty оборачивает s без сбоев.
func NewFaulty(s store.Store) *Faulty {
	return &Faulty{Store: s}
}

func (f *Faulty) OnUserUpdate(fn func(u *store.User) error) *Faulty {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userUpdate = fn
	return f
}

func (f *Faulty) OnCatchUpdate(fn func(c *store.Catch) error) *Faulty {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.catchUpdate = fn
	return f
}

func (f *Faulty) OnCatchGet(fn func(id string) error) *Faulty {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.catchGet = fn
	return f
}

func (f *Faulty) OnArea(fn func(q store.AreaQuery) error) *Faulty {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.area = fn
	return f
}

func (f *Faulty) OnPurchaseCreate(fn func(p *store.InfoPurchase) error) *Faulty {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.purchaseCreate = fn
	return f
}

func (f *Faulty) OnPurchaseList(fn func(opts store.ListOptions) error) *Faulty {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.purchaseList = fn
	return f
}

func (f *Faulty) OnPurchaseDelete(fn func(id string) error) *Faulty {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.purchaseDelete = fn
	return f
}

func (f *Faulty) OnKarmaCreate(fn func(e *store.KarmaEvent) error) *Faulty {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.karmaCreate = fn
	return f
}

func hook[T any](f *Faulty, get func() func(T) error, v T) error {
	f.mu.Lock()
	fn := get()
	f.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(v)
}

func (f *Faulty) Users() store.Users             { return faultyUsers{Users: f.Store.Users(), f: f} }
func (f *Faulty) Catches() store.Catches         { return faultyCatches{Catches: f.Store.Catches(), f: f} }
func (f *Faulty) Purchases() store.Purchases     { return faultyPurchases{Purchases: f.Store.Purchases(), f: f} }
func (f *Faulty) KarmaEvents() store.KarmaEvents { return faultyKarma{KarmaEvents: f.Store.KarmaEvents(), f: f} }

type faultyUsers struct {
	store.Users
	f *Faulty
}

func (u faultyUsers) Update(ctx context.Context, rec *store.User) (*store.User, error) {
	if err := hook(u.f, func() func(*store.User) error { return u.f.userUpdate }, rec); err != nil {
		return nil, err
	}
	return u.Users.Update(ctx, rec)
}

type faultyCatches struct {
	store.Catches
	f *Faulty
}

func (c faultyCatches) Get(ctx context.Context, id string) (*store.Catch, error) {
	if err := hook(c.f, func() func(string) error { return c.f.catchGet }, id); err != nil {
		return nil, err
	}
	return c.Catches.Get(ctx, id)
}

func (c faultyCatches) Update(ctx context.Context, rec *store.Catch) (*store.Catch, error) {
	if err := hook(c.f, func() func(*store.Catch) error { return c.f.catchUpdate }, rec); err != nil {
		return nil, err
	}
	return c.Catches.Update(ctx, rec)
}

func (c faultyCatches) ListInArea(ctx context.Context, q store.AreaQuery) ([]*store.Catch, error) {
	if err := hook(c.f, func() func(store.AreaQuery) error { return c.f.area }, q); err != nil {
		return nil, err
	}
	return c.Catches.ListInArea(ctx, q)
}

type faultyPurchases struct {
	store.Purchases
	f *Faulty
}

func (p faultyPurchases) Create(ctx context.Context, rec *store.InfoPurchase) (*store.InfoPurchase, error) {
	if err := hook(p.f, func() func(*store.InfoPurchase) error { return p.f.purchaseCreate }, rec); err != nil {
		return nil, err
	}
	return p.Purchases.Create(ctx, rec)
}

func (p faultyPurchases) List(ctx context.Context, opts store.ListOptions) (store.Page[*store.InfoPurchase], error) {
	if err := hook(p.f, func() func(store.ListOptions) error { return p.f.purchaseList }, opts); err != nil {
		return store.Page[*store.InfoPurchase]{}, err
	}
	return p.Purchases.List(ctx, opts)
}

func (p faultyPurchases) Delete(ctx context.Context, id string, version int64) error {
	if err := hook(p.f, func() func(string) error { return p.f.purchaseDelete }, id); err != nil {
		return err
	}
	return p.Purchases.Delete(ctx, id, version)
}

type faultyKarma struct {
	store.KarmaEvents
	f *Faulty
}

func (k faultyKarma) Create(ctx context.Context, rec *store.KarmaEvent) (*store.KarmaEvent, error) {
	if err := hook(k.f, func() func(*store.KarmaEvent) error { return k.f.karmaCreate }, rec); err != nil {
		return nil, err
	}
	return k.KarmaEvents.Create(ctx, rec)
}
