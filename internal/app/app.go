// Package app инициализирует все компоненты приложения.
// app.go собирает хранилище, сервисы, post-commit хуки, роутер и планировщик.
package app

import (
	"context"
	"fmt"
	"net/http"

	log "github.com/sirupsen/logrus"

	"cofish.app/core/internal/api"
	"cofish.app/core/internal/api/middleware"
	"cofish.app/core/internal/auth"
	"cofish.app/core/internal/common"
	"cofish.app/core/internal/config"
	"cofish.app/core/internal/db/postgres"
	"cofish.app/core/internal/events"
	"cofish.app/core/internal/features/admin"
	"cofish.app/core/internal/features/catches"
	"cofish.app/core/internal/features/karma"
	"cofish.app/core/internal/features/ledger"
	"cofish.app/core/internal/features/members"
	"cofish.app/core/internal/features/targetzone"
	"cofish.app/core/internal/jobs"
	"cofish.app/core/internal/metrics"
	"cofish.app/core/internal/oracle"
	"cofish.app/core/internal/store"
	"cofish.app/core/internal/store/memstore"
)

// App содержит все компоненты приложения.
type App struct {
	Config *config.Config
	Store  store.Store

	Ledger  *ledger.Service
	Members *members.Service
	Catches *catches.Service
	Karma   *karma.Service
	Zones   *targetzone.Service
	Admin   *admin.Service

	Events    events.Publisher
	Scheduler *jobs.Scheduler
	limiter   *middleware.RateLimiter

	closers []func()
}

// OpenStore открывает хранилище по STORE_DRIVER. Для postgres применяются миграции.
func OpenStore(ctx context.Context, cfg *config.Config) (store.Store, func(), error) {
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		log.Warn("Хранилище в памяти: данные пропадут при остановке")
		return memstore.New(), func() {}, nil
	default:
		pool, err := postgres.NewPool(ctx, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("ошибка подключения к БД: %w", err)
		}
		if err := postgres.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("ошибка миграций: %w", err)
		}
		return postgres.NewStore(pool), pool.Close, nil
	}
}

// RetryPolicy политика повторов из конфигурации.
func RetryPolicy(cfg *config.Config) store.RetryPolicy {
	p := store.DefaultRetryPolicy()
	p.MaxAttempts = cfg.LedgerMaxAttempts
	if cfg.LedgerBaseBackoff > 0 {
		p.BaseBackoff = cfg.LedgerBaseBackoff
	}
	return p
}

// New создаёт и инициализирует приложение.
// Порядок инициализации важен: компоненты зависят друг от друга.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	metrics.Register()
	a := &App{Config: cfg}

	// === 1. Хранилище ===
	s, closeStore, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Store = s
	a.closers = append(a.closers, closeStore)

	// === 2. Внешние сервисы ===
	a.Events = events.Nop{}
	if cfg.AMQPURL != "" {
		pub, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Events = pub
	}
	a.closers = append(a.closers, func() {
		if err := a.Events.Close(); err != nil {
			log.WithError(err).Warn("Ошибка закрытия публикатора событий")
		}
	})

	var vision catches.Oracle
	if cfg.OracleURL != "" {
		client, err := oracle.New(oracle.Config{URL: cfg.OracleURL, APIKey: cfg.OracleAPIKey, Timeout: cfg.OracleTimeout})
		if err != nil {
			a.Close()
			return nil, err
		}
		vision = client
	} else {
		log.Warn("ORACLE_URL не задан: анализ уловов недоступен")
	}

	// === 3. Сервисы ===
	retry := RetryPolicy(cfg)
	loc := common.LoadLocation(cfg.AppTimezone)

	a.Ledger = ledger.NewService(s, retry, cfg.LedgerPageLimit)
	a.Members = members.NewService(members.NewRepository(s), retry)
	a.Catches = catches.NewService(s, vision, a.Ledger, catches.Settings{
		BasePoints: cfg.CatchBasePoints,
		Thresholds: catches.Thresholds{
			Alive:            cfg.AliveThreshold,
			Confidence:       cfg.ConfidenceThreshold,
			SameUser:         cfg.SameUserSimilarity,
			CrossUser:        cfg.CrossUserSimilarity,
			CrossUserEnabled: cfg.UniquenessCrossUser,
			ReferenceLimit:   cfg.UniquenessRefLimit,
		},
		Retry: retry,
	})
	a.Karma = karma.NewService(karma.NewRepository(s), a.Ledger, karma.Settings{
		Points:      cfg.KarmaPoints,
		RadiusMiles: cfg.KarmaRadiusMiles,
		Window:      cfg.KarmaWindow,
		Retry:       retry,
	})
	a.Zones = targetzone.NewService(s, a.Ledger, targetzone.NewMemoryQuota(), targetzone.Settings{
		DailyQuota:         cfg.PreviewDailyQuota,
		PreviewRadiusMiles: cfg.PreviewRadiusMiles,
		PreviewWindow:      cfg.PreviewWindow,
		PurchaseWindow:     cfg.PurchaseWindow,
		Location:           loc,
		Retry:              retry,
	})
	a.Admin = admin.NewService(admin.NewRepository(s), a.Ledger, cfg.AdminPasswordHash, cfg.CatchBasePoints)

	// === 4. Post-commit хуки ===
	// Карма раньше события: подписчики видят улов уже после распределения
	a.Catches.OnAwarded(a.Karma.Hook())
	a.Catches.OnAwarded(events.CatchAwardedHook(a.Events))
	a.Karma.OnAwarded(events.KarmaAwardedHook(a.Events))
	a.Zones.OnPurchased(events.PurchaseHook(a.Events))

	// === 5. Планировщик задач ===
	a.Scheduler = jobs.NewScheduler(a.Zones.Quota(), a.Ledger, loc)
	return a, nil
}

// Handler собирает HTTP-роутер. Лимитер создаётся один раз на приложение.
func (a *App) Handler() http.Handler {
	if a.limiter == nil {
		a.limiter = middleware.NewRateLimiter(a.Config.RateLimitRequests, a.Config.RateLimitWindow)
		a.closers = append(a.closers, a.limiter.Close)
	}
	return api.NewRouter(api.Options{
		Verifier: auth.NewVerifier(a.Config.AuthJWTSecret, a.Config.AuthJWTIssuer),
		Members:  members.NewHandler(a.Members),
		Limiter:  a.limiter,
		Features: []api.Registrar{
			ledger.NewHandler(a.Ledger),
			catches.NewHandler(a.Catches),
			karma.NewHandler(a.Karma),
			targetzone.NewHandler(a.Zones),
		},
		Release: a.Config.AppEnv == "production",
	})
}

// Server HTTP-сервер поверх Handler.
func (a *App) Server() *api.Server {
	return api.NewServer(a.Config.HTTPAddr, a.Handler(), a.Config.HTTPReadTimeout, a.Config.HTTPWriteTimeout, a.Config.HTTPShutdownGrace)
}

// Close освобождает ресурсы в обратном порядке.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
