// Package metrics содержит коллекторы Prometheus ядра CoFish.
// Счётчики можно увеличивать до Register: незарегистрированный коллектор просто не экспортируется.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "cofish"

var (
	once sync.Once

	// OperationsTotal результаты запросов API по маршруту и виду ошибки (kind=ok для успеха).
	OperationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "operations_total",
		Help:      "Public core operations by name and error kind.",
	}, []string{"operation", "kind"})

	// ConflictRetriesTotal конфликты версий, ушедшие на повтор.
	ConflictRetriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "conflict_retries_total",
		Help:      "Optimistic concurrency conflicts that triggered a retry.",
	}, []string{"record"})

	// PointsCreditedTotal начисленные очки по источнику (catch, karma, admin).
	PointsCreditedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "points_credited_total",
		Help:      "Points credited to user balances by source.",
	}, []string{"source"})

	// PointsDebitedTotal списанные очки (покупки таргет-зон).
	PointsDebitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "points_debited_total",
		Help:      "Points debited from user balances.",
	})

	// CatchVerificationsTotal итоги проверки уловов.
	CatchVerificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "catch_verifications_total",
		Help:      "Catch verification outcomes (verified, rejected_alive, rejected_duplicate).",
	}, []string{"result"})

	// KarmaAwardsTotal начисления кармы.
	KarmaAwardsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "karma_awards_total",
		Help:      "Karma awards credited to helpers.",
	})

	// PurchasesTotal покупки таргет-зон по тарифу.
	PurchasesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "targetzone_purchases_total",
		Help:      "Completed TargetZone purchases by tier.",
	}, []string{"tier"})

	// PreviewsTotal превью активности по корзине.
	PreviewsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "activity_previews_total",
		Help:      "Activity previews served by bucket.",
	}, []string{"bucket"})

	// CompensationFailuresTotal откаты саг, которые не удались (нужна ручная сверка).
	CompensationFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "compensation_failures_total",
		Help:      "Saga compensations that failed and need reconciliation.",
	}, []string{"saga"})

	// HookFailuresTotal сбои post-commit хуков.
	HookFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "hook_failures_total",
		Help:      "Post-commit hook failures by hook name.",
	}, []string{"hook"})

	// LedgerMismatchTotal расхождения баланса, найденные сверкой.
	LedgerMismatchTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ledger_mismatch_total",
		Help:      "Users whose balance disagrees with their catch and purchase records.",
	})

	// HTTPRequestDuration длительность HTTP-запросов.
	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route and status.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"route", "status"})
)

// Register регистрирует коллекторы в реестре Prometheus по умолчанию.
// Повторный вызов безопасен.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			OperationsTotal,
			ConflictRetriesTotal,
			PointsCreditedTotal,
			PointsDebitedTotal,
			CatchVerificationsTotal,
			KarmaAwardsTotal,
			PurchasesTotal,
			PreviewsTotal,
			CompensationFailuresTotal,
			HookFailuresTotal,
			LedgerMismatchTotal,
			HTTPRequestDuration,
		)
	})
}

// Observe учитывает результат операции.
func Observe(operation, kind string) {
	OperationsTotal.WithLabelValues(operation, kind).Inc()
}
