// Package common: errors.go определяет виды ошибок ядра CoFish.
// Каждая публичная операция возвращает либо результат, либо ошибку,
// которая через errors.Is сводится к одному из видов ниже.
// Обработчики HTTP и метрики различают ошибки именно по этим видам.
package common

import "errors"

// Базовые виды ошибок
var (
	// ErrNotAuthenticated: вызывающий не опознан провайдером идентичности
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrNotFound: пользователь, улов или покупка не найдены
	ErrNotFound = errors.New("not found")
	// ErrInsufficientBalance: баланса не хватает для списания
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrConcurrencyConflict: запись изменилась после чтения (устаревшая версия)
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	// ErrInvalidInput: некорректные входные данные (координаты, суммы, статусы)
	ErrInvalidInput = errors.New("invalid input")
	// ErrUpstreamOracle: ошибка оракула зрения или эмбеддингов
	ErrUpstreamOracle = errors.New("upstream oracle failure")
	// ErrStoreFailure: прочие ошибки хранилища
	ErrStoreFailure = errors.New("store failure")
)

// Уточнения для уловов, таргет-зон и админки.
// Каждое уточнение оборачивает базовый вид, поэтому errors.Is работает для обоих.
var (
	// ErrCatchNotVerified: начислять можно только VERIFIED улов
	ErrCatchNotVerified = wrapKind(ErrInvalidInput, "catch is not verified")
	// ErrCatchAlreadyAwarded: улов уже получил очки
	ErrCatchAlreadyAwarded = wrapKind(ErrInvalidInput, "catch already awarded")
	// ErrCatchAlreadyAnalyzed: анализ пишется только в PENDING_VERIFICATION, повтор = новая загрузка
	ErrCatchAlreadyAnalyzed = wrapKind(ErrInvalidInput, "catch already analyzed")
	// ErrMissingLocation: для операции нужны координаты
	ErrMissingLocation = wrapKind(ErrInvalidInput, "location is required")
	// ErrPreviewQuotaExceeded: дневной лимит превью исчерпан
	ErrPreviewQuotaExceeded = errors.New("preview quota exceeded")
	// ErrOperatorDenied: неверный пароль оператора для служебных команд
	ErrOperatorDenied = errors.New("operator password rejected")
)

type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }

func wrapKind(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

// Kind возвращает короткое имя вида ошибки для логов, метрик и HTTP-ответов.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotAuthenticated):
		return "not_authenticated"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ErrConcurrencyConflict):
		return "concurrency_conflict"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrUpstreamOracle):
		return "upstream_oracle"
	case errors.Is(err, ErrPreviewQuotaExceeded):
		return "preview_quota_exceeded"
	case errors.Is(err, ErrOperatorDenied):
		return "operator_denied"
	default:
		return "store_failure"
	}
}
