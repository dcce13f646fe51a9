package store

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"

	"cofish.app/core/internal/common"
)

// RetryPolicy ограничивает повторы цикла read-modify-write.
type RetryPolicy struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	// OnConflict вызывается на каждом конфликте (метрики)
	OnConflict func(attempt int)
}

// DefaultRetryPolicy значения по умолчанию.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, BaseBackoff: 20 * time.Millisecond, MaxBackoff: time.Second}
}

// RetryOnConflict повторяет fn, пока она возвращает common.ErrConcurrencyConflict,
// но не больше MaxAttempts раз. Любая другая ошибка возвращается сразу.
// fn должна заново читать запись на каждой попытке.
func RetryOnConflict(ctx context.Context, p RetryPolicy, fn func(ctx context.Context) error) error {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	exp := backoff.NewExponentialBackOff()
	if p.BaseBackoff > 0 {
		exp.InitialInterval = p.BaseBackoff
	}
	if p.MaxBackoff > 0 {
		exp.MaxInterval = p.MaxBackoff
	}
	exp.MaxElapsedTime = 0

	var b backoff.BackOff = backoff.WithMaxRetries(exp, uint64(p.MaxAttempts-1))
	b = backoff.WithContext(b, ctx)

	attempt := 0
	op := func() error {
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, common.ErrConcurrencyConflict) {
			if p.OnConflict != nil {
				p.OnConflict(attempt)
			}
			log.WithField("attempt", attempt).Debug("Конфликт версий, повторяем")
			return err
		}
		return backoff.Permanent(err)
	}
	return backoff.Retry(op, b)
}
