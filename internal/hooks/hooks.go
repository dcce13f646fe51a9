// Package hooks выполняет побочные эффекты после фиксации основной операции.
// Каждый хук изолирован: ошибка или паника одного не мешает остальным
// и не меняет результат основной операции.
package hooks

import (
	"context"
	"fmt"
	"runtime/debug"

	log "github.com/sirupsen/logrus"

	"cofish.app/core/internal/metrics"
)

// Hook именованный побочный эффект над значением T.
type Hook[T any] struct {
	Name string
	Fn   func(ctx context.Context, v T) error
}

// List упорядоченный список хуков.
type List[T any] []Hook[T]

// Run вызывает хуки по порядку. Возвращает число неудачных хуков (для тестов и логов).
func (l List[T]) Run(ctx context.Context, v T) int {
	failed := 0
	for _, h := range l {
		if err := runOne(ctx, h, v); err != nil {
			failed++
			metrics.HookFailuresTotal.WithLabelValues(h.Name).Inc()
			log.WithError(err).WithField("hook", h.Name).Warn("Post-commit хук завершился с ошибкой")
		}
	}
	return failed
}

func runOne[T any](ctx context.Context, h Hook[T], v T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.WithFields(log.Fields{
				"hook":  h.Name,
				"panic": r,
				"stack": string(debug.Stack()),
			}).Error("Паника в post-commit хуке")
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h.Fn(ctx, v)
}
