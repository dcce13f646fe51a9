// Package respond формирует JSON-ответы API и переводит виды ошибок в HTTP-статусы.
package respond

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"cofish.app/core/internal/common"
	"cofish.app/core/internal/store"
)

// Status HTTP-статус для вида ошибки.
func Status(err error) int {
	switch {
	case errors.Is(err, common.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrInsufficientBalance):
		return http.StatusPaymentRequired
	case errors.Is(err, common.ErrConcurrencyConflict):
		return http.StatusConflict
	case errors.Is(err, common.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrPreviewQuotaExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, common.ErrOperatorDenied):
		return http.StatusForbidden
	case errors.Is(err, common.ErrUpstreamOracle):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// KindKey ключ gin-контекста с видом ошибки ответа (для метрик).
const KindKey = "error_kind"

// Error пишет ошибку в ответ. Для 5xx текст ошибки наружу не отдаётся.
func Error(c *gin.Context, err error) {
	status := Status(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError && status != http.StatusBadGateway {
		log.WithError(err).WithField("path", c.FullPath()).Error("Ошибка обработки запроса")
		msg = "internal error"
	}
	kind := common.Kind(err)
	c.Set(KindKey, kind)
	c.AbortWithStatusJSON(status, gin.H{"error": msg, "kind": kind})
}

// BadRequest ошибка разбора запроса.
func BadRequest(c *gin.Context, err error) {
	kind := common.Kind(common.ErrInvalidInput)
	c.Set(KindKey, kind)
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": kind})
}

// OK ответ 200 с телом.
func OK(c *gin.Context, v any) {
	c.JSON(http.StatusOK, v)
}

// Created ответ 201 с телом.
func Created(c *gin.Context, v any) {
	c.JSON(http.StatusCreated, v)
}

// MaxPageLimit верхняя граница ?limit.
const MaxPageLimit = 100

// Page параметры страницы из ?limit= и ?cursor=, новые первыми.
func Page(c *gin.Context) (store.ListOptions, error) {
	opts := store.ListOptions{Direction: store.Desc, Limit: MaxPageLimit, Cursor: c.Query("cursor")}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > MaxPageLimit {
			return opts, fmt.Errorf("limit должен быть в [1,%d]: %w", MaxPageLimit, common.ErrInvalidInput)
		}
		opts.Limit = n
	}
	return opts, nil
}

// PageBody тело ответа со страницей.
func PageBody[T any](p store.Page[T]) gin.H {
	items := p.Items
	if items == nil {
		items = []T{}
	}
	return gin.H{"items": items, "next": p.Next}
}
