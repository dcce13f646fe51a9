// Package middleware содержит промежуточные обработчики gin для логирования,
// восстановления после паники и rate-limiting.
package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"cofish.app/core/internal/api/respond"
	"cofish.app/core/internal/metrics"
)

// Logger логирует запрос, пишет его длительность и вид ошибки в метрики.
// Маршрут берётся шаблоном (/catches/:id), чтобы не плодить метки.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		elapsed := time.Since(start)
		metrics.HTTPRequestDuration.WithLabelValues(route, strconv.Itoa(status)).Observe(elapsed.Seconds())
		kind := c.GetString(respond.KindKey)
		if kind == "" {
			kind = "ok"
		}
		metrics.Observe(c.Request.Method+" "+route, kind)

		entry := log.WithFields(log.Fields{
			"method":  c.Request.Method,
			"route":   route,
			"status":  status,
			"elapsed": elapsed.String(),
			"ip":      c.ClientIP(),
		})
		if kind != "ok" {
			entry = entry.WithField("kind", kind)
		}
		if uid, ok := c.Get("user_id"); ok {
			entry = entry.WithField("user_id", uid)
		}
		switch {
		case status >= 500:
			entry.Error("Запрос завершился ошибкой")
		case status >= 400:
			entry.Info("Запрос отклонён")
		default:
			entry.Debug("Запрос обработан")
		}
	}
}
