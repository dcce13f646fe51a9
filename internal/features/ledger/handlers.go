// Package ledger: handlers.go обслуживает запросы истории и баланса.
package ledger

import (
	"github.com/gin-gonic/gin"

	"cofish.app/core/internal/api/respond"
	"cofish.app/core/internal/auth"
)

// Handler HTTP-обработчики ledger.
type Handler struct {
	service *Service
}

// NewHandler создаёт обработчик.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Register монтирует маршруты в группу с авторизацией.
func (h *Handler) Register(r gin.IRoutes) {
	r.GET("/me/ledger", h.HandleLedger)
	r.GET("/me/balance", h.HandleBalance)
}

// HandleLedger GET /me/ledger.
func (h *Handler) HandleLedger(c *gin.Context) {
	id, err := auth.FromGin(c)
	if err != nil {
		respond.Error(c, err)
		return
	}
	l, err := h.service.ComputeLedger(c.Request.Context(), id.UserID)
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, l)
}

// HandleBalance GET /me/balance.
func (h *Handler) HandleBalance(c *gin.Context) {
	id, err := auth.FromGin(c)
	if err != nil {
		respond.Error(c, err)
		return
	}
	balance, err := h.service.Balance(c.Request.Context(), id.UserID)
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, gin.H{"userId": id.UserID, "pointsBalance": balance})
}
