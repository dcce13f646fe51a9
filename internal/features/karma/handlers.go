// Package karma: handlers.go показывает полученную карму.
package karma

import (
	"github.com/gin-gonic/gin"

	"cofish.app/core/internal/api/respond"
	"cofish.app/core/internal/auth"
)

// Handler обрабатывает запросы кармы.
type Handler struct {
	service *Service
}

// NewHandler создаёт обработчик кармы.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Register(r gin.IRoutes) {
	r.GET("/me/karma", h.HandleKarma)
}

// HandleKarma GET /me/karma: показывает только свою карму.
func (h *Handler) HandleKarma(c *gin.Context) {
	id, err := auth.FromGin(c)
	if err != nil {
		respond.Error(c, err)
		return
	}
	opts, err := respond.Page(c)
	if err != nil {
		respond.Error(c, err)
		return
	}
	summary, err := h.service.GetKarma(c.Request.Context(), id.UserID, opts)
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, summary)
}
