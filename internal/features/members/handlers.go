// Package members: handlers.go обслуживает запросы профиля.
package members

import (
	"github.com/gin-gonic/gin"

	"cofish.app/core/internal/api/respond"
	"cofish.app/core/internal/auth"
)

// Handler HTTP-обработчики профиля.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Register(r gin.IRoutes) {
	r.GET("/me", h.HandleProfile)
	r.PATCH("/me", h.HandleRename)
}

// EnsureMiddleware создаёт запись пользователя при первом запросе.
// Ставится после auth.Middleware.
func (h *Handler) EnsureMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := auth.FromGin(c)
		if err != nil {
			respond.Error(c, err)
			return
		}
		if _, err := h.service.EnsureUser(c.Request.Context(), id); err != nil {
			respond.Error(c, err)
			return
		}
		c.Next()
	}
}

// HandleProfile GET /me.
func (h *Handler) HandleProfile(c *gin.Context) {
	id, err := auth.FromGin(c)
	if err != nil {
		respond.Error(c, err)
		return
	}
	p, err := h.service.Profile(c.Request.Context(), id.UserID)
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, p)
}

// HandleRename PATCH /me.
func (h *Handler) HandleRename(c *gin.Context) {
	id, err := auth.FromGin(c)
	if err != nil {
		respond.Error(c, err)
		return
	}
	var req UpdateInfo
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadRequest(c, err)
		return
	}
	p, err := h.service.Rename(c.Request.Context(), id.UserID, req.DisplayName)
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, p)
}
