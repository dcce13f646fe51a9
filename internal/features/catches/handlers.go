// Package catches: handlers.go обслуживает загрузку, анализ и публикацию уловов.
package catches

import (
	"github.com/gin-gonic/gin"

	"cofish.app/core/internal/api/respond"
	"cofish.app/core/internal/auth"
)

// Handler HTTP-обработчики уловов.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Register(r gin.IRoutes) {
	r.POST("/catches", h.HandleCreate)
	r.GET("/catches", h.HandleList)
	r.GET("/catches/:id", h.HandleGet)
	r.POST("/catches/:id/analysis", h.HandleAnalyze)
	r.POST("/catches/:id/award", h.HandleAward)
}

// HandleCreate POST /catches: улов в статусе PENDING_VERIFICATION.
func (h *Handler) HandleCreate(c *gin.Context) {
	id, err := auth.FromGin(c)
	if err != nil {
		respond.Error(c, err)
		return
	}
	var in CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respond.BadRequest(c, err)
		return
	}
	catch, err := h.service.CreatePendingCatch(c.Request.Context(), id.UserID, in)
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.Created(c, catch)
}

// HandleList GET /catches: свои уловы.
func (h *Handler) HandleList(c *gin.Context) {
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
	page, err := h.service.ListUserCatches(c.Request.Context(), id.UserID, opts)
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, respond.PageBody(page))
}

// HandleGet GET /catches/:id.
func (h *Handler) HandleGet(c *gin.Context) {
	id, err := auth.FromGin(c)
	if err != nil {
		respond.Error(c, err)
		return
	}
	catch, err := h.service.GetOwnCatch(c.Request.Context(), id.UserID, c.Param("id"))
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, catch)
}

// HandleAnalyze POST /catches/:id/analysis: кадры видео в base64.
func (h *Handler) HandleAnalyze(c *gin.Context) {
	id, err := auth.FromGin(c)
	if err != nil {
		respond.Error(c, err)
		return
	}
	var req analyzeFramesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadRequest(c, err)
		return
	}
	v, err := h.service.AnalyzeCatch(c.Request.Context(), id.UserID, c.Param("id"), req.Frames)
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, v)
}

// HandleAward POST /catches/:id/award.
func (h *Handler) HandleAward(c *gin.Context) {
	id, err := auth.FromGin(c)
	if err != nil {
		respond.Error(c, err)
		return
	}
	catch, err := h.service.AwardPointsForVerifiedCatch(c.Request.Context(), id.UserID, c.Param("id"))
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, catch)
}
