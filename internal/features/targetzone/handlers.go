// Package targetzone: handlers.go обслуживает превью, покупки и карту зон.
package targetzone

import (
	"github.com/gin-gonic/gin"

	"cofish.app/core/internal/api/respond"
	"cofish.app/core/internal/auth"
)

// Handler HTTP-обработчики рынка зон.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Register(r gin.IRoutes) {
	r.GET("/targetzones/tiers", h.HandleTiers)
	r.POST("/targetzones/preview", h.HandlePreview)
	r.POST("/targetzones/purchases", h.HandlePurchase)
	r.GET("/targetzones/purchases", h.HandleListPurchases)
	r.GET("/targetzones/purchases/:id/overlay", h.HandleOverlay)
}

// HandleTiers GET /targetzones/tiers.
func (h *Handler) HandleTiers(c *gin.Context) {
	respond.OK(c, gin.H{"tiers": Tiers(), "zoneHalfSideMiles": ZoneHalfSideMiles})
}

// HandlePreview POST /targetzones/preview: одно превью из дневной квоты.
func (h *Handler) HandlePreview(c *gin.Context) {
	id, err := auth.FromGin(c)
	if err != nil {
		respond.Error(c, err)
		return
	}
	var req previewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadRequest(c, err)
		return
	}
	p, err := h.service.PreviewActivity(c.Request.Context(), id.UserID, req.Lat, req.Lng)
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, p)
}

// HandlePurchase POST /targetzones/purchases.
func (h *Handler) HandlePurchase(c *gin.Context) {
	id, err := auth.FromGin(c)
	if err != nil {
		respond.Error(c, err)
		return
	}
	var in PurchaseInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respond.BadRequest(c, err)
		return
	}
	p, err := h.service.PurchaseTargetZone(c.Request.Context(), id.UserID, in)
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.Created(c, p)
}

// HandleListPurchases GET /targetzones/purchases.
func (h *Handler) HandleListPurchases(c *gin.Context) {
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
	page, err := h.service.ListPurchases(c.Request.Context(), id.UserID, opts)
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, respond.PageBody(page))
}

// HandleOverlay GET /targetzones/purchases/:id/overlay.
func (h *Handler) HandleOverlay(c *gin.Context) {
	id, err := auth.FromGin(c)
	if err != nil {
		respond.Error(c, err)
		return
	}
	o, err := h.service.Overlay(c.Request.Context(), id.UserID, c.Param("id"))
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, o)
}
