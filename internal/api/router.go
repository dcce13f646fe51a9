// Package api собирает HTTP-поверхность CoFish на gin: служебные маршруты,
// группа /v1 с авторизацией и маршруты фич.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cofish.app/core/internal/api/middleware"
	"cofish.app/core/internal/auth"
	"cofish.app/core/internal/features/members"
)

// Registrar фича, монтирующая свои маршруты.
type Registrar interface {
	Register(r gin.IRoutes)
}

// Options зависимости роутера.
type Options struct {
	Verifier *auth.Verifier
	Members  *members.Handler
	Limiter  *middleware.RateLimiter
	Features []Registrar
	// Release включает gin.ReleaseMode
	Release bool
}

// NewRouter создаёт роутер.
func NewRouter(opts Options) *gin.Engine {
	if opts.Release {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(middleware.Recovery(), middleware.Logger())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	v1.Use(auth.Middleware(opts.Verifier))
	if opts.Limiter != nil {
		v1.Use(opts.Limiter.Middleware())
	}
	v1.Use(opts.Members.EnsureMiddleware())

	opts.Members.Register(v1)
	for _, f := range opts.Features {
		f.Register(v1)
	}
	return r
}
