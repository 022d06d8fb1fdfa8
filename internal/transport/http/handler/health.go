package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"bytebits/internal/bootstrap"
)

type HealthHandler struct {
	app *bootstrap.App
}

func NewHealthHandler(app *bootstrap.App) *HealthHandler {
	return &HealthHandler{app: app}
}

func (h *HealthHandler) Check(c *gin.Context) {
	c.JSON(200, gin.H{
		"status":         "ok",
		"app":            h.app.Config.App.Name,
		"env":            h.app.Config.App.Env,
		"uptime_seconds": int(time.Since(h.app.StartedAt).Seconds()),
	})
}
