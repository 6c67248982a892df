package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"thermbridge/internal/bridge"
)

// HomeLister reports the managed homes for the liveness payload.
type HomeLister interface {
	Homes() []bridge.HomeInfo
}

// HealthHandler handles health check requests
type HealthHandler struct {
	homes HomeLister
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(homes HomeLister) *HealthHandler {
	return &HealthHandler{homes: homes}
}

// GetHealth returns the health status of the service
// GET /health
func (h *HealthHandler) GetHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "UP",
		"service": "thermbridge",
		"homes":   len(h.homes.Homes()),
	})
}
