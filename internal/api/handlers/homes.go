package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"thermbridge/internal/bridge"
	"thermbridge/internal/coordinator"
	"thermbridge/internal/netatmo"
)

// HomesHandler handles read requests against the cached home state
type HomesHandler struct {
	homes  HomeDirectory
	logger *slog.Logger
}

// HomeDirectory interface for all home read operations
type HomeDirectory interface {
	Homes() []bridge.HomeInfo
	Snapshot(homeID string) (*coordinator.Snapshot, error)
	Health(homeID string) (*bridge.HomeHealth, error)
	IsStale(homeID string, maxAge time.Duration) (bool, error)
	Rooms(homeID string) ([]bridge.RoomView, error)
	Modules(homeID string) ([]bridge.ModuleView, error)
	ListSchedules(ctx context.Context, homeID string) ([]netatmo.Schedule, error)
}

// NewHomesHandler creates a new homes handler
func NewHomesHandler(homes HomeDirectory, logger *slog.Logger) *HomesHandler {
	return &HomesHandler{
		homes:  homes,
		logger: logger,
	}
}

// ListHomes returns the managed homes
// GET /v1/homes
func (h *HomesHandler) ListHomes(c *gin.Context) {
	c.JSON(http.StatusOK, h.homes.Homes())
}

// GetSnapshot returns the raw cached snapshot of one home
// GET /v1/homes/:home_id/snapshot
func (h *HomesHandler) GetSnapshot(c *gin.Context) {
	homeID := c.Param("home_id")

	snap, err := h.homes.Snapshot(homeID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, snap)
}

// GetStatus returns the flattened room and module state of one home plus
// its polling health. max_age_seconds overrides the staleness threshold.
// GET /v1/homes/:home_id/status?max_age_seconds=
func (h *HomesHandler) GetStatus(c *gin.Context) {
	homeID := c.Param("home_id")

	var maxAge time.Duration
	if raw := c.Query("max_age_seconds"); raw != "" {
		secs, err := strconv.Atoi(raw)
		if err != nil || secs <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "max_age_seconds must be a positive integer",
				"code":  "INVALID_MAX_AGE",
			})
			return
		}
		maxAge = time.Duration(secs) * time.Second
	}

	rooms, err := h.homes.Rooms(homeID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	modules, err := h.homes.Modules(homeID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	health, err := h.homes.Health(homeID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	stale, err := h.homes.IsStale(homeID, maxAge)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"home_id": homeID,
		"stale":   stale,
		"health":  health,
		"rooms":   rooms,
		"modules": modules,
	})
}

// GetHomeHealth returns the polling health of one home
// GET /v1/homes/:home_id/health
func (h *HomesHandler) GetHomeHealth(c *gin.Context) {
	homeID := c.Param("home_id")

	health, err := h.homes.Health(homeID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, health)
}

// ListRooms returns the room views of one home
// GET /v1/homes/:home_id/rooms
func (h *HomesHandler) ListRooms(c *gin.Context) {
	homeID := c.Param("home_id")

	rooms, err := h.homes.Rooms(homeID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, rooms)
}

// ListModules returns the module views of one home
// GET /v1/homes/:home_id/modules
func (h *HomesHandler) ListModules(c *gin.Context) {
	homeID := c.Param("home_id")

	modules, err := h.homes.Modules(homeID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, modules)
}

// ListSchedules returns the heating schedules of one home
// GET /v1/homes/:home_id/schedules
func (h *HomesHandler) ListSchedules(c *gin.Context) {
	homeID := c.Param("home_id")

	schedules, err := h.homes.ListSchedules(c.Request.Context(), homeID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, schedules)
}
