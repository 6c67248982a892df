package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"thermbridge/internal/bridge"
	"thermbridge/internal/netatmo"
)

// CommandsHandler handles thermostat mutations
type CommandsHandler struct {
	api    CommandAPI
	logger *slog.Logger
}

// CommandAPI interface for all write operations
type CommandAPI interface {
	SetRoomSetpoint(ctx context.Context, req bridge.SetpointRequest) (*bridge.SetpointResult, error)
	SetHomeMode(ctx context.Context, req bridge.ModeRequest) (*bridge.ModeResult, error)
	SetScheduleByName(ctx context.Context, homeID, name string) (*bridge.ModeResult, error)
	ForceRefresh(ctx context.Context, homeID string) (bool, error)
}

// NewCommandsHandler creates a new commands handler
func NewCommandsHandler(api CommandAPI, logger *slog.Logger) *CommandsHandler {
	return &CommandsHandler{
		api:    api,
		logger: logger,
	}
}

// SetRoomSetpoint changes the setpoint of one room
// POST /v1/homes/:home_id/rooms/:room_id/setpoint
func (h *CommandsHandler) SetRoomSetpoint(c *gin.Context) {
	var req struct {
		Mode    string   `json:"mode" binding:"required"`
		Temp    *float64 `json:"temp"`
		EndTime *int64   `json:"endtime"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"code":    "INVALID_REQUEST",
			"details": err.Error(),
		})
		return
	}

	result, err := h.api.SetRoomSetpoint(c.Request.Context(), bridge.SetpointRequest{
		HomeID:  c.Param("home_id"),
		RoomID:  c.Param("room_id"),
		Mode:    req.Mode,
		Temp:    req.Temp,
		EndTime: req.EndTime,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// SetHomeMode changes the operating mode of one home. A schedule can be
// selected by id or, via schedule_name, by its display name.
// POST /v1/homes/:home_id/mode
func (h *CommandsHandler) SetHomeMode(c *gin.Context) {
	homeID := c.Param("home_id")

	var req struct {
		Mode         string  `json:"mode"`
		EndTime      *int64  `json:"endtime"`
		ScheduleID   *string `json:"schedule_id"`
		ScheduleName string  `json:"schedule_name"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"code":    "INVALID_REQUEST",
			"details": err.Error(),
		})
		return
	}

	if req.ScheduleName != "" {
		if req.Mode != "" && req.Mode != netatmo.HomeModeSchedule {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "schedule_name requires schedule mode",
				"code":  "INVALID_REQUEST",
			})
			return
		}
		result, err := h.api.SetScheduleByName(c.Request.Context(), homeID, req.ScheduleName)
		if err != nil {
			respondError(c, h.logger, err)
			return
		}
		c.JSON(http.StatusOK, result)
		return
	}

	if req.Mode == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "mode or schedule_name required",
			"code":  "INVALID_REQUEST",
		})
		return
	}

	result, err := h.api.SetHomeMode(c.Request.Context(), bridge.ModeRequest{
		HomeID:     homeID,
		Mode:       req.Mode,
		EndTime:    req.EndTime,
		ScheduleID: req.ScheduleID,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// ForceRefresh refreshes the home now, bypassing the poll schedule
// POST /v1/homes/:home_id/refresh
func (h *CommandsHandler) ForceRefresh(c *gin.Context) {
	homeID := c.Param("home_id")

	refreshed, err := h.api.ForceRefresh(c.Request.Context(), homeID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"home_id":   homeID,
		"refreshed": refreshed,
	})
}
