package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"thermbridge/internal/api/middleware"
	"thermbridge/internal/bridge"
	"thermbridge/internal/netatmo"
)

// errorMapping pairs a sentinel error with the HTTP response it produces.
type errorMapping struct {
	target error
	status int
	code   string
}

// Order matters: ErrRateLimited and ErrTimeout wrap ErrAPI, so they must
// match before the generic vendor error does.
var errorMappings = []errorMapping{
	{bridge.ErrHomeNotFound, http.StatusNotFound, "HOME_NOT_FOUND"},
	{bridge.ErrScheduleNotFound, http.StatusNotFound, "SCHEDULE_NOT_FOUND"},
	{bridge.ErrNoSnapshot, http.StatusServiceUnavailable, "NO_DATA"},
	{bridge.ErrUnknownRoomMode, http.StatusBadRequest, "INVALID_MODE"},
	{bridge.ErrUnknownHomeMode, http.StatusBadRequest, "INVALID_MODE"},
	{bridge.ErrTemperatureRequired, http.StatusBadRequest, "TEMPERATURE_REQUIRED"},
	{bridge.ErrTemperatureOutOfRange, http.StatusBadRequest, "TEMPERATURE_OUT_OF_RANGE"},
	{bridge.ErrTemperatureStep, http.StatusBadRequest, "INVALID_TEMPERATURE_STEP"},
	{bridge.ErrScheduleRequired, http.StatusBadRequest, "SCHEDULE_REQUIRED"},
	{netatmo.ErrAuth, http.StatusBadGateway, "VENDOR_AUTH_FAILED"},
	{netatmo.ErrRateLimited, http.StatusTooManyRequests, "RATE_LIMITED"},
	{netatmo.ErrTimeout, http.StatusGatewayTimeout, "VENDOR_TIMEOUT"},
	{netatmo.ErrAPI, http.StatusBadGateway, "VENDOR_ERROR"},
}

// respondError maps a bridge or vendor error to its HTTP response and
// logs server-side failures.
func respondError(c *gin.Context, logger *slog.Logger, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			if m.status >= 500 {
				logger.Error("Request failed",
					"component", "api",
					"request_id", c.GetString(middleware.RequestIDKey),
					"path", c.Request.URL.Path,
					"code", m.code,
					"error", err,
				)
			}
			c.JSON(m.status, gin.H{
				"error": err.Error(),
				"code":  m.code,
			})
			return
		}
	}

	logger.Error("Request failed",
		"component", "api",
		"request_id", c.GetString(middleware.RequestIDKey),
		"path", c.Request.URL.Path,
		"error", err,
	)
	c.JSON(http.StatusInternalServerError, gin.H{
		"error": "Internal server error",
		"code":  "INTERNAL_ERROR",
	})
}
