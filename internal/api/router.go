package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"thermbridge/internal/api/handlers"
	"thermbridge/internal/api/middleware"
	"thermbridge/internal/bridge"
)

// RouterConfig holds dependencies for the API router
type RouterConfig struct {
	Bridge     *bridge.Bridge
	APIKey     string
	WebhookID  string
	ConfigDump map[string]any // redacted into /v1/diagnostics
	Logger     *slog.Logger
}

// NewRouter creates and configures the Gin router
func NewRouter(config RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Logging before NoiseFilter: gin unwinds middleware in reverse, so
	// the filter's verdict lands before the log line is written.
	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery(config.Logger))
	router.Use(middleware.Logging(config.Logger))
	router.Use(middleware.NoiseFilter(config.Logger))

	// Health check (no auth)
	healthHandler := handlers.NewHealthHandler(config.Bridge)
	router.GET("/health", healthHandler.GetHealth)

	// Vendor push endpoint. Outside /v1: the vendor authenticates by
	// knowing the webhook path, sends arbitrary content types, and must
	// always receive a 200.
	webhookHandler := handlers.NewWebhookHandler(config.Bridge, config.WebhookID, config.Logger)
	router.POST("/webhook/:webhook_id", webhookHandler.HandlePush)

	// API v1 routes (with authentication)
	v1 := router.Group("/v1")
	v1.Use(middleware.APIKeyAuth(config.APIKey))
	v1.Use(middleware.ContentType())
	{
		homesHandler := handlers.NewHomesHandler(config.Bridge, config.Logger)
		v1.GET("/homes", homesHandler.ListHomes)
		v1.GET("/homes/:home_id/snapshot", homesHandler.GetSnapshot)
		v1.GET("/homes/:home_id/status", homesHandler.GetStatus)
		v1.GET("/homes/:home_id/health", homesHandler.GetHomeHealth)
		v1.GET("/homes/:home_id/rooms", homesHandler.ListRooms)
		v1.GET("/homes/:home_id/modules", homesHandler.ListModules)
		v1.GET("/homes/:home_id/schedules", homesHandler.ListSchedules)

		commandsHandler := handlers.NewCommandsHandler(config.Bridge, config.Logger)
		v1.POST("/homes/:home_id/rooms/:room_id/setpoint", commandsHandler.SetRoomSetpoint)
		v1.POST("/homes/:home_id/mode", commandsHandler.SetHomeMode)
		v1.POST("/homes/:home_id/refresh", commandsHandler.ForceRefresh)

		diagnosticsHandler := handlers.NewDiagnosticsHandler(config.Bridge, config.ConfigDump, config.Logger)
		v1.GET("/diagnostics", diagnosticsHandler.GetDiagnostics)
	}

	return router
}
