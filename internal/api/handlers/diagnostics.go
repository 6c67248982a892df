package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// DiagnosticsSource assembles the redacted support dump.
type DiagnosticsSource interface {
	Diagnostics(config map[string]any) (map[string]any, error)
}

// DiagnosticsHandler handles support dump requests
type DiagnosticsHandler struct {
	source DiagnosticsSource
	config map[string]any
	logger *slog.Logger
}

// NewDiagnosticsHandler creates a new diagnostics handler. config is the
// running configuration as a generic document; secrets are redacted by
// the source before the dump leaves the process.
func NewDiagnosticsHandler(source DiagnosticsSource, config map[string]any, logger *slog.Logger) *DiagnosticsHandler {
	return &DiagnosticsHandler{
		source: source,
		config: config,
		logger: logger,
	}
}

// GetDiagnostics returns the redacted support dump
// GET /v1/diagnostics
func (h *DiagnosticsHandler) GetDiagnostics(c *gin.Context) {
	diag, err := h.source.Diagnostics(h.config)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, diag)
}
