package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// NoiseFilter flags requests that should stay out of the request log:
// health probes and the background noise of internet scanners. It must be
// registered after Logging so its post-handler check runs first.
func NoiseFilter(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		// Authenticated traffic is always logged.
		if c.GetBool("authenticated") {
			return
		}

		status := c.Writer.Status()

		// Load balancer and uptime probes hammer /health; keep them out
		// of the log when they succeed.
		if path == "/health" && status == http.StatusOK {
			c.Set("skip_logging", true)
			return
		}

		// Scanners probing for admin panels and dotfiles.
		if status == http.StatusNotFound && isScannerPath(path) {
			c.Set("skip_logging", true)
			logger.Debug("Scanner request filtered",
				"path", path,
				"method", method,
				"status", status,
				"client_ip", c.ClientIP())
			return
		}

		if status == http.StatusMethodNotAllowed {
			c.Set("skip_logging", true)
		}
	}
}

// isScannerPath checks if a path is commonly used by scanners
func isScannerPath(path string) bool {
	scannerPaths := []string{
		"/admin",
		"/phpmyadmin",
		"/wp-admin",
		"/wp-login",
		"/.env",
		"/.git",
		"/.aws",
		"/config",
		"/backup",
		"/console",
		"/actuator",
		"/cgi-bin",
		"/robots.txt",
		"/favicon.ico",
		"/sitemap.xml",
	}

	lowercasePath := strings.ToLower(path)
	for _, scannerPath := range scannerPaths {
		if strings.HasPrefix(lowercasePath, scannerPath) {
			return true
		}
	}

	scannerExtensions := []string{".php", ".asp", ".aspx", ".jsp", ".bak", ".sql", ".zip"}
	for _, ext := range scannerExtensions {
		if strings.HasSuffix(lowercasePath, ext) {
			return true
		}
	}

	return false
}
