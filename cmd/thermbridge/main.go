package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"thermbridge/config"
	"thermbridge/internal/api"
	"thermbridge/internal/bridge"
	"thermbridge/internal/coordinator"
	"thermbridge/internal/idgen"
	"thermbridge/internal/logging"
	"thermbridge/internal/mqtt"
	"thermbridge/internal/netatmo"
	"thermbridge/internal/notify"
	"thermbridge/internal/storage"
	"thermbridge/internal/storage/sqlite"
	"thermbridge/internal/token"
)

const (
	shutdownTimeout   = 10 * time.Second
	bootstrapTimeout  = 30 * time.Second
	defaultConfigPath = "config.json"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "thermbridge: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Parse command-line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	useEnv := flag.Bool("env", false, "Load configuration from environment variables")
	flag.Parse()

	// Load configuration
	var cfg *config.Config
	var err error

	if *useEnv {
		cfg, err = config.LoadFromEnv()
	} else {
		cfg, err = config.Load(*configPath)
	}

	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	slog.SetDefault(logger)

	logger.Info("Starting thermbridge",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"homes", cfg.Netatmo.HomeIDs,
	)

	// Initialize database
	db, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	// Vendor client: OAuth token manager feeding the HTTP client, wrapped
	// with call logging.
	tokens := token.NewManager(token.Config{
		ClientID:         cfg.Netatmo.ClientID,
		ClientSecret:     cfg.Netatmo.ClientSecret,
		TokenURL:         cfg.Netatmo.TokenURL,
		SeedRefreshToken: cfg.Netatmo.RefreshToken,
	}, db, logger)

	client := netatmo.NewClient(netatmo.Config{
		BaseURL: cfg.Netatmo.BaseURL,
	}, tokens, logger)

	vendorAPI := logging.NewThermostatAPILogger(client, logger)

	br := bridge.New(vendorAPI, logger)

	// Optional refresh listeners: MQTT state mirror and Telegram alerts.
	var listeners []coordinator.Listener

	if cfg.MQTT.Broker != "" {
		mqttClient, err := mqtt.Connect(cfg.MQTT.Broker, cfg.MQTT.ClientID, logger)
		if err != nil {
			return fmt.Errorf("failed to connect to MQTT broker: %w", err)
		}
		defer mqttClient.Close()

		listeners = append(listeners, mqtt.NewStatePublisher(mqttClient, cfg.MQTT.TopicPrefix, logger))
		logger.Info("MQTT state mirror enabled", "broker", cfg.MQTT.Broker, "prefix", cfg.MQTT.TopicPrefix)
	}

	if cfg.Telegram.BotToken != "" {
		notifier, err := notify.New(cfg.Telegram.BotToken, cfg.Telegram.ChatID, logger)
		if err != nil {
			return fmt.Errorf("failed to create Telegram notifier: %w", err)
		}

		listeners = append(listeners, notifier)
		logger.Info("Telegram alerts enabled", "chat_id", cfg.Telegram.ChatID)
	}

	interval := coordinator.DefaultUpdateInterval
	if cfg.Netatmo.UpdateIntervalSeconds > 0 {
		interval = time.Duration(cfg.Netatmo.UpdateIntervalSeconds) * time.Second
	}

	// Discover homes and set up one polling coordinator per home.
	bootCtx, bootCancel := context.WithTimeout(context.Background(), bootstrapTimeout)
	defer bootCancel()

	if err := br.Bootstrap(bootCtx, cfg.Netatmo.HomeIDs, interval, listeners...); err != nil {
		return fmt.Errorf("failed to bootstrap homes: %w", err)
	}

	for _, home := range br.Homes() {
		logger.Info("Managing home", "home_id", home.ID, "name", home.Name)
	}

	// Webhook identity survives restarts so the vendor-side registration
	// stays valid.
	webhookID, err := loadOrCreateWebhookID(bootCtx, db)
	if err != nil {
		return fmt.Errorf("failed to load webhook credential: %w", err)
	}
	if cfg.Webhook.ExternalURL != "" {
		logger.Info("Webhook endpoint ready",
			"url", fmt.Sprintf("%s/webhook/%s", cfg.Webhook.ExternalURL, webhookID))
	}

	// First refresh before serving so the API starts with data.
	br.RefreshAll(bootCtx)
	br.StartAll()

	router := api.NewRouter(api.RouterConfig{
		Bridge:     br,
		APIKey:     cfg.Security.APIKey,
		WebhookID:  webhookID,
		ConfigDump: cfg.Dump(),
		Logger:     logger,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", "addr", server.Addr)
		serverErrors <- server.ListenAndServe()
	}()

	// Wait for interrupt signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		logger.Info("Starting graceful shutdown", "signal", sig.String())

		br.StopAll()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}

		logger.Info("Graceful shutdown complete")
	}

	return nil
}

func loadOrCreateWebhookID(ctx context.Context, db *sqlite.SQLiteStorage) (string, error) {
	cred, err := db.GetWebhookCredential(ctx)
	if err != nil {
		return "", err
	}
	if cred != nil {
		return cred.ID, nil
	}

	cred = &storage.WebhookCredential{ID: idgen.NewWebhook()}
	if err := db.SaveWebhookCredential(ctx, cred); err != nil {
		return "", err
	}

	return cred.ID, nil
}
