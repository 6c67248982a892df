package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"thermbridge/config"
	"thermbridge/internal/netatmo"
	"thermbridge/internal/storage/sqlite"
	"thermbridge/internal/token"
)

// One-shot connectivity check: refreshes the OAuth token, lists the homes
// on the account and fetches live status for each. Shares the token store
// with the service so the vendor-side refresh token rotation stays on one
// chain.
func main() {
	// Parse command line flags
	configPath := flag.String("config", "config.json", "Path to configuration file")
	verbose := flag.Bool("verbose", false, "Log vendor API calls")
	flag.Parse()

	// Load configuration
	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logLevel := slog.LevelWarn
	if *verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	db, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	tokens := token.NewManager(token.Config{
		ClientID:         cfg.Netatmo.ClientID,
		ClientSecret:     cfg.Netatmo.ClientSecret,
		TokenURL:         cfg.Netatmo.TokenURL,
		SeedRefreshToken: cfg.Netatmo.RefreshToken,
	}, db, logger)

	client := netatmo.NewClient(netatmo.Config{
		BaseURL: cfg.Netatmo.BaseURL,
	}, tokens, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	fmt.Printf("Testing Netatmo Energy API...\n")
	fmt.Printf("Base URL: %s\n", cfg.Netatmo.BaseURL)
	fmt.Printf("Required scopes: %s\n\n", token.Scopes)

	// Step 1: token refresh
	fmt.Printf("Refreshing access token... ")
	if err := tokens.EnsureValid(ctx); err != nil {
		fmt.Printf("\n")
		log.Fatalf("❌ Token refresh failed: %v", err)
	}
	fmt.Printf("✅\n")

	// Step 2: account topology
	fmt.Printf("Fetching homes data... ")
	account, err := client.GetHomesData(ctx)
	if err != nil {
		fmt.Printf("\n")
		log.Fatalf("❌ GetHomesData failed: %v", err)
	}
	fmt.Printf("✅ %d home(s)\n\n", len(account.Homes))

	if len(account.Homes) == 0 {
		fmt.Printf("No homes on this account. Check the app's authorized scopes.\n")
		return
	}

	// Step 3: live status per home
	for _, home := range account.Homes {
		fmt.Printf("Home %s (%s)\n", home.ID, home.Name)
		fmt.Printf("  rooms: %d, modules: %d, schedules: %d\n",
			len(home.Rooms), len(home.Modules), len(home.Schedules))

		status, err := client.GetHomeStatus(ctx, home.ID)
		if err != nil {
			log.Fatalf("❌ GetHomeStatus failed for %s: %v", home.ID, err)
		}

		for _, room := range status.Home.Rooms {
			name := room.ID
			for _, r := range home.Rooms {
				if r.ID == room.ID {
					name = r.Name
					break
				}
			}
			fmt.Printf("  room %-20s %.1f°C (setpoint %.1f°C, mode %s)\n",
				name, room.ThermMeasuredTemperature, room.ThermSetpointTemperature, room.ThermSetpointMode)
		}
		fmt.Printf("\n")
	}

	fmt.Printf("✅ Success! Vendor API reachable and credentials valid.\n")
}

func loadConfig(path string) (*config.Config, error) {
	// Try to load from file first
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, config.ErrConfigFileNotFound) {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// If file doesn't exist, try environment variables
	fmt.Printf("Config file not found at %s, trying environment variables...\n", path)
	cfg, err = config.LoadFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	return cfg, nil
}
