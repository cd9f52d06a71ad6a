package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jafarshop/easyorders/internal/config"
	"github.com/jafarshop/easyorders/internal/easyorders"
	"github.com/jafarshop/easyorders/internal/logger"
	"github.com/jafarshop/easyorders/internal/ratelimit"
	"github.com/jafarshop/easyorders/internal/repository/postgres"
	"github.com/jafarshop/easyorders/internal/service"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run cmd/create-store/main.go <store-name> [easyorders-api-key] [webhook-secret]")
		fmt.Println("Example: go run cmd/create-store/main.go \"Amman Outlet\" \"eo-api-key\"")
		os.Exit(1)
	}

	input := service.StoreInput{Name: &os.Args[1]}
	if len(os.Args) > 2 && os.Args[2] != "" {
		input.APIKey = &os.Args[2]
	}
	if len(os.Args) > 3 && os.Args[3] != "" {
		input.WebhookSecret = &os.Args[3]
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Connect to database
	db, err := postgres.NewConnection(cfg.Database, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	repos := postgres.NewRepositories(db, log)
	gateway := easyorders.NewClient(cfg.EasyOrders, ratelimit.NewPerMinute(cfg.EasyOrders.RateLimitPerMinute), log)
	stores := service.NewStoreService(repos, gateway, log)

	store, secret, err := stores.Create(context.Background(), input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create store: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Store created successfully!\n\n")
	fmt.Printf("Store ID: %s\n", store.ID.String())
	fmt.Printf("Store Name: %s\n", store.Name)
	fmt.Printf("Webhook Secret: %s\n", secret)
	fmt.Printf("\nIMPORTANT: Save this secret securely! You won't be able to see it again.\n")
	fmt.Printf("\nConfigure the EasyOrders webhook to send it in the %q header.\n", service.SecretHeader)
}
