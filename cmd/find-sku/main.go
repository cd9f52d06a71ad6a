package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/jafarshop/easyorders/internal/config"
	"github.com/jafarshop/easyorders/internal/easyorders"
	"github.com/jafarshop/easyorders/internal/logger"
	"github.com/jafarshop/easyorders/internal/ratelimit"
	"github.com/jafarshop/easyorders/internal/repository/postgres"
)

// maxPages bounds the search when the store keeps returning products
const maxPages = 200

func main() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: go run cmd/find-sku/main.go <store-id> <sku>")
		fmt.Println("Example: go run cmd/find-sku/main.go 4f9c1a2e-... \"SCM 8502\"")
		os.Exit(1)
	}

	storeID, err := uuid.Parse(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid store ID: %v\n", err)
		os.Exit(1)
	}
	targetSKU := os.Args[2]

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

	db, err := postgres.NewConnection(cfg.Database, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx := context.Background()
	repos := postgres.NewRepositories(db, log)

	store, err := repos.Store.GetByID(ctx, storeID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load store: %v\n", err)
		os.Exit(1)
	}

	client := easyorders.NewClient(cfg.EasyOrders, ratelimit.NewPerMinute(cfg.EasyOrders.RateLimitPerMinute), log)

	fmt.Printf("Searching for SKU: %s in store %s\n\n", targetSKU, store.Name)

	var found *easyorders.Product
	checked := 0
	for page := 1; page <= maxPages && found == nil; page++ {
		products, err := client.FetchProductList(ctx, store, page)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to fetch products: %v\n", err)
			os.Exit(1)
		}
		if len(products) == 0 {
			break
		}

		for i := range products {
			for _, sku := range products[i].SKUs() {
				if sku == targetSKU {
					found = &products[i]
					break
				}
			}
			if found != nil {
				break
			}
		}

		checked += len(products)
		if found == nil {
			fmt.Printf("Searching... (checked %d products so far)\n", checked)
		}
	}

	if found == nil {
		fmt.Printf("SKU '%s' not found in the EasyOrders store.\n", targetSKU)
		os.Exit(1)
	}

	fmt.Printf("Found SKU!\n\n")
	fmt.Printf("Product ID: %s\n", found.ID.Value)
	fmt.Printf("Product Name: %s\n", found.Name)
	if found.Price.Valid {
		fmt.Printf("Price: %s\n", found.Price.Decimal.StringFixed(2))
	}

	stock, err := repos.Catalog.FindStockBySKU(ctx, targetSKU, nil)
	if err != nil {
		fmt.Printf("\nLocal catalog: not resolved (%v)\n", err)
		fmt.Printf("Orders containing this SKU will fail validation until a stock row uses it.\n")
		os.Exit(1)
	}

	fmt.Printf("\nLocal catalog:\n")
	fmt.Printf("  Stock ID: %s\n", stock.ID)
	fmt.Printf("  Quantity: %d\n", stock.Quantity)
	fmt.Printf("  Price: %s\n", stock.TotalPrice.StringFixed(2))
	fmt.Printf("  Sellable: %t\n", stock.IsSellable())
}
