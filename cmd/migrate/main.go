package main

import (
	"fmt"
	"os"
	"strconv"

	"go.uber.org/zap"

	"github.com/jafarshop/easyorders/internal/config"
	"github.com/jafarshop/easyorders/internal/logger"
	"github.com/jafarshop/easyorders/internal/migrations"
	"github.com/jafarshop/easyorders/internal/repository/postgres"
)

func usage() {
	fmt.Println("Usage: go run cmd/migrate/main.go <up|down|steps N|version|force VERSION>")
	fmt.Println("Example: go run cmd/migrate/main.go up")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	command := os.Args[1]

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

	m, err := migrations.New(db, log)
	if err != nil {
		db.Close()
		fmt.Fprintf(os.Stderr, "Failed to create migrator: %v\n", err)
		os.Exit(1)
	}
	// closes db as well
	defer m.Close()

	if err := run(m, command, os.Args[2:]); err != nil {
		log.Error("Migration failed", zap.String("command", command), zap.Error(err))
		os.Exit(1)
	}
}

func run(m *migrations.Migrator, command string, args []string) error {
	switch command {
	case "up":
		return m.Up()
	case "down":
		return m.Down()
	case "steps":
		n, err := intArg(args)
		if err != nil {
			return err
		}
		return m.Steps(n)
	case "force":
		version, err := intArg(args)
		if err != nil {
			return err
		}
		return m.Force(version)
	case "version":
		version, dirty, err := m.Version()
		if err != nil {
			return err
		}
		fmt.Printf("Version: %d (dirty: %t)\n", version, dirty)
		return nil
	default:
		usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func intArg(args []string) (int, error) {
	if len(args) < 1 {
		return 0, fmt.Errorf("missing numeric argument")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("invalid number %q: %w", args[0], err)
	}
	return n, nil
}
