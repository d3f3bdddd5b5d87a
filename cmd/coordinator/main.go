package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adidier/agents/internal/config"
	"github.com/Adidier/agents/internal/logger"
)

func main() {
	// 1. Resolve config path
	path := os.Getenv("COORDINATOR_CONFIG")
	if path == "" {
		path = config.DefaultPath
	}

	// 2. Load configuration, falling back to defaults when no file exists
	cfg, err := loadConfig(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// 3. Build the root logger
	log, err := logger.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// 4. Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := run(ctx, cfg, log, nil); err != nil {
		log.Error().Err(err).Msg("coordinator stopped with error")
		os.Exit(1)
	}
}

// loadConfig reads path, applies environment overrides and validates the result.
// A missing file is not an error.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		cfg = config.Default()
	}

	cfg.ApplyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
