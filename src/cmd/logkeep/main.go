// FILE: logkeep/src/cmd/logkeep/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"logkeep/src/internal/config"
	"logkeep/src/internal/version"

	"github.com/lixenwraith/log"
)

var logger *log.Logger

func main() {
	if err := parseFlags(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *showVersion {
		fmt.Println(version.String())
		os.Exit(0)
	}

	// Set config file environment if specified
	if *configFile != "" {
		os.Setenv("LOGKEEP_CONFIG_FILE", *configFile)
	}

	cfg, err := config.LoadWithCLI(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// CLI logging overrides take precedence over the config file
	if *logOutput != "" {
		cfg.Logging.Output = *logOutput
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	if err := initializeLogger(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer shutdownLogger()

	logger.Info("msg", "logkeep starting",
		"version", version.String(),
		"config_file", *configFile,
		"log_output", cfg.Logging.Output)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	svc, st, err := bootstrap(ctx, cfg)
	if err != nil {
		logger.Error("msg", "Failed to start", "error", err)
		shutdownLogger()
		os.Exit(1)
	}

	<-sigChan
	logger.Info("msg", "Shutdown signal received, starting graceful shutdown...")

	// Stop the API and the ingestion path, then flush storage
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		svc.Shutdown()
		st.Close()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("msg", "Shutdown complete")
	case <-shutdownCtx.Done():
		logger.Error("msg", "Shutdown timeout exceeded - forcing exit")
		os.Exit(1)
	}
}

func shutdownLogger() {
	if logger != nil {
		if err := logger.Shutdown(2 * time.Second); err != nil {
			fmt.Fprintf(os.Stderr, "Logger shutdown error: %v\n", err)
		}
	}
}
