// FILE: logkeep/src/cmd/logkeep/bootstrap.go
package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"logkeep/src/internal/config"
	"logkeep/src/internal/ingest"
	"logkeep/src/internal/query"
	"logkeep/src/internal/server"
	"logkeep/src/internal/service"
	"logkeep/src/internal/store"
	"logkeep/src/internal/syslog"
	"logkeep/src/internal/version"

	"github.com/lixenwraith/log"
)

// bootstrap assembles the collector: store, UDP source, writer service,
// and (when enabled) the query API.
func bootstrap(ctx context.Context, cfg *config.Config) (*service.Service, *store.Store, error) {
	st, err := store.Open(store.Config{
		Path:     cfg.Storage.Path,
		PoolSize: int(cfg.Storage.PoolSize),
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open store: %w", err)
	}

	location, err := cfg.Ingest.Location()
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	parser := syslog.NewParser(location)

	source, err := ingest.NewUDPSource(&cfg.Ingest, parser, logger)
	if err != nil {
		st.Close()
		return nil, nil, fmt.Errorf("failed to create UDP source: %w", err)
	}

	svc := service.New(ctx, st, source, logger)
	if err := svc.Start(); err != nil {
		st.Close()
		return nil, nil, fmt.Errorf("failed to start collector: %w", err)
	}

	if cfg.API.Enabled {
		engine := query.New(st, hoursToDuration(cfg.Query.DefaultWindowHours), logger)

		api, err := server.New(&cfg.API, cfg.Stats, engine, st, svc, logger)
		if err != nil {
			svc.Shutdown()
			st.Close()
			return nil, nil, fmt.Errorf("failed to create query API: %w", err)
		}
		if err := api.Start(ctx); err != nil {
			svc.Shutdown()
			st.Close()
			return nil, nil, err
		}
	}

	logger.Info("msg", "logkeep started",
		"version", version.Short(),
		"syslog_port", cfg.Ingest.Port,
		"api_enabled", cfg.API.Enabled,
		"storage_path", cfg.Storage.Path)

	return svc, st, nil
}

// initializeLogger sets up the logger based on configuration
func initializeLogger(cfg *config.Config) error {
	logger = log.NewLogger()

	logging := cfg.Logging
	if logging == nil {
		logging = config.DefaultLogConfig()
	}

	var configArgs []string

	levelValue, err := parseLogLevel(logging.Level)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	configArgs = append(configArgs, fmt.Sprintf("level=%d", levelValue))

	switch logging.Output {
	case "none":
		configArgs = append(configArgs, "disable_file=true", "enable_stdout=false")

	case "stdout":
		configArgs = append(configArgs,
			"disable_file=true",
			"enable_stdout=true",
			"stdout_target=stdout")

	case "stderr":
		configArgs = append(configArgs,
			"disable_file=true",
			"enable_stdout=true",
			"stdout_target=stderr")

	case "file":
		configArgs = append(configArgs, "enable_stdout=false")
		configureFileLogging(&configArgs, logging)

	case "both":
		configArgs = append(configArgs, "enable_stdout=true")
		configureFileLogging(&configArgs, logging)
		configureConsoleTarget(&configArgs, logging)

	default:
		return fmt.Errorf("invalid log output mode: %s", logging.Output)
	}

	if logging.Console != nil && logging.Console.Format != "" {
		configArgs = append(configArgs, fmt.Sprintf("format=%s", logging.Console.Format))
	}

	if err := logger.ApplyConfigString(configArgs...); err != nil {
		return err
	}
	return logger.Start()
}

// configureFileLogging sets up file-based logging parameters
func configureFileLogging(configArgs *[]string, logging *config.LogConfig) {
	if logging.File == nil {
		return
	}

	directory := logging.File.Directory
	if *logDir != "" {
		directory = *logDir
	}

	*configArgs = append(*configArgs,
		fmt.Sprintf("directory=%s", directory),
		fmt.Sprintf("name=%s", logging.File.Name),
		fmt.Sprintf("max_size_mb=%d", logging.File.MaxSizeMB),
		fmt.Sprintf("max_total_size_mb=%d", logging.File.MaxTotalSizeMB))

	if logging.File.RetentionHours > 0 {
		*configArgs = append(*configArgs,
			fmt.Sprintf("retention_period_hrs=%.1f", logging.File.RetentionHours))
	}
}

// configureConsoleTarget sets up console output parameters
func configureConsoleTarget(configArgs *[]string, logging *config.LogConfig) {
	target := "stderr"

	if logging.Console != nil && logging.Console.Target != "" {
		target = logging.Console.Target
	}

	if target == "split" {
		*configArgs = append(*configArgs, "stdout_split_mode=true")
		*configArgs = append(*configArgs, "stdout_target=split")
	} else {
		*configArgs = append(*configArgs, fmt.Sprintf("stdout_target=%s", target))
	}
}

func parseLogLevel(level string) (int, error) {
	switch strings.ToLower(level) {
	case "debug":
		return int(log.LevelDebug), nil
	case "info":
		return int(log.LevelInfo), nil
	case "warn", "warning":
		return int(log.LevelWarn), nil
	case "error":
		return int(log.LevelError), nil
	default:
		return 0, fmt.Errorf("unknown log level: %s", level)
	}
}

func hoursToDuration(hours int64) time.Duration {
	return time.Duration(hours) * time.Hour
}
