// FILE: logkeep/src/cmd/logkeep/flags.go
package main

import (
	"flag"
	"fmt"
	"os"
)

// Command-line flags
var (
	// General flags
	configFile  = flag.String("config", "", "Config file path")
	showVersion = flag.Bool("version", false, "Show version information")

	// Logging flags
	logOutput = flag.String("log-output", "", "Log output: file, stdout, stderr, both, none (overrides config)")
	logLevel  = flag.String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
	logDir    = flag.String("log-dir", "", "Log directory (when using file output)")
)

func init() {
	flag.Usage = customUsage
}

func customUsage() {
	fmt.Fprintf(os.Stderr, "logkeep - Syslog Collector and Query Service\n\n")
	fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "Options:\n")

	fmt.Fprintf(os.Stderr, "\nGeneral:\n")
	fmt.Fprintf(os.Stderr, "  -config string\n\tConfig file path\n")
	fmt.Fprintf(os.Stderr, "  -version\n\tShow version information\n")

	fmt.Fprintf(os.Stderr, "\nLogging:\n")
	fmt.Fprintf(os.Stderr, "  -log-output string\n\tLog output: file, stdout, stderr, both, none (overrides config)\n")
	fmt.Fprintf(os.Stderr, "  -log-level string\n\tLog level: debug, info, warn, error (overrides config)\n")
	fmt.Fprintf(os.Stderr, "  -log-dir string\n\tLog directory (when using file output)\n")

	fmt.Fprintf(os.Stderr, "\nExamples:\n")
	fmt.Fprintf(os.Stderr, "  # Run with defaults: syslog on udp/5514, API on 127.0.0.1:8080\n")
	fmt.Fprintf(os.Stderr, "  %s\n\n", os.Args[0])

	fmt.Fprintf(os.Stderr, "  # Run with custom config and debug logging\n")
	fmt.Fprintf(os.Stderr, "  %s --config /etc/logkeep.toml --log-level debug\n\n", os.Args[0])

	fmt.Fprintf(os.Stderr, "Environment Variables:\n")
	fmt.Fprintf(os.Stderr, "  LOGKEEP_CONFIG_FILE  Config file path\n")
	fmt.Fprintf(os.Stderr, "  LOGKEEP_CONFIG_DIR   Config directory\n")
	fmt.Fprintf(os.Stderr, "  LOGKEEP_*            Override any config key, e.g. LOGKEEP_INGEST_PORT\n")
}

func parseFlags() error {
	flag.Parse()

	switch *logOutput {
	case "", "file", "stdout", "stderr", "both", "none":
	default:
		return fmt.Errorf("invalid log-output: %s", *logOutput)
	}

	switch *logLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level: %s", *logLevel)
	}

	return nil
}
