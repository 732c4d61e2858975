// FILE: logkeep/src/internal/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	lconfig "github.com/lixenwraith/config"
)

func defaults() *Config {
	return &Config{
		Ingest: IngestConfig{
			Host:           "0.0.0.0",
			Port:           DefaultSyslogPort,
			MaxPayloadSize: DefaultMaxPayloadSize,
			BufferSize:     DefaultIngestBufferSize,
			Timezone:       "Local",
		},
		Storage: StorageConfig{
			Path:     DefaultStoragePath,
			PoolSize: DefaultPoolSize,
		},
		API: APIConfig{
			Enabled:             true,
			Host:                "127.0.0.1",
			Port:                DefaultAPIPort,
			ReadTimeoutSeconds:  10,
			WriteTimeoutSeconds: 30,
		},
		Query: QueryConfig{
			DefaultWindowHours: 24,
		},
		Stats: StatsConfig{
			WindowHours:      24,
			TopHosts:         8,
			TopMessages:      10,
			MessagePrefixLen: 120,
		},
		Logging: DefaultLogConfig(),
	}
}

func LoadWithCLI(cliArgs []string) (*Config, error) {
	configPath := GetConfigPath()

	cfg, err := lconfig.NewBuilder().
		WithDefaults(defaults()).
		WithEnvPrefix("LOGKEEP_").
		WithFile(configPath).
		WithArgs(cliArgs).
		WithEnvTransform(customEnvTransform).
		WithSources(
			lconfig.SourceCLI,
			lconfig.SourceEnv,
			lconfig.SourceFile,
			lconfig.SourceDefault,
		).
		Build()

	if err != nil {
		if !strings.Contains(err.Error(), "not found") {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	finalConfig := &Config{}
	if err := cfg.Scan(finalConfig); err != nil {
		return nil, fmt.Errorf("failed to scan config: %w", err)
	}

	return finalConfig, finalConfig.validate()
}

func customEnvTransform(path string) string {
	env := strings.ReplaceAll(path, ".", "_")
	env = strings.ToUpper(env)
	env = "LOGKEEP_" + env
	return env
}

func GetConfigPath() string {
	if configFile := os.Getenv("LOGKEEP_CONFIG_FILE"); configFile != "" {
		if filepath.IsAbs(configFile) {
			return configFile
		}
		if configDir := os.Getenv("LOGKEEP_CONFIG_DIR"); configDir != "" {
			return filepath.Join(configDir, configFile)
		}
		return configFile
	}

	if configDir := os.Getenv("LOGKEEP_CONFIG_DIR"); configDir != "" {
		return filepath.Join(configDir, "logkeep.toml")
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".config", "logkeep.toml")
	}

	return "logkeep.toml"
}
