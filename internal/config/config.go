// Package config loads hyperion settings with the precedence
// flags > environment > hyperion.yaml > defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Defaults. Flag definitions in the CLI mirror these.
const (
	DefaultDBPath         = "hyperion.db"
	DefaultLeaseSeconds   = 300
	DefaultPollIntervalMs = 500
	DefaultMaxAttempts    = 5
	DefaultWorkerCount    = 3
	DefaultAgentCount     = 3
	DefaultCleanupTTLSecs = 7 * 24 * 60 * 60
	DefaultAgentModel     = "gpt-5-mini"

	configFileName = "hyperion.yaml"
)

// Config is the resolved runtime configuration.
type Config struct {
	DBPath         string `yaml:"db_path"`
	LeaseSeconds   int64  `yaml:"lease_seconds"`
	PollIntervalMs int64  `yaml:"poll_interval_ms"`
	MaxAttempts    int64  `yaml:"max_attempts"`
	WorkerCount    int    `yaml:"worker_count"`
	AgentCount     int    `yaml:"agent_count"`
	CleanupTTLSecs int64  `yaml:"cleanup_ttl_secs"`
	AgentModel     string `yaml:"agent_model"`
}

func newViper(dir string) *viper.Viper {
	v := viper.New()
	v.SetDefault("db_path", DefaultDBPath)
	v.SetDefault("lease_seconds", DefaultLeaseSeconds)
	v.SetDefault("poll_interval_ms", DefaultPollIntervalMs)
	v.SetDefault("max_attempts", DefaultMaxAttempts)
	v.SetDefault("worker_count", DefaultWorkerCount)
	v.SetDefault("agent_count", DefaultAgentCount)
	v.SetDefault("cleanup_ttl_secs", DefaultCleanupTTLSecs)
	v.SetDefault("agent_model", DefaultAgentModel)

	v.SetEnvPrefix("HYPERION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName(strings.TrimSuffix(configFileName, ".yaml"))
	v.SetConfigType("yaml")
	if dir == "" {
		dir = "."
	}
	v.AddConfigPath(dir)
	return v
}

// Load resolves configuration from dir (the working directory when empty).
// A missing config file is not an error; a malformed one is.
func Load(dir string) (*Config, error) {
	v := newViper(dir)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{
		DBPath:         v.GetString("db_path"),
		LeaseSeconds:   v.GetInt64("lease_seconds"),
		PollIntervalMs: v.GetInt64("poll_interval_ms"),
		MaxAttempts:    v.GetInt64("max_attempts"),
		WorkerCount:    v.GetInt("worker_count"),
		AgentCount:     v.GetInt("agent_count"),
		CleanupTTLSecs: v.GetInt64("cleanup_ttl_secs"),
		AgentModel:     v.GetString("agent_model"),
	}
	return cfg, nil
}

// WriteStarterConfig writes a commented hyperion.yaml with the defaults into
// dir. It refuses to overwrite an existing file.
func WriteStarterConfig(dir string) (string, error) {
	if dir == "" {
		dir = "."
	}
	path := dir + string(os.PathSeparator) + configFileName
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("%s already exists", path)
	}

	starter := Config{
		DBPath:         DefaultDBPath,
		LeaseSeconds:   DefaultLeaseSeconds,
		PollIntervalMs: DefaultPollIntervalMs,
		MaxAttempts:    DefaultMaxAttempts,
		WorkerCount:    DefaultWorkerCount,
		AgentCount:     DefaultAgentCount,
		CleanupTTLSecs: DefaultCleanupTTLSecs,
		AgentModel:     DefaultAgentModel,
	}
	body, err := yaml.Marshal(&starter)
	if err != nil {
		return "", err
	}
	header := "# hyperion configuration. Environment variables with the HYPERION_\n" +
		"# prefix override these values (e.g. HYPERION_DB_PATH).\n"
	if err := os.WriteFile(path, append([]byte(header), body...), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}
