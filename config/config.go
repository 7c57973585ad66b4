// Package config loads the broker's YAML configuration file: listen
// address, idle-lease duration, routing queue size, and a table of named LSP
// server launch entries. The routing service launches whatever command a
// session asks for; it does not check it against that table.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig is one entry in the servers map: how to launch an LSP
// process for a given project type.
type ServerConfig struct {
	Command               string                 `yaml:"command"`
	Args                  []string               `yaml:"args"`
	InitializationOptions map[string]interface{} `yaml:"initialization_options,omitempty"`
}

// Config is the broker's top-level configuration.
type Config struct {
	ListenAddr  string                  `yaml:"listen_addr"`
	IdleLease   time.Duration           `yaml:"idle_lease"`
	QueueSize   int                     `yaml:"queue_size"`
	LogLevel    string                  `yaml:"log_level"`
	Servers     map[string]ServerConfig `yaml:"servers"`
}

// Default returns the configuration used when no file is supplied.
func Default() Config {
	return Config{
		ListenAddr: ":7777",
		IdleLease:  10 * time.Minute,
		QueueSize:  256,
		LogLevel:   "info",
		Servers:    map[string]ServerConfig{},
	}
}

// Load reads and parses a YAML config file at path, applying environment
// variable overrides the same way the teacher's ApplyEnvOverrides does for
// args (${VAR_NAME} expansion) plus a handful of broker-specific overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	applyEnvOverrides(&cfg)
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.IdleLease <= 0 {
		cfg.IdleLease = 10 * time.Minute
	}
	return cfg, nil
}

// applyEnvOverrides mutates cfg based on environment variables, mirroring
// the teacher's ApplyEnvOverrides: LSP_BROKER_LISTEN_ADDR and
// LSP_BROKER_IDLE_LEASE override their respective fields directly, and
// ${VAR_NAME} placeholders in every server's args are expanded against the
// process environment so deployments can parameterize launch commands
// without templating the YAML file itself.
func applyEnvOverrides(cfg *Config) {
	if addr := strings.TrimSpace(os.Getenv("LSP_BROKER_LISTEN_ADDR")); addr != "" {
		cfg.ListenAddr = addr
	}
	if lease := strings.TrimSpace(os.Getenv("LSP_BROKER_IDLE_LEASE")); lease != "" {
		if d, err := time.ParseDuration(lease); err == nil {
			cfg.IdleLease = d
		}
	}
	if level := strings.TrimSpace(os.Getenv("LSP_BROKER_LOG_LEVEL")); level != "" {
		cfg.LogLevel = level
	}

	for name, server := range cfg.Servers {
		server.Args = expandEnvVarsInArgs(server.Args)
		cfg.Servers[name] = server
	}
}

func expandEnvVarsInArgs(args []string) []string {
	result := make([]string, len(args))
	for i, arg := range args {
		result[i] = os.Expand(arg, func(key string) string {
			if val, exists := os.LookupEnv(key); exists {
				return val
			}
			return "${" + key + "}"
		})
	}
	return result
}
