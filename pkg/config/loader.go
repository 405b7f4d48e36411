package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads a configuration file, YAML or JSON by extension (unknown
// extensions default to YAML), and fills unset fields with defaults.
func Load(path string) (Config, error) {
	if strings.HasSuffix(path, ".json") {
		return LoadJSON(path)
	}
	return LoadYAML(path)
}

// LoadYAML reads a YAML configuration file.
func LoadYAML(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg.WithDefaults(), nil
}

// LoadJSON reads a JSON configuration file.
func LoadJSON(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg.WithDefaults(), nil
}

// LoadWithEnv loads a file and then applies environment overrides of the
// form PREFIX_HOST, PREFIX_PORT, PREFIX_THREADS, PREFIX_CONNS_PER_THREAD,
// PREFIX_QUEUE_CAPACITY and PREFIX_DIAL_TIMEOUT.
func LoadWithEnv(path, prefix string) (Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return Config{}, err
	}
	return ApplyEnvOverrides(prefix, cfg)
}

// ApplyEnvOverrides overlays environment variables onto cfg.
func ApplyEnvOverrides(prefix string, cfg Config) (Config, error) {
	if prefix == "" {
		prefix = "REDIX"
	}

	if v := os.Getenv(prefix + "_HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv(prefix + "_PORT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: %s_PORT: %w", prefix, err)
		}
		cfg.Port = n
	}
	if v := os.Getenv(prefix + "_THREADS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: %s_THREADS: %w", prefix, err)
		}
		cfg.Threads = n
	}
	if v := os.Getenv(prefix + "_CONNS_PER_THREAD"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: %s_CONNS_PER_THREAD: %w", prefix, err)
		}
		cfg.ConnsPerThread = n
	}
	if v := os.Getenv(prefix + "_QUEUE_CAPACITY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: %s_QUEUE_CAPACITY: %w", prefix, err)
		}
		cfg.QueueCapacity = n
	}
	if v := os.Getenv(prefix + "_DIAL_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: %s_DIAL_TIMEOUT: %w", prefix, err)
		}
		cfg.DialTimeout = d
	}
	return cfg, nil
}
