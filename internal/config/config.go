// Package config loads the coordinator's and a region's configuration from
// a YAML file (spec §6's option table), with environment-variable
// overrides read the way torua's cmd/coordinator and cmd/node read
// COORDINATOR_ADDR/NODE_ID: plain getenv/mustGetenv helpers, no framework.
package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// RetryConfig is spec §6's `handoff.retry.{base,cap,max}` option group.
type RetryConfig struct {
	BaseMs int `yaml:"base"`
	CapMs  int `yaml:"cap"`
	Max    int `yaml:"max"`
}

// MonitorConfig is spec §6's `monitor.*` option group.
type MonitorConfig struct {
	IntervalMs       int `yaml:"intervalMs"`
	TimeoutMs        int `yaml:"timeoutMs"`
	FailureThreshold int `yaml:"failureThreshold"`
}

// HandoffConfig is spec §6's `handoff.*` option group.
type HandoffConfig struct {
	PrepareTimeoutMs int         `yaml:"prepareTimeoutMs"`
	CommitTimeoutMs  int         `yaml:"commitTimeoutMs"`
	OverallTimeoutMs int         `yaml:"overallTimeoutMs"`
	Retry            RetryConfig `yaml:"retry"`
}

// BufferConfig is spec §6's `buffer.*` option group.
type BufferConfig struct {
	MaxPerRegion int `yaml:"maxPerRegion"`
}

// LogConfig is spec §6's `log.backend` option, describing the durable
// transaction log backend.
type LogConfig struct {
	Backend   string `yaml:"backend"` // "memory" or "etcd"
	EtcdAddrs []string `yaml:"etcdAddrs"`
}

// Config is the full recognized option surface for the coordinator
// process. A region process only needs its own name, listen address, and
// the store backend descriptor, read directly via env vars in cmd/region.
type Config struct {
	Regions       map[string]string `yaml:"regions"`
	GlobalReplica string            `yaml:"globalReplica"`
	Log           LogConfig         `yaml:"log"`
	Monitor       MonitorConfig     `yaml:"monitor"`
	Handoff       HandoffConfig     `yaml:"handoff"`
	Buffer        BufferConfig      `yaml:"buffer"`
}

// Defaults returns the spec §6 default values.
func Defaults() Config {
	return Config{
		Regions: map[string]string{},
		Log:     LogConfig{Backend: "memory"},
		Monitor: MonitorConfig{
			IntervalMs:       5000,
			TimeoutMs:        3000,
			FailureThreshold: 3,
		},
		Handoff: HandoffConfig{
			PrepareTimeoutMs: 5000,
			CommitTimeoutMs:  5000,
			OverallTimeoutMs: 30000,
			Retry:            RetryConfig{BaseMs: 100, CapMs: 2000, Max: 3},
		},
		Buffer: BufferConfig{MaxPerRegion: 1000},
	}
}

// Load reads a YAML config file at path, overlaying it onto Defaults(). An
// empty path or a missing file is not an error: Load then returns
// Defaults() unchanged. Load reads no environment variables.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// MonitorInterval returns Monitor.IntervalMs as a time.Duration.
func (c Config) MonitorInterval() time.Duration {
	return time.Duration(c.Monitor.IntervalMs) * time.Millisecond
}

// MonitorTimeout returns Monitor.TimeoutMs as a time.Duration.
func (c Config) MonitorTimeout() time.Duration {
	return time.Duration(c.Monitor.TimeoutMs) * time.Millisecond
}

// PrepareTimeout returns Handoff.PrepareTimeoutMs as a time.Duration.
func (c Config) PrepareTimeout() time.Duration {
	return time.Duration(c.Handoff.PrepareTimeoutMs) * time.Millisecond
}

// CommitTimeout returns Handoff.CommitTimeoutMs as a time.Duration.
func (c Config) CommitTimeout() time.Duration {
	return time.Duration(c.Handoff.CommitTimeoutMs) * time.Millisecond
}

// OverallTimeout returns Handoff.OverallTimeoutMs as a time.Duration.
func (c Config) OverallTimeout() time.Duration {
	return time.Duration(c.Handoff.OverallTimeoutMs) * time.Millisecond
}

// Getenv returns the value of env var key, or def if unset or empty.
func Getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// MustGetenv returns the value of env var key, fataling the process if it
// is unset or empty. Matches torua's cmd/node mustGetenv.
func MustGetenv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("config: required environment variable %s is not set", key)
	}
	return v
}
