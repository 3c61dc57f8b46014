// Package config loads the device configuration: built-in defaults, then
// an optional YAML file, then CARENOTE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/kazu-apps/carenote-sync/internal/remote"
	"github.com/kazu-apps/carenote-sync/internal/retrypolicy"
	"github.com/kazu-apps/carenote-sync/internal/scheduler"
	"github.com/kazu-apps/carenote-sync/internal/syncengine"
)

const (
	EnvPrefix   = "CARENOTE_"
	maxFileSize = 1 << 20
)

const defaults = `
device:
  id: ""
  data_dir: ""
log:
  level: info
  dev: false
server:
  addr: localhost:8443
  token: ""
  ca_cert: ""
  plaintext: false
  rate_limit: 10
  burst: 5
sync:
  interval: 15m
  jitter_percent: 10
  run_on_start: true
  workers: 4
  page_size: 200
  push_batch: 500
  retention: 720h
retry:
  max_attempts: 4
  base_delay: 200ms
  max_delay: 5s
  call_timeout: 15s
metrics:
  addr: ""
`

// Config is the device configuration.
type Config struct {
	Device  DeviceConfig  `koanf:"device"`
	Log     LogConfig     `koanf:"log"`
	Server  ServerConfig  `koanf:"server"`
	Sync    SyncConfig    `koanf:"sync"`
	Retry   RetryConfig   `koanf:"retry"`
	Metrics MetricsConfig `koanf:"metrics"`
}

type DeviceConfig struct {
	ID      string `koanf:"id"`
	DataDir string `koanf:"data_dir"`
}

type LogConfig struct {
	Level string `koanf:"level"`
	Dev   bool   `koanf:"dev"`
}

type ServerConfig struct {
	Addr      string  `koanf:"addr"`
	Token     string  `koanf:"token"`
	CACert    string  `koanf:"ca_cert"`
	Plaintext bool    `koanf:"plaintext"`
	RateLimit float64 `koanf:"rate_limit"`
	Burst     int     `koanf:"burst"`
}

type SyncConfig struct {
	Interval      time.Duration `koanf:"interval"`
	JitterPercent uint64        `koanf:"jitter_percent"`
	RunOnStart    bool          `koanf:"run_on_start"`
	Workers       int           `koanf:"workers"`
	PageSize      int           `koanf:"page_size"`
	PushBatch     int           `koanf:"push_batch"`
	Retention     time.Duration `koanf:"retention"`
}

type RetryConfig struct {
	MaxAttempts int           `koanf:"max_attempts"`
	BaseDelay   time.Duration `koanf:"base_delay"`
	MaxDelay    time.Duration `koanf:"max_delay"`
	CallTimeout time.Duration `koanf:"call_timeout"`
}

// MetricsConfig enables the Prometheus endpoint of the daemon when Addr is set.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// Load reads path (skipped when empty or missing) over the defaults and
// applies CARENOTE_* environment overrides.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider([]byte(defaults)), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		content, err := readFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, err
		default:
			if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("load config file %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Device.DataDir == "" {
		cfg.Device.DataDir = DefaultDataDir()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// envKey maps CARENOTE_SYNC_PAGE_SIZE to sync.page_size: the first
// segment after the prefix is the section, the rest is the field.
func envKey(name string) string {
	lower := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	section, field, ok := strings.Cut(lower, "_")
	if !ok {
		return lower
	}
	return section + "." + field
}

func readFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config file %s too large (%d bytes)", path, info.Size())
	}
	buf, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return buf, nil
}

// DefaultDataDir is $XDG_DATA_HOME/carenote or ~/.local/share/carenote.
func DefaultDataDir() string {
	if v := os.Getenv("XDG_DATA_HOME"); v != "" {
		return filepath.Join(v, "carenote")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "carenote")
}

// Validate rejects values the sync components cannot run with.
func (c *Config) Validate() error {
	var problems []error
	if c.Server.Addr == "" {
		problems = append(problems, errors.New("server.addr is required"))
	}
	if c.Server.RateLimit < 0 {
		problems = append(problems, errors.New("server.rate_limit must not be negative"))
	}
	if c.Sync.Interval <= 0 {
		problems = append(problems, errors.New("sync.interval must be positive"))
	}
	if c.Sync.JitterPercent > 100 {
		problems = append(problems, errors.New("sync.jitter_percent must be at most 100"))
	}
	if c.Sync.Workers <= 0 {
		problems = append(problems, errors.New("sync.workers must be positive"))
	}
	if c.Sync.PageSize <= 0 {
		problems = append(problems, errors.New("sync.page_size must be positive"))
	}
	if c.Sync.PushBatch < 0 || c.Sync.Retention < 0 {
		problems = append(problems, errors.New("sync.push_batch and sync.retention must not be negative"))
	}
	if c.Retry.MaxAttempts < 1 {
		problems = append(problems, errors.New("retry.max_attempts must be at least 1"))
	}
	if c.Retry.BaseDelay <= 0 || c.Retry.MaxDelay < c.Retry.BaseDelay {
		problems = append(problems, errors.New("retry delays must satisfy 0 < base_delay <= max_delay"))
	}
	return errors.Join(problems...)
}

// RetryPolicy returns the retry section as a policy.
func (c *Config) RetryPolicy() retrypolicy.Policy {
	return retrypolicy.Policy{
		MaxAttempts: c.Retry.MaxAttempts,
		BaseDelay:   c.Retry.BaseDelay,
		MaxDelay:    c.Retry.MaxDelay,
		CallTimeout: c.Retry.CallTimeout,
	}
}

// Engine returns the sync engine configuration.
func (c *Config) Engine() syncengine.Config {
	return syncengine.Config{
		Workers:   c.Sync.Workers,
		PageSize:  c.Sync.PageSize,
		PushBatch: c.Sync.PushBatch,
		Retention: c.Sync.Retention,
		Retry:     c.RetryPolicy(),
	}
}

// Scheduler returns the scheduler configuration.
func (c *Config) Scheduler() scheduler.Config {
	return scheduler.Config{
		Interval:      c.Sync.Interval,
		JitterPercent: c.Sync.JitterPercent,
		RunOnStart:    c.Sync.RunOnStart,
		Retry:         c.RetryPolicy(),
	}
}

// Remote returns the transport configuration.
func (c *Config) Remote() remote.Config {
	return remote.Config{
		Addr:      c.Server.Addr,
		Token:     c.Server.Token,
		CACert:    c.Server.CACert,
		Plaintext: c.Server.Plaintext,
		RateLimit: c.Server.RateLimit,
		Burst:     c.Server.Burst,
	}
}

// DatabasePath is the SQLite file of the record store.
func (c *Config) DatabasePath() string { return filepath.Join(c.Device.DataDir, "carenote.db") }
