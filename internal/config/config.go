// Package config handles loading and validating gpfsmon configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} placeholders in config values.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// ErrConfigFileNotFound is returned by Load when the specified config file does not exist.
var ErrConfigFileNotFound = errors.New("config file not found")

// Config is the top-level gpfsmon configuration.
type Config struct {
	DBPath         string `yaml:"db_path"`
	RuntimeDir     string `yaml:"runtime_dir"`
	TextfileDir    string `yaml:"textfile_dir"`
	LogLevel       string `yaml:"log_level"`
	LogFormat      string `yaml:"log_format"`
	WorkerPoolSize int    `yaml:"worker_pool_size"`
	BinDir         string `yaml:"bin_dir"`

	// SSH makes the daemon run the administrative commands on a remote
	// cluster node instead of locally.
	SSH *SSHConfig `yaml:"ssh,omitempty"`

	Intervals     IntervalsConfig      `yaml:"intervals"`
	PoolIO        PoolIOConfig         `yaml:"poolio"`
	Nmon          NmonConfig           `yaml:"nmon"`
	Notifications []NotificationConfig `yaml:"notifications"`
	Alerts        AlertsConfig         `yaml:"alerts"`
}

// SSHConfig describes SSH access to a cluster node.
type SSHConfig struct {
	Host    string `yaml:"host"`
	User    string `yaml:"user"`
	KeyPath string `yaml:"key_path"`
}

// IntervalsConfig holds the poll interval of each collector.
type IntervalsConfig struct {
	Capacity Duration `yaml:"capacity"`
	Quota    Duration `yaml:"quota"`
	State    Duration `yaml:"state"`
	Fileset  Duration `yaml:"fileset"`
	PoolIO   Duration `yaml:"poolio"`
}

// PoolIOConfig controls the pool throughput sampler. It needs local
// block devices behind the NSDs, so it only makes sense on an NSD
// server.
type PoolIOConfig struct {
	Enabled    bool     `yaml:"enabled"`
	Refresh    Duration `yaml:"refresh"`
	StaleAfter int      `yaml:"stale_after"`
}

// NmonConfig controls the nmon external disk-group feeds.
type NmonConfig struct {
	Enabled bool     `yaml:"enabled"`
	Refresh Duration `yaml:"refresh"`
}

// NotificationConfig describes a notification target.
type NotificationConfig struct {
	Type    string            `yaml:"type"` // "ntfy" or "webhook"
	URL     string            `yaml:"url"`
	Topic   string            `yaml:"topic,omitempty"`   // ntfy only
	Method  string            `yaml:"method,omitempty"`  // webhook only
	Headers map[string]string `yaml:"headers,omitempty"` // webhook only
}

// AlertsConfig holds per-rule alert settings. An absent rule keeps its
// default; severity left empty keeps the default severity.
type AlertsConfig struct {
	DiskDown      *AlertSustained `yaml:"disk_down,omitempty"`
	NodeDown      *AlertSustained `yaml:"node_down,omitempty"`
	QuotaExceeded *AlertSimple    `yaml:"quota_exceeded,omitempty"`
	Deadlock      *AlertSimple    `yaml:"deadlock,omitempty"`
	PoolIOStale   *AlertSimple    `yaml:"poolio_stale,omitempty"`
}

// AlertSustained configures a rule that fires only after its condition
// has held for a duration.
type AlertSustained struct {
	Duration Duration `yaml:"duration"`
	Severity string   `yaml:"severity"`
	Cooldown Duration `yaml:"cooldown"`
}

// AlertSimple configures a rule that fires as soon as its condition is
// observed.
type AlertSimple struct {
	Severity string   `yaml:"severity"`
	Cooldown Duration `yaml:"cooldown"`
}

// Duration wraps time.Duration with YAML string parsing support.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// Load reads configuration from a YAML file. If no path is given, the
// defaults plus environment variables apply. If a path is given and the
// file does not exist, ErrConfigFileNotFound is returned.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigFileNotFound, path)
		}
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(expandEnvVars(data), cfg); err != nil {
				return nil, fmt.Errorf("parsing config: %w", err)
			}
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.SSH != nil {
		if c.SSH.Host == "" {
			return fmt.Errorf("ssh: host is required")
		}
		if c.SSH.User == "" {
			return fmt.Errorf("ssh: user is required")
		}
		if c.SSH.KeyPath == "" {
			return fmt.Errorf("ssh: key_path is required")
		}
	}
	for i, n := range c.Notifications {
		switch n.Type {
		case "ntfy":
			if n.URL == "" {
				return fmt.Errorf("notifications[%d]: url is required for ntfy", i)
			}
			if n.Topic == "" {
				return fmt.Errorf("notifications[%d]: topic is required for ntfy", i)
			}
		case "webhook":
			if n.URL == "" {
				return fmt.Errorf("notifications[%d]: url is required for webhook", i)
			}
		default:
			return fmt.Errorf("notifications[%d]: unknown type %q (expected ntfy or webhook)", i, n.Type)
		}
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("log_level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.LogFormat] {
		return fmt.Errorf("log_format must be one of: text, json")
	}
	if c.WorkerPoolSize < 1 {
		return fmt.Errorf("worker_pool_size must be >= 1")
	}
	if c.RuntimeDir == "" {
		return fmt.Errorf("runtime_dir is required")
	}

	if c.Intervals.Capacity.Duration <= 0 {
		return fmt.Errorf("intervals.capacity must be > 0")
	}
	if c.Intervals.Quota.Duration <= 0 {
		return fmt.Errorf("intervals.quota must be > 0")
	}
	if c.Intervals.State.Duration <= 0 {
		return fmt.Errorf("intervals.state must be > 0")
	}
	if c.Intervals.Fileset.Duration <= 0 {
		return fmt.Errorf("intervals.fileset must be > 0")
	}
	if c.Intervals.PoolIO.Duration <= 0 {
		return fmt.Errorf("intervals.poolio must be > 0")
	}

	if c.PoolIO.Enabled {
		if c.PoolIO.Refresh.Duration <= 0 {
			return fmt.Errorf("poolio.refresh must be > 0")
		}
		if c.PoolIO.StaleAfter < 1 {
			return fmt.Errorf("poolio.stale_after must be >= 1")
		}
	}
	if c.Nmon.Enabled {
		if !c.PoolIO.Enabled {
			return fmt.Errorf("nmon feeds require poolio to be enabled")
		}
		if c.Nmon.Refresh.Duration <= 0 {
			return fmt.Errorf("nmon.refresh must be > 0")
		}
	}

	// Validate alert settings
	if a := c.Alerts.DiskDown; a != nil && a.Duration.Duration <= 0 {
		return fmt.Errorf("alerts.disk_down: duration must be > 0")
	}
	if a := c.Alerts.NodeDown; a != nil && a.Duration.Duration <= 0 {
		return fmt.Errorf("alerts.node_down: duration must be > 0")
	}

	return nil
}

func defaults() *Config {
	return &Config{
		DBPath:         "/var/lib/gpfsmon/gpfsmon.db",
		RuntimeDir:     "/run/gpfsmon",
		TextfileDir:    "/var/lib/node_exporter/textfile_collector",
		LogLevel:       "info",
		LogFormat:      "text",
		WorkerPoolSize: 4,
		Intervals: IntervalsConfig{
			Capacity: Duration{1 * time.Minute},
			Quota:    Duration{5 * time.Minute},
			State:    Duration{30 * time.Second},
			Fileset:  Duration{15 * time.Minute},
			PoolIO:   Duration{30 * time.Second},
		},
		PoolIO: PoolIOConfig{
			Enabled:    true,
			Refresh:    Duration{2 * time.Second},
			StaleAfter: 5,
		},
		Nmon: NmonConfig{
			Enabled: true,
			Refresh: Duration{2 * time.Second},
		},
	}
}

// expandEnvVars replaces ${VAR_NAME} placeholders in raw YAML with the
// corresponding environment variable values. Unset variables are replaced
// with an empty string, which will then fail validation with a clear error.
func expandEnvVars(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		key := string(match[2 : len(match)-1]) // strip ${ and }
		return []byte(os.Getenv(key))
	})
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GPFSMON_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("GPFSMON_RUNTIME_DIR"); v != "" {
		cfg.RuntimeDir = v
	}
	if v := os.Getenv("GPFSMON_TEXTFILE_DIR"); v != "" {
		cfg.TextfileDir = v
	}
	if v := os.Getenv("GPFSMON_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("GPFSMON_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("GPFSMON_BIN_DIR"); v != "" {
		cfg.BinDir = v
	}
	if v := os.Getenv("GPFSMON_WORKER_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.WorkerPoolSize = n
		}
	}

	// Single ntfy target from env vars (only if no YAML notifications configured).
	if len(cfg.Notifications) == 0 {
		if ntfyURL := os.Getenv("GPFSMON_NTFY_URL"); ntfyURL != "" {
			topic := os.Getenv("GPFSMON_NTFY_TOPIC")
			if topic == "" {
				topic = "gpfsmon-alerts"
			}
			cfg.Notifications = append(cfg.Notifications, NotificationConfig{
				Type:  "ntfy",
				URL:   ntfyURL,
				Topic: topic,
			})
		}
	}
}
