package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "gpfsmon.yaml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"GPFSMON_DB_PATH", "GPFSMON_RUNTIME_DIR", "GPFSMON_TEXTFILE_DIR",
		"GPFSMON_LOG_LEVEL", "GPFSMON_LOG_FORMAT", "GPFSMON_BIN_DIR",
		"GPFSMON_WORKER_POOL_SIZE", "GPFSMON_NTFY_URL", "GPFSMON_NTFY_TOPIC",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

const fullYAML = `
db_path: "/tmp/test.db"
runtime_dir: "/tmp/run/gpfsmon"
textfile_dir: "/tmp/textfiles"
log_level: "debug"
log_format: "json"
worker_pool_size: 8
bin_dir: "/opt/mmfs/bin"

ssh:
  host: "filer1.cluster"
  user: "root"
  key_path: "/etc/gpfsmon/id_ed25519"

intervals:
  capacity: "2m"
  quota: "10m"
  state: "15s"
  fileset: "30m"
  poolio: "1m"

poolio:
  enabled: true
  refresh: "5s"
  stale_after: 3

nmon:
  enabled: true
  refresh: "5s"

notifications:
  - type: ntfy
    url: "http://10.100.1.104:8080"
    topic: "gpfs-alerts"
  - type: webhook
    url: "https://hooks.example.com/gpfs"
    method: "POST"
    headers:
      Authorization: "Bearer xxx"

alerts:
  disk_down:
    duration: "5m"
    severity: "critical"
    cooldown: "1h"
  node_down:
    duration: "3m"
    severity: "warning"
  quota_exceeded:
    severity: "critical"
    cooldown: "12h"
  deadlock:
    severity: "critical"
  poolio_stale:
    severity: "info"
`

func TestLoad_FromYAML(t *testing.T) {
	clearEnv(t)
	path := writeYAML(t, fullYAML)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/test.db", cfg.DBPath)
	assert.Equal(t, "/tmp/run/gpfsmon", cfg.RuntimeDir)
	assert.Equal(t, "/tmp/textfiles", cfg.TextfileDir)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 8, cfg.WorkerPoolSize)
	assert.Equal(t, "/opt/mmfs/bin", cfg.BinDir)

	// SSH
	require.NotNil(t, cfg.SSH)
	assert.Equal(t, "filer1.cluster", cfg.SSH.Host)
	assert.Equal(t, "root", cfg.SSH.User)
	assert.Equal(t, "/etc/gpfsmon/id_ed25519", cfg.SSH.KeyPath)

	// Intervals
	assert.Equal(t, 2*time.Minute, cfg.Intervals.Capacity.Duration)
	assert.Equal(t, 10*time.Minute, cfg.Intervals.Quota.Duration)
	assert.Equal(t, 15*time.Second, cfg.Intervals.State.Duration)
	assert.Equal(t, 30*time.Minute, cfg.Intervals.Fileset.Duration)
	assert.Equal(t, 1*time.Minute, cfg.Intervals.PoolIO.Duration)

	// Pool I/O and nmon feeds
	assert.True(t, cfg.PoolIO.Enabled)
	assert.Equal(t, 5*time.Second, cfg.PoolIO.Refresh.Duration)
	assert.Equal(t, 3, cfg.PoolIO.StaleAfter)
	assert.True(t, cfg.Nmon.Enabled)
	assert.Equal(t, 5*time.Second, cfg.Nmon.Refresh.Duration)

	// Notifications
	require.Len(t, cfg.Notifications, 2)
	assert.Equal(t, "ntfy", cfg.Notifications[0].Type)
	assert.Equal(t, "gpfs-alerts", cfg.Notifications[0].Topic)
	assert.Equal(t, "webhook", cfg.Notifications[1].Type)
	assert.Equal(t, "POST", cfg.Notifications[1].Method)
	assert.Equal(t, "Bearer xxx", cfg.Notifications[1].Headers["Authorization"])

	// Alerts
	require.NotNil(t, cfg.Alerts.DiskDown)
	assert.Equal(t, 5*time.Minute, cfg.Alerts.DiskDown.Duration.Duration)
	assert.Equal(t, "critical", cfg.Alerts.DiskDown.Severity)
	assert.Equal(t, 1*time.Hour, cfg.Alerts.DiskDown.Cooldown.Duration)

	require.NotNil(t, cfg.Alerts.NodeDown)
	assert.Equal(t, 3*time.Minute, cfg.Alerts.NodeDown.Duration.Duration)
	assert.Equal(t, "warning", cfg.Alerts.NodeDown.Severity)

	require.NotNil(t, cfg.Alerts.QuotaExceeded)
	assert.Equal(t, "critical", cfg.Alerts.QuotaExceeded.Severity)
	assert.Equal(t, 12*time.Hour, cfg.Alerts.QuotaExceeded.Cooldown.Duration)

	require.NotNil(t, cfg.Alerts.Deadlock)
	assert.Equal(t, "critical", cfg.Alerts.Deadlock.Severity)

	require.NotNil(t, cfg.Alerts.PoolIOStale)
	assert.Equal(t, "info", cfg.Alerts.PoolIOStale.Severity)
}

func TestLoad_FileNotFound(t *testing.T) {
	clearEnv(t)
	_, err := Load("/nonexistent/path/gpfsmon.yml")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfigFileNotFound)
}

func TestLoad_EnvVarSubstitution(t *testing.T) {
	clearEnv(t)
	t.Setenv("GPFS_FILER_HOST", "filer2.cluster")
	t.Setenv("GPFS_SSH_KEY", "/secrets/id_ed25519")

	path := writeYAML(t, `
ssh:
  host: "${GPFS_FILER_HOST}"
  user: "root"
  key_path: "${GPFS_SSH_KEY}"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, cfg.SSH)
	assert.Equal(t, "filer2.cluster", cfg.SSH.Host)
	assert.Equal(t, "/secrets/id_ed25519", cfg.SSH.KeyPath)
}

func TestLoad_EnvVarSubstitution_Unset(t *testing.T) {
	clearEnv(t)

	path := writeYAML(t, `
ssh:
  host: "filer2.cluster"
  user: "root"
  key_path: "${GPFS_UNSET_SSH_KEY}"
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key_path is required")
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/gpfsmon/gpfsmon.db", cfg.DBPath)
	assert.Equal(t, "/run/gpfsmon", cfg.RuntimeDir)
	assert.Equal(t, "/var/lib/node_exporter/textfile_collector", cfg.TextfileDir)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 4, cfg.WorkerPoolSize)
	assert.Empty(t, cfg.BinDir)
	assert.Nil(t, cfg.SSH)

	assert.Equal(t, 1*time.Minute, cfg.Intervals.Capacity.Duration)
	assert.Equal(t, 5*time.Minute, cfg.Intervals.Quota.Duration)
	assert.Equal(t, 30*time.Second, cfg.Intervals.State.Duration)
	assert.Equal(t, 15*time.Minute, cfg.Intervals.Fileset.Duration)
	assert.Equal(t, 30*time.Second, cfg.Intervals.PoolIO.Duration)

	assert.True(t, cfg.PoolIO.Enabled)
	assert.Equal(t, 2*time.Second, cfg.PoolIO.Refresh.Duration)
	assert.Equal(t, 5, cfg.PoolIO.StaleAfter)
	assert.True(t, cfg.Nmon.Enabled)
	assert.Equal(t, 2*time.Second, cfg.Nmon.Refresh.Duration)
}

func TestLoad_FeedsDefaultEnabled(t *testing.T) {
	clearEnv(t)
	// Omitting the poolio and nmon sections keeps the feeds enabled.
	path := writeYAML(t, `log_level: "debug"`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.PoolIO.Enabled)
	assert.True(t, cfg.Nmon.Enabled)
}

func TestLoad_FeedsDisabled(t *testing.T) {
	clearEnv(t)
	path := writeYAML(t, `
poolio:
  enabled: false
nmon:
  enabled: false
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.False(t, cfg.PoolIO.Enabled)
	assert.False(t, cfg.Nmon.Enabled)
	// Disabling only sets the flag; the section defaults stay intact.
	assert.Equal(t, 2*time.Second, cfg.PoolIO.Refresh.Duration)
	assert.Equal(t, 5, cfg.PoolIO.StaleAfter)
}

func TestLoad_NmonRequiresPoolIO(t *testing.T) {
	clearEnv(t)
	path := writeYAML(t, `
poolio:
  enabled: false
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nmon feeds require poolio to be enabled")
}

func TestLoad_FromEnvVars(t *testing.T) {
	clearEnv(t)

	t.Setenv("GPFSMON_DB_PATH", "/tmp/env.db")
	t.Setenv("GPFSMON_RUNTIME_DIR", "/tmp/run")
	t.Setenv("GPFSMON_TEXTFILE_DIR", "/tmp/prom")
	t.Setenv("GPFSMON_LOG_LEVEL", "warn")
	t.Setenv("GPFSMON_LOG_FORMAT", "json")
	t.Setenv("GPFSMON_BIN_DIR", "/opt/mmfs/bin")
	t.Setenv("GPFSMON_WORKER_POOL_SIZE", "2")
	t.Setenv("GPFSMON_NTFY_URL", "http://ntfy:8080")
	t.Setenv("GPFSMON_NTFY_TOPIC", "test-alerts")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "/tmp/env.db", cfg.DBPath)
	assert.Equal(t, "/tmp/run", cfg.RuntimeDir)
	assert.Equal(t, "/tmp/prom", cfg.TextfileDir)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "/opt/mmfs/bin", cfg.BinDir)
	assert.Equal(t, 2, cfg.WorkerPoolSize)

	require.Len(t, cfg.Notifications, 1)
	assert.Equal(t, "ntfy", cfg.Notifications[0].Type)
	assert.Equal(t, "http://ntfy:8080", cfg.Notifications[0].URL)
	assert.Equal(t, "test-alerts", cfg.Notifications[0].Topic)
}

func TestLoad_EnvOverridesYAMLScalars(t *testing.T) {
	clearEnv(t)
	path := writeYAML(t, `
db_path: "/tmp/yaml.db"
notifications:
  - type: ntfy
    url: "http://yaml-ntfy:8080"
    topic: "yaml-alerts"
`)

	t.Setenv("GPFSMON_DB_PATH", "/tmp/env.db")
	t.Setenv("GPFSMON_LOG_LEVEL", "debug")
	t.Setenv("GPFSMON_NTFY_URL", "http://env-ntfy:8080")

	cfg, err := Load(path)
	require.NoError(t, err)

	// Env overrides scalar fields.
	assert.Equal(t, "/tmp/env.db", cfg.DBPath)
	assert.Equal(t, "debug", cfg.LogLevel)
	// Notifications from YAML are kept (env ntfy only applies when YAML has none).
	require.Len(t, cfg.Notifications, 1)
	assert.Equal(t, "yaml-alerts", cfg.Notifications[0].Topic)
}

func TestLoad_NtfyDefaultTopic(t *testing.T) {
	clearEnv(t)

	t.Setenv("GPFSMON_NTFY_URL", "http://ntfy:8080")
	// No GPFSMON_NTFY_TOPIC set -> should default to "gpfsmon-alerts".

	cfg, err := Load("")
	require.NoError(t, err)
	require.Len(t, cfg.Notifications, 1)
	assert.Equal(t, "gpfsmon-alerts", cfg.Notifications[0].Topic)
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:    "ssh missing host",
			mutate:  func(c *Config) { c.SSH.Host = "" },
			wantErr: "ssh: host is required",
		},
		{
			name:    "ssh missing user",
			mutate:  func(c *Config) { c.SSH.User = "" },
			wantErr: "ssh: user is required",
		},
		{
			name:    "ssh missing key_path",
			mutate:  func(c *Config) { c.SSH.KeyPath = "" },
			wantErr: "ssh: key_path is required",
		},
		{
			name: "notification unknown type",
			mutate: func(c *Config) {
				c.Notifications = []NotificationConfig{{Type: "slack", URL: "http://x"}}
			},
			wantErr: "unknown type \"slack\"",
		},
		{
			name: "ntfy missing url",
			mutate: func(c *Config) {
				c.Notifications = []NotificationConfig{{Type: "ntfy", Topic: "t"}}
			},
			wantErr: "url is required for ntfy",
		},
		{
			name: "ntfy missing topic",
			mutate: func(c *Config) {
				c.Notifications = []NotificationConfig{{Type: "ntfy", URL: "http://x"}}
			},
			wantErr: "topic is required for ntfy",
		},
		{
			name: "webhook missing url",
			mutate: func(c *Config) {
				c.Notifications = []NotificationConfig{{Type: "webhook"}}
			},
			wantErr: "url is required for webhook",
		},
		{
			name:    "invalid log level",
			mutate:  func(c *Config) { c.LogLevel = "verbose" },
			wantErr: "log_level must be one of",
		},
		{
			name:    "invalid log format",
			mutate:  func(c *Config) { c.LogFormat = "yaml" },
			wantErr: "log_format must be one of",
		},
		{
			name:    "worker_pool_size zero",
			mutate:  func(c *Config) { c.WorkerPoolSize = 0 },
			wantErr: "worker_pool_size must be >= 1",
		},
		{
			name:    "runtime_dir empty",
			mutate:  func(c *Config) { c.RuntimeDir = "" },
			wantErr: "runtime_dir is required",
		},
		{
			name:    "capacity interval zero",
			mutate:  func(c *Config) { c.Intervals.Capacity = Duration{} },
			wantErr: "intervals.capacity must be > 0",
		},
		{
			name:    "quota interval zero",
			mutate:  func(c *Config) { c.Intervals.Quota = Duration{} },
			wantErr: "intervals.quota must be > 0",
		},
		{
			name:    "state interval negative",
			mutate:  func(c *Config) { c.Intervals.State = Duration{-time.Second} },
			wantErr: "intervals.state must be > 0",
		},
		{
			name:    "fileset interval zero",
			mutate:  func(c *Config) { c.Intervals.Fileset = Duration{} },
			wantErr: "intervals.fileset must be > 0",
		},
		{
			name:    "poolio interval zero",
			mutate:  func(c *Config) { c.Intervals.PoolIO = Duration{} },
			wantErr: "intervals.poolio must be > 0",
		},
		{
			name:    "poolio refresh zero",
			mutate:  func(c *Config) { c.PoolIO.Refresh = Duration{} },
			wantErr: "poolio.refresh must be > 0",
		},
		{
			name:    "poolio stale_after zero",
			mutate:  func(c *Config) { c.PoolIO.StaleAfter = 0 },
			wantErr: "poolio.stale_after must be >= 1",
		},
		{
			name:    "nmon refresh zero",
			mutate:  func(c *Config) { c.Nmon.Refresh = Duration{} },
			wantErr: "nmon.refresh must be > 0",
		},
		{
			name: "nmon without poolio",
			mutate: func(c *Config) {
				c.PoolIO.Enabled = false
				c.Nmon.Enabled = true
			},
			wantErr: "nmon feeds require poolio",
		},
		{
			name: "disk_down alert without duration",
			mutate: func(c *Config) {
				c.Alerts.DiskDown = &AlertSustained{Severity: "critical"}
			},
			wantErr: "alerts.disk_down: duration must be > 0",
		},
		{
			name: "node_down alert without duration",
			mutate: func(c *Config) {
				c.Alerts.NodeDown = &AlertSustained{Severity: "warning"}
			},
			wantErr: "alerts.node_down: duration must be > 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.Validate())
}

func TestValidate_PoolIODisabledSkipsChecks(t *testing.T) {
	cfg := validConfig()
	cfg.PoolIO.Enabled = false
	cfg.PoolIO.Refresh = Duration{}
	cfg.PoolIO.StaleAfter = 0
	cfg.Nmon.Enabled = false
	assert.NoError(t, cfg.Validate())
}

func TestLoad_InvalidYAML(t *testing.T) {
	clearEnv(t)
	path := writeYAML(t, "{{invalid yaml")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config")
}

func TestLoad_InvalidDuration(t *testing.T) {
	clearEnv(t)
	path := writeYAML(t, `
intervals:
  capacity: "not-a-duration"
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid duration")
}

func TestDuration_MarshalYAML(t *testing.T) {
	d := Duration{Duration: 5 * time.Minute}
	v, err := d.MarshalYAML()
	require.NoError(t, err)
	assert.Equal(t, "5m0s", v)
}

func TestDuration_MarshalYAML_SubSecond(t *testing.T) {
	d := Duration{Duration: 500 * time.Millisecond}
	v, err := d.MarshalYAML()
	require.NoError(t, err)
	assert.Equal(t, "500ms", v)
}

func TestLoad_ValidationFails(t *testing.T) {
	clearEnv(t)
	path := writeYAML(t, `log_level: "verbose"`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config validation")
}

func TestLoad_EmptyFile(t *testing.T) {
	clearEnv(t)
	path := writeYAML(t, "")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/run/gpfsmon", cfg.RuntimeDir)
}

func FuzzExpandEnvVars(f *testing.F) {
	f.Add([]byte(`runtime_dir: "/run/gpfsmon"`))
	f.Add([]byte(`key_path: "${GPFS_SSH_KEY}"`))
	f.Add([]byte(`${} ${VAR} $VAR`))
	f.Add([]byte(`topic: "${A}${B}"`))
	f.Fuzz(func(t *testing.T, data []byte) {
		// Must not panic
		_ = expandEnvVars(data)
	})
}

// validConfig returns a valid Config exercising every section for
// mutation in tests.
func validConfig() *Config {
	cfg := defaults()
	cfg.SSH = &SSHConfig{
		Host:    "filer1.cluster",
		User:    "root",
		KeyPath: "/etc/gpfsmon/id_ed25519",
	}
	cfg.Notifications = []NotificationConfig{
		{Type: "ntfy", URL: "http://ntfy:8080", Topic: "gpfs-alerts"},
	}
	return cfg
}
