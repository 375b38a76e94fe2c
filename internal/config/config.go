package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Completion policies decide what happens to completed_at when a course's
// percentage drops below 100 after completion.
const (
	CompletionOneWay    = "one_way"
	CompletionRevocable = "revocable"
)

// Config models coursehub.yml.
type Config struct {
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Database struct {
		Driver  string        `yaml:"driver"`
		DSN     string        `yaml:"dsn"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"database"`
	Auth struct {
		AllowLegacyActorHeader bool          `yaml:"allow_legacy_actor_header"`
		DevLogin               bool          `yaml:"dev_login"`
		TokenTTL               time.Duration `yaml:"token_ttl"`
	} `yaml:"auth"`
	Progress struct {
		CompletionPolicy string `yaml:"completion_policy"`
	} `yaml:"progress"`
	Certificates struct {
		AutoIssue         bool   `yaml:"auto_issue"`
		NumberPrefix      string `yaml:"number_prefix"`
		ReconcileSchedule string `yaml:"reconcile_schedule"`
		ReconcileBatch    int    `yaml:"reconcile_batch"`
	} `yaml:"certificates"`
	Events struct {
		RedisURL     string        `yaml:"redis_url"`
		Channel      string        `yaml:"channel"`
		PollInterval time.Duration `yaml:"poll_interval"`
		Batch        int           `yaml:"batch"`
	} `yaml:"events"`
	Logging struct {
		Mode string `yaml:"mode"`
	} `yaml:"logging"`
	Tracing struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"tracing"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; generate one with coursehub config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOrDefault returns the workspace config, or defaults when no file exists.
func LoadOrDefault(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Database.Driver) {
	case "", "sqlite", "postgres", "pgx":
	default:
		return fmt.Errorf("config.database.driver must be sqlite or postgres, got %q", c.Database.Driver)
	}
	if c.Database.Timeout < 0 {
		return fmt.Errorf("config.database.timeout must not be negative")
	}
	switch c.Progress.CompletionPolicy {
	case CompletionOneWay, CompletionRevocable:
	default:
		return fmt.Errorf("config.progress.completion_policy must be %s or %s", CompletionOneWay, CompletionRevocable)
	}
	if s := strings.TrimSpace(c.Certificates.ReconcileSchedule); s != "" {
		if _, err := cron.ParseStandard(s); err != nil {
			return fmt.Errorf("config.certificates.reconcile_schedule: %w", err)
		}
	}
	if c.Certificates.ReconcileBatch < 0 {
		return fmt.Errorf("config.certificates.reconcile_batch must not be negative")
	}
	if c.Events.RedisURL != "" && strings.TrimSpace(c.Events.Channel) == "" {
		return fmt.Errorf("config.events.channel is required when redis_url is set")
	}
	if c.Events.PollInterval < 0 {
		return fmt.Errorf("config.events.poll_interval must not be negative")
	}
	switch c.Logging.Mode {
	case "", "dev", "prod":
	default:
		return fmt.Errorf("config.logging.mode must be dev or prod")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "coursehub.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Keys missing from
// data keep their default values.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8080
  base_path: /v1

database:
  driver: sqlite
  dsn: ""
  timeout: 5s

auth:
  allow_legacy_actor_header: false
  dev_login: false
  token_ttl: 12h

progress:
  # one_way keeps completed_at once set; revocable clears it when the
  # percentage drops below 100.
  completion_policy: one_way

certificates:
  auto_issue: true
  number_prefix: CH
  reconcile_schedule: "@every 10m"
  reconcile_batch: 100

events:
  redis_url: ""
  channel: coursehub.events
  poll_interval: 2s
  batch: 100

logging:
  mode: prod

tracing:
  enabled: false
`
