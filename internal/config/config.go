// Package config loads and validates collector configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging"`
	Runner    RunnerConfig    `mapstructure:"runner"`
	Collector CollectorConfig `mapstructure:"collector"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Identity  IdentityConfig  `mapstructure:"identity"`
	Dedup     DedupConfig     `mapstructure:"dedup"`
	Sink      SinkConfig      `mapstructure:"sink"`
	Snapshot  SnapshotConfig  `mapstructure:"snapshot"`
	Uploader  UploaderConfig  `mapstructure:"uploader"`
	Status    StatusConfig    `mapstructure:"status"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// RunnerConfig governs the keyword worker pool.
type RunnerConfig struct {
	Workers  int      `mapstructure:"workers"`
	Keywords []string `mapstructure:"keywords"`
}

// CollectorConfig governs the per-keyword collection loop.
type CollectorConfig struct {
	SearchBaseURL       string `mapstructure:"search_base_url"`
	RecencyParam        string `mapstructure:"recency_param"`
	MaxRecords          int    `mapstructure:"max_records"`
	MaxScrollAttempts   int    `mapstructure:"max_scroll_attempts"`
	StallPasses         int    `mapstructure:"stall_passes"`
	KeywordBudgetSec    int    `mapstructure:"keyword_budget_seconds"`
	StrictTitleFilter   bool   `mapstructure:"strict_title_filter"`
	ExactMatch          bool   `mapstructure:"exact_match"`
	NoResultsGraceSec   int    `mapstructure:"no_results_grace_seconds"`
	RotateOnBlock       bool   `mapstructure:"rotate_on_block"`
	NavRetryOnRateLimit int    `mapstructure:"nav_retry_on_rate_limit"`
}

// BrowserConfig configures the headless browser session.
type BrowserConfig struct {
	Headless      bool   `mapstructure:"headless"`
	NavTimeoutSec int    `mapstructure:"nav_timeout_seconds"`
	UserAgent     string `mapstructure:"user_agent"`
}

// RateLimitConfig tunes the shared adaptive rate budget.
type RateLimitConfig struct {
	SoftCeilingPerMin int     `mapstructure:"soft_ceiling_per_min"`
	CooldownSec       int     `mapstructure:"cooldown_seconds"`
	MaxBackoffSec     int     `mapstructure:"max_backoff_seconds"`
	FactorCeiling     float64 `mapstructure:"factor_ceiling"`
}

// IdentityEndpoint describes one tunnel egress endpoint.
type IdentityEndpoint struct {
	Name      string `mapstructure:"name"`
	Endpoint  string `mapstructure:"endpoint"`
	PublicKey string `mapstructure:"public_key"`
}

// IdentityConfig controls WireGuard identity rotation.
type IdentityConfig struct {
	Enabled          bool               `mapstructure:"enabled"`
	PrivateKey       string             `mapstructure:"private_key"`
	Address          string             `mapstructure:"address"`
	Interface        string             `mapstructure:"interface"`
	ConfigDir        string             `mapstructure:"config_dir"`
	ProbeURL         string             `mapstructure:"probe_url"`
	StabilizationSec int                `mapstructure:"stabilization_seconds"`
	Endpoints        []IdentityEndpoint `mapstructure:"endpoints"`
}

// DedupConfig controls the remote TTL store.
type DedupConfig struct {
	Addr          string `mapstructure:"addr"`
	Password      string `mapstructure:"password"`
	DB            int    `mapstructure:"db"`
	Namespace     string `mapstructure:"namespace"`
	VideoTTLHours int    `mapstructure:"video_ttl_hours"`
	SessionTTLMin int    `mapstructure:"session_ttl_minutes"`
	FailOpen      bool   `mapstructure:"fail_open"`
}

// SinkConfig selects the downstream persistence collaborator.
type SinkConfig struct {
	Provider string         `mapstructure:"provider"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
}

// PostgresConfig holds the relational sink DSN.
type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

// PubSubConfig holds metadata for publish-subscribe emission.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicID   string `mapstructure:"topic_id"`
}

// SnapshotConfig controls page HTML archiving on block events.
type SnapshotConfig struct {
	Provider  string `mapstructure:"provider"`
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// UploaderConfig tunes the queue drain loop.
type UploaderConfig struct {
	BatchSize    int     `mapstructure:"batch_size"`
	RatePerSec   float64 `mapstructure:"rate_per_sec"`
	IdleSleepSec int     `mapstructure:"idle_sleep_seconds"`
}

// StatusConfig controls the ops HTTP surface.
type StatusConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TUBEWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", true)
	v.SetDefault("runner.workers", 2)
	v.SetDefault("collector.search_base_url", "https://www.youtube.com/results")
	// Sort by upload date + last hour, URL encoded the way the site expects.
	v.SetDefault("collector.recency_param", "CAISBAgBEAE%253D")
	v.SetDefault("collector.max_records", 1000)
	v.SetDefault("collector.max_scroll_attempts", 10)
	v.SetDefault("collector.stall_passes", 3)
	v.SetDefault("collector.keyword_budget_seconds", 600)
	v.SetDefault("collector.strict_title_filter", true)
	v.SetDefault("collector.exact_match", true)
	v.SetDefault("collector.no_results_grace_seconds", 3)
	v.SetDefault("collector.rotate_on_block", true)
	v.SetDefault("collector.nav_retry_on_rate_limit", 2)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.nav_timeout_seconds", 60)
	v.SetDefault("ratelimit.soft_ceiling_per_min", 30)
	v.SetDefault("ratelimit.cooldown_seconds", 2)
	v.SetDefault("ratelimit.max_backoff_seconds", 60)
	v.SetDefault("ratelimit.factor_ceiling", 5.0)
	v.SetDefault("identity.enabled", false)
	v.SetDefault("identity.interface", "wg0")
	v.SetDefault("identity.config_dir", "/etc/wireguard")
	v.SetDefault("identity.probe_url", "https://ipinfo.io/json")
	v.SetDefault("identity.stabilization_seconds", 3)
	v.SetDefault("dedup.namespace", "yt")
	v.SetDefault("dedup.video_ttl_hours", 24)
	v.SetDefault("dedup.session_ttl_minutes", 120)
	v.SetDefault("dedup.fail_open", false)
	v.SetDefault("sink.provider", "noop")
	v.SetDefault("snapshot.provider", "none")
	v.SetDefault("uploader.batch_size", 100)
	v.SetDefault("uploader.rate_per_sec", 20)
	v.SetDefault("uploader.idle_sleep_seconds", 5)
	v.SetDefault("status.enabled", true)
	v.SetDefault("status.port", 8080)
}

// Validate enforces required values and reasonable limits. Anything failing
// here is fatal at startup; nothing else in the pipeline is.
func (c Config) Validate() error {
	if c.Runner.Workers <= 0 {
		return fmt.Errorf("runner.workers must be > 0")
	}
	if c.Dedup.Addr == "" {
		return fmt.Errorf("dedup.addr is required")
	}
	if c.Dedup.VideoTTLHours <= 0 {
		return fmt.Errorf("dedup.video_ttl_hours must be > 0")
	}
	switch c.Sink.Provider {
	case "noop":
	case "postgres":
		if c.Sink.Postgres.DSN == "" {
			return fmt.Errorf("sink.provider is 'postgres' but sink.postgres.dsn is not set")
		}
	case "pubsub":
		if c.Sink.PubSub.ProjectID == "" || c.Sink.PubSub.TopicID == "" {
			return fmt.Errorf("sink.provider is 'pubsub' but project_id or topic_id is not set")
		}
	default:
		return fmt.Errorf("unknown sink provider: %s", c.Sink.Provider)
	}
	switch c.Snapshot.Provider {
	case "none", "local", "gcs":
	default:
		return fmt.Errorf("unknown snapshot provider: %s", c.Snapshot.Provider)
	}
	if c.Snapshot.Provider == "local" && c.Snapshot.LocalDir == "" {
		return fmt.Errorf("snapshot.provider is 'local' but snapshot.local_dir is not set")
	}
	if c.Snapshot.Provider == "gcs" && c.Snapshot.GCSBucket == "" {
		return fmt.Errorf("snapshot.provider is 'gcs' but snapshot.gcs_bucket is not set")
	}
	if c.Identity.Enabled {
		if c.Identity.PrivateKey == "" || c.Identity.Address == "" {
			return fmt.Errorf("identity.private_key and identity.address are required when identity is enabled")
		}
		if len(c.Identity.Endpoints) == 0 {
			return fmt.Errorf("identity.endpoints must not be empty when identity is enabled")
		}
	}
	if c.RateLimit.FactorCeiling < 1.0 {
		return fmt.Errorf("ratelimit.factor_ceiling must be >= 1.0")
	}
	if c.Status.Enabled && c.Status.Port <= 0 {
		return fmt.Errorf("status.port must be > 0 when status server is enabled")
	}
	return nil
}

// KeywordBudget returns the per-keyword deadline as a duration.
func (c Config) KeywordBudget() time.Duration {
	return time.Duration(c.Collector.KeywordBudgetSec) * time.Second
}
