// Package config defines the top-level configuration for the simulator
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/quantfold/mmsim/internal/analyze"
	s3blob "github.com/quantfold/mmsim/internal/blob/s3"
	redisclient "github.com/quantfold/mmsim/internal/cache/redis"
	"github.com/quantfold/mmsim/internal/engine"
	"github.com/quantfold/mmsim/internal/store/postgres"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by MMSIM_* environment variables.
type Config struct {
	Sim        SimConfig        `toml:"sim"`
	Fill       FillConfig       `toml:"fill"`
	Exposure   ExposureConfig   `toml:"exposure"`
	Trust      TrustConfig      `toml:"trust"`
	Acceptance AcceptanceConfig `toml:"acceptance"`
	Source     SourceConfig     `toml:"source"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	LogLevel   string           `toml:"log_level"`
}

// SimConfig holds the core run parameters fixed at initialization.
type SimConfig struct {
	BankrollUSD     float64  `toml:"bankroll_usd"`
	QuoteSizeUSD    float64  `toml:"quote_size_usd"`
	TickSize        float64  `toml:"tick_size"`
	KTicks          int      `toml:"k_ticks"`
	SkewTicks       float64  `toml:"skew_ticks"`
	MaxSpreadPct    float64  `toml:"max_spread_pct"`
	FeeBps          float64  `toml:"fee_bps"`
	Seed            int64    `toml:"seed"`
	MaxRuntime      duration `toml:"max_runtime"`
	SnapshotTimeout duration `toml:"snapshot_timeout"`
	ReconcileEps    float64  `toml:"reconcile_eps"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// FillConfig selects and parameterizes the fill model.
type FillConfig struct {
	Model         string  `toml:"model"`
	Alpha         float64 `toml:"alpha"`
	PMax          float64 `toml:"pmax"`
	BaseLiquidity float64 `toml:"base_liquidity"`
}

// ExposureConfig holds the hard exposure caps.
type ExposureConfig struct {
	MaxTotalUSD     float64 `toml:"max_total_usd"`
	MaxPerMarketUSD float64 `toml:"max_per_market_usd"`
}

// TrustConfig holds snapshot trust-gate thresholds.
type TrustConfig struct {
	Staleness    duration `toml:"staleness"`
	MidTolerance float64  `toml:"mid_tolerance"`
}

// AcceptanceConfig holds report acceptance thresholds.
type AcceptanceConfig struct {
	TruthfulRate float64 `toml:"truthful_rate"`
}

// SourceConfig selects where snapshots come from.
type SourceConfig struct {
	Mode       string   `toml:"mode"` // replay | live
	FixtureDir string   `toml:"fixture_dir"`
	WsURL      string   `toml:"ws_url"`
	Markets    []string `toml:"markets"`
}

// PostgresConfig holds PostgreSQL connection parameters for the durable
// ledger. When disabled the simulator keeps everything in memory.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters for live status publishing.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds object-storage parameters for report archival.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds the HTTP status server parameters.
type ServerConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}

// NotifyConfig holds alerting credentials and the event filter.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Sim: SimConfig{
			BankrollUSD:     10_000,
			QuoteSizeUSD:    100,
			TickSize:        0.01,
			KTicks:          1,
			SkewTicks:       0,
			MaxSpreadPct:    0,
			FeeBps:          0,
			Seed:            1,
			SnapshotTimeout: duration{5 * time.Second},
			ReconcileEps:    0,
		},
		Fill: FillConfig{
			Model:         "strict",
			Alpha:         1.0,
			PMax:          0.5,
			BaseLiquidity: 0.3,
		},
		Exposure: ExposureConfig{
			MaxTotalUSD:     5_000,
			MaxPerMarketUSD: 1_000,
		},
		Trust: TrustConfig{
			Staleness:    duration{10 * time.Second},
			MidTolerance: 0.02,
		},
		Acceptance: AcceptanceConfig{
			TruthfulRate: analyze.DefaultTruthfulRate,
		},
		Source: SourceConfig{
			Mode:  "replay",
			WsURL: "wss://ws-subscriptions-clob.polymarket.com/ws/market",
		},
		Postgres: PostgresConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "mmsim-reports",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled: false,
			Addr:    ":8080",
		},
		Notify: NotifyConfig{
			Events: []string{"run_completed", "run_halted", "acceptance_failed"},
		},
		LogLevel: "info",
	}
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validSourceModes = map[string]bool{
	"replay": true,
	"live":   true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found. Engine parameters are
// validated again by the engine itself at init.
func (c *Config) Validate() error {
	var errs []string

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Sim
	if c.Sim.BankrollUSD <= 0 {
		errs = append(errs, "sim: bankroll_usd must be > 0")
	}
	if c.Sim.QuoteSizeUSD <= 0 {
		errs = append(errs, "sim: quote_size_usd must be > 0")
	}
	if c.Sim.TickSize <= 0 {
		errs = append(errs, "sim: tick_size must be > 0")
	}
	if c.Sim.KTicks < 0 {
		errs = append(errs, "sim: k_ticks must be >= 0")
	}
	if c.Sim.MaxSpreadPct < 0 {
		errs = append(errs, "sim: max_spread_pct must be >= 0")
	}
	if c.Sim.FeeBps < 0 {
		errs = append(errs, "sim: fee_bps must be >= 0")
	}
	if c.Sim.MaxRuntime.Duration < 0 {
		errs = append(errs, "sim: max_runtime must be >= 0")
	}
	if c.Sim.SnapshotTimeout.Duration <= 0 {
		errs = append(errs, "sim: snapshot_timeout must be > 0")
	}

	// Fill
	switch c.Fill.Model {
	case "strict":
	case "probabilistic":
		if c.Fill.PMax <= 0 || c.Fill.PMax > 1 {
			errs = append(errs, fmt.Sprintf("fill: pmax must be in (0, 1], got %v", c.Fill.PMax))
		}
		if c.Fill.Alpha < 0 {
			errs = append(errs, "fill: alpha must be >= 0")
		}
		if c.Fill.BaseLiquidity < 0 {
			errs = append(errs, "fill: base_liquidity must be >= 0")
		}
	default:
		errs = append(errs, fmt.Sprintf("fill: unknown model %q (valid: strict, probabilistic)", c.Fill.Model))
	}

	// Exposure
	if c.Exposure.MaxTotalUSD < 0 {
		errs = append(errs, "exposure: max_total_usd must be >= 0")
	}
	if c.Exposure.MaxPerMarketUSD < 0 {
		errs = append(errs, "exposure: max_per_market_usd must be >= 0")
	}

	// Trust
	if c.Trust.Staleness.Duration <= 0 {
		errs = append(errs, "trust: staleness must be > 0")
	}
	if c.Trust.MidTolerance <= 0 {
		errs = append(errs, "trust: mid_tolerance must be > 0")
	}

	// Acceptance
	if c.Acceptance.TruthfulRate <= 0 || c.Acceptance.TruthfulRate > 1 {
		errs = append(errs, fmt.Sprintf("acceptance: truthful_rate must be in (0, 1], got %v", c.Acceptance.TruthfulRate))
	}

	// Source
	switch strings.ToLower(c.Source.Mode) {
	case "replay":
		if c.Source.FixtureDir == "" {
			errs = append(errs, "source: fixture_dir is required for replay mode")
		}
	case "live":
		if c.Source.WsURL == "" {
			errs = append(errs, "source: ws_url is required for live mode")
		}
		if len(c.Source.Markets) == 0 {
			errs = append(errs, "source: at least one market is required for live mode")
		}
	default:
		errs = append(errs, fmt.Sprintf("source: unknown mode %q (valid: replay, live)", c.Source.Mode))
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Addr == "" {
			errs = append(errs, "server: addr must not be empty")
		}
		if !c.Redis.Enabled {
			errs = append(errs, "server: requires redis to be enabled for status reads")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// EngineConfig maps the file configuration onto the engine's runtime config.
func (c *Config) EngineConfig() engine.Config {
	ec := engine.Config{
		BankrollUSD:  c.Sim.BankrollUSD,
		QuoteSizeUSD: c.Sim.QuoteSizeUSD,
		TickSize:     c.Sim.TickSize,
		KTicks:       c.Sim.KTicks,
		SkewTicks:    c.Sim.SkewTicks,
		FeeBps:       c.Sim.FeeBps,

		MaxTotalExposureUSD:     c.Exposure.MaxTotalUSD,
		MaxPerMarketExposureUSD: c.Exposure.MaxPerMarketUSD,

		FillModel:         c.Fill.Model,
		Seed:              c.Sim.Seed,
		FillAlpha:         c.Fill.Alpha,
		FillPMax:          c.Fill.PMax,
		FillBaseLiquidity: c.Fill.BaseLiquidity,

		MaxRuntime:      c.Sim.MaxRuntime.Duration,
		SnapshotTimeout: c.Sim.SnapshotTimeout.Duration,

		TrustStaleness:    c.Trust.Staleness.Duration,
		TrustMidTolerance: c.Trust.MidTolerance,
		ReconcileEps:      c.Sim.ReconcileEps,
	}
	if c.Sim.MaxSpreadPct > 0 {
		v := c.Sim.MaxSpreadPct
		ec.MaxSpreadPct = &v
	}
	return ec
}

// Thresholds maps the acceptance section onto the analyzer's thresholds.
func (c *Config) Thresholds() analyze.Thresholds {
	return analyze.Thresholds{
		TruthfulRate:            c.Acceptance.TruthfulRate,
		MaxTotalExposureUSD:     c.Exposure.MaxTotalUSD,
		MaxPerMarketExposureUSD: c.Exposure.MaxPerMarketUSD,
	}
}

// PostgresClientConfig maps the postgres section onto the store client config.
func (c *Config) PostgresClientConfig() postgres.ClientConfig {
	return postgres.ClientConfig{
		DSN:      c.Postgres.DSN,
		Host:     c.Postgres.Host,
		Port:     c.Postgres.Port,
		Database: c.Postgres.Database,
		User:     c.Postgres.User,
		Password: c.Postgres.Password,
		SSLMode:  c.Postgres.SSLMode,
		MaxConns: c.Postgres.PoolMaxConns,
		MinConns: c.Postgres.PoolMinConns,
	}
}

// RedisClientConfig maps the redis section onto the cache client config.
func (c *Config) RedisClientConfig() redisclient.ClientConfig {
	return redisclient.ClientConfig{
		Addr:       c.Redis.Addr,
		Password:   c.Redis.Password,
		DB:         c.Redis.DB,
		PoolSize:   c.Redis.PoolSize,
		MaxRetries: c.Redis.MaxRetries,
		TLSEnabled: c.Redis.TLSEnabled,
	}
}

// S3ClientConfig maps the s3 section onto the blob client config.
func (c *Config) S3ClientConfig() s3blob.ClientConfig {
	return s3blob.ClientConfig{
		Endpoint:       c.S3.Endpoint,
		Region:         c.S3.Region,
		Bucket:         c.S3.Bucket,
		AccessKey:      c.S3.AccessKey,
		SecretKey:      c.S3.SecretKey,
		UseSSL:         c.S3.UseSSL,
		ForcePathStyle: c.S3.ForcePathStyle,
	}
}
