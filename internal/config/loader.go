package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies MMSIM_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known MMSIM_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Sim ──
	setFloat64(&cfg.Sim.BankrollUSD, "MMSIM_SIM_BANKROLL_USD")
	setFloat64(&cfg.Sim.QuoteSizeUSD, "MMSIM_SIM_QUOTE_SIZE_USD")
	setFloat64(&cfg.Sim.TickSize, "MMSIM_SIM_TICK_SIZE")
	setInt(&cfg.Sim.KTicks, "MMSIM_SIM_K_TICKS")
	setFloat64(&cfg.Sim.SkewTicks, "MMSIM_SIM_SKEW_TICKS")
	setFloat64(&cfg.Sim.MaxSpreadPct, "MMSIM_SIM_MAX_SPREAD_PCT")
	setFloat64(&cfg.Sim.FeeBps, "MMSIM_SIM_FEE_BPS")
	setInt64(&cfg.Sim.Seed, "MMSIM_SIM_SEED")
	setDuration(&cfg.Sim.MaxRuntime, "MMSIM_SIM_MAX_RUNTIME")
	setDuration(&cfg.Sim.SnapshotTimeout, "MMSIM_SIM_SNAPSHOT_TIMEOUT")

	// ── Fill ──
	setStr(&cfg.Fill.Model, "MMSIM_FILL_MODEL")
	setFloat64(&cfg.Fill.Alpha, "MMSIM_FILL_ALPHA")
	setFloat64(&cfg.Fill.PMax, "MMSIM_FILL_PMAX")
	setFloat64(&cfg.Fill.BaseLiquidity, "MMSIM_FILL_BASE_LIQUIDITY")

	// ── Exposure ──
	setFloat64(&cfg.Exposure.MaxTotalUSD, "MMSIM_EXPOSURE_MAX_TOTAL_USD")
	setFloat64(&cfg.Exposure.MaxPerMarketUSD, "MMSIM_EXPOSURE_MAX_PER_MARKET_USD")

	// ── Trust ──
	setDuration(&cfg.Trust.Staleness, "MMSIM_TRUST_STALENESS")
	setFloat64(&cfg.Trust.MidTolerance, "MMSIM_TRUST_MID_TOLERANCE")

	// ── Acceptance ──
	setFloat64(&cfg.Acceptance.TruthfulRate, "MMSIM_ACCEPTANCE_TRUTHFUL_RATE")

	// ── Source ──
	setStr(&cfg.Source.Mode, "MMSIM_SOURCE_MODE")
	setStr(&cfg.Source.FixtureDir, "MMSIM_SOURCE_FIXTURE_DIR")
	setStr(&cfg.Source.WsURL, "MMSIM_SOURCE_WS_URL")
	setStringSlice(&cfg.Source.Markets, "MMSIM_SOURCE_MARKETS")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "MMSIM_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "MMSIM_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "MMSIM_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "MMSIM_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "MMSIM_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "MMSIM_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "MMSIM_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "MMSIM_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "MMSIM_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "MMSIM_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "MMSIM_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "MMSIM_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "MMSIM_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "MMSIM_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "MMSIM_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "MMSIM_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "MMSIM_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "MMSIM_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "MMSIM_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "MMSIM_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "MMSIM_S3_REGION")
	setStr(&cfg.S3.Bucket, "MMSIM_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "MMSIM_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "MMSIM_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "MMSIM_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "MMSIM_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "MMSIM_SERVER_ENABLED")
	setStr(&cfg.Server.Addr, "MMSIM_SERVER_ADDR")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "MMSIM_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "MMSIM_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "MMSIM_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "MMSIM_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "MMSIM_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				out = append(out, s)
			}
		}
		if len(out) > 0 {
			*dst = out
		}
	}
}
