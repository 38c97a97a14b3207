package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := writeConfig(t, `
log_level = "debug"

[sim]
bankroll_usd = 2500.0
quote_size_usd = 25.0
seed = 42
max_runtime = "2m"

[fill]
model = "probabilistic"
alpha = 1.5
pmax = 0.2
base_liquidity = 0.1

[source]
mode = "replay"
fixture_dir = "/tmp/fixtures"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Sim.BankrollUSD != 2500 {
		t.Errorf("bankroll = %v, want 2500", cfg.Sim.BankrollUSD)
	}
	if cfg.Sim.MaxRuntime.Duration != 2*time.Minute {
		t.Errorf("max_runtime = %v, want 2m", cfg.Sim.MaxRuntime.Duration)
	}
	if cfg.Fill.Model != "probabilistic" {
		t.Errorf("fill model = %q", cfg.Fill.Model)
	}
	// Untouched sections keep their defaults.
	if cfg.Sim.TickSize != 0.01 {
		t.Errorf("tick_size default = %v, want 0.01", cfg.Sim.TickSize)
	}
	if cfg.Trust.Staleness.Duration != 10*time.Second {
		t.Errorf("trust staleness default = %v, want 10s", cfg.Trust.Staleness.Duration)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
[source]
mode = "replay"
fixture_dir = "/tmp/fixtures"
`)
	t.Setenv("MMSIM_SIM_SEED", "777")
	t.Setenv("MMSIM_SIM_SNAPSHOT_TIMEOUT", "250ms")
	t.Setenv("MMSIM_SOURCE_MARKETS", "mkt-a, mkt-b")
	t.Setenv("MMSIM_POSTGRES_ENABLED", "true")
	t.Setenv("MMSIM_POSTGRES_PASSWORD", "hunter2")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Sim.Seed != 777 {
		t.Errorf("seed = %d, want 777", cfg.Sim.Seed)
	}
	if cfg.Sim.SnapshotTimeout.Duration != 250*time.Millisecond {
		t.Errorf("snapshot_timeout = %v, want 250ms", cfg.Sim.SnapshotTimeout.Duration)
	}
	if len(cfg.Source.Markets) != 2 || cfg.Source.Markets[1] != "mkt-b" {
		t.Errorf("markets = %v", cfg.Source.Markets)
	}
	if !cfg.Postgres.Enabled || cfg.Postgres.Password != "hunter2" {
		t.Errorf("postgres override not applied: %+v", cfg.Postgres)
	}
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Sim.BankrollUSD = 0
	cfg.Fill.Model = "oracle"
	cfg.Source.Mode = "replay"
	cfg.Source.FixtureDir = ""
	cfg.Acceptance.TruthfulRate = 1.5

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{
		"bankroll_usd",
		`unknown model "oracle"`,
		"fixture_dir is required",
		"truthful_rate",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q:\n%v", want, err)
		}
	}
}

func TestValidateLiveModeRequiresMarkets(t *testing.T) {
	cfg := Defaults()
	cfg.Source.Mode = "live"
	cfg.Source.Markets = nil

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "at least one market") {
		t.Fatalf("err = %v", err)
	}
}

func TestEngineConfigMapping(t *testing.T) {
	cfg := Defaults()
	cfg.Sim.MaxSpreadPct = 0.05
	cfg.Sim.MaxRuntime = duration{time.Minute}

	ec := cfg.EngineConfig()
	if ec.BankrollUSD != cfg.Sim.BankrollUSD {
		t.Errorf("bankroll = %v", ec.BankrollUSD)
	}
	if ec.MaxSpreadPct == nil || *ec.MaxSpreadPct != 0.05 {
		t.Errorf("max spread = %v", ec.MaxSpreadPct)
	}
	if ec.MaxRuntime != time.Minute {
		t.Errorf("max runtime = %v", ec.MaxRuntime)
	}
	if err := ec.Validate(); err != nil {
		t.Errorf("mapped engine config invalid: %v", err)
	}

	cfg.Sim.MaxSpreadPct = 0
	if ec := cfg.EngineConfig(); ec.MaxSpreadPct != nil {
		t.Errorf("zero max_spread_pct should map to nil, got %v", *ec.MaxSpreadPct)
	}
}
