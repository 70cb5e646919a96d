package config

import (
	"os"
	"path/filepath"
	"testing"

	"llmarena/internal/domain"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "arena.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"OPENROUTER_API_KEY", "GEMINI_API_KEY", "COINGECKO_DEMO_API_KEY",
		"ALPHA_VANTAGE_API_KEY", "APCA_API_KEY_ID", "APCA_API_SECRET_KEY",
		"SQLITE_PATH", "EXPORT_DIR", "LOG_LEVEL",
	} {
		os.Unsetenv(key)
	}
}

func TestLoadFull(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
storage:
  sqlite_path: "/tmp/arena/arena.db"
  export_dir: "/tmp/arena/export"
logging:
  level: "debug"
  format: "json"
markets:
  us_equity:
    enabled: true
    tickers: ["AAPL", "MSFT", "NVDA"]
    api_key: "alpaca-key"
    api_secret: "alpaca-secret"
    feed: "iex"
  crypto:
    enabled: true
    tickers: ["BTC", "ETH"]
    session_times: ["00:00", "12:00"]
    timezone: "UTC"
providers:
  openrouter:
    api_key: "or-key"
    daily_call_limit: 100
  gemini:
    api_key: "gm-key"
    daily_call_limit: 50
sim:
  slippage_bps: 5
  fee_bps: 10
agents:
  max_retries: 3
competitors:
  - id: "gpt"
    name: "GPT Trader"
    provider: "openrouter"
    model: "openai/gpt-4o"
    initial_cash: 100000
    max_position_pct: 0.25
    max_orders_per_run: 5
  - id: "gem"
    name: "Gemini Trader"
    provider: "gemini"
    model: "gemini-2.0-flash"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Storage.SQLitePath != "/tmp/arena/arena.db" {
		t.Errorf("SQLitePath = %q", cfg.Storage.SQLitePath)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
	if len(cfg.Markets.USEquity.Tickers) != 3 {
		t.Errorf("equity tickers = %v", cfg.Markets.USEquity.Tickers)
	}
	if cfg.Providers.OpenRouter.DailyCallLimit != 100 {
		t.Errorf("openrouter limit = %d, want 100", cfg.Providers.OpenRouter.DailyCallLimit)
	}
	if cfg.Sim.SlippageBps != 5 {
		t.Errorf("SlippageBps = %v, want 5", cfg.Sim.SlippageBps)
	}
	if cfg.Agents.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", cfg.Agents.MaxRetries)
	}

	if len(cfg.Competitors) != 2 {
		t.Fatalf("competitors = %d, want 2", len(cfg.Competitors))
	}
	// The second competitor relies on defaults.
	gem := cfg.Competitors[1]
	if gem.InitialCash != 100000 || gem.MaxPositionPct != 0.25 || gem.MaxOrdersPerRun != 5 {
		t.Errorf("defaults not applied: %+v", gem)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
competitors:
  - id: "gpt"
    provider: "openrouter"
    model: "openai/gpt-4o"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Storage.SQLitePath != "data/arena.db" {
		t.Errorf("SQLitePath default = %q", cfg.Storage.SQLitePath)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level default = %q", cfg.Logging.Level)
	}
	if cfg.Markets.USEquity.Feed != "iex" {
		t.Errorf("Feed default = %q", cfg.Markets.USEquity.Feed)
	}
	if len(cfg.Markets.Crypto.SessionTimes) != 2 {
		t.Errorf("crypto session times default = %v", cfg.Markets.Crypto.SessionTimes)
	}
	if cfg.Sim.SlippageBps != 10 || cfg.Sim.FeeBps != 10 {
		t.Errorf("sim defaults = %+v", cfg.Sim)
	}
	if cfg.Agents.MaxRetries != 2 {
		t.Errorf("MaxRetries default = %d, want 2", cfg.Agents.MaxRetries)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
providers:
  openrouter:
    api_key: "yaml-key"
  gemini:
    api_key: "yaml-gm-key"
markets:
  us_equity:
    api_key: "yaml-alpaca"
`)

	os.Setenv("OPENROUTER_API_KEY", "env-key")
	os.Setenv("APCA_API_KEY_ID", "env-alpaca")
	os.Setenv("ALPHA_VANTAGE_API_KEY", "env-av")
	defer os.Unsetenv("OPENROUTER_API_KEY")
	defer os.Unsetenv("APCA_API_KEY_ID")
	defer os.Unsetenv("ALPHA_VANTAGE_API_KEY")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Providers.OpenRouter.APIKey != "env-key" {
		t.Errorf("OpenRouter.APIKey = %q, want env override", cfg.Providers.OpenRouter.APIKey)
	}
	// No env override set for Gemini; YAML value stays.
	if cfg.Providers.Gemini.APIKey != "yaml-gm-key" {
		t.Errorf("Gemini.APIKey = %q, want yaml value", cfg.Providers.Gemini.APIKey)
	}
	if cfg.Markets.USEquity.APIKey != "env-alpaca" {
		t.Errorf("USEquity.APIKey = %q, want env override", cfg.Markets.USEquity.APIKey)
	}
	if cfg.Markets.USEquity.AlphaVantageKey != "env-av" {
		t.Errorf("AlphaVantageKey = %q, want env override", cfg.Markets.USEquity.AlphaVantageKey)
	}
}

func TestLoadRejectsBadCompetitors(t *testing.T) {
	clearEnv(t)

	tests := []struct {
		name    string
		content string
	}{
		{"duplicate id", `
competitors:
  - id: "gpt"
    provider: "openrouter"
    model: "a"
  - id: "gpt"
    provider: "gemini"
    model: "b"
`},
		{"unknown provider", `
competitors:
  - id: "gpt"
    provider: "anthropic"
    model: "a"
`},
		{"empty id", `
competitors:
  - provider: "openrouter"
    model: "a"
`},
	}

	for _, tt := range tests {
		if _, err := Load(writeConfig(t, tt.content)); err == nil {
			t.Errorf("%s: Load() should fail", tt.name)
		}
	}
}

func TestDerivedViews(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
markets:
  us_equity:
    enabled: true
    tickers: ["AAPL"]
  crypto:
    enabled: false
    tickers: ["BTC"]
providers:
  openrouter:
    api_key: "or"
    daily_call_limit: 40
competitors:
  - id: "gpt"
    name: "GPT"
    provider: "openrouter"
    model: "openai/gpt-4o"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	tickers := cfg.Tickers()
	if len(tickers) != 1 {
		t.Fatalf("tickers = %v, want only the enabled market", tickers)
	}
	if got := tickers[domain.MarketUSEquity]; len(got) != 1 || got[0] != "AAPL" {
		t.Errorf("equity tickers = %v", got)
	}

	if cfg.DailyCallLimits()["openrouter"] != 40 {
		t.Errorf("limits = %v", cfg.DailyCallLimits())
	}
	if cfg.APIKeys()["openrouter"] != "or" {
		t.Errorf("keys = %v", cfg.APIKeys())
	}

	comps := cfg.DomainCompetitors()
	if len(comps) != 1 || comps[0].InitialCash != 100000 {
		t.Errorf("competitors = %+v", comps)
	}
}
