package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"llmarena/internal/domain"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the arena.
type Config struct {
	Storage     Storage            `yaml:"storage"`
	Logging     Logging            `yaml:"logging"`
	Markets     Markets            `yaml:"markets"`
	Providers   Providers          `yaml:"providers"`
	Sim         Sim                `yaml:"sim"`
	Agents      Agents             `yaml:"agents"`
	Competitors []CompetitorConfig `yaml:"competitors"`
}

// Storage holds paths for data persistence.
type Storage struct {
	SQLitePath string `yaml:"sqlite_path"`
	ExportDir  string `yaml:"export_dir"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Markets configures the tradable markets.
type Markets struct {
	USEquity USEquityMarket `yaml:"us_equity"`
	Crypto   CryptoMarket   `yaml:"crypto"`
}

// USEquityMarket configures the Alpaca-backed equity market.
type USEquityMarket struct {
	Enabled   bool     `yaml:"enabled"`
	Tickers   []string `yaml:"tickers"`
	APIKey    string   `yaml:"api_key"`
	APISecret string   `yaml:"api_secret"`
	BaseURL   string   `yaml:"base_url"`
	Feed      string   `yaml:"feed"`

	// Optional Alpha Vantage key; enables the fundamentals, earnings, and
	// insider sections of equity briefings.
	AlphaVantageKey string `yaml:"alpha_vantage_key"`
}

// CryptoMarket configures the CoinGecko-backed crypto market.
type CryptoMarket struct {
	Enabled      bool     `yaml:"enabled"`
	Tickers      []string `yaml:"tickers"`
	APIKey       string   `yaml:"api_key"` // optional demo key
	SessionTimes []string `yaml:"session_times"`
	Timezone     string   `yaml:"timezone"`
}

// Providers holds per-provider API keys and daily call budgets.
type Providers struct {
	OpenRouter Provider `yaml:"openrouter"`
	Gemini     Provider `yaml:"gemini"`
}

// Provider is one model provider's credentials and budget.
type Provider struct {
	APIKey         string `yaml:"api_key"`
	DailyCallLimit int    `yaml:"daily_call_limit"` // 0 = unlimited
}

// Sim holds the fill engine and briefing parameters.
type Sim struct {
	SlippageBps   float64 `yaml:"slippage_bps"`
	FeeBps        float64 `yaml:"fee_bps"`
	HistoryDays   int     `yaml:"history_days"`
	HeadlineLimit int     `yaml:"headline_limit"`
}

// Agents holds the agent invocation parameters.
type Agents struct {
	MaxRetries int `yaml:"max_retries"` // extra attempts after the first
}

// CompetitorConfig declares one (provider, model) pairing.
type CompetitorConfig struct {
	ID              string  `yaml:"id"`
	Name            string  `yaml:"name"`
	Provider        string  `yaml:"provider"`
	Model           string  `yaml:"model"`
	InitialCash     float64 `yaml:"initial_cash"`
	MaxPositionPct  float64 `yaml:"max_position_pct"`
	MaxOrdersPerRun int     `yaml:"max_orders_per_run"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, parses it,
// applies environment variable overrides, then defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("EXPORT_DIR"); v != "" {
		cfg.Storage.ExportDir = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("OPENROUTER_API_KEY"); v != "" {
		cfg.Providers.OpenRouter.APIKey = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.Providers.Gemini.APIKey = v
	}
	if v := os.Getenv("COINGECKO_DEMO_API_KEY"); v != "" {
		cfg.Markets.Crypto.APIKey = v
	}

	if v := os.Getenv("ALPHA_VANTAGE_API_KEY"); v != "" {
		cfg.Markets.USEquity.AlphaVantageKey = v
	}

	// Canonical Alpaca env vars used by the SDK.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Markets.USEquity.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Markets.USEquity.APISecret = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = "data/arena.db"
	}
	if cfg.Storage.ExportDir == "" {
		cfg.Storage.ExportDir = "data/export"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Markets.USEquity.Feed == "" {
		cfg.Markets.USEquity.Feed = "iex"
	}
	if len(cfg.Markets.Crypto.SessionTimes) == 0 {
		cfg.Markets.Crypto.SessionTimes = []string{"00:00", "12:00"}
	}
	if cfg.Markets.Crypto.Timezone == "" {
		cfg.Markets.Crypto.Timezone = "UTC"
	}
	if cfg.Sim.SlippageBps == 0 {
		cfg.Sim.SlippageBps = 10
	}
	if cfg.Sim.FeeBps == 0 {
		cfg.Sim.FeeBps = 10
	}
	if cfg.Sim.HistoryDays == 0 {
		cfg.Sim.HistoryDays = 90
	}
	if cfg.Sim.HeadlineLimit == 0 {
		cfg.Sim.HeadlineLimit = 5
	}
	if cfg.Agents.MaxRetries == 0 {
		cfg.Agents.MaxRetries = 2
	}

	for i := range cfg.Competitors {
		c := &cfg.Competitors[i]
		if c.InitialCash == 0 {
			c.InitialCash = 100000
		}
		if c.MaxPositionPct == 0 {
			c.MaxPositionPct = 0.25
		}
		if c.MaxOrdersPerRun == 0 {
			c.MaxOrdersPerRun = 5
		}
	}
}

func (cfg *Config) validate() error {
	seen := make(map[string]bool, len(cfg.Competitors))
	for _, c := range cfg.Competitors {
		if c.ID == "" {
			return fmt.Errorf("competitor with empty id")
		}
		if seen[c.ID] {
			return fmt.Errorf("duplicate competitor id %q", c.ID)
		}
		seen[c.ID] = true
		switch c.Provider {
		case "openrouter", "gemini":
		default:
			return fmt.Errorf("competitor %s: unknown provider %q", c.ID, c.Provider)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Derived views
// ---------------------------------------------------------------------------

// DomainCompetitors converts the configured competitors to domain values.
func (cfg *Config) DomainCompetitors() []domain.Competitor {
	out := make([]domain.Competitor, 0, len(cfg.Competitors))
	for _, c := range cfg.Competitors {
		out = append(out, domain.Competitor{
			ID:              c.ID,
			Name:            c.Name,
			Provider:        c.Provider,
			Model:           c.Model,
			InitialCash:     c.InitialCash,
			MaxPositionPct:  c.MaxPositionPct,
			MaxOrdersPerRun: c.MaxOrdersPerRun,
		})
	}
	return out
}

// APIKeys returns provider API keys keyed by provider name.
func (cfg *Config) APIKeys() map[string]string {
	return map[string]string{
		"openrouter": cfg.Providers.OpenRouter.APIKey,
		"gemini":     cfg.Providers.Gemini.APIKey,
	}
}

// DailyCallLimits returns provider call budgets keyed by provider name.
func (cfg *Config) DailyCallLimits() map[string]int {
	return map[string]int{
		"openrouter": cfg.Providers.OpenRouter.DailyCallLimit,
		"gemini":     cfg.Providers.Gemini.DailyCallLimit,
	}
}

// Tickers returns the configured tickers for each enabled market.
func (cfg *Config) Tickers() map[domain.MarketType][]string {
	out := make(map[domain.MarketType][]string)
	if cfg.Markets.USEquity.Enabled {
		out[domain.MarketUSEquity] = cfg.Markets.USEquity.Tickers
	}
	if cfg.Markets.Crypto.Enabled {
		out[domain.MarketCrypto] = cfg.Markets.Crypto.Tickers
	}
	return out
}
