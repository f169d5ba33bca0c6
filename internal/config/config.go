package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the stockbt binaries.
type Config struct {
	Storage  Storage        `yaml:"storage"`
	Server   Server         `yaml:"server"`
	Data     DataConfig     `yaml:"data"`
	Alpaca   Alpaca         `yaml:"alpaca"`
	Logging  Logging        `yaml:"logging"`
	Backtest BacktestConfig `yaml:"backtest"`
	Chart    ChartConfig    `yaml:"chart"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Server holds network listener configuration.
type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns host:port for net.Listen.
func (s Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DataConfig selects and tunes the market-data provider.
type DataConfig struct {
	Provider        string        `yaml:"provider"` // "yahoo", "alpaca" or "parquet"
	CacheTTL        time.Duration `yaml:"cache_ttl"`
	RateLimitPerMin int           `yaml:"rate_limit_per_min"`
	Retries         int           `yaml:"retries"`
	YahooURL        string        `yaml:"yahoo_url"`
}

// Alpaca holds credentials and endpoints for the Alpaca market-data API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
	DataURL   string `yaml:"data_url"`
	Feed      string `yaml:"feed"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// BacktestConfig holds the defaults applied to a backtest request that leaves
// a field unset.
type BacktestConfig struct {
	InitialCash     float64 `yaml:"initial_cash"`
	Commission      float64 `yaml:"commission"`
	PositionSizePct float64 `yaml:"position_size_pct"`
	LookbackDays    int     `yaml:"lookback_days"`
}

// ChartConfig controls PNG rendering through headless Chrome.
type ChartConfig struct {
	ChromePath string `yaml:"chrome_path"`
	Width      int    `yaml:"width"`
	Height     int    `yaml:"height"`
}

// Supported data providers.
const (
	ProviderYahoo   = "yahoo"
	ProviderAlpaca  = "alpaca"
	ProviderParquet = "parquet"
)

// Bounds on user-facing backtest inputs.
const (
	MinInitialCash = 10_000
	MaxInitialCash = 1_000_000
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Default returns a configuration that runs without a file: Yahoo data, a
// one hour cache, 100k initial cash and 0.2% commission.
func Default() *Config {
	return &Config{
		Storage: Storage{
			DataDir:    "data",
			SQLitePath: "data/stockbt.db",
		},
		Server: Server{Host: "127.0.0.1", Port: 8080},
		Data: DataConfig{
			Provider:        ProviderYahoo,
			CacheTTL:        time.Hour,
			RateLimitPerMin: 60,
			Retries:         3,
			YahooURL:        "https://query1.finance.yahoo.com",
		},
		Alpaca: Alpaca{
			BaseURL: "https://paper-api.alpaca.markets",
			Feed:    "iex",
		},
		Logging: Logging{Level: "info", Format: "json"},
		Backtest: BacktestConfig{
			InitialCash:     100_000,
			Commission:      0.002,
			PositionSizePct: 100,
			LookbackDays:    365,
		},
		Chart: ChartConfig{Width: 1280, Height: 720},
	}
}

// Load reads the YAML configuration file at the given path on top of
// Default(), and then applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// LoadOrDefault behaves like Load but falls back to Default() (plus
// environment overrides) when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg = Default()
		applyEnvOverrides(cfg)
		return cfg, nil
	}
	return cfg, err
}

// Path returns the config file location from STOCKBT_CONFIG, or the default.
func Path() string {
	if p := os.Getenv("STOCKBT_CONFIG"); p != "" {
		return p
	}
	return "config/stockbt.yaml"
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}

	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("STOCKBT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("DATA_PROVIDER"); v != "" {
		cfg.Data.Provider = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}

	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Standard Alpaca env vars take priority; they are the names the SDK reads.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

// Validate checks that the configuration can drive a backtest. It returns
// the first problem found, wrapped in ErrInvalid.
func (c *Config) Validate() error {
	switch c.Data.Provider {
	case ProviderYahoo, ProviderAlpaca, ProviderParquet:
	default:
		return fmt.Errorf("%w: unknown data provider %q", ErrInvalid, c.Data.Provider)
	}
	if c.Data.Provider == ProviderAlpaca && (c.Alpaca.APIKey == "" || c.Alpaca.APISecret == "") {
		return fmt.Errorf("%w: alpaca provider requires api_key and api_secret", ErrInvalid)
	}
	if c.Data.CacheTTL < 0 {
		return fmt.Errorf("%w: cache_ttl cannot be negative", ErrInvalid)
	}
	b := c.Backtest
	if b.Commission < 0 || b.Commission >= 0.1 {
		return fmt.Errorf("%w: commission (%f) must be in [0, 0.1)", ErrInvalid, b.Commission)
	}
	if b.InitialCash < MinInitialCash || b.InitialCash > MaxInitialCash {
		return fmt.Errorf("%w: initial_cash (%.0f) must be between %d and %d",
			ErrInvalid, b.InitialCash, MinInitialCash, MaxInitialCash)
	}
	if b.PositionSizePct < 1 || b.PositionSizePct > 100 {
		return fmt.Errorf("%w: position_size_pct (%.1f) must be between 1 and 100", ErrInvalid, b.PositionSizePct)
	}
	if b.LookbackDays <= 0 {
		return fmt.Errorf("%w: lookback_days must be positive", ErrInvalid)
	}
	return nil
}
