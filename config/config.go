package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"dex-dip-bot/internal/capital"
	"dex-dip-bot/internal/cost"
	"dex-dip-bot/internal/pnl"
	"dex-dip-bot/internal/regime"
	"dex-dip-bot/internal/reserve"
	"dex-dip-bot/internal/runner"
	"dex-dip-bot/internal/scaleout"
	"dex-dip-bot/internal/sizing"
	"dex-dip-bot/internal/splitexec"
	"dex-dip-bot/internal/strategy"
	"dex-dip-bot/internal/tier"
)

type Config struct {
	VenueConfig    VenueConfig    `json:"venue"`
	DatabaseConfig DatabaseConfig `json:"database"`
	RedisConfig    RedisConfig    `json:"redis"`
	LoggingConfig  LoggingConfig  `json:"logging"`
	MetricsConfig  MetricsConfig  `json:"metrics"`
	CapitalConfig  capital.Config `json:"capital"`
	BotConfigs     []BotConfig    `json:"bots"`
}

// VenueConfig holds DEX aggregator connectivity settings.
type VenueConfig struct {
	MockMode  bool   `json:"mock_mode"` // simulated venue when no aggregator is reachable
	BaseURL   string `json:"base_url"`
	APIKey    string `json:"api_key"`
	BaseMint  string `json:"base_mint"`
	QuoteMint string `json:"quote_mint"`

	PriceStreamEnabled bool   `json:"price_stream_enabled"`
	PriceStreamURL     string `json:"price_stream_url"`
	Pair               string `json:"pair"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// RedisConfig holds Redis configuration for caching and order id sequences.
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

type LoggingConfig struct {
	Level      string `json:"level"`       // debug, info, warn, error
	JSONFormat bool   `json:"json_format"` // structured output instead of console writer
}

// MetricsConfig holds the Prometheus exposition settings.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"` // listen address for /metrics
}

// BotConfig is one bot instance: a pair, an allocation, and the full policy
// for every decision component.
type BotConfig struct {
	InstanceID       string  `json:"instance_id"`
	BaseSymbol       string  `json:"base_symbol"`
	QuoteSymbol      string  `json:"quote_symbol"`
	CycleIntervalSec int     `json:"cycle_interval_sec"`
	AllocatedUSD     float64 `json:"allocated_usd"`

	PnlMethod pnl.Method `json:"pnl_method"`

	Strategy strategy.Config  `json:"strategy"`
	Cost     cost.Config      `json:"cost"`
	Tier     tier.Config      `json:"tier"`
	Sizing   sizing.Config    `json:"sizing"`
	Regime   regime.Config    `json:"regime"`
	ScaleOut scaleout.Config  `json:"scale_out"`
	Runner   runner.Config    `json:"runner"`
	Reserve  reserve.Config   `json:"reserve"`
	Split    splitexec.Config `json:"split"`
}

// Load reads config.json if present, then applies environment overrides.
func Load() (*Config, error) {
	cfg, err := loadFromFile("config.json")
	if err != nil {
		cfg = &Config{}
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filename, err)
	}
	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides. Secrets
// (aggregator API key, database password) are expected from the environment
// in production deployments.
func applyEnvOverrides(cfg *Config) {
	cfg.VenueConfig.BaseURL = getEnvOrDefault("VENUE_BASE_URL", cfg.VenueConfig.BaseURL)
	cfg.VenueConfig.APIKey = getEnvOrDefault("VENUE_API_KEY", cfg.VenueConfig.APIKey)
	cfg.VenueConfig.PriceStreamURL = getEnvOrDefault("VENUE_WS_URL", cfg.VenueConfig.PriceStreamURL)
	if os.Getenv("VENUE_MOCK_MODE") == "true" {
		cfg.VenueConfig.MockMode = true
	}

	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", cfg.DatabaseConfig.Host)
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", cfg.DatabaseConfig.Port)
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", cfg.DatabaseConfig.User)
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DB_NAME", cfg.DatabaseConfig.Database)
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DB_SSLMODE", cfg.DatabaseConfig.SSLMode)

	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", cfg.RedisConfig.Address)
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)

	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", cfg.LoggingConfig.Level)
	cfg.MetricsConfig.Addr = getEnvOrDefault("METRICS_ADDR", cfg.MetricsConfig.Addr)
}

func applyDefaults(cfg *Config) {
	if cfg.DatabaseConfig.Port == 0 {
		cfg.DatabaseConfig.Port = 5432
	}
	if cfg.DatabaseConfig.SSLMode == "" {
		cfg.DatabaseConfig.SSLMode = "disable"
	}
	if cfg.RedisConfig.Address == "" {
		cfg.RedisConfig.Address = "localhost:6379"
	}
	if cfg.RedisConfig.PoolSize == 0 {
		cfg.RedisConfig.PoolSize = 10
	}
	if cfg.LoggingConfig.Level == "" {
		cfg.LoggingConfig.Level = "info"
	}
	if cfg.MetricsConfig.Addr == "" {
		cfg.MetricsConfig.Addr = ":9090"
	}
	if cfg.CapitalConfig == (capital.Config{}) {
		cfg.CapitalConfig = capital.DefaultConfig()
	}

	for i := range cfg.BotConfigs {
		bot := &cfg.BotConfigs[i]
		if bot.CycleIntervalSec == 0 {
			bot.CycleIntervalSec = 15
		}
		if bot.PnlMethod == "" {
			bot.PnlMethod = pnl.MethodAverageCost
		}
	}
}

// Validate checks cross-field invariants before the bots start.
func (c *Config) Validate() error {
	if !c.VenueConfig.MockMode && c.VenueConfig.BaseURL == "" {
		return fmt.Errorf("venue base_url is required unless mock_mode is enabled")
	}

	seen := make(map[string]bool)
	for i, bot := range c.BotConfigs {
		if bot.InstanceID == "" {
			return fmt.Errorf("bot %d: instance_id is required", i)
		}
		if seen[bot.InstanceID] {
			return fmt.Errorf("duplicate bot instance_id %q", bot.InstanceID)
		}
		seen[bot.InstanceID] = true

		if bot.AllocatedUSD <= 0 {
			return fmt.Errorf("bot %s: allocated_usd must be positive", bot.InstanceID)
		}
		if bot.PnlMethod != pnl.MethodAverageCost && bot.PnlMethod != pnl.MethodFIFO {
			return fmt.Errorf("bot %s: unknown pnl_method %q", bot.InstanceID, bot.PnlMethod)
		}
		if err := bot.Runner.Validate(); err != nil {
			return fmt.Errorf("bot %s: %w", bot.InstanceID, err)
		}
	}
	return nil
}

// DefaultBotConfig returns a bot with every component at its defaults.
func DefaultBotConfig(instanceID string) BotConfig {
	return BotConfig{
		InstanceID:       instanceID,
		BaseSymbol:       "SOL",
		QuoteSymbol:      "USDC",
		CycleIntervalSec: 15,
		AllocatedUSD:     1000,
		PnlMethod:        pnl.MethodAverageCost,
		Strategy:         strategy.DefaultConfig(),
		Cost:             cost.DefaultConfig(),
		Tier:             tier.DefaultConfig(),
		Sizing:           sizing.DefaultConfig(),
		Regime:           regime.DefaultConfig(),
		ScaleOut:         scaleout.DefaultConfig(),
		Runner:           runner.DefaultConfig(),
		Reserve:          reserve.DefaultConfig(),
		Split:            splitexec.DefaultConfig(),
	}
}

// GenerateSampleConfig writes a complete config.json template.
func GenerateSampleConfig(filename string) error {
	cfg := Config{
		VenueConfig: VenueConfig{
			MockMode: true,
			Pair:     "SOL/USDC",
		},
		DatabaseConfig: DatabaseConfig{
			Enabled:  true,
			Host:     "localhost",
			Port:     5432,
			User:     "dipbot",
			Database: "dipbot",
			SSLMode:  "disable",
		},
		RedisConfig: RedisConfig{
			Enabled:  true,
			Address:  "localhost:6379",
			PoolSize: 10,
		},
		LoggingConfig: LoggingConfig{Level: "info"},
		MetricsConfig: MetricsConfig{Enabled: true, Addr: ":9090"},
		CapitalConfig: capital.DefaultConfig(),
		BotConfigs:    []BotConfig{DefaultBotConfig("bot-1")},
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0644)
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}
