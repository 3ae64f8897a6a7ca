package config

import (
	"testing"

	"dex-dip-bot/internal/pnl"
)

func validConfig() *Config {
	return &Config{
		VenueConfig: VenueConfig{MockMode: true},
		BotConfigs:  []BotConfig{DefaultBotConfig("bot-1")},
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	cfg := validConfig()
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestValidateRejectsDuplicateInstances(t *testing.T) {
	cfg := validConfig()
	cfg.BotConfigs = append(cfg.BotConfigs, DefaultBotConfig("bot-1"))
	applyDefaults(cfg)
	if err := cfg.Validate(); err == nil {
		t.Fatal("duplicate instance ids accepted")
	}
}

func TestValidateRejectsNonPositiveAllocation(t *testing.T) {
	cfg := validConfig()
	cfg.BotConfigs[0].AllocatedUSD = 0
	applyDefaults(cfg)
	if err := cfg.Validate(); err == nil {
		t.Fatal("zero allocation accepted")
	}
}

func TestValidateRequiresBaseURLWithoutMock(t *testing.T) {
	cfg := validConfig()
	cfg.VenueConfig.MockMode = false
	applyDefaults(cfg)
	if err := cfg.Validate(); err == nil {
		t.Fatal("missing base_url accepted")
	}
}

func TestApplyDefaultsFillsBotFields(t *testing.T) {
	cfg := &Config{
		VenueConfig: VenueConfig{MockMode: true},
		BotConfigs:  []BotConfig{{InstanceID: "bot-1", AllocatedUSD: 500}},
	}
	applyDefaults(cfg)

	b := cfg.BotConfigs[0]
	if b.CycleIntervalSec != 15 {
		t.Errorf("cycle interval = %d, want 15", b.CycleIntervalSec)
	}
	if b.PnlMethod != pnl.MethodAverageCost {
		t.Errorf("pnl method = %q, want average cost", b.PnlMethod)
	}
	if cfg.DatabaseConfig.Port != 5432 || cfg.MetricsConfig.Addr != ":9090" {
		t.Errorf("infra defaults: %+v %+v", cfg.DatabaseConfig, cfg.MetricsConfig)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("VENUE_BASE_URL", "https://agg.example")
	t.Setenv("DB_PASSWORD", "hunter2")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := validConfig()
	applyEnvOverrides(cfg)

	if cfg.VenueConfig.BaseURL != "https://agg.example" {
		t.Errorf("base url = %q", cfg.VenueConfig.BaseURL)
	}
	if cfg.DatabaseConfig.Password != "hunter2" {
		t.Errorf("db password not applied")
	}
	if cfg.LoggingConfig.Level != "debug" {
		t.Errorf("log level = %q", cfg.LoggingConfig.Level)
	}
}
