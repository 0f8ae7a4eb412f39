package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	cfg := fromViper(v)

	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Sandwich.BlockInterval != 12*time.Second {
		t.Errorf("block interval = %s, want 12s", cfg.Sandwich.BlockInterval)
	}
	if cfg.Sandwich.MaxPendingAge != 3 {
		t.Errorf("max pending age = %d, want 3", cfg.Sandwich.MaxPendingAge)
	}
	if len(cfg.Execution.Relays) != len(DefaultRelays) {
		t.Errorf("relays = %d, want %d", len(cfg.Execution.Relays), len(DefaultRelays))
	}
	if cfg.Execution.Relays["flashbots"] != "https://relay.flashbots.net" {
		t.Errorf("flashbots relay = %q", cfg.Execution.Relays["flashbots"])
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing url", func(c *Config) { c.RPC.URL = "" }},
		{"no workers", func(c *Config) { c.Sandwich.WorkerCount = 0 }},
		{"zero pending age", func(c *Config) { c.Sandwich.MaxPendingAge = 0 }},
		{"pending age too long", func(c *Config) { c.Sandwich.MaxPendingAge = 4 }},
		{"bad search", func(c *Config) { c.Sandwich.SearchMethod = "bisect" }},
		{"alert without token", func(c *Config) { c.Alert.Enabled = true }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			setDefaults(v)
			cfg := fromViper(v)
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
