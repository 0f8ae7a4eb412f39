package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the sandwich bot
type Config struct {
	RPC       RPCConfig
	Sandwich  SandwichConfig
	Execution ExecutionConfig
	Alert     AlertConfig
	Metrics   MetricsConfig
	Logging   LoggingConfig
}

// RPCConfig holds Ethereum RPC configuration
type RPCConfig struct {
	URL            string
	ChainID        uint64
	RetryAttempts  int
	RetryDelay     time.Duration
	RequestTimeout time.Duration
}

// SandwichConfig holds tracker, extraction and optimizer settings
type SandwichConfig struct {
	BotAddress         string
	BlockInterval      time.Duration
	MaxPendingAge      uint64
	WorkerCount        int
	MinMarginWei       int64
	EthUSDPrice        float64 // converts gas cost into stable main currencies
	AssumedSlippageBps int64   // victim tolerance when calldata can't be decoded
	MaxAmountInEth     float64
	MaxAmountInStable  float64
	SearchMethod       string // "golden" or "nelder-mead"
	SearchIterations   int
	DefaultGas         uint64
}

// ExecutionConfig holds signing and relay settings
type ExecutionConfig struct {
	PrivateKey       string
	IdentityKey      string
	PriorityFeeWei   int64
	GasMultiplierPct uint64
	Relays           map[string]string
	SignedRelays     []string
	DryRun           bool
}

// AlertConfig holds Telegram alerting settings
type AlertConfig struct {
	Enabled        bool
	TelegramToken  string
	TelegramChatID string
}

// MetricsConfig holds the Prometheus endpoint settings
type MetricsConfig struct {
	Addr string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string // "json" or "console"
}

// MaxPendingAgeLimit is the longest a pending transaction may stay tracked, in blocks
const MaxPendingAgeLimit = 3

// DefaultRelays is the builder table used when no relays are configured
var DefaultRelays = map[string]string{
	"flashbots":    "https://relay.flashbots.net",
	"beaverbuild":  "https://rpc.beaverbuild.org",
	"rsync":        "https://rsync-builder.xyz",
	"titanbuilder": "https://rpc.titanbuilder.xyz",
	"builder0x69":  "https://builder0x69.io",
	"f1b":          "https://rpc.f1b.io",
	"lokibuilder":  "https://rpc.lokibuilder.xyz",
	"eden":         "https://api.edennetwork.io/v1/rpc",
	"penguinbuild": "https://rpc.penguinbuild.org",
	"gambit":       "https://builder.gmbit.co/rpc",
}

// Load reads configuration from .env, environment and config file
func Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	// Environment variable support
	v.SetEnvPrefix("SANDWICH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file support
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.sandwich-bot")

	// Read config file (optional)
	_ = v.ReadInConfig()

	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("rpc.url", "ws://localhost:8546")
	v.SetDefault("rpc.chain_id", 1)
	v.SetDefault("rpc.retry_attempts", 3)
	v.SetDefault("rpc.retry_delay", "500ms")
	v.SetDefault("rpc.request_timeout", "10s")

	v.SetDefault("sandwich.bot_address", "")
	v.SetDefault("sandwich.block_interval", "12s")
	v.SetDefault("sandwich.max_pending_age", 3)
	v.SetDefault("sandwich.worker_count", 64)
	v.SetDefault("sandwich.min_margin_wei", 0)
	v.SetDefault("sandwich.eth_usd_price", 2500.0)
	v.SetDefault("sandwich.assumed_slippage_bps", 50)
	v.SetDefault("sandwich.max_amount_in_eth", 10.0)
	v.SetDefault("sandwich.max_amount_in_stable", 25000.0)
	v.SetDefault("sandwich.search_method", "golden")
	v.SetDefault("sandwich.search_iterations", 64)
	v.SetDefault("sandwich.default_gas", 150000)

	v.SetDefault("execution.private_key", "")
	v.SetDefault("execution.identity_key", "")
	v.SetDefault("execution.priority_fee_wei", 0)
	v.SetDefault("execution.gas_multiplier_pct", 120)
	v.SetDefault("execution.relays", DefaultRelays)
	v.SetDefault("execution.signed_relays", []string{"flashbots"})
	v.SetDefault("execution.dry_run", false)

	v.SetDefault("alert.enabled", false)
	v.SetDefault("alert.telegram_token", "")
	v.SetDefault("alert.telegram_chat_id", "")

	v.SetDefault("metrics.addr", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		RPC: RPCConfig{
			URL:            v.GetString("rpc.url"),
			ChainID:        v.GetUint64("rpc.chain_id"),
			RetryAttempts:  v.GetInt("rpc.retry_attempts"),
			RetryDelay:     v.GetDuration("rpc.retry_delay"),
			RequestTimeout: v.GetDuration("rpc.request_timeout"),
		},
		Sandwich: SandwichConfig{
			BotAddress:         v.GetString("sandwich.bot_address"),
			BlockInterval:      v.GetDuration("sandwich.block_interval"),
			MaxPendingAge:      v.GetUint64("sandwich.max_pending_age"),
			WorkerCount:        v.GetInt("sandwich.worker_count"),
			MinMarginWei:       v.GetInt64("sandwich.min_margin_wei"),
			EthUSDPrice:        v.GetFloat64("sandwich.eth_usd_price"),
			AssumedSlippageBps: v.GetInt64("sandwich.assumed_slippage_bps"),
			MaxAmountInEth:     v.GetFloat64("sandwich.max_amount_in_eth"),
			MaxAmountInStable:  v.GetFloat64("sandwich.max_amount_in_stable"),
			SearchMethod:       v.GetString("sandwich.search_method"),
			SearchIterations:   v.GetInt("sandwich.search_iterations"),
			DefaultGas:         v.GetUint64("sandwich.default_gas"),
		},
		Execution: ExecutionConfig{
			PrivateKey:       v.GetString("execution.private_key"),
			IdentityKey:      v.GetString("execution.identity_key"),
			PriorityFeeWei:   v.GetInt64("execution.priority_fee_wei"),
			GasMultiplierPct: v.GetUint64("execution.gas_multiplier_pct"),
			Relays:           v.GetStringMapString("execution.relays"),
			SignedRelays:     v.GetStringSlice("execution.signed_relays"),
			DryRun:           v.GetBool("execution.dry_run"),
		},
		Alert: AlertConfig{
			Enabled:        v.GetBool("alert.enabled"),
			TelegramToken:  v.GetString("alert.telegram_token"),
			TelegramChatID: v.GetString("alert.telegram_chat_id"),
		},
		Metrics: MetricsConfig{
			Addr: v.GetString("metrics.addr"),
		},
		Logging: LoggingConfig{
			Level:  v.GetString("logging.level"),
			Format: v.GetString("logging.format"),
		},
	}
}

// Validate rejects configurations the bot cannot start with
func (c *Config) Validate() error {
	if c.RPC.URL == "" {
		return fmt.Errorf("rpc.url is required")
	}
	if c.RPC.RetryAttempts < 1 {
		return fmt.Errorf("rpc.retry_attempts must be at least 1, got %d", c.RPC.RetryAttempts)
	}
	if c.Sandwich.WorkerCount < 1 {
		return fmt.Errorf("sandwich.worker_count must be at least 1, got %d", c.Sandwich.WorkerCount)
	}
	if c.Sandwich.MaxPendingAge < 1 || c.Sandwich.MaxPendingAge > MaxPendingAgeLimit {
		return fmt.Errorf("sandwich.max_pending_age must be between 1 and %d, got %d", MaxPendingAgeLimit, c.Sandwich.MaxPendingAge)
	}
	if c.Sandwich.BlockInterval <= 0 {
		return fmt.Errorf("sandwich.block_interval must be positive")
	}
	switch c.Sandwich.SearchMethod {
	case "golden", "nelder-mead":
	default:
		return fmt.Errorf("unknown sandwich.search_method %q", c.Sandwich.SearchMethod)
	}
	if c.Alert.Enabled && (c.Alert.TelegramToken == "" || c.Alert.TelegramChatID == "") {
		return fmt.Errorf("alert.enabled requires telegram_token and telegram_chat_id")
	}
	return nil
}
