// Package config loads and validates the bot configuration from a JSON
// file, a venue catalog and the process environment.
package config

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Config struct {
	// Chain and network settings
	ChainID            uint64   `json:"chain_id"`
	RPCEndpoint        string   `json:"rpc_endpoint"`
	BackupRPCEndpoints []string `json:"backup_rpc_endpoints"`
	WalletAddress      string   `json:"wallet_address"`

	// Trading thresholds
	MaxGasPriceGwei       decimal.Decimal `json:"max_gas_price_gwei"`
	MaxHops               int             `json:"max_hops"`
	MinLiquidityUsd       decimal.Decimal `json:"min_liquidity_usd"`
	MinProfitThresholdEth decimal.Decimal `json:"min_profit_threshold_eth"`
	MinTradeAmountEth     decimal.Decimal `json:"min_trade_amount_eth"`

	// Monitoring intervals
	CheckInterval  time.Duration `json:"check_interval"`
	StatusInterval time.Duration `json:"status_interval"`
	PriceCacheTTL  time.Duration `json:"price_cache_ttl"`

	// Network behavior
	MaxConcurrentQuotes int           `json:"max_concurrent_quotes"`
	OracleTimeout       time.Duration `json:"oracle_timeout"`
	RPCTimeout          time.Duration `json:"rpc_timeout"`
	ReconnectBackoff    time.Duration `json:"reconnect_backoff"`
	MaxReconnects       int           `json:"max_reconnects"`
	SwapDeadline        time.Duration `json:"swap_deadline"`
	OracleURL           string        `json:"oracle_url"`

	// Catalog and watchlist
	VenueCatalogPath       string   `json:"venue_catalog_path"`
	TokenWatchlist         []string `json:"token_watchlist"`
	RegistryAllowOverwrite bool     `json:"registry_allow_overwrite"`

	// Observability
	PrometheusEnabled  bool   `json:"prometheus_enabled"`
	PrometheusEndpoint string `json:"prometheus_endpoint"`
	MetricsNamespace   string `json:"metrics_namespace"`

	// Notifications (secrets come from the environment, never the file)
	Telegram TelegramConfig `json:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"-"`
	ChatID   string `json:"-"`
}

// DefaultConfig returns the stock mainnet configuration.
func DefaultConfig() *Config {
	return &Config{
		ChainID:               1,
		RPCEndpoint:           "http://localhost:8545",
		MaxGasPriceGwei:       decimal.NewFromInt(100),
		MaxHops:               3,
		MinLiquidityUsd:       decimal.NewFromInt(5000),
		MinProfitThresholdEth: decimal.RequireFromString("0.01"),
		MinTradeAmountEth:     decimal.RequireFromString("0.1"),
		CheckInterval:         time.Second,
		StatusInterval:        5 * time.Minute,
		PriceCacheTTL:         30 * time.Second,
		MaxConcurrentQuotes:   8,
		OracleTimeout:         5 * time.Second,
		RPCTimeout:            10 * time.Second,
		ReconnectBackoff:      time.Second,
		MaxReconnects:         5,
		SwapDeadline:          2 * time.Minute,
		OracleURL:             "https://api.coingecko.com/api/v3",
		VenueCatalogPath:      "venues.yaml",
		TokenWatchlist:        []string{"WETH", "USDT", "USDC", "DAI"},
		PrometheusEnabled:     false,
		PrometheusEndpoint:    ":9090",
		MetricsNamespace:      "dexarb",
	}
}

// ValidateConfig reports every problem at once rather than failing on the
// first one.
func (c *Config) ValidateConfig() error {
	var errors []string

	if c.ChainID == 0 {
		errors = append(errors, "chain_id must be specified")
	}
	if c.RPCEndpoint == "" {
		errors = append(errors, "rpc_endpoint must be specified")
	}
	if c.MaxGasPriceGwei.Sign() <= 0 {
		errors = append(errors, "max_gas_price_gwei must be positive")
	}
	if c.MaxHops < 1 {
		errors = append(errors, "max_hops must be at least 1")
	}
	if c.MinLiquidityUsd.IsNegative() {
		errors = append(errors, "min_liquidity_usd must not be negative")
	}
	if c.MinProfitThresholdEth.IsNegative() {
		errors = append(errors, "min_profit_threshold_eth must not be negative")
	}
	if c.MinTradeAmountEth.Sign() <= 0 {
		errors = append(errors, "min_trade_amount_eth must be positive")
	}
	if c.CheckInterval <= 0 {
		errors = append(errors, "check_interval must be positive")
	}
	if c.StatusInterval <= 0 {
		errors = append(errors, "status_interval must be positive")
	}
	if c.PriceCacheTTL <= 0 {
		errors = append(errors, "price_cache_ttl must be positive")
	}
	if c.MaxConcurrentQuotes <= 0 {
		errors = append(errors, "max_concurrent_quotes must be positive")
	}
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			errors = append(errors, "telegram bot token must be set when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			errors = append(errors, "telegram chat id must be set when telegram is enabled")
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}
	return nil
}

// MaxGasPriceWei converts the configured gwei ceiling to wei.
func (c *Config) MaxGasPriceWei() *big.Int {
	return c.MaxGasPriceGwei.Shift(9).BigInt()
}

// LoadConfig reads the config file, layers environment overrides on top and
// validates the result. An empty path falls back to ~/.dexarb.json; a missing
// default file is not an error, the defaults simply stand.
func LoadConfig(cfgFile string) (*Config, error) {
	config := DefaultConfig()

	explicit := cfgFile != ""
	if !explicit {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		cfgFile = filepath.Join(home, ".dexarb.json")
	}

	file, err := os.Open(cfgFile)
	if err != nil {
		if !explicit && os.IsNotExist(err) {
			ApplyEnv(config)
			if err := config.ValidateConfig(); err != nil {
				return nil, err
			}
			return config, nil
		}
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	ApplyEnv(config)
	if err := config.ValidateConfig(); err != nil {
		return nil, err
	}
	return config, nil
}

// SaveConfig writes the configuration back out, secrets excluded.
func SaveConfig(cfg *Config, cfgFile string) error {
	if cfgFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		cfgFile = filepath.Join(home, ".dexarb.json")
	}

	file, err := os.Create(cfgFile)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "    ")
	return encoder.Encode(cfg)
}
