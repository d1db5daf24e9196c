package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables
const (
	EnvRPCEndpoint      = "RPC_ENDPOINT"
	EnvBackupEndpoints  = "BACKUP_RPC_ENDPOINTS" // comma-separated
	EnvWalletAddress    = "WALLET_ADDRESS"
	EnvPrivateKey       = "PRIVATE_KEY"
	EnvTelegramBotToken = "TELEGRAM_BOT_TOKEN"
	EnvTelegramChatID   = "TELEGRAM_CHAT_ID"
	EnvOracleURL        = "ORACLE_URL"
)

// LoadEnv loads environment variables from a .env file when present.
func LoadEnv() error {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// ApplyEnv layers environment overrides onto cfg. Secrets only ever come
// from here: the config file never carries the telegram credentials or the
// wallet key.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv(EnvRPCEndpoint); v != "" {
		cfg.RPCEndpoint = v
	}
	if v := os.Getenv(EnvBackupEndpoints); v != "" {
		cfg.BackupRPCEndpoints = strings.Split(v, ",")
	}
	if v := os.Getenv(EnvWalletAddress); v != "" {
		cfg.WalletAddress = v
	}
	if v := os.Getenv(EnvOracleURL); v != "" {
		cfg.OracleURL = v
	}

	cfg.Telegram.BotToken = os.Getenv(EnvTelegramBotToken)
	cfg.Telegram.ChatID = os.Getenv(EnvTelegramChatID)
	if cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID != "" {
		cfg.Telegram.Enabled = true
	}
}

// GetEnvWithDefault gets an environment variable with a default value.
func GetEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// GetRequiredEnv fails when the variable is unset or empty.
func GetRequiredEnv(key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("required environment variable %s not set", key)
	}
	return value, nil
}
