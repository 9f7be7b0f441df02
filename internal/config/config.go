// Package config loads the tierpay binary's configuration from an optional
// YAML file, a .env file and TIERPAY_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. TIERPAY_HTTP_ADDR.
const EnvPrefix = "TIERPAY"

// Config holds all configuration for the binary.
type Config struct {
	HTTPAddr  string `mapstructure:"http_addr"`
	JWTSecret string `mapstructure:"jwt_secret"`
	Decimals  int32  `mapstructure:"decimals"`

	Log   LogConfig   `mapstructure:"log"`
	Chain ChainConfig `mapstructure:"chain"`
	AMQP  AMQPConfig  `mapstructure:"amqp"`
}

// LogConfig selects the slog handler and optional rotating file output.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// ChainConfig holds the accounts the engines settle through.
type ChainConfig struct {
	// RPCURL, when set, reads pair reserves, oracle usage and NFT balances
	// from a node instead of the in-process simulators.
	RPCURL string `mapstructure:"rpc_url"`

	Admin           string `mapstructure:"admin"`
	LedgerAddress   string `mapstructure:"ledger_address"`
	GateAddress     string `mapstructure:"gate_address"`
	TreasuryAddress string `mapstructure:"treasury_address"`
	SettlementToken string `mapstructure:"settlement_token"`
	Pair            string `mapstructure:"pair"`

	LockPeriod time.Duration `mapstructure:"lock_period"`
}

// AMQPConfig enables journal publishing to RabbitMQ when URL is set.
type AMQPConfig struct {
	URL      string `mapstructure:"url"`
	Exchange string `mapstructure:"exchange"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("jwt_secret", "")
	v.SetDefault("decimals", 18)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)

	v.SetDefault("chain.rpc_url", "")
	v.SetDefault("chain.admin", "")
	v.SetDefault("chain.ledger_address", "0x00000000000000000000000000000000000a11ce")
	v.SetDefault("chain.gate_address", "0x0000000000000000000000000000000000006a7e")
	v.SetDefault("chain.treasury_address", "0x0000000000000000000000000000000000007ea5")
	v.SetDefault("chain.settlement_token", "")
	v.SetDefault("chain.pair", "")
	v.SetDefault("chain.lock_period", "0s")

	v.SetDefault("amqp.url", "")
	v.SetDefault("amqp.exchange", "tierpay_events")
}

// Load reads configuration. A .env file in the working directory is applied
// first when present; path names an optional YAML file. Environment
// variables override both.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("config: load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	return cfg, nil
}

// Validate checks the settings serve depends on.
func (c Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("jwt_secret is required"))
	}
	if c.Decimals < 0 || c.Decimals > 77 {
		errs = append(errs, fmt.Errorf("decimals %d out of range", c.Decimals))
	}
	for key, value := range map[string]string{
		"chain.admin":            c.Chain.Admin,
		"chain.ledger_address":   c.Chain.LedgerAddress,
		"chain.gate_address":     c.Chain.GateAddress,
		"chain.treasury_address": c.Chain.TreasuryAddress,
	} {
		if !common.IsHexAddress(value) {
			errs = append(errs, fmt.Errorf("%s must be a hex address", key))
		}
	}
	for key, value := range map[string]string{
		"chain.settlement_token": c.Chain.SettlementToken,
		"chain.pair":             c.Chain.Pair,
	} {
		if value != "" && !common.IsHexAddress(value) {
			errs = append(errs, fmt.Errorf("%s must be a hex address", key))
		}
	}
	if c.Chain.LockPeriod < 0 {
		errs = append(errs, errors.New("chain.lock_period must not be negative"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// Address parses a configured hex address; empty yields the zero address.
func Address(s string) common.Address {
	if s == "" {
		return common.Address{}
	}
	return common.HexToAddress(s)
}
