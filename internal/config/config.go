package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "GRADUATION"

// Backend kinds.
const (
	BackendMemory = "memory"
	BackendChain  = "chain"
)

// Config holds configuration values shared by every command.
type Config struct {
	RPCURL              string
	Backend             string
	PGDSN               string
	Factory             string
	Engine              string
	Graduation          string
	PriceFeed           string
	EthPrice            float64
	PriceMaxAge         time.Duration
	SignerKey           string
	Admins              []string
	RecordsOut          string
	Seed                string
	ReceiptTimeout      time.Duration
	DefaultMarketCapUSD uint64
	DefaultVolumeUSD    uint64
	DefaultHolders      uint64
	ScanConcurrency     int
	LogLevel            string
	LogFile             string
}

// Load merges .env, config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v, err := newViper(cfgFile, flags)
	if err != nil {
		return Config{}, err
	}
	return fromViper(v), nil
}

func newViper(cfgFile string, flags *pflag.FlagSet) (*viper.Viper, error) {
	envFile := ".env"
	if flags != nil {
		if f := flags.Lookup("env-file"); f != nil && f.Value.String() != "" {
			envFile = f.Value.String()
		}
	}
	if err := loadEnvFile(envFile); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("backend", BackendMemory)
	v.SetDefault("price-max-age", time.Hour)
	v.SetDefault("receipt-timeout", 2*time.Minute)
	v.SetDefault("scan-concurrency", 8)
	v.SetDefault("log-level", "info")
	v.SetDefault("sample-interval", 5*time.Minute)
	v.SetDefault("sample-batch", 50)
	v.SetDefault("sample-window", 6*time.Hour)
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("checkpoint", "./data/sampler.json")
	v.SetDefault("listen", ":8080")
	v.SetDefault("rate-limit", 5.0)
	v.SetDefault("rate-burst", 10)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return v, nil
}

// loadEnvFile exports a dotenv file without overriding variables already set.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

func fromViper(v *viper.Viper) Config {
	return Config{
		RPCURL:              v.GetString("rpc"),
		Backend:             strings.ToLower(strings.TrimSpace(v.GetString("backend"))),
		PGDSN:               v.GetString("pg-dsn"),
		Factory:             v.GetString("factory"),
		Engine:              v.GetString("engine"),
		Graduation:          v.GetString("graduation"),
		PriceFeed:           v.GetString("price-feed"),
		EthPrice:            v.GetFloat64("eth-price"),
		PriceMaxAge:         v.GetDuration("price-max-age"),
		SignerKey:           v.GetString("signer-key"),
		Admins:              getStringSlice(v, "admins"),
		RecordsOut:          v.GetString("records-out"),
		Seed:                v.GetString("seed"),
		ReceiptTimeout:      v.GetDuration("receipt-timeout"),
		DefaultMarketCapUSD: v.GetUint64("default-market-cap-usd"),
		DefaultVolumeUSD:    v.GetUint64("default-volume-usd"),
		DefaultHolders:      v.GetUint64("default-holders"),
		ScanConcurrency:     v.GetInt("scan-concurrency"),
		LogLevel:            v.GetString("log-level"),
		LogFile:             v.GetString("log-file"),
	}
}

// Validate checks backend wiring and address formats.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendMemory:
	case BackendChain:
		if c.RPCURL == "" {
			return fmt.Errorf("rpc url is required for the chain backend")
		}
		for name, value := range map[string]string{"factory": c.Factory, "engine": c.Engine, "graduation": c.Graduation} {
			if value == "" {
				return fmt.Errorf("%s address is required for the chain backend", name)
			}
		}
		if c.Seed != "" {
			return fmt.Errorf("seed is only supported by the %s backend", BackendMemory)
		}
	default:
		return fmt.Errorf("unknown backend %q (want %s or %s)", c.Backend, BackendMemory, BackendChain)
	}

	for name, value := range map[string]string{
		"factory":    c.Factory,
		"engine":     c.Engine,
		"graduation": c.Graduation,
		"price-feed": c.PriceFeed,
	} {
		if value != "" && !common.IsHexAddress(value) {
			return fmt.Errorf("invalid %s address: %s", name, value)
		}
	}
	for _, admin := range c.Admins {
		if !common.IsHexAddress(admin) {
			return fmt.Errorf("invalid admin address: %s", admin)
		}
	}

	if c.PriceFeed == "" && c.EthPrice <= 0 {
		return fmt.Errorf("either price-feed or a positive eth-price is required")
	}
	if c.PriceFeed != "" && c.RPCURL == "" {
		return fmt.Errorf("rpc url is required to read price-feed")
	}
	return nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
