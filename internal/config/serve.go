package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// SampleConfig holds settings for the metric sampler.
type SampleConfig struct {
	Config
	Interval     time.Duration
	BatchSize    int
	Window       time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	Checkpoint   string
}

// ServeConfig holds settings for the HTTP API.
type ServeConfig struct {
	SampleConfig
	Listen         string
	JWTSecret      string
	RateLimit      float64
	RateBurst      int
	SamplerEnabled bool
}

// LoadSample merges config sources into SampleConfig.
func LoadSample(cfgFile string, flags *pflag.FlagSet) (SampleConfig, error) {
	v, err := newViper(cfgFile, flags)
	if err != nil {
		return SampleConfig{}, err
	}
	return sampleFromViper(v), nil
}

// LoadServe merges config sources into ServeConfig.
func LoadServe(cfgFile string, flags *pflag.FlagSet) (ServeConfig, error) {
	v, err := newViper(cfgFile, flags)
	if err != nil {
		return ServeConfig{}, err
	}
	return ServeConfig{
		SampleConfig:   sampleFromViper(v),
		Listen:         v.GetString("listen"),
		JWTSecret:      v.GetString("jwt-secret"),
		RateLimit:      v.GetFloat64("rate-limit"),
		RateBurst:      v.GetInt("rate-burst"),
		SamplerEnabled: v.GetBool("sampler"),
	}, nil
}

func sampleFromViper(v *viper.Viper) SampleConfig {
	return SampleConfig{
		Config:       fromViper(v),
		Interval:     v.GetDuration("sample-interval"),
		BatchSize:    v.GetInt("sample-batch"),
		Window:       v.GetDuration("sample-window"),
		MaxRetries:   v.GetInt("max-retries"),
		RetryBackoff: v.GetDuration("retry-backoff"),
		Checkpoint:   v.GetString("checkpoint"),
	}
}

// Validate checks sampler settings on top of the shared ones.
func (c SampleConfig) Validate() error {
	if err := c.Config.Validate(); err != nil {
		return err
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("sample-batch must be greater than zero")
	}
	if c.Interval <= 0 {
		return fmt.Errorf("sample-interval must be greater than zero")
	}
	return nil
}

// Validate checks listener and rate limit settings.
func (c ServeConfig) Validate() error {
	if c.SamplerEnabled {
		if err := c.SampleConfig.Validate(); err != nil {
			return err
		}
	} else if err := c.Config.Validate(); err != nil {
		return err
	}
	if c.Listen == "" {
		return fmt.Errorf("listen address is required")
	}
	if c.RateLimit <= 0 || c.RateBurst <= 0 {
		return fmt.Errorf("rate-limit and rate-burst must be positive")
	}
	return nil
}
