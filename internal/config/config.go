package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Store   StoreConfig   `mapstructure:"store"`
	Sweep   SweepConfig   `mapstructure:"sweep"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

type StoreConfig struct {
	Driver        string `mapstructure:"driver"`
	DSN           string `mapstructure:"dsn"`
	Region        string `mapstructure:"region"`
	Codec         string `mapstructure:"codec"`
	TimeoutOnIdle bool   `mapstructure:"timeout_on_idle"`
}

type SweepConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Interval       time.Duration `mapstructure:"interval"`
	Timeout        time.Duration `mapstructure:"timeout"`
	RemoveOnExpiry bool          `mapstructure:"remove_on_expiry"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("msgstore")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.region", "DEFAULT")
	v.SetDefault("store.codec", "gob")
	v.SetDefault("sweep.enabled", true)
	v.SetDefault("sweep.interval", "30s")
	v.SetDefault("sweep.timeout", "5m")
	v.SetDefault("sweep.remove_on_expiry", true)
	v.SetDefault("metrics.addr", ":2112")
}

func (c Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("store.driver must be sqlite or postgres, got %q", c.Store.Driver)
	}
	if c.Store.DSN == "" {
		return fmt.Errorf("store.dsn is required")
	}
	switch c.Store.Codec {
	case "", "gob", "json":
	default:
		return fmt.Errorf("store.codec must be gob or json, got %q", c.Store.Codec)
	}
	if c.Sweep.Enabled {
		if c.Sweep.Interval <= 0 {
			return fmt.Errorf("sweep.interval must be positive")
		}
		if c.Sweep.Timeout <= 0 {
			return fmt.Errorf("sweep.timeout must be positive")
		}
	}
	return nil
}
