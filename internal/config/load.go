package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. ARB_STORE_DRIVER.
const EnvPrefix = "ARB"

// Load reads configuration with priority env > file > defaults.
// A missing config file is not an error when path is empty.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("arbitrage")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, Default())

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override keys absent from the file.
func setDefaults(v *viper.Viper, d *Config) {
	a := d.Aggregator
	v.SetDefault("aggregator.max_concurrency", a.MaxConcurrency)
	v.SetDefault("aggregator.rate_per_second", a.RatePerSecond)
	v.SetDefault("aggregator.burst", a.Burst)
	v.SetDefault("aggregator.fetch_timeout", a.FetchTimeout)
	v.SetDefault("aggregator.max_retries", a.MaxRetries)
	v.SetDefault("aggregator.backoff_base", a.BackoffBase)
	v.SetDefault("aggregator.backoff_max", a.BackoffMax)
	v.SetDefault("aggregator.snapshot_max_age", a.SnapshotMaxAge)

	e := d.Engine
	v.SetDefault("engine.max_lot_size", e.MaxLotSize)
	v.SetDefault("engine.min_gross_profit", e.MinGrossProfit)
	v.SetDefault("engine.include_unprofitable", e.IncludeUnprofitable)
	v.SetDefault("engine.competitor_band", e.CompetitorBand)
	v.SetDefault("engine.stale_order_age", e.StaleOrderAge)
	v.SetDefault("engine.very_stale_order_age", e.VeryStaleOrderAge)
	v.SetDefault("engine.volume_saturation", e.VolumeSaturation)
	v.SetDefault("engine.profit_saturation", e.ProfitSaturation)

	v.SetDefault("market.locations", []int64{})
	v.SetDefault("market.items", []int32{})
	v.SetDefault("catalog.path", d.Catalog.Path)

	v.SetDefault("esi.base_url", d.ESI.BaseURL)
	v.SetDefault("esi.user_agent", d.ESI.UserAgent)
	v.SetDefault("esi.timeout", d.ESI.Timeout)

	s := d.Store
	v.SetDefault("store.driver", s.Driver)
	v.SetDefault("store.path", s.Path)
	v.SetDefault("store.redis_addr", s.RedisAddr)
	v.SetDefault("store.redis_password", s.RedisPassword)
	v.SetDefault("store.redis_db", s.RedisDB)
	v.SetDefault("store.history", s.History)

	v.SetDefault("api.addr", d.API.Addr)
	v.SetDefault("api.default_page_size", d.API.DefaultPageSize)
	v.SetDefault("api.max_page_size", d.API.MaxPageSize)
	v.SetDefault("api.batch_max_age", d.API.BatchMaxAge)

	v.SetDefault("scheduler.interval", d.Scheduler.Interval)
	v.SetDefault("logging.level", d.Logging.Level)
}

// Validate checks struct tags and reports every failing field.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	return nil
}

func formatValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msgs = append(msgs, fmt.Sprintf("field '%s' failed validation: %s (value: '%v')", e.Namespace(), e.Tag(), e.Value()))
	}
	return fmt.Errorf("validation failed:\n  %s", strings.Join(msgs, "\n  "))
}
