package config

import (
	"time"
)

// Config holds engine settings. Load merges a YAML file, ARB_* environment
// variables and these defaults.
type Config struct {
	Aggregator AggregatorConfig `mapstructure:"aggregator" json:"aggregator"`
	Engine     EngineConfig     `mapstructure:"engine" json:"engine"`
	Market     MarketConfig     `mapstructure:"market" json:"market"`
	Catalog    CatalogConfig    `mapstructure:"catalog" json:"catalog"`
	ESI        ESIConfig        `mapstructure:"esi" json:"esi"`
	Store      StoreConfig      `mapstructure:"store" json:"store"`
	API        APIConfig        `mapstructure:"api" json:"api"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler" json:"scheduler"`
	Logging    LoggingConfig    `mapstructure:"logging" json:"logging"`
}

// AggregatorConfig bounds the snapshot fetch fan-out.
type AggregatorConfig struct {
	MaxConcurrency int           `mapstructure:"max_concurrency" json:"max_concurrency" validate:"min=1,max=256"`
	RatePerSecond  float64       `mapstructure:"rate_per_second" json:"rate_per_second" validate:"gt=0"`
	Burst          int           `mapstructure:"burst" json:"burst" validate:"min=1"`
	FetchTimeout   time.Duration `mapstructure:"fetch_timeout" json:"fetch_timeout" validate:"gt=0"`
	MaxRetries     int           `mapstructure:"max_retries" json:"max_retries" validate:"min=0,max=10"`
	BackoffBase    time.Duration `mapstructure:"backoff_base" json:"backoff_base" validate:"gt=0"`
	BackoffMax     time.Duration `mapstructure:"backoff_max" json:"backoff_max" validate:"gtefield=BackoffBase"`
	SnapshotMaxAge time.Duration `mapstructure:"snapshot_max_age" json:"snapshot_max_age" validate:"gt=0"`
}

// EngineConfig tunes route computation. MaxLotSize is in m3 (one trip).
type EngineConfig struct {
	MaxLotSize          float64       `mapstructure:"max_lot_size" json:"max_lot_size" validate:"gt=0"`
	MinGrossProfit      float64       `mapstructure:"min_gross_profit" json:"min_gross_profit" validate:"gte=0"`
	IncludeUnprofitable bool          `mapstructure:"include_unprofitable" json:"include_unprofitable"`
	CompetitorBand      float64       `mapstructure:"competitor_band" json:"competitor_band" validate:"gte=0,lt=1"`
	StaleOrderAge       time.Duration `mapstructure:"stale_order_age" json:"stale_order_age" validate:"gt=0"`
	VeryStaleOrderAge   time.Duration `mapstructure:"very_stale_order_age" json:"very_stale_order_age" validate:"gtfield=StaleOrderAge"`
	VolumeSaturation    float64       `mapstructure:"volume_saturation" json:"volume_saturation" validate:"gt=0"`
	ProfitSaturation    float64       `mapstructure:"profit_saturation" json:"profit_saturation" validate:"gt=0"`
}

// MarketConfig selects the watch set. Empty lists mean every catalogued entry.
type MarketConfig struct {
	Locations []int64 `mapstructure:"locations" json:"locations"`
	Items     []int32 `mapstructure:"items" json:"items"`
}

type CatalogConfig struct {
	// Path to a catalog YAML file; empty uses the embedded dataset.
	Path string `mapstructure:"path" json:"path"`
}

type ESIConfig struct {
	BaseURL   string        `mapstructure:"base_url" json:"base_url" validate:"required,url"`
	UserAgent string        `mapstructure:"user_agent" json:"user_agent" validate:"required"`
	Timeout   time.Duration `mapstructure:"timeout" json:"timeout" validate:"gt=0"`
}

type StoreConfig struct {
	Driver        string `mapstructure:"driver" json:"driver" validate:"oneof=memory sqlite redis"`
	Path          string `mapstructure:"path" json:"path" validate:"required_if=Driver sqlite"`
	RedisAddr     string `mapstructure:"redis_addr" json:"redis_addr" validate:"required_if=Driver redis"`
	RedisPassword string `mapstructure:"redis_password" json:"-"`
	RedisDB       int    `mapstructure:"redis_db" json:"redis_db" validate:"min=0"`
	History       int    `mapstructure:"history" json:"history" validate:"min=1,max=1000"`
}

type APIConfig struct {
	Addr            string        `mapstructure:"addr" json:"addr" validate:"required"`
	DefaultPageSize int           `mapstructure:"default_page_size" json:"default_page_size" validate:"min=1,max=200"`
	MaxPageSize     int           `mapstructure:"max_page_size" json:"max_page_size" validate:"min=1,max=200,gtefield=DefaultPageSize"`
	BatchMaxAge     time.Duration `mapstructure:"batch_max_age" json:"batch_max_age" validate:"gte=0"`
}

// SchedulerConfig drives periodic runs. Interval 0 disables the loop.
type SchedulerConfig struct {
	Interval time.Duration `mapstructure:"interval" json:"interval" validate:"gte=0"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level" json:"level" validate:"oneof=debug info warn error"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Aggregator: AggregatorConfig{
			MaxConcurrency: 8,
			RatePerSecond:  20,
			Burst:          10,
			FetchTimeout:   10 * time.Second,
			MaxRetries:     3,
			BackoffBase:    500 * time.Millisecond,
			BackoffMax:     15 * time.Second,
			SnapshotMaxAge: 15 * time.Minute,
		},
		Engine: EngineConfig{
			MaxLotSize:        60000,
			MinGrossProfit:    0.01,
			CompetitorBand:    0.01,
			StaleOrderAge:     6 * time.Hour,
			VeryStaleOrderAge: 24 * time.Hour,
			VolumeSaturation:  100,
			ProfitSaturation:  0.2,
		},
		ESI: ESIConfig{
			BaseURL:   "https://esi.evetech.net/latest",
			UserAgent: "eve-arbitrage/1.0",
			Timeout:   30 * time.Second,
		},
		Store: StoreConfig{
			Driver:  "sqlite",
			Path:    "arbitrage.db",
			History: 24,
		},
		API: APIConfig{
			Addr:            "127.0.0.1:13370",
			DefaultPageSize: 20,
			MaxPageSize:     200,
		},
		Scheduler: SchedulerConfig{
			Interval: 5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
