package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Log       Logger    `mapstructure:"logger"`
	DB        Database  `mapstructure:"database"`
	API       API       `mapstructure:"api"`
	Cache     Cache     `mapstructure:"cache"`
	FMP       FMP       `mapstructure:"fmp"`
	Yahoo     Yahoo     `mapstructure:"yahoo"`
	Scheduler Scheduler `mapstructure:"scheduler"`
	Backtest  Backtest  `mapstructure:"backtest"`
}

type Logger struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"`
}

type Database struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"name"`
	SSLMode         string `mapstructure:"ssl_mode"`
	TimeZone        string `mapstructure:"time_zone"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime string `mapstructure:"conn_max_lifetime"`
	LogLevel        string `mapstructure:"log_level"`
}

type API struct {
	Port int `mapstructure:"port"`
}

type Cache struct {
	DefaultExpiration time.Duration `mapstructure:"default_expiration"`
	CleanupInterval   time.Duration `mapstructure:"cleanup_interval"`
}

type FMP struct {
	BaseURL             string        `mapstructure:"base_url"`
	APIKey              string        `mapstructure:"api_key"`
	Timeout             time.Duration `mapstructure:"timeout"`
	MaxRequestPerMinute int           `mapstructure:"max_request_per_minute"`
}

type Yahoo struct {
	BaseURL             string        `mapstructure:"base_url"`
	Timeout             time.Duration `mapstructure:"timeout"`
	MaxRequestPerMinute int           `mapstructure:"max_request_per_minute"`
}

type Scheduler struct {
	SyncSpec       string `mapstructure:"sync_spec"`
	SyncWindowDays int    `mapstructure:"sync_window_days"`
	MaxConcurrency int    `mapstructure:"max_concurrency"`
}

// Backtest is the full simulation parameter surface. Percent-valued fields are
// expressed as percentages (6 means 6%), matching the report output.
type Backtest struct {
	StartDate string `mapstructure:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string `mapstructure:"end_date" validate:"required,datetime=2006-01-02"`

	InitialCapital float64 `mapstructure:"initial_capital" validate:"gt=0"`

	StopLossPct    float64 `mapstructure:"stop_loss_pct" validate:"gt=0,lt=100"`
	TrailStopMA    int     `mapstructure:"trail_stop_ma" validate:"gt=1"`
	MaxHoldingDays int     `mapstructure:"max_holding_days" validate:"gt=0"`

	PositionSizePct        float64 `mapstructure:"position_size_pct" validate:"gt=0,lte=100"`
	MarginRatio            float64 `mapstructure:"margin_ratio" validate:"gte=1"`
	RiskLimitPct           float64 `mapstructure:"risk_limit_pct" validate:"gt=0"`
	MaxConcurrentPositions int     `mapstructure:"max_concurrent_positions" validate:"gt=0"`

	MinSurprisePct       float64 `mapstructure:"min_surprise_percent"`
	MaxGapPct            float64 `mapstructure:"max_gap_percent" validate:"gte=0"`
	MinPrice             float64 `mapstructure:"min_price" validate:"gte=0"`
	MinVolume            float64 `mapstructure:"min_volume" validate:"gte=0"`
	PreEarningsChangePct float64 `mapstructure:"pre_earnings_change_pct"`
	MaxCandidatesPerDay  int     `mapstructure:"max_candidates_per_day" validate:"gt=0"`

	PartialProfitEnabled    bool    `mapstructure:"partial_profit_enabled"`
	PartialProfitTriggerPct float64 `mapstructure:"partial_profit_trigger_pct" validate:"gte=0"`
	PartialProfitSellRatio  float64 `mapstructure:"partial_profit_sell_ratio" validate:"gte=0,lt=1"`

	SlippagePct float64 `mapstructure:"slippage_pct" validate:"gte=0"`

	// EntryPriceSource selects the price used for entries and gap computation:
	// "open" is the official opening print, "prev_close" is a near-open proxy.
	EntryPriceSource string `mapstructure:"entry_price_source" validate:"oneof=open prev_close"`

	// SizingPattern selects the position-sizing strategy variant.
	SizingPattern string `mapstructure:"sizing_pattern" validate:"oneof=fixed breadth_8ma breadth_5stage bearish_signal bottom_3stage"`
	// BreadthCSV points at a market-breadth series for the breadth-driven
	// sizing patterns. Optional; without it those patterns fall back to the
	// fixed size.
	BreadthCSV         string  `mapstructure:"breadth_csv"`
	MinPositionSizePct float64 `mapstructure:"min_position_size_pct" validate:"gt=0"`
	MaxPositionSizePct float64 `mapstructure:"max_position_size_pct" validate:"gt=0"`
}

// Window returns the parsed simulation date range.
func (b Backtest) Window() (time.Time, time.Time, error) {
	start, err := time.Parse("2006-01-02", b.StartDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start_date %q: %w", b.StartDate, err)
	}
	end, err := time.Parse("2006-01-02", b.EndDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end_date %q: %w", b.EndDate, err)
	}
	return start, end, nil
}

// Validate checks the backtest parameter surface. Violations are fatal and
// reported before any simulation starts.
func (b Backtest) Validate() error {
	if err := validator.New().Struct(b); err != nil {
		return fmt.Errorf("invalid backtest configuration: %w", err)
	}

	start, end, err := b.Window()
	if err != nil {
		return fmt.Errorf("invalid backtest configuration: %w", err)
	}
	if !end.After(start) {
		return fmt.Errorf("invalid backtest configuration: end_date %s must be after start_date %s", b.EndDate, b.StartDate)
	}
	if b.MinPositionSizePct > b.MaxPositionSizePct {
		return fmt.Errorf("invalid backtest configuration: min_position_size_pct %.2f exceeds max_position_size_pct %.2f",
			b.MinPositionSizePct, b.MaxPositionSizePct)
	}
	if b.PartialProfitEnabled && b.PartialProfitSellRatio <= 0 {
		return fmt.Errorf("invalid backtest configuration: partial_profit_sell_ratio must be positive when partial profit is enabled")
	}
	return nil
}

func setDefaults() {
	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.encoding", "json")

	viper.SetDefault("backtest.initial_capital", 100000)
	viper.SetDefault("backtest.stop_loss_pct", 6)
	viper.SetDefault("backtest.trail_stop_ma", 21)
	viper.SetDefault("backtest.max_holding_days", 90)
	viper.SetDefault("backtest.position_size_pct", 6)
	viper.SetDefault("backtest.margin_ratio", 1.5)
	viper.SetDefault("backtest.risk_limit_pct", 6)
	viper.SetDefault("backtest.max_concurrent_positions", 10)
	viper.SetDefault("backtest.min_surprise_percent", 5)
	viper.SetDefault("backtest.max_gap_percent", 25)
	viper.SetDefault("backtest.min_price", 10)
	viper.SetDefault("backtest.min_volume", 200000)
	viper.SetDefault("backtest.pre_earnings_change_pct", 0)
	viper.SetDefault("backtest.max_candidates_per_day", 5)
	viper.SetDefault("backtest.partial_profit_enabled", true)
	viper.SetDefault("backtest.partial_profit_trigger_pct", 8)
	viper.SetDefault("backtest.partial_profit_sell_ratio", 0.5)
	viper.SetDefault("backtest.slippage_pct", 0.3)
	viper.SetDefault("backtest.entry_price_source", "open")
	viper.SetDefault("backtest.sizing_pattern", "fixed")
	viper.SetDefault("backtest.min_position_size_pct", 5)
	viper.SetDefault("backtest.max_position_size_pct", 25)

	viper.SetDefault("fmp.base_url", "https://financialmodelingprep.com/api/v3")
	viper.SetDefault("fmp.timeout", 30*time.Second)
	viper.SetDefault("fmp.max_request_per_minute", 300)
	viper.SetDefault("yahoo.base_url", "https://query1.finance.yahoo.com/v8/finance/chart")
	viper.SetDefault("yahoo.timeout", 30*time.Second)
	viper.SetDefault("yahoo.max_request_per_minute", 60)

	viper.SetDefault("scheduler.sync_spec", "0 2 * * *")
	viper.SetDefault("scheduler.sync_window_days", 7)
	viper.SetDefault("scheduler.max_concurrency", 4)
}

func Load() (*Config, error) {
	// .env is optional; viper picks the variables up through AutomaticEnv.
	_ = godotenv.Load()

	viper.SetConfigType("yaml")
	viper.SetConfigName("config")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AddConfigPath(".")
	viper.AutomaticEnv()
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		fmt.Println("No config file loaded:", err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
