package config

import (
	"errors"
	"fmt"
	"io/fs"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/xhit/go-str2duration/v2"

	"kaspa-price-alerts/internal/logging"
	"kaspa-price-alerts/internal/version"
)

// ErrMissingToken is returned when the chat bot token is not configured.
var ErrMissingToken = errors.New("telegram.bot_token must be configured")

// Storage drivers.
const (
	DriverFile     = "file"
	DriverBunt     = "buntdb"
	DriverPostgres = "postgres"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Asset     AssetConfig     `mapstructure:"asset"`
	PriceAPI  PriceAPIConfig  `mapstructure:"price_api"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// AssetConfig identifies the tracked coin.
type AssetConfig struct {
	ID         string  `mapstructure:"id"`
	Symbol     string  `mapstructure:"symbol"`
	VsCurrency string  `mapstructure:"vs_currency"`
	ATHSeed    float64 `mapstructure:"ath_seed"`
}

// PriceAPIConfig covers the spot price endpoint.
type PriceAPIConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// StorageConfig selects and parameterises the persistence backend.
type StorageConfig struct {
	Driver       string         `mapstructure:"driver"`
	SamplesPath  string         `mapstructure:"samples_path"`
	ATHPath      string         `mapstructure:"ath_path"`
	ChannelsPath string         `mapstructure:"channels_path"`
	BuntDBPath   string         `mapstructure:"buntdb_path"`
	Database     DatabaseConfig `mapstructure:"database"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// SchedulerConfig governs sampling cadence.
type SchedulerConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	AlignToBucket bool          `mapstructure:"align_to_bucket"`
	StartupDelay  time.Duration `mapstructure:"startup_delay"`
}

// AlertingConfig defines the move threshold and comparison window.
type AlertingConfig struct {
	ThresholdPct float64       `mapstructure:"threshold_pct"`
	Window       time.Duration `mapstructure:"window"`
}

// TelegramConfig holds the bot credentials.
type TelegramConfig struct {
	BotToken    string        `mapstructure:"bot_token"`
	APIBase     string        `mapstructure:"api_base"`
	PollTimeout time.Duration `mapstructure:"poll_timeout"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("KASPAWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "kaspawatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file", "kaspapricebot.log")

	v.SetDefault("asset.id", "kaspa")
	v.SetDefault("asset.symbol", "KAS")
	v.SetDefault("asset.vs_currency", "usd")
	v.SetDefault("asset.ath_seed", 0.154)

	v.SetDefault("price_api.base_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("price_api.request_timeout", "10s")
	v.SetDefault("price_api.user_agent", version.UserAgent())

	v.SetDefault("storage.driver", DriverFile)
	v.SetDefault("storage.samples_path", "kas_data.csv")
	v.SetDefault("storage.ath_path", "kas_ath.csv")
	v.SetDefault("storage.channels_path", "chat_ids.json")
	v.SetDefault("storage.buntdb_path", "kaspawatch.db")
	v.SetDefault("storage.database.max_open_conns", 4)
	v.SetDefault("storage.database.max_idle_conns", 1)
	v.SetDefault("storage.database.conn_max_lifetime", "30m")

	v.SetDefault("scheduler.interval", "1m")
	v.SetDefault("scheduler.align_to_bucket", false)
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("alerting.threshold_pct", 5.0)
	v.SetDefault("alerting.window", "2h")

	v.SetDefault("telegram.api_base", "https://api.telegram.org")
	v.SetDefault("telegram.poll_timeout", "30s")

	v.SetDefault("export.max_data_points", 10000)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			stringToDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// stringToDurationHookFunc accepts day/week units on top of time.ParseDuration.
func stringToDurationHookFunc() mapstructure.DecodeHookFuncType {
	durationType := reflect.TypeOf(time.Duration(0))
	return func(f reflect.Type, t reflect.Type, data any) (any, error) {
		if f.Kind() != reflect.String || t != durationType {
			return data, nil
		}
		raw := strings.TrimSpace(data.(string))
		if raw == "" {
			return time.Duration(0), nil
		}
		return str2duration.ParseDuration(raw)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Asset.ID == "" {
		return fmt.Errorf("asset.id must be configured")
	}
	if c.Asset.VsCurrency == "" {
		return fmt.Errorf("asset.vs_currency must be configured")
	}
	if c.Asset.ATHSeed < 0 {
		return fmt.Errorf("asset.ath_seed cannot be negative")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Alerting.ThresholdPct <= 0 {
		return fmt.Errorf("alerting.threshold_pct must be greater than zero")
	}
	if c.Alerting.Window <= 0 {
		return fmt.Errorf("alerting.window must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	switch c.Storage.Driver {
	case DriverFile:
		if c.Storage.SamplesPath == "" || c.Storage.ATHPath == "" || c.Storage.ChannelsPath == "" {
			return fmt.Errorf("storage file paths must be configured")
		}
	case DriverBunt:
		if c.Storage.BuntDBPath == "" {
			return fmt.Errorf("storage.buntdb_path must be configured")
		}
	case DriverPostgres:
		if c.Storage.Database.DSN == "" {
			return fmt.Errorf("storage.database.dsn must be configured")
		}
	default:
		return fmt.Errorf("unknown storage.driver %q", c.Storage.Driver)
	}
	return nil
}

// ValidateBot checks the settings required to connect to the chat platform.
func (c *Config) ValidateBot() error {
	if strings.TrimSpace(c.Telegram.BotToken) == "" {
		return ErrMissingToken
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
