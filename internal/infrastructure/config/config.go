package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all configuration for the settlement bot.
type Config struct {
	Environment        string   `mapstructure:"environment"`
	LogLevel           string   `mapstructure:"log_level"`
	Maintenance        bool     `mapstructure:"maintenance"`
	PermissiveTestMode bool     `mapstructure:"permissive_test_mode"`
	Admins             []string `mapstructure:"admins"`
	Banned             []string `mapstructure:"banned"`

	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Wallet    WalletConfig    `mapstructure:"wallet"`
	PriceFeed PriceFeedConfig `mapstructure:"price_feed"`
	Trading   TradingConfig   `mapstructure:"trading"`
	TradeNet  TradeNetConfig  `mapstructure:"tradenet"`
	Email     EmailConfig     `mapstructure:"email"`
}

// TradeNetConfig configures the trade-gateway sidecar that owns the trading
// network session. Offers arrive from it as webhooks; actions go back to it
// over HTTP.
type TradeNetConfig struct {
	BaseURL        string `mapstructure:"base_url" validate:"required"`
	APIToken       string `mapstructure:"api_token"`
	WebhookToken   string `mapstructure:"webhook_token"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// ServerConfig configures the ops listener (health + metrics only).
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port" validate:"required"`
}

// DatabaseConfig configures the postgres connection.
type DatabaseConfig struct {
	URL             string `mapstructure:"url" validate:"required"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

// RedisConfig configures the redis connection holding the poll cursor.
type RedisConfig struct {
	Addr     string `mapstructure:"addr" validate:"required"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// WalletConfig configures the wallet RPC node and the transaction poller.
type WalletConfig struct {
	// Network selects the active chain and with it the RPC endpoint and the
	// deposit-address grammar. "mainnet" or "stagenet".
	Network  string                         `mapstructure:"network" validate:"required,oneof=mainnet stagenet"`
	Networks map[string]WalletNetworkConfig `mapstructure:"networks" validate:"required"`

	MinBlockHeight      uint64 `mapstructure:"min_block_height" validate:"required"`
	PollIntervalSeconds int    `mapstructure:"poll_interval_seconds" validate:"required,min=1"`
	TimeoutSeconds      int    `mapstructure:"timeout_seconds"`

	// CursorOverride seeds the poll cursor manually. Honored only in
	// maintenance mode; setting it while live aborts startup.
	CursorOverride string `mapstructure:"cursor_override"`
}

// WalletNetworkConfig holds per-network wallet settings.
type WalletNetworkConfig struct {
	RPCURL string `mapstructure:"rpc_url" validate:"required"`
}

// Active returns the settings for the selected network.
func (w WalletConfig) Active() (WalletNetworkConfig, error) {
	nc, ok := w.Networks[w.Network]
	if !ok {
		return WalletNetworkConfig{}, fmt.Errorf("no wallet settings for network %q", w.Network)
	}
	return nc, nil
}

// PollInterval returns the poll interval as a duration.
func (w WalletConfig) PollInterval() time.Duration {
	return time.Duration(w.PollIntervalSeconds) * time.Second
}

// PriceFeedConfig configures the fiat/coin exchange rate feed.
type PriceFeedConfig struct {
	URL             string `mapstructure:"url" validate:"required"`
	APIKey          string `mapstructure:"api_key"`
	AssetID         int    `mapstructure:"asset_id" validate:"required"`
	RefreshSchedule string `mapstructure:"refresh_schedule" validate:"required"`
	TimeoutSeconds  int    `mapstructure:"timeout_seconds"`
}

// TradingConfig holds unit prices, the item allow-list and inventory limits.
// Prices are strings so they decode losslessly into decimals.
type TradingConfig struct {
	BuyPriceUSD       string   `mapstructure:"buy_price_usd" validate:"required"`
	SellPriceUSD      string   `mapstructure:"sell_price_usd" validate:"required"`
	AllowedItemNames  []string `mapstructure:"allowed_item_names" validate:"required,min=1"`
	ItemCategoryID    int64    `mapstructure:"item_category_id" validate:"required"`
	InventoryCapacity int      `mapstructure:"inventory_capacity" validate:"required,min=1"`
	StatusSchedule    string   `mapstructure:"status_schedule" validate:"required"`
}

// Prices parses and sanity-checks the configured unit prices.
func (t TradingConfig) Prices() (buy, sell decimal.Decimal, err error) {
	buy, err = decimal.NewFromString(t.BuyPriceUSD)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("parse buy price: %w", err)
	}
	sell, err = decimal.NewFromString(t.SellPriceUSD)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("parse sell price: %w", err)
	}
	if buy.IsZero() || sell.IsZero() {
		return decimal.Zero, decimal.Zero, fmt.Errorf("unit prices must be non-zero (buy=%s sell=%s)", buy, sell)
	}
	return buy, sell, nil
}

// EmailConfig configures operator incident alerts.
type EmailConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	SendGridKey     string `mapstructure:"sendgrid_key"`
	FromAddress     string `mapstructure:"from_address"`
	OperatorAddress string `mapstructure:"operator_address"`
}

// Load reads configuration from configs/<env>.yaml and the environment,
// validates it, and returns the result.
func Load() (*Config, error) {
	if err := godotenv.Load(".env.local", ".env"); err != nil {
		// missing env files are fine; real deployments set variables directly
		_ = err
	}

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	v := viper.New()
	v.SetConfigFile(fmt.Sprintf("./configs/%s.yaml", env))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Environment = env

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks structural constraints plus the operational guardrails the
// toggles require.
func (c *Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	if _, _, err := c.Trading.Prices(); err != nil {
		return err
	}
	if _, err := c.Wallet.Active(); err != nil {
		return err
	}

	// Permissive test mode disables the item allow-list entirely. It must
	// never reach a live environment.
	if c.PermissiveTestMode && !c.Maintenance && c.Environment != "development" {
		return fmt.Errorf("permissive_test_mode is enabled outside development without maintenance; refusing to start")
	}

	// A cursor override outside maintenance silently rewrites bookkeeping.
	if c.Wallet.CursorOverride != "" && !c.Maintenance {
		return fmt.Errorf("wallet.cursor_override set while not in maintenance mode; refusing to start")
	}

	return nil
}

// IsAdmin reports whether the identity belongs to an operator.
func (c *Config) IsAdmin(identity string) bool {
	for _, a := range c.Admins {
		if a == identity {
			return true
		}
	}
	return false
}

// IsBanned reports whether the identity is on the ban list.
func (c *Config) IsBanned(identity string) bool {
	for _, b := range c.Banned {
		if b == identity {
			return true
		}
	}
	return false
}
