package config

import (
	"time"

	"github.com/vietddude/somicard/internal/core/domain"
	redisclient "github.com/vietddude/somicard/internal/infra/redis"
	snsmirror "github.com/vietddude/somicard/internal/infra/sns"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig       `yaml:"server"`
	Chain    ChainConfig        `yaml:"chain"`
	Notifier NotifierConfig     `yaml:"notifier"`
	Pricing  PricingConfig      `yaml:"pricing"`
	Checkout CheckoutConfig     `yaml:"checkout"`
	Redis    redisclient.Config `yaml:"redis"`
	Mirror   snsmirror.Config   `yaml:"mirror"`
	Logging  LoggingConfig      `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port             int           `yaml:"port"`
	RateLimit        float64       `yaml:"rate_limit"` // requests per second per IP
	RateBurst        int           `yaml:"rate_burst"`
	SessionRetention time.Duration `yaml:"session_retention"`
	AllowedOrigins   []string      `yaml:"allowed_origins"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// ChainConfig identifies the chain payments are sent on.
type ChainConfig struct {
	ID              domain.ChainID `yaml:"id"`
	Name            string         `yaml:"name"`
	RPCURL          string         `yaml:"rpc_url"`
	TreasuryAddress string         `yaml:"treasury_address"`
	PollInterval    time.Duration  `yaml:"poll_interval"`
	MaxRPCErrors    int            `yaml:"max_rpc_errors"`
}

// NotifierConfig holds the chat-bot webhook settings. Any of BotToken, ChatID
// or WebhookURL being empty disables notifications.
type NotifierConfig struct {
	BotToken        string        `yaml:"bot_token"`
	ChatID          string        `yaml:"chat_id"`
	WebhookURL      string        `yaml:"webhook_url"`
	APIBaseURL      string        `yaml:"api_base_url"`
	Format          string        `yaml:"format"` // envelope, telegram
	Timeout         time.Duration `yaml:"timeout"`
	NotifyInitiated bool          `yaml:"notify_initiated"`
}

// PricingConfig configures the price oracle.
type PricingConfig struct {
	Endpoint      string        `yaml:"endpoint"`
	AssetID       string        `yaml:"asset_id"`
	FallbackPrice float64       `yaml:"fallback_price"`
	Interval      time.Duration `yaml:"interval"`
	Timeout       time.Duration `yaml:"timeout"`
}

// CheckoutConfig bounds funding amounts and sets the fixed fee (USD).
type CheckoutConfig struct {
	InsuranceFee float64 `yaml:"insurance_fee"`
	MinFunding   float64 `yaml:"min_funding"`
	MaxFunding   float64 `yaml:"max_funding"`
}
