package config

import (
	"fmt"
	"os"
	"time"

	"github.com/vietddude/somicard/internal/core/domain"
	"gopkg.in/yaml.v2"
)

const (
	DefaultRPCURL        = "https://api.infra.mainnet.somnia.network/"
	DefaultPriceEndpoint = "https://api.coingecko.com/api/v3"
	DefaultAssetID       = "somnia-network"
	DefaultTelegramAPI   = "https://api.telegram.org"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML content, expanding ${ENV} references first.
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *AppConfig {
	var cfg AppConfig
	cfg.applyDefaults()
	return &cfg
}

func (c *AppConfig) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.RateLimit == 0 {
		c.Server.RateLimit = 5
	}
	if c.Server.RateBurst == 0 {
		c.Server.RateBurst = 10
	}
	if c.Server.SessionRetention == 0 {
		c.Server.SessionRetention = time.Hour
	}

	if c.Chain.ID == 0 {
		c.Chain.ID = domain.ChainIDSomnia
	}
	if c.Chain.Name == "" {
		c.Chain.Name = c.Chain.ID.Name()
	}
	if c.Chain.RPCURL == "" {
		c.Chain.RPCURL = DefaultRPCURL
	}
	if c.Chain.PollInterval == 0 {
		c.Chain.PollInterval = 2 * time.Second
	}
	if c.Chain.MaxRPCErrors == 0 {
		c.Chain.MaxRPCErrors = 5
	}

	if c.Notifier.APIBaseURL == "" {
		c.Notifier.APIBaseURL = DefaultTelegramAPI
	}
	if c.Notifier.Format == "" {
		c.Notifier.Format = "envelope"
	}
	if c.Notifier.Timeout == 0 {
		c.Notifier.Timeout = 10 * time.Second
	}

	if c.Pricing.Endpoint == "" {
		c.Pricing.Endpoint = DefaultPriceEndpoint
	}
	if c.Pricing.AssetID == "" {
		c.Pricing.AssetID = DefaultAssetID
	}
	if c.Pricing.FallbackPrice == 0 {
		c.Pricing.FallbackPrice = 1.25
	}
	if c.Pricing.Interval == 0 {
		c.Pricing.Interval = 30 * time.Second
	}
	if c.Pricing.Timeout == 0 {
		c.Pricing.Timeout = 10 * time.Second
	}

	if c.Checkout.InsuranceFee == 0 {
		c.Checkout.InsuranceFee = 20
	}
	if c.Checkout.MinFunding == 0 {
		c.Checkout.MinFunding = 100
	}
	if c.Checkout.MaxFunding == 0 {
		c.Checkout.MaxFunding = 5000
	}

	if c.Mirror.TopicARN != "" && c.Mirror.Region == "" {
		c.Mirror.Region = "us-east-1"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// NotificationsEnabled reports whether every required notifier value is set.
func (c *AppConfig) NotificationsEnabled() bool {
	return c.Notifier.BotToken != "" && c.Notifier.ChatID != "" && c.Notifier.WebhookURL != ""
}
