package control

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vietddude/somicard/internal/core/checkout"
	"github.com/vietddude/somicard/internal/core/config"
	"github.com/vietddude/somicard/internal/infra/chain/evm"
	"github.com/vietddude/somicard/internal/infra/notify"
	"github.com/vietddude/somicard/internal/infra/pricefeed"
	redisclient "github.com/vietddude/somicard/internal/infra/redis"
	snsmirror "github.com/vietddude/somicard/internal/infra/sns"
	"github.com/vietddude/somicard/internal/tracking/pricing"
)

// NewNotifier builds the webhook dispatcher from configuration. Missing
// credentials are not an error: the dispatcher is then disabled.
func NewNotifier(cfg *config.AppConfig, log *slog.Logger) (*notify.Dispatcher, error) {
	format, err := notify.FormatByName(cfg.Notifier.Format)
	if err != nil {
		return nil, err
	}

	opts := []notify.Option{notify.WithFormat(format), notify.WithLogger(log)}
	if cfg.Mirror.TopicARN != "" {
		pub, err := snsmirror.NewPublisher(context.Background(), cfg.Mirror)
		if err != nil {
			log.Warn("Failed to configure SNS mirror, continuing without it", "error", err)
		} else {
			opts = append(opts, notify.WithMirror(pub))
			log.Info("Mirroring notifications to SNS", "topic", cfg.Mirror.TopicARN)
		}
	}

	d := notify.NewDispatcher(notify.Config{
		BotToken:   cfg.Notifier.BotToken,
		ChatID:     cfg.Notifier.ChatID,
		WebhookURL: cfg.Notifier.WebhookURL,
		APIBaseURL: cfg.Notifier.APIBaseURL,
		Timeout:    cfg.Notifier.Timeout,
		Network:    cfg.Chain.Name,
		ChainID:    cfg.Chain.ID,
	}, opts...)

	if !d.Enabled() {
		log.Warn("Notifier configuration missing, notifications disabled")
	}
	return d, nil
}

// NewOracle builds the price oracle. cache may be nil.
func NewOracle(cfg *config.AppConfig, cache pricing.Cache, log *slog.Logger) *pricing.Oracle {
	client := pricefeed.NewClient(cfg.Pricing.Endpoint, cfg.Pricing.AssetID, cfg.Pricing.Timeout)

	opts := []pricing.Option{
		pricing.WithFallback(cfg.Pricing.FallbackPrice),
		pricing.WithInterval(cfg.Pricing.Interval),
		pricing.WithLogger(log),
	}
	if cache != nil {
		opts = append(opts, pricing.WithCache(cache))
	}
	return pricing.NewOracle(client, opts...)
}

// NewCalculator builds the checkout calculator.
func NewCalculator(cfg *config.AppConfig) checkout.Calculator {
	return checkout.NewCalculator(
		cfg.Checkout.InsuranceFee,
		cfg.Checkout.MinFunding,
		cfg.Checkout.MaxFunding,
	)
}

// DialChain connects to the configured RPC endpoint.
func DialChain(ctx context.Context, cfg *config.AppConfig, log *slog.Logger) (*evm.ReceiptWatcher, error) {
	w, err := evm.Dial(ctx, cfg.Chain.RPCURL, cfg.Chain.ID,
		evm.WithPollInterval(cfg.Chain.PollInterval),
		evm.WithMaxErrors(cfg.Chain.MaxRPCErrors),
		evm.WithLogger(log),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s rpc: %w", cfg.Chain.Name, err)
	}
	return w, nil
}

// QuoteCache returns the shared quote cache, or nil without Redis.
func QuoteCache(cfg *config.AppConfig, rdb *redisclient.Client) pricing.Cache {
	if rdb == nil {
		return nil
	}
	return redisclient.NewQuoteCache(rdb, cfg.Pricing.AssetID)
}

// ConnectRedis returns a client, or nil when Redis is not configured or not
// reachable. Redis only backs the shared quote cache, so failure is not fatal.
func ConnectRedis(cfg *config.AppConfig, log *slog.Logger) *redisclient.Client {
	if cfg.Redis.URL == "" {
		return nil
	}
	client, err := redisclient.NewClient(cfg.Redis)
	if err != nil {
		log.Warn("Failed to connect to Redis, quote cache disabled", "error", err)
		return nil
	}
	log.Info("Using Redis quote cache")
	return client
}
