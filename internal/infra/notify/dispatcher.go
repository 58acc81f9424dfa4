package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/vietddude/somicard/internal/core/domain"
	"github.com/vietddude/somicard/internal/tracking/metrics"
)

const maxResponseBytes = 1 << 20

// Config holds the webhook settings. BotToken, ChatID and WebhookURL are all
// required; if any is empty the dispatcher is disabled.
type Config struct {
	BotToken   string
	ChatID     string
	WebhookURL string
	APIBaseURL string // Bot API base for TestConnection
	Timeout    time.Duration
	Network    string
	ChainID    domain.ChainID
}

// Dispatcher posts notifications to a chat-bot webhook. It is safe for
// concurrent use and is meant to be constructed once and shared.
type Dispatcher struct {
	cfg    Config
	format Format
	client *http.Client
	mirror Mirror
	log    *slog.Logger
	now    func() time.Time
}

// Option customises a Dispatcher.
type Option func(*Dispatcher)

// WithFormat sets the wire format. The default is EnvelopeFormat.
func WithFormat(f Format) Option {
	return func(d *Dispatcher) { d.format = f }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Dispatcher) { d.client = c }
}

// WithMirror republishes every delivered notification to m.
func WithMirror(m Mirror) Option {
	return func(d *Dispatcher) { d.mirror = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.log = l.With("component", "notifier") }
}

// WithClock overrides the time source used for balance requests.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// NewDispatcher creates a dispatcher for cfg.
func NewDispatcher(cfg Config, opts ...Option) *Dispatcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	d := &Dispatcher{
		cfg:    cfg,
		format: EnvelopeFormat{},
		client: &http.Client{Timeout: timeout},
		log:    slog.Default().With("component", "notifier"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Enabled reports whether every required setting is present.
func (d *Dispatcher) Enabled() bool {
	return d.cfg.BotToken != "" && d.cfg.ChatID != "" && d.cfg.WebhookURL != ""
}

func (d *Dispatcher) meta() Meta {
	return Meta{ChatID: d.cfg.ChatID, Network: d.cfg.Network, ChainID: d.cfg.ChainID}
}

// SendNotification implements Notifier.
func (d *Dispatcher) SendNotification(ctx context.Context, rec domain.NotificationRecord) bool {
	if !d.Enabled() {
		d.log.Warn("Notifier configuration missing, skipping notification",
			"status", rec.Status, "tx", rec.TransactionHash)
		metrics.NotificationsTotal.WithLabelValues(string(KindTransaction), string(rec.Status), "skipped").Inc()
		return false
	}

	body, err := d.format.EncodeTransaction(d.meta(), rec)
	if err != nil {
		d.log.Error("Failed to encode notification", "status", rec.Status, "error", err)
		metrics.NotificationsTotal.WithLabelValues(string(KindTransaction), string(rec.Status), "failed").Inc()
		return false
	}

	if err := d.post(ctx, KindTransaction, body); err != nil {
		d.log.Error("Failed to send notification",
			"status", rec.Status, "tx", rec.TransactionHash, "error", err)
		metrics.NotificationsTotal.WithLabelValues(string(KindTransaction), string(rec.Status), "failed").Inc()
		return false
	}

	d.log.Info("Notification sent", "status", rec.Status, "tx", rec.TransactionHash)
	metrics.NotificationsTotal.WithLabelValues(string(KindTransaction), string(rec.Status), "sent").Inc()

	d.publish(ctx, KindTransaction, func() ([]byte, error) {
		return EnvelopeFormat{}.EncodeTransaction(d.meta(), rec)
	})
	return true
}

// TransactionInitiated implements Notifier.
func (d *Dispatcher) TransactionInitiated(ctx context.Context, rec domain.NotificationRecord) bool {
	return d.SendNotification(ctx, rec.WithStatus(domain.StatusInitiated))
}

// TransactionConfirmed implements Notifier.
func (d *Dispatcher) TransactionConfirmed(ctx context.Context, rec domain.NotificationRecord) bool {
	return d.SendNotification(ctx, rec.WithStatus(domain.StatusConfirmed))
}

// TransactionFailed implements Notifier.
func (d *Dispatcher) TransactionFailed(
	ctx context.Context,
	rec domain.NotificationRecord,
	txHash, errMsg string,
) bool {
	if txHash == "" {
		txHash = domain.MissingTxHash
	}
	rec.TransactionHash = txHash
	if errMsg != "" {
		rec.ErrorMessage = errMsg
	}
	return d.SendNotification(ctx, rec.WithStatus(domain.StatusFailed))
}

// RequestBalance implements Notifier.
func (d *Dispatcher) RequestBalance(ctx context.Context, req domain.BalanceRequest) bool {
	if !d.Enabled() {
		d.log.Warn("Notifier configuration missing, skipping balance request")
		metrics.NotificationsTotal.WithLabelValues(string(KindBalance), "", "skipped").Inc()
		return false
	}
	if req.Timestamp.IsZero() {
		req.Timestamp = d.now()
	}

	body, err := d.format.EncodeBalance(d.meta(), req)
	if err != nil {
		d.log.Error("Failed to encode balance request", "error", err)
		metrics.NotificationsTotal.WithLabelValues(string(KindBalance), "", "failed").Inc()
		return false
	}

	if err := d.post(ctx, KindBalance, body); err != nil {
		d.log.Error("Failed to send balance request", "wallet", req.WalletAddress, "error", err)
		metrics.NotificationsTotal.WithLabelValues(string(KindBalance), "", "failed").Inc()
		return false
	}

	d.log.Info("Balance request sent", "wallet", req.WalletAddress)
	metrics.NotificationsTotal.WithLabelValues(string(KindBalance), "", "sent").Inc()

	d.publish(ctx, KindBalance, func() ([]byte, error) {
		return EnvelopeFormat{}.EncodeBalance(d.meta(), req)
	})
	return true
}

// TestConnection calls the Bot API getMe method. Only the bot token is needed.
func (d *Dispatcher) TestConnection(ctx context.Context) bool {
	if d.cfg.BotToken == "" {
		d.log.Warn("Notifier configuration incomplete, cannot test connection")
		return false
	}

	base := strings.TrimRight(d.cfg.APIBaseURL, "/")
	url := fmt.Sprintf("%s/bot%s/getMe", base, d.cfg.BotToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		d.log.Error("Failed to create getMe request", "error", d.redact(err))
		return false
	}

	resp, err := d.client.Do(req)
	if err != nil {
		d.log.Error("Failed to test bot connection", "error", d.redact(err))
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		d.log.Error("Bot connection failed", "status", resp.StatusCode)
		return false
	}

	var me struct {
		Result struct {
			Username string `json:"username"`
		} `json:"result"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&me)
	d.log.Info("Bot connection successful", "username", me.Result.Username)
	return true
}

// publish copies a delivered notification to the mirror. The webhook
// result stands regardless of the outcome.
func (d *Dispatcher) publish(ctx context.Context, kind Kind, encode func() ([]byte, error)) {
	if d.mirror == nil {
		return
	}
	body, err := encode()
	if err == nil {
		err = d.mirror.Publish(ctx, kind, body)
	}
	if err != nil {
		d.log.Warn("Failed to mirror notification", "kind", kind, "error", err)
		metrics.MirrorPublishTotal.WithLabelValues(string(kind), "failed").Inc()
		return
	}
	metrics.MirrorPublishTotal.WithLabelValues(string(kind), "sent").Inc()
}

// post issues one POST. There is no retry.
func (d *Dispatcher) post(ctx context.Context, kind Kind, body []byte) error {
	start := time.Now()
	defer func() {
		metrics.NotificationLatency.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", d.redact(err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: send webhook: %w", domain.ErrTransport, d.redact(err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: read response: %w", domain.ErrTransport, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: webhook returned status %d: %s",
			domain.ErrTransport, resp.StatusCode, truncate(string(raw), 200))
	}

	return checkResponse(raw)
}

// redactedError hides the bot token, which Bot API URLs carry in their path
// and *url.Error repeats in its message.
type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }

func (d *Dispatcher) redact(err error) error {
	token := d.cfg.BotToken
	if err == nil || token == "" || !strings.Contains(err.Error(), token) {
		return err
	}
	return &redactedError{msg: strings.ReplaceAll(err.Error(), token, "***"), err: err}
}

// checkResponse rejects bodies that are not a JSON object, and Bot API
// replies with ok=false.
func checkResponse(raw []byte) error {
	var result struct {
		OK          *bool  `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return fmt.Errorf("%w: malformed response: %w", domain.ErrTransport, err)
	}
	if result.OK != nil && !*result.OK {
		msg := result.Description
		if msg == "" {
			msg = "ok=false"
		}
		return fmt.Errorf("%w: webhook rejected message: %s", domain.ErrTransport, msg)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

var _ Notifier = (*Dispatcher)(nil)
