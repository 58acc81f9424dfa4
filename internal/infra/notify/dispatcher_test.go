package notify

import (
	"bytes"
	"context"
	"errors"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vietddude/somicard/internal/core/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRecord() domain.NotificationRecord {
	return domain.NewNotificationRecord(domain.CustomerData{
		FirstName:     "Ana",
		LastName:      "Li",
		Email:         "a@x.com",
		FundingAmount: decimal.NewFromInt(100),
		TotalAmount:   decimal.NewFromInt(120),
		TokenAmount:   "96.0000",
		WalletAddress: "0xabc0000000000000000000000000000000000001",
	}, "0xdead", domain.StatusInitiated, time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC))
}

func testConfig(url string) Config {
	return Config{
		BotToken:   "token",
		ChatID:     "-1001",
		WebhookURL: url,
		APIBaseURL: url,
		Network:    "Somnia",
		ChainID:    domain.ChainIDSomnia,
	}
}

// recorder is a webhook server that counts and keeps the last body.
type recorder struct {
	srv    *httptest.Server
	calls  atomic.Int32
	last   atomic.Value
	status int
	body   string
}

func newRecorder(t *testing.T, status int, body string) *recorder {
	r := &recorder{status: status, body: body}
	r.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		r.calls.Add(1)
		raw, _ := io.ReadAll(req.Body)
		r.last.Store(raw)
		w.WriteHeader(r.status)
		_, _ = w.Write([]byte(r.body))
	}))
	t.Cleanup(r.srv.Close)
	return r
}

func (r *recorder) lastBody(t *testing.T) map[string]any {
	raw, ok := r.last.Load().([]byte)
	require.True(t, ok, "no request recorded")
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestDispatcher_Confirmed_Sends(t *testing.T) {
	rec := newRecorder(t, http.StatusOK, `{"ok":true,"result":{}}`)
	d := NewDispatcher(testConfig(rec.srv.URL), WithLogger(testLogger()))

	ok := d.TransactionConfirmed(context.Background(), testRecord())
	require.True(t, ok)
	assert.Equal(t, int32(1), rec.calls.Load())

	body := rec.lastBody(t)
	assert.Equal(t, "-1001", body["chat_id"])
	assert.Equal(t, "HTML", body["parse_mode"])
	assert.Equal(t, "card_transaction", body["event_type"])
	assert.Equal(t, "confirmed", body["status"])

	tx := body["transaction"].(map[string]any)
	assert.Equal(t, "0xdead", tx["transaction_hash"])
	assert.Equal(t, float64(20), tx["insurance_fee_usd"])
	assert.Equal(t, float64(120), tx["total_amount_usd"])
	assert.Equal(t, "96.0000", tx["somi_amount"])
	assert.Equal(t, float64(5031), tx["chain_id"])

	text := body["text"].(string)
	assert.Contains(t, text, "Ana Li")
	assert.Contains(t, text, "<b>Insurance fee:</b> $20")
	assert.Contains(t, text, "CONFIRMED")
}

func TestDispatcher_Failed_UsesSentinelHash(t *testing.T) {
	rec := newRecorder(t, http.StatusOK, `{"ok":true}`)
	d := NewDispatcher(testConfig(rec.srv.URL), WithLogger(testLogger()))

	r := testRecord()
	r.TransactionHash = ""
	ok := d.TransactionFailed(context.Background(), r, "", "reverted")
	require.True(t, ok)

	body := rec.lastBody(t)
	assert.Equal(t, "failed", body["status"])
	tx := body["transaction"].(map[string]any)
	assert.Equal(t, "N/A", tx["transaction_hash"])
	assert.Equal(t, "reverted", tx["error_message"])
	assert.Contains(t, body["text"].(string), "reverted")
}

func TestDispatcher_Initiated_SetsStatus(t *testing.T) {
	rec := newRecorder(t, http.StatusOK, `{"ok":true}`)
	d := NewDispatcher(testConfig(rec.srv.URL), WithLogger(testLogger()))

	r := testRecord().WithStatus(domain.StatusFailed)
	require.True(t, d.TransactionInitiated(context.Background(), r))
	assert.Equal(t, "initiated", rec.lastBody(t)["status"])
	// the caller's record is untouched
	assert.Equal(t, domain.StatusFailed, r.Status)
}

// TestDispatcher_ConfigGating verifies that no HTTP call is made when any
// required setting is empty.
func TestDispatcher_ConfigGating(t *testing.T) {
	rec := newRecorder(t, http.StatusOK, `{"ok":true}`)

	cases := map[string]func(*Config){
		"no token":   func(c *Config) { c.BotToken = "" },
		"no chat id": func(c *Config) { c.ChatID = "" },
		"no webhook": func(c *Config) { c.WebhookURL = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig(rec.srv.URL)
			mutate(&cfg)
			d := NewDispatcher(cfg, WithLogger(testLogger()))

			ctx := context.Background()
			assert.False(t, d.Enabled())
			assert.False(t, d.SendNotification(ctx, testRecord()))
			assert.False(t, d.TransactionInitiated(ctx, testRecord()))
			assert.False(t, d.TransactionConfirmed(ctx, testRecord()))
			assert.False(t, d.TransactionFailed(ctx, testRecord(), "", "boom"))
			assert.False(t, d.RequestBalance(ctx, domain.BalanceRequest{WalletAddress: "0x1"}))
		})
	}
	assert.Equal(t, int32(0), rec.calls.Load())
}

func TestDispatcher_Failures_ReturnFalse(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `{"ok":false}`},
		{"bad request", http.StatusBadRequest, `{"description":"chat not found"}`},
		{"malformed body", http.StatusOK, `not json`},
		{"empty body", http.StatusOK, ``},
		{"bot api rejection", http.StatusOK, `{"ok":false,"description":"Forbidden"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := newRecorder(t, tc.status, tc.body)
			d := NewDispatcher(testConfig(rec.srv.URL), WithLogger(testLogger()))

			assert.False(t, d.TransactionConfirmed(context.Background(), testRecord()))
			assert.Equal(t, int32(1), rec.calls.Load(), "exactly one attempt, no retry")
		})
	}
}

func TestDispatcher_NetworkError_ReturnsFalse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	d := NewDispatcher(testConfig(url), WithLogger(testLogger()))
	assert.False(t, d.TransactionConfirmed(context.Background(), testRecord()))
}

func TestDispatcher_TransportErrors_HideBotToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	base := srv.URL
	srv.Close()

	const token = "123:SECRETTOKEN"
	var logs bytes.Buffer
	d := NewDispatcher(Config{
		BotToken:   token,
		ChatID:     "-1001",
		WebhookURL: base + "/bot" + token + "/sendMessage",
		APIBaseURL: base,
	}, WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))

	assert.False(t, d.TransactionConfirmed(context.Background(), testRecord()))
	assert.False(t, d.RequestBalance(context.Background(), domain.BalanceRequest{WalletAddress: "0xabc"}))
	assert.False(t, d.TestConnection(context.Background()))

	out := logs.String()
	require.NotEmpty(t, out)
	assert.NotContains(t, out, token)
	assert.Contains(t, out, "/bot***/")

	err := d.post(context.Background(), KindTransaction, []byte(`{}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrTransport))
	assert.NotContains(t, err.Error(), token)
}

func TestDispatcher_Timeout_ReturnsFalse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.Timeout = 20 * time.Millisecond
	d := NewDispatcher(cfg, WithLogger(testLogger()))
	assert.False(t, d.TransactionConfirmed(context.Background(), testRecord()))
}

func TestDispatcher_RequestBalance(t *testing.T) {
	rec := newRecorder(t, http.StatusOK, `{"ok":true}`)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	d := NewDispatcher(testConfig(rec.srv.URL),
		WithLogger(testLogger()),
		WithClock(func() time.Time { return now }),
	)

	ok := d.RequestBalance(context.Background(), domain.BalanceRequest{
		WalletAddress: "0x742d35cc6af5c8dd7f3e5c6d8bd5f7c2a1e5f8e0",
	})
	require.True(t, ok)

	body := rec.lastBody(t)
	assert.Equal(t, "balance_request", body["event_type"])
	text := body["text"].(string)
	assert.Contains(t, text, "Balance Request")
	assert.Contains(t, text, "Not provided")
	assert.Contains(t, text, "2025-06-01 12:00:00 UTC")
	assert.NotContains(t, body, "transaction")
}

func TestDispatcher_TelegramFormat(t *testing.T) {
	rec := newRecorder(t, http.StatusOK, `{"ok":true}`)
	d := NewDispatcher(testConfig(rec.srv.URL), WithLogger(testLogger()), WithFormat(TelegramFormat{}))

	require.True(t, d.TransactionConfirmed(context.Background(), testRecord()))
	body := rec.lastBody(t)
	assert.Len(t, body, 3)
	assert.Equal(t, "-1001", body["chat_id"])
	assert.True(t, strings.HasPrefix(body["text"].(string), "✅"))
}

func TestDispatcher_TestConnection(t *testing.T) {
	var path atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path.Store(r.URL.Path)
		_, _ = w.Write([]byte(`{"ok":true,"result":{"username":"somi_bot"}}`))
	}))
	defer srv.Close()

	d := NewDispatcher(testConfig(srv.URL), WithLogger(testLogger()))
	assert.True(t, d.TestConnection(context.Background()))
	assert.Equal(t, "/bottoken/getMe", path.Load())

	cfg := testConfig(srv.URL)
	cfg.BotToken = ""
	assert.False(t, NewDispatcher(cfg, WithLogger(testLogger())).TestConnection(context.Background()))
}

type fakeMirror struct {
	kinds  []Kind
	bodies [][]byte
	err    error
}

func (m *fakeMirror) Publish(_ context.Context, kind Kind, body []byte) error {
	m.kinds = append(m.kinds, kind)
	m.bodies = append(m.bodies, body)
	return m.err
}

func TestDispatcher_Mirror(t *testing.T) {
	r := newRecorder(t, http.StatusOK, `{"ok":true}`)
	m := &fakeMirror{}
	d := NewDispatcher(testConfig(r.srv.URL),
		WithFormat(TelegramFormat{}), WithMirror(m), WithLogger(testLogger()))

	require.True(t, d.TransactionConfirmed(context.Background(), testRecord()))
	require.True(t, d.RequestBalance(context.Background(), domain.BalanceRequest{WalletAddress: "0xabc"}))

	require.Equal(t, []Kind{KindTransaction, KindBalance}, m.kinds)

	// The mirror always receives the structured envelope.
	var env map[string]any
	require.NoError(t, json.Unmarshal(m.bodies[0], &env))
	assert.Equal(t, "confirmed", env["status"])
	assert.NotNil(t, env["transaction"])
}

func TestDispatcher_Mirror_SkippedOnFailure(t *testing.T) {
	r := newRecorder(t, http.StatusInternalServerError, `{}`)
	m := &fakeMirror{}
	d := NewDispatcher(testConfig(r.srv.URL), WithMirror(m), WithLogger(testLogger()))

	assert.False(t, d.TransactionConfirmed(context.Background(), testRecord()))
	assert.Empty(t, m.kinds)
}

func TestDispatcher_Mirror_ErrorKeepsResult(t *testing.T) {
	r := newRecorder(t, http.StatusOK, `{"ok":true}`)
	m := &fakeMirror{err: domain.ErrTransport}
	d := NewDispatcher(testConfig(r.srv.URL), WithMirror(m), WithLogger(testLogger()))

	assert.True(t, d.TransactionConfirmed(context.Background(), testRecord()))
	assert.Len(t, m.kinds, 1)
}
