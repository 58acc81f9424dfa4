package control

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/somicard/internal/core/config"
	"github.com/vietddude/somicard/internal/core/domain"
)

const testTxHash = "0x5c504ed432cb51138bcf09aa5e8a410dd4a1e204ef84bfed1be16dfba1b22060"

// confirmingBackend settles every watched hash immediately.
type confirmingBackend struct {
	mu     sync.Mutex
	closed bool
}

func (b *confirmingBackend) Watch(_ context.Context, hash string, fn func(domain.ReceiptState)) func() {
	go fn(domain.ReceiptState{
		IsSuccess: true,
		Receipt:   &domain.Receipt{TransactionHash: hash, BlockNumber: 42, Status: 1},
	})
	return func() {}
}

func (b *confirmingBackend) Ping(context.Context) error { return nil }

func (b *confirmingBackend) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
}

// webhookRecorder collects posted bodies.
type webhookRecorder struct {
	mu     sync.Mutex
	bodies []map[string]any
}

func (w *webhookRecorder) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	w.mu.Lock()
	w.bodies = append(w.bodies, body)
	w.mu.Unlock()
	_, _ = io.WriteString(rw, `{"ok":true}`)
}

func (w *webhookRecorder) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.bodies)
}

func testConfig(t *testing.T, webhook http.Handler) *config.AppConfig {
	t.Helper()

	prices := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"somnia-network":{"usd":0.7}}`)
	}))
	t.Cleanup(prices.Close)

	hook := httptest.NewServer(webhook)
	t.Cleanup(hook.Close)

	cfg := config.Default()
	cfg.Server.Port = 0
	cfg.Pricing.Endpoint = prices.URL
	cfg.Notifier.BotToken = "token"
	cfg.Notifier.ChatID = "chat"
	cfg.Notifier.WebhookURL = hook.URL
	cfg.Chain.TreasuryAddress = "0x742d35Cc6aF5C8dD7F3e5C6D8bD5f7C2a1E5F8e0"
	return cfg
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestApp_Lifecycle(t *testing.T) {
	hook := &webhookRecorder{}
	cfg := testConfig(t, hook)
	backend := &confirmingBackend{}

	app, err := Assemble(cfg, backend, nil, quietLogger())
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	// Wait for the first price
	deadline := time.Now().Add(2 * time.Second)
	for app.Oracle().Quote().Price != 0.7 {
		if time.Now().After(deadline) {
			t.Fatalf("price never loaded: %+v", app.Oracle().Quote())
		}
		time.Sleep(10 * time.Millisecond)
	}

	body := `{"firstName":"Ana","lastName":"Li","email":"a@x.com","fundingAmount":100,` +
		`"walletAddress":"0x742d35Cc6aF5C8dD7F3e5C6D8bD5f7C2a1E5F8e0","txHash":"` + testTxHash + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(body))
	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	deadline = time.Now().Add(2 * time.Second)
	for hook.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("confirmation notification never sent")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	app.Close()
	backend.mu.Lock()
	defer backend.mu.Unlock()
	if !backend.closed {
		t.Error("backend not closed")
	}

	hook.mu.Lock()
	defer hook.mu.Unlock()
	if got := hook.bodies[0]["status"]; got != string(domain.StatusConfirmed) {
		t.Errorf("expected %s, got %v", domain.StatusConfirmed, got)
	}
}

func TestAssemble_RejectsUnknownFormat(t *testing.T) {
	cfg := testConfig(t, &webhookRecorder{})
	cfg.Notifier.Format = "carrier-pigeon"

	if _, err := Assemble(cfg, &confirmingBackend{}, nil, quietLogger()); err == nil {
		t.Fatal("expected error for unknown notifier format")
	}
}
