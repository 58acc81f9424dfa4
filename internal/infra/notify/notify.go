// Package notify delivers transaction and balance notifications to the
// chat-bot webhook.
//
// This package contains:
//   - Notifier interface: what the transaction monitor and API depend on
//   - Dispatcher: HTTP webhook implementation, gated on configuration
//   - Format: pluggable wire formats (envelope, telegram)
//   - Mirror: optional event sink fed with every delivered notification
package notify

import (
	"context"

	"github.com/vietddude/somicard/internal/core/domain"
)

// Notifier sends notifications. Every method reports delivery as a bool and
// never returns an error: a failed notification must not affect the payment
// flow that triggered it.
type Notifier interface {
	// SendNotification delivers rec as-is.
	SendNotification(ctx context.Context, rec domain.NotificationRecord) bool

	// TransactionInitiated sends rec with status initiated.
	TransactionInitiated(ctx context.Context, rec domain.NotificationRecord) bool

	// TransactionConfirmed sends rec with status confirmed.
	TransactionConfirmed(ctx context.Context, rec domain.NotificationRecord) bool

	// TransactionFailed sends rec with status failed. An empty txHash is
	// replaced by domain.MissingTxHash; errMsg is attached when non-empty.
	TransactionFailed(ctx context.Context, rec domain.NotificationRecord, txHash, errMsg string) bool

	// RequestBalance asks the fulfillment side for the card balance of a wallet.
	RequestBalance(ctx context.Context, req domain.BalanceRequest) bool
}

// Mirror receives a copy of each delivered notification, envelope encoded.
type Mirror interface {
	Publish(ctx context.Context, kind Kind, body []byte) error
}

// Kind labels a notification for logs and metrics.
type Kind string

const (
	KindTransaction Kind = "transaction"
	KindBalance     Kind = "balance_request"
)

// Nop discards every notification and reports false.
type Nop struct{}

func (Nop) SendNotification(context.Context, domain.NotificationRecord) bool     { return false }
func (Nop) TransactionInitiated(context.Context, domain.NotificationRecord) bool { return false }
func (Nop) TransactionConfirmed(context.Context, domain.NotificationRecord) bool { return false }
func (Nop) TransactionFailed(context.Context, domain.NotificationRecord, string, string) bool {
	return false
}
func (Nop) RequestBalance(context.Context, domain.BalanceRequest) bool { return false }
