package chain

import (
	"context"

	"github.com/vietddude/somicard/internal/core/domain"
)

// ReceiptSource is the boundary between the monitor and the chain client.
// Watch delivers receipt states for one transaction hash on a background
// goroutine. Delivery ends after a terminal state, or when ctx is done or
// stop is called. stop may be called from inside fn.
type ReceiptSource interface {
	Watch(ctx context.Context, txHash string, fn func(domain.ReceiptState)) (stop func())
}

// Pinger is implemented by sources that can report RPC reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}
