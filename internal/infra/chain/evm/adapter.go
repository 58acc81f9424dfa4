package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	logger "log/slog"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/vietddude/somicard/internal/core/domain"
	"github.com/vietddude/somicard/internal/infra/chain"
	"github.com/vietddude/somicard/internal/tracking/metrics"
)

const (
	DefaultPollInterval = 2 * time.Second
	DefaultMaxErrors    = 5
)

// ReceiptReader is the subset of ethclient.Client the watcher needs.
type ReceiptReader interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// ReceiptWatcher polls eth_getTransactionReceipt for watched hashes.
type ReceiptWatcher struct {
	chainID   domain.ChainID
	client    ReceiptReader
	closeFn   func()
	interval  time.Duration
	maxErrors int
	log       logger.Logger
}

// Option customises a ReceiptWatcher.
type Option func(*ReceiptWatcher)

// WithPollInterval sets the delay between receipt polls.
func WithPollInterval(d time.Duration) Option {
	return func(w *ReceiptWatcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithMaxErrors sets how many consecutive RPC errors end a watch.
func WithMaxErrors(n int) Option {
	return func(w *ReceiptWatcher) {
		if n > 0 {
			w.maxErrors = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(w *ReceiptWatcher) { w.log = *l.With("component", "receipts") }
}

// NewReceiptWatcher wraps an existing client.
func NewReceiptWatcher(chainID domain.ChainID, client ReceiptReader, opts ...Option) *ReceiptWatcher {
	w := &ReceiptWatcher{
		chainID:   chainID,
		client:    client,
		interval:  DefaultPollInterval,
		maxErrors: DefaultMaxErrors,
		log:       *logger.Default().With("component", "receipts"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Dial connects to rpcURL and checks that the node serves chainID.
func Dial(ctx context.Context, rpcURL string, chainID domain.ChainID, opts ...Option) (*ReceiptWatcher, error) {
	if rpcURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}

	cli, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	got, err := cli.ChainID(ctx)
	if err != nil {
		cli.Close()
		return nil, fmt.Errorf("fetch chain id: %w", err)
	}
	if got.Int64() != int64(chainID) {
		cli.Close()
		return nil, fmt.Errorf("rpc serves chain %s, expected %d", got, chainID)
	}

	w := NewReceiptWatcher(chainID, cli, opts...)
	w.closeFn = cli.Close
	return w, nil
}

// GetChainID returns the chain the watcher is bound to.
func (w *ReceiptWatcher) GetChainID() domain.ChainID {
	return w.chainID
}

// Ping checks the RPC endpoint by fetching the latest block number.
func (w *ReceiptWatcher) Ping(ctx context.Context) error {
	if _, err := w.client.BlockNumber(ctx); err != nil {
		return fmt.Errorf("eth_blockNumber failed: %w", err)
	}
	return nil
}

// Close releases the underlying connection when the watcher owns it.
func (w *ReceiptWatcher) Close() {
	if w.closeFn != nil {
		w.closeFn()
	}
}

// Watch implements chain.ReceiptSource.
func (w *ReceiptWatcher) Watch(
	ctx context.Context,
	txHash string,
	fn func(domain.ReceiptState),
) func() {
	ctx, cancel := context.WithCancel(ctx)
	var once sync.Once
	stop := func() { once.Do(cancel) }

	go w.poll(ctx, txHash, fn)

	return stop
}

func (w *ReceiptWatcher) poll(ctx context.Context, txHash string, fn func(domain.ReceiptState)) {
	raw, err := hexutil.Decode(txHash)
	if err != nil || len(raw) != common.HashLength {
		fn(domain.ReceiptState{
			IsError: true,
			Err:     fmt.Errorf("%w: invalid transaction hash %q", domain.ErrValidation, txHash),
		})
		return
	}
	hash := common.BytesToHash(raw)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	confirming := false
	errCount := 0

	for {
		receipt, err := w.client.TransactionReceipt(ctx, hash)
		if ctx.Err() != nil {
			return
		}

		switch {
		case receipt != nil:
			metrics.ReceiptPollsTotal.WithLabelValues("found").Inc()
			fn(toState(receipt))
			return

		case err == nil || errors.Is(err, ethereum.NotFound):
			metrics.ReceiptPollsTotal.WithLabelValues("pending").Inc()
			errCount = 0
			if !confirming {
				confirming = true
				fn(domain.ReceiptState{IsConfirming: true})
			}

		default:
			metrics.ReceiptPollsTotal.WithLabelValues("error").Inc()
			errCount++
			w.log.Warn("Receipt lookup failed",
				"tx", txHash, "attempt", errCount, "max", w.maxErrors, "error", err)
			if errCount >= w.maxErrors {
				fn(domain.ReceiptState{
					IsError: true,
					Err:     fmt.Errorf("%w: receipt lookup: %w", domain.ErrTransport, err),
				})
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func toState(r *types.Receipt) domain.ReceiptState {
	rec := &domain.Receipt{
		TransactionHash: r.TxHash.Hex(),
		BlockHash:       r.BlockHash.Hex(),
		Status:          r.Status,
		GasUsed:         r.GasUsed,
	}
	if r.BlockNumber != nil {
		rec.BlockNumber = r.BlockNumber.Uint64()
	}

	if r.Status == types.ReceiptStatusSuccessful {
		return domain.ReceiptState{Receipt: rec, IsSuccess: true}
	}
	return domain.ReceiptState{
		Receipt: rec,
		IsError: true,
		Err:     fmt.Errorf("%w: %s", domain.ErrReverted, rec.TransactionHash),
	}
}

var (
	_ chain.ReceiptSource = (*ReceiptWatcher)(nil)
	_ chain.Pinger        = (*ReceiptWatcher)(nil)
)
