package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/vietddude/somicard/internal/control"
	"github.com/vietddude/somicard/internal/core/checkout"
	"github.com/vietddude/somicard/internal/core/config"
	"github.com/vietddude/somicard/internal/core/domain"
	"github.com/vietddude/somicard/internal/infra/chain"
	"github.com/vietddude/somicard/internal/infra/notify"
	"github.com/vietddude/somicard/internal/tracking/monitor"
)

const (
	exitOK         = 0
	exitFailed     = 1
	exitValidation = 2
)

var watchOpts struct {
	txHash    string
	firstName string
	lastName  string
	email     string
	funding   float64
	wallet    string
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch one payment until it settles and send the outcome notification",
	Run:   runWatch,
}

func init() {
	f := watchCmd.Flags()
	f.StringVar(&watchOpts.txHash, "tx", "", "payment transaction hash")
	f.StringVar(&watchOpts.firstName, "first-name", "", "card holder first name")
	f.StringVar(&watchOpts.lastName, "last-name", "", "card holder last name")
	f.StringVar(&watchOpts.email, "email", "", "card holder email")
	f.Float64Var(&watchOpts.funding, "funding", 0, "card funding amount in USD")
	f.StringVar(&watchOpts.wallet, "wallet", "", "paying wallet address")
	_ = watchCmd.MarkFlagRequired("tx")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	if code := watch(cfg); code != exitOK {
		os.Exit(code)
	}
}

// watch runs the command and returns the exit code, so deferred cleanup runs
// before the process exits.
func watch(cfg *config.AppConfig) int {
	form := checkout.Form{
		FirstName:     watchOpts.firstName,
		LastName:      watchOpts.lastName,
		Email:         watchOpts.email,
		FundingAmount: watchOpts.funding,
		WalletAddress: watchOpts.wallet,
	}
	if err := checkout.Validate(form); err != nil {
		slog.Error("Invalid order", "error", err)
		return exitValidation
	}
	txHash := strings.TrimSpace(watchOpts.txHash)
	if !checkout.ValidTxHash(txHash) {
		slog.Error("Invalid transaction hash", "tx", txHash)
		return exitValidation
	}

	ctx, cancel := signalContext()
	defer cancel()

	quote := control.NewOracle(cfg, nil, slog.Default()).Refresh(ctx)
	if quote.Fallback {
		slog.Warn("Using fallback price", "price", quote.Price, "error", quote.Err)
	}
	amounts, err := control.NewCalculator(cfg).Compute(decimal.NewFromFloat(form.FundingAmount), quote.Price)
	if err != nil {
		slog.Error("Invalid order", "error", err)
		return exitValidation
	}
	customer := checkout.Customer(form, amounts)

	notifier, err := control.NewNotifier(cfg, slog.Default())
	if err != nil {
		slog.Error("Failed to configure notifier", "error", err)
		return exitFailed
	}

	backend, err := control.DialChain(ctx, cfg, slog.Default())
	if err != nil {
		slog.Error("Failed to connect", "error", err)
		return exitFailed
	}
	defer backend.Close()

	slog.Info("Watching transaction",
		"tx", txHash,
		"total_usd", amounts.Total.String(),
		"somi", amounts.TokenAmount,
		"price", quote.Price,
	)
	return awaitOutcome(ctx, os.Stdout, backend, notifier, txHash, customer)
}

// awaitOutcome watches txHash until it settles or ctx is done. It returns
// after the outcome notification has finished.
func awaitOutcome(
	ctx context.Context,
	out io.Writer,
	source chain.ReceiptSource,
	notifier notify.Notifier,
	txHash string,
	customer domain.CustomerData,
) int {
	outcome := make(chan error, 1)
	m := monitor.New(notifier,
		monitor.WithOnSuccess(func() { outcome <- nil }),
		monitor.WithOnError(func(err error) { outcome <- err }),
	)
	m.SetTransaction(txHash, &customer)

	stop := source.Watch(ctx, txHash, m.Observe)
	defer stop()
	defer m.Close()

	select {
	case err := <-outcome:
		m.Wait()
		if err != nil {
			_, _ = fmt.Fprintf(out, "failed\t%s\t%v\n", txHash, err)
			return exitFailed
		}
		_, _ = fmt.Fprintf(out, "confirmed\t%s\tblock %d\n", txHash, receiptBlock(m.View().Receipt))
		return exitOK
	case <-ctx.Done():
		slog.Warn("Interrupted before the transaction settled", "tx", txHash)
		return exitFailed
	}
}

func receiptBlock(r *domain.Receipt) uint64 {
	if r == nil {
		return 0
	}
	return r.BlockNumber
}
