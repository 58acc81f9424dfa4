package cli

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/somicard/internal/control"
	"github.com/vietddude/somicard/internal/core/checkout"
	"github.com/vietddude/somicard/internal/core/domain"
)

var balanceOpts checkout.BalanceForm

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Ask the card operator for a card balance",
	Run:   runBalance,
}

func init() {
	balanceCmd.Flags().StringVar(&balanceOpts.WalletAddress, "wallet", "", "card holder wallet address")
	balanceCmd.Flags().StringVar(&balanceOpts.Email, "email", "", "reply-to email (optional)")
	_ = balanceCmd.MarkFlagRequired("wallet")
	rootCmd.AddCommand(balanceCmd)
}

func runBalance(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	if err := checkout.Validate(balanceOpts); err != nil {
		slog.Error("Invalid balance request", "error", err)
		os.Exit(exitValidation)
	}

	notifier, err := control.NewNotifier(cfg, slog.Default())
	if err != nil {
		slog.Error("Failed to configure notifier", "error", err)
		os.Exit(exitFailed)
	}

	ctx, cancel := signalContext()
	defer cancel()

	sent := notifier.RequestBalance(ctx, domain.BalanceRequest{
		WalletAddress: balanceOpts.WalletAddress,
		Email:         strings.TrimSpace(balanceOpts.Email),
		Timestamp:     time.Now(),
	})
	if !sent {
		slog.Error("Balance request was not delivered")
		os.Exit(exitFailed)
	}
	slog.Info("Balance request sent", "wallet", balanceOpts.WalletAddress)
}
