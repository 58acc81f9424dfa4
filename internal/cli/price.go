package cli

import (
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vietddude/somicard/internal/control"
)

var priceCmd = &cobra.Command{
	Use:   "price",
	Short: "Fetch the current SOMI/USD price once",
	Run:   runPrice,
}

func init() {
	rootCmd.AddCommand(priceCmd)
}

func runPrice(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	ctx, cancel := signalContext()
	defer cancel()

	rdb := control.ConnectRedis(cfg, slog.Default())
	if rdb != nil {
		defer func() {
			_ = rdb.Close()
		}()
	}

	q := control.NewOracle(cfg, control.QuoteCache(cfg, rdb), slog.Default()).Refresh(ctx)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "ASSET\tPRICE (USD)\tFALLBACK\tERROR")
	_, _ = fmt.Fprintf(w, "%s\t%.6f\t%v\t%s\n", cfg.Pricing.AssetID, q.Price, q.Fallback, q.Err)
	_ = w.Flush()

	if q.Fallback {
		os.Exit(1)
	}
}
