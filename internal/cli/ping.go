package cli

import (
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vietddude/somicard/internal/control"
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check the RPC endpoint and the notifier bot token",
	Run:   runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
}

func runPing(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	ctx, cancel := signalContext()
	defer cancel()

	ok := true
	rpcStatus := "ok"
	backend, err := control.DialChain(ctx, cfg, slog.Default())
	if err == nil {
		err = backend.Ping(ctx)
		backend.Close()
	}
	if err != nil {
		rpcStatus = err.Error()
		ok = false
	}

	botStatus := "ok"
	notifier, err := control.NewNotifier(cfg, slog.Default())
	switch {
	case err != nil:
		botStatus = err.Error()
		ok = false
	case !notifier.TestConnection(ctx):
		botStatus = "unreachable or invalid token"
		ok = false
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "CHECK\tTARGET\tSTATUS")
	_, _ = fmt.Fprintf(w, "rpc\t%s\t%s\n", cfg.Chain.RPCURL, rpcStatus)
	_, _ = fmt.Fprintf(w, "bot\t%s\t%s\n", cfg.Notifier.APIBaseURL, botStatus)
	_ = w.Flush()

	if !ok {
		os.Exit(1)
	}
}
