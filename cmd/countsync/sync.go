package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fieldcount/countsync/internal/daemon"
	"github.com/fieldcount/countsync/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Upload pending records and refresh catalogs",
	Long: `Run one sync against the count server.

A sync:
  1. Uploads pending inventory counts, then pending assets
  2. Uploads not-found and transfer records, one batch per session
  3. Downloads companies, then per company branches, products and lots
  4. Downloads inventory and asset sessions
  5. Uploads asset photos whose records now have server ids

A failed session batch or catalog does not stop the rest. An attempt that
fails outright or leaves a session batch unsent is retried with backoff up
to retry.max_attempts times. A catalog that cannot be refreshed keeps its
previous copy and is downloaded again on the next sync.`,
	Run: func(cmd *cobra.Command, args []string) {
		noRetry, _ := cmd.Flags().GetBool("no-retry")

		database := openStore()
		defer database.Close()

		engine := newEngine(database, newClient(database), nil)

		dc := &daemon.Config{
			MaxAttempts:    cfg.Retry.MaxAttempts,
			InitialBackoff: cfg.Retry.InitialBackoff,
			MaxBackoff:     cfg.Retry.MaxBackoff,
			Logger:         &logger,
		}
		if noRetry {
			dc.MaxAttempts = 1
		}
		controller := daemon.New(engine, nil, dc)

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		fmt.Printf("%s Syncing with %s...\n", ui.RenderAccent("🔄"), cfg.Server.URL)
		start := time.Now()

		res, err := controller.Trigger(ctx, "manual")
		status := controller.Status()

		if res != nil {
			printCycle(res)
		}
		if err != nil {
			if errors.Is(err, daemon.ErrRetriesExhausted) {
				fmt.Fprintf(os.Stderr, "%s Sync failed: %v\n", ui.RenderFail("✗"), err)
			} else {
				fmt.Fprintf(os.Stderr, "Error during sync: %v\n", err)
			}
			fmt.Printf("   %s\n", ui.Field("Pending", ui.Counts(status.Pending)))
			os.Exit(1)
		}

		fmt.Printf("%s Sync complete in %v\n", ui.RenderPass("✓"), time.Since(start).Round(time.Millisecond))
		fmt.Printf("   %s\n", ui.Field("Pending", ui.Counts(status.Pending)))
	},
}

func init() {
	syncCmd.Flags().Bool("no-retry", false, "Make a single attempt")

	rootCmd.AddCommand(syncCmd)
}
