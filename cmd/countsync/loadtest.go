package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fieldcount/countsync/internal/loadtest"
	"github.com/fieldcount/countsync/internal/ui"
)

var loadtestCmd = &cobra.Command{
	Use:         "loadtest",
	GroupID:     "advanced",
	Short:       "Measure capture latency under concurrent sync",
	Annotations: map[string]string{skipConfig: "true"},
	Long: `Run concurrent captures against a scratch database while an uploader
marks records synced, then verify that every record was confirmed exactly
once.

The scratch database is created in a temporary directory and removed
afterwards; the device database is never touched.

Examples:
  countsync loadtest
  countsync loadtest --workers 32 --captures 200 --products 20000`,
	Run: func(cmd *cobra.Command, args []string) {
		workers, _ := cmd.Flags().GetInt("workers")
		captures, _ := cmd.Flags().GetInt("captures")
		products, _ := cmd.Flags().GetInt("products")
		sessions, _ := cmd.Flags().GetInt("sessions")

		dir, err := os.MkdirTemp("", "countsync-loadtest-")
		exitOn(err)
		defer os.RemoveAll(dir)

		fmt.Printf("%s Preparing %d products in %d sessions...\n", ui.RenderAccent("⏱"), products, sessions)
		td, err := loadtest.CreateTestDatabase(filepath.Join(dir, "load.db"), products, sessions)
		exitOn(err)
		defer td.Close()

		fmt.Printf("%s Running %d workers x %d captures...\n", ui.RenderAccent("⏱"), workers, captures)
		stats, err := td.RunCaptureAndSync(workers, captures)
		exitOn(err)

		fmt.Println()
		stats.PrintStats(os.Stdout)
		fmt.Println()

		if err := td.VerifyAllSynced(stats); err != nil {
			fmt.Fprintf(os.Stderr, "%s Verification failed: %v\n", ui.RenderFail("✗"), err)
			os.Exit(1)
		}
		fmt.Printf("%s All %d records confirmed exactly once\n", ui.RenderPass("✓"), stats.Synced)
	},
}

func init() {
	loadtestCmd.Flags().Int("workers", 8, "Concurrent capture goroutines")
	loadtestCmd.Flags().Int("captures", 100, "Captures per worker")
	loadtestCmd.Flags().Int("products", 5000, "Catalog size")
	loadtestCmd.Flags().Int("sessions", 4, "Inventory sessions")

	rootCmd.AddCommand(loadtestCmd)
}
