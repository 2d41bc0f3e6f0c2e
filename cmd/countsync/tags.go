package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fieldcount/countsync/internal/rfid"
	"github.com/fieldcount/countsync/internal/ui"
)

var tagsCmd = &cobra.Command{
	Use:     "tags",
	GroupID: "capture",
	Short:   "Inspect RFID tag reads",
	Long: `Inspect the RFID tags read into a session.

Tag reads are collected by 'countsync daemon' when rfid.reader_url is set.
Each tag is stored once per session with its read count, strongest recent
signal and the catalog product its EPC matched, if any.`,
}

var tagsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the tags read in a session",
	Run: func(cmd *cobra.Command, args []string) {
		sessionID, _ := cmd.Flags().GetInt64("session")
		unmatched, _ := cmd.Flags().GetBool("unmatched")
		if sessionID <= 0 {
			fmt.Fprintf(os.Stderr, "Error: --session is required\n")
			os.Exit(1)
		}

		database := openStore()
		defer database.Close()

		tags, err := database.ListTagReads(context.Background(), sessionID)
		exitOn(err)

		matched := 0
		for _, t := range tags {
			if t.Matched {
				matched++
				if unmatched {
					continue
				}
			}
			product := ui.RenderMuted("unmatched")
			if t.MatchedProductID != nil {
				product = ui.RenderPass(fmt.Sprintf("product %d", *t.MatchedProductID))
			}
			fmt.Printf("%-26s %4dx %6.1f dBm  %s  %s\n",
				ui.RenderAccent(t.EPC), t.ReadCount, t.RSSI, t.LastSeen.Local().Format(time.TimeOnly), product)
		}
		fmt.Printf("\n%s\n", ui.Field("Tags", fmt.Sprintf("%d read, %d matched", len(tags), matched)))
	},
}

var tagsAddCmd = &cobra.Command{
	Use:   "add <epc>...",
	Short: "Record tag reads by hand",
	Long: `Record one read per EPC as if it came from a reader. Useful when a
reader is unavailable or to check catalog matching.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		sessionID, _ := cmd.Flags().GetInt64("session")
		rssi, _ := cmd.Flags().GetFloat64("rssi")
		if sessionID <= 0 {
			fmt.Fprintf(os.Stderr, "Error: --session is required\n")
			os.Exit(1)
		}

		database := openStore()
		defer database.Close()
		ctx := context.Background()

		matcher := rfid.NewMatcher(database, &rfid.Config{Logger: &logger})
		for _, epc := range args {
			tag, err := matcher.Process(ctx, rfid.Read{SessionID: sessionID, EPC: epc, RSSI: rssi, At: time.Now()})
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s %s: %v\n", ui.RenderFail("✗"), epc, err)
				continue
			}
			state := ui.RenderMuted("unmatched")
			if tag.Matched {
				state = ui.RenderPass("matched")
			}
			fmt.Printf("%s %s read %dx, %s\n", ui.RenderPass("✓"), tag.EPC, tag.ReadCount, state)
		}
	},
}

var tagsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget every tag read in a session",
	Run: func(cmd *cobra.Command, args []string) {
		sessionID, _ := cmd.Flags().GetInt64("session")
		if sessionID <= 0 {
			fmt.Fprintf(os.Stderr, "Error: --session is required\n")
			os.Exit(1)
		}

		database := openStore()
		defer database.Close()

		n, err := database.ClearTagReads(context.Background(), sessionID)
		exitOn(err)
		fmt.Printf("%s Cleared %d tag(s) from session %d\n", ui.RenderPass("✓"), n, sessionID)
	},
}

func init() {
	for _, c := range []*cobra.Command{tagsListCmd, tagsAddCmd, tagsClearCmd} {
		c.Flags().Int64("session", 0, "Session id")
	}
	tagsListCmd.Flags().Bool("unmatched", false, "Only tags that matched no product")
	tagsAddCmd.Flags().Float64("rssi", -60, "Signal strength to record")

	tagsCmd.AddCommand(tagsListCmd, tagsAddCmd, tagsClearCmd)
	rootCmd.AddCommand(tagsCmd)
}
