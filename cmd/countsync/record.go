package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/fieldcount/countsync/internal/capture"
	"github.com/fieldcount/countsync/internal/schema"
	"github.com/fieldcount/countsync/internal/ui"
)

var recordCmd = &cobra.Command{
	Use:     "record",
	GroupID: "capture",
	Short:   "Review, correct and delete captured records",
	Long: `Manage records captured on this device.

Editing a record puts it back in the pending queue. Records the server has
already acknowledged keep their server id, so the next sync updates the
server copy instead of creating a new one.`,
}

var recordListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the records of a session",
	Run: func(cmd *cobra.Command, args []string) {
		sessionID, _ := cmd.Flags().GetInt64("session")
		pendingOnly, _ := cmd.Flags().GetBool("pending")
		if sessionID <= 0 {
			fmt.Fprintf(os.Stderr, "Error: --session is required\n")
			os.Exit(1)
		}

		database := openStore()
		defer database.Close()
		ctx := context.Background()

		var lines []recordLine
		inv, err := database.ListInventoryRecords(ctx, sessionID)
		exitOn(err)
		for _, r := range inv {
			detail := strconv.FormatFloat(r.Quantity, 'f', -1, 64)
			if r.Lot != "" {
				detail += " lot " + r.Lot
			}
			lines = append(lines, recordLine{schema.KindInventory, r.Meta, r.Barcode, detail + "  " + r.Description})
		}
		assets, err := database.ListAssetRecords(ctx, sessionID)
		exitOn(err)
		for _, r := range assets {
			lines = append(lines, recordLine{schema.KindAsset, r.Meta, r.Barcode, r.Status + "  " + r.Description})
		}
		notFound, err := database.ListNotFound(ctx, sessionID)
		exitOn(err)
		for _, r := range notFound {
			lines = append(lines, recordLine{schema.KindNotFound, r.Meta, r.Barcode, r.Description})
		}
		transfers, err := database.ListTransfers(ctx, sessionID)
		exitOn(err)
		for _, r := range transfers {
			lines = append(lines, recordLine{schema.KindTransfer, r.Meta, r.Barcode,
				fmt.Sprintf("branch %d -> %d", r.FromBranchID, r.ToBranchID)})
		}

		shown := 0
		for _, l := range lines {
			if pendingOnly && l.meta.Synced {
				continue
			}
			state := ui.RenderPass("synced")
			if !l.meta.Synced {
				state = ui.RenderWarn("pending")
			}
			fmt.Printf("%s %-10s %-8s %-20s %s\n",
				ui.RenderAccent(fmt.Sprintf("%6d", l.meta.LocalID)), l.kind, state, l.code, ui.RenderMuted(l.detail))
			shown++
		}
		if shown == 0 {
			fmt.Println(ui.RenderMuted("No records"))
		}
	},
}

type recordLine struct {
	kind   schema.RecordKind
	meta   schema.Meta
	code   string
	detail string
}

var recordEditCmd = &cobra.Command{
	Use:   "edit <inventory|asset> <local-id>",
	Short: "Correct a captured record",
	Long: `Correct an inventory count or an asset observation. Only the fields
given as flags change.

Examples:
  countsync record edit inventory 42 --qty 7
  countsync record edit asset 9 --status damaged --photo back.jpg`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		kind, id := parseRecordRef(args)
		flags := cmd.Flags()

		database := openStore()
		defer database.Close()
		ctx := context.Background()

		switch kind {
		case schema.KindInventory:
			rec, err := database.GetInventoryRecord(ctx, id)
			exitOn(err)
			if flags.Changed("qty") {
				rec.Quantity, _ = flags.GetFloat64("qty")
			}
			if flags.Changed("lot") {
				rec.Lot, _ = flags.GetString("lot")
			}
			if flags.Changed("serial") {
				rec.Serial, _ = flags.GetString("serial")
			}
			if flags.Changed("description") {
				rec.Description, _ = flags.GetString("description")
			}
			if flags.Changed("expiry") {
				text, _ := flags.GetString("expiry")
				if text == "" {
					rec.Expiry = nil
				} else {
					t, err := capture.ParseExpiry(text, time.Now())
					exitOn(err)
					rec.Expiry = &t
				}
			}
			exitOn(database.UpdateInventoryRecord(ctx, rec))

		case schema.KindAsset:
			rec, err := database.GetAssetRecord(ctx, id)
			exitOn(err)
			for name, dst := range map[string]*string{
				"description": &rec.Description,
				"status":      &rec.Status,
				"notes":       &rec.Notes,
				"serial":      &rec.Serial,
			} {
				if flags.Changed(name) {
					*dst, _ = flags.GetString(name)
				}
			}
			exitOn(database.UpdateAssetRecord(ctx, rec))

			photos, _ := flags.GetStringArray("photo")
			for _, p := range photos {
				abs, err := filepath.Abs(p)
				exitOn(err)
				_, err = database.AddPhoto(ctx, rec.LocalID, abs)
				exitOn(err)
			}

		default:
			fmt.Fprintf(os.Stderr, "Error: %s records cannot be edited; delete and capture again\n", kind)
			os.Exit(1)
		}

		fmt.Printf("%s Updated %s record %d; it will be uploaded on the next sync\n", ui.RenderPass("✓"), kind, id)
	},
}

var recordDeleteCmd = &cobra.Command{
	Use:   "delete <kind> <local-id>",
	Short: "Delete a captured record from this device",
	Long: `Delete a record from the local database. A record that was already
uploaded stays on the server.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		kind, id := parseRecordRef(args)
		yes, _ := cmd.Flags().GetBool("yes")

		if !yes && !confirm(fmt.Sprintf("Delete %s record %d?", kind, id)) {
			fmt.Println("Aborted")
			return
		}

		database := openStore()
		defer database.Close()

		exitOn(database.DeleteRecord(context.Background(), kind, id))
		fmt.Printf("%s Deleted %s record %d\n", ui.RenderPass("✓"), kind, id)
	},
}

func parseRecordRef(args []string) (schema.RecordKind, int64) {
	kind, err := schema.ParseRecordKind(args[0])
	exitOn(err)
	id, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil || id <= 0 {
		fmt.Fprintf(os.Stderr, "Error: invalid record id %q\n", args[1])
		os.Exit(1)
	}
	return kind, id
}

func exitOn(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	recordListCmd.Flags().Int64("session", 0, "Session id")
	recordListCmd.Flags().Bool("pending", false, "Only records not yet uploaded")

	recordEditCmd.Flags().Float64("qty", 0, "Quantity")
	recordEditCmd.Flags().String("lot", "", "Lot code")
	recordEditCmd.Flags().String("expiry", "", "Expiry date (empty clears it)")
	recordEditCmd.Flags().String("serial", "", "Serial number")
	recordEditCmd.Flags().String("description", "", "Description")
	recordEditCmd.Flags().String("status", "", "Asset condition")
	recordEditCmd.Flags().String("notes", "", "Asset notes")
	recordEditCmd.Flags().StringArray("photo", nil, "Photo file to attach to an asset (repeatable)")

	recordDeleteCmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")

	recordCmd.AddCommand(recordListCmd, recordEditCmd, recordDeleteCmd)
	rootCmd.AddCommand(recordCmd)
}
