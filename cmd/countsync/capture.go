package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/fieldcount/countsync/internal/capture"
	"github.com/fieldcount/countsync/internal/schema"
	"github.com/fieldcount/countsync/internal/store"
	"github.com/fieldcount/countsync/internal/ui"
)

var captureCmd = &cobra.Command{
	Use:     "capture <code>",
	GroupID: "capture",
	Short:   "Count a scanned code in an inventory session",
	Long: `Save one inventory count for a scanned barcode.

The code is checked against the downloaded catalog of the session's company.
A code outside the catalog is rejected unless capture.require_catalog is off,
--force is given, or the operator confirms it at the prompt.

Lot, expiry, multiplier and serial are only recorded when the matching
capture.use_* option is enabled. Expiry accepts dates (2026-03-31, 03-2026)
and phrases such as "in 6 months".

Examples:
  countsync capture 7501234567890 --session 12
  countsync capture 7501234567890 --session 12 --qty 4 --multiplier 12
  countsync capture 7501234567890 --session 12 --lot L-44 --expiry "in 3 months"`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		sessionID, _ := cmd.Flags().GetInt64("session")
		force, _ := cmd.Flags().GetBool("force")
		oneShot, _ := cmd.Flags().GetBool("one-shot")
		qtyText, _ := cmd.Flags().GetString("qty")
		multiplier, _ := cmd.Flags().GetFloat64("multiplier")
		lot, _ := cmd.Flags().GetString("lot")
		expiryText, _ := cmd.Flags().GetString("expiry")
		serial, _ := cmd.Flags().GetString("serial")
		description, _ := cmd.Flags().GetString("description")

		database := openStore()
		defer database.Close()
		ctx := context.Background()

		session := loadSession(ctx, database, schema.SessionInventory, sessionID)

		opts := cfg.Capture
		if force {
			opts.ForceAccept = true
		}
		if oneShot {
			opts.OneShot = true
		}

		in := capture.Input{
			Multiplier:  multiplier,
			Lot:         lot,
			Serial:      serial,
			Description: description,
			UserID:      currentUser(ctx, database),
		}
		if qtyText != "" {
			q, err := strconv.ParseFloat(qtyText, 64)
			if err != nil || q < 0 {
				fmt.Fprintf(os.Stderr, "Error: invalid quantity %q\n", qtyText)
				os.Exit(1)
			}
			in.Quantity = &q
		}
		if expiryText != "" {
			t, err := capture.ParseExpiry(expiryText, time.Now())
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			in.Expiry = &t
		}

		validator := capture.New(database, &logger)
		draft, err := validator.Scan(ctx, session, args[0], opts)

		var rejected *capture.RejectionError
		if errors.As(err, &rejected) {
			if !confirm(fmt.Sprintf("%s is not in the catalog. Count it anyway?", rejected.Code)) {
				fmt.Printf("%s %s rejected: not in the catalog\n", ui.RenderWarn("⚠"), rejected.Code)
				fmt.Printf("   Use --force to count codes outside the catalog\n")
				os.Exit(1)
			}
			draft, err = validator.Resubmit(ctx, rejected)
		}
		if errors.Is(err, capture.ErrBlankCode) {
			return
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if opts.UseLot && in.Lot == "" && len(draft.Lots) > 0 {
			in.Lot = chooseLot(draft.Lots)
		}

		rec, err := validator.Save(ctx, draft, in)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		desc := rec.Description
		if draft.Product == nil {
			desc = ui.RenderWarn("outside catalog")
		}
		fmt.Printf("%s Counted %s x %s  %s\n", ui.RenderPass("✓"), rec.Barcode, strconv.FormatFloat(rec.Quantity, 'f', -1, 64), desc)
		fmt.Printf("   %s\n", ui.Field("Record", rec.LocalID))
		if rec.Lot != "" {
			fmt.Printf("   %s\n", ui.Field("Lot", rec.Lot))
		}
		if rec.Expiry != nil {
			fmt.Printf("   %s\n", ui.Field("Expiry", rec.Expiry.Format("2006-01-02")))
		}
	},
}

var assetCmd = &cobra.Command{
	Use:     "asset <code>",
	GroupID: "capture",
	Short:   "Record an observed asset in an asset session",
	Long: `Save one asset observation. Blank descriptive fields are filled from the
catalog. Photos given with --photo are uploaded once the server has
acknowledged the record.

Examples:
  countsync asset AF-000123 --session 7 --status good --photo front.jpg
  countsync asset AF-000124 --session 7 --lat 19.43 --lon -99.13`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		sessionID, _ := cmd.Flags().GetInt64("session")
		force, _ := cmd.Flags().GetBool("force")
		photos, _ := cmd.Flags().GetStringArray("photo")

		in := capture.AssetInput{Code: args[0]}
		for _, p := range photos {
			abs, err := filepath.Abs(p)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			in.Photos = append(in.Photos, abs)
		}
		in.Description, _ = cmd.Flags().GetString("description")
		in.Category, _ = cmd.Flags().GetString("category")
		in.Brand, _ = cmd.Flags().GetString("brand")
		in.Model, _ = cmd.Flags().GetString("model")
		in.Color, _ = cmd.Flags().GetString("color")
		in.Serial, _ = cmd.Flags().GetString("serial")
		in.Status, _ = cmd.Flags().GetString("status")
		in.Notes, _ = cmd.Flags().GetString("notes")
		if cmd.Flags().Changed("lat") || cmd.Flags().Changed("lon") {
			lat, _ := cmd.Flags().GetFloat64("lat")
			lon, _ := cmd.Flags().GetFloat64("lon")
			in.Latitude, in.Longitude = &lat, &lon
		}

		database := openStore()
		defer database.Close()
		ctx := context.Background()

		session := loadSession(ctx, database, schema.SessionAsset, sessionID)
		in.UserID = currentUser(ctx, database)

		opts := cfg.Capture
		if force {
			opts.ForceAccept = true
		}

		validator := capture.New(database, &logger)
		rec, err := validator.CaptureAsset(ctx, session, in, opts)

		var rejected *capture.RejectionError
		if errors.As(err, &rejected) {
			if !confirm(fmt.Sprintf("%s is not in the catalog. Record it anyway?", rejected.Code)) {
				fmt.Printf("%s %s rejected: not in the catalog\n", ui.RenderWarn("⚠"), rejected.Code)
				os.Exit(1)
			}
			opts.ForceAccept = true
			rec, err = validator.CaptureAsset(ctx, session, in, opts)
		}
		if errors.Is(err, capture.ErrBlankCode) {
			return
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s Recorded asset %s  %s\n", ui.RenderPass("✓"), rec.Barcode, rec.Description)
		fmt.Printf("   %s\n", ui.Field("Record", rec.LocalID))
		if len(rec.Photos) > 0 {
			fmt.Printf("   %s\n", ui.Field("Photos", len(rec.Photos)))
		}
	},
}

var notFoundCmd = &cobra.Command{
	Use:     "not-found <code>",
	GroupID: "capture",
	Short:   "Note an asset that could not be found",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		sessionID, _ := cmd.Flags().GetInt64("session")
		description, _ := cmd.Flags().GetString("description")
		notes, _ := cmd.Flags().GetString("notes")

		database := openStore()
		defer database.Close()
		ctx := context.Background()

		session := loadSession(ctx, database, schema.SessionAsset, sessionID)
		validator := capture.New(database, &logger)
		rec, err := validator.RecordNotFound(ctx, session, args[0], description, notes, currentUser(ctx, database))
		if errors.Is(err, capture.ErrBlankCode) {
			return
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Noted %s as not found (record %d)\n", ui.RenderPass("✓"), rec.Barcode, rec.LocalID)
	},
}

var transferCmd = &cobra.Command{
	Use:     "transfer <code>",
	GroupID: "capture",
	Short:   "Record an asset moving between branches",
	Long: `Record that an asset moves from one branch of the session's company to
another. --from defaults to the session's branch.

Example:
  countsync transfer AF-000123 --session 7 --to 4`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		sessionID, _ := cmd.Flags().GetInt64("session")
		from, _ := cmd.Flags().GetInt64("from")
		to, _ := cmd.Flags().GetInt64("to")
		notes, _ := cmd.Flags().GetString("notes")

		database := openStore()
		defer database.Close()
		ctx := context.Background()

		session := loadSession(ctx, database, schema.SessionAsset, sessionID)
		if from == 0 {
			from = session.BranchID
		}

		validator := capture.New(database, &logger)
		rec, err := validator.RecordTransfer(ctx, session, args[0], from, to, notes, currentUser(ctx, database))
		if errors.Is(err, capture.ErrBlankCode) {
			return
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Transfer of %s from branch %d to %d recorded (record %d)\n",
			ui.RenderPass("✓"), rec.Barcode, rec.FromBranchID, rec.ToBranchID, rec.LocalID)
	},
}

// loadSession looks up the session named by --session in the local store.
func loadSession(ctx context.Context, database *store.DB, kind schema.SessionKind, id int64) *schema.Session {
	if id <= 0 {
		fmt.Fprintf(os.Stderr, "Error: --session is required (see 'countsync session list --kind %s')\n", kind)
		os.Exit(1)
	}
	session, err := database.GetSession(ctx, kind, id)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fmt.Fprintf(os.Stderr, "Run 'countsync sync' to download sessions\n")
		os.Exit(1)
	}
	return session
}

func currentUser(ctx context.Context, database *store.DB) string {
	user, err := database.GetSetting(ctx, store.SettingUserID)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to read user id")
	}
	return user
}

func interactive() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// confirm asks a yes/no question. Without a terminal the answer is no.
func confirm(question string) bool {
	if !interactive() {
		return false
	}
	var ok bool
	err := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(question).
			Affirmative("Yes").
			Negative("No").
			Value(&ok),
	)).Run()
	return err == nil && ok
}

// chooseLot lets the operator pick one of the product's known lots. Without
// a terminal no lot is chosen.
func chooseLot(lots []schema.Lot) string {
	if !interactive() {
		return ""
	}
	options := make([]huh.Option[string], 0, len(lots)+1)
	for _, l := range lots {
		label := l.Code
		if l.Expiry != nil {
			label += "  exp " + l.Expiry.Format("2006-01-02")
		}
		options = append(options, huh.NewOption(label, l.Code))
	}
	options = append(options, huh.NewOption("(no lot)", ""))

	var chosen string
	err := huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().
			Title("Lot").
			Options(options...).
			Value(&chosen),
	)).Run()
	if err != nil {
		return ""
	}
	return chosen
}

func init() {
	captureCmd.Flags().Int64("session", 0, "Inventory session id")
	captureCmd.Flags().String("qty", "", "Quantity (default 1)")
	captureCmd.Flags().Float64("multiplier", 0, "Units per package (needs capture.use_multiplier)")
	captureCmd.Flags().String("lot", "", "Lot code (needs capture.use_lot)")
	captureCmd.Flags().String("expiry", "", "Expiry date (needs capture.use_expiry)")
	captureCmd.Flags().String("serial", "", "Serial number (needs capture.use_serial)")
	captureCmd.Flags().String("description", "", "Description for codes outside the catalog")
	captureCmd.Flags().Bool("force", false, "Accept codes outside the catalog")
	captureCmd.Flags().Bool("one-shot", false, "Save with quantity 1 immediately")

	assetCmd.Flags().Int64("session", 0, "Asset session id")
	assetCmd.Flags().String("description", "", "Description")
	assetCmd.Flags().String("category", "", "Category")
	assetCmd.Flags().String("brand", "", "Brand")
	assetCmd.Flags().String("model", "", "Model")
	assetCmd.Flags().String("color", "", "Color")
	assetCmd.Flags().String("serial", "", "Serial number")
	assetCmd.Flags().String("status", "", "Condition, e.g. good, damaged")
	assetCmd.Flags().String("notes", "", "Free-form notes")
	assetCmd.Flags().Float64("lat", 0, "Latitude")
	assetCmd.Flags().Float64("lon", 0, "Longitude")
	assetCmd.Flags().StringArray("photo", nil, "Photo file to attach (repeatable)")
	assetCmd.Flags().Bool("force", false, "Accept codes outside the catalog")

	notFoundCmd.Flags().Int64("session", 0, "Asset session id")
	notFoundCmd.Flags().String("description", "", "Description")
	notFoundCmd.Flags().String("notes", "", "Free-form notes")

	transferCmd.Flags().Int64("session", 0, "Asset session id")
	transferCmd.Flags().Int64("from", 0, "Source branch id (default: session branch)")
	transferCmd.Flags().Int64("to", 0, "Destination branch id")
	transferCmd.Flags().String("notes", "", "Free-form notes")
	_ = transferCmd.MarkFlagRequired("to")

	rootCmd.AddCommand(captureCmd, assetCmd, notFoundCmd, transferCmd)
}
