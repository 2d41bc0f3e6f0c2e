package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/fieldcount/countsync/internal/store"
	"github.com/fieldcount/countsync/internal/ui"
)

type statusReport struct {
	Database   string       `json:"database" yaml:"database"`
	Server     string       `json:"server" yaml:"server"`
	LastSyncAt *time.Time   `json:"last_sync_at,omitempty" yaml:"last_sync_at,omitempty"`
	CompanyID  int64        `json:"company_id,omitempty" yaml:"company_id,omitempty"`
	BranchID   int64        `json:"branch_id,omitempty" yaml:"branch_id,omitempty"`
	Online     *bool        `json:"online,omitempty" yaml:"online,omitempty"`
	Version    string       `json:"server_version,omitempty" yaml:"server_version,omitempty"`
	Stats      *store.Stats `json:"stats" yaml:"stats"`
}

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show pending work and local catalog state",
	Long: `Display what is stored on this device.

Shows:
  - Pending records per kind and pending photos
  - Downloaded catalog sizes and sessions
  - When the last complete sync finished
  - Server reachability (with --check)`,
	Run: func(cmd *cobra.Command, args []string) {
		format, _ := cmd.Flags().GetString("format")
		check, _ := cmd.Flags().GetBool("check")

		database := openStore()
		defer database.Close()
		ctx := context.Background()

		stats, err := database.Stats(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading stats: %v\n", err)
			os.Exit(1)
		}
		last, err := database.LastSyncAt(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading last sync: %v\n", err)
			os.Exit(1)
		}

		report := statusReport{Database: cfg.DB.Path, Server: cfg.Server.URL, Stats: stats}
		if !last.IsZero() {
			report.LastSyncAt = &last
		}
		report.CompanyID, _ = database.GetInt64Setting(ctx, store.SettingCompanyID)
		report.BranchID, _ = database.GetInt64Setting(ctx, store.SettingBranchID)

		if check {
			pctx, cancel := context.WithTimeout(ctx, cfg.API.Timeout)
			version, err := newClient(database).CheckVersion(pctx)
			cancel()
			online := err == nil
			report.Online = &online
			report.Version = version
			if err != nil {
				logger.Debug().Err(err).Msg("server check failed")
			}
		}

		switch format {
		case "json":
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				fmt.Fprintf(os.Stderr, "Error encoding status: %v\n", err)
				os.Exit(1)
			}
		case "yaml":
			if err := yaml.NewEncoder(os.Stdout).Encode(report); err != nil {
				fmt.Fprintf(os.Stderr, "Error encoding status: %v\n", err)
				os.Exit(1)
			}
		case "text":
			printStatus(report, last)
		default:
			fmt.Fprintf(os.Stderr, "Error: unknown format %q (use text, json or yaml)\n", format)
			os.Exit(1)
		}
	},
}

func printStatus(r statusReport, last time.Time) {
	s := r.Stats
	fmt.Printf("\n%s\n\n", ui.RenderBold("Device Status"))
	fmt.Println(ui.Field("Database", r.Database))
	fmt.Println(ui.Field("Server", r.Server))
	if r.Online != nil {
		if *r.Online {
			fmt.Println(ui.Field("Reachable", ui.RenderPass("yes")+" "+ui.RenderMuted(r.Version)))
		} else {
			fmt.Println(ui.Field("Reachable", ui.RenderFail("no")))
		}
	}
	fmt.Println(ui.Field("Last sync", formatTime(last)))
	if r.CompanyID != 0 {
		fmt.Println(ui.Field("Company", r.CompanyID))
	}
	if r.BranchID != 0 {
		fmt.Println(ui.Field("Branch", r.BranchID))
	}

	fmt.Println()
	pending := ui.Counts(s.Pending)
	if s.TotalPending() == 0 {
		pending = ui.RenderPass("nothing to upload")
	}
	fmt.Println(ui.Field("Pending", pending))
	fmt.Println(ui.Field("Photos pending", s.PendingPhotos))
	fmt.Println(ui.Field("Records", ui.Counts(s.Records)))

	fmt.Println()
	fmt.Println(ui.Field("Companies", s.Companies))
	fmt.Println(ui.Field("Branches", s.Branches))
	fmt.Println(ui.Field("Products", s.Products))
	fmt.Println(ui.Field("Lots", s.Lots))
	fmt.Println(ui.Field("Sessions", s.Sessions))
	fmt.Println(ui.Field("Tag reads", s.TagReads))
	fmt.Println()
}

func init() {
	statusCmd.Flags().StringP("format", "f", "text", "Output format (text, json, yaml)")
	statusCmd.Flags().Bool("check", false, "Check that the server is reachable")

	rootCmd.AddCommand(statusCmd)
}
