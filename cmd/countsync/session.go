package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fieldcount/countsync/internal/schema"
	"github.com/fieldcount/countsync/internal/store"
	"github.com/fieldcount/countsync/internal/ui"
)

var sessionCmd = &cobra.Command{
	Use:     "session",
	GroupID: "capture",
	Short:   "List and create count sessions",
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List downloaded sessions",
	Run: func(cmd *cobra.Command, args []string) {
		kindText, _ := cmd.Flags().GetString("kind")
		all, _ := cmd.Flags().GetBool("all")

		kinds := schema.SessionKinds
		if kindText != "" {
			kind, err := schema.ParseSessionKind(kindText)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			kinds = []schema.SessionKind{kind}
		}

		database := openStore()
		defer database.Close()
		ctx := context.Background()

		shown := 0
		for _, kind := range kinds {
			sessions, err := database.ListSessions(ctx, kind)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error listing sessions: %v\n", err)
				os.Exit(1)
			}
			for _, s := range sessions {
				if !all && !s.IsActive() {
					continue
				}
				status := ui.RenderPass(s.Status)
				if !s.IsActive() {
					status = ui.RenderMuted(s.Status)
				}
				where := s.CompanyName
				if where == "" {
					where = fmt.Sprintf("company %d", s.CompanyID)
				}
				if s.BranchName != "" {
					where += " / " + s.BranchName
				}
				fmt.Printf("%s %-9s %-30s %s  %s\n",
					ui.RenderAccent(fmt.Sprintf("%6d", s.ID)), s.Kind, s.Name, status, ui.RenderMuted(where))
				shown++
			}
		}

		if shown == 0 {
			fmt.Printf("%s No sessions. Run 'countsync sync' to download them.\n", ui.RenderWarn("⚠"))
		}
	},
}

var sessionCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a session on the server",
	Long: `Create a new session on the count server and store it locally.

This needs the server: sessions are never created offline. --company and
--branch default to the values saved by 'countsync login'.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		kindText, _ := cmd.Flags().GetString("kind")
		companyID, _ := cmd.Flags().GetInt64("company")
		branchID, _ := cmd.Flags().GetInt64("branch")

		kind, err := schema.ParseSessionKind(kindText)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		database := openStore()
		defer database.Close()

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if companyID == 0 {
			companyID, _ = database.GetInt64Setting(ctx, store.SettingCompanyID)
		}
		if branchID == 0 {
			branchID, _ = database.GetInt64Setting(ctx, store.SettingBranchID)
		}
		if companyID == 0 {
			fmt.Fprintf(os.Stderr, "Error: --company is required (or set it with 'countsync login')\n")
			os.Exit(1)
		}

		engine := newEngine(database, newClient(database), nil)
		session, err := engine.CreateSession(ctx, kind, args[0], companyID, branchID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s Created %s session %d: %s\n", ui.RenderPass("✓"), session.Kind, session.ID, session.Name)
	},
}

func init() {
	sessionListCmd.Flags().String("kind", "", "Only sessions of this kind (inventory, asset)")
	sessionListCmd.Flags().Bool("all", false, "Include closed sessions")

	sessionCreateCmd.Flags().String("kind", string(schema.SessionInventory), "Session kind (inventory, asset)")
	sessionCreateCmd.Flags().Int64("company", 0, "Company id")
	sessionCreateCmd.Flags().Int64("branch", 0, "Branch id")

	sessionCmd.AddCommand(sessionListCmd, sessionCreateCmd)
	rootCmd.AddCommand(sessionCmd)
}
