package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/fieldcount/countsync/internal/schema"
	"github.com/fieldcount/countsync/internal/store"
	"github.com/fieldcount/countsync/internal/ui"
)

var loginCmd = &cobra.Command{
	Use:     "login",
	GroupID: "sync",
	Short:   "Save the operator, token and working company on this device",
	Long: `Store the credentials and defaults used by every other command.

The auth token is sent as a bearer token on every server call. The company
and branch become the defaults for 'countsync session create'.

When run in a terminal without flags, login prompts for what is missing.`,
	Run: func(cmd *cobra.Command, args []string) {
		token, _ := cmd.Flags().GetString("token")
		user, _ := cmd.Flags().GetString("user")
		companyID, _ := cmd.Flags().GetInt64("company")
		branchID, _ := cmd.Flags().GetInt64("branch")

		database := openStore()
		defer database.Close()
		ctx := context.Background()

		if interactive() && (token == "" || user == "") {
			if err := promptCredentials(&token, &user); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		}
		if companyID == 0 && interactive() {
			companies, err := database.ListCompanies(ctx)
			if err == nil && len(companies) > 0 {
				companyID = chooseCompany(companies)
			}
		}

		settings := map[string]string{}
		if token = strings.TrimSpace(token); token != "" {
			settings[store.SettingAuthToken] = token
		}
		if user = strings.TrimSpace(user); user != "" {
			settings[store.SettingUserID] = user
		}
		if companyID > 0 {
			settings[store.SettingCompanyID] = strconv.FormatInt(companyID, 10)
		}
		if branchID > 0 {
			settings[store.SettingBranchID] = strconv.FormatInt(branchID, 10)
		}
		if len(settings) == 0 {
			fmt.Fprintf(os.Stderr, "Error: nothing to save (use --token, --user, --company or --branch)\n")
			os.Exit(1)
		}

		for key, value := range settings {
			if err := database.SetSetting(ctx, key, value); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		}

		fmt.Printf("%s Saved %d setting(s)\n", ui.RenderPass("✓"), len(settings))
		if user != "" {
			fmt.Printf("   %s\n", ui.Field("User", user))
		}
		if companyID > 0 {
			fmt.Printf("   %s\n", ui.Field("Company", companyID))
		}
		if branchID > 0 {
			fmt.Printf("   %s\n", ui.Field("Branch", branchID))
		}
	},
}

func promptCredentials(token, user *string) error {
	return huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Operator").
			Value(user),
		huh.NewInput().
			Title("Auth token").
			EchoMode(huh.EchoModePassword).
			Value(token),
	)).Run()
}

func chooseCompany(companies []schema.Company) int64 {
	options := make([]huh.Option[int64], 0, len(companies))
	for _, c := range companies {
		options = append(options, huh.NewOption(c.Name, c.ID))
	}
	var chosen int64
	err := huh.NewForm(huh.NewGroup(
		huh.NewSelect[int64]().
			Title("Company").
			Options(options...).
			Value(&chosen),
	)).Run()
	if err != nil {
		return 0
	}
	return chosen
}

func init() {
	loginCmd.Flags().String("token", "", "Auth token issued by the server")
	loginCmd.Flags().String("user", "", "Operator id recorded on captures")
	loginCmd.Flags().Int64("company", 0, "Default company id")
	loginCmd.Flags().Int64("branch", 0, "Default branch id")

	rootCmd.AddCommand(loginCmd)
}
