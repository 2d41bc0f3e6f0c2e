package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fieldcount/countsync/internal/schema"
	"github.com/fieldcount/countsync/internal/store"
	"github.com/fieldcount/countsync/internal/ui"
)

var catalogCmd = &cobra.Command{
	Use:     "catalog",
	GroupID: "capture",
	Short:   "Browse the downloaded catalogs",
}

var catalogCompaniesCmd = &cobra.Command{
	Use:   "companies",
	Short: "List companies and their branches",
	Run: func(cmd *cobra.Command, args []string) {
		database := openStore()
		defer database.Close()
		ctx := context.Background()

		companies, err := database.ListCompanies(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if len(companies) == 0 {
			fmt.Printf("%s No companies. Run 'countsync sync' to download them.\n", ui.RenderWarn("⚠"))
			return
		}

		for _, c := range companies {
			products, _ := database.CountProducts(ctx, c.ID)
			fmt.Printf("%s %s %s\n", ui.RenderAccent(fmt.Sprintf("%6d", c.ID)), ui.RenderBold(c.Name),
				ui.RenderMuted(fmt.Sprintf("(%d products)", products)))

			branches, err := database.ListBranches(ctx, c.ID)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			for _, b := range branches {
				fmt.Printf("       %6d %s\n", b.ID, b.Name)
			}
		}
	},
}

var catalogLookupCmd = &cobra.Command{
	Use:   "lookup <code>",
	Short: "Look up a barcode in a company catalog",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		companyID, _ := cmd.Flags().GetInt64("company")

		database := openStore()
		defer database.Close()
		ctx := context.Background()

		if companyID == 0 {
			companyID, _ = database.GetInt64Setting(ctx, store.SettingCompanyID)
		}

		var (
			product *schema.Product
			err     error
		)
		if companyID == 0 {
			product, err = database.FindProductAnyCompany(ctx, args[0])
		} else {
			product, err = database.FindProduct(ctx, companyID, args[0])
		}
		if errors.Is(err, store.ErrNotFound) {
			fmt.Printf("%s %s is not in the catalog\n", ui.RenderWarn("⚠"), args[0])
			os.Exit(1)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s %s  %s\n", ui.RenderPass("✓"), product.Barcode, ui.RenderBold(product.Description))
		fmt.Printf("   %s\n", ui.Field("Product", product.ID))
		fmt.Printf("   %s\n", ui.Field("Company", product.CompanyID))
		for _, f := range []struct{ label, value string }{
			{"Category", product.Category},
			{"Brand", product.Brand},
			{"Model", product.Model},
			{"Color", product.Color},
			{"Serial", product.Serial},
		} {
			if f.value != "" {
				fmt.Printf("   %s\n", ui.Field(f.label, f.value))
			}
		}

		if companyID == 0 {
			return
		}
		lots, err := database.ListLotsByBarcode(ctx, companyID, args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		for _, l := range lots {
			line := l.Code
			if l.Expiry != nil {
				line += "  exp " + l.Expiry.Format("2006-01-02")
			}
			fmt.Printf("   %s\n", ui.Field("Lot", line))
		}
	},
}

func init() {
	catalogLookupCmd.Flags().Int64("company", 0, "Company id (default: the login company, else any)")

	catalogCmd.AddCommand(catalogCompaniesCmd, catalogLookupCmd)
	rootCmd.AddCommand(catalogCmd)
}
