package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fieldcount/countsync/internal/ui"
)

var photosCmd = &cobra.Command{
	Use:     "photos",
	GroupID: "sync",
	Short:   "Attach and upload asset photos",
}

var photosAddCmd = &cobra.Command{
	Use:   "add <asset-record-id> <file>...",
	Short: "Attach photos to an asset record",
	Args:  cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || id <= 0 {
			fmt.Fprintf(os.Stderr, "Error: invalid record id %q\n", args[0])
			os.Exit(1)
		}

		database := openStore()
		defer database.Close()
		ctx := context.Background()

		if _, err := database.GetAssetRecord(ctx, id); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		for _, p := range args[1:] {
			abs, err := filepath.Abs(p)
			exitOn(err)
			if _, err := os.Stat(abs); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			photoID, err := database.AddPhoto(ctx, id, abs)
			exitOn(err)
			fmt.Printf("%s Attached %s (photo %d)\n", ui.RenderPass("✓"), filepath.Base(abs), photoID)
		}
	},
}

var photosPushCmd = &cobra.Command{
	Use:   "push",
	Short: "Upload pending photos",
	Long: `Upload every pending photo whose asset record the server has already
acknowledged. Photos of records still waiting for upload are skipped and
go out after the next sync.`,
	Run: func(cmd *cobra.Command, args []string) {
		database := openStore()
		defer database.Close()

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		engine := newEngine(database, newClient(database), nil)
		res, err := engine.UploadPhotos(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error uploading photos: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s %d photo(s) uploaded\n", ui.RenderPass("✓"), res.Uploaded)
		if res.Waiting > 0 {
			fmt.Printf("   %s\n", ui.Field("Waiting", fmt.Sprintf("%d (records not uploaded yet)", res.Waiting)))
		}
		for _, e := range res.Errors {
			fmt.Printf("   %s %v\n", ui.RenderFail("✗"), e)
		}
		if res.Failed > 0 {
			os.Exit(1)
		}
	},
}

func init() {
	photosCmd.AddCommand(photosAddCmd, photosPushCmd)
	rootCmd.AddCommand(photosCmd)
}
