package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fieldcount/countsync/internal/config"
	"github.com/fieldcount/countsync/internal/ui"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "maint",
	Short:   "Create and inspect the configuration",
	Long: `Settings come from, in increasing priority:
  1. Built-in defaults
  2. countsync.toml (or .yaml) in ., ~/.countsync or /etc/countsync
  3. COUNTSYNC_* environment variables, e.g. COUNTSYNC_SERVER_URL
  4. Command-line flags (--config, --db, --server, --log-level)`,
}

var configInitCmd = &cobra.Command{
	Use:         "init [path]",
	Short:       "Write a config file with the default settings",
	Args:        cobra.MaximumNArgs(1),
	Annotations: map[string]string{skipConfig: "true"},
	Run: func(cmd *cobra.Command, args []string) {
		force, _ := cmd.Flags().GetBool("force")

		path := config.FileName + ".toml"
		if len(args) == 1 {
			path = args[0]
		} else if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, ".countsync", config.FileName+".toml")
		}

		if err := config.Init(path, force); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			if !force {
				fmt.Fprintf(os.Stderr, "Use --force to overwrite\n")
			}
			os.Exit(1)
		}
		fmt.Printf("%s Wrote %s\n", ui.RenderPass("✓"), path)
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Run: func(cmd *cobra.Command, args []string) {
		if used := vp.ConfigFileUsed(); used != "" {
			fmt.Printf("# from %s\n", used)
		} else {
			fmt.Println("# no config file found; defaults and environment only")
		}
		if err := config.WriteYAML(os.Stdout, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	configInitCmd.Flags().Bool("force", false, "Overwrite an existing file")

	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}
