package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fieldcount/countsync/internal/config"
	"github.com/fieldcount/countsync/internal/logging"
	"github.com/fieldcount/countsync/internal/metrics"
	"github.com/fieldcount/countsync/internal/remote"
	"github.com/fieldcount/countsync/internal/store"
	"github.com/fieldcount/countsync/internal/sync"
)

// skipConfig marks commands that must run even when the config file is
// broken.
const skipConfig = "skip-config"

var (
	cfgFile string
	cfg     *config.Config
	vp      *viper.Viper

	logger    = zerolog.Nop()
	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "countsync",
	Short: "Offline-first inventory and asset capture",
	Long: `countsync captures inventory counts, asset observations and RFID tag
reads into a local database and synchronizes them with the count server
whenever it is reachable.

Captures never need the network. Pending records stay on the device until
the server acknowledges them.`,
	SilenceUsage: true,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCloser != nil {
			_ = logCloser.Close()
		}
	},
}

func init() {
	// Assigned here rather than in the literal to avoid an initialization
	// cycle: loadConfig refers to rootCmd.
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if cmd.Annotations[skipConfig] == "true" {
			cfg = config.Default()
			return nil
		}
		return loadConfig()
	}

	rootCmd.AddGroup(
		&cobra.Group{ID: "capture", Title: "Capture:"},
		&cobra.Group{ID: "sync", Title: "Sync:"},
		&cobra.Group{ID: "advanced", Title: "Advanced:"},
		&cobra.Group{ID: "maint", Title: "Maintenance:"},
	)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: ./countsync.toml, ~/.countsync/countsync.toml)")
	rootCmd.PersistentFlags().String("db", "", "Local database path")
	rootCmd.PersistentFlags().String("server", "", "Count server URL")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads settings and sets up logging. Flags win over the config
// file and environment.
func loadConfig() error {
	vp = config.New(cfgFile)
	flags := rootCmd.PersistentFlags()
	for key, name := range map[string]string{
		"db.path":    "db",
		"server.url": "server",
		"log.level":  "log-level",
	} {
		if err := vp.BindPFlag(key, flags.Lookup(name)); err != nil {
			return err
		}
	}

	if err := config.Read(vp); err != nil {
		return err
	}
	c, err := config.Decode(vp)
	if err != nil {
		return err
	}
	cfg = c

	l, closer, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	logger, logCloser = l, closer
	logger.Debug().Str("config", vp.ConfigFileUsed()).Str("db", cfg.DB.Path).Msg("configuration loaded")
	return nil
}

// openStore opens the local database and makes sure its schema exists.
func openStore() *store.DB {
	if err := os.MkdirAll(filepath.Dir(cfg.DB.Path), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating database directory: %v\n", err)
		os.Exit(1)
	}
	database, err := store.Open(cfg.DB.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}
	if err := database.InitSchema(); err != nil {
		_ = database.Close()
		fmt.Fprintf(os.Stderr, "Error initializing schema: %v\n", err)
		os.Exit(1)
	}
	return database
}

// newClient builds a server client that reads the auth token from the store
// on every request, so a new login takes effect without a restart.
func newClient(database *store.DB) *remote.Client {
	client, err := remote.New(remote.Config{
		BaseURL:  cfg.Server.URL,
		Timeout:  cfg.API.Timeout,
		PageSize: cfg.API.PageSize,
		Token: func(ctx context.Context) (string, error) {
			return database.GetSetting(ctx, store.SettingAuthToken)
		},
		Logger: &logger,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return client
}

func newEngine(database *store.DB, client *remote.Client, m *metrics.Metrics) *sync.Engine {
	return sync.New(database, client, &sync.Config{
		Logger:  &logger,
		Metrics: m,
	})
}
