package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/fieldcount/countsync/internal/config"
	"github.com/fieldcount/countsync/internal/daemon"
	"github.com/fieldcount/countsync/internal/dashboard"
	"github.com/fieldcount/countsync/internal/logging"
	"github.com/fieldcount/countsync/internal/metrics"
	"github.com/fieldcount/countsync/internal/rfid"
	"github.com/fieldcount/countsync/internal/schema"
	"github.com/fieldcount/countsync/internal/sync"
	"github.com/fieldcount/countsync/internal/ui"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Sync in the background and serve the dashboard",
	Long: `Run the background sync controller until interrupted.

The daemon:
  - Syncs at startup and every sync.interval
  - Probes the server every sync.probe_interval and syncs when it comes back
  - Retries failed syncs with exponential backoff
  - Streams RFID tag reads from rfid.reader_url into rfid.session_id
  - Serves the dashboard on dashboard.host:dashboard.port

Dashboard endpoints:
  ws://HOST:PORT/ws        live sync, pending and tag read events
  http://HOST:PORT/status  controller status as JSON
  http://HOST:PORT/metrics Prometheus metrics

Editing the config file changes the log level immediately; other changes
apply after a restart.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runDaemon(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("\nDaemon stopped")
	},
}

// runDaemon wires the controller, dashboard and tag reader and blocks until
// interrupted. Every goroutine has returned before the store is closed.
func runDaemon() error {
	watchConfig()

	database := openStore()
	defer database.Close()

	m := metrics.New()
	client := newClient(database)
	engine := newEngine(database, client, m)

	dc := &daemon.Config{
		Interval:       cfg.Sync.Interval,
		ProbeInterval:  cfg.Sync.ProbeInterval,
		ProbeTimeout:   cfg.API.Timeout,
		MaxAttempts:    cfg.Retry.MaxAttempts,
		InitialBackoff: cfg.Retry.InitialBackoff,
		MaxBackoff:     cfg.Retry.MaxBackoff,
		Metrics:        m,
		Logger:         &logger,
	}

	var (
		server     *dashboard.Server
		handler    *dashboard.Handler
		controller *daemon.Controller
	)
	if cfg.Dashboard.Enabled {
		server = dashboard.NewServer(&dashboard.Config{
			Host:    cfg.Dashboard.Host,
			Port:    cfg.Dashboard.Port,
			Metrics: m.Handler(),
			Status:  func() any { return controller.Status() },
			Logger:  &logger,
		})
		handler = dashboard.NewHandler(server, &logger)
		dc.Notifier = handler
	}
	controller = daemon.New(engine, client, dc)

	var (
		matcher *rfid.Matcher
		source  *rfid.WebSocketSource
	)
	if cfg.RFID.ReaderURL != "" {
		matcher = rfid.NewMatcher(database, &rfid.Config{
			BufferSize: cfg.RFID.Buffer,
			OnRead: func(tag schema.TagRead) {
				m.RecordTagRead(tag.Matched)
				if handler != nil {
					handler.OnTagRead(tag)
				}
			},
			Logger: &logger,
		})
		source = rfid.NewWebSocketSource(cfg.RFID.ReaderURL, cfg.RFID.SessionID, matcher)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return controller.Run(ctx)
	})

	if server != nil {
		g.Go(func() error {
			return server.Run(ctx)
		})
		fmt.Printf("%s Dashboard on http://%s:%d\n", ui.RenderAccent("📡"), cfg.Dashboard.Host, cfg.Dashboard.Port)
	}

	if matcher != nil {
		g.Go(func() error {
			return matcher.Run(ctx)
		})
		g.Go(func() error {
			return source.Run(ctx)
		})
		fmt.Printf("%s Reading tags from %s into session %d\n", ui.RenderAccent("🏷"), cfg.RFID.ReaderURL, cfg.RFID.SessionID)
	}

	g.Go(func() error {
		publishPending(ctx, engine, m, handler)
		return nil
	})

	fmt.Printf("%s Syncing with %s every %v\n", ui.RenderAccent("🔄"), cfg.Server.URL, cfg.Sync.Interval)
	fmt.Println("\nPress Ctrl+C to stop...")

	return g.Wait()
}

// publishPending refreshes the pending gauges and dashboard badge between
// syncs, so captures made while the daemon runs show up promptly.
func publishPending(ctx context.Context, engine *sync.Engine, m *metrics.Metrics, handler *dashboard.Handler) {
	interval := cfg.Sync.ProbeInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		counts, err := engine.PendingCounts(ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to count pending records")
			continue
		}
		m.SetPending(counts)
		if handler != nil {
			handler.OnPending(counts)
		}
	}
}

// watchConfig applies log level edits live. The daemon logger is opened up
// to trace and the global level does the filtering.
func watchConfig() {
	if vp == nil || vp.ConfigFileUsed() == "" {
		return
	}
	if level, err := logging.ParseLevel(cfg.Log.Level); err == nil {
		zerolog.SetGlobalLevel(level)
		logger = logger.Level(zerolog.TraceLevel)
	}

	config.Watch(vp, func(c *config.Config) {
		level, err := logging.ParseLevel(c.Log.Level)
		if err != nil {
			return
		}
		if level != zerolog.GlobalLevel() {
			zerolog.SetGlobalLevel(level)
			logger.Info().Str("level", level.String()).Msg("log level changed")
		}
		if c.Sync != cfg.Sync || c.Retry != cfg.Retry || c.RFID != cfg.RFID || c.Dashboard != cfg.Dashboard {
			logger.Warn().Msg("config changed; restart the daemon to apply sync, rfid or dashboard settings")
		}
	}, func(err error) {
		logger.Warn().Err(err).Msg("ignoring invalid config change")
	})
	logger.Debug().Str("file", vp.ConfigFileUsed()).Msg("watching config")
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}
