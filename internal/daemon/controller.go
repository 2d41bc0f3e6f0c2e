package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	gosync "sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/fieldcount/countsync/internal/metrics"
	"github.com/fieldcount/countsync/internal/schema"
	"github.com/fieldcount/countsync/internal/sync"
)

// ErrRetriesExhausted is wrapped by the error of a sync whose every attempt
// failed.
var ErrRetriesExhausted = errors.New("sync retries exhausted")

// Syncer is the part of sync.Engine the controller drives.
type Syncer interface {
	UploadPending(ctx context.Context, kind schema.RecordKind) (*sync.KindResult, error)
	Cycle(ctx context.Context) (*sync.CycleResult, error)
	UploadPhotos(ctx context.Context) (*sync.PhotoResult, error)
	PendingCounts(ctx context.Context) (map[schema.RecordKind]int, error)
}

// Prober checks that the server is reachable. remote.Client implements it.
type Prober interface {
	CheckVersion(ctx context.Context) (string, error)
}

// Notifier receives sync lifecycle events. All methods are called from the
// controller goroutine and must not block.
type Notifier interface {
	SyncStarted(reason string)
	SyncCompleted(res *sync.CycleResult, status Status)
	SyncFailed(err error, status Status)
}

// Config holds configuration for the controller.
type Config struct {
	// Interval between scheduled syncs
	Interval time.Duration

	// ProbeInterval between connectivity checks (0 disables the probe)
	ProbeInterval time.Duration

	// ProbeTimeout bounds one connectivity check
	ProbeTimeout time.Duration

	// MaxAttempts per sync before reporting a terminal failure
	MaxAttempts int

	// InitialBackoff is the wait after the first failed attempt
	InitialBackoff time.Duration

	// MaxBackoff caps the wait between attempts
	MaxBackoff time.Duration

	// Notifier receives lifecycle events (optional)
	Notifier Notifier

	// Metrics receives the online gauge (optional)
	Metrics *metrics.Metrics

	// Logger for controller activity (default: stderr logger)
	Logger *zerolog.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Interval:       5 * time.Minute,
		ProbeInterval:  30 * time.Second,
		ProbeTimeout:   5 * time.Second,
		MaxAttempts:    3,
		InitialBackoff: 10 * time.Second,
		MaxBackoff:     2 * time.Minute,
	}
}

func (c *Config) withDefaults() *Config {
	d := DefaultConfig()
	if c == nil {
		return d
	}
	out := *c
	if out.Interval <= 0 {
		out.Interval = d.Interval
	}
	if out.ProbeTimeout <= 0 {
		out.ProbeTimeout = d.ProbeTimeout
	}
	if out.MaxAttempts <= 0 {
		out.MaxAttempts = d.MaxAttempts
	}
	if out.InitialBackoff <= 0 {
		out.InitialBackoff = d.InitialBackoff
	}
	if out.MaxBackoff < out.InitialBackoff {
		out.MaxBackoff = out.InitialBackoff
	}
	return &out
}

// Controller runs bounded-retry syncs on a schedule, on reconnect and on
// demand.
type Controller struct {
	syncer Syncer
	prober Prober
	config *Config
	logger zerolog.Logger

	group     singleflight.Group
	reconnect gosync.WaitGroup

	mu     gosync.Mutex
	status Status
}

// New creates a Controller. prober may be nil, in which case only the
// schedule and Trigger start syncs.
func New(syncer Syncer, prober Prober, config *Config) *Controller {
	config = config.withDefaults()
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	if config.Logger != nil {
		logger = *config.Logger
	}
	return &Controller{
		syncer: syncer,
		prober: prober,
		config: config,
		logger: logger.With().Str("component", "daemon").Logger(),
		status: Status{State: StateIdle},
	}
}

// Run schedules periodic syncs and watches connectivity until ctx is
// cancelled. The first scheduled sync runs immediately.
func (c *Controller) Run(ctx context.Context) error {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(c.config.Interval),
		gocron.NewTask(func() {
			_, _ = c.Trigger(ctx, "interval")
		}),
		gocron.WithStartAt(gocron.WithStartImmediately()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = scheduler.Shutdown()
		return fmt.Errorf("failed to schedule sync: %w", err)
	}

	c.logger.Info().Dur("interval", c.config.Interval).Msg("controller started")
	scheduler.Start()

	if c.prober != nil && c.config.ProbeInterval > 0 {
		c.probeLoop(ctx)
	} else {
		<-ctx.Done()
	}

	c.logger.Info().Msg("controller stopping")
	err = scheduler.Shutdown()
	c.reconnect.Wait()
	return err
}

// probeLoop checks connectivity and triggers a sync whenever the server
// comes back after being unreachable.
func (c *Controller) probeLoop(ctx context.Context) {
	ticker := time.NewTicker(c.config.ProbeInterval)
	defer ticker.Stop()

	for {
		if c.Probe(ctx) {
			c.reconnect.Add(1)
			go func() {
				defer c.reconnect.Done()
				_, _ = c.Trigger(ctx, "reconnect")
			}()
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Probe runs one connectivity check and records the result. It reports
// whether the server just came back: the previous probe saw it offline and
// this one sees it online.
func (c *Controller) Probe(ctx context.Context) bool {
	if c.prober == nil {
		return false
	}
	pctx, cancel := context.WithTimeout(ctx, c.config.ProbeTimeout)
	version, err := c.prober.CheckVersion(pctx)
	cancel()
	if ctx.Err() != nil {
		return false
	}

	online := err == nil
	c.config.Metrics.SetOnline(online)

	c.mu.Lock()
	prev := c.status.Online
	known := c.status.probed
	c.status.Online = online
	c.status.probed = true
	if online {
		c.status.ServerVersion = version
	}
	c.mu.Unlock()

	switch {
	case online && known && !prev:
		c.logger.Info().Str("version", version).Msg("server reachable again")
		return true
	case !online && (prev || !known):
		c.logger.Warn().Err(err).Msg("server unreachable")
	}
	return false
}

// Trigger runs a sync now, or joins the one already running. reason is
// recorded in the status and the logs.
func (c *Controller) Trigger(ctx context.Context, reason string) (*sync.CycleResult, error) {
	v, err, shared := c.group.Do("sync", func() (interface{}, error) {
		return c.runWithRetry(ctx, reason)
	})
	if shared {
		c.logger.Debug().Str("reason", reason).Msg("joined running sync")
	}
	res, _ := v.(*sync.CycleResult)
	return res, err
}

func (c *Controller) runWithRetry(ctx context.Context, reason string) (*sync.CycleResult, error) {
	c.mu.Lock()
	c.status.State = StateSyncing
	c.status.Reason = reason
	c.status.Attempts = 0
	c.status.LastAttempt = time.Now()
	c.mu.Unlock()

	log := c.logger.With().Str("reason", reason).Logger()
	log.Info().Msg("sync triggered")
	if n := c.config.Notifier; n != nil {
		n.SyncStarted(reason)
	}

	var (
		res     *sync.CycleResult
		lastErr error
		backoff = c.config.InitialBackoff
	)
	for attempt := 1; attempt <= c.config.MaxAttempts; attempt++ {
		c.mu.Lock()
		c.status.Attempts = attempt
		c.mu.Unlock()

		res, lastErr = c.attempt(ctx)
		if lastErr == nil {
			c.succeed(ctx, res)
			return res, nil
		}
		log.Warn().Err(lastErr).Int("attempt", attempt).Int("max", c.config.MaxAttempts).Msg("sync attempt failed")

		if attempt == c.config.MaxAttempts {
			break
		}
		if err := wait(ctx, backoff); err != nil {
			lastErr = err
			c.fail(ctx, fmt.Errorf("sync cancelled: %w", err))
			return res, lastErr
		}
		backoff *= 2
		if backoff > c.config.MaxBackoff {
			backoff = c.config.MaxBackoff
		}
	}

	err := fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, c.config.MaxAttempts, lastErr)
	c.fail(ctx, err)
	return res, err
}

// attempt uploads inventory and asset records first, then runs the full
// cycle. It fails on a top-level error or a failed upload group. Catalog
// failures leave the previous mirror in place and do not fail the attempt.
func (c *Controller) attempt(ctx context.Context) (*sync.CycleResult, error) {
	var first []*sync.KindResult
	for _, kind := range []schema.RecordKind{schema.KindInventory, schema.KindAsset} {
		kr, err := c.syncer.UploadPending(ctx, kind)
		if err != nil {
			return nil, err
		}
		first = append(first, kr)
	}
	res, err := c.syncer.Cycle(ctx)
	if res != nil {
		res.AddUploads(first...)
	}
	if err != nil {
		return res, err
	}
	return res, res.UploadErr()
}

func (c *Controller) succeed(ctx context.Context, res *sync.CycleResult) {
	if photos, err := c.syncer.UploadPhotos(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("photo upload failed")
	} else if photos.Failed > 0 {
		c.logger.Warn().Int("failed", photos.Failed).Msg("some photos stay pending")
	}

	catalogErr := ""
	if err := res.Download.Err(); err != nil {
		catalogErr = err.Error()
		c.logger.Warn().Err(err).Int("catalogs", len(res.Download.Failed())).Msg("catalogs not refreshed, keeping previous mirror")
	}

	pending := c.pending(ctx)
	c.mu.Lock()
	c.status.State = StateIdle
	c.status.LastError = ""
	c.status.CatalogError = catalogErr
	c.status.LastSuccess = time.Now()
	c.status.Pending = pending
	status := c.status.clone()
	c.mu.Unlock()

	c.logger.Info().Int("uploaded", res.Uploaded()).Int("pending", status.TotalPending()).Msg("sync succeeded")
	if n := c.config.Notifier; n != nil {
		n.SyncCompleted(res, status)
	}
}

func (c *Controller) fail(ctx context.Context, err error) {
	pending := c.pending(ctx)
	c.mu.Lock()
	c.status.State = StateFailed
	c.status.LastError = err.Error()
	c.status.Pending = pending
	status := c.status.clone()
	c.mu.Unlock()

	c.logger.Error().Err(err).Int("pending", status.TotalPending()).Msg("sync failed, records stay pending")
	if n := c.config.Notifier; n != nil {
		n.SyncFailed(err, status)
	}
}

func (c *Controller) pending(ctx context.Context) map[schema.RecordKind]int {
	counts, err := c.syncer.PendingCounts(context.WithoutCancel(ctx))
	if err != nil {
		c.logger.Warn().Err(err).Msg("failed to count pending records")
		return nil
	}
	return counts
}

// Status returns a snapshot of the controller state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status.clone()
}

func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
