// Package daemon runs sync passes in the background.
//
// The daemon:
// 1. Resets inspections left SYNCING by a crash
// 2. Runs a pass when connectivity comes back
// 3. Runs a pass when the local database is written (debounced)
// 4. Runs a pass periodically
// 5. Handles graceful shutdown
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	gosync "sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/sanorte/vistorias/internal/connectivity"
	"github.com/sanorte/vistorias/internal/sync"
)

// Trigger reasons.
const (
	ReasonStartup  = "startup"
	ReasonOnline   = "online"
	ReasonDBChange = "db-change"
	ReasonInterval = "interval"
)

// Config holds configuration for the daemon.
type Config struct {
	// Interval between periodic passes
	Interval time.Duration

	// ProbeInterval is how often connectivity is sampled to detect the
	// offline to online transition
	ProbeInterval time.Duration

	// Debounce is how long database writes must settle before a pass runs.
	// Writes made by a pass itself are ignored for this long after it ends.
	Debounce time.Duration

	// StaleGrace is how old a SYNCING record must be to count as abandoned
	StaleGrace time.Duration

	// OnPending receives the candidate-set size after every pass and
	// every settled database change
	OnPending func(n int)

	// Logger for daemon activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Interval:      5 * time.Minute,
		ProbeInterval: 15 * time.Second,
		Debounce:      2 * time.Second,
		StaleGrace:    2 * time.Minute,
		Logger:        log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Store is the part of the offline store the daemon needs.
type Store interface {
	ResetStaleSyncingContext(ctx context.Context, olderThan time.Duration) (int, error)
	CountPendingSyncContext(ctx context.Context) (int, error)
	Path() string
}

// Daemon triggers sync passes.
type Daemon struct {
	store  Store
	syncer sync.Syncer
	online connectivity.Checker
	config *Config

	watcher  *fsnotify.Watcher
	triggers chan string

	mu          gosync.Mutex
	changedAt   time.Time // zero when no change is queued
	quietUntil  time.Time
	wasOnline   bool
	passesTotal int

	ctx    context.Context
	cancel context.CancelFunc
	wg     gosync.WaitGroup
}

// New creates a new Daemon with the default configuration.
func New(store Store, syncer sync.Syncer, online connectivity.Checker) (*Daemon, error) {
	return NewWithConfig(store, syncer, online, DefaultConfig())
}

// NewWithConfig creates a daemon with custom configuration. Zero fields
// take their default.
func NewWithConfig(store Store, syncer sync.Syncer, online connectivity.Checker, config *Config) (*Daemon, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if syncer == nil {
		return nil, fmt.Errorf("syncer cannot be nil")
	}
	if online == nil {
		online = connectivity.NewStatic(true)
	}
	config = withDefaults(config)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		store:    store,
		syncer:   syncer,
		online:   online,
		config:   config,
		watcher:  watcher,
		triggers: make(chan string, 1),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

func withDefaults(config *Config) *Config {
	def := DefaultConfig()
	if config == nil {
		return def
	}
	c := *config
	if c.Interval <= 0 {
		c.Interval = def.Interval
	}
	if c.ProbeInterval <= 0 {
		c.ProbeInterval = def.ProbeInterval
	}
	if c.Debounce <= 0 {
		c.Debounce = def.Debounce
	}
	if c.StaleGrace <= 0 {
		c.StaleGrace = def.StaleGrace
	}
	if c.Logger == nil {
		c.Logger = def.Logger
	}
	return &c
}

// Start begins the daemon's operation.
//
// The daemon will:
// 1. Reset SYNCING records older than StaleGrace to PENDING_SYNC
// 2. Run a pass right away when the candidate set is not empty
// 3. Watch the database files, connectivity and the interval timer
//
// This blocks until ctx is cancelled.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("Starting daemon")

	n, err := d.store.ResetStaleSyncingContext(ctx, d.config.StaleGrace)
	if err != nil {
		d.abort()
		return fmt.Errorf("failed to recover stale syncing records: %w", err)
	}
	if n > 0 {
		d.config.Logger.Printf("Recovered %d inspections left in SYNCING", n)
	}

	dbDir := filepath.Dir(d.store.Path())
	if err := d.watcher.Add(dbDir); err != nil {
		d.abort()
		return fmt.Errorf("failed to watch %s: %w", dbDir, err)
	}
	d.config.Logger.Printf("Watching: %s", d.store.Path())

	d.wasOnline = d.online.Online(ctx)
	pending := d.refreshPending()
	if pending > 0 {
		d.trigger(ReasonStartup)
	}

	d.wg.Add(5)
	go d.runLoop()
	go d.watchFileEvents()
	go d.processChanges()
	go d.probeConnectivity()
	go d.periodic()

	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the daemon. A running pass is cancelled.
func (d *Daemon) Stop() error {
	d.config.Logger.Println("Stopping daemon")

	d.cancel()

	if err := d.watcher.Close(); err != nil {
		d.config.Logger.Printf("Error closing watcher: %v", err)
	}

	d.wg.Wait()

	d.config.Logger.Println("Daemon stopped")
	return nil
}

// abort releases what NewWithConfig acquired when Start fails before any
// goroutine is running.
func (d *Daemon) abort() {
	d.cancel()
	if err := d.watcher.Close(); err != nil {
		d.config.Logger.Printf("Error closing watcher: %v", err)
	}
}

// Passes returns how many passes the daemon has run.
func (d *Daemon) Passes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.passesTotal
}

// trigger requests a pass. Requests made while one is already queued are
// merged into it.
func (d *Daemon) trigger(reason string) {
	select {
	case d.triggers <- reason:
	default:
	}
}

// runLoop executes requested passes one at a time.
func (d *Daemon) runLoop() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return
		case reason := <-d.triggers:
			d.runPass(reason)
		}
	}
}

func (d *Daemon) runPass(reason string) {
	res, err := d.syncer.SyncAll(d.ctx)

	d.mu.Lock()
	d.passesTotal++
	d.quietUntil = time.Now().Add(d.config.Debounce)
	d.changedAt = time.Time{}
	d.mu.Unlock()

	switch {
	case errors.Is(err, sync.ErrSyncInProgress):
		return
	case errors.Is(err, sync.ErrOffline):
		d.config.Logger.Printf("Pass (%s) skipped: offline", reason)
	case sync.IsUserActionRequired(err):
		d.config.Logger.Printf("Pass (%s) stopped: %v (sign in again)", reason, err)
	case err != nil:
		d.config.Logger.Printf("Pass (%s) failed: %v", reason, err)
	case res != nil && res.Candidates > 0:
		d.config.Logger.Printf("Pass (%s): %d synced, %d failed", reason, res.Synced, res.Failed)
	}
	d.refreshPending()
}

func (d *Daemon) refreshPending() int {
	n, err := d.store.CountPendingSyncContext(d.ctx)
	if err != nil {
		if d.ctx.Err() == nil {
			d.config.Logger.Printf("Error counting pending inspections: %v", err)
		}
		return 0
	}
	if d.config.OnPending != nil {
		d.config.OnPending(n)
	}
	return n
}

// watchFileEvents monitors writes to the database files.
func (d *Daemon) watchFileEvents() {
	defer d.wg.Done()

	base := filepath.Base(d.store.Path())
	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}

			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}

			// Readers touch -shm too; only the database and its WAL
			// carry writes.
			if name := filepath.Base(event.Name); name != base && name != base+"-wal" {
				continue
			}

			d.queueChange()

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

// queueChange records a database write unless it falls in the quiet window
// after a pass or a pass is running.
func (d *Daemon) queueChange() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	if now.Before(d.quietUntil) || d.syncer.InFlight() {
		return
	}
	d.changedAt = now
}

// processChanges fires a pass once queued changes have settled.
func (d *Daemon) processChanges() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.Debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			d.mu.Lock()
			settled := !d.changedAt.IsZero() && time.Since(d.changedAt) >= d.config.Debounce
			if settled {
				d.changedAt = time.Time{}
			}
			d.mu.Unlock()

			if settled {
				if d.refreshPending() > 0 {
					d.trigger(ReasonDBChange)
				}
			}
		}
	}
}

// probeConnectivity fires a pass on every offline to online transition.
func (d *Daemon) probeConnectivity() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			online := d.online.Online(d.ctx)
			d.mu.Lock()
			cameOnline := online && !d.wasOnline
			d.wasOnline = online
			d.mu.Unlock()

			if cameOnline {
				d.config.Logger.Println("Connectivity restored")
				d.trigger(ReasonOnline)
			}
		}
	}
}

// periodic fires a pass every Interval.
func (d *Daemon) periodic() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			d.trigger(ReasonInterval)
		}
	}
}
