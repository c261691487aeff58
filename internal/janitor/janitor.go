// Package janitor periodically sweeps expired lock files and abandoned lease
// temp files out of a store root. Correctness never depends on it: an expired
// lease is stolen lazily on the next acquire regardless. The sweep is hygiene,
// keeping crashed holders' litter from accumulating.
package janitor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// DefaultInterval is how often the sweep runs unless overridden.
const DefaultInterval = 5 * time.Minute

// staleTempAge is how old a lease temp file must be before it counts as
// abandoned rather than mid-acquire.
const staleTempAge = 10 * time.Minute

// LeaseSweeper removes the lock file at path if its lease has expired,
// reporting whether it did. Satisfied by the lock manager, which displaces
// the file atomically before removal so a concurrent steal cannot lose a
// freshly published lease; an interface keeps the janitor decoupled from
// lease parsing.
type LeaseSweeper interface {
	SweepExpired(path string, now time.Time) (bool, error)
}

// Janitor owns the periodic sweep job.
type Janitor struct {
	root      string
	sweeper   LeaseSweeper
	scheduler gocron.Scheduler
	interval  time.Duration
}

// Option configures a Janitor.
type Option func(*Janitor)

// WithInterval overrides the sweep interval.
func WithInterval(d time.Duration) Option {
	return func(j *Janitor) { j.interval = d }
}

// New creates a janitor sweeping under root.
func New(root string, sweeper LeaseSweeper, opts ...Option) (*Janitor, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create janitor scheduler: %w", err)
	}
	j := &Janitor{root: root, sweeper: sweeper, scheduler: s, interval: DefaultInterval}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

// Start schedules the periodic sweep and begins running it.
func (j *Janitor) Start(ctx context.Context) error {
	_, err := j.scheduler.NewJob(
		gocron.DurationJob(j.interval),
		gocron.NewTask(j.sweep),
		gocron.WithName("lock-sweep"),
	)
	if err != nil {
		return fmt.Errorf("failed to create sweep job: %w", err)
	}
	slog.Info("Starting janitor", "root", j.root, "interval", j.interval)
	j.scheduler.Start()
	return nil
}

// Stop gracefully shuts the janitor down.
func (j *Janitor) Stop() error {
	slog.Info("Stopping janitor")
	return j.scheduler.Shutdown()
}

// sweep is called by gocron on each tick.
func (j *Janitor) sweep() {
	removed, err := j.Sweep(time.Now())
	if err != nil {
		slog.Warn("Janitor sweep failed", "error", err)
		return
	}
	if removed > 0 {
		slog.Info("Janitor sweep removed stale files", "count", removed)
	}
}

// Sweep walks the root once, removing expired lock files and stale lease temp
// files. Returns how many files it removed. Exported so operator tooling can
// run a one-shot sweep without the scheduler.
func (j *Janitor) Sweep(now time.Time) (int, error) {
	removed := 0
	err := filepath.WalkDir(j.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			// A project deleted mid-walk is not a sweep failure.
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		switch {
		case strings.HasSuffix(name, ".lock"):
			swept, err := j.sweeper.SweepExpired(path, now)
			if err != nil || !swept {
				return nil
			}
			removed++
			slog.Debug("Removed expired lock file", "path", path)
		case strings.Contains(name, ".lease-"), strings.Contains(name, ".stale-"):
			info, err := d.Info()
			if err != nil {
				return nil
			}
			if now.Sub(info.ModTime()) > staleTempAge {
				if rmErr := os.Remove(path); rmErr == nil {
					removed++
				}
			}
		}
		return nil
	})
	return removed, err
}
