// Package lock implements lease-based cross-process file locking. Because
// worker processes share no memory, mutual exclusion rests entirely on the
// filesystem's atomic link/rename guarantees: a lock is a file whose creation
// either succeeds exclusively or fails, and a dead holder's lease is
// reclaimed only after its TTL passes.
package lock

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/agentcoord/internal/errors"
	"git.home.luguber.info/inful/agentcoord/internal/fsstore"
	"git.home.luguber.info/inful/agentcoord/internal/metrics"
	"git.home.luguber.info/inful/agentcoord/internal/observability"
	"git.home.luguber.info/inful/agentcoord/internal/retry"
)

const (
	lockSuffix    = ".lock"
	requestSuffix = ".release-request"
	staleSuffix   = ".stale-"

	// DefaultTTL must exceed expected critical-section duration by a safety
	// margin; there is no liveness probe, so a crashed holder blocks the
	// resource for the full TTL.
	DefaultTTL = 30 * time.Second
)

// Options configures a single acquisition attempt sequence.
type Options struct {
	TTL    time.Duration
	Policy retry.Policy
}

// DefaultOptions returns the standard TTL and backoff policy.
func DefaultOptions() Options {
	return Options{TTL: DefaultTTL, Policy: retry.DefaultPolicy()}
}

// Manager acquires and releases leases on behalf of one holder identity.
// Separate processes (or tests emulating them) each construct their own
// Manager; there is no lock-free fast path for same-process callers.
type Manager struct {
	holderID string
	recorder metrics.Recorder
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithRecorder injects a metrics recorder.
func WithRecorder(r metrics.Recorder) ManagerOption {
	return func(m *Manager) { m.recorder = r }
}

// WithHolderID overrides the generated holder identity.
func WithHolderID(id string) ManagerOption {
	return func(m *Manager) { m.holderID = id }
}

// NewManager creates a lock manager with a unique holder identity.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		holderID: uuid.NewString(),
		recorder: metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// HolderID returns the identity under which this manager acquires leases.
func (m *Manager) HolderID() string { return m.holderID }

func lockPath(resource string) string    { return resource + lockSuffix }
func requestPath(resource string) string { return resource + requestSuffix }

// Acquire obtains a lease on resource. If the resource holds an unexpired
// foreign lease, it backs off and retries per the policy; an expired lease is
// stolen through the same create-or-fail primitive (first writer wins, losing
// the race is a retry signal). Exhausting the retry budget returns
// *ContentionError.
func (m *Manager) Acquire(ctx context.Context, resource string, opts Options) (*Lease, error) {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if err := opts.Policy.Validate(); err != nil {
		opts.Policy = retry.DefaultPolicy()
	}

	start := time.Now()
	lastHolder := ""
	attempts := 0

	for attempt := 0; attempt <= opts.Policy.MaxRetries; attempt++ {
		attempts++

		lease, err := m.tryAcquire(resource, opts.TTL)
		if err == nil {
			m.recorder.ObserveLockWait(resource, time.Since(start))
			m.recorder.IncLockOutcome(metrics.LockAcquired)
			observability.DebugContext(ctx, "lock acquired",
				slog.String("resource", resource), slog.String("holder.id", m.holderID))
			return lease, nil
		}
		if !fsstore.IsExist(err) {
			return nil, err
		}

		// Somebody holds the path. Expired leases are displaced and re-raced;
		// live ones mean backoff.
		current, readErr := m.currentLease(resource)
		if readErr == nil && current != nil {
			lastHolder = current.HolderID
			if current.Expired(time.Now()) {
				swept, err := m.SweepExpired(lockPath(resource), time.Now())
				if err != nil {
					return nil, err
				}
				if swept {
					m.recorder.IncLockOutcome(metrics.LockStolen)
					observability.InfoContext(ctx, "stealing expired lease",
						slog.String("resource", resource), slog.String("expired.holder", current.HolderID))
					continue
				}
				// Lost the displacement race; the next attempt re-reads.
			}
		} else if readErr != nil && os.IsNotExist(readErr) {
			// Holder released between our create and read; re-race.
			continue
		}

		if attempt >= opts.Policy.MaxRetries {
			break
		}

		delay := opts.Policy.Delay(attempt + 1)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	m.recorder.IncLockOutcome(metrics.LockContention)
	return nil, &ContentionError{
		Resource:   resource,
		Attempts:   attempts,
		LastHolder: lastHolder,
		Waited:     time.Since(start),
	}
}

// tryAcquire performs one atomic create-or-fail publish of a fresh lease.
func (m *Manager) tryAcquire(resource string, ttl time.Duration) (*Lease, error) {
	now := time.Now()
	lease := &Lease{
		ResourcePath: resource,
		HolderID:     m.holderID,
		AcquiredAt:   now,
		ExpiresAt:    now.Add(ttl),
	}
	data, err := lease.marshal()
	if err != nil {
		return nil, errors.InternalError("marshal lease", err)
	}

	dir := filepath.Dir(resource)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, errors.FileWriteError(resource, fmt.Errorf("create lock directory: %w", err))
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(resource)+".lease-*")
	if err != nil {
		return nil, errors.FileWriteError(resource, fmt.Errorf("create lease temp: %w", err))
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return nil, errors.FileWriteError(resource, fmt.Errorf("write lease temp: %w", err))
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return nil, errors.FileWriteError(resource, fmt.Errorf("close lease temp: %w", err))
	}

	if err := fsstore.PublishExclusive(tmpPath, lockPath(resource)); err != nil {
		return nil, err
	}
	return lease, nil
}

// currentLease reads the lease currently stored for resource, if any.
func (m *Manager) currentLease(resource string) (*Lease, error) {
	data, err := fsstore.Read(lockPath(resource))
	if err != nil {
		return nil, err
	}
	lease, err := parseLease(data)
	if err != nil {
		// A lock file is written atomically, so an unparseable one is a
		// foreign artifact; treat it as an expired lease so it gets swept.
		return &Lease{ResourcePath: resource, HolderID: "unknown"}, nil
	}
	return lease, nil
}

// SweepExpired removes the lock file at path if it holds an expired lease,
// reporting whether it did. Removal goes through a rename to a unique stale
// name rather than a blind delete: the rename is atomic, so of several
// concurrent sweepers exactly one displaces the file and the rest see it
// gone. The displaced file is then re-validated; if it turns out to hold a
// live lease (a faster stealer already re-published the path between our
// read and the rename) it is moved back untouched and the sweep reports
// false. An unparseable lock file counts as expired, matching currentLease.
// Shared by the Acquire steal path and the janitor.
func (m *Manager) SweepExpired(path string, now time.Time) (bool, error) {
	data, err := fsstore.Read(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if lease, err := parseLease(data); err == nil && !lease.Expired(now) {
		return false, nil
	}

	stale := path + staleSuffix + uuid.NewString()
	if err := os.Rename(path, stale); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.FileWriteError(path, fmt.Errorf("displace expired lock: %w", err))
	}
	if moved, err := fsstore.Read(stale); err == nil {
		if lease, err := parseLease(moved); err == nil && !lease.Expired(now) {
			_ = os.Rename(stale, path)
			return false, nil
		}
	}
	_ = os.Remove(stale)
	return true, nil
}

// Release removes the lock file if this manager's holder identity still owns
// it, along with any pending release-request marker. Releasing an absent lock
// is a no-op; releasing a lock stolen by someone else returns *NotHeldError
// and leaves the thief's lease intact.
func (m *Manager) Release(resource string) error {
	current, err := m.currentLease(resource)
	if err != nil {
		if os.IsNotExist(err) {
			_ = os.Remove(requestPath(resource))
			return nil
		}
		return err
	}
	if current.HolderID != m.holderID {
		return &NotHeldError{Resource: resource, HolderID: m.holderID, CurrentHolder: current.HolderID}
	}
	if err := os.Remove(lockPath(resource)); err != nil && !os.IsNotExist(err) {
		return errors.LockReleaseError(resource, err)
	}
	_ = os.Remove(requestPath(resource))
	return nil
}

// ForceRelease removes the lock file regardless of holder. Reserved for
// operator tooling; ordinary callers use Release.
func (m *Manager) ForceRelease(resource string) error {
	if err := os.Remove(lockPath(resource)); err != nil && !os.IsNotExist(err) {
		return errors.LockReleaseError(resource, err)
	}
	_ = os.Remove(requestPath(resource))
	return nil
}

// Holder returns the lease currently held on resource, or nil when the
// resource is unlocked. Distinct from contention: this is a plain read.
func (m *Manager) Holder(resource string) (*Lease, error) {
	lease, err := m.currentLease(resource)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return lease, nil
}

// RequestRelease flags a cooperative yield marker for the current holder
// instead of forcing a steal. The marker survives until the lock is released.
func (m *Manager) RequestRelease(resource string) error {
	req := ReleaseRequest{RequestedBy: m.holderID, RequestedAt: time.Now()}
	data, err := marshalRequest(req)
	if err != nil {
		return errors.InternalError("marshal release request", err)
	}
	return fsstore.WriteAtomic(requestPath(resource), data, 0640)
}

// IsReleaseRequested reports whether some waiter has asked the holder to
// yield. Holders poll this between discrete sub-steps of a long critical
// section, never inside a single atomic write.
func (m *Manager) IsReleaseRequested(resource string) (bool, error) {
	return fsstore.Exists(requestPath(resource))
}

// WithLock runs fn while holding a lease on resource and releases it on every
// exit path, including panics.
func (m *Manager) WithLock(ctx context.Context, resource string, opts Options, fn func(ctx context.Context) error) error {
	if _, err := m.Acquire(ctx, resource, opts); err != nil {
		return err
	}
	defer func() {
		if relErr := m.Release(resource); relErr != nil && !IsNotHeld(relErr) {
			observability.WarnContext(ctx, "lock release failed",
				slog.String("resource", resource), slog.String("error", relErr.Error()))
		}
	}()
	return fn(ctx)
}
