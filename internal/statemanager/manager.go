// Package statemanager is the facade agents talk to. It composes the rule
// table, the store, the history log, the audit trail, and the watcher
// registry, and owns the project lock discipline: every lifecycle mutation
// runs under the project's phase lease, and the persisted phase is always
// re-read inside the lease before it is acted on.
package statemanager

import (
	"context"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/agentcoord/internal/audit"
	"git.home.luguber.info/inful/agentcoord/internal/errors"
	"git.home.luguber.info/inful/agentcoord/internal/history"
	"git.home.luguber.info/inful/agentcoord/internal/lifecycle"
	"git.home.luguber.info/inful/agentcoord/internal/metrics"
	"git.home.luguber.info/inful/agentcoord/internal/observability"
	"git.home.luguber.info/inful/agentcoord/internal/statestore"
	"git.home.luguber.info/inful/agentcoord/internal/watch"
)

// Manager coordinates lifecycle transitions, section mutations, checkpoints,
// and the audit trail for all projects under one store root.
type Manager struct {
	store       *statestore.Store
	rules       *lifecycle.Rules
	log         *history.Log
	checkpoints *history.Checkpointer
	registry    *watch.Registry
	recorder    metrics.Recorder
}

// Option configures a Manager.
type Option func(*Manager)

// WithRecorder injects a metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(m *Manager) { m.recorder = r }
}

// WithRegistry shares an externally owned watcher registry, used when a file
// watcher or NATS publisher is wired to the same registry.
func WithRegistry(reg *watch.Registry) Option {
	return func(m *Manager) { m.registry = reg }
}

// New creates a manager over store using the given rule table.
func New(store *statestore.Store, rules *lifecycle.Rules, opts ...Option) *Manager {
	m := &Manager{
		store:       store,
		rules:       rules,
		log:         history.NewLog(store),
		checkpoints: history.NewCheckpointer(store),
		registry:    watch.NewRegistry(),
		recorder:    metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Rules exposes the active rule table for read-only queries.
func (m *Manager) Rules() *lifecycle.Rules { return m.rules }

// Store exposes the underlying store for path queries and operator tooling.
func (m *Manager) Store() *statestore.Store { return m.store }

// CreateProject initializes a project in the pipeline's initial state and
// records the creation as the first history entry.
func (m *Manager) CreateProject(ctx context.Context, projectID string) error {
	ctx = observability.WithProjectID(ctx, projectID)
	initial := m.rules.Initial()
	if err := m.store.CreateProject(ctx, projectID, initial); err != nil {
		return err
	}
	if err := m.log.Append(projectID, history.Entry{
		Revision:  1,
		Timestamp: time.Now(),
		Previous:  "",
		New:       initial,
		Actor:     "system",
		Kind:      history.KindInit,
	}); err != nil {
		return err
	}
	observability.InfoContext(ctx, "project created", slog.String("state", string(initial)))
	return nil
}

// DeleteProject removes a project and all its state.
func (m *Manager) DeleteProject(ctx context.Context, projectID string) error {
	return m.store.DeleteProject(ctx, projectID)
}

// GetState returns the persisted lifecycle phase. Plain read; mutations
// re-read under the project lock.
func (m *Manager) GetState(ctx context.Context, projectID string) (*statestore.Phase, error) {
	return m.store.ReadPhase(projectID)
}

// ValidTransitions returns the targets legally reachable from the project's
// current state.
func (m *Manager) ValidTransitions(ctx context.Context, projectID string) ([]lifecycle.State, error) {
	phase, err := m.store.ReadPhase(projectID)
	if err != nil {
		return nil, err
	}
	return m.rules.ValidTransitions(phase.State), nil
}

// TransitionState moves the project to target if the rule table allows it,
// whether as a normal step, a validated recovery, or a skip. A denied pair
// fails with *lifecycle.InvalidTransitionError naming the valid targets; a
// skip over a required stage fails with *lifecycle.SkipBlockedError. Recovery
// transitions snapshot the project first so the abandoned work is recoverable.
// A *WatcherError return accompanies a valid phase; the transition committed.
func (m *Manager) TransitionState(ctx context.Context, projectID string, target lifecycle.State, actor, reason string) (*statestore.Phase, error) {
	return m.transition(ctx, projectID, target, actor, reason, nil)
}

// RecoverTo moves the project backward to target, failing unless the rule
// table classifies the pair as a recovery.
func (m *Manager) RecoverTo(ctx context.Context, projectID string, target lifecycle.State, actor, reason string) (*statestore.Phase, error) {
	return m.transition(ctx, projectID, target, actor, reason, expectKind(lifecycle.TransitionRecovery))
}

// SkipTo moves the project forward past optional stages, failing unless the
// rule table classifies the pair as a skip and no required stage sits between.
func (m *Manager) SkipTo(ctx context.Context, projectID string, target lifecycle.State, actor, reason string) (*statestore.Phase, error) {
	return m.transition(ctx, projectID, target, actor, reason, expectKind(lifecycle.TransitionSkip))
}

// expectKind rejects classifications other than want. Used by the RecoverTo
// and SkipTo entry points, which promise a specific transition flavor.
func expectKind(want lifecycle.TransitionKind) func(lifecycle.TransitionKind) bool {
	return func(got lifecycle.TransitionKind) bool { return got == want }
}

func (m *Manager) transition(ctx context.Context, projectID string, target lifecycle.State, actor, reason string, accept func(lifecycle.TransitionKind) bool) (*statestore.Phase, error) {
	ctx = observability.WithProjectID(ctx, projectID)
	var result *statestore.Phase
	var mut watch.Mutation

	err := m.withProjectLock(ctx, projectID, func(ctx context.Context) error {
		phase, err := m.store.ReadPhase(projectID)
		if err != nil {
			return err
		}

		kind := m.rules.Kind(phase.State, target)
		if kind == lifecycle.TransitionDenied || (accept != nil && !accept(kind)) {
			m.recorder.IncTransitionDenied(string(phase.State), string(target))
			return &lifecycle.InvalidTransitionError{
				From:  phase.State,
				To:    target,
				Valid: m.rules.ValidTransitions(phase.State),
			}
		}
		if kind == lifecycle.TransitionSkip {
			if required := m.rules.RequiredBetween(phase.State, target); len(required) > 0 {
				m.recorder.IncTransitionDenied(string(phase.State), string(target))
				return &lifecycle.SkipBlockedError{From: phase.State, To: target, RequiredSkipped: required}
			}
		}
		if kind == lifecycle.TransitionRecovery {
			if _, err := m.checkpoints.Create(projectID, "pre_recovery", reason); err != nil {
				return err
			}
			m.recorder.IncCheckpoint("pre_recovery")
		}

		next, err := m.commitTransition(projectID, phase, target, actor, reason, historyKind(kind))
		if err != nil {
			return err
		}
		m.recorder.IncTransition(string(phase.State), string(target))
		observability.InfoContext(ctx, "state transition",
			slog.String("from", string(phase.State)),
			slog.String("to", string(target)),
			slog.String("kind", string(kind)),
			slog.String("actor", actor))

		result = next
		mut = watch.Mutation{
			ProjectID: projectID,
			Kind:      "transition",
			From:      phase.State,
			To:        target,
			Revision:  next.Revision,
			Timestamp: next.UpdatedAt,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, m.notify(ctx, mut)
}

// AdminOverride forces the project into target regardless of the rule table,
// from any state including terminal ones. The mandatory reason goes to both
// the history log and the SQLite audit trail; an override without a reason is
// rejected before anything is touched.
func (m *Manager) AdminOverride(ctx context.Context, projectID string, target lifecycle.State, actor, reason string) (*statestore.Phase, error) {
	ctx = observability.WithProjectID(ctx, projectID)
	if reason == "" {
		return nil, errors.ValidationFailed("reason", "admin override requires a reason")
	}
	if !m.rules.Declared(target) {
		return nil, errors.ValidationFailed("target", "unknown state "+string(target))
	}

	var result *statestore.Phase
	var mut watch.Mutation

	err := m.withProjectLock(ctx, projectID, func(ctx context.Context) error {
		phase, err := m.store.ReadPhase(projectID)
		if err != nil {
			return err
		}

		trail, err := audit.Open(m.store.AuditPath(projectID))
		if err != nil {
			return err
		}
		defer trail.Close()
		if _, err := trail.Append(ctx, audit.Entry{
			ProjectID: projectID,
			Kind:      audit.KindAdminOverride,
			FromState: phase.State,
			ToState:   target,
			Actor:     actor,
			Reason:    reason,
		}); err != nil {
			return err
		}

		next, err := m.commitTransition(projectID, phase, target, actor, reason, history.KindOverride)
		if err != nil {
			return err
		}
		m.recorder.IncAdminOverride()
		observability.WarnContext(ctx, "admin override applied",
			slog.String("from", string(phase.State)),
			slog.String("to", string(target)),
			slog.String("actor", actor),
			slog.String("reason", reason))

		result = next
		mut = watch.Mutation{
			ProjectID: projectID,
			Kind:      "transition",
			From:      phase.State,
			To:        target,
			Revision:  next.Revision,
			Timestamp: next.UpdatedAt,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, m.notify(ctx, mut)
}

// commitTransition appends the history entry and persists the new phase. The
// caller holds the project lock. History is written first so a crash between
// the two writes leaves the log ahead of the phase, which replay verification
// surfaces, rather than a silent unrecorded transition.
func (m *Manager) commitTransition(projectID string, phase *statestore.Phase, target lifecycle.State, actor, reason string, kind history.EntryKind) (*statestore.Phase, error) {
	rev, err := m.log.NextRevision(projectID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	if err := m.log.Append(projectID, history.Entry{
		Revision:  rev,
		Timestamp: now,
		Previous:  phase.State,
		New:       target,
		Actor:     actor,
		Reason:    reason,
		Kind:      kind,
	}); err != nil {
		return nil, err
	}
	next := statestore.Phase{State: target, UpdatedAt: now, Revision: rev}
	if err := m.store.WritePhase(projectID, next); err != nil {
		return nil, err
	}
	return &next, nil
}

// GetSection returns one section document.
func (m *Manager) GetSection(ctx context.Context, projectID, section string) (*statestore.Document, error) {
	return m.store.GetSection(ctx, projectID, section)
}

// SetSection fully replaces a section's payload and notifies watchers. A
// *WatcherError return accompanies a valid document; the write committed.
func (m *Manager) SetSection(ctx context.Context, projectID, section string, payload map[string]any, schemaVersion int) (*statestore.Document, error) {
	ctx = observability.WithSection(observability.WithProjectID(ctx, projectID), section)
	doc, err := m.store.SetSection(ctx, projectID, section, payload, schemaVersion)
	if err != nil {
		return nil, err
	}
	return doc, m.notify(ctx, watch.Mutation{
		ProjectID: projectID,
		Section:   section,
		Kind:      "section",
		Revision:  doc.Revision,
		Timestamp: doc.LastModifiedAt,
	})
}

// MergeSection shallow-merges a patch into a section and notifies watchers. A
// *WatcherError return accompanies a valid document; the write committed.
func (m *Manager) MergeSection(ctx context.Context, projectID, section string, patch map[string]any) (*statestore.Document, error) {
	ctx = observability.WithSection(observability.WithProjectID(ctx, projectID), section)
	doc, err := m.store.MergeSection(ctx, projectID, section, patch)
	if err != nil {
		return nil, err
	}
	return doc, m.notify(ctx, watch.Mutation{
		ProjectID: projectID,
		Section:   section,
		Kind:      "section",
		Revision:  doc.Revision,
		Timestamp: doc.LastModifiedAt,
	})
}

// CreateCheckpoint snapshots the project under the project lock.
func (m *Manager) CreateCheckpoint(ctx context.Context, projectID, reason string) (*history.Checkpoint, error) {
	var cp *history.Checkpoint
	err := m.withProjectLock(ctx, projectID, func(context.Context) error {
		var err error
		cp, err = m.checkpoints.Create(projectID, "manual", reason)
		return err
	})
	if err != nil {
		return nil, err
	}
	m.recorder.IncCheckpoint("manual")
	return cp, nil
}

// ListCheckpoints returns the project's checkpoints, newest first.
func (m *Manager) ListCheckpoints(ctx context.Context, projectID string) ([]history.Checkpoint, error) {
	return m.checkpoints.List(projectID)
}

// RestoreCheckpoint rolls phase and sections back to the snapshot, appends a
// restore entry to the history (the log itself is never rewritten), and
// notifies watchers.
func (m *Manager) RestoreCheckpoint(ctx context.Context, projectID, checkpointID, actor, reason string) (*history.Checkpoint, error) {
	ctx = observability.WithProjectID(ctx, projectID)
	var cp *history.Checkpoint
	var mut watch.Mutation

	err := m.withProjectLock(ctx, projectID, func(ctx context.Context) error {
		phase, err := m.store.ReadPhase(projectID)
		if err != nil {
			return err
		}
		restored, err := m.checkpoints.Restore(projectID, checkpointID)
		if err != nil {
			return err
		}
		rev, err := m.log.NextRevision(projectID)
		if err != nil {
			return err
		}
		now := time.Now()
		if err := m.log.Append(projectID, history.Entry{
			Revision:  rev,
			Timestamp: now,
			Previous:  phase.State,
			New:       restored.Phase.State,
			Actor:     actor,
			Reason:    reason,
			Kind:      history.KindRestore,
		}); err != nil {
			return err
		}
		observability.InfoContext(ctx, "checkpoint restored",
			slog.String("checkpoint.id", checkpointID),
			slog.String("from", string(phase.State)),
			slog.String("to", string(restored.Phase.State)))

		cp = restored
		mut = watch.Mutation{
			ProjectID: projectID,
			Kind:      "restore",
			From:      phase.State,
			To:        restored.Phase.State,
			Revision:  rev,
			Timestamp: now,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cp, m.notify(ctx, mut)
}

// History returns the project's full transition log.
func (m *Manager) History(ctx context.Context, projectID string) ([]history.Entry, error) {
	return m.log.Entries(projectID)
}

// VerifyHistory replays the log from creation and checks it reproduces the
// persisted phase. A mismatch means the phase file and the log diverged,
// typically a crash between the history append and the phase write.
func (m *Manager) VerifyHistory(ctx context.Context, projectID string) error {
	replayed, err := m.log.Replay(projectID)
	if err != nil {
		return err
	}
	phase, err := m.store.ReadPhase(projectID)
	if err != nil {
		return err
	}
	if replayed != phase.State {
		return errors.StateCorrupt(projectID, "history",
			&divergenceError{replayed: replayed, live: phase.State})
	}
	return nil
}

type divergenceError struct {
	replayed, live lifecycle.State
}

func (e *divergenceError) Error() string {
	return "replay reaches " + string(e.replayed) + " but live phase is " + string(e.live)
}

// ForceUnlock removes a section's lease regardless of holder and records the
// action in the audit trail. Operator tooling only.
func (m *Manager) ForceUnlock(ctx context.Context, projectID, section, actor, reason string) error {
	if reason == "" {
		return errors.ValidationFailed("reason", "forced unlock requires a reason")
	}
	trail, err := audit.Open(m.store.AuditPath(projectID))
	if err != nil {
		return err
	}
	defer trail.Close()
	if _, err := trail.Append(ctx, audit.Entry{
		ProjectID: projectID,
		Kind:      audit.KindForcedUnlock,
		Actor:     actor,
		Reason:    reason,
	}); err != nil {
		return err
	}
	return m.store.Locks().ForceRelease(m.store.SectionPath(projectID, section))
}

// AuditEntries returns the project's audit trail in append order.
func (m *Manager) AuditEntries(ctx context.Context, projectID string) ([]audit.Entry, error) {
	trail, err := audit.Open(m.store.AuditPath(projectID))
	if err != nil {
		return nil, err
	}
	defer trail.Close()
	return trail.ByProject(ctx, projectID)
}

// Watch registers a handler for every mutation of projectID.
func (m *Manager) Watch(projectID string, h watch.Handler) func() {
	return m.registry.Watch(projectID, h)
}

// WatchSection registers a handler for one section of projectID.
func (m *Manager) WatchSection(projectID, section string, h watch.Handler) func() {
	return m.registry.WatchSection(projectID, section, h)
}

func (m *Manager) withProjectLock(ctx context.Context, projectID string, fn func(ctx context.Context) error) error {
	return m.store.Locks().WithLock(ctx, m.store.PhasePath(projectID), m.store.LockOptions(), fn)
}

// notify delivers a mutation after commit. Watcher failures never unwind the
// mutation; they are logged and surfaced to the caller as a *WatcherError
// accompanying the already-valid result.
func (m *Manager) notify(ctx context.Context, mut watch.Mutation) error {
	if mut.ProjectID == "" {
		return nil
	}
	errs := m.registry.Notify(mut)
	if len(errs) == 0 {
		return nil
	}
	for _, err := range errs {
		observability.WarnContext(ctx, "watcher failed", slog.String("error", err.Error()))
	}
	return &WatcherError{ProjectID: mut.ProjectID, Errs: errs}
}

func historyKind(kind lifecycle.TransitionKind) history.EntryKind {
	switch kind {
	case lifecycle.TransitionRecovery:
		return history.KindRecovery
	case lifecycle.TransitionSkip:
		return history.KindSkip
	default:
		return history.KindNormal
	}
}
