// Package statestore persists per-project state as one directory per project
// with one JSON file per section. Section mutations always run under the
// section's own lease, so a writer in one section never blocks unrelated
// sections, and no process ever trusts a cached read beyond the lock it was
// taken under.
package statestore

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"git.home.luguber.info/inful/agentcoord/internal/errors"
	"git.home.luguber.info/inful/agentcoord/internal/fsstore"
	"git.home.luguber.info/inful/agentcoord/internal/lifecycle"
	"git.home.luguber.info/inful/agentcoord/internal/lock"
)

const (
	phaseFile    = "lifecycle.json"
	sectionsDir  = "sections"
	checkpointsD = "checkpoints"
	historyFile  = "history.jsonl"
	auditFile    = "audit.db"
)

// Document is one named typed state section scoped to a project.
type Document struct {
	Payload        map[string]any `json:"payload"`
	SchemaVersion  int            `json:"schema_version"`
	LastModifiedAt time.Time      `json:"last_modified_at"`
	Revision       int64          `json:"revision"`
}

// Phase is the persisted lifecycle position of a project.
type Phase struct {
	State     lifecycle.State `json:"state"`
	UpdatedAt time.Time       `json:"updated_at"`
	Revision  int64           `json:"revision"`
}

// Store reads and writes project state under a root directory.
type Store struct {
	root     string
	locks    *lock.Manager
	lockOpts lock.Options
}

// Option configures a Store.
type Option func(*Store)

// WithLockOptions overrides the TTL/backoff used for section leases.
func WithLockOptions(opts lock.Options) Option {
	return func(s *Store) { s.lockOpts = opts }
}

// New creates a store rooted at dir, taking leases through locks.
func New(dir string, locks *lock.Manager, opts ...Option) *Store {
	s := &Store{root: dir, locks: locks, lockOpts: lock.DefaultOptions()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ProjectDir returns the directory holding all state for projectID.
func (s *Store) ProjectDir(projectID string) string {
	return filepath.Join(s.root, projectID)
}

// PhasePath returns the lifecycle phase file, which doubles as the resource
// path for the project-wide transition lock.
func (s *Store) PhasePath(projectID string) string {
	return filepath.Join(s.ProjectDir(projectID), phaseFile)
}

// SectionPath returns the file backing one section, which doubles as the
// resource path for that section's lock.
func (s *Store) SectionPath(projectID, section string) string {
	return filepath.Join(s.ProjectDir(projectID), sectionsDir, section+".json")
}

// HistoryPath returns the append-only transition log for a project.
func (s *Store) HistoryPath(projectID string) string {
	return filepath.Join(s.ProjectDir(projectID), historyFile)
}

// CheckpointDir returns the directory holding checkpoint snapshots.
func (s *Store) CheckpointDir(projectID string) string {
	return filepath.Join(s.ProjectDir(projectID), checkpointsD)
}

// AuditPath returns the SQLite audit trail database for a project.
func (s *Store) AuditPath(projectID string) string {
	return filepath.Join(s.ProjectDir(projectID), auditFile)
}

// CreateProject initializes the project directory with its initial lifecycle
// phase. Creating an existing project fails.
func (s *Store) CreateProject(ctx context.Context, projectID string, initial lifecycle.State) error {
	dir := s.ProjectDir(projectID)
	if ok, err := fsstore.Exists(s.PhasePath(projectID)); err != nil {
		return err
	} else if ok {
		return errors.New(errors.CategoryState, errors.SeverityError, "project already exists").
			WithContext("project_id", projectID)
	}
	for _, d := range []string{dir, filepath.Join(dir, sectionsDir), s.CheckpointDir(projectID)} {
		if err := os.MkdirAll(d, 0750); err != nil {
			return errors.FileWriteError(d, fmt.Errorf("create project directory: %w", err))
		}
	}
	phase := Phase{State: initial, UpdatedAt: time.Now(), Revision: 1}
	return s.WritePhase(projectID, phase)
}

// DeleteProject removes the whole project directory. Removal spans many files
// and is not crash-atomic; callers must treat deletion as idempotent and
// retry partial failures.
func (s *Store) DeleteProject(ctx context.Context, projectID string) error {
	return s.locks.WithLock(ctx, s.PhasePath(projectID), s.lockOpts, func(context.Context) error {
		if err := os.RemoveAll(s.ProjectDir(projectID)); err != nil {
			return errors.FileWriteError(s.ProjectDir(projectID), fmt.Errorf("delete project: %w", err))
		}
		return nil
	})
}

// ProjectExists reports whether projectID has been created.
func (s *Store) ProjectExists(projectID string) (bool, error) {
	return fsstore.Exists(s.PhasePath(projectID))
}

// ListProjects returns every project ID under the root in directory order.
func (s *Store) ListProjects() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.FileReadError(s.root, err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

// ReadPhase returns the current lifecycle phase. This is a plain read; a
// caller about to act on it must re-read under the project lock first.
func (s *Store) ReadPhase(projectID string) (*Phase, error) {
	data, err := fsstore.Read(s.PhasePath(projectID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ProjectNotFound(projectID)
		}
		return nil, err
	}
	var p Phase
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, errors.StateCorrupt(projectID, phaseFile, err)
	}
	return &p, nil
}

// WritePhase persists the lifecycle phase. The caller must hold the project
// lock (the phase path lease).
func (s *Store) WritePhase(projectID string, phase Phase) error {
	data, err := json.MarshalIndent(phase, "", "  ")
	if err != nil {
		return errors.InternalError("marshal phase", err)
	}
	return fsstore.WriteAtomic(s.PhasePath(projectID), data, 0640)
}

// GetSection returns one section document, or a state-category not-found
// error when the section has never been written.
func (s *Store) GetSection(ctx context.Context, projectID, section string) (*Document, error) {
	data, err := fsstore.Read(s.SectionPath(projectID, section))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.SectionNotFound(projectID, section)
		}
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.StateCorrupt(projectID, section, err)
	}
	return &doc, nil
}

// SetSection fully replaces a section's payload under the section lease and
// bumps the revision.
func (s *Store) SetSection(ctx context.Context, projectID, section string, payload map[string]any, schemaVersion int) (*Document, error) {
	var out *Document
	err := s.locks.WithLock(ctx, s.SectionPath(projectID, section), s.lockOpts, func(ctx context.Context) error {
		current, err := s.GetSection(ctx, projectID, section)
		revision := int64(1)
		if err == nil {
			revision = current.Revision + 1
		} else if !stderrors.Is(err, os.ErrNotExist) {
			return err
		}
		doc := &Document{
			Payload:        payload,
			SchemaVersion:  schemaVersion,
			LastModifiedAt: time.Now(),
			Revision:       revision,
		}
		if err := s.writeSection(projectID, section, doc); err != nil {
			return err
		}
		out = doc
		return nil
	})
	return out, err
}

// MergeSection applies a shallow top-level merge onto the current payload
// under the section lease. Nested maps and arrays are replaced wholesale,
// never merged recursively.
func (s *Store) MergeSection(ctx context.Context, projectID, section string, patch map[string]any) (*Document, error) {
	var out *Document
	err := s.locks.WithLock(ctx, s.SectionPath(projectID, section), s.lockOpts, func(ctx context.Context) error {
		current, err := s.GetSection(ctx, projectID, section)
		if err != nil {
			return err
		}
		merged := make(map[string]any, len(current.Payload)+len(patch))
		for k, v := range current.Payload {
			merged[k] = v
		}
		for k, v := range patch {
			merged[k] = v
		}
		doc := &Document{
			Payload:        merged,
			SchemaVersion:  current.SchemaVersion,
			LastModifiedAt: time.Now(),
			Revision:       current.Revision + 1,
		}
		if err := s.writeSection(projectID, section, doc); err != nil {
			return err
		}
		out = doc
		return nil
	})
	return out, err
}

// ListSections returns the section names present for a project.
func (s *Store) ListSections(projectID string) ([]string, error) {
	dir := filepath.Join(s.ProjectDir(projectID), sectionsDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.FileReadError(dir, err)
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if filepath.Ext(name) == ".json" {
			out = append(out, name[:len(name)-len(".json")])
		}
	}
	return out, nil
}

// writeSection persists a section document. The caller must hold the section
// lease.
func (s *Store) writeSection(projectID, section string, doc *Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.InternalError("marshal section", err)
	}
	return fsstore.WriteAtomic(s.SectionPath(projectID, section), data, 0640)
}

// WriteSectionRaw replaces a section document verbatim, used by checkpoint
// restore. The caller must hold the section lease.
func (s *Store) WriteSectionRaw(projectID, section string, doc *Document) error {
	return s.writeSection(projectID, section, doc)
}

// RemoveSection deletes a section file, used by checkpoint restore to drop
// sections that did not exist in the snapshot. Removing an absent section is
// a no-op. The caller must hold the section lease.
func (s *Store) RemoveSection(projectID, section string) error {
	if err := os.Remove(s.SectionPath(projectID, section)); err != nil && !os.IsNotExist(err) {
		return errors.FileWriteError(s.SectionPath(projectID, section), fmt.Errorf("remove section: %w", err))
	}
	return nil
}

// Locks exposes the lock manager so facade layers reuse the same lease
// protocol instead of inventing a second path.
func (s *Store) Locks() *lock.Manager { return s.locks }

// LockOptions returns the store's lease options.
func (s *Store) LockOptions() lock.Options { return s.lockOpts }
