package history

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/agentcoord/internal/errors"
	"git.home.luguber.info/inful/agentcoord/internal/fsstore"
	"git.home.luguber.info/inful/agentcoord/internal/statestore"
)

// Checkpoint is a named, self-contained snapshot of a project's lifecycle
// phase and every section. Restoring one never requires replaying history.
type Checkpoint struct {
	ID        string                          `json:"id"`
	CreatedAt time.Time                       `json:"created_at"`
	Trigger   string                          `json:"trigger"`
	Reason    string                          `json:"reason,omitempty"`
	Phase     statestore.Phase                `json:"phase"`
	Sections  map[string]statestore.Document `json:"sections"`
}

// Checkpointer creates, lists, and restores checkpoints.
type Checkpointer struct {
	store *statestore.Store
}

// NewCheckpointer creates a checkpointer over the given store.
func NewCheckpointer(store *statestore.Store) *Checkpointer {
	return &Checkpointer{store: store}
}

func (c *Checkpointer) path(projectID, id string) string {
	return filepath.Join(c.store.CheckpointDir(projectID), id+".json")
}

// Create snapshots the current phase and all section contents. The caller
// must hold the project lock so the snapshot is internally consistent.
func (c *Checkpointer) Create(projectID, trigger, reason string) (*Checkpoint, error) {
	phase, err := c.store.ReadPhase(projectID)
	if err != nil {
		return nil, err
	}
	sections, err := c.store.ListSections(projectID)
	if err != nil {
		return nil, err
	}

	cp := &Checkpoint{
		ID:        uuid.NewString(),
		CreatedAt: time.Now(),
		Trigger:   trigger,
		Reason:    reason,
		Phase:     *phase,
		Sections:  make(map[string]statestore.Document, len(sections)),
	}
	for _, name := range sections {
		doc, err := c.store.GetSection(context.Background(), projectID, name)
		if err != nil {
			return nil, err
		}
		cp.Sections[name] = *doc
	}

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return nil, errors.InternalError("marshal checkpoint", err)
	}
	if err := fsstore.WriteAtomic(c.path(projectID, cp.ID), data, 0640); err != nil {
		return nil, err
	}
	return cp, nil
}

// Get loads one checkpoint by ID.
func (c *Checkpointer) Get(projectID, id string) (*Checkpoint, error) {
	data, err := fsstore.Read(c.path(projectID, id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(os.ErrNotExist, errors.CategoryState, errors.SeverityError, "checkpoint not found").
				WithContext("project_id", projectID).
				WithContext("checkpoint_id", id)
		}
		return nil, err
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, errors.StateCorrupt(projectID, "checkpoint "+id, err)
	}
	return &cp, nil
}

// List returns all checkpoints for a project, newest first.
func (c *Checkpointer) List(projectID string) ([]Checkpoint, error) {
	dir := c.store.CheckpointDir(projectID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.FileReadError(dir, err)
	}
	var out []Checkpoint
	for _, e := range entries {
		if filepath.Ext(e.Name()) != ".json" {
			continue
		}
		id := e.Name()[:len(e.Name())-len(".json")]
		cp, err := c.Get(projectID, id)
		if err != nil {
			return nil, err
		}
		out = append(out, *cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Restore overwrites current phase and section contents with the snapshot.
// Sections created after the snapshot are removed, so the restored project
// matches the checkpoint exactly. The caller must hold the project lock and
// is responsible for appending the restoration history entry; the snapshot
// files themselves are never touched.
func (c *Checkpointer) Restore(projectID, id string) (*Checkpoint, error) {
	cp, err := c.Get(projectID, id)
	if err != nil {
		return nil, err
	}
	current, err := c.store.ListSections(projectID)
	if err != nil {
		return nil, err
	}
	for _, name := range current {
		if _, ok := cp.Sections[name]; ok {
			continue
		}
		if err := c.store.RemoveSection(projectID, name); err != nil {
			return nil, err
		}
	}
	for name, doc := range cp.Sections {
		d := doc
		if err := c.store.WriteSectionRaw(projectID, name, &d); err != nil {
			return nil, err
		}
	}
	if err := c.store.WritePhase(projectID, cp.Phase); err != nil {
		return nil, err
	}
	return cp, nil
}
