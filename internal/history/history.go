// Package history records lifecycle transitions as an append-only JSONL log
// per project, plus self-contained checkpoint snapshots. The log is never
// rewritten: corrections, restores, and overrides all append.
package history

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"git.home.luguber.info/inful/agentcoord/internal/errors"
	"git.home.luguber.info/inful/agentcoord/internal/fsstore"
	"git.home.luguber.info/inful/agentcoord/internal/lifecycle"
	"git.home.luguber.info/inful/agentcoord/internal/statestore"
)

// EntryKind labels why a transition happened.
type EntryKind string

const (
	KindInit     EntryKind = "init"
	KindNormal   EntryKind = "normal"
	KindRecovery EntryKind = "recovery"
	KindSkip     EntryKind = "skip"
	KindOverride EntryKind = "override"
	KindRestore  EntryKind = "restore"
)

// Entry is one immutable transition record.
type Entry struct {
	Revision  int64           `json:"revision"`
	Timestamp time.Time       `json:"timestamp"`
	Previous  lifecycle.State `json:"previous"`
	New       lifecycle.State `json:"new"`
	Actor     string          `json:"actor"`
	Reason    string          `json:"reason,omitempty"`
	Kind      EntryKind       `json:"kind"`
}

// Log reads and appends the per-project transition history.
type Log struct {
	store *statestore.Store
}

// NewLog creates a history log over the given store.
func NewLog(store *statestore.Store) *Log {
	return &Log{store: store}
}

// Append writes one entry to the project's history. The caller must hold the
// project lock so revisions stay strictly ordered.
func (l *Log) Append(projectID string, e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return errors.InternalError("marshal history entry", err)
	}
	return fsstore.AppendLine(l.store.HistoryPath(projectID), data)
}

// Entries returns the full history in append order.
func (l *Log) Entries(projectID string) ([]Entry, error) {
	data, err := fsstore.Read(l.store.HistoryPath(projectID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []Entry
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, errors.StateCorrupt(projectID, "history", fmt.Errorf("line %d: %w", line, err))
		}
		out = append(out, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.FileReadError(l.store.HistoryPath(projectID), err)
	}
	return out, nil
}

// Replay walks the history from creation and returns the state it reproduces,
// verifying the chain links up: each entry must depart from the state the
// previous entry arrived at.
func (l *Log) Replay(projectID string) (lifecycle.State, error) {
	entries, err := l.Entries(projectID)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", errors.StateCorrupt(projectID, "history", fmt.Errorf("empty history"))
	}
	current := entries[0].New
	for i, e := range entries[1:] {
		if e.Previous != current {
			return "", errors.StateCorrupt(projectID, "history",
				fmt.Errorf("entry %d departs from %s but chain is at %s", i+1, e.Previous, current))
		}
		current = e.New
	}
	return current, nil
}

// NextRevision returns the revision the next entry should carry.
func (l *Log) NextRevision(projectID string) (int64, error) {
	entries, err := l.Entries(projectID)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 1, nil
	}
	return entries[len(entries)-1].Revision + 1, nil
}
