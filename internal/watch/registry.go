// Package watch delivers post-mutation notifications. The registry is scoped
// to an explicit instance so multiple coordinators can coexist in one process
// under test; nothing here is process-global.
package watch

import (
	"fmt"
	"sync"
	"time"

	"git.home.luguber.info/inful/agentcoord/internal/lifecycle"
)

// Mutation describes one committed change to project state.
type Mutation struct {
	ProjectID string          `json:"project_id"`
	Section   string          `json:"section,omitempty"` // empty for lifecycle transitions
	Kind      string          `json:"kind"`              // transition|section|restore
	From      lifecycle.State `json:"from,omitempty"`
	To        lifecycle.State `json:"to,omitempty"`
	Revision  int64           `json:"revision"`
	Timestamp time.Time       `json:"timestamp"`
}

// Handler processes a committed mutation; returning an error reports it to
// the mutation's caller but never unwinds the already-committed change.
type Handler func(Mutation) error

type registration struct {
	id      int
	section string // empty matches every section and transitions
	handler Handler
}

// Registry holds per-project (optionally per-section) watchers.
type Registry struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string][]registration // projectID -> registrations
}

// NewRegistry creates an empty watcher registry.
func NewRegistry() *Registry {
	return &Registry{subs: make(map[string][]registration)}
}

// Watch registers a handler for every mutation of projectID. The returned
// function unsubscribes.
func (r *Registry) Watch(projectID string, h Handler) func() {
	return r.add(projectID, "", h)
}

// WatchSection registers a handler for one section of projectID.
func (r *Registry) WatchSection(projectID, section string, h Handler) func() {
	return r.add(projectID, section, h)
}

func (r *Registry) add(projectID, section string, h Handler) func() {
	if h == nil {
		return func() {}
	}
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.subs[projectID] = append(r.subs[projectID], registration{id: id, section: section, handler: h})
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		regs := r.subs[projectID]
		for i, reg := range regs {
			if reg.id == id {
				r.subs[projectID] = append(regs[:i], regs[i+1:]...)
				break
			}
		}
	}
}

// Notify delivers m to matching watchers synchronously, after the mutation
// has committed. A panicking or failing watcher is captured and reported
// back; the mutation itself stands.
func (r *Registry) Notify(m Mutation) []error {
	r.mu.RLock()
	regs := make([]registration, len(r.subs[m.ProjectID]))
	copy(regs, r.subs[m.ProjectID])
	r.mu.RUnlock()

	var errs []error
	for _, reg := range regs {
		if reg.section != "" && reg.section != m.Section {
			continue
		}
		if err := safeInvoke(reg.handler, m); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func safeInvoke(h Handler, m Mutation) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("watcher panicked: %v", rec)
		}
	}()
	return h(m)
}
