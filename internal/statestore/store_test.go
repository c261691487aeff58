package statestore

import (
	"context"
	stderrors "errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/agentcoord/internal/lifecycle"
	"git.home.luguber.info/inful/agentcoord/internal/lock"
	"git.home.luguber.info/inful/agentcoord/internal/retry"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(t.TempDir(), lock.NewManager())
}

func TestCreateAndReadPhase(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateProject(ctx, "proj-1", lifecycle.StateCollecting))

	phase, err := s.ReadPhase("proj-1")
	require.NoError(t, err)
	require.Equal(t, lifecycle.StateCollecting, phase.State)
	require.Equal(t, int64(1), phase.Revision)

	ok, err := s.ProjectExists("proj-1")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestCreateProjectTwiceFails(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateProject(ctx, "proj-1", lifecycle.StateCollecting))
	require.Error(t, s.CreateProject(ctx, "proj-1", lifecycle.StateCollecting))
}

func TestReadPhaseMissingProject(t *testing.T) {
	s := newTestStore(t)
	_, err := s.ReadPhase("ghost")
	require.Error(t, err)
	require.True(t, stderrors.Is(err, os.ErrNotExist))
}

func TestSetAndGetSection(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateProject(ctx, "proj-1", lifecycle.StateCollecting))

	doc, err := s.SetSection(ctx, "proj-1", "requirements", map[string]any{"title": "SRS", "items": []any{"a"}}, 1)
	require.NoError(t, err)
	require.Equal(t, int64(1), doc.Revision)

	got, err := s.GetSection(ctx, "proj-1", "requirements")
	require.NoError(t, err)
	require.Equal(t, "SRS", got.Payload["title"])
	require.Equal(t, 1, got.SchemaVersion)

	// Full replace bumps revision and drops absent keys.
	doc, err = s.SetSection(ctx, "proj-1", "requirements", map[string]any{"title": "SRS v2"}, 2)
	require.NoError(t, err)
	require.Equal(t, int64(2), doc.Revision)

	got, err = s.GetSection(ctx, "proj-1", "requirements")
	require.NoError(t, err)
	require.Equal(t, "SRS v2", got.Payload["title"])
	require.NotContains(t, got.Payload, "items")
	require.Equal(t, 2, got.SchemaVersion)
}

func TestGetSectionMissing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateProject(ctx, "proj-1", lifecycle.StateCollecting))

	_, err := s.GetSection(ctx, "proj-1", "absent")
	require.Error(t, err)
	require.True(t, stderrors.Is(err, os.ErrNotExist))
}

func TestMergeSectionIsShallow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateProject(ctx, "proj-1", lifecycle.StateCollecting))

	_, err := s.SetSection(ctx, "proj-1", "design", map[string]any{
		"owner":  "alice",
		"nested": map[string]any{"keep": true, "drop": true},
		"list":   []any{"x", "y"},
	}, 1)
	require.NoError(t, err)

	doc, err := s.MergeSection(ctx, "proj-1", "design", map[string]any{
		"nested": map[string]any{"replaced": true},
		"list":   []any{"z"},
		"status": "reviewed",
	})
	require.NoError(t, err)
	require.Equal(t, int64(2), doc.Revision)

	got, err := s.GetSection(ctx, "proj-1", "design")
	require.NoError(t, err)

	// Untouched top-level keys survive.
	require.Equal(t, "alice", got.Payload["owner"])
	require.Equal(t, "reviewed", got.Payload["status"])

	// Nested maps and arrays are replaced wholesale, not merged.
	nested, ok := got.Payload["nested"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, map[string]any{"replaced": true}, nested)
	require.Equal(t, []any{"z"}, got.Payload["list"])
}

func TestMergeSectionMissingFails(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateProject(ctx, "proj-1", lifecycle.StateCollecting))

	_, err := s.MergeSection(ctx, "proj-1", "ghost", map[string]any{"a": 1})
	require.Error(t, err)
}

func TestListSectionsAndProjects(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateProject(ctx, "proj-1", lifecycle.StateCollecting))
	require.NoError(t, s.CreateProject(ctx, "proj-2", lifecycle.StateCollecting))

	_, err := s.SetSection(ctx, "proj-1", "requirements", map[string]any{}, 1)
	require.NoError(t, err)
	_, err = s.SetSection(ctx, "proj-1", "design", map[string]any{}, 1)
	require.NoError(t, err)

	sections, err := s.ListSections("proj-1")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"requirements", "design"}, sections)

	projects, err := s.ListProjects()
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"proj-1", "proj-2"}, projects)
}

func TestDeleteProjectIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateProject(ctx, "proj-1", lifecycle.StateCollecting))
	_, err := s.SetSection(ctx, "proj-1", "requirements", map[string]any{"a": 1}, 1)
	require.NoError(t, err)

	require.NoError(t, s.DeleteProject(ctx, "proj-1"))
	ok, err := s.ProjectExists("proj-1")
	require.NoError(t, err)
	require.False(t, ok)

	// Retrying a delete of an absent project succeeds.
	require.NoError(t, s.DeleteProject(ctx, "proj-1"))
}

func TestSectionLockBlocksConcurrentWriter(t *testing.T) {
	root := t.TempDir()
	a := New(root, lock.NewManager(lock.WithHolderID("a")))
	b := New(root, lock.NewManager(lock.WithHolderID("b")), WithLockOptions(lock.Options{
		TTL:    time.Minute,
		Policy: retry.NewPolicy(retry.BackoffFixed, 5*time.Millisecond, 5*time.Millisecond, 3),
	}))
	ctx := context.Background()
	require.NoError(t, a.CreateProject(ctx, "proj-1", lifecycle.StateCollecting))

	// Holder A takes the section lease out-of-band and holds it.
	resource := a.SectionPath("proj-1", "requirements")
	_, err := a.Locks().Acquire(ctx, resource, lock.DefaultOptions())
	require.NoError(t, err)

	// Holder B's write times out with contention, never corrupts.
	_, err = b.SetSection(ctx, "proj-1", "requirements", map[string]any{"a": 1}, 1)
	require.Error(t, err)
	require.True(t, lock.IsContention(err))

	// After release the write goes through.
	require.NoError(t, a.Locks().Release(resource))
	_, err = b.SetSection(ctx, "proj-1", "requirements", map[string]any{"a": 1}, 1)
	require.NoError(t, err)
}
