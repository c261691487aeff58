package audit

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/agentcoord/internal/lifecycle"
)

func TestAppendAndQuery(t *testing.T) {
	trail, err := Open(":memory:")
	require.NoError(t, err)
	defer trail.Close()
	ctx := context.Background()

	stored, err := trail.Append(ctx, Entry{
		ProjectID: "proj-1",
		Kind:      KindAdminOverride,
		FromState: lifecycle.StateCompleted,
		ToState:   lifecycle.StateImplementing,
		Actor:     "admin",
		Reason:    "reopening after release defect",
	})
	require.NoError(t, err)
	require.NotEmpty(t, stored.ID)
	require.False(t, stored.Timestamp.IsZero())

	entries, err := trail.ByProject(ctx, "proj-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, KindAdminOverride, entries[0].Kind)
	require.Equal(t, lifecycle.StateCompleted, entries[0].FromState)
	require.Equal(t, "reopening after release defect", entries[0].Reason)
}

func TestAppendRequiresReason(t *testing.T) {
	trail, err := Open(":memory:")
	require.NoError(t, err)
	defer trail.Close()

	_, err = trail.Append(context.Background(), Entry{
		ProjectID: "proj-1",
		Kind:      KindAdminOverride,
		Actor:     "admin",
	})
	require.Error(t, err)
}

func TestByProjectIsolation(t *testing.T) {
	trail, err := Open(":memory:")
	require.NoError(t, err)
	defer trail.Close()
	ctx := context.Background()

	for _, pid := range []string{"proj-1", "proj-1", "proj-2"} {
		_, err := trail.Append(ctx, Entry{
			ProjectID: pid,
			Kind:      KindAdminOverride,
			Actor:     "admin",
			Reason:    "r",
		})
		require.NoError(t, err)
	}

	entries, err := trail.ByProject(ctx, "proj-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)

	entries, err = trail.ByProject(ctx, "proj-2")
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestPersistenceAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	ctx := context.Background()

	trail, err := Open(path)
	require.NoError(t, err)
	_, err = trail.Append(ctx, Entry{
		ProjectID: "proj-1",
		Kind:      KindForcedUnlock,
		Actor:     "operator",
		Reason:    "stale lease after crash",
	})
	require.NoError(t, err)
	require.NoError(t, trail.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	entries, err := reopened.ByProject(ctx, "proj-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, KindForcedUnlock, entries[0].Kind)
}
