package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFileWatcherNotifiesOnSectionWrite(t *testing.T) {
	dir := t.TempDir()
	reg := NewRegistry()

	var mu sync.Mutex
	var got []Mutation
	reg.Watch("proj-1", func(m Mutation) error {
		mu.Lock()
		got = append(got, m)
		mu.Unlock()
		return nil
	})

	fw, err := NewFileWatcher("proj-1", dir, reg)
	require.NoError(t, err)
	require.NoError(t, fw.Start(context.Background()))
	defer fw.Stop()

	// Mimic the store's atomic write: temp sibling then rename.
	tmp := filepath.Join(dir, ".tmp-requirements")
	require.NoError(t, os.WriteFile(tmp, []byte(`{"title":"v1"}`), 0o600))
	require.NoError(t, os.Rename(tmp, filepath.Join(dir, "requirements.json")))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) >= 1
	}, 3*time.Second, 20*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, "requirements", got[0].Section)
	require.Equal(t, "section", got[0].Kind)
}

func TestFileWatcherIgnoresTempAndLockFiles(t *testing.T) {
	dir := t.TempDir()
	reg := NewRegistry()

	var mu sync.Mutex
	calls := 0
	reg.Watch("proj-1", func(Mutation) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return nil
	})

	fw, err := NewFileWatcher("proj-1", dir, reg)
	require.NoError(t, err)
	require.NoError(t, fw.Start(context.Background()))
	defer fw.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".tmp-abc123"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "requirements.json.lock"), []byte("x"), 0o600))

	time.Sleep(600 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.Zero(t, calls)
}

func TestFileWatcherStopIsClean(t *testing.T) {
	fw, err := NewFileWatcher("proj-1", t.TempDir(), NewRegistry())
	require.NoError(t, err)
	require.NoError(t, fw.Start(context.Background()))
	require.NoError(t, fw.Stop())
}
