package fsstore

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteAtomicRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.json")

	require.NoError(t, WriteAtomic(path, []byte(`{"a":1}`), 0640))

	data, err := Read(path)
	require.NoError(t, err)
	require.Equal(t, `{"a":1}`, string(data))

	// Overwrite replaces content completely.
	require.NoError(t, WriteAtomic(path, []byte(`{"b":2}`), 0640))
	data, err = Read(path)
	require.NoError(t, err)
	require.Equal(t, `{"b":2}`, string(data))
}

func TestWriteAtomicCreatesParentDirs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "deeper", "doc.json")

	require.NoError(t, WriteAtomic(path, []byte("x"), 0640))
	ok, err := Exists(path)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestWriteAtomicLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.json")
	require.NoError(t, WriteAtomic(path, []byte("x"), 0640))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "doc.json", entries[0].Name())
}

// TestWriteAtomicReadersNeverSeePartials hammers one path with writers of two
// distinct large payloads while readers verify every observation is one of
// the two complete payloads.
func TestWriteAtomicReadersNeverSeePartials(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "contended.json")

	oldContent := bytes.Repeat([]byte("A"), 64*1024)
	newContent := bytes.Repeat([]byte("B"), 64*1024)
	require.NoError(t, WriteAtomic(path, oldContent, 0640))

	done := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			content := oldContent
			if i%2 == 1 {
				content = newContent
			}
			if err := WriteAtomic(path, content, 0640); err != nil {
				t.Errorf("writer: %v", err)
				return
			}
		}
		close(done)
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				data, err := Read(path)
				if err != nil {
					t.Errorf("reader: %v", err)
					return
				}
				if !bytes.Equal(data, oldContent) && !bytes.Equal(data, newContent) {
					t.Errorf("observed partial content of length %d", len(data))
					return
				}
			}
		}()
	}

	wg.Wait()
}

func TestAppendLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.jsonl")

	require.NoError(t, AppendLine(path, []byte(`{"rev":1}`)))
	require.NoError(t, AppendLine(path, []byte(`{"rev":2}`)))

	data, err := Read(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Equal(t, []string{`{"rev":1}`, `{"rev":2}`}, lines)
}

func TestPublishExclusive(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "resource.lock")

	tmp := filepath.Join(dir, "candidate-1")
	require.NoError(t, os.WriteFile(tmp, []byte("holder-1"), 0640))
	require.NoError(t, PublishExclusive(tmp, dst))

	// Temp is cleaned up, destination holds the content.
	_, err := os.Stat(tmp)
	require.True(t, os.IsNotExist(err))
	data, err := Read(dst)
	require.NoError(t, err)
	require.Equal(t, "holder-1", string(data))

	// A second publisher loses with an IsExist error, and the winner's
	// content is untouched.
	tmp2 := filepath.Join(dir, "candidate-2")
	require.NoError(t, os.WriteFile(tmp2, []byte("holder-2"), 0640))
	err = PublishExclusive(tmp2, dst)
	require.Error(t, err)
	require.True(t, IsExist(err))

	data, err = Read(dst)
	require.NoError(t, err)
	require.Equal(t, "holder-1", string(data))
}

func TestReadMissingFile(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "absent.json"))
	require.True(t, os.IsNotExist(err))
}
