package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nextBatch(t *testing.T, w *Watcher) []string {
	t.Helper()
	select {
	case b, ok := <-w.Batches():
		require.True(t, ok, "batches closed early")
		return b
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for change batch")
		return nil
	}
}

func TestWatcherReportsChangedDocuments(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "api"), 0755))

	w, err := NewWatcher(root, WatchOptions{Debounce: 50 * time.Millisecond}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	require.NoError(t, os.WriteFile(filepath.Join(root, "api", "spec.md"), []byte("# Spec"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "ignored.txt"), []byte("x"), 0644))
	assert.Equal(t, []string{"api/spec.md"}, nextBatch(t, w))

	require.NoError(t, os.WriteFile(filepath.Join(root, "api", "spec.meta.json"), []byte("{}"), 0644))
	assert.Equal(t, []string{"api/spec.meta.json"}, nextBatch(t, w))

	require.NoError(t, w.Close())
	_, ok := <-w.Batches()
	assert.False(t, ok, "batches must be closed after Close")
}

func TestWatcherSkipsUnchangedContent(t *testing.T) {
	root := t.TempDir()
	doc := filepath.Join(root, "plan.md")
	require.NoError(t, os.WriteFile(doc, []byte("# Plan"), 0644))

	w, err := NewWatcher(root, WatchOptions{Debounce: 50 * time.Millisecond}, nil)
	require.NoError(t, err)
	defer w.Close()

	assert.True(t, w.contentChanged(doc))
	assert.False(t, w.contentChanged(doc))
	require.NoError(t, os.WriteFile(doc, []byte("# Plan v2"), 0644))
	assert.True(t, w.contentChanged(doc))
	require.NoError(t, os.Remove(doc))
	assert.True(t, w.contentChanged(doc))
}

func TestWatcherCloseWithoutStart(t *testing.T) {
	w, err := NewWatcher(t.TempDir(), WatchOptions{}, nil)
	require.NoError(t, err)
	assert.NoError(t, w.Close())
}

func TestWatcherRequeuesDroppedBatch(t *testing.T) {
	root := t.TempDir()
	doc := filepath.Join(root, "a.md")
	require.NoError(t, os.WriteFile(doc, []byte("# A"), 0644))

	w, err := NewWatcher(root, WatchOptions{}, nil)
	require.NoError(t, err)
	defer w.Close()

	for i := 0; i < batchBuffer; i++ {
		w.batches <- []string{"filler.md"}
	}
	require.True(t, w.handle(fsnotify.Event{Name: doc, Op: fsnotify.Write}))
	assert.False(t, w.flush(), "full buffer must report the batch as re-queued")
	assert.Equal(t, int64(1), w.Dropped())

	for i := 0; i < batchBuffer; i++ {
		<-w.batches
	}

	assert.True(t, w.flush())
	assert.Equal(t, []string{"a.md"}, nextBatch(t, w), "dropped change must be emitted again")

	require.True(t, w.handle(fsnotify.Event{Name: doc, Op: fsnotify.Write}))
	w.flush()
	select {
	case b := <-w.batches:
		t.Fatalf("unchanged content emitted again: %v", b)
	default:
	}
}

func TestWatcherDebounceWaitsForQuiet(t *testing.T) {
	root := t.TempDir()
	w, err := NewWatcher(root, WatchOptions{Debounce: 200 * time.Millisecond}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Close()

	names := []string{"a.md", "b.md", "c.md", "d.md", "e.md"}
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte("# "+name), 0644))
		time.Sleep(60 * time.Millisecond)
	}
	assert.Equal(t, names, nextBatch(t, w), "changes inside the quiet period share one batch")
}
