package watch

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCorpusWatcher_DebouncesBursts(t *testing.T) {
	dir := t.TempDir()
	var calls atomic.Int32
	cw := NewCorpusWatcher(dir, 200*time.Millisecond, func() { calls.Add(1) })
	require.NoError(t, cw.Start())
	t.Cleanup(cw.Stop)

	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("Solar panels use silicon."), 0o644))
	}

	assert.Eventually(t, func() bool { return calls.Load() == 1 }, 3*time.Second, 20*time.Millisecond)
	time.Sleep(400 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "d.txt"), []byte("Wind turbines use steel."), 0o644))
	assert.Eventually(t, func() bool { return calls.Load() == 2 }, 3*time.Second, 20*time.Millisecond)
}

func TestCorpusWatcher_IgnoresHiddenFiles(t *testing.T) {
	dir := t.TempDir()
	var calls atomic.Int32
	cw := NewCorpusWatcher(dir, 50*time.Millisecond, func() { calls.Add(1) })
	require.NoError(t, cw.Start())
	t.Cleanup(cw.Stop)

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".swap"), []byte("x"), 0o644))
	time.Sleep(300 * time.Millisecond)
	assert.Zero(t, calls.Load())
}

func TestCorpusWatcher_MissingDir(t *testing.T) {
	cw := NewCorpusWatcher(filepath.Join(t.TempDir(), "missing"), 0, func() {})
	assert.Error(t, cw.Start())
	assert.Equal(t, DefaultDebounce, cw.debounce)
	cw.Stop()
}

func TestRelevant(t *testing.T) {
	assert.True(t, relevant(fsnotify.Event{Name: "/data/a.txt", Op: fsnotify.Create}))
	assert.True(t, relevant(fsnotify.Event{Name: "/data/a.txt", Op: fsnotify.Write}))
	assert.True(t, relevant(fsnotify.Event{Name: "/data/a.txt", Op: fsnotify.Rename}))
	assert.False(t, relevant(fsnotify.Event{Name: "/data/a.txt", Op: fsnotify.Chmod}))
	assert.False(t, relevant(fsnotify.Event{Name: "/data/.a.txt.swp", Op: fsnotify.Write}))
}

func TestNewScheduler_InvalidSpec(t *testing.T) {
	_, err := NewScheduler("not a schedule", func() {})
	assert.Error(t, err)
}

func TestScheduler_Runs(t *testing.T) {
	var calls atomic.Int32
	s, err := NewScheduler("@every 1s", func() { calls.Add(1) })
	require.NoError(t, err)
	s.Start()
	assert.Eventually(t, func() bool { return calls.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)
	s.Stop()
}
