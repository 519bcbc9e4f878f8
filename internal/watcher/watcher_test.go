package watcher

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu  sync.Mutex
	ops []Op
}

func (r *recorder) add(op Op) {
	r.mu.Lock()
	r.ops = append(r.ops, op)
	r.mu.Unlock()
}

func (r *recorder) last() Op {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.ops) == 0 {
		return 0
	}
	return r.ops[len(r.ops)-1]
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ops)
}

func startWatcher(t *testing.T, target string) *recorder {
	t.Helper()
	rec := &recorder{}
	w, err := New(target, rec.add, WithDebounce(20*time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, w.Start())
	t.Cleanup(func() { _ = w.Stop() })
	return rec
}

func TestWatcher_Modified(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "roster.json")
	require.NoError(t, os.WriteFile(target, []byte("{}"), 0600))

	rec := startWatcher(t, target)

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(target, []byte(`{"version":2}`), 0600))
	}

	assert.Eventually(t, func() bool { return rec.last() == OpModified }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.LessOrEqual(t, rec.count(), 2, "bursts are coalesced")
}

func TestWatcher_AtomicReplace(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "roster.json")
	require.NoError(t, os.WriteFile(target, []byte("{}"), 0600))

	rec := startWatcher(t, target)

	tmp := filepath.Join(dir, "roster.json.tmp")
	require.NoError(t, os.WriteFile(tmp, []byte(`{"version":2}`), 0600))
	require.NoError(t, os.Rename(tmp, target))

	assert.Eventually(t, func() bool { return rec.last() == OpModified }, 2*time.Second, 10*time.Millisecond)
}

func TestWatcher_Removed(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "roster.json")
	require.NoError(t, os.WriteFile(target, []byte("{}"), 0600))

	rec := startWatcher(t, target)
	require.NoError(t, os.Remove(target))

	assert.Eventually(t, func() bool { return rec.last() == OpRemoved }, 2*time.Second, 10*time.Millisecond)
}

func TestWatcher_IgnoresSiblings(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "roster.json")

	rec := startWatcher(t, target)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.json"), []byte("{}"), 0600))

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 0, rec.count())
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	w, err := New(filepath.Join(t.TempDir(), "x"), nil)
	require.NoError(t, err)
	require.NoError(t, w.Start())
	require.NoError(t, w.Start())
	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())
	assert.Equal(t, "removed", OpRemoved.String())
}
