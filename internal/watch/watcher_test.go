package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// triggerRecorder collects trigger invocations.
type triggerRecorder struct {
	mu      sync.Mutex
	batches [][]string
}

func (r *triggerRecorder) trigger(ctx context.Context, changed []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, changed)
}

func (r *triggerRecorder) batchCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.batches)
}

func (r *triggerRecorder) allPaths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var paths []string
	for _, b := range r.batches {
		paths = append(paths, b...)
	}
	return paths
}

func startWatcher(t *testing.T, dir string, rec *triggerRecorder) *ContractWatcher {
	t.Helper()
	w, err := NewContractWatcher(dir, rec.trigger)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(w.Stop)
	return w
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(25 * time.Millisecond)
	}
	return cond()
}

func TestWatcherTriggersOnContractWrite(t *testing.T) {
	dir := t.TempDir()
	rec := &triggerRecorder{}
	w := startWatcher(t, dir, rec)
	assert.True(t, w.IsWatching())

	path := filepath.Join(dir, "echo.contract.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: 1\ntool: echo\n"), 0o644))

	require.True(t, waitFor(t, 5*time.Second, func() bool { return rec.batchCount() > 0 }),
		"expected a trigger after a contract write")
	assert.Contains(t, rec.allPaths(), path)
	assert.GreaterOrEqual(t, w.GetStats().FilesChanged, 1)
}

func TestWatcherIgnoresNonContractFiles(t *testing.T) {
	dir := t.TempDir()
	rec := &triggerRecorder{}
	w := startWatcher(t, dir, rec)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hello"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "server.py"), []byte("pass"), 0o644))

	time.Sleep(800 * time.Millisecond)
	assert.Equal(t, 0, rec.batchCount())
	assert.Equal(t, 0, w.GetStats().FilesChanged)
}

func TestWatcherBatchesRapidEdits(t *testing.T) {
	dir := t.TempDir()
	rec := &triggerRecorder{}
	w := startWatcher(t, dir, rec)

	path := filepath.Join(dir, "echo.contract.yaml")
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte("version: 1\n"), 0o644))
		time.Sleep(20 * time.Millisecond)
	}

	require.True(t, waitFor(t, 5*time.Second, func() bool { return rec.batchCount() > 0 }))
	// Rapid saves of one file settle into a single trigger.
	assert.Equal(t, 1, w.GetStats().TriggersFired)
	assert.Len(t, rec.allPaths(), 1)
}

func TestWatcherStopIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	rec := &triggerRecorder{}
	w := startWatcher(t, dir, rec)

	w.Stop()
	w.Stop()
	assert.False(t, w.IsWatching())
}
