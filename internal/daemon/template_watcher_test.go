package daemon

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTemplateWatcherDebouncesChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "message.md")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o600))

	var calls atomic.Int32
	w, err := NewTemplateWatcher(path, func() { calls.Add(1) })
	require.NoError(t, err)
	w.debounceTime = 50 * time.Millisecond
	require.NoError(t, w.Start(t.Context()))
	t.Cleanup(func() { _ = w.Stop() })

	for _, body := range []string{"v2", "v3", "v4"} {
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	}

	require.Eventually(t, func() bool { return calls.Load() >= 1 }, 5*time.Second, 10*time.Millisecond)
	time.Sleep(200 * time.Millisecond)
	require.LessOrEqual(t, calls.Load(), int32(2))
}

func TestTemplateWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "message.md")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o600))

	var calls atomic.Int32
	w, err := NewTemplateWatcher(path, func() { calls.Add(1) })
	require.NoError(t, err)
	w.debounceTime = 10 * time.Millisecond
	require.NoError(t, w.Start(t.Context()))
	t.Cleanup(func() { _ = w.Stop() })

	require.NoError(t, os.WriteFile(filepath.Join(dir, "state.json"), []byte("{}"), 0o600))
	time.Sleep(200 * time.Millisecond)
	require.Zero(t, calls.Load())
}

func TestTemplateWatcherStopTwice(t *testing.T) {
	dir := t.TempDir()
	w, err := NewTemplateWatcher(filepath.Join(dir, "message.md"), func() {})
	require.NoError(t, err)
	require.NoError(t, w.Start(t.Context()))
	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())
}
