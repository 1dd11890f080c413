package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// waitAsync 在后台等待设备出现, 结果写入返回的 channel
func waitAsync(ctx context.Context, w DeviceWatcher, dir, name string) <-chan error {
	done := make(chan error, 1)
	go func() { done <- w.WaitForArrival(ctx, dir, name) }()
	return done
}

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, nil, 0o600))
}

func TestFsnotifyArrival(t *testing.T) {
	dir := t.TempDir()
	w, err := New(BackendFsnotify, nil)
	require.NoError(t, err)

	done := waitAsync(context.Background(), w, dir, "ttyACM1")
	time.Sleep(100 * time.Millisecond)
	touch(t, filepath.Join(dir, "ttyACM0"))
	touch(t, filepath.Join(dir, "ttyACM1"))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("arrival not detected")
	}
}

func TestFsnotifyUnrelatedNamesThenCancel(t *testing.T) {
	dir := t.TempDir()
	w, err := New(BackendFsnotify, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := waitAsync(ctx, w, dir, "ttyACM1")
	time.Sleep(100 * time.Millisecond)
	touch(t, filepath.Join(dir, "ttyACM10"))
	touch(t, filepath.Join(dir, "ttyACM"))

	select {
	case err := <-done:
		t.Fatalf("returned on unrelated name: %v", err)
	case <-time.After(300 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrCancelled)
	case <-time.After(2 * time.Second):
		t.Fatal("cancel not observed")
	}
}

func TestFsnotifyMissingDir(t *testing.T) {
	w, err := New(BackendFsnotify, nil)
	require.NoError(t, err)
	err = w.WaitForArrival(context.Background(), filepath.Join(t.TempDir(), "missing"), "ttyACM1")
	assert.ErrorIs(t, err, ErrWatchInit)
}
