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

func TestWatcherDebouncesBurstIntoOneTrigger(t *testing.T) {
	root := t.TempDir()

	var mu sync.Mutex
	var calls int

	trigger := func(ctx context.Context, changed []string) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return nil
	}

	w, err := New([]string{root}, trigger, Options{DebounceWindow: 50 * time.Millisecond, IgnorePatterns: DefaultOptions().IgnorePatterns})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		_ = w.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("x"), 0o644))
		time.Sleep(5 * time.Millisecond)
	}

	time.Sleep(200 * time.Millisecond)
	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls)
}

func TestWatcherIgnoresDotDirectories(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".dotter"), 0o755))

	w, err := New([]string{root}, func(ctx context.Context, changed []string) error { return nil }, DefaultOptions())
	require.NoError(t, err)
	defer w.Stop()

	assert.True(t, w.shouldIgnore(filepath.Join(root, ".dotter", "cache.toml")))
	assert.False(t, w.shouldIgnore(filepath.Join(root, "bashrc")))
}
