package pipeline

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/wippyai/wasmnoise/console"
	"github.com/wippyai/wasmnoise/version"
)

func TestRelevant(t *testing.T) {
	tests := []struct {
		event fsnotify.Event
		want  bool
	}{
		{fsnotify.Event{Name: "source/WasmNoise.cpp", Op: fsnotify.Write}, true},
		{fsnotify.Event{Name: "source/WasmNoise.h", Op: fsnotify.Create}, true},
		{fsnotify.Event{Name: "source/Old.hpp", Op: fsnotify.Remove}, true},
		{fsnotify.Event{Name: "source/util.c", Op: fsnotify.Rename}, true},
		{fsnotify.Event{Name: "source/WasmNoise.cpp", Op: fsnotify.Chmod}, false},
		{fsnotify.Event{Name: "source/notes.txt", Op: fsnotify.Write}, false},
		{fsnotify.Event{Name: "source/WasmNoise.cpp.swp", Op: fsnotify.Write}, false},
	}

	for _, tt := range tests {
		t.Run(tt.event.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, Relevant(tt.event))
		})
	}
}

func TestWatcherRebuildsOnChange(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := newProject(t, version.Version{})
	var out bytes.Buffer
	opts := Options{Console: console.NewPlain(&out), Runner: newFakeToolchain()}

	w, err := NewWatcher(p.cfg, opts)
	require.NoError(t, err)
	w.Debounce = 100 * time.Millisecond

	builds := make(chan struct{}, 8)
	var mu sync.Mutex
	count := 0
	w.build = func(ctx context.Context) (*Result, error) {
		mu.Lock()
		count++
		mu.Unlock()
		builds <- struct{}{}
		return &Result{Version: version.Version{Build: 1}}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	src := filepath.Join(p.cfg.Path(p.cfg.SourceDir), "WasmNoiseInterface.cpp")
	require.NoError(t, os.WriteFile(filepath.Join(p.cfg.Path(p.cfg.SourceDir), "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(src, []byte("// one\n"), 0o644))
	require.NoError(t, os.WriteFile(src, []byte("// two\n"), 0o644))

	select {
	case <-builds:
	case <-time.After(5 * time.Second):
		t.Fatal("no rebuild after source change")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}

	mu.Lock()
	assert.Equal(t, 1, count, "burst of writes should debounce into one build")
	mu.Unlock()
	assert.Contains(t, out.String(), "Change detected in")
	assert.Contains(t, out.String(), "Built 0.0.0.1")
}

func TestWatcherMissingSourceDir(t *testing.T) {
	p := newProject(t, version.Version{})
	require.NoError(t, os.RemoveAll(p.cfg.Path(p.cfg.SourceDir)))

	_, err := NewWatcher(p.cfg, Options{Console: console.NewPlain(&bytes.Buffer{})})
	assert.Error(t, err)
}
