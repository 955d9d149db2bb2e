package pipeline

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/wippyai/wasmnoise/config"
	"github.com/wippyai/wasmnoise/console"
	"github.com/wippyai/wasmnoise/errors"
	"github.com/wippyai/wasmnoise/version"
)

// DefaultDebounce is how long the watcher waits after the last change before
// rebuilding.
const DefaultDebounce = 300 * time.Millisecond

// WatchExtensions are the file suffixes that trigger a rebuild.
var WatchExtensions = []string{".cpp", ".hpp", ".c", ".h"}

// Watcher rebuilds at build level whenever a source file changes. Rebuilds
// never overlap: changes made during a build schedule the next one.
type Watcher struct {
	Debounce time.Duration

	fs      *fsnotify.Watcher
	console *console.Console
	build   func(ctx context.Context) (*Result, error)
}

// NewWatcher starts watching cfg's source directory and its subdirectories.
// Call Run to process changes.
func NewWatcher(cfg *config.Config, opts Options) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(errors.PhaseWatch, errors.KindIO, err, "create watcher")
	}

	root := cfg.Path(cfg.SourceDir)
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fw.Add(path)
		}
		return nil
	})
	if err != nil {
		fw.Close()
		return nil, errors.IO(errors.PhaseWatch, root, err)
	}

	out := opts.Console
	if out == nil {
		out = console.Stdout()
		opts.Console = out
	}
	opts.Level = version.LevelBuild

	return &Watcher{
		Debounce: DefaultDebounce,
		fs:       fw,
		console:  out,
		build: func(ctx context.Context) (*Result, error) {
			return Build(ctx, cfg, opts)
		},
	}, nil
}

// Run processes file events until ctx is done, then releases the watcher.
// A failed rebuild is reported and watching continues.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fs.Close()

	timer := time.NewTimer(w.Debounce)
	timer.Stop()
	defer timer.Stop()

	var pending []string
	for {
		select {
		case <-ctx.Done():
			Logger().Debug("watcher stopped", zap.Error(ctx.Err()))
			return nil

		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				w.addIfDir(event.Name)
			}
			if !Relevant(event) {
				continue
			}
			Logger().Debug("source changed", zap.String("path", event.Name), zap.Stringer("op", event.Op))
			if !slices.Contains(pending, event.Name) {
				pending = append(pending, event.Name)
			}
			timer.Reset(w.Debounce)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			Logger().Warn("watch error", zap.Error(err))

		case <-timer.C:
			w.console.Info("Change detected in %s, rebuilding...", strings.Join(pending, ", "))
			pending = pending[:0]
			w.rebuild(ctx)
		}
	}
}

func (w *Watcher) rebuild(ctx context.Context) {
	res, err := w.build(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		w.console.Error("Build failed: %v", err)
		return
	}
	w.console.Success("Built %s in %s", res.Version, res.Elapsed.Round(time.Millisecond))
}

func (w *Watcher) addIfDir(path string) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return
	}
	if err := w.fs.Add(path); err == nil {
		Logger().Debug("watching new directory", zap.String("path", path))
	}
}

// Relevant reports whether event should trigger a rebuild: a write, create,
// remove or rename of a source or header file.
func Relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}
	return slices.Contains(WatchExtensions, filepath.Ext(event.Name))
}
