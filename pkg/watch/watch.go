// Package watch implements the filesystem-watch collaborator behind the
// `watch` subcommand (§5, §9 "Coroutine/async control flow"): it debounces
// filesystem events under the repository root and re-invokes the core on a
// quiet period, never overlapping two invocations.
package watch

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/arthur-debert/dotter/pkg/errors"
	"github.com/arthur-debert/dotter/pkg/logging"
)

// Trigger re-invokes the core (deploy) in response to a debounced batch of
// filesystem changes. The watcher guarantees it is never called again
// before a previous call returns, per §5's re-entrancy exclusion.
type Trigger func(ctx context.Context, changed []string) error

// Options configures a Watcher.
type Options struct {
	// DebounceWindow is how long to wait for quiet before re-invoking.
	DebounceWindow time.Duration
	// IgnorePatterns are filepath.Match globs tested against the base name
	// of each changed path, plus substring matches against the full path
	// (for directory names like ".dotter" or ".git").
	IgnorePatterns []string
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		DebounceWindow: 300 * time.Millisecond,
		IgnorePatterns: []string{".git", ".dotter", "*.swp", "*.tmp", "*~"},
	}
}

// Watcher watches one or more roots and debounces changes into Trigger calls.
type Watcher struct {
	roots   []string
	trigger Trigger
	opts    Options
	logger  zerolog.Logger

	fsWatcher *fsnotify.Watcher
	changes   chan string
	done      chan struct{}
	stopOnce  sync.Once
}

// New creates a Watcher over roots (typically the repository root and the
// local/global config file directories) that calls trigger after each
// debounced batch of changes.
func New(roots []string, trigger Trigger, opts Options) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrFilesystem, "create filesystem watcher")
	}

	return &Watcher{
		roots:     roots,
		trigger:   trigger,
		opts:      opts,
		logger:    logging.GetLogger("watch"),
		fsWatcher: fsWatcher,
		changes:   make(chan string, 1000),
		done:      make(chan struct{}),
	}, nil
}

// Run watches until ctx is cancelled or Stop is called, blocking the caller.
// It never returns an error except on initial setup failure: later trigger
// errors are logged, not propagated, since the watch loop must keep running.
func (w *Watcher) Run(ctx context.Context) error {
	for _, root := range w.roots {
		if err := w.addRecursive(root); err != nil {
			return errors.Wrapf(err, errors.ErrFilesystem, "watch %q", root)
		}
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		w.processEvents(ctx)
	}()
	go func() {
		defer wg.Done()
		w.debounceLoop(ctx)
	}()

	<-ctx.Done()
	w.Stop()
	wg.Wait()
	return nil
}

// Stop halts watching; safe to call multiple times and from any goroutine.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		_ = w.fsWatcher.Close()
	})
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if w.shouldIgnore(path) {
			return filepath.SkipDir
		}
		return w.fsWatcher.Add(path)
	})
}

func (w *Watcher) shouldIgnore(path string) bool {
	base := filepath.Base(path)
	for _, pattern := range w.opts.IgnorePatterns {
		if base == pattern {
			return true
		}
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
		if strings.Contains(path, string(filepath.Separator)+pattern) {
			return true
		}
	}
	return false
}

func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if w.shouldIgnore(event.Name) {
				continue
			}
			select {
			case w.changes <- event.Name:
			default:
				w.logger.Warn().Str("path", event.Name).Msg("change buffer full, dropping event")
			}
			if event.Has(fsnotify.Create) {
				if info, err := statIsDir(event.Name); err == nil && info {
					_ = w.fsWatcher.Add(event.Name)
				}
			}
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("watch error")
		}
	}
}

// debounceLoop runs in a single goroutine, so calling w.trigger here is
// naturally exclusive: a new batch cannot start building until flush
// returns, and the watcher keeps accepting (buffering) events meanwhile.
func (w *Watcher) debounceLoop(ctx context.Context) {
	var batch []string
	seen := map[string]bool{}
	var timer *time.Timer
	var timerC <-chan time.Time

	flush := func() {
		if len(batch) == 0 {
			return
		}
		changed := batch
		batch = nil
		seen = map[string]bool{}
		if err := w.trigger(ctx, changed); err != nil {
			w.logger.Warn().Err(err).Msg("watch trigger failed")
		}
		if timer != nil {
			timer.Stop()
			timer, timerC = nil, nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case <-w.done:
			flush()
			return
		case path := <-w.changes:
			if !seen[path] {
				seen[path] = true
				batch = append(batch, path)
			}
			if timer == nil {
				timer = time.NewTimer(w.opts.DebounceWindow)
				timerC = timer.C
			} else {
				timer.Reset(w.opts.DebounceWindow)
			}
		case <-timerC:
			flush()
		}
	}
}

func statIsDir(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}
