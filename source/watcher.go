package source

import (
	"context"
	"crypto/sha256"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

const batchBuffer = 16

// WatchOptions configures a Watcher.
type WatchOptions struct {
	// Debounce is how long changes accumulate before a batch is emitted.
	Debounce time.Duration
	// Extensions are the file extensions that count as document changes.
	Extensions []string
	// Exclude lists directory names never watched.
	Exclude []string
}

// DefaultWatchOptions returns the options used when none are configured.
func DefaultWatchOptions() WatchOptions {
	return WatchOptions{
		Debounce:   500 * time.Millisecond,
		Extensions: []string{".md", ".json", ".html"},
		Exclude:    []string{".git", "node_modules", "test-results"},
	}
}

// Watcher reports batches of changed document paths below a root.
// Changes whose content hash is unchanged are dropped.
type Watcher struct {
	root       string
	debounce   time.Duration
	extensions map[string]bool
	excludes   map[string]bool
	fsw        *fsnotify.Watcher
	logger     *slog.Logger

	mu      sync.Mutex
	pending map[string]struct{}
	hashes  map[string][sha256.Size]byte

	batches chan []string
	dropped atomic.Int64
	started atomic.Bool
	done    chan struct{}
}

// NewWatcher creates a watcher for root. Call Start to begin watching.
func NewWatcher(root string, opts WatchOptions, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	def := DefaultWatchOptions()
	if opts.Debounce <= 0 {
		opts.Debounce = def.Debounce
	}
	if len(opts.Extensions) == 0 {
		opts.Extensions = def.Extensions
	}
	if opts.Exclude == nil {
		opts.Exclude = def.Exclude
	}

	w := &Watcher{
		root:       root,
		debounce:   opts.Debounce,
		extensions: make(map[string]bool),
		excludes:   make(map[string]bool),
		fsw:        fsw,
		logger:     logger,
		pending:    make(map[string]struct{}),
		hashes:     make(map[string][sha256.Size]byte),
		batches:    make(chan []string, batchBuffer),
		done:       make(chan struct{}),
	}
	for _, ext := range opts.Extensions {
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		w.extensions[strings.ToLower(ext)] = true
	}
	for _, dir := range opts.Exclude {
		w.excludes[dir] = true
	}
	return w, nil
}

// Batches returns the channel of changed paths, relative to root and
// sorted. It is closed when the watcher stops.
func (w *Watcher) Batches() <-chan []string {
	return w.batches
}

// Start adds watches below root and processes events until ctx is done or
// Close is called.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addRecursive(w.root); err != nil {
		return err
	}
	w.started.Store(true)
	go w.run(ctx)
	w.logger.Info("Watching documents", "root", w.root, "debounce", w.debounce)
	return nil
}

// Close stops the watcher and waits for its goroutine to exit.
func (w *Watcher) Close() error {
	err := w.fsw.Close()
	if w.started.Load() {
		<-w.done
	}
	return err
}

// Dropped returns how many batches were discarded because nobody was reading.
func (w *Watcher) Dropped() int64 {
	return w.dropped.Load()
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && w.ignoredDir(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(p); err != nil {
			w.logger.Warn("Failed to watch directory", "path", p, "error", err)
		}
		return nil
	})
}

func (w *Watcher) ignoredDir(name string) bool {
	return w.excludes[name] || strings.HasPrefix(name, ".")
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)
	defer close(w.batches)

	// Each queued change restarts the quiet period.
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if w.handle(ev) {
				timer.Reset(w.debounce)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("Watcher error", "error", err)
		case <-timer.C:
			if !w.flush() {
				timer.Reset(w.debounce)
			}
		}
	}
}

// handle queues document changes and watches new directories. It reports
// whether a path was queued.
func (w *Watcher) handle(ev fsnotify.Event) bool {
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if !w.ignoredDir(filepath.Base(ev.Name)) {
				if err := w.addRecursive(ev.Name); err != nil {
					w.logger.Warn("Failed to watch new directory", "path", ev.Name, "error", err)
				}
			}
			return false
		}
	}
	if !w.extensions[strings.ToLower(filepath.Ext(ev.Name))] {
		return false
	}

	w.mu.Lock()
	w.pending[ev.Name] = struct{}{}
	w.mu.Unlock()
	w.logger.Debug("Document change detected", "path", ev.Name, "op", ev.Op.String())
	return true
}

// flush emits the pending paths whose content changed. It returns false when
// the batch was dropped and re-queued.
func (w *Watcher) flush() bool {
	w.mu.Lock()
	if len(w.pending) == 0 {
		w.mu.Unlock()
		return true
	}
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = make(map[string]struct{})
	w.mu.Unlock()

	var changed, abs []string
	for _, p := range paths {
		if !w.contentChanged(p) {
			continue
		}
		abs = append(abs, p)
		rel, err := filepath.Rel(w.root, p)
		if err != nil {
			rel = p
		}
		changed = append(changed, filepath.ToSlash(rel))
	}
	if len(changed) == 0 {
		return true
	}
	sort.Strings(changed)

	select {
	case w.batches <- changed:
		return true
	default:
		// Forget the dropped paths so the next flush or save reports them again.
		w.mu.Lock()
		for _, p := range abs {
			delete(w.hashes, p)
			w.pending[p] = struct{}{}
		}
		w.mu.Unlock()
		n := w.dropped.Add(1)
		w.logger.Warn("Change batch dropped, consumer too slow", "paths", len(changed), "total_dropped", n)
		return false
	}
}

// contentChanged records the file's hash and reports whether it differs from
// the last one seen. Removed files always count as changed.
func (w *Watcher) contentChanged(p string) bool {
	data, err := os.ReadFile(p)
	if err != nil {
		w.mu.Lock()
		delete(w.hashes, p)
		w.mu.Unlock()
		return true
	}
	sum := sha256.Sum256(data)

	w.mu.Lock()
	defer w.mu.Unlock()
	if old, ok := w.hashes[p]; ok && old == sum {
		return false
	}
	w.hashes[p] = sum
	return true
}
