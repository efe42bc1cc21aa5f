// Package watch reports changes anywhere under a directory tree, coalescing
// bursts of filesystem events into a single notification.
package watch

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounceDelay is how long the tree must stay quiet before a Change is sent.
const DefaultDebounceDelay = 250 * time.Millisecond

// Change lists the paths touched during one quiet-period window.
type Change struct {
	Paths []string
	At    time.Time
}

// TreeWatcher watches a directory and all of its subdirectories.
// Symbolic links are not followed. Directories created after the watcher
// starts are added as they appear.
type TreeWatcher struct {
	watcher *fsnotify.Watcher
	changes chan Change
	errors  chan error
	done    chan struct{}
	root    string

	mu            sync.Mutex
	debounceDelay time.Duration
	timer         *time.Timer
	pending       map[string]struct{}
	ignored       []string
	ignoredNames  []string
	closed        bool
}

// NewTreeWatcher starts watching root. root may also be a single file.
func NewTreeWatcher(root string, ignore ...string) (*TreeWatcher, error) {
	root = filepath.Clean(root)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	tw := &TreeWatcher{
		watcher:       watcher,
		changes:       make(chan Change, 1),
		errors:        make(chan error, 10),
		done:          make(chan struct{}),
		root:          root,
		debounceDelay: DefaultDebounceDelay,
		pending:       make(map[string]struct{}),
	}
	for _, p := range ignore {
		tw.ignored = append(tw.ignored, absPath(p))
	}

	if err := tw.addRecursive(root); err != nil {
		watcher.Close()
		return nil, err
	}

	go tw.processEvents()
	return tw, nil
}

// absPath returns the cleaned absolute form of p, or p cleaned if that fails.
func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}

// IgnoreNames drops events for entries whose base name matches any of the
// filepath.Match patterns. Call it before changes arrive.
func (tw *TreeWatcher) IgnoreNames(patterns ...string) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	tw.ignoredNames = append(tw.ignoredNames, patterns...)
}

// isIgnored reports whether path is, or lies under, an ignored path.
func (tw *TreeWatcher) isIgnored(path string) bool {
	tw.mu.Lock()
	names := tw.ignoredNames
	tw.mu.Unlock()

	base := filepath.Base(path)
	for _, pattern := range names {
		if ok, _ := filepath.Match(pattern, base); ok {
			return true
		}
	}

	abs := absPath(path)
	for _, ig := range tw.ignored {
		if abs == ig || strings.HasPrefix(abs, ig+string(os.PathSeparator)) {
			return true
		}
	}
	return false
}

func (tw *TreeWatcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) || os.IsPermission(err) {
				return nil
			}
			return err
		}
		if tw.isIgnored(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if path == dir || d.IsDir() {
			if err := tw.watcher.Add(path); err != nil {
				if os.IsPermission(err) || os.IsNotExist(err) {
					return nil
				}
				return err
			}
		}
		return nil
	})
}

func (tw *TreeWatcher) processEvents() {
	for {
		select {
		case <-tw.done:
			return
		case event, ok := <-tw.watcher.Events:
			if !ok {
				return
			}
			tw.handleEvent(event)
		case err, ok := <-tw.watcher.Errors:
			if !ok {
				return
			}
			tw.sendError(err)
		}
	}
}

func (tw *TreeWatcher) handleEvent(event fsnotify.Event) {
	if event.Op == fsnotify.Chmod || tw.isIgnored(event.Name) {
		return
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Lstat(event.Name); err == nil && info.IsDir() {
			if err := tw.addRecursive(event.Name); err != nil {
				tw.sendError(err)
			}
		}
	}

	tw.debounce(event.Name)
}

// debounce records path and restarts the quiet-period timer.
func (tw *TreeWatcher) debounce(path string) {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if tw.closed {
		return
	}

	tw.pending[path] = struct{}{}
	if tw.timer != nil {
		tw.timer.Stop()
	}
	tw.timer = time.AfterFunc(tw.debounceDelay, tw.flush)
}

func (tw *TreeWatcher) flush() {
	tw.mu.Lock()
	if tw.closed || len(tw.pending) == 0 {
		tw.mu.Unlock()
		return
	}
	paths := make([]string, 0, len(tw.pending))
	for p := range tw.pending {
		paths = append(paths, p)
	}
	tw.pending = make(map[string]struct{})
	tw.timer = nil
	tw.mu.Unlock()

	sort.Strings(paths)
	change := Change{Paths: paths, At: time.Now()}

	// A consumer that is still busy gets the older change merged into this one.
	for {
		select {
		case tw.changes <- change:
			return
		case <-tw.done:
			return
		case old := <-tw.changes:
			change.Paths = mergePaths(old.Paths, change.Paths)
		}
	}
}

func mergePaths(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	var out []string
	for _, list := range [][]string{a, b} {
		for _, p := range list {
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

func (tw *TreeWatcher) sendError(err error) {
	select {
	case tw.errors <- err:
	default:
		// Error channel full, drop the error
	}
}

// Changes returns the channel of coalesced changes. At most one change is
// buffered; later changes are merged into it.
func (tw *TreeWatcher) Changes() <-chan Change {
	return tw.changes
}

// Errors returns the channel for receiving watcher errors
func (tw *TreeWatcher) Errors() <-chan error {
	return tw.errors
}

// Root returns the watched root.
func (tw *TreeWatcher) Root() string {
	return tw.root
}

// SetDebounceDelay sets the quiet period. Call it before changes arrive.
func (tw *TreeWatcher) SetDebounceDelay(delay time.Duration) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	tw.debounceDelay = delay
}

// Close stops the watcher and releases resources
func (tw *TreeWatcher) Close() error {
	tw.mu.Lock()
	if tw.closed {
		tw.mu.Unlock()
		return nil
	}
	tw.closed = true
	if tw.timer != nil {
		tw.timer.Stop()
	}
	tw.mu.Unlock()

	close(tw.done)
	return tw.watcher.Close()
}
