package rulepack

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the default fsnotify debounce window before a reload
// attempt fires.
const DefaultDebounce = 100 * time.Millisecond

// cacheEntry holds one resolved pack path's compiled value plus reload state.
type cacheEntry struct {
	compiled atomic.Pointer[CompiledPack]
	modTime  time.Time
	watcher  *fsnotify.Watcher
	stopCh   chan struct{}
	mu       sync.Mutex
}

var (
	cacheMu sync.Mutex
	cache   = map[string]*cacheEntry{}
)

// Loader loads a compiled rule pack from path, caching by resolved file
// path and hot-reloading on mtime change or filesystem notification. The
// returned *CompiledPack pointer is a snapshot; call Loader.Load again (or
// keep the Loader and call Current) to observe later reloads.
type Loader struct {
	path     string
	debounce time.Duration
}

// NewLoader builds a Loader for the rule pack file at path.
func NewLoader(path string, debounce time.Duration) *Loader {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Loader{path: path, debounce: debounce}
}

// Load returns the cached compiled pack for the loader's path, compiling
// and caching it on first use, and registering a filesystem watcher for
// hot-reload. The first load is fatal on failure (asset_missing or
// rulepack_load_error); subsequent reload failures are logged and the
// previous compiled pack is retained.
func (l *Loader) Load() (*CompiledPack, error) {
	abs, err := filepath.Abs(l.path)
	if err != nil {
		return nil, fmt.Errorf("rulepack: asset_missing: cannot resolve path %q: %w", l.path, err)
	}

	cacheMu.Lock()
	entry, exists := cache[abs]
	if !exists {
		entry = &cacheEntry{stopCh: make(chan struct{})}
		cache[abs] = entry
	}
	cacheMu.Unlock()

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if existing := entry.compiled.Load(); existing != nil {
		return existing, nil
	}

	if err := entry.reload(abs); err != nil {
		return nil, err
	}
	entry.startWatch(abs, l.debounce)
	return entry.compiled.Load(), nil
}

// Current returns the most recently loaded compiled pack without touching
// the filesystem, or nil if Load has never succeeded for this path.
func (l *Loader) Current() *CompiledPack {
	abs, err := filepath.Abs(l.path)
	if err != nil {
		return nil
	}
	cacheMu.Lock()
	entry, exists := cache[abs]
	cacheMu.Unlock()
	if !exists {
		return nil
	}
	return entry.compiled.Load()
}

// Close releases the filesystem watcher for this loader's path. One
// watcher exists per distinct resolved path; Close is safe to call from
// multiple scanner instances sharing the same path.
func (l *Loader) Close() error {
	abs, err := filepath.Abs(l.path)
	if err != nil {
		return nil
	}
	cacheMu.Lock()
	entry, exists := cache[abs]
	if exists {
		delete(cache, abs)
	}
	cacheMu.Unlock()
	if !exists {
		return nil
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.watcher != nil {
		close(entry.stopCh)
		return entry.watcher.Close()
	}
	return nil
}

// reload reads, parses, validates, and compiles the pack file, atomically
// swapping the cached pointer on success. Caller must hold entry.mu.
func (e *cacheEntry) reload(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if e.compiled.Load() == nil {
			return fmt.Errorf("rulepack: asset_missing: %w", err)
		}
		slog.Error("rulepack reload: stat failed, keeping previous pack", "path", path, "error", err)
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if e.compiled.Load() == nil {
			return fmt.Errorf("rulepack: asset_missing: %w", err)
		}
		slog.Error("rulepack reload: read failed, keeping previous pack", "path", path, "error", err)
		return nil
	}

	var pf PackFile
	if err := json.Unmarshal(data, &pf); err != nil {
		if e.compiled.Load() == nil {
			return fmt.Errorf("rulepack: rulepack_load_error: invalid JSON: %w", err)
		}
		slog.Error("rulepack reload: invalid JSON, keeping previous pack", "path", path, "error", err)
		return nil
	}

	compiled, err := Compile(pf)
	if err != nil {
		if e.compiled.Load() == nil {
			return err
		}
		slog.Error("rulepack reload: compile failed, keeping previous pack", "path", path, "error", err)
		return nil
	}

	e.compiled.Store(compiled)
	e.modTime = info.ModTime()
	return nil
}

// startWatch installs (once) an fsnotify watcher on the directory
// containing path, debouncing write events before triggering a reload.
func (e *cacheEntry) startWatch(path string, debounce time.Duration) {
	if e.watcher != nil {
		return
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("rulepack: could not start file watcher, falling back to mtime-only checks", "error", err)
		return
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		slog.Warn("rulepack: could not watch directory", "path", path, "error", err)
		_ = watcher.Close()
		return
	}
	e.watcher = watcher

	go func() {
		var timer *time.Timer
		for {
			select {
			case <-e.stopCh:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(path) {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(debounce, func() {
					e.mu.Lock()
					defer e.mu.Unlock()
					if err := e.reload(path); err != nil {
						slog.Error("rulepack: hot reload failed", "path", path, "error", err)
					}
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("rulepack: watcher error", "error", err)
			}
		}
	}()
}

// CheckMTime re-stats the file and reloads if mtime advanced. This is the
// polling complement to the fsnotify watch, invoked once per scan by the
// RulePack detect scanner so a reload is never missed between fs events.
func (l *Loader) CheckMTime() {
	abs, err := filepath.Abs(l.path)
	if err != nil {
		return
	}
	cacheMu.Lock()
	entry, exists := cache[abs]
	cacheMu.Unlock()
	if !exists {
		return
	}

	info, err := os.Stat(abs)
	if err != nil {
		return
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if info.ModTime().After(entry.modTime) {
		if err := entry.reload(abs); err != nil {
			slog.Error("rulepack: mtime-triggered reload failed", "path", abs, "error", err)
		}
	}
}
