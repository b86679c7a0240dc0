package runtime

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Snapshot is an immutable view of the runtime tree. All lookups are
// default-on-miss; a snapshot never reports an error.
type Snapshot interface {
	// Get returns the raw value for key, or "" when absent.
	Get(key string) string

	// GetInteger returns the integer value for key, or defaultValue when
	// the key is absent or not an integer.
	GetInteger(key string, defaultValue uint64) uint64

	// FeatureEnabled draws against the rollout percentage stored under key
	// (0-100), falling back to defaultPercentage.
	FeatureEnabled(key string, defaultPercentage uint64) bool
}

// Loader yields the current snapshot. Implementations may swap snapshots at
// any time; callers grab one snapshot per decision.
type Loader interface {
	Snapshot() Snapshot
}

// snapshotImpl is a flat key/value map plus the random source used for
// percentage draws.
type snapshotImpl struct {
	values map[string]string
	random RandomGenerator
}

func (s *snapshotImpl) Get(key string) string { return s.values[key] }

func (s *snapshotImpl) GetInteger(key string, defaultValue uint64) uint64 {
	raw, ok := s.values[key]
	if !ok {
		return defaultValue
	}
	parsed, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func (s *snapshotImpl) FeatureEnabled(key string, defaultPercentage uint64) bool {
	pct := min(s.GetInteger(key, defaultPercentage), 100)
	return s.random.Random()%100 < pct
}

// NullLoader serves defaults only.
type NullLoader struct {
	snapshot *snapshotImpl
}

// NewNullLoader returns a loader whose snapshot contains no keys.
func NewNullLoader(random RandomGenerator) *NullLoader {
	return &NullLoader{snapshot: &snapshotImpl{values: map[string]string{}, random: random}}
}

// Snapshot implements Loader.
func (l *NullLoader) Snapshot() Snapshot { return l.snapshot }

// DiskLoader reads the runtime tree under a root directory and reloads it
// when the filesystem changes. Snapshot swaps are atomic; in-flight readers
// keep the snapshot they already hold.
type DiskLoader struct {
	root    string
	random  RandomGenerator
	logger  *slog.Logger
	watcher *fsnotify.Watcher
	current atomic.Pointer[snapshotImpl]
	done    chan struct{}
}

// NewDiskLoader loads the tree under root and starts watching it.
func NewDiskLoader(root string, random RandomGenerator, logger *slog.Logger) (*DiskLoader, error) {
	l := &DiskLoader{
		root:   root,
		random: random,
		logger: logger,
		done:   make(chan struct{}),
	}
	if err := l.reload(); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("runtime: watcher: %w", err)
	}
	l.watcher = watcher
	if err := l.watchTree(); err != nil {
		watcher.Close()
		return nil, err
	}
	go l.watchLoop()
	return l, nil
}

// Snapshot implements Loader.
func (l *DiskLoader) Snapshot() Snapshot { return l.current.Load() }

// Close stops the watcher goroutine.
func (l *DiskLoader) Close() error {
	close(l.done)
	return l.watcher.Close()
}

func (l *DiskLoader) reload() error {
	values := make(map[string]string)
	err := filepath.WalkDir(l.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(l.root, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		key := strings.ReplaceAll(filepath.ToSlash(rel), "/", ".")
		values[key] = strings.TrimSpace(string(data))
		return nil
	})
	if err != nil {
		return fmt.Errorf("runtime: load %s: %w", l.root, err)
	}
	l.current.Store(&snapshotImpl{values: values, random: l.random})
	l.logger.Debug("runtime snapshot loaded", "root", l.root, "keys", len(values))
	return nil
}

func (l *DiskLoader) watchTree() error {
	return filepath.WalkDir(l.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return l.watcher.Add(path)
		}
		return nil
	})
}

// watchLoop debounces bursts of filesystem events into one reload.
func (l *DiskLoader) watchLoop() {
	var debounce *time.Timer
	for {
		select {
		case <-l.done:
			return
		case _, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(50*time.Millisecond, func() {
				if err := l.reload(); err != nil {
					l.logger.Warn("runtime reload failed", "err", err)
				}
				// New directories need watches of their own.
				if err := l.watchTree(); err != nil {
					l.logger.Warn("runtime watch refresh failed", "err", err)
				}
			})
		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.logger.Warn("runtime watcher error", "err", err)
		}
	}
}
