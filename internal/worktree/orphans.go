package worktree

import (
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// OrphanWatcher supplements Gc's scan-based reconciliation (§4.4) with an
// fsnotify watch on agentsDir: a directory created there that Manager never
// tracked is flagged immediately instead of waiting for the next sweep.
// Gc remains authoritative — this only narrows the detection latency.
type OrphanWatcher struct {
	m       *Manager
	watcher *fsnotify.Watcher
	logger  *logrus.Logger

	mu     sync.Mutex
	hinted map[string]struct{}
}

// WatchForOrphans starts watching m's agents directory. Callers must call
// Close when done; a nil *OrphanWatcher is safe to Close.
func WatchForOrphans(m *Manager, logger *logrus.Logger) (*OrphanWatcher, error) {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(noopWriter{})
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(m.agentsDir); err != nil {
		_ = w.Close()
		return nil, err
	}

	ow := &OrphanWatcher{m: m, watcher: w, logger: logger, hinted: make(map[string]struct{})}
	go ow.run()
	return ow, nil
}

func (ow *OrphanWatcher) run() {
	for {
		select {
		case ev, ok := <-ow.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&fsnotify.Create == 0 {
				continue
			}
			id := filepath.Base(ev.Name)
			if ow.m.isTracked(id) {
				continue
			}
			ow.mu.Lock()
			ow.hinted[ev.Name] = struct{}{}
			ow.mu.Unlock()
			ow.logger.WithField("path", ev.Name).Debug("untracked directory appeared under agents/")
		case err, ok := <-ow.watcher.Errors:
			if !ok {
				return
			}
			ow.logger.WithError(err).Warn("orphan watcher error")
		}
	}
}

// Hints returns the paths flagged as possibly orphaned since the last Gc
// sweep cleared them, leaving out any whose directory name Manager now
// tracks. Safe to call on a nil *OrphanWatcher.
func (ow *OrphanWatcher) Hints() []string {
	if ow == nil {
		return nil
	}
	ow.mu.Lock()
	defer ow.mu.Unlock()
	out := make([]string, 0, len(ow.hinted))
	for p := range ow.hinted {
		if ow.m.isTracked(filepath.Base(p)) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Clear drops every hint a Gc sweep has now accounted for. Safe to call on a
// nil *OrphanWatcher.
func (ow *OrphanWatcher) Clear() {
	if ow == nil {
		return
	}
	ow.mu.Lock()
	ow.hinted = make(map[string]struct{})
	ow.mu.Unlock()
}

func (ow *OrphanWatcher) Close() error {
	if ow == nil {
		return nil
	}
	return ow.watcher.Close()
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
