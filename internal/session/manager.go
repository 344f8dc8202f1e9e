// Package session implements the session multiplexer: a pool of interactive
// pseudo-terminal sessions with non-blocking readers, per-session
// scrollback, status inference, input injection, resize propagation, and
// multi-consumer fan-out of output bytes (§4.2, §4.3).
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/rembrandt-dev/rembrandt/internal/eventbus"
	"github.com/rembrandt-dev/rembrandt/internal/groutine"
	"github.com/sirupsen/logrus"
)

// WorktreeProvisioner is the narrow slice of the worktree manager that
// session spawning needs: allocate an isolated checkout for a new session
// id and report where it landed. Kept as an interface so this package never
// imports internal/worktree directly (the dependency runs the other way:
// the manager is told about a provisioner, not wired to a concrete type).
type WorktreeProvisioner interface {
	Create(id, baseBranch string) (path string, branch string, err error)
}

// LifecycleEvent is broadcast on the Manager's event Topic when a session is
// spawned, when it enters a terminal status, and when it is killed.
type LifecycleEvent struct {
	SessionID string
	Status    Status
	At        time.Time
}

// Options configures a Manager. Zero values fall back to the orchestrator's
// documented defaults (§4.3, §9).
type Options struct {
	PollInterval       time.Duration
	ReapGrace          time.Duration
	KillGrace          time.Duration
	ScrollbackCapacity int
	LogDir             string
	Worktrees          WorktreeProvisioner
	Logger             *logrus.Logger
}

// Manager owns the mapping from session id to session and runs the polling
// loop that keeps scrollbacks current (§4.3). Sessions never hold a
// back-pointer to their Manager; every cross-session operation (broadcast,
// reap) is initiated here (§9).
type Manager struct {
	registry *hashmap.Map[string, *process]

	pollInterval time.Duration
	reapGrace    time.Duration
	killGrace    time.Duration
	scrollback   int
	logDir       string
	worktrees    WorktreeProvisioner
	logger       *logrus.Logger

	fan    *fanOut
	events *eventbus.Topic[LifecycleEvent]

	reapAt map[string]time.Time // session id -> time it became terminal
	stop   chan struct{}
	done   chan struct{}
}

// New creates a Manager and starts its polling loop.
func New(opts Options) *Manager {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 50 * time.Millisecond
	}
	if opts.ReapGrace <= 0 {
		opts.ReapGrace = 3 * time.Second
	}
	if opts.KillGrace <= 0 {
		opts.KillGrace = 2 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}

	m := &Manager{
		registry:     hashmap.New[string, *process](),
		pollInterval: opts.PollInterval,
		reapGrace:    opts.ReapGrace,
		killGrace:    opts.KillGrace,
		scrollback:   opts.ScrollbackCapacity,
		logDir:       opts.LogDir,
		worktrees:    opts.Worktrees,
		logger:       opts.Logger,
		fan:          newFanOut(),
		events:       eventbus.New[LifecycleEvent](256),
		reapAt:       make(map[string]time.Time),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}

	groutine.Go(nil, "session-poll-loop", func(ctx context.Context) {
		m.pollLoop()
	})
	return m
}

// Events exposes the lifecycle event bus for presentation-layer subscribers.
func (m *Manager) Events() *eventbus.Topic[LifecycleEvent] { return m.events }

// Subscribe registers a consumer for every session's raw output bytes.
func (m *Manager) Subscribe(c OutputConsumer) int { return m.fan.subscribe(c) }

// Unsubscribe removes a previously registered output consumer.
func (m *Manager) Unsubscribe(id int) { m.fan.unsubscribe(id) }

// Spawn allocates a new session per §4.3. When spec.Isolated is set and a
// WorktreeProvisioner was configured, a branch/checkout is created first and
// spec.WorkDir/spec.Branch are rewritten to point at it.
func (m *Manager) Spawn(spec SpawnSpec) (string, error) {
	if spec.Isolated && m.worktrees == nil {
		return "", &SpawnError{AgentLabel: spec.AgentLabel, Err: fmt.Errorf("isolated spawn requested but no worktree provisioner configured")}
	}

	id, err := m.allocateID(spec.AgentLabel)
	if err != nil {
		return "", &SpawnError{AgentLabel: spec.AgentLabel, Err: err}
	}

	if spec.Isolated {
		path, branch, err := m.worktrees.Create(id, spec.BaseBranch)
		if err != nil {
			return "", &SpawnError{AgentLabel: spec.AgentLabel, Err: err}
		}
		spec.WorkDir = path
		spec.Branch = branch
	}

	var logPath string
	if m.logDir != "" {
		if err := os.MkdirAll(m.logDir, 0o755); err == nil {
			logPath = filepath.Join(m.logDir, id+".log")
		}
	}

	p, err := spawnProcess(id, spec, m.scrollback, logPath, m.logger)
	if err != nil {
		return "", err
	}

	m.registry.Set(id, p)
	m.events.Send(LifecycleEvent{SessionID: id, Status: Running(), At: time.Now()})
	return id, nil
}

// allocateID produces "{label}-{4hex}", retrying on collision (§4.3).
func (m *Manager) allocateID(label string) (string, error) {
	for attempt := 0; attempt < 64; attempt++ {
		candidate := allocateCandidateID(label)
		if _, exists := m.registry.Get(candidate); !exists {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("could not allocate a unique session id for %q after 64 attempts", label)
}

func allocateCandidateID(label string) string {
	var b [2]byte
	_, _ = rand.Read(b[:])
	return fmt.Sprintf("%s-%s", label, hex.EncodeToString(b[:]))
}

// List returns a lightweight projection of every currently tracked session.
// Order is stable but unspecified, per §4.3.
func (m *Manager) List() []Info {
	var out []Info
	m.registry.Range(func(_ string, p *process) bool {
		out = append(out, p.info())
		return true
	})
	return out
}

// Get returns one session's projection, or *NotFoundError.
func (m *Manager) Get(id string) (Info, error) {
	p, ok := m.registry.Get(id)
	if !ok {
		return Info{}, &NotFoundError{SessionID: id}
	}
	return p.info(), nil
}

// Write sends bytes to a session's stdin.
func (m *Manager) Write(id string, b []byte) error {
	p, ok := m.registry.Get(id)
	if !ok {
		return &NotFoundError{SessionID: id}
	}
	return p.write(b)
}

// Nudge writes a single newline, the documented convention for "poke the
// agent" (§4.3).
func (m *Manager) Nudge(id string) error {
	return m.Write(id, []byte("\n"))
}

// Resize sets a session's window size and sends SIGWINCH to the session
// child's process group.
func (m *Manager) Resize(id string, cols, rows uint16) error {
	p, ok := m.registry.Get(id)
	if !ok {
		return &NotFoundError{SessionID: id}
	}
	return p.resize(cols, rows)
}

// Kill delivers terminate, waits bounded time, escalates to kill, and
// removes the session entry immediately once reaped. Idempotent (§8): killing
// an id that is already gone is a no-op success, not a NotFoundError, so
// callers can retry a kill without checking whether it already landed.
func (m *Manager) Kill(id string) error {
	p, ok := m.registry.Get(id)
	if !ok {
		return nil
	}
	p.terminate(m.killGrace)
	p.close()
	m.registry.Del(id)
	delete(m.reapAt, id)
	m.events.Send(LifecycleEvent{SessionID: id, Status: p.getStatus(), At: time.Now()})
	return nil
}

// Snapshot delegates to a session's scrollback ring.
func (m *Manager) Snapshot(id string, offset int64) ([]byte, int64, error) {
	p, ok := m.registry.Get(id)
	if !ok {
		return nil, 0, &NotFoundError{SessionID: id}
	}
	data, newOffset := p.snapshot(offset)
	return data, newOffset, nil
}

// Broadcast writes the same bytes to every session matching filter (§4.3).
func (m *Manager) Broadcast(b []byte, filter Filter) int {
	if filter == nil {
		filter = FilterAll()
	}
	written := 0
	m.registry.Range(func(_ string, p *process) bool {
		if filter(p.info()) {
			if err := p.write(b); err == nil {
				written++
			}
		}
		return true
	})
	return written
}

// Close stops the polling loop and every session's underlying pty. Intended
// for orchestrator shutdown, not for killing individual agents.
func (m *Manager) Close() {
	close(m.stop)
	<-m.done
	m.fan.close()
	m.registry.Range(func(_ string, p *process) bool {
		p.close()
		return true
	})
}

// pollLoop runs on a fixed tick (≤ 50ms): for every running session it reads
// whatever is available, refreshes status, fans out the bytes read, and
// reaps sessions whose grace period has elapsed (§4.3, §5).
func (m *Manager) pollLoop() {
	defer close(m.done)
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.tick()
		}
	}
}

func (m *Manager) tick() {
	now := time.Now()
	var toReap []string

	m.registry.Range(func(id string, p *process) bool {
		wasTerminal := p.getStatus().Terminal()
		if !wasTerminal {
			n := p.readAvailable()
			if n > 0 {
				data, _ := p.snapshot(p.scrollback.TotalWritten() - int64(n))
				m.fan.publish(id, data)
			}
		}

		status := p.refreshStatus()
		if status.Terminal() {
			if _, tracked := m.reapAt[id]; !tracked {
				m.reapAt[id] = now.Add(m.reapGrace)
				m.events.Send(LifecycleEvent{SessionID: id, Status: status, At: now})
			} else if now.After(m.reapAt[id]) {
				toReap = append(toReap, id)
			}
		}
		return true
	})

	for _, id := range toReap {
		if p, ok := m.registry.Get(id); ok {
			p.close()
		}
		m.registry.Del(id)
		delete(m.reapAt, id)
	}
}
