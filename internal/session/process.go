package session

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/rembrandt-dev/rembrandt/internal/ptyio"
	"github.com/rembrandt-dev/rembrandt/internal/ring"
	"github.com/sirupsen/logrus"
)

// process adapts one child running under a pseudo-terminal into the
// structured object described by §4.2. It is exclusively owned by a
// Manager; nothing outside this package ever reaches into a process
// directly, which keeps "no back-pointer, no held lock across a blocking
// call" (§9) mechanical rather than a convention someone can violate.
type process struct {
	id      string
	spec    SpawnSpec
	created time.Time

	mu     sync.Mutex // guards everything below, held briefly per §5/§9
	pty    ptyio.PTY
	cmd    *exec.Cmd
	status Status
	cols   uint16
	rows   uint16

	scrollback *ring.Ring
	logFile    *os.File

	logger *logrus.Logger
}

const defaultReadChunk = 32 * 1024

// spawnProcess forks command into a fresh pty pair and returns the
// structured session wrapper. Fails with *SpawnError if the binary cannot
// be found, the pty cannot be allocated, or workdir is missing.
func spawnProcess(id string, spec SpawnSpec, scrollbackCap int, logPath string, logger *logrus.Logger) (*process, error) {
	if len(spec.Command) == 0 {
		return nil, &SpawnError{AgentLabel: spec.AgentLabel, Err: errors.New("empty command")}
	}
	if spec.WorkDir != "" {
		if fi, err := os.Stat(spec.WorkDir); err != nil || !fi.IsDir() {
			return nil, &SpawnError{AgentLabel: spec.AgentLabel, Err: fmt.Errorf("working directory %s missing", spec.WorkDir)}
		}
	}

	cmd := exec.Command(spec.Command[0], spec.Command[1:]...)
	cmd.Dir = spec.WorkDir
	if len(spec.Env) > 0 {
		cmd.Env = spec.Env
	} else {
		cmd.Env = os.Environ()
	}

	cols, rows := spec.Cols, spec.Rows
	if cols == 0 {
		cols = 80
	}
	if rows == 0 {
		rows = 24
	}

	master, err := ptyio.StartCommand(cmd, cols, rows, &ptyio.PTYOptions{
		ReadCap:  defaultReadChunk * 4,
		WriteCap: defaultReadChunk,
		Logger:   logger,
	})
	if err != nil {
		return nil, &SpawnError{AgentLabel: spec.AgentLabel, Err: err}
	}

	var logFile *os.File
	if logPath != "" {
		logFile, err = os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			master.Close()
			_ = cmd.Process.Kill()
			return nil, &SpawnError{AgentLabel: spec.AgentLabel, Err: fmt.Errorf("open log file: %w", err)}
		}
	}

	return &process{
		id:         id,
		spec:       spec,
		created:    time.Now(),
		pty:        master,
		cmd:        cmd,
		status:     Running(),
		cols:       cols,
		rows:       rows,
		scrollback: ring.New(scrollbackCap),
		logFile:    logFile,
		logger:     logger,
	}, nil
}

// readAvailable is the non-blocking drain from §4.2: pull whatever the
// master currently has buffered into the scrollback ring (and the durable
// log file), returning the number of bytes moved. Zero is normal. Any
// unexpected read error transitions status to Failed.
func (p *process) readAvailable() int {
	buf := make([]byte, defaultReadChunk)
	total := 0
	for {
		n, err := p.pty.Read(buf)
		if n > 0 {
			total += n
			p.mu.Lock()
			p.scrollback.Append(buf[:n])
			if p.logFile != nil {
				_, _ = p.logFile.Write(buf[:n])
			}
			p.mu.Unlock()
		}
		if err != nil {
			if errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EWOULDBLOCK) {
				return total
			}
			if errors.Is(err, os.ErrClosed) {
				return total
			}
			p.mu.Lock()
			p.status = Failed(err.Error())
			p.mu.Unlock()
			return total
		}
		if n == 0 {
			return total
		}
	}
}

// refreshStatus polls the child for exit without blocking. If the child has
// exited, it is reaped and the cached status transitions to Exited.
func (p *process) refreshStatus() Status {
	p.mu.Lock()
	if p.status.Terminal() {
		st := p.status
		p.mu.Unlock()
		return st
	}
	p.mu.Unlock()

	if p.cmd.Process == nil {
		return p.getStatus()
	}

	var ws syscall.WaitStatus
	pid, err := syscall.Wait4(p.cmd.Process.Pid, &ws, syscall.WNOHANG, nil)
	if err != nil || pid == 0 {
		return p.getStatus()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case ws.Exited():
		p.status = Exited(ws.ExitStatus())
	case ws.Signaled():
		p.status = Failed(fmt.Sprintf("killed by signal %s", ws.Signal()))
	default:
		p.status = Failed("child stopped unexpectedly")
	}
	return p.status
}

func (p *process) getStatus() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// write sends bytes to the child's stdin. Fails with *WriteError once the
// child has exited.
func (p *process) write(b []byte) error {
	if p.getStatus().Terminal() {
		return &WriteError{SessionID: p.id, Err: errors.New("child has exited")}
	}
	off := 0
	for off < len(b) {
		n, err := p.pty.Write(b[off:])
		if err != nil {
			return &WriteError{SessionID: p.id, Err: err}
		}
		if n == 0 {
			break // ptyio's write buffer is full; caller may retry on next tick
		}
		off += n
	}
	return nil
}

// resize sets the window size and delivers SIGWINCH to the child's process
// group (via signal) so full-screen programs redraw (§4.2).
func (p *process) resize(cols, rows uint16) error {
	if err := p.pty.Resize(cols, rows); err != nil {
		return err
	}
	p.mu.Lock()
	p.cols, p.rows = cols, rows
	p.mu.Unlock()
	return p.signal(syscall.SIGWINCH)
}

// signal delivers sig to the child's process group (the child is its own
// session leader per StartCommand's Setsid, so pid == pgid).
func (p *process) signal(sig syscall.Signal) error {
	if p.cmd.Process == nil {
		return errors.New("process not started")
	}
	if err := syscall.Kill(-p.cmd.Process.Pid, sig); err != nil {
		if errors.Is(err, syscall.ESRCH) {
			return nil // already gone
		}
		return err
	}
	return nil
}

// snapshot delegates to the scrollback ring (§4.2).
func (p *process) snapshot(offset int64) ([]byte, int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scrollback.SnapshotSince(offset)
}

// terminate sends SIGTERM, waits grace, then escalates to SIGKILL. Idempotent
// per §8's round-trip law.
func (p *process) terminate(grace time.Duration) {
	if p.getStatus().Terminal() {
		return
	}
	_ = p.signal(syscall.SIGTERM)

	deadline := time.After(grace)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-deadline:
			_ = p.signal(syscall.SIGKILL)
			return
		case <-ticker.C:
			if p.refreshStatus().Terminal() {
				return
			}
		}
	}
}

func (p *process) close() {
	p.mu.Lock()
	logFile := p.logFile
	p.logFile = nil
	p.mu.Unlock()

	if p.pty != nil {
		_ = p.pty.Close()
	}
	if logFile != nil {
		_ = logFile.Close()
	}
}

func (p *process) info() Info {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Info{
		ID:        p.id,
		AgentID:   p.spec.AgentLabel,
		Command:   p.spec.Command,
		WorkDir:   p.spec.WorkDir,
		Status:    p.status,
		CreatedAt: p.created,
		Branch:    p.spec.Branch,
		Isolated:  p.spec.Isolated,
	}
}
