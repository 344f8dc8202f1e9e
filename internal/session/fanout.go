package session

import (
	"sync"
	"sync/atomic"

	"github.com/hedzr/go-ringbuf/v2/mpmc"
)

// outputChunk is one poll tick's worth of bytes read from a session's pty,
// tagged with the session id so a single dispatcher can serve every session.
type outputChunk struct {
	sessionID string
	data      []byte
}

// OutputConsumer receives fanned-out output chunks. Implementations must not
// retain data beyond the call; copy if needed.
type OutputConsumer func(sessionID string, data []byte)

// fanOut buffers output chunks produced by the polling loop and dispatches
// them to every OutputConsumer registered through Manager.Subscribe without
// making the poll tick wait on a slow subscriber. It
// mirrors internal/lua's output-collector shape — an ingest buffer drained
// by one dispatcher goroutine — generalized from discrete Lua records to
// raw session byte chunks.
type fanOut struct {
	buffer mpmc.RichOverlappedRingBuffer[outputChunk]

	mu        sync.RWMutex
	consumers map[int]OutputConsumer
	nextID    int

	overwritten uint64

	notify chan struct{}
	stop   chan struct{}
	done   chan struct{}
}

const fanOutCapacity = 4096

func newFanOut() *fanOut {
	f := &fanOut{
		buffer:    mpmc.NewOverlappedRingBuffer[outputChunk](fanOutCapacity),
		consumers: make(map[int]OutputConsumer),
		notify:    make(chan struct{}, 1),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go f.dispatchLoop()
	return f
}

// publish enqueues a chunk. Never blocks: the ring drops the oldest buffered
// chunk if full, matching the overwrite-oldest discipline used across the
// orchestrator's other fan-out primitives.
func (f *fanOut) publish(sessionID string, data []byte) {
	cp := make([]byte, len(data))
	copy(cp, data)
	overwrites, err := f.buffer.EnqueueM(outputChunk{sessionID: sessionID, data: cp})
	if err != nil {
		return
	}
	if overwrites > 0 {
		atomic.AddUint64(&f.overwritten, uint64(overwrites))
	}
	select {
	case f.notify <- struct{}{}:
	default:
	}
}

// subscribe registers a consumer and returns an id for unsubscribe.
func (f *fanOut) subscribe(c OutputConsumer) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.consumers[id] = c
	return id
}

func (f *fanOut) unsubscribe(id int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.consumers, id)
}

func (f *fanOut) dispatchLoop() {
	defer close(f.done)
	for {
		select {
		case <-f.stop:
			return
		case <-f.notify:
			for !f.buffer.IsEmpty() {
				chunk, err := f.buffer.Dequeue()
				if err != nil {
					break
				}
				f.mu.RLock()
				for _, c := range f.consumers {
					c(chunk.sessionID, chunk.data)
				}
				f.mu.RUnlock()
			}
		}
	}
}

// overwrittenCount returns how many chunks were dropped under back-pressure.
func (f *fanOut) overwrittenCount() uint64 {
	return atomic.LoadUint64(&f.overwritten)
}

func (f *fanOut) close() {
	close(f.stop)
	<-f.done
}
