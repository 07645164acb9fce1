package http2

import "sync"

// StreamProcessor is the unit of work a Dispatcher hands to the worker
// pool: everything needed to run the application handler for one
// completed request and write its response.
type StreamProcessor func()

type queuedStream struct {
	streamID uint32
	proc     StreamProcessor
}

// Dispatcher hands completed request headers to a worker pool with an
// optional concurrency cap and FIFO overflow queue, rather than spawning
// one goroutine per stream unconditionally, using the same
// mutex+channel idiom the rest of this package coordinates goroutines
// with (the writer's enqueue channel, the ping manager's sample window).
type Dispatcher struct {
	mu sync.Mutex

	cap      int // 0 means uncapped: submit directly
	running  int
	overflow []queuedStream
	closed   bool
}

// NewDispatcher builds a dispatcher. If maxConcurrentStreamExecution >=
// maxConcurrentStreams, the cap is disabled (every processor runs
// immediately), matching the "no cap" branch.
func NewDispatcher(maxConcurrentStreamExecution, maxConcurrentStreams uint32) *Dispatcher {
	d := &Dispatcher{}
	if maxConcurrentStreamExecution < maxConcurrentStreams {
		d.cap = int(maxConcurrentStreamExecution)
	}
	return d
}

// Submit runs proc on the worker pool now if under the cap (or
// uncapped), otherwise enqueues it for later under streamID, so a drain
// can still identify which stream to answer if proc never runs.
func (d *Dispatcher) Submit(streamID uint32, proc StreamProcessor) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	if d.cap == 0 || d.running < d.cap {
		d.running++
		d.mu.Unlock()
		go d.run(proc)
		return
	}
	d.overflow = append(d.overflow, queuedStream{streamID: streamID, proc: proc})
	d.mu.Unlock()
}

func (d *Dispatcher) run(proc StreamProcessor) {
	defer d.complete()
	proc()
}

// complete decrements the running count and, if there's room and work
// queued, dequeues and resubmits the next processor.
func (d *Dispatcher) complete() {
	d.mu.Lock()
	d.running--

	var next *queuedStream
	if !d.closed && len(d.overflow) > 0 && (d.cap == 0 || d.running < d.cap) {
		next = &d.overflow[0]
		d.overflow = d.overflow[1:]
		d.running++
	}
	d.mu.Unlock()

	if next != nil {
		go d.run(next.proc)
	}
}

// Drain stops accepting further queueing growth and returns the stream
// id of every processor still sitting in the overflow queue, so the
// caller (the connection, on pause/close) can answer each with
// REFUSED_STREAM instead of silently discarding work that will never
// run.
func (d *Dispatcher) Drain() []uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	ids := make([]uint32, len(d.overflow))
	for i, q := range d.overflow {
		ids[i] = q.streamID
	}
	d.overflow = nil
	return ids
}
