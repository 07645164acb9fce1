package http2

import (
	"sync"
)

// backlogEntry is [reservationRemaining, allocationGranted] for one
// stream waiting on connection-level flow-control credit.
type backlogEntry struct {
	remaining int64
	granted   int64
}

// FlowController is the connection send-window and the backlog of
// streams waiting for connection-level credit, released to them in
// weighted proportion along the priority tree. Each stream's own
// send-window lives on the Stream and is only changed here by
// ApplyInitialWindowDelta; ReserveWindowSize checks the connection
// send-window alone and does not consult the stream's window.
//
// The WINDOW_UPDATE frame type only carries bytes on the wire; the
// backlog and weighted allocation live here instead, guarded by one
// mutex the same way the rest of the connection's shared state is.
type FlowController struct {
	mu sync.Mutex

	connSendWindow int64
	backlog        map[*Stream]*backlogEntry
	backlogSize    int64

	streams *StreamTable
	root    *Stream // nil; the connection itself is the tree root
}

// NewFlowController creates a controller with the given initial
// connection send-window (initial 65535 per RFC 7540 §6.9.2).
func NewFlowController(initialConnWindow int64, streams *StreamTable) *FlowController {
	return &FlowController{
		connSendWindow: initialConnWindow,
		backlog:        make(map[*Stream]*backlogEntry),
		streams:        streams,
	}
}

// IncrementConnectionWindow applies a WINDOW_UPDATE received for stream 0.
// When the window transitions from <=0 to >0, it runs releaseBackLog.
func (fc *FlowController) IncrementConnectionWindow(increment int64) error {
	fc.mu.Lock()

	before := fc.connSendWindow
	next := before + increment
	if next > maxWindowSize {
		fc.mu.Unlock()
		return NewConnectionError(FlowControlError, "connection send-window overflow")
	}
	fc.connSendWindow = next

	var toNotify []*Stream
	if before <= 0 && next > 0 {
		toNotify = fc.releaseBackLogLocked(next)
	}
	fc.mu.Unlock()

	fc.notify(toNotify)
	return nil
}

// ApplyInitialWindowDelta fans a SETTINGS INITIAL_WINDOW_SIZE change out
// to every existing stream: each stream's send-window changes by delta;
// a stream whose window would overflow is moved to CLOSED while the
// connection survives. No RST_STREAM frame is sent from here.
func (fc *FlowController) ApplyInitialWindowDelta(delta int64) {
	for _, s := range fc.streams.All() {
		if err := s.IncrementWindow(delta); err != nil {
			s.SetState(StreamStateClosed)
		}
	}
}

// ReserveWindowSize returns a positive number of bytes the caller may
// now send, looping internally (a Go channel wait standing in for a
// condition variable) until credit is granted or the stream becomes
// unwritable.
func (fc *FlowController) ReserveWindowSize(stream *Stream, requested int64) (int64, error) {
	for {
		granted, wait, err := fc.tryReserve(stream, requested)
		if err != nil {
			return 0, err
		}
		if granted > 0 {
			return granted, nil
		}
		<-wait
	}
}

// tryReserve runs one iteration of the reservation loop under the
// connection lock, returning either a grant, or a wake channel to block
// on if none was grantable yet.
func (fc *FlowController) tryReserve(stream *Stream, requested int64) (granted int64, wait <-chan struct{}, err error) {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	if !stream.CanWrite() {
		return 0, nil, NewStreamError(stream.ID(), StreamClosedError, "stream is not writable")
	}

	w := fc.connSendWindow

	if w < 1 || fc.backlogSize > 0 {
		e, ok := fc.backlog[stream]
		switch {
		case !ok:
			fc.backlog[stream] = &backlogEntry{remaining: requested}
			fc.backlogSize += requested
			fc.ensureAncestorsLocked(stream)
		case e.granted > 0:
			granted = e.granted
			fc.connSendWindow -= granted
			if e.remaining == 0 {
				delete(fc.backlog, stream)
			} else {
				e.granted = 0
			}
		}
	} else if w < requested {
		granted = w
		fc.connSendWindow -= granted
	} else {
		granted = requested
		fc.connSendWindow -= granted
	}

	if granted == 0 {
		return 0, stream.onDataAvailable, nil
	}
	return granted, nil, nil
}

// ensureAncestorsLocked makes sure every ancestor up to the root carries
// a zeroed backlog entry, so the weighted-tree walk can reach the
// backlogged leaf.
func (fc *FlowController) ensureAncestorsLocked(stream *Stream) {
	for p := stream.Parent(); p != nil; p = p.Parent() {
		if _, ok := fc.backlog[p]; !ok {
			fc.backlog[p] = &backlogEntry{}
		}
	}
}

// releaseBackLog is called with the connection lock held, when
// connSendWindow transitions from <=0 to newAvailable>0.
func (fc *FlowController) releaseBackLogLocked(newAvailable int64) []*Stream {
	if fc.backlogSize <= newAvailable {
		var notify []*Stream
		for s, e := range fc.backlog {
			e.granted += e.remaining
			e.remaining = 0
			notify = append(notify, s)
		}
		fc.backlog = make(map[*Stream]*backlogEntry)
		fc.backlogSize = 0
		return notify
	}

	fc.allocate(fc.root, newAvailable)

	var notify []*Stream
	for s, e := range fc.backlog {
		if e.granted > 0 {
			notify = append(notify, s)
		}
	}
	return notify
}

// allocate recursively distributes pool bytes of credit across node's
// backlogged descendants in proportion to their stream weights.
// node==nil means the connection root.
func (fc *FlowController) allocate(node *Stream, pool int64) int64 {
	e, ok := fc.backlog[node]
	if ok {
		if e.remaining >= pool {
			e.remaining -= pool
			e.granted += pool
			fc.backlogSize -= pool
			return 0
		}
		moved := e.remaining
		e.granted += moved
		e.remaining = 0
		fc.backlogSize -= moved
		pool -= moved
	}

	children := fc.childrenOf(node)
	var remaining []*Stream
	for _, c := range children {
		if _, inBacklog := fc.backlog[c]; inBacklog {
			remaining = append(remaining, c)
		}
	}

	if len(remaining) == 0 {
		if ok {
			delete(fc.backlog, node)
		}
		return pool
	}

	for pool > 0 && len(remaining) > 0 {
		var totalWeight int64
		for _, r := range remaining {
			totalWeight += int64(weightOf(r))
		}
		if totalWeight == 0 {
			totalWeight = 1
		}

		next := remaining[:0]
		distributed := int64(0)

		for _, r := range remaining {
			share := pool * int64(weightOf(r)) / totalWeight
			if share == 0 {
				share = 1
			}
			leftover := fc.allocate(r, share)
			distributed += share - leftover
			if leftover == 0 {
				next = append(next, r)
			}
		}

		pool -= distributed
		remaining = next

		// Guard against a degenerate loop (every child fully satisfied but
		// pool still > 0 due to integer share==1 rounding): break once no
		// progress is made.
		if distributed == 0 {
			break
		}
	}

	return pool
}

func weightOf(s *Stream) uint8 {
	if s == nil {
		return 0
	}
	return s.Weight()
}

func (fc *FlowController) childrenOf(node *Stream) []*Stream {
	if node == nil {
		// Root's children are every stream whose parent is nil (the
		// connection) — the StreamTable is the source of truth here since
		// the root itself has no Stream to hold a children map.
		var out []*Stream
		for _, s := range fc.streams.All() {
			if s.Parent() == nil {
				out = append(out, s)
			}
		}
		return out
	}
	return node.Children()
}

func (fc *FlowController) notify(streams []*Stream) {
	for _, s := range streams {
		select {
		case s.onDataAvailable <- struct{}{}:
		default:
		}
	}
}

// ConnectionSendWindow returns the current connection-level send-window.
func (fc *FlowController) ConnectionSendWindow() int64 {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.connSendWindow
}

// BacklogSize returns the sum of unreleased reservations.
func (fc *FlowController) BacklogSize() int64 {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.backlogSize
}
