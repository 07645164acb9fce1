package http2

import (
	"sync"
)

// StreamState is the RFC 7540 §5.1 stream state, plus CLOSED_FINAL for
// streams that only ever existed as a PRIORITY-frame node in the tree.
type StreamState int8

const (
	StreamStateIdle StreamState = iota
	StreamStateReservedLocal
	StreamStateReservedRemote
	StreamStateOpen
	StreamStateHalfClosedLocal
	StreamStateHalfClosedRemote
	StreamStateClosed
	StreamStateClosedFinal
)

func (ss StreamState) String() string {
	switch ss {
	case StreamStateIdle:
		return "idle"
	case StreamStateReservedLocal:
		return "reserved_local"
	case StreamStateReservedRemote:
		return "reserved_remote"
	case StreamStateOpen:
		return "open"
	case StreamStateHalfClosedLocal:
		return "half_closed_local"
	case StreamStateHalfClosedRemote:
		return "half_closed_remote"
	case StreamStateClosed:
		return "closed"
	case StreamStateClosedFinal:
		return "closed_final"
	}
	return "unknown"
}

// DefaultWeight is the weight a stream is given absent an explicit
// PRIORITY frame or HEADERS priority fields (RFC 7540 §5.3.2).
const DefaultWeight = 16

// Stream is a single HTTP/2 stream: its RFC 5.1 state, its place in the
// weighted priority tree, and the flow-control/data-buffering state the
// reader loop and dispatched handler both touch.
//
// Grounded on the stream.go (id/state/window) and streams.go
// (the sorted-slice StreamTable index), generalized with the priority
// tree, buffering, and lifecycle flags RFC 7540 requires.
type Stream struct {
	mu sync.Mutex

	id     uint32
	state  StreamState
	weight uint8

	parent   *Stream // nil means the connection (tree root)
	children map[uint32]*Stream

	sendWindow int64 // signed, may go negative after a SETTINGS shrink

	input           []byte
	onDataAvailable chan struct{}

	// headerBuf accumulates a HEADERS frame's raw block across any
	// CONTINUATION frames that follow before END_HEADERS (RFC 7540 §6.10).
	headerBuf []byte

	sentEndOfStream     bool
	receivedEndOfStream bool

	// origType records which frame created the stream: HEADERS (a real
	// request), PRIORITY (a placeholder tree node) or PUSH_PROMISE.
	// Pruning does not read it; it goes by stream state instead.
	origType FrameType

	ctx interface{} // request/response adapter state (e.g. *fasthttp.RequestCtx)
}

// NewStream creates an idle stream with the default weight, parented at
// the connection root.
func NewStream(id uint32) *Stream {
	return &Stream{
		id:              id,
		state:           StreamStateIdle,
		weight:          DefaultWeight,
		children:        make(map[uint32]*Stream),
		onDataAvailable: make(chan struct{}, 1),
	}
}

func (s *Stream) ID() uint32 { return s.id }

func (s *Stream) State() StreamState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Stream) SetState(state StreamState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Stream) Weight() uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.weight
}

func (s *Stream) SetWeight(w uint8) {
	if w == 0 {
		w = DefaultWeight
	}
	s.mu.Lock()
	s.weight = w
	s.mu.Unlock()
}

func (s *Stream) Parent() *Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.parent
}

// Reparent detaches s from its current parent and attaches it to
// newParent, honoring the "exclusive" PRIORITY semantic (RFC 7540):
// when exclusive is true, newParent's previous children all become
// children of s.
func (s *Stream) Reparent(newParent *Stream, exclusive bool) {
	s.mu.Lock()
	oldParent := s.parent
	s.mu.Unlock()

	if oldParent != nil {
		oldParent.removeChild(s.id)
	}

	if exclusive && newParent != nil {
		newParent.mu.Lock()
		stolen := newParent.children
		newParent.children = make(map[uint32]*Stream, len(stolen))
		newParent.mu.Unlock()

		for _, child := range stolen {
			child.mu.Lock()
			child.parent = s
			child.mu.Unlock()
			s.addChild(child)
		}
	}

	s.mu.Lock()
	s.parent = newParent
	s.mu.Unlock()

	if newParent != nil {
		newParent.addChild(s)
	}
}

func (s *Stream) addChild(child *Stream) {
	s.mu.Lock()
	if s.children == nil {
		s.children = make(map[uint32]*Stream)
	}
	s.children[child.id] = child
	s.mu.Unlock()
}

func (s *Stream) removeChild(id uint32) {
	s.mu.Lock()
	delete(s.children, id)
	s.mu.Unlock()
}

// Children returns a snapshot slice of the current children, used by the
// flow-controller's weighted-tree walk.
func (s *Stream) Children() []*Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Stream, 0, len(s.children))
	for _, c := range s.children {
		out = append(out, c)
	}
	return out
}

func (s *Stream) SendWindow() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sendWindow
}

func (s *Stream) SetSendWindow(w int64) {
	s.mu.Lock()
	s.sendWindow = w
	s.mu.Unlock()
}

// IncrementWindow applies a signed delta (positive from WINDOW_UPDATE,
// positive or negative from a SETTINGS INITIAL_WINDOW_SIZE fanout).
// It returns an error if the result would overflow 2^31-1.
func (s *Stream) IncrementWindow(delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.sendWindow + delta
	if next > maxWindowSize {
		return NewStreamError(s.id, FlowControlError, "stream send-window overflow")
	}
	s.sendWindow = next
	return nil
}

func (s *Stream) SentEndOfStream() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sentEndOfStream
}

func (s *Stream) SetSentEndOfStream(v bool) {
	s.mu.Lock()
	s.sentEndOfStream = v
	s.mu.Unlock()
}

func (s *Stream) ReceivedEndOfStream() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.receivedEndOfStream
}

func (s *Stream) SetReceivedEndOfStream(v bool) {
	s.mu.Lock()
	s.receivedEndOfStream = v
	s.mu.Unlock()
}

// CanWrite reports whether the server may still send DATA on s.
func (s *Stream) CanWrite() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StreamStateOpen, StreamStateHalfClosedRemote, StreamStateReservedLocal:
		return !s.sentEndOfStream
	}
	return false
}

// IsActive reports whether s still contributes to activeRemoteStreamCount.
func (s *Stream) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StreamStateClosed, StreamStateClosedFinal, StreamStateIdle:
		return false
	}
	return true
}

// AppendInput buffers inbound DATA payload for the dispatched handler to
// read, then signals onDataAvailable (non-blocking: a full channel means
// a signal is already pending).
func (s *Stream) AppendInput(b []byte) {
	s.mu.Lock()
	s.input = append(s.input, b...)
	s.mu.Unlock()

	select {
	case s.onDataAvailable <- struct{}{}:
	default:
	}
}

// DrainInput returns and clears the buffered input bytes.
func (s *Stream) DrainInput() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.input
	s.input = nil
	return b
}

func (s *Stream) OnDataAvailable() <-chan struct{} {
	return s.onDataAvailable
}

func (s *Stream) Context() interface{}       { return s.ctx }
func (s *Stream) SetContext(ctx interface{}) { s.ctx = ctx }

// AppendHeaderBlock accumulates a fragment of a HEADERS/CONTINUATION
// sequence.
func (s *Stream) AppendHeaderBlock(b []byte) {
	s.mu.Lock()
	s.headerBuf = append(s.headerBuf, b...)
	s.mu.Unlock()
}

// TakeHeaderBlock returns and clears the accumulated header block, ready
// for HPACK decoding once END_HEADERS has arrived.
func (s *Stream) TakeHeaderBlock() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.headerBuf
	s.headerBuf = nil
	return b
}
