package http2

import (
	"sort"
	"sync"
)

// StreamTable is the connection's streamId → Stream map, plus the
// admission/pruning bookkeeping RFC 7540 describes: id monotonicity,
// the §5.1.1 idle-closing rule, the admission cap, and lazy pruning of
// closed streams every 10th admission.
type StreamTable struct {
	mu   sync.Mutex
	list []*Stream

	maxRemoteStreamId       uint32
	maxActiveRemoteStreamId uint32
	maxProcessedStreamId    uint32
	nextLocalStreamId       uint32

	activeRemoteStreamCount int32 // accessed only under mu; see Admission below

	newStreamCount int // counts admissions for the every-10th prune trigger

	maxConcurrentStreams uint32
}

// NewStreamTable creates an empty table. maxConcurrentStreams is the
// local MAX_CONCURRENT_STREAMS setting used for admission.
func NewStreamTable(maxConcurrentStreams uint32) *StreamTable {
	return &StreamTable{
		nextLocalStreamId:    2,
		maxConcurrentStreams: maxConcurrentStreams,
	}
}

func (t *StreamTable) find(id uint32) int {
	return sort.Search(len(t.list), func(i int) bool {
		return t.list[i].id >= id
	})
}

// Insert adds or replaces s in the table under lock. Used outside the
// normal HEADERS-admission path: synthesizing the upgrade stream,
// inserting a PRIORITY-only placeholder, and registering a pushed stream.
func (t *StreamTable) Insert(s *Stream) {
	t.mu.Lock()
	t.insertLocked(s)
	t.mu.Unlock()
}

func (t *StreamTable) insertLocked(s *Stream) {
	i := t.find(s.id)
	if i == len(t.list) {
		t.list = append(t.list, s)
		return
	}
	if t.list[i].id == s.id {
		t.list[i] = s
		return
	}
	t.list = append(t.list, nil)
	copy(t.list[i+1:], t.list[i:])
	t.list[i] = s
}

// Get returns the stream for id, or nil.
func (t *StreamTable) Get(id uint32) *Stream {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := t.find(id)
	if i < len(t.list) && t.list[i].id == id {
		return t.list[i]
	}
	return nil
}

// Del removes and returns the stream for id, or nil if absent.
func (t *StreamTable) Del(id uint32) *Stream {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := t.find(id)
	if i < len(t.list) && t.list[i].id == id {
		s := t.list[i]
		t.list = append(t.list[:i], t.list[i+1:]...)
		return s
	}
	return nil
}

// Len returns the number of streams currently tracked.
func (t *StreamTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.list)
}

// NextLocalStreamId returns and consumes the next even id for a pushed
// stream.
func (t *StreamTable) NextLocalStreamId() uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextLocalStreamId
	t.nextLocalStreamId += 2
	return id
}

// AdmitRemote implements createRemoteStream(id) + the admission check
// from RFC 7540: even ids and non-increasing ids are PROTOCOL_ERROR
// (connection-scope); exceeding MAX_CONCURRENT_STREAMS is REFUSED_STREAM
// (stream-scope, no stream created). On success it also closes any idle
// ids strictly between maxActiveRemoteStreamId and id and returns
// the newly admitted, OPEN stream.
func (t *StreamTable) AdmitRemote(id uint32) (*Stream, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if id%2 == 0 {
		return nil, NewConnectionError(ProtocolError, "peer-initiated stream id must be odd")
	}
	if id <= t.maxRemoteStreamId && t.maxRemoteStreamId != 0 {
		return nil, NewConnectionError(ProtocolError, "stream id is not strictly increasing")
	}

	t.newStreamCount++
	if t.newStreamCount%10 == 0 {
		t.pruneClosedStreamsLocked()
	}

	if uint32(t.activeRemoteStreamCount)+1 > t.maxConcurrentStreams {
		return nil, NewStreamError(id, RefusedStreamError, "MAX_CONCURRENT_STREAMS exceeded")
	}

	// I6: close any idle odd ids strictly between maxActiveRemoteStreamId and id.
	start := t.maxActiveRemoteStreamId + 2
	if t.maxActiveRemoteStreamId == 0 {
		start = 1
	}
	for gap := start; gap < id; gap += 2 {
		if existing := t.getLocked(gap); existing != nil {
			if existing.State() == StreamStateIdle {
				existing.SetState(StreamStateClosedFinal)
			}
		}
	}

	t.maxRemoteStreamId = id
	t.maxActiveRemoteStreamId = id

	s := NewStream(id)
	s.SetState(StreamStateOpen)
	s.origType = FrameHeaders
	t.insertLocked(s)
	t.activeRemoteStreamCount++

	return s, nil
}

func (t *StreamTable) getLocked(id uint32) *Stream {
	i := t.find(id)
	if i < len(t.list) && t.list[i].id == id {
		return t.list[i]
	}
	return nil
}

// MarkProcessed records that id's HEADERS have been fully handled,
// advancing maxProcessedStreamId (used when building GOAWAY).
func (t *StreamTable) MarkProcessed(id uint32) {
	t.mu.Lock()
	if id > t.maxProcessedStreamId {
		t.maxProcessedStreamId = id
	}
	t.mu.Unlock()
}

func (t *StreamTable) MaxProcessedStreamId() uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.maxProcessedStreamId
}

// DeactivateRemote decrements activeRemoteStreamCount; called when the
// peer ends its side of a stream (END_STREAM received) or resets it.
func (t *StreamTable) DeactivateRemote() {
	t.mu.Lock()
	if t.activeRemoteStreamCount > 0 {
		t.activeRemoteStreamCount--
	}
	t.mu.Unlock()
}

func (t *StreamTable) ActiveRemoteStreamCount() int32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.activeRemoteStreamCount
}

// All returns a snapshot of every tracked stream.
func (t *StreamTable) All() []*Stream {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Stream, len(t.list))
	copy(out, t.list)
	return out
}

// pruneClosedStreamsLocked removes non-active, childless streams down to
// a target of ceil(1.1 * maxConcurrentStreams), .
// CLOSED_FINAL streams (PRIORITY-only placeholders) are pruned only if
// the primary sweep over CLOSED streams doesn't reach the target; an
// active stream is never removed. Best-effort: a shortfall is not an
// error, just a missed opportunity to shrink the table.
func (t *StreamTable) pruneClosedStreamsLocked() {
	target := int((uint64(t.maxConcurrentStreams)*11 + 9) / 10) // ceil(1.1x)
	if target < 0 {
		target = int(^uint(0) >> 1) // clamp to int-max on overflow
	}
	if len(t.list) <= target {
		return
	}

	removeIf := func(pred func(s *Stream) bool) {
		kept := t.list[:0]
		remaining := len(t.list)
		for _, s := range t.list {
			if remaining > target && pred(s) {
				remaining--
				continue
			}
			kept = append(kept, s)
		}
		t.list = kept
	}

	removeIf(func(s *Stream) bool {
		return s.State() == StreamStateClosed && len(s.Children()) == 0
	})

	if len(t.list) > target {
		removeIf(func(s *Stream) bool {
			return s.State() == StreamStateClosedFinal && len(s.Children()) == 0
		})
	}
}
