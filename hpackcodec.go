package http2

import (
	"sync"

	"golang.org/x/net/http2/hpack"
)

// HPACK wraps golang.org/x/net/http2/hpack's Encoder/Decoder: AppendHeader
// encodes one field at a time and appends the whole encoding to a byte
// slice, and DecodeFull emits decoded name/value pairs to a sink as
// *HeaderField values. The compression algorithm (RFC 7541) is x/net's.
// The encoder has no IN_PROGRESS/COMPLETE state and never splits its
// output into frame-sized chunks; callers put a whole encoded block into
// a single HEADERS or PUSH_PROMISE frame, and no CONTINUATION frame is
// ever written.
//
// Grounded on the headers.go call site
// (`hp.AppendHeader(h.rawHeaders, hf, store)`) for the encoder shape, and
// on the headerField.go for the HeaderField sink type.
type HPACK struct {
	mu sync.Mutex

	enc *hpack.Encoder
	buf []byte

	dec *hpack.Decoder

	maxTableSize uint32
}

// NewHPACK builds a codec with fresh encoder state, scoped to the
// lifetime of a single connection (NewConnection creates one per
// connection); the decoder is created on the first DecodeFull call.
func NewHPACK() *HPACK {
	h := &HPACK{}
	h.enc = hpack.NewEncoder(&hpackBuf{h})
	return h
}

// hpackBuf adapts HPACK.buf to io.Writer for hpack.NewEncoder.
type hpackBuf struct{ h *HPACK }

func (b *hpackBuf) Write(p []byte) (int, error) {
	b.h.buf = append(b.h.buf, p...)
	return len(p), nil
}

// SetMaxTableSize propagates a peer HEADER_TABLE_SIZE change to the
// encoder, same call as the handleSettings.
func (h *HPACK) SetMaxTableSize(size uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.maxTableSize = size
	h.enc.SetMaxDynamicTableSize(size)
}

// AppendHeader encodes hf and appends its HPACK representation to dst,
// matching the Headers.AppendHeaderField call site. store is ignored:
// whether a field enters the encoder's dynamic table is decided by the
// x/net encoder itself, and fields marked sensitive are never indexed.
func (h *HPACK) AppendHeader(dst []byte, hf *HeaderField, store bool) []byte {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.buf = h.buf[:0]
	_ = h.enc.WriteField(hpack.HeaderField{
		Name:      hf.Key(),
		Value:     hf.Value(),
		Sensitive: hf.IsSensible(),
	})
	_ = store // x/net's encoder always consults its own should-index heuristic

	return append(dst, h.buf...)
}

// HeaderSink receives decoded header fields one at a time, the "emits
// header name/value pairs to a sink" half of the external contract.
type HeaderSink interface {
	OnHeaderField(hf *HeaderField)
}

// discardHeaderSink decodes a header block purely to keep the shared
// HPACK dynamic table in sync, throwing every field away. Used for
// streams refused after their header block already started: the peer's
// encoder has already mutated its table for these bytes, so the decode
// must still run even though nothing downstream wants the result.
type discardHeaderSink struct{}

func (discardHeaderSink) OnHeaderField(hf *HeaderField) {}

// DecodeFull decodes a complete (possibly HEADERS+CONTINUATION
// reassembled) header block and emits every field to sink. Returns the
// first decode error encountered, if any (a connection-scope
// COMPRESSION_ERROR ).
func (h *HPACK) DecodeFull(block []byte, sink HeaderSink) error {
	h.mu.Lock()
	if h.dec == nil {
		h.dec = hpack.NewDecoder(defaultHeaderTableSize, nil)
	}
	dec := h.dec
	dec.SetEmitFunc(func(f hpack.HeaderField) {
		hf := AcquireHeaderField()
		hf.SetBytes([]byte(f.Name), []byte(f.Value))
		sink.OnHeaderField(hf)
		ReleaseHeaderField(hf)
	})
	h.mu.Unlock()

	_, err := dec.Write(block)
	if err != nil {
		return NewConnectionError(CompressionError, err.Error())
	}
	return nil
}
