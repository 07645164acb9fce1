package http2

import (
	"github.com/coreh2/conn/internal/wire"
)

const FramePriority FrameType = 0x2

var _ Frame = &Priority{}

// Priority represents the Priority frame: a stream dependency, its
// exclusive bit, and a weight, the three inputs the weighted priority
// tree reparents a stream with.
//
// https://tools.ietf.org/html/rfc7540#section-6.3
type Priority struct {
	stream    uint32
	exclusive bool
	weight    byte
}

func (pry *Priority) Type() FrameType {
	return FramePriority
}

// Reset resets priority fields.
func (pry *Priority) Reset() {
	pry.stream = 0
	pry.exclusive = false
	pry.weight = 0
}

func (pry *Priority) CopyTo(p *Priority) {
	p.stream = pry.stream
	p.exclusive = pry.exclusive
	p.weight = pry.weight
}

// Stream returns the Priority frame's dependency stream id.
func (pry *Priority) Stream() uint32 {
	return pry.stream
}

// SetStream sets the Priority frame's dependency stream id.
func (pry *Priority) SetStream(stream uint32) {
	pry.stream = stream & (1<<31 - 1)
}

// Exclusive reports whether this dependency is exclusive: newParent's
// existing children are reparented under the moving stream.
func (pry *Priority) Exclusive() bool {
	return pry.exclusive
}

// SetExclusive sets the exclusive bit.
func (pry *Priority) SetExclusive(exclusive bool) {
	pry.exclusive = exclusive
}

// Weight returns the Priority frame weight.
func (pry *Priority) Weight() byte {
	return pry.weight
}

// SetWeight sets the Priority frame weight.
func (pry *Priority) SetWeight(w byte) {
	pry.weight = w
}

func (pry *Priority) Deserialize(fr *FrameHeader) (err error) {
	if len(fr.payload) < 5 {
		err = ErrMissingBytes
	} else {
		raw := wire.BytesToUint32(fr.payload)
		pry.exclusive = raw&(1<<31) != 0
		pry.stream = raw & (1<<31 - 1)
		pry.weight = fr.payload[4]
	}

	return
}

func (pry *Priority) Serialize(fr *FrameHeader) {
	raw := pry.stream & (1<<31 - 1)
	if pry.exclusive {
		raw |= 1 << 31
	}
	fr.payload = wire.AppendUint32Bytes(fr.payload[:0], raw)
	fr.payload = append(fr.payload, pry.weight)
}
