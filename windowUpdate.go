package http2

import (
	"github.com/coreh2/conn/internal/wire"
)

const FrameWindowUpdate FrameType = 0x8

var _ Frame = &WindowUpdate{}

// WindowUpdate carries a flow-control credit increment, applied by
// FlowController.IncrementConnectionWindow (stream id 0) or
// Stream.IncrementWindow (nonzero stream id).
//
// https://tools.ietf.org/html/rfc7540#section-6.9
type WindowUpdate struct {
	increment int
}

func (wu *WindowUpdate) Type() FrameType {
	return FrameWindowUpdate
}

func (wu *WindowUpdate) Reset() {
	wu.increment = 0
}

func (wu *WindowUpdate) CopyTo(w *WindowUpdate) {
	w.increment = wu.increment
}

func (wu *WindowUpdate) Increment() int {
	return wu.increment
}

func (wu *WindowUpdate) SetIncrement(increment int) {
	wu.increment = increment
}

func (wu *WindowUpdate) Deserialize(fr *FrameHeader) error {
	if len(fr.payload) < 4 {
		wu.increment = 0
		return ErrMissingBytes
	}

	wu.increment = int(wire.BytesToUint32(fr.payload) & (1<<31 - 1))

	return nil
}

func (wu *WindowUpdate) Serialize(fr *FrameHeader) {
	fr.payload = wire.AppendUint32Bytes(
		fr.payload[:0], uint32(wu.increment))
	fr.length = 4
}
