package http2

import (
	"github.com/coreh2/conn/internal/wire"
)

const FramePushPromise FrameType = 0x5

var _ Frame = &PushPromise{}

// PushPromise https://tools.ietf.org/html/rfc7540#section-6.6
type PushPromise struct {
	pad    bool
	ended  bool
	stream uint32
	header []byte // header block fragment
}

func (pp *PushPromise) Type() FrameType {
	return FramePushPromise
}

func (pp *PushPromise) Reset() {
	pp.pad = false
	pp.ended = false
	pp.stream = 0
	pp.header = pp.header[:0]
}

// Stream returns the promised stream id carried in the frame payload.
func (pp *PushPromise) Stream() uint32 {
	return pp.stream
}

// SetStream sets the promised stream id.
func (pp *PushPromise) SetStream(stream uint32) {
	pp.stream = stream & (1<<31 - 1)
}

// EndHeaders reports whether this frame completes the header block.
func (pp *PushPromise) EndHeaders() bool {
	return pp.ended
}

// SetEndHeaders sets the END_HEADERS flag for serialization.
func (pp *PushPromise) SetEndHeaders(value bool) {
	pp.ended = value
}

func (pp *PushPromise) SetHeader(h []byte) {
	pp.header = append(pp.header[:0], h...)
}

// Header returns the header block fragment carried by the frame.
func (pp *PushPromise) Header() []byte {
	return pp.header
}

func (pp *PushPromise) Write(b []byte) (int, error) {
	n := len(b)
	pp.header = append(pp.header, b...)
	return n, nil
}

func (pp *PushPromise) Deserialize(fr *FrameHeader) error {
	payload := fr.payload

	if fr.Flags().Has(FlagPadded) {
		var err error
		payload, err = wire.CutPadding(payload, fr.Len())
		if err != nil {
			return err
		}
	}

	if len(fr.payload) < 4 {
		return ErrMissingBytes
	}

	pp.stream = wire.BytesToUint32(payload) & (1<<31 - 1)
	pp.header = append(pp.header, payload[4:]...)
	pp.ended = fr.Flags().Has(FlagEndHeaders)

	return nil
}

func (pp *PushPromise) Serialize(fr *FrameHeader) {
	if pp.ended {
		fr.SetFlags(fr.Flags().Add(FlagEndHeaders))
	}

	fr.payload = wire.AppendUint32Bytes(fr.payload[:0], pp.stream)
	fr.payload = append(fr.payload, pp.header...)
}
