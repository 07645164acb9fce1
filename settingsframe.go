package http2

import "github.com/coreh2/conn/internal/wire"

const FrameSettings FrameType = 0x4

var _ Frame = &Settings{}

// Settings parameter identifiers.
//
// https://httpwg.org/specs/rfc7540.html#SettingValues
const (
	SettingHeaderTableSize      uint16 = 0x1
	SettingEnablePush           uint16 = 0x2
	SettingMaxConcurrentStreams uint16 = 0x3
	SettingInitialWindowSize    uint16 = 0x4
	SettingMaxFrameSize         uint16 = 0x5
	SettingMaxHeaderListSize    uint16 = 0x6

	settingPairSize = 6 // 2 bytes id + 4 bytes value
)

// Settings is the payload of a SETTINGS frame: a set of (identifier, value)
// pairs, or — with FlagAck set — an empty acknowledgement of a previously
// sent SETTINGS frame.
//
// https://tools.ietf.org/html/rfc7540#section-6.5
type Settings struct {
	ack bool

	headerTableSize      uint32
	headerTableSizePresent bool
	disablePush          bool
	pushPresent          bool
	maxConcurrentStreams uint32
	streamsPresent       bool
	initialWindowSize    uint32
	windowPresent        bool
	maxFrameSize         uint32
	framePresent         bool
	maxHeaderListSize    uint32
	headerListPresent    bool
}

func (st *Settings) Type() FrameType {
	return FrameSettings
}

func (st *Settings) Reset() {
	st.ack = false
	st.headerTableSize = 0
	st.headerTableSizePresent = false
	st.disablePush = false
	st.pushPresent = false
	st.maxConcurrentStreams = 0
	st.streamsPresent = false
	st.initialWindowSize = 0
	st.windowPresent = false
	st.maxFrameSize = 0
	st.framePresent = false
	st.maxHeaderListSize = 0
	st.headerListPresent = false
}

func (st *Settings) IsAck() bool      { return st.ack }
func (st *Settings) SetAck(ack bool)  { st.ack = ack }

func (st *Settings) HeaderTableSize() (uint32, bool) { return st.headerTableSize, st.headerTableSizePresent }
func (st *Settings) SetHeaderTableSize(v uint32) {
	st.headerTableSize, st.headerTableSizePresent = v, true
}

func (st *Settings) Push() (bool, bool) { return !st.disablePush, st.pushPresent }
func (st *Settings) SetPush(enabled bool) {
	st.disablePush, st.pushPresent = !enabled, true
}

func (st *Settings) MaxConcurrentStreams() (uint32, bool) {
	return st.maxConcurrentStreams, st.streamsPresent
}
func (st *Settings) SetMaxConcurrentStreams(v uint32) {
	st.maxConcurrentStreams, st.streamsPresent = v, true
}

func (st *Settings) InitialWindowSize() (uint32, bool) { return st.initialWindowSize, st.windowPresent }
func (st *Settings) SetInitialWindowSize(v uint32) {
	st.initialWindowSize, st.windowPresent = v, true
}

func (st *Settings) MaxFrameSize() (uint32, bool) { return st.maxFrameSize, st.framePresent }
func (st *Settings) SetMaxFrameSize(v uint32) {
	st.maxFrameSize, st.framePresent = v, true
}

func (st *Settings) MaxHeaderListSize() (uint32, bool) { return st.maxHeaderListSize, st.headerListPresent }
func (st *Settings) SetMaxHeaderListSize(v uint32) {
	st.maxHeaderListSize, st.headerListPresent = v, true
}

// Deserialize decodes a SETTINGS payload, six bytes per parameter. The
// payload length must be an exact multiple of 6 (RFC 7540 §6.5); the
// original decoder iterated with an off-by-one bound that could
// read one pair past the payload when the length was NOT a multiple of 6,
// instead of rejecting it — we validate explicitly and return
// FrameSizeError instead.
func (st *Settings) Deserialize(fr *FrameHeader) error {
	st.ack = fr.Flags().Has(FlagAck)
	if st.ack {
		return nil
	}

	payload := fr.payload
	if len(payload)%settingPairSize != 0 {
		return NewConnectionError(FrameSizeError, "SETTINGS payload is not a multiple of 6 bytes")
	}

	for off := 0; off < len(payload); off += settingPairSize {
		pair := payload[off : off+settingPairSize]
		id := uint16(pair[0])<<8 | uint16(pair[1])
		value := wire.BytesToUint32(pair[2:])

		switch id {
		case SettingHeaderTableSize:
			st.SetHeaderTableSize(value)
		case SettingEnablePush:
			if value > 1 {
				return NewConnectionError(ProtocolError, "SETTINGS_ENABLE_PUSH must be 0 or 1")
			}
			st.SetPush(value == 1)
		case SettingMaxConcurrentStreams:
			st.SetMaxConcurrentStreams(value)
		case SettingInitialWindowSize:
			if value > maxWindowSize {
				return NewConnectionError(FlowControlError, "SETTINGS_INITIAL_WINDOW_SIZE exceeds 2^31-1")
			}
			st.SetInitialWindowSize(value)
		case SettingMaxFrameSize:
			if value < defaultMaxFrameSize || value > maxFrameSize {
				return NewConnectionError(ProtocolError, "SETTINGS_MAX_FRAME_SIZE out of range")
			}
			st.SetMaxFrameSize(value)
		case SettingMaxHeaderListSize:
			st.SetMaxHeaderListSize(value)
		}
		// unknown identifiers are ignored, per RFC 7540 §6.5.2.
	}

	return nil
}

func (st *Settings) Serialize(fr *FrameHeader) {
	fr.payload = fr.payload[:0]

	if st.ack {
		fr.SetFlags(fr.Flags().Add(FlagAck))
		return
	}

	appendPair := func(id uint16, v uint32) {
		fr.payload = append(fr.payload, byte(id>>8), byte(id))
		fr.payload = wire.AppendUint32Bytes(fr.payload, v)
	}

	if st.headerTableSizePresent {
		appendPair(SettingHeaderTableSize, st.headerTableSize)
	}
	if st.pushPresent {
		v := uint32(0)
		if !st.disablePush {
			v = 1
		}
		appendPair(SettingEnablePush, v)
	}
	if st.streamsPresent {
		appendPair(SettingMaxConcurrentStreams, st.maxConcurrentStreams)
	}
	if st.windowPresent {
		appendPair(SettingInitialWindowSize, st.initialWindowSize)
	}
	if st.framePresent {
		appendPair(SettingMaxFrameSize, st.maxFrameSize)
	}
	if st.headerListPresent {
		appendPair(SettingMaxHeaderListSize, st.maxHeaderListSize)
	}
}
