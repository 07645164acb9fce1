package http2

import "sync"

// FrameType identifies the HTTP/2 frame type carried by a FrameHeader.
//
// https://tools.ietf.org/html/rfc7540#section-6
type FrameType uint8

func (t FrameType) String() string {
	switch t {
	case FrameData:
		return "DATA"
	case FrameHeaders:
		return "HEADERS"
	case FramePriority:
		return "PRIORITY"
	case FrameResetStream:
		return "RST_STREAM"
	case FrameSettings:
		return "SETTINGS"
	case FramePushPromise:
		return "PUSH_PROMISE"
	case FramePing:
		return "PING"
	case FrameGoAway:
		return "GOAWAY"
	case FrameWindowUpdate:
		return "WINDOW_UPDATE"
	case FrameContinuation:
		return "CONTINUATION"
	}
	return "UNKNOWN"
}

// FrameFlags are the 8 flag bits carried by a FrameHeader. Their meaning
// is frame-type specific (see the per-type Flag* constants in frameHeader.go).
type FrameFlags uint8

// Has reports whether f carries flag.
func (f FrameFlags) Has(flag FrameFlags) bool {
	return f&flag == flag
}

// Add returns f with flag set.
func (f FrameFlags) Add(flag FrameFlags) FrameFlags {
	return f | flag
}

// Del returns f with flag cleared.
func (f FrameFlags) Del(flag FrameFlags) FrameFlags {
	return f &^ flag
}

// Frame is the payload of a single HTTP/2 frame. Every concrete frame type
// (Data, Headers, Priority, RstStream, Settings, PushPromise, Ping, GoAway,
// WindowUpdate, Continuation) implements it; FrameHeader owns the 9-byte
// wire header and delegates body encode/decode to the Frame it wraps.
//
// This is the external "frame payload parser" collaborator the design keeps
// out of the connection core: FrameReaderLoop only ever sees a *FrameHeader
// and calls Body() to reach the typed frame beneath it.
type Frame interface {
	Type() FrameType
	Reset()
	Deserialize(fr *FrameHeader) error
	Serialize(fr *FrameHeader)
}

var framePools = [...]*sync.Pool{
	FrameData:         {New: func() interface{} { return &Data{} }},
	FrameHeaders:      {New: func() interface{} { return &Headers{} }},
	FramePriority:     {New: func() interface{} { return &Priority{} }},
	FrameResetStream:  {New: func() interface{} { return &RstStream{} }},
	FrameSettings:     {New: func() interface{} { return &Settings{} }},
	FramePushPromise:  {New: func() interface{} { return &PushPromise{} }},
	FramePing:         {New: func() interface{} { return &Ping{} }},
	FrameGoAway:       {New: func() interface{} { return &GoAway{} }},
	FrameWindowUpdate: {New: func() interface{} { return &WindowUpdate{} }},
	FrameContinuation: {New: func() interface{} { return &Continuation{} }},
}

// AcquireFrame returns a pooled Frame body for the given type, reset and
// ready to Deserialize/Serialize. kind must be <= FrameContinuation.
func AcquireFrame(kind FrameType) Frame {
	fr := framePools[kind].Get().(Frame)
	fr.Reset()
	return fr
}

// ReleaseFrame returns fr to its type pool. A nil fr is a no-op, matching
// FrameHeader.Reset(), which clears its body reference before release.
func ReleaseFrame(fr Frame) {
	if fr == nil {
		return
	}
	framePools[fr.Type()].Put(fr)
}
