package http2

import "fmt"

// ErrorCode is an HTTP/2 error code (RFC 7540 §7).
type ErrorCode uint32

const (
	NoError              ErrorCode = 0x0
	ProtocolError        ErrorCode = 0x1
	InternalError        ErrorCode = 0x2
	FlowControlError     ErrorCode = 0x3
	SettingsTimeoutError ErrorCode = 0x4
	StreamClosedError    ErrorCode = 0x5
	FrameSizeError       ErrorCode = 0x6
	RefusedStreamError   ErrorCode = 0x7
	CancelError          ErrorCode = 0x8
	CompressionError     ErrorCode = 0x9
	ConnectError         ErrorCode = 0xa
	EnhanceYourCalm      ErrorCode = 0xb
	InadequateSecurity   ErrorCode = 0xc
	HTTP11Required       ErrorCode = 0xd
)

var errorCodeNames = [...]string{
	NoError:              "NO_ERROR",
	ProtocolError:        "PROTOCOL_ERROR",
	InternalError:        "INTERNAL_ERROR",
	FlowControlError:     "FLOW_CONTROL_ERROR",
	SettingsTimeoutError: "SETTINGS_TIMEOUT",
	StreamClosedError:    "STREAM_CLOSED",
	FrameSizeError:       "FRAME_SIZE_ERROR",
	RefusedStreamError:   "REFUSED_STREAM",
	CancelError:          "CANCEL",
	CompressionError:     "COMPRESSION_ERROR",
	ConnectError:         "CONNECT_ERROR",
	EnhanceYourCalm:      "ENHANCE_YOUR_CALM",
	InadequateSecurity:   "INADEQUATE_SECURITY",
	HTTP11Required:       "HTTP_1_1_REQUIRED",
}

func (c ErrorCode) String() string {
	if int(c) < len(errorCodeNames) && errorCodeNames[c] != "" {
		return errorCodeNames[c]
	}
	return fmt.Sprintf("UNKNOWN_ERROR(0x%x)", uint32(c))
}

// scope tells writeError which frame carries the fault: a single stream
// (RST_STREAM) or the whole connection (GOAWAY).
type scope uint8

const (
	scopeStream scope = iota
	scopeConnection
)

// Error is the typed fault RFC 7540 splits into stream-scope and
// connection-scope. It is returned by StreamTable/FlowController/reader
// code and consumed centrally by Connection.writeError, mirroring the
// errors.As(err, &streamErr) dispatch in serverConn.writeError.
type Error struct {
	scope   scope
	code    ErrorCode
	stream  uint32
	message string
}

func (e Error) Error() string {
	if e.scope == scopeConnection {
		return fmt.Sprintf("connection error: %s: %s", e.code, e.message)
	}
	return fmt.Sprintf("stream %d error: %s: %s", e.stream, e.code, e.message)
}

func (e Error) Code() ErrorCode { return e.code }

// NewStreamError builds a stream-scope fault: the caller closes the
// stream locally and the writer replies with RST_STREAM(code).
func NewStreamError(streamID uint32, code ErrorCode, message string) error {
	return Error{scope: scopeStream, code: code, stream: streamID, message: message}
}

// NewConnectionError builds a connection-scope fault: the reader loop
// terminates, a GOAWAY(code) is sent, and the connection closes.
func NewConnectionError(code ErrorCode, message string) error {
	return Error{scope: scopeConnection, code: code, message: message}
}

// IsConnectionError reports whether err must terminate the connection
// rather than just the offending stream.
func IsConnectionError(err error) bool {
	e, ok := err.(Error)
	return ok && e.scope == scopeConnection
}

// NewError wraps a received ErrorCode (e.g. from an inbound RST_STREAM or
// GOAWAY frame) as an error with stream scope and no stream id; callers
// that need a specific scope or stream id use
// NewStreamError/NewConnectionError instead.
func NewError(code ErrorCode, message string) error {
	return Error{scope: scopeStream, code: code, message: message}
}

var (
	ErrUnknownFrameType = fmt.Errorf("http2: unknown frame type")
	ErrMissingBytes     = fmt.Errorf("http2: frame payload too short")
	ErrPayloadExceeds   = fmt.Errorf("http2: frame payload exceeds negotiated maximum size")
	ErrBadPreface       = fmt.Errorf("http2: bad connection preface")
	ErrStreamNotWritable = fmt.Errorf("http2: stream is not writable")
)
