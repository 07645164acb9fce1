package http2

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"
)

// ConnState is the connection-wide lifecycle RFC 7540 describes.
type ConnState int32

const (
	StateNew ConnState = iota
	StateConnected
	StatePausing
	StatePaused
	StateClosed
)

func (s ConnState) newStreamsAllowed() bool {
	return s == StateNew || s == StateConnected || s == StatePausing
}

// ClientPreface is the 24-byte magic every HTTP/2 client sends before
// its first SETTINGS frame (RFC 7540 §3.5).
const ClientPreface = "PRI * HTTP/2.0\r\n\r\nSM\r\n\r\n"

// Connection is the server-side handler for one HTTP/2 connection: the
// state machine, frame reader loop, stream table, flow controller, and
// writer wired together exactly as the data-flow diagram
// describes (bytes → FrameReaderLoop → Stream state → Dispatcher →
// worker → FlowController+FrameWriter).
//
// Grounded on the serverConn (serverConn.go): same net.Conn +
// bufio.Reader/Writer + fasthttp.RequestHandler shape, same
// debug/logger fields, same writer-channel ownership — generalized to
// the full state machine, admission, and flow-control semantics
// the design adds on top.
type Connection struct {
	conn net.Conn
	br   *bufio.Reader
	bw   *bufio.Writer

	handler fasthttp.RequestHandler

	state int32 // ConnState, atomic

	settings *SettingsPair
	streams  *StreamTable
	flow     *FlowController
	ping     *PingManager
	dispatch *Dispatcher
	writer   *FrameWriter
	hpack    *HPACK

	writeMu sync.Mutex // held across HPACK encoding and the enqueue of the resulting HEADERS/PUSH_PROMISE frame

	// swallowStreamID/swallowBuf accumulate a header block that HPACK
	// must still decode even though the stream it belongs to was refused
	// or is otherwise not going to be processed. Only one header block
	// can be in flight on a connection at a time (RFC 7540 §4.3), so a
	// single slot suffices; both fields are only ever touched from the
	// reader goroutine.
	swallowStreamID uint32
	swallowBuf      []byte

	pausedAt time.Time

	readTimeout      time.Duration
	keepAliveTimeout time.Duration
	writeTimeout     time.Duration

	debug  bool
	logger *log.Logger

	closer chan struct{}
}

// NewConnection wires every subsystem together per ServerConfig and
// returns a Connection in state NEW.
func NewConnection(c net.Conn, cfg *ServerConfig) *Connection {
	settings := NewSettingsPair()
	local := defaultSettingsValues()
	if cfg.MaxConcurrentStreams > 0 {
		local.maxConcurrentStreams = cfg.MaxConcurrentStreams
	}
	if cfg.InitialWindowSize > 0 {
		local.initialWindowSize = cfg.InitialWindowSize
	}
	settings.SetLocal(local)

	streams := NewStreamTable(local.maxConcurrentStreams)

	conn := &Connection{
		conn:             c,
		br:               bufio.NewReaderSize(c, 4096),
		bw:               bufio.NewWriterSize(c, 4096),
		handler:          cfg.Handler,
		settings:         settings,
		streams:          streams,
		flow:             NewFlowController(int64(defaultWindowSize), streams),
		ping:             NewPingManager(),
		dispatch:         NewDispatcher(cfg.MaxConcurrentStreamExecution, local.maxConcurrentStreams),
		hpack:            NewHPACK(),
		readTimeout:      cfg.ReadTimeout,
		keepAliveTimeout: cfg.KeepAliveTimeout,
		writeTimeout:     cfg.WriteTimeout,
		debug:            cfg.Debug,
		logger:           cfg.Logger,
		closer:           make(chan struct{}),
	}
	conn.writer = NewFrameWriter(c, conn.bw, 64, cfg.WriteTimeout, cfg.Logger)

	return conn
}

func (c *Connection) State() ConnState {
	return ConnState(atomic.LoadInt32(&c.state))
}

func (c *Connection) setState(s ConnState) {
	atomic.StoreInt32(&c.state, int32(s))
}

// Handshake performs the preface handshake from RFC 7540: enqueue the
// local SETTINGS frame (the writer goroutine writes and flushes it), then
// read and validate the 24-byte client preface followed by the client's
// initial SETTINGS. It then sends one forced PING to seed the RTT
// estimate.
func (c *Connection) Handshake() error {
	c.setState(StateConnected)

	local := c.writer
	stFrame := AcquireFrameHeader()
	stFrame.SetBody(c.settings.ToFrame())
	local.Enqueue(stFrame)
	c.settings.MarkAckPending()

	preface := make([]byte, len(ClientPreface))
	if _, err := io.ReadFull(c.br, preface); err != nil {
		return err
	}
	if !bytes.Equal(preface, []byte(ClientPreface)) {
		return ErrBadPreface
	}

	fr, err := ReadFrameFrom(c.br)
	if err != nil {
		return err
	}
	st, ok := fr.Body().(*Settings)
	if !ok {
		ReleaseFrameHeader(fr)
		return NewConnectionError(ProtocolError, "preface must be followed by SETTINGS")
	}
	c.applySettings(st)
	ReleaseFrameHeader(fr)

	c.sendPing(true)

	return nil
}

// HandshakeUpgrade synthesizes stream id=1 from an HTTP/1.1 Upgrade
// request: pre-seeds maxRemoteStreamId / maxActiveRemoteStreamId /
// maxProcessedStreamId at 1 and activeRemoteStreamCount at 1, and applies
// http2SettingsPayload (the already base64-decoded HTTP2-Settings header)
// as the remote SETTINGS; a payload that is not a multiple of 6 bytes is
// ignored. It then enqueues the local SETTINGS frame and reads the 24-byte
// client preface followed by the client's SETTINGS frame.
func (c *Connection) HandshakeUpgrade(http2SettingsPayload []byte) (*Stream, error) {
	c.setState(StateConnected)

	c.streams.maxRemoteStreamId = 1
	c.streams.maxActiveRemoteStreamId = 1
	c.streams.maxProcessedStreamId = 1
	c.streams.activeRemoteStreamCount = 1

	if len(http2SettingsPayload)%settingPairSize == 0 {
		st := AcquireFrame(FrameSettings).(*Settings)
		fr := AcquireFrameHeader()
		fr.payload = append(fr.payload[:0], http2SettingsPayload...)
		if err := st.Deserialize(fr); err == nil {
			c.applySettings(st)
		}
		ReleaseFrame(st)
		frameHeaderPool.Put(fr)
	}

	s := NewStream(1)
	s.SetState(StreamStateHalfClosedRemote)
	s.origType = FrameHeaders
	c.streams.Insert(s)

	stFrame := AcquireFrameHeader()
	stFrame.SetBody(c.settings.ToFrame())
	c.writer.Enqueue(stFrame)
	c.settings.MarkAckPending()

	preface := make([]byte, len(ClientPreface))
	if _, err := io.ReadFull(c.br, preface); err != nil {
		return nil, err
	}
	if !bytes.Equal(preface, []byte(ClientPreface)) {
		return nil, ErrBadPreface
	}
	fr, err := ReadFrameFrom(c.br)
	if err != nil {
		return nil, err
	}
	if st, ok := fr.Body().(*Settings); ok {
		c.applySettings(st)
	}
	ReleaseFrameHeader(fr)

	return s, nil
}

func (c *Connection) applySettings(st *Settings) {
	prevWindow, _ := c.settings.ApplyRemote(st)
	if v, ok := st.InitialWindowSize(); ok {
		delta := int64(v) - int64(prevWindow)
		if delta != 0 {
			c.flow.ApplyInitialWindowDelta(delta)
		}
	}
	if v, ok := st.HeaderTableSize(); ok {
		c.hpack.SetMaxTableSize(v)
	}
}

// Serve drives the frame reader loop until the connection closes,
// mirroring the serverConn.Serve: a writer goroutine already
// runs (started by NewFrameWriter); Serve itself is the blocking I/O
// thread.
func (c *Connection) Serve() error {
	err := c.readLoop()
	if errors.Is(err, io.EOF) {
		err = nil
	}
	c.shutdown()
	return err
}

// Pause moves the connection CONNECTED→PAUSING, sending a GOAWAY with
// lastStreamId=2^31-1 to tell the peer no new streams will be admitted,
// then (after one measured RTT) PAUSING→PAUSED with the real
// maxProcessedStreamId, per the two-stage graceful-shutdown pattern
// RFC 7540 §6.8 describes.
func (c *Connection) Pause() {
	if c.State() != StateConnected {
		return
	}
	c.setState(StatePausing)
	c.pausedAt = time.Now()
	c.writeGoAway(maxWindowSize, NoError, "")

	rtt := c.ping.RoundTripTime()
	if rtt <= 0 {
		rtt = 100 * time.Millisecond
	}
	time.AfterFunc(rtt, func() {
		if c.State() == StatePausing {
			c.setState(StatePaused)
			c.writeGoAway(c.streams.MaxProcessedStreamId(), NoError, "")
		}
	})
}

// fatal handles a fatal connection error (RFC 7540 §5.4.1): emit
// GOAWAY with maxProcessedStreamId and the triggering code, then close.
func (c *Connection) fatal(err error) {
	code := InternalError
	msg := ""
	if e, ok := err.(Error); ok {
		code = e.code
		msg = e.message
	}
	c.writeGoAway(c.streams.MaxProcessedStreamId(), code, msg)
	c.setState(StateClosed)
	close(c.closer)
}

// shutdown answers every request still sitting in the dispatcher's
// overflow queue with REFUSED_STREAM (it never got to run its handler),
// then closes the writer and underlying connection.
func (c *Connection) shutdown() {
	c.setState(StateClosed)
	for _, streamID := range c.dispatch.Drain() {
		c.writeReset(streamID, RefusedStreamError)
	}
	c.writer.Close()
	_ = c.conn.Close()
}

// sendPing sends a PING, forced or gated by PingManager.ShouldSend.
func (c *Connection) sendPing(force bool) {
	if !c.ping.ShouldSend(force) {
		return
	}
	payload := c.ping.NextPing(time.Now())

	ping := AcquireFrame(FramePing).(*Ping)
	ping.SetData(payload[:])
	fr := AcquireFrameHeader()
	fr.SetBody(ping)
	c.writer.Enqueue(fr)
}

func (c *Connection) writeReset(streamID uint32, code ErrorCode) {
	rst := AcquireFrame(FrameResetStream).(*RstStream)
	rst.SetCode(code)
	fr := AcquireFrameHeader()
	fr.SetStream(streamID)
	fr.SetBody(rst)
	c.writer.Enqueue(fr)
}

func (c *Connection) writeGoAway(lastStreamID uint32, code ErrorCode, debugMsg string) {
	ga := AcquireFrame(FrameGoAway).(*GoAway)
	ga.SetStream(lastStreamID)
	ga.SetCode(code)
	if debugMsg != "" {
		ga.SetData([]byte(debugMsg))
	}
	fr := AcquireFrameHeader()
	fr.SetBody(ga)
	c.writer.Enqueue(fr)
}

// writeError is the single point where error scope turns into wire
// behavior: stream-scope errors become RST_STREAM, connection-scope
// errors become fatal() (GOAWAY + close). GOAWAY delivery is
// best-effort: a failed Enqueue write is never surfaced, since the
// connection is closing regardless.
func (c *Connection) writeError(streamID uint32, err error) {
	e, ok := err.(Error)
	if !ok {
		c.fatal(NewConnectionError(InternalError, err.Error()))
		return
	}
	if e.scope == scopeConnection {
		c.fatal(e)
		return
	}
	c.writeReset(streamID, e.code)
}

// readLoop drives the parser on the I/O thread (RFC 7540): blocking
// within a frame, non-blocking between frames via the read deadline
// switching between readTimeout and keepAliveTimeout.
func (c *Connection) readLoop() error {
	idle := false
	for {
		select {
		case <-c.closer:
			return nil
		default:
		}

		if idle && c.keepAliveTimeout > 0 {
			_ = c.conn.SetReadDeadline(time.Now().Add(c.keepAliveTimeout))
		} else if c.readTimeout > 0 {
			_ = c.conn.SetReadDeadline(time.Now().Add(c.readTimeout))
		}

		remoteMax := c.settings.Local().maxFrameSize
		fr, err := ReadFrameFromWithSize(c.br, remoteMax)
		if err != nil {
			if errors.Is(err, ErrUnknownFrameType) {
				c.writeGoAway(c.streams.MaxProcessedStreamId(), ProtocolError, "unknown frame type")
				continue
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				if c.keepAliveTimeout > 0 && !idle {
					idle = true
					continue
				}
			}
			return err
		}
		idle = false

		if err := c.dispatchFrame(fr); err != nil {
			c.writeError(fr.Stream(), err)
		}

		ReleaseFrameHeader(fr)
	}
}

func (c *Connection) dispatchFrame(fr *FrameHeader) error {
	if fr.Stream() == 0 {
		return c.handleConnectionFrame(fr)
	}
	return c.handleStreamFrame(fr)
}

func (c *Connection) handleConnectionFrame(fr *FrameHeader) error {
	switch body := fr.Body().(type) {
	case *Settings:
		if body.IsAck() {
			c.settings.ConfirmAck()
			return nil
		}
		c.applySettings(body)
		ack := AcquireFrame(FrameSettings).(*Settings)
		ack.SetAck(true)
		ackFr := AcquireFrameHeader()
		ackFr.SetBody(ack)
		c.writer.Enqueue(ackFr)
	case *WindowUpdate:
		if body.Increment() == 0 {
			return NewConnectionError(ProtocolError, "window increment of 0")
		}
		return c.flow.IncrementConnectionWindow(int64(body.Increment()))
	case *Ping:
		if body.IsAck() {
			c.ping.ReceiveAck(body.Data(), time.Now())
		} else {
			ack := AcquireFrame(FramePing).(*Ping)
			ack.SetData(body.Data())
			ack.SetAck(true)
			ackFr := AcquireFrameHeader()
			ackFr.SetBody(ack)
			c.writer.Enqueue(ackFr)
		}
	case *GoAway:
		if body.Code() != NoError {
			return fmt.Errorf("goaway: %s: %s", body.Code(), body.Data())
		}
		return io.EOF
	default:
		return NewConnectionError(ProtocolError, "invalid frame on stream 0")
	}
	return nil
}

func (c *Connection) handleStreamFrame(fr *FrameHeader) error {
	if fr.Stream()%2 == 0 {
		return NewConnectionError(ProtocolError, "invalid stream id")
	}

	switch fr.Type() {
	case FramePing, FramePushPromise:
		return NewConnectionError(ProtocolError, "frame must not carry a stream id")
	}

	strm := c.streams.Get(fr.Stream())

	switch fr.Type() {
	case FrameHeaders:
		return c.handleHeaders(strm, fr)
	case FrameContinuation:
		return c.handleContinuation(strm, fr)
	case FrameData:
		return c.handleData(strm, fr)
	case FramePriority:
		return c.handlePriority(strm, fr)
	case FrameResetStream:
		return c.handleResetStream(strm, fr)
	case FrameWindowUpdate:
		return c.handleStreamWindowUpdate(strm, fr)
	}

	return nil
}

func (c *Connection) handleHeaders(strm *Stream, fr *FrameHeader) error {
	h := fr.Body().(*Headers)

	if strm == nil {
		if !c.State().newStreamsAllowed() {
			c.writeReset(fr.Stream(), RefusedStreamError)
			return c.swallowHeaderBlock(fr.Stream(), h.Headers(), h.EndHeaders())
		}
		var err error
		strm, err = c.streams.AdmitRemote(fr.Stream())
		if err != nil {
			if e, ok := err.(Error); ok && e.scope == scopeStream {
				c.writeReset(fr.Stream(), e.code)
				return c.swallowHeaderBlock(fr.Stream(), h.Headers(), h.EndHeaders())
			}
			return err
		}
	}

	strm.SetReceivedEndOfStream(h.EndStream())
	if h.Weight() > 0 {
		var parent *Stream
		if h.Stream() != 0 {
			parent = c.streams.Get(h.Stream())
		}
		strm.Reparent(parent, h.Exclusive())
		strm.SetWeight(h.Weight() + 1)
	}

	strm.AppendHeaderBlock(h.Headers())
	if h.EndHeaders() {
		c.finishHeaders(strm, strm.TakeHeaderBlock())
	}

	if h.EndStream() {
		c.streams.DeactivateRemote()
	}

	return nil
}

func (c *Connection) handleContinuation(strm *Stream, fr *FrameHeader) error {
	cont := fr.Body().(*Continuation)

	if strm == nil {
		if c.swallowStreamID != 0 && c.swallowStreamID == fr.Stream() {
			return c.swallowHeaderBlock(fr.Stream(), cont.Headers(), cont.EndHeaders())
		}
		return NewConnectionError(ProtocolError, "CONTINUATION on unknown stream")
	}
	strm.AppendHeaderBlock(cont.Headers())
	if cont.EndHeaders() {
		c.finishHeaders(strm, strm.TakeHeaderBlock())
	}
	return nil
}

// swallowHeaderBlock accumulates header bytes for a stream that will
// never be processed (refused, or over MAX_CONCURRENT_STREAMS) and, once
// END_HEADERS arrives, decodes the full block through HPACK into a sink
// that discards every field. The decode still has to happen: the peer's
// encoder already mutated its dynamic table for these bytes, and
// skipping it would desync the shared compression context for every
// HEADERS block decoded afterward.
func (c *Connection) swallowHeaderBlock(streamID uint32, headerBytes []byte, endHeaders bool) error {
	c.swallowBuf = append(c.swallowBuf, headerBytes...)
	if !endHeaders {
		c.swallowStreamID = streamID
		return nil
	}
	c.swallowStreamID = 0
	block := c.swallowBuf
	c.swallowBuf = nil
	return c.hpack.DecodeFull(block, discardHeaderSink{})
}

// finishHeaders decodes the fully reassembled header block and, on a
// new request, marks it processed and submits it to the dispatcher.
func (c *Connection) finishHeaders(strm *Stream, block []byte) {
	sink := &requestHeaderSink{}
	if err := c.hpack.DecodeFull(block, sink); err != nil {
		c.writeError(strm.ID(), err)
		return
	}

	c.streams.MarkProcessed(strm.ID())

	ctx := fasthttp.RequestCtx{}
	applyPseudoHeaders(&ctx, sink.fields)
	strm.SetContext(&ctx)

	c.dispatch.Submit(strm.ID(), func() {
		c.runHandler(strm, &ctx)
	})
}

func (c *Connection) runHandler(strm *Stream, ctx *fasthttp.RequestCtx) {
	if c.handler != nil {
		c.handler(ctx)
	}
	c.writeResponse(strm, ctx)
}

func (c *Connection) handleData(strm *Stream, fr *FrameHeader) error {
	if strm == nil {
		return NewStreamError(fr.Stream(), StreamClosedError, "DATA on unknown stream")
	}
	data := fr.Body().(*Data)
	strm.AppendInput(data.Data())

	if data.Padding() {
		c.swallowedPadding(strm, fr.Len()-len(data.Data())-1)
	}

	if data.EndStream() {
		strm.SetReceivedEndOfStream(true)
		c.streams.DeactivateRemote()
	}
	return nil
}

// swallowedPadding implements RFC 7540: restore the flow-control
// credit padding consumed, on both the stream and the connection.
func (c *Connection) swallowedPadding(strm *Stream, paddingLen int) {
	if paddingLen < 0 {
		return
	}
	incr := uint32(paddingLen + 1)

	wu := AcquireFrame(FrameWindowUpdate).(*WindowUpdate)
	wu.SetIncrement(int(incr))
	fr := AcquireFrameHeader()
	fr.SetStream(strm.ID())
	fr.SetBody(wu)
	c.writer.Enqueue(fr)

	wuConn := AcquireFrame(FrameWindowUpdate).(*WindowUpdate)
	wuConn.SetIncrement(int(incr))
	frConn := AcquireFrameHeader()
	frConn.SetBody(wuConn)
	c.writer.Enqueue(frConn)
}

func (c *Connection) handlePriority(strm *Stream, fr *FrameHeader) error {
	p := fr.Body().(*Priority)
	if strm == nil {
		strm = NewStream(fr.Stream())
		strm.origType = FramePriority
		c.streams.Insert(strm)
	}

	var parent *Stream
	if p.Stream() != 0 {
		parent = c.streams.Get(p.Stream())
	}
	strm.Reparent(parent, p.Exclusive())
	strm.SetWeight(p.Weight() + 1)
	return nil
}

func (c *Connection) handleResetStream(strm *Stream, fr *FrameHeader) error {
	if strm == nil {
		return NewConnectionError(ProtocolError, "RST_STREAM on idle stream")
	}
	strm.SetState(StreamStateClosed)
	c.streams.DeactivateRemote()
	return nil
}

func (c *Connection) handleStreamWindowUpdate(strm *Stream, fr *FrameHeader) error {
	if strm == nil {
		return nil // RFC 7540 §6.9: WINDOW_UPDATE on a closed stream is ignored
	}
	wu := fr.Body().(*WindowUpdate)
	if wu.Increment() == 0 {
		return NewStreamError(strm.ID(), ProtocolError, "window increment of 0")
	}
	return strm.IncrementWindow(int64(wu.Increment()))
}

// Push sends a server-initiated PUSH_PROMISE for a resource related to
// parentStreamID: allocate the next even stream id, move it to
// RESERVED_LOCAL, and, holding writeMu across the HPACK encoding and the
// enqueue, write the whole header block as a single PUSH_PROMISE frame
// with END_HEADERS set (no CONTINUATION frame is written).
func (c *Connection) Push(parentStreamID uint32, headerFields []*HeaderField) (*Stream, error) {
	if c.State() != StateConnected {
		return nil, NewConnectionError(ProtocolError, "cannot push while not CONNECTED")
	}
	if !c.settings.Remote().enablePush {
		return nil, NewStreamError(parentStreamID, RefusedStreamError, "peer disabled push")
	}

	id := c.streams.NextLocalStreamId()
	s := NewStream(id)
	s.SetState(StreamStateReservedLocal)
	s.origType = FramePushPromise
	c.streams.Insert(s)

	c.writeMu.Lock()
	var block []byte
	for _, hf := range headerFields {
		block = c.hpack.AppendHeader(block, hf, true)
	}

	pp := AcquireFrame(FramePushPromise).(*PushPromise)
	pp.SetStream(id)
	pp.SetHeader(block)
	pp.SetEndHeaders(true)

	fr := AcquireFrameHeader()
	fr.SetStream(parentStreamID)
	fr.SetBody(pp)
	c.writer.Enqueue(fr)
	c.writeMu.Unlock()

	return s, nil
}
