package http2

import (
	"strconv"

	"github.com/valyala/fasthttp"
)

// writeResponse serializes ctx.Response as a single HEADERS frame, with
// the HPACK encoding and the enqueue both done under the connection's
// writeMu so header blocks reach the wire in the order the shared encoder
// produced them (no CONTINUATION frame is written), followed by zero
// or more DATA frames written without that lock held: DATA frames across
// different streams are free to interleave, and a slow or
// no-credit client on one stream must never block writes for every other
// stream on the connection while ReserveWindowSize waits for a
// WINDOW_UPDATE.
//
// Grounded on the handleEndRequest/fasthttpResponseHeaders/
// writeData (serverConn.go): same :status-pseudo-header-first encoding,
// same Connection/Transfer-Encoding header stripping, same max-frame-size
// DATA chunking.
func (c *Connection) writeResponse(strm *Stream, ctx *fasthttp.RequestCtx) {
	res := &ctx.Response
	body := res.Body()
	hasBody := res.IsBodyStream() || len(body) > 0

	c.writeMu.Lock()
	block := c.encodeResponseHeaders(res)

	h := AcquireFrame(FrameHeaders).(*Headers)
	h.SetEndHeaders(true)
	h.SetEndStream(!hasBody)
	h.SetHeaders(block)

	fr := AcquireFrameHeader()
	fr.SetStream(strm.ID())
	fr.SetBody(h)
	c.writer.Enqueue(fr)
	c.writeMu.Unlock()

	if hasBody {
		c.writeData(strm, body)
	}

	strm.SetSentEndOfStream(true)
	if strm.ReceivedEndOfStream() {
		strm.SetState(StreamStateClosed)
	} else {
		strm.SetState(StreamStateHalfClosedLocal)
	}
}

func (c *Connection) encodeResponseHeaders(res *fasthttp.Response) []byte {
	hf := AcquireHeaderField()
	defer ReleaseHeaderField(hf)

	var block []byte

	hf.SetKeyBytes(StringStatus)
	hf.SetValue(strconv.Itoa(res.Header.StatusCode()))
	block = c.hpack.AppendHeader(block, hf, true)

	if !res.IsBodyStream() {
		res.Header.SetContentLength(len(res.Body()))
	}
	res.Header.Del("Connection")
	res.Header.Del("Transfer-Encoding")

	res.Header.VisitAll(func(k, v []byte) {
		lower := append([]byte(nil), k...)
		ToLower(lower)
		hf.SetBytes(lower, v)
		block = c.hpack.AppendHeader(block, hf, false)
	})

	return block
}

// writeData chunks body into DATA frames no larger than the peer's
// negotiated MAX_FRAME_SIZE, reserving connection-level credit via
// FlowController.ReserveWindowSize before each chunk is enqueued; the
// stream's own send-window is not consulted. Deliberately not run
// under writeMu: ReserveWindowSize can block waiting on a WINDOW_UPDATE,
// and DATA frames for different streams are allowed to interleave on the
// wire, so there is nothing here that needs connection-wide serialization.
func (c *Connection) writeData(strm *Stream, body []byte) {
	step := int(c.settings.Remote().maxFrameSize)
	if step <= 0 {
		step = int(defaultMaxFrameSize)
	}

	for i := 0; i < len(body); {
		chunk := step
		if i+chunk > len(body) {
			chunk = len(body) - i
		}

		granted, err := c.flow.ReserveWindowSize(strm, int64(chunk))
		if err != nil {
			return
		}
		if int(granted) < chunk {
			chunk = int(granted)
		}

		data := AcquireFrame(FrameData).(*Data)
		data.SetData(body[i : i+chunk])
		data.SetEndStream(i+chunk == len(body))

		fr := AcquireFrameHeader()
		fr.SetStream(strm.ID())
		fr.SetBody(data)
		c.writer.Enqueue(fr)

		i += chunk
	}

	if len(body) == 0 {
		data := AcquireFrame(FrameData).(*Data)
		data.SetEndStream(true)
		fr := AcquireFrameHeader()
		fr.SetStream(strm.ID())
		fr.SetBody(data)
		c.writer.Enqueue(fr)
	}
}
