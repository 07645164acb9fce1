package http2

import (
	"bufio"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

func testServerConfig(handler fasthttp.RequestHandler) ServerConfig {
	return defaultServerConfig(ServerConfig{
		Handler:     handler,
		ReadTimeout: 5 * time.Second,
	})
}

// testClient drives the client side of the handshake over an in-memory
// pipe: write the preface + an empty SETTINGS frame, read the server's
// SETTINGS, and leave br/bw ready for the test to send/receive frames.
type testClient struct {
	br  *bufio.Reader
	bw  *bufio.Writer
	enc *HPACK
}

func newTestClient(t *testing.T, ln *fasthttputil.InmemoryListener) *testClient {
	t.Helper()

	c, err := ln.Dial()
	require.NoError(t, err)

	tc := &testClient{
		br:  bufio.NewReader(c),
		bw:  bufio.NewWriter(c),
		enc: NewHPACK(),
	}

	_, err = tc.bw.WriteString(ClientPreface)
	require.NoError(t, err)

	empty := AcquireFrame(FrameSettings).(*Settings)
	frEmpty := AcquireFrameHeader()
	frEmpty.SetBody(empty)
	_, err = frEmpty.WriteTo(tc.bw)
	require.NoError(t, err)
	require.NoError(t, tc.bw.Flush())

	// server's initial SETTINGS
	fr, err := ReadFrameFrom(tc.br)
	require.NoError(t, err)
	_, ok := fr.Body().(*Settings)
	require.True(t, ok)

	return tc
}

func (tc *testClient) sendHeaders(id uint32, endStream bool, fields map[string]string) error {
	h := AcquireFrame(FrameHeaders).(*Headers)
	h.SetEndHeaders(true)
	h.SetEndStream(endStream)

	hf := AcquireHeaderField()
	defer ReleaseHeaderField(hf)

	var block []byte
	for k, v := range fields {
		hf.Set(k, v)
		block = tc.enc.AppendHeader(block, hf, true)
	}
	h.SetHeaders(block)

	fr := AcquireFrameHeader()
	fr.SetStream(id)
	fr.SetBody(h)

	_, err := fr.WriteTo(tc.bw)
	if err != nil {
		return err
	}
	return tc.bw.Flush()
}

func (tc *testClient) readNext() (*FrameHeader, error) {
	return ReadFrameFrom(tc.br)
}

func (tc *testClient) sendData(id uint32, body []byte, endStream bool) error {
	data := AcquireFrame(FrameData).(*Data)
	data.SetData(body)
	data.SetEndStream(endStream)

	fr := AcquireFrameHeader()
	fr.SetStream(id)
	fr.SetBody(data)

	_, err := fr.WriteTo(tc.bw)
	if err != nil {
		return err
	}
	return tc.bw.Flush()
}

func TestServerRoundTrip(t *testing.T) {
	s := NewServer(testServerConfig(func(ctx *fasthttp.RequestCtx) {
		io.WriteString(ctx, "Hello world")
	}))

	ln := fasthttputil.NewInmemoryListener()
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		_ = s.ServeConn(c)
	}()
	defer ln.Close()

	tc := newTestClient(t, ln)

	require.NoError(t, tc.sendHeaders(1, true, map[string]string{
		string(StringMethod):    "GET",
		string(StringPath):      "/hello",
		string(StringScheme):    "https",
		string(StringAuthority): "localhost",
	}))

	var sawHeaders, sawData bool
loop:
	for i := 0; i < 4; i++ {
		fr, err := tc.readNext()
		require.NoError(t, err)

		switch body := fr.Body().(type) {
		case *Headers:
			sawHeaders = true
			require.Equal(t, uint32(1), fr.Stream())
		case *Data:
			sawData = true
			require.Equal(t, uint32(1), fr.Stream())
			if body.EndStream() {
				ReleaseFrameHeader(fr)
				break loop
			}
		case *Ping:
			// RTT-seeding ping from the handshake; ignore.
		}
		ReleaseFrameHeader(fr)
	}

	require.True(t, sawHeaders)
	require.True(t, sawData)
}

func TestServerRefusesStreamOverCap(t *testing.T) {
	cfg := testServerConfig(func(ctx *fasthttp.RequestCtx) {})
	cfg.MaxConcurrentStreams = 1
	s := NewServer(cfg)

	ln := fasthttputil.NewInmemoryListener()
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		_ = s.ServeConn(c)
	}()
	defer ln.Close()

	tc := newTestClient(t, ln)

	headers := map[string]string{
		string(StringMethod):    "GET",
		string(StringPath):      "/",
		string(StringScheme):    "https",
		string(StringAuthority): "localhost",
	}

	require.NoError(t, tc.sendHeaders(1, false, headers))
	require.NoError(t, tc.sendHeaders(3, false, headers))

	var sawRefused bool
	for i := 0; i < 6; i++ {
		fr, err := tc.readNext()
		require.NoError(t, err)
		if rst, ok := fr.Body().(*RstStream); ok && fr.Stream() == 3 {
			require.Equal(t, RefusedStreamError, rst.Code())
			sawRefused = true
			ReleaseFrameHeader(fr)
			break
		}
		ReleaseFrameHeader(fr)
	}
	require.True(t, sawRefused)

	// The refused stream's HEADERS still had to be decoded through HPACK
	// to keep the shared dynamic table in sync with the peer's encoder.
	// Free the one concurrency slot by closing stream 1's remote side,
	// then a follow-up request, reusing table entries the refused
	// request's header block would have populated, must still come back
	// as a normal response rather than a COMPRESSION_ERROR-triggered
	// GOAWAY.
	require.NoError(t, tc.sendData(1, nil, true))
	require.NoError(t, tc.sendHeaders(5, true, headers))

	var sawHeadersFor5 bool
	for i := 0; i < 6; i++ {
		fr, err := tc.readNext()
		require.NoError(t, err)
		if _, ok := fr.Body().(*GoAway); ok {
			ReleaseFrameHeader(fr)
			t.Fatal("connection was torn down instead of serving stream 5")
		}
		if _, ok := fr.Body().(*Headers); ok && fr.Stream() == 5 {
			sawHeadersFor5 = true
			ReleaseFrameHeader(fr)
			break
		}
		ReleaseFrameHeader(fr)
	}
	require.True(t, sawHeadersFor5)
}

// TestServeUpgradedConn exercises the h2c upgrade path end to end:
// ServeUpgradedConn synthesizes stream 1 from the HTTP/1.1 request that
// carried the Upgrade header, runs the handler on it without any HEADERS
// frame ever crossing the wire for that stream, then keeps serving further
// HTTP/2 requests (stream 3, sent normally) on the same connection.
func TestServeUpgradedConn(t *testing.T) {
	s := NewServer(testServerConfig(func(ctx *fasthttp.RequestCtx) {
		io.WriteString(ctx, string(ctx.Path()))
	}))

	server, client := net.Pipe()
	defer client.Close()

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	req.Header.SetMethod("GET")
	req.SetRequestURI("/upgraded")
	req.Header.SetHost("localhost")

	go func() {
		_ = s.ServeUpgradedConn(server, req)
	}()

	br := bufio.NewReader(client)
	bw := bufio.NewWriter(client)

	_, err := bw.WriteString(ClientPreface)
	require.NoError(t, err)
	empty := AcquireFrame(FrameSettings).(*Settings)
	frEmpty := AcquireFrameHeader()
	frEmpty.SetBody(empty)
	_, err = frEmpty.WriteTo(bw)
	require.NoError(t, err)
	require.NoError(t, bw.Flush())

	tc := &testClient{br: br, bw: bw, enc: NewHPACK()}

	var sawStream1Data, sawSettings bool
	for i := 0; i < 6 && !(sawStream1Data && sawSettings); i++ {
		fr, err := tc.readNext()
		require.NoError(t, err)
		switch body := fr.Body().(type) {
		case *Settings:
			sawSettings = true
		case *Data:
			require.Equal(t, uint32(1), fr.Stream())
			if body.EndStream() {
				require.Equal(t, "/upgraded", string(body.Data()))
				sawStream1Data = true
			}
		}
		ReleaseFrameHeader(fr)
	}
	require.True(t, sawStream1Data)
	require.True(t, sawSettings)

	require.NoError(t, tc.sendHeaders(3, true, map[string]string{
		string(StringMethod):    "GET",
		string(StringPath):      "/again",
		string(StringScheme):    "https",
		string(StringAuthority): "localhost",
	}))

	var sawStream3 bool
	for i := 0; i < 6 && !sawStream3; i++ {
		fr, err := tc.readNext()
		require.NoError(t, err)
		if _, ok := fr.Body().(*Headers); ok && fr.Stream() == 3 {
			sawStream3 = true
		}
		ReleaseFrameHeader(fr)
	}
	require.True(t, sawStream3)
}

// TestIsH2CUpgrade checks the Connection/Upgrade header pair that marks an
// h2c upgrade request, independent of any other header on the request.
func TestIsH2CUpgrade(t *testing.T) {
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)

	require.False(t, IsH2CUpgrade(req))

	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "h2c")
	require.True(t, IsH2CUpgrade(req))
}
