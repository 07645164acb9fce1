package http2

import (
	"crypto/tls"
	"encoding/base64"
	"errors"
	"net"

	"github.com/valyala/fasthttp"
)

// Server listens for raw or TLS-negotiated HTTP/2 connections and drives
// one Connection per accepted net.Conn.
type Server struct {
	cfg ServerConfig
}

// NewServer builds a Server from cfg, filling unset fields with defaults.
func NewServer(cfg ServerConfig) *Server {
	return &Server{cfg: defaultServerConfig(cfg)}
}

// ConfigureServer wires an http2-speaking NextProto handler into an
// existing fasthttp.Server.
func ConfigureServer(s *fasthttp.Server, cfg ServerConfig) *Server {
	cfg.Handler = s.Handler
	h2 := NewServer(cfg)
	s.NextProto(H2TLSProto, h2.serveTLSConn)
	return h2
}

type connTLSer interface {
	net.Conn
	Handshake() error
	ConnectionState() tls.ConnectionState
}

var errUpgrade = errors.New("http2: ALPN did not negotiate h2")

func (s *Server) serveTLSConn(c net.Conn) error {
	if cTLS, ok := c.(connTLSer); ok {
		if cTLS.ConnectionState().NegotiatedProtocol != H2TLSProto {
			return errUpgrade
		}
	}
	return s.ServeConn(c)
}

// ListenAndServeTLS accepts TLS connections on addr and serves HTTP/2 over
// every one that completes the handshake.
func (s *Server) ListenAndServeTLS(addr, certFile, keyFile string) error {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return err
	}
	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{H2TLSProto},
	}

	ln, err := tls.Listen("tcp", addr, tlsConfig)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections from ln and runs one Connection per accepted
// net.Conn until ln.Accept fails.
func (s *Server) Serve(ln net.Listener) error {
	for {
		c, err := ln.Accept()
		if err != nil {
			return err
		}
		go func() {
			if err := s.ServeConn(c); err != nil && s.cfg.Debug {
				s.cfg.Logger.Printf("http2: connection error: %s\n", err)
			}
		}()
	}
}

// ServeConn runs the full connection lifecycle on c: preface handshake,
// the frame reader loop, and cleanup on exit.
func (s *Server) ServeConn(c net.Conn) error {
	defer c.Close()

	conn := NewConnection(c, &s.cfg)
	if err := conn.Handshake(); err != nil {
		return err
	}
	return conn.Serve()
}

// UpgradeHandler wraps next so an h2c upgrade request completes the
// protocol switch over fasthttp's Hijack mechanism, handing the raw
// connection to ServeUpgradedConn instead of letting fasthttp continue
// reading it as HTTP/1.1. Non-upgrade requests fall through to next
// unchanged.
func (s *Server) UpgradeHandler(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		if !IsH2CUpgrade(&ctx.Request) {
			next(ctx)
			return
		}

		req := fasthttp.AcquireRequest()
		ctx.Request.CopyTo(req)

		ctx.SetStatusCode(fasthttp.StatusSwitchingProtocols)
		ctx.Response.Header.Set("Connection", "Upgrade")
		ctx.Response.Header.Set("Upgrade", H2Clean)

		ctx.Hijack(func(c net.Conn) {
			defer fasthttp.ReleaseRequest(req)
			if err := s.ServeUpgradedConn(c, req); err != nil && s.cfg.Debug {
				s.cfg.Logger.Printf("http2: h2c upgrade connection error: %s\n", err)
			}
		})
	}
}

// IsH2CUpgrade reports whether req is an h2c (HTTP/2 over cleartext)
// upgrade request: Connection: Upgrade and Upgrade: h2c, per RFC 7540 §3.2.
// A fasthttp server still speaking HTTP/1.1 on c checks this before handing
// the connection to ServeUpgradedConn.
func IsH2CUpgrade(req *fasthttp.Request) bool {
	return req.Header.ConnectionUpgrade() &&
		string(req.Header.Peek("Upgrade")) == H2Clean
}

// ServeUpgradedConn completes an h2c upgrade in progress: req is the
// HTTP/1.1 request that carried the Upgrade header, already answered with a
// 101 Switching Protocols by the caller. req's HTTP2-Settings header value
// (base64url, no padding, per RFC 7540 §3.2.1) seeds the connection's
// initial remote SETTINGS, and req itself becomes the synthesized stream 1
// that HandshakeUpgrade pre-admits, so the handler runs on it exactly as it
// would on any HEADERS-initiated stream.
func (s *Server) ServeUpgradedConn(c net.Conn, req *fasthttp.Request) error {
	defer c.Close()

	settingsPayload, _ := base64.RawURLEncoding.DecodeString(
		string(req.Header.Peek("HTTP2-Settings")))

	conn := NewConnection(c, &s.cfg)
	strm, err := conn.HandshakeUpgrade(settingsPayload)
	if err != nil {
		return err
	}

	conn.streams.MarkProcessed(strm.ID())
	ctx := fasthttp.RequestCtx{}
	req.CopyTo(&ctx.Request)
	ctx.Request.Header.SetProtocolBytes(StringHTTP2)
	strm.SetContext(&ctx)
	conn.dispatch.Submit(strm.ID(), func() {
		conn.runHandler(strm, &ctx)
	})

	return conn.Serve()
}
