// Command h2demo runs a minimal HTTP/2 server behind autocert-issued TLS,
// wiring http2.ConfigureServer into a fasthttp.Server the same way
// dgrr-http2's examples/autocert does it.
package main

import (
	"crypto/tls"
	"flag"
	"fmt"
	"log"
	"net"

	"github.com/coreh2/conn"
	"github.com/valyala/fasthttp"
	"golang.org/x/crypto/acme/autocert"
)

func main() {
	addr := flag.String("addr", ":443", "listen address")
	cleartextAddr := flag.String("h2c-addr", ":8080", "cleartext listen address for h2c upgrades")
	hostName := flag.String("host", "example.com", "hostname to issue a cert for")
	certCache := flag.String("cache", "./certs", "autocert cache directory")
	debug := flag.Bool("debug", false, "log per-connection errors")
	flag.Parse()

	m := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(*hostName),
		Cache:      autocert.DirCache(*certCache),
	}

	s := &fasthttp.Server{
		Handler: requestHandler,
		Name:    "h2demo",
	}

	h2 := http2.ConfigureServer(s, http2.ServerConfig{
		Debug: *debug,
	})

	// Cleartext listener: plain HTTP/1.1 requests are served as usual;
	// one carrying Connection: Upgrade, Upgrade: h2c is handed off to h2
	// instead, over the same already-accepted net.Conn.
	s.Handler = h2.UpgradeHandler(requestHandler)
	cleartext, err := net.Listen("tcp", *cleartextAddr)
	if err != nil {
		log.Fatalln(err)
	}
	go func() {
		log.Println("h2demo (h2c upgrade) listening on", *cleartextAddr)
		log.Fatalln(s.Serve(cleartext))
	}()

	tlsConfig := &tls.Config{
		GetCertificate: m.GetCertificate,
		NextProtos:     []string{"h2", "http/1.1", "acme-tls/1"},
	}

	ln, err := tls.Listen("tcp", *addr, tlsConfig)
	if err != nil {
		log.Fatalln(err)
	}

	log.Println("h2demo listening on", *addr)
	log.Fatalln(s.Serve(ln))
}

func requestHandler(ctx *fasthttp.RequestCtx) {
	if ctx.Request.Header.IsPost() {
		fmt.Fprintf(ctx, "%s\n", ctx.Request.Body())
		return
	}
	fmt.Fprintf(ctx, "hello over %s\n", ctx.Request.Header.Protocol())
}
