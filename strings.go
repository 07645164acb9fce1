package http2

// Wire-literal pseudo-header and header names the codec compares against
// directly instead of allocating a string per lookup. request.go consults
// these while mapping a decoded HPACK block onto a fasthttp.Request;
// response.go uses StringStatus when it encodes the :status pseudo-header.
var (
	StringPath      = []byte(":path")
	StringStatus    = []byte(":status")
	StringAuthority = []byte(":authority")
	StringScheme    = []byte(":scheme")
	StringMethod    = []byte(":method")

	StringContentType = []byte("content-type")
	StringUserAgent   = []byte("user-agent")

	StringHTTP2 = []byte("HTTP/2")
)

// ToLower lowercases b in place. HPACK requires header names to be sent
// lowercase; fasthttp.Request/Response headers are not, so the encoder runs
// names through this before handing them to the HPACK writer.
func ToLower(b []byte) []byte {
	for i := range b {
		if 'A' <= b[i] && b[i] <= 'Z' {
			b[i] += 'a' - 'A'
		}
	}

	return b
}

const (
	// H2TLSProto is the protocol name negotiated via ALPN for HTTP/2 over TLS.
	H2TLSProto = "h2"
	// H2Clean is the Upgrade header token for HTTP/2 over cleartext (h2c).
	H2Clean = "h2c"
)
