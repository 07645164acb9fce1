package http2

import (
	"bytes"

	"github.com/valyala/fasthttp"
)

// requestHeaderSink collects decoded HPACK fields for one HEADERS block.
// Fields are copied immediately (HeaderField instances are pool-owned and
// released right after OnHeaderField returns).
type requestHeaderSink struct {
	fields []fieldCopy
	scheme []byte
}

type fieldCopy struct {
	key, value []byte
}

func (s *requestHeaderSink) OnHeaderField(hf *HeaderField) {
	s.fields = append(s.fields, fieldCopy{
		key:   append([]byte(nil), hf.KeyBytes()...),
		value: append([]byte(nil), hf.ValueBytes()...),
	})
}

// applyPseudoHeaders maps a decoded header block onto ctx.Request, the
// pseudo-header half of the request/response mapping.
//
// Grounded on the serverConn.handleHeaderFrame: same
// first-byte-of-key switch over :method/:path/:scheme/:authority, same
// special-casing of user-agent/content-type into dedicated setters, every
// other field added as a regular request header.
func applyPseudoHeaders(ctx *fasthttp.RequestCtx, fields []fieldCopy) {
	req := &ctx.Request
	var scheme []byte

	for _, f := range fields {
		k, v := f.key, f.value

		if len(k) == 0 {
			continue
		}

		if k[0] != ':' {
			switch {
			case bytes.Equal(k, StringUserAgent):
				req.Header.SetUserAgentBytes(v)
			case bytes.Equal(k, StringContentType):
				req.Header.SetContentTypeBytes(v)
			default:
				req.Header.AddBytesKV(k, v)
			}
			continue
		}

		name := k[1:]
		if len(name) == 0 {
			continue
		}

		switch name[0] {
		case 'm': // method
			req.Header.SetMethodBytes(v)
		case 'p': // path
			req.Header.SetRequestURIBytes(v)
		case 's': // scheme
			if bytes.Equal(name, StringScheme[1:]) {
				scheme = append(scheme[:0], v...)
			}
		case 'a': // authority
			req.Header.SetHostBytes(v)
			req.Header.AddBytesV("Host", v)
		}
	}

	req.Header.SetProtocolBytes(StringHTTP2)
	if len(scheme) > 0 {
		req.URI().SetSchemeBytes(scheme)
	}
}
