package http2

import (
	"log"
	"os"
	"time"

	"github.com/valyala/fasthttp"
)

// ServerConfig collects every per-connection tunable (settings
// defaults, timeouts, concurrency limits), plus the application
// RequestHandler.
//
// Grounded on the serverConn fields (maxRequestTime,
// pingInterval, maxIdleTime, debug, logger) and fasthttp.Server
// (ReadTimeout/WriteTimeout), generalized into one value every new
// Connection is built from instead of copying fields ad hoc.
type ServerConfig struct {
	Handler fasthttp.RequestHandler

	// ReadTimeout bounds how long the reader loop blocks waiting for the
	// start of the next frame once idle (RFC 7540).
	ReadTimeout time.Duration
	// KeepAliveTimeout is the read deadline used between frames once
	// ReadTimeout has already elapsed once without activity, matching the
	// maxIdleTime/closeIdleConn behavior.
	KeepAliveTimeout time.Duration
	// WriteTimeout bounds a single frame write on the writer goroutine.
	WriteTimeout time.Duration

	MaxConcurrentStreams         uint32
	MaxConcurrentStreamExecution uint32
	InitialWindowSize            uint32

	Debug  bool
	Logger *log.Logger
}

// defaultServerConfig fills every zero field with its RFC default,
// mirroring NewSettingsPair's defaultSettingsValues for the settings half.
func defaultServerConfig(cfg ServerConfig) ServerConfig {
	if cfg.MaxConcurrentStreams == 0 {
		cfg.MaxConcurrentStreams = defaultConcurrentStreams
	}
	if cfg.MaxConcurrentStreamExecution == 0 {
		cfg.MaxConcurrentStreamExecution = cfg.MaxConcurrentStreams
	}
	if cfg.InitialWindowSize == 0 {
		cfg.InitialWindowSize = defaultWindowSize
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[http2] ", log.LstdFlags)
	}
	return cfg
}
