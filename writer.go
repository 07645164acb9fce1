package http2

import (
	"bufio"
	"log"
	"net"
	"time"
)

// FrameWriter serializes every outbound frame over a single channel
// fed to one goroutine, which is the sole owner of the bufio.Writer:
// exactly one goroutine writes to the outbound byte stream at a time,
// implemented with a channel instead of a mutex.
//
// Grounded directly on the serverConn.writer channel and
// writeLoop (serverConn.go): frames are queued as *FrameHeader values
// and flushed in batches, released to the pool after writing.
type FrameWriter struct {
	bw   *bufio.Writer
	conn net.Conn

	frames chan *FrameHeader

	writeTimeout time.Duration
	logger       *log.Logger

	done chan struct{}
}

// NewFrameWriter starts the writer goroutine over bw. queueSize bounds
// how many frames may be queued before Enqueue blocks (backpressure onto
// the caller, never dropped silently). conn is the raw net.Conn bw wraps;
// it is only ever touched here, to set the per-write deadline, never
// read from or written to directly.
func NewFrameWriter(conn net.Conn, bw *bufio.Writer, queueSize int, writeTimeout time.Duration, logger *log.Logger) *FrameWriter {
	w := &FrameWriter{
		bw:           bw,
		conn:         conn,
		frames:       make(chan *FrameHeader, queueSize),
		writeTimeout: writeTimeout,
		logger:       logger,
		done:         make(chan struct{}),
	}
	go w.loop()
	return w
}

// Enqueue hands fr to the writer goroutine. The caller must not touch fr
// again; it is released back to its pool once written.
func (w *FrameWriter) Enqueue(fr *FrameHeader) {
	w.frames <- fr
}

// Sequence enqueues every frame in frs, in order, one channel send per
// frame. It takes no lock of its own: frames that other goroutines pass
// to Enqueue or Sequence at the same time can land between them on the
// wire.
func (w *FrameWriter) Sequence(frs ...*FrameHeader) {
	for _, fr := range frs {
		w.frames <- fr
	}
}

// Close stops accepting frames and waits for the loop to drain.
func (w *FrameWriter) Close() {
	close(w.frames)
	<-w.done
}

func (w *FrameWriter) loop() {
	defer close(w.done)

	buffered := 0
	for fr := range w.frames {
		if w.writeTimeout > 0 {
			if err := w.conn.SetWriteDeadline(time.Now().Add(w.writeTimeout)); err != nil {
				w.logger.Printf("http2: set write deadline: %s", err)
				return
			}
		}

		_, err := fr.WriteTo(w.bw)
		ReleaseFrameHeader(fr)

		if err != nil {
			w.logger.Printf("http2: write error: %s", err)
			return
		}

		if len(w.frames) == 0 || buffered > 10 {
			if err := w.bw.Flush(); err != nil {
				w.logger.Printf("http2: flush error: %s", err)
				return
			}
			buffered = 0
		} else {
			buffered++
		}
	}

	w.bw.Flush()
}
