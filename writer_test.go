package http2

import (
	"bufio"
	"bytes"
	"log"
	"net"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFrameWriterWritesAndFlushes(t *testing.T) {
	var buf bytes.Buffer
	bw := bufio.NewWriter(&buf)
	logger := log.New(os.Stderr, "", 0)

	w := NewFrameWriter(nil, bw, 8, 0, logger)

	data := AcquireFrame(FrameData).(*Data)
	data.SetData([]byte("payload"))
	fr := AcquireFrameHeader()
	fr.SetStream(1)
	fr.SetBody(data)

	w.Enqueue(fr)
	w.Close()

	require.Contains(t, buf.String(), "payload")
}

func TestFrameWriterSequenceOrdersFrames(t *testing.T) {
	var buf bytes.Buffer
	bw := bufio.NewWriter(&buf)
	logger := log.New(os.Stderr, "", 0)

	w := NewFrameWriter(nil, bw, 8, 0, logger)

	first := AcquireFrame(FrameData).(*Data)
	first.SetData([]byte("first"))
	fr1 := AcquireFrameHeader()
	fr1.SetStream(1)
	fr1.SetBody(first)

	second := AcquireFrame(FrameData).(*Data)
	second.SetData([]byte("second"))
	fr2 := AcquireFrameHeader()
	fr2.SetStream(1)
	fr2.SetBody(second)

	w.Sequence(fr1, fr2)
	w.Close()

	out := buf.String()
	require.True(t, bytes.Index([]byte(out), []byte("first")) < bytes.Index([]byte(out), []byte("second")))
}

// TestFrameWriterAppliesWriteDeadline confirms a positive writeTimeout is
// actually applied to the underlying net.Conn rather than silently ignored:
// a 1ms deadline against a pipe nobody reads from must make the write fail.
func TestFrameWriterAppliesWriteDeadline(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	bw := bufio.NewWriter(server)
	logger := log.New(os.Stderr, "", 0)

	w := NewFrameWriter(server, bw, 8, time.Millisecond, logger)

	data := AcquireFrame(FrameData).(*Data)
	data.SetData([]byte("payload"))
	fr := AcquireFrameHeader()
	fr.SetStream(1)
	fr.SetBody(data)

	w.Enqueue(fr)
	<-w.done
}
