package http2

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type collectingSink struct {
	fields []fieldCopy
}

func (s *collectingSink) OnHeaderField(hf *HeaderField) {
	s.fields = append(s.fields, fieldCopy{
		key:   append([]byte(nil), hf.KeyBytes()...),
		value: append([]byte(nil), hf.ValueBytes()...),
	})
}

func TestHPACKEncodeDecodeRoundTrip(t *testing.T) {
	h := NewHPACK()

	hf := AcquireHeaderField()
	defer ReleaseHeaderField(hf)

	var block []byte
	hf.Set(":method", "GET")
	block = h.AppendHeader(block, hf, true)
	hf.Set(":path", "/hello")
	block = h.AppendHeader(block, hf, true)

	sink := &collectingSink{}
	require.NoError(t, h.DecodeFull(block, sink))

	require.Len(t, sink.fields, 2)
	require.Equal(t, ":method", string(sink.fields[0].key))
	require.Equal(t, "GET", string(sink.fields[0].value))
	require.Equal(t, ":path", string(sink.fields[1].key))
	require.Equal(t, "/hello", string(sink.fields[1].value))
}

func TestHPACKDecodeFullRejectsGarbage(t *testing.T) {
	h := NewHPACK()
	sink := &collectingSink{}

	err := h.DecodeFull([]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}, sink)
	require.Error(t, err)

	he, ok := err.(Error)
	require.True(t, ok)
	require.Equal(t, CompressionError, he.Code())
}

func TestHPACKSetMaxTableSize(t *testing.T) {
	h := NewHPACK()
	h.SetMaxTableSize(128)
	require.EqualValues(t, 128, h.maxTableSize)
}
