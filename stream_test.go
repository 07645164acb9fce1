package http2

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStreamReparentExclusive(t *testing.T) {
	root := NewStream(0)
	a := NewStream(1)
	b := NewStream(3)
	c := NewStream(5)

	a.Reparent(root, false)
	b.Reparent(root, false)
	require.Len(t, root.Children(), 2)

	c.Reparent(root, true)
	require.Len(t, root.Children(), 1)
	require.Equal(t, root, c.Parent())

	cChildren := c.Children()
	require.Len(t, cChildren, 2)
	for _, child := range cChildren {
		require.Equal(t, c, child.Parent())
	}
}

func TestStreamIncrementWindowOverflow(t *testing.T) {
	s := NewStream(1)
	s.SetSendWindow(maxWindowSize - 1)

	err := s.IncrementWindow(10)
	require.Error(t, err)

	he, ok := err.(Error)
	require.True(t, ok)
	require.Equal(t, FlowControlError, he.Code())
}

func TestStreamHeaderBlockAccumulation(t *testing.T) {
	s := NewStream(1)

	s.AppendHeaderBlock([]byte("abc"))
	s.AppendHeaderBlock([]byte("def"))

	got := s.TakeHeaderBlock()
	require.Equal(t, []byte("abcdef"), got)

	// a second take after the buffer was cleared returns nothing.
	require.Empty(t, s.TakeHeaderBlock())
}

func TestStreamCanWrite(t *testing.T) {
	s := NewStream(1)
	s.SetState(StreamStateOpen)
	require.True(t, s.CanWrite())

	s.SetSentEndOfStream(true)
	require.False(t, s.CanWrite())

	s.SetState(StreamStateClosed)
	require.False(t, s.CanWrite())
}

func TestStreamAppendAndDrainInput(t *testing.T) {
	s := NewStream(1)
	s.AppendInput([]byte("hello"))
	s.AppendInput([]byte(" world"))

	select {
	case <-s.OnDataAvailable():
	default:
		t.Fatal("expected a pending data-available signal")
	}

	require.Equal(t, []byte("hello world"), s.DrainInput())
	require.Empty(t, s.DrainInput())
}
