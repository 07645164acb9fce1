package http2

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStreamTableAdmitRemoteRejectsEvenID(t *testing.T) {
	tbl := NewStreamTable(100)
	_, err := tbl.AdmitRemote(2)
	require.Error(t, err)
	require.True(t, IsConnectionError(err))
}

func TestStreamTableAdmitRemoteRejectsNonIncreasing(t *testing.T) {
	tbl := NewStreamTable(100)
	_, err := tbl.AdmitRemote(5)
	require.NoError(t, err)

	_, err = tbl.AdmitRemote(3)
	require.Error(t, err)
	require.True(t, IsConnectionError(err))
}

func TestStreamTableAdmitRemoteRefusesOverCap(t *testing.T) {
	tbl := NewStreamTable(1)
	_, err := tbl.AdmitRemote(1)
	require.NoError(t, err)

	_, err = tbl.AdmitRemote(3)
	require.Error(t, err)
	require.False(t, IsConnectionError(err))

	e, ok := err.(Error)
	require.True(t, ok)
	require.Equal(t, RefusedStreamError, e.Code())
}

func TestStreamTableIdleClosingRule(t *testing.T) {
	tbl := NewStreamTable(100)

	// a PRIORITY-only placeholder for stream 3, left idle.
	placeholder := NewStream(3)
	tbl.Insert(placeholder)

	// admitting stream 7 skips over the idle odd ids 3 and 5; 3 already
	// has a placeholder and must be force-closed per RFC 7540 §5.1.1.
	_, err := tbl.AdmitRemote(7)
	require.NoError(t, err)

	require.Equal(t, StreamStateClosedFinal, placeholder.State())
}

func TestStreamTableGetDelLen(t *testing.T) {
	tbl := NewStreamTable(100)
	s, err := tbl.AdmitRemote(1)
	require.NoError(t, err)
	require.Equal(t, 1, tbl.Len())

	require.Equal(t, s, tbl.Get(1))
	require.Nil(t, tbl.Get(99))

	require.Equal(t, s, tbl.Del(1))
	require.Nil(t, tbl.Get(1))
	require.Equal(t, 0, tbl.Len())
}

func TestStreamTableNextLocalStreamId(t *testing.T) {
	tbl := NewStreamTable(100)
	a := tbl.NextLocalStreamId()
	b := tbl.NextLocalStreamId()
	require.Equal(t, uint32(2), a)
	require.Equal(t, uint32(4), b)
}

func TestStreamTableActiveRemoteStreamCount(t *testing.T) {
	tbl := NewStreamTable(100)
	_, err := tbl.AdmitRemote(1)
	require.NoError(t, err)
	require.EqualValues(t, 1, tbl.ActiveRemoteStreamCount())

	tbl.DeactivateRemote()
	require.EqualValues(t, 0, tbl.ActiveRemoteStreamCount())
}
