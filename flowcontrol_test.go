package http2

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFlowControllerReserveWithinWindow(t *testing.T) {
	tbl := NewStreamTable(100)
	s, err := tbl.AdmitRemote(1)
	require.NoError(t, err)

	fc := NewFlowController(65535, tbl)
	granted, err := fc.ReserveWindowSize(s, 1000)
	require.NoError(t, err)
	require.EqualValues(t, 1000, granted)
	require.EqualValues(t, 65535-1000, fc.ConnectionSendWindow())
}

func TestFlowControllerReserveCapsAtAvailableWindow(t *testing.T) {
	tbl := NewStreamTable(100)
	s, err := tbl.AdmitRemote(1)
	require.NoError(t, err)

	fc := NewFlowController(500, tbl)
	granted, err := fc.ReserveWindowSize(s, 1000)
	require.NoError(t, err)
	require.EqualValues(t, 500, granted)
	require.EqualValues(t, 0, fc.ConnectionSendWindow())
}

func TestFlowControllerReserveOnUnwritableStream(t *testing.T) {
	tbl := NewStreamTable(100)
	s, err := tbl.AdmitRemote(1)
	require.NoError(t, err)
	s.SetState(StreamStateClosed)

	fc := NewFlowController(65535, tbl)
	_, err = fc.ReserveWindowSize(s, 10)
	require.Error(t, err)
}

func TestFlowControllerBacklogReleaseProportional(t *testing.T) {
	tbl := NewStreamTable(100)
	a, err := tbl.AdmitRemote(1)
	require.NoError(t, err)
	b, err := tbl.AdmitRemote(3)
	require.NoError(t, err)

	a.SetWeight(16)
	b.SetWeight(16)

	// exhaust the connection window so both subsequent reservations park
	// on the backlog.
	fc := NewFlowController(0, tbl)
	require.EqualValues(t, 0, fc.BacklogSize())

	done := make(chan int64, 2)
	go func() {
		g, err := fc.ReserveWindowSize(a, 1000)
		require.NoError(t, err)
		done <- g
	}()
	go func() {
		g, err := fc.ReserveWindowSize(b, 1000)
		require.NoError(t, err)
		done <- g
	}()

	// give both goroutines a chance to park on the backlog before credit
	// arrives.
	for fc.BacklogSize() < 2000 {
	}

	require.NoError(t, fc.IncrementConnectionWindow(2000))

	g1, g2 := <-done, <-done
	require.EqualValues(t, 1000, g1) // equal weights: equal shares
	require.EqualValues(t, 1000, g2)
	require.EqualValues(t, 2000, g1+g2)
	require.EqualValues(t, 0, fc.BacklogSize())
}

func TestFlowControllerApplyInitialWindowDelta(t *testing.T) {
	tbl := NewStreamTable(100)
	s, err := tbl.AdmitRemote(1)
	require.NoError(t, err)
	s.SetSendWindow(100)

	fc := NewFlowController(65535, tbl)
	fc.ApplyInitialWindowDelta(50)
	require.EqualValues(t, 150, s.SendWindow())

	fc.ApplyInitialWindowDelta(-200)
	require.EqualValues(t, -50, s.SendWindow())
}

func TestFlowControllerApplyInitialWindowDeltaOverflowClosesStream(t *testing.T) {
	tbl := NewStreamTable(100)
	s, err := tbl.AdmitRemote(1)
	require.NoError(t, err)
	s.SetSendWindow(maxWindowSize - 1)

	fc := NewFlowController(65535, tbl)
	fc.ApplyInitialWindowDelta(10)

	require.Equal(t, StreamStateClosed, s.State())
}
