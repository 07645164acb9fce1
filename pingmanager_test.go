package http2

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPingManagerShouldSend(t *testing.T) {
	pm := NewPingManager()
	require.True(t, pm.ShouldSend(false)) // never sent yet

	pm.NextPing(time.Now())
	require.False(t, pm.ShouldSend(false))
	require.True(t, pm.ShouldSend(true))
}

func TestPingManagerNextPingSequence(t *testing.T) {
	pm := NewPingManager()
	now := time.Now()

	p0 := pm.NextPing(now)
	p1 := pm.NextPing(now)

	require.EqualValues(t, 0, p0[7])
	require.EqualValues(t, 1, p1[7])
}

func TestPingManagerReceiveAckComputesRTT(t *testing.T) {
	pm := NewPingManager()
	sent := time.Now()

	payload := pm.NextPing(sent)

	acked := sent.Add(50 * time.Millisecond)
	pm.ReceiveAck(payload[:], acked)

	require.Equal(t, 50*time.Millisecond, pm.RoundTripTime())
}

func TestPingManagerRollingWindowEvictsOldest(t *testing.T) {
	pm := NewPingManager()
	sent := time.Now()

	for i := 0; i < pingWindowSize+2; i++ {
		payload := pm.NextPing(sent)
		pm.ReceiveAck(payload[:], sent.Add(time.Duration(i+1)*10*time.Millisecond))
	}

	// only the last pingWindowSize samples survive; average reflects the
	// most recent, larger RTTs rather than the earliest, smaller ones.
	require.Greater(t, pm.RoundTripTime(), 20*time.Millisecond)
}

func TestPingManagerRoundTripTimeZeroWithNoSamples(t *testing.T) {
	pm := NewPingManager()
	require.Equal(t, time.Duration(0), pm.RoundTripTime())
}
