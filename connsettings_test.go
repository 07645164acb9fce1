package http2

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSettingsPairDefaults(t *testing.T) {
	sp := NewSettingsPair()
	require.EqualValues(t, defaultHeaderTableSize, sp.Local().headerTableSize)
	require.True(t, sp.Local().enablePush)
	require.EqualValues(t, defaultConcurrentStreams, sp.Remote().maxConcurrentStreams)
}

func TestSettingsPairApplyRemoteMergesPresentFieldsOnly(t *testing.T) {
	sp := NewSettingsPair()

	st := AcquireFrame(FrameSettings).(*Settings)
	st.SetInitialWindowSize(1000)

	prev, changed := sp.ApplyRemote(st)
	require.True(t, changed)
	require.EqualValues(t, defaultWindowSize, prev)
	require.EqualValues(t, 1000, sp.Remote().initialWindowSize)

	// fields the SETTINGS frame never mentioned are left untouched.
	require.EqualValues(t, defaultConcurrentStreams, sp.Remote().maxConcurrentStreams)
}

func TestSettingsPairAckBookkeeping(t *testing.T) {
	sp := NewSettingsPair()
	require.False(t, sp.ConfirmAck()) // nothing pending yet

	sp.MarkAckPending()
	require.True(t, sp.ConfirmAck())
	require.False(t, sp.ConfirmAck()) // cleared after the first confirm
}

func TestSettingsPairToFrameReflectsLocal(t *testing.T) {
	sp := NewSettingsPair()
	v := sp.Local()
	v.maxConcurrentStreams = 42
	sp.SetLocal(v)

	st := sp.ToFrame()
	mcs, ok := st.MaxConcurrentStreams()
	require.True(t, ok)
	require.EqualValues(t, 42, mcs)
}
