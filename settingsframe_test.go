package http2

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSettingsRoundTrip(t *testing.T) {
	st := AcquireFrame(FrameSettings).(*Settings)
	st.SetHeaderTableSize(1234)
	st.SetPush(false)
	st.SetMaxConcurrentStreams(50)
	st.SetInitialWindowSize(65535)
	st.SetMaxFrameSize(16384)

	fr := AcquireFrameHeader()
	fr.SetBody(st)

	var buf bytes.Buffer
	bw := bufio.NewWriter(&buf)
	_, err := fr.WriteTo(bw)
	require.NoError(t, err)
	require.NoError(t, bw.Flush())

	br := bufio.NewReader(&buf)
	out, err := ReadFrameFrom(br)
	require.NoError(t, err)

	got := out.Body().(*Settings)
	v, ok := got.HeaderTableSize()
	require.True(t, ok)
	require.EqualValues(t, 1234, v)

	push, ok := got.Push()
	require.True(t, ok)
	require.False(t, push)

	mcs, ok := got.MaxConcurrentStreams()
	require.True(t, ok)
	require.EqualValues(t, 50, mcs)
}

func TestSettingsDeserializeRejectsNonMultipleOfSix(t *testing.T) {
	st := &Settings{}
	fr := AcquireFrameHeader()
	fr.payload = []byte{0, 1, 0, 0, 16} // 5 bytes: not a multiple of 6

	err := st.Deserialize(fr)
	require.Error(t, err)

	he, ok := err.(Error)
	require.True(t, ok)
	require.Equal(t, FrameSizeError, he.Code())
}

func TestSettingsDeserializeRejectsOutOfRangeEnablePush(t *testing.T) {
	st := &Settings{}
	fr := AcquireFrameHeader()
	fr.payload = []byte{0, byte(SettingEnablePush), 0, 0, 0, 2}

	err := st.Deserialize(fr)
	require.Error(t, err)
}

func TestSettingsDeserializeAckSkipsPayload(t *testing.T) {
	st := &Settings{}
	fr := AcquireFrameHeader()
	fr.SetFlags(fr.Flags().Add(FlagAck))

	require.NoError(t, st.Deserialize(fr))
	require.True(t, st.IsAck())
}

func TestSettingsDeserializeIgnoresUnknownIdentifier(t *testing.T) {
	st := &Settings{}
	fr := AcquireFrameHeader()
	fr.payload = []byte{0xff, 0xff, 0, 0, 0, 1} // unknown id 0xffff

	require.NoError(t, st.Deserialize(fr))
}
