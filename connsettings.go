package http2

import "sync"

// Default and bound values for SETTINGS parameters, per RFC 7540 §6.5.2
// and §11.3.
const (
	defaultHeaderTableSize   uint32 = 4096
	defaultConcurrentStreams uint32 = 100
	defaultWindowSize        uint32 = 1<<16 - 1
	defaultMaxFrameSize      uint32 = 1 << 14

	maxWindowSize = 1<<31 - 1
	maxFrameSize  = 1<<24 - 1
)

// SettingsPair tracks what this side has advertised to the peer (local)
// and what the peer has advertised to us (remote), plus whether a local
// SETTINGS frame is still awaiting its ACK.
//
// Grounded on the Settings struct (settings.go) for field
// naming, generalized to hold both directions and ack bookkeeping as
// described in RFC 7540 §6.5.
type SettingsPair struct {
	mu sync.Mutex

	local  settingsValues
	remote settingsValues

	pendingAck bool
}

type settingsValues struct {
	headerTableSize      uint32
	enablePush           bool
	maxConcurrentStreams uint32
	initialWindowSize    uint32
	maxFrameSize         uint32
	maxHeaderListSize    uint32
}

func defaultSettingsValues() settingsValues {
	return settingsValues{
		headerTableSize:      defaultHeaderTableSize,
		enablePush:           true,
		maxConcurrentStreams: defaultConcurrentStreams,
		initialWindowSize:    defaultWindowSize,
		maxFrameSize:         defaultMaxFrameSize,
		maxHeaderListSize:    0,
	}
}

// NewSettingsPair returns a pair initialized to RFC defaults on both
// sides; callers override local fields from ServerConfig before the
// initial SETTINGS frame is written.
func NewSettingsPair() *SettingsPair {
	return &SettingsPair{
		local:  defaultSettingsValues(),
		remote: defaultSettingsValues(),
	}
}

// Local returns the settings this side has advertised (or will advertise).
func (sp *SettingsPair) Local() settingsValues {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	return sp.local
}

// Remote returns the settings last received from the peer.
func (sp *SettingsPair) Remote() settingsValues {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	return sp.remote
}

// SetLocal overwrites the local side, e.g. from ServerConfig at startup.
func (sp *SettingsPair) SetLocal(v settingsValues) {
	sp.mu.Lock()
	sp.local = v
	sp.mu.Unlock()
}

// ApplyRemote merges the fields present in st into the remote settings,
// returning the previous InitialWindowSize so FlowController can fan out
// the delta across existing streams (RFC 7540 §6.9.2).
func (sp *SettingsPair) ApplyRemote(st *Settings) (previousInitialWindow uint32, changed bool) {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	previousInitialWindow = sp.remote.initialWindowSize

	if v, ok := st.HeaderTableSize(); ok {
		sp.remote.headerTableSize = v
		changed = true
	}
	if v, ok := st.Push(); ok {
		sp.remote.enablePush = v
		changed = true
	}
	if v, ok := st.MaxConcurrentStreams(); ok {
		sp.remote.maxConcurrentStreams = v
		changed = true
	}
	if v, ok := st.InitialWindowSize(); ok {
		sp.remote.initialWindowSize = v
		changed = true
	}
	if v, ok := st.MaxFrameSize(); ok {
		sp.remote.maxFrameSize = v
		changed = true
	}
	if v, ok := st.MaxHeaderListSize(); ok {
		sp.remote.maxHeaderListSize = v
		changed = true
	}

	return previousInitialWindow, changed
}

// MarkAckPending records that a local SETTINGS frame was sent and its
// ACK has not yet arrived.
func (sp *SettingsPair) MarkAckPending() {
	sp.mu.Lock()
	sp.pendingAck = true
	sp.mu.Unlock()
}

// ConfirmAck clears the pending-ack flag, reporting whether one was
// actually outstanding. The connection ignores the result, so an
// unsolicited ACK is accepted silently.
func (sp *SettingsPair) ConfirmAck() bool {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	had := sp.pendingAck
	sp.pendingAck = false
	return had
}

// ToFrame builds the Settings frame payload representing the current
// local state: every parameter is marked present except
// MAX_HEADER_LIST_SIZE, which is included only when it is non-zero.
func (sp *SettingsPair) ToFrame() *Settings {
	sp.mu.Lock()
	v := sp.local
	sp.mu.Unlock()

	st := AcquireFrame(FrameSettings).(*Settings)
	st.SetHeaderTableSize(v.headerTableSize)
	st.SetPush(v.enablePush)
	st.SetMaxConcurrentStreams(v.maxConcurrentStreams)
	st.SetInitialWindowSize(v.initialWindowSize)
	st.SetMaxFrameSize(v.maxFrameSize)
	if v.maxHeaderListSize > 0 {
		st.SetMaxHeaderListSize(v.maxHeaderListSize)
	}
	return st
}
