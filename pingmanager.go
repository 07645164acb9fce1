package http2

import (
	"sync"
	"time"
)

const (
	pingForceInterval = 10 * time.Second
	pingWindowSize    = 3
)

type pingInFlight struct {
	seq      uint32
	sentAt   time.Time
}

// PingManager tracks outstanding PING frames and a rolling window of the
// last three RTT samples, built around the Ping frame type.
type PingManager struct {
	mu sync.Mutex

	nextSeq  uint32
	inFlight []pingInFlight
	samples  []time.Duration

	lastSend time.Time
}

func NewPingManager() *PingManager {
	return &PingManager{}
}

// ShouldSend reports whether sendPing should fire now: force, or at
// least pingForceInterval since the last send.
func (pm *PingManager) ShouldSend(force bool) bool {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return force || time.Since(pm.lastSend) >= pingForceInterval
}

// NextPing allocates a sequence number and records the send, returning
// the 8-byte PING payload (sequence in the low 4 bytes).
func (pm *PingManager) NextPing(now time.Time) [8]byte {
	pm.mu.Lock()
	seq := pm.nextSeq
	pm.nextSeq++
	pm.inFlight = append(pm.inFlight, pingInFlight{seq: seq, sentAt: now})
	pm.lastSend = now
	pm.mu.Unlock()

	var payload [8]byte
	wireSeq := seq
	payload[4] = byte(wireSeq >> 24)
	payload[5] = byte(wireSeq >> 16)
	payload[6] = byte(wireSeq >> 8)
	payload[7] = byte(wireSeq)
	return payload
}

// ReceiveAck processes an inbound PING with ACK=1: it drains the
// in-flight queue up to and including the first entry whose seq >= the
// received sequence, computes RTT against that entry's send time, and
// appends it to the rolling window (evicting down to 3 samples).
func (pm *PingManager) ReceiveAck(payload []byte, now time.Time) {
	seq := uint32(payload[4])<<24 | uint32(payload[5])<<16 | uint32(payload[6])<<8 | uint32(payload[7])

	pm.mu.Lock()
	defer pm.mu.Unlock()

	idx := -1
	for i, p := range pm.inFlight {
		if p.seq >= seq {
			idx = i
			break
		}
	}
	if idx == -1 {
		return
	}

	rtt := now.Sub(pm.inFlight[idx].sentAt)
	pm.inFlight = pm.inFlight[idx+1:]

	pm.samples = append(pm.samples, rtt)
	if len(pm.samples) > pingWindowSize {
		pm.samples = pm.samples[len(pm.samples)-pingWindowSize:]
	}
}

// RoundTripTime returns the arithmetic mean of the rolling RTT samples,
// or 0 if no sample has been recorded yet.
func (pm *PingManager) RoundTripTime() time.Duration {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if len(pm.samples) == 0 {
		return 0
	}
	var total time.Duration
	for _, s := range pm.samples {
		total += s
	}
	return total / time.Duration(len(pm.samples))
}
