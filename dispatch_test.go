package http2

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDispatcherUncappedRunsImmediately(t *testing.T) {
	d := NewDispatcher(10, 10) // equal means uncapped
	var ran int32

	var wg sync.WaitGroup
	wg.Add(1)
	d.Submit(1, func() {
		atomic.AddInt32(&ran, 1)
		wg.Done()
	})
	wg.Wait()

	require.EqualValues(t, 1, ran)
}

func TestDispatcherCapsConcurrencyAndDrainsOverflow(t *testing.T) {
	d := NewDispatcher(1, 10) // cap of 1

	release := make(chan struct{})
	started := make(chan struct{})

	d.Submit(1, func() {
		close(started)
		<-release
	})
	<-started

	var secondRan int32
	done := make(chan struct{})
	d.Submit(3, func() {
		atomic.AddInt32(&secondRan, 1)
		close(done)
	})

	// the second proc must not have run yet: it's sitting in overflow
	// while the first still holds the one execution slot.
	time.Sleep(10 * time.Millisecond)
	require.EqualValues(t, 0, atomic.LoadInt32(&secondRan))

	close(release)
	<-done
	require.EqualValues(t, 1, atomic.LoadInt32(&secondRan))
}

func TestDispatcherDrainReturnsQueuedWork(t *testing.T) {
	d := NewDispatcher(1, 10)

	release := make(chan struct{})
	started := make(chan struct{})
	d.Submit(1, func() {
		close(started)
		<-release
	})
	<-started

	var queuedRan int32
	d.Submit(3, func() { atomic.AddInt32(&queuedRan, 1) })

	pending := d.Drain()
	require.Equal(t, []uint32{3}, pending)

	close(release)
	time.Sleep(10 * time.Millisecond)
	// Drain removed it from the overflow queue before it could run.
	require.EqualValues(t, 0, atomic.LoadInt32(&queuedRan))
}
