package debounce

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedule_CoalescesBurst(t *testing.T) {
	var runs atomic.Int32
	d := New(30*time.Millisecond, func() { runs.Add(1) })

	for i := 0; i < 10; i++ {
		d.Schedule()
		time.Sleep(2 * time.Millisecond)
	}

	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int32(1), runs.Load())
	assert.False(t, d.Pending())
}

func TestSchedule_SeparateBurstsRunSeparately(t *testing.T) {
	var runs atomic.Int32
	d := New(10*time.Millisecond, func() { runs.Add(1) })

	d.Schedule()
	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)
	d.Schedule()
	require.Eventually(t, func() bool { return runs.Load() == 2 }, time.Second, 5*time.Millisecond)
}

func TestCancel_DropsPendingRun(t *testing.T) {
	var runs atomic.Int32
	d := New(20*time.Millisecond, func() { runs.Add(1) })

	d.Schedule()
	d.Cancel()

	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, runs.Load())
	assert.False(t, d.Pending())
}

func TestDiscard_WaitsForRunInFlightAndDropsRearm(t *testing.T) {
	var runs atomic.Int32
	release := make(chan struct{})
	d := New(5*time.Millisecond, func() {
		if runs.Add(1) == 1 {
			<-release
		}
	})

	d.Schedule()
	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, time.Millisecond)
	// queued behind the blocked run
	d.Schedule()
	time.Sleep(20 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		d.Discard()
		close(done)
	}()
	select {
	case <-done:
		t.Fatal("Discard returned while a run was in flight")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	<-done
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), runs.Load())
	assert.False(t, d.Pending())
}

func TestRuns_NeverOverlap(t *testing.T) {
	var inFlight, maxInFlight, runs atomic.Int32
	release := make(chan struct{})
	d := New(5*time.Millisecond, func() {
		n := inFlight.Add(1)
		if n > maxInFlight.Load() {
			maxInFlight.Store(n)
		}
		if runs.Add(1) == 1 {
			<-release
		}
		inFlight.Add(-1)
	})

	d.Schedule()
	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, time.Millisecond)

	// timer fires while the first run is still blocked
	d.Schedule()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), runs.Load())

	close(release)
	require.Eventually(t, func() bool { return runs.Load() == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, int32(1), maxInFlight.Load())
}

func TestFlush_RunsPendingImmediately(t *testing.T) {
	var runs atomic.Int32
	d := New(time.Hour, func() { runs.Add(1) })

	d.Schedule()
	d.Flush()
	assert.Equal(t, int32(1), runs.Load())

	// nothing pending: flush is a no-op
	d.Flush()
	assert.Equal(t, int32(1), runs.Load())
}

func TestStop_FlushesAndRejectsSchedules(t *testing.T) {
	var runs atomic.Int32
	d := New(10*time.Millisecond, func() { runs.Add(1) })

	d.Schedule()
	d.Stop()
	assert.Equal(t, int32(1), runs.Load())

	d.Schedule()
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, int32(1), runs.Load())
}
