package trend

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/itohio/gocapm/pkg/engine"
)

// TestTracker_GracefulShutdown verifies that closing the input channel
// stops callbacks and that ResetShutdown re-arms them for a new chain.
func TestTracker_GracefulShutdown(t *testing.T) {
	tr := New(10*time.Second, 0)

	var calls atomic.Int64
	tr.OnUpdate(func(readings []Reading, shifts []Shift, smoothed float64) {
		calls.Add(1)
	})

	input := make(chan engine.Report, 10)
	done := make(chan struct{})
	go func() {
		defer close(done)
		tr.ProcessReports(input)
	}()

	now := time.Now()
	input <- report(now, 100e-9, 6)
	input <- report(now.Add(time.Second), 100e-9, 6)
	close(input)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("ProcessReports did not return")
	}

	after := calls.Load()
	assert.GreaterOrEqual(t, after, int64(2))

	// Shutdown: a stray processReport must not fire callbacks
	tr.processReport(report(now.Add(2*time.Second), 100e-9, 6))
	assert.Equal(t, after, calls.Load())

	// Re-armed for a new chain
	tr.ResetShutdown()
	tr.processReport(report(now.Add(3*time.Second), 100e-9, 6))
	assert.Equal(t, after+1, calls.Load())
}
