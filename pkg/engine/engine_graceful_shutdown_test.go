package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestEngine_GracefulShutdown_ContextCancel verifies that canceling the
// context stops the loop and closes the reports channel.
func TestEngine_GracefulShutdown_ContextCancel(t *testing.T) {
	e, dev, _ := newTestRig(t, 100e-9, 0)
	defer dev.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- e.Run(ctx) }()

	collect(t, e, 3, 5*time.Second)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after context cancel")
	}

	// Drain: the channel must be closed, possibly after buffered reports.
	for {
		_, ok := <-e.Reports()
		if !ok {
			return
		}
	}
}

// TestEngine_GracefulShutdown_DeviceClosed verifies that a device
// disconnect ends the run cleanly rather than as an error.
func TestEngine_GracefulShutdown_DeviceClosed(t *testing.T) {
	e, dev, _ := newTestRig(t, 100e-9, 0)

	ctx := context.Background()
	errCh := make(chan error, 1)
	go func() { errCh <- e.Run(ctx) }()

	collect(t, e, 3, 5*time.Second)
	require.NoError(t, dev.Close())

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after device close")
	}
}
