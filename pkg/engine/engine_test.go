package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/gocapm/pkg/capture"
	"github.com/itohio/gocapm/pkg/config"
)

// newTestRig wires an engine to a noise-free mock simulating the given
// capacitance, with timings short enough for tests.
func newTestRig(t *testing.T, capacitance, stray float64) (*Engine, *capture.Mock, *config.Config) {
	t.Helper()

	cfg := config.Default()
	cfg.Mock.Capacitance = capacitance
	cfg.Mock.Stray = stray
	cfg.Mock.NoiseLevel = 0
	cfg.Mock.Delay = time.Millisecond
	cfg.Report.Interval = time.Millisecond

	table, err := NewTable(cfg)
	require.NoError(t, err)

	dev := capture.NewMock(cfg)
	require.NoError(t, dev.Connect())

	return New(cfg, table, dev), dev, cfg
}

// collect reads up to n reports or gives up after the timeout.
func collect(t *testing.T, e *Engine, n int, timeout time.Duration) []Report {
	t.Helper()

	var out []Report
	deadline := time.After(timeout)
	for len(out) < n {
		select {
		case r, ok := <-e.Reports():
			if !ok {
				return out
			}
			out = append(out, r)
		case <-deadline:
			t.Fatalf("timed out after %d of %d reports", len(out), n)
		}
	}
	return out
}

func TestEngine_ConvergesToStableRange(t *testing.T) {
	// 100 nF lands at the 10k/divider-1 range (index 6) on the stock table.
	e, dev, _ := newTestRig(t, 100e-9, 0)
	defer dev.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- e.Run(ctx) }()

	reports := collect(t, e, 10, 5*time.Second)
	cancel()

	last := reports[len(reports)-1]
	assert.False(t, last.OutOfRange)
	assert.Equal(t, 6, last.RangeIndex)
	assert.InDelta(t, 100e-9, last.Capacitance, 1e-9)

	// Once converged the range index must stop moving.
	prev := reports[len(reports)-2]
	assert.Equal(t, prev.RangeIndex, last.RangeIndex)

	assert.NoError(t, <-errCh)
}

func TestEngine_QuickRangeConvergesToSameRange(t *testing.T) {
	e, dev, cfg := newTestRig(t, 100e-9, 0)
	defer dev.Close()
	cfg.Measure.QuickRange = true

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	reports := collect(t, e, 10, 5*time.Second)
	cancel()

	last := reports[len(reports)-1]
	assert.False(t, last.OutOfRange)
	assert.Equal(t, 6, last.RangeIndex)
	assert.InDelta(t, 100e-9, last.Capacitance, 1e-9)
}

func TestEngine_OversizeCapacitanceSaturatesAtFloor(t *testing.T) {
	// 1 F overflows every range; the index must walk down to 0 and stay
	// there, reporting out of range each cycle without halting.
	e, dev, _ := newTestRig(t, 1.0, 0)
	defer dev.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	reports := collect(t, e, 12, 5*time.Second)
	cancel()

	for i := 1; i < len(reports); i++ {
		assert.True(t, reports[i].OutOfRange)
		drop := reports[i-1].RangeIndex - reports[i].RangeIndex
		assert.Contains(t, []int{0, 1}, drop, "index moves at most one step down per cycle")
	}
	last := reports[len(reports)-1]
	assert.Equal(t, 0, last.RangeIndex)
}

func TestEngine_ZeroCalibration(t *testing.T) {
	// A bare 20 pF of stray wiring: the engine climbs to the last range,
	// reads below the parasitic ceiling, zeroes, and reports ~0 F after.
	e, dev, _ := newTestRig(t, 0, 20e-12)
	defer dev.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	reports := collect(t, e, 15, 5*time.Second)
	cancel()

	established, offset := e.Zeroed()
	require.True(t, established, "zero calibration should establish at the last range")
	assert.InDelta(t, 20e-12, offset, 1e-12)

	last := reports[len(reports)-1]
	assert.Equal(t, e.TableSize()-1, last.RangeIndex)
	assert.Equal(t, 0.0, last.Capacitance)
	assert.Greater(t, last.Raw, 0.0)
}

func TestEngine_ReportedCapacitanceNeverNegative(t *testing.T) {
	e, dev, _ := newTestRig(t, 0, 20e-12)
	defer dev.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	reports := collect(t, e, 15, 5*time.Second)
	cancel()

	for _, r := range reports {
		assert.GreaterOrEqual(t, r.Capacitance, 0.0)
	}
}

func TestEngine_AccessorsDuringRun(t *testing.T) {
	e, dev, _ := newTestRig(t, 100e-9, 0)
	defer dev.Close()

	assert.Equal(t, 9, e.TableSize())
	assert.Equal(t, 4, e.RangeIndex()) // boot default
	assert.Equal(t, PhaseIdle, e.Phase())
	assert.Equal(t, float64(270), e.ActiveRange().Resistance)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	collect(t, e, 5, 5*time.Second)
	cancel()

	idx := e.RangeIndex()
	assert.GreaterOrEqual(t, idx, 0)
	assert.Less(t, idx, e.TableSize())
}
