package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/itohio/gocapm/pkg/capture"
	"github.com/itohio/gocapm/pkg/config"
	"github.com/itohio/gocapm/pkg/si"
)

// ErrDeviceClosed is returned by a cycle when the capture device's result
// channel closes underneath the engine (disconnect).
var ErrDeviceClosed = errors.New("capture device closed")

// Phase is the charge cycle phase.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseCharging
	PhaseDischarging
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseCharging:
		return "charging"
	case PhaseDischarging:
		return "discharging"
	default:
		return "unknown"
	}
}

// Report is surfaced once per completed charge cycle.
type Report struct {
	Timestamp   time.Time
	Capacitance float64 // Zero-adjusted capacitance (F); meaningless when OutOfRange
	Raw         float64 // Uncorrected estimate (F)
	OutOfRange  bool    // Counter overflowed: capacitance exceeds this range's ceiling
	RangeIndex  int     // Range the measurement was taken at
	Count       uint16  // Raw capture count
}

// Engine owns the measurement state: the active range index, the zero
// calibration and the cycle phase. It drives the capture device through
// charge/discharge cycles and emits one Report per cycle, paced by the
// report interval. All state mutation happens on the Run goroutine, between
// cycles, never mid-charge.
type Engine struct {
	cfg   *config.Config
	table Table
	dev   capture.Device

	clockHz float64
	tauFall float64

	mu    sync.RWMutex
	phase Phase
	index int
	cal   Calibration

	reports chan Report
}

// New creates an engine for the given device. The table must come from
// NewTable (validated); the boot range index comes from configuration.
func New(cfg *config.Config, table Table, dev capture.Device) *Engine {
	return &Engine{
		cfg:     cfg,
		table:   table,
		dev:     dev,
		clockHz: cfg.Timing.ClockHz,
		tauFall: TauFall(cfg.Timing.SupplyVolts, cfg.Timing.ThresholdVolts),
		phase:   PhaseIdle,
		index:   cfg.Measure.DefaultRange,
		reports: make(chan Report, capture.DefaultBufferSize),
	}
}

// Reports returns the channel of per-cycle reports. It is closed when Run
// returns.
func (e *Engine) Reports() <-chan Report {
	return e.reports
}

// RangeIndex returns the active range index.
func (e *Engine) RangeIndex() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.index
}

// ActiveRange returns the active range entry.
func (e *Engine) ActiveRange() Range {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.table[e.index]
}

// TableSize returns the number of ranges.
func (e *Engine) TableSize() int {
	return len(e.table)
}

// Phase returns the current cycle phase.
func (e *Engine) Phase() Phase {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.phase
}

// Zeroed reports whether the zero offset has been established, and its value.
func (e *Engine) Zeroed() (bool, float64) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cal.Established(), e.cal.Offset()
}

// ResetZero discards the zero offset so the next qualifying reading at the
// highest-resistance range re-establishes it.
func (e *Engine) ResetZero() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cal.Reset()
}

// Run drives charge cycles until the context is canceled or the device
// disconnects. Between cycles it blocks on the report ticker, which bounds
// the cycle rate, paces the output and leaves the capacitor time to settle
// in the discharge topology.
func (e *Engine) Run(ctx context.Context) error {
	defer close(e.reports)

	ticker := time.NewTicker(e.cfg.Report.Interval)
	defer ticker.Stop()

	for {
		if err := e.cycle(ctx); err != nil {
			if errors.Is(err, ErrDeviceClosed) || errors.Is(err, context.Canceled) {
				return nil
			}
			if !e.dev.IsConnected() {
				// Disconnect raced the cycle; clean shutdown, not a fault.
				return nil
			}
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// cycle runs one charge -> capture -> discharge sequence and consumes the
// result. Exactly one cycle is ever in flight.
func (e *Engine) cycle(ctx context.Context) error {
	e.mu.RLock()
	idx := e.index
	e.mu.RUnlock()
	rng := e.table[idx]

	e.setPhase(PhaseCharging)
	if err := e.dev.Charge(rng.Drive, rng.Divider); err != nil {
		e.setPhase(PhaseIdle)
		return fmt.Errorf("charge: %w", err)
	}

	var res capture.Result
	select {
	case r, ok := <-e.dev.Results():
		if !ok {
			e.setPhase(PhaseIdle)
			return ErrDeviceClosed
		}
		res = r
	case <-ctx.Done():
		e.dev.Discharge()
		e.setPhase(PhaseIdle)
		return ctx.Err()
	}

	// Stop/disarm before evaluating the result so a late overflow cannot
	// race a capture for the same cycle.
	e.setPhase(PhaseDischarging)
	if err := e.dev.Discharge(); err != nil {
		e.setPhase(PhaseIdle)
		return fmt.Errorf("discharge: %w", err)
	}

	report := e.consume(idx, rng, res)

	select {
	case e.reports <- report:
	default:
		log.Printf("Reports channel full, dropping report")
	}

	e.setPhase(PhaseIdle)
	return nil
}

// consume applies the estimator, calibration and range policy to a cycle's
// result and builds the report. Runs between cycles on the Run goroutine.
func (e *Engine) consume(idx int, rng Range, res capture.Result) Report {
	e.mu.Lock()
	defer e.mu.Unlock()

	ts := res.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	report := Report{
		Timestamp:  ts,
		RangeIndex: idx,
		Count:      res.Count,
		OutOfRange: res.Overflow,
	}

	if !res.Overflow {
		raw := Estimate(res.Count, rng, e.clockHz, e.tauFall)
		report.Raw = raw
		if e.cal.Observe(raw, idx == len(e.table)-1) {
			log.Printf("Zeroing to %s", si.Format(e.cal.Offset(), "F"))
		}
		report.Capacitance = e.cal.Apply(raw)
	}

	if e.cfg.Measure.Trace {
		f := e.clockHz / float64(rng.Divider)
		t := float64(res.Count) * float64(rng.Divider) / e.clockHz
		log.Printf("cycle: range=%d f=%s t=%s count=%d R=%s",
			idx, si.Format(f, "Hz"), si.Format(t, "s"), res.Count, si.Format(rng.Resistance, "Ω"))
	}

	next := Next(res, idx, e.table)
	if e.cfg.Measure.QuickRange {
		next = NextQuick(res, idx, e.table)
	}
	if next == idx && res.Overflow && idx == 0 {
		// Saturation: nothing faster to fall back to. Keep reporting out
		// of range each cycle rather than halting.
		if e.cfg.Measure.Trace {
			log.Printf("range index clamped at table floor")
		}
	}
	e.index = next

	return report
}

func (e *Engine) setPhase(p Phase) {
	e.mu.Lock()
	e.phase = p
	e.mu.Unlock()
}
