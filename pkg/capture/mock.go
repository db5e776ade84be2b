package capture

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/itohio/gocapm/pkg/config"
)

// Mock simulates a capture device for testing and development. It computes
// the threshold-crossing time of an ideal RC discharge curve for a
// configured capacitance and converts it to counter ticks, overflowing
// exactly where real hardware would.
type Mock struct {
	cfg *config.Config

	results   chan Result
	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
	connected bool

	// Cycle state
	armed bool

	// Simulation state
	startTime time.Time
}

// NewMock creates a new mocked device instance. The mock needs the full
// configuration: mock parameters for the simulated capacitor, timing for
// the clock and threshold, and the range table to resolve drive selectors
// to resistances.
func NewMock(cfg *config.Config) *Mock {
	if cfg == nil {
		cfg = config.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Mock{
		cfg:       cfg,
		results:   make(chan Result, DefaultBufferSize),
		ctx:       ctx,
		cancel:    cancel,
		connected: false,
	}
}

// Connect simulates connecting to the device.
func (m *Mock) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connected {
		return fmt.Errorf("already connected")
	}

	m.connected = true
	m.startTime = time.Now()

	return nil
}

// Close stops the mocked device.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return nil
	}

	m.cancel()
	m.connected = false
	close(m.results)

	return nil
}

// Results returns the channel for reading capture results.
func (m *Mock) Results() <-chan Result {
	return m.results
}

// Charge simulates one charge cycle: the threshold-crossing time for the
// configured capacitance through the selected resistor is converted to
// counter ticks and delivered as a single Result after the configured delay.
func (m *Mock) Charge(drive uint8, divider uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return fmt.Errorf("not connected")
	}
	if m.armed {
		return fmt.Errorf("charge already in flight")
	}
	if divider == 0 {
		return fmt.Errorf("divider must be positive")
	}

	resistance, err := m.resistanceFor(drive)
	if err != nil {
		return err
	}

	result := m.simulate(resistance, divider)
	m.armed = true

	go func() {
		select {
		case <-time.After(m.cfg.Mock.Delay):
		case <-m.ctx.Done():
			return
		}

		// The send happens under the lock so Close cannot close the
		// channel between the connected check and the send.
		m.mu.Lock()
		defer m.mu.Unlock()
		m.armed = false
		if !m.connected {
			return
		}
		select {
		case m.results <- result:
		default:
			log.Printf("Results channel full, dropping result")
		}
	}()

	return nil
}

// Discharge simulates switching to the discharge topology. The simulated
// capacitor settles instantly, so this is a no-op beyond the connected check.
func (m *Mock) Discharge() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.connected {
		return fmt.Errorf("not connected")
	}

	return nil
}

// IsConnected returns whether the device is currently connected.
func (m *Mock) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// resistanceFor resolves a drive selector to its resistor value via the
// range table. Drive selectors repeat across divider entries; the resistance
// is a property of the physical path alone.
func (m *Mock) resistanceFor(drive uint8) (float64, error) {
	for _, r := range m.cfg.Ranges {
		if r.Drive == drive {
			return r.Resistance, nil
		}
	}
	return 0, fmt.Errorf("unknown drive selector %d", drive)
}

// simulate computes the capture result for one cycle.
// The capacitor discharges from the rail through R; the comparator trips
// when the voltage falls to the threshold, at t = R*C*ln(Vsupply/Vth).
func (m *Mock) simulate(resistance float64, divider uint16) Result {
	timing := m.cfg.Timing
	c := m.cfg.Mock.Capacitance + m.cfg.Mock.Stray
	tau := math.Log(timing.SupplyVolts / timing.ThresholdVolts)

	seconds := tau * resistance * c
	ticks := seconds * timing.ClockHz / float64(divider)

	// Deterministic pseudo-noise, keeps mock runs reproducible
	if m.cfg.Mock.NoiseLevel > 0 {
		elapsed := time.Since(m.startTime)
		noise := (math.Sin(float64(elapsed.Nanoseconds())*0.001) +
			math.Cos(float64(elapsed.Nanoseconds())*0.0013)) *
			m.cfg.Mock.NoiseLevel * 0.5
		ticks *= 1 + noise
	}

	if ticks >= FullScale {
		return Result{Timestamp: time.Now(), Count: FullScale, Overflow: true}
	}
	if ticks < 0 {
		ticks = 0
	}

	return Result{Timestamp: time.Now(), Count: uint16(ticks), Overflow: false}
}
