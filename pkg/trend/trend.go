package trend

import (
	"sync"
	"time"

	"github.com/itohio/gocapm/pkg/engine"
)

// Reading is one displayed measurement point.
type Reading struct {
	Timestamp   time.Time
	Capacitance float64 // Zero-adjusted capacitance (F)
	RangeIndex  int
	OutOfRange  bool
}

// Shift marks an auto-range transition between consecutive readings,
// for annotating the trace.
type Shift struct {
	Index int       // Reading index in the buffer where the new range took effect
	Time  time.Time // Timestamp of that reading
	From  int       // Previous range index
	To    int       // New range index
}

// Tracker consumes engine reports and maintains a time-windowed FIFO of
// readings plus the range shifts within the window. Internally the buffers
// are ordered oldest first; removal is by timestamp, not count.
type Tracker struct {
	// Buffers (protected by mu)
	readings []Reading
	shifts   []Shift
	mu       sync.RWMutex

	// Update callbacks
	callbacks []func(readings []Reading, shifts []Shift, smoothed float64)
	cbMu      sync.RWMutex

	// Configuration
	window    time.Duration
	avgWindow int // Number of in-range readings in the moving average (0 = latest only)

	// Shutdown control
	shutdown bool // Set when the input channel closes, prevents further callbacks
}

// New creates a Tracker keeping readings for the given time window and
// smoothing over avgWindow in-range readings.
func New(window time.Duration, avgWindow int) *Tracker {
	if window <= 0 {
		window = 60 * time.Second
	}

	return &Tracker{
		readings:  make([]Reading, 0),
		shifts:    make([]Shift, 0),
		callbacks: make([]func(readings []Reading, shifts []Shift, smoothed float64), 0),
		window:    window,
		avgWindow: avgWindow,
	}
}

// ProcessReports consumes reports from the input channel until it closes.
// When the channel closes, the shutdown flag stops further callbacks.
func (tr *Tracker) ProcessReports(input <-chan engine.Report) {
	for r := range input {
		tr.processReport(r)
	}
	tr.mu.Lock()
	tr.shutdown = true
	tr.mu.Unlock()
}

// processReport appends one reading, trims the window, records range
// shifts and notifies callbacks.
func (tr *Tracker) processReport(rep engine.Report) {
	tr.mu.Lock()

	reading := Reading{
		Timestamp:   rep.Timestamp,
		Capacitance: rep.Capacitance,
		RangeIndex:  rep.RangeIndex,
		OutOfRange:  rep.OutOfRange,
	}

	// Range shift relative to the previous reading
	if n := len(tr.readings); n > 0 && tr.readings[n-1].RangeIndex != reading.RangeIndex {
		tr.shifts = append(tr.shifts, Shift{
			Index: n,
			Time:  reading.Timestamp,
			From:  tr.readings[n-1].RangeIndex,
			To:    reading.RangeIndex,
		})
	}

	tr.readings = append(tr.readings, reading)

	// Remove readings outside the time window (by timestamp, not count)
	cutoffTime := reading.Timestamp.Add(-tr.window)
	cutoffIndex := 0
	for i, r := range tr.readings {
		if r.Timestamp.After(cutoffTime) {
			cutoffIndex = i
			break
		}
	}
	if cutoffIndex > 0 {
		tr.readings = tr.readings[cutoffIndex:]

		// Re-index shifts and drop the ones that fell out of the window
		valid := tr.shifts[:0]
		for _, s := range tr.shifts {
			s.Index -= cutoffIndex
			if s.Index >= 0 {
				valid = append(valid, s)
			}
		}
		tr.shifts = valid
	}

	shouldNotify := !tr.shutdown
	tr.mu.Unlock()

	if shouldNotify {
		tr.notifyCallbacks()
	}
}

// Readings returns a copy of the current readings buffer, oldest first.
func (tr *Tracker) Readings() []Reading {
	tr.mu.RLock()
	defer tr.mu.RUnlock()

	result := make([]Reading, len(tr.readings))
	copy(result, tr.readings)
	return result
}

// Shifts returns a copy of the range shifts within the window.
func (tr *Tracker) Shifts() []Shift {
	tr.mu.RLock()
	defer tr.mu.RUnlock()

	result := make([]Shift, len(tr.shifts))
	copy(result, tr.shifts)
	return result
}

// Smoothed returns the moving average of the last avgWindow in-range
// readings (or the latest in-range reading when averaging is disabled).
// Returns 0 when the window holds no in-range readings.
func (tr *Tracker) Smoothed() float64 {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	return tr.smoothedLocked()
}

func (tr *Tracker) smoothedLocked() float64 {
	n := tr.avgWindow
	if n <= 0 {
		n = 1
	}

	var sum float64
	var count int
	for i := len(tr.readings) - 1; i >= 0 && count < n; i-- {
		if tr.readings[i].OutOfRange {
			continue
		}
		sum += tr.readings[i].Capacitance
		count++
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// OnUpdate registers a callback invoked after each processed report.
// The callback receives copies and should return quickly.
func (tr *Tracker) OnUpdate(callback func(readings []Reading, shifts []Shift, smoothed float64)) {
	tr.cbMu.Lock()
	defer tr.cbMu.Unlock()
	tr.callbacks = append(tr.callbacks, callback)
}

// ResetShutdown resets the shutdown flag, allowing callbacks to be sent
// again. Call before starting a new measurement chain.
func (tr *Tracker) ResetShutdown() {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.shutdown = false
}

// notifyCallbacks invokes all registered callbacks with copies of the
// current data, without holding any lock during the calls.
func (tr *Tracker) notifyCallbacks() {
	tr.mu.RLock()
	readingsCopy := make([]Reading, len(tr.readings))
	copy(readingsCopy, tr.readings)
	shiftsCopy := make([]Shift, len(tr.shifts))
	copy(shiftsCopy, tr.shifts)
	smoothed := tr.smoothedLocked()
	tr.mu.RUnlock()

	tr.cbMu.RLock()
	callbacks := make([]func(readings []Reading, shifts []Shift, smoothed float64), len(tr.callbacks))
	copy(callbacks, tr.callbacks)
	tr.cbMu.RUnlock()

	for _, cb := range callbacks {
		if cb != nil {
			cb(readingsCopy, shiftsCopy, smoothed)
		}
	}
}
