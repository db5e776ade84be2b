package engine

import (
	"fmt"
	"math"

	"github.com/itohio/gocapm/pkg/capture"
	"github.com/itohio/gocapm/pkg/config"
)

// Range is one resistor/divider combination the meter can measure with.
// Entries are immutable once the table is built; only the active index
// changes at runtime.
type Range struct {
	Resistance float64 // Series resistor (ohms)
	Divider    uint16  // Clock divider applied to the capture counter
	Drive      uint8   // Drive selector for the resistor path
	MinCount   uint16  // Counts below this mean the range is too coarse
	Growth     uint8   // Expected count ratio to the next range (quick mode only)
}

// Table is the ordered set of ranges, lowest resistance first.
type Table []Range

// TauFall is the number of RC time constants for the capacitor voltage to
// fall from the supply rail to the comparator threshold.
func TauFall(supplyVolts, thresholdVolts float64) float64 {
	return -math.Log(thresholdVolts / supplyVolts)
}

// TauRise is the number of RC time constants for the capacitor voltage to
// rise from zero to the comparator threshold.
func TauRise(supplyVolts, thresholdVolts float64) float64 {
	return -math.Log(1 - thresholdVolts/supplyVolts)
}

// MinCapacitance is the smallest capacitance this range can resolve with at
// least one full tick: divider/(clock*R*tau_rise).
func (r Range) MinCapacitance(clockHz, tauRise float64) float64 {
	return float64(r.Divider) / (clockHz * r.Resistance * tauRise)
}

// MaxCapacitance is the largest capacitance this range can time before the
// counter wraps: fullScale*divider/(clock*R*tau_fall).
func (r Range) MaxCapacitance(clockHz, tauFall float64) float64 {
	return capture.FullScale * float64(r.Divider) / (clockHz * r.Resistance * tauFall)
}

// NewTable builds and validates the range table from configuration.
func NewTable(cfg *config.Config) (Table, error) {
	t := make(Table, 0, len(cfg.Ranges))
	for _, r := range cfg.Ranges {
		t = append(t, Range{
			Resistance: r.Resistance,
			Divider:    r.Divider,
			Drive:      r.Drive,
			MinCount:   r.MinCount,
			Growth:     r.Growth,
		})
	}

	tauRise := TauRise(cfg.Timing.SupplyVolts, cfg.Timing.ThresholdVolts)
	tauFall := TauFall(cfg.Timing.SupplyVolts, cfg.Timing.ThresholdVolts)
	if err := t.validate(cfg.Timing.ClockHz, tauRise, tauFall); err != nil {
		return nil, err
	}

	return t, nil
}

// validate checks the table invariants: non-empty, sane entries, resistance
// non-decreasing with index, and overlapping capacitance windows between
// neighbors so no measurable value falls through a gap.
func (t Table) validate(clockHz, tauRise, tauFall float64) error {
	if len(t) == 0 {
		return fmt.Errorf("range table is empty")
	}

	for i, r := range t {
		if r.Resistance <= 0 {
			return fmt.Errorf("range %d: resistance must be positive", i)
		}
		if r.Divider == 0 {
			return fmt.Errorf("range %d: divider must be positive", i)
		}
		if r.MinCount >= capture.FullScale {
			return fmt.Errorf("range %d: min count %d at or above full scale", i, r.MinCount)
		}
		if i > 0 && r.Resistance < t[i-1].Resistance {
			return fmt.Errorf("range %d: resistance decreases (%v < %v)", i, r.Resistance, t[i-1].Resistance)
		}
		if i < len(t)-1 {
			// The next range covers smaller capacitances; its ceiling must
			// reach past this range's floor or values in between would be
			// unrepresentable.
			if r.MinCapacitance(clockHz, tauRise) >= t[i+1].MaxCapacitance(clockHz, tauFall) {
				return fmt.Errorf("ranges %d and %d: capacitance windows do not overlap", i, i+1)
			}
		}
	}

	return nil
}
