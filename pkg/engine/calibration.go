package engine

// ZeroCeiling is the parasitic capacitance ceiling: a reading taken at the
// highest-resistance range below this value is taken to be stray wiring
// capacitance and becomes the zero offset.
const ZeroCeiling = 100e-12

// Calibration holds the zero-offset state. The offset is established at
// most once per boot and never re-run; drift correction is deliberately
// out of scope.
type Calibration struct {
	established bool
	offset      float64
}

// Observe considers a raw reading for zero calibration and reports whether
// it became the offset. Only readings taken at the last (highest-resistance)
// range qualify, and only below the parasitic ceiling.
func (c *Calibration) Observe(raw float64, atLastRange bool) bool {
	if c.established || !atLastRange || raw >= ZeroCeiling {
		return false
	}

	c.offset = raw
	c.established = true
	return true
}

// Apply subtracts the zero offset from a raw reading, flooring at zero.
// Before calibration is established readings pass through unchanged.
func (c *Calibration) Apply(raw float64) float64 {
	if !c.established {
		return raw
	}

	v := raw - c.offset
	if v < 0 {
		v = 0
	}
	return v
}

// Reset discards the offset so the next qualifying reading re-establishes
// it. Used when the operator swaps test leads.
func (c *Calibration) Reset() {
	c.established = false
	c.offset = 0
}

// Established reports whether the zero offset has been taken.
func (c *Calibration) Established() bool {
	return c.established
}

// Offset returns the current zero offset in farads.
func (c *Calibration) Offset() float64 {
	return c.offset
}
