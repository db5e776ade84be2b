package engine

// Estimate converts a captured count to a capacitance in farads.
// The count times the divided clock period gives the threshold-crossing
// time; dividing out the time constants and the series resistor leaves C:
//
//	C = (count * divider / clockHz) / tauFall / R
//
// Overflowed cycles never reach the estimator; they are reported as out of
// range instead of a number.
func Estimate(count uint16, r Range, clockHz, tauFall float64) float64 {
	seconds := float64(count) * float64(r.Divider) / clockHz
	return seconds / tauFall / r.Resistance
}
