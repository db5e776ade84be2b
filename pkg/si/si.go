// Package si formats values with SI prefixes for display and logging.
package si

import "strconv"

var prefixes = []string{"p", "n", "u", "m", "", "k", "M", "G"}

// Format renders a non-negative value with an SI prefix and four
// significant digits, e.g. Format(1.22e-7, "F") == "122.0nF".
// Values below 1 pF collapse toward "0.000pF"; values above the giga
// range saturate at the G prefix.
func Format(value float64, unit string) string {
	idx := 4 // no prefix
	v := value

	for v < 1 && idx > 0 {
		v *= 1e3
		idx--
	}
	for v >= 1e3 && idx < len(prefixes)-1 {
		v /= 1e3
		idx++
	}

	var digits int
	switch {
	case v >= 1e3:
		digits = 0
	case v >= 1e2:
		digits = 1
	case v >= 1e1:
		digits = 2
	default:
		digits = 3
	}

	return strconv.FormatFloat(v, 'f', digits, 64) + prefixes[idx] + unit
}
