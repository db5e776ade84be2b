package trend

// DownsampleReadings decimates a slice of readings to at most maxPoints for
// display. Destination-based: reuses dst when it has sufficient capacity,
// otherwise allocates. Returns the destination slice.
func DownsampleReadings(dst []Reading, readings []Reading, maxPoints int) []Reading {
	if len(readings) <= maxPoints {
		if cap(dst) >= len(readings) {
			dst = dst[:len(readings)]
			copy(dst, readings)
			return dst
		}
		result := make([]Reading, len(readings))
		copy(result, readings)
		return result
	}

	if cap(dst) >= maxPoints {
		dst = dst[:0]
	} else {
		dst = make([]Reading, 0, maxPoints)
	}

	step := float64(len(readings)) / float64(maxPoints)

	for i := 0; i < maxPoints; i++ {
		idx := int(float64(i) * step)
		if idx < len(readings) {
			dst = append(dst, readings[idx])
		}
	}

	return dst
}
