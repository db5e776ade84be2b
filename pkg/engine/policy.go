package engine

import "github.com/itohio/gocapm/pkg/capture"

// Next returns the range index for the next cycle given the result of the
// one that just completed. The policy is a single-step hill-climb with
// hysteresis: overflow steps down toward lower resistance, a count below
// the range's minimum steps up for more resolution, anything in between
// holds. The index is clamped at the table bounds in both directions.
func Next(res capture.Result, index int, table Table) int {
	if res.Overflow {
		if index > 0 {
			return index - 1
		}
		return index
	}

	if res.Count < table[index].MinCount && index < len(table)-1 {
		return index + 1
	}

	return index
}

// NextQuick is the opt-in multi-step variant of Next. On a low count it
// projects the count through each range's growth factor and keeps climbing
// while the projection still falls short of the next range's minimum,
// converging in one decision instead of several cycles. A zero growth
// factor stops the walk. Overflow behaves exactly as in Next: one step
// down, clamped.
func NextQuick(res capture.Result, index int, table Table) int {
	if res.Overflow {
		if index > 0 {
			return index - 1
		}
		return index
	}

	projected := uint64(res.Count)
	for index < len(table)-1 && projected < uint64(table[index].MinCount) {
		growth := uint64(table[index].Growth)
		if growth == 0 {
			break
		}
		projected *= growth
		index++
	}

	return index
}
