package main

import (
	"fmt"

	"github.com/itohio/gocapm/pkg/engine"
	"github.com/itohio/gocapm/pkg/si"
)

// updateStatus refreshes the toolbar status label with the active range and
// the zero calibration state. Must be called on the main Fyne thread.
func updateStatus(state *appState, eng *engine.Engine) {
	idx := eng.RangeIndex()
	rng := eng.ActiveRange()

	status := fmt.Sprintf("range %d/%d: %s /%d",
		idx, eng.TableSize()-1, si.Format(rng.Resistance, "Ω"), rng.Divider)

	if zeroed, offset := eng.Zeroed(); zeroed {
		status += fmt.Sprintf("  zero %s", si.Format(offset, "F"))
	} else {
		status += "  not zeroed"
	}

	state.statusLabel.SetText(status)
}
