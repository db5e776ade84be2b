package main

import (
	"fmt"
	"strconv"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"

	"github.com/itohio/gocapm/pkg/capture"
	"github.com/itohio/gocapm/pkg/si"
)

// showSettingsDialog displays a settings dialog with tabs for all configuration options.
func showSettingsDialog(state *appState) {
	// Create tabs
	tabs := container.NewAppTabs(
		createSerialTab(state),
		createTimingTab(state),
		createRangesTab(state),
		createMeasurementTab(state),
		createMockTab(state),
	)

	// Create dialog with tabs as content
	content := container.NewBorder(nil, nil, nil, nil, tabs)
	content.Resize(fyne.NewSize(600, 500))

	d := dialog.NewCustom("Settings", "Close", content, state.window)
	d.Resize(fyne.NewSize(600, 500))
	d.Show()
}

// createSerialTab creates the Serial configuration tab.
func createSerialTab(state *appState) *container.TabItem {
	// Get available serial ports
	ports, err := capture.Ports()
	portOptions := []string{}
	portMap := make(map[string]string) // Map display name to actual port name

	if err == nil {
		for _, port := range ports {
			displayName := port.Name
			if port.Description != "" && port.Description != port.Name {
				displayName = fmt.Sprintf("%s (%s)", port.Name, port.Description)
			}
			portOptions = append(portOptions, displayName)
			portMap[displayName] = port.Name
		}
	}

	// Add current port if not in list
	currentPort := state.cfg.Serial.Port
	currentDisplay := currentPort
	found := false
	for _, opt := range portOptions {
		if portMap[opt] == currentPort {
			currentDisplay = opt
			found = true
			break
		}
	}
	if !found && currentPort != "" {
		portOptions = append(portOptions, currentPort)
		portMap[currentPort] = currentPort
		currentDisplay = currentPort
	}

	portSelect := widget.NewSelect(portOptions, func(selected string) {
		// Selection handler - will be called on submit
	})
	if currentDisplay != "" {
		portSelect.SetSelected(currentDisplay)
	}

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Serial Port", Widget: portSelect},
		},
		OnSubmit: func() {
			if portSelect.Selected != "" {
				selectedPort := portMap[portSelect.Selected]
				if selectedPort == "" {
					selectedPort = portSelect.Selected // Fallback to selected text
				}

				// Check if port changed and device is connected
				portChanged := state.cfg.Serial.Port != selectedPort
				wasConnected := state.chain != nil && state.chain.device.IsConnected()

				state.cfg.Serial.Port = selectedPort
				if err := state.cfg.Save("config.yaml"); err != nil {
					dialog.ShowError(fmt.Errorf("failed to save config: %w", err), state.window)
					return
				}

				// If port changed and device was connected, restart the measurement chain
				if portChanged && wasConnected {
					// Gracefully close old chain
					closeMeasurementChain(state.chain)
					state.chain = nil

					// Reconnect with new port
					handleConnect(state)
				}
			}
		},
	}

	return container.NewTabItem("Serial", form)
}

// createTimingTab creates the Timing configuration tab. These values
// describe the capture hardware; they only take effect on reconnect.
func createTimingTab(state *appState) *container.TabItem {
	clockEntry := widget.NewEntry()
	clockEntry.SetText(fmt.Sprintf("%.0f", state.cfg.Timing.ClockHz))

	supplyEntry := widget.NewEntry()
	supplyEntry.SetText(fmt.Sprintf("%.2f", state.cfg.Timing.SupplyVolts))

	thresholdEntry := widget.NewEntry()
	thresholdEntry.SetText(fmt.Sprintf("%.2f", state.cfg.Timing.ThresholdVolts))

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Counter Clock (Hz)", Widget: clockEntry},
			{Text: "Supply (V)", Widget: supplyEntry},
			{Text: "Threshold (V)", Widget: thresholdEntry},
		},
		OnSubmit: func() {
			if clk, err := strconv.ParseFloat(clockEntry.Text, 64); err == nil && clk > 0 {
				state.cfg.Timing.ClockHz = clk
			}
			if sv, err := strconv.ParseFloat(supplyEntry.Text, 64); err == nil && sv > 0 {
				state.cfg.Timing.SupplyVolts = sv
			}
			if tv, err := strconv.ParseFloat(thresholdEntry.Text, 64); err == nil && tv > 0 {
				state.cfg.Timing.ThresholdVolts = tv
			}
			if err := state.cfg.Save("config.yaml"); err != nil {
				dialog.ShowError(fmt.Errorf("failed to save config: %w", err), state.window)
			}
		},
	}

	return container.NewTabItem("Timing", form)
}

// createRangesTab creates the Ranges tab. The table is display-only; it
// describes soldered-down resistors, so edits belong in the YAML file.
func createRangesTab(state *appState) *container.TabItem {
	list := widget.NewList(
		func() int {
			return len(state.cfg.Ranges)
		},
		func() fyne.CanvasObject {
			return widget.NewLabel("")
		},
		func(i widget.ListItemID, obj fyne.CanvasObject) {
			r := state.cfg.Ranges[i]
			obj.(*widget.Label).SetText(fmt.Sprintf(
				"%d: %s  /%d  drive=%d  min=%d  growth=%d",
				i, si.Format(r.Resistance, "Ω"), r.Divider, r.Drive, r.MinCount, r.Growth))
		},
	)

	return container.NewTabItem("Ranges", list)
}

// createMeasurementTab creates the Measurement configuration tab.
func createMeasurementTab(state *appState) *container.TabItem {
	defaultRangeEntry := widget.NewEntry()
	defaultRangeEntry.SetText(fmt.Sprintf("%d", state.cfg.Measure.DefaultRange))

	quickCheck := widget.NewCheck("", nil)
	quickCheck.SetChecked(state.cfg.Measure.QuickRange)

	traceCheck := widget.NewCheck("", nil)
	traceCheck.SetChecked(state.cfg.Measure.Trace)

	windowSecondsEntry := widget.NewEntry()
	windowSecondsEntry.SetText(fmt.Sprintf("%.1f", state.cfg.Measure.WindowSeconds))

	averageSamplesEntry := widget.NewEntry()
	averageSamplesEntry.SetText(fmt.Sprintf("%d", state.cfg.Measure.AverageSamples))

	intervalEntry := widget.NewEntry()
	intervalEntry.SetText(state.cfg.Report.Interval.String())

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Boot Range Index", Widget: defaultRangeEntry},
			{Text: "Quick Auto-Range", Widget: quickCheck},
			{Text: "Trace Cycles", Widget: traceCheck},
			{Text: "Window (seconds)", Widget: windowSecondsEntry},
			{Text: "Average Samples (0=latest)", Widget: averageSamplesEntry},
			{Text: "Report Interval", Widget: intervalEntry},
		},
		OnSubmit: func() {
			if dr, err := strconv.Atoi(defaultRangeEntry.Text); err == nil && dr >= 0 && dr < len(state.cfg.Ranges) {
				state.cfg.Measure.DefaultRange = dr
			}
			state.cfg.Measure.QuickRange = quickCheck.Checked
			state.cfg.Measure.Trace = traceCheck.Checked
			if ws, err := strconv.ParseFloat(windowSecondsEntry.Text, 64); err == nil && ws > 0 {
				state.cfg.Measure.WindowSeconds = ws
			}
			if avg, err := strconv.Atoi(averageSamplesEntry.Text); err == nil && avg >= 0 {
				state.cfg.Measure.AverageSamples = avg
			}
			if iv, err := time.ParseDuration(intervalEntry.Text); err == nil && iv > 0 {
				state.cfg.Report.Interval = iv
			}
			if err := state.cfg.Save("config.yaml"); err != nil {
				dialog.ShowError(fmt.Errorf("failed to save config: %w", err), state.window)
			}
		},
	}

	return container.NewTabItem("Measurement", form)
}

// createMockTab creates the Mock device configuration tab.
func createMockTab(state *appState) *container.TabItem {
	capacitanceEntry := widget.NewEntry()
	capacitanceEntry.SetText(fmt.Sprintf("%g", state.cfg.Mock.Capacitance))

	strayEntry := widget.NewEntry()
	strayEntry.SetText(fmt.Sprintf("%g", state.cfg.Mock.Stray))

	noiseLevelEntry := widget.NewEntry()
	noiseLevelEntry.SetText(fmt.Sprintf("%.4f", state.cfg.Mock.NoiseLevel))

	delayEntry := widget.NewEntry()
	delayEntry.SetText(state.cfg.Mock.Delay.String())

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Capacitance (F)", Widget: capacitanceEntry},
			{Text: "Stray (F)", Widget: strayEntry},
			{Text: "Noise Level (fraction)", Widget: noiseLevelEntry},
			{Text: "Result Delay", Widget: delayEntry},
		},
		OnSubmit: func() {
			if c, err := strconv.ParseFloat(capacitanceEntry.Text, 64); err == nil && c >= 0 {
				state.cfg.Mock.Capacitance = c
			}
			if s, err := strconv.ParseFloat(strayEntry.Text, 64); err == nil && s >= 0 {
				state.cfg.Mock.Stray = s
			}
			if nl, err := strconv.ParseFloat(noiseLevelEntry.Text, 64); err == nil && nl >= 0 {
				state.cfg.Mock.NoiseLevel = nl
			}
			if d, err := time.ParseDuration(delayEntry.Text); err == nil && d > 0 {
				state.cfg.Mock.Delay = d
			}
			if err := state.cfg.Save("config.yaml"); err != nil {
				dialog.ShowError(fmt.Errorf("failed to save config: %w", err), state.window)
			}
		},
	}

	return container.NewTabItem("Mock", form)
}
