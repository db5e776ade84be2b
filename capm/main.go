package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"github.com/itohio/gocapm/pkg/capture"
	"github.com/itohio/gocapm/pkg/config"
	"github.com/itohio/gocapm/pkg/engine"
	"github.com/itohio/gocapm/pkg/scope"
	"github.com/itohio/gocapm/pkg/trend"
)

func main() {
	var (
		portFlag   = flag.String("p", "", "Serial port override (e.g., COM3 or /dev/ttyACM0)")
		configFlag = flag.String("config", "config.yaml", "Configuration file path")
		mockFlag   = flag.Bool("mock", false, "Use mocked device instead of serial port")
		quickFlag  = flag.Bool("quick", false, "Enable quick multi-step auto-ranging (overrides config)")
		traceFlag  = flag.Bool("trace", false, "Log per-cycle measurement details (overrides config)")
	)
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Override serial port if provided via command line
	if *portFlag != "" {
		cfg.Serial.Port = *portFlag
	}

	if *quickFlag {
		cfg.Measure.QuickRange = true
	}
	if *traceFlag {
		cfg.Measure.Trace = true
	}

	// Create Fyne application
	application := app.NewWithID("com.itohio.gocapm")

	// Create main window
	window := application.NewWindow("Capacitance Meter")
	window.Resize(fyne.NewSize(1200, 800))
	window.CenterOnScreen()

	// Create the trend tracker that feeds the display
	tracker := trend.New(
		time.Duration(cfg.Measure.WindowSeconds*float64(time.Second)),
		cfg.Measure.AverageSamples,
	)

	// Create application state
	state := &appState{
		cfg:     cfg,
		tracker: tracker,
		window:  window,
		useMock: *mockFlag,
	}

	// Create toolbar
	toolbar := createToolbar(state)

	// Create scope widget for the capacitance trace
	scopeWidget := scope.New(cfg)
	state.scopeWidget = scopeWidget

	// Create border layout with toolbar at top and scope widget as content
	content := container.NewBorder(
		toolbar,
		nil,
		nil,
		nil,
		scopeWidget,
	)

	window.SetContent(content)
	window.ShowAndRun()

	// Window closed: tear down any running chain
	closeMeasurementChain(state.chain)
}

// measurementChain tracks the components of the measurement chain for
// graceful shutdown.
type measurementChain struct {
	device          capture.Device
	eng             *engine.Engine
	cancel          context.CancelFunc
	engineGoroutine chan struct{} // Closed when the engine goroutine exits
	trendGoroutine  chan struct{} // Closed when the trend goroutine exits
}

// appState holds the application state.
type appState struct {
	cfg         *config.Config
	tracker     *trend.Tracker
	scopeWidget *scope.ScopeWidget
	window      fyne.Window
	connectBtn  *widget.Button
	zeroBtn     *widget.Button
	statusLabel *widget.Label
	useMock     bool
	chain       *measurementChain // Current measurement chain (nil if not connected)

	// Throttling for scope updates
	lastUpdateTime time.Time
	updateMu       sync.Mutex
}

// createToolbar creates the application toolbar with Connect, Settings and
// Zero buttons plus the range/zero status readout.
func createToolbar(state *appState) fyne.CanvasObject {
	// Connect button with icon
	connectBtn := widget.NewButtonWithIcon("", theme.LoginIcon(), func() {
		handleConnect(state)
	})
	state.connectBtn = connectBtn

	// Settings button with icon
	settingsBtn := widget.NewButtonWithIcon("", theme.SettingsIcon(), func() {
		showSettingsDialog(state)
	})

	// Zero button discards the stray-capacitance offset so the meter
	// re-zeroes on the next open-lead reading
	zeroBtn := widget.NewButtonWithIcon("Zero", theme.MediaSkipPreviousIcon(), func() {
		handleZero(state)
	})
	zeroBtn.Disable()
	state.zeroBtn = zeroBtn

	// Range and zero status readout
	statusLabel := widget.NewLabel("disconnected")
	state.statusLabel = statusLabel

	return container.NewBorder(
		nil, // top
		nil, // bottom
		container.NewHBox(connectBtn, settingsBtn, zeroBtn), // left
		statusLabel, // right
		nil,         // center (spacer)
	)
}

// closeMeasurementChain gracefully closes the measurement chain.
// Waits for all goroutines to finish and channels to drain.
func closeMeasurementChain(chain *measurementChain) {
	if chain == nil {
		return
	}

	// Stop the engine loop first so no new cycles start
	if chain.cancel != nil {
		chain.cancel()
	}

	// Close device - this unblocks a cycle waiting on a result
	if chain.device != nil {
		chain.device.Close()
	}

	// Wait for the engine goroutine to finish; it closes the report
	// channel on exit
	if chain.engineGoroutine != nil {
		<-chain.engineGoroutine
	}

	// Wait for the trend goroutine; it exits when the report channel closes
	if chain.trendGoroutine != nil {
		<-chain.trendGoroutine
	}
}

// handleConnect handles the connect/disconnect button click.
func handleConnect(state *appState) {
	if state.chain != nil && state.chain.device.IsConnected() {
		// Disconnect - gracefully close measurement chain
		closeMeasurementChain(state.chain)
		state.chain = nil
		state.zeroBtn.Disable()
		state.statusLabel.SetText("disconnected")
		if state.useMock {
			fmt.Println("Disconnected from mocked device")
		} else {
			fmt.Println("Disconnected from serial port")
		}
		return
	}

	// Connect
	var device capture.Device
	if state.useMock {
		device = capture.NewMock(state.cfg)
		fmt.Println("Using mocked device")
	} else {
		device = capture.New(state.cfg.Serial.Port, capture.DefaultBaudRate, capture.DefaultBufferSize)
	}

	if err := device.Connect(); err != nil {
		if state.useMock {
			dialog.ShowError(fmt.Errorf("failed to connect to mocked device: %w", err), state.window)
		} else {
			dialog.ShowError(fmt.Errorf("failed to connect to %s: %w", state.cfg.Serial.Port, err), state.window)
		}
		return
	}
	if state.useMock {
		fmt.Printf("Connected to mocked device\n")
	} else {
		fmt.Printf("Connected to serial port: %s\n", state.cfg.Serial.Port)
	}

	// The range table is validated up front; a bad table is a
	// configuration error, not something to discover mid-measurement
	table, err := engine.NewTable(state.cfg)
	if err != nil {
		device.Close()
		dialog.ShowError(fmt.Errorf("invalid range table: %w", err), state.window)
		return
	}

	eng := engine.New(state.cfg, table, device)

	state.zeroBtn.Enable()

	// Reset tracker shutdown flag for the new chain
	state.tracker.ResetShutdown()

	// Register callback with the tracker to update the scope widget.
	// This must be done before starting the measurement chain.
	// Throttle updates to ~60 FPS to ensure smooth UI.
	const updateInterval = 16 * time.Millisecond
	state.tracker.OnUpdate(func(readings []trend.Reading, shifts []trend.Shift, smoothed float64) {
		// Throttle updates to prevent UI from being overwhelmed
		state.updateMu.Lock()
		now := time.Now()
		timeSinceLastUpdate := now.Sub(state.lastUpdateTime)
		state.updateMu.Unlock()

		// Skip update if too soon since last update
		if timeSinceLastUpdate < updateInterval {
			return
		}

		// Update timestamp
		state.updateMu.Lock()
		state.lastUpdateTime = now
		state.updateMu.Unlock()

		// Update widgets on main thread
		// Scope widget handles downsampling internally, so pass full data
		fyne.Do(func() {
			state.scopeWidget.UpdateData(readings, shifts, smoothed)
			updateStatus(state, eng)
		})
	})

	// Track goroutines for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	engineDone := make(chan struct{})
	trendDone := make(chan struct{})

	// Drive charge cycles until disconnect
	go func() {
		defer close(engineDone)
		if err := eng.Run(ctx); err != nil {
			log.Printf("Engine stopped: %v", err)
		}
	}()

	// Feed reports into the trend tracker
	go func() {
		defer close(trendDone)
		state.tracker.ProcessReports(eng.Reports())
	}()

	// Store chain for graceful shutdown
	state.chain = &measurementChain{
		device:          device,
		eng:             eng,
		cancel:          cancel,
		engineGoroutine: engineDone,
		trendGoroutine:  trendDone,
	}
}

// handleZero handles the Zero button click.
func handleZero(state *appState) {
	if state.chain == nil {
		return
	}
	state.chain.eng.ResetZero()
	fmt.Println("Zero offset discarded, re-zeroing on next open-lead reading")
}
