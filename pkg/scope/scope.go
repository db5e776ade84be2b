package scope

import (
	"image/color"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/widget"

	"github.com/itohio/gocapm/pkg/config"
	"github.com/itohio/gocapm/pkg/trend"
)

// ScopeWidget is a custom Fyne widget that displays the capacitance trace
// with range-shift markers and a large current-value readout.
type ScopeWidget struct {
	widget.BaseWidget

	cfg *config.Config

	// Data (protected by mu)
	mu       sync.RWMutex
	readings []trend.Reading
	shifts   []trend.Shift
	smoothed float64

	// Display buffer (reused for downsampling)
	displayReadings []trend.Reading

	// Auto-scaling
	yMin, yMax float64
	xMin, xMax time.Time

	// Display settings
	maxDisplayPoints int
}

// New creates a new ScopeWidget instance.
func New(cfg *config.Config) *ScopeWidget {
	s := &ScopeWidget{
		cfg:              cfg,
		readings:         make([]trend.Reading, 0),
		shifts:           make([]trend.Shift, 0),
		displayReadings:  make([]trend.Reading, 0, 1000),
		maxDisplayPoints: 1000, // Limit points for efficient rendering
	}
	s.ExtendBaseWidget(s)
	// Trigger initial refresh to display empty scope
	s.Refresh()
	return s
}

// UpdateData updates the widget with new trend data.
// This should be called from the tracker callback using fyne.Do().
func (s *ScopeWidget) UpdateData(readings []trend.Reading, shifts []trend.Shift, smoothed float64) {
	s.mu.Lock()

	// Downsample for display (reuse buffer)
	s.displayReadings = trend.DownsampleReadings(s.displayReadings, readings, s.maxDisplayPoints)

	// Store full data
	s.readings = readings
	s.shifts = shifts
	s.smoothed = smoothed

	// Calculate auto-scaling
	s.updateAutoScale()

	s.mu.Unlock()

	// Refresh the widget (must be outside lock to avoid potential deadlock)
	s.Refresh()
}

// updateAutoScale calculates axis ranges from current data. Out-of-range
// readings carry no capacitance value and are skipped for the Y axis.
func (s *ScopeWidget) updateAutoScale() {
	if len(s.displayReadings) == 0 {
		s.yMin = 0.0
		s.yMax = 1e-9
		s.xMin = time.Now()
		s.xMax = time.Now().Add(10 * time.Second)
		return
	}

	first := true
	for _, r := range s.displayReadings {
		if r.OutOfRange {
			continue
		}
		if first {
			s.yMin = r.Capacitance
			s.yMax = r.Capacitance
			first = false
			continue
		}
		if r.Capacitance < s.yMin {
			s.yMin = r.Capacitance
		}
		if r.Capacitance > s.yMax {
			s.yMax = r.Capacitance
		}
	}
	if first {
		// Window holds only out-of-range readings
		s.yMin = 0.0
		s.yMax = 1e-9
	}

	// Add 10% margin
	range_ := s.yMax - s.yMin
	if range_ == 0 {
		range_ = s.yMax * 0.1
		if range_ == 0 {
			range_ = 1e-12
		}
	}
	margin := range_ * 0.1
	s.yMin -= margin
	s.yMax += margin
	if s.yMin < 0 {
		s.yMin = 0
	}

	// Time range
	s.xMin = s.displayReadings[0].Timestamp
	s.xMax = s.displayReadings[len(s.displayReadings)-1].Timestamp
	// Ensure minimum window
	minWindow := time.Duration(s.cfg.Measure.WindowSeconds * float64(time.Second))
	if minWindow <= 0 {
		minWindow = time.Second
	}
	if s.xMax.Sub(s.xMin) < minWindow {
		s.xMax = s.xMin.Add(minWindow)
	}
}

// CreateRenderer creates the widget renderer.
func (s *ScopeWidget) CreateRenderer() fyne.WidgetRenderer {
	grid := canvas.NewRectangle(color.RGBA{R: 20, G: 20, B: 20, A: 255}) // Dark background
	return &scopeRenderer{
		scope:    s,
		grid:     grid,
		objects:  []fyne.CanvasObject{grid},
		lastSize: fyne.Size{Width: 0, Height: 0},
	}
}
