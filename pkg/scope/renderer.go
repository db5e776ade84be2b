package scope

import (
	"image/color"
	"math"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"

	"github.com/itohio/gocapm/pkg/si"
	"github.com/itohio/gocapm/pkg/trend"
)

// scopeRenderer renders the scope widget.
type scopeRenderer struct {
	scope *ScopeWidget

	// Background
	grid *canvas.Rectangle

	// Range shift markers (vertical lines) and their labels
	shiftLines  []*canvas.Line
	shiftLabels []*canvas.Text

	// Current value readout
	valueLabel *canvas.Text

	// Grid lines
	gridLines []*canvas.Line
	gridTexts []*canvas.Text

	// Objects list for Fyne
	objects []fyne.CanvasObject

	// Track last size to detect changes
	lastSize fyne.Size
}

// MinSize returns the minimum size of the widget.
func (r *scopeRenderer) MinSize() fyne.Size {
	return fyne.NewSize(400, 300)
}

// Layout arranges the widget components.
func (r *scopeRenderer) Layout(size fyne.Size) {
	// Background fills entire widget
	r.grid.Resize(size)

	// Check if size changed
	if r.lastSize.Width != size.Width || r.lastSize.Height != size.Height {
		r.lastSize = size
		// Size changed, trigger widget refresh to redraw with new dimensions
		// Use BaseWidget.Refresh() to properly trigger Fyne's refresh cycle
		r.scope.BaseWidget.Refresh()
	}
}

// Refresh updates the widget display.
func (r *scopeRenderer) Refresh() {
	r.scope.mu.RLock()
	readings := r.scope.displayReadings
	shifts := r.scope.shifts
	smoothed := r.scope.smoothed
	yMin := r.scope.yMin
	yMax := r.scope.yMax
	xMin := r.scope.xMin
	xMax := r.scope.xMax
	r.scope.mu.RUnlock()

	size := r.scope.Size()
	if size.Width == 0 || size.Height == 0 {
		return
	}

	// Clear old objects (but keep grid)
	r.objects = []fyne.CanvasObject{r.grid}
	r.gridLines = r.gridLines[:0]
	r.gridTexts = r.gridTexts[:0]
	r.shiftLines = r.shiftLines[:0]
	r.shiftLabels = r.shiftLabels[:0]
	r.valueLabel = nil

	// Calculate margins
	marginLeft := float32(70.0)
	marginRight := float32(20.0)
	marginTop := float32(20.0)
	marginBottom := float32(40.0)

	plotWidth := size.Width - marginLeft - marginRight
	plotHeight := size.Height - marginTop - marginBottom
	plotX := marginLeft
	plotY := marginTop

	// Draw grid
	r.drawGrid(plotX, plotY, plotWidth, plotHeight, yMin, yMax, xMin, xMax)

	// Draw capacitance trace (orange line)
	if len(readings) > 1 {
		r.drawTraceLine(plotX, plotY, plotWidth, plotHeight, readings, yMin, yMax, xMin, xMax)
	}

	// Draw range shift markers (dark blue vertical lines)
	r.drawShifts(plotX, plotY, plotWidth, plotHeight, shifts, readings, xMin, xMax)

	// Draw current value readout
	r.drawValueReadout(plotX, plotY, readings, smoothed)
}

// drawGrid draws the oscilloscope-style grid.
func (r *scopeRenderer) drawGrid(plotX, plotY, plotWidth, plotHeight float32, yMin, yMax float64, xMin, xMax time.Time) {
	// Horizontal grid lines (capacitance)
	numHLines := 8
	for i := 0; i <= numHLines; i++ {
		y := plotY + float32(i)*plotHeight/float32(numHLines)
		line := canvas.NewLine(color.RGBA{R: 40, G: 40, B: 40, A: 255})
		line.Position1 = fyne.NewPos(plotX, y)
		line.Position2 = fyne.NewPos(plotX+plotWidth, y)
		line.StrokeWidth = 1
		r.gridLines = append(r.gridLines, line)
		r.objects = append(r.objects, line)

		// Y-axis label
		value := yMax - float64(i)*(yMax-yMin)/float64(numHLines)
		text := canvas.NewText(si.Format(value, "F"), color.RGBA{R: 150, G: 150, B: 150, A: 255})
		text.TextSize = 10
		text.Alignment = fyne.TextAlignTrailing
		text.Move(fyne.NewPos(plotX-5, y-6))
		r.gridTexts = append(r.gridTexts, text)
		r.objects = append(r.objects, text)
	}

	// Vertical grid lines (time)
	numVLines := 10
	for i := 0; i <= numVLines; i++ {
		x := plotX + float32(i)*plotWidth/float32(numVLines)
		line := canvas.NewLine(color.RGBA{R: 40, G: 40, B: 40, A: 255})
		line.Position1 = fyne.NewPos(x, plotY)
		line.Position2 = fyne.NewPos(x, plotY+plotHeight)
		line.StrokeWidth = 1
		r.gridLines = append(r.gridLines, line)
		r.objects = append(r.objects, line)

		// X-axis label
		timeOffset := float64(i) * xMax.Sub(xMin).Seconds() / float64(numVLines)
		timeVal := xMin.Add(time.Duration(timeOffset * float64(time.Second)))
		text := canvas.NewText(formatTime(timeVal.Sub(xMin)), color.RGBA{R: 150, G: 150, B: 150, A: 255})
		text.TextSize = 10
		text.Alignment = fyne.TextAlignCenter
		text.Move(fyne.NewPos(x-20, plotY+plotHeight+5))
		r.gridTexts = append(r.gridTexts, text)
		r.objects = append(r.objects, text)
	}
}

// drawTraceLine draws the capacitance trace (orange). Out-of-range
// readings break the trace instead of plotting a bogus value.
func (r *scopeRenderer) drawTraceLine(plotX, plotY, plotWidth, plotHeight float32, readings []trend.Reading, yMin, yMax float64, xMin, xMax time.Time) {
	if len(readings) < 2 {
		return
	}

	span := xMax.Sub(xMin).Seconds()
	if span <= 0 || yMax <= yMin {
		return
	}

	var prev *fyne.Position
	for i := range readings {
		if readings[i].OutOfRange {
			prev = nil
			continue
		}
		x := plotX + float32(readings[i].Timestamp.Sub(xMin).Seconds()/span)*plotWidth
		y := plotY + plotHeight - float32((readings[i].Capacitance-yMin)/(yMax-yMin))*plotHeight
		pos := fyne.NewPos(x, y)
		if prev != nil {
			line := canvas.NewLine(color.RGBA{R: 255, G: 165, B: 0, A: 255}) // Orange
			line.Position1 = *prev
			line.Position2 = pos
			line.StrokeWidth = 1.5
			r.objects = append(r.objects, line)
		}
		prev = &pos
	}
}

// drawShifts draws vertical markers where the auto-ranger changed range
// (dark blue), labelled with the new range index.
func (r *scopeRenderer) drawShifts(plotX, plotY, plotWidth, plotHeight float32, shifts []trend.Shift, readings []trend.Reading, xMin, xMax time.Time) {
	if len(readings) == 0 {
		return
	}

	span := xMax.Sub(xMin).Seconds()
	if span <= 0 {
		return
	}

	for _, shift := range shifts {
		x := plotX + float32(shift.Time.Sub(xMin).Seconds()/span)*plotWidth
		if x < plotX || x > plotX+plotWidth {
			continue
		}

		line := canvas.NewLine(color.RGBA{R: 0, G: 100, B: 200, A: 255}) // Dark blue
		line.Position1 = fyne.NewPos(x, plotY)
		line.Position2 = fyne.NewPos(x, plotY+plotHeight)
		line.StrokeWidth = 1
		r.shiftLines = append(r.shiftLines, line)
		r.objects = append(r.objects, line)

		label := "R" + formatInt(int64(shift.To))
		text := canvas.NewText(label, color.RGBA{R: 100, G: 200, B: 255, A: 255}) // Light blue
		text.TextSize = 10
		text.Alignment = fyne.TextAlignCenter
		text.Move(fyne.NewPos(x-10, plotY+2))
		r.shiftLabels = append(r.shiftLabels, text)
		r.objects = append(r.objects, text)
	}
}

// drawValueReadout draws the large current-value label in the top-left
// corner of the plot area.
func (r *scopeRenderer) drawValueReadout(plotX, plotY float32, readings []trend.Reading, smoothed float64) {
	var label string
	if n := len(readings); n > 0 && readings[n-1].OutOfRange {
		label = "out of range"
	} else if n == 0 {
		label = "---"
	} else {
		label = si.Format(smoothed, "F")
	}

	text := canvas.NewText(label, color.RGBA{R: 255, G: 165, B: 0, A: 255}) // Orange
	text.TextSize = 22
	text.TextStyle = fyne.TextStyle{Bold: true}
	text.Alignment = fyne.TextAlignLeading
	text.Move(fyne.NewPos(plotX+10, plotY+10))
	r.valueLabel = text
	r.objects = append(r.objects, text)
}

// Objects returns all canvas objects for rendering.
func (r *scopeRenderer) Objects() []fyne.CanvasObject {
	return r.objects
}

// Destroy cleans up resources.
func (r *scopeRenderer) Destroy() {
	// Cleanup handled by Fyne
}

// Helper functions for formatting

func formatTime(d time.Duration) string {
	if d < time.Second {
		return formatFloat(d.Seconds(), 2) + "s"
	}
	return formatFloat(d.Seconds(), 1) + "s"
}

func formatFloat(v float64, decimals int) string {
	str := ""
	if v < 0 {
		str = "-"
		v = -v
	}
	intPart := int64(v)
	str += formatInt(intPart)
	if decimals > 0 {
		frac := v - float64(intPart)
		fracStr := formatInt(int64(math.Round(frac * math.Pow(10, float64(decimals)))))
		// Pad with zeros
		for len(fracStr) < decimals {
			fracStr = "0" + fracStr
		}
		str += "." + fracStr
	}
	return str
}

func formatInt(v int64) string {
	if v == 0 {
		return "0"
	}
	str := ""
	neg := v < 0
	if neg {
		v = -v
	}
	for v > 0 {
		str = string(rune('0'+v%10)) + str
		v /= 10
	}
	if neg {
		str = "-" + str
	}
	return str
}
