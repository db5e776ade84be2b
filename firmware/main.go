//go:build tinygo

//go:generate tinygo flash -target=xiao

package main

import (
	"machine"
	"time"

	"github.com/chewxy/math32"
)

var (
	adcSense machine.ADC
	uart     = machine.UART0

	// Threshold in raw ADC counts, computed once at boot
	thresholdCounts uint16

	// Active cycle state
	measuring bool
	divider   uint16
	startTime time.Time

	// Serial buffer for reading command lines
	serialBuffer [16]byte
	serialPos    int
)

func main() {
	// Configure drive pins as outputs and park in the hold topology
	PIN_DRIVE_270R.Configure(machine.PinConfig{Mode: machine.PinOutput})
	PIN_DRIVE_10K.Configure(machine.PinConfig{Mode: machine.PinOutput})
	PIN_DRIVE_1M.Configure(machine.PinConfig{Mode: machine.PinOutput})
	hold()

	// Configure sense ADC with highest resolution
	PIN_SENSE.Configure(machine.PinConfig{Mode: machine.PinInput})
	adcSense = machine.ADC{Pin: PIN_SENSE}
	adcSense.Configure(machine.ADCConfig{
		Reference:  ADC_REFERENCE_MV,
		Resolution: ADC_RESOLUTION,
	})

	// ADC.Get() returns a 16-bit left-aligned value regardless of resolution
	thresholdCounts = uint16(math32.Round(65535 * float32(THRESHOLD_MV) / float32(ADC_REFERENCE_MV)))

	// Configure UART for cycle commands
	uart.Configure(machine.UARTConfig{
		BaudRate: UART_BAUD_RATE,
	})

	// Main loop
	for {
		// Check for serial input (non-blocking)
		processSerial()

		if measuring {
			checkCycle()
		}

		// Small delay to prevent tight loop (but still allow precise timing)
		time.Sleep(100 * time.Microsecond)
	}
}

// hold parks all resistor paths high, keeping the capacitor charged to the
// rail between cycles.
func hold() {
	PIN_DRIVE_270R.Configure(machine.PinConfig{Mode: machine.PinOutput})
	PIN_DRIVE_10K.Configure(machine.PinConfig{Mode: machine.PinOutput})
	PIN_DRIVE_1M.Configure(machine.PinConfig{Mode: machine.PinOutput})
	PIN_DRIVE_270R.High()
	PIN_DRIVE_10K.High()
	PIN_DRIVE_1M.High()
}

// startCycle selects the requested resistor path and starts timing. The
// selected path drives low so the capacitor discharges through its resistor
// toward the threshold; unselected paths float so they do not shunt it.
func startCycle(drive uint8, div uint16) {
	configureDrivePin(PIN_DRIVE_270R, drive&DRIVE_270R != 0)
	configureDrivePin(PIN_DRIVE_10K, drive&DRIVE_10K != 0)
	configureDrivePin(PIN_DRIVE_1M, drive&DRIVE_1M != 0)

	divider = div
	startTime = time.Now()
	measuring = true
}

func configureDrivePin(pin machine.Pin, selected bool) {
	if selected {
		pin.Configure(machine.PinConfig{Mode: machine.PinOutput})
		pin.Low()
	} else {
		pin.Configure(machine.PinConfig{Mode: machine.PinInput})
	}
}

// stopCycle ends the active cycle without a report and restores the hold
// topology.
func stopCycle() {
	measuring = false
	hold()
}

// checkCycle polls the sense ADC against the threshold and the elapsed time
// against the counter range. Either outcome latches exactly one report.
func checkCycle() {
	elapsed := time.Since(startTime)
	count := elapsedCounts(elapsed)

	if count >= FULL_SCALE {
		reportCycle(FULL_SCALE, true)
		stopCycle()
		return
	}

	if adcSense.Get() <= thresholdCounts {
		reportCycle(count, false)
		stopCycle()
	}
}

// elapsedCounts converts elapsed wall time to timer counts at the emulated
// counter clock, scaled down by the active divider.
func elapsedCounts(elapsed time.Duration) uint32 {
	micros := float32(elapsed.Microseconds())
	ticks := math32.Round(micros * (CLOCK_HZ / 1e6) / float32(divider))
	if ticks < 0 {
		return 0
	}
	if ticks >= FULL_SCALE {
		return FULL_SCALE
	}
	return uint32(ticks)
}

// reportCycle emits one result line.
// Output format: "unix_micros,count,overflow\n"
// Example: "1234567890123,24226,0\n"
func reportCycle(count uint32, overflow bool) {
	timestampMicros := time.Now().UnixNano() / 1000

	print(timestampMicros)
	print(",")
	print(count)
	print(",")
	if overflow {
		print("1")
	} else {
		print("0")
	}
	print("\n")
}

func processSerial() {
	// Read available bytes from serial
	for uart.Buffered() > 0 {
		data, err := uart.ReadByte()
		if err != nil {
			break
		}

		// Check for newline (end of line)
		if data == '\n' || data == '\r' {
			if serialPos > 0 {
				processCommand()
			}
			// Reset buffer regardless of length
			serialPos = 0
			continue
		}

		// Ignore whitespace
		if data == ' ' || data == '\t' {
			continue
		}

		if serialPos < len(serialBuffer) {
			serialBuffer[serialPos] = data
			serialPos++
		}
		// Overlong lines are truncated and will fail to parse
	}
}

// processCommand parses one buffered line.
// "C,<drive>,<divider>" starts a cycle, "D" aborts it. Anything else is
// silently dropped so line noise cannot wedge the meter.
func processCommand() {
	line := serialBuffer[:serialPos]

	switch line[0] {
	case 'D':
		if len(line) == 1 {
			stopCycle()
		}
	case 'C':
		drive, div, ok := parseChargeArgs(line)
		if !ok {
			return
		}
		// A charge while measuring restarts the cycle with the new range
		startCycle(drive, div)
	}
}

// parseChargeArgs parses ",<drive>,<divider>" after the command byte.
func parseChargeArgs(line []byte) (uint8, uint16, bool) {
	if len(line) < 4 || line[1] != ',' {
		return 0, 0, false
	}

	var drive uint32
	i := 2
	for ; i < len(line) && line[i] != ','; i++ {
		if line[i] < '0' || line[i] > '9' {
			return 0, 0, false
		}
		drive = drive*10 + uint32(line[i]-'0')
		if drive > 0xFF {
			return 0, 0, false
		}
	}
	if i >= len(line)-1 || line[i] != ',' {
		return 0, 0, false
	}

	var div uint32
	for i++; i < len(line); i++ {
		if line[i] < '0' || line[i] > '9' {
			return 0, 0, false
		}
		div = div*10 + uint32(line[i]-'0')
		if div > 0xFFFF {
			return 0, 0, false
		}
	}
	if drive == 0 || div == 0 {
		return 0, 0, false
	}

	return uint8(drive), uint16(div), true
}
