//go:build tinygo

package main

import "machine"

const (
	// Capture timing
	// The emulated counter clock matches the original timer hardware; counts
	// are derived from elapsed microseconds, scaled by the requested divider.
	CLOCK_HZ   = 16000000
	FULL_SCALE = 0xFFFF // Counter wrap: the cycle is reported as overflowed

	// Threshold detection
	// The sense ADC stands in for an analog comparator: the cycle ends when
	// the capacitor voltage falls to the bandgap threshold.
	ADC_REFERENCE_MV = 3300 // Reference voltage in millivolts (3.3V)
	ADC_RESOLUTION   = 12   // ADC resolution in bits (12-bit = 0-4095)
	THRESHOLD_MV     = 1100 // Comparator threshold in millivolts

	// Drive selector bits, one per resistor path
	DRIVE_270R = 1 << 0
	DRIVE_10K  = 1 << 1
	DRIVE_1M   = 1 << 2

	// Resistor path pins
	PIN_DRIVE_270R = machine.D7
	PIN_DRIVE_10K  = machine.D8
	PIN_DRIVE_1M   = machine.D9

	// Capacitor sense pin
	PIN_SENSE = machine.A1

	// Serial configuration
	// Format "unix_micros,count,overflow\n"
	// Example: "1234567890123456,65535,1\n" = ~25 bytes max per line
	// One line per charge cycle, at most a few per second: 115200 8N1 gives
	// orders of magnitude of headroom
	UART_BAUD_RATE = 115200
)
