package capture

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
)

const (
	// DefaultBaudRate is the standard baud rate for the meter firmware.
	DefaultBaudRate = 115200
	// DefaultBufferSize is the default size for the results channel buffer.
	DefaultBufferSize = 16
	// FullScale is the maximum representable capture count. A count of
	// FullScale on the wire means the counter wrapped before the threshold
	// crossing was detected.
	FullScale = 0xFFFF
)

// Result represents the outcome of one charge cycle: either the counter
// value latched at the threshold crossing, or an overflow.
type Result struct {
	Timestamp time.Time
	Count     uint16 // Capture counter at the threshold crossing
	Overflow  bool   // Counter wrapped before the threshold was crossed
}

// Port represents a serial port.
type Port struct {
	Name        string
	Description string
}

// Serial represents a connection to the meter MCU.
type Serial struct {
	port     string
	baudRate int
	bufSize  int

	conn      serial.Port
	results   chan Result
	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
	connected bool
}

// New creates a new Serial device with the specified port, baud rate, and
// buffer size.
func New(port string, baudRate int, bufSize int) *Serial {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	if bufSize == 0 {
		bufSize = DefaultBufferSize
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Serial{
		port:      port,
		baudRate:  baudRate,
		bufSize:   bufSize,
		results:   make(chan Result, bufSize),
		ctx:       ctx,
		cancel:    cancel,
		connected: false,
	}
}

// Ports returns a list of available serial ports.
func Ports() ([]Port, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	result := make([]Port, 0, len(ports))
	for _, name := range ports {
		result = append(result, Port{
			Name:        name,
			Description: name,
		})
	}

	return result, nil
}

// Connect connects to the serial port and starts reading capture results.
func (d *Serial) Connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connected {
		return fmt.Errorf("already connected")
	}

	mode := &serial.Mode{
		BaudRate: d.baudRate,
	}

	port, err := serial.Open(d.port, mode)
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", d.port, err)
	}

	d.conn = port
	d.connected = true

	// Start reading results in a goroutine
	go d.readResults()

	return nil
}

// Close closes the connection and stops reading results.
func (d *Serial) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connected {
		return nil
	}

	// Cancel context to stop reading goroutine
	d.cancel()

	// Close serial port
	if d.conn != nil {
		if err := d.conn.Close(); err != nil {
			log.Printf("Error closing serial port: %v", err)
		}
		d.conn = nil
	}

	d.connected = false

	// Close results channel
	close(d.results)

	return nil
}

// Results returns the channel for reading capture results.
func (d *Serial) Results() <-chan Result {
	return d.results
}

// Charge tells the firmware to connect the selected resistor path to the
// rail and start the capture counter with the given divider. The firmware
// answers with exactly one result line when the threshold is crossed or
// the counter overflows.
func (d *Serial) Charge(drive uint8, divider uint16) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.connected {
		return fmt.Errorf("not connected")
	}
	if divider == 0 {
		return fmt.Errorf("divider must be positive")
	}

	cmd := fmt.Sprintf("C,%d,%d\n", drive, divider)
	if _, err := d.conn.Write([]byte(cmd)); err != nil {
		return fmt.Errorf("failed to send charge command: %w", err)
	}

	return nil
}

// Discharge tells the firmware to stop the counter, disarm the detector and
// sink the capacitor through all resistor paths. Safe to call repeatedly.
func (d *Serial) Discharge() error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.connected {
		return fmt.Errorf("not connected")
	}

	if _, err := d.conn.Write([]byte("D\n")); err != nil {
		return fmt.Errorf("failed to send discharge command: %w", err)
	}

	return nil
}

// IsConnected returns whether the device is currently connected.
func (d *Serial) IsConnected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connected
}

// readResults reads lines from the serial port and parses them into Result.
func (d *Serial) readResults() {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Panic in readResults: %v", r)
		}
	}()

	scanner := bufio.NewScanner(d.conn)
	for {
		select {
		case <-d.ctx.Done():
			return
		default:
			if !scanner.Scan() {
				// Scanner stopped (EOF or error)
				if err := scanner.Err(); err != nil {
					if err != io.EOF {
						log.Printf("Error reading from serial port: %v", err)
					}
				}
				return
			}

			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}

			result, err := parseLine(line)
			if err != nil {
				log.Printf("Failed to parse line '%s': %v", line, err)
				continue
			}

			// Send result to channel (non-blocking)
			select {
			case d.results <- result:
			case <-d.ctx.Done():
				return
			default:
				// Channel full, log and skip
				log.Printf("Results channel full, dropping result")
			}
		}
	}
}

// parseLine parses a result line from the MCU into a Result.
// Format: unix_micros,count,overflow
// Example: 1234567890123,20000,0
func parseLine(line string) (Result, error) {
	parts := strings.Split(line, ",")
	if len(parts) != 3 {
		return Result{}, fmt.Errorf("invalid line format: expected 3 comma-separated values, got %d", len(parts))
	}

	// Parse timestamp (unix microseconds)
	timestampMicros, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return Result{}, fmt.Errorf("invalid timestamp: %w", err)
	}
	timestamp := time.Unix(0, timestampMicros*1000) // Convert microseconds to nanoseconds

	// Parse capture count (16-bit counter)
	count, err := strconv.ParseUint(parts[1], 10, 16)
	if err != nil {
		return Result{}, fmt.Errorf("invalid count: %w", err)
	}

	// Parse overflow flag
	var overflow bool
	switch parts[2] {
	case "0":
		overflow = false
	case "1":
		overflow = true
	default:
		return Result{}, fmt.Errorf("invalid overflow flag: %q", parts[2])
	}

	if overflow && count != FullScale {
		return Result{}, fmt.Errorf("overflow result with count %d (want %d)", count, FullScale)
	}

	return Result{
		Timestamp: timestamp,
		Count:     uint16(count),
		Overflow:  overflow,
	}, nil
}
