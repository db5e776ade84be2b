package capture

// Device defines the interface for capture devices (real or mocked).
// A device owns the drive/discharge topology and the capture counter:
// Charge connects one resistor path to the rail and arms the threshold
// detector, Discharge sinks the capacitor through the same paths and stops
// the counter. Exactly one Result is produced per Charge call.
type Device interface {
	Connect() error
	Close() error
	Results() <-chan Result
	Charge(drive uint8, divider uint16) error
	Discharge() error
	IsConnected() bool
}

// Ensure Serial implements Device.
var _ Device = (*Serial)(nil)

// Ensure Mock implements Device.
var _ Device = (*Mock)(nil)
