package capture

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	d := New("/dev/ttyACM0", 0, 0)

	assert.Equal(t, "/dev/ttyACM0", d.port)
	assert.Equal(t, DefaultBaudRate, d.baudRate)
	assert.Equal(t, DefaultBufferSize, d.bufSize)
	assert.False(t, d.IsConnected())
}

func TestCharge_NotConnected(t *testing.T) {
	d := New("/dev/ttyACM0", 0, 0)

	err := d.Charge(1, 8)
	assert.Error(t, err)

	err = d.Discharge()
	assert.Error(t, err)
}

func TestClose_NotConnected(t *testing.T) {
	d := New("/dev/ttyACM0", 0, 0)

	// Close on a never-connected device is a no-op
	assert.NoError(t, d.Close())
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		want     Result
		wantErr  bool
	}{
		{
			name: "captured count",
			line: "1234567890123,20000,0",
			want: Result{
				Timestamp: time.Unix(0, 1234567890123*1000),
				Count:     20000,
				Overflow:  false,
			},
		},
		{
			name: "overflow",
			line: "1234567890123,65535,1",
			want: Result{
				Timestamp: time.Unix(0, 1234567890123*1000),
				Count:     65535,
				Overflow:  true,
			},
		},
		{
			name: "zero count",
			line: "99,0,0",
			want: Result{
				Timestamp: time.Unix(0, 99*1000),
				Count:     0,
				Overflow:  false,
			},
		},
		{
			name:    "too few fields",
			line:    "1234567890123,20000",
			wantErr: true,
		},
		{
			name:    "too many fields",
			line:    "1234567890123,20000,0,7",
			wantErr: true,
		},
		{
			name:    "bad timestamp",
			line:    "abc,20000,0",
			wantErr: true,
		},
		{
			name:    "count exceeds 16 bits",
			line:    "1234567890123,70000,0",
			wantErr: true,
		},
		{
			name:    "bad overflow flag",
			line:    "1234567890123,20000,x",
			wantErr: true,
		},
		{
			name:    "overflow flag with non-fullscale count",
			line:    "1234567890123,20000,1",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseLine(tt.line)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
