package trend

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func makeReadings(n int) []Reading {
	now := time.Now()
	readings := make([]Reading, n)
	for i := range readings {
		readings[i] = Reading{
			Timestamp:   now.Add(time.Duration(i) * time.Millisecond),
			Capacitance: float64(i) * 1e-12,
		}
	}
	return readings
}

func TestDownsampleReadings_FewerThanMax(t *testing.T) {
	src := makeReadings(10)

	got := DownsampleReadings(nil, src, 100)
	assert.Len(t, got, 10)
	assert.Equal(t, src, got)
}

func TestDownsampleReadings_Decimates(t *testing.T) {
	src := makeReadings(1000)

	got := DownsampleReadings(nil, src, 100)
	assert.Len(t, got, 100)
	// First point survives, order preserved
	assert.Equal(t, src[0], got[0])
	for i := 1; i < len(got); i++ {
		assert.True(t, got[i].Timestamp.After(got[i-1].Timestamp))
	}
}

func TestDownsampleReadings_ReusesDst(t *testing.T) {
	src := makeReadings(1000)
	dst := make([]Reading, 0, 100)

	got := DownsampleReadings(dst, src, 100)
	assert.Len(t, got, 100)
	// Capacity was sufficient: same backing array
	assert.Equal(t, 100, cap(got))
}

func TestDownsampleReadings_Empty(t *testing.T) {
	got := DownsampleReadings(nil, nil, 100)
	assert.Empty(t, got)
}
