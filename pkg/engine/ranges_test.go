package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/gocapm/pkg/config"
)

func TestTauConstants(t *testing.T) {
	// ln(5/1.1) and -ln(1-1.1/5) for the stock 5V rail / 1.1V bandgap.
	assert.InDelta(t, 1.514128, TauFall(5.0, 1.1), 1e-6)
	assert.InDelta(t, 0.248461, TauRise(5.0, 1.1), 1e-6)
}

func TestNewTable_Default(t *testing.T) {
	cfg := config.Default()
	table, err := NewTable(cfg)
	require.NoError(t, err)
	require.Len(t, table, 9)

	assert.Equal(t, float64(270), table[0].Resistance)
	assert.Equal(t, uint16(1024), table[0].Divider)
	assert.Equal(t, uint8(1), table[0].Drive)
	assert.Equal(t, 1e6, table[8].Resistance)
}

func TestTable_WindowsArePositiveAndOrdered(t *testing.T) {
	cfg := config.Default()
	table, err := NewTable(cfg)
	require.NoError(t, err)

	tauRise := TauRise(cfg.Timing.SupplyVolts, cfg.Timing.ThresholdVolts)
	tauFall := TauFall(cfg.Timing.SupplyVolts, cfg.Timing.ThresholdVolts)

	for i, r := range table {
		cMin := r.MinCapacitance(cfg.Timing.ClockHz, tauRise)
		cMax := r.MaxCapacitance(cfg.Timing.ClockHz, tauFall)
		assert.Greater(t, cMin, 0.0, "range %d", i)
		assert.Less(t, cMin, cMax, "range %d: C_min must be below C_max", i)
	}
}

func TestTable_AdjacentWindowsOverlap(t *testing.T) {
	cfg := config.Default()
	table, err := NewTable(cfg)
	require.NoError(t, err)

	tauRise := TauRise(cfg.Timing.SupplyVolts, cfg.Timing.ThresholdVolts)
	tauFall := TauFall(cfg.Timing.SupplyVolts, cfg.Timing.ThresholdVolts)

	// Range i covers larger capacitances than range i+1; overlap means the
	// floor of i sits inside the ceiling of i+1.
	for i := 0; i < len(table)-1; i++ {
		floor := table[i].MinCapacitance(cfg.Timing.ClockHz, tauRise)
		ceiling := table[i+1].MaxCapacitance(cfg.Timing.ClockHz, tauFall)
		assert.Less(t, floor, ceiling, "ranges %d and %d must overlap", i, i+1)
	}
}

func TestNewTable_Empty(t *testing.T) {
	cfg := config.Default()
	cfg.Ranges = nil

	_, err := NewTable(cfg)
	assert.Error(t, err)
}

func TestNewTable_Invalid(t *testing.T) {
	base := func() *config.Config {
		cfg := config.Default()
		cfg.Ranges = []config.RangeConfig{
			{Resistance: 270, Divider: 1, Drive: 1, MinCount: 14000, Growth: 5},
			{Resistance: 1e6, Divider: 1024, Drive: 4, MinCount: 0, Growth: 0},
		}
		return cfg
	}

	t.Run("valid baseline", func(t *testing.T) {
		_, err := NewTable(base())
		assert.NoError(t, err)
	})

	t.Run("zero divider", func(t *testing.T) {
		cfg := base()
		cfg.Ranges[0].Divider = 0
		_, err := NewTable(cfg)
		assert.Error(t, err)
	})

	t.Run("non-positive resistance", func(t *testing.T) {
		cfg := base()
		cfg.Ranges[1].Resistance = 0
		_, err := NewTable(cfg)
		assert.Error(t, err)
	})

	t.Run("decreasing resistance", func(t *testing.T) {
		cfg := base()
		cfg.Ranges[1].Resistance = 100
		_, err := NewTable(cfg)
		assert.Error(t, err)
	})

	t.Run("min count at full scale", func(t *testing.T) {
		cfg := base()
		cfg.Ranges[0].MinCount = 0xFFFF
		_, err := NewTable(cfg)
		assert.Error(t, err)
	})

	t.Run("gap between windows", func(t *testing.T) {
		cfg := base()
		// A tiny divider on the slow range pulls its ceiling below the
		// fast range's floor.
		cfg.Ranges[0].Divider = 1024
		cfg.Ranges[1].Divider = 1
		cfg.Ranges[1].Resistance = 1e9
		_, err := NewTable(cfg)
		assert.Error(t, err)
	})
}
