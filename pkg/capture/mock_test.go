package capture

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/gocapm/pkg/config"
)

func mockConfig() *config.Config {
	cfg := config.Default()
	cfg.Mock.Capacitance = 100e-9
	cfg.Mock.Stray = 0
	cfg.Mock.NoiseLevel = 0
	cfg.Mock.Delay = time.Millisecond
	return cfg
}

func TestMock_ChargeNotConnected(t *testing.T) {
	m := NewMock(mockConfig())

	assert.Error(t, m.Charge(1, 1))
	assert.Error(t, m.Discharge())
}

func TestMock_ChargeDelivers(t *testing.T) {
	cfg := mockConfig()
	m := NewMock(cfg)
	require.NoError(t, m.Connect())
	defer m.Close()

	// 100 nF through 270R: t = ln(5/1.1)*270*100e-9, at divider 1 and
	// 16 MHz that is ~654 ticks.
	require.NoError(t, m.Charge(1, 1))

	select {
	case res := <-m.Results():
		assert.False(t, res.Overflow)
		expected := math.Log(5.0/1.1) * 270 * 100e-9 * 16e6
		assert.InDelta(t, expected, float64(res.Count), 1.0)
	case <-time.After(time.Second):
		t.Fatal("No result delivered within timeout")
	}
}

func TestMock_Overflow(t *testing.T) {
	cfg := mockConfig()
	m := NewMock(cfg)
	require.NoError(t, m.Connect())
	defer m.Close()

	// 100 nF through 1M at divider 1 takes ~2.4M ticks, far past full scale.
	require.NoError(t, m.Charge(4, 1))

	select {
	case res := <-m.Results():
		assert.True(t, res.Overflow)
		assert.Equal(t, uint16(FullScale), res.Count)
	case <-time.After(time.Second):
		t.Fatal("No result delivered within timeout")
	}
}

func TestMock_DividerScalesCount(t *testing.T) {
	cfg := mockConfig()
	m := NewMock(cfg)
	require.NoError(t, m.Connect())
	defer m.Close()

	require.NoError(t, m.Charge(1, 1))
	res1 := <-m.Results()
	require.NoError(t, m.Discharge())

	require.NoError(t, m.Charge(1, 8))
	res8 := <-m.Results()

	require.False(t, res1.Overflow)
	require.False(t, res8.Overflow)
	// Same charge time, eight times coarser ticks.
	assert.InDelta(t, float64(res1.Count)/8, float64(res8.Count), 1.5)
}

func TestMock_UnknownDrive(t *testing.T) {
	m := NewMock(mockConfig())
	require.NoError(t, m.Connect())
	defer m.Close()

	err := m.Charge(99, 1)
	assert.Error(t, err)
}

func TestMock_ZeroDivider(t *testing.T) {
	m := NewMock(mockConfig())
	require.NoError(t, m.Connect())
	defer m.Close()

	assert.Error(t, m.Charge(1, 0))
}

func TestMock_ChargeInFlight(t *testing.T) {
	cfg := mockConfig()
	cfg.Mock.Delay = 200 * time.Millisecond
	m := NewMock(cfg)
	require.NoError(t, m.Connect())
	defer m.Close()

	require.NoError(t, m.Charge(1, 1))
	// Second charge before the first result is an error: exactly one
	// cycle may be in flight.
	assert.Error(t, m.Charge(1, 1))
}

func TestMock_StrayAddsToReading(t *testing.T) {
	cfg := mockConfig()
	m1 := NewMock(cfg)
	require.NoError(t, m1.Connect())
	defer m1.Close()

	require.NoError(t, m1.Charge(1, 1))
	bare := <-m1.Results()

	cfg2 := mockConfig()
	cfg2.Mock.Stray = 10e-9
	m2 := NewMock(cfg2)
	require.NoError(t, m2.Connect())
	defer m2.Close()

	require.NoError(t, m2.Charge(1, 1))
	withStray := <-m2.Results()

	assert.Greater(t, withStray.Count, bare.Count)
}

func TestMock_ConnectTwice(t *testing.T) {
	m := NewMock(mockConfig())
	require.NoError(t, m.Connect())
	defer m.Close()

	assert.Error(t, m.Connect())
}
