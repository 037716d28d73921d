package hx711_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scalenode-go/drivers/hx711"
	"scalenode-go/drivers/hx711/hx711test"
)

func newDevice(t *testing.T, chip *hx711test.Chip, gain hx711.Gain) hx711.Device {
	t.Helper()
	return newDeviceOn(t, chip, chip.PDSCK(), gain)
}

func newDeviceOn(t *testing.T, chip *hx711test.Chip, sck hx711.OutputPin, gain hx711.Gain) hx711.Device {
	t.Helper()
	d := hx711.New(chip.DOUT(), sck)
	require.NoError(t, d.Configure(hx711.Config{
		Gain:         gain,
		PollInterval: time.Millisecond,
		ReadTimeout:  20 * time.Millisecond,
	}))
	return d
}

// slowClock holds PD_SCK high for hold after selected rising edges, the way
// an interrupt landing mid-pulse would.
type slowClock struct {
	pin   hx711.OutputPin
	hold  time.Duration
	rises int
	// stretch picks the rising edges to hold, counted from 1.
	stretch func(rise int) bool
}

func (c *slowClock) Set(high bool) {
	c.pin.Set(high)
	if !high || c.stretch == nil {
		return
	}
	c.rises++
	if c.stretch(c.rises) {
		time.Sleep(c.hold)
	}
}

func TestRead_SignExtends24Bits(t *testing.T) {
	cases := []int32{0, 1, -1, 8388607, -8388608, 123456, -123456}
	for _, want := range cases {
		chip := hx711test.NewChip(want)
		d := newDevice(t, chip, hx711.GainA128)

		got, err := d.Read()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestRead_GainPulses(t *testing.T) {
	for _, g := range []hx711.Gain{hx711.GainA128, hx711.GainB32, hx711.GainA64} {
		chip := hx711test.NewChip(42)
		d := newDevice(t, chip, g)
		_, err := d.Read()
		require.NoError(t, err)
		assert.Equal(t, int(g), chip.GainPulses(), "gain %d", g)
		assert.Equal(t, g, d.Gain())
	}
}

func TestConfigure_LatchesNonDefaultGain(t *testing.T) {
	chip := hx711test.NewChip(7, 8)
	newDevice(t, chip, hx711.GainA64)
	// One conversion is spent selecting the gain.
	assert.Equal(t, 1, chip.Reads())
}

func TestRead_NotReady(t *testing.T) {
	chip := hx711test.NewChip(5)
	d := newDevice(t, chip, hx711.GainA128)
	chip.SetReady(false)

	_, err := d.Read()
	assert.ErrorIs(t, err, hx711.ErrNotReady)
	assert.ErrorIs(t, d.Wait(5*time.Millisecond), hx711.ErrTimeout)
}

func TestReadAverage(t *testing.T) {
	chip := hx711test.NewChip(10, 20, 30, 41)
	d := newDevice(t, chip, hx711.GainA128)

	got, err := d.ReadAverage(4)
	require.NoError(t, err)
	assert.Equal(t, int32(25), got) // 101/4 = 25.25
	assert.Equal(t, 4, chip.Reads())

	chip.SetValues(-10, -11)
	got, err = d.ReadAverage(2)
	require.NoError(t, err)
	assert.Equal(t, int32(-11), got) // -10.5 rounds away from zero

	_, err = d.ReadAverage(0)
	assert.ErrorIs(t, err, hx711.ErrInvalidCount)
}

func TestReadAverage_TimesOutMidway(t *testing.T) {
	chip := hx711test.NewChip(1)
	d := newDevice(t, chip, hx711.GainA128)
	chip.SetReady(false)

	_, err := d.ReadAverage(10)
	assert.ErrorIs(t, err, hx711.ErrTimeout)
}

func TestPowerDownAndWake(t *testing.T) {
	chip := hx711test.NewChip(99)
	d := newDevice(t, chip, hx711.GainA64)

	require.NoError(t, d.PowerDown(true))
	assert.True(t, chip.PoweredDown())
	assert.True(t, d.PoweredDown())
	assert.Equal(t, 1, chip.PowerDowns())

	_, err := d.Read()
	assert.ErrorIs(t, err, hx711.ErrPoweredDown)
	assert.ErrorIs(t, d.Wait(time.Millisecond), hx711.ErrPoweredDown)

	require.NoError(t, d.PowerDown(false))
	assert.False(t, chip.PoweredDown())
	assert.Equal(t, hx711.GainA128, d.Gain())

	require.NoError(t, d.Wait(10*time.Millisecond))
	v, err := d.Read()
	require.NoError(t, err)
	assert.Equal(t, int32(99), v)
}

func TestGainFromInt(t *testing.T) {
	g, err := hx711.GainFromInt(64)
	require.NoError(t, err)
	assert.Equal(t, hx711.GainA64, g)

	_, err = hx711.GainFromInt(100)
	assert.ErrorIs(t, err, hx711.ErrInvalidGain)

	d := hx711.New(hx711test.NewChip().DOUT(), hx711test.NewChip().PDSCK())
	assert.ErrorIs(t, d.Configure(hx711.Config{Gain: 9}), hx711.ErrInvalidGain)
}

func TestReadAverage_RealPowerDownThreshold(t *testing.T) {
	chip := hx711test.NewChip(83884, 83885, 83886, 83887, 83888)
	d := newDevice(t, chip, hx711.GainA64)

	got, err := d.ReadAverage(10)
	require.NoError(t, err)
	// 83884 latches the gain; 83885..83887 then 83888 seven times.
	assert.Equal(t, int32(83887), got)
	assert.Equal(t, hx711.GainA64, d.Gain())
	assert.Equal(t, 3, chip.GainPulses())
	assert.False(t, chip.PoweredDown())
}

func TestRead_StretchedPulseAbortsAndResets(t *testing.T) {
	chip := hx711test.NewChip(100, 200)
	sck := &slowClock{pin: chip.PDSCK(), hold: 200 * time.Microsecond}
	d := newDeviceOn(t, chip, sck, hx711.GainA128)

	sck.stretch = func(rise int) bool { return rise == 12 }
	require.NoError(t, d.Wait(20*time.Millisecond))
	_, err := d.Read()
	require.ErrorIs(t, err, hx711.ErrPulseStretched)
	assert.GreaterOrEqual(t, chip.PowerDowns(), 1)
	assert.False(t, chip.PoweredDown())
	assert.False(t, d.PoweredDown())
	assert.Equal(t, hx711.GainA128, d.Gain())
	assert.Equal(t, 0, chip.Reads())

	// The aborted conversion is read again once the chip is back.
	sck.stretch = nil
	got, err := d.ReadAverage(2)
	require.NoError(t, err)
	assert.Equal(t, int32(150), got)
}

func TestReadAverage_RecoversFromStretchedPulse(t *testing.T) {
	chip := hx711test.NewChip(10, 20, 30, 40)
	sck := &slowClock{pin: chip.PDSCK(), hold: 200 * time.Microsecond}
	d := newDeviceOn(t, chip, sck, hx711.GainA64)
	require.Equal(t, 1, chip.Reads())

	sck.stretch = func(rise int) bool { return rise == 5 }
	got, err := d.ReadAverage(2)
	require.NoError(t, err)
	// The reset drops the gain to 128, so 20 is spent re-latching gain 64
	// and 30 and 40 are averaged.
	assert.Equal(t, int32(35), got)
	assert.Equal(t, hx711.GainA64, d.Gain())
	assert.Equal(t, 3, chip.GainPulses())
}

func TestReadAverage_GivesUpOnPersistentStretch(t *testing.T) {
	chip := hx711test.NewChip(7)
	sck := &slowClock{pin: chip.PDSCK(), hold: 100 * time.Microsecond}
	d := newDeviceOn(t, chip, sck, hx711.GainA128)

	sck.stretch = func(int) bool { return true }
	_, err := d.ReadAverage(3)
	assert.ErrorIs(t, err, hx711.ErrPulseStretched)
	assert.Equal(t, 0, chip.Reads())
}
