// Package hx711 provides a bit-banged driver for the HX711 24-bit load-cell
// amplifier.
//
// The chip uses two lines: DOUT (input, low when a conversion is ready) and
// PD_SCK (output). A read clocks out 24 bits MSB first; 1, 2 or 3 extra
// pulses select the channel/gain of the next conversion. Holding PD_SCK high
// for more than 60 µs powers the chip down; pulling it low wakes it, after
// which the gain returns to channel A / 128.
//
// Pulses are timed by busy-waiting on the clock, never by sleeping, and every
// high phase is measured. A phase that reaches Config.MaxHigh aborts the
// read: the chip is reset to a known state and ErrPulseStretched returned.
// ReadAverage retries such reads.
//
//	d := hx711.New(doutPin, sckPin)
//	_ = d.Configure(hx711.Config{Gain: hx711.GainA64})
//	_ = d.Wait(500 * time.Millisecond)
//	v, err := d.ReadAverage(10)
package hx711

import (
	"errors"
	"time"

	"scalenode-go/x/mathx"
)

// Gain encodes the number of extra PD_SCK pulses after the 24 data bits.
type Gain uint8

const (
	GainA128 Gain = 1
	GainB32  Gain = 2
	GainA64  Gain = 3
)

const dataBits = 24

// maxStretchRetries bounds the retries of one ReadAverage sample after a
// stretched pulse.
const maxStretchRetries = 5

// defaultMaxHigh is the datasheet limit for a PD_SCK data pulse.
const defaultMaxHigh = 50 * time.Microsecond

// Errors returned by the driver.
var (
	ErrTimeout      = errors.New("hx711: timeout")
	ErrNotReady     = errors.New("hx711: not ready")
	ErrInvalidGain  = errors.New("hx711: invalid gain")
	ErrInvalidCount = errors.New("hx711: invalid sample count")
	ErrPoweredDown  = errors.New("hx711: powered down")
	// ErrPulseStretched means a PD_SCK high phase lasted long enough that the
	// chip may have powered down mid-read. The conversion was discarded.
	ErrPulseStretched = errors.New("hx711: clock pulse stretched")
)

// InputPin is DOUT. tinygo machine.Pin satisfies it.
type InputPin interface {
	Get() bool
}

// OutputPin is PD_SCK. tinygo machine.Pin satisfies it.
type OutputPin interface {
	Set(high bool)
}

// GainFromInt maps the datasheet gain numbers 128, 64 and 32.
func GainFromInt(g int) (Gain, error) {
	switch g {
	case 128:
		return GainA128, nil
	case 64:
		return GainA64, nil
	case 32:
		return GainB32, nil
	}
	return 0, ErrInvalidGain
}

func (g Gain) valid() bool { return g >= GainA128 && g <= GainA64 }

// Config controls timing and gain. All fields are optional.
type Config struct {
	// Gain defaults to GainA128.
	Gain Gain
	// PollInterval is the DOUT polling period in Wait. Default 1 ms.
	PollInterval time.Duration
	// ReadTimeout bounds the wait before each conversion in ReadAverage.
	// Default 200 ms (a conversion takes ~100 ms at 10 SPS).
	ReadTimeout time.Duration
	// PulseDelay is the half period of a PD_SCK pulse, busy-waited.
	// Default 1 µs.
	PulseDelay time.Duration
	// MaxHigh is the longest PD_SCK high phase accepted during a read.
	// Default 50 µs, the datasheet limit for a data pulse.
	MaxHigh time.Duration
	// PowerDownHold is how long PD_SCK stays high before PowerDown returns.
	// Default 100 µs (datasheet minimum is 60 µs).
	PowerDownHold time.Duration
	// Sleep is used for DOUT polling and the power-down hold, never inside
	// a read. Defaults to time.Sleep.
	Sleep func(time.Duration)
	// Critical, when set, is called around each 24-bit shift; it returns the
	// function that ends the critical section. MCU builds use it to mask
	// interrupts so a pulse rarely stretches.
	Critical func() (end func())
}

// Device wraps the two HX711 lines.
type Device struct {
	dout InputPin
	sck  OutputPin

	cfg  Config
	gain Gain // gain latched by the last read
	down bool
}

// New creates a Device. It does not touch the pins.
func New(dout InputPin, pdsck OutputPin) Device {
	return Device{dout: dout, sck: pdsck, gain: GainA128}
}

// Configure applies cfg, wakes the chip and latches the requested gain with
// one throw-away conversion. An error means the chip never became ready.
func (d *Device) Configure(cfgs ...Config) error {
	var c Config
	if len(cfgs) > 0 {
		c = cfgs[0]
	}
	if c.Gain == 0 {
		c.Gain = GainA128
	}
	if !c.Gain.valid() {
		return ErrInvalidGain
	}
	c.PollInterval = mathx.OrDefault(c.PollInterval, time.Millisecond)
	c.ReadTimeout = mathx.OrDefault(c.ReadTimeout, 200*time.Millisecond)
	c.PulseDelay = mathx.OrDefault(c.PulseDelay, time.Microsecond)
	c.MaxHigh = mathx.OrDefault(c.MaxHigh, defaultMaxHigh)
	c.PowerDownHold = mathx.OrDefault(c.PowerDownHold, 100*time.Microsecond)
	if c.Sleep == nil {
		c.Sleep = time.Sleep
	}
	d.cfg = c

	if err := d.PowerDown(false); err != nil {
		return err
	}
	return d.SetGain(c.Gain)
}

// SetGain selects the gain for subsequent conversions. The chip only learns
// the gain from the pulse count of a read, so one conversion is discarded.
func (d *Device) SetGain(g Gain) error {
	if !g.valid() {
		return ErrInvalidGain
	}
	d.cfg.Gain = g
	for try := 0; d.gain != g; try++ {
		if err := d.Wait(d.cfg.ReadTimeout); err != nil {
			return err
		}
		if _, err := d.Read(); err != nil && (!errors.Is(err, ErrPulseStretched) || try == maxStretchRetries) {
			return err
		}
	}
	return nil
}

func (d *Device) wantGain() Gain {
	if d.cfg.Gain == 0 {
		return GainA128
	}
	return d.cfg.Gain
}

// Gain returns the gain the next conversion will use.
func (d *Device) Gain() Gain { return d.gain }

// IsReady reports whether a conversion can be clocked out (DOUT low).
func (d *Device) IsReady() bool { return !d.dout.Get() }

// Wait polls DOUT until the chip is ready or timeout elapses.
func (d *Device) Wait(timeout time.Duration) error {
	if d.down {
		return ErrPoweredDown
	}
	deadline := time.Now().Add(timeout)
	for !d.IsReady() {
		if !time.Now().Before(deadline) {
			return ErrTimeout
		}
		d.sleep(d.cfg.PollInterval)
	}
	return nil
}

// Read clocks out one conversion. It does not wait; call Wait first.
// On ErrPulseStretched the chip has been power cycled and its gain is back
// to A/128.
func (d *Device) Read() (int32, error) {
	if d.down {
		return 0, ErrPoweredDown
	}
	if !d.IsReady() {
		return 0, ErrNotReady
	}
	gain := d.wantGain()
	raw, ok := d.shift(gain)
	if !ok {
		d.reset()
		return 0, ErrPulseStretched
	}
	d.gain = gain
	return signExtend24(raw), nil
}

// shift clocks the data bits and gain pulses. ok is false as soon as one
// high phase reaches MaxHigh.
func (d *Device) shift(gain Gain) (raw uint32, ok bool) {
	if d.cfg.Critical != nil {
		end := d.cfg.Critical()
		defer end()
	}
	for i := 0; i < dataBits; i++ {
		bit, ok := d.clock()
		if !ok {
			return 0, false
		}
		raw <<= 1
		if bit {
			raw |= 1
		}
	}
	for i := Gain(0); i < gain; i++ {
		if _, ok := d.clock(); !ok {
			return 0, false
		}
	}
	return raw, true
}

// clock emits one PD_SCK pulse and samples DOUT while it is high.
func (d *Device) clock() (bit, ok bool) {
	t0 := time.Now()
	d.sck.Set(true)
	spin(d.cfg.PulseDelay)
	bit = d.dout.Get()
	d.sck.Set(false)
	high := time.Since(t0)
	spin(d.cfg.PulseDelay)
	return bit, high < mathx.OrDefault(d.cfg.MaxHigh, defaultMaxHigh)
}

// reset power cycles the chip after an aborted shift so that it restarts
// from a known state rather than mid-word.
func (d *Device) reset() {
	_ = d.PowerDown(true)
	_ = d.PowerDown(false)
}

// readAtGain reads one conversion taken at the configured gain. A conversion
// started under another gain is read and discarded first; stretched reads
// are retried.
func (d *Device) readAtGain() (int32, error) {
	for try := 0; ; try++ {
		if err := d.Wait(d.cfg.ReadTimeout); err != nil {
			return 0, err
		}
		stale := d.gain != d.wantGain()
		v, err := d.Read()
		switch {
		case errors.Is(err, ErrPulseStretched) && try < maxStretchRetries:
			continue
		case err != nil:
			return 0, err
		case stale:
			continue
		}
		return v, nil
	}
}

// ReadAverage waits for and reads times conversions and returns their mean,
// rounded half away from zero.
func (d *Device) ReadAverage(times int) (int32, error) {
	if times <= 0 {
		return 0, ErrInvalidCount
	}
	var sum int64
	for i := 0; i < times; i++ {
		v, err := d.readAtGain()
		if err != nil {
			return 0, err
		}
		sum += int64(v)
	}
	return int32(mathx.RoundDiv(sum, int64(times))), nil
}

// PowerDown puts the chip into (down=true) or out of (down=false) its
// power-down mode. Waking resets the chip's gain to A/128; the configured
// gain is applied again on the next read.
func (d *Device) PowerDown(down bool) error {
	if d.sck == nil || d.dout == nil {
		return errors.New("hx711: pins not set")
	}
	if down {
		d.sck.Set(false)
		d.sck.Set(true)
		d.sleep(d.cfg.PowerDownHold)
		d.down = true
		return nil
	}
	d.sck.Set(false)
	if d.down {
		d.gain = GainA128
	}
	d.down = false
	return nil
}

// PoweredDown reports the last state set by PowerDown.
func (d *Device) PoweredDown() bool { return d.down }

// spin busy-waits for t. It reads the clock instead of sleeping so that it
// works with interrupts masked and cannot oversleep.
func spin(t time.Duration) {
	if t <= 0 {
		return
	}
	for start := time.Now(); time.Since(start) < t; {
	}
}

func (d *Device) sleep(t time.Duration) {
	if t <= 0 {
		return
	}
	if d.cfg.Sleep != nil {
		d.cfg.Sleep(t)
		return
	}
	time.Sleep(t)
}

func signExtend24(raw uint32) int32 {
	raw &= 0xFFFFFF
	if raw&0x800000 != 0 {
		raw |= 0xFF000000
	}
	return int32(raw)
}
