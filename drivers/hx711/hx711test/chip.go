// Package hx711test emulates the HX711 serial interface for host tests and
// for the simulated node.
package hx711test

import (
	"sync"
	"time"
)

// Chip behaves like an HX711 seen through its DOUT and PD_SCK lines.
// Conversions are taken from Values in order; the last value repeats.
type Chip struct {
	mu sync.Mutex

	values []int32
	next   int

	// NotReady keeps DOUT high (no conversion available).
	NotReady bool
	// ResetAfter is how long PD_SCK must stay high to power the chip down.
	// Default 60 µs.
	ResetAfter time.Duration

	sckHigh    bool
	rise       time.Time
	pulses     int
	shifting   uint32
	gainPulses int
	down       bool

	reads      int
	powerDowns int
}

// NewChip returns a ready chip producing vals.
func NewChip(vals ...int32) *Chip {
	if len(vals) == 0 {
		vals = []int32{0}
	}
	return &Chip{values: vals}
}

// DOUT returns the chip's data line.
func (c *Chip) DOUT() *DataPin { return &DataPin{c: c} }

// PDSCK returns the chip's clock line.
func (c *Chip) PDSCK() *ClockPin { return &ClockPin{c: c} }

// SetValues replaces the conversion queue.
func (c *Chip) SetValues(vals ...int32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(vals) == 0 {
		vals = []int32{0}
	}
	c.values, c.next = vals, 0
}

// SetReady toggles conversion availability.
func (c *Chip) SetReady(ready bool) {
	c.mu.Lock()
	c.NotReady = !ready
	c.mu.Unlock()
}

// Reads returns the number of completed 24-bit reads.
func (c *Chip) Reads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settle()
	return c.reads
}

// GainPulses returns the extra pulse count of the last completed read.
func (c *Chip) GainPulses() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settle()
	return c.gainPulses
}

// PoweredDown reports whether PD_SCK has been held high long enough.
func (c *Chip) PoweredDown() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checkHold()
	return c.down
}

// PowerDowns counts power-down events.
func (c *Chip) PowerDowns() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checkHold()
	return c.powerDowns
}

func (c *Chip) resetAfter() time.Duration {
	if c.ResetAfter > 0 {
		return c.ResetAfter
	}
	return 60 * time.Microsecond
}

func (c *Chip) checkHold() {
	if c.sckHigh && !c.down && time.Since(c.rise) >= c.resetAfter() {
		c.down = true
		c.powerDowns++
		c.pulses = 0
	}
}

// settle finishes a read once the host has stopped pulsing.
func (c *Chip) settle() {
	if c.pulses > 24 && !c.sckHigh {
		c.gainPulses = c.pulses - 24
		c.pulses = 0
		c.reads++
		if c.next < len(c.values)-1 {
			c.next++
		}
	}
}

func (c *Chip) current() uint32 { return uint32(c.values[c.next]) & 0xFFFFFF }

// DataPin is DOUT.
type DataPin struct{ c *Chip }

func (p *DataPin) Get() bool {
	c := p.c
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checkHold()
	c.settle()
	if c.down {
		return true
	}
	switch {
	case c.pulses == 0:
		return c.NotReady
	case c.pulses <= 24:
		return c.shifting&(1<<(24-c.pulses)) != 0
	default:
		return true
	}
}

// ClockPin is PD_SCK.
type ClockPin struct{ c *Chip }

func (p *ClockPin) Set(high bool) {
	c := p.c
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checkHold()
	if high == c.sckHigh {
		return
	}
	c.sckHigh = high
	if high {
		c.rise = time.Now()
		if c.down {
			return
		}
		c.settle()
		if c.pulses == 0 {
			if c.NotReady {
				return
			}
			c.shifting = c.current()
		}
		c.pulses++
		return
	}
	if c.down {
		c.down = false
		c.pulses = 0
	}
}
