//go:build linux && !rp2040 && !rp2350

package platform

import (
	"fmt"
	"strconv"

	"github.com/juju/errors"
	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/host"
)

// InputLine reads a GPIO through periph.
type InputLine struct{ p gpio.PinIO }

func (l InputLine) Get() bool { return l.p.Read() == gpio.High }

// OutputLine drives a GPIO through periph.
type OutputLine struct{ p gpio.PinIO }

func (l OutputLine) Set(v bool) { _ = l.p.Out(gpio.Level(v)) }

var hostInit = func() error {
	_, err := host.Init()
	return err
}

func lookup(n int) (gpio.PinIO, error) {
	if n < 0 {
		return nil, fmt.Errorf("gpio %d not connected", n)
	}
	p := gpioreg.ByName(strconv.Itoa(n))
	if p == nil {
		p = gpioreg.ByName("GPIO" + strconv.Itoa(n))
	}
	if p == nil {
		return nil, fmt.Errorf("gpio %d not found", n)
	}
	return p, nil
}

// OpenHX711Lines claims DOUT as an input and PD_SCK as an output, low.
func OpenHX711Lines(dout, pdsck int) (InputLine, OutputLine, error) {
	if err := hostInit(); err != nil {
		return InputLine{}, OutputLine{}, errors.Annotate(err, "periph host init")
	}
	in, err := lookup(dout)
	if err != nil {
		return InputLine{}, OutputLine{}, errors.Annotate(err, "hx711 dout")
	}
	if err := in.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return InputLine{}, OutputLine{}, errors.Annotatef(err, "gpio %d input", dout)
	}
	out, err := lookup(pdsck)
	if err != nil {
		return InputLine{}, OutputLine{}, errors.Annotate(err, "hx711 pd_sck")
	}
	if err := out.Out(gpio.Low); err != nil {
		return InputLine{}, OutputLine{}, errors.Annotatef(err, "gpio %d output", pdsck)
	}
	return InputLine{in}, OutputLine{out}, nil
}

// OpenLED claims an output line for the status LED.
func OpenLED(n int) (OutputLine, error) {
	if err := hostInit(); err != nil {
		return OutputLine{}, errors.Annotate(err, "periph host init")
	}
	p, err := lookup(n)
	if err != nil {
		return OutputLine{}, errors.Annotate(err, "led")
	}
	return OutputLine{p}, nil
}
