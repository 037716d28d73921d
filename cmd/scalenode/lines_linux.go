//go:build linux && !rp2040 && !rp2350

package main

import (
	"log/slog"

	"scalenode-go/drivers/hx711"
	"scalenode-go/platform"
	"scalenode-go/types"
)

// openLines binds the amplifier and LED to sysfs/cdev GPIO unless the
// emulated chip was asked for.
func openLines(nc types.NodeConfig, o options, log *slog.Logger) (hx711.InputPin, hx711.OutputPin, platform.Pin, error) {
	if o.simulate {
		dout, pdsck := simLines(o.simRaw, log)
		return dout, pdsck, nil, nil
	}
	dout, pdsck, err := platform.OpenHX711Lines(nc.Scale.DOUT, nc.Scale.PDSCK)
	if err != nil {
		return nil, nil, nil, err
	}
	led, err := platform.OpenLED(nc.LEDPin)
	if err != nil {
		log.Warn("status LED unavailable", "pin", nc.LEDPin, "err", err)
		return dout, pdsck, nil, nil
	}
	return dout, pdsck, led, nil
}
