//go:build !rp2040 && !rp2350

package main

import (
	"log/slog"

	"scalenode-go/drivers/hx711"
	"scalenode-go/drivers/hx711/hx711test"
)

// simLines returns an emulated amplifier whose conversions jitter around raw.
func simLines(raw int, log *slog.Logger) (hx711.InputPin, hx711.OutputPin) {
	r := int32(raw)
	chip := hx711test.NewChip(r-2, r+1, r, r+2, r-1)
	log.Info("using emulated HX711", "raw", raw)
	return chip.DOUT(), chip.PDSCK()
}
