//go:build !linux && !rp2040 && !rp2350

package main

import (
	"errors"
	"log/slog"

	"scalenode-go/drivers/hx711"
	"scalenode-go/platform"
	"scalenode-go/types"
)

func openLines(_ types.NodeConfig, o options, log *slog.Logger) (hx711.InputPin, hx711.OutputPin, platform.Pin, error) {
	if !o.simulate {
		return nil, nil, nil, errors.New("GPIO lines need linux; run with -sim")
	}
	dout, pdsck := simLines(o.simRaw, log)
	return dout, pdsck, nil, nil
}
