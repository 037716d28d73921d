//go:build rp2040 || rp2350

// Command scalenode-pico is the RP2040 firmware: one measure, transmit and
// sleep cycle per boot. EnterDeepSleep resets the chip, so Run never returns
// on success.
package main

import (
	"context"
	"log/slog"
	"time"

	"scalenode-go/network/lorawan"
	"scalenode-go/platform"
	"scalenode-go/services/config"
	"scalenode-go/services/cycle"
)

const device = "pico"

func main() {
	// Allow USB CDC to enumerate before we log.
	time.Sleep(2 * time.Second)

	nc, cfgErr := config.Lookup(device)
	if cfgErr == nil {
		cfgErr = config.Validate(&nc)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(nc.Log.Level)); err != nil {
		level = slog.LevelInfo
	}
	sink := platform.LogSink(nc.Log.Baud, nc.Log.UARTTX, nc.Log.UARTRX)
	log := slog.New(slog.NewTextHandler(sink, &slog.HandlerOptions{Level: level}))

	board := platform.NewBoard(nc, log)
	if cfgErr != nil {
		log.Error("configuration rejected", "err", cfgErr)
		halt(board, 30*time.Second)
	}

	st, err := platform.OpenNVS()
	if err != nil {
		log.Error("nvs unavailable", "err", err)
		halt(board, 30*time.Second)
	}

	cc, err := cycle.FromNodeConfig(nc)
	if err != nil {
		log.Error("cycle config", "err", err)
		halt(board, 30*time.Second)
	}
	hc, err := cycle.HX711Config(nc.Scale)
	if err != nil {
		log.Error("scale config", "err", err)
		halt(board, cc.Interval)
	}
	hc.Critical = platform.Critical

	dout, pdsck := platform.HX711Lines(nc.Scale.DOUT, nc.Scale.PDSCK)
	ctl := cycle.New(cc,
		cycle.NewHX711Sensor(dout, pdsck, hc),
		lorawan.New(board.SPI(), st, nc.Radio.Region, log),
		board,
		cycle.WithLogger(log),
	)

	out := ctl.Run(context.Background())
	// Reached only when the cycle did not end in deep sleep.
	log.Error("cycle ended without sleeping", "outcome", out.Kind, "errs", len(out.Errs))
	halt(board, cc.Interval)
}

// halt sleeps through one interval and resets, retrying from a clean boot.
func halt(b *platform.Board, d time.Duration) {
	if d <= 0 {
		d = cycle.DefaultInterval
	}
	if err := b.ArmTimerWake(d); err == nil {
		_ = b.EnterDeepSleep()
	}
	for {
		time.Sleep(time.Hour)
	}
}
