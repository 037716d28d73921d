//go:build !rp2040 && !rp2350

// Command scalenode runs the weighing node on a host. The MQTT backhaul
// stands in for the radio and deep sleep is a timed wait; every wake starts
// a fresh cycle from INIT, as on the board.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"scalenode-go/bus"
	"scalenode-go/network/mqttlink"
	"scalenode-go/nvs/leveldb"
	"scalenode-go/platform"
	"scalenode-go/services/config"
	"scalenode-go/services/cycle"
	"scalenode-go/types"
)

type options struct {
	device   string
	path     string
	cycles   int
	simulate bool
	simRaw   int
}

func main() {
	var o options
	flag.StringVar(&o.device, "device", "sim", "embedded device config to start from")
	flag.StringVar(&o.path, "config", "", "HCL, TOML or JSON file overlaid on the device config")
	flag.IntVar(&o.cycles, "cycles", 0, "stop after this many wake cycles (0 runs forever)")
	flag.BoolVar(&o.simulate, "sim", true, "read an emulated HX711 instead of GPIO lines")
	flag.IntVar(&o.simRaw, "sim-raw", 83_886, "raw count produced by the emulated HX711")
	flag.Parse()

	nc, cfgErr := config.LoadNode(o.device, o.path)
	log := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      logLevel(nc.Log.Level),
		TimeFormat: time.TimeOnly,
	}))
	slog.SetDefault(log)
	if cfgErr != nil {
		log.Error("configuration rejected", "err", cfgErr)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, nc, o, log); err != nil {
		log.Error("node stopped", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, nc types.NodeConfig, o options, log *slog.Logger) error {
	st, err := leveldb.Open(nc.NVSPath)
	if err != nil {
		return err
	}
	defer st.Close()

	cc, err := cycle.FromNodeConfig(nc)
	if err != nil {
		return err
	}
	hc, err := cycle.HX711Config(nc.Scale)
	if err != nil {
		return err
	}
	dout, pdsck, led, err := openLines(nc, o, log)
	if err != nil {
		return err
	}

	host := platform.NewHost(log, led)
	conn := bus.NewBus(8).NewConnection("cycle")
	ctl := cycle.New(cc,
		cycle.NewHX711Sensor(dout, pdsck, hc),
		mqttlink.New(nc.MQTT, st, log),
		host,
		cycle.WithLogger(log),
		cycle.WithBus(conn),
	)

	for n := 1; o.cycles == 0 || n <= o.cycles; n++ {
		out := ctl.Run(ctx)
		log.Info("cycle done", "n", n, "outcome", out.Kind, "sample", out.Sample, "tx", out.Tx, "sleep", out.Sleep)
		if out.Kind == cycle.Canceled {
			return nil
		}
		if o.cycles != 0 && n == o.cycles {
			break
		}
		if err := host.Wake(ctx); err != nil {
			if errors.Is(err, platform.ErrNotArmed) {
				return errors.Join(append([]error{err}, out.Errs...)...)
			}
			return nil
		}
	}
	return nil
}

func logLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}
