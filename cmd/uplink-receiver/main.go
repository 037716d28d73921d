//go:build !rp2040 && !rp2350

// Command uplink-receiver accepts network server webhooks (and MQTT uplinks
// from hosted nodes), decodes the scale payload and serves the result.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"scalenode-go/bus"
	"scalenode-go/services/bridge"
	"scalenode-go/services/config"
	"scalenode-go/services/heartbeat"
	"scalenode-go/services/receiver"
	"scalenode-go/types"
)

func main() {
	path := flag.String("config", "", "HCL, TOML or JSON receiver config")
	listen := flag.String("listen", "", "HTTP listen address (overrides the config)")
	broker := flag.String("broker", "", "run an embedded MQTT broker on this address")
	debug := flag.Bool("debug", false, "debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	log := slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: level, TimeFormat: time.TimeOnly}))
	slog.SetDefault(log)

	rc, err := config.LoadReceiver(*path)
	if err != nil {
		log.Error("configuration rejected", "err", err)
		os.Exit(2)
	}
	if *listen != "" {
		rc.Listen = *listen
	}
	if *broker != "" {
		rc.Broker = *broker
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, rc, log); err != nil {
		log.Error("receiver stopped", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, rc types.ReceiverConfig, log *slog.Logger) error {
	b := bus.NewBus(32)

	// Embedded defaults first, then the values resolved from the file.
	errs := make(chan error, 1)
	config.NewConfigService().Start(context.WithValue(ctx, config.CtxDeviceKey, "receiver"), b.NewConnection("config"), errs)
	if err := <-errs; err != nil {
		return err
	}
	cfgConn := b.NewConnection("main")
	cfgConn.Publish(cfgConn.NewMessage(bus.T("config", "heartbeat"), map[string]any{"interval": float64(rc.HeartbeatSec)}, true))

	if rc.Broker != "" {
		srv, err := receiver.StartBroker(rc.Broker)
		if err != nil {
			return err
		}
		defer srv.Close()
		log.Info("embedded broker", "addr", rc.Broker)
		if rc.MQTT.Broker == "" {
			rc.MQTT.Broker = "tcp://" + rc.Broker
		}
	}

	rx, err := receiver.New(rc, b.NewConnection("receiver"), log)
	if err != nil {
		return err
	}

	hb := heartbeat.New(rx, time.Duration(rc.HeartbeatSec)*time.Second, log)
	if err := hb.Start(ctx, b.NewConnection("heartbeat")); err != nil {
		return err
	}

	if rc.MQTT.Broker != "" {
		if err := rx.SubscribeMQTT(ctx, rc.MQTT); err != nil {
			return err
		}
		go bridge.Start(ctx, b.NewConnection("bridge"), log)
		mq := rc.MQTT
		mq.ClientID = "" // the bridge needs its own session
		cfgConn.Publish(cfgConn.NewMessage(bus.T("config", "bridge"), bridge.Config{
			Transport: bridge.TransportConfig{Type: "mqtt", MQTT: &mq},
		}, true))
	}

	if rc.Influx.URL != "" {
		go bridge.StartNamed(ctx, b.NewConnection("influx"), "influx", log)
		ic := rc.Influx
		cfgConn.Publish(cfgConn.NewMessage(bus.T("config", "influx"), bridge.Config{
			Transport: bridge.TransportConfig{Type: "influx", Influx: &ic},
		}, true))
	}

	return rx.Serve(ctx, rc.Listen)
}
