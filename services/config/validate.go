package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sosodev/duration"

	"scalenode-go/drivers/hx711"
	"scalenode-go/errcode"
	"scalenode-go/network"
	"scalenode-go/payload"
	"scalenode-go/types"
	"scalenode-go/x/mathx"
)

// Bounds applied by Validate.
const (
	MinIntervalSec = 1
	MaxIntervalSec = 24 * 60 * 60
	MaxSamples     = 64
	MaxSettleMs    = 10_000
	MinTxPowerDBm  = 2
	MaxTxPowerDBm  = 20
	MaxDataRate    = 5
	MaxPort        = 223
)

var regions = []string{"EU868", "US915", "AU915"}

func invalid(field string, err error) error {
	return &errcode.E{C: errcode.InvalidConfig, Op: field, Err: err}
}

func invalidMsg(field, msg string) error {
	return &errcode.E{C: errcode.InvalidConfig, Op: field, Msg: msg}
}

// Validate fills zero fields with defaults, clamps ranges and reports every
// field it cannot repair. The returned error matches errcode.InvalidConfig.
func Validate(nc *types.NodeConfig) error {
	d := Defaults()
	var errs []error

	if _, err := network.ParseCredentials(nc.Credentials); err != nil {
		errs = append(errs, invalid("credentials", err))
	}

	// Cycle
	if nc.Cycle.Interval != "" {
		iso, err := duration.Parse(nc.Cycle.Interval)
		if err != nil {
			errs = append(errs, invalid("cycle.interval", err))
		} else if iv := iso.ToTimeDuration(); iv < time.Second {
			errs = append(errs, invalid("cycle.interval", fmt.Errorf("%s is under one second", nc.Cycle.Interval)))
		} else {
			nc.Cycle.IntervalSec = int(iv.Seconds())
		}
	}
	nc.Cycle.IntervalSec = mathx.Clamp(mathx.OrDefault(nc.Cycle.IntervalSec, d.Cycle.IntervalSec), MinIntervalSec, MaxIntervalSec)
	if _, err := payload.ParseByteOrder(nc.Cycle.ByteOrder); err != nil {
		errs = append(errs, invalid("cycle.byte_order", err))
	}
	if nc.Cycle.Port == 0 {
		nc.Cycle.Port = d.Cycle.Port
	} else if nc.Cycle.Port > MaxPort {
		errs = append(errs, invalidMsg("cycle.port", "must be 1..223"))
	}
	if nc.Cycle.JoinRetrySec > MaxIntervalSec {
		nc.Cycle.JoinRetrySec = MaxIntervalSec
	}
	nc.Cycle.PowerDownMs = mathx.Clamp(nc.Cycle.PowerDownMs, 0, MaxSettleMs)

	// Scale
	if nc.Scale.Gain == 0 {
		nc.Scale.Gain = d.Scale.Gain
	}
	if _, err := hx711.GainFromInt(nc.Scale.Gain); err != nil {
		errs = append(errs, invalid("scale.gain", err))
	}
	nc.Scale.Samples = mathx.Clamp(mathx.OrDefault(nc.Scale.Samples, d.Scale.Samples), 1, MaxSamples)
	nc.Scale.ReadyTimeoutMs = mathx.OrDefault(nc.Scale.ReadyTimeoutMs, d.Scale.ReadyTimeoutMs)
	nc.Scale.SettleMs = mathx.Clamp(nc.Scale.SettleMs, 0, MaxSettleMs)

	// Radio
	nc.Radio.Region = strings.ToUpper(strings.TrimSpace(nc.Radio.Region))
	if nc.Radio.Region == "" {
		nc.Radio.Region = d.Radio.Region
	}
	if !known(nc.Radio.Region) {
		errs = append(errs, invalidMsg("radio.region", nc.Radio.Region))
	}
	nc.Radio.DataRate = mathx.Clamp(nc.Radio.DataRate, 0, MaxDataRate)
	if nc.Radio.MaxTxPowerDBm == 0 {
		nc.Radio.MaxTxPowerDBm = d.Radio.MaxTxPowerDBm
	}
	nc.Radio.MaxTxPowerDBm = mathx.Clamp(nc.Radio.MaxTxPowerDBm, MinTxPowerDBm, MaxTxPowerDBm)

	nc.MQTT.Prefix = strings.Trim(nc.MQTT.Prefix, "/")
	if nc.MQTT.Prefix == "" {
		nc.MQTT.Prefix = d.MQTT.Prefix
	}
	if nc.Log.Level == "" {
		nc.Log.Level = d.Log.Level
	}
	return errors.Join(errs...)
}

// ValidateReceiver applies receiver defaults and checks the byte order.
func ValidateReceiver(rc *types.ReceiverConfig) error {
	d := ReceiverDefaults()
	if rc.Listen == "" {
		rc.Listen = d.Listen
	}
	rc.HeartbeatSec = mathx.OrDefault(rc.HeartbeatSec, d.HeartbeatSec)
	rc.MQTT.Prefix = strings.Trim(rc.MQTT.Prefix, "/")
	if rc.MQTT.Prefix == "" {
		rc.MQTT.Prefix = d.MQTT.Prefix
	}
	if _, err := payload.ParseByteOrder(rc.ByteOrder); err != nil {
		return invalid("receiver.byte_order", err)
	}
	return nil
}

func known(region string) bool {
	for _, r := range regions {
		if r == region {
			return true
		}
	}
	return false
}
