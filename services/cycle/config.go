// services/cycle/config.go
package cycle

import (
	"time"

	"scalenode-go/drivers/hx711"
	"scalenode-go/errcode"
	"scalenode-go/network"
	"scalenode-go/payload"
	"scalenode-go/types"
	"scalenode-go/x/timex"
)

// FromNodeConfig resolves a validated node configuration into controller
// settings. Malformed credentials or byte order yield errcode.InvalidConfig.
func FromNodeConfig(nc types.NodeConfig) (Config, error) {
	order, err := payload.ParseByteOrder(nc.Cycle.ByteOrder)
	if err != nil {
		return Config{}, errcode.Wrap(errcode.InvalidConfig, "cycle.byte_order", err)
	}
	creds, err := network.ParseCredentials(nc.Credentials)
	if err != nil {
		return Config{}, errcode.Wrap(errcode.InvalidConfig, "credentials", err)
	}
	c := Config{
		Interval:       timex.Seconds(nc.Cycle.IntervalSec),
		ReadyTimeout:   timex.Millis(nc.Scale.ReadyTimeoutMs),
		Samples:        nc.Scale.Samples,
		Settle:         explicitMillis(nc.Scale.SettleMs),
		PowerDownDelay: explicitMillis(nc.Cycle.PowerDownMs),
		Order:          order,
		Port:           nc.Cycle.Port,
		Confirmed:      nc.Cycle.Confirmed,
		Credentials:    creds,
		Pins:           network.RadioPinsFrom(nc.Radio),
		ADR:            nc.Radio.ADR,
		DataRate:       nc.Radio.DataRate,
		MaxTxPower:     nc.Radio.MaxTxPowerDBm,
	}
	switch {
	case nc.Cycle.JoinRetrySec < 0:
		c.JoinRetry = -1
	case nc.Cycle.JoinRetrySec > 0:
		c.JoinRetry = timex.Seconds(nc.Cycle.JoinRetrySec)
	}
	return c, nil
}

// HX711Config maps the scale block onto driver settings.
func HX711Config(sc types.ScaleConfig) (hx711.Config, error) {
	g, err := hx711.GainFromInt(sc.Gain)
	if err != nil {
		return hx711.Config{}, errcode.Wrap(errcode.InvalidConfig, "scale.gain", err)
	}
	return hx711.Config{
		Gain:        g,
		ReadTimeout: timex.Millis(sc.ReadyTimeoutMs),
	}, nil
}

// explicitMillis keeps a configured zero as "no delay" instead of letting
// New replace it with the default.
func explicitMillis(ms int) time.Duration {
	if ms <= 0 {
		return -1
	}
	return timex.Millis(ms)
}
