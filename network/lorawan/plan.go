package lorawan

import (
	"tinygo.org/x/drivers/lora"
	"tinygo.org/x/drivers/lora/lorawan/region"

	"scalenode-go/x/mathx"
)

// Radio limits of the SX1276 PA_BOOST output.
const (
	minTxPowerDBm = 2
	maxTxPowerDBm = 17
)

// uplinkPort is the only FPort the TinyGo stack frames uplinks with.
const uplinkPort = 1

// regionSettings returns the channel plan for name. Unknown names fall back
// to EU868.
func regionSettings(name string) region.Settings {
	switch name {
	case "US915":
		return region.US915()
	case "AU915":
		return region.AU915()
	default:
		return region.EU868()
	}
}

// spreadingFactor maps DR0..DR5 to SF12..SF7 at 125 kHz.
func spreadingFactor(dr uint8) (uint8, bool) {
	if dr > 5 {
		return 0, false
	}
	return lora.SpreadingFactor12 - dr, true
}

// channelPlan carries the data rate and power overrides. The stack applies
// each channel's settings to the radio before every TX, so overrides must
// live on the channels rather than on the radio.
type channelPlan struct {
	sf    uint8
	txDBm int8
}

func (p *channelPlan) setDataRate(dr uint8) bool {
	sf, ok := spreadingFactor(dr)
	if ok {
		p.sf = sf
	}
	return ok
}

func (p *channelPlan) setMaxTxPower(dBm int8) {
	p.txDBm = mathx.Clamp(dBm, minTxPowerDBm, maxTxPowerDBm)
}

// apply writes the overrides into the join request and uplink channels.
// Zero fields keep the region defaults.
func (p channelPlan) apply(rs region.Settings) {
	if rs == nil {
		return
	}
	for _, ch := range []region.Channel{rs.JoinRequestChannel(), rs.UplinkChannel()} {
		if p.sf != 0 {
			ch.SetSpreadingFactor(p.sf)
		}
		if p.txDBm != 0 {
			ch.SetTxPowerDBm(p.txDBm)
		}
	}
}

// portSupported reports whether an uplink on port can be sent as requested.
func portSupported(port uint8, confirmed bool) bool {
	return port == uplinkPort && !confirmed
}
