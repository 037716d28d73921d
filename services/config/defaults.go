package config

import "scalenode-go/types"

// Defaults is the configuration the node ships with.
func Defaults() types.NodeConfig {
	return types.NodeConfig{
		Device: "esp32-sx1276",
		Credentials: types.CredentialsConfig{
			DevEUI: "c496422c5c2a7f78",
			AppEUI: "05c2660247e3113f",
			AppKey: "27e52edcd7015d465b955173ac8eb150",
		},
		Radio: types.RadioConfig{
			SCK: 5, SDO: 27, SDI: 19,
			NSS: 18, RXTX: -1, RST: 14, DIO0: 26, DIO1: 35,
			Region:        "EU868",
			ADR:           true,
			DataRate:      3, // SF9BW125
			MaxTxPowerDBm: 14,
		},
		Scale: types.ScaleConfig{
			DOUT: 12, PDSCK: 13,
			Gain:           64,
			Samples:        10,
			ReadyTimeoutMs: 500,
			SettleMs:       1000,
		},
		Cycle: types.CycleConfig{
			IntervalSec: 30,
			ByteOrder:   "le",
			Port:        1,
			PowerDownMs: 1000,
		},
		MQTT: types.MQTTConfig{
			Prefix: "scalenode",
		},
		Log: types.LogConfig{
			Level:  "info",
			UARTTX: 0,
			UARTRX: 1,
			Baud:   115200,
		},
		LEDPin:  25,
		NVSPath: "scalenode.nvs",
	}
}

// ReceiverDefaults is the uplink receiver configuration without a file.
func ReceiverDefaults() types.ReceiverConfig {
	return types.ReceiverConfig{
		Listen:       ":8080",
		HeartbeatSec: 10,
		ByteOrder:    "le",
		MQTT:         types.MQTTConfig{Prefix: "scalenode"},
	}
}
