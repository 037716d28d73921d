package types

import "time"

// ------------------------
// Cycle state (retained on "cycle/state")
// ------------------------

type CycleState struct {
	State string `json:"state"`           // "init", "joined_or_resumed", ...
	Error string `json:"error,omitempty"` // errcode of the step, if it failed
	TS    int64  `json:"ts_ns"`
}

// ------------------------
// Decoded uplink (receiver, retained on "uplink/<deveui>")
// ------------------------

type Measurement struct {
	ID         string    `json:"id"`
	DevEUI     string    `json:"dev_eui"`
	DevName    string    `json:"dev_name,omitempty"`
	FCnt       uint32    `json:"fcnt"`
	Port       uint8     `json:"port"`
	Raw        int32     `json:"raw"`
	Payload    string    `json:"payload_hex"`
	Weight     string    `json:"weight,omitempty"` // calibrated, decimal
	Unit       string    `json:"unit,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// ------------------------
// Receiver liveness (retained on "status/heartbeat")
// ------------------------

type Heartbeat struct {
	UptimeSec int64 `json:"uptime_s"`
	Uplinks   int64 `json:"uplinks"`
	Rejected  int64 `json:"rejected"`
	TS        int64 `json:"ts_ns"`
}
