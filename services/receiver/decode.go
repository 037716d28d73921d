package receiver

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"math"
	"sort"
	"time"

	"github.com/relvacode/iso8601"

	"scalenode-go/errcode"
	"scalenode-go/x/strx"
)

// Uplink is one received frame, independent of the network server that
// delivered it.
type Uplink struct {
	DevEUI  string
	DevName string
	Port    uint8
	FCnt    uint32
	Data    []byte
	Time    time.Time // zero when the event carried none
}

// event covers the ChirpStack v4 integration body and the Helium-style
// body (also produced by mqttlink). Key names differ only in case where
// both exist, and encoding/json prefers the exact match.
type event struct {
	DeviceInfo *struct {
		DevEUI     string `json:"devEui"`
		DeviceName string `json:"deviceName"`
	} `json:"deviceInfo"`
	FPort  *uint8  `json:"fPort"`
	FCntCS *uint32 `json:"fCnt"`
	Data   string  `json:"data"`
	Time   string  `json:"time"`
	Object *struct {
		Tension map[string][]float64 `json:"tension"`
	} `json:"object"`

	DevEUI     string          `json:"dev_eui"`
	Name       string          `json:"name"`
	Port       *uint8          `json:"port"`
	FCnt       *uint32         `json:"fcnt"`
	Payload    string          `json:"payload"`
	ReportedAt json.RawMessage `json:"reported_at"` // ms since epoch or RFC 3339
}

func invalid(msg string, err error) error {
	return &errcode.E{C: errcode.InvalidParams, Op: "uplink", Msg: msg, Err: err}
}

// ParseUplink decodes a network server event body.
func ParseUplink(body []byte) (Uplink, error) {
	var ev event
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&ev); err != nil {
		return Uplink{}, invalid("malformed body", err)
	}

	var up Uplink
	switch {
	case ev.DeviceInfo != nil:
		up.DevEUI = ev.DeviceInfo.DevEUI
		up.DevName = ev.DeviceInfo.DeviceName
	default:
		up.DevEUI = ev.DevEUI
		up.DevName = ev.Name
	}
	up.DevEUI = normEUI(up.DevEUI)
	if up.DevEUI == "" {
		return Uplink{}, invalid("missing device EUI", nil)
	}

	if ev.FPort != nil {
		up.Port = *ev.FPort
	} else if ev.Port != nil {
		up.Port = *ev.Port
	}
	if ev.FCntCS != nil {
		up.FCnt = *ev.FCntCS
	} else if ev.FCnt != nil {
		up.FCnt = *ev.FCnt
	}

	data, err := eventData(&ev)
	if err != nil {
		return Uplink{}, err
	}
	up.Data = data

	t, err := eventTime(&ev)
	if err != nil {
		return Uplink{}, err
	}
	up.Time = t
	return up, nil
}

func eventData(ev *event) ([]byte, error) {
	raw := strx.Coalesce(ev.Data, ev.Payload)
	if raw != "" {
		b, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return nil, invalid("payload is not base64", err)
		}
		return b, nil
	}
	// Codec output from the network server: object.tension holds the frame
	// as a list of byte values, keyed by channel.
	if ev.Object != nil && len(ev.Object.Tension) > 0 {
		return tensionBytes(ev.Object.Tension)
	}
	return nil, invalid("no payload", nil)
}

func tensionBytes(t map[string][]float64) ([]byte, error) {
	vals, ok := t["1"]
	if !ok {
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		vals = t[keys[0]]
	}
	b := make([]byte, len(vals))
	for i, v := range vals {
		if v < 0 || v > 255 || v != math.Trunc(v) {
			return nil, invalid("tension value out of byte range", nil)
		}
		b[i] = byte(v)
	}
	return b, nil
}

func eventTime(ev *event) (time.Time, error) {
	if ev.Time != "" {
		t, err := iso8601.ParseString(ev.Time)
		if err != nil {
			return time.Time{}, invalid("bad time", err)
		}
		return t, nil
	}
	ra := bytes.TrimSpace(ev.ReportedAt)
	if len(ra) == 0 || string(ra) == "null" {
		return time.Time{}, nil
	}
	if ra[0] == '"' {
		var s string
		if err := json.Unmarshal(ra, &s); err != nil {
			return time.Time{}, invalid("bad reported_at", err)
		}
		t, err := iso8601.ParseString(s)
		if err != nil {
			return time.Time{}, invalid("bad reported_at", err)
		}
		return t, nil
	}
	var ms int64
	if err := json.Unmarshal(ra, &ms); err != nil {
		return time.Time{}, invalid("bad reported_at", err)
	}
	return time.UnixMilli(ms).UTC(), nil
}
