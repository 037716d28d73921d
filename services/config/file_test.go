//go:build !rp2040 && !rp2350

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoadNode_HCL(t *testing.T) {
	p := writeFile(t, "node.hcl", `
device = "bench"

cycle {
  interval_sec = 60
  byte_order   = "be"
}

mqtt {
  broker = "tcp://10.0.0.2:1883"
}
`)
	nc, err := LoadNode("", p)
	require.NoError(t, err)
	assert.Equal(t, "bench", nc.Device)
	assert.Equal(t, 60, nc.Cycle.IntervalSec)
	assert.Equal(t, "be", nc.Cycle.ByteOrder)
	assert.Equal(t, "tcp://10.0.0.2:1883", nc.MQTT.Broker)
}

func TestLoadNode_TOMLOverEmbedded(t *testing.T) {
	p := writeFile(t, "node.toml", `
[cycle]
interval = "PT2M"

[scale]
samples = 4
`)
	nc, err := LoadNode("sim", p)
	require.NoError(t, err)
	assert.Equal(t, "sim", nc.Device)
	assert.Equal(t, "tcp://127.0.0.1:1883", nc.MQTT.Broker)
	assert.Equal(t, 120, nc.Cycle.IntervalSec)
	assert.Equal(t, 4, nc.Scale.Samples)
	assert.Equal(t, "c496422c5c2a7f78", nc.Credentials.DevEUI)
}

func TestLoadNode_JSONAndErrors(t *testing.T) {
	p := writeFile(t, "node.json", `{"cycle": {"port": 7}}`)
	nc, err := LoadNode("", p)
	require.NoError(t, err)
	assert.Equal(t, uint8(7), nc.Cycle.Port)

	_, err = LoadNode("", writeFile(t, "node.yaml", "a: 1"))
	assert.Error(t, err)

	_, err = LoadNode("", filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	_, err = LoadNode("", writeFile(t, "bad.toml", "[cycle\n"))
	assert.Error(t, err)
}

func TestLoadReceiver_Calibration(t *testing.T) {
	p := writeFile(t, "receiver.toml", `
listen = ":9000"
byte_order = "le"

[calibration.C496422C5C2A7F78]
offset = "8388"
scale = "21.5"
unit = "kg"
name = "hive-1"

[influx]
url = "http://localhost:8086"
org = "iotlnu"
bucket = "scales"
`)
	rc, err := LoadReceiver(p)
	require.NoError(t, err)
	assert.Equal(t, ":9000", rc.Listen)
	assert.Equal(t, 10, rc.HeartbeatSec)
	c, ok := rc.Calibration["C496422C5C2A7F78"]
	require.True(t, ok)
	assert.Equal(t, "21.5", c.Scale)
	assert.Equal(t, "hive-1", c.Name)
	assert.Equal(t, "http://localhost:8086", rc.Influx.URL)
	assert.Equal(t, "scales", rc.Influx.Bucket)

	rc, err = LoadReceiver("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", rc.Listen)
}
