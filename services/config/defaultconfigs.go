package config

// -----------------------------------------------------------------------------
// Embedded configuration
//
// Key: device ID (same value placed in ctx under CtxDeviceKey)
// Val: raw JSON overlaid on Defaults() for that device
// -----------------------------------------------------------------------------

// ESP32 + SX1276 board the node was first deployed on. Matches Defaults().
const cfgESP32SX1276 = `{
  "device": "esp32-sx1276",
  "radio": {"sck": 5, "sdo": 27, "sdi": 19, "nss": 18, "rxtx": -1, "rst": 14, "dio0": 26, "dio1": 35},
  "scale": {"dout": 12, "pd_sck": 13, "gain": 64},
  "led_pin": 25
}`

// Raspberry Pi Pico with an RFM95W on SPI0.
const cfgPico = `{
  "device": "pico",
  "radio": {"sck": 18, "sdo": 19, "sdi": 16, "nss": 17, "rxtx": -1, "rst": 20, "dio0": 21, "dio1": 22},
  "scale": {"dout": 14, "pd_sck": 15, "gain": 64},
  "led_pin": 25,
  "log": {"uart_tx": 0, "uart_rx": 1, "baud": 115200}
}`

// Hosted node talking MQTT to a local broker.
const cfgSim = `{
  "device": "sim",
  "mqtt": {"broker": "tcp://127.0.0.1:1883", "prefix": "scalenode"},
  "nvs_path": "scalenode.nvs"
}`

// Uplink receiver service settings, published on config/<key>.
const cfgReceiver = `{
  "heartbeat": {"interval": 10},
  "receiver": {"listen": ":8080", "byte_order": "le"}
}`

var embeddedConfigs = map[string][]byte{
	"esp32-sx1276": []byte(cfgESP32SX1276),
	"pico":         []byte(cfgPico),
	"sim":          []byte(cfgSim),
	"receiver":     []byte(cfgReceiver),
}
