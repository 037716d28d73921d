package types

// ------------------------
// Node configuration
// ------------------------

// NodeConfig is everything one wake cycle needs. Field tags cover the JSON
// embedded defaults and the HCL/TOML files read on host builds.
type NodeConfig struct {
	Device      string            `json:"device" hcl:"device" toml:"device"`
	Credentials CredentialsConfig `json:"credentials" hcl:"credentials" toml:"credentials"`
	Radio       RadioConfig       `json:"radio" hcl:"radio" toml:"radio"`
	Scale       ScaleConfig       `json:"scale" hcl:"scale" toml:"scale"`
	Cycle       CycleConfig       `json:"cycle" hcl:"cycle" toml:"cycle"`
	MQTT        MQTTConfig        `json:"mqtt" hcl:"mqtt" toml:"mqtt"`
	Log         LogConfig         `json:"log" hcl:"log" toml:"log"`

	LEDPin  int    `json:"led_pin" hcl:"led_pin" toml:"led_pin"`
	NVSPath string `json:"nvs_path" hcl:"nvs_path" toml:"nvs_path"` // host only
}

// CredentialsConfig holds the OTAA join material as hex strings.
type CredentialsConfig struct {
	DevEUI string `json:"dev_eui" hcl:"dev_eui" toml:"dev_eui"` // 8 bytes
	AppEUI string `json:"app_eui" hcl:"app_eui" toml:"app_eui"` // 8 bytes, a.k.a. JoinEUI
	AppKey string `json:"app_key" hcl:"app_key" toml:"app_key"` // 16 bytes
}

// RadioConfig covers the SX127x wiring and the MAC knobs handed to the stack.
// A pin value of -1 means "not connected".
type RadioConfig struct {
	SCK  int `json:"sck" hcl:"sck" toml:"sck"`
	SDO  int `json:"sdo" hcl:"sdo" toml:"sdo"` // MOSI
	SDI  int `json:"sdi" hcl:"sdi" toml:"sdi"` // MISO
	NSS  int `json:"nss" hcl:"nss" toml:"nss"`
	RXTX int `json:"rxtx" hcl:"rxtx" toml:"rxtx"`
	RST  int `json:"rst" hcl:"rst" toml:"rst"`
	DIO0 int `json:"dio0" hcl:"dio0" toml:"dio0"`
	DIO1 int `json:"dio1" hcl:"dio1" toml:"dio1"`

	Region        string `json:"region" hcl:"region" toml:"region"` // "EU868", "US915", ...
	ADR           bool   `json:"adr" hcl:"adr" toml:"adr"`
	DataRate      uint8  `json:"data_rate" hcl:"data_rate" toml:"data_rate"`
	MaxTxPowerDBm int8   `json:"max_tx_power_dbm" hcl:"max_tx_power_dbm" toml:"max_tx_power_dbm"`
}

// ScaleConfig wires the HX711 load-cell amplifier.
type ScaleConfig struct {
	DOUT           int `json:"dout" hcl:"dout" toml:"dout"`
	PDSCK          int `json:"pd_sck" hcl:"pd_sck" toml:"pd_sck"`
	Gain           int `json:"gain" hcl:"gain" toml:"gain"` // 128, 64 or 32
	Samples        int `json:"samples" hcl:"samples" toml:"samples"`
	ReadyTimeoutMs int `json:"ready_timeout_ms" hcl:"ready_timeout_ms" toml:"ready_timeout_ms"`
	SettleMs       int `json:"settle_ms" hcl:"settle_ms" toml:"settle_ms"`
}

// CycleConfig shapes the measure/transmit/sleep loop.
type CycleConfig struct {
	IntervalSec  int    `json:"interval_sec" hcl:"interval_sec" toml:"interval_sec"`
	Interval     string `json:"interval" hcl:"interval" toml:"interval"`       // ISO 8601, e.g. "PT5M"; overrides IntervalSec
	ByteOrder    string `json:"byte_order" hcl:"byte_order" toml:"byte_order"` // "le" | "be"
	Port         uint8  `json:"port" hcl:"port" toml:"port"`
	Confirmed    bool   `json:"confirmed" hcl:"confirmed" toml:"confirmed"`
	JoinRetrySec int    `json:"join_retry_sec" hcl:"join_retry_sec" toml:"join_retry_sec"` // 0 => IntervalSec
	PowerDownMs  int    `json:"power_down_ms" hcl:"power_down_ms" toml:"power_down_ms"`
}

// LogConfig selects the log level and, on MCU builds, the UART sink.
type LogConfig struct {
	Level  string `json:"level" hcl:"level" toml:"level"` // debug | info | warn | error
	UARTTX int    `json:"uart_tx" hcl:"uart_tx" toml:"uart_tx"`
	UARTRX int    `json:"uart_rx" hcl:"uart_rx" toml:"uart_rx"`
	Baud   uint32 `json:"baud" hcl:"baud" toml:"baud"`
}

// MQTTConfig is used by the MQTT backhaul link and the receiver bridge.
type MQTTConfig struct {
	Broker   string `json:"broker" hcl:"broker" toml:"broker"`
	Prefix   string `json:"prefix" hcl:"prefix" toml:"prefix"`
	ClientID string `json:"client_id" hcl:"client_id" toml:"client_id"`
	Username string `json:"username" hcl:"username" toml:"username"`
	Password string `json:"password" hcl:"password" toml:"password"`
}

// InfluxConfig points the receiver bridge at an InfluxDB 2.x bucket.
type InfluxConfig struct {
	URL         string `json:"url" hcl:"url" toml:"url"`
	Token       string `json:"token" hcl:"token" toml:"token"`
	Org         string `json:"org" hcl:"org" toml:"org"`
	Bucket      string `json:"bucket" hcl:"bucket" toml:"bucket"`
	Measurement string `json:"measurement" hcl:"measurement" toml:"measurement"` // default "smartlash"
}

// ------------------------
// Uplink receiver
// ------------------------

// ReceiverConfig configures cmd/uplink-receiver.
type ReceiverConfig struct {
	Listen       string `json:"listen" hcl:"listen" toml:"listen"` // HTTP, e.g. ":8080"
	HeartbeatSec int    `json:"heartbeat_sec" hcl:"heartbeat_sec" toml:"heartbeat_sec"`
	// ByteOrder must match the nodes' cycle.byte_order.
	ByteOrder string `json:"byte_order" hcl:"byte_order" toml:"byte_order"`

	// Broker, when set, runs an embedded MQTT broker on this address.
	Broker string     `json:"broker" hcl:"broker" toml:"broker"`
	MQTT   MQTTConfig `json:"mqtt" hcl:"mqtt" toml:"mqtt"`
	// Influx, when URL is set, also writes every measurement to InfluxDB.
	Influx InfluxConfig `json:"influx" hcl:"influx" toml:"influx"`

	Calibration map[string]Calibration `json:"calibration" hcl:"calibration" toml:"calibration"` // by DevEUI
}

// Calibration turns raw counts into a weight: (raw - offset) / scale.
// Decimal strings keep the factors exact.
type Calibration struct {
	Offset string `json:"offset" hcl:"offset" toml:"offset"`
	Scale  string `json:"scale" hcl:"scale" toml:"scale"` // counts per unit
	Unit   string `json:"unit" hcl:"unit" toml:"unit"`
	Name   string `json:"name" hcl:"name" toml:"name"`
}
