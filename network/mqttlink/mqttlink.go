// Package mqttlink is a network.Stack that carries uplinks over MQTT.
//
// It stands in for the LoRaWAN radio on hosted and Linux nodes. "Join" is a
// broker connect plus a session record kept in NVS, so frame counters survive
// the simulated deep sleep the same way a LoRaWAN session does.
//
// Topics, with <deveui> in uppercase hex:
//
//	<prefix>/<deveui>/join       join announcement (QoS 1)
//	<prefix>/<deveui>/up/<port>  uplink document (QoS 0, or 1 when confirmed)
package mqttlink

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"scalenode-go/errcode"
	"scalenode-go/network"
	"scalenode-go/nvs"
	"scalenode-go/types"
	"scalenode-go/x/conv"
	"scalenode-go/x/mathx"
	"scalenode-go/x/strx"
)

// MaxPayload mirrors the smallest EU868 application payload (DR0-DR2).
const MaxPayload = 51

const (
	defaultPrefix         = "scalenode"
	defaultConnectTimeout = 10 * time.Second
	disconnectQuiesceMs   = 250
)

// Uplink is the document published for every Transmit. The receiver decodes
// it like a Helium-style webhook body.
type Uplink struct {
	DevEUI    string `json:"dev_eui"`
	DevAddr   string `json:"dev_addr"`
	Port      uint8  `json:"port"`
	FCnt      uint32 `json:"fcnt"`
	Confirmed bool   `json:"confirmed"`
	DataRate  uint8  `json:"dr"`
	Payload   string `json:"payload"`     // base64
	SentAt    string `json:"reported_at"` // RFC 3339
}

// JoinAnnounce is published once per successful join.
type JoinAnnounce struct {
	DevEUI     string `json:"dev_eui"`
	AppEUI     string `json:"app_eui"`
	DevAddr    string `json:"dev_addr"`
	ADR        bool   `json:"adr"`
	DataRate   uint8  `json:"dr"`
	MaxTxPower int8   `json:"max_tx_power_dbm"`
}

// Link implements network.Stack.
type Link struct {
	cfg            types.MQTTConfig
	connectTimeout time.Duration
	st             nvs.Store
	log            *slog.Logger

	mu      sync.Mutex
	client  mqtt.Client
	creds   network.Credentials
	session network.Session
	joined  bool
	pending []mqtt.Token

	adr   bool
	dr    uint8
	power int8
}

// Option customises a Link.
type Option func(*Link)

// WithConnectTimeout bounds Join and ResumeSession.
func WithConnectTimeout(d time.Duration) Option {
	return func(l *Link) { l.connectTimeout = d }
}

// New returns an unconnected link storing its state in st.
func New(cfg types.MQTTConfig, st nvs.Store, log *slog.Logger, opts ...Option) *Link {
	if log == nil {
		log = slog.Default()
	}
	cfg.Prefix = strx.Coalesce(cfg.Prefix, defaultPrefix)
	l := &Link{cfg: cfg, st: st, log: log.With("component", "lorawan", "link", "mqtt")}
	for _, o := range opts {
		o(l)
	}
	l.connectTimeout = mathx.OrDefault(l.connectTimeout, defaultConnectTimeout)
	return l
}

func (l *Link) Init() error {
	if l.cfg.Broker == "" {
		return &errcode.E{C: errcode.InvalidConfig, Op: "mqttlink.init", Msg: "no broker"}
	}
	if l.st == nil {
		return &errcode.E{C: errcode.InvalidConfig, Op: "mqttlink.init", Msg: "no nvs"}
	}
	return nil
}

// ConfigurePins has nothing to wire on a network link.
func (l *Link) ConfigurePins(p network.RadioPins) error {
	l.log.Debug("radio pins ignored", "nss", p.NSS, "rst", p.RST, "dio0", p.DIO0, "dio1", p.DIO1)
	return nil
}

func (l *Link) Provision(c network.Credentials) error {
	wrote, err := network.StoreCredentials(l.st, c)
	if err != nil {
		return errcode.Wrap(errcode.InitFailure, "provision", err)
	}
	if wrote {
		l.log.Info("credentials provisioned", "dev_eui", c.DevEUIString())
	}
	l.mu.Lock()
	l.creds = c
	l.mu.Unlock()
	return nil
}

func (l *Link) SetADR(enabled bool)    { l.mu.Lock(); l.adr = enabled; l.mu.Unlock() }
func (l *Link) SetDataRate(dr uint8)   { l.mu.Lock(); l.dr = dr; l.mu.Unlock() }
func (l *Link) SetMaxTxPower(dBm int8) { l.mu.Lock(); l.power = dBm; l.mu.Unlock() }

// ResumeSession reconnects with the session persisted by PrepareForSleep.
func (l *Link) ResumeSession() bool {
	s, ok := network.LoadSession(l.st)
	if !ok {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), l.connectTimeout)
	defer cancel()
	if err := l.connect(ctx); err != nil {
		l.log.Warn("resume failed", "err", err)
		return false
	}
	l.mu.Lock()
	l.session, l.joined = s, true
	l.mu.Unlock()
	return true
}

// Join connects to the broker, allocates a device address and announces it.
func (l *Link) Join(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, l.connectTimeout)
	defer cancel()
	if err := l.connect(ctx); err != nil {
		l.log.Warn("broker connect failed", "broker", l.cfg.Broker, "err", err)
		return false
	}

	l.mu.Lock()
	var s network.Session
	id := uuid.New()
	copy(s.DevAddr[:], id[:4])
	copy(s.NwkSKey[:], id[:])
	id = uuid.New()
	copy(s.AppSKey[:], id[:])
	ann := JoinAnnounce{
		DevEUI:     l.creds.DevEUIString(),
		AppEUI:     hexUpper(l.creds.AppEUI[:]),
		DevAddr:    hexUpper(s.DevAddr[:]),
		ADR:        l.adr,
		DataRate:   l.dr,
		MaxTxPower: l.power,
	}
	client := l.client
	l.mu.Unlock()

	body, _ := json.Marshal(ann)
	if err := waitToken(ctx, client.Publish(l.topic("join"), 1, false, body)); err != nil {
		l.log.Warn("join announce failed", "err", err)
		return false
	}
	if err := network.SaveSession(l.st, s); err != nil {
		l.log.Warn("session not saved", "err", err)
	}

	l.mu.Lock()
	l.session, l.joined = s, true
	l.mu.Unlock()
	l.log.Info("joined", "dev_addr", ann.DevAddr)
	return true
}

// Transmit publishes one uplink. Confirmed uplinks wait for the broker ack.
func (l *Link) Transmit(ctx context.Context, payload []byte, port uint8, confirmed bool) network.TxResult {
	l.mu.Lock()
	if !l.joined || l.client == nil {
		l.mu.Unlock()
		return network.TxUnsupported
	}
	if len(payload) > MaxPayload || port == 0 || port > 223 {
		l.mu.Unlock()
		return network.TxUnsupported
	}
	up := Uplink{
		DevEUI:    l.creds.DevEUIString(),
		DevAddr:   hexUpper(l.session.DevAddr[:]),
		Port:      port,
		FCnt:      l.session.FCntUp,
		Confirmed: confirmed,
		DataRate:  l.dr,
		Payload:   base64.StdEncoding.EncodeToString(payload),
		SentAt:    time.Now().UTC().Format(time.RFC3339Nano),
	}
	client := l.client
	l.mu.Unlock()

	body, _ := json.Marshal(up)
	var qos byte
	if confirmed {
		qos = 1
	}
	tok := client.Publish(l.topic("up", strconv.Itoa(int(port))), qos, false, body)

	if confirmed {
		if err := waitToken(ctx, tok); err != nil {
			l.log.Warn("confirmed uplink not acknowledged", "fcnt", up.FCnt, "err", err)
			return network.TxFailure
		}
	} else if tok.Error() != nil {
		return network.TxFailure
	}

	l.mu.Lock()
	l.session.FCntUp++
	if !confirmed {
		l.pending = append(l.pending, tok)
	}
	l.mu.Unlock()
	l.log.Debug("uplink queued", "fcnt", up.FCnt, "port", port, "qos", qos)
	return network.TxSuccess
}

// WaitIdle blocks until every queued publish has completed or ctx ends.
func (l *Link) WaitIdle(ctx context.Context) {
	l.mu.Lock()
	pending := l.pending
	l.pending = nil
	l.mu.Unlock()
	for _, tok := range pending {
		if err := waitToken(ctx, tok); err != nil {
			l.log.Warn("uplink not flushed", "err", err)
		}
	}
}

// PrepareForSleep stores the session and drops the broker connection.
func (l *Link) PrepareForSleep() error {
	l.mu.Lock()
	s, joined, client := l.session, l.joined, l.client
	l.client, l.joined = nil, false
	l.mu.Unlock()

	if client != nil {
		client.Disconnect(disconnectQuiesceMs)
	}
	if !joined {
		return nil
	}
	if err := network.SaveSession(l.st, s); err != nil {
		return errcode.Wrap(errcode.Error, "mqttlink.persist", err)
	}
	return nil
}

// Session returns a copy of the live session.
func (l *Link) Session() network.Session {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.session
}

func (l *Link) connect(ctx context.Context) error {
	l.mu.Lock()
	if l.client != nil && l.client.IsConnected() {
		l.mu.Unlock()
		return nil
	}
	clientID := l.cfg.ClientID
	if clientID == "" {
		clientID = "node-" + l.creds.DevEUIString()
	}
	opts := mqtt.NewClientOptions().
		AddBroker(l.cfg.Broker).
		SetClientID(clientID).
		SetUsername(l.cfg.Username).
		SetPassword(l.cfg.Password).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectTimeout(l.connectTimeout).
		SetOrderMatters(false).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			l.log.Warn("broker connection lost", "err", err)
		})
	client := mqtt.NewClient(opts)
	l.client = client
	l.mu.Unlock()

	if err := waitToken(ctx, client.Connect()); err != nil {
		l.mu.Lock()
		l.client = nil
		l.mu.Unlock()
		return err
	}
	return nil
}

func (l *Link) topic(parts ...string) string {
	t := l.cfg.Prefix + "/" + l.creds.DevEUIString()
	for _, p := range parts {
		t += "/" + p
	}
	return t
}

// UplinkTopic is the topic filter matching every uplink under prefix.
func UplinkTopic(prefix string) string {
	return fmt.Sprintf("%s/+/up/+", strx.Coalesce(prefix, defaultPrefix))
}

func waitToken(ctx context.Context, tok mqtt.Token) error {
	for !tok.WaitTimeout(50 * time.Millisecond) {
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return tok.Error()
}

func hexUpper(b []byte) string {
	return string(conv.HexUpper(make([]byte, 0, 2*len(b)), b))
}
