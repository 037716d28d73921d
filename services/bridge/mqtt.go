package bridge

import (
	"context"
	"errors"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"scalenode-go/types"
	"scalenode-go/x/strx"
)

const publishTimeout = 5 * time.Second

// mqttTransport publishes measurements on <prefix>/<deveui>/weight, retained
// so late subscribers see the last value.
type mqttTransport struct {
	cfg types.MQTTConfig
}

func newMQTTTransport(cfg TransportConfig) (Transport, error) {
	if cfg.MQTT == nil || cfg.MQTT.Broker == "" {
		return nil, errors.New("mqtt transport requires a broker")
	}
	c := *cfg.MQTT
	c.Prefix = strx.Coalesce(c.Prefix, "scalenode")
	c.ClientID = strx.Coalesce(c.ClientID, "bridge-"+uuid.NewString())
	return &mqttTransport{cfg: c}, nil
}

func (t *mqttTransport) Open(ctx context.Context) (Sink, error) {
	lost := make(chan error, 1)
	opts := mqtt.NewClientOptions().
		AddBroker(t.cfg.Broker).
		SetClientID(t.cfg.ClientID).
		SetUsername(t.cfg.Username).
		SetPassword(t.cfg.Password).
		SetAutoReconnect(false).
		SetConnectTimeout(publishTimeout).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			select {
			case lost <- err:
			default:
			}
		})
	c := mqtt.NewClient(opts)
	if err := wait(ctx, c.Connect()); err != nil {
		return nil, err
	}
	return &mqttSink{c: c, prefix: t.cfg.Prefix, lost: lost}, nil
}

func (t *mqttTransport) String() string { return "mqtt" }

type mqttSink struct {
	c      mqtt.Client
	prefix string
	lost   chan error
}

func (s *mqttSink) Publish(devEUI string, body []byte) error {
	select {
	case err := <-s.lost:
		return err
	default:
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	return wait(ctx, s.c.Publish(s.prefix+"/"+devEUI+"/weight", 1, true, body))
}

func (s *mqttSink) Close() { s.c.Disconnect(250) }

func wait(ctx context.Context, tok mqtt.Token) error {
	for !tok.WaitTimeout(50 * time.Millisecond) {
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return tok.Error()
}
