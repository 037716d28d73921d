package receiver

import (
	"context"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/juju/errors"
	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"

	"scalenode-go/network/mqttlink"
	"scalenode-go/types"
	"scalenode-go/x/strx"
)

// StartBroker runs an embedded MQTT broker on addr for nodes that use the
// MQTT backhaul. Close the returned server to stop it.
func StartBroker(addr string) (*mochi.Server, error) {
	srv := mochi.New(nil)
	if err := srv.AddHook(&auth.AllowHook{}, nil); err != nil {
		return nil, errors.Annotate(err, "broker auth hook")
	}
	if err := srv.AddListener(listeners.NewTCP(listeners.Config{Type: "tcp", ID: "scalenode", Address: addr})); err != nil {
		return nil, errors.Annotatef(err, "broker listen %s", addr)
	}
	if err := srv.Serve(); err != nil {
		return nil, errors.Annotate(err, "broker serve")
	}
	return srv, nil
}

// SubscribeMQTT ingests the uplinks mqttlink nodes publish under cfg.Prefix.
// It returns once subscribed; the client disconnects when ctx ends.
func (s *Service) SubscribeMQTT(ctx context.Context, cfg types.MQTTConfig) error {
	if cfg.Broker == "" {
		return errors.NotValidf("mqtt ingest without broker")
	}
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(strx.Coalesce(cfg.ClientID, "receiver-"+uuid.NewString())).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second).
		SetOrderMatters(false)

	filter := mqttlink.UplinkTopic(strx.Coalesce(cfg.Prefix, "scalenode"))
	subscribe := func(c mqtt.Client) error {
		tok := c.Subscribe(filter, 1, func(_ mqtt.Client, m mqtt.Message) {
			_, _ = s.Ingest(m.Payload())
		})
		if !tok.WaitTimeout(10 * time.Second) {
			return errors.Timeoutf("mqtt subscribe %s", filter)
		}
		return tok.Error()
	}
	var connected atomic.Bool
	// Clean sessions drop subscriptions; renew them on every reconnect.
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		if !connected.Load() {
			return
		}
		if err := subscribe(c); err != nil {
			s.log.Error("mqtt resubscribe failed", "filter", filter, "err", err)
		}
	})

	c := mqtt.NewClient(opts)
	tok := c.Connect()
	if !tok.WaitTimeout(10 * time.Second) {
		return errors.Timeoutf("mqtt connect %s", cfg.Broker)
	}
	if err := tok.Error(); err != nil {
		return errors.Annotatef(err, "mqtt connect %s", cfg.Broker)
	}
	if err := subscribe(c); err != nil {
		c.Disconnect(0)
		return errors.Annotate(err, "mqtt subscribe")
	}
	connected.Store(true)
	s.log.Info("mqtt ingest", "broker", cfg.Broker, "filter", filter)

	go func() {
		<-ctx.Done()
		c.Disconnect(250)
	}()
	return nil
}
