// bridge/bridge.go
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"scalenode-go/bus"
	"scalenode-go/types"
)

// -----------------------------------------------------------------------------
// Public entry point
// -----------------------------------------------------------------------------

// Start starts the bridge service. It blocks until ctx is cancelled.
// It listens for JSON config on topic {"config","bridge"} and (re)configures
// the uplink forwarder.
func Start(ctx context.Context, conn *bus.Connection, log *slog.Logger) {
	StartNamed(ctx, conn, "bridge", log)
}

// StartNamed runs an independent bridge configured on {"config",name} that
// reports on {name,"state"}, so several sinks can forward the same uplinks.
func StartNamed(ctx context.Context, conn *bus.Connection, name string, log *slog.Logger) {
	if log == nil {
		log = slog.Default()
	}
	s := &Service{
		conn:       conn,
		log:        log.With("component", name),
		cfgTopic:   bus.T("config", name),
		stateTopic: bus.T(name, "state"),
	}
	s.run(ctx)
}

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// Config is the JSON-encoded configuration expected on "config/bridge".
type Config struct {
	Transport TransportConfig `json:"transport"`
	// Filter selects the bus measurements forwarded. Default "uplink/+".
	Filter string `json:"filter,omitempty"`
}

type TransportConfig struct {
	// "mqtt", "influx" or other names registered via RegisterTransport.
	Type   string              `json:"type"`
	MQTT   *types.MQTTConfig   `json:"mqtt,omitempty"`
	Influx *types.InfluxConfig `json:"influx,omitempty"`
}

// -----------------------------------------------------------------------------
// Service
// -----------------------------------------------------------------------------

type Service struct {
	conn       *bus.Connection
	log        *slog.Logger
	cfgTopic   bus.Topic
	stateTopic bus.Topic

	mu        sync.Mutex
	curRun    context.CancelFunc
	curCfg    atomic.Value // stores Config
	forwarded atomic.Int64
}

// run waits for config and supervises a single link instance.
func (s *Service) run(ctx context.Context) {
	cfgSub := s.conn.Subscribe(s.cfgTopic)
	defer s.conn.Unsubscribe(cfgSub)

	s.publishState("idle", "awaiting_config", nil)

	for {
		select {
		case <-ctx.Done():
			s.stopCurrent()
			return
		case msg, ok := <-cfgSub.Channel():
			if !ok {
				s.publishState("error", "config_subscription_closed", nil)
				return
			}
			cfg, err := decodeConfig(msg.Payload)
			if err != nil {
				s.publishState("error", "config_decode_failed", err)
				continue
			}
			s.reconfigure(ctx, cfg)
		}
	}
}

func (s *Service) stopCurrent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.curRun != nil {
		s.curRun()
		s.curRun = nil
	}
}

func (s *Service) reconfigure(parent context.Context, cfg Config) {
	s.mu.Lock()
	// Cancel any existing run.
	if s.curRun != nil {
		s.curRun()
		s.curRun = nil
	}
	ctx, cancel := context.WithCancel(parent)
	s.curRun = cancel
	s.mu.Unlock()

	s.curCfg.Store(cfg)
	go s.runLink(ctx, cfg)
}

// -----------------------------------------------------------------------------
// Link supervision and forwarding
// -----------------------------------------------------------------------------

func (s *Service) runLink(ctx context.Context, cfg Config) {
	tr, err := newTransport(cfg.Transport)
	if err != nil {
		s.publishState("error", "transport_init_failed", err)
		return
	}

	backoff := backoffSeq(250*time.Millisecond, 5*time.Second)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		sink, err := tr.Open(ctx)
		if err != nil {
			delay := backoff()
			s.publishState("degraded", "dial_failed_retrying", fmt.Errorf("%v (retry in %s)", err, delay))
			if !sleep(ctx, delay) {
				return
			}
			continue
		}

		s.publishState("up", "link_established", nil)
		err = s.handleLink(ctx, sink, cfg)
		sink.Close()
		if err != nil {
			delay := backoff()
			s.publishState("degraded", "link_lost_retrying", fmt.Errorf("%v (retry in %s)", err, delay))
			if !sleep(ctx, delay) {
				return
			}
			continue
		}
		// Clean close: restart only on new config.
		return
	}
}

// handleLink forwards every measurement seen on the bus until ctx ends or
// the sink fails.
func (s *Service) handleLink(ctx context.Context, sink Sink, cfg Config) error {
	filter := bus.T(strings.Split(cfg.Filter, "/")...)
	if cfg.Filter == "" {
		filter = bus.T("uplink", "+")
	}
	sub := s.conn.Subscribe(filter)
	defer s.conn.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-sub.Channel():
			if !ok {
				return errors.New("bus subscription closed")
			}
			m, ok := msg.Payload.(types.Measurement)
			if !ok {
				continue
			}
			body, err := json.Marshal(m)
			if err != nil {
				s.log.Warn("measurement not encoded", "err", err)
				continue
			}
			if err := sink.Publish(m.DevEUI, body); err != nil {
				return err
			}
			s.forwarded.Add(1)
		}
	}
}

// Forwarded counts measurements handed to a sink.
func (s *Service) Forwarded() int64 { return s.forwarded.Load() }

// -----------------------------------------------------------------------------
// Transport registry
// -----------------------------------------------------------------------------

// Sink receives one encoded measurement per call.
type Sink interface {
	Publish(devEUI string, body []byte) error
	Close()
}

// Transport is a pluggable link dialler/owner.
type Transport interface {
	Open(ctx context.Context) (Sink, error)
	String() string
}

type transportFactory func(TransportConfig) (Transport, error)

var (
	regMu    sync.RWMutex
	registry = map[string]transportFactory{}
)

// RegisterTransport allows external packages to add transports.
func RegisterTransport(name string, f transportFactory) {
	regMu.Lock()
	defer regMu.Unlock()
	registry[name] = f
}

func newTransport(cfg TransportConfig) (Transport, error) {
	regMu.RLock()
	f, ok := registry[cfg.Type]
	regMu.RUnlock()
	if ok {
		return f(cfg)
	}
	switch cfg.Type {
	case "mqtt":
		return newMQTTTransport(cfg)
	default:
		return nil, fmt.Errorf("unknown transport type: %q", cfg.Type)
	}
}

// -----------------------------------------------------------------------------
// Utilities
// -----------------------------------------------------------------------------

func decodeConfig(p any) (Config, error) {
	var cfg Config
	switch v := p.(type) {
	case Config:
		return v, nil
	case []byte:
		if err := json.Unmarshal(v, &cfg); err != nil {
			return cfg, err
		}
	case string:
		if err := json.Unmarshal([]byte(v), &cfg); err != nil {
			return cfg, err
		}
	case map[string]any:
		// Already a decoded object (e.g. from the config service); re-marshal.
		b, err := json.Marshal(v)
		if err != nil {
			return cfg, err
		}
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config payload type: %T", p)
	}
	return cfg, nil
}

func (s *Service) publishState(level, status string, err error) {
	payload := map[string]any{
		"level":  level,  // "up", "degraded", "error", "idle"
		"status": status, // short machine string
		"ts_ms":  time.Now().UnixMilli(),
	}
	if err != nil {
		payload["error"] = err.Error()
		s.log.Warn(status, "level", level, "err", err)
	} else {
		s.log.Info(status, "level", level)
	}
	msg := s.conn.NewMessage(s.stateTopic, payload, true)
	s.conn.Publish(msg)
}

func backoffSeq(min, max time.Duration) func() time.Duration {
	if min <= 0 {
		min = 100 * time.Millisecond
	}
	if max < min {
		max = min
	}
	var cur = min
	return func() time.Duration {
		d := cur
		cur *= 2
		if cur > max {
			cur = max
		}
		return d
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
