package heartbeat

import (
	"context"
	"log/slog"
	"time"

	"scalenode-go/bus"
	"scalenode-go/types"
)

var (
	topicConfigHeartbeat = bus.T("config", "heartbeat")
	TopicHeartbeat       = bus.T("status", "heartbeat")
)

// Stats reports counters carried in every heartbeat.
type Stats interface {
	Uplinks() int64
	Rejected() int64
}

type Service struct {
	stats    Stats
	log      *slog.Logger
	interval time.Duration
	now      func() time.Time
}

// New returns a heartbeat that ticks every interval until config/heartbeat
// says otherwise. stats may be nil.
func New(stats Stats, interval time.Duration, log *slog.Logger) *Service {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{stats: stats, log: log.With("component", "heartbeat"), interval: interval, now: time.Now}
}

func (s *Service) serviceLoop(ctx context.Context, conn *bus.Connection) {
	cfgSub := conn.Subscribe(topicConfigHeartbeat)
	defer conn.Unsubscribe(cfgSub)

	start := s.now()
	tick := time.NewTicker(s.interval)
	defer tick.Stop()

	s.beat(conn, start)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("heartbeat service stopping")
			return
		case <-tick.C:
			s.beat(conn, start)
		case msg, ok := <-cfgSub.Channel():
			if !ok {
				return
			}
			// Change tick interval if needed
			m, ok := msg.Payload.(map[string]any)
			if !ok {
				continue
			}
			if iv, ok := m["interval"].(float64); ok && iv > 0 {
				tick.Reset(time.Duration(iv * float64(time.Second)))
				s.log.Info("heartbeat interval set", "seconds", iv)
			}
		}
	}
}

func (s *Service) beat(conn *bus.Connection, start time.Time) {
	now := s.now()
	hb := types.Heartbeat{
		UptimeSec: int64(now.Sub(start) / time.Second),
		TS:        now.UnixNano(),
	}
	if s.stats != nil {
		hb.Uplinks = s.stats.Uplinks()
		hb.Rejected = s.stats.Rejected()
	}
	conn.Publish(conn.NewMessage(TopicHeartbeat, hb, true))
	s.log.Debug("heartbeat", "uptime_s", hb.UptimeSec, "uplinks", hb.Uplinks, "rejected", hb.Rejected)
}

// Start the heartbeat service.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	go s.serviceLoop(ctx, conn)
	return nil
}
