// Package receiver turns network server uplink events into measurements.
//
// Every accepted uplink is decoded to the signed load-cell sample, calibrated
// when the device has a calibration entry, and published retained on the bus
// under uplink/<DEVEUI>. HTTP and MQTT ingest share the same path.
package receiver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"scalenode-go/bus"
	"scalenode-go/errcode"
	"scalenode-go/payload"
	"scalenode-go/types"
	"scalenode-go/x/strx"
)

// maxBody bounds one uplink event.
const maxBody = 64 << 10

// TopicUplink returns the bus topic a device's measurements are retained on.
func TopicUplink(devEUI string) bus.Topic { return bus.T("uplink", devEUI) }

type Service struct {
	conn  *bus.Connection
	log   *slog.Logger
	order payload.ByteOrder
	cal   map[string]calibration
	now   func() time.Time

	mu     sync.RWMutex
	latest map[string]types.Measurement

	uplinks  atomic.Int64
	rejected atomic.Int64

	upgrader websocket.Upgrader
}

// New builds a receiver from cfg. The byte order must match the nodes'.
func New(cfg types.ReceiverConfig, conn *bus.Connection, log *slog.Logger) (*Service, error) {
	order, err := payload.ParseByteOrder(strx.Coalesce(cfg.ByteOrder, "le"))
	if err != nil {
		return nil, &errcode.E{C: errcode.InvalidConfig, Op: "receiver.byte_order", Err: err}
	}
	cal, err := parseCalibrations(cfg.Calibration)
	if err != nil {
		return nil, &errcode.E{C: errcode.InvalidConfig, Op: "receiver.calibration", Err: err}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		conn:   conn,
		log:    log.With("component", "receiver"),
		order:  order,
		cal:    cal,
		now:    time.Now,
		latest: make(map[string]types.Measurement),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}, nil
}

// Uplinks counts accepted uplinks.
func (s *Service) Uplinks() int64 { return s.uplinks.Load() }

// Rejected counts events that failed to decode.
func (s *Service) Rejected() int64 { return s.rejected.Load() }

// Ingest decodes one event body and publishes the measurement.
func (s *Service) Ingest(body []byte) (types.Measurement, error) {
	m, err := s.measure(body)
	if err != nil {
		s.rejected.Add(1)
		s.log.Warn("uplink rejected", "code", errcode.Of(err), "err", err)
		return types.Measurement{}, err
	}
	s.mu.Lock()
	s.latest[m.DevEUI] = m
	s.mu.Unlock()

	s.conn.Publish(s.conn.NewMessage(TopicUplink(m.DevEUI), m, true))
	s.uplinks.Add(1)
	s.log.Info("uplink", "dev_eui", m.DevEUI, "fcnt", m.FCnt, "raw", m.Raw, "weight", m.Weight)
	return m, nil
}

func (s *Service) measure(body []byte) (types.Measurement, error) {
	up, err := ParseUplink(body)
	if err != nil {
		return types.Measurement{}, err
	}
	p, err := payload.FromBytes(up.Data)
	if err != nil {
		return types.Measurement{}, invalid("payload length", err)
	}
	m := types.Measurement{
		ID:         uuid.NewString(),
		DevEUI:     up.DevEUI,
		DevName:    up.DevName,
		FCnt:       up.FCnt,
		Port:       up.Port,
		Raw:        payload.Decode(p, s.order),
		Payload:    p.String(),
		ReceivedAt: up.Time,
	}
	if m.ReceivedAt.IsZero() {
		m.ReceivedAt = s.now().UTC()
	}
	if c, ok := s.cal[m.DevEUI]; ok {
		m.Weight = c.weight(m.Raw)
		m.Unit = c.unit
		m.DevName = strx.Coalesce(m.DevName, c.name)
	}
	return m, nil
}

// Latest returns the last measurement of every device, ordered by DevEUI.
func (s *Service) Latest() []types.Measurement {
	s.mu.RLock()
	out := make([]types.Measurement, 0, len(s.latest))
	for _, m := range s.latest {
		out = append(out, m)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].DevEUI < out[j].DevEUI })
	return out
}

// -----------------------------------------------------------------------------
// HTTP
// -----------------------------------------------------------------------------

// Handler serves POST /uplink, GET /latest[/{deveui}] and GET /ws.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /uplink", s.handleUplink)
	mux.HandleFunc("GET /latest", s.handleLatest)
	mux.HandleFunc("GET /latest/{deveui}", s.handleLatestDevice)
	mux.HandleFunc("GET /ws", s.handleWS)
	return mux
}

// Serve runs the HTTP server until ctx ends.
func (s *Service) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.log.Info("http listening", "addr", addr)
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shut, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shut)
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Service) handleUplink(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		s.rejected.Add(1)
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "error": err.Error()})
		return
	}
	m, err := s.Ingest(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "id": m.ID})
}

func (s *Service) handleLatest(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Latest())
}

func (s *Service) handleLatestDevice(w http.ResponseWriter, r *http.Request) {
	dev := normEUI(r.PathValue("deveui"))
	s.mu.RLock()
	m, ok := s.latest[dev]
	s.mu.RUnlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"status": "error", "error": string(errcode.NotFound)})
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// handleWS streams every measurement published on the bus, starting with
// the retained value of each known device.
func (s *Service) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer ws.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	// Reader: only used to notice the peer going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	sub := s.conn.Subscribe(bus.T("uplink", "+"))
	defer s.conn.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.Channel():
			if !ok {
				return
			}
			m, ok := msg.Payload.(types.Measurement)
			if !ok {
				continue
			}
			_ = ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := ws.WriteJSON(m); err != nil {
				s.log.Debug("websocket closed", "err", err)
				return
			}
		}
	}
}

func normEUI(s string) string { return strings.ToUpper(strx.CleanHex(s)) }
