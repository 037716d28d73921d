package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/shopspring/decimal"

	"scalenode-go/types"
	"scalenode-go/x/strx"
)

// DefaultMeasurement is the InfluxDB measurement weights are written to.
const DefaultMeasurement = "smartlash"

func init() { RegisterTransport("influx", newInfluxTransport) }

// influxTransport writes one point per measurement: tag dev_eui, field value
// (raw counts) and, when calibrated, field weight.
type influxTransport struct {
	cfg types.InfluxConfig
}

func newInfluxTransport(cfg TransportConfig) (Transport, error) {
	if cfg.Influx == nil || cfg.Influx.URL == "" || cfg.Influx.Bucket == "" {
		return nil, errors.New("influx transport requires url and bucket")
	}
	c := *cfg.Influx
	c.Measurement = strx.Coalesce(c.Measurement, DefaultMeasurement)
	return &influxTransport{cfg: c}, nil
}

func (t *influxTransport) Open(ctx context.Context) (Sink, error) {
	opts := influxdb2.DefaultOptions().SetHTTPRequestTimeout(uint(publishTimeout / time.Second))
	c := influxdb2.NewClientWithOptions(t.cfg.URL, t.cfg.Token, opts)
	ok, err := c.Ping(ctx)
	if err == nil && !ok {
		err = errors.New("influx ping failed")
	}
	if err != nil {
		c.Close()
		return nil, err
	}
	return &influxSink{
		c:           c,
		w:           c.WriteAPIBlocking(t.cfg.Org, t.cfg.Bucket),
		measurement: t.cfg.Measurement,
	}, nil
}

func (t *influxTransport) String() string { return "influx" }

type influxSink struct {
	c           influxdb2.Client
	w           api.WriteAPIBlocking
	measurement string
}

func (s *influxSink) Publish(devEUI string, body []byte) error {
	var m types.Measurement
	if err := json.Unmarshal(body, &m); err != nil {
		return err
	}
	fields := map[string]any{"value": m.Raw}
	if m.Weight != "" {
		if w, err := decimal.NewFromString(m.Weight); err == nil {
			fields["weight"] = w.InexactFloat64()
		}
	}
	ts := m.ReceivedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	p := influxdb2.NewPoint(s.measurement, map[string]string{"dev_eui": devEUI}, fields, ts)

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	return s.w.WritePoint(ctx, p)
}

func (s *influxSink) Close() { s.c.Close() }
