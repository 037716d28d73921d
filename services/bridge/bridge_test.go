// bridge/bridge_test.go
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scalenode-go/bus"
	"scalenode-go/types"
)

// memSink records forwarded bodies; failAfter > 0 makes the n-th publish fail.
type memSink struct {
	mu        sync.Mutex
	got       map[string][][]byte
	failAfter int
	n         int
	closed    bool
}

func (m *memSink) Publish(dev string, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.n++
	if m.failAfter > 0 && m.n >= m.failAfter {
		return errors.New("sink down")
	}
	m.got[dev] = append(m.got[dev], body)
	return nil
}

func (m *memSink) Close() { m.mu.Lock(); m.closed = true; m.mu.Unlock() }

func (m *memSink) count(dev string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.got[dev])
}

type memTransport struct{ sink *memSink }

func (t *memTransport) Open(context.Context) (Sink, error) { return t.sink, nil }
func (t *memTransport) String() string                     { return "mem" }

func registerMem(name string, sink *memSink) {
	RegisterTransport(name, func(TransportConfig) (Transport, error) {
		return &memTransport{sink: sink}, nil
	})
}

func TestBridge_ForwardsMeasurementsAndReportsState(t *testing.T) {
	b := bus.NewBus(16)
	conn := b.NewConnection("bridge_test")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go Start(ctx, conn, nil)

	stateSub := conn.Subscribe(bus.T("bridge", "state"))
	defer conn.Unsubscribe(stateSub)

	first := nextStatePayload(t, stateSub, 500*time.Millisecond)
	assertLevelStatus(t, first, "idle", "awaiting_config")

	sink := &memSink{got: map[string][][]byte{}}
	registerMem("mem-ok", sink)
	conn.Publish(conn.NewMessage(bus.T("config", "bridge"), `{"transport":{"type":"mem-ok"}}`, false))

	up := nextStatePayload(t, stateSub, time.Second)
	assertLevelStatus(t, up, "up", "link_established")

	m := types.Measurement{ID: "1", DevEUI: "C496422C5C2A7F78", Raw: -5}
	conn.Publish(conn.NewMessage(bus.T("uplink", m.DevEUI), m, true))
	// Non-measurement payloads on the topic are skipped.
	conn.Publish(conn.NewMessage(bus.T("uplink", "X"), "noise", false))

	require.Eventually(t, func() bool { return sink.count(m.DevEUI) == 1 }, time.Second, 5*time.Millisecond)
	var got types.Measurement
	require.NoError(t, json.Unmarshal(sink.got[m.DevEUI][0], &got))
	require.Equal(t, int32(-5), got.Raw)
}

func TestBridge_SinkFailureDegrades(t *testing.T) {
	b := bus.NewBus(16)
	conn := b.NewConnection("bridge_test_fail")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go Start(ctx, conn, nil)

	stateSub := conn.Subscribe(bus.T("bridge", "state"))
	defer conn.Unsubscribe(stateSub)
	_ = nextStatePayload(t, stateSub, 500*time.Millisecond)

	sink := &memSink{got: map[string][][]byte{}, failAfter: 1}
	registerMem("mem-fail", sink)
	conn.Publish(conn.NewMessage(bus.T("config", "bridge"), map[string]any{
		"transport": map[string]any{"type": "mem-fail"},
	}, false))
	assertLevelStatus(t, nextStatePayload(t, stateSub, time.Second), "up", "link_established")

	conn.Publish(conn.NewMessage(bus.T("uplink", "A"), types.Measurement{DevEUI: "A"}, false))
	assertLevelStatus(t, nextStatePayload(t, stateSub, time.Second), "degraded", "link_lost_retrying")
}

func TestBridge_UnknownTransportYieldsErrorState(t *testing.T) {
	b := bus.NewBus(8)
	conn := b.NewConnection("bridge_test_bad")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go Start(ctx, conn, nil)

	stateSub := conn.Subscribe(bus.T("bridge", "state"))
	defer conn.Unsubscribe(stateSub)

	_ = nextStatePayload(t, stateSub, 500*time.Millisecond) // initial awaiting_config

	cfg := `{"transport":{"type":"bogus"}}`
	conn.Publish(conn.NewMessage(bus.T("config", "bridge"), cfg, false))

	errState := nextStatePayload(t, stateSub, time.Second)
	assertLevelStatus(t, errState, "error", "transport_init_failed")

	conn.Publish(conn.NewMessage(bus.T("config", "bridge"), 42, false))
	assertLevelStatus(t, nextStatePayload(t, stateSub, time.Second), "error", "config_decode_failed")
}

func TestBridge_MQTTTransport(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	broker := mochi.New(nil)
	require.NoError(t, broker.AddHook(&auth.AllowHook{}, nil))
	require.NoError(t, broker.AddListener(listeners.NewTCP(listeners.Config{Type: "tcp", ID: "b", Address: addr})))
	require.NoError(t, broker.Serve())
	defer broker.Close()
	url := "tcp://" + addr

	got := make(chan mqtt.Message, 4)
	watcher := mqtt.NewClient(mqtt.NewClientOptions().AddBroker(url).SetClientID("watcher"))
	tok := watcher.Connect()
	require.True(t, tok.WaitTimeout(5*time.Second))
	require.NoError(t, tok.Error())
	defer watcher.Disconnect(100)
	tok = watcher.Subscribe("farm/+/weight", 1, func(_ mqtt.Client, m mqtt.Message) { got <- m })
	require.True(t, tok.WaitTimeout(5*time.Second))

	b := bus.NewBus(16)
	conn := b.NewConnection("bridge_mqtt")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go Start(ctx, conn, nil)

	stateSub := conn.Subscribe(bus.T("bridge", "state"))
	defer conn.Unsubscribe(stateSub)
	_ = nextStatePayload(t, stateSub, 500*time.Millisecond)

	cfg := fmt.Sprintf(`{"transport":{"type":"mqtt","mqtt":{"broker":%q,"prefix":"farm"}}}`, url)
	conn.Publish(conn.NewMessage(bus.T("config", "bridge"), cfg, false))
	assertLevelStatus(t, nextStatePayload(t, stateSub, 5*time.Second), "up", "link_established")

	conn.Publish(conn.NewMessage(bus.T("uplink", "C496422C5C2A7F78"), types.Measurement{DevEUI: "C496422C5C2A7F78", Raw: 1234}, false))

	select {
	case m := <-got:
		require.Equal(t, "farm/C496422C5C2A7F78/weight", m.Topic())
		var meas types.Measurement
		require.NoError(t, json.Unmarshal(m.Payload(), &meas))
		require.Equal(t, int32(1234), meas.Raw)
	case <-time.After(5 * time.Second):
		t.Fatal("no weight published")
	}
}

func TestNewMQTTTransport_RequiresBroker(t *testing.T) {
	_, err := newTransport(TransportConfig{Type: "mqtt"})
	require.Error(t, err)
}

// influxStub accepts the InfluxDB 2.x ping and write endpoints and keeps the
// line protocol it receives.
type influxStub struct {
	mu    sync.Mutex
	lines []string
	query []string
	auth  string
}

func (f *influxStub) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ping", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	mux.HandleFunc("/api/v2/write", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.lines = append(f.lines, strings.TrimSpace(string(body)))
		f.query = append(f.query, r.URL.RawQuery)
		f.auth = r.Header.Get("Authorization")
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

func (f *influxStub) written() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

func TestBridge_InfluxTransport(t *testing.T) {
	stub := &influxStub{}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	b := bus.NewBus(16)
	conn := b.NewConnection("bridge_influx")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go StartNamed(ctx, conn, "influx", nil)

	stateSub := conn.Subscribe(bus.T("influx", "state"))
	defer conn.Unsubscribe(stateSub)
	assertLevelStatus(t, nextStatePayload(t, stateSub, 500*time.Millisecond), "idle", "awaiting_config")

	conn.Publish(conn.NewMessage(bus.T("config", "influx"), Config{Transport: TransportConfig{
		Type:   "influx",
		Influx: &types.InfluxConfig{URL: srv.URL, Token: "tok", Org: "iotlnu", Bucket: "scales"},
	}}, false))
	assertLevelStatus(t, nextStatePayload(t, stateSub, 5*time.Second), "up", "link_established")

	at := time.Unix(1700000000, 0).UTC()
	conn.Publish(conn.NewMessage(bus.T("uplink", "C496422C5C2A7F78"), types.Measurement{
		DevEUI: "C496422C5C2A7F78", Raw: -1234, Weight: "12.500", ReceivedAt: at,
	}, false))

	require.Eventually(t, func() bool { return len(stub.written()) == 1 }, 5*time.Second, 10*time.Millisecond)
	line := stub.written()[0]
	assert.True(t, strings.HasPrefix(line, "smartlash,dev_eui=C496422C5C2A7F78 "), line)
	assert.Contains(t, line, "value=-1234i")
	assert.Contains(t, line, "weight=12.5")
	assert.True(t, strings.HasSuffix(line, " 1700000000000000000"), line)

	stub.mu.Lock()
	defer stub.mu.Unlock()
	assert.Contains(t, stub.query[0], "org=iotlnu")
	assert.Contains(t, stub.query[0], "bucket=scales")
	assert.Equal(t, "Token tok", stub.auth)
}

func TestNewInfluxTransport(t *testing.T) {
	_, err := newTransport(TransportConfig{Type: "influx"})
	require.Error(t, err)
	_, err = newTransport(TransportConfig{Type: "influx", Influx: &types.InfluxConfig{URL: "http://x"}})
	require.Error(t, err)

	tr, err := newTransport(TransportConfig{Type: "influx", Influx: &types.InfluxConfig{URL: "http://x", Bucket: "b"}})
	require.NoError(t, err)
	assert.Equal(t, "influx", tr.String())
	assert.Equal(t, DefaultMeasurement, tr.(*influxTransport).cfg.Measurement)
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func nextStatePayload(t *testing.T, sub *bus.Subscription, d time.Duration) map[string]any {
	t.Helper()
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case m := <-sub.Channel():
		p, ok := m.Payload.(map[string]any)
		if !ok {
			t.Fatalf("state payload type: got %T, want map[string]any", m.Payload)
		}
		return p
	case <-timer.C:
		t.Fatalf("timeout waiting for bridge/state")
		return nil
	}
}

func assertLevelStatus(t *testing.T, payload map[string]any, wantLevel, wantStatus string) {
	t.Helper()
	gotLevel, _ := payload["level"].(string)
	gotStatus, _ := payload["status"].(string)
	if gotLevel != wantLevel || gotStatus != wantStatus {
		t.Fatalf("unexpected state: level=%q status=%q, want level=%q status=%q (payload=%v)",
			gotLevel, gotStatus, wantLevel, wantStatus, payload)
	}
}
