package receiver

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scalenode-go/bus"
	"scalenode-go/network"
	"scalenode-go/network/mqttlink"
	"scalenode-go/nvs"
	"scalenode-go/types"
)

const hive = "C496422C5C2A7F78"

func newService(t *testing.T, cfg types.ReceiverConfig) (*Service, *bus.Connection) {
	t.Helper()
	conn := bus.NewBus(16).NewConnection("receiver_test")
	s, err := New(cfg, conn, nil)
	require.NoError(t, err)
	return s, conn
}

func post(t *testing.T, url, body string) (int, map[string]string) {
	t.Helper()
	resp, err := http.Post(url+"/uplink", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestUplink_DecodesAndPublishes(t *testing.T) {
	s, conn := newService(t, types.ReceiverConfig{
		ByteOrder: "le",
		Calibration: map[string]types.Calibration{
			"c4:96:42:2c:5c:2a:7f:78": {Offset: "-105", Scale: "20", Unit: "kg", Name: "hive-1"},
		},
	})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	code, out := post(t, srv.URL, `{"deviceInfo":{"devEui":"`+hive+`"},"fPort":1,"fCnt":3,"object":{"tension":{"1":[251,255,255,255]}}}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "success", out["status"])
	assert.NotEmpty(t, out["id"])

	msg, ok := conn.Retained(TopicUplink(hive))
	require.True(t, ok)
	m := msg.Payload.(types.Measurement)
	assert.Equal(t, int32(-5), m.Raw)
	assert.Equal(t, "FBFFFFFF", m.Payload)
	assert.Equal(t, "5.000", m.Weight)
	assert.Equal(t, "kg", m.Unit)
	assert.Equal(t, "hive-1", m.DevName)
	assert.Equal(t, out["id"], m.ID)
	assert.False(t, m.ReceivedAt.IsZero())
	assert.Equal(t, int64(1), s.Uplinks())
}

func TestUplink_BigEndian(t *testing.T) {
	s, _ := newService(t, types.ReceiverConfig{ByteOrder: "be"})
	m, err := s.Ingest([]byte(`{"dev_eui":"AA","port":1,"payload":"AQIDBA=="}`))
	require.NoError(t, err)
	assert.Equal(t, int32(0x01020304), m.Raw)
	assert.Empty(t, m.Weight)
}

func TestUplink_BadRequests(t *testing.T) {
	s, _ := newService(t, types.ReceiverConfig{})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	code, out := post(t, srv.URL, `not json`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "error", out["status"])

	// Five bytes is not a scale frame.
	code, _ = post(t, srv.URL, `{"dev_eui":"AA","payload":"AQIDBAU="}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, int64(2), s.Rejected())
	assert.Equal(t, int64(0), s.Uplinks())

	resp, err := http.Get(srv.URL + "/uplink")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestNew_RejectsBadConfig(t *testing.T) {
	conn := bus.NewBus(1).NewConnection("x")
	_, err := New(types.ReceiverConfig{ByteOrder: "pdp"}, conn, nil)
	assert.Error(t, err)
	_, err = New(types.ReceiverConfig{Calibration: map[string]types.Calibration{"AA": {Scale: "0"}}}, conn, nil)
	assert.Error(t, err)
	_, err = New(types.ReceiverConfig{Calibration: map[string]types.Calibration{"AA": {Offset: "ten"}}}, conn, nil)
	assert.Error(t, err)
}

func TestLatest(t *testing.T) {
	s, _ := newService(t, types.ReceiverConfig{})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	for i, dev := range []string{"BB", "AA", "BB"} {
		_, err := s.Ingest([]byte(fmt.Sprintf(`{"dev_eui":%q,"fcnt":%d,"payload":"BAMCAQ=="}`, dev, i)))
		require.NoError(t, err)
	}

	resp, err := http.Get(srv.URL + "/latest")
	require.NoError(t, err)
	var all []types.Measurement
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&all))
	resp.Body.Close()
	require.Len(t, all, 2)
	assert.Equal(t, "AA", all[0].DevEUI)
	assert.Equal(t, uint32(2), all[1].FCnt)

	resp, err = http.Get(srv.URL + "/latest/bb")
	require.NoError(t, err)
	var one types.Measurement
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&one))
	resp.Body.Close()
	assert.Equal(t, int32(0x01020304), one.Raw)

	resp, err = http.Get(srv.URL + "/latest/CC")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWebsocketFeed(t *testing.T) {
	s, _ := newService(t, types.ReceiverConfig{})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	// Retained value is replayed to new subscribers.
	_, err := s.Ingest([]byte(`{"dev_eui":"AA","fcnt":1,"payload":"BAMCAQ=="}`))
	require.NoError(t, err)

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer ws.Close()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))

	var m types.Measurement
	require.NoError(t, ws.ReadJSON(&m))
	assert.Equal(t, uint32(1), m.FCnt)

	_, err = s.Ingest([]byte(`{"dev_eui":"AA","fcnt":2,"payload":"BAMCAQ=="}`))
	require.NoError(t, err)
	require.NoError(t, ws.ReadJSON(&m))
	assert.Equal(t, uint32(2), m.FCnt)
}

func TestMQTTIngestFromLink(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	broker, err := StartBroker(addr)
	require.NoError(t, err)
	defer broker.Close()
	url := "tcp://" + addr

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, conn := newService(t, types.ReceiverConfig{ByteOrder: "le"})
	require.NoError(t, s.SubscribeMQTT(ctx, types.MQTTConfig{Broker: url, Prefix: "farm"}))
	sub := conn.Subscribe(bus.T("uplink", "+"))
	defer conn.Unsubscribe(sub)

	creds, err := network.ParseCredentials(types.CredentialsConfig{
		DevEUI: hive, AppEUI: "05C2660247E3113F", AppKey: "8c7ed18ddbde8aae2213f1b7f6d27b14",
	})
	require.NoError(t, err)
	link := mqttlink.New(types.MQTTConfig{Broker: url, Prefix: "farm"}, nvs.NewMemory(), nil)
	require.NoError(t, link.Init())
	require.NoError(t, link.Provision(creds))
	require.True(t, link.Join(ctx))
	require.Equal(t, network.TxSuccess, link.Transmit(ctx, []byte{4, 3, 2, 1}, 1, true))
	require.NoError(t, link.PrepareForSleep())

	select {
	case msg := <-sub.Channel():
		m := msg.Payload.(types.Measurement)
		assert.Equal(t, hive, m.DevEUI)
		assert.Equal(t, int32(0x01020304), m.Raw)
		assert.Equal(t, uint8(1), m.Port)
	case <-time.After(5 * time.Second):
		t.Fatal("uplink not ingested")
	}
}

func TestSubscribeMQTT_RequiresBroker(t *testing.T) {
	s, _ := newService(t, types.ReceiverConfig{})
	assert.Error(t, s.SubscribeMQTT(context.Background(), types.MQTTConfig{}))
}
