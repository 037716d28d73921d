package cycle

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"scalenode-go/network"
)

// calls is a shared, ordered log of collaborator calls.
type calls struct {
	mu  sync.Mutex
	seq []string
}

func (c *calls) add(s string) {
	c.mu.Lock()
	c.seq = append(c.seq, s)
	c.mu.Unlock()
}

func (c *calls) list() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.seq...)
}

func (c *calls) count(name string) int {
	n := 0
	for _, s := range c.list() {
		if s == name {
			n++
		}
	}
	return n
}

func (c *calls) index(name string) int {
	for i, s := range c.list() {
		if s == name {
			return i
		}
	}
	return -1
}

type fakeSensor struct {
	log      *calls
	value    int32
	notReady bool
	readErr  error
	downErr  error
	samples  int
}

func (f *fakeSensor) Init() error { f.log.add("sensor.init"); return nil }

func (f *fakeSensor) WaitReady(time.Duration) error {
	f.log.add("sensor.wait")
	if f.notReady {
		return errors.New("timeout")
	}
	return nil
}

func (f *fakeSensor) ReadAverage(times int) (int32, error) {
	f.log.add("sensor.read")
	f.samples = times
	return f.value, f.readErr
}

func (f *fakeSensor) PowerDown(down bool) error {
	if down {
		f.log.add("sensor.down")
	} else {
		f.log.add("sensor.up")
	}
	return f.downErr
}

type fakeStack struct {
	log       *calls
	resume    bool
	joinOK    bool
	tx        network.TxResult
	sent      [][]byte
	port      uint8
	confirmed bool
	creds     []network.Credentials
}

func (f *fakeStack) Init() error                           { f.log.add("net.init"); return nil }
func (f *fakeStack) ConfigurePins(network.RadioPins) error { f.log.add("net.pins"); return nil }
func (f *fakeStack) Provision(c network.Credentials) error {
	f.log.add("net.provision")
	f.creds = append(f.creds, c)
	return nil
}
func (f *fakeStack) SetADR(bool)         { f.log.add("net.adr") }
func (f *fakeStack) SetDataRate(uint8)   { f.log.add("net.dr") }
func (f *fakeStack) SetMaxTxPower(int8)  { f.log.add("net.power") }
func (f *fakeStack) ResumeSession() bool { f.log.add("net.resume"); return f.resume }
func (f *fakeStack) Join(context.Context) bool {
	f.log.add("net.join")
	return f.joinOK
}
func (f *fakeStack) Transmit(_ context.Context, p []byte, port uint8, confirmed bool) network.TxResult {
	f.log.add("net.tx")
	f.sent = append(f.sent, append([]byte(nil), p...))
	f.port, f.confirmed = port, confirmed
	return f.tx
}
func (f *fakeStack) WaitIdle(context.Context) { f.log.add("net.idle") }
func (f *fakeStack) PrepareForSleep() error   { f.log.add("net.persist"); return nil }

type fakePlatform struct {
	log    *calls
	armed  []time.Duration
	delays []time.Duration
}

func (f *fakePlatform) Init() error { f.log.add("plat.init"); return nil }
func (f *fakePlatform) Delay(_ context.Context, d time.Duration) {
	f.log.add("plat.delay")
	f.delays = append(f.delays, d)
}
func (f *fakePlatform) ArmTimerWake(d time.Duration) error {
	f.log.add("plat.arm")
	f.armed = append(f.armed, d)
	return nil
}
func (f *fakePlatform) EnterDeepSleep() error { f.log.add("plat.sleep"); return nil }

// recordHandler keeps every slog record with its accumulated attrs.
type recordHandler struct {
	mu    *sync.Mutex
	recs  *[]map[string]any
	attrs []slog.Attr
}

func newRecordHandler() *recordHandler {
	return &recordHandler{mu: &sync.Mutex{}, recs: &[]map[string]any{}}
}

func (h *recordHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *recordHandler) Handle(_ context.Context, r slog.Record) error {
	m := map[string]any{"msg": r.Message, "level": r.Level}
	for _, a := range h.attrs {
		m[a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		m[a.Key] = a.Value.Any()
		return true
	})
	h.mu.Lock()
	*h.recs = append(*h.recs, m)
	h.mu.Unlock()
	return nil
}

func (h *recordHandler) WithAttrs(as []slog.Attr) slog.Handler {
	n := *h
	n.attrs = append(append([]slog.Attr(nil), h.attrs...), as...)
	return &n
}

func (h *recordHandler) WithGroup(string) slog.Handler { return h }

// withCode returns records whose "code" attr equals code.
func (h *recordHandler) withCode(code string) []map[string]any {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []map[string]any
	for _, m := range *h.recs {
		if v, ok := m["code"]; ok && toString(v) == code {
			out = append(out, m)
		}
	}
	return out
}

func toString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case interface{ Error() string }:
		return x.Error()
	}
	return ""
}
