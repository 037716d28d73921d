// services/cycle/cycle.go
package cycle

import (
	"context"
	"log/slog"
	"time"

	"scalenode-go/bus"
	"scalenode-go/errcode"
	"scalenode-go/network"
	"scalenode-go/payload"
	"scalenode-go/types"
	"scalenode-go/x/mathx"
	"scalenode-go/x/timex"
)

// TopicState carries the retained types.CycleState of the controller.
var TopicState = bus.T("cycle", "state")

// Controller runs one measure, transmit, sleep cycle per wake.
type Controller struct {
	cfg    Config
	sensor Sensor
	net    network.Stack
	plat   Platform
	conn   *bus.Connection

	logMain  *slog.Logger
	logScale *slog.Logger
	logNet   *slog.Logger

	buf   payload.Payload
	state State
}

// Option customises a Controller.
type Option func(*Controller)

// WithLogger sets the base logger. Components log with a "component" attr.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.setLogger(l)
		}
	}
}

// WithBus publishes state transitions on TopicState.
func WithBus(conn *bus.Connection) Option {
	return func(c *Controller) { c.conn = conn }
}

// New builds a controller. Zero config fields take the package defaults.
func New(cfg Config, s Sensor, n network.Stack, p Platform, opts ...Option) *Controller {
	cfg.Interval = mathx.OrDefault(cfg.Interval, DefaultInterval)
	cfg.ReadyTimeout = mathx.OrDefault(cfg.ReadyTimeout, DefaultReadyTimeout)
	cfg.Samples = mathx.OrDefault(cfg.Samples, DefaultSamples)
	cfg.Settle = optionalDelay(cfg.Settle, DefaultSettle)
	cfg.PowerDownDelay = optionalDelay(cfg.PowerDownDelay, DefaultPowerDownDelay)
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.JoinRetry == 0 {
		cfg.JoinRetry = cfg.Interval
	}
	c := &Controller{cfg: cfg, sensor: s, net: n, plat: p, state: StateInit}
	c.setLogger(slog.Default())
	for _, o := range opts {
		o(c)
	}
	return c
}

// optionalDelay resolves a delay where zero means the default and a negative
// value means none.
func optionalDelay(d, def time.Duration) time.Duration {
	switch {
	case d < 0:
		return 0
	case d == 0:
		return def
	}
	return d
}

func (c *Controller) setLogger(l *slog.Logger) {
	c.logMain = l.With("component", "main")
	c.logScale = l.With("component", "hx711")
	c.logNet = l.With("component", "lorawan")
}

// State is the last state entered.
func (c *Controller) State() State { return c.state }

// Config returns the resolved configuration.
func (c *Controller) Config() Config { return c.cfg }

// AcquireSample waits for the sensor, reads an averaged sample and then
// waits the settle delay. Errors are logged and returned.
func (c *Controller) AcquireSample(ctx context.Context) (int32, error) {
	if err := c.sensor.WaitReady(c.cfg.ReadyTimeout); err != nil {
		err = errcode.Wrap(errcode.SensorNotReady, "acquire", err)
		c.logScale.Error("device not ready", "code", errcode.SensorNotReady, "timeout", c.cfg.ReadyTimeout, "err", err)
		return 0, err
	}
	v, err := c.sensor.ReadAverage(c.cfg.Samples)
	if err != nil {
		err = errcode.Wrap(errcode.SensorReadFailure, "acquire", err)
		c.logScale.Error("could not read data", "code", errcode.SensorReadFailure, "err", err)
		return 0, err
	}
	c.logScale.Info("weight", "raw", v, "samples", c.cfg.Samples)
	c.plat.Delay(ctx, c.cfg.Settle)
	return v, nil
}

// Encode packs a sample with the configured byte order.
func (c *Controller) Encode(sample int32) payload.Payload {
	c.buf = payload.Encode(sample, c.cfg.Order)
	return c.buf
}

// Transmit sends p unconfirmed on the configured port. There is no retry
// within a cycle.
func (c *Controller) Transmit(ctx context.Context, p payload.Payload) (network.TxResult, error) {
	res := c.net.Transmit(ctx, p.Bytes(), c.cfg.Port, c.cfg.Confirmed)
	if res != network.TxSuccess {
		err := &errcode.E{C: errcode.TransmitFailure, Op: "transmit", Msg: res.String()}
		c.logNet.Error("transmission failed", "code", errcode.TransmitFailure, "result", res)
		return res, err
	}
	c.logNet.Info("transmission successful", "port", c.cfg.Port, "payload", p.String())
	return res, nil
}

// Run executes one full cycle. On MCU builds the platform does not return
// from deep sleep and Run never returns on the success path.
func (c *Controller) Run(ctx context.Context) Outcome {
	var out Outcome
	fail := func(err error) { out.Errs = append(out.Errs, err) }

	c.enter(StateInit, nil)
	if err := c.init(); err != nil {
		fail(err)
		c.logMain.Error("initialisation failed", "code", errcode.InitFailure, "err", err)
		c.enter(StateAborted, err)
		out.Kind = InitFailed
		out.Sleep = c.sleep(c.cfg.Interval, &out)
		return out
	}

	if c.net.ResumeSession() {
		out.Resumed = true
		c.logNet.Info("resumed from deep sleep")
	} else {
		c.logNet.Info("joining network")
		if !c.net.Join(ctx) {
			err := &errcode.E{C: errcode.JoinFailure, Op: "join"}
			fail(err)
			c.logNet.Error("join failed", "code", errcode.JoinFailure)
			c.enter(StateAborted, err)
			out.Kind = JoinFailed
			if c.cfg.JoinRetry > 0 {
				out.Sleep = c.sleep(c.cfg.JoinRetry, &out)
			}
			return out
		}
		c.logNet.Info("joined network")
	}
	c.enter(StateJoinedOrResumed, nil)
	if ctx.Err() != nil {
		return c.canceled(ctx, out)
	}

	sample, err := c.AcquireSample(ctx)
	if err != nil {
		fail(err)
	} else {
		out.Measured, out.Sample = true, sample
	}
	c.enter(StateMeasured, err)

	if out.Measured {
		out.Payload = c.Encode(sample)
		out.Transmitted = true
		out.Tx, err = c.Transmit(ctx, out.Payload)
		if err != nil {
			fail(err)
		}
		c.enter(StateTransmitted, err)
	} else {
		c.logMain.Warn("no sample this cycle, transmission skipped")
	}

	c.net.WaitIdle(ctx)
	if err := c.net.PrepareForSleep(); err != nil {
		fail(err)
		c.logNet.Warn("session not persisted", "err", err)
	}
	c.enter(StateIdleWait, nil)

	if err := c.sensor.PowerDown(true); err != nil {
		err = errcode.Wrap(errcode.PowerDownFailure, "power_down", err)
		fail(err)
		c.logScale.Error("power down failed", "code", errcode.PowerDownFailure, "err", err)
	}
	c.plat.Delay(ctx, c.cfg.PowerDownDelay)
	c.enter(StatePoweredDown, nil)

	if ctx.Err() != nil {
		return c.canceled(ctx, out)
	}
	out.Kind = ScheduledSleep
	out.Sleep = c.sleep(c.cfg.Interval, &out)
	return out
}

func (c *Controller) init() error {
	if err := c.plat.Init(); err != nil {
		return errcode.Wrap(errcode.InitFailure, "platform", err)
	}
	if err := c.sensor.Init(); err != nil {
		// A dead sensor still lets the node report in; acquire will fail.
		c.logScale.Error("sensor init failed", "code", errcode.InitFailure, "err", err)
	}
	if err := c.net.Init(); err != nil {
		return errcode.Wrap(errcode.InitFailure, "network", err)
	}
	if err := c.net.ConfigurePins(c.cfg.Pins); err != nil {
		return errcode.Wrap(errcode.InitFailure, "radio_pins", err)
	}
	if err := c.net.Provision(c.cfg.Credentials); err != nil {
		return errcode.Wrap(errcode.InitFailure, "provision", err)
	}
	c.net.SetADR(c.cfg.ADR)
	c.net.SetDataRate(c.cfg.DataRate)
	c.net.SetMaxTxPower(c.cfg.MaxTxPower)
	return nil
}

// sleep arms the wake timer for d and enters deep sleep. It returns the
// armed duration, or zero when arming failed.
func (c *Controller) sleep(d time.Duration, out *Outcome) time.Duration {
	if err := c.plat.ArmTimerWake(d); err != nil {
		out.Errs = append(out.Errs, err)
		c.logMain.Error("wake timer not armed", "err", err)
		return 0
	}
	c.enter(StateSleeping, nil)
	c.logMain.Info("entering deep sleep", "interval", d, "us", timex.Micros(d))
	if err := c.plat.EnterDeepSleep(); err != nil {
		out.Errs = append(out.Errs, err)
		c.logMain.Error("deep sleep failed", "err", err)
	}
	return d
}

func (c *Controller) canceled(ctx context.Context, out Outcome) Outcome {
	c.enter(StateAborted, ctx.Err())
	out.Kind = Canceled
	out.Errs = append(out.Errs, ctx.Err())
	return out
}

func (c *Controller) enter(s State, err error) {
	c.state = s
	c.logMain.Debug("state", "state", string(s))
	if c.conn == nil {
		return
	}
	st := types.CycleState{State: string(s), TS: time.Now().UnixNano()}
	if err != nil {
		st.Error = string(errcode.Of(err))
	}
	c.conn.Publish(c.conn.NewMessage(TopicState, st, true))
}
