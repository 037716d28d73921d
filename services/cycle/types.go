// services/cycle/types.go
package cycle

import (
	"context"
	"time"

	"scalenode-go/network"
	"scalenode-go/payload"
)

// Sensor is the load-cell collaborator.
type Sensor interface {
	Init() error
	WaitReady(timeout time.Duration) error
	ReadAverage(times int) (int32, error)
	PowerDown(down bool) error
}

// Platform is the board collaborator: pins, NVS, bus bring-up, delays and
// the wake timer. On MCU builds EnterDeepSleep does not return; hosted
// builds return nil and the runner restarts the cycle after the interval.
type Platform interface {
	Init() error
	Delay(ctx context.Context, d time.Duration)
	ArmTimerWake(d time.Duration) error
	EnterDeepSleep() error
}

// State names the steps of one wake cycle.
type State string

const (
	StateInit            State = "init"
	StateJoinedOrResumed State = "joined_or_resumed"
	StateMeasured        State = "measured"
	StateTransmitted     State = "transmitted"
	StateIdleWait        State = "idle_wait"
	StatePoweredDown     State = "powered_down"
	StateSleeping        State = "sleeping"
	StateAborted         State = "aborted"
)

// OutcomeKind classifies how a cycle ended.
type OutcomeKind uint8

const (
	// ScheduledSleep: the wake timer was armed and deep sleep entered.
	ScheduledSleep OutcomeKind = iota
	// JoinFailed: no session; nothing was measured or sent.
	JoinFailed
	// InitFailed: platform or network bring-up failed.
	InitFailed
	// Canceled: the context ended before the cycle completed.
	Canceled
)

func (k OutcomeKind) String() string {
	switch k {
	case ScheduledSleep:
		return "scheduled_sleep"
	case JoinFailed:
		return "join_failed"
	case InitFailed:
		return "init_failed"
	case Canceled:
		return "canceled"
	}
	return "unknown"
}

// Outcome is the result of Run. Sleep is the armed wake interval; zero means
// no timer was armed.
type Outcome struct {
	Kind OutcomeKind
	// Sleep is the armed wake interval; zero means no timer was armed.
	Sleep time.Duration
	// Resumed is true when the session came from NVS instead of a join.
	Resumed bool
	// Measured is false when the sensor step failed; Sample is then zero.
	Measured bool
	Sample   int32
	// Transmitted is true when Transmit was called; Tx holds its result.
	Transmitted bool
	Tx          network.TxResult
	Payload     payload.Payload
	// Errs lists every failed step in order.
	Errs []error
}

// Config is the resolved controller configuration.
type Config struct {
	Interval time.Duration
	// JoinRetry is the wake interval armed after a failed join. Zero uses
	// Interval; negative arms nothing.
	JoinRetry time.Duration

	ReadyTimeout time.Duration
	Samples      int
	// Settle follows a successful read. PowerDownDelay is waited between
	// sensor power-down and deep sleep. For both, zero takes the default and
	// a negative value waits nothing.
	Settle         time.Duration
	PowerDownDelay time.Duration

	Order     payload.ByteOrder
	Port      uint8
	Confirmed bool

	Credentials network.Credentials
	Pins        network.RadioPins
	ADR         bool
	DataRate    uint8
	MaxTxPower  int8
}

// Defaults matching the deployed node.
const (
	DefaultInterval       = 30 * time.Second
	DefaultReadyTimeout   = 500 * time.Millisecond
	DefaultSamples        = 10
	DefaultSettle         = time.Second
	DefaultPowerDownDelay = time.Second
	DefaultPort           = 1
)
