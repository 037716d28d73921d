//go:build !rp2040 && !rp2350

package platform

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"scalenode-go/x/timex"
)

// Pin is a settable output line, e.g. the status LED.
type Pin interface {
	Set(bool)
}

// Host is the hosted platform. EnterDeepSleep returns; the caller waits
// Armed() and starts the next cycle from INIT.
type Host struct {
	log *slog.Logger
	led Pin

	mu     sync.Mutex
	inits  int
	armed  time.Duration
	sleeps int
}

// NewHost returns a hosted platform. led may be nil.
func NewHost(log *slog.Logger, led Pin) *Host {
	if log == nil {
		log = slog.Default()
	}
	return &Host{log: log.With("component", "platform"), led: led}
}

// Init drives the LED low and clears the previous wake timer.
func (h *Host) Init() error {
	if h.led != nil {
		h.led.Set(false)
	}
	h.mu.Lock()
	h.inits++
	h.armed = 0
	h.mu.Unlock()
	return nil
}

func (h *Host) Delay(ctx context.Context, d time.Duration) { Delay(ctx, d) }

func (h *Host) ArmTimerWake(d time.Duration) error {
	if err := checkInterval(d); err != nil {
		return err
	}
	h.mu.Lock()
	h.armed = d
	h.mu.Unlock()
	h.log.Debug("wake timer armed", "us", timex.Micros(d))
	return nil
}

// EnterDeepSleep records the sleep and returns.
func (h *Host) EnterDeepSleep() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.armed == 0 {
		return ErrNotArmed
	}
	h.sleeps++
	return nil
}

// Armed is the last armed wake interval, zero when none.
func (h *Host) Armed() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.armed
}

// Sleeps counts simulated deep sleeps.
func (h *Host) Sleeps() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sleeps
}

// Wake blocks for the armed interval, standing in for the timer wake-up.
// It returns ctx.Err() if ctx ends first and ErrNotArmed without a timer.
func (h *Host) Wake(ctx context.Context) error {
	d := h.Armed()
	if d == 0 {
		return ErrNotArmed
	}
	Delay(ctx, d)
	return ctx.Err()
}
