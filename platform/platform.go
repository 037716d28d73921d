// Package platform provides the board collaborator of the cycle controller:
// bring-up, bounded delays, the wake timer and deep sleep.
//
//	host.go       hosted builds; deep sleep is simulated and returns
//	periph_linux.go  HX711 and LED lines through periph on Linux boards
//	rp2.go        RP2040/RP2350; flash NVS, UART logging, reset on wake
package platform

import (
	"context"
	"errors"
	"time"

	"scalenode-go/errcode"
)

// ErrNotArmed is returned by EnterDeepSleep without a prior ArmTimerWake.
var ErrNotArmed = errors.New("platform: wake timer not armed")

// Delay blocks for d or until ctx is done.
func Delay(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func checkInterval(d time.Duration) error {
	if d < time.Second {
		return &errcode.E{C: errcode.InvalidParams, Op: "arm_timer_wake", Msg: "interval below 1s"}
	}
	return nil
}
