//go:build rp2040 || rp2350

package platform

import (
	"context"
	"io"
	"log/slog"
	"machine"
	"runtime/interrupt"
	"time"

	uartx "github.com/jangala-dev/tinygo-uartx/uartx"

	"scalenode-go/nvs"
	"scalenode-go/nvs/flash"
	"scalenode-go/types"
	"scalenode-go/x/timex"
)

const spiHz = 8_000_000

// Board is the RP2 platform. EnterDeepSleep does not return: the core idles
// for the armed interval and then resets, so the next cycle starts at main.
type Board struct {
	cfg   types.NodeConfig
	log   *slog.Logger
	led   machine.Pin
	armed time.Duration
}

func NewBoard(cfg types.NodeConfig, log *slog.Logger) *Board {
	if log == nil {
		log = slog.Default()
	}
	return &Board{cfg: cfg, log: log.With("component", "platform"), led: machine.Pin(cfg.LEDPin)}
}

// Init drives the LED low and brings up the radio SPI bus.
func (b *Board) Init() error {
	b.led.Configure(machine.PinConfig{Mode: machine.PinOutput})
	b.led.Low()
	return machine.SPI0.Configure(machine.SPIConfig{
		Frequency: spiHz,
		SCK:       machine.Pin(b.cfg.Radio.SCK),
		SDO:       machine.Pin(b.cfg.Radio.SDO),
		SDI:       machine.Pin(b.cfg.Radio.SDI),
		Mode:      0,
	})
}

// SPI is the bus configured by Init.
func (b *Board) SPI() *machine.SPI { return machine.SPI0 }

func (b *Board) Delay(ctx context.Context, d time.Duration) { Delay(ctx, d) }

func (b *Board) ArmTimerWake(d time.Duration) error {
	if err := checkInterval(d); err != nil {
		return err
	}
	b.armed = d
	b.log.Debug("wake timer armed", "us", timex.Micros(d))
	return nil
}

func (b *Board) EnterDeepSleep() error {
	if b.armed == 0 {
		return ErrNotArmed
	}
	time.Sleep(b.armed)
	machine.CPUReset()
	return nil
}

// HX711Lines configures the amplifier pins. machine.Pin already has the
// Get and Set methods the driver needs.
func HX711Lines(dout, pdsck int) (machine.Pin, machine.Pin) {
	in, out := machine.Pin(dout), machine.Pin(pdsck)
	in.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	out.Configure(machine.PinConfig{Mode: machine.PinOutput})
	out.Low()
	return in, out
}

// Critical masks interrupts until the returned func is called. It keeps a
// PD_SCK pulse from being stretched into a power-down.
func Critical() func() {
	st := interrupt.Disable()
	return func() { interrupt.Restore(st) }
}

// OpenNVS returns the store kept in a ring of erase blocks at the start of
// the flash data area.
func OpenNVS() (nvs.Store, error) {
	return flash.Open(machine.Flash, flash.DefaultBlocks)
}

// LogSink configures UART0 for log output.
func LogSink(baud uint32, tx, rx int) io.Writer {
	hw := uartx.UART0
	_ = hw.Configure(uartx.UARTConfig{
		BaudRate: baud,
		TX:       machine.Pin(tx),
		RX:       machine.Pin(rx),
	})
	return hw
}
