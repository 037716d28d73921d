//go:build rp2040 || rp2350

// Package lorawan is the network.Stack for boards with an SX127x radio,
// built on the TinyGo LoRaWAN stack.
package lorawan

import (
	"context"
	"errors"
	"log/slog"
	"machine"

	lw "tinygo.org/x/drivers/lora/lorawan"
	"tinygo.org/x/drivers/lora/lorawan/region"
	"tinygo.org/x/drivers/sx127x"

	"scalenode-go/errcode"
	"scalenode-go/network"
	"scalenode-go/nvs"
)

var errNoRadio = errors.New("sx127x not detected")

// Stack drives one SX127x on an SPI bus.
type Stack struct {
	spi    *machine.SPI
	st     nvs.Store
	log    *slog.Logger
	radio  *sx127x.Device
	region string
	rs     region.Settings
	plan   channelPlan

	otaa    lw.Otaa
	session lw.Session
	joined  bool

	adr bool
	dr  uint8
}

// New binds the stack to a configured SPI bus. Region is "EU868" (default),
// "US915" or "AU915".
func New(spi *machine.SPI, st nvs.Store, region string, log *slog.Logger) *Stack {
	if log == nil {
		log = slog.Default()
	}
	return &Stack{spi: spi, st: st, region: region, log: log.With("component", "lorawan")}
}

// Init is a no-op until the radio pins are known.
func (s *Stack) Init() error {
	if s.spi == nil || s.st == nil {
		return &errcode.E{C: errcode.InvalidConfig, Op: "lorawan.init", Msg: "spi and nvs required"}
	}
	return nil
}

func pin(n int) machine.Pin {
	if n == network.NotConnected {
		return machine.NoPin
	}
	return machine.Pin(n)
}

// ConfigurePins creates the radio, resets it and attaches it to the stack.
func (s *Stack) ConfigurePins(p network.RadioPins) error {
	rst, nss := pin(p.RST), pin(p.NSS)
	rst.Configure(machine.PinConfig{Mode: machine.PinOutput})
	nss.Configure(machine.PinConfig{Mode: machine.PinOutput})
	nss.High()

	s.radio = sx127x.New(s.spi, rst)
	s.radio.SetRadioController(sx127x.NewRadioControl(nss, pin(p.DIO0), pin(p.DIO1)))
	s.radio.Reset()
	if !s.radio.DetectDevice() {
		return errNoRadio
	}
	if p.RXTX != network.NotConnected {
		rxtx := pin(p.RXTX)
		rxtx.Configure(machine.PinConfig{Mode: machine.PinOutput})
		rxtx.Low()
	}

	lw.UseRadio(s.radio)
	s.rs = regionSettings(s.region)
	s.plan.apply(s.rs)
	lw.UseRegionSettings(s.rs)
	return nil
}

func (s *Stack) Provision(c network.Credentials) error {
	wrote, err := network.StoreCredentials(s.st, c)
	if err != nil {
		return err
	}
	if wrote {
		s.log.Info("credentials provisioned", "dev_eui", c.DevEUIString())
	}
	if err := s.otaa.SetAppEUI(c.AppEUI[:]); err != nil {
		return err
	}
	if err := s.otaa.SetDevEUI(c.DevEUI[:]); err != nil {
		return err
	}
	return s.otaa.SetAppKey(c.AppKey[:])
}

// SetADR records the request. The TinyGo stack keeps the region's data rate
// plan and has no ADR negotiation, so this only affects logging.
func (s *Stack) SetADR(enabled bool) { s.adr = enabled }

// SetDataRate and SetMaxTxPower may run before ConfigurePins; the plan is
// applied to the region channels once they exist.
func (s *Stack) SetDataRate(dr uint8) {
	s.dr = dr
	if !s.plan.setDataRate(dr) {
		s.log.Warn("data rate out of range, keeping region default", "dr", dr)
		return
	}
	s.plan.apply(s.rs)
}

func (s *Stack) SetMaxTxPower(dBm int8) {
	s.plan.setMaxTxPower(dBm)
	s.plan.apply(s.rs)
	if s.radio != nil {
		s.radio.SetTxPowerWithPaBoost(s.plan.txDBm, true)
	}
}

func (s *Stack) ResumeSession() bool {
	ps, ok := network.LoadSession(s.st)
	if !ok {
		return false
	}
	s.session.DevAddr = ps.DevAddr
	s.session.NwkSKey = ps.NwkSKey
	s.session.AppSKey = ps.AppSKey
	s.session.FCntUp = ps.FCntUp
	s.session.FCntDown = ps.FCntDown
	s.joined = true
	return true
}

func (s *Stack) Join(ctx context.Context) bool {
	if s.radio == nil || ctx.Err() != nil {
		return false
	}
	if err := lw.Join(&s.otaa, &s.session); err != nil {
		s.log.Warn("join rejected", "err", err)
		return false
	}
	s.joined = true
	s.log.Info("session", "adr", s.adr, "dr", s.dr)
	return true
}

func (s *Stack) Transmit(ctx context.Context, payload []byte, port uint8, confirmed bool) network.TxResult {
	if !s.joined || !portSupported(port, confirmed) {
		return network.TxUnsupported
	}
	if err := lw.SendUplink(payload, &s.session); err != nil {
		s.log.Warn("uplink failed", "err", err)
		return network.TxFailure
	}
	return network.TxSuccess
}

// WaitIdle returns at once: SendUplink blocks until TX done.
func (s *Stack) WaitIdle(context.Context) {}

// PrepareForSleep saves the session and puts the radio to sleep.
func (s *Stack) PrepareForSleep() error {
	if s.radio != nil {
		s.radio.SetOpMode(sx127x.SX127X_OPMODE_SLEEP)
	}
	if !s.joined {
		return nil
	}
	return network.SaveSession(s.st, network.Session{
		DevAddr:  s.session.DevAddr,
		NwkSKey:  s.session.NwkSKey,
		AppSKey:  s.session.AppSKey,
		FCntUp:   s.session.FCntUp,
		FCntDown: s.session.FCntDown,
	})
}
