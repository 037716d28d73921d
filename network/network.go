// Package network holds the contract between the cycle controller and a
// LoRaWAN-class network stack, plus the types every implementation shares.
//
// Implementations:
//
//	network/mqttlink  MQTT backhaul for host and Linux nodes
//	network/lorawan   TinyGo stack on an SX127x radio (rp2040 builds)
package network

import (
	"context"
	"errors"

	"scalenode-go/types"
	"scalenode-go/x/conv"
	"scalenode-go/x/strx"
)

// Stack is what the cycle controller needs from the network collaborator.
type Stack interface {
	Init() error
	ConfigurePins(p RadioPins) error
	// Provision stores join credentials in non-volatile storage. Calling it
	// again with the same credentials changes nothing.
	Provision(c Credentials) error
	SetADR(enabled bool)
	SetDataRate(dr uint8)
	SetMaxTxPower(dBm int8)
	// ResumeSession restores a session persisted by PrepareForSleep.
	ResumeSession() bool
	// Join runs the blocking join handshake.
	Join(ctx context.Context) bool
	Transmit(ctx context.Context, payload []byte, port uint8, confirmed bool) TxResult
	// WaitIdle blocks until no radio activity is in flight.
	WaitIdle(ctx context.Context)
	// PrepareForSleep persists what ResumeSession needs.
	PrepareForSleep() error
}

// TxResult is the outcome of a Transmit call.
type TxResult uint8

const (
	TxSuccess TxResult = iota
	TxFailure
	// TxUnsupported covers calls the stack rejects outright, e.g. an
	// oversized frame or a transmit before join.
	TxUnsupported
)

func (r TxResult) String() string {
	switch r {
	case TxSuccess:
		return "success"
	case TxFailure:
		return "failure"
	case TxUnsupported:
		return "unsupported"
	}
	return "unknown"
}

// RadioPins is the radio wiring handed to ConfigurePins. -1 = not connected.
type RadioPins struct {
	NSS  int
	RXTX int
	RST  int
	DIO0 int
	DIO1 int
}

// NotConnected marks an unused radio pin.
const NotConnected = -1

// RadioPinsFrom extracts the pin block of a radio configuration.
func RadioPinsFrom(c types.RadioConfig) RadioPins {
	return RadioPins{NSS: c.NSS, RXTX: c.RXTX, RST: c.RST, DIO0: c.DIO0, DIO1: c.DIO1}
}

// Credentials is the decoded OTAA join material.
type Credentials struct {
	DevEUI [8]byte
	AppEUI [8]byte
	AppKey [16]byte
}

var ErrCredentials = errors.New("network: malformed credentials")

// ParseCredentials decodes the hex strings of a credentials block.
func ParseCredentials(c types.CredentialsConfig) (Credentials, error) {
	var out Credentials
	if err := conv.DecodeHex(out.DevEUI[:], strx.CleanHex(c.DevEUI)); err != nil {
		return Credentials{}, errors.Join(ErrCredentials, errors.New("dev_eui"), err)
	}
	if err := conv.DecodeHex(out.AppEUI[:], strx.CleanHex(c.AppEUI)); err != nil {
		return Credentials{}, errors.Join(ErrCredentials, errors.New("app_eui"), err)
	}
	if err := conv.DecodeHex(out.AppKey[:], strx.CleanHex(c.AppKey)); err != nil {
		return Credentials{}, errors.Join(ErrCredentials, errors.New("app_key"), err)
	}
	return out, nil
}

// DevEUIString is the uppercase hex form used in topics and logs.
func (c Credentials) DevEUIString() string {
	return string(conv.HexUpper(make([]byte, 0, 16), c.DevEUI[:]))
}
