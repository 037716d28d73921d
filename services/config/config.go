package config

import (
	"context"
	"encoding/json"
	"errors"

	"scalenode-go/bus"
	"scalenode-go/types"
)

// -----------------------------------------------------------------------------
// String constants (live in flash, not RAM)
// -----------------------------------------------------------------------------

const (
	serviceName  = "config"
	configPrefix = "config"
	CtxDeviceKey = "device" // context key used for device ID
)

var (
	ErrNoDevice      = errors.New("missing device ID in context")
	ErrNoConfig      = errors.New("no embedded config for device")
	ErrNotJSONObject = errors.New("embedded config is not a JSON object")
)

// EmbeddedConfigLookup allows overriding how configs are resolved.
var EmbeddedConfigLookup = func(device string) ([]byte, bool) {
	b, ok := embeddedConfigs[device]
	return b, ok
}

// Lookup returns Defaults() overlaid with the embedded config of device.
// The result is not validated.
func Lookup(device string) (types.NodeConfig, error) {
	nc := Defaults()
	raw, ok := EmbeddedConfigLookup(device)
	if !ok || len(raw) == 0 {
		return nc, errors.Join(ErrNoConfig, errors.New(device))
	}
	if err := json.Unmarshal(raw, &nc); err != nil {
		return nc, err
	}
	if nc.Device == "" {
		nc.Device = device
	}
	return nc, nil
}

// -----------------------------------------------------------------------------
// Config Service
// -----------------------------------------------------------------------------

type ConfigService struct {
	Name string
}

func NewConfigService() *ConfigService {
	return &ConfigService{Name: serviceName}
}

// publishConfig reads the device config from embedded data and publishes each
// top-level key as a retained message on config/<key>.
func (s *ConfigService) publishConfig(ctx context.Context, conn *bus.Connection) error {
	device, _ := ctx.Value(CtxDeviceKey).(string)
	if device == "" {
		return ErrNoDevice
	}

	raw, ok := EmbeddedConfigLookup(device)
	if !ok || len(raw) == 0 {
		return errors.Join(ErrNoConfig, errors.New(device))
	}

	var val any
	if err := json.Unmarshal(raw, &val); err != nil {
		return err
	}
	m, ok := val.(map[string]any)
	if !ok {
		return ErrNotJSONObject
	}

	for k, v := range m {
		conn.Publish(conn.NewMessage(bus.T(configPrefix, k), v, true))
	}
	return nil
}

// Start launches the config publisher in a goroutine. errs, when non-nil,
// receives the publish result.
func (s *ConfigService) Start(ctx context.Context, conn *bus.Connection, errs chan<- error) {
	go func() {
		err := s.publishConfig(ctx, conn)
		if errs != nil {
			errs <- err
		}
	}()
}
