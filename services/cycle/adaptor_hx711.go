// services/cycle/adaptor_hx711.go
package cycle

import (
	"time"

	"scalenode-go/drivers/hx711"
)

// HX711Sensor adapts the HX711 driver to the Sensor contract.
type HX711Sensor struct {
	dev hx711.Device
	cfg hx711.Config
}

// NewHX711Sensor wraps the two HX711 lines. cfg is applied by Init.
func NewHX711Sensor(dout hx711.InputPin, pdsck hx711.OutputPin, cfg hx711.Config) *HX711Sensor {
	return &HX711Sensor{dev: hx711.New(dout, pdsck), cfg: cfg}
}

func (s *HX711Sensor) Init() error { return s.dev.Configure(s.cfg) }

func (s *HX711Sensor) WaitReady(timeout time.Duration) error { return s.dev.Wait(timeout) }

func (s *HX711Sensor) ReadAverage(times int) (int32, error) { return s.dev.ReadAverage(times) }

func (s *HX711Sensor) PowerDown(down bool) error { return s.dev.PowerDown(down) }

// Device exposes the driver for diagnostics.
func (s *HX711Sensor) Device() *hx711.Device { return &s.dev }
