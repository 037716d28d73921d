package receiver

import (
	"github.com/juju/errors"
	"github.com/shopspring/decimal"

	"scalenode-go/types"
)

// weightPlaces is the number of decimals reported for a calibrated weight.
const weightPlaces = 3

type calibration struct {
	offset decimal.Decimal
	scale  decimal.Decimal
	unit   string
	name   string
}

// weight is (raw - offset) / scale, fixed to weightPlaces.
func (c calibration) weight(raw int32) string {
	return decimal.NewFromInt32(raw).Sub(c.offset).Div(c.scale).StringFixed(weightPlaces)
}

func parseCalibrations(in map[string]types.Calibration) (map[string]calibration, error) {
	out := make(map[string]calibration, len(in))
	for dev, c := range in {
		cal := calibration{offset: decimal.Zero, scale: decimal.NewFromInt(1), unit: c.Unit, name: c.Name}
		if c.Offset != "" {
			d, err := decimal.NewFromString(c.Offset)
			if err != nil {
				return nil, errors.Annotatef(err, "calibration %s offset", dev)
			}
			cal.offset = d
		}
		if c.Scale != "" {
			d, err := decimal.NewFromString(c.Scale)
			if err != nil {
				return nil, errors.Annotatef(err, "calibration %s scale", dev)
			}
			if d.IsZero() {
				return nil, errors.NotValidf("calibration %s zero scale", dev)
			}
			cal.scale = d
		}
		out[normEUI(dev)] = cal
	}
	return out, nil
}
