//go:build !rp2040 && !rp2350

package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/hashicorp/hcl"
	"github.com/juju/errors"

	"scalenode-go/types"
)

// DecodeFile overlays the file at path onto v. The format follows the
// extension: .hcl, .toml or .json.
func DecodeFile(path string, v any) error {
	bs, err := os.ReadFile(path)
	if err != nil {
		return errors.Annotatef(err, "config read %s", path)
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".hcl":
		err = hcl.Unmarshal(bs, v)
	case ".toml":
		_, err = toml.Decode(string(bs), v)
	case ".json":
		err = json.Unmarshal(bs, v)
	default:
		return errors.NotSupportedf("config format %q", ext)
	}
	return errors.Annotatef(err, "config parse %s", path)
}

// LoadNode resolves the node configuration: Defaults, then the embedded
// config of device (if any), then the file at path (if non-empty), then
// Validate.
func LoadNode(device, path string) (types.NodeConfig, error) {
	nc := Defaults()
	if device != "" {
		var err error
		if nc, err = Lookup(device); err != nil {
			return nc, errors.Annotate(err, "embedded config")
		}
	}
	if path != "" {
		if err := DecodeFile(path, &nc); err != nil {
			return nc, err
		}
	}
	if err := Validate(&nc); err != nil {
		return nc, err
	}
	return nc, nil
}

// LoadReceiver resolves the receiver configuration the same way.
func LoadReceiver(path string) (types.ReceiverConfig, error) {
	rc := ReceiverDefaults()
	if path != "" {
		if err := DecodeFile(path, &rc); err != nil {
			return rc, err
		}
	}
	if err := ValidateReceiver(&rc); err != nil {
		return rc, err
	}
	return rc, nil
}
