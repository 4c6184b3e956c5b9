// Package config defines the structures to configure the simulated sensors, their topics and
// the surfaces serving them.
package config

import (
	"fmt"
	"math"
	"net"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.viam.com/utils"

	"github.com/simsensors/rangecloud/sim"
)

// DefaultBindAddress is the default address that the HTTP server listens on.
const DefaultBindAddress = "localhost:8080"

// DefaultDeviceModel is the device model used when a device does not name one.
const DefaultDeviceModel = "fake"

// DefaultLogMaxSizeMB is the size at which the log file is rotated.
const DefaultLogMaxSizeMB = 100

// Config describes a set of simulated devices driven on one simulation clock.
type Config struct {
	ConfigFilePath string `json:"-"`

	// BasicTimeStepMs is the duration of one simulation step. Zero means 32ms.
	BasicTimeStepMs uint           `json:"basic_time_step_ms,omitempty"`
	Devices         []DeviceConfig `json:"devices,omitempty"`
	Network         NetworkConfig  `json:"network"`
	Log             LogConfig      `json:"log"`
}

// Ensure validates the config and fills in defaults.
func (c *Config) Ensure() error {
	if c.BasicTimeStepMs == 0 {
		c.BasicTimeStepMs = uint(sim.DefaultBasicTimeStep.Milliseconds())
	}

	for idx := 0; idx < len(c.Devices); idx++ {
		if err := c.Devices[idx].Validate(fmt.Sprintf("%s.%d", "devices", idx)); err != nil {
			return err
		}
	}
	names := lo.Map(c.Devices, func(dev DeviceConfig, _ int) string { return dev.Name })
	if dups := lo.FindDuplicates(names); len(dups) > 0 {
		return errors.Errorf("device name %q is not unique", dups[0])
	}
	topics := lo.Map(c.Devices, func(dev DeviceConfig, _ int) string { return dev.TopicName })
	if dups := lo.FindDuplicates(topics); len(dups) > 0 {
		return errors.Errorf("topic name %q is used by more than one device", dups[0])
	}

	if err := c.Network.Validate("network"); err != nil {
		return err
	}
	return c.Log.Validate("log")
}

// BasicTimeStep returns the duration of one simulation step.
func (c *Config) BasicTimeStep() time.Duration {
	if c.BasicTimeStepMs == 0 {
		return sim.DefaultBasicTimeStep
	}
	return time.Duration(c.BasicTimeStepMs) * time.Millisecond
}

// DeviceConfig describes one simulated device and where its data is published.
type DeviceConfig struct {
	Name string `json:"name"`
	// Type is the kind of device, such as "range_finder".
	Type string `json:"type"`
	// Model selects the implementation of the device type.
	Model   string `json:"model,omitempty"`
	FrameID string `json:"frame_id,omitempty"`
	// TopicName is the base topic of the device. It defaults to the device name.
	TopicName string `json:"topic_name,omitempty"`
	AlwaysOn  bool   `json:"always_on,omitempty"`
	// UpdateRate is the publish rate in Hz. Zero publishes on every simulation step.
	UpdateRate float64                `json:"update_rate,omitempty"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

// Validate ensures all parts of the device config are valid.
func (conf *DeviceConfig) Validate(path string) error {
	if conf.Name == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "name")
	}
	if conf.Type == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "type")
	}
	if conf.UpdateRate < 0 || math.IsNaN(conf.UpdateRate) {
		return utils.NewConfigValidationError(path, errors.Errorf("update_rate must not be negative, got %v", conf.UpdateRate))
	}
	if conf.Model == "" {
		conf.Model = DefaultDeviceModel
	}
	if conf.FrameID == "" {
		conf.FrameID = conf.Name
	}
	if conf.TopicName == "" {
		conf.TopicName = conf.Name
	}
	conf.TopicName = "/" + strings.Trim(conf.TopicName, "/")
	return nil
}

// NetworkConfig describes networking settings for the HTTP server.
type NetworkConfig struct {
	// BindAddress is the address the server listens on. An explicit empty string uses
	// DefaultBindAddress.
	BindAddress string `json:"bind_address,omitempty"`
	// Disabled turns off the HTTP server.
	Disabled bool `json:"disabled,omitempty"`
}

// Validate ensures all parts of the network config are valid.
func (nc *NetworkConfig) Validate(path string) error {
	if nc.BindAddress == "" {
		nc.BindAddress = DefaultBindAddress
	}
	if _, _, err := net.SplitHostPort(nc.BindAddress); err != nil {
		return utils.NewConfigValidationError(path, errors.Wrap(err, "error validating bind_address"))
	}
	return nil
}

// LogConfig describes where and how verbosely to log.
type LogConfig struct {
	Debug bool `json:"debug,omitempty"`
	// File additionally writes the logs to a rotated file.
	File      string `json:"file,omitempty"`
	MaxSizeMB int    `json:"max_size_mb,omitempty"`
}

// Validate ensures all parts of the log config are valid.
func (lc *LogConfig) Validate(path string) error {
	if lc.MaxSizeMB < 0 {
		return utils.NewConfigValidationError(path, errors.New("max_size_mb must not be negative"))
	}
	if lc.File != "" && lc.MaxSizeMB == 0 {
		lc.MaxSizeMB = DefaultLogMaxSizeMB
	}
	return nil
}

// DecodeAttributes decodes model attributes into the struct pointed to by into, matching keys
// with json tags. It returns the keys nothing consumed.
func DecodeAttributes(attributes map[string]interface{}, into interface{}) ([]string, error) {
	var md mapstructure.Metadata
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           into,
		Metadata:         &md,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(attributes); err != nil {
		return nil, errors.Wrap(err, "error decoding attributes")
	}
	return md.Unused, nil
}
