// Package rangefinder turns a simulated depth sensor into published range images and point
// clouds, and keeps the sensor acquiring only while somebody consumes its output.
package rangefinder

import (
	"context"

	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"github.com/simsensors/rangecloud/ros"
)

// SubtypeName identifies the range finder device type in configs.
const SubtypeName = "range_finder"

// Device is the underlying range finder hardware, real or simulated.
type Device interface {
	// Width returns the horizontal resolution in pixels.
	Width() int
	// Height returns the vertical resolution in pixels.
	Height() int
	// FieldOfView returns the horizontal field of view in radians.
	FieldOfView() float64

	// RangeImage returns the latest row-major range buffer of Width()*Height() values, or nil
	// when no data is ready. The buffer belongs to the device and is only valid until the next
	// call.
	RangeImage(ctx context.Context) []float32

	// Enable starts acquisition with one sample every periodMs milliseconds.
	Enable(ctx context.Context, periodMs uint)
	// Disable stops acquisition.
	Disable(ctx context.Context)
}

// DemandSignal tells whether anybody consumes the output of a sensor.
type DemandSignal interface {
	ActiveConsumerCount() uint
}

// StepGate decides whether a simulation step is due for processing.
type StepGate interface {
	IsStepDue() bool
}

// Publisher is an output channel. Publish must not keep msg after it returns since the
// range finder reuses its message buffers.
type Publisher[T any] interface {
	DemandSignal
	Publish(ctx context.Context, msg T)
}

// Dependencies are the collaborators of a RangeFinder.
type Dependencies struct {
	Device     Device
	Gate       StepGate
	Image      Publisher[*ros.Image]
	CameraInfo Publisher[*ros.CameraInfo]
	PointCloud Publisher[*ros.PointCloud2]

	// Demand defaults to the consumers of Image.
	Demand DemandSignal
}

func (deps *Dependencies) validate() error {
	switch {
	case deps.Device == nil:
		return errors.New("range finder device is required")
	case deps.Gate == nil:
		return errors.New("step gate is required")
	case deps.Image == nil:
		return errors.New("image publisher is required")
	case deps.CameraInfo == nil:
		return errors.New("camera info publisher is required")
	case deps.PointCloud == nil:
		return errors.New("point cloud publisher is required")
	}
	return nil
}

// Config describes one range finder node.
type Config struct {
	Name     string `json:"name"`
	FrameID  string `json:"frame_id,omitempty"`
	AlwaysOn bool   `json:"always_on,omitempty"`
	// SamplingPeriodMs is handed to the device when acquisition is enabled.
	SamplingPeriodMs uint `json:"sampling_period_ms"`
}

// Validate ensures all parts of the config are valid.
func (conf *Config) Validate(path string) error {
	if conf.Name == "" {
		return goutils.NewConfigValidationFieldRequiredError(path, "name")
	}
	if conf.SamplingPeriodMs == 0 {
		return goutils.NewConfigValidationError(path, errors.New("sampling_period_ms must be positive"))
	}
	return nil
}

// frameID returns the configured frame, defaulting to the node name.
func (conf *Config) frameID() string {
	if conf.FrameID == "" {
		return conf.Name
	}
	return conf.FrameID
}
