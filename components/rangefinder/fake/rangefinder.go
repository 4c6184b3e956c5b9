// Package fake implements a simulated range finder looking at a fixed scene: a wall in front
// of the sensor and a floor below it.
package fake

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
	goutils "go.viam.com/utils"

	"github.com/simsensors/rangecloud/components/rangefinder"
	"github.com/simsensors/rangecloud/config"
	"github.com/simsensors/rangecloud/logging"
	"github.com/simsensors/rangecloud/rimage/transform"
	"github.com/simsensors/rangecloud/sim"
)

// Model is the name the fake range finder registers under.
const Model = "fake"

const (
	defaultWidth        = 160
	defaultHeight       = 120
	defaultFieldOfView  = math.Pi / 2
	defaultWallDistance = 5.0
	defaultSensorHeight = 0.5
	defaultMaxRange     = 10.0
)

func init() {
	rangefinder.RegisterDevice(Model, func(
		ctx context.Context,
		name string,
		attributes map[string]interface{},
		clock *sim.Clock,
		logger logging.Logger,
	) (rangefinder.Device, error) {
		var conf Config
		unused, err := config.DecodeAttributes(attributes, &conf)
		if err != nil {
			return nil, errors.Wrapf(err, "fake range finder %q", name)
		}
		if len(unused) > 0 {
			logger.Warnw("ignoring unknown attributes", "attributes", unused)
		}
		return NewRangeFinder(name, &conf, clock, logger)
	})
}

// Config are the attributes of the fake range finder. Zero values take the defaults.
type Config struct {
	Width        int     `json:"width,omitempty"`
	Height       int     `json:"height,omitempty"`
	FieldOfView  float64 `json:"field_of_view,omitempty"`
	WallDistance float64 `json:"wall_distance,omitempty"`
	SensorHeight float64 `json:"sensor_height,omitempty"`
	MaxRange     float64 `json:"max_range,omitempty"`
}

// Validate checks that the config attributes are valid for a fake range finder and fills in
// the defaults.
func (conf *Config) Validate(path string) error {
	if conf.Width < 0 {
		return goutils.NewConfigValidationError(path, errors.New("width must not be negative"))
	}
	if conf.Height < 0 {
		return goutils.NewConfigValidationError(path, errors.New("height must not be negative"))
	}
	if conf.FieldOfView < 0 || conf.FieldOfView >= math.Pi {
		return goutils.NewConfigValidationError(path, errors.Errorf("field_of_view must be in (0, pi), got %v", conf.FieldOfView))
	}
	if conf.WallDistance < 0 || conf.SensorHeight < 0 || conf.MaxRange < 0 {
		return goutils.NewConfigValidationError(path, errors.New("distances must not be negative"))
	}
	if conf.Width == 0 {
		conf.Width = defaultWidth
	}
	if conf.Height == 0 {
		conf.Height = defaultHeight
	}
	if conf.FieldOfView == 0 {
		conf.FieldOfView = defaultFieldOfView
	}
	if conf.WallDistance == 0 {
		conf.WallDistance = defaultWallDistance
	}
	if conf.SensorHeight == 0 {
		conf.SensorHeight = defaultSensorHeight
	}
	if conf.MaxRange == 0 {
		conf.MaxRange = defaultMaxRange
	}
	return nil
}

// RangeFinder is a simulated range finder. It samples on simulation time: after Enable, the
// first image is ready once one sampling period has elapsed.
type RangeFinder struct {
	name   string
	cfg    Config
	clock  *sim.Clock
	logger logging.Logger

	mu         sync.Mutex
	enabled    bool
	period     time.Duration
	enabledAt  time.Duration
	lastRender time.Duration
	rendered   bool
	scene      []float32
	buf        []float32

	renders *atomic.Uint64
}

// NewRangeFinder returns a fake range finder sampling on the given simulation clock.
func NewRangeFinder(name string, conf *Config, clock *sim.Clock, logger logging.Logger) (*RangeFinder, error) {
	if clock == nil {
		return nil, errors.New("fake range finder needs a simulation clock")
	}
	cfg := *conf
	if err := cfg.Validate(name); err != nil {
		return nil, err
	}
	scene, err := renderScene(&cfg)
	if err != nil {
		return nil, err
	}
	return &RangeFinder{
		name:    name,
		cfg:     cfg,
		clock:   clock,
		logger:  logger,
		scene:   scene,
		buf:     make([]float32, len(scene)),
		renders: atomic.NewUint64(0),
	}, nil
}

// renderScene computes the planar depth of every pixel: the distance along the optical axis to
// the closest of the wall and the floor, or +Inf past the maximum range.
func renderScene(conf *Config) ([]float32, error) {
	intrinsics, err := transform.NewPinholeCameraIntrinsicsFromFOV(conf.Width, conf.Height, conf.FieldOfView)
	if err != nil {
		return nil, err
	}
	scene := make([]float32, conf.Width*conf.Height)
	for j := 0; j < conf.Height; j++ {
		depth := conf.WallDistance
		// rows below the principal point see the floor at x = h*fy/(j-cy)
		if below := float64(j) - intrinsics.Ppy; below > 0 {
			depth = math.Min(depth, conf.SensorHeight*intrinsics.Fy/below)
		}
		val := float32(depth)
		if depth > conf.MaxRange {
			val = float32(math.Inf(1))
		}
		for i := 0; i < conf.Width; i++ {
			scene[i+j*conf.Width] = val
		}
	}
	return scene, nil
}

// Name returns the name of the device.
func (rf *RangeFinder) Name() string {
	return rf.name
}

// Width returns the horizontal resolution.
func (rf *RangeFinder) Width() int {
	return rf.cfg.Width
}

// Height returns the vertical resolution.
func (rf *RangeFinder) Height() int {
	return rf.cfg.Height
}

// FieldOfView returns the horizontal field of view in radians.
func (rf *RangeFinder) FieldOfView() float64 {
	return rf.cfg.FieldOfView
}

// RangeImage returns the latest sample, or nil while disabled or before the first sampling
// period completed.
func (rf *RangeFinder) RangeImage(ctx context.Context) []float32 {
	rf.mu.Lock()
	defer rf.mu.Unlock()
	if !rf.enabled {
		return nil
	}
	now := rf.clock.Now()
	if now-rf.enabledAt < rf.period {
		return nil
	}
	if !rf.rendered || now-rf.lastRender >= rf.period {
		copy(rf.buf, rf.scene)
		rf.rendered = true
		rf.lastRender = now
		rf.renders.Inc()
	}
	return rf.buf
}

// Enable starts sampling every periodMs milliseconds of simulation time.
func (rf *RangeFinder) Enable(ctx context.Context, periodMs uint) {
	rf.mu.Lock()
	defer rf.mu.Unlock()
	if periodMs == 0 {
		periodMs = uint(rf.clock.BasicTimeStep().Milliseconds())
	}
	rf.enabled = true
	rf.period = time.Duration(periodMs) * time.Millisecond
	rf.enabledAt = rf.clock.Now()
	rf.rendered = false
	rf.logger.Debugw("sampling enabled", "period_ms", periodMs)
}

// Disable stops sampling.
func (rf *RangeFinder) Disable(ctx context.Context) {
	rf.mu.Lock()
	defer rf.mu.Unlock()
	rf.enabled = false
	rf.logger.Debug("sampling disabled")
}

// Renders returns how many samples were taken since creation.
func (rf *RangeFinder) Renders() uint64 {
	return rf.renders.Load()
}

// Close disables the device.
func (rf *RangeFinder) Close(ctx context.Context) error {
	rf.Disable(ctx)
	rf.logger.Debugw("closed", "renders", rf.Renders())
	return nil
}
