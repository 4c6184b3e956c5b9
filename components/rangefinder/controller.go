package rangefinder

import (
	"context"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/simsensors/rangecloud/logging"
	"github.com/simsensors/rangecloud/pointcloud"
	"github.com/simsensors/rangecloud/rimage"
	"github.com/simsensors/rangecloud/rimage/transform"
	"github.com/simsensors/rangecloud/ros"
)

// RangeFinder publishes the range image, calibration and point cloud of a Device. Step must be
// called from a single goroutine, once per simulation step.
type RangeFinder struct {
	cfg    Config
	logger logging.Logger
	clock  clock.Clock

	device     Device
	gate       StepGate
	demand     DemandSignal
	image      Publisher[*ros.Image]
	pointCloud Publisher[*ros.PointCloud2]

	intrinsics *transform.PinholeCameraIntrinsics
	cameraInfo *ros.CameraInfo

	// reused on every step
	rangeImage *rimage.RangeImage
	cloud      *pointcloud.Organized
	imageMsg   *ros.Image
	cloudMsg   *ros.PointCloud2

	// written by Step only, atomic so that status readers on other goroutines are safe
	isEnabled *atomic.Bool
	published *atomic.Uint64
	skipped   *atomic.Uint64
	closed    bool
}

// Status is a snapshot of a RangeFinder for monitoring.
type Status struct {
	Name            string `json:"name"`
	FrameID         string `json:"frame_id"`
	Enabled         bool   `json:"enabled"`
	AlwaysOn        bool   `json:"always_on"`
	FramesPublished uint64 `json:"frames_published"`
	FramesSkipped   uint64 `json:"frames_skipped"`
}

// New validates the configuration, publishes the camera calibration once and, when configured
// always on, enables the device right away. Wall time stamps come from clk; nil uses the real
// clock.
func New(ctx context.Context, deps Dependencies, conf *Config, clk clock.Clock, logger logging.Logger) (*RangeFinder, error) {
	if conf == nil {
		return nil, errors.New("range finder config is required")
	}
	if err := conf.Validate(conf.Name); err != nil {
		return nil, err
	}
	if err := deps.validate(); err != nil {
		return nil, errors.Wrapf(err, "range finder %q", conf.Name)
	}
	if clk == nil {
		clk = clock.New()
	}

	width, height := deps.Device.Width(), deps.Device.Height()
	intrinsics, err := transform.NewPinholeCameraIntrinsicsFromFOV(width, height, deps.Device.FieldOfView())
	if err != nil {
		return nil, errors.Wrapf(err, "range finder %q", conf.Name)
	}

	demand := deps.Demand
	if demand == nil {
		demand = deps.Image
	}

	frameID := conf.frameID()
	rf := &RangeFinder{
		cfg:        *conf,
		logger:     logger,
		clock:      clk,
		device:     deps.Device,
		gate:       deps.Gate,
		demand:     demand,
		image:      deps.Image,
		pointCloud: deps.PointCloud,
		intrinsics: intrinsics,
		cameraInfo: ros.NewCameraInfo(frameID, intrinsics, transform.NoDistortion()),
		rangeImage: rimage.NewRangeImage(width, height),
		cloud:      pointcloud.NewOrganized(width, height),
		imageMsg:   ros.NewRangeImageMessage(frameID, width, height),
		cloudMsg:   ros.NewPointCloud2(frameID, width, height),
		isEnabled:  atomic.NewBool(false),
		published:  atomic.NewUint64(0),
		skipped:    atomic.NewUint64(0),
	}

	rf.cameraInfo.Header.Stamp = clk.Now()
	deps.CameraInfo.Publish(ctx, rf.cameraInfo)

	if conf.AlwaysOn {
		rf.device.Enable(ctx, conf.SamplingPeriodMs)
		rf.isEnabled.Store(true)
	}
	logger.Debugw("range finder ready",
		"width", width, "height", height, "fx", intrinsics.Fx, "fy", intrinsics.Fy,
		"always_on", conf.AlwaysOn, "sampling_period_ms", conf.SamplingPeriodMs)
	return rf, nil
}

// Name returns the configured name.
func (rf *RangeFinder) Name() string {
	return rf.cfg.Name
}

// Intrinsics returns the pinhole intrinsics derived from the device.
func (rf *RangeFinder) Intrinsics() *transform.PinholeCameraIntrinsics {
	return rf.intrinsics
}

// CameraInfo returns the calibration published at construction.
func (rf *RangeFinder) CameraInfo() *ros.CameraInfo {
	return rf.cameraInfo
}

// IsEnabled reports whether the device is currently acquiring.
func (rf *RangeFinder) IsEnabled() bool {
	return rf.isEnabled.Load()
}

// Status returns a snapshot of the range finder.
func (rf *RangeFinder) Status() Status {
	return Status{
		Name:            rf.cfg.Name,
		FrameID:         rf.cfg.frameID(),
		Enabled:         rf.isEnabled.Load(),
		AlwaysOn:        rf.cfg.AlwaysOn,
		FramesPublished: rf.published.Load(),
		FramesSkipped:   rf.skipped.Load(),
	}
}

// Step runs one simulation step: publish if enabled, then follow the consumer demand unless
// always on. A step without data from the device publishes nothing and changes nothing.
func (rf *RangeFinder) Step(ctx context.Context) {
	if rf.closed || !rf.gate.IsStepDue() {
		return
	}

	if rf.isEnabled.Load() {
		rf.publish(ctx)
	}

	if rf.cfg.AlwaysOn {
		return
	}

	shouldBeEnabled := rf.demand.ActiveConsumerCount() > 0
	if shouldBeEnabled == rf.isEnabled.Load() {
		return
	}
	if shouldBeEnabled {
		rf.device.Enable(ctx, rf.cfg.SamplingPeriodMs)
		rf.logger.Debugw("consumers appeared, enabling device", "sampling_period_ms", rf.cfg.SamplingPeriodMs)
	} else {
		rf.device.Disable(ctx)
		rf.logger.Debug("no consumers left, disabling device")
	}
	rf.isEnabled.Store(shouldBeEnabled)
}

func (rf *RangeFinder) publish(ctx context.Context) {
	buf := rf.device.RangeImage(ctx)
	if buf == nil {
		rf.skipped.Inc()
		return
	}
	if err := rf.rangeImage.CopyFrom(buf); err != nil {
		rf.skipped.Inc()
		rf.logger.Debugw("ignoring range buffer", "error", err)
		return
	}

	stamp := rf.clock.Now()
	rf.imageMsg.Header.Stamp = stamp
	rf.cloudMsg.Header.Stamp = stamp

	// the buffers below were sized from the same resolution, so these cannot fail
	if err := rf.rangeImage.EncodeTo(rf.imageMsg.Data); err != nil {
		rf.logger.Errorw("encoding range image", "error", err)
		return
	}
	if err := rf.intrinsics.ProjectRangeImage(rf.rangeImage, rf.cloud); err != nil {
		rf.logger.Errorw("projecting range image", "error", err)
		return
	}
	if err := rf.cloud.EncodeTo(rf.cloudMsg.Data); err != nil {
		rf.logger.Errorw("encoding point cloud", "error", err)
		return
	}

	rf.image.Publish(ctx, rf.imageMsg)
	rf.pointCloud.Publish(ctx, rf.cloudMsg)
	rf.published.Inc()
}

// Close disables the device if it is still acquiring. Steps after Close do nothing.
func (rf *RangeFinder) Close(ctx context.Context) error {
	if rf.closed {
		return nil
	}
	rf.closed = true
	if rf.isEnabled.Load() {
		rf.device.Disable(ctx)
		rf.isEnabled.Store(false)
	}
	return nil
}
