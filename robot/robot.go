// Package robot builds the configured simulated devices, wires each range finder to its topics
// and drives them from a single loop on the simulation clock.
package robot

import (
	"context"
	"path"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/multierr"

	"github.com/simsensors/rangecloud/components/rangefinder"
	"github.com/simsensors/rangecloud/config"
	"github.com/simsensors/rangecloud/logging"
	"github.com/simsensors/rangecloud/pubsub"
	"github.com/simsensors/rangecloud/ros"
	"github.com/simsensors/rangecloud/sim"
	"github.com/simsensors/rangecloud/utils"
)

const (
	cameraInfoSuffix = "camera_info"
	pointCloudSuffix = "point_cloud"
)

// Topics are the channels a range finder publishes on.
type Topics struct {
	Image      *pubsub.Topic[*ros.Image]
	CameraInfo *pubsub.Topic[*ros.CameraInfo]
	PointCloud *pubsub.Topic[*ros.PointCloud2]
}

func newTopics(base string) Topics {
	return Topics{
		Image:      pubsub.NewTopic[*ros.Image](base),
		CameraInfo: pubsub.NewTopic[*ros.CameraInfo](path.Join(base, cameraInfoSuffix), pubsub.WithLatching()),
		PointCloud: pubsub.NewTopic[*ros.PointCloud2](path.Join(base, pointCloudSuffix)),
	}
}

// closer is implemented by devices holding resources.
type closer interface {
	Close(ctx context.Context) error
}

type node struct {
	rangeFinder *rangefinder.RangeFinder
	device      rangefinder.Device
	gate        *sim.TimestepGate
	topics      Topics
}

// Robot owns the simulated devices and the loop stepping them.
type Robot struct {
	logger    logging.Logger
	simClock  *sim.Clock
	wallClock clock.Clock

	// in config order
	nodes  []*node
	byName map[string]*node

	steps *atomic.Uint64

	mu      sync.Mutex
	workers utils.StoppableWorkers
	closed  bool
}

// New builds every configured device. Devices of a type that is not supported are skipped with
// a warning. The loop is not running until Start is called. A nil wallClock uses the real
// clock.
func New(ctx context.Context, cfg *config.Config, wallClock clock.Clock, logger logging.Logger) (*Robot, error) {
	if cfg == nil {
		return nil, errors.New("cannot create robot without a config")
	}
	if wallClock == nil {
		wallClock = clock.New()
	}
	r := &Robot{
		logger:    logger,
		simClock:  sim.NewClock(cfg.BasicTimeStep()),
		wallClock: wallClock,
		byName:    map[string]*node{},
		steps:     atomic.NewUint64(0),
	}

	for _, devConf := range cfg.Devices {
		if devConf.Type != rangefinder.SubtypeName {
			logger.Warnw("device type is not supported, skipping", "device", devConf.Name, "type", devConf.Type)
			continue
		}
		n, err := r.newRangeFinderNode(ctx, devConf)
		if err != nil {
			return nil, multierr.Combine(errors.Wrapf(err, "cannot create device %q", devConf.Name), r.closeNodes(ctx))
		}
		r.nodes = append(r.nodes, n)
		r.byName[devConf.Name] = n
	}
	if len(r.nodes) == 0 {
		logger.Warn("no range finder configured")
	}
	return r, nil
}

func (r *Robot) newRangeFinderNode(ctx context.Context, devConf config.DeviceConfig) (*node, error) {
	constructor, ok := rangefinder.LookupDevice(devConf.Model)
	if !ok {
		return nil, errors.Errorf("unknown range finder model %q, available: %v", devConf.Model, rangefinder.RegisteredModels())
	}
	logger := r.logger.Sublogger(devConf.Name)
	device, err := constructor(ctx, devConf.Name, devConf.Attributes, r.simClock, logger)
	if err != nil {
		return nil, err
	}

	basic := r.simClock.BasicTimeStep()
	period := sim.PublishPeriod(devConf.UpdateRate, basic)
	gate := sim.NewTimestepGate(r.simClock, period)
	topics := newTopics(devConf.TopicName)

	rf, err := rangefinder.New(ctx, rangefinder.Dependencies{
		Device:     device,
		Gate:       gate,
		Image:      topics.Image,
		CameraInfo: topics.CameraInfo,
		PointCloud: topics.PointCloud,
	}, &rangefinder.Config{
		Name:             devConf.Name,
		FrameID:          devConf.FrameID,
		AlwaysOn:         devConf.AlwaysOn,
		SamplingPeriodMs: sim.SyncedPeriodMs(period, basic),
	}, r.wallClock, logger)
	if err != nil {
		if c, ok := device.(closer); ok {
			err = multierr.Combine(err, c.Close(ctx))
		}
		return nil, err
	}
	logger.Infow("range finder created", "model", devConf.Model, "topic", topics.Image.Name(), "publish_period", period)
	return &node{rangeFinder: rf, device: device, gate: gate, topics: topics}, nil
}

// Start runs the driver loop: every basic time step of wall time, the simulation advances by
// one step and every range finder steps once, in config order.
func (r *Robot) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.workers != nil {
		return
	}
	r.workers = utils.NewStoppableWorkers(r.loop)
}

func (r *Robot) loop(ctx context.Context) {
	ticker := r.wallClock.Ticker(r.simClock.BasicTimeStep())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		r.StepOnce(ctx)
	}
}

// StepOnce advances the simulation by one basic time step and steps every range finder. It
// must not be called concurrently with itself or with a running loop.
func (r *Robot) StepOnce(ctx context.Context) {
	r.simClock.Step()
	for _, n := range r.nodes {
		n.rangeFinder.Step(ctx)
	}
	r.steps.Inc()
}

// SimTime returns the simulation clock.
func (r *Robot) SimTime() *sim.Clock {
	return r.simClock
}

// Steps returns the number of simulation steps run.
func (r *Robot) Steps() uint64 {
	return r.steps.Load()
}

// RangeFinderNames returns the names of the range finders in config order.
func (r *Robot) RangeFinderNames() []string {
	names := make([]string, 0, len(r.nodes))
	for _, n := range r.nodes {
		names = append(names, n.rangeFinder.Name())
	}
	return names
}

// RangeFinderByName returns the range finder of the given name.
func (r *Robot) RangeFinderByName(name string) (*rangefinder.RangeFinder, bool) {
	n, ok := r.byName[name]
	if !ok {
		return nil, false
	}
	return n.rangeFinder, true
}

// Topics returns the topics of the range finder of the given name.
func (r *Robot) Topics(name string) (Topics, bool) {
	n, ok := r.byName[name]
	if !ok {
		return Topics{}, false
	}
	return n.topics, true
}

// Close stops the loop then closes every range finder and device.
func (r *Robot) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	workers := r.workers
	r.mu.Unlock()

	if workers != nil {
		workers.Stop()
	}
	return r.closeNodes(ctx)
}

func (r *Robot) closeNodes(ctx context.Context) error {
	var err error
	for _, n := range r.nodes {
		err = multierr.Combine(err, n.rangeFinder.Close(ctx))
		if c, ok := n.device.(closer); ok {
			err = multierr.Combine(err, c.Close(ctx))
		}
	}
	return err
}
