package inject

import (
	"context"
	"sync"

	"github.com/simsensors/rangecloud/components/rangefinder"
)

// RangeFinderDevice is an injected range finder device.
type RangeFinderDevice struct {
	rangefinder.Device
	WidthFunc       func() int
	HeightFunc      func() int
	FieldOfViewFunc func() float64
	RangeImageFunc  func(ctx context.Context) []float32
	EnableFunc      func(ctx context.Context, periodMs uint)
	DisableFunc     func(ctx context.Context)
}

// NewRangeFinderDevice returns an injected device of the given resolution and horizontal field
// of view that never has data.
func NewRangeFinderDevice(width, height int, fov float64) *RangeFinderDevice {
	return &RangeFinderDevice{
		WidthFunc:       func() int { return width },
		HeightFunc:      func() int { return height },
		FieldOfViewFunc: func() float64 { return fov },
		RangeImageFunc:  func(ctx context.Context) []float32 { return nil },
		EnableFunc:      func(ctx context.Context, periodMs uint) {},
		DisableFunc:     func(ctx context.Context) {},
	}
}

// Width calls the injected Width or the real version.
func (d *RangeFinderDevice) Width() int {
	if d.WidthFunc == nil {
		return d.Device.Width()
	}
	return d.WidthFunc()
}

// Height calls the injected Height or the real version.
func (d *RangeFinderDevice) Height() int {
	if d.HeightFunc == nil {
		return d.Device.Height()
	}
	return d.HeightFunc()
}

// FieldOfView calls the injected FieldOfView or the real version.
func (d *RangeFinderDevice) FieldOfView() float64 {
	if d.FieldOfViewFunc == nil {
		return d.Device.FieldOfView()
	}
	return d.FieldOfViewFunc()
}

// RangeImage calls the injected RangeImage or the real version.
func (d *RangeFinderDevice) RangeImage(ctx context.Context) []float32 {
	if d.RangeImageFunc == nil {
		return d.Device.RangeImage(ctx)
	}
	return d.RangeImageFunc(ctx)
}

// Enable calls the injected Enable or the real version.
func (d *RangeFinderDevice) Enable(ctx context.Context, periodMs uint) {
	if d.EnableFunc == nil {
		d.Device.Enable(ctx, periodMs)
		return
	}
	d.EnableFunc(ctx, periodMs)
}

// Disable calls the injected Disable or the real version.
func (d *RangeFinderDevice) Disable(ctx context.Context) {
	if d.DisableFunc == nil {
		d.Device.Disable(ctx)
		return
	}
	d.DisableFunc(ctx)
}

// DemandSignal is an injected demand signal.
type DemandSignal struct {
	ActiveConsumerCountFunc func() uint
}

// ActiveConsumerCount calls the injected ActiveConsumerCount or reports no consumers.
func (d *DemandSignal) ActiveConsumerCount() uint {
	if d.ActiveConsumerCountFunc == nil {
		return 0
	}
	return d.ActiveConsumerCountFunc()
}

// StepGate is an injected step gate.
type StepGate struct {
	IsStepDueFunc func() bool
}

// IsStepDue calls the injected IsStepDue or reports every step as due.
func (g *StepGate) IsStepDue() bool {
	if g.IsStepDueFunc == nil {
		return true
	}
	return g.IsStepDueFunc()
}

// Cloner is a message that can be deep copied.
type Cloner[T any] interface {
	Clone() T
}

// Publisher is an injected publisher that records a copy of everything published.
type Publisher[T Cloner[T]] struct {
	ActiveConsumerCountFunc func() uint
	PublishFunc             func(ctx context.Context, msg T)

	mu        sync.Mutex
	published []T
}

// ActiveConsumerCount calls the injected ActiveConsumerCount or reports no consumers.
func (p *Publisher[T]) ActiveConsumerCount() uint {
	if p.ActiveConsumerCountFunc == nil {
		return 0
	}
	return p.ActiveConsumerCountFunc()
}

// Publish records a copy of msg and calls the injected Publish, if any.
func (p *Publisher[T]) Publish(ctx context.Context, msg T) {
	p.mu.Lock()
	p.published = append(p.published, msg.Clone())
	p.mu.Unlock()
	if p.PublishFunc != nil {
		p.PublishFunc(ctx, msg)
	}
}

// Published returns the recorded messages in publish order.
func (p *Publisher[T]) Published() []T {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]T(nil), p.published...)
}
