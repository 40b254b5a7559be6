package grabber

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opencensus.io/trace"
	"go.uber.org/multierr"

	"go.viam.com/rgbdgrab/device"
	"go.viam.com/rgbdgrab/logging"
	"go.viam.com/rgbdgrab/registration"
	"go.viam.com/rgbdgrab/rimage/transform"
)

// DefaultCaptureTimeout is how long a grab waits for the device when no timeout is configured.
const DefaultCaptureTimeout = time.Second

// Config configures a DeviceGrabber.
type Config struct {
	Device device.Config
	// CaptureTimeout bounds each grab. Zero means DefaultCaptureTimeout; a negative value waits
	// forever.
	CaptureTimeout time.Duration
	// Registration is the initial SetRegistration value.
	Registration bool
	// DiscontinuityMM overrides registration.DefaultDiscontinuityMM when positive.
	DiscontinuityMM float64
}

// DefaultConfig returns the device defaults with a one second capture timeout and registration on.
func DefaultConfig() Config {
	return Config{
		Device:         device.DefaultConfig(),
		CaptureTimeout: DefaultCaptureTimeout,
		Registration:   true,
	}
}

type options struct {
	clock     clock.Clock
	allocator registration.Allocator
}

// Option configures NewDeviceGrabber.
type Option func(*options)

// WithClock sets the clock frames are timestamped with.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithAllocator sets where registration buffers come from.
func WithAllocator(a registration.Allocator) Option {
	return func(o *options) {
		o.allocator = a
	}
}

// DeviceGrabber grabs registered frames from a device.
type DeviceGrabber struct {
	mu     sync.Mutex
	logger logging.Logger
	clock  clock.Clock

	dev     *device.Device
	tr      *registration.Transformation
	cal     *transform.Calibration
	timeout time.Duration

	registration bool
	seq          uint64
	closed       bool
}

var _ Grabber = (*DeviceGrabber)(nil)

// NewDeviceGrabber opens, configures and starts the device, and prepares registration for its
// calibration. On failure everything acquired so far is released before the error is returned.
func NewDeviceGrabber(
	ctx context.Context,
	driver device.Driver,
	cfg Config,
	logger logging.Logger,
	opts ...Option,
) (_ *DeviceGrabber, err error) {
	_, span := trace.StartSpan(ctx, "grabber::NewDeviceGrabber")
	defer span.End()

	o := options{clock: clock.New()}
	for _, opt := range opts {
		opt(&o)
	}
	timeout := cfg.CaptureTimeout
	if timeout == 0 {
		timeout = DefaultCaptureTimeout
	}

	dev, err := device.Open(driver, cfg.Device.DeviceIndex, logger.Sublogger("device"))
	if err != nil {
		return nil, err
	}
	var tr *registration.Transformation
	defer func() {
		if err == nil {
			return
		}
		if tr != nil {
			if closeErr := tr.Close(); closeErr != nil {
				logger.Warnw("error closing transformation after failure", "error", closeErr)
			}
		}
		if closeErr := dev.Close(); closeErr != nil {
			logger.Warnw("error closing device after failure", "error", closeErr)
		}
	}()

	if err := dev.Configure(cfg.Device); err != nil {
		return nil, err
	}
	trOpts := []registration.Option{}
	if o.allocator != nil {
		trOpts = append(trOpts, registration.WithAllocator(o.allocator))
	}
	if cfg.DiscontinuityMM > 0 {
		trOpts = append(trOpts, registration.WithDiscontinuity(cfg.DiscontinuityMM))
	}
	cal := dev.Calibration()
	tr, err = registration.NewTransformation(cal, trOpts...)
	if err != nil {
		return nil, err
	}
	if err := dev.StartStreaming(); err != nil {
		return nil, err
	}

	logger.Infow("grabber ready",
		"serial", dev.SerialNumber(),
		"depth", cfg.Device.DepthMode,
		"color", cfg.Device.ColorResolution,
		"depth_hfov", cal.Depth.Intrinsics.HorizontalFOV(),
		"color_hfov", cal.Color.Intrinsics.HorizontalFOV(),
		"registration", cfg.Registration)
	return &DeviceGrabber{
		logger:       logger,
		clock:        o.clock,
		dev:          dev,
		tr:           tr,
		cal:          cal.Clone(),
		timeout:      timeout,
		registration: cfg.Registration,
	}, nil
}

// Grab acquires a capture and registers it. Timeouts and failed captures are returned without
// affecting the device; the next Grab tries again.
func (g *DeviceGrabber) Grab(ctx context.Context) (frame *Frame, err error) {
	ctx, span := trace.StartSpan(ctx, "grabber::Grab")
	defer span.End()
	defer func() {
		if err != nil {
			span.SetStatus(trace.Status{Code: trace.StatusCodeUnknown, Message: err.Error()})
		}
	}()

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil, ErrClosed
	}

	capture, err := g.dev.AcquireCapture(g.timeout)
	if err != nil {
		g.logger.Debugw("grab failed", "seq", g.seq, "error", err)
		return nil, err
	}
	defer capture.Release()

	depth, err := capture.Depth()
	if err != nil {
		return nil, err
	}
	color, err := capture.Color()
	if err != nil {
		return nil, err
	}

	var regOpts []registration.RegisterOption
	if g.registration {
		regOpts = append(regOpts, registration.WithRegisteredDepth())
	}
	result, err := registration.Register(ctx, g.tr, depth, color, regOpts...)
	if err != nil {
		g.logger.Warnw("registration failed", "seq", g.seq, "error", err)
		return nil, errors.Wrapf(err, "frame %d", g.seq)
	}

	frame = &Frame{
		ID:              uuid.New(),
		Seq:             g.seq,
		Timestamp:       g.clock.Now(),
		DeviceTimestamp: capture.DeviceTimestamp(),
		Depth:           depth,
		Color:           color,
		Cloud:           result.Cloud,
	}
	if g.registration {
		frame.Depth = result.Depth
		frame.Registered = true
	}
	g.seq++
	span.AddAttributes(trace.Int64Attribute("seq", int64(frame.Seq)))
	return frame, nil
}

// SetRegistration always succeeds on a device grabber.
func (g *DeviceGrabber) SetRegistration(enabled bool) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.registration = enabled
	return true
}

// Intrinsics returns the color camera's intrinsics when registration is on and the depth camera's
// otherwise.
func (g *DeviceGrabber) Intrinsics() transform.PinholeCameraIntrinsics {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.registration {
		return g.cal.Color.Intrinsics
	}
	return g.cal.Depth.Intrinsics
}

// Calibration returns a copy of the device calibration.
func (g *DeviceGrabber) Calibration() *transform.Calibration {
	return g.cal.Clone()
}

// Device returns the underlying device.
func (g *DeviceGrabber) Device() *device.Device {
	return g.dev
}

// Close releases the transformation then the device. Later calls do nothing.
func (g *DeviceGrabber) Close(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil
	}
	g.closed = true
	err := multierr.Combine(g.tr.Close(), g.dev.Close())
	g.logger.Infow("grabber closed", "frames", g.seq)
	return err
}
