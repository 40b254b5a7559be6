// Package fake implements a device.Driver backed by a synthetic camera. It renders a fixed scene,
// can be scripted to time out or fail, and accounts for every handle it gives out so tests can
// check nothing leaks or is released twice.
package fake

import (
	"fmt"
	"strings"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"go.viam.com/rgbdgrab/device"
	"go.viam.com/rgbdgrab/rimage/transform"
)

// Event is what the next call to GetCapture does.
type Event int

const (
	// EventFrame delivers a complete capture.
	EventFrame Event = iota
	// EventTimeout waits for the full timeout and times out.
	EventTimeout
	// EventFailure reports a driver failure.
	EventFailure
	// EventDepthOnly delivers a capture without a color image.
	EventDepthOnly
	// EventColorOnly delivers a capture without a depth image.
	EventColorOnly
)

func (e Event) String() string {
	switch e {
	case EventFrame:
		return "frame"
	case EventTimeout:
		return "timeout"
	case EventFailure:
		return "failure"
	case EventDepthOnly:
		return "depth_only"
	case EventColorOnly:
		return "color_only"
	}
	return "unknown"
}

type modePair struct {
	depth device.DepthMode
	color device.ColorResolution
}

// Driver is a synthetic device.Driver.
type Driver struct {
	mu sync.Mutex

	count           int
	inUse           map[int]bool
	unsupported     map[modePair]bool
	startErr        error
	serialErr       error
	calibrationFile string
	clock           clock.Clock
	pacing          bool
	script          []Event

	sessions       int
	cameras        int
	captures       int
	doubleReleases int
	opened         int
}

// Option configures a Driver.
type Option func(*Driver)

// WithDeviceCount sets how many devices are attached. The default is one.
func WithDeviceCount(n int) Option {
	return func(d *Driver) {
		d.count = n
	}
}

// WithDeviceInUse makes opening the device at index fail as if another process held it.
func WithDeviceInUse(index int) Option {
	return func(d *Driver) {
		d.inUse[index] = true
	}
}

// WithUnsupportedModes makes calibration for the pair unavailable.
func WithUnsupportedModes(depthMode device.DepthMode, colorResolution device.ColorResolution) Option {
	return func(d *Driver) {
		d.unsupported[modePair{depthMode, colorResolution}] = true
	}
}

// WithStartError makes StartCameras fail with err.
func WithStartError(err error) Option {
	return func(d *Driver) {
		d.startErr = err
	}
}

// WithSerialError makes reading the serial number fail with err.
func WithSerialError(err error) Option {
	return func(d *Driver) {
		d.serialErr = err
	}
}

// WithCalibrationFile serves the calibration in a JSON file instead of a generated one. It is
// only returned for the modes whose resolutions it matches.
func WithCalibrationFile(path string) Option {
	return func(d *Driver) {
		d.calibrationFile = path
	}
}

// WithClock sets the clock used for timestamps, timeouts and pacing.
func WithClock(c clock.Clock) Option {
	return func(d *Driver) {
		d.clock = c
	}
}

// WithPacing delivers frames at the configured frame rate instead of as fast as they are asked for.
func WithPacing() Option {
	return func(d *Driver) {
		d.pacing = true
	}
}

// WithScript queues events to play before regular frames resume.
func WithScript(events ...Event) Option {
	return func(d *Driver) {
		d.script = append(d.script, events...)
	}
}

// NewDriver returns a driver with one attached device.
func NewDriver(opts ...Option) *Driver {
	d := &Driver{
		count:       1,
		inUse:       map[int]bool{},
		unsupported: map[modePair]bool{},
		clock:       clock.New(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// InstalledCount returns the number of attached devices.
func (d *Driver) InstalledCount() int {
	return d.count
}

// SerialFor returns the serial number of the device at index.
func SerialFor(index int) string {
	id := uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("fake-rgbd-%d", index)))
	return strings.ReplaceAll(id.String(), "-", "")[:12]
}

// Open claims the device at index.
func (d *Driver) Open(index int) (device.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if index < 0 || index >= d.count {
		return nil, errors.Errorf("no device at index %d", index)
	}
	if d.inUse[index] {
		return nil, errors.Errorf("device %d is in use", index)
	}
	d.inUse[index] = true
	d.sessions++
	d.opened++
	return &session{driver: d, index: index, start: d.clock.Now()}, nil
}

// Script queues events to play on the next captures.
func (d *Driver) Script(events ...Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.script = append(d.script, events...)
}

func (d *Driver) nextEvent() Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.script) == 0 {
		return EventFrame
	}
	e := d.script[0]
	d.script = d.script[1:]
	return e
}

// Outstanding returns how many sessions, running cameras and captures have not been released.
func (d *Driver) Outstanding() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sessions + d.cameras + d.captures
}

// OutstandingCaptures returns how many captures have not been released.
func (d *Driver) OutstandingCaptures() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.captures
}

// DoubleReleases counts releases of handles that were already released.
func (d *Driver) DoubleReleases() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doubleReleases
}

// Opened counts sessions opened over the driver's life.
func (d *Driver) Opened() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opened
}

func (d *Driver) calibration(depthMode device.DepthMode, colorResolution device.ColorResolution) (*transform.Calibration, error) {
	d.mu.Lock()
	unsupported := d.unsupported[modePair{depthMode, colorResolution}]
	path := d.calibrationFile
	d.mu.Unlock()
	if unsupported {
		return nil, errors.Errorf("modes %v and %v are not supported together", depthMode, colorResolution)
	}
	if path == "" {
		return NewCalibration(depthMode, colorResolution)
	}
	cal, err := transform.NewCalibrationFromJSONFile(path)
	if err != nil {
		return nil, err
	}
	dw, dh := depthMode.Dimensions()
	cw, ch := colorResolution.Dimensions()
	if cal.Depth.Intrinsics.Width != dw || cal.Depth.Intrinsics.Height != dh ||
		cal.Color.Intrinsics.Width != cw || cal.Color.Intrinsics.Height != ch {
		return nil, errors.Errorf("calibration file %q does not cover %v and %v", path, depthMode, colorResolution)
	}
	return cal, nil
}

func (d *Driver) update(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn()
}

func (d *Driver) doubleRelease() {
	d.update(func() { d.doubleReleases++ })
}

var _ device.Driver = (*Driver)(nil)
