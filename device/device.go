// Package device manages the lifecycle of one RGB-D camera: claiming it, reading its calibration
// for a configuration, streaming and acquiring captures. Drivers plug in through Driver.
package device

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"go.viam.com/rgbdgrab/logging"
	"go.viam.com/rgbdgrab/rimage/transform"
)

// State is where a Device is in its lifecycle.
type State int

// A device moves forward through these states; any failure or Close moves it to StateClosed.
const (
	StateUninitialized State = iota
	StateOpened
	StateConfigured
	StateStreaming
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateOpened:
		return "opened"
	case StateConfigured:
		return "configured"
	case StateStreaming:
		return "streaming"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Device is an exclusively owned camera. Its methods are safe to call from multiple goroutines but
// acquisitions are serialized.
type Device struct {
	mu     sync.Mutex
	logger logging.Logger

	session Session
	index   int
	serial  string

	state       State
	cfg         Config
	calibration *transform.Calibration
	current     *Capture

	resources resourceStack
}

// Open claims the device at index. The returned device is in StateOpened.
func Open(driver Driver, index int, logger logging.Logger) (*Device, error) {
	count := driver.InstalledCount()
	if count == 0 {
		return nil, ErrNoDeviceFound
	}
	if index < 0 || index >= count {
		return nil, errors.Wrapf(ErrNoDeviceFound, "no device at index %d, %d installed", index, count)
	}
	session, err := driver.Open(index)
	if err != nil {
		return nil, errors.Wrapf(ErrOpenFailed, "device %d: %v", index, err)
	}
	d := &Device{
		logger:  logger,
		session: session,
		index:   index,
		state:   StateOpened,
	}
	d.resources.push("session", session.Close)

	serial, err := session.SerialNumber()
	if err != nil {
		err = errors.Wrapf(ErrOpenFailed, "reading serial number: %v", err)
		d.closeWithError(err)
		return nil, err
	}
	d.serial = serial
	d.logger.Infow("opened depth camera", "index", index, "serial", serial)
	return d, nil
}

// closeWithError tears down after a failure. The failure is what the caller reports, so release
// errors are only logged.
func (d *Device) closeWithError(cause error) {
	if err := d.Close(); err != nil {
		d.logger.Warnw("error closing device after failure", "cause", cause, "error", err)
	}
}

// SerialNumber returns the device serial number.
func (d *Device) SerialNumber() string {
	return d.serial
}

// State returns the current lifecycle state.
func (d *Device) State() State {
	if d == nil {
		return StateUninitialized
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Config returns the configuration the device was configured with.
func (d *Device) Config() Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg
}

// Calibration returns the calibration read at configure time, or nil before that. It must not be
// modified.
func (d *Device) Calibration() *transform.Calibration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calibration
}

// Configure validates cfg and reads the calibration for its modes. It may be called again until
// streaming starts. A failed call discards any earlier configuration and leaves the device opened.
func (d *Device) Configure(cfg Config) (err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch d.state {
	case StateOpened, StateConfigured:
	case StateClosed:
		return ErrClosed
	default:
		return errors.Errorf("cannot configure a %v device", d.state)
	}
	defer func() {
		if err != nil {
			d.cfg = Config{}
			d.calibration = nil
			d.state = StateOpened
		}
	}()
	if err := cfg.Validate(); err != nil {
		return err
	}

	cal, err := d.session.Calibration(cfg.DepthMode, cfg.ColorResolution)
	if err != nil {
		return errors.Wrapf(ErrCalibrationUnavailable, "depth mode %v, color resolution %v: %v",
			cfg.DepthMode, cfg.ColorResolution, err)
	}
	if err := cal.CheckValid(); err != nil {
		return errors.Wrapf(ErrCalibrationUnavailable, "device returned an invalid calibration: %v", err)
	}
	if w, h := cfg.DepthMode.Dimensions(); cal.Depth.Intrinsics.Width != w || cal.Depth.Intrinsics.Height != h {
		return errors.Wrapf(ErrCalibrationUnavailable, "depth calibration is %dx%d, expected %dx%d",
			cal.Depth.Intrinsics.Width, cal.Depth.Intrinsics.Height, w, h)
	}
	if w, h := cfg.ColorResolution.Dimensions(); cal.Color.Intrinsics.Width != w || cal.Color.Intrinsics.Height != h {
		return errors.Wrapf(ErrCalibrationUnavailable, "color calibration is %dx%d, expected %dx%d",
			cal.Color.Intrinsics.Width, cal.Color.Intrinsics.Height, w, h)
	}

	d.cfg = cfg
	d.calibration = cal.Clone()
	d.state = StateConfigured
	d.logger.Infow("configured depth camera",
		"depth_mode", cfg.DepthMode,
		"color_resolution", cfg.ColorResolution,
		"fps", cfg.FrameRate.Hz(),
		"synchronized", cfg.SynchronizedImagesOnly)
	return nil
}

// StartStreaming starts both cameras.
func (d *Device) StartStreaming() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch d.state {
	case StateConfigured:
	case StateClosed:
		return ErrClosed
	default:
		return errors.Wrapf(ErrStreamStartFailed, "device is %v, not configured", d.state)
	}
	if err := d.cfg.CheckStreamable(); err != nil {
		return errors.Wrap(ErrStreamStartFailed, err.Error())
	}
	if err := d.session.StartCameras(d.cfg); err != nil {
		return errors.Wrap(ErrStreamStartFailed, err.Error())
	}
	d.resources.push("cameras", d.session.StopCameras)
	d.state = StateStreaming
	d.logger.Info("started streaming")
	return nil
}

// AcquireCapture waits up to timeout for the next capture. The previous capture is released
// first, so at most one capture is outstanding. Timeouts and failures leave the device streaming.
func (d *Device) AcquireCapture(timeout time.Duration) (*Capture, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch d.state {
	case StateStreaming:
	case StateClosed:
		return nil, ErrClosed
	default:
		return nil, errors.Wrapf(ErrNotStreaming, "device is %v", d.state)
	}
	d.releaseCurrent()

	raw, result, err := d.session.GetCapture(timeout)
	switch result {
	case WaitSucceeded:
	case WaitTimeout:
		return nil, errors.Wrapf(ErrTimeout, "after %v", timeout)
	default:
		if err == nil {
			err = errors.New("driver reported failure")
		}
		return nil, errors.Wrap(ErrAcquisitionFailed, err.Error())
	}
	if raw == nil {
		return nil, errors.Wrap(ErrAcquisitionFailed, "driver returned no capture")
	}

	capture, err := newCapture(raw, d.cfg.DepthMode, d.cfg.ColorResolution)
	if err != nil {
		raw.Release()
		return nil, err
	}
	if d.cfg.SynchronizedImagesOnly && !capture.Complete() {
		capture.Release()
		return nil, errors.Wrap(ErrAcquisitionFailed, "capture is missing an image")
	}
	d.current = capture
	return capture, nil
}

func (d *Device) releaseCurrent() {
	if d.current != nil {
		d.current.Release()
		d.current = nil
	}
}

// Close releases the current capture, stops streaming and closes the session, in that order. It is
// idempotent and safe on a nil or partially initialized device.
func (d *Device) Close() error {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == StateClosed {
		return nil
	}
	d.releaseCurrent()
	err := d.resources.releaseAll(d.logger)
	d.state = StateClosed
	d.calibration = nil
	d.logger.Infow("closed depth camera", "serial", d.serial)
	return err
}
