package device

import "github.com/pkg/errors"

// Errors fatal to bringing a device up.
var (
	// ErrNoDeviceFound is returned when no device is attached, or none at the requested index.
	ErrNoDeviceFound = errors.New("no depth camera found")
	// ErrOpenFailed is returned when a device exists but cannot be claimed.
	ErrOpenFailed = errors.New("failed to open depth camera")
	// ErrInvalidConfig is returned when a configuration names an unknown or unusable mode.
	ErrInvalidConfig = errors.New("invalid device configuration")
	// ErrCalibrationUnavailable is returned when calibration for the requested modes cannot be read.
	ErrCalibrationUnavailable = errors.New("calibration unavailable")
	// ErrStreamStartFailed is returned when the device refuses to start its cameras.
	ErrStreamStartFailed = errors.New("failed to start streaming")
)

// Errors of a single acquisition. The device keeps streaming after them.
var (
	// ErrTimeout is returned when no capture arrived in time.
	ErrTimeout = errors.New("timed out waiting for a capture")
	// ErrAcquisitionFailed is returned when the driver fails to produce a usable capture.
	ErrAcquisitionFailed = errors.New("capture acquisition failed")
)

// Errors from calling a method in the wrong state.
var (
	// ErrNotStreaming is returned when capturing from a device that is not streaming.
	ErrNotStreaming = errors.New("device is not streaming")
	// ErrClosed is returned when using a closed device.
	ErrClosed = errors.New("device is closed")
)
