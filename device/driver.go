package device

import (
	"time"

	"go.viam.com/rgbdgrab/rimage/transform"
)

// WaitResult is the outcome of waiting for a capture.
type WaitResult int

const (
	// WaitSucceeded means a capture was returned.
	WaitSucceeded WaitResult = iota
	// WaitFailed means the driver failed.
	WaitFailed
	// WaitTimeout means nothing arrived in time.
	WaitTimeout
)

func (w WaitResult) String() string {
	switch w {
	case WaitSucceeded:
		return "succeeded"
	case WaitFailed:
		return "failed"
	case WaitTimeout:
		return "timeout"
	}
	return "unknown"
}

// Driver enumerates and opens depth cameras.
type Driver interface {
	// InstalledCount returns the number of attached devices.
	InstalledCount() int
	// Open claims exclusive access to the device at index.
	Open(index int) (Session, error)
}

// Session is an open device. Methods are not called concurrently.
type Session interface {
	SerialNumber() (string, error)
	// Calibration returns the calibration of both cameras for the given modes.
	Calibration(depthMode DepthMode, colorResolution ColorResolution) (*transform.Calibration, error)
	StartCameras(cfg Config) error
	StopCameras() error
	// GetCapture blocks up to timeout for the next capture. A capture is only returned with
	// WaitSucceeded; the error, if any, describes a failure.
	GetCapture(timeout time.Duration) (RawCapture, WaitResult, error)
	Close() error
}

// RawImage is an image owned by the driver. Buffer is only valid until the capture that holds it
// is released.
type RawImage struct {
	Width     int
	Height    int
	Stride    int
	Buffer    []byte
	Timestamp time.Duration
}

// RawCapture is one acquisition owned by the driver.
type RawCapture interface {
	// Depth returns the DEPTH16 image, or nil if the capture has none.
	Depth() *RawImage
	// Color returns the BGRA32 image, or nil if the capture has none.
	Color() *RawImage
	// Release gives the capture back to the driver.
	Release()
}
