// Package grabber turns a streaming RGB-D device into a source of registered frames: each frame
// carries the color image, a depth map and an organized point cloud in the color camera's frame.
package grabber

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"go.viam.com/rgbdgrab/device"
	"go.viam.com/rgbdgrab/pointcloud"
	"go.viam.com/rgbdgrab/registration"
	"go.viam.com/rgbdgrab/rimage"
	"go.viam.com/rgbdgrab/rimage/transform"
)

// ErrClosed is returned by a grabber after Close.
var ErrClosed = errors.New("grabber is closed")

// A Grabber produces frames from some RGB-D source.
type Grabber interface {
	// Grab returns the next frame. A failed grab returns a nil frame.
	Grab(ctx context.Context) (*Frame, error)
	// SetRegistration chooses whether Frame.Depth is reprojected onto the color grid. It returns
	// whether the grabber supports registration at all.
	SetRegistration(enabled bool) bool
	// Intrinsics are those of the camera whose grid Frame.Depth is on.
	Intrinsics() transform.PinholeCameraIntrinsics
	Close(ctx context.Context) error
}

// Frame is one grabbed RGB-D frame. The grabber does not touch a frame after returning it.
type Frame struct {
	ID  uuid.UUID
	Seq uint64
	// Timestamp is when the grabber finished the frame.
	Timestamp time.Time
	// DeviceTimestamp is the depth exposure time on the device's clock.
	DeviceTimestamp time.Duration

	Depth *rimage.DepthMap
	Color *rimage.Image
	// Cloud has the color image's dimensions. Cells without data hold pointcloud.NoData.
	Cloud *pointcloud.Organized
	// Registered reports whether Depth is on the color grid.
	Registered bool
}

// IsFrameError reports whether err only spoiled one frame, so grabbing can go on.
func IsFrameError(err error) bool {
	if err == nil {
		return false
	}
	for _, target := range []error{
		device.ErrTimeout,
		device.ErrAcquisitionFailed,
		registration.ErrTransformCreateFailed,
		registration.ErrReprojectionFailed,
		registration.ErrUnprojectionFailed,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// FailureKind names the class of a per-frame error for counting.
func FailureKind(err error) string {
	switch {
	case errors.Is(err, device.ErrTimeout):
		return "timeout"
	case errors.Is(err, device.ErrAcquisitionFailed):
		return "acquisition"
	case errors.Is(err, registration.ErrTransformCreateFailed),
		errors.Is(err, registration.ErrReprojectionFailed),
		errors.Is(err, registration.ErrUnprojectionFailed):
		return "registration"
	default:
		return "other"
	}
}
