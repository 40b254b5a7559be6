package device

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"go.viam.com/rgbdgrab/rimage"
)

// Capture is one acquisition: a depth map and a color image taken together. The images are
// copies owned by Go; the driver capture is held until the capture is released, which the device
// does when the next capture is acquired or the device closes.
type Capture struct {
	raw   RawCapture
	depth *rimage.DepthMap
	color *rimage.Image

	depthTimestamp time.Duration
	colorTimestamp time.Duration

	mu       sync.Mutex
	released bool
}

func newCapture(raw RawCapture, depthMode DepthMode, colorResolution ColorResolution) (*Capture, error) {
	c := &Capture{raw: raw}
	if img := raw.Depth(); img != nil {
		w, h := depthMode.Dimensions()
		if img.Width != w || img.Height != h {
			return nil, errors.Wrapf(ErrAcquisitionFailed, "depth image is %dx%d, expected %dx%d for %v",
				img.Width, img.Height, w, h, depthMode)
		}
		dm, err := rimage.NewDepthMapFromBytes(img.Width, img.Height, img.Stride, img.Buffer)
		if err != nil {
			return nil, errors.Wrap(ErrAcquisitionFailed, err.Error())
		}
		c.depth, c.depthTimestamp = dm, img.Timestamp
	}
	if img := raw.Color(); img != nil {
		w, h := colorResolution.Dimensions()
		if img.Width != w || img.Height != h {
			return nil, errors.Wrapf(ErrAcquisitionFailed, "color image is %dx%d, expected %dx%d for %v",
				img.Width, img.Height, w, h, colorResolution)
		}
		ci, err := rimage.NewImageFromBytes(img.Width, img.Height, img.Stride, img.Buffer)
		if err != nil {
			return nil, errors.Wrap(ErrAcquisitionFailed, err.Error())
		}
		c.color, c.colorTimestamp = ci, img.Timestamp
	}
	return c, nil
}

// Complete reports whether the capture holds both images.
func (c *Capture) Complete() bool {
	return c.depth != nil && c.color != nil
}

// Depth returns the depth map.
func (c *Capture) Depth() (*rimage.DepthMap, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return nil, errors.Wrap(ErrAcquisitionFailed, "capture was released")
	}
	if c.depth == nil {
		return nil, errors.Wrap(ErrAcquisitionFailed, "capture has no depth image")
	}
	return c.depth, nil
}

// Color returns the color image.
func (c *Capture) Color() (*rimage.Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return nil, errors.Wrap(ErrAcquisitionFailed, "capture was released")
	}
	if c.color == nil {
		return nil, errors.Wrap(ErrAcquisitionFailed, "capture has no color image")
	}
	return c.color, nil
}

// DeviceTimestamp is the device time of the depth image, or of the color image when there is no
// depth.
func (c *Capture) DeviceTimestamp() time.Duration {
	if c.depth != nil {
		return c.depthTimestamp
	}
	return c.colorTimestamp
}

// Release gives the driver capture back. It is safe to call more than once.
func (c *Capture) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return
	}
	c.released = true
	c.raw.Release()
}
