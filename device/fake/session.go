package fake

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"go.viam.com/rgbdgrab/device"
	"go.viam.com/rgbdgrab/rimage/transform"
)

type session struct {
	driver *Driver
	index  int
	start  time.Time

	mu        sync.Mutex
	closed    bool
	streaming bool
	period    time.Duration
	nextFrame time.Time

	depth       []byte
	depthWidth  int
	depthHeight int
	color       []byte
	colorWidth  int
	colorHeight int
}

func (s *session) SerialNumber() (string, error) {
	if s.driver.serialErr != nil {
		return "", s.driver.serialErr
	}
	return SerialFor(s.index), nil
}

func (s *session) Calibration(depthMode device.DepthMode, colorResolution device.ColorResolution) (*transform.Calibration, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, errors.New("session is closed")
	}
	return s.driver.calibration(depthMode, colorResolution)
}

func (s *session) StartCameras(cfg device.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("session is closed")
	}
	if s.streaming {
		return errors.New("cameras already started")
	}
	if s.driver.startErr != nil {
		return s.driver.startErr
	}
	cal, err := s.driver.calibration(cfg.DepthMode, cfg.ColorResolution)
	if err != nil {
		return err
	}
	depth := RenderDepth(&cal.Depth)
	color := RenderColor(cal.Color.Intrinsics.Width, cal.Color.Intrinsics.Height)
	s.depth, s.depthWidth, s.depthHeight = depth.Bytes(), depth.Width(), depth.Height()
	s.color, s.colorWidth, s.colorHeight = color.Pix(), color.Width(), color.Height()
	s.period = time.Second / time.Duration(cfg.FrameRate.Hz())
	s.nextFrame = s.driver.clock.Now()
	s.streaming = true
	s.driver.update(func() { s.driver.cameras++ })
	return nil
}

func (s *session) StopCameras() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopLocked()
}

func (s *session) stopLocked() error {
	if !s.streaming {
		s.driver.doubleRelease()
		return nil
	}
	s.streaming = false
	s.depth, s.color = nil, nil
	s.driver.update(func() { s.driver.cameras-- })
	return nil
}

func (s *session) wait(d time.Duration) {
	if d > 0 {
		<-s.driver.clock.After(d)
	}
}

func (s *session) GetCapture(timeout time.Duration) (device.RawCapture, device.WaitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.streaming {
		return nil, device.WaitFailed, errors.New("cameras are not started")
	}

	event := s.driver.nextEvent()
	switch event {
	case EventTimeout:
		s.wait(timeout)
		return nil, device.WaitTimeout, nil
	case EventFailure:
		return nil, device.WaitFailed, errors.New("synthetic device failure")
	case EventFrame, EventDepthOnly, EventColorOnly:
	}

	if s.driver.pacing {
		now := s.driver.clock.Now()
		if due := s.nextFrame.Sub(now); due > 0 {
			if due > timeout {
				s.wait(timeout)
				return nil, device.WaitTimeout, nil
			}
			s.wait(due)
		}
		s.nextFrame = s.nextFrame.Add(s.period)
		if now := s.driver.clock.Now(); s.nextFrame.Before(now) {
			s.nextFrame = now.Add(s.period)
		}
	}

	ts := s.driver.clock.Now().Sub(s.start)
	c := &capture{driver: s.driver}
	if event != EventColorOnly {
		c.depth = &device.RawImage{
			Width:     s.depthWidth,
			Height:    s.depthHeight,
			Stride:    s.depthWidth * 2,
			Buffer:    append([]byte(nil), s.depth...),
			Timestamp: ts,
		}
	}
	if event != EventDepthOnly {
		c.color = &device.RawImage{
			Width:     s.colorWidth,
			Height:    s.colorHeight,
			Stride:    s.colorWidth * 4,
			Buffer:    append([]byte(nil), s.color...),
			Timestamp: ts,
		}
	}
	s.driver.update(func() { s.driver.captures++ })
	return c, device.WaitSucceeded, nil
}

func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.driver.doubleRelease()
		return nil
	}
	if s.streaming {
		if err := s.stopLocked(); err != nil {
			return err
		}
	}
	s.closed = true
	s.driver.update(func() {
		s.driver.sessions--
		delete(s.driver.inUse, s.index)
	})
	return nil
}

type capture struct {
	driver *Driver
	depth  *device.RawImage
	color  *device.RawImage

	mu       sync.Mutex
	released bool
}

func (c *capture) Depth() *device.RawImage {
	return c.depth
}

func (c *capture) Color() *device.RawImage {
	return c.color
}

func (c *capture) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		c.driver.doubleRelease()
		return
	}
	c.released = true
	c.depth, c.color = nil, nil
	c.driver.update(func() { c.driver.captures-- })
}
