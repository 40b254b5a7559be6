package grabber_test

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/rgbdgrab/device"
	"go.viam.com/rgbdgrab/device/fake"
	"go.viam.com/rgbdgrab/grabber"
	"go.viam.com/rgbdgrab/logging"
	"go.viam.com/rgbdgrab/pointcloud"
	"go.viam.com/rgbdgrab/registration"
	"go.viam.com/rgbdgrab/rimage"
)

func newGrabber(t *testing.T, driver *fake.Driver, cfg grabber.Config, opts ...grabber.Option) *grabber.DeviceGrabber {
	t.Helper()
	g, err := grabber.NewDeviceGrabber(context.Background(), driver, cfg, logging.NewTestLogger(t), opts...)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, g.Device().State(), test.ShouldEqual, device.StateStreaming)
	return g
}

// checkRegistered checks a registered depth pixel has data exactly where the cloud has a point.
func checkRegistered(t *testing.T, depth *rimage.DepthMap, cloud *pointcloud.Organized) {
	t.Helper()
	test.That(t, depth.Width(), test.ShouldEqual, cloud.Width())
	test.That(t, depth.Height(), test.ShouldEqual, cloud.Height())
	mismatches := 0
	cloud.Iterate(func(x, y int, p r3.Vector) bool {
		_, valid := cloud.At(x, y)
		if valid != (depth.GetDepth(x, y) > 0) {
			mismatches++
		}
		return true
	})
	test.That(t, mismatches, test.ShouldEqual, 0)
}

func TestGrabCloudMatchesColorResolution(t *testing.T) {
	type mode struct {
		depth device.DepthMode
		color device.ColorResolution
	}
	modes := []mode{
		{device.DepthModeNFOV2x2Binned, device.ColorResolution1080P},
		{device.DepthModeNFOV2x2Binned, device.ColorResolution1536P},
	}
	for _, depthMode := range device.DepthModes() {
		modes = append(modes, mode{depthMode, device.ColorResolution720P})
	}

	for _, m := range modes {
		t.Run(m.depth.String()+"_"+m.color.String(), func(t *testing.T) {
			driver := fake.NewDriver()
			cfg := grabber.DefaultConfig()
			cfg.Device.DepthMode = m.depth
			cfg.Device.ColorResolution = m.color
			g := newGrabber(t, driver, cfg)
			defer func() {
				test.That(t, g.Close(context.Background()), test.ShouldBeNil)
				test.That(t, driver.Outstanding(), test.ShouldEqual, 0)
			}()

			colorW, colorH := m.color.Dimensions()
			depthW, depthH := m.depth.Dimensions()
			cal := g.Calibration()
			test.That(t, cal.Color.Intrinsics.Width, test.ShouldEqual, colorW)
			test.That(t, cal.Color.Intrinsics.Height, test.ShouldEqual, colorH)

			frame, err := g.Grab(context.Background())
			test.That(t, err, test.ShouldBeNil)
			test.That(t, frame.Registered, test.ShouldBeTrue)
			test.That(t, frame.Cloud.Width(), test.ShouldEqual, colorW)
			test.That(t, frame.Cloud.Height(), test.ShouldEqual, colorH)
			test.That(t, frame.Color.Width(), test.ShouldEqual, colorW)
			test.That(t, frame.Cloud.ValidCount(), test.ShouldBeGreaterThan, 0)
			test.That(t, g.Intrinsics(), test.ShouldResemble, cal.Color.Intrinsics)
			checkRegistered(t, frame.Depth, frame.Cloud)

			test.That(t, g.SetRegistration(false), test.ShouldBeTrue)
			test.That(t, g.Intrinsics(), test.ShouldResemble, cal.Depth.Intrinsics)
			frame, err = g.Grab(context.Background())
			test.That(t, err, test.ShouldBeNil)
			test.That(t, frame.Registered, test.ShouldBeFalse)
			test.That(t, frame.Cloud.Width(), test.ShouldEqual, colorW)
			test.That(t, frame.Cloud.Height(), test.ShouldEqual, colorH)
			test.That(t, frame.Depth.Width(), test.ShouldEqual, depthW)
			test.That(t, frame.Depth.Height(), test.ShouldEqual, depthH)
		})
	}
}

func TestGrabIdenticalFrames(t *testing.T) {
	driver := fake.NewDriver()
	mock := clock.NewMock()
	mock.Set(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	cfg := grabber.DefaultConfig()
	allocator := registration.NewPoolAllocator()
	g := newGrabber(t, driver, cfg, grabber.WithClock(mock), grabber.WithAllocator(allocator))
	defer g.Close(context.Background())

	var frames []*grabber.Frame
	for i := 0; i < 3; i++ {
		frame, err := g.Grab(context.Background())
		test.That(t, err, test.ShouldBeNil)
		test.That(t, frame.Seq, test.ShouldEqual, uint64(i))
		test.That(t, frame.Timestamp.Equal(mock.Now()), test.ShouldBeTrue)
		frames = append(frames, frame)
		mock.Add(time.Second)
	}
	test.That(t, allocator.Outstanding(), test.ShouldEqual, 0)
	test.That(t, frames[0].ID, test.ShouldNotEqual, frames[1].ID)
	for _, frame := range frames[1:] {
		test.That(t, frame.Cloud.Equal(frames[0].Cloud), test.ShouldBeTrue)
		test.That(t, frame.Depth.Equal(frames[0].Depth), test.ShouldBeTrue)
	}
	// frames are not reused by later grabs
	test.That(t, frames[0].Cloud != frames[1].Cloud, test.ShouldBeTrue)
}

func TestDefaultGrabIsRegistered(t *testing.T) {
	g := newGrabber(t, fake.NewDriver(), grabber.DefaultConfig())
	defer g.Close(context.Background())

	frame, err := g.Grab(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, frame.Registered, test.ShouldBeTrue)
	test.That(t, frame.Depth.Width(), test.ShouldEqual, frame.Color.Width())
	test.That(t, frame.Depth.Height(), test.ShouldEqual, frame.Color.Height())
	test.That(t, frame.Cloud.Width(), test.ShouldEqual, frame.Color.Width())
	test.That(t, g.Intrinsics(), test.ShouldResemble, g.Calibration().Color.Intrinsics)
}

func TestGrabberReadyLog(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)
	g, err := grabber.NewDeviceGrabber(context.Background(), fake.NewDriver(), grabber.DefaultConfig(), logger)
	test.That(t, err, test.ShouldBeNil)
	defer g.Close(context.Background())

	ready := logs.FilterMessage("grabber ready").All()
	test.That(t, ready, test.ShouldHaveLength, 1)
	fields := ready[0].ContextMap()
	cal := g.Calibration()
	test.That(t, fields["depth_hfov"], test.ShouldAlmostEqual, cal.Depth.Intrinsics.HorizontalFOV())
	test.That(t, fields["color_hfov"], test.ShouldBeBetween, 80., 100.)
	test.That(t, fields["registration"], test.ShouldEqual, true)
}

func TestGrabAfterTimeout(t *testing.T) {
	driver := fake.NewDriver()
	cfg := grabber.DefaultConfig()
	cfg.CaptureTimeout = 5 * time.Millisecond
	g := newGrabber(t, driver, cfg)
	defer g.Close(context.Background())

	driver.Script(fake.EventTimeout, fake.EventFailure, fake.EventDepthOnly)
	for _, expected := range []error{device.ErrTimeout, device.ErrAcquisitionFailed, device.ErrAcquisitionFailed} {
		frame, err := g.Grab(context.Background())
		test.That(t, frame, test.ShouldBeNil)
		test.That(t, errors.Is(err, expected), test.ShouldBeTrue)
		test.That(t, grabber.IsFrameError(err), test.ShouldBeTrue)
		test.That(t, g.Device().State(), test.ShouldEqual, device.StateStreaming)
	}

	frame, err := g.Grab(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, frame.Seq, test.ShouldEqual, uint64(0))
	test.That(t, driver.OutstandingCaptures(), test.ShouldEqual, 0)
}

type failingAllocator struct {
	*registration.PoolAllocator
	fail bool
}

func (fa *failingAllocator) AcquireCloud(w, h int) (*pointcloud.Organized, error) {
	if fa.fail {
		return nil, errors.New("out of clouds")
	}
	return fa.PoolAllocator.AcquireCloud(w, h)
}

func TestGrabRegistrationFailure(t *testing.T) {
	driver := fake.NewDriver()
	allocator := &failingAllocator{PoolAllocator: registration.NewPoolAllocator(), fail: true}
	g := newGrabber(t, driver, grabber.DefaultConfig(), grabber.WithAllocator(allocator))
	defer g.Close(context.Background())

	frame, err := g.Grab(context.Background())
	test.That(t, frame, test.ShouldBeNil)
	test.That(t, errors.Is(err, registration.ErrUnprojectionFailed), test.ShouldBeTrue)
	test.That(t, grabber.IsFrameError(err), test.ShouldBeTrue)
	test.That(t, grabber.FailureKind(err), test.ShouldEqual, "registration")
	test.That(t, allocator.Outstanding(), test.ShouldEqual, 0)
	test.That(t, g.Device().State(), test.ShouldEqual, device.StateStreaming)

	allocator.fail = false
	_, err = g.Grab(context.Background())
	test.That(t, err, test.ShouldBeNil)
}

func TestNewDeviceGrabberFailures(t *testing.T) {
	logger := logging.NewTestLogger(t)

	t.Run("no device", func(t *testing.T) {
		driver := fake.NewDriver(fake.WithDeviceCount(0))
		g, err := grabber.NewDeviceGrabber(context.Background(), driver, grabber.DefaultConfig(), logger)
		test.That(t, errors.Is(err, device.ErrNoDeviceFound), test.ShouldBeTrue)
		test.That(t, g, test.ShouldBeNil)
		test.That(t, driver.Opened(), test.ShouldEqual, 0)
	})

	t.Run("in use", func(t *testing.T) {
		driver := fake.NewDriver(fake.WithDeviceInUse(0))
		_, err := grabber.NewDeviceGrabber(context.Background(), driver, grabber.DefaultConfig(), logger)
		test.That(t, errors.Is(err, device.ErrOpenFailed), test.ShouldBeTrue)
	})

	t.Run("unsupported modes", func(t *testing.T) {
		driver := fake.NewDriver(fake.WithUnsupportedModes(device.DepthModeNFOV2x2Binned, device.ColorResolution720P))
		g, err := grabber.NewDeviceGrabber(context.Background(), driver, grabber.DefaultConfig(), logger)
		test.That(t, errors.Is(err, device.ErrCalibrationUnavailable), test.ShouldBeTrue)
		test.That(t, g, test.ShouldBeNil)
		test.That(t, driver.Opened(), test.ShouldEqual, 1)
		test.That(t, driver.Outstanding(), test.ShouldEqual, 0)
		test.That(t, driver.DoubleReleases(), test.ShouldEqual, 0)
	})

	t.Run("invalid config", func(t *testing.T) {
		driver := fake.NewDriver()
		cfg := grabber.DefaultConfig()
		cfg.Device.DepthMode = device.DepthModePassiveIR
		_, err := grabber.NewDeviceGrabber(context.Background(), driver, cfg, logger)
		test.That(t, errors.Is(err, device.ErrInvalidConfig), test.ShouldBeTrue)
		test.That(t, driver.Outstanding(), test.ShouldEqual, 0)
	})

	t.Run("start fails", func(t *testing.T) {
		driver := fake.NewDriver(fake.WithStartError(errors.New("usb bandwidth")))
		_, err := grabber.NewDeviceGrabber(context.Background(), driver, grabber.DefaultConfig(), logger)
		test.That(t, errors.Is(err, device.ErrStreamStartFailed), test.ShouldBeTrue)
		test.That(t, driver.Outstanding(), test.ShouldEqual, 0)
		test.That(t, driver.DoubleReleases(), test.ShouldEqual, 0)
		test.That(t, driver.Opened(), test.ShouldEqual, 1)
	})
}

func TestDeviceGrabberClose(t *testing.T) {
	for _, closes := range []int{1, 2, 5} {
		driver := fake.NewDriver()
		g := newGrabber(t, driver, grabber.DefaultConfig())
		_, err := g.Grab(context.Background())
		test.That(t, err, test.ShouldBeNil)

		for i := 0; i < closes; i++ {
			test.That(t, g.Close(context.Background()), test.ShouldBeNil)
		}
		test.That(t, g.Device().State(), test.ShouldEqual, device.StateClosed)
		test.That(t, driver.Outstanding(), test.ShouldEqual, 0)
		test.That(t, driver.DoubleReleases(), test.ShouldEqual, 0)

		frame, err := g.Grab(context.Background())
		test.That(t, frame, test.ShouldBeNil)
		test.That(t, err, test.ShouldBeError, grabber.ErrClosed)
		test.That(t, grabber.IsFrameError(err), test.ShouldBeFalse)
	}
}

func TestIsFrameError(t *testing.T) {
	test.That(t, grabber.IsFrameError(nil), test.ShouldBeFalse)
	test.That(t, grabber.IsFrameError(errors.Wrap(device.ErrTimeout, "x")), test.ShouldBeTrue)
	test.That(t, grabber.IsFrameError(registration.ErrReprojectionFailed), test.ShouldBeTrue)
	test.That(t, grabber.IsFrameError(device.ErrClosed), test.ShouldBeFalse)
	test.That(t, grabber.IsFrameError(device.ErrNoDeviceFound), test.ShouldBeFalse)

	test.That(t, grabber.FailureKind(device.ErrTimeout), test.ShouldEqual, "timeout")
	test.That(t, grabber.FailureKind(device.ErrAcquisitionFailed), test.ShouldEqual, "acquisition")
	test.That(t, grabber.FailureKind(registration.ErrTransformCreateFailed), test.ShouldEqual, "registration")
	test.That(t, grabber.FailureKind(errors.New("disk full")), test.ShouldEqual, "other")
}
