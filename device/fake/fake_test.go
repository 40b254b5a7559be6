package fake

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/rgbdgrab/device"
)

func TestNewCalibration(t *testing.T) {
	for _, mode := range device.DepthModes() {
		for _, res := range device.ColorResolutions() {
			cal, err := NewCalibration(mode, res)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, cal.CheckValid(), test.ShouldBeNil)
			w, h := res.Dimensions()
			test.That(t, cal.Color.Intrinsics.Width, test.ShouldEqual, w)
			test.That(t, cal.Color.Intrinsics.Height, test.ShouldEqual, h)
			w, h = mode.Dimensions()
			test.That(t, cal.Depth.Intrinsics.Width, test.ShouldEqual, w)
			test.That(t, cal.Depth.Intrinsics.Height, test.ShouldEqual, h)
		}
	}
	// binned modes see through the same lens at half the resolution
	for binned, unbinned := range map[device.DepthMode]device.DepthMode{
		device.DepthModeNFOV2x2Binned: device.DepthModeNFOVUnbinned,
		device.DepthModeWFOV2x2Binned: device.DepthModeWFOVUnbinned,
	} {
		b, err := NewCalibration(binned, device.ColorResolution720P)
		test.That(t, err, test.ShouldBeNil)
		u, err := NewCalibration(unbinned, device.ColorResolution720P)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, b.Depth.Intrinsics.Fx, test.ShouldAlmostEqual, u.Depth.Intrinsics.Fx/2)
		test.That(t, b.Depth.Intrinsics.HorizontalFOV(), test.ShouldAlmostEqual, u.Depth.Intrinsics.HorizontalFOV(), 1e-9)
		test.That(t, b.Depth.Intrinsics.Ppx, test.ShouldAlmostEqual, float64(b.Depth.Intrinsics.Width)/2-0.5+1.25)
	}
	_, err := NewCalibration(device.DepthModeOff, device.ColorResolution720P)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = NewCalibration(device.DepthModeNFOVUnbinned, device.ColorResolutionOff)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestRenderScene(t *testing.T) {
	cal, err := NewCalibration(device.DepthModeNFOV2x2Binned, device.ColorResolution720P)
	test.That(t, err, test.ShouldBeNil)
	depth := RenderDepth(&cal.Depth)
	test.That(t, depth.Width(), test.ShouldEqual, 320)
	test.That(t, depth.ValidCount(), test.ShouldEqual, 320*288)

	// the ball is in front of the wall at the center
	center := depth.GetDepth(160, 144)
	test.That(t, int(center), test.ShouldBeBetween, 940, 960)
	lo, hi := depth.MinMax()
	test.That(t, lo, test.ShouldEqual, center)
	test.That(t, int(hi), test.ShouldBeGreaterThan, 1500)

	color := RenderColor(1280, 720)
	b, g, r, a := color.GetBGRA(1279, 0)
	test.That(t, b, test.ShouldEqual, uint8(255))
	test.That(t, g, test.ShouldEqual, uint8(0))
	test.That(t, r, test.ShouldEqual, uint8(128))
	test.That(t, a, test.ShouldEqual, uint8(255))
}

func TestSessionAccounting(t *testing.T) {
	driver := NewDriver(WithScript(EventFailure))
	s, err := driver.Open(0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, driver.Outstanding(), test.ShouldEqual, 1)

	_, result, err := s.GetCapture(time.Millisecond)
	test.That(t, result, test.ShouldEqual, device.WaitFailed)
	test.That(t, err, test.ShouldNotBeNil)

	test.That(t, s.StartCameras(device.DefaultConfig()), test.ShouldBeNil)
	test.That(t, s.StartCameras(device.DefaultConfig()), test.ShouldNotBeNil)
	test.That(t, driver.Outstanding(), test.ShouldEqual, 2)

	_, result, err = s.GetCapture(time.Millisecond)
	test.That(t, result, test.ShouldEqual, device.WaitFailed)
	test.That(t, err, test.ShouldNotBeNil)

	raw, result, err := s.GetCapture(time.Millisecond)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, result, test.ShouldEqual, device.WaitSucceeded)
	test.That(t, raw.Depth().Stride, test.ShouldEqual, 640)
	test.That(t, raw.Color().Stride, test.ShouldEqual, 1280*4)
	test.That(t, driver.Outstanding(), test.ShouldEqual, 3)
	raw.Release()
	raw.Release()
	test.That(t, driver.DoubleReleases(), test.ShouldEqual, 1)

	// closing a streaming session stops the cameras
	test.That(t, s.Close(), test.ShouldBeNil)
	test.That(t, driver.Outstanding(), test.ShouldEqual, 0)
	test.That(t, s.Close(), test.ShouldBeNil)
	test.That(t, driver.DoubleReleases(), test.ShouldEqual, 2)

	_, err = s.Calibration(device.DepthModeNFOV2x2Binned, device.ColorResolution720P)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestDriverOptions(t *testing.T) {
	driver := NewDriver(
		WithDeviceCount(3),
		WithDeviceInUse(1),
		WithStartError(errors.New("no bandwidth")),
		WithUnsupportedModes(device.DepthModeNFOVUnbinned, device.ColorResolution3072P),
	)
	test.That(t, driver.InstalledCount(), test.ShouldEqual, 3)
	_, err := driver.Open(1)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = driver.Open(3)
	test.That(t, err, test.ShouldNotBeNil)

	s, err := driver.Open(2)
	test.That(t, err, test.ShouldBeNil)
	defer s.Close()
	serial, err := s.SerialNumber()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, serial, test.ShouldEqual, SerialFor(2))
	test.That(t, serial, test.ShouldNotEqual, SerialFor(0))
	test.That(t, serial, test.ShouldHaveLength, 12)

	_, err = s.Calibration(device.DepthModeNFOVUnbinned, device.ColorResolution3072P)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = s.Calibration(device.DepthModeNFOVUnbinned, device.ColorResolution1536P)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, s.StartCameras(device.DefaultConfig()), test.ShouldNotBeNil)
	test.That(t, s.StopCameras(), test.ShouldBeNil)
	test.That(t, driver.DoubleReleases(), test.ShouldEqual, 1)

	test.That(t, EventDepthOnly.String(), test.ShouldEqual, "depth_only")
}
