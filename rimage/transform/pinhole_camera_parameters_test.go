package transform

import (
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"go.viam.com/test"
)

func TestPinholeCameraIntrinsicsCheckValid(t *testing.T) {
	var nilIntrinsics *PinholeCameraIntrinsics
	err := nilIntrinsics.CheckValid()
	test.That(t, errors.Is(err, ErrNoIntrinsics), test.ShouldBeTrue)

	good := &PinholeCameraIntrinsics{Width: 1280, Height: 720, Fx: 600, Fy: 600, Ppx: 640, Ppy: 360}
	test.That(t, good.CheckValid(), test.ShouldBeNil)

	for _, bad := range []PinholeCameraIntrinsics{
		{Width: 0, Height: 720, Fx: 600, Fy: 600},
		{Width: 1280, Height: 720, Fx: 0, Fy: 600},
		{Width: 1280, Height: 720, Fx: 600, Fy: -1},
		{Width: 1280, Height: 720, Fx: 600, Fy: 600, Ppx: -3},
		{Width: 1280, Height: 720, Fx: 600, Fy: 600, Ppy: -3},
	} {
		bad := bad
		err := bad.CheckValid()
		test.That(t, errors.Is(err, ErrNoIntrinsics), test.ShouldBeTrue)
	}
}

func TestNormalizedRoundTrip(t *testing.T) {
	params := &PinholeCameraIntrinsics{Width: 1280, Height: 720, Fx: 605.1, Fy: 604.8, Ppx: 638.2, Ppy: 366.4}
	n := params.PixelToNormalized(r2.Point{X: 10, Y: 20})
	test.That(t, n.X, test.ShouldAlmostEqual, (10-638.2)/605.1)
	back := params.NormalizedToPixel(n)
	test.That(t, back.X, test.ShouldAlmostEqual, 10.)
	test.That(t, back.Y, test.ShouldAlmostEqual, 20.)
}

func TestScaledIntrinsics(t *testing.T) {
	params := &PinholeCameraIntrinsics{Width: 640, Height: 576, Fx: 504, Fy: 504, Ppx: 319.5, Ppy: 287.5}
	half := params.Scaled(320, 288)
	test.That(t, half.Width, test.ShouldEqual, 320)
	test.That(t, half.Height, test.ShouldEqual, 288)
	test.That(t, half.Fx, test.ShouldAlmostEqual, 252.)
	test.That(t, half.Ppx, test.ShouldAlmostEqual, 159.5)
	test.That(t, half.Ppy, test.ShouldAlmostEqual, 143.5)
	test.That(t, half.HorizontalFOV(), test.ShouldAlmostEqual, params.HorizontalFOV(), 1e-9)
	test.That(t, params.HorizontalFOV(), test.ShouldAlmostEqual, 2*math.Atan(640./1008)*180/math.Pi)
}
