package fake

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/rgbdgrab/device"
	"go.viam.com/rgbdgrab/rimage/transform"
)

// Depth camera focal length in pixels for the unbinned modes. Binned modes are the unbinned
// intrinsics scaled down.
const depthFocalUnbinned = 504.

// colorFocalRatio is the color focal length as a fraction of the image width.
const colorFocalRatio = 0.4735

// NewCalibration returns a calibration shaped like a real device for the given modes: the depth
// camera sits 32mm to the side of the color camera and is tilted 6 degrees down.
func NewCalibration(depthMode device.DepthMode, colorResolution device.ColorResolution) (*transform.Calibration, error) {
	dw, dh := depthMode.Dimensions()
	if dw == 0 {
		return nil, errors.Errorf("no calibration for depth mode %v", depthMode)
	}
	cw, ch := colorResolution.Dimensions()
	if cw == 0 {
		return nil, errors.Errorf("no calibration for color resolution %v", colorResolution)
	}

	uw, uh := dw, dh
	switch depthMode {
	case device.DepthModeNFOV2x2Binned:
		uw, uh = device.DepthModeNFOVUnbinned.Dimensions()
	case device.DepthModeWFOV2x2Binned:
		uw, uh = device.DepthModeWFOVUnbinned.Dimensions()
	}
	unbinned := transform.PinholeCameraIntrinsics{
		Width:  uw,
		Height: uh,
		Fx:     depthFocalUnbinned,
		Fy:     depthFocalUnbinned,
		Ppx:    float64(uw)/2 - 0.5 + 2.5,
		Ppy:    float64(uh)/2 - 0.5 - 5,
	}
	depth := transform.CameraCalibration{Intrinsics: unbinned}
	if uw != dw {
		depth.Intrinsics = unbinned.Scaled(dw, dh)
	}
	switch depthMode {
	case device.DepthModeWFOV2x2Binned, device.DepthModeWFOVUnbinned, device.DepthModePassiveIR:
		depth.Distortion = &transform.BrownConrady{RadialK1: 0.02, RadialK2: -0.002}
		depth.MetricRadius = 1.5
	default:
		depth.Distortion = &transform.BrownConrady{RadialK1: 0.06, RadialK2: -0.02, TangentialP1: 0.0002, TangentialP2: -0.0001}
		depth.MetricRadius = 1.0
	}

	colorFocal := colorFocalRatio * float64(cw)
	if cw*3 == ch*4 {
		// 4:3 modes use the full sensor height
		colorFocal = colorFocalRatio * float64(ch) * 16 / 9
	}
	color := transform.CameraCalibration{
		Intrinsics: transform.PinholeCameraIntrinsics{
			Width:  cw,
			Height: ch,
			Fx:     colorFocal,
			Fy:     colorFocal,
			Ppx:    float64(cw)/2 - 0.5 - 1.5,
			Ppy:    float64(ch)/2 - 0.5 + 3,
		},
		Distortion: &transform.BrownConrady{RadialK1: 0.08, RadialK2: -0.06, RadialK3: 0.01, TangentialP1: 0.0005, TangentialP2: 0.0003},
	}

	return &transform.Calibration{
		Depth:        depth,
		Color:        color,
		DepthToColor: transform.NewExtrinsicsFromAxisAngle(r3.Vector{X: 1}, -6*math.Pi/180, r3.Vector{X: -32, Y: -2, Z: 4}),
	}, nil
}
