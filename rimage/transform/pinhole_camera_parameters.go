// Package transform holds the camera geometry needed to register a depth camera against a color
// camera: pinhole intrinsics, lens distortion, extrinsics and per-pixel ray tables.
package transform

import (
	"fmt"
	"math"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
)

// ErrNoIntrinsics is when a camera does not have intrinsics parameters or other parameters.
var ErrNoIntrinsics = errors.New("camera intrinsic parameters are not available")

// NewNoIntrinsicsError is used when the intriniscs are not defined.
func NewNoIntrinsicsError(msg string) error {
	return errors.Wrap(ErrNoIntrinsics, msg)
}

// PinholeCameraIntrinsics holds the parameters necessary to do a perspective projection of a 3D scene to the 2D plane.
// Pixel centers sit on integer coordinates.
type PinholeCameraIntrinsics struct {
	Width  int     `json:"width_px"`
	Height int     `json:"height_px"`
	Fx     float64 `json:"fx"`
	Fy     float64 `json:"fy"`
	Ppx    float64 `json:"ppx"`
	Ppy    float64 `json:"ppy"`
}

// CheckValid checks if the fields for PinholeCameraIntrinsics have valid inputs.
func (params *PinholeCameraIntrinsics) CheckValid() error {
	if params == nil {
		return NewNoIntrinsicsError("Intrinsics do not exist")
	}
	if params.Width <= 0 || params.Height <= 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid size (%#v, %#v)", params.Width, params.Height))
	}
	if params.Fx <= 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid focal length Fx = %#v", params.Fx))
	}
	if params.Fy <= 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid focal length Fy = %#v", params.Fy))
	}
	if params.Ppx < 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid principal X point Ppx = %#v", params.Ppx))
	}
	if params.Ppy < 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid principal Y point Ppy = %#v", params.Ppy))
	}
	return nil
}

// NormalizedToPixel maps a point on the z=1 plane to pixel coordinates.
func (params *PinholeCameraIntrinsics) NormalizedToPixel(p r2.Point) r2.Point {
	return r2.Point{X: p.X*params.Fx + params.Ppx, Y: p.Y*params.Fy + params.Ppy}
}

// PixelToNormalized maps pixel coordinates to the z=1 plane.
func (params *PinholeCameraIntrinsics) PixelToNormalized(p r2.Point) r2.Point {
	return r2.Point{X: (p.X - params.Ppx) / params.Fx, Y: (p.Y - params.Ppy) / params.Fy}
}

// Scaled returns intrinsics for the same lens at another resolution.
func (params *PinholeCameraIntrinsics) Scaled(width, height int) PinholeCameraIntrinsics {
	sx := float64(width) / float64(params.Width)
	sy := float64(height) / float64(params.Height)
	return PinholeCameraIntrinsics{
		Width:  width,
		Height: height,
		Fx:     params.Fx * sx,
		Fy:     params.Fy * sy,
		Ppx:    (params.Ppx+0.5)*sx - 0.5,
		Ppy:    (params.Ppy+0.5)*sy - 0.5,
	}
}

// HorizontalFOV returns the horizontal field of view in degrees.
func (params *PinholeCameraIntrinsics) HorizontalFOV() float64 {
	return 2 * math.Atan(float64(params.Width)/(2*params.Fx)) * 180 / math.Pi
}
