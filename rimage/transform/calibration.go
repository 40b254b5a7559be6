package transform

import (
	"encoding/json"
	"io"
	"math"
	"os"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/utils"
)

// CameraType selects one of the two sensors of an RGB-D device.
type CameraType int

const (
	// CameraDepth is the depth (time of flight / structured light) sensor.
	CameraDepth CameraType = iota
	// CameraColor is the RGB sensor.
	CameraColor
)

func (c CameraType) String() string {
	switch c {
	case CameraDepth:
		return "depth"
	case CameraColor:
		return "color"
	}
	return "unknown"
}

// CameraCalibration is the intrinsic model of one sensor.
type CameraCalibration struct {
	Intrinsics PinholeCameraIntrinsics `json:"intrinsic_parameters"`
	Distortion *BrownConrady           `json:"distortion_parameters,omitempty"`
	// MetricRadius bounds the normalized radius where the distortion model is trusted. Zero means
	// unbounded.
	MetricRadius float64 `json:"metric_radius,omitempty"`
}

// CheckValid checks the intrinsics and distortion.
func (cc *CameraCalibration) CheckValid() error {
	if err := cc.Intrinsics.CheckValid(); err != nil {
		return err
	}
	if err := cc.Distortion.CheckValid(); err != nil {
		return err
	}
	if cc.MetricRadius < 0 {
		return errors.Errorf("metric radius must not be negative, got %v", cc.MetricRadius)
	}
	return nil
}

func (cc *CameraCalibration) withinRadius(p r2.Point) bool {
	if cc.MetricRadius == 0 {
		return true
	}
	return p.X*p.X+p.Y*p.Y <= cc.MetricRadius*cc.MetricRadius
}

// Project maps a 3D point in this camera's frame to distorted pixel coordinates. The boolean is
// false when the point is behind the camera or outside the trusted distortion radius.
func (cc *CameraCalibration) Project(p r3.Vector) (r2.Point, bool) {
	if p.Z <= 0 {
		return r2.Point{}, false
	}
	n := r2.Point{X: p.X / p.Z, Y: p.Y / p.Z}
	if !cc.withinRadius(n) {
		return r2.Point{}, false
	}
	xd, yd := cc.Distortion.Transform(n.X, n.Y)
	return cc.Intrinsics.NormalizedToPixel(r2.Point{X: xd, Y: yd}), true
}

// Unproject maps distorted pixel coordinates to the undistorted ray on the z=1 plane.
func (cc *CameraCalibration) Unproject(px r2.Point) (r2.Point, bool) {
	d := cc.Intrinsics.PixelToNormalized(px)
	xu, yu, ok := cc.Distortion.Undistort(d.X, d.Y)
	if !ok || math.IsNaN(xu) || math.IsNaN(yu) {
		return r2.Point{}, false
	}
	n := r2.Point{X: xu, Y: yu}
	if !cc.withinRadius(n) {
		return r2.Point{}, false
	}
	return n, true
}

// Calibration is the full optical calibration of an RGB-D device for one (depth mode, color
// resolution) pair. It is read-only once created.
type Calibration struct {
	Depth        CameraCalibration `json:"depth"`
	Color        CameraCalibration `json:"color"`
	DepthToColor Extrinsics        `json:"depth_to_color"`
}

// CheckValid checks both cameras and the extrinsics.
func (c *Calibration) CheckValid() error {
	if c == nil {
		return NewNoIntrinsicsError("calibration does not exist")
	}
	if err := c.Depth.CheckValid(); err != nil {
		return errors.Wrap(err, "depth camera")
	}
	if err := c.Color.CheckValid(); err != nil {
		return errors.Wrap(err, "color camera")
	}
	if err := c.DepthToColor.CheckValid(); err != nil {
		return errors.Wrap(err, "depth to color extrinsics")
	}
	return nil
}

// Camera returns the calibration of one sensor.
func (c *Calibration) Camera(camera CameraType) (*CameraCalibration, error) {
	switch camera {
	case CameraDepth:
		return &c.Depth, nil
	case CameraColor:
		return &c.Color, nil
	}
	return nil, errors.Errorf("unknown camera type %d", camera)
}

// Clone returns a deep copy, so holders of the copy cannot mutate the original.
func (c *Calibration) Clone() *Calibration {
	out := *c
	if c.Depth.Distortion != nil {
		d := *c.Depth.Distortion
		out.Depth.Distortion = &d
	}
	if c.Color.Distortion != nil {
		d := *c.Color.Distortion
		out.Color.Distortion = &d
	}
	out.DepthToColor = Extrinsics{
		RotationMatrix:    append([]float64(nil), c.DepthToColor.RotationMatrix...),
		TranslationVector: append([]float64(nil), c.DepthToColor.TranslationVector...),
	}
	return &out
}

// NewCalibrationFromJSON parses and validates a calibration.
func NewCalibrationFromJSON(r io.Reader) (*Calibration, error) {
	byteValue, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "error reading JSON data")
	}
	cal := &Calibration{}
	if err := json.Unmarshal(byteValue, cal); err != nil {
		return nil, errors.Wrap(err, "error parsing JSON string")
	}
	if err := cal.CheckValid(); err != nil {
		return nil, err
	}
	return cal, nil
}

// NewCalibrationFromJSONFile takes in a file path to a JSON and turns it into a Calibration.
func NewCalibrationFromJSONFile(jsonPath string) (*Calibration, error) {
	//nolint:gosec
	jsonFile, err := os.Open(jsonPath)
	if err != nil {
		return nil, errors.Wrap(err, "error opening JSON file")
	}
	defer utils.UncheckedErrorFunc(jsonFile.Close)
	return NewCalibrationFromJSON(jsonFile)
}
