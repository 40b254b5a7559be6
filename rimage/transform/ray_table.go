package transform

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
)

// roundTripTolerance is how far (in pixels) a re-distorted ray may land from its pixel.
const roundTripTolerance = 0.01

// RayTable caches, for every pixel of one camera, the undistorted ray on the z=1 plane. A point at
// depth d along the ray of pixel (x, y) is (rx*d, ry*d, d). Pixels where the distortion model
// cannot be inverted are marked invalid.
type RayTable struct {
	width  int
	height int

	x     []float64
	y     []float64
	valid []bool
}

// NewRayTable computes the table of a camera.
func NewRayTable(cam *CameraCalibration) *RayTable {
	w, h := cam.Intrinsics.Width, cam.Intrinsics.Height
	table := &RayTable{
		width:  w,
		height: h,
		x:      make([]float64, w*h),
		y:      make([]float64, w*h),
		valid:  make([]bool, w*h),
	}
	for v := 0; v < h; v++ {
		for u := 0; u < w; u++ {
			px := r2.Point{X: float64(u), Y: float64(v)}
			ray, ok := cam.Unproject(px)
			if ok {
				back, inside := cam.Project(r3.Vector{X: ray.X, Y: ray.Y, Z: 1})
				ok = inside && math.Abs(back.X-px.X) < roundTripTolerance && math.Abs(back.Y-px.Y) < roundTripTolerance
			}
			i := v*w + u
			if ok {
				table.x[i], table.y[i], table.valid[i] = ray.X, ray.Y, true
			} else {
				table.x[i], table.y[i] = math.NaN(), math.NaN()
			}
		}
	}
	return table
}

// Width returns the width of the camera the table was made for.
func (rt *RayTable) Width() int {
	return rt.width
}

// Height returns the height of the camera the table was made for.
func (rt *RayTable) Height() int {
	return rt.height
}

// Ray returns the ray of pixel (u, v).
func (rt *RayTable) Ray(u, v int) (float64, float64, bool) {
	i := v*rt.width + u
	return rt.x[i], rt.y[i], rt.valid[i]
}

// Valid reports whether pixel (u, v) has a ray.
func (rt *RayTable) Valid(u, v int) bool {
	return rt.valid[v*rt.width+u]
}

// Unproject returns the 3D point seen at pixel (u, v) at depth d.
func (rt *RayTable) Unproject(u, v int, d float64) (r3.Vector, bool) {
	i := v*rt.width + u
	if !rt.valid[i] || d <= 0 {
		return r3.Vector{}, false
	}
	return r3.Vector{X: rt.x[i] * d, Y: rt.y[i] * d, Z: d}, true
}

// ValidCount returns the number of pixels with a ray.
func (rt *RayTable) ValidCount() int {
	n := 0
	for _, ok := range rt.valid {
		if ok {
			n++
		}
	}
	return n
}
