// Package registration maps depth measured by the depth camera into the color camera: the depth
// map is reprojected onto the color pixel grid and then unprojected into a point cloud expressed in
// the color camera's frame.
package registration

import (
	"math"
	"sync"

	"github.com/pkg/errors"

	"go.viam.com/rgbdgrab/pointcloud"
	"go.viam.com/rgbdgrab/rimage"
	"go.viam.com/rgbdgrab/rimage/transform"
	"go.viam.com/rgbdgrab/utils"
)

var (
	// ErrTransformCreateFailed is returned when the transformation or its intermediate buffer
	// cannot be created.
	ErrTransformCreateFailed = errors.New("transformation create failed")
	// ErrReprojectionFailed is returned when depth cannot be mapped onto the color grid.
	ErrReprojectionFailed = errors.New("depth to color reprojection failed")
	// ErrUnprojectionFailed is returned when the point cloud cannot be produced.
	ErrUnprojectionFailed = errors.New("depth to point cloud unprojection failed")
)

// DefaultDiscontinuityMM is the depth jump, at one metre, above which neighbouring depth pixels
// are treated as different surfaces and not joined.
const DefaultDiscontinuityMM = 100.

// rasterEpsilon lets pixels lying on a triangle edge or vertex be filled despite rounding.
const rasterEpsilon = 1e-6

type options struct {
	allocator     Allocator
	discontinuity float64
}

// Option configures a Transformation.
type Option func(*options)

// WithAllocator replaces the default pooled allocator.
func WithAllocator(a Allocator) Option {
	return func(o *options) {
		o.allocator = a
	}
}

// WithDiscontinuity sets the depth jump (mm at one metre) that separates surfaces.
func WithDiscontinuity(mm float64) Option {
	return func(o *options) {
		o.discontinuity = mm
	}
}

// Transformation holds everything derived from a calibration that registration needs. It is
// safe for concurrent use; Close waits for in-flight calls.
type Transformation struct {
	mu     sync.RWMutex
	closed bool

	cal           *transform.Calibration
	depthRays     *transform.RayTable
	colorRays     *transform.RayTable
	allocator     Allocator
	discontinuity float64

	scratch sync.Pool
}

// NewTransformation checks cal and precomputes the ray tables of both cameras. The calibration is
// borrowed and must not be modified while the transformation is in use.
func NewTransformation(cal *transform.Calibration, opts ...Option) (*Transformation, error) {
	o := options{discontinuity: DefaultDiscontinuityMM}
	for _, opt := range opts {
		opt(&o)
	}
	if err := cal.CheckValid(); err != nil {
		return nil, errors.Wrapf(ErrTransformCreateFailed, "invalid calibration: %v", err)
	}
	if o.discontinuity <= 0 || math.IsNaN(o.discontinuity) {
		return nil, errors.Wrapf(ErrTransformCreateFailed, "discontinuity must be positive, got %v", o.discontinuity)
	}
	if o.allocator == nil {
		o.allocator = NewPoolAllocator()
	}
	tr := &Transformation{
		cal:           cal,
		depthRays:     transform.NewRayTable(&cal.Depth),
		colorRays:     transform.NewRayTable(&cal.Color),
		allocator:     o.allocator,
		discontinuity: o.discontinuity,
	}
	n := cal.Depth.Intrinsics.Width * cal.Depth.Intrinsics.Height
	tr.scratch.New = func() any { return newProjection(n) }
	return tr, nil
}

// Calibration returns the calibration the transformation was built from.
func (tr *Transformation) Calibration() *transform.Calibration {
	return tr.cal
}

// Allocator returns the allocator used for registration buffers.
func (tr *Transformation) Allocator() Allocator {
	return tr.allocator
}

// Close drops the ray tables. Later calls fail; closing twice is fine.
func (tr *Transformation) Close() error {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.closed = true
	tr.depthRays = nil
	tr.colorRays = nil
	return nil
}

// projection is where every depth pixel lands in the color camera.
type projection struct {
	x, y, z []float64
	depth   []float64
	ok      []bool
}

func newProjection(n int) *projection {
	return &projection{
		x:     make([]float64, n),
		y:     make([]float64, n),
		z:     make([]float64, n),
		depth: make([]float64, n),
		ok:    make([]bool, n),
	}
}

// DepthToColor reprojects depth, which must be on the depth camera grid, into out, which must be
// on the color camera grid. Color pixels that see no depth are left at zero.
func (tr *Transformation) DepthToColor(depth, out *rimage.DepthMap) error {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	return tr.depthToColor(depth, out)
}

func (tr *Transformation) depthToColor(depth, out *rimage.DepthMap) error {
	if tr.closed {
		return errors.Wrap(ErrReprojectionFailed, "transformation is closed")
	}
	if depth == nil || out == nil {
		return errors.Wrap(ErrReprojectionFailed, "missing depth map")
	}
	dw, dh := tr.depthRays.Width(), tr.depthRays.Height()
	if depth.Width() != dw || depth.Height() != dh {
		return errors.Wrapf(ErrReprojectionFailed, "depth map is %dx%d but the depth camera is calibrated for %dx%d",
			depth.Width(), depth.Height(), dw, dh)
	}
	cw, ch := tr.colorRays.Width(), tr.colorRays.Height()
	if out.Width() != cw || out.Height() != ch {
		return errors.Wrapf(ErrReprojectionFailed, "output is %dx%d but the color camera is calibrated for %dx%d",
			out.Width(), out.Height(), cw, ch)
	}

	proj, ok := tr.scratch.Get().(*projection)
	if !ok {
		return errors.Wrap(ErrReprojectionFailed, "bad scratch buffer")
	}
	defer tr.scratch.Put(proj)

	if err := utils.ParallelForEachRow(dh, func(v int) error {
		for u := 0; u < dw; u++ {
			i := v*dw + u
			proj.ok[i] = false
			d := depth.GetDepth(u, v)
			p, valid := tr.depthRays.Unproject(u, v, float64(d))
			if !valid {
				continue
			}
			q := tr.cal.DepthToColor.TransformPoint(p)
			px, inside := tr.cal.Color.Project(q)
			if !inside {
				continue
			}
			proj.x[i], proj.y[i], proj.z[i], proj.depth[i], proj.ok[i] = px.X, px.Y, q.Z, float64(d), true
		}
		return nil
	}); err != nil {
		return errors.Wrap(ErrReprojectionFailed, err.Error())
	}

	out.Clear()
	for v := 0; v+1 < dh; v++ {
		for u := 0; u+1 < dw; u++ {
			a := v*dw + u
			b := a + 1
			c := a + dw
			d := c + 1
			if !proj.ok[a] || !proj.ok[b] || !proj.ok[c] || !proj.ok[d] {
				continue
			}
			if tr.spansDiscontinuity(proj.depth[a], proj.depth[b], proj.depth[c], proj.depth[d]) {
				continue
			}
			tr.rasterize(out, proj, a, b, c)
			tr.rasterize(out, proj, b, d, c)
		}
	}
	return nil
}

func (tr *Transformation) spansDiscontinuity(d0, d1, d2, d3 float64) bool {
	lo := math.Min(math.Min(d0, d1), math.Min(d2, d3))
	hi := math.Max(math.Max(d0, d1), math.Max(d2, d3))
	limit := tr.discontinuity * math.Max(1, lo/1000)
	return hi-lo > limit
}

// rasterize fills the color pixels covered by the triangle of depth pixels i0, i1, i2 with
// interpolated depth, keeping the nearest surface.
func (tr *Transformation) rasterize(out *rimage.DepthMap, proj *projection, i0, i1, i2 int) {
	x0, y0, z0 := proj.x[i0], proj.y[i0], proj.z[i0]
	x1, y1, z1 := proj.x[i1], proj.y[i1], proj.z[i1]
	x2, y2, z2 := proj.x[i2], proj.y[i2], proj.z[i2]

	area := (x1-x0)*(y2-y0) - (x2-x0)*(y1-y0)
	if math.Abs(area) < 1e-12 {
		return
	}
	minX := int(math.Max(0, math.Ceil(math.Min(x0, math.Min(x1, x2))-rasterEpsilon)))
	maxX := int(math.Min(float64(out.Width()-1), math.Floor(math.Max(x0, math.Max(x1, x2))+rasterEpsilon)))
	minY := int(math.Max(0, math.Ceil(math.Min(y0, math.Min(y1, y2))-rasterEpsilon)))
	maxY := int(math.Min(float64(out.Height()-1), math.Floor(math.Max(y0, math.Max(y1, y2))+rasterEpsilon)))

	for y := minY; y <= maxY; y++ {
		py := float64(y)
		for x := minX; x <= maxX; x++ {
			px := float64(x)
			w0 := ((x1-px)*(y2-py) - (x2-px)*(y1-py)) / area
			w1 := ((px-x0)*(y2-y0) - (x2-x0)*(py-y0)) / area
			w2 := 1 - w0 - w1
			if w0 < -rasterEpsilon || w1 < -rasterEpsilon || w2 < -rasterEpsilon {
				continue
			}
			z := math.Round(w0*z0 + w1*z1 + w2*z2)
			if z < 1 || z > math.MaxInt16 {
				continue
			}
			if !tr.colorRays.Valid(x, y) {
				continue
			}
			cur := out.GetDepth(x, y)
			if cur == 0 || rimage.Depth(z) < cur {
				out.Set(x, y, rimage.Depth(z))
			}
		}
	}
}

// DepthToPointCloud unprojects every pixel of depth with the rays of camera cam. Pixels without
// depth, or whose ray is invalid, become pointcloud.NoData. Points are in cam's frame.
func (tr *Transformation) DepthToPointCloud(depth *rimage.DepthMap, cam transform.CameraType, out *pointcloud.Organized) error {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	return tr.depthToPointCloud(depth, cam, out)
}

func (tr *Transformation) depthToPointCloud(depth *rimage.DepthMap, cam transform.CameraType, out *pointcloud.Organized) error {
	if tr.closed {
		return errors.Wrap(ErrUnprojectionFailed, "transformation is closed")
	}
	if depth == nil || out == nil {
		return errors.Wrap(ErrUnprojectionFailed, "missing depth map or cloud")
	}
	var rays *transform.RayTable
	switch cam {
	case transform.CameraDepth:
		rays = tr.depthRays
	case transform.CameraColor:
		rays = tr.colorRays
	default:
		return errors.Wrapf(ErrUnprojectionFailed, "unknown camera %v", cam)
	}
	w, h := rays.Width(), rays.Height()
	if depth.Width() != w || depth.Height() != h {
		return errors.Wrapf(ErrUnprojectionFailed, "depth map is %dx%d but the %v camera is calibrated for %dx%d",
			depth.Width(), depth.Height(), cam, w, h)
	}
	if out.Width() != w || out.Height() != h {
		return errors.Wrapf(ErrUnprojectionFailed, "cloud is %dx%d but the %v camera is calibrated for %dx%d",
			out.Width(), out.Height(), cam, w, h)
	}
	if err := utils.ParallelForEachRow(h, func(y int) error {
		row := out.Row(y)
		for x := 0; x < w; x++ {
			p, ok := rays.Unproject(x, y, float64(depth.GetDepth(x, y)))
			if !ok {
				row[x] = pointcloud.NoData
				continue
			}
			row[x] = p
		}
		return nil
	}); err != nil {
		return errors.Wrap(ErrUnprojectionFailed, err.Error())
	}
	return nil
}
