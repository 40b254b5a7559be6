// Package pointcloud defines the dense, image-aligned point cloud produced by registration and the
// PCD file format it is written in.
package pointcloud

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// NoData marks a cell of an organized cloud that has no depth. Valid points always have Z > 0.
var NoData = r3.Vector{}

// maxCells bounds the size of a cloud so a corrupt width/height cannot exhaust memory.
const maxCells = 1 << 26

// Organized is a point cloud laid out on an image grid: the point at (x, y) is what the pixel
// (x, y) of the reference image sees. Coordinates are millimetres in the reference camera's frame.
type Organized struct {
	width  int
	height int
	points []r3.Vector
}

// NewOrganized returns a cloud of width*height cells, all NoData.
func NewOrganized(width, height int) (*Organized, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.Errorf("invalid organized cloud size (%d, %d)", width, height)
	}
	if width*height > maxCells {
		return nil, errors.Errorf("organized cloud of %dx%d is too large", width, height)
	}
	return &Organized{width: width, height: height, points: make([]r3.Vector, width*height)}, nil
}

// Width returns the number of columns.
func (oc *Organized) Width() int {
	return oc.width
}

// Height returns the number of rows.
func (oc *Organized) Height() int {
	return oc.height
}

// Size returns the number of cells, valid or not.
func (oc *Organized) Size() int {
	return len(oc.points)
}

// Contains reports whether (x, y) lies on the grid.
func (oc *Organized) Contains(x, y int) bool {
	return x >= 0 && y >= 0 && x < oc.width && y < oc.height
}

// At returns the point at cell (x, y) and whether it holds data.
func (oc *Organized) At(x, y int) (r3.Vector, bool) {
	if !oc.Contains(x, y) {
		return NoData, false
	}
	p := oc.points[y*oc.width+x]
	return p, p.Z > 0
}

// Set stores p at cell (x, y).
func (oc *Organized) Set(x, y int, p r3.Vector) {
	oc.points[y*oc.width+x] = p
}

// Unset marks cell (x, y) as NoData.
func (oc *Organized) Unset(x, y int) {
	oc.points[y*oc.width+x] = NoData
}

// Row returns the cells of row y. The slice aliases the cloud.
func (oc *Organized) Row(y int) []r3.Vector {
	return oc.points[y*oc.width : (y+1)*oc.width]
}

// Clear marks every cell as NoData.
func (oc *Organized) Clear() {
	for i := range oc.points {
		oc.points[i] = NoData
	}
}

// ValidCount returns the number of cells holding a point.
func (oc *Organized) ValidCount() int {
	n := 0
	for _, p := range oc.points {
		if p.Z > 0 {
			n++
		}
	}
	return n
}

// Iterate calls fn for every valid point in row-major order. If fn returns false, iteration stops.
func (oc *Organized) Iterate(fn func(x, y int, p r3.Vector) bool) {
	for i, p := range oc.points {
		if p.Z <= 0 {
			continue
		}
		if !fn(i%oc.width, i/oc.width, p) {
			return
		}
	}
}

// MetaData returns the bounds of the valid points.
func (oc *Organized) MetaData() MetaData {
	meta := NewMetaData()
	oc.Iterate(func(_, _ int, p r3.Vector) bool {
		meta.Merge(p)
		return true
	})
	return meta
}

// Equal reports whether two clouds have the same shape and bit-identical points.
func (oc *Organized) Equal(other *Organized) bool {
	if oc == nil || other == nil {
		return oc == other
	}
	if oc.width != other.width || oc.height != other.height {
		return false
	}
	for i, p := range oc.points {
		if p != other.points[i] {
			return false
		}
	}
	return true
}

// Clone returns a deep copy.
func (oc *Organized) Clone() *Organized {
	return &Organized{
		width:  oc.width,
		height: oc.height,
		points: append([]r3.Vector(nil), oc.points...),
	}
}
