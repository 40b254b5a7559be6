// Package rimage holds the image types produced by a depth camera: 16-bit depth maps and
// 4-channel packed color images.
package rimage

import (
	"encoding/binary"
	"image"
	"image/color"
	"math"

	"github.com/pkg/errors"
)

// Depth is the distance along the optical axis in millimetres. Zero means no measurement.
type Depth uint16

// MaxDepth is the largest representable depth.
const MaxDepth = Depth(math.MaxUint16)

// BytesPerDepth is the size of one DEPTH16 pixel.
const BytesPerDepth = 2

// DepthMap is a dense row-major grid of Depth values.
type DepthMap struct {
	width  int
	height int

	data []Depth
}

// NewEmptyDepthMap returns a zeroed depth map of the given size.
func NewEmptyDepthMap(width, height int) *DepthMap {
	if width < 0 || height < 0 {
		width, height = 0, 0
	}
	return &DepthMap{
		width:  width,
		height: height,
		data:   make([]Depth, width*height),
	}
}

// NewDepthMapFromBytes copies a little-endian DEPTH16 buffer with the given row stride (in bytes).
func NewDepthMapFromBytes(width, height, stride int, buf []byte) (*DepthMap, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.Errorf("invalid depth map size (%d, %d)", width, height)
	}
	if stride < width*BytesPerDepth {
		return nil, errors.Errorf("depth stride %d too small for width %d", stride, width)
	}
	if len(buf) < stride*(height-1)+width*BytesPerDepth {
		return nil, errors.Errorf("depth buffer of %d bytes too small for (%d, %d) stride %d", len(buf), width, height, stride)
	}
	dm := NewEmptyDepthMap(width, height)
	for y := 0; y < height; y++ {
		row := buf[y*stride:]
		for x := 0; x < width; x++ {
			dm.data[y*width+x] = Depth(binary.LittleEndian.Uint16(row[x*BytesPerDepth:]))
		}
	}
	return dm, nil
}

// Width returns the width in pixels.
func (dm *DepthMap) Width() int {
	return dm.width
}

// Height returns the height in pixels.
func (dm *DepthMap) Height() int {
	return dm.height
}

// Stride returns the number of bytes per row of the packed DEPTH16 representation.
func (dm *DepthMap) Stride() int {
	return dm.width * BytesPerDepth
}

// Bounds returns the rectangle dimensions of the image.
func (dm *DepthMap) Bounds() image.Rectangle {
	return image.Rect(0, 0, dm.width, dm.height)
}

// ColorModel for DepthMap so that it implements image.Image.
func (dm *DepthMap) ColorModel() color.Model { return color.Gray16Model }

// At returns the depth as a color.Gray16 so that it implements image.Image.
func (dm *DepthMap) At(x, y int) color.Color {
	if !dm.Contains(x, y) {
		return color.Gray16{}
	}
	return color.Gray16{uint16(dm.GetDepth(x, y))}
}

// Contains reports whether (x, y) is inside the map.
func (dm *DepthMap) Contains(x, y int) bool {
	return x >= 0 && y >= 0 && x < dm.width && y < dm.height
}

func (dm *DepthMap) kxy(x, y int) int {
	return (y * dm.width) + x
}

// GetDepth returns the depth at (x, y).
func (dm *DepthMap) GetDepth(x, y int) Depth {
	return dm.data[dm.kxy(x, y)]
}

// Set sets the depth at (x, y).
func (dm *DepthMap) Set(x, y int, val Depth) {
	dm.data[dm.kxy(x, y)] = val
}

// Data exposes the row-major backing slice.
func (dm *DepthMap) Data() []Depth {
	return dm.data
}

// Clear zeroes every pixel.
func (dm *DepthMap) Clear() {
	for i := range dm.data {
		dm.data[i] = 0
	}
}

// Clone returns a deep copy.
func (dm *DepthMap) Clone() *DepthMap {
	out := NewEmptyDepthMap(dm.width, dm.height)
	copy(out.data, dm.data)
	return out
}

// Equal reports whether both maps have the same size and values.
func (dm *DepthMap) Equal(other *DepthMap) bool {
	if dm == nil || other == nil {
		return dm == other
	}
	if dm.width != other.width || dm.height != other.height {
		return false
	}
	for i, d := range dm.data {
		if other.data[i] != d {
			return false
		}
	}
	return true
}

// ValidCount returns the number of pixels with a measurement.
func (dm *DepthMap) ValidCount() int {
	n := 0
	for _, d := range dm.data {
		if d != 0 {
			n++
		}
	}
	return n
}

// MinMax returns the min and max non-zero depth in the map.
func (dm *DepthMap) MinMax() (Depth, Depth) {
	min, max := MaxDepth, Depth(0)
	for _, z := range dm.data {
		if z == 0 {
			continue
		}
		if z < min {
			min = z
		}
		if z > max {
			max = z
		}
	}
	if max == 0 {
		return 0, 0
	}
	return min, max
}

// Bytes returns the packed little-endian DEPTH16 representation.
func (dm *DepthMap) Bytes() []byte {
	buf := make([]byte, len(dm.data)*BytesPerDepth)
	for i, d := range dm.data {
		binary.LittleEndian.PutUint16(buf[i*BytesPerDepth:], uint16(d))
	}
	return buf
}

// ToGray16Picture converts the depth map to a 16-bit grayscale image, one millimetre per level.
func (dm *DepthMap) ToGray16Picture() *image.Gray16 {
	img := image.NewGray16(dm.Bounds())
	for y := 0; y < dm.height; y++ {
		for x := 0; x < dm.width; x++ {
			img.SetGray16(x, y, color.Gray16{uint16(dm.GetDepth(x, y))})
		}
	}
	return img
}
