package rimage

import (
	"image"
	"image/color"

	"github.com/pkg/errors"
)

// BytesPerColor is the size of one BGRA32 pixel.
const BytesPerColor = 4

// Image is a packed BGRA32 color image, the layout produced by the color camera.
type Image struct {
	width  int
	height int
	stride int

	pix []byte
}

// NewImage returns a black, fully transparent image of the given size.
func NewImage(width, height int) *Image {
	if width < 0 || height < 0 {
		width, height = 0, 0
	}
	return &Image{
		width:  width,
		height: height,
		stride: width * BytesPerColor,
		pix:    make([]byte, width*height*BytesPerColor),
	}
}

// NewImageFromBytes copies a BGRA32 buffer with the given row stride (in bytes).
func NewImageFromBytes(width, height, stride int, buf []byte) (*Image, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.Errorf("invalid color image size (%d, %d)", width, height)
	}
	if stride < width*BytesPerColor {
		return nil, errors.Errorf("color stride %d too small for width %d", stride, width)
	}
	if len(buf) < stride*(height-1)+width*BytesPerColor {
		return nil, errors.Errorf("color buffer of %d bytes too small for (%d, %d) stride %d", len(buf), width, height, stride)
	}
	img := NewImage(width, height)
	for y := 0; y < height; y++ {
		copy(img.pix[y*img.stride:(y+1)*img.stride], buf[y*stride:])
	}
	return img, nil
}

// NewImageFromStdImage converts any image.Image to a BGRA32 image.
func NewImageFromStdImage(src image.Image) *Image {
	bounds := src.Bounds()
	img := NewImage(bounds.Dx(), bounds.Dy())
	for y := 0; y < img.height; y++ {
		for x := 0; x < img.width; x++ {
			c := color.NRGBAModel.Convert(src.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA)
			img.SetBGRA(x, y, c.B, c.G, c.R, c.A)
		}
	}
	return img
}

// Width returns the width in pixels.
func (i *Image) Width() int {
	return i.width
}

// Height returns the height in pixels.
func (i *Image) Height() int {
	return i.height
}

// Stride returns the number of bytes per row.
func (i *Image) Stride() int {
	return i.stride
}

// Bounds returns the rectangle dimensions of the image.
func (i *Image) Bounds() image.Rectangle {
	return image.Rect(0, 0, i.width, i.height)
}

// ColorModel returns the NRGBA model; the alpha channel of the sensor is not premultiplied.
func (i *Image) ColorModel() color.Model {
	return color.NRGBAModel
}

// In reports whether (x, y) is inside the image.
func (i *Image) In(x, y int) bool {
	return x >= 0 && y >= 0 && x < i.width && y < i.height
}

func (i *Image) offset(x, y int) int {
	return y*i.stride + x*BytesPerColor
}

// At returns the pixel as a color.NRGBA.
func (i *Image) At(x, y int) color.Color {
	if !i.In(x, y) {
		return color.NRGBA{}
	}
	b, g, r, a := i.GetBGRA(x, y)
	return color.NRGBA{r, g, b, a}
}

// GetBGRA returns the raw channels at (x, y).
func (i *Image) GetBGRA(x, y int) (b, g, r, a uint8) {
	o := i.offset(x, y)
	return i.pix[o], i.pix[o+1], i.pix[o+2], i.pix[o+3]
}

// SetBGRA sets the raw channels at (x, y).
func (i *Image) SetBGRA(x, y int, b, g, r, a uint8) {
	o := i.offset(x, y)
	i.pix[o], i.pix[o+1], i.pix[o+2], i.pix[o+3] = b, g, r, a
}

// Pix exposes the packed buffer.
func (i *Image) Pix() []byte {
	return i.pix
}

// Clone returns a deep copy.
func (i *Image) Clone() *Image {
	out := &Image{width: i.width, height: i.height, stride: i.stride, pix: make([]byte, len(i.pix))}
	copy(out.pix, i.pix)
	return out
}

// ToRGBA converts to alpha-premultiplied RGBA, the only layout some encoders accept.
func (i *Image) ToRGBA() *image.RGBA {
	out := image.NewRGBA(i.Bounds())
	for y := 0; y < i.height; y++ {
		for x := 0; x < i.width; x++ {
			b, g, r, a := i.GetBGRA(x, y)
			c := color.RGBAModel.Convert(color.NRGBA{r, g, b, a}).(color.RGBA)
			o := out.PixOffset(x, y)
			out.Pix[o], out.Pix[o+1], out.Pix[o+2], out.Pix[o+3] = c.R, c.G, c.B, c.A
		}
	}
	return out
}

// ToNRGBA converts to the standard library layout, which encoders understand.
func (i *Image) ToNRGBA() *image.NRGBA {
	out := image.NewNRGBA(i.Bounds())
	for y := 0; y < i.height; y++ {
		for x := 0; x < i.width; x++ {
			b, g, r, a := i.GetBGRA(x, y)
			o := out.PixOffset(x, y)
			out.Pix[o], out.Pix[o+1], out.Pix[o+2], out.Pix[o+3] = r, g, b, a
		}
	}
	return out
}
