package rimage

import (
	"image"
	"image/color"
	"testing"

	"go.viam.com/test"
)

func TestImageBGRA(t *testing.T) {
	img := NewImage(3, 2)
	test.That(t, img.Stride(), test.ShouldEqual, 12)
	img.SetBGRA(2, 1, 10, 20, 30, 255)
	b, g, r, a := img.GetBGRA(2, 1)
	test.That(t, []uint8{b, g, r, a}, test.ShouldResemble, []uint8{10, 20, 30, 255})
	test.That(t, img.At(2, 1), test.ShouldResemble, color.NRGBA{30, 20, 10, 255})
	test.That(t, img.At(-1, 0), test.ShouldResemble, color.NRGBA{})

	nrgba := img.ToNRGBA()
	test.That(t, nrgba.NRGBAAt(2, 1), test.ShouldResemble, color.NRGBA{30, 20, 10, 255})

	rgba := img.ToRGBA()
	test.That(t, rgba.RGBAAt(2, 1), test.ShouldResemble, color.RGBA{30, 20, 10, 255})
	img.SetBGRA(1, 0, 200, 100, 50, 0)
	test.That(t, img.ToRGBA().RGBAAt(1, 0), test.ShouldResemble, color.RGBA{})
	img.SetBGRA(1, 0, 0, 0, 0, 0)

	back := NewImageFromStdImage(nrgba)
	test.That(t, back.Pix(), test.ShouldResemble, img.Pix())

	clone := img.Clone()
	clone.SetBGRA(0, 0, 1, 1, 1, 1)
	b, _, _, _ = img.GetBGRA(0, 0)
	test.That(t, b, test.ShouldEqual, uint8(0))
}

func TestImageFromBytes(t *testing.T) {
	const width, height, stride = 2, 2, 12
	buf := make([]byte, stride*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			o := y*stride + x*4
			buf[o], buf[o+1], buf[o+2], buf[o+3] = uint8(x), uint8(y), 200, 255
		}
	}
	img, err := NewImageFromBytes(width, height, stride, buf)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, img.Stride(), test.ShouldEqual, 8)
	test.That(t, img.Bounds(), test.ShouldResemble, image.Rect(0, 0, 2, 2))
	b, g, r, a := img.GetBGRA(1, 1)
	test.That(t, []uint8{b, g, r, a}, test.ShouldResemble, []uint8{1, 1, 200, 255})

	_, err = NewImageFromBytes(width, height, 4, buf)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = NewImageFromBytes(width, height, stride, buf[:5])
	test.That(t, err, test.ShouldNotBeNil)
}
