package rimage

import (
	"image"
	"image/color"

	"github.com/lucasb-eyer/go-colorful"
)

// ToPrettyPicture colorizes the depth map for inspection: near is orange, far is blue, missing
// depth stays black. Depths are clamped to [hardMin, hardMax].
func (dm *DepthMap) ToPrettyPicture(hardMin, hardMax Depth) image.Image {
	min, max := dm.MinMax()

	if min < hardMin {
		min = hardMin
	}
	if max > hardMax {
		max = hardMax
	}

	img := image.NewNRGBA(dm.Bounds())

	span := float64(max) - float64(min)
	if span <= 0 {
		span = 1
	}

	for y := 0; y < dm.Height(); y++ {
		for x := 0; x < dm.Width(); x++ {
			z := dm.GetDepth(x, y)
			if z == 0 {
				img.SetNRGBA(x, y, color.NRGBA{0, 0, 0, 255})
				continue
			}

			if z < min {
				z = min
			}
			if z > max {
				z = max
			}

			ratio := (float64(z) - float64(min)) / span

			hue := 30 + (200.0 * ratio)
			r, g, b := colorful.Hsv(hue, 1.0, 1.0).Clamped().RGB255()
			img.SetNRGBA(x, y, color.NRGBA{r, g, b, 255})
		}
	}

	return img
}
