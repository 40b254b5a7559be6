package fake

import (
	"math"

	"go.viam.com/rgbdgrab/rimage"
	"go.viam.com/rgbdgrab/rimage/transform"
)

// The scene is a wall 1.5m away, leaning back as it goes down, with a ball in front of it.
const (
	wallDistance = 1500.
	wallSlope    = 0.2
	ballDistance = 1200.
	ballRadius   = 250.
)

// RenderDepth renders the scene as seen by the depth camera. Pixels with no ray have no depth.
func RenderDepth(cam *transform.CameraCalibration) *rimage.DepthMap {
	rays := transform.NewRayTable(cam)
	dm := rimage.NewEmptyDepthMap(rays.Width(), rays.Height())
	for v := 0; v < rays.Height(); v++ {
		for u := 0; u < rays.Width(); u++ {
			rx, ry, ok := rays.Ray(u, v)
			if !ok {
				continue
			}
			z, hit := sceneDepth(rx, ry)
			if !hit || z <= 0 || z > float64(rimage.MaxDepth) {
				continue
			}
			dm.Set(u, v, rimage.Depth(math.Round(z)))
		}
	}
	return dm
}

// sceneDepth returns the z of the first surface hit along the ray (rx, ry, 1).
func sceneDepth(rx, ry float64) (float64, bool) {
	best := math.Inf(1)
	if denom := 1 - wallSlope*ry; denom > 0 {
		best = wallDistance / denom
	}
	// |t*(rx, ry, 1) - (0, 0, ballDistance)|^2 = ballRadius^2
	a := rx*rx + ry*ry + 1
	b := -2 * ballDistance
	c := ballDistance*ballDistance - ballRadius*ballRadius
	if disc := b*b - 4*a*c; disc >= 0 {
		if t := (-b - math.Sqrt(disc)) / (2 * a); t > 0 && t < best {
			best = t
		}
	}
	return best, !math.IsInf(best, 1)
}

// RenderColor renders a gradient: blue grows to the right, green grows downward.
func RenderColor(width, height int) *rimage.Image {
	img := rimage.NewImage(width, height)
	for y := 0; y < height; y++ {
		g := uint8(y * 255 / max(height-1, 1))
		for x := 0; x < width; x++ {
			b := uint8(x * 255 / max(width-1, 1))
			img.SetBGRA(x, y, b, g, 128, 255)
		}
	}
	return img
}
