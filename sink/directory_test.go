package sink

import (
	"context"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/lmittmann/ppm"
	"github.com/pkg/errors"
	"github.com/xfmoulet/qoi"
	"go.viam.com/test"

	"go.viam.com/rgbdgrab/device/fake"
	"go.viam.com/rgbdgrab/grabber"
	"go.viam.com/rgbdgrab/logging"
	"go.viam.com/rgbdgrab/pointcloud"
	"go.viam.com/rgbdgrab/rimage"
)

func grabOne(t *testing.T, registered bool) *grabber.Frame {
	t.Helper()
	cfg := grabber.DefaultConfig()
	cfg.Registration = registered
	g, err := grabber.NewDeviceGrabber(context.Background(), fake.NewDriver(), cfg, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	defer g.Close(context.Background())
	frame, err := g.Grab(context.Background())
	test.That(t, err, test.ShouldBeNil)
	return frame
}

func TestOptionsValidate(t *testing.T) {
	opts := DefaultOptions("out")
	test.That(t, opts.Validate(), test.ShouldBeNil)

	bad := opts
	bad.Dir = ""
	test.That(t, bad.Validate(), test.ShouldNotBeNil)

	bad = opts
	bad.ColorFormat = "jpeg"
	test.That(t, bad.Validate().Error(), test.ShouldContainSubstring, "unsupported color format")

	bad = opts
	bad.CloudFormat = "binary_compressed"
	test.That(t, bad.Validate(), test.ShouldNotBeNil)
	bad.CloudFormat = "ply"
	test.That(t, bad.Validate(), test.ShouldNotBeNil)
	bad.CloudFormat = "NONE"
	test.That(t, bad.Validate(), test.ShouldBeNil)

	bad = opts
	bad.PreviewWidth = -1
	test.That(t, bad.Validate(), test.ShouldNotBeNil)
}

func TestDirectoryWritesFrame(t *testing.T) {
	frame := grabOne(t, true)
	dir := filepath.Join(t.TempDir(), "frames")
	opts := DefaultOptions(dir)
	opts.Preview = true
	sink, err := NewDirectory(opts, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, sink.Consume(context.Background(), frame), test.ShouldBeNil)
	test.That(t, sink.Frames(), test.ShouldEqual, 1)
	test.That(t, sink.BytesWritten(), test.ShouldBeGreaterThan, 0)
	test.That(t, sink.Summary(), test.ShouldContainSubstring, "1 frames")

	f, err := os.Open(filepath.Join(dir, "depth_000000.png"))
	test.That(t, err, test.ShouldBeNil)
	img, err := png.Decode(f)
	f.Close()
	test.That(t, err, test.ShouldBeNil)
	gray, ok := img.(*image.Gray16)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, gray.Bounds().Dx(), test.ShouldEqual, 1280)
	for _, p := range []image.Point{{640, 360}, {10, 10}, {1000, 700}} {
		test.That(t, gray.Gray16At(p.X, p.Y).Y, test.ShouldEqual, uint16(frame.Depth.GetDepth(p.X, p.Y)))
	}

	f, err = os.Open(filepath.Join(dir, "color_000000.png"))
	test.That(t, err, test.ShouldBeNil)
	cfg, err := png.DecodeConfig(f)
	f.Close()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Width, test.ShouldEqual, 1280)
	test.That(t, cfg.Height, test.ShouldEqual, 720)

	f, err = os.Open(filepath.Join(dir, "depth_preview_000000.png"))
	test.That(t, err, test.ShouldBeNil)
	cfg, err = png.DecodeConfig(f)
	f.Close()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Width, test.ShouldEqual, DefaultPreviewWidth)
	test.That(t, cfg.Height, test.ShouldEqual, 180)

	f, err = os.Open(filepath.Join(dir, "cloud_000000.pcd"))
	test.That(t, err, test.ShouldBeNil)
	cloud, err := pointcloud.ReadPCD(f)
	f.Close()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cloud.Width(), test.ShouldEqual, frame.Cloud.Width())
	test.That(t, cloud.Height(), test.ShouldEqual, frame.Cloud.Height())
	test.That(t, cloud.ValidCount(), test.ShouldEqual, frame.Cloud.ValidCount())
}

func TestDirectoryPPMWithoutClouds(t *testing.T) {
	frame := grabOne(t, false)
	dir := t.TempDir()
	opts := DefaultOptions(dir)
	opts.ColorFormat = "PPM"
	opts.CloudFormat = CloudFormatNone
	sink, err := NewDirectory(opts, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	frame.Seq = 42
	test.That(t, sink.Consume(context.Background(), frame), test.ShouldBeNil)

	f, err := os.Open(filepath.Join(dir, "color_000042.ppm"))
	test.That(t, err, test.ShouldBeNil)
	img, err := ppm.Decode(f)
	f.Close()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, img.Bounds().Dx(), test.ShouldEqual, 1280)
	r, g, b, _ := img.At(100, 50).RGBA()
	cb, cg, cr, _ := frame.Color.GetBGRA(100, 50)
	test.That(t, r>>8, test.ShouldEqual, uint32(cr))
	test.That(t, g>>8, test.ShouldEqual, uint32(cg))
	test.That(t, b>>8, test.ShouldEqual, uint32(cb))

	// unregistered depth stays on the depth camera's grid
	f, err = os.Open(filepath.Join(dir, "depth_000042.png"))
	test.That(t, err, test.ShouldBeNil)
	cfg, err := png.DecodeConfig(f)
	f.Close()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Width, test.ShouldEqual, 320)

	_, err = os.Stat(filepath.Join(dir, "cloud_000042.pcd"))
	test.That(t, os.IsNotExist(err), test.ShouldBeTrue)
	_, err = os.Stat(filepath.Join(dir, "depth_preview_000042.png"))
	test.That(t, os.IsNotExist(err), test.ShouldBeTrue)
}

func TestDirectoryQOI(t *testing.T) {
	frame := grabOne(t, false)
	dir := t.TempDir()
	opts := DefaultOptions(dir)
	opts.ColorFormat = FormatQOI
	opts.CloudFormat = "ascii"
	sink, err := NewDirectory(opts, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, sink.Consume(context.Background(), frame), test.ShouldBeNil)

	f, err := os.Open(filepath.Join(dir, "color_000000.qoi"))
	test.That(t, err, test.ShouldBeNil)
	img, err := qoi.Decode(f)
	f.Close()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, img.Bounds().Dx(), test.ShouldEqual, 1280)
	test.That(t, img.Bounds().Dy(), test.ShouldEqual, 720)

	f, err = os.Open(filepath.Join(dir, "cloud_000000.pcd"))
	test.That(t, err, test.ShouldBeNil)
	cloud, err := pointcloud.ReadPCD(f)
	f.Close()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cloud.ValidCount(), test.ShouldEqual, frame.Cloud.ValidCount())
}

func TestDirectoryRemovesPartialFile(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewDirectory(DefaultOptions(dir), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	path := filepath.Join(dir, "color_000000.ppm")
	_, err = sink.writeFile(path, func(w io.Writer) error {
		if _, err := w.Write([]byte("P6\n")); err != nil {
			return err
		}
		return errors.New("encoder failed")
	})
	test.That(t, err.Error(), test.ShouldContainSubstring, "encoder failed")
	_, err = os.Stat(path)
	test.That(t, os.IsNotExist(err), test.ShouldBeTrue)

	// rimage.Image is BGRA, which the ppm encoder does not accept directly
	test.That(t, ppm.Encode(io.Discard, rimage.NewImage(2, 2)), test.ShouldNotBeNil)
	test.That(t, ppm.Encode(io.Discard, rimage.NewImage(2, 2).ToRGBA()), test.ShouldBeNil)
}

func TestDirectoryUnwritable(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	test.That(t, os.WriteFile(file, []byte("x"), 0o600), test.ShouldBeNil)
	_, err := NewDirectory(DefaultOptions(filepath.Join(file, "sub")), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
}
