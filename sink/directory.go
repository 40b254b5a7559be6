// Package sink contains frame consumers that persist grabbed frames.
package sink

import (
	"bufio"
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	units "github.com/docker/go-units"
	"github.com/lmittmann/ppm"
	"github.com/pkg/errors"
	"github.com/xfmoulet/qoi"
	"go.opencensus.io/trace"
	"go.uber.org/multierr"

	"go.viam.com/rgbdgrab/grabber"
	"go.viam.com/rgbdgrab/logging"
	"go.viam.com/rgbdgrab/pointcloud"
	"go.viam.com/rgbdgrab/rimage"
)

// Image formats for color frames.
const (
	FormatPNG = "png"
	FormatPPM = "ppm"
	FormatQOI = "qoi"
)

// CloudFormatNone disables writing clouds.
const CloudFormatNone = "none"

// DefaultPreviewWidth is the width of depth previews when none is configured.
const DefaultPreviewWidth = 320

// Options configures a Directory.
type Options struct {
	Dir string `json:"dir"`
	// ColorFormat is "png", "ppm" or "qoi".
	ColorFormat string `json:"color_format"`
	// CloudFormat is a PCD data type ("ascii" or "binary") or "none".
	CloudFormat string `json:"cloud_format"`
	// Preview writes a colorized, downscaled depth image next to each frame.
	Preview      bool `json:"preview"`
	PreviewWidth int  `json:"preview_width"`
}

// DefaultOptions writes PNG color and binary PCD clouds to dir.
func DefaultOptions(dir string) Options {
	return Options{
		Dir:          dir,
		ColorFormat:  FormatPNG,
		CloudFormat:  pointcloud.PCDBinary.String(),
		PreviewWidth: DefaultPreviewWidth,
	}
}

// Validate ensures all parts of the options are valid.
func (o *Options) Validate() error {
	if o.Dir == "" {
		return errors.New("output directory is required")
	}
	switch strings.ToLower(o.ColorFormat) {
	case FormatPNG, FormatPPM, FormatQOI:
	default:
		return errors.Errorf("unsupported color format %q, expected one of %q, %q or %q",
			o.ColorFormat, FormatPNG, FormatPPM, FormatQOI)
	}
	if !strings.EqualFold(o.CloudFormat, CloudFormatNone) {
		cloudType, err := pointcloud.ParsePCDType(o.CloudFormat)
		if err != nil {
			return err
		}
		if cloudType == pointcloud.PCDCompressed {
			return errors.New("compressed pcd output is not supported")
		}
	}
	if o.PreviewWidth < 0 {
		return errors.Errorf("preview width cannot be negative, got %d", o.PreviewWidth)
	}
	return nil
}

// Directory writes every frame it consumes into a directory: color_NNNNNN.png (or .ppm, .qoi),
// depth_NNNNNN.png as 16 bit millimetres, cloud_NNNNNN.pcd and optionally depth_preview_NNNNNN.png.
type Directory struct {
	opts      Options
	cloudType pointcloud.PCDType
	logger    logging.Logger

	written int64
	frames  int
}

var _ grabber.Consumer = (*Directory)(nil)

// NewDirectory creates the output directory if needed.
func NewDirectory(opts Options, logger logging.Logger) (*Directory, error) {
	if opts.PreviewWidth == 0 {
		opts.PreviewWidth = DefaultPreviewWidth
	}
	if opts.ColorFormat == "" {
		opts.ColorFormat = FormatPNG
	}
	if opts.CloudFormat == "" {
		opts.CloudFormat = pointcloud.PCDBinary.String()
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts.ColorFormat = strings.ToLower(opts.ColorFormat)
	d := &Directory{opts: opts, logger: logger, cloudType: -1}
	if !strings.EqualFold(opts.CloudFormat, CloudFormatNone) {
		d.cloudType, _ = pointcloud.ParsePCDType(opts.CloudFormat)
	}
	if err := os.MkdirAll(opts.Dir, 0o750); err != nil {
		return nil, errors.Wrapf(err, "creating output directory %q", opts.Dir)
	}
	return d, nil
}

// Consume writes one frame.
func (d *Directory) Consume(ctx context.Context, frame *grabber.Frame) error {
	_, span := trace.StartSpan(ctx, "sink::Directory::Consume")
	defer span.End()

	var n int64
	name := func(prefix, ext string) string {
		return filepath.Join(d.opts.Dir, fmt.Sprintf("%s_%06d.%s", prefix, frame.Seq, ext))
	}

	if frame.Color != nil {
		size, err := d.writeFile(name("color", d.opts.ColorFormat), func(w io.Writer) error {
			switch d.opts.ColorFormat {
			case FormatPPM:
				return ppm.Encode(w, frame.Color.ToRGBA())
			case FormatQOI:
				return qoi.Encode(w, frame.Color.ToNRGBA())
			default:
				return png.Encode(w, frame.Color.ToNRGBA())
			}
		})
		if err != nil {
			return err
		}
		n += size
	}

	if frame.Depth != nil {
		size, err := d.writeFile(name("depth", FormatPNG), func(w io.Writer) error {
			return png.Encode(w, frame.Depth.ToGray16Picture())
		})
		if err != nil {
			return err
		}
		n += size

		if d.opts.Preview {
			preview := imaging.Resize(frame.Depth.ToPrettyPicture(0, rimage.MaxDepth), d.opts.PreviewWidth, 0, imaging.NearestNeighbor)
			size, err := d.writeImage(name("depth_preview", FormatPNG), preview)
			if err != nil {
				return err
			}
			n += size
		}
	}

	if frame.Cloud != nil && d.cloudType >= 0 {
		colors := frame.Color
		if colors != nil && (colors.Width() != frame.Cloud.Width() || colors.Height() != frame.Cloud.Height()) {
			colors = nil
		}
		size, err := d.writeFile(name("cloud", "pcd"), func(w io.Writer) error {
			return pointcloud.ToPCD(frame.Cloud, colors, w, d.cloudType)
		})
		if err != nil {
			return err
		}
		n += size
	}

	d.written += n
	d.frames++
	d.logger.Debugw("wrote frame", "seq", frame.Seq, "size", units.HumanSize(float64(n)))
	return nil
}

func (d *Directory) writeImage(path string, img image.Image) (int64, error) {
	return d.writeFile(path, func(w io.Writer) error {
		return png.Encode(w, img)
	})
}

// writeFile writes through a buffered, counting writer and returns the bytes written.
// A file that could not be written completely is removed.
func (d *Directory) writeFile(path string, write func(w io.Writer) error) (_ int64, err error) {
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return 0, errors.Wrapf(err, "creating %q", path)
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
		if err != nil {
			err = multierr.Combine(err, os.Remove(path))
		}
	}()
	counter := &countingWriter{w: f}
	buf := bufio.NewWriter(counter)
	if err := write(buf); err != nil {
		return 0, errors.Wrapf(err, "writing %q", path)
	}
	if err := buf.Flush(); err != nil {
		return 0, errors.Wrapf(err, "writing %q", path)
	}
	return counter.n, nil
}

// Frames returns how many frames were written.
func (d *Directory) Frames() int {
	return d.frames
}

// BytesWritten returns the total size of everything written.
func (d *Directory) BytesWritten() int64 {
	return d.written
}

// Summary describes what was written, for logs.
func (d *Directory) Summary() string {
	return fmt.Sprintf("%d frames, %s in %s", d.frames, units.HumanSize(float64(d.written)), d.opts.Dir)
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}
