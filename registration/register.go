package registration

import (
	"context"

	"github.com/pkg/errors"
	"go.opencensus.io/trace"

	"go.viam.com/rgbdgrab/pointcloud"
	"go.viam.com/rgbdgrab/rimage"
	"go.viam.com/rgbdgrab/rimage/transform"
)

// Result is the output of one registration.
type Result struct {
	// Cloud has the color image's dimensions; points are in the color camera's frame.
	Cloud *pointcloud.Organized
	// Depth is the depth reprojected onto the color grid. Only set with WithRegisteredDepth.
	Depth *rimage.DepthMap
}

type registerOptions struct {
	keepDepth bool
}

// RegisterOption configures a call to Register.
type RegisterOption func(*registerOptions)

// WithRegisteredDepth makes Register return a copy of the reprojected depth.
func WithRegisteredDepth() RegisterOption {
	return func(o *registerOptions) {
		o.keepDepth = true
	}
}

// Register reprojects depth onto the color grid and unprojects the result into a cloud in the
// color camera's frame. The intermediate depth buffer is always given back to the allocator.
func Register(
	ctx context.Context,
	tr *Transformation,
	depth *rimage.DepthMap,
	color *rimage.Image,
	opts ...RegisterOption,
) (result *Result, err error) {
	_, span := trace.StartSpan(ctx, "registration::Register")
	defer span.End()
	defer func() {
		if err != nil {
			span.SetStatus(trace.Status{Code: trace.StatusCodeInternal, Message: err.Error()})
		}
	}()

	var o registerOptions
	for _, opt := range opts {
		opt(&o)
	}
	if tr == nil {
		return nil, errors.Wrap(ErrTransformCreateFailed, "no transformation")
	}
	if color == nil {
		return nil, errors.Wrap(ErrReprojectionFailed, "missing color image")
	}

	tr.mu.RLock()
	defer tr.mu.RUnlock()

	w, h := color.Width(), color.Height()
	registered, err := tr.allocator.AcquireDepth(w, h)
	if err != nil {
		return nil, errors.Wrapf(ErrTransformCreateFailed, "allocating %dx%d depth buffer: %v", w, h, err)
	}
	defer tr.allocator.ReleaseDepth(registered)

	if err := tr.depthToColor(depth, registered); err != nil {
		return nil, err
	}

	cloud, err := tr.allocator.AcquireCloud(w, h)
	if err != nil {
		return nil, errors.Wrapf(ErrUnprojectionFailed, "allocating %dx%d cloud: %v", w, h, err)
	}
	if err := tr.depthToPointCloud(registered, transform.CameraColor, cloud); err != nil {
		return nil, err
	}

	result = &Result{Cloud: cloud}
	if o.keepDepth {
		result.Depth = registered.Clone()
	}
	span.AddAttributes(trace.Int64Attribute("valid_points", int64(cloud.ValidCount())))
	return result, nil
}
