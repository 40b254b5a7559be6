//go:build k4a

// Package k4a implements device.Driver on top of the Azure Kinect sensor SDK (libk4a). It is only
// built with the k4a build tag, since it needs the SDK headers and library.
package k4a

/*
#cgo LDFLAGS: -lk4a
#include <stdlib.h>
#include <k4a/k4a.h>

static k4a_device_configuration_t rgbd_make_config(int format, int resolution, int mode, int fps, bool sync) {
	k4a_device_configuration_t config = K4A_DEVICE_CONFIG_INIT_DISABLE_ALL;
	config.color_format = (k4a_image_format_t)format;
	config.color_resolution = (k4a_color_resolution_t)resolution;
	config.depth_mode = (k4a_depth_mode_t)mode;
	config.camera_fps = (k4a_fps_t)fps;
	config.synchronized_images_only = sync;
	return config;
}

static float rgbd_intrinsic(k4a_calibration_camera_t *camera, int i) {
	return camera->intrinsics.parameters.v[i];
}

static k4a_calibration_extrinsics_t *rgbd_depth_to_color(k4a_calibration_t *calibration) {
	return &calibration->extrinsics[K4A_CALIBRATION_TYPE_DEPTH][K4A_CALIBRATION_TYPE_COLOR];
}
*/
import "C"

import (
	"time"
	"unsafe"

	"github.com/pkg/errors"

	"go.viam.com/rgbdgrab/device"
	"go.viam.com/rgbdgrab/rimage/transform"
)

// Indices into k4a_calibration_intrinsic_parameters_t.v.
const (
	paramCx = iota
	paramCy
	paramFx
	paramFy
	paramK1
	paramK2
	paramK3
	paramK4
	paramK5
	paramK6
	paramCodx
	paramCody
	paramP2
	paramP1
	paramMetricRadius
)

// Driver is the libk4a device driver.
type Driver struct{}

// NewDriver returns the libk4a driver.
func NewDriver() *Driver {
	return &Driver{}
}

// InstalledCount returns the number of attached devices.
func (Driver) InstalledCount() int {
	return int(C.k4a_device_get_installed_count())
}

// Open opens the device at index.
func (Driver) Open(index int) (device.Session, error) {
	var handle C.k4a_device_t
	if C.k4a_device_open(C.uint32_t(index), &handle) != C.K4A_RESULT_SUCCEEDED {
		return nil, errors.Errorf("k4a_device_open(%d) failed", index)
	}
	return &session{handle: handle}, nil
}

type session struct {
	handle C.k4a_device_t
}

func (s *session) SerialNumber() (string, error) {
	var size C.size_t
	if C.k4a_device_get_serialnum(s.handle, nil, &size) != C.K4A_BUFFER_RESULT_TOO_SMALL {
		return "", errors.New("k4a_device_get_serialnum failed to report a size")
	}
	buf := (*C.char)(C.malloc(size))
	defer C.free(unsafe.Pointer(buf))
	if C.k4a_device_get_serialnum(s.handle, buf, &size) != C.K4A_BUFFER_RESULT_SUCCEEDED {
		return "", errors.New("k4a_device_get_serialnum failed")
	}
	return C.GoString(buf), nil
}

func (s *session) Calibration(depthMode device.DepthMode, colorResolution device.ColorResolution) (*transform.Calibration, error) {
	var cal C.k4a_calibration_t
	if C.k4a_device_get_calibration(s.handle, C.k4a_depth_mode_t(depthMode), C.k4a_color_resolution_t(colorResolution), &cal) !=
		C.K4A_RESULT_SUCCEEDED {
		return nil, errors.Errorf("k4a_device_get_calibration(%v, %v) failed", depthMode, colorResolution)
	}
	ext := C.rgbd_depth_to_color(&cal)
	out := &transform.Calibration{
		Depth: cameraCalibration(&cal.depth_camera_calibration),
		Color: cameraCalibration(&cal.color_camera_calibration),
		DepthToColor: transform.Extrinsics{
			RotationMatrix:    make([]float64, 9),
			TranslationVector: make([]float64, 3),
		},
	}
	for i := 0; i < 9; i++ {
		out.DepthToColor.RotationMatrix[i] = float64(ext.rotation[i])
	}
	for i := 0; i < 3; i++ {
		out.DepthToColor.TranslationVector[i] = float64(ext.translation[i])
	}
	return out, nil
}

// cameraCalibration converts one camera. libk4a uses a rational model; the denominator terms
// (k4..k6) are dropped, which is close for the narrow field of view modes.
func cameraCalibration(camera *C.k4a_calibration_camera_t) transform.CameraCalibration {
	param := func(i int) float64 {
		return float64(C.rgbd_intrinsic(camera, C.int(i)))
	}
	return transform.CameraCalibration{
		Intrinsics: transform.PinholeCameraIntrinsics{
			Width:  int(camera.resolution_width),
			Height: int(camera.resolution_height),
			Fx:     param(paramFx),
			Fy:     param(paramFy),
			Ppx:    param(paramCx),
			Ppy:    param(paramCy),
		},
		Distortion: &transform.BrownConrady{
			RadialK1:     param(paramK1),
			RadialK2:     param(paramK2),
			RadialK3:     param(paramK3),
			TangentialP1: param(paramP1),
			TangentialP2: param(paramP2),
		},
		MetricRadius: float64(camera.metric_radius),
	}
}

func (s *session) StartCameras(cfg device.Config) error {
	config := C.rgbd_make_config(C.int(cfg.ColorFormat), C.int(cfg.ColorResolution), C.int(cfg.DepthMode),
		C.int(cfg.FrameRate), C.bool(cfg.SynchronizedImagesOnly))
	if C.k4a_device_start_cameras(s.handle, &config) != C.K4A_RESULT_SUCCEEDED {
		return errors.New("k4a_device_start_cameras failed")
	}
	return nil
}

func (s *session) StopCameras() error {
	C.k4a_device_stop_cameras(s.handle)
	return nil
}

func (s *session) GetCapture(timeout time.Duration) (device.RawCapture, device.WaitResult, error) {
	ms := timeout.Milliseconds()
	if timeout < 0 {
		ms = C.K4A_WAIT_INFINITE
	}
	var handle C.k4a_capture_t
	switch C.k4a_device_get_capture(s.handle, &handle, C.int32_t(ms)) {
	case C.K4A_WAIT_RESULT_SUCCEEDED:
	case C.K4A_WAIT_RESULT_TIMEOUT:
		return nil, device.WaitTimeout, nil
	default:
		return nil, device.WaitFailed, errors.New("k4a_device_get_capture failed")
	}
	c := &capture{handle: handle}
	c.depthHandle = C.k4a_capture_get_depth_image(handle)
	c.colorHandle = C.k4a_capture_get_color_image(handle)
	c.depth = rawImage(c.depthHandle)
	c.color = rawImage(c.colorHandle)
	return c, device.WaitSucceeded, nil
}

func (s *session) Close() error {
	C.k4a_device_close(s.handle)
	return nil
}

type capture struct {
	handle      C.k4a_capture_t
	depthHandle C.k4a_image_t
	colorHandle C.k4a_image_t
	depth       *device.RawImage
	color       *device.RawImage
}

// rawImage wraps the buffer of img without copying. It is valid until img is released.
func rawImage(img C.k4a_image_t) *device.RawImage {
	if img == nil {
		return nil
	}
	size := int(C.k4a_image_get_size(img))
	return &device.RawImage{
		Width:     int(C.k4a_image_get_width_pixels(img)),
		Height:    int(C.k4a_image_get_height_pixels(img)),
		Stride:    int(C.k4a_image_get_stride_bytes(img)),
		Buffer:    unsafe.Slice((*byte)(unsafe.Pointer(C.k4a_image_get_buffer(img))), size),
		Timestamp: time.Duration(C.k4a_image_get_device_timestamp_usec(img)) * time.Microsecond,
	}
}

func (c *capture) Depth() *device.RawImage {
	return c.depth
}

func (c *capture) Color() *device.RawImage {
	return c.color
}

func (c *capture) Release() {
	c.depth, c.color = nil, nil
	if c.depthHandle != nil {
		C.k4a_image_release(c.depthHandle)
		c.depthHandle = nil
	}
	if c.colorHandle != nil {
		C.k4a_image_release(c.colorHandle)
		c.colorHandle = nil
	}
	if c.handle != nil {
		C.k4a_capture_release(c.handle)
		c.handle = nil
	}
}

var _ device.Driver = Driver{}
