package device

import (
	"github.com/pkg/errors"
)

// Config selects the streams a device produces. It is copied when the device is configured and
// cannot change while streaming.
type Config struct {
	DeviceIndex            int             `json:"device_index"`
	ColorFormat            ColorFormat     `json:"color_format"`
	ColorResolution        ColorResolution `json:"color_resolution"`
	DepthMode              DepthMode       `json:"depth_mode"`
	FrameRate              FrameRate       `json:"camera_fps"`
	SynchronizedImagesOnly bool            `json:"synchronized_images_only"`
}

// DefaultConfig returns BGRA32 color at 720P with binned narrow depth at 15 fps, only delivering
// captures that hold both images.
func DefaultConfig() Config {
	return Config{
		DeviceIndex:            0,
		ColorFormat:            ColorFormatBGRA32,
		ColorResolution:        ColorResolution720P,
		DepthMode:              DepthModeNFOV2x2Binned,
		FrameRate:              FrameRate15,
		SynchronizedImagesOnly: true,
	}
}

// Validate checks every field names a known value and that both a depth and a color stream are
// requested.
func (cfg Config) Validate() error {
	if cfg.DeviceIndex < 0 {
		return errors.Wrapf(ErrInvalidConfig, "device index %d", cfg.DeviceIndex)
	}
	if _, ok := colorFormatNames[cfg.ColorFormat]; !ok {
		return errors.Wrapf(ErrInvalidConfig, "unknown color format %d", int(cfg.ColorFormat))
	}
	if _, ok := colorResolutionNames[cfg.ColorResolution]; !ok {
		return errors.Wrapf(ErrInvalidConfig, "unknown color resolution %d", int(cfg.ColorResolution))
	}
	if cfg.ColorResolution == ColorResolutionOff {
		return errors.Wrap(ErrInvalidConfig, "color camera must be on")
	}
	if _, ok := depthModeNames[cfg.DepthMode]; !ok {
		return errors.Wrapf(ErrInvalidConfig, "unknown depth mode %d", int(cfg.DepthMode))
	}
	if !cfg.DepthMode.HasDepth() {
		return errors.Wrapf(ErrInvalidConfig, "depth mode %v produces no depth", cfg.DepthMode)
	}
	if _, ok := frameRateNames[cfg.FrameRate]; !ok {
		return errors.Wrapf(ErrInvalidConfig, "unknown frame rate %d", int(cfg.FrameRate))
	}
	return nil
}

// CheckStreamable checks the modes can run together: the frame rate must be available in both
// modes and color must be delivered as BGRA32 so it can be registered.
func (cfg Config) CheckStreamable() error {
	if !FrameRateSupported(cfg.FrameRate, cfg.DepthMode, cfg.ColorResolution) {
		return errors.Errorf("%s fps is not supported with depth mode %v and color resolution %v",
			cfg.FrameRate, cfg.DepthMode, cfg.ColorResolution)
	}
	if cfg.ColorFormat != ColorFormatBGRA32 {
		return errors.Errorf("color format %v cannot be registered, use %v", cfg.ColorFormat, ColorFormatBGRA32)
	}
	return nil
}
