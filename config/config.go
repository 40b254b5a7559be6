// Package config defines the configuration file of the grab command.
package config

import (
	"time"

	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"go.viam.com/rgbdgrab/device"
	"go.viam.com/rgbdgrab/grabber"
	"go.viam.com/rgbdgrab/logging"
	"go.viam.com/rgbdgrab/sink"
)

// DefaultFrames is how many frames a capture writes when the config does not say.
const DefaultFrames = 1

// Config describes a capture session: the device streams, how grabbing behaves and where frames go.
type Config struct {
	Device device.Config `json:"device"`
	// CaptureTimeout accepts a duration string such as "500ms" or a number of milliseconds.
	CaptureTimeout         time.Duration `json:"capture_timeout"`
	Registration           bool          `json:"registration"`
	DiscontinuityMM        float64       `json:"discontinuity_mm"`
	MaxConsecutiveFailures int           `json:"max_consecutive_failures"`
	// Frames is how many frames to capture. Zero captures until interrupted.
	Frames   int           `json:"frames"`
	Output   sink.Options  `json:"output"`
	LogLevel logging.Level `json:"log_level"`
	// Fake, when set, uses a synthetic device instead of real hardware.
	Fake *FakeConfig `json:"fake,omitempty"`

	// ConfigFilePath is where the config was read from, if anywhere.
	ConfigFilePath string `json:"-"`
}

// FakeConfig configures the synthetic device.
type FakeConfig struct {
	Devices int `json:"devices"`
	// Pacing delivers captures at the configured frame rate instead of immediately.
	Pacing          bool   `json:"pacing"`
	CalibrationFile string `json:"calibration_file"`
}

// Default returns the defaults every config file starts from.
func Default() Config {
	return Config{
		Device:                 device.DefaultConfig(),
		CaptureTimeout:         grabber.DefaultCaptureTimeout,
		Registration:           true,
		MaxConsecutiveFailures: grabber.DefaultMaxConsecutiveFailures,
		Frames:                 DefaultFrames,
		Output:                 sink.DefaultOptions("frames"),
		LogLevel:               logging.INFO,
	}
}

// Validate ensures all parts of the config are valid.
func (c *Config) Validate(path string) error {
	if err := c.Device.Validate(); err != nil {
		return goutils.NewConfigValidationError(path+".device", err)
	}
	if err := c.Device.CheckStreamable(); err != nil {
		return goutils.NewConfigValidationError(path+".device", err)
	}
	if c.DiscontinuityMM < 0 {
		return goutils.NewConfigValidationError(path,
			errors.Errorf("discontinuity_mm cannot be negative, got %v", c.DiscontinuityMM))
	}
	if c.MaxConsecutiveFailures < 0 {
		return goutils.NewConfigValidationError(path,
			errors.Errorf("max_consecutive_failures cannot be negative, got %d", c.MaxConsecutiveFailures))
	}
	if c.Frames < 0 {
		return goutils.NewConfigValidationError(path, errors.Errorf("frames cannot be negative, got %d", c.Frames))
	}
	if c.Output.Dir == "" {
		return goutils.NewConfigValidationFieldRequiredError(path+".output", "dir")
	}
	if err := c.Output.Validate(); err != nil {
		return goutils.NewConfigValidationError(path+".output", err)
	}
	if c.Fake != nil && c.Fake.Devices < 0 {
		return goutils.NewConfigValidationError(path+".fake",
			errors.Errorf("devices cannot be negative, got %d", c.Fake.Devices))
	}
	return nil
}

// Grabber returns the grabber configuration.
func (c *Config) Grabber() grabber.Config {
	return grabber.Config{
		Device:          c.Device,
		CaptureTimeout:  c.CaptureTimeout,
		Registration:    c.Registration,
		DiscontinuityMM: c.DiscontinuityMM,
	}
}

// RunOptions returns the options for grabber.Run.
func (c *Config) RunOptions(logger logging.Logger) grabber.RunOptions {
	return grabber.RunOptions{
		Frames:                 c.Frames,
		MaxConsecutiveFailures: c.MaxConsecutiveFailures,
		Logger:                 logger,
	}
}
