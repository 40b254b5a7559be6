// Package main is the grab command: it captures registered RGB-D frames to disk.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"go.viam.com/rgbdgrab/config"
	"go.viam.com/rgbdgrab/device"
	"go.viam.com/rgbdgrab/device/fake"
	"go.viam.com/rgbdgrab/grabber"
	"go.viam.com/rgbdgrab/logging"
	"go.viam.com/rgbdgrab/sink"
)

const (
	// Flags.
	flagConfig          = "config"
	flagDebug           = "debug"
	flagLogFile         = "log-file"
	flagFake            = "fake"
	flagFrames          = "frames"
	flagOutput          = "output"
	flagRegistration    = "registration"
	flagDepthMode       = "depth-mode"
	flagColorResolution = "color-resolution"
	flagFPS             = "fps"
	flagDevice          = "device"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	var (
		logger  logging.Logger
		logFile io.Closer
	)

	deviceFlags := []cli.Flag{
		&cli.StringFlag{
			Name:    flagConfig,
			Aliases: []string{"c"},
			Usage:   "load configuration from `FILE`",
		},
		&cli.BoolFlag{
			Name:  flagFake,
			Usage: "use a synthetic device instead of a connected camera",
		},
		&cli.IntFlag{
			Name:  flagDevice,
			Usage: "index of the device to open",
		},
		&cli.StringFlag{
			Name:  flagDepthMode,
			Usage: "depth mode, e.g. NFOV_UNBINNED",
		},
		&cli.StringFlag{
			Name:  flagColorResolution,
			Usage: "color resolution, e.g. 1080P",
		},
		&cli.StringFlag{
			Name:  flagFPS,
			Usage: "camera frame rate: 5, 15 or 30",
		},
	}

	return &cli.App{
		Name:  "grab",
		Usage: "capture registered color, depth and point cloud frames",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
			&cli.StringFlag{
				Name:  flagLogFile,
				Usage: "also write JSON logs to `FILE`, rotated as it grows",
			},
		},
		Before: func(c *cli.Context) error {
			switch {
			case c.String(flagLogFile) != "":
				level := logging.INFO
				if c.Bool(flagDebug) {
					level = logging.DEBUG
				}
				logger, logFile = logging.NewFileLogger("grab", c.String(flagLogFile), level)
			case c.Bool(flagDebug):
				logger = logging.NewDebugLogger("grab")
			default:
				logger = logging.NewLogger("grab")
			}
			logging.ReplaceGlobal(logger)
			return nil
		},
		After: func(c *cli.Context) error {
			if logFile == nil {
				return nil
			}
			return logFile.Close()
		},
		Commands: []*cli.Command{
			{
				Name:  "capture",
				Usage: "capture frames into a directory",
				Flags: append(deviceFlags,
					&cli.IntFlag{
						Name:  flagFrames,
						Usage: "number of frames to capture, 0 to capture until interrupted",
					},
					&cli.StringFlag{
						Name:    flagOutput,
						Aliases: []string{"o"},
						Usage:   "output `DIRECTORY`",
					},
					&cli.BoolFlag{
						Name:  flagRegistration,
						Usage: "write depth reprojected onto the color image, --registration=false writes raw depth",
					},
				),
				Action: func(c *cli.Context) error {
					return captureAction(c, logger)
				},
			},
			{
				Name:  "modes",
				Usage: "list depth modes, color resolutions and the frame rates they support",
				Action: func(c *cli.Context) error {
					return modesAction(c)
				},
			},
			{
				Name:  "calibration",
				Usage: "print the device calibration for a configuration as JSON",
				Flags: deviceFlags,
				Action: func(c *cli.Context) error {
					return calibrationAction(c, logger)
				},
			},
		},
	}
}

// loadConfig reads the config file, if any, and applies command line overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg := config.Default()
	if path := c.String(flagConfig); path != "" {
		read, err := config.Read(path)
		if err != nil {
			return nil, err
		}
		cfg = *read
	}

	if c.IsSet(flagFake) && c.Bool(flagFake) && cfg.Fake == nil {
		cfg.Fake = &config.FakeConfig{}
	}
	if c.IsSet(flagDevice) {
		cfg.Device.DeviceIndex = c.Int(flagDevice)
	}
	if c.IsSet(flagDepthMode) {
		if err := cfg.Device.DepthMode.UnmarshalText([]byte(c.String(flagDepthMode))); err != nil {
			return nil, err
		}
	}
	if c.IsSet(flagColorResolution) {
		if err := cfg.Device.ColorResolution.UnmarshalText([]byte(c.String(flagColorResolution))); err != nil {
			return nil, err
		}
	}
	if c.IsSet(flagFPS) {
		if err := cfg.Device.FrameRate.UnmarshalText([]byte(c.String(flagFPS))); err != nil {
			return nil, err
		}
	}
	if c.IsSet(flagFrames) {
		cfg.Frames = c.Int(flagFrames)
	}
	if c.IsSet(flagOutput) {
		cfg.Output.Dir = c.String(flagOutput)
	}
	if c.IsSet(flagRegistration) {
		cfg.Registration = c.Bool(flagRegistration)
	}
	if err := cfg.Validate("flags"); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func newDriver(cfg *config.Config) (device.Driver, error) {
	if cfg.Fake == nil {
		return hardwareDriver()
	}
	opts := []fake.Option{}
	if cfg.Fake.Devices > 0 {
		opts = append(opts, fake.WithDeviceCount(cfg.Fake.Devices))
	}
	if cfg.Fake.Pacing {
		opts = append(opts, fake.WithPacing())
	}
	if cfg.Fake.CalibrationFile != "" {
		opts = append(opts, fake.WithCalibrationFile(cfg.Fake.CalibrationFile))
	}
	return fake.NewDriver(opts...), nil
}

func captureAction(c *cli.Context, logger logging.Logger) (err error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if !c.Bool(flagDebug) {
		logger.SetLevel(cfg.LogLevel)
	}
	driver, err := newDriver(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(c.Context, os.Interrupt)
	defer cancel()

	out, err := sink.NewDirectory(cfg.Output, logger.Sublogger("sink"))
	if err != nil {
		return err
	}
	g, err := grabber.NewDeviceGrabber(ctx, driver, cfg.Grabber(), logger.Sublogger("grabber"))
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, g.Close(context.Background()))
	}()

	stats, err := grabber.Run(ctx, g, out, cfg.RunOptions(logger))
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	latency := stats.Latency()
	fmt.Fprintf(c.App.Writer, "captured %s (%d failed grabs, mean latency %.1fms, p95 %.1fms)\n",
		out.Summary(), stats.TotalFailures(), latency.Mean, latency.P95)
	return err
}

func modesAction(c *cli.Context) error {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Depth mode", "Depth size", "Color", "Color size", "FPS"})
	for _, mode := range device.DepthModes() {
		dw, dh := mode.Dimensions()
		for _, res := range device.ColorResolutions() {
			supported := lo.Filter(device.FrameRates(), func(rate device.FrameRate, _ int) bool {
				return device.FrameRateSupported(rate, mode, res)
			})
			if len(supported) == 0 {
				continue
			}
			rates := lo.Map(supported, func(rate device.FrameRate, _ int) string {
				return rate.String()
			})
			cw, ch := res.Dimensions()
			t.AppendRow(table.Row{
				mode, fmt.Sprintf("%dx%d", dw, dh), res, fmt.Sprintf("%dx%d", cw, ch), strings.Join(rates, ","),
			})
		}
	}
	_, err := fmt.Fprintln(c.App.Writer, t.Render())
	return err
}

func calibrationAction(c *cli.Context, logger logging.Logger) (err error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	driver, err := newDriver(cfg)
	if err != nil {
		return err
	}
	dev, err := device.Open(driver, cfg.Device.DeviceIndex, logger.Sublogger("device"))
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, dev.Close())
	}()
	if err := dev.Configure(cfg.Device); err != nil {
		return err
	}
	out, err := json.MarshalIndent(dev.Calibration(), "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.App.Writer, string(out))
	return err
}
