package device

import (
	"strings"

	"github.com/pkg/errors"
)

// ColorFormat is the pixel encoding of the color stream.
type ColorFormat int

// Color formats, numbered as in libk4a.
const (
	ColorFormatMJPG ColorFormat = iota
	ColorFormatNV12
	ColorFormatYUY2
	ColorFormatBGRA32
)

var colorFormatNames = map[ColorFormat]string{
	ColorFormatMJPG:   "MJPG",
	ColorFormatNV12:   "NV12",
	ColorFormatYUY2:   "YUY2",
	ColorFormatBGRA32: "BGRA32",
}

func (f ColorFormat) String() string {
	if name, ok := colorFormatNames[f]; ok {
		return name
	}
	return "UNKNOWN"
}

// MarshalText implements encoding.TextMarshaler.
func (f ColorFormat) MarshalText() ([]byte, error) {
	if _, ok := colorFormatNames[f]; !ok {
		return nil, errors.Errorf("unknown color format %d", int(f))
	}
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *ColorFormat) UnmarshalText(text []byte) error {
	return parseEnum(text, colorFormatNames, f, "color format")
}

// ColorResolution is the resolution of the color stream.
type ColorResolution int

// Color resolutions, numbered as in libk4a.
const (
	ColorResolutionOff ColorResolution = iota
	ColorResolution720P
	ColorResolution1080P
	ColorResolution1440P
	ColorResolution1536P
	ColorResolution2160P
	ColorResolution3072P
)

var colorResolutionNames = map[ColorResolution]string{
	ColorResolutionOff:   "OFF",
	ColorResolution720P:  "720P",
	ColorResolution1080P: "1080P",
	ColorResolution1440P: "1440P",
	ColorResolution1536P: "1536P",
	ColorResolution2160P: "2160P",
	ColorResolution3072P: "3072P",
}

var colorResolutionSizes = map[ColorResolution][2]int{
	ColorResolution720P:  {1280, 720},
	ColorResolution1080P: {1920, 1080},
	ColorResolution1440P: {2560, 1440},
	ColorResolution1536P: {2048, 1536},
	ColorResolution2160P: {3840, 2160},
	ColorResolution3072P: {4096, 3072},
}

func (r ColorResolution) String() string {
	if name, ok := colorResolutionNames[r]; ok {
		return name
	}
	return "UNKNOWN"
}

// Dimensions returns the width and height of color images in this resolution, or zeros when the
// color camera is off.
func (r ColorResolution) Dimensions() (int, int) {
	size := colorResolutionSizes[r]
	return size[0], size[1]
}

// MarshalText implements encoding.TextMarshaler.
func (r ColorResolution) MarshalText() ([]byte, error) {
	if _, ok := colorResolutionNames[r]; !ok {
		return nil, errors.Errorf("unknown color resolution %d", int(r))
	}
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *ColorResolution) UnmarshalText(text []byte) error {
	return parseEnum(text, colorResolutionNames, r, "color resolution")
}

// DepthMode is the depth sensing mode, trading range for resolution.
type DepthMode int

// Depth modes, numbered as in libk4a.
const (
	DepthModeOff DepthMode = iota
	DepthModeNFOV2x2Binned
	DepthModeNFOVUnbinned
	DepthModeWFOV2x2Binned
	DepthModeWFOVUnbinned
	DepthModePassiveIR
)

var depthModeNames = map[DepthMode]string{
	DepthModeOff:           "OFF",
	DepthModeNFOV2x2Binned: "NFOV_2X2BINNED",
	DepthModeNFOVUnbinned:  "NFOV_UNBINNED",
	DepthModeWFOV2x2Binned: "WFOV_2X2BINNED",
	DepthModeWFOVUnbinned:  "WFOV_UNBINNED",
	DepthModePassiveIR:     "PASSIVE_IR",
}

var depthModeSizes = map[DepthMode][2]int{
	DepthModeNFOV2x2Binned: {320, 288},
	DepthModeNFOVUnbinned:  {640, 576},
	DepthModeWFOV2x2Binned: {512, 512},
	DepthModeWFOVUnbinned:  {1024, 1024},
	DepthModePassiveIR:     {1024, 1024},
}

func (m DepthMode) String() string {
	if name, ok := depthModeNames[m]; ok {
		return name
	}
	return "UNKNOWN"
}

// Dimensions returns the width and height of depth images in this mode.
func (m DepthMode) Dimensions() (int, int) {
	size := depthModeSizes[m]
	return size[0], size[1]
}

// HasDepth reports whether the mode produces depth images.
func (m DepthMode) HasDepth() bool {
	return m != DepthModeOff && m != DepthModePassiveIR
}

// MarshalText implements encoding.TextMarshaler.
func (m DepthMode) MarshalText() ([]byte, error) {
	if _, ok := depthModeNames[m]; !ok {
		return nil, errors.Errorf("unknown depth mode %d", int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *DepthMode) UnmarshalText(text []byte) error {
	return parseEnum(text, depthModeNames, m, "depth mode")
}

// FrameRate is the rate both cameras run at.
type FrameRate int

// Frame rates, numbered as in libk4a.
const (
	FrameRate5 FrameRate = iota
	FrameRate15
	FrameRate30
)

var frameRateNames = map[FrameRate]string{
	FrameRate5:  "5",
	FrameRate15: "15",
	FrameRate30: "30",
}

func (r FrameRate) String() string {
	if name, ok := frameRateNames[r]; ok {
		return name
	}
	return "UNKNOWN"
}

// Hz returns the frame rate in frames per second.
func (r FrameRate) Hz() int {
	switch r {
	case FrameRate5:
		return 5
	case FrameRate15:
		return 15
	case FrameRate30:
		return 30
	}
	return 0
}

// MarshalText implements encoding.TextMarshaler.
func (r FrameRate) MarshalText() ([]byte, error) {
	if _, ok := frameRateNames[r]; !ok {
		return nil, errors.Errorf("unknown frame rate %d", int(r))
	}
	return []byte(r.String()), nil
}

// UnmarshalText accepts "15", "15FPS" and "FPS_15".
func (r *FrameRate) UnmarshalText(text []byte) error {
	s := strings.ToUpper(strings.TrimSpace(string(text)))
	s = strings.TrimPrefix(s, "FPS_")
	s = strings.TrimSuffix(s, "FPS")
	return parseEnum([]byte(s), frameRateNames, r, "frame rate")
}

func parseEnum[T comparable](text []byte, names map[T]string, out *T, what string) error {
	s := strings.ToUpper(strings.TrimSpace(string(text)))
	for v, name := range names {
		if name == s {
			*out = v
			return nil
		}
	}
	return errors.Errorf("unknown %s %q", what, string(text))
}

// ColorFormats lists every color format.
func ColorFormats() []ColorFormat {
	return []ColorFormat{ColorFormatMJPG, ColorFormatNV12, ColorFormatYUY2, ColorFormatBGRA32}
}

// ColorResolutions lists the color resolutions that produce images.
func ColorResolutions() []ColorResolution {
	return []ColorResolution{
		ColorResolution720P, ColorResolution1080P, ColorResolution1440P,
		ColorResolution1536P, ColorResolution2160P, ColorResolution3072P,
	}
}

// DepthModes lists the depth modes that produce depth images.
func DepthModes() []DepthMode {
	return []DepthMode{DepthModeNFOV2x2Binned, DepthModeNFOVUnbinned, DepthModeWFOV2x2Binned, DepthModeWFOVUnbinned}
}

// FrameRates lists every frame rate.
func FrameRates() []FrameRate {
	return []FrameRate{FrameRate5, FrameRate15, FrameRate30}
}

// FrameRateSupported reports whether both cameras can run at rate in these modes. 30 fps is not
// available with the unbinned wide field of view or with 3072P color.
func FrameRateSupported(rate FrameRate, depthMode DepthMode, colorResolution ColorResolution) bool {
	if rate != FrameRate30 {
		return true
	}
	return depthMode != DepthModeWFOVUnbinned && colorResolution != ColorResolution3072P
}
