package config

import (
	"bytes"
	"encoding"
	"encoding/json"
	"io"
	"reflect"
	"time"

	"github.com/a8m/envsubst"
	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
)

var (
	durationType        = reflect.TypeOf(time.Duration(0))
	textUnmarshalerType = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()
)

// Read reads a config from the given file, expanding ${VAR} references from the environment.
func Read(filePath string) (*Config, error) {
	buf, err := envsubst.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return FromReader(filePath, bytes.NewReader(buf))
}

// FromReader reads a config from the given reader and specifies
// where, if applicable, the file the reader originated from.
func FromReader(originalPath string, r io.Reader) (*Config, error) {
	var raw map[string]interface{}
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, errors.Wrap(err, "failed to decode Config from json")
	}

	cfg := Default()
	if err := decode(raw, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to decode Config")
	}
	cfg.ConfigFilePath = originalPath
	if err := cfg.Validate("config"); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// decode fills result from a JSON object, keeping fields the object does not mention.
func decode(raw map[string]interface{}, result interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:     "json",
		Result:      result,
		ErrorUnused: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			durationHook,
			numberToTextHook,
			mapstructure.TextUnmarshallerHookFunc(),
			lenientScalarHook,
		),
	})
	if err != nil {
		return err
	}
	return decoder.Decode(raw)
}

// durationHook reads durations from strings like "1.5s" and treats bare numbers as milliseconds.
func durationHook(from, to reflect.Type, data interface{}) (interface{}, error) {
	if to != durationType {
		return data, nil
	}
	if s, ok := data.(string); ok {
		if ms, err := cast.ToFloat64E(s); err == nil {
			return time.Duration(ms * float64(time.Millisecond)), nil
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid duration %q", s)
		}
		return d, nil
	}
	ms, err := cast.ToFloat64E(data)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid duration %v", data)
	}
	return time.Duration(ms * float64(time.Millisecond)), nil
}

// numberToTextHook lets enums be written as numbers, like "camera_fps": 30.
func numberToTextHook(from, to reflect.Type, data interface{}) (interface{}, error) {
	if from.Kind() == reflect.String || !reflect.PointerTo(to).Implements(textUnmarshalerType) {
		return data, nil
	}
	switch from.Kind() {
	case reflect.Float32, reflect.Float64, reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return cast.ToStringE(data)
	default:
		return data, nil
	}
}

// lenientScalarHook accepts quoted numbers and booleans, like "frames": "10" or "registration": "yes".
func lenientScalarHook(from, to reflect.Type, data interface{}) (interface{}, error) {
	s, ok := data.(string)
	if !ok {
		return data, nil
	}
	switch to.Kind() {
	case reflect.Bool:
		switch s {
		case "yes", "on":
			return true, nil
		case "no", "off":
			return false, nil
		}
		return cast.ToBoolE(s)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return cast.ToInt64E(s)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return cast.ToUint64E(s)
	case reflect.Float32, reflect.Float64:
		return cast.ToFloat64E(s)
	default:
		return data, nil
	}
}
