//go:build !k4a

package main

import (
	"github.com/pkg/errors"

	"go.viam.com/rgbdgrab/device"
)

func hardwareDriver() (device.Driver, error) {
	return nil, errors.New("grab was built without camera support, rebuild with -tags k4a or use --fake")
}
