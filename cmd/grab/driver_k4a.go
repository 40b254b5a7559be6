//go:build k4a

package main

import (
	"go.viam.com/rgbdgrab/device"
	"go.viam.com/rgbdgrab/device/k4a"
)

func hardwareDriver() (device.Driver, error) {
	return k4a.NewDriver(), nil
}
