// Package inject provides grabbers whose methods can be replaced in tests.
package inject

import (
	"context"

	"go.viam.com/rgbdgrab/grabber"
	"go.viam.com/rgbdgrab/rimage/transform"
)

// Grabber is an injected grabber.
type Grabber struct {
	grabber.Grabber
	GrabFunc            func(ctx context.Context) (*grabber.Frame, error)
	SetRegistrationFunc func(enabled bool) bool
	IntrinsicsFunc      func() transform.PinholeCameraIntrinsics
	CloseFunc           func(ctx context.Context) error
}

// Grab calls the injected Grab or the real version.
func (g *Grabber) Grab(ctx context.Context) (*grabber.Frame, error) {
	if g.GrabFunc == nil {
		return g.Grabber.Grab(ctx)
	}
	return g.GrabFunc(ctx)
}

// SetRegistration calls the injected SetRegistration or the real version.
func (g *Grabber) SetRegistration(enabled bool) bool {
	if g.SetRegistrationFunc == nil {
		return g.Grabber.SetRegistration(enabled)
	}
	return g.SetRegistrationFunc(enabled)
}

// Intrinsics calls the injected Intrinsics or the real version.
func (g *Grabber) Intrinsics() transform.PinholeCameraIntrinsics {
	if g.IntrinsicsFunc == nil {
		return g.Grabber.Intrinsics()
	}
	return g.IntrinsicsFunc()
}

// Close calls the injected Close or the real version.
func (g *Grabber) Close(ctx context.Context) error {
	if g.CloseFunc == nil {
		if g.Grabber == nil {
			return nil
		}
		return g.Grabber.Close(ctx)
	}
	return g.CloseFunc(ctx)
}
