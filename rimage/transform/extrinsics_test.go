package transform

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func TestExtrinsicsCheckValid(t *testing.T) {
	id := IdentityExtrinsics()
	test.That(t, id.CheckValid(), test.ShouldBeNil)

	rot := NewExtrinsicsFromAxisAngle(r3.Vector{X: 1}, -6*math.Pi/180, r3.Vector{X: -32, Y: -2, Z: 4})
	test.That(t, rot.CheckValid(), test.ShouldBeNil)

	scaled := IdentityExtrinsics()
	scaled.RotationMatrix[0] = 2
	test.That(t, scaled.CheckValid(), test.ShouldNotBeNil)

	reflection := IdentityExtrinsics()
	reflection.RotationMatrix[8] = -1
	test.That(t, reflection.CheckValid(), test.ShouldNotBeNil)

	short := Extrinsics{RotationMatrix: []float64{1, 0, 0}, TranslationVector: []float64{0, 0, 0}}
	test.That(t, short.CheckValid(), test.ShouldNotBeNil)
	short = Extrinsics{RotationMatrix: IdentityExtrinsics().RotationMatrix, TranslationVector: []float64{0}}
	test.That(t, short.CheckValid(), test.ShouldNotBeNil)

	var missing *Extrinsics
	test.That(t, missing.CheckValid(), test.ShouldNotBeNil)
}

func TestExtrinsicsInverse(t *testing.T) {
	e := NewExtrinsicsFromAxisAngle(r3.Vector{X: 1, Y: 0.2, Z: -0.1}, 0.3, r3.Vector{X: -32, Y: -2, Z: 4})
	inv := e.Inverse()
	test.That(t, inv.CheckValid(), test.ShouldBeNil)

	p := r3.Vector{X: 120, Y: -45, Z: 1500}
	q := e.TransformPoint(p)
	back := inv.TransformPoint(q)
	test.That(t, back.X, test.ShouldAlmostEqual, p.X, 1e-9)
	test.That(t, back.Y, test.ShouldAlmostEqual, p.Y, 1e-9)
	test.That(t, back.Z, test.ShouldAlmostEqual, p.Z, 1e-9)

	// rotations preserve distances
	test.That(t, q.Sub(e.Translation()).Norm(), test.ShouldAlmostEqual, p.Norm(), 1e-9)
}
