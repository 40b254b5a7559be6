package transform

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// orthonormalTolerance bounds how far R*Rᵀ may drift from identity.
const orthonormalTolerance = 1e-4

// Extrinsics is a rigid transform from one camera frame to another: p' = R*p + T.
// Rotation is row-major, translation is in millimetres.
type Extrinsics struct {
	RotationMatrix    []float64 `json:"rotation"`
	TranslationVector []float64 `json:"translation"`
}

// IdentityExtrinsics returns the transform that changes nothing.
func IdentityExtrinsics() Extrinsics {
	return Extrinsics{
		RotationMatrix:    []float64{1, 0, 0, 0, 1, 0, 0, 0, 1},
		TranslationVector: []float64{0, 0, 0},
	}
}

// NewExtrinsicsFromAxisAngle builds extrinsics from a rotation of angle radians about axis and
// a translation.
func NewExtrinsicsFromAxisAngle(axis r3.Vector, angle float64, translation r3.Vector) Extrinsics {
	a := axis.Normalize()
	c, s := math.Cos(angle), math.Sin(angle)
	t := 1 - c
	return Extrinsics{
		RotationMatrix: []float64{
			t*a.X*a.X + c, t*a.X*a.Y - s*a.Z, t*a.X*a.Z + s*a.Y,
			t*a.X*a.Y + s*a.Z, t*a.Y*a.Y + c, t*a.Y*a.Z - s*a.X,
			t*a.X*a.Z - s*a.Y, t*a.Y*a.Z + s*a.X, t*a.Z*a.Z + c,
		},
		TranslationVector: []float64{translation.X, translation.Y, translation.Z},
	}
}

// CheckValid checks that the rotation is a proper rotation and the translation has 3 entries.
func (e *Extrinsics) CheckValid() error {
	if e == nil {
		return errors.New("extrinsics do not exist")
	}
	if len(e.RotationMatrix) != 9 {
		return errors.Errorf("rotation matrix should have 9 elements, got %d", len(e.RotationMatrix))
	}
	if len(e.TranslationVector) != 3 {
		return errors.Errorf("translation vector should have 3 elements, got %d", len(e.TranslationVector))
	}
	rot := e.Rotation()
	var rrt mat.Dense
	rrt.Mul(rot, rot.T())
	if !mat.EqualApprox(&rrt, identity3(), orthonormalTolerance) {
		return errors.New("rotation matrix is not orthonormal")
	}
	if det := mat.Det(rot); math.Abs(det-1) > orthonormalTolerance {
		return errors.Errorf("rotation matrix determinant should be 1, got %v", det)
	}
	return nil
}

func identity3() *mat.Dense {
	return mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
}

// Rotation returns the rotation as a gonum matrix.
func (e *Extrinsics) Rotation() *mat.Dense {
	data := make([]float64, 9)
	copy(data, e.RotationMatrix)
	return mat.NewDense(3, 3, data)
}

// Translation returns the translation as a vector.
func (e *Extrinsics) Translation() r3.Vector {
	return r3.Vector{X: e.TranslationVector[0], Y: e.TranslationVector[1], Z: e.TranslationVector[2]}
}

// TransformPoint applies R*p + T.
func (e *Extrinsics) TransformPoint(p r3.Vector) r3.Vector {
	r := e.RotationMatrix
	t := e.TranslationVector
	return r3.Vector{
		X: r[0]*p.X + r[1]*p.Y + r[2]*p.Z + t[0],
		Y: r[3]*p.X + r[4]*p.Y + r[5]*p.Z + t[1],
		Z: r[6]*p.X + r[7]*p.Y + r[8]*p.Z + t[2],
	}
}

// Inverse returns the transform going the other way: p = Rᵀ*(p' - T).
func (e *Extrinsics) Inverse() Extrinsics {
	var rt mat.Dense
	rt.CloneFrom(e.Rotation().T())
	var t mat.VecDense
	t.MulVec(&rt, mat.NewVecDense(3, []float64{e.TranslationVector[0], e.TranslationVector[1], e.TranslationVector[2]}))
	return Extrinsics{
		RotationMatrix:    append([]float64(nil), rt.RawMatrix().Data...),
		TranslationVector: []float64{-t.AtVec(0), -t.AtVec(1), -t.AtVec(2)},
	}
}
