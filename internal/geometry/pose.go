package geometry

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// Pose is a rigid transform from an object frame into the camera frame.
type Pose struct {
	Rotation    *mat.Dense
	Translation r3.Vector
}

// Distance is the straight-line distance from the camera to the object origin.
func (p Pose) Distance() float64 {
	return p.Translation.Norm()
}

// Transform maps an object-frame point into the camera frame.
func (p Pose) Transform(v r3.Vector) r3.Vector {
	R := p.Rotation
	return r3.Vector{
		X: R.At(0, 0)*v.X + R.At(0, 1)*v.Y + R.At(0, 2)*v.Z + p.Translation.X,
		Y: R.At(1, 0)*v.X + R.At(1, 1)*v.Y + R.At(1, 2)*v.Z + p.Translation.Y,
		Z: R.At(2, 0)*v.X + R.At(2, 1)*v.Y + R.At(2, 2)*v.Z + p.Translation.Z,
	}
}

// RotationVector returns the axis-angle (Rodrigues) form of the rotation.
func (p Pose) RotationVector() r3.Vector {
	R := p.Rotation
	trace := R.At(0, 0) + R.At(1, 1) + R.At(2, 2)
	cosTheta := math.Max(-1, math.Min(1, (trace-1)/2))
	theta := math.Acos(cosTheta)

	if theta < 1e-9 {
		return r3.Vector{}
	}

	if math.Pi-theta < 1e-6 {
		// sin(theta) vanishes; recover the axis from the diagonal.
		axis := r3.Vector{
			X: math.Sqrt(math.Max(0, (R.At(0, 0)+1)/2)),
			Y: math.Sqrt(math.Max(0, (R.At(1, 1)+1)/2)),
			Z: math.Sqrt(math.Max(0, (R.At(2, 2)+1)/2)),
		}
		if R.At(0, 1) < 0 {
			axis.Y = -axis.Y
		}
		if R.At(0, 2) < 0 {
			axis.Z = -axis.Z
		}
		return axis.Normalize().Mul(theta)
	}

	axis := r3.Vector{
		X: R.At(2, 1) - R.At(1, 2),
		Y: R.At(0, 2) - R.At(2, 0),
		Z: R.At(1, 0) - R.At(0, 1),
	}
	return axis.Mul(theta / (2 * math.Sin(theta)))
}

// RotationFromVector is the inverse of RotationVector.
func RotationFromVector(v r3.Vector) *mat.Dense {
	theta := v.Norm()
	if theta < 1e-12 {
		return mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
	}
	k := v.Mul(1 / theta)
	c, s := math.Cos(theta), math.Sin(theta)
	t := 1 - c
	return mat.NewDense(3, 3, []float64{
		t*k.X*k.X + c, t*k.X*k.Y - s*k.Z, t*k.X*k.Z + s*k.Y,
		t*k.X*k.Y + s*k.Z, t*k.Y*k.Y + c, t*k.Y*k.Z - s*k.X,
		t*k.X*k.Z - s*k.Y, t*k.Y*k.Z + s*k.X, t*k.Z*k.Z + c,
	})
}

// PoseFromPlanarHomography recovers the pose of a plane (Z=0 in object space)
// from the homography mapping object coordinates onto normalized image
// coordinates. The rotation is projected onto SO(3) with an SVD.
func PoseFromPlanarHomography(h Homography) (Pose, error) {
	h1 := r3.Vector{X: h.At(0, 0), Y: h.At(1, 0), Z: h.At(2, 0)}
	h2 := r3.Vector{X: h.At(0, 1), Y: h.At(1, 1), Z: h.At(2, 1)}
	h3 := r3.Vector{X: h.At(0, 2), Y: h.At(1, 2), Z: h.At(2, 2)}

	norm := (h1.Norm() + h2.Norm()) / 2
	if norm < 1e-12 {
		return Pose{}, fmt.Errorf("%w: homography columns vanish", ErrDegenerate)
	}
	lambda := 1 / norm
	if h3.Z < 0 {
		// the plane must lie in front of the camera
		lambda = -lambda
	}

	r1 := h1.Mul(lambda)
	r2 := h2.Mul(lambda)
	r3v := r1.Cross(r2)
	t := h3.Mul(lambda)

	approx := mat.NewDense(3, 3, []float64{
		r1.X, r2.X, r3v.X,
		r1.Y, r2.Y, r3v.Y,
		r1.Z, r2.Z, r3v.Z,
	})

	var svd mat.SVD
	if ok := svd.Factorize(approx, mat.SVDFull); !ok {
		return Pose{}, fmt.Errorf("%w: SVD failed", ErrDegenerate)
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	var rot mat.Dense
	rot.Mul(&u, v.T())
	if mat.Det(&rot) < 0 {
		return Pose{}, fmt.Errorf("%w: reflected rotation", ErrDegenerate)
	}

	return Pose{Rotation: &rot, Translation: t}, nil
}
