package geometry

import (
	"fmt"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
)

// Intrinsics are the pinhole parameters of a camera matrix.
type Intrinsics struct {
	Fx, Fy float64
	Cx, Cy float64
}

// IntrinsicsFromMatrix reads fx, fy, cx, cy from a row-major 3x3 camera matrix.
func IntrinsicsFromMatrix(m [9]float64) Intrinsics {
	return Intrinsics{Fx: m[0], Fy: m[4], Cx: m[2], Cy: m[5]}
}

// Distortion holds Brown-Conrady coefficients in OpenCV order (k1, k2, p1, p2, k3).
type Distortion struct {
	K1, K2, P1, P2, K3 float64
}

// NewDistortion takes up to the first five OpenCV coefficients; missing ones are zero.
// Higher order rational terms are ignored.
func NewDistortion(coeffs []float64) (Distortion, error) {
	if len(coeffs) > 14 {
		return Distortion{}, fmt.Errorf("too many distortion coefficients: %d", len(coeffs))
	}
	padded := make([]float64, 5)
	copy(padded, coeffs)
	return Distortion{K1: padded[0], K2: padded[1], P1: padded[2], P2: padded[3], K3: padded[4]}, nil
}

// Apply distorts a normalized image point.
func (d Distortion) Apply(x, y float64) (float64, float64) {
	r2 := x*x + y*y
	radial := 1 + d.K1*r2 + d.K2*r2*r2 + d.K3*r2*r2*r2
	xd := x*radial + 2*d.P1*x*y + d.P2*(r2+2*x*x)
	yd := y*radial + d.P1*(r2+2*y*y) + 2*d.P2*x*y
	return xd, yd
}

// ProjectPoints projects object-frame points into pixel coordinates.
func ProjectPoints(points []r3.Vector, pose Pose, k Intrinsics, d Distortion) ([]r2.Point, error) {
	out := make([]r2.Point, 0, len(points))
	for _, p := range points {
		c := pose.Transform(p)
		if c.Z <= 0 {
			return nil, fmt.Errorf("%w: point %v is behind the camera", ErrDegenerate, p)
		}
		x, y := d.Apply(c.X/c.Z, c.Y/c.Z)
		out = append(out, r2.Point{X: k.Fx*x + k.Cx, Y: k.Fy*y + k.Cy})
	}
	return out, nil
}
