// Package geometry holds the small amount of projective algebra the stitcher and
// marker pipeline do themselves: homography composition, four-point solves,
// planar pose recovery and pinhole projection.
package geometry

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/r2"
	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/mat"
)

// ErrDegenerate is returned when a transform cannot be computed or applied.
var ErrDegenerate = errors.New("degenerate transform")

// Homography is a 3x3 projective transform in row-major order.
type Homography struct {
	m *mat.Dense
}

func Identity() Homography {
	return Homography{m: mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})}
}

func NewHomography(vals []float64) (Homography, error) {
	if len(vals) != 9 {
		return Homography{}, fmt.Errorf("homography needs 9 values, got %d", len(vals))
	}
	data := make([]float64, 9)
	copy(data, vals)
	return Homography{m: mat.NewDense(3, 3, data)}, nil
}

// Translation shifts points by (tx, ty).
func Translation(tx, ty float64) Homography {
	return Homography{m: mat.NewDense(3, 3, []float64{1, 0, tx, 0, 1, ty, 0, 0, 1})}
}

// Compose returns h*other: other is applied first, then h.
func (h Homography) Compose(other Homography) Homography {
	var out mat.Dense
	out.Mul(h.m, other.m)
	return Homography{m: &out}
}

func (h Homography) At(row, col int) float64 {
	return h.m.At(row, col)
}

// Values returns a row-major copy of the matrix.
func (h Homography) Values() []float64 {
	out := make([]float64, 0, 9)
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			out = append(out, h.m.At(r, c))
		}
	}
	return out
}

// Apply maps p through h.
func (h Homography) Apply(p r2.Point) (r2.Point, error) {
	w := h.m.At(2, 0)*p.X + h.m.At(2, 1)*p.Y + h.m.At(2, 2)
	if math.Abs(w) < 1e-12 {
		return r2.Point{}, fmt.Errorf("%w: point %v maps to infinity", ErrDegenerate, p)
	}
	return r2.Point{
		X: (h.m.At(0, 0)*p.X + h.m.At(0, 1)*p.Y + h.m.At(0, 2)) / w,
		Y: (h.m.At(1, 0)*p.X + h.m.At(1, 1)*p.Y + h.m.At(1, 2)) / w,
	}, nil
}

// Normalize scales h so that h[2][2] == 1.
func (h Homography) Normalize() (Homography, error) {
	s := h.m.At(2, 2)
	if math.Abs(s) < 1e-12 {
		return Homography{}, fmt.Errorf("%w: h22 is zero", ErrDegenerate)
	}
	var out mat.Dense
	out.Scale(1/s, h.m)
	return Homography{m: &out}, nil
}

// FromMat reads a 3x3 CV_64F Mat such as the one returned by FindHomography.
func FromMat(m gocv.Mat) (Homography, error) {
	if m.Empty() {
		return Homography{}, fmt.Errorf("%w: empty matrix", ErrDegenerate)
	}
	if m.Rows() != 3 || m.Cols() != 3 || m.Type() != gocv.MatTypeCV64FC1 {
		return Homography{}, fmt.Errorf("expected 3x3 CV_64F matrix, got %dx%d type %d", m.Rows(), m.Cols(), int(m.Type()))
	}

	data := make([]float64, 9)
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			data[r*3+c] = m.GetDoubleAt(r, c)
		}
	}
	return Homography{m: mat.NewDense(3, 3, data)}, nil
}

// ToMat builds a new CV_64F Mat. The caller owns it.
func (h Homography) ToMat() gocv.Mat {
	out := gocv.NewMatWithSize(3, 3, gocv.MatTypeCV64FC1)
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			out.SetDoubleAt(r, c, h.m.At(r, c))
		}
	}
	return out
}

// SolveFourPoint computes the homography mapping src[i] onto dst[i] exactly,
// fixing h22 to 1.
func SolveFourPoint(src, dst [4]r2.Point) (Homography, error) {
	a := mat.NewDense(8, 8, nil)
	b := mat.NewVecDense(8, nil)

	for i := 0; i < 4; i++ {
		X, Y := src[i].X, src[i].Y
		x, y := dst[i].X, dst[i].Y
		r := 2 * i

		a.SetRow(r, []float64{X, Y, 1, 0, 0, 0, -X * x, -Y * x})
		b.SetVec(r, x)

		a.SetRow(r+1, []float64{0, 0, 0, X, Y, 1, -X * y, -Y * y})
		b.SetVec(r+1, y)
	}

	var h mat.VecDense
	if err := h.SolveVec(a, b); err != nil {
		return Homography{}, fmt.Errorf("%w: %v", ErrDegenerate, err)
	}

	vals := make([]float64, 9)
	for i := 0; i < 8; i++ {
		vals[i] = h.AtVec(i)
	}
	vals[8] = 1
	return NewHomography(vals)
}
