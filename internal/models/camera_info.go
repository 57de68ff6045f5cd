package models

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gocv.io/x/gocv"
	"gopkg.in/yaml.v3"
)

// CameraInfo is the outcome of a calibration run: intrinsics plus distortion.
type CameraInfo struct {
	ImageWidth  int       `yaml:"image_width"`
	ImageHeight int       `yaml:"image_height"`
	Matrix      []float64 `yaml:"camera_matrix,flow"`
	Distortion  []float64 `yaml:"distortion_coefficients,flow"`
	RMS         float64   `yaml:"rms_reprojection_error"`
	BoardWidth  int       `yaml:"board_width"`
	BoardHeight int       `yaml:"board_height"`
	SquareSize  float64   `yaml:"square_size"`
	Snapshots   int       `yaml:"snapshots"`
	CapturedAt  time.Time `yaml:"captured_at"`
}

func (c *CameraInfo) ImageSize() image.Point {
	return image.Pt(c.ImageWidth, c.ImageHeight)
}

func (c *CameraInfo) Validate() error {
	if c == nil {
		return errors.New("camera info is nil")
	}
	if len(c.Matrix) != 9 {
		return fmt.Errorf("camera matrix needs 9 values, got %d", len(c.Matrix))
	}
	if c.Matrix[0] <= 0 || c.Matrix[4] <= 0 {
		return fmt.Errorf("camera matrix has non-positive focal length (fx=%g fy=%g)", c.Matrix[0], c.Matrix[4])
	}
	switch len(c.Distortion) {
	case 4, 5, 8, 12, 14:
	default:
		return fmt.Errorf("unsupported number of distortion coefficients: %d", len(c.Distortion))
	}
	return nil
}

// MatrixArray returns the camera matrix as a fixed size array.
func (c *CameraInfo) MatrixArray() [9]float64 {
	var out [9]float64
	copy(out[:], c.Matrix)
	return out
}

// CameraMat builds a 3x3 CV_64F camera matrix. The caller owns it.
func (c *CameraInfo) CameraMat() gocv.Mat {
	m := gocv.NewMatWithSize(3, 3, gocv.MatTypeCV64FC1)
	for i, v := range c.MatrixArray() {
		m.SetDoubleAt(i/3, i%3, v)
	}
	return m
}

// DistortionMat builds an Nx1 CV_64F coefficient vector. The caller owns it.
func (c *CameraInfo) DistortionMat() gocv.Mat {
	m := gocv.NewMatWithSize(len(c.Distortion), 1, gocv.MatTypeCV64FC1)
	for i, v := range c.Distortion {
		m.SetDoubleAt(i, 0, v)
	}
	return m
}

// SetFromMats copies calibrateCamera outputs. Distortion may be a row or column vector.
func (c *CameraInfo) SetFromMats(camera, dist gocv.Mat) error {
	if camera.Rows() != 3 || camera.Cols() != 3 || camera.Type() != gocv.MatTypeCV64FC1 {
		return fmt.Errorf("expected 3x3 CV_64F camera matrix, got %dx%d", camera.Rows(), camera.Cols())
	}
	if dist.Type() != gocv.MatTypeCV64FC1 || (dist.Rows() != 1 && dist.Cols() != 1) {
		return fmt.Errorf("expected CV_64F distortion vector, got %dx%d", dist.Rows(), dist.Cols())
	}

	c.Matrix = make([]float64, 9)
	for r := 0; r < 3; r++ {
		for col := 0; col < 3; col++ {
			c.Matrix[r*3+col] = camera.GetDoubleAt(r, col)
		}
	}

	n := dist.Rows() * dist.Cols()
	c.Distortion = make([]float64, n)
	for i := 0; i < n; i++ {
		if dist.Rows() == 1 {
			c.Distortion[i] = dist.GetDoubleAt(0, i)
		} else {
			c.Distortion[i] = dist.GetDoubleAt(i, 0)
		}
	}
	return nil
}

// Dump renders the matrix and coefficients the way OpenCV prints Mats.
func (c *CameraInfo) Dump() string {
	var b strings.Builder
	b.WriteString("camera matrix:\n[")
	for r := 0; r < 3; r++ {
		if r > 0 {
			b.WriteString(";\n ")
		}
		for col := 0; col < 3; col++ {
			if col > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%g", c.MatrixArray()[r*3+col])
		}
	}
	b.WriteString("]\ndistortion:\n[")
	for i, v := range c.Distortion {
		if i > 0 {
			b.WriteString(";\n ")
		}
		fmt.Fprintf(&b, "%g", v)
	}
	b.WriteString("]")
	if c.RMS > 0 {
		fmt.Fprintf(&b, "\nrms reprojection error: %.4f", c.RMS)
	}
	return b.String()
}

func (c *CameraInfo) Save(path string) error {
	if err := c.Validate(); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding camera info: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing camera info: %w", err)
	}
	return nil
}

func LoadCameraInfo(path string) (*CameraInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading camera info: %w", err)
	}

	var info CameraInfo
	if err := yaml.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("decoding camera info %s: %w", path, err)
	}
	if err := info.Validate(); err != nil {
		return nil, fmt.Errorf("camera info %s: %w", path, err)
	}
	return &info, nil
}
