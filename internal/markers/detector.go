// Package markers finds ArUco markers in camera frames and estimates how far
// each one is from the camera.
package markers

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"

	"pano-calib/internal/geometry"
	"pano-calib/internal/logger"
	"pano-calib/internal/models"
	"pano-calib/internal/opencv/conversion"
	"pano-calib/internal/opencv/safe"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gocv.io/x/gocv"
)

// ErrClosed is returned by Detect after Close.
var ErrClosed = errors.New("marker detector closed")

const (
	DefaultMarkerLength = 0.05
	DefaultAxisLength   = 0.1
)

var dictionaries = map[string]gocv.ArucoDictionaryCode{
	"4x4_50":   gocv.ArucoDict4x4_50,
	"4x4_100":  gocv.ArucoDict4x4_100,
	"5x5_100":  gocv.ArucoDict5x5_100,
	"6x6_50":   gocv.ArucoDict6x6_50,
	"6x6_250":  gocv.ArucoDict6x6_250,
	"6x6_1000": gocv.ArucoDict6x6_1000,
}

// ParseDictionary maps names such as "6x6_250" onto OpenCV's predefined dictionaries.
func ParseDictionary(name string) (gocv.ArucoDictionaryCode, error) {
	if name == "" {
		return gocv.ArucoDict6x6_250, nil
	}
	d, ok := dictionaries[name]
	if !ok {
		return 0, fmt.Errorf("unknown aruco dictionary %q", name)
	}
	return d, nil
}

type Options struct {
	Dictionary   string
	MarkerLength float64
	AxisLength   float64
}

func DefaultOptions() Options {
	return Options{
		Dictionary:   "6x6_250",
		MarkerLength: DefaultMarkerLength,
		AxisLength:   DefaultAxisLength,
	}
}

// MarkerPose is the pose of one marker in camera coordinates, in the unit
// MarkerLength is given in.
type MarkerPose struct {
	ID       int
	Corners  [4]gocv.Point2f
	RVec     r3.Vector
	TVec     r3.Vector
	Distance float64
}

type Detector struct {
	mu      sync.Mutex
	aruco   gocv.ArucoDetector
	closed  bool
	opts    Options
	objects [4]r2.Point
	logger  logger.Logger
}

func NewDetector(opts Options, log logger.Logger) (*Detector, error) {
	defaults := DefaultOptions()
	if opts.MarkerLength <= 0 {
		opts.MarkerLength = defaults.MarkerLength
	}
	if opts.AxisLength <= 0 {
		opts.AxisLength = defaults.AxisLength
	}
	dict, err := ParseDictionary(opts.Dictionary)
	if err != nil {
		return nil, err
	}

	half := opts.MarkerLength / 2
	return &Detector{
		aruco: gocv.NewArucoDetectorWithParams(gocv.GetPredefinedDictionary(dict), gocv.NewArucoDetectorParameters()),
		opts:  opts,
		// marker corners in detection order: top-left, top-right, bottom-right, bottom-left
		objects: [4]r2.Point{
			{X: -half, Y: half},
			{X: half, Y: half},
			{X: half, Y: -half},
			{X: -half, Y: -half},
		},
		logger: log,
	}, nil
}

func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.aruco.Close()
}

// Detect finds markers in frame, draws their outlines and axes and returns one
// pose per marker. A 4 channel frame is converted to 3 channels in place.
func (d *Detector) Detect(frame *gocv.Mat, info *models.CameraInfo) ([]MarkerPose, error) {
	if err := safe.ValidateMat(*frame, "detect markers"); err != nil {
		return nil, err
	}
	if err := info.Validate(); err != nil {
		return nil, fmt.Errorf("camera info: %w", err)
	}

	conversion.DropAlpha(frame)

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, ErrClosed
	}
	corners, ids, _ := d.aruco.DetectMarkers(*frame)
	d.mu.Unlock()

	if len(ids) == 0 {
		return []MarkerPose{}, nil
	}

	gocv.ArucoDrawDetectedMarkers(*frame, corners, ids, gocv.NewScalar(0, 255, 0, 0))

	intrinsics := geometry.IntrinsicsFromMatrix(info.MatrixArray())
	distortion, err := geometry.NewDistortion(info.Distortion)
	if err != nil {
		return nil, err
	}

	cameraMatrix := info.CameraMat()
	defer cameraMatrix.Close()
	distCoeffs := info.DistortionMat()
	defer distCoeffs.Close()

	poses := make([]MarkerPose, 0, len(ids))
	for i, id := range ids {
		if len(corners[i]) != 4 {
			continue
		}

		pose, err := d.estimate(corners[i], cameraMatrix, distCoeffs)
		if err != nil {
			d.logger.Warning("MarkerDetector", "pose estimation failed", map[string]interface{}{
				"marker_id": id,
				"error":     err.Error(),
			})
			continue
		}

		mp := MarkerPose{
			ID:       id,
			RVec:     pose.RotationVector(),
			TVec:     pose.Translation,
			Distance: pose.Distance(),
		}
		copy(mp.Corners[:], corners[i])
		poses = append(poses, mp)

		d.drawAxes(frame, pose, intrinsics, distortion)
	}

	d.logger.Debug("MarkerDetector", "markers detected", map[string]interface{}{
		"detected":  len(ids),
		"estimated": len(poses),
	})
	return poses, nil
}

func (d *Detector) estimate(corners []gocv.Point2f, cameraMatrix, distCoeffs gocv.Mat) (geometry.Pose, error) {
	normalized, err := normalizeCorners(corners, cameraMatrix, distCoeffs)
	if err != nil {
		return geometry.Pose{}, err
	}

	h, err := geometry.SolveFourPoint(d.objects, normalized)
	if err != nil {
		return geometry.Pose{}, err
	}
	return geometry.PoseFromPlanarHomography(h)
}

// normalizeCorners removes lens distortion and the camera matrix, leaving
// points on the z=1 plane.
func normalizeCorners(corners []gocv.Point2f, cameraMatrix, distCoeffs gocv.Mat) ([4]r2.Point, error) {
	var out [4]r2.Point

	vec := gocv.NewPoint2fVectorFromPoints(corners)
	defer vec.Close()
	src := gocv.NewMatFromPoint2fVector(vec, true)
	defer src.Close()

	dst := gocv.NewMat()
	defer dst.Close()
	noRectification := gocv.NewMat()
	defer noRectification.Close()
	noProjection := gocv.NewMat()
	defer noProjection.Close()

	gocv.UndistortPoints(src, &dst, cameraMatrix, distCoeffs, noRectification, noProjection)

	undistorted := gocv.NewPoint2fVectorFromMat(dst)
	defer undistorted.Close()
	points := undistorted.ToPoints()
	if len(points) != 4 {
		return out, fmt.Errorf("undistort returned %d points", len(points))
	}
	for i, p := range points {
		out[i] = r2.Point{X: float64(p.X), Y: float64(p.Y)}
	}
	return out, nil
}

func (d *Detector) drawAxes(frame *gocv.Mat, pose geometry.Pose, k geometry.Intrinsics, dist geometry.Distortion) {
	l := d.opts.AxisLength
	projected, err := geometry.ProjectPoints([]r3.Vector{
		{},
		{X: l},
		{Y: l},
		{Z: l},
	}, pose, k, dist)
	if err != nil {
		return
	}

	origin := toPixel(projected[0])
	gocv.Line(frame, origin, toPixel(projected[1]), color.RGBA{255, 0, 0, 0}, 2)
	gocv.Line(frame, origin, toPixel(projected[2]), color.RGBA{0, 255, 0, 0}, 2)
	gocv.Line(frame, origin, toPixel(projected[3]), color.RGBA{0, 0, 255, 0}, 2)
}

func toPixel(p r2.Point) image.Point {
	return image.Pt(int(p.X+0.5), int(p.Y+0.5))
}

// Distances lists the camera distance of each pose in detection order.
func Distances(poses []MarkerPose) []float64 {
	out := make([]float64, len(poses))
	for i, p := range poses {
		out[i] = p.Distance
	}
	return out
}
