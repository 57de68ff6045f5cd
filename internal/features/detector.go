package features

import (
	"errors"
	"fmt"
	"strings"

	"gocv.io/x/gocv"
	"gocv.io/x/gocv/contrib"
)

// DetectorKind names a keypoint detector/descriptor pair.
type DetectorKind string

const (
	SURF DetectorKind = "surf"
	SIFT DetectorKind = "sift"
	ORB  DetectorKind = "orb"
)

// SURFMinHessian is the Hessian threshold used for SURF keypoints.
const SURFMinHessian = 400

// Detector finds keypoints and computes their descriptors.
type Detector interface {
	DetectAndCompute(img gocv.Mat) ([]gocv.KeyPoint, gocv.Mat)
	Kind() DetectorKind
	Close() error
}

// ParseDetectorKind accepts the names above, case-insensitively, plus the
// numeric codes 1 (surf) and 2 (sift).
func ParseDetectorKind(value string) (DetectorKind, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "surf", "1":
		return SURF, nil
	case "sift", "2":
		return SIFT, nil
	case "orb":
		return ORB, nil
	default:
		return "", fmt.Errorf("unknown detector %q", value)
	}
}

// BinaryDescriptors reports whether kind produces binary descriptors.
func (k DetectorKind) BinaryDescriptors() bool {
	return k == ORB
}

// NewDetector constructs the detector for kind. The caller must Close it.
func NewDetector(kind DetectorKind) (Detector, error) {
	switch kind {
	case SURF:
		surf := contrib.NewSURFWithParams(SURFMinHessian, 4, 3, false, false)
		return &surfDetector{surf: surf, mask: gocv.NewMat()}, nil
	case SIFT:
		return &siftDetector{sift: gocv.NewSIFT(), mask: gocv.NewMat()}, nil
	case ORB:
		return &orbDetector{orb: gocv.NewORB(), mask: gocv.NewMat()}, nil
	default:
		return nil, fmt.Errorf("unknown detector %q", kind)
	}
}

// Each detector owns an empty mask so every pixel is searched.

type surfDetector struct {
	surf contrib.SURF
	mask gocv.Mat
}

func (d *surfDetector) DetectAndCompute(img gocv.Mat) ([]gocv.KeyPoint, gocv.Mat) {
	return d.surf.DetectAndCompute(img, d.mask)
}

func (d *surfDetector) Kind() DetectorKind { return SURF }

func (d *surfDetector) Close() error {
	return errors.Join(d.mask.Close(), d.surf.Close())
}

type siftDetector struct {
	sift gocv.SIFT
	mask gocv.Mat
}

func (d *siftDetector) DetectAndCompute(img gocv.Mat) ([]gocv.KeyPoint, gocv.Mat) {
	return d.sift.DetectAndCompute(img, d.mask)
}

func (d *siftDetector) Kind() DetectorKind { return SIFT }

func (d *siftDetector) Close() error {
	return errors.Join(d.mask.Close(), d.sift.Close())
}

type orbDetector struct {
	orb  gocv.ORB
	mask gocv.Mat
}

func (d *orbDetector) DetectAndCompute(img gocv.Mat) ([]gocv.KeyPoint, gocv.Mat) {
	return d.orb.DetectAndCompute(img, d.mask)
}

func (d *orbDetector) Kind() DetectorKind { return ORB }

func (d *orbDetector) Close() error {
	return errors.Join(d.mask.Close(), d.orb.Close())
}
