package features

import (
	"fmt"
	"strings"

	"gocv.io/x/gocv"
)

// MatcherKind names a descriptor matcher.
type MatcherKind string

const (
	FLANN     MatcherKind = "flann"
	BFHamming MatcherKind = "bf-hamming"
)

// Matcher finds the k nearest train descriptors for every query descriptor.
type Matcher interface {
	KnnMatch(query, train gocv.Mat, k int) [][]gocv.DMatch
	Close() error
}

func ParseMatcherKind(value string) (MatcherKind, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "flann":
		return FLANN, nil
	case "bf-hamming", "bf", "hamming":
		return BFHamming, nil
	default:
		return "", fmt.Errorf("unknown matcher %q", value)
	}
}

// DefaultMatcher picks FLANN for float descriptors and brute-force Hamming
// for binary ones.
func DefaultMatcher(kind DetectorKind) MatcherKind {
	if kind.BinaryDescriptors() {
		return BFHamming
	}
	return FLANN
}

// CheckCompatible rejects detector/matcher pairs that cannot work together.
func CheckCompatible(detector DetectorKind, matcher MatcherKind) error {
	if detector.BinaryDescriptors() && matcher == FLANN {
		return fmt.Errorf("matcher %s cannot index binary %s descriptors", matcher, detector)
	}
	if !detector.BinaryDescriptors() && matcher == BFHamming {
		return fmt.Errorf("matcher %s needs binary descriptors, %s produces float", matcher, detector)
	}
	return nil
}

// NewMatcher constructs the matcher for kind. The caller must Close it.
func NewMatcher(kind MatcherKind) (Matcher, error) {
	switch kind {
	case FLANN:
		flann := gocv.NewFlannBasedMatcher()
		return &flann, nil
	case BFHamming:
		bf := gocv.NewBFMatcherWithParams(gocv.NormHamming, false)
		return &bf, nil
	default:
		return nil, fmt.Errorf("unknown matcher %q", kind)
	}
}
