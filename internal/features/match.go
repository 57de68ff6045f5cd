package features

import (
	"context"
	"fmt"

	"pano-calib/internal/logger"

	"gocv.io/x/gocv"
)

// Options tune match filtering.
type Options struct {
	Ratio     float64
	Symmetric bool
}

func DefaultOptions() Options {
	return Options{Ratio: DefaultRatio}
}

// Correspondences are matched keypoint locations; Query[i] pairs with Train[i].
type Correspondences struct {
	Query []gocv.Point2f
	Train []gocv.Point2f
}

func (c Correspondences) Len() int {
	return len(c.Query)
}

// Pipeline runs detection and matching with one detector/matcher pair.
type Pipeline struct {
	detector Detector
	matcher  Matcher
	opts     Options
	logger   logger.Logger
}

func NewPipeline(detector Detector, matcher Matcher, opts Options, log logger.Logger) *Pipeline {
	if opts.Ratio <= 0 || opts.Ratio > 1 {
		opts.Ratio = DefaultRatio
	}
	return &Pipeline{detector: detector, matcher: matcher, opts: opts, logger: log}
}

// Match detects features in both images and returns filtered correspondences
// from first to second.
func (p *Pipeline) Match(ctx context.Context, first, second gocv.Mat) (Correspondences, error) {
	kp1, desc1 := p.detector.DetectAndCompute(first)
	defer desc1.Close()

	if err := ctx.Err(); err != nil {
		return Correspondences{}, err
	}

	kp2, desc2 := p.detector.DetectAndCompute(second)
	defer desc2.Close()

	if err := ctx.Err(); err != nil {
		return Correspondences{}, err
	}

	p.logger.Debug("FeatureMatcher", "keypoints detected", map[string]interface{}{
		"detector": string(p.detector.Kind()),
		"first":    len(kp1),
		"second":   len(kp2),
	})

	if desc1.Empty() || desc2.Empty() || len(kp1) < 2 || len(kp2) < 2 {
		return Correspondences{}, nil
	}

	good := RatioTest(p.matcher.KnnMatch(desc1, desc2, 2), p.opts.Ratio)
	raw := len(good)

	if p.opts.Symmetric {
		backward := RatioTest(p.matcher.KnnMatch(desc2, desc1, 2), p.opts.Ratio)
		good = SymmetricFilter(good, backward)
	}

	p.logger.Debug("FeatureMatcher", "matches filtered", map[string]interface{}{
		"ratio_kept":     raw,
		"symmetric_kept": len(good),
		"symmetric":      p.opts.Symmetric,
	})

	return collect(good, kp1, kp2)
}

func collect(matches []gocv.DMatch, query, train []gocv.KeyPoint) (Correspondences, error) {
	out := Correspondences{
		Query: make([]gocv.Point2f, 0, len(matches)),
		Train: make([]gocv.Point2f, 0, len(matches)),
	}
	for _, m := range matches {
		if m.QueryIdx < 0 || m.QueryIdx >= len(query) || m.TrainIdx < 0 || m.TrainIdx >= len(train) {
			return Correspondences{}, fmt.Errorf("match index out of range: query %d/%d train %d/%d",
				m.QueryIdx, len(query), m.TrainIdx, len(train))
		}
		q, t := query[m.QueryIdx], train[m.TrainIdx]
		out.Query = append(out.Query, gocv.Point2f{X: float32(q.X), Y: float32(q.Y)})
		out.Train = append(out.Train, gocv.Point2f{X: float32(t.X), Y: float32(t.Y)})
	}
	return out, nil
}
