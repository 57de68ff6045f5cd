package features

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func TestRatioTest(t *testing.T) {
	knn := [][]gocv.DMatch{
		{{QueryIdx: 0, TrainIdx: 3, Distance: 10}, {QueryIdx: 0, TrainIdx: 4, Distance: 100}},
		{{QueryIdx: 1, TrainIdx: 5, Distance: 50}, {QueryIdx: 1, TrainIdx: 6, Distance: 60}},
		{{QueryIdx: 2, TrainIdx: 7, Distance: 1}},
		{},
	}

	good := RatioTest(knn, 0.7)
	require.Len(t, good, 1)
	assert.Equal(t, 3, good[0].TrainIdx)
}

func TestRatioTestIsStrict(t *testing.T) {
	knn := [][]gocv.DMatch{
		{{QueryIdx: 0, TrainIdx: 1, Distance: 7}, {QueryIdx: 0, TrainIdx: 2, Distance: 10}},
	}
	assert.Empty(t, RatioTest(knn, 0.7))
}

func TestSymmetricFilter(t *testing.T) {
	forward := []gocv.DMatch{
		{QueryIdx: 0, TrainIdx: 10},
		{QueryIdx: 1, TrainIdx: 11},
		{QueryIdx: 2, TrainIdx: 12},
	}
	backward := []gocv.DMatch{
		{QueryIdx: 10, TrainIdx: 0},
		{QueryIdx: 11, TrainIdx: 7},
	}

	kept := SymmetricFilter(forward, backward)
	require.Len(t, kept, 1)
	assert.Equal(t, 0, kept[0].QueryIdx)
}

func TestCollect(t *testing.T) {
	query := []gocv.KeyPoint{{X: 1, Y: 2}, {X: 3, Y: 4}}
	train := []gocv.KeyPoint{{X: 5, Y: 6}}

	c, err := collect([]gocv.DMatch{{QueryIdx: 1, TrainIdx: 0}}, query, train)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, gocv.Point2f{X: 3, Y: 4}, c.Query[0])
	assert.Equal(t, gocv.Point2f{X: 5, Y: 6}, c.Train[0])

	_, err = collect([]gocv.DMatch{{QueryIdx: 0, TrainIdx: 2}}, query, train)
	assert.Error(t, err)
}

func TestParseKinds(t *testing.T) {
	d, err := ParseDetectorKind("SIFT")
	require.NoError(t, err)
	assert.Equal(t, SIFT, d)

	d, err = ParseDetectorKind("1")
	require.NoError(t, err)
	assert.Equal(t, SURF, d)

	_, err = ParseDetectorKind("akaze")
	assert.Error(t, err)

	m, err := ParseMatcherKind("bf")
	require.NoError(t, err)
	assert.Equal(t, BFHamming, m)
}

func TestMatcherSelection(t *testing.T) {
	assert.Equal(t, BFHamming, DefaultMatcher(ORB))
	assert.Equal(t, FLANN, DefaultMatcher(SURF))
	assert.Equal(t, FLANN, DefaultMatcher(SIFT))

	assert.NoError(t, CheckCompatible(ORB, BFHamming))
	assert.NoError(t, CheckCompatible(SIFT, FLANN))
	assert.Error(t, CheckCompatible(ORB, FLANN))
	assert.Error(t, CheckCompatible(SURF, BFHamming))
}

func TestDetectorsOwnTheirMask(t *testing.T) {
	img := gocv.NewMatWithSize(120, 160, gocv.MatTypeCV8UC1)
	defer img.Close()
	gocv.RandU(&img, gocv.NewScalar(0, 0, 0, 0), gocv.NewScalar(255, 0, 0, 0))

	for _, kind := range []DetectorKind{SURF, SIFT, ORB} {
		det, err := NewDetector(kind)
		require.NoError(t, err, "kind %s", kind)
		assert.Equal(t, kind, det.Kind())

		kps, desc := det.DetectAndCompute(img)
		assert.NotEmpty(t, kps, "kind %s", kind)
		assert.Equal(t, len(kps), desc.Rows(), "kind %s", kind)
		desc.Close()

		assert.NoError(t, det.Close(), "kind %s", kind)
	}

	_, err := NewDetector("akaze")
	assert.Error(t, err)
}

func TestPipelineRatioBounds(t *testing.T) {
	cases := map[float64]float64{
		1:    1,
		0.8:  0.8,
		0:    DefaultRatio,
		-0.2: DefaultRatio,
		1.5:  DefaultRatio,
	}
	for in, want := range cases {
		p := NewPipeline(nil, nil, Options{Ratio: in}, nil)
		assert.Equal(t, want, p.opts.Ratio, "ratio %g", in)
	}
}
