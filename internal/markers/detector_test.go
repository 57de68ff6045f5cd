package markers

import (
	"image"
	"testing"

	"pano-calib/internal/logger"
	"pano-calib/internal/models"
	"pano-calib/internal/opencv/conversion"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func testCamera() *models.CameraInfo {
	return &models.CameraInfo{
		ImageWidth:  640,
		ImageHeight: 480,
		Matrix:      []float64{500, 0, 320, 0, 500, 240, 0, 0, 1},
		Distortion:  []float64{0, 0, 0, 0, 0},
	}
}

// markerFrame renders marker id as a 200px square centred on a white 640x480 frame.
func markerFrame(t *testing.T, id int) gocv.Mat {
	t.Helper()

	marker := gocv.NewMat()
	defer marker.Close()
	gocv.ArucoGenerateImageMarker(gocv.ArucoDict6x6_250, id, 200, marker, 1)
	require.False(t, marker.Empty())

	markerBGR := gocv.NewMat()
	defer markerBGR.Close()
	gocv.CvtColor(marker, &markerBGR, gocv.ColorGrayToBGR)

	frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 255, 255, 0), 480, 640, gocv.MatTypeCV8UC3)
	require.NoError(t, conversion.Paste(&frame, markerBGR, image.Pt(220, 140)))
	return frame
}

func TestParseDictionary(t *testing.T) {
	d, err := ParseDictionary("")
	require.NoError(t, err)
	assert.Equal(t, gocv.ArucoDict6x6_250, d)

	d, err = ParseDictionary("4x4_50")
	require.NoError(t, err)
	assert.Equal(t, gocv.ArucoDict4x4_50, d)

	_, err = ParseDictionary("7x7_9")
	assert.Error(t, err)
}

func TestDetectMarkerDistance(t *testing.T) {
	frame := markerFrame(t, 7)
	defer frame.Close()

	d, err := NewDetector(DefaultOptions(), logger.Nop())
	require.NoError(t, err)
	defer d.Close()

	poses, err := d.Detect(&frame, testCamera())
	require.NoError(t, err)
	require.Len(t, poses, 1)

	p := poses[0]
	assert.Equal(t, 7, p.ID)
	// 0.05m across 200px at f=500 puts the marker 0.125m away
	assert.InDelta(t, 0.125, p.Distance, 0.01)
	assert.InDelta(t, 0.125, p.TVec.Z, 0.01)
	assert.InDelta(t, 0, p.TVec.X, 0.005)
	assert.InDelta(t, 0, p.TVec.Y, 0.005)
	assert.Equal(t, []float64{p.Distance}, Distances(poses))
}

func TestDetectConvertsFourChannelFrames(t *testing.T) {
	bgr := markerFrame(t, 3)
	defer bgr.Close()
	frame := gocv.NewMat()
	defer frame.Close()
	gocv.CvtColor(bgr, &frame, gocv.ColorBGRToBGRA)

	d, err := NewDetector(DefaultOptions(), logger.Nop())
	require.NoError(t, err)
	defer d.Close()

	poses, err := d.Detect(&frame, testCamera())
	require.NoError(t, err)
	assert.Equal(t, 3, frame.Channels())
	require.Len(t, poses, 1)
	assert.Equal(t, 3, poses[0].ID)
}

func TestDetectNoMarkers(t *testing.T) {
	frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 255, 255, 0), 480, 640, gocv.MatTypeCV8UC3)
	defer frame.Close()
	before := frame.Clone()
	defer before.Close()

	d, err := NewDetector(DefaultOptions(), logger.Nop())
	require.NoError(t, err)
	defer d.Close()

	poses, err := d.Detect(&frame, testCamera())
	require.NoError(t, err)
	assert.Empty(t, poses)
	assert.NotNil(t, poses)

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(before, frame, &diff)
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(diff, &gray, gocv.ColorBGRToGray)
	assert.Zero(t, gocv.CountNonZero(gray))
}

func TestDetectRejectsBadInput(t *testing.T) {
	d, err := NewDetector(DefaultOptions(), logger.Nop())
	require.NoError(t, err)
	defer d.Close()

	empty := gocv.NewMat()
	defer empty.Close()
	_, err = d.Detect(&empty, testCamera())
	assert.Error(t, err)

	frame := markerFrame(t, 1)
	defer frame.Close()
	_, err = d.Detect(&frame, &models.CameraInfo{Matrix: []float64{1}})
	assert.Error(t, err)
}

func TestNewDetectorUnknownDictionary(t *testing.T) {
	_, err := NewDetector(Options{Dictionary: "bogus"}, logger.Nop())
	assert.Error(t, err)
}

func TestDistancesEmpty(t *testing.T) {
	assert.Empty(t, Distances(nil))
}

func TestDetectAfterClose(t *testing.T) {
	d, err := NewDetector(DefaultOptions(), logger.Nop())
	require.NoError(t, err)
	require.NoError(t, d.Close())
	require.NoError(t, d.Close())

	frame := markerFrame(t, 2)
	defer frame.Close()
	_, err = d.Detect(&frame, testCamera())
	assert.ErrorIs(t, err, ErrClosed)
}
