package conversion

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func filled(rows, cols int, value float64) gocv.Mat {
	m := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(value, value, value, 0), rows, cols, gocv.MatTypeCV8UC3)
	return m
}

func TestPutOnCanvasCentersImage(t *testing.T) {
	img := filled(100, 60, 200)
	defer img.Close()

	canvas, err := PutOnCanvas(img, 300)
	require.NoError(t, err)
	defer canvas.Close()

	assert.Equal(t, 300, canvas.Rows())
	assert.Equal(t, 60, canvas.Cols())
	assert.EqualValues(t, 0, canvas.GetVecbAt(99, 10)[0])
	assert.EqualValues(t, 200, canvas.GetVecbAt(100, 10)[0])
	assert.EqualValues(t, 200, canvas.GetVecbAt(199, 10)[0])
	assert.EqualValues(t, 0, canvas.GetVecbAt(200, 10)[0])
}

func TestPutOnCanvasShrinksTallImages(t *testing.T) {
	img := filled(400, 200, 50)
	defer img.Close()

	canvas, err := PutOnCanvas(img, 200)
	require.NoError(t, err)
	defer canvas.Close()

	assert.Equal(t, 200, canvas.Rows())
	assert.Equal(t, 100, canvas.Cols())
}

func TestPutOnCanvasRejectsEmpty(t *testing.T) {
	empty := gocv.NewMat()
	defer empty.Close()

	_, err := PutOnCanvas(empty, 100)
	assert.Error(t, err)
}

func TestCropAndPaste(t *testing.T) {
	src := filled(10, 20, 80)
	defer src.Close()

	cut, err := Crop(src, image.Rect(0, 0, 18, 10))
	require.NoError(t, err)
	defer cut.Close()
	assert.Equal(t, 18, cut.Cols())

	_, err = Crop(src, image.Rect(0, 0, 30, 10))
	assert.Error(t, err)

	dst := gocv.Zeros(10, 40, gocv.MatTypeCV8UC3)
	defer dst.Close()
	require.NoError(t, Paste(&dst, cut, image.Pt(22, 0)))
	assert.EqualValues(t, 0, dst.GetVecbAt(5, 21)[0])
	assert.EqualValues(t, 80, dst.GetVecbAt(5, 22)[0])
	assert.Error(t, Paste(&dst, cut, image.Pt(30, 0)))
}

func TestConvertToGrayscale(t *testing.T) {
	src := filled(4, 4, 120)
	defer src.Close()

	gray, err := ConvertToGrayscale(src)
	require.NoError(t, err)
	defer gray.Close()

	assert.Equal(t, 1, gray.Channels())
	assert.EqualValues(t, 120, gray.GetUCharAt(0, 0))
}
