package imageio

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"pano-calib/internal/logger"
	"pano-calib/internal/opencv/memory"
	"pano-calib/internal/opencv/safe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func sample(t *testing.T) gocv.Mat {
	t.Helper()
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(10, 20, 30, 0), 60, 80, gocv.MatTypeCV8UC3)
	gocv.Rectangle(&img, image.Rect(10, 10, 40, 30), color.RGBA{255, 255, 255, 0}, -1)
	return img
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	tracker := memory.NewTracker(logger.Nop())
	src := sample(t)
	defer src.Close()

	path := filepath.Join(t.TempDir(), "out", "pano.png")
	written, err := NewSaver(logger.Nop(), nil).SaveToPath(ctx, path, src)
	require.NoError(t, err)
	assert.Equal(t, path, written)

	img, err := NewLoader(tracker, logger.Nop(), nil).LoadFromPath(ctx, path)
	require.NoError(t, err)

	assert.Equal(t, 80, img.Width)
	assert.Equal(t, 60, img.Height)
	assert.Equal(t, 3, img.Channels)
	assert.Equal(t, "png", img.Format)
	assert.Equal(t, path, img.Path)
	assert.Equal(t, int64(1), tracker.GetStats().ActiveMats)

	img.Close()
	assert.Equal(t, int64(0), tracker.GetStats().ActiveMats)
}

func TestSaveDefaultsToJPEG(t *testing.T) {
	src := sample(t)
	defer src.Close()

	base := filepath.Join(t.TempDir(), "pano")
	written, err := NewSaver(logger.Nop(), nil).SaveToPath(context.Background(), base, src)
	require.NoError(t, err)
	assert.Equal(t, base+".jpg", written)

	_, err = os.Stat(written)
	assert.NoError(t, err)
}

func TestSaveRejectsUnknownExtension(t *testing.T) {
	src := sample(t)
	defer src.Close()

	_, err := NewSaver(logger.Nop(), nil).SaveToPath(context.Background(), filepath.Join(t.TempDir(), "x.txt"), src)
	assert.Error(t, err)
}

func TestSaveRejectsEmpty(t *testing.T) {
	empty := gocv.NewMat()
	defer empty.Close()

	_, err := NewSaver(logger.Nop(), nil).SaveToPath(context.Background(), "", empty)
	assert.ErrorIs(t, err, safe.ErrEmptyImage)
}

func TestLoadFromBytes(t *testing.T) {
	src := sample(t)
	defer src.Close()

	var buf bytes.Buffer
	require.NoError(t, NewSaver(logger.Nop(), nil).SaveToWriter(&buf, src, "jpeg"))

	img, err := NewLoader(nil, logger.Nop(), nil).LoadFromBytes(context.Background(), buf.Bytes(), "")
	require.NoError(t, err)
	defer img.Close()
	assert.Equal(t, "jpeg", img.Format)
	assert.Equal(t, 80, img.Width)
}

func TestLoadErrors(t *testing.T) {
	loader := NewLoader(nil, logger.Nop(), nil)

	_, err := loader.LoadFromBytes(context.Background(), nil, ".png")
	assert.ErrorIs(t, err, safe.ErrEmptyImage)

	_, err = loader.LoadFromBytes(context.Background(), []byte("not an image"), ".png")
	assert.Error(t, err)

	_, err = loader.LoadFromPath(context.Background(), filepath.Join(t.TempDir(), "missing.jpg"))
	assert.Error(t, err)
}

func TestPreview(t *testing.T) {
	src := sample(t)
	defer src.Close()

	small, err := Preview(src, 40, 40)
	require.NoError(t, err)
	assert.Equal(t, 40, small.Bounds().Dx())
	assert.Equal(t, 30, small.Bounds().Dy())

	same, err := Preview(src, 200, 200)
	require.NoError(t, err)
	assert.Equal(t, 80, same.Bounds().Dx())
}
