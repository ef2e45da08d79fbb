package camera

import (
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
)

func writeSolid(t *testing.T, path string, c color.RGBA, encode func(*os.File, image.Image) error) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 6))
	for y := 0; y < 6; y++ {
		for x := 0; x < 8; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, encode(f, img))
}

func encodePNG(f *os.File, img image.Image) error { return png.Encode(f, img) }
func encodeBMP(f *os.File, img image.Image) error { return bmp.Encode(f, img) }

func TestReplayDriver_ReadsInOrder(t *testing.T) {
	dir := t.TempDir()
	writeSolid(t, filepath.Join(dir, "001.png"), color.RGBA{R: 255, A: 255}, encodePNG)
	writeSolid(t, filepath.Join(dir, "002.bmp"), color.RGBA{B: 255, A: 255}, encodeBMP)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip"), 0644))

	dev, err := NewReplayDriver(dir, false).Open(Settings{Width: 4, Height: 3})
	require.NoError(t, err)

	f, err := dev.Read()
	require.NoError(t, err)
	assert.Equal(t, 4, f.Width)
	r, _, b := f.At(1, 1)
	assert.Equal(t, uint8(255), r)
	assert.Equal(t, uint8(0), b)

	f, err = dev.Read()
	require.NoError(t, err)
	r, _, b = f.At(1, 1)
	assert.Equal(t, uint8(0), r)
	assert.Equal(t, uint8(255), b)

	_, err = dev.Read()
	assert.ErrorIs(t, err, io.EOF)

	require.NoError(t, dev.Release())
	_, err = dev.Read()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestReplayDriver_Loop(t *testing.T) {
	dir := t.TempDir()
	writeSolid(t, filepath.Join(dir, "a.png"), color.RGBA{G: 255, A: 255}, encodePNG)

	dev, err := NewReplayDriver(dir, true).Open(Settings{})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		f, err := dev.Read()
		require.NoError(t, err)
		assert.Equal(t, 8, f.Width, "native size when settings are unset")
	}
}

func TestReplayDriver_EmptyDir(t *testing.T) {
	_, err := NewReplayDriver(t.TempDir(), false).Open(Settings{})
	assert.Error(t, err)
}
