package util

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	nhttp "github.com/chaos-io/bgcompose/util/http"
	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSavePNG(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.png")

	img := image.NewNRGBA(image.Rect(0, 0, 4, 3))
	img.SetNRGBA(1, 1, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
	require.NoError(t, SavePNG(path, img))

	got, err := imaging.Open(path)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 4, 3), got.Bounds())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file must not survive")
}

func TestSavePNG_MissingDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "out.png")
	err := SavePNG(path, image.NewNRGBA(image.Rect(0, 0, 1, 1)))
	assert.Error(t, err)
	assert.NoFileExists(t, path)
}

func TestReadSource(t *testing.T) {
	t.Parallel()

	img := image.NewGray(image.Rect(0, 0, 2, 2))
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = png.Encode(w, img)
	}))
	defer server.Close()

	cli := nhttp.NewHTTPClient()

	data, err := ReadSource(context.Background(), cli, server.URL+"/a.png")
	require.NoError(t, err)
	decoded, err := DecodeImage(data)
	require.NoError(t, err)
	assert.Equal(t, img.Bounds(), decoded.Bounds())

	_, err = ReadSource(context.Background(), cli, filepath.Join(t.TempDir(), "nope.png"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestIsURL(t *testing.T) {
	t.Parallel()

	assert.True(t, IsURL("https://example.com/a.png"))
	assert.True(t, IsURL("http://example.com/a.png"))
	assert.False(t, IsURL("input/a.png"))
}
