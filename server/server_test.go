package server

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/chaos-io/bgcompose/compose"
	"github.com/chaos-io/bgcompose/config"
	"github.com/chaos-io/bgcompose/rembg"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubRemover struct {
	out []byte
	err error
}

func (s stubRemover) Remove(ctx context.Context, data []byte) ([]byte, error) {
	return s.out, s.err
}

func pngBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newTestServer(t *testing.T, remover rembg.Remover) *Server {
	t.Helper()
	loader := func(ctx context.Context) (rembg.Remover, error) { return remover, nil }
	return New(compose.NewCompositor(loader, compose.Options{}), config.Default().Server)
}

func multipartBody(t *testing.T, files map[string][]byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for name, data := range files {
		part, err := w.CreateFormFile(name, name+".png")
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func TestServer_Healthz(t *testing.T) {
	s := newTestServer(t, rembg.NewDefaultRemBG())

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status": "ok"}`, rec.Body.String())
}

func TestServer_Remove(t *testing.T) {
	subject := image.NewNRGBA(image.Rect(0, 0, 20, 10))
	subject.SetNRGBA(15, 5, color.NRGBA{R: 255, A: 255})
	input := pngBytes(t, image.NewGray(image.Rect(0, 0, 20, 10)))
	background := pngBytes(t, image.NewGray(image.Rect(0, 0, 3, 3)))

	tests := []struct {
		name       string
		remover    rembg.Remover
		files      map[string][]byte
		fields     map[string]string
		wantStatus int
		wantPixel  *color.NRGBA
	}{
		{
			name:       "solid",
			remover:    stubRemover{out: pngBytes(t, subject)},
			files:      map[string][]byte{"image": input},
			fields:     map[string]string{"background_type": "solid", "background_color": "#0000ff"},
			wantStatus: http.StatusOK,
			wantPixel:  &color.NRGBA{B: 255, A: 255},
		},
		{
			name:       "transparent by default",
			remover:    stubRemover{out: pngBytes(t, subject)},
			files:      map[string][]byte{"image": input},
			wantStatus: http.StatusOK,
			wantPixel:  &color.NRGBA{},
		},
		{
			name:       "image background",
			remover:    stubRemover{out: pngBytes(t, subject)},
			files:      map[string][]byte{"image": input, "background_image": background},
			fields:     map[string]string{"background_type": "image"},
			wantStatus: http.StatusOK,
			wantPixel:  &color.NRGBA{A: 255},
		},
		{
			name:       "missing image",
			remover:    rembg.NewDefaultRemBG(),
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing background image",
			remover:    rembg.NewDefaultRemBG(),
			files:      map[string][]byte{"image": input},
			fields:     map[string]string{"background_type": "image"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "solid without color",
			remover:    rembg.NewDefaultRemBG(),
			files:      map[string][]byte{"image": input},
			fields:     map[string]string{"background_type": "solid"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown background type",
			remover:    rembg.NewDefaultRemBG(),
			files:      map[string][]byte{"image": input},
			fields:     map[string]string{"background_type": "blur"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "backend failure",
			remover:    stubRemover{err: errors.New("model crashed")},
			files:      map[string][]byte{"image": input},
			wantStatus: http.StatusBadGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, contentType := multipartBody(t, tt.files, tt.fields)
			req := httptest.NewRequest(http.MethodPost, "/v1/remove", body)
			req.Header.Set("Content-Type", contentType)

			rec := httptest.NewRecorder()
			newTestServer(t, tt.remover).Handler().ServeHTTP(rec, req)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())

			if tt.wantStatus != http.StatusOK {
				assert.Contains(t, rec.Body.String(), `"error"`)
				return
			}
			assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))

			img, err := png.Decode(rec.Body)
			require.NoError(t, err)
			assert.Equal(t, subject.Bounds(), img.Bounds())
			assert.Equal(t, *tt.wantPixel, color.NRGBAModel.Convert(img.At(0, 0)))
			assert.Equal(t, color.NRGBA{R: 255, A: 255}, color.NRGBAModel.Convert(img.At(15, 5)))
		})
	}
}
