package httpapi

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testImagePNG(t *testing.T, w, h int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func testImageJPEG(t *testing.T, w, h int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 2), G: uint8(y * 2), B: 64, A: 255})
		}
	}

	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}))
	return buf.Bytes()
}

type uploadFile struct {
	name string
	data []byte
}

func multipartBody(t *testing.T, files []uploadFile, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	for _, f := range files {
		fw, err := mw.CreateFormFile("files", f.name)
		require.NoError(t, err)
		_, err = fw.Write(f.data)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	return &body, mw.FormDataContentType()
}

func postOptimize(t *testing.T, s *Server, files []uploadFile, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	body, contentType := multipartBody(t, files, fields)
	req := httptest.NewRequest(http.MethodPost, "/api/optimize", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestOptimizeSingleFile(t *testing.T) {
	s := newTestServer(t, nil)
	input := testImageJPEG(t, 120, 90)

	rec := postOptimize(t, s, []uploadFile{{name: "photo.jpg", data: input}}, map[string]string{
		"quality": "60",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "photo_optimized.jpg")

	originalSize, err := strconv.Atoi(rec.Header().Get("X-Original-Size"))
	require.NoError(t, err)
	assert.Equal(t, len(input), originalSize)

	optimizedSize, err := strconv.Atoi(rec.Header().Get("X-Optimized-Size"))
	require.NoError(t, err)
	assert.Equal(t, rec.Body.Len(), optimizedSize)
	assert.LessOrEqual(t, optimizedSize, originalSize)

	assert.Equal(t, "jpeg", rec.Header().Get("X-Output-Format"))
	assert.Equal(t, "120", rec.Header().Get("X-Width"))
	assert.Equal(t, "90", rec.Header().Get("X-Height"))
	assert.NotEmpty(t, rec.Header().Get("X-Savings-Pct"))

	// Response body is a decodable image
	_, _, err = image.Decode(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
}

func TestOptimizeBatchReturnsZip(t *testing.T) {
	s := newTestServer(t, nil)

	rec := postOptimize(t, s, []uploadFile{
		{name: "a.png", data: testImagePNG(t, 40, 40)},
		{name: "b.jpg", data: testImageJPEG(t, 50, 50)},
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, "application/zip", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "optimized_images.zip")

	zr, err := zip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
	require.NoError(t, err)
	require.Len(t, zr.File, 2)

	names := []string{zr.File[0].Name, zr.File[1].Name}
	assert.Contains(t, names, "a_optimized.png")
	assert.Contains(t, names, "b_optimized.jpg")

	// X-Results carries URL-escaped per-file stats
	raw, err := url.QueryUnescape(rec.Header().Get("X-Results"))
	require.NoError(t, err)

	var results []fileResult
	require.NoError(t, json.Unmarshal([]byte(raw), &results))
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Empty(t, r.Error)
		assert.Greater(t, r.OriginalSize, 0)
	}
}

func TestOptimizeBatchSkipsBadFiles(t *testing.T) {
	s := newTestServer(t, nil)

	rec := postOptimize(t, s, []uploadFile{
		{name: "good.png", data: testImagePNG(t, 30, 30)},
		{name: "bad.txt", data: []byte("not an image")},
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	zr, err := zip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
	require.NoError(t, err)
	require.Len(t, zr.File, 1)
	assert.Equal(t, "good_optimized.png", zr.File[0].Name)

	raw, err := url.QueryUnescape(rec.Header().Get("X-Results"))
	require.NoError(t, err)

	var results []fileResult
	require.NoError(t, json.Unmarshal([]byte(raw), &results))
	require.Len(t, results, 2)

	var badEntry fileResult
	for _, r := range results {
		if r.Filename == "bad.txt" {
			badEntry = r
		}
	}
	assert.NotEmpty(t, badEntry.Error)
}

func TestOptimizeAllFilesBad(t *testing.T) {
	s := newTestServer(t, nil)

	rec := postOptimize(t, s, []uploadFile{
		{name: "bad1.txt", data: []byte("nope")},
		{name: "bad2.txt", data: []byte("nope")},
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOptimizeSingleCorruptFile(t *testing.T) {
	s := newTestServer(t, nil)

	rec := postOptimize(t, s, []uploadFile{{name: "bad.jpg", data: []byte("nope")}}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotEmpty(t, decodeError(t, rec))
}

func TestOptimizeNoFiles(t *testing.T) {
	s := newTestServer(t, nil)

	rec := postOptimize(t, s, nil, map[string]string{"quality": "70"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec), "no files")
}

func TestOptimizeTooManyFiles(t *testing.T) {
	s := newTestServer(t, nil)
	s.cfg.Optimizer.MaxFiles = 2

	files := []uploadFile{
		{name: "1.png", data: testImagePNG(t, 10, 10)},
		{name: "2.png", data: testImagePNG(t, 10, 10)},
		{name: "3.png", data: testImagePNG(t, 10, 10)},
	}

	rec := postOptimize(t, s, files, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec), "too many files")
}

func TestOptimizeBadQuality(t *testing.T) {
	s := newTestServer(t, nil)
	input := testImagePNG(t, 10, 10)

	for _, q := range []string{"abc", "0", "101", "-5"} {
		rec := postOptimize(t, s, []uploadFile{{name: "a.png", data: input}}, map[string]string{
			"quality": q,
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code, "quality %q", q)
	}
}

func TestOptimizeConvertFormat(t *testing.T) {
	s := newTestServer(t, nil)
	input := testImagePNG(t, 40, 40)

	rec := postOptimize(t, s, []uploadFile{{name: "pic.png", data: input}}, map[string]string{
		"format": "jpg",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, "jpeg", rec.Header().Get("X-Output-Format"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "pic_optimized.jpg")

	_, format, err := image.Decode(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
}

func TestOptimizeKeepMetadataFlag(t *testing.T) {
	s := newTestServer(t, nil)
	input := testImageJPEG(t, 40, 40)

	rec := postOptimize(t, s, []uploadFile{{name: "photo.jpg", data: input}}, map[string]string{
		"strip_metadata": "false",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "jpeg", rec.Header().Get("X-Output-Format"))
}

func TestOptimizeConvertWebPFlag(t *testing.T) {
	s := newTestServer(t, nil)
	input := testImagePNG(t, 40, 40)

	rec := postOptimize(t, s, []uploadFile{{name: "pic.png", data: input}}, map[string]string{
		"convert_webp": "true",
	})

	// WebP output needs cwebp; without it the request is rejected.
	if rec.Code == http.StatusOK {
		assert.Equal(t, "webp", rec.Header().Get("X-Output-Format"))
		assert.Contains(t, rec.Header().Get("Content-Disposition"), "pic_optimized.webp")
	} else {
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, decodeError(t, rec), "cwebp")
	}
}

func TestOptimizeInfo(t *testing.T) {
	s := newTestServer(t, nil)

	body, contentType := multipartBody(t, []uploadFile{
		{name: "a.png", data: testImagePNG(t, 50, 40)},
		{name: "broken.txt", data: []byte("not an image")},
	}, map[string]string{"quality": "70"})

	req := httptest.NewRequest(http.MethodPost, "/api/optimize/info", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var info struct {
		Results []struct {
			Filename      string  `json:"filename"`
			OutputName    string  `json:"output_name"`
			OriginalSize  int     `json:"original_size"`
			OptimizedSize int     `json:"optimized_size"`
			SavingsPct    float64 `json:"savings_pct"`
			Format        string  `json:"format"`
			Error         string  `json:"error"`
		} `json:"results"`
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))

	require.Equal(t, 2, info.Count)
	require.Len(t, info.Results, 2)

	assert.Equal(t, "a.png", info.Results[0].Filename)
	assert.Equal(t, "a_optimized.png", info.Results[0].OutputName)
	assert.Equal(t, "png", info.Results[0].Format)
	assert.Greater(t, info.Results[0].OriginalSize, 0)
	assert.Empty(t, info.Results[0].Error)

	assert.Equal(t, "broken.txt", info.Results[1].Filename)
	assert.NotEmpty(t, info.Results[1].Error)
	assert.Empty(t, info.Results[1].OutputName)
}

func TestOptimizeInfoNoFiles(t *testing.T) {
	s := newTestServer(t, nil)

	body, contentType := multipartBody(t, nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/optimize/info", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec), "no files")
}
