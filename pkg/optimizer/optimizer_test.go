package optimizer

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"igvault/pkg/config"
	"igvault/pkg/errors"
	"igvault/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOptimizerConfig() *config.OptimizerConfig {
	return &config.OptimizerConfig{
		Quality:      80,
		MaxFiles:     20,
		MaxFileSize:  50 * 1024 * 1024,
		MaxDimension: 16384,
	}
}

// newTestOptimizer returns an optimizer with no external tools
// available, exercising the pure-Go fallbacks.
func newTestOptimizer(cfg *config.OptimizerConfig) *Optimizer {
	o := New(cfg, logger.NewTestLogger())
	o.lookPath = func(string) (string, error) {
		return "", fmt.Errorf("not found")
	}
	return o
}

func gradientImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8(x * 255 / w),
				G: uint8(y * 255 / h),
				B: uint8((x + y) * 255 / (w + h)),
				A: 255,
			})
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, img image.Image, quality int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}))
	return buf.Bytes()
}

func TestOptimizeJPEG(t *testing.T) {
	o := newTestOptimizer(testOptimizerConfig())
	input := encodeJPEG(t, gradientImage(200, 150), 100)

	result, err := o.Optimize(context.Background(), input, Options{Quality: 40})
	require.NoError(t, err)

	assert.Equal(t, FormatJPEG, result.Format)
	assert.Equal(t, len(input), result.OriginalSize)
	assert.Equal(t, len(result.Data), result.OptimizedSize)
	assert.LessOrEqual(t, result.OptimizedSize, result.OriginalSize)
	assert.Equal(t, 200, result.Width)
	assert.Equal(t, 150, result.Height)

	// Output decodes as JPEG
	_, format, err := image.Decode(bytes.NewReader(result.Data))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
}

func TestOptimizePNG(t *testing.T) {
	o := newTestOptimizer(testOptimizerConfig())
	input := encodePNG(t, gradientImage(120, 80))

	result, err := o.Optimize(context.Background(), input, Options{})
	require.NoError(t, err)

	assert.Equal(t, FormatPNG, result.Format)
	assert.LessOrEqual(t, result.OptimizedSize, result.OriginalSize)

	_, format, err := image.Decode(bytes.NewReader(result.Data))
	require.NoError(t, err)
	assert.Equal(t, "png", format)
}

func TestOptimizeKeepsOriginalWhenLarger(t *testing.T) {
	o := newTestOptimizer(testOptimizerConfig())

	// A 1x1 image is already minimal; recompression cannot shrink it
	input := encodePNG(t, gradientImage(1, 1))

	result, err := o.Optimize(context.Background(), input, Options{})
	require.NoError(t, err)

	if result.OptimizedSize >= result.OriginalSize {
		assert.Equal(t, input, result.Data)
		assert.Equal(t, result.OriginalSize, result.OptimizedSize)
		assert.Equal(t, float64(0), result.SavingsPct)
	}
}

func TestOptimizeConvertsPNGToJPEG(t *testing.T) {
	o := newTestOptimizer(testOptimizerConfig())
	input := encodePNG(t, gradientImage(100, 100))

	result, err := o.Optimize(context.Background(), input, Options{Format: "jpg"})
	require.NoError(t, err)

	assert.Equal(t, FormatJPEG, result.Format)
	_, format, err := image.Decode(bytes.NewReader(result.Data))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
}

func TestOptimizeWebPRequiresTool(t *testing.T) {
	o := newTestOptimizer(testOptimizerConfig())
	input := encodePNG(t, gradientImage(50, 50))

	_, err := o.Optimize(context.Background(), input, Options{Format: "webp"})
	require.Error(t, err)
	assert.Equal(t, errors.KindValidation, errors.KindOf(err))
	assert.Contains(t, err.Error(), "cwebp")
}

func TestOptimizeRejectsOversizedDimensions(t *testing.T) {
	cfg := testOptimizerConfig()
	cfg.MaxDimension = 10
	o := newTestOptimizer(cfg)

	input := encodePNG(t, gradientImage(20, 20))

	_, err := o.Optimize(context.Background(), input, Options{})
	require.Error(t, err)
	assert.Equal(t, errors.KindValidation, errors.KindOf(err))
	assert.Contains(t, err.Error(), "dimensions")
}

func TestOptimizeRejectsOversizedFile(t *testing.T) {
	cfg := testOptimizerConfig()
	cfg.MaxFileSize = 10
	o := newTestOptimizer(cfg)

	input := encodePNG(t, gradientImage(20, 20))

	_, err := o.Optimize(context.Background(), input, Options{})
	require.Error(t, err)
	assert.Equal(t, errors.KindValidation, errors.KindOf(err))
}

func TestOptimizeRejectsCorruptInput(t *testing.T) {
	o := newTestOptimizer(testOptimizerConfig())

	_, err := o.Optimize(context.Background(), []byte("not an image"), Options{})
	require.Error(t, err)
	assert.Equal(t, errors.KindValidation, errors.KindOf(err))

	_, err = o.Optimize(context.Background(), nil, Options{})
	require.Error(t, err)
	assert.Equal(t, errors.KindValidation, errors.KindOf(err))
}

func TestOptimizeUsesPngquantWhenAvailable(t *testing.T) {
	o := New(testOptimizerConfig(), logger.NewTestLogger())

	o.lookPath = func(name string) (string, error) {
		if name == "pngquant" {
			return "/usr/bin/pngquant", nil
		}
		return "", fmt.Errorf("not found")
	}

	var gotArgs []string
	fakeOutput := []byte("quantized-png")
	o.runTool = func(ctx context.Context, name string, args []string, stdin []byte) ([]byte, error) {
		require.Equal(t, "pngquant", name)
		gotArgs = args
		return fakeOutput, nil
	}

	input := encodePNG(t, gradientImage(60, 60))
	result, err := o.Optimize(context.Background(), input, Options{Quality: 75})
	require.NoError(t, err)

	assert.Equal(t, fakeOutput, result.Data)
	assert.Equal(t, []string{"--quality", "45-75", "--speed", "1", "--strip", "-"}, gotArgs)
}

func TestOptimizeUsesJpegoptimWhenAvailable(t *testing.T) {
	o := New(testOptimizerConfig(), logger.NewTestLogger())

	o.lookPath = func(name string) (string, error) {
		if name == "jpegoptim" {
			return "/usr/bin/jpegoptim", nil
		}
		return "", fmt.Errorf("not found")
	}

	var gotArgs []string
	fakeOutput := []byte("optimized-jpeg")
	o.runTool = func(ctx context.Context, name string, args []string, stdin []byte) ([]byte, error) {
		require.Equal(t, "jpegoptim", name)
		gotArgs = args
		return fakeOutput, nil
	}

	input := encodeJPEG(t, gradientImage(60, 60), 95)
	result, err := o.Optimize(context.Background(), input, Options{Quality: 70})
	require.NoError(t, err)

	assert.Equal(t, fakeOutput, result.Data)
	assert.Contains(t, gotArgs, "--max=70")
	assert.Contains(t, gotArgs, "--all-progressive")
	assert.Contains(t, gotArgs, "--strip-exif")
}

func TestOptimizeKeepMetadata(t *testing.T) {
	o := New(testOptimizerConfig(), logger.NewTestLogger())
	o.lookPath = func(name string) (string, error) { return "/usr/bin/" + name, nil }

	var gotArgs []string
	o.runTool = func(ctx context.Context, name string, args []string, stdin []byte) ([]byte, error) {
		gotArgs = args
		return []byte("out"), nil
	}

	input := encodeJPEG(t, gradientImage(20, 20), 95)
	_, err := o.Optimize(context.Background(), input, Options{Quality: 70, KeepMetadata: true})
	require.NoError(t, err)

	assert.Contains(t, gotArgs, "--strip-none")
	assert.NotContains(t, gotArgs, "--strip-exif")

	input = encodePNG(t, gradientImage(20, 20))
	_, err = o.Optimize(context.Background(), input, Options{Quality: 70, KeepMetadata: true})
	require.NoError(t, err)

	assert.NotContains(t, gotArgs, "--strip")
}

func TestOptimizePngquantQualityFloor(t *testing.T) {
	o := New(testOptimizerConfig(), logger.NewTestLogger())
	o.lookPath = func(name string) (string, error) { return "/usr/bin/" + name, nil }

	var gotArgs []string
	o.runTool = func(ctx context.Context, name string, args []string, stdin []byte) ([]byte, error) {
		gotArgs = args
		return []byte("out"), nil
	}

	input := encodePNG(t, gradientImage(10, 10))
	_, err := o.Optimize(context.Background(), input, Options{Quality: 20})
	require.NoError(t, err)

	// Lower bound clamps at zero
	assert.Equal(t, "0-20", gotArgs[1])
}

func TestOutputFilename(t *testing.T) {
	assert.Equal(t, "photo_optimized.jpg", OutputFilename("photo.png", FormatJPEG))
	assert.Equal(t, "photo_optimized.webp", OutputFilename("photo.jpg", FormatWebP))
	assert.Equal(t, "archive.tar_optimized.png", OutputFilename("archive.tar.gz", FormatPNG))
	assert.Equal(t, "image_optimized.png", OutputFilename(".png", FormatPNG))
	assert.Equal(t, "photo_optimized.jpg", OutputFilename("/some/dir/photo.jpeg", FormatJPEG))
}

func TestNormalizeFormat(t *testing.T) {
	assert.Equal(t, FormatJPEG, normalizeFormat("jpg"))
	assert.Equal(t, FormatJPEG, normalizeFormat("JPEG"))
	assert.Equal(t, FormatPNG, normalizeFormat("png"))
	assert.Equal(t, FormatWebP, normalizeFormat("webp"))
	assert.Equal(t, "", normalizeFormat(""))
}
