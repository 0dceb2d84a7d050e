// Package optimizer recompresses images, using pngquant, jpegoptim and
// cwebp when they are installed and falling back to pure-Go encoders
// when they are not.
package optimizer

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"image/png"
	"os/exec"
	"path/filepath"
	"strings"

	_ "image/gif"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"igvault/pkg/config"
	"igvault/pkg/errors"
	"igvault/pkg/logger"
)

// Supported output formats.
const (
	FormatJPEG = "jpeg"
	FormatPNG  = "png"
	FormatWebP = "webp"
)

// Options control one optimization run.
type Options struct {
	// Quality in the 1-100 range. Zero means the configured default.
	Quality int

	// Format converts the image to the given output format. Empty
	// keeps the source format.
	Format string

	// KeepMetadata leaves EXIF/IPTC/XMP blocks in place on the tool
	// paths. The pure-Go fallback encoders always drop them.
	KeepMetadata bool
}

// Result is the outcome of one optimization run.
type Result struct {
	Data          []byte
	OriginalSize  int
	OptimizedSize int
	SavingsPct    float64
	Format        string
	Width         int
	Height        int
}

// Optimizer recompresses images within the configured limits.
type Optimizer struct {
	cfg    *config.OptimizerConfig
	logger logger.Logger

	// overridable in tests
	lookPath func(string) (string, error)
	runTool  func(ctx context.Context, name string, args []string, stdin []byte) ([]byte, error)
}

// New creates an optimizer.
func New(cfg *config.OptimizerConfig, log logger.Logger) *Optimizer {
	if log == nil {
		log = logger.GetLogger()
	}

	return &Optimizer{
		cfg:      cfg,
		logger:   log,
		lookPath: exec.LookPath,
		runTool:  runCommand,
	}
}

func runCommand(ctx context.Context, name string, args []string, stdin []byte) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s failed: %v: %s", name, err, strings.TrimSpace(stderr.String()))
	}

	return stdout.Bytes(), nil
}

// Optimize recompresses the image in data. When the optimized output
// would be larger than the input and no format conversion was
// requested, the original bytes are returned unchanged.
func (o *Optimizer) Optimize(ctx context.Context, data []byte, opts Options) (*Result, error) {
	if len(data) == 0 {
		return nil, errors.New(errors.KindValidation, "empty file")
	}
	if int64(len(data)) > o.cfg.MaxFileSize {
		return nil, errors.Newf(errors.KindValidation, "file exceeds maximum size of %d bytes", o.cfg.MaxFileSize)
	}

	cfgImg, sourceFormat, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Newf(errors.KindValidation, "unsupported or corrupt image: %v", err)
	}

	if cfgImg.Width > o.cfg.MaxDimension || cfgImg.Height > o.cfg.MaxDimension {
		return nil, errors.Newf(errors.KindValidation,
			"image dimensions %dx%d exceed the maximum of %d pixels",
			cfgImg.Width, cfgImg.Height, o.cfg.MaxDimension)
	}

	quality := opts.Quality
	if quality <= 0 {
		quality = o.cfg.Quality
	}
	if quality > 100 {
		quality = 100
	}

	targetFormat := normalizeFormat(opts.Format)
	if targetFormat == "" {
		targetFormat = normalizeFormat(sourceFormat)
	}
	converting := targetFormat != normalizeFormat(sourceFormat)

	var optimized []byte
	switch targetFormat {
	case FormatPNG:
		optimized, err = o.encodePNG(ctx, data, sourceFormat, quality, converting, opts.KeepMetadata)
	case FormatJPEG:
		optimized, err = o.encodeJPEG(ctx, data, sourceFormat, quality, converting, opts.KeepMetadata)
	case FormatWebP:
		optimized, err = o.encodeWebP(ctx, data, quality)
	default:
		// Formats we can decode but not re-encode (gif, bmp, tiff)
		// pass through untouched unless a conversion was requested.
		if converting {
			return nil, errors.Newf(errors.KindValidation, "unsupported output format %q", targetFormat)
		}
		optimized = data
	}
	if err != nil {
		return nil, err
	}

	// Keep the original when recompression did not help
	if !converting && len(optimized) >= len(data) {
		optimized = data
	}

	result := &Result{
		Data:          optimized,
		OriginalSize:  len(data),
		OptimizedSize: len(optimized),
		Format:        targetFormat,
		Width:         cfgImg.Width,
		Height:        cfgImg.Height,
	}
	if result.OriginalSize > 0 {
		result.SavingsPct = 100 * float64(result.OriginalSize-result.OptimizedSize) / float64(result.OriginalSize)
	}

	o.logger.InfoWithFields("optimized image", map[string]interface{}{
		"format":         result.Format,
		"original_size":  result.OriginalSize,
		"optimized_size": result.OptimizedSize,
		"savings_pct":    fmt.Sprintf("%.1f", result.SavingsPct),
	})

	return result, nil
}

// encodePNG compresses to PNG with pngquant when available, otherwise
// with the built-in encoder at best compression.
func (o *Optimizer) encodePNG(ctx context.Context, data []byte, sourceFormat string, quality int, converting, keepMetadata bool) ([]byte, error) {
	input := data
	if converting || sourceFormat != "png" {
		img, err := decodeImage(data)
		if err != nil {
			return nil, err
		}
		encoded, err := encodePNGStdlib(img)
		if err != nil {
			return nil, err
		}
		input = encoded
	}

	if _, err := o.lookPath("pngquant"); err == nil {
		minQuality := quality - 30
		if minQuality < 0 {
			minQuality = 0
		}
		args := []string{
			"--quality", fmt.Sprintf("%d-%d", minQuality, quality),
			"--speed", "1",
		}
		if !keepMetadata {
			args = append(args, "--strip")
		}
		args = append(args, "-")
		out, err := o.runTool(ctx, "pngquant", args, input)
		if err == nil && len(out) > 0 {
			return out, nil
		}
		// pngquant exits non-zero when it cannot hit the quality
		// range; fall through to the plain encoder output.
		o.logger.DebugWithFields("pngquant unavailable for this image", map[string]interface{}{
			"error": fmt.Sprintf("%v", err),
		})
	}

	if sourceFormat == "png" && !converting {
		// Re-encode at best compression as the fallback optimizer
		img, err := decodeImage(data)
		if err != nil {
			return nil, err
		}
		return encodePNGStdlib(img)
	}

	return input, nil
}

// encodeJPEG compresses to JPEG with jpegoptim when available,
// otherwise with the built-in encoder.
func (o *Optimizer) encodeJPEG(ctx context.Context, data []byte, sourceFormat string, quality int, converting, keepMetadata bool) ([]byte, error) {
	input := data
	if converting || sourceFormat != "jpeg" {
		img, err := decodeImage(data)
		if err != nil {
			return nil, err
		}
		encoded, err := encodeJPEGStdlib(img, quality)
		if err != nil {
			return nil, err
		}
		input = encoded
	}

	if _, err := o.lookPath("jpegoptim"); err == nil {
		args := []string{
			fmt.Sprintf("--max=%d", quality),
			"--all-progressive",
		}
		if keepMetadata {
			args = append(args, "--strip-none")
		} else {
			args = append(args, "--strip-exif", "--strip-iptc", "--strip-xmp")
		}
		args = append(args, "--stdin", "--stdout")
		out, err := o.runTool(ctx, "jpegoptim", args, input)
		if err == nil && len(out) > 0 {
			return out, nil
		}
		o.logger.DebugWithFields("jpegoptim failed, using built-in encoder", map[string]interface{}{
			"error": fmt.Sprintf("%v", err),
		})
	}

	if sourceFormat == "jpeg" && !converting {
		img, err := decodeImage(data)
		if err != nil {
			return nil, err
		}
		return encodeJPEGStdlib(img, quality)
	}

	return input, nil
}

// encodeWebP converts to WebP with cwebp. There is no pure-Go WebP
// encoder, so the tool is required.
func (o *Optimizer) encodeWebP(ctx context.Context, data []byte, quality int) ([]byte, error) {
	if _, err := o.lookPath("cwebp"); err != nil {
		return nil, errors.New(errors.KindValidation, "webp output requires the cwebp tool, which is not installed")
	}

	// cwebp reads png/jpeg/tiff input files; normalize to PNG first
	img, err := decodeImage(data)
	if err != nil {
		return nil, err
	}
	pngData, err := encodePNGStdlib(img)
	if err != nil {
		return nil, err
	}

	out, err := o.runWebPTool(ctx, pngData, quality)
	if err != nil {
		return nil, errors.Newf(errors.KindUnknown, "webp conversion failed: %v", err)
	}

	return out, nil
}

// decodeImage decodes the full image, flattening any alpha channel
// onto white the way photo pipelines expect.
func decodeImage(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Newf(errors.KindValidation, "failed to decode image: %v", err)
	}
	return img, nil
}

func flattenOntoWhite(img image.Image) *image.RGBA {
	bounds := img.Bounds()
	flat := image.NewRGBA(bounds)
	draw.Draw(flat, bounds, image.White, image.Point{}, draw.Src)
	draw.Draw(flat, bounds, img, bounds.Min, draw.Over)
	return flat
}

func encodeJPEGStdlib(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	err := jpeg.Encode(&buf, flattenOntoWhite(img), &jpeg.Options{Quality: quality})
	if err != nil {
		return nil, errors.Newf(errors.KindUnknown, "jpeg encode failed: %v", err)
	}
	return buf.Bytes(), nil
}

func encodePNGStdlib(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, errors.Newf(errors.KindUnknown, "png encode failed: %v", err)
	}
	return buf.Bytes(), nil
}

// normalizeFormat maps format aliases to canonical names.
func normalizeFormat(format string) string {
	switch strings.ToLower(format) {
	case "jpg", "jpeg":
		return FormatJPEG
	case "png":
		return FormatPNG
	case "webp":
		return FormatWebP
	case "":
		return ""
	default:
		return strings.ToLower(format)
	}
}

// Extension returns the filename extension for an output format.
func Extension(format string) string {
	switch format {
	case FormatJPEG:
		return "jpg"
	case FormatPNG:
		return "png"
	case FormatWebP:
		return "webp"
	default:
		return format
	}
}

// OutputFilename derives the download name for an optimized file:
// the original stem plus an "_optimized" suffix and the extension of
// the output format.
func OutputFilename(original, format string) string {
	base := filepath.Base(original)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" {
		stem = "image"
	}
	return fmt.Sprintf("%s_optimized.%s", stem, Extension(format))
}
