package httpapi

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"

	"igvault/pkg/errors"
	"igvault/pkg/optimizer"
)

// fileResult is one entry of the X-Results header on batch responses.
type fileResult struct {
	Filename      string  `json:"filename"`
	OutputName    string  `json:"output_name,omitempty"`
	OriginalSize  int     `json:"original_size,omitempty"`
	OptimizedSize int     `json:"optimized_size,omitempty"`
	SavingsPct    float64 `json:"savings_pct,omitempty"`
	Format        string  `json:"format,omitempty"`
	Error         string  `json:"error,omitempty"`
}

func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	files, opts, err := s.parseOptimizeRequest(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	if len(files) == 1 {
		s.optimizeSingle(w, r, files[0], opts)
		return
	}
	s.optimizeBatch(w, r, files, opts)
}

// parseOptimizeRequest validates the multipart form shared by the
// optimize and optimize/info endpoints.
func (s *Server) parseOptimizeRequest(r *http.Request) ([]*multipart.FileHeader, optimizer.Options, error) {
	var opts optimizer.Options

	// The multipart limit guards memory; oversized single files are
	// rejected per-file by the optimizer.
	if err := r.ParseMultipartForm(s.cfg.Optimizer.MaxFileSize); err != nil {
		return nil, opts, errors.Newf(errors.KindValidation, "invalid multipart form: %v", err)
	}

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		return nil, opts, errors.New(errors.KindValidation, "no files uploaded")
	}
	if len(files) > s.cfg.Optimizer.MaxFiles {
		return nil, opts, errors.Newf(errors.KindValidation,
			"too many files: %d exceeds the maximum of %d", len(files), s.cfg.Optimizer.MaxFiles)
	}

	opts.Format = r.FormValue("format")
	if parseFormBool(r.FormValue("convert_webp"), false) {
		opts.Format = optimizer.FormatWebP
	}
	// strip_metadata defaults to on, matching the optimizer tools
	opts.KeepMetadata = !parseFormBool(r.FormValue("strip_metadata"), true)

	if q := r.FormValue("quality"); q != "" {
		quality, err := strconv.Atoi(q)
		if err != nil || quality < 1 || quality > 100 {
			return nil, opts, errors.Newf(errors.KindValidation, "bad quality value: %q", q)
		}
		opts.Quality = quality
	}

	return files, opts, nil
}

func parseFormBool(value string, fallback bool) bool {
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func (s *Server) optimizeSingle(w http.ResponseWriter, r *http.Request, header *multipart.FileHeader, opts optimizer.Options) {
	data, err := readUpload(header)
	if err != nil {
		s.writeError(w, err)
		return
	}

	result, err := s.optimizer.Optimize(r.Context(), data, opts)
	if err != nil {
		s.writeError(w, err)
		return
	}

	outputName := optimizer.OutputFilename(header.Filename, result.Format)

	w.Header().Set("Content-Type", "image/"+result.Format)
	w.Header().Set("Content-Disposition", contentDisposition(outputName))
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
	w.Header().Set("X-Original-Size", strconv.Itoa(result.OriginalSize))
	w.Header().Set("X-Optimized-Size", strconv.Itoa(result.OptimizedSize))
	w.Header().Set("X-Savings-Pct", fmt.Sprintf("%.2f", result.SavingsPct))
	w.Header().Set("X-Output-Format", result.Format)
	w.Header().Set("X-Width", strconv.Itoa(result.Width))
	w.Header().Set("X-Height", strconv.Itoa(result.Height))

	if _, err := w.Write(result.Data); err != nil {
		s.logger.WithError(err).Debug("optimize response write interrupted")
	}
}

func (s *Server) optimizeBatch(w http.ResponseWriter, r *http.Request, files []*multipart.FileHeader, opts optimizer.Options) {
	var zipBuf bytes.Buffer
	zw := zip.NewWriter(&zipBuf)

	results := make([]fileResult, 0, len(files))
	succeeded := 0

	for _, header := range files {
		entry := fileResult{Filename: header.Filename}

		data, err := readUpload(header)
		if err == nil {
			var result *optimizer.Result
			result, err = s.optimizer.Optimize(r.Context(), data, opts)
			if err == nil {
				outputName := optimizer.OutputFilename(header.Filename, result.Format)

				var fw io.Writer
				fw, err = zw.Create(outputName)
				if err == nil {
					_, err = fw.Write(result.Data)
				}
				if err == nil {
					entry.OutputName = outputName
					entry.OriginalSize = result.OriginalSize
					entry.OptimizedSize = result.OptimizedSize
					entry.SavingsPct = result.SavingsPct
					entry.Format = result.Format
					succeeded++
				}
			}
		}
		if err != nil {
			entry.Error = errorDetail(err)
			s.logger.WarnWithFields("batch file optimization failed", map[string]interface{}{
				"filename": header.Filename,
				"error":    err.Error(),
			})
		}

		results = append(results, entry)
	}

	if err := zw.Close(); err != nil {
		s.writeError(w, errors.Newf(errors.KindUnknown, "failed to build archive: %v", err))
		return
	}

	if succeeded == 0 {
		s.writeError(w, errors.New(errors.KindValidation, "no files could be optimized"))
		return
	}

	statsJSON, err := json.Marshal(results)
	if err != nil {
		s.writeError(w, errors.Newf(errors.KindUnknown, "failed to encode results: %v", err))
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", contentDisposition("optimized_images.zip"))
	w.Header().Set("Content-Length", strconv.Itoa(zipBuf.Len()))
	w.Header().Set("X-Results", url.QueryEscape(string(statsJSON)))

	if _, err := w.Write(zipBuf.Bytes()); err != nil {
		s.logger.WithError(err).Debug("optimize archive write interrupted")
	}
}

// handleOptimizeInfo runs the same optimization pass but returns only
// the per-file stats, so a client can preview savings before
// downloading anything.
func (s *Server) handleOptimizeInfo(w http.ResponseWriter, r *http.Request) {
	files, opts, err := s.parseOptimizeRequest(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	results := make([]fileResult, 0, len(files))
	for _, header := range files {
		entry := fileResult{Filename: header.Filename}

		data, err := readUpload(header)
		if err == nil {
			var result *optimizer.Result
			result, err = s.optimizer.Optimize(r.Context(), data, opts)
			if err == nil {
				entry.OutputName = optimizer.OutputFilename(header.Filename, result.Format)
				entry.OriginalSize = result.OriginalSize
				entry.OptimizedSize = result.OptimizedSize
				entry.SavingsPct = result.SavingsPct
				entry.Format = result.Format
			}
		}
		if err != nil {
			entry.Error = errorDetail(err)
		}

		results = append(results, entry)
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"results": results,
		"count":   len(results),
	})
}

func readUpload(header *multipart.FileHeader) ([]byte, error) {
	f, err := header.Open()
	if err != nil {
		return nil, errors.Newf(errors.KindValidation, "failed to open upload %q: %v", header.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, errors.Newf(errors.KindValidation, "failed to read upload %q: %v", header.Filename, err)
	}
	return data, nil
}

func errorDetail(err error) string {
	var typed *errors.Error
	if stderrors.As(err, &typed) {
		return typed.Message
	}
	return err.Error()
}
