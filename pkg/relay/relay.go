// Package relay fetches media files from the upstream CDN on behalf of
// browser clients, which cannot load them directly due to CORS. Only
// https URLs on known Instagram CDN hosts are relayed.
package relay

import (
	"context"
	stderrors "errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"igvault/pkg/config"
	"igvault/pkg/errors"
	"igvault/pkg/logger"
)

// Result is a relayed upstream response. The caller owns Body and must
// close it.
type Result struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64
}

// Relay fetches allowlisted media URLs.
type Relay struct {
	httpClient   *http.Client
	allowedHosts []string
	userAgent    string
	logger       logger.Logger
}

// New creates a relay with the configured timeout and host allowlist.
func New(cfg *config.ProxyConfig, userAgent string, log logger.Logger) *Relay {
	if log == nil {
		log = logger.GetLogger()
	}

	return &Relay{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		allowedHosts: cfg.AllowedHosts,
		userAgent:    userAgent,
		logger:       log,
	}
}

// SetHTTPClient replaces the underlying HTTP client. Useful for
// installing a proxying or stub transport.
func (r *Relay) SetHTTPClient(hc *http.Client) {
	r.httpClient = hc
}

// ValidateURL checks that rawURL is an https URL on an allowed host.
func (r *Relay) ValidateURL(rawURL string) error {
	if rawURL == "" {
		return errors.New(errors.KindValidation, "url parameter is required")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.Newf(errors.KindValidation, "invalid url: %v", err)
	}

	if parsed.Scheme != "https" {
		return errors.New(errors.KindValidation, "only https urls are allowed")
	}

	host := parsed.Hostname()
	for _, allowed := range r.allowedHosts {
		if strings.Contains(host, allowed) {
			return nil
		}
	}

	return errors.Newf(errors.KindValidation, "host %q is not an allowed media host", host)
}

// Fetch validates and retrieves the media at rawURL. The response body
// is streamed through unmodified.
func (r *Relay) Fetch(ctx context.Context, rawURL string) (*Result, error) {
	if err := r.ValidateURL(rawURL); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.Newf(errors.KindUnknown, "failed to create request: %v", err)
	}
	if r.userAgent != "" {
		req.Header.Set("User-Agent", r.userAgent)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		r.logger.WarnWithFields("relay fetch failed", map[string]interface{}{
			"url":   rawURL,
			"error": err.Error(),
		})
		return nil, classifyFetchError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()

		r.logger.WarnWithFields("relay upstream returned error status", map[string]interface{}{
			"url":    rawURL,
			"status": resp.StatusCode,
		})

		// Every upstream failure is a relay failure regardless of the
		// CDN's status code; only timeouts are reported separately.
		detail := strings.TrimSpace(string(body))
		if detail == "" {
			detail = http.StatusText(resp.StatusCode)
		}
		return nil, errors.Newf(errors.KindUpstream, "upstream returned %d: %s", resp.StatusCode, detail)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	return &Result{
		Body:          resp.Body,
		ContentType:   contentType,
		ContentLength: resp.ContentLength,
	}, nil
}

func classifyFetchError(err error) error {
	if urlErr, ok := err.(*url.Error); ok && urlErr.Timeout() {
		return errors.Newf(errors.KindTimeout, "media fetch timed out: %v", err)
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.Newf(errors.KindTimeout, "media fetch timed out: %v", err)
	}
	if stderrors.Is(err, context.Canceled) {
		return errors.Newf(errors.KindTimeout, "media fetch cancelled: %v", err)
	}
	return errors.Newf(errors.KindUpstream, "media fetch failed: %v", err)
}
