package relay

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"igvault/pkg/config"
	"igvault/pkg/errors"
	"igvault/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRelay(timeout time.Duration) *Relay {
	return New(&config.ProxyConfig{
		Timeout:      timeout,
		AllowedHosts: []string{"scontent", "instagram", "cdninstagram", "fbcdn"},
	}, "test-agent", logger.NewTestLogger())
}

func TestValidateURL(t *testing.T) {
	r := testRelay(30 * time.Second)

	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"scontent host", "https://scontent-ams4-1.cdninstagram.com/v/media.jpg", false},
		{"fbcdn host", "https://video.xx.fbcdn.net/v/clip.mp4", false},
		{"instagram host", "https://www.instagram.com/some/media.jpg", false},
		{"empty", "", true},
		{"http scheme", "http://scontent.cdninstagram.com/v/media.jpg", true},
		{"unknown host", "https://evil.example.com/media.jpg", true},
		{"allowed substring in path only", "https://evil.example.com/scontent/media.jpg", true},
		{"garbage", "https://%zz", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.ValidateURL(tt.url)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, errors.KindValidation, errors.KindOf(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// roundTripperFunc adapts a function to http.RoundTripper
type roundTripperFunc func(req *http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// withTransport points the relay at a stub transport so allowlisted
// hosts resolve to canned responses.
func withTransport(r *Relay, fn roundTripperFunc) *Relay {
	r.httpClient.Transport = fn
	return r
}

func TestFetchRelaysBodyUnmodified(t *testing.T) {
	payload := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F'}

	r := withTransport(testRelay(30*time.Second), func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "test-agent", req.Header.Get("User-Agent"))
		return &http.Response{
			StatusCode:    http.StatusOK,
			Body:          io.NopCloser(bytes.NewReader(payload)),
			ContentLength: int64(len(payload)),
			Header:        http.Header{"Content-Type": []string{"image/jpeg"}},
		}, nil
	})

	result, err := r.Fetch(context.Background(), "https://scontent.cdninstagram.com/v/media.jpg")
	require.NoError(t, err)
	defer result.Body.Close()

	assert.Equal(t, "image/jpeg", result.ContentType)
	assert.Equal(t, int64(len(payload)), result.ContentLength)

	got, err := io.ReadAll(result.Body)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestFetchRejectsDisallowedURL(t *testing.T) {
	r := testRelay(30 * time.Second)

	_, err := r.Fetch(context.Background(), "https://evil.example.com/media.jpg")
	require.Error(t, err)
	assert.Equal(t, errors.KindValidation, errors.KindOf(err))
}

func TestFetchUpstreamError(t *testing.T) {
	// All CDN failure statuses surface as a single upstream kind so the
	// API answers 502, never the auth or rate-limit codes of its own
	// endpoints.
	statuses := []int{
		http.StatusForbidden,
		http.StatusNotFound,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
	}

	for _, status := range statuses {
		r := withTransport(testRelay(30*time.Second), func(req *http.Request) (*http.Response, error) {
			return &http.Response{
				StatusCode: status,
				Body:       io.NopCloser(strings.NewReader("URL signature expired")),
				Header:     make(http.Header),
			}, nil
		})

		_, err := r.Fetch(context.Background(), "https://scontent.cdninstagram.com/v/media.jpg")
		require.Error(t, err, "status %d", status)
		assert.Equal(t, errors.KindUpstream, errors.KindOf(err), "status %d", status)
		assert.Equal(t, http.StatusBadGateway, errors.HTTPStatus(err), "status %d", status)
		assert.Contains(t, err.Error(), "URL signature expired")
	}
}

func TestFetchDefaultsContentType(t *testing.T) {
	r := withTransport(testRelay(30*time.Second), func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader("data")),
			Header:     make(http.Header),
		}, nil
	})

	result, err := r.Fetch(context.Background(), "https://scontent.cdninstagram.com/v/media.bin")
	require.NoError(t, err)
	defer result.Body.Close()

	assert.Equal(t, "application/octet-stream", result.ContentType)
}

func TestFetchTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	r := New(&config.ProxyConfig{
		Timeout:      20 * time.Millisecond,
		AllowedHosts: []string{"127.0.0.1"},
	}, "", logger.NewTestLogger())

	// httptest serves plain http; rewrite through a transport stub
	// would hide the timeout path, so validate directly against the
	// client instead.
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	_, doErr := r.httpClient.Do(req)
	require.Error(t, doErr)

	mapped := classifyFetchError(doErr)
	assert.Equal(t, errors.KindTimeout, errors.KindOf(mapped))
}
