package instagram

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"igvault/pkg/config"
	"igvault/pkg/errors"
	"igvault/pkg/logger"
)

// Client represents an Instagram web API client
type Client struct {
	httpClient *http.Client
	headers    map[string]string
	baseURL    string
	logger     logger.Logger
}

// NewClient creates a new Instagram API client with the configured
// session credentials and timeout.
func NewClient(cfg *config.InstagramConfig, log logger.Logger) *Client {
	// Use default logger if none provided
	if log == nil {
		log = logger.GetLogger()
	}

	c := &Client{
		httpClient: &http.Client{
			Timeout: cfg.APITimeout,
		},
		headers: map[string]string{
			"User-Agent":       cfg.UserAgent,
			"Accept":           "*/*",
			"Accept-Language":  "en-US,en;q=0.9",
			"X-IG-App-ID":      AppID,
			"X-Requested-With": "XMLHttpRequest",
			"Referer":          BaseURL + "/",
		},
		baseURL: BaseURL,
		logger:  log,
	}

	c.SetCredentials(cfg.SessionID, cfg.CSRFToken)

	return c
}

// SetCredentials installs the session cookie and CSRF token used on
// every request. An empty session ID leaves the client anonymous.
func (c *Client) SetCredentials(sessionID, csrfToken string) {
	cookies := make([]string, 0, 2)
	if sessionID != "" {
		cookies = append(cookies, "sessionid="+sessionID)
	}
	if csrfToken != "" {
		cookies = append(cookies, "csrftoken="+csrfToken)
		c.headers["X-CSRFToken"] = csrfToken
	}

	if len(cookies) > 0 {
		c.headers["Cookie"] = strings.Join(cookies, "; ")
	} else {
		delete(c.headers, "Cookie")
	}
}

// HasSession reports whether a session cookie is installed.
func (c *Client) HasSession() bool {
	cookie, ok := c.headers["Cookie"]
	return ok && strings.Contains(cookie, "sessionid=")
}

// SetHeader sets a custom header for the client
func (c *Client) SetHeader(key, value string) {
	c.headers[key] = value
}

// SetHTTPClient replaces the underlying HTTP client. Useful for
// installing a proxying or stub transport.
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.httpClient = hc
}

// doRequest performs an HTTP request with the configured headers
func (c *Client) doRequest(req *http.Request) (*http.Response, error) {
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	start := time.Now()
	c.logger.DebugWithFields("sending HTTP request", map[string]interface{}{
		"method": req.Method,
		"url":    req.URL.String(),
	})

	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		c.logger.ErrorWithFields("HTTP request failed", map[string]interface{}{
			"method":   req.Method,
			"url":      req.URL.String(),
			"error":    err.Error(),
			"duration": duration,
		})
		return nil, classifyTransportError(err)
	}

	c.logger.DebugWithFields("HTTP request completed", map[string]interface{}{
		"method":   req.Method,
		"url":      req.URL.String(),
		"status":   resp.StatusCode,
		"duration": duration,
	})

	return resp, nil
}

// classifyTransportError maps a transport failure to a typed error.
// Deadline and timeout failures are distinguished from other network
// errors so callers can surface them as such.
func classifyTransportError(err error) *errors.Error {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.Newf(errors.KindTimeout, "request timed out: %v", err)
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return errors.Newf(errors.KindTimeout, "request timed out: %v", err)
	}
	if stderrors.Is(err, context.Canceled) {
		return errors.Newf(errors.KindTimeout, "request cancelled: %v", err)
	}
	return errors.Newf(errors.KindUpstream, "network error: %v", err)
}

// checkResponseStatus maps non-2xx responses to typed errors.
func (c *Client) checkResponseStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

	c.logger.WarnWithFields("upstream returned error status", map[string]interface{}{
		"status": resp.StatusCode,
		"url":    resp.Request.URL.String(),
	})

	return errors.FromStatus(resp.StatusCode, string(body))
}

// GetJSON performs a GET request and decodes the JSON response into target.
func (c *Client) GetJSON(ctx context.Context, rawURL string, target interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return errors.Newf(errors.KindUnknown, "failed to create request: %v", err)
	}

	resp, err := c.doRequest(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkResponseStatus(resp); err != nil {
		return err
	}

	return c.decodeJSON(resp, rawURL, target)
}

// PostFormJSON performs a POST with form-encoded data and decodes the
// JSON response into target.
func (c *Client) PostFormJSON(ctx context.Context, rawURL string, form url.Values, target interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return errors.Newf(errors.KindUnknown, "failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.doRequest(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkResponseStatus(resp); err != nil {
		return err
	}

	return c.decodeJSON(resp, rawURL, target)
}

func (c *Client) decodeJSON(resp *http.Response, rawURL string, target interface{}) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Newf(errors.KindUpstream, "failed to read response body: %v", err)
	}

	if err := json.Unmarshal(body, target); err != nil {
		bodyPreview := string(body)
		if len(bodyPreview) > 200 {
			bodyPreview = bodyPreview[:200] + "..."
		}

		c.logger.ErrorWithFields("failed to parse JSON response", map[string]interface{}{
			"url":          rawURL,
			"status":       resp.StatusCode,
			"error":        err.Error(),
			"body_preview": bodyPreview,
		})
		return errors.Newf(errors.KindParsing, "failed to parse JSON: %v", err)
	}

	return nil
}

// GetBody performs a GET request and returns the raw response body.
// Used for fetching profile page HTML.
func (c *Client) GetBody(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.Newf(errors.KindUnknown, "failed to create request: %v", err)
	}
	// Profile pages are served as documents, not API responses.
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := c.doRequest(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := c.checkResponseStatus(resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Newf(errors.KindUpstream, "failed to read response body: %v", err)
	}

	return body, nil
}

// SearchUsers queries the topsearch endpoint for accounts matching query.
func (c *Client) SearchUsers(ctx context.Context, query string) (*TopSearchResponse, error) {
	c.logger.DebugWithFields("searching users", map[string]interface{}{
		"query": query,
	})

	var response TopSearchResponse
	if err := c.GetJSON(ctx, TopSearchURL(query), &response); err != nil {
		return nil, err
	}

	return &response, nil
}

// FetchReelsMedia fetches the active stories for a user ID.
func (c *Client) FetchReelsMedia(ctx context.Context, userID string) (*ReelsMediaResponse, error) {
	c.logger.DebugWithFields("fetching reels media", map[string]interface{}{
		"user_id": userID,
	})

	form := url.Values{}
	form.Set("reel_ids", fmt.Sprintf("[%q]", userID))

	var response ReelsMediaResponse
	if err := c.PostFormJSON(ctx, ReelsMediaURL(), form, &response); err != nil {
		return nil, err
	}

	return &response, nil
}

// FetchUserFeed fetches one page of a user's post feed. Pass an empty
// maxID for the first page.
func (c *Client) FetchUserFeed(ctx context.Context, userID string, pageSize int, maxID string) (*UserFeedResponse, error) {
	c.logger.DebugWithFields("fetching user feed", map[string]interface{}{
		"user_id": userID,
		"max_id":  maxID,
	})

	var response UserFeedResponse
	if err := c.GetJSON(ctx, UserFeedURL(userID, pageSize, maxID), &response); err != nil {
		return nil, err
	}

	return &response, nil
}

// FetchUserInfo fetches profile details for a user ID.
func (c *Client) FetchUserInfo(ctx context.Context, userID string) (*UserInfoResponse, error) {
	c.logger.DebugWithFields("fetching user info", map[string]interface{}{
		"user_id": userID,
	})

	var response UserInfoResponse
	if err := c.GetJSON(ctx, UserInfoURL(userID), &response); err != nil {
		return nil, err
	}

	return &response, nil
}

// FetchCurrentUser probes the session by requesting the logged-in
// account. An auth error means the session cookie is no longer valid.
func (c *Client) FetchCurrentUser(ctx context.Context) (*CurrentUserResponse, error) {
	var response CurrentUserResponse
	if err := c.GetJSON(ctx, CurrentUserURL(), &response); err != nil {
		return nil, err
	}

	return &response, nil
}

// FetchProfilePage fetches the public profile page HTML for a username.
func (c *Client) FetchProfilePage(ctx context.Context, username string) ([]byte, error) {
	return c.GetBody(ctx, ProfilePageURL(username))
}

// Download fetches a media file and returns its bytes.
func (c *Client) Download(ctx context.Context, mediaURL string) ([]byte, error) {
	c.logger.DebugWithFields("downloading media", map[string]interface{}{
		"url": mediaURL,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, errors.Newf(errors.KindUnknown, "failed to create request: %v", err)
	}

	resp, err := c.doRequest(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := c.checkResponseStatus(resp); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Newf(errors.KindDownload, "failed to read media: %v", err)
	}

	c.logger.DebugWithFields("downloaded media", map[string]interface{}{
		"url":  mediaURL,
		"size": len(data),
	})

	return data, nil
}
