package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"

	"igvault/pkg/errors"
	"igvault/pkg/media"
	"igvault/pkg/view"
)

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.WithError(err).Error("failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	s.writeJSON(w, errors.HTTPStatus(err), view.ErrorResponse{Detail: errorDetail(err)})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, view.NewSessionStatusResponse(s.session.Status()))
}

func (s *Server) handleStories(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")

	if !s.session.Status().HasSession {
		s.writeError(w, errors.New(errors.KindAuth, "no Instagram session configured"))
		return
	}

	profile, items, err := s.service.GetStories(r.Context(), username)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, view.NewStoriesResponse(profile, items))
}

func (s *Server) handlePosts(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")

	if !s.session.Status().HasSession {
		s.writeError(w, errors.New(errors.KindAuth, "no Instagram session configured"))
		return
	}

	count := 0
	if countStr := r.URL.Query().Get("count"); countStr != "" {
		c, err := strconv.Atoi(countStr)
		if err != nil || c < 1 {
			s.writeError(w, errors.Newf(errors.KindValidation, "bad count value: %q", countStr))
			return
		}
		count = c
	}

	profile, items, err := s.service.GetPosts(r.Context(), username, count)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, view.NewPostsResponse(profile, items))
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")

	offset := 0
	limit := 0
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, errors.Newf(errors.KindValidation, "bad offset value: %q", v))
			return
		}
		offset = n
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, errors.Newf(errors.KindValidation, "bad limit value: %q", v))
			return
		}
		limit = n
	}

	rs, items, err := s.service.Results(username)
	if err != nil {
		s.writeError(w, err)
		return
	}

	total := len(items)
	if offset > total {
		offset = total
	}
	window := items[offset:]
	if limit > 0 {
		window = nil
		if batches := view.Batches(items[offset:], limit); len(batches) > 0 {
			window = batches[0]
		}
	}
	if window == nil {
		window = []media.Item{}
	}

	s.writeJSON(w, http.StatusOK, view.ResultsResponse{
		Username: rs.Username,
		Kind:     rs.Kind,
		Total:    total,
		Offset:   offset,
		Items:    window,
	})
}

func (s *Server) handleRecentResults(w http.ResponseWriter, r *http.Request) {
	count := 10
	if v := r.URL.Query().Get("count"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.writeError(w, errors.Newf(errors.KindValidation, "bad count value: %q", v))
			return
		}
		count = n
	}

	sets, err := s.service.Recent(count)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, view.NewRecentResultsResponse(sets))
}

func (s *Server) handleDeleteResults(w http.ResponseWriter, r *http.Request) {
	if err := s.service.ForgetResults(r.PathValue("username")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleProxyMedia(w http.ResponseWriter, r *http.Request) {
	mediaURL := r.URL.Query().Get("url")

	result, err := s.relay.Fetch(r.Context(), mediaURL)
	if err != nil {
		s.writeError(w, err)
		return
	}
	defer result.Body.Close()

	filename := relayFilename(mediaURL, result.ContentType)

	w.Header().Set("Content-Type", result.ContentType)
	w.Header().Set("Content-Disposition", contentDisposition(filename))
	w.Header().Set("Cache-Control", "public, max-age=3600")
	if result.ContentLength > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(result.ContentLength, 10))
	}

	if _, err := io.Copy(w, result.Body); err != nil {
		s.logger.WithError(err).Debug("media relay copy interrupted")
	}
}

// relayFilename derives a download name from the media URL path,
// falling back to the content type when the path has no usable name.
func relayFilename(rawURL, contentType string) string {
	if parsed, err := url.Parse(rawURL); err == nil {
		if name := path.Base(parsed.Path); name != "" && name != "/" && name != "." {
			return name
		}
	}

	switch {
	case strings.Contains(contentType, "video"):
		return "media.mp4"
	default:
		return "media.jpg"
	}
}

// contentDisposition builds an attachment header with the RFC 5987
// encoded filename so non-ASCII names survive.
func contentDisposition(filename string) string {
	ascii := strings.Map(func(r rune) rune {
		if r < 32 || r > 126 || r == '"' || r == '\\' {
			return '_'
		}
		return r
	}, filename)

	return fmt.Sprintf(`attachment; filename="%s"; filename*=UTF-8''%s`,
		ascii, url.PathEscape(filename))
}
