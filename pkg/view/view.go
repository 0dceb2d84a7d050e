// Package view defines the JSON response shapes served by the HTTP API.
package view

import (
	"time"

	"igvault/pkg/instagram"
	"igvault/pkg/media"
	"igvault/pkg/store"
)

// StoriesResponse is the payload of a stories fetch.
type StoriesResponse struct {
	User    media.Profile `json:"user"`
	Stories []media.Item  `json:"stories"`
	Count   int           `json:"count"`
}

// PostsResponse is the payload of a posts fetch.
type PostsResponse struct {
	User  media.Profile `json:"user"`
	Posts []media.Item  `json:"posts"`
	Count int           `json:"count"`
}

// ResultsResponse is a window of a stored result set.
type ResultsResponse struct {
	Username string       `json:"username"`
	Kind     string       `json:"kind"`
	Total    int          `json:"total"`
	Offset   int          `json:"offset"`
	Items    []media.Item `json:"items"`
}

// RecentResult summarizes one stored result set.
type RecentResult struct {
	Username  string    `json:"username"`
	Kind      string    `json:"kind"`
	Count     int       `json:"count"`
	FetchedAt time.Time `json:"fetched_at"`
}

// RecentResultsResponse lists the most recently fetched result sets.
type RecentResultsResponse struct {
	Results []RecentResult `json:"results"`
	Count   int            `json:"count"`
}

// SessionStatusResponse is the payload of the session status endpoint.
type SessionStatusResponse struct {
	HasSession         bool   `json:"has_session"`
	LoggedIn           bool   `json:"logged_in"`
	Username           string `json:"username,omitempty"`
	NeedsManualRefresh bool   `json:"needs_manual_refresh"`
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// NewStoriesResponse builds a stories payload.
func NewStoriesResponse(profile *media.Profile, items []media.Item) StoriesResponse {
	if items == nil {
		items = []media.Item{}
	}
	return StoriesResponse{
		User:    *profile,
		Stories: items,
		Count:   len(items),
	}
}

// NewPostsResponse builds a posts payload.
func NewPostsResponse(profile *media.Profile, items []media.Item) PostsResponse {
	if items == nil {
		items = []media.Item{}
	}
	return PostsResponse{
		User:  *profile,
		Posts: items,
		Count: len(items),
	}
}

// NewRecentResultsResponse builds a recent-results payload.
func NewRecentResultsResponse(sets []*store.ResultSet) RecentResultsResponse {
	results := make([]RecentResult, 0, len(sets))
	for _, rs := range sets {
		results = append(results, RecentResult{
			Username:  rs.Username,
			Kind:      rs.Kind,
			Count:     len(rs.Items),
			FetchedAt: rs.FetchedAt,
		})
	}
	return RecentResultsResponse{Results: results, Count: len(results)}
}

// NewSessionStatusResponse builds a session status payload.
func NewSessionStatusResponse(status instagram.Status) SessionStatusResponse {
	return SessionStatusResponse{
		HasSession:         status.HasSession,
		LoggedIn:           status.LoggedIn,
		Username:           status.Username,
		NeedsManualRefresh: status.NeedsManualRefresh,
	}
}

// Batches splits items into consecutive chunks of at most size. The
// last chunk holds the remainder. The results endpoint serves the first
// chunk of the offset window as its page.
func Batches(items []media.Item, size int) [][]media.Item {
	if size <= 0 || len(items) == 0 {
		return nil
	}

	batches := make([][]media.Item, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		batches = append(batches, items[start:end])
	}

	return batches
}
