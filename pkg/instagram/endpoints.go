package instagram

import (
	"fmt"
	"net/url"
)

const (
	// BaseURL is the base URL for Instagram
	BaseURL = "https://www.instagram.com"

	// APIPath is the prefix for the web API
	APIPath = "/api/v1"

	// AppID is the Instagram web app ID required on API calls
	AppID = "936619743392459"

	// DefaultPageSize is the feed page size used for post pagination
	DefaultPageSize = 12

	// MediaTypeImage is the media_type value for a single image
	MediaTypeImage = 1

	// MediaTypeVideo is the media_type value for a single video
	MediaTypeVideo = 2

	// MediaTypeCarousel is the media_type value for a carousel post
	MediaTypeCarousel = 8
)

// TopSearchURL constructs the URL for the user search endpoint.
func TopSearchURL(query string) string {
	params := url.Values{}
	params.Set("query", query)
	params.Set("count", "1")

	return fmt.Sprintf("%s%s/web/search/topsearch/?%s", BaseURL, APIPath, params.Encode())
}

// ReelsMediaURL constructs the URL for the story (reels media) endpoint.
// Reel IDs are sent as POST form data, see Client.FetchReelsMedia.
func ReelsMediaURL() string {
	return fmt.Sprintf("%s%s/feed/reels_media/", BaseURL, APIPath)
}

// UserFeedURL constructs the URL for one page of a user's post feed.
func UserFeedURL(userID string, pageSize int, maxID string) string {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	params := url.Values{}
	params.Set("count", fmt.Sprintf("%d", pageSize))
	if maxID != "" {
		params.Set("max_id", maxID)
	}

	return fmt.Sprintf("%s%s/feed/user/%s/?%s", BaseURL, APIPath, userID, params.Encode())
}

// UserInfoURL constructs the URL for the user info endpoint.
func UserInfoURL(userID string) string {
	return fmt.Sprintf("%s%s/users/%s/info/", BaseURL, APIPath, userID)
}

// CurrentUserURL constructs the URL used as a lightweight session probe.
func CurrentUserURL() string {
	return fmt.Sprintf("%s%s/accounts/current_user/", BaseURL, APIPath)
}

// ProfilePageURL constructs the public profile page URL for a user.
func ProfilePageURL(username string) string {
	if username == "" {
		return ""
	}
	return fmt.Sprintf("%s/%s/", BaseURL, username)
}

// IsValidUsername checks if a username is valid according to Instagram rules.
func IsValidUsername(username string) bool {
	if username == "" || len(username) > 30 {
		return false
	}

	// Instagram usernames can only contain letters, numbers, periods, and underscores
	for _, char := range username {
		if !((char >= 'a' && char <= 'z') ||
			(char >= 'A' && char <= 'Z') ||
			(char >= '0' && char <= '9') ||
			char == '.' || char == '_') {
			return false
		}
	}

	return true
}

// SanitizeUsername removes any invalid characters from a username.
func SanitizeUsername(username string) string {
	if username == "" {
		return ""
	}

	// Remove @ symbol if present at the beginning
	if username[0] == '@' {
		username = username[1:]
	}

	// Remove any trailing slashes or spaces
	for len(username) > 0 && (username[len(username)-1] == '/' || username[len(username)-1] == ' ') {
		username = username[:len(username)-1]
	}

	return username
}
