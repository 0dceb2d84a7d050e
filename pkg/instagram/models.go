package instagram

import "encoding/json"

// MediaItem is a single media entry as returned by the feed and story
// endpoints. Carousel posts nest their children under CarouselMedia.
type MediaItem struct {
	PK             json.Number     `json:"pk"`
	ID             string          `json:"id"`
	TakenAt        int64           `json:"taken_at"`
	MediaType      int             `json:"media_type"`
	LikeCount      int             `json:"like_count"`
	Caption        *Caption        `json:"caption"`
	VideoVersions  []VideoVersion  `json:"video_versions"`
	ImageVersions2 ImageVersions   `json:"image_versions2"`
	CarouselMedia  []MediaItem     `json:"carousel_media"`
}

// Caption holds the text of a post caption.
type Caption struct {
	Text string `json:"text"`
}

// VideoVersion is one available rendition of a video.
type VideoVersion struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// ImageVersions holds the candidate renditions of an image, best first.
type ImageVersions struct {
	Candidates []ImageCandidate `json:"candidates"`
}

// ImageCandidate is one available rendition of an image.
type ImageCandidate struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// BestVideoURL returns the URL of the first (highest quality) video
// rendition, or an empty string if the item has no video.
func (m *MediaItem) BestVideoURL() string {
	if len(m.VideoVersions) == 0 {
		return ""
	}
	return m.VideoVersions[0].URL
}

// BestImageURL returns the URL of the first (highest quality) image
// candidate, or an empty string if the item has no image.
func (m *MediaItem) BestImageURL() string {
	if len(m.ImageVersions2.Candidates) == 0 {
		return ""
	}
	return m.ImageVersions2.Candidates[0].URL
}

// IsVideo reports whether the item carries a playable video rendition.
func (m *MediaItem) IsVideo() bool {
	return len(m.VideoVersions) > 0
}

// SearchUser is a user entry in a topsearch response.
type SearchUser struct {
	PK            json.Number `json:"pk"`
	Username      string      `json:"username"`
	FullName      string      `json:"full_name"`
	ProfilePicURL string      `json:"profile_pic_url"`
	IsPrivate     bool        `json:"is_private"`
	IsVerified    bool        `json:"is_verified"`
	FollowerCount int         `json:"follower_count"`
}

// TopSearchResponse is the envelope of the topsearch endpoint.
type TopSearchResponse struct {
	Users []struct {
		User SearchUser `json:"user"`
	} `json:"users"`
	Status string `json:"status"`
}

// InfoUser is the user object of the user info endpoint.
type InfoUser struct {
	PK            json.Number `json:"pk"`
	Username      string      `json:"username"`
	FullName      string      `json:"full_name"`
	ProfilePicURL string      `json:"profile_pic_url"`
	IsPrivate     bool        `json:"is_private"`
	FollowerCount int         `json:"follower_count"`
	MediaCount    int         `json:"media_count"`
}

// UserInfoResponse is the envelope of the user info endpoint.
type UserInfoResponse struct {
	User   InfoUser `json:"user"`
	Status string   `json:"status"`
}

// Reel is one user's story tray entry in a reels media response.
type Reel struct {
	Items []MediaItem `json:"items"`
	User  SearchUser  `json:"user"`
}

// ReelsMediaResponse is the envelope of the reels media endpoint,
// keyed by user ID.
type ReelsMediaResponse struct {
	Reels  map[string]Reel `json:"reels"`
	Status string          `json:"status"`
}

// UserFeedResponse is one page of a user's post feed.
type UserFeedResponse struct {
	Items         []MediaItem `json:"items"`
	MoreAvailable bool        `json:"more_available"`
	NextMaxID     string      `json:"next_max_id"`
	Status        string      `json:"status"`
}

// CurrentUserResponse is the envelope of the session probe endpoint.
type CurrentUserResponse struct {
	User   InfoUser `json:"user"`
	Status string   `json:"status"`
}
